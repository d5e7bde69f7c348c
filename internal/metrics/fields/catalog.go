package fields

import (
	"fmt"
	"sort"
	"strings"

	"github.com/conduit-lang/metricsd/internal/metrics"
)

// Session metric names
const (
	SessionMetricName      = "sentry.sessions.session"
	SessionErrorMetricName = "sentry.sessions.session.error"
)

// Derived metric names of the default catalog
const (
	InitSessionsMetric        = "init_sessions"
	CrashedSessionsMetric     = "crashed_sessions"
	CrashFreePercentageMetric = "crash_free_percentage"
	ErroredPreaggrMetric      = "errored_preaggr"
	SessionsErroredSetMetric  = "sessions_errored_set"
)

// Catalog is an immutable registry of derived metrics, keyed by name.
// It is safe for concurrent use once built.
type Catalog struct {
	metrics map[string]*DerivedMetric
	names   []string
}

// NewCatalog builds a catalog from the given definitions. It fails on
// duplicate names, on definitions without a compose function and on
// dependency cycles between derived metrics.
func NewCatalog(defs ...*DerivedMetric) (*Catalog, error) {
	c := &Catalog{
		metrics: make(map[string]*DerivedMetric, len(defs)),
		names:   make([]string, 0, len(defs)),
	}

	for _, def := range defs {
		if def == nil || def.MetricName == "" {
			return nil, fmt.Errorf("derived metric must have a name")
		}
		if def.Compose == nil {
			return nil, fmt.Errorf("derived metric %s has no compose function", def.MetricName)
		}
		if len(def.Metrics) == 0 {
			return nil, fmt.Errorf("derived metric %s has no child metrics", def.MetricName)
		}
		if _, exists := c.metrics[def.MetricName]; exists {
			return nil, fmt.Errorf("derived metric %s already registered", def.MetricName)
		}
		c.metrics[def.MetricName] = def
		c.names = append(c.names, def.MetricName)
	}
	sort.Strings(c.names)

	if cycles := c.detectCycles(); len(cycles) > 0 {
		return nil, fmt.Errorf("%w: %s", metrics.ErrDependencyCycle, strings.Join(cycles[0], " -> "))
	}

	return c, nil
}

// MustNewCatalog is like NewCatalog but panics on error
func MustNewCatalog(defs ...*DerivedMetric) *Catalog {
	c, err := NewCatalog(defs...)
	if err != nil {
		panic(err)
	}
	return c
}

// DefaultDefinitions returns fresh definitions of the session health metrics
func DefaultDefinitions() []*DerivedMetric {
	return []*DerivedMetric{
		NewSingularEntityDerivedMetric(
			InitSessionsMetric,
			[]string{SessionMetricName},
			"sessions",
			composeSessions(InitSessions),
		),
		NewSingularEntityDerivedMetric(
			CrashedSessionsMetric,
			[]string{SessionMetricName},
			"sessions",
			composeSessions(CrashedSessions),
		),
		NewSingularEntityDerivedMetric(
			CrashFreePercentageMetric,
			[]string{CrashedSessionsMetric, InitSessionsMetric},
			"percentage",
			composePercentage(CrashFreePercentageMetric),
		),
		NewSingularEntityDerivedMetric(
			ErroredPreaggrMetric,
			[]string{SessionMetricName},
			"sessions",
			composeSessions(ErroredPreaggrSessions),
		),
		NewSingularEntityDerivedMetric(
			SessionsErroredSetMetric,
			[]string{SessionErrorMetricName},
			"sessions",
			composeSessions(SessionsErroredSet),
		),
	}
}

// NewDefaultCatalog builds the catalog of session health metrics. It is
// meant to be called once during startup.
func NewDefaultCatalog() *Catalog {
	return MustNewCatalog(DefaultDefinitions()...)
}

// Get returns the derived metric registered under name
func (c *Catalog) Get(name string) (*DerivedMetric, bool) {
	if c == nil {
		return nil, false
	}
	dm, ok := c.metrics[name]
	return dm, ok
}

// Has reports whether name is a derived metric
func (c *Catalog) Has(name string) bool {
	_, ok := c.Get(name)
	return ok
}

// Names returns the registered metric names, sorted
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, len(c.names))
	copy(names, c.names)
	return names
}

// Len returns the number of registered metrics
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.metrics)
}

// detectCycles walks the derived-metric graph depth first and returns every
// cycle found, each as the path that closes it
func (c *Catalog) detectCycles() [][]string {
	var cycles [][]string
	visited := make(map[string]bool)
	recursionStack := make(map[string]bool)

	var dfs func(name string, path []string)
	dfs = func(name string, path []string) {
		visited[name] = true
		recursionStack[name] = true
		path = append(path, name)

		for _, child := range c.metrics[name].Metrics {
			if _, derived := c.metrics[child]; !derived {
				continue
			}
			if !visited[child] {
				dfs(child, path)
			} else if recursionStack[child] {
				cycle := make([]string, len(path), len(path)+1)
				copy(cycle, path)
				cycles = append(cycles, append(cycle, child))
			}
		}

		recursionStack[name] = false
	}

	for _, name := range c.names {
		if !visited[name] {
			dfs(name, nil)
		}
	}

	return cycles
}
