package fields

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/conduit-lang/metricsd/internal/indexer"
	"github.com/conduit-lang/metricsd/internal/metrics"
	"github.com/conduit-lang/metricsd/internal/metrics/snql"
)

// EntityProber discovers which entity holds data for a raw metric in the
// given projects
type EntityProber interface {
	MetricEntity(ctx context.Context, projects []metrics.Project, metricName string) (metrics.EntityKey, error)
}

// Traverser walks the dependency trees of derived metrics. It holds no
// state between calls.
type Traverser struct {
	catalog *Catalog
	indexer indexer.Indexer
	prober  EntityProber
}

// NewTraverser creates a traverser over the given catalog
func NewTraverser(catalog *Catalog, idx indexer.Indexer, prober EntityProber) *Traverser {
	return &Traverser{
		catalog: catalog,
		indexer: idx,
		prober:  prober,
	}
}

// evaluation memoises the entities of raw leaves for one set of projects.
// It lives for a single resolution and is never shared between requests.
type evaluation struct {
	projects []metrics.Project
	entities map[string]metrics.EntityKey
}

func newEvaluation(projects []metrics.Project) *evaluation {
	return &evaluation{
		projects: projects,
		entities: make(map[string]metrics.EntityKey),
	}
}

// EntityOf returns the entity of a metric name. A derived metric takes the
// entity of its first child; a raw metric's entity is probed.
func (t *Traverser) EntityOf(ctx context.Context, name string, projects []metrics.Project) (metrics.EntityKey, error) {
	return t.entityOf(ctx, newEvaluation(projects), name, nil)
}

// CollectEntities returns the distinct entities of a metric and everything
// it depends on, raw leaves included, sorted
func (t *Traverser) CollectEntities(ctx context.Context, name string, projects []metrics.Project) ([]metrics.EntityKey, error) {
	return t.collectEntities(ctx, newEvaluation(projects), name)
}

// ValidateSingleEntity reports whether the whole dependency tree of a metric
// lives in exactly one entity
func (t *Traverser) ValidateSingleEntity(ctx context.Context, name string, projects []metrics.Project) (bool, error) {
	entities, err := t.CollectEntities(ctx, name, projects)
	if err != nil {
		return false, err
	}
	return isSingleEntity(entities), nil
}

func isSingleEntity(entities []metrics.EntityKey) bool {
	return len(entities) == 1 && entities[0] != ""
}

func (t *Traverser) entityOf(ctx context.Context, ev *evaluation, name string, path []string) (metrics.EntityKey, error) {
	dm, derived := t.catalog.Get(name)
	if !derived {
		return t.rawEntity(ctx, ev, name)
	}

	if err := checkPath(path, name); err != nil {
		return "", err
	}
	return t.entityOf(ctx, ev, dm.Metrics[0], append(path, name))
}

func (t *Traverser) rawEntity(ctx context.Context, ev *evaluation, name string) (metrics.EntityKey, error) {
	if entity, ok := ev.entities[name]; ok {
		return entity, nil
	}
	if t.prober == nil {
		return "", fmt.Errorf("%w: no entity prober for %s", metrics.ErrEntityNotResolved, name)
	}

	entity, err := t.prober.MetricEntity(ctx, ev.projects, name)
	if err != nil {
		return "", fmt.Errorf("failed to resolve entity of %s: %w", name, err)
	}
	ev.entities[name] = entity
	return entity, nil
}

func (t *Traverser) collectEntities(ctx context.Context, ev *evaluation, name string) ([]metrics.EntityKey, error) {
	seen := make(map[metrics.EntityKey]bool)

	var walk func(name string, path []string) error
	walk = func(name string, path []string) error {
		dm, derived := t.catalog.Get(name)
		if !derived {
			entity, err := t.rawEntity(ctx, ev, name)
			if err != nil {
				return err
			}
			seen[entity] = true
			return nil
		}

		if err := checkPath(path, name); err != nil {
			return err
		}
		entity, err := t.entityOf(ctx, ev, name, path)
		if err != nil {
			return err
		}
		seen[entity] = true

		path = append(path, name)
		for _, child := range dm.Metrics {
			if err := walk(child, path); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(name, nil); err != nil {
		return nil, err
	}

	entities := make([]metrics.EntityKey, 0, len(seen))
	for entity := range seen {
		entities = append(entities, entity)
	}
	sort.Slice(entities, func(i, j int) bool { return entities[i] < entities[j] })
	return entities, nil
}

// CollectMetricIDs returns the ids of every raw metric in the dependency
// tree of name, sorted. Names the indexer does not know contribute nothing.
func (t *Traverser) CollectMetricIDs(ctx context.Context, name string) ([]int64, error) {
	ids := make(map[int64]bool)

	var walk func(name string, path []string) error
	walk = func(name string, path []string) error {
		dm, derived := t.catalog.Get(name)
		if !derived {
			if id, ok := t.indexer.ResolveWeak(ctx, name); ok {
				ids[id] = true
			}
			return nil
		}

		if err := checkPath(path, name); err != nil {
			return err
		}
		path = append(path, name)
		for _, child := range dm.Metrics {
			if err := walk(child, path); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(name, nil); err != nil {
		return nil, err
	}
	return sortedIDs(ids), nil
}

// BuildFragment composes the fragment of a derived metric bottom-up. Raw
// children contribute their ids only.
func (t *Traverser) BuildFragment(ctx context.Context, name string, entity metrics.EntityKey) (snql.Expression, error) {
	return t.buildFragment(ctx, name, entity, nil)
}

func (t *Traverser) buildFragment(ctx context.Context, name string, entity metrics.EntityKey, path []string) (snql.Expression, error) {
	dm, derived := t.catalog.Get(name)
	if !derived {
		return nil, fmt.Errorf("%s is not a derived metric", name)
	}
	if err := checkPath(path, name); err != nil {
		return nil, err
	}

	var children []snql.Expression
	childPath := append(path, name)
	for _, child := range dm.Metrics {
		if !t.catalog.Has(child) {
			continue
		}
		fragment, err := t.buildFragment(ctx, child, entity, childPath)
		if err != nil {
			return nil, err
		}
		children = append(children, fragment)
	}

	ids, err := t.CollectMetricIDs(ctx, name)
	if err != nil {
		return nil, err
	}

	fragment, err := dm.Compose(ctx, t.indexer, ComposeArgs{
		Children:  children,
		Entity:    entity,
		MetricIDs: ids,
		Alias:     dm.MetricName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to compose %s: %w", name, err)
	}
	return fragment, nil
}

// TopoOrder returns the derived metrics name depends on, itself included,
// with every metric placed after all of its derived dependencies. Raw
// metrics are left out.
func (t *Traverser) TopoOrder(name string) ([]string, error) {
	if err := t.checkAcyclic(name, nil); err != nil {
		return nil, err
	}

	var visited []string
	queue := []string{name}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		dm, derived := t.catalog.Get(current)
		if !derived {
			continue
		}
		visited = append(visited, current)
		queue = append(queue, dm.Metrics...)
	}

	// A name's last occurrence in breadth-first order is its deepest one,
	// and every dependency sits deeper than its dependents.
	order := make([]string, 0, len(visited))
	seen := make(map[string]bool, len(visited))
	for i := len(visited) - 1; i >= 0; i-- {
		if seen[visited[i]] {
			continue
		}
		seen[visited[i]] = true
		order = append(order, visited[i])
	}
	return order, nil
}

func (t *Traverser) checkAcyclic(name string, path []string) error {
	dm, derived := t.catalog.Get(name)
	if !derived {
		return nil
	}
	if err := checkPath(path, name); err != nil {
		return err
	}
	path = append(path, name)
	for _, child := range dm.Metrics {
		if err := t.checkAcyclic(child, path); err != nil {
			return err
		}
	}
	return nil
}

// checkPath fails if name is already on the path being walked
func checkPath(path []string, name string) error {
	for _, p := range path {
		if p == name {
			return fmt.Errorf("%w: %s -> %s", metrics.ErrDependencyCycle, strings.Join(path, " -> "), name)
		}
	}
	return nil
}

func sortedIDs(set map[int64]bool) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
