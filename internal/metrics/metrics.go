// Package metrics defines the storage entities, operations and shared types of
// the release-health metrics store.
package metrics

import (
	"fmt"
	"regexp"
	"sort"
	"time"
)

const (
	// Granularity is the bucket size, in seconds, of every metrics query
	Granularity = 24 * 60 * 60

	// MaxPoints is the maximum number of data points per time series
	MaxPoints = 10000

	// TimestampColumn is the column the query window is applied to
	TimestampColumn = "timestamp"

	// BucketedTimeColumn is the column time series are grouped by
	BucketedTimeColumn = "bucketed_time"

	// QueryWindow is the trailing window every metrics query is scoped to
	QueryWindow = 24 * time.Hour
)

// EntityKey identifies a storage partition of the metrics dataset
type EntityKey string

const (
	EntityCounters      EntityKey = "metrics_counters"
	EntitySets          EntityKey = "metrics_sets"
	EntityDistributions EntityKey = "metrics_distributions"
)

// String returns the entity name
func (e EntityKey) String() string {
	return string(e)
}

// MetricType is the runtime type of a metric, which determines its entity
type MetricType string

const (
	TypeCounter      MetricType = "counter"
	TypeSet          MetricType = "set"
	TypeDistribution MetricType = "distribution"
)

// MetricTypes lists the metric types in the order they are probed
var MetricTypes = []MetricType{TypeCounter, TypeSet, TypeDistribution}

// Project is the minimal project handle the query layer needs
type Project struct {
	ID             int64
	OrganizationID int64
}

// ProjectIDs returns the ids of the given projects, in order
func ProjectIDs(projects []Project) []int64 {
	ids := make([]int64, len(projects))
	for i, p := range projects {
		ids[i] = p.ID
	}
	return ids
}

// opToFunction maps every entity to the aggregate function backing each operation
var opToFunction = map[EntityKey]map[string]string{
	EntityCounters: {"sum": "sumIf"},
	EntityDistributions: {
		"avg":   "avgIf",
		"count": "countIf",
		"max":   "maxIf",
		"min":   "minIf",
		// quantileIf (singular) is rejected by the storage layer
		"p50": "quantilesIf(0.50)",
		"p75": "quantilesIf(0.75)",
		"p90": "quantilesIf(0.90)",
		"p95": "quantilesIf(0.95)",
		"p99": "quantilesIf(0.99)",
	},
	EntitySets: {"count_unique": "uniqIf"},
}

var (
	availableOperations = buildAvailableOperations()
	operationsToEntity  = buildOperationsToEntity()
)

var metricTypeToEntity = map[MetricType]EntityKey{
	TypeCounter:      EntityCounters,
	TypeSet:          EntitySets,
	TypeDistribution: EntityDistributions,
}

func buildAvailableOperations() map[EntityKey][]string {
	result := make(map[EntityKey][]string, len(opToFunction))
	for entity, mapping := range opToFunction {
		ops := make([]string, 0, len(mapping))
		for op := range mapping {
			ops = append(ops, op)
		}
		sort.Strings(ops)
		result[entity] = ops
	}
	return result
}

func buildOperationsToEntity() map[string]EntityKey {
	result := make(map[string]EntityKey)
	for entity, ops := range availableOperations {
		for _, op := range ops {
			if other, exists := result[op]; exists {
				panic(fmt.Sprintf("operation %s belongs to both %s and %s", op, other, entity))
			}
			result[op] = entity
		}
	}
	return result
}

// Entities returns all known entities, sorted by name
func Entities() []EntityKey {
	entities := make([]EntityKey, 0, len(opToFunction))
	for entity := range opToFunction {
		entities = append(entities, entity)
	}
	sort.Slice(entities, func(i, j int) bool { return entities[i] < entities[j] })
	return entities
}

// Operations returns every known operation, sorted
func Operations() []string {
	ops := make([]string, 0, len(operationsToEntity))
	for op := range operationsToEntity {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// AvailableOperations returns the sorted operations an entity supports
func AvailableOperations(entity EntityKey) []string {
	ops := availableOperations[entity]
	result := make([]string, len(ops))
	copy(result, ops)
	return result
}

// EntityForOperation returns the entity able to compute the given operation
func EntityForOperation(op string) (EntityKey, error) {
	entity, ok := operationsToEntity[op]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownOperation, op)
	}
	return entity, nil
}

// EntityForMetricType returns the entity storing metrics of the given type
func EntityForMetricType(t MetricType) (EntityKey, error) {
	entity, ok := metricTypeToEntity[t]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownMetricType, t)
	}
	return entity, nil
}

// MetricTypeForEntity is the inverse of EntityForMetricType
func MetricTypeForEntity(entity EntityKey) (MetricType, error) {
	for t, e := range metricTypeToEntity {
		if e == entity {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: no metric type for entity %q", ErrUnknownMetricType, entity)
}

// AggregateFunction returns the conditional aggregate computing op on entity
func AggregateFunction(entity EntityKey, op string) (string, error) {
	fn, ok := opToFunction[entity][op]
	if !ok {
		return "", fmt.Errorf("%w: %q is not available on %s", ErrUnknownOperation, op, entity)
	}
	return fn, nil
}

// defaultAggregates holds the value reported for an aggregate with no rows.
// A nil value means the aggregate is undefined on an empty set.
var defaultAggregates = map[string]interface{}{
	"avg":          nil,
	"count_unique": 0,
	"count":        0,
	"max":          nil,
	"min":          nil,
	"p50":          nil,
	"p75":          nil,
	"p90":          nil,
	"p95":          nil,
	"p99":          nil,
	"sum":          0,
	"percentage":   nil,
}

// DefaultAggregate returns the empty-set value of an operation
func DefaultAggregate(op string) (interface{}, bool) {
	v, ok := defaultAggregates[op]
	return v, ok
}

var unitToType = map[string]string{
	"sessions":   "count",
	"percentage": "percentage",
}

// UnitType maps a derived metric unit onto the aggregate kind it reports
func UnitType(unit string) (string, bool) {
	t, ok := unitToType[unit]
	return t, ok
}

var (
	fieldRegex = regexp.MustCompile(`^(\w+)\(((\w|\.|_)+)\)$`)
	tagRegex   = regexp.MustCompile(`^(\w|\.|_)+$`)
)

// ParseField splits a field such as "sum(sentry.sessions.session)" into its
// operation and metric name
func ParseField(field string) (op string, metricName string, err error) {
	matches := fieldRegex.FindStringSubmatch(field)
	if matches == nil {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidField, field)
	}
	return matches[1], matches[2], nil
}

// ValidTagName reports whether name may be used as a tag key
func ValidTagName(name string) bool {
	return tagRegex.MatchString(name)
}
