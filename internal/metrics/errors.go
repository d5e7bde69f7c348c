package metrics

import "errors"

// Common errors of the metrics query layer
var (
	// ErrUnknownOperation is returned for an operation outside the operation table
	ErrUnknownOperation = errors.New("unknown operation")

	// ErrUnknownMetricType is returned for a metric type with no entity
	ErrUnknownMetricType = errors.New("unknown metric type")

	// ErrMetricNotFound is returned when no entity holds data for a metric
	ErrMetricNotFound = errors.New("metric not found")

	// ErrInvalidParams is the API-facing form of a bad metrics request
	ErrInvalidParams = errors.New("invalid params")

	// ErrMultiEntityDerivedMetric is returned when a derived metric's
	// dependency tree spans more than one entity
	ErrMultiEntityDerivedMetric = errors.New("derived metric cannot be calculated from a single entity")

	// ErrEntityNotResolved is returned when a derived metric's entity is
	// requested without the projects needed to discover it
	ErrEntityNotResolved = errors.New("entity is only available after resolution with explicit projects")

	// ErrDependencyCycle is returned when derived metrics depend on each other
	ErrDependencyCycle = errors.New("derived metric dependency cycle")

	// ErrInvalidField is returned for a field not of the form op(metric)
	ErrInvalidField = errors.New("invalid field")
)

// IsInvalidParams reports whether err should be surfaced as a bad request
// about the requested metric
func IsInvalidParams(err error) bool {
	return errors.Is(err, ErrInvalidParams) || errors.Is(err, ErrMetricNotFound)
}

// IsMultiEntity reports whether err is ErrMultiEntityDerivedMetric
func IsMultiEntity(err error) bool {
	return errors.Is(err, ErrMultiEntityDerivedMetric)
}
