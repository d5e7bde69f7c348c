// Package fields turns metric fields, raw or derived, into query fragments.
//
// A raw metric is a single indexed metric name aggregated by one operation.
// A derived metric is a named computation over other metrics, composed
// bottom-up from the fragments of its derived children. A derived metric can
// only be queried when its whole dependency tree lives in one entity.
package fields

import (
	"context"

	"github.com/conduit-lang/metricsd/internal/indexer"
	"github.com/conduit-lang/metricsd/internal/metrics"
	"github.com/conduit-lang/metricsd/internal/metrics/snql"
)

// MetricField is either a RawMetric or a *DerivedMetric
type MetricField interface {
	// Name returns the metric name the field refers to
	Name() string

	metricField()
}

// RawMetric is a stored metric aggregated by one operation
type RawMetric struct {
	Op         string
	MetricName string
}

// NewRawMetric creates a raw metric field
func NewRawMetric(op, metricName string) RawMetric {
	return RawMetric{Op: op, MetricName: metricName}
}

// Name returns the metric name
func (r RawMetric) Name() string {
	return r.MetricName
}

// Alias returns the output alias of the raw metric, e.g. "sum(x)"
func (r RawMetric) Alias() string {
	return r.Op + "(" + r.MetricName + ")"
}

func (RawMetric) metricField() {}

// ComposeArgs is the input of a derived metric's composition function
type ComposeArgs struct {
	// Children holds the fragments of the derived children, in order.
	// Raw children contribute ids only.
	Children []snql.Expression

	// Entity is the resolved entity of the metric
	Entity metrics.EntityKey

	// MetricIDs holds the ids of every raw metric in the dependency tree
	MetricIDs []int64

	// Alias overrides the default alias when not empty
	Alias string
}

// ComposeFunc builds the fragment of a derived metric
type ComposeFunc func(ctx context.Context, idx indexer.Indexer, args ComposeArgs) (snql.Expression, error)

// DerivedMetric is a named computation over other metrics. Instances held
// by a Catalog are shared and must not be modified.
type DerivedMetric struct {
	MetricName string
	Metrics    []string
	Unit       string
	ResultType string
	Compose    ComposeFunc
	IsPrivate  bool
}

// NewSingularEntityDerivedMetric creates a numeric derived metric whose
// dependency tree must be computable from a single entity
func NewSingularEntityDerivedMetric(name string, children []string, unit string, compose ComposeFunc) *DerivedMetric {
	return &DerivedMetric{
		MetricName: name,
		Metrics:    children,
		Unit:       unit,
		ResultType: "numeric",
		Compose:    compose,
	}
}

// Name returns the derived metric name
func (d *DerivedMetric) Name() string {
	return d.MetricName
}

func (*DerivedMetric) metricField() {}

// ResolvedMetric is a field whose entity is known. Fragment and ordering
// generation work on resolved metrics only.
type ResolvedMetric struct {
	Field    MetricField
	Entity   metrics.EntityKey
	Projects []metrics.Project
}

// Alias returns the output alias the field's fragment carries
func (r ResolvedMetric) Alias() string {
	switch f := r.Field.(type) {
	case RawMetric:
		return f.Alias()
	case *DerivedMetric:
		return f.MetricName
	default:
		return ""
	}
}
