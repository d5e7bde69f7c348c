package fields

import (
	"context"
	"fmt"

	"github.com/conduit-lang/metricsd/internal/indexer"
	"github.com/conduit-lang/metricsd/internal/metrics"
	"github.com/conduit-lang/metricsd/internal/metrics/snql"
)

// Builder resolves metric fields and generates their query fragments
type Builder struct {
	catalog   *Catalog
	indexer   indexer.Indexer
	traverser *Traverser
}

// NewBuilder creates a builder over an immutable catalog
func NewBuilder(catalog *Catalog, idx indexer.Indexer, prober EntityProber) *Builder {
	return &Builder{
		catalog:   catalog,
		indexer:   idx,
		traverser: NewTraverser(catalog, idx, prober),
	}
}

// Catalog returns the catalog the builder was created with
func (b *Builder) Catalog() *Catalog {
	return b.catalog
}

// Traverser returns the builder's dependency traverser
func (b *Builder) Traverser() *Traverser {
	return b.traverser
}

// MetricObject returns the derived metric registered under name, or a new
// raw metric for op and name
func (b *Builder) MetricObject(op, name string) MetricField {
	if dm, ok := b.catalog.Get(name); ok {
		return dm
	}
	return NewRawMetric(op, name)
}

// Resolve determines the entity of a field. Derived metrics need the
// projects to probe their raw leaves, and their whole dependency tree must
// live in that one entity.
func (b *Builder) Resolve(ctx context.Context, field MetricField, projects []metrics.Project) (ResolvedMetric, error) {
	switch f := field.(type) {
	case RawMetric:
		entity, err := metrics.EntityForOperation(f.Op)
		if err != nil {
			return ResolvedMetric{}, fmt.Errorf("failed to resolve %s: %w", f.Alias(), err)
		}
		return ResolvedMetric{Field: f, Entity: entity, Projects: projects}, nil

	case *DerivedMetric:
		if len(projects) == 0 {
			return ResolvedMetric{}, fmt.Errorf("%s: %w", f.MetricName, metrics.ErrEntityNotResolved)
		}

		ev := newEvaluation(projects)
		entity, err := b.traverser.entityOf(ctx, ev, f.MetricName, nil)
		if err != nil {
			return ResolvedMetric{}, err
		}
		entities, err := b.traverser.collectEntities(ctx, ev, f.MetricName)
		if err != nil {
			return ResolvedMetric{}, err
		}
		if !isSingleEntity(entities) {
			return ResolvedMetric{}, fmt.Errorf("%w: %s spans %v", metrics.ErrMultiEntityDerivedMetric, f.MetricName, entities)
		}
		return ResolvedMetric{Field: f, Entity: entity, Projects: projects}, nil

	default:
		return ResolvedMetric{}, fmt.Errorf("unsupported metric field %T", field)
	}
}

// MetricIDs returns the ids a field reads in entity. A raw metric only reads
// its own id, and only from the entity of its operation.
func (b *Builder) MetricIDs(ctx context.Context, field MetricField, entity metrics.EntityKey) ([]int64, error) {
	switch f := field.(type) {
	case RawMetric:
		opEntity, err := metrics.EntityForOperation(f.Op)
		if err != nil {
			return nil, err
		}
		if opEntity != entity {
			return []int64{}, nil
		}
		id, ok := b.indexer.ResolveWeak(ctx, f.MetricName)
		if !ok {
			return []int64{}, nil
		}
		return []int64{id}, nil

	case *DerivedMetric:
		return b.traverser.CollectMetricIDs(ctx, f.MetricName)

	default:
		return nil, fmt.Errorf("unsupported metric field %T", field)
	}
}

// SelectFragment builds the aliased select expression of a resolved field
func (b *Builder) SelectFragment(ctx context.Context, resolved ResolvedMetric) (snql.Expression, error) {
	switch f := resolved.Field.(type) {
	case RawMetric:
		fn, err := metrics.AggregateFunction(resolved.Entity, f.Op)
		if err != nil {
			return nil, err
		}
		return snql.NewAliasedFunction(fn, f.Alias(),
			snql.NewColumn("value"),
			snql.NewFunction("equals",
				snql.NewColumn("metric_id"),
				snql.Int(indexer.ResolveOrUnresolved(ctx, b.indexer, f.MetricName)),
			),
		), nil

	case *DerivedMetric:
		return b.traverser.BuildFragment(ctx, f.MetricName, resolved.Entity)

	default:
		return nil, fmt.Errorf("unsupported metric field %T", resolved.Field)
	}
}

// OrderBy wraps the select fragment of a resolved field in an ordering
func (b *Builder) OrderBy(ctx context.Context, resolved ResolvedMetric, direction snql.Direction) (snql.OrderBy, error) {
	fragment, err := b.SelectFragment(ctx, resolved)
	if err != nil {
		return snql.OrderBy{}, err
	}
	return snql.NewOrderBy(fragment, direction), nil
}

// Dependencies returns the derived metrics a field needs, dependencies
// first. Raw metrics have none.
func (b *Builder) Dependencies(field MetricField) ([]string, error) {
	switch f := field.(type) {
	case RawMetric:
		return nil, nil
	case *DerivedMetric:
		return b.traverser.TopoOrder(f.MetricName)
	default:
		return nil, fmt.Errorf("unsupported metric field %T", field)
	}
}
