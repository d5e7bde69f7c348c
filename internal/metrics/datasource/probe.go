package datasource

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/conduit-lang/metricsd/internal/metrics"
	"github.com/conduit-lang/metricsd/internal/metrics/snql"
)

// Probe is the outcome of looking for a metric's entity. TagKeys is sorted.
type Probe struct {
	Found   bool
	Entity  metrics.EntityKey
	Type    metrics.MetricType
	TagKeys []string
}

// ProbeMetricType queries the counter, set and distribution entities in that
// order and reports the first one holding data for name in the query window.
// A name that was never indexed is not found.
func (d *DataSource) ProbeMetricType(ctx context.Context, projects []metrics.Project, name string) (Probe, error) {
	if len(projects) == 0 {
		return Probe{}, nil
	}

	metricID, ok := d.indexer.ResolveWeak(ctx, name)
	if !ok {
		d.logger.Debug("metric name not indexed", zap.String("metric", name))
		return Probe{}, nil
	}

	for _, metricType := range metrics.MetricTypes {
		entity, err := metrics.EntityForMetricType(metricType)
		if err != nil {
			return Probe{}, err
		}

		rows, err := d.runner.Run(ctx, RunParams{
			Entity:   entity,
			Select:   []snql.Expression{snql.NewColumn("metric_id"), snql.NewColumn("tags.key")},
			Where:    []snql.Condition{snql.NewCondition(snql.NewColumn("metric_id"), snql.OpEqual, snql.Int(metricID))},
			GroupBy:  []snql.Expression{snql.NewColumn("metric_id"), snql.NewColumn("tags.key")},
			Projects: projects,
			OrgID:    projects[0].OrganizationID,
			Referrer: ReferrerSingleMetric,
		})
		if err != nil {
			return Probe{}, err
		}
		if len(rows) == 0 {
			continue
		}

		tagKeys, err := d.tagKeys(ctx, rows)
		if err != nil {
			return Probe{}, err
		}
		return Probe{
			Found:   true,
			Entity:  entity,
			Type:    metricType,
			TagKeys: tagKeys,
		}, nil
	}

	return Probe{}, nil
}

// tagKeys reverse resolves the distinct tag key ids of the rows, sorted
func (d *DataSource) tagKeys(ctx context.Context, rows []Row) ([]string, error) {
	ids := make(map[int64]bool)
	for _, row := range rows {
		tagIDs, err := toInt64Slice(row["tags.key"])
		if err != nil {
			return nil, fmt.Errorf("unexpected tags.key value: %w", err)
		}
		for _, id := range tagIDs {
			ids[id] = true
		}
	}

	keys := make([]string, 0, len(ids))
	for id := range ids {
		key, err := d.indexer.ReverseResolve(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to reverse resolve tag key %d: %w", id, err)
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// MetricEntity returns the entity holding data for a raw metric, or
// ErrMetricNotFound
func (d *DataSource) MetricEntity(ctx context.Context, projects []metrics.Project, name string) (metrics.EntityKey, error) {
	probe, err := d.ProbeMetricType(ctx, projects, name)
	if err != nil {
		return "", err
	}
	if !probe.Found {
		return "", fmt.Errorf("%w: %s", metrics.ErrMetricNotFound, name)
	}
	return probe.Entity, nil
}

// GetSingleMetricInfo describes a metric: its type, the operations its
// entity supports and the tag keys seen on it
func (d *DataSource) GetSingleMetricInfo(ctx context.Context, projects []metrics.Project, name string) (metrics.MetricMetaWithTagKeys, error) {
	if len(projects) == 0 {
		return metrics.MetricMetaWithTagKeys{}, fmt.Errorf("%w: no projects", metrics.ErrInvalidParams)
	}

	probe, err := d.ProbeMetricType(ctx, projects, name)
	if err != nil {
		return metrics.MetricMetaWithTagKeys{}, err
	}
	if !probe.Found {
		return metrics.MetricMetaWithTagKeys{}, fmt.Errorf("%w: metric %s not found", metrics.ErrInvalidParams, name)
	}

	tags := make([]metrics.Tag, len(probe.TagKeys))
	for i, key := range probe.TagKeys {
		tags[i] = metrics.Tag{Key: key}
	}

	return metrics.MetricMetaWithTagKeys{
		MetricMeta: metrics.MetricMeta{
			Name:       name,
			Type:       probe.Type,
			Operations: metrics.AvailableOperations(probe.Entity),
			Unit:       nil,
		},
		Tags: tags,
	}, nil
}
