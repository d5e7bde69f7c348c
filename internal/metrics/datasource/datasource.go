package datasource

import (
	"go.uber.org/zap"

	"github.com/conduit-lang/metricsd/internal/indexer"
	"github.com/conduit-lang/metricsd/internal/metrics/fields"
)

// Referrers identify metrics queries in logs and executor metrics
const (
	ReferrerSingleMetric = "metrics.meta.get_single_metric"
	ReferrerTotals       = "metrics.data.totals"
)

// DataSource answers metric metadata and data requests
type DataSource struct {
	runner  *Runner
	indexer indexer.Indexer
	builder *fields.Builder
	logger  *zap.Logger
}

// New creates a data source. The catalog is shared and never modified.
func New(runner *Runner, idx indexer.Indexer, catalog *fields.Catalog, logger *zap.Logger) *DataSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &DataSource{
		runner:  runner,
		indexer: idx,
		logger:  logger,
	}
	d.builder = fields.NewBuilder(catalog, idx, d)
	return d
}

// Builder returns the fragment builder, which probes entities through d
func (d *DataSource) Builder() *fields.Builder {
	return d.builder
}
