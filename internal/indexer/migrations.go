package indexer

import "github.com/conduit-lang/metricsd/internal/orm/migrate"

// Migrations creates the tables the SQL indexer owns
func Migrations() []*migrate.Migration {
	return []*migrate.Migration{
		{
			Version: 1,
			Name:    "create_metrics_indexer",
			Up: `CREATE TABLE IF NOT EXISTS metrics_indexer (
	id BIGSERIAL PRIMARY KEY,
	string VARCHAR(200) NOT NULL UNIQUE,
	date_added TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
			Down: `DROP TABLE metrics_indexer`,
		},
	}
}
