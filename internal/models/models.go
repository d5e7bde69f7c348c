// Package models loads and stores the relational records the API needs:
// projects, incidents and code mappings
package models

import (
	"context"
	"database/sql"

	"github.com/conduit-lang/metricsd/internal/orm"
)

// Table names
const (
	ProjectTable                 = "sentry_project"
	IncidentTable                = "sentry_incident"
	IncidentSeenTable            = "sentry_incidentseen"
	CodeMappingTable             = "sentry_repositoryprojectpathconfig"
	OrganizationIntegrationTable = "sentry_organizationintegration"
	IntegrationTable             = "sentry_integration"
)

// DB is what the stores need from *sql.DB
type DB interface {
	orm.DB
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}
