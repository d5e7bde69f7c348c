package models

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/conduit-lang/metricsd/internal/orm"
)

// Integration is an installed third-party integration such as GitHub
type Integration struct {
	ID         int64
	Provider   string
	ExternalID string
}

// OrganizationIntegration links an integration to an organization
type OrganizationIntegration struct {
	ID             int64
	OrganizationID int64
	Integration    Integration
}

// CodeMapping maps a project's stack trace paths onto a repository
type CodeMapping struct {
	ID            int64
	ProjectID     int64
	Repository    string
	DefaultBranch string
	StackRoot     string
	SourceRoot    string

	// OrganizationIntegration is nil when the mapping is not linked to one
	OrganizationIntegration *OrganizationIntegration
}

// CodeMappingStore reads code mappings
type CodeMappingStore struct {
	db DB
}

// NewCodeMappingStore creates a code mapping store
func NewCodeMappingStore(db DB) *CodeMappingStore {
	return &CodeMappingStore{db: db}
}

// Get returns a code mapping reachable through one of the organization's
// integrations, or orm.ErrNotFound
func (s *CodeMappingStore) Get(ctx context.Context, orgID, configID int64) (*CodeMapping, error) {
	var (
		cm CodeMapping
		oi OrganizationIntegration
	)
	err := s.db.QueryRowContext(ctx, `SELECT c."id", c."project_id", c."repository", c."default_branch", c."stack_root", c."source_root", `+
		`oi."id", oi."organization_id", i."id", i."provider", i."external_id" `+
		`FROM "sentry_repositoryprojectpathconfig" c `+
		`JOIN "sentry_organizationintegration" oi ON oi."id" = c."organization_integration_id" `+
		`JOIN "sentry_integration" i ON i."id" = oi."integration_id" `+
		`WHERE c."id" = $1 AND oi."organization_id" = $2`,
		configID, orgID,
	).Scan(
		&cm.ID, &cm.ProjectID, &cm.Repository, &cm.DefaultBranch, &cm.StackRoot, &cm.SourceRoot,
		&oi.ID, &oi.OrganizationID, &oi.Integration.ID, &oi.Integration.Provider, &oi.Integration.ExternalID,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("code mapping %d: %w", configID, orm.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load code mapping %d: %w", configID, orm.ConvertDBError(err))
	}
	cm.OrganizationIntegration = &oi
	return &cm, nil
}
