package models

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/conduit-lang/metricsd/internal/metrics"
	"github.com/conduit-lang/metricsd/internal/orm"
)

// ProjectStore reads projects
type ProjectStore struct {
	db DB
}

// NewProjectStore creates a project store
func NewProjectStore(db DB) *ProjectStore {
	return &ProjectStore{db: db}
}

// GetProjects returns the projects of an organization with the given ids,
// ordered by id. Without ids every project of the organization is returned.
// Asking for an id the organization does not own fails with orm.ErrNotFound.
func (s *ProjectStore) GetProjects(ctx context.Context, orgID int64, ids []int64) ([]metrics.Project, error) {
	query := `SELECT "id", "organization_id" FROM "sentry_project" WHERE "organization_id" = $1`
	args := []interface{}{orgID}
	if len(ids) > 0 {
		query += ` AND "id" = ANY($2)`
		args = append(args, pq.Array(ids))
	}
	query += ` ORDER BY "id"`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load projects: %w", orm.ConvertDBError(err))
	}
	defer rows.Close()

	projects := []metrics.Project{}
	for rows.Next() {
		var p metrics.Project
		if err := rows.Scan(&p.ID, &p.OrganizationID); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load projects: %w", orm.ConvertDBError(err))
	}

	if missing := missingIDs(ids, projects); len(missing) > 0 {
		return nil, fmt.Errorf("projects %v: %w", missing, orm.ErrNotFound)
	}
	return projects, nil
}

func missingIDs(ids []int64, projects []metrics.Project) []int64 {
	found := make(map[int64]bool, len(projects))
	for _, p := range projects {
		found[p.ID] = true
	}
	var missing []int64
	for _, id := range ids {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	return missing
}
