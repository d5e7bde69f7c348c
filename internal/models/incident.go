package models

import (
	"context"
	"fmt"
	"time"

	"github.com/conduit-lang/metricsd/internal/orm"
)

// Incident is an alert incident. Identifier is the per-organization number
// shown to users.
type Incident struct {
	ID             int64
	OrganizationID int64
	Identifier     int64
	Title          string
	Status         int
	DateStarted    time.Time
}

// IncidentStore reads incidents and records who has seen them
type IncidentStore struct {
	db   DB
	seen *orm.Model
}

// IncidentOption configures an IncidentStore
type IncidentOption func(*IncidentStore)

// WithSeenClock sets the clock stamping last_seen
func WithSeenClock(now func() time.Time) IncidentOption {
	return func(s *IncidentStore) {
		s.seen.Now = now
	}
}

// WithSeenHooks adds hooks that run after a seen record was written
func WithSeenHooks(hooks ...orm.Hook) IncidentOption {
	return func(s *IncidentStore) {
		s.seen.AfterSave = append(s.seen.AfterSave, hooks...)
	}
}

// NewIncidentStore creates an incident store
func NewIncidentStore(db DB, opts ...IncidentOption) *IncidentStore {
	s := &IncidentStore{
		db: db,
		seen: &orm.Model{
			Table:   IncidentSeenTable,
			AutoNow: []string{"last_seen"},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the incident of an organization by its identifier
func (s *IncidentStore) Get(ctx context.Context, orgID, identifier int64) (*Incident, error) {
	var inc Incident
	err := s.db.QueryRowContext(ctx,
		`SELECT "id", "organization_id", "identifier", "title", "status", "date_started" FROM "sentry_incident" WHERE "organization_id" = $1 AND "identifier" = $2`,
		orgID, identifier,
	).Scan(&inc.ID, &inc.OrganizationID, &inc.Identifier, &inc.Title, &inc.Status, &inc.DateStarted)
	if err != nil {
		return nil, fmt.Errorf("incident %d: %w", identifier, orm.ConvertDBError(err))
	}
	return &inc, nil
}

// SetSeen marks an incident as seen by a user now. It reports whether this
// is the first time the user has seen it.
func (s *IncidentStore) SetSeen(ctx context.Context, incident *Incident, userID int64) (bool, error) {
	created, err := orm.CreateOrUpdate(ctx, s.db, s.seen,
		map[string]interface{}{"incident_id": incident.ID, "user_id": userID},
		nil,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark incident %d seen: %w", incident.ID, err)
	}
	return created, nil
}
