package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/lead-nurture/internal/domain"
	"github.com/ignite/lead-nurture/internal/leadstore"
)

// LeadRepo implements leadstore.Store against PostgreSQL.
type LeadRepo struct{ db *sql.DB }

// NewLeadRepo creates a Postgres-backed lead store.
func NewLeadRepo(db *sql.DB) *LeadRepo { return &LeadRepo{db: db} }

// FetchBasic resolves a lead by id or phone. Leads arrive through the
// messaging channel, so callers frequently only hold a phone number.
func (r *LeadRepo) FetchBasic(ctx context.Context, leadID string) (*domain.Lead, error) {
	l := &domain.Lead{}
	var name, phone, source sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, phone, COALESCE(first_contact, last_contact, NOW()), source
		FROM leads
		WHERE id = $1 OR phone = $1
		LIMIT 1
	`, leadID).Scan(&l.ID, &name, &phone, &l.CreatedAt, &source)
	if err == sql.ErrNoRows {
		return nil, leadstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch lead: %w", err)
	}
	l.Name = name.String
	l.Phone = phone.String
	l.Source = source.String
	if l.Source == "" {
		l.Source = "facebook"
	}
	return l, nil
}
