package leadstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/lead-nurture/internal/domain"
)

// Sentinel errors for the lead store.
var (
	// ErrNotFound means the lead could not be resolved by the external store.
	ErrNotFound = errors.New("lead not found")
)

// Store resolves a lead's basic attributes by id (or phone, at the
// implementation's discretion).
type Store interface {
	FetchBasic(ctx context.Context, leadID string) (*domain.Lead, error)
}

// SynthesizeLead builds a minimal placeholder record for an unresolvable
// lead. Dev/test only: the name carries the id's last four characters so
// synthesized leads are distinguishable in logs.
func SynthesizeLead(leadID string) *domain.Lead {
	suffix := leadID
	if len(suffix) > 4 {
		suffix = suffix[len(suffix)-4:]
	}
	return &domain.Lead{
		ID:        leadID,
		Name:      "Lead " + suffix,
		CreatedAt: time.Now(),
		Source:    "facebook",
	}
}

// Synthesizing wraps a Store and converts lookup failures into synthesized
// placeholder records. With a nil inner store every lookup synthesizes.
type Synthesizing struct {
	Inner Store
}

// FetchBasic resolves via the inner store, falling back to a placeholder on
// any failure (not just ErrNotFound: a flaky dev database should not take
// the decision pipeline down).
func (s Synthesizing) FetchBasic(ctx context.Context, leadID string) (*domain.Lead, error) {
	if s.Inner != nil {
		lead, err := s.Inner.FetchBasic(ctx, leadID)
		if err == nil {
			return lead, nil
		}
	}
	return SynthesizeLead(leadID), nil
}

// Static is a fixed in-memory lead store, used in tests and by the
// stub wiring in cmd/server when no database is configured.
type Static struct {
	Leads map[string]*domain.Lead
}

// FetchBasic returns the stored lead or ErrNotFound.
func (s Static) FetchBasic(_ context.Context, leadID string) (*domain.Lead, error) {
	lead, ok := s.Leads[leadID]
	if !ok {
		return nil, fmt.Errorf("fetch lead %s: %w", leadID, ErrNotFound)
	}
	cp := *lead
	return &cp, nil
}
