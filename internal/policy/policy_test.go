package policy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ignite/lead-nurture/internal/config"
	"github.com/ignite/lead-nurture/internal/domain"
	"github.com/ignite/lead-nurture/internal/leadstore"
	"github.com/ignite/lead-nurture/internal/scoring"
	"github.com/ignite/lead-nurture/internal/snapshot"
	"github.com/ignite/lead-nurture/internal/template"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubScorer struct {
	segment domain.Segment
	err     error
}

func (s stubScorer) Score(_ context.Context, leadID string) (*scoring.ScoreResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &scoring.ScoreResult{LeadID: leadID, Score: 85, Segment: s.segment}, nil
}

func testCfg() config.PolicyConfig {
	return config.PolicyConfig{ExplorationC: 1.4, SegmentBoost: 1.1}
}

func newTestPolicy(segment domain.Segment) *Policy {
	return New(testCfg(), stubScorer{segment: segment}, nil, nil, nil)
}

func TestDecideExploresUntriedArmFirst(t *testing.T) {
	p := newTestPolicy(domain.SegmentTop)

	// Every arm except social_proof has been tried with weak rewards.
	for _, arm := range p.arms {
		if arm.ID == "social_proof" {
			continue
		}
		arm.Stats.Impressions = 50
		arm.Stats.Rewards = 1
	}

	d, err := p.Decide(context.Background(), "lead-1")
	require.NoError(t, err)
	assert.Equal(t, "social_proof", d.ArmID, "zero-impression arms must be explored before any exploitation")
}

func TestDecideTieBreaksByCatalogOrder(t *testing.T) {
	// All arms untried, segment A-top boosts greeting_warm and offer_bundle
	// equally: the earlier catalog entry must win every time.
	for i := 0; i < 10; i++ {
		p := newTestPolicy(domain.SegmentTop)
		d, err := p.Decide(context.Background(), "lead-1")
		require.NoError(t, err)
		assert.Equal(t, "greeting_warm", d.ArmID)
	}
}

func TestDecideSegmentBiasWins(t *testing.T) {
	p := newTestPolicy(domain.SegmentCold)

	// Equalize all arms so only the bias boost differentiates.
	for _, arm := range p.arms {
		arm.Stats.Impressions = 10
		arm.Stats.Rewards = 5
	}

	d, err := p.Decide(context.Background(), "lead-1")
	require.NoError(t, err)
	assert.Equal(t, "sizing_help", d.ArmID, "only arm biased toward E-cold")
}

func TestDecideBumpsCounters(t *testing.T) {
	p := newTestPolicy(domain.SegmentMedium)

	d, err := p.Decide(context.Background(), "lead-1")
	require.NoError(t, err)

	arm := p.armLocked(d.ArmID)
	require.NotNil(t, arm)
	assert.Equal(t, int64(1), arm.Stats.Impressions)
	require.NotNil(t, arm.Stats.LastUsed)
	assert.WithinDuration(t, time.Now(), *arm.Stats.LastUsed, time.Minute)
}

func TestDecideScorerFailurePropagates(t *testing.T) {
	p := New(testCfg(), stubScorer{err: leadstore.ErrNotFound}, nil, nil, nil)

	_, err := p.Decide(context.Background(), "nobody")
	assert.ErrorIs(t, err, leadstore.ErrNotFound)
}

func TestDecideRendersMessage(t *testing.T) {
	leads := leadstore.Static{Leads: map[string]*domain.Lead{
		"lead-1": {ID: "lead-1", Name: "Maria Silva", CreatedAt: time.Now(), Source: "facebook"},
	}}
	p := New(testCfg(), stubScorer{segment: domain.SegmentTop}, leads, template.NewRenderer(), nil)

	d, err := p.Decide(context.Background(), "lead-1")
	require.NoError(t, err)
	assert.Equal(t, "greeting_warm", d.ArmID)
	assert.Contains(t, d.Message, "Hi Maria!")
	assert.NotContains(t, d.Message, "{{")
}

func TestRecordReward(t *testing.T) {
	p := newTestPolicy(domain.SegmentTop)

	d, err := p.Decide(context.Background(), "lead-1")
	require.NoError(t, err)

	require.NoError(t, p.RecordReward("lead-1", d.ArmID, 1))
	require.NoError(t, p.RecordReward("lead-1", d.ArmID, 0.5))

	arm := p.armLocked(d.ArmID)
	assert.Equal(t, 1.5, arm.Stats.Rewards)
}

func TestRecordRewardUnknownArm(t *testing.T) {
	p := newTestPolicy(domain.SegmentTop)
	assert.ErrorIs(t, p.RecordReward("lead-1", "no_such_arm", 1), ErrArmNotFound)
}

func TestMetrics(t *testing.T) {
	p := newTestPolicy(domain.SegmentTop)

	d, err := p.Decide(context.Background(), "lead-1")
	require.NoError(t, err)
	require.NoError(t, p.RecordReward("lead-1", d.ArmID, 1))

	m := p.Metrics()
	assert.Len(t, m.Arms, 5)
	assert.Equal(t, int64(1), m.Total)

	for _, am := range m.Arms {
		if am.ID == d.ArmID {
			assert.Equal(t, 1.0, am.Rate)
			assert.NotNil(t, am.LastUsed)
		} else {
			assert.Zero(t, am.Rate)
		}
	}
}

func TestSnapshotRestoresCounters(t *testing.T) {
	dir := t.TempDir()
	store, err := snapshot.NewLocalStore(dir)
	require.NoError(t, err)

	p := New(testCfg(), stubScorer{segment: domain.SegmentTop}, nil, nil, store)
	d, err := p.Decide(context.Background(), "lead-1")
	require.NoError(t, err)

	waitForSnapshot(t, filepath.Join(dir, "bot-policy-state.json"), `"impressions": 1`)

	restored := New(testCfg(), stubScorer{segment: domain.SegmentTop}, nil, nil, store)
	arm := restored.armLocked(d.ArmID)
	require.NotNil(t, arm)
	assert.Equal(t, int64(1), arm.Stats.Impressions)
}

func waitForSnapshot(t *testing.T, path, marker string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		if data, err := os.ReadFile(path); err == nil && strings.Contains(string(data), marker) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("snapshot %s with %q never landed", path, marker)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
