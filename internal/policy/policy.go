package policy

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/ignite/lead-nurture/internal/config"
	"github.com/ignite/lead-nurture/internal/domain"
	"github.com/ignite/lead-nurture/internal/leadstore"
	"github.com/ignite/lead-nurture/internal/scoring"
	"github.com/ignite/lead-nurture/internal/snapshot"
	"github.com/ignite/lead-nurture/internal/template"
)

const (
	snapshotName = "bot-policy-state"

	// exploreScore is assigned to arms with zero impressions; it dwarfs any
	// realistic UCB value so untried arms always go first.
	exploreScore = 10.0
)

// Sentinel errors for the policy.
var (
	ErrArmNotFound = errors.New("arm not found")
)

// Scorer is the slice of the scoring engine the policy needs.
type Scorer interface {
	Score(ctx context.Context, leadID string) (*scoring.ScoreResult, error)
}

// Decision is the outcome of one arm selection.
type Decision struct {
	ArmID    string         `json:"armId"`
	Segment  domain.Segment `json:"segment"`
	Template string         `json:"template"`
	Type     string         `json:"type"`
	Message  string         `json:"message"` // template rendered with lead data
	Reason   string         `json:"reason"`
}

// ArmMetrics is the per-arm view returned by Metrics.
type ArmMetrics struct {
	ID          string     `json:"id"`
	Impressions int64      `json:"impressions"`
	Rewards     float64    `json:"rewards"`
	Rate        float64    `json:"rate"`
	LastUsed    *time.Time `json:"lastUsed,omitempty"`
}

// PolicyMetrics aggregates arm counters.
type PolicyMetrics struct {
	Arms  []ArmMetrics `json:"arms"`
	Total int64        `json:"total"`
}

type policyState struct {
	Arms []*Arm `json:"arms"`
}

// Policy selects outreach arms per lead. Catalog order is fixed; only
// counters mutate, under a single mutex.
type Policy struct {
	cfg      config.PolicyConfig
	scorer   Scorer
	leads    leadstore.Store
	renderer *template.Renderer
	writer   *snapshot.Writer

	mu   sync.Mutex
	arms []*Arm

	now func() time.Time
}

// New creates the policy with the seeded catalog, restoring arm counters from
// the snapshot store when present. leads and renderer may be nil (decisions
// then carry the raw template as the message).
func New(cfg config.PolicyConfig, scorer Scorer, leads leadstore.Store, renderer *template.Renderer, snaps snapshot.Store) *Policy {
	p := &Policy{
		cfg:      cfg,
		scorer:   scorer,
		leads:    leads,
		renderer: renderer,
		writer:   snapshot.NewWriter(snaps, snapshotName),
		arms:     seedArms(),
		now:      time.Now,
	}
	p.restore(snaps)
	return p
}

func (p *Policy) restore(snaps snapshot.Store) {
	if snaps == nil {
		return
	}
	var st policyState
	err := snaps.Load(context.Background(), snapshotName, &st)
	if err == snapshot.ErrNotFound {
		return
	}
	if err != nil {
		log.Printf("Policy: starting with fresh arms (could not load snapshot: %v)", err)
		return
	}
	// Restore counters only; catalog content (templates, biases) always
	// comes from the seed so edits take effect on restart.
	saved := make(map[string]ArmStats, len(st.Arms))
	for _, a := range st.Arms {
		if a != nil {
			saved[a.ID] = a.Stats
		}
	}
	var restored int
	for _, arm := range p.arms {
		if stats, ok := saved[arm.ID]; ok {
			arm.Stats = stats
			restored++
		}
	}
	log.Printf("Policy: restored counters for %d/%d arms", restored, len(p.arms))
}

// Decide scores the lead for its segment, then picks the arm with the
// highest UCB score (segment-biased arms get a fixed boost). The chosen
// arm's impressions and lastUsed are bumped before returning.
func (p *Policy) Decide(ctx context.Context, leadID string) (*Decision, error) {
	res, err := p.scorer.Score(ctx, leadID)
	if err != nil {
		return nil, fmt.Errorf("decide %s: %w", leadID, err)
	}

	// Resolve the lead up front for template rendering; rendering is
	// cosmetic, so a miss here never fails the decision.
	var lead *domain.Lead
	if p.leads != nil {
		lead, _ = p.leads.FetchBasic(ctx, leadID)
	}

	now := p.now()
	p.mu.Lock()
	defer p.mu.Unlock()

	var total int64
	for _, arm := range p.arms {
		total += arm.Stats.Impressions
	}

	var best *Arm
	bestScore := math.Inf(-1)
	for _, arm := range p.arms {
		score := p.ucbLocked(arm, total)
		if arm.biasedToward(res.Segment) {
			score *= p.cfg.SegmentBoost
		}
		// Strictly greater: ties stay with the earlier arm.
		if score > bestScore {
			bestScore = score
			best = arm
		}
	}
	if best == nil {
		return nil, fmt.Errorf("decide %s: empty catalog: %w", leadID, ErrArmNotFound)
	}

	best.Stats.Impressions++
	best.Stats.LastUsed = &now
	p.saveLocked()

	message := best.Template
	if p.renderer != nil && lead != nil {
		message = p.renderer.Render(best.Template, lead)
	}

	return &Decision{
		ArmID:    best.ID,
		Segment:  res.Segment,
		Template: best.Template,
		Type:     best.Type,
		Message:  message,
		Reason:   "ucb+segment-bias",
	}, nil
}

// ucbLocked computes the upper-confidence-bound score for one arm.
func (p *Policy) ucbLocked(arm *Arm, total int64) float64 {
	n := arm.Stats.Impressions
	if n == 0 {
		return exploreScore
	}
	mean := arm.Stats.Rewards / float64(n)
	return mean + p.cfg.ExplorationC*math.Sqrt(math.Log(float64(total)+1)/float64(n))
}

// RecordReward adds reward to the arm's cumulative total.
func (p *Policy) RecordReward(leadID, armID string, reward float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	arm := p.armLocked(armID)
	if arm == nil {
		return fmt.Errorf("record reward for %s: %w", armID, ErrArmNotFound)
	}
	arm.Stats.Rewards += reward
	p.saveLocked()

	log.Printf("Policy: arm %s rewarded %.2f by lead %s (total %.2f over %d impressions)",
		armID, reward, leadID, arm.Stats.Rewards, arm.Stats.Impressions)
	return nil
}

func (p *Policy) armLocked(armID string) *Arm {
	for _, arm := range p.arms {
		if arm.ID == armID {
			return arm
		}
	}
	return nil
}

// Metrics returns per-arm counters and derived rates.
func (p *Policy) Metrics() PolicyMetrics {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := PolicyMetrics{Arms: make([]ArmMetrics, 0, len(p.arms))}
	for _, arm := range p.arms {
		m := ArmMetrics{
			ID:          arm.ID,
			Impressions: arm.Stats.Impressions,
			Rewards:     arm.Stats.Rewards,
			LastUsed:    arm.Stats.LastUsed,
		}
		if arm.Stats.Impressions > 0 {
			m.Rate = math.Round(arm.Stats.Rewards/float64(arm.Stats.Impressions)*1000) / 1000
		}
		out.Arms = append(out.Arms, m)
		out.Total += arm.Stats.Impressions
	}
	return out
}

func (p *Policy) saveLocked() {
	p.writer.Save(policyState{Arms: p.arms})
}
