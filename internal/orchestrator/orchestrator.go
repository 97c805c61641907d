package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ignite/lead-nurture/internal/domain"
	"github.com/ignite/lead-nurture/internal/policy"
	"github.com/ignite/lead-nurture/internal/queue"
	"github.com/ignite/lead-nurture/internal/scoring"
)

const (
	maxEvents    = 5000
	recentEvents = 100

	backlogThreshold = 100
)

// Scorer is the scoring engine surface the orchestrator needs.
type Scorer interface {
	Score(ctx context.Context, leadID string) (*scoring.ScoreResult, error)
	RecordConversion(ctx context.Context, leadID string, value float64) (*scoring.ScoreResult, error)
	ModelVersion() string
}

// Decider picks an outreach action for a lead.
type Decider interface {
	Decide(ctx context.Context, leadID string) (*policy.Decision, error)
	RecordReward(leadID, armID string, reward float64) error
	Metrics() policy.PolicyMetrics
}

// WorkQueue accepts leads into the agent work list.
type WorkQueue interface {
	Enqueue(ctx context.Context, leadID string) (*queue.Item, error)
	GetMetrics() queue.Metrics
}

// Decision is the composite outcome of one full pipeline pass.
type Decision struct {
	LeadID      string           `json:"leadId"`
	Source      string           `json:"source"`
	Score       float64          `json:"score"`
	Segment     domain.Segment   `json:"segment"`
	BotAction   *policy.Decision `json:"botAction"`
	QueueItem   *queue.Item      `json:"queueItem"`
	ProcessedAt time.Time        `json:"processedAt"`
	Processed   int64            `json:"processed"`
	Reasoning   []string         `json:"reasoning"`
}

// Event is one entry in the bounded activity log.
type Event struct {
	LeadID string    `json:"leadId"`
	Type   string    `json:"type"`
	At     time.Time `json:"at"`
}

// DashboardData is the aggregate view served to operator dashboards.
type DashboardData struct {
	Processed       int64                `json:"processed"`
	LastProcessedAt time.Time            `json:"lastProcessedAt"`
	RecentEvents    []Event              `json:"recentEvents"`
	Queue           queue.Metrics        `json:"queue"`
	Policy          policy.PolicyMetrics `json:"policy"`
	ModelVersion    string               `json:"modelVersion"`
}

// Health flags pipeline-level problems.
type Health struct {
	Overall     int      `json:"overall"`
	Bottlenecks []string `json:"bottlenecks"`
}

// SystemMetrics is the cross-component snapshot used for monitoring.
type SystemMetrics struct {
	ModelVersion string               `json:"modelVersion"`
	PolicyArms   policy.PolicyMetrics `json:"policyArms"`
	Queue        queue.Metrics        `json:"queue"`
	Processed    int64                `json:"processed"`
	Health       Health               `json:"health"`
}

// Orchestrator runs the score, decide, enqueue pipeline in order.
type Orchestrator struct {
	scorer Scorer
	policy Decider
	queue  WorkQueue

	mu            sync.Mutex
	events        []Event
	processed     int64
	lastProcessed time.Time

	now func() time.Time
}

// New wires the three components into a pipeline.
func New(scorer Scorer, decider Decider, workQueue WorkQueue) *Orchestrator {
	return &Orchestrator{
		scorer: scorer,
		policy: decider,
		queue:  workQueue,
		now:    time.Now,
	}
}

// ProcessLead runs the full pipeline for one lead: score it, pick an
// outreach action, enqueue it for an agent. The stages run strictly in that
// order; a failure at any stage aborts the pass without partial bookkeeping.
func (o *Orchestrator) ProcessLead(ctx context.Context, leadID, source string) (*Decision, error) {
	if source == "" {
		source = "api"
	}

	res, err := o.scorer.Score(ctx, leadID)
	if err != nil {
		return nil, fmt.Errorf("process lead %s: %w", leadID, err)
	}
	action, err := o.policy.Decide(ctx, leadID)
	if err != nil {
		return nil, fmt.Errorf("process lead %s: %w", leadID, err)
	}
	item, err := o.queue.Enqueue(ctx, leadID)
	if err != nil {
		return nil, fmt.Errorf("process lead %s: %w", leadID, err)
	}

	o.mu.Lock()
	o.processed++
	o.lastProcessed = o.now()
	processed := o.processed
	processedAt := o.lastProcessed
	o.mu.Unlock()

	log.Printf("Orchestrator: processed lead %s from %s (%s, score %.1f, arm %s)",
		leadID, source, res.Segment, res.Score, action.ArmID)

	return &Decision{
		LeadID:      leadID,
		Source:      source,
		Score:       res.Score,
		Segment:     res.Segment,
		BotAction:   action,
		QueueItem:   item,
		ProcessedAt: processedAt,
		Processed:   processed,
		Reasoning: []string{
			fmt.Sprintf("scored %.1f, segment %s", res.Score, res.Segment),
			fmt.Sprintf("policy picked arm %s (%s)", action.ArmID, action.Reason),
			fmt.Sprintf("enqueued at priority %.1f", item.Priority),
		},
	}, nil
}

// RecordConversion relays a terminal conversion into the scoring engine and
// notes it in the activity log.
func (o *Orchestrator) RecordConversion(ctx context.Context, leadID string, value float64) (*scoring.ScoreResult, error) {
	res, err := o.scorer.RecordConversion(ctx, leadID, value)
	if err != nil {
		return nil, fmt.Errorf("record conversion %s: %w", leadID, err)
	}
	o.ProcessEvent(leadID, "conversion")
	return res, nil
}

// RecordReward relays an observed reward for an arm into the policy.
func (o *Orchestrator) RecordReward(leadID, armID string, reward float64) error {
	if err := o.policy.RecordReward(leadID, armID, reward); err != nil {
		return fmt.Errorf("record reward %s: %w", leadID, err)
	}
	o.ProcessEvent(leadID, "reward")
	return nil
}

// ProcessEvent appends to the bounded activity log. It mutates no business
// state and never fails; the oldest entries are dropped past the cap.
func (o *Orchestrator) ProcessEvent(leadID, eventType string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.events = append(o.events, Event{LeadID: leadID, Type: eventType, At: o.now()})
	if len(o.events) > maxEvents {
		o.events = o.events[len(o.events)-maxEvents:]
	}
}

// DashboardData aggregates counters and component metrics for dashboards.
func (o *Orchestrator) DashboardData() DashboardData {
	o.mu.Lock()
	recent := o.recentEventsLocked()
	processed := o.processed
	last := o.lastProcessed
	o.mu.Unlock()

	return DashboardData{
		Processed:       processed,
		LastProcessedAt: last,
		RecentEvents:    recent,
		Queue:           o.queue.GetMetrics(),
		Policy:          o.policy.Metrics(),
		ModelVersion:    o.scorer.ModelVersion(),
	}
}

// SystemMetrics reports the cross-component state plus a health verdict.
// A queue backlog beyond the threshold is flagged as a bottleneck.
func (o *Orchestrator) SystemMetrics() SystemMetrics {
	o.mu.Lock()
	processed := o.processed
	o.mu.Unlock()

	queueMetrics := o.queue.GetMetrics()

	health := Health{Overall: 100, Bottlenecks: []string{}}
	if queueMetrics.QueueLength > backlogThreshold {
		health.Overall = 80
		health.Bottlenecks = append(health.Bottlenecks, "queue_backlog")
	}

	return SystemMetrics{
		ModelVersion: o.scorer.ModelVersion(),
		PolicyArms:   o.policy.Metrics(),
		Queue:        queueMetrics,
		Processed:    processed,
		Health:       health,
	}
}

func (o *Orchestrator) recentEventsLocked() []Event {
	start := 0
	if len(o.events) > recentEvents {
		start = len(o.events) - recentEvents
	}
	out := make([]Event, len(o.events)-start)
	copy(out, o.events[start:])
	return out
}
