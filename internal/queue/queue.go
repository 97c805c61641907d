package queue

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/ignite/lead-nurture/internal/config"
	"github.com/ignite/lead-nurture/internal/domain"
	"github.com/ignite/lead-nurture/internal/performance"
	"github.com/ignite/lead-nurture/internal/scoring"
	"github.com/ignite/lead-nurture/internal/snapshot"
)

const (
	snapshotName = "intelligent-queue-state"

	// Combined performance boost is capped so a fully boosted tier plus
	// maximum jitter still lands below the next tier's unboosted base.
	maxBoost  = 1.2
	jitterMax = 5.0

	hotQueueRate     = 0.08
	hotApproachRate  = 0.06
	focusMissPenalty = 5
)

// basePriority maps a segment to its priority floor. Unknown segments get 20.
var basePriority = map[domain.Segment]float64{
	domain.SegmentTop:    100,
	domain.SegmentGood:   70,
	domain.SegmentMedium: 50,
	domain.SegmentLow:    30,
	domain.SegmentCold:   10,
}

// Status is a queue item's lifecycle stage.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusAssigned  Status = "assigned"
	StatusCompleted Status = "completed"
)

// Item is one lead's entry in the work queue.
type Item struct {
	LeadID      string         `json:"leadId"`
	Segment     domain.Segment `json:"segment"`
	Score       float64        `json:"score"`
	Priority    float64        `json:"priority"`
	EnqueuedAt  time.Time      `json:"enqueuedAt"`
	AssignedTo  string         `json:"assignedTo,omitempty"`
	Status      Status         `json:"status"`
	Result      string         `json:"result,omitempty"`
	Value       float64        `json:"value,omitempty"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
}

// Agent is a registered human agent with a working-set capacity.
type Agent struct {
	ID       string           `json:"agentId"`
	Name     string           `json:"name,omitempty"`
	Capacity int              `json:"capacity"`
	Active   bool             `json:"active"`
	Assigned int              `json:"assigned"`
	Focus    []domain.Segment `json:"segmentsFocus,omitempty"`
}

// AgentUpdate registers or changes an agent. Zero-value fields keep the
// existing setting; for a new agent, capacity defaults from config and
// active defaults to true.
type AgentUpdate struct {
	ID       string
	Name     string
	Capacity int
	Active   *bool
	Focus    []domain.Segment
}

// AgentView is an agent's state as exposed in metrics.
type AgentView struct {
	ID       string `json:"agentId"`
	Active   bool   `json:"active"`
	Assigned int    `json:"assigned"`
	Capacity int    `json:"capacity"`
}

// Metrics summarizes queue health.
type Metrics struct {
	QueueLength  int         `json:"queueLength"`
	Assigned     int         `json:"assigned"`
	Throughput1h int         `json:"throughput1h"`
	AvgWaitMs    int64       `json:"avgWaitMs"`
	Agents       []AgentView `json:"agents"`
}

// Scorer produces a lead's score and segment.
type Scorer interface {
	Score(ctx context.Context, leadID string) (*scoring.ScoreResult, error)
}

type queueState struct {
	Items  []*Item  `json:"items"`
	Agents []*Agent `json:"agents"`
}

// Queue is the priority work list plus the agent roster. One mutex guards
// both; external calls (scoring, performance signal) happen outside it.
type Queue struct {
	cfg    config.QueueConfig
	scorer Scorer
	perf   performance.Source
	writer *snapshot.Writer

	mu     sync.Mutex
	items  []*Item
	agents map[string]*Agent

	now    func() time.Time
	jitter func() float64
}

// New builds a Queue, restoring items and agents from the snapshot store
// when a previous state exists.
func New(cfg config.QueueConfig, scorer Scorer, perf performance.Source, snaps snapshot.Store) *Queue {
	q := &Queue{
		cfg:    cfg,
		scorer: scorer,
		perf:   perf,
		writer: snapshot.NewWriter(snaps, snapshotName),
		agents: make(map[string]*Agent),
		now:    time.Now,
		jitter: func() float64 { return rand.Float64() * jitterMax },
	}
	q.restore(snaps)
	return q
}

func (q *Queue) restore(snaps snapshot.Store) {
	if snaps == nil {
		return
	}
	var st queueState
	err := snaps.Load(context.Background(), snapshotName, &st)
	if err == snapshot.ErrNotFound {
		return
	}
	if err != nil {
		log.Printf("Queue: starting empty (could not load snapshot: %v)", err)
		return
	}
	q.items = st.Items
	for _, a := range st.Agents {
		if a != nil {
			q.agents[a.ID] = a
		}
	}
	q.sortLocked()
	log.Printf("Queue: restored %d items and %d agents", len(q.items), len(q.agents))
}

// Enqueue scores the lead and adds it to the queue. While the lead already
// has a non-completed item the call is idempotent and returns that item.
func (q *Queue) Enqueue(ctx context.Context, leadID string) (*Item, error) {
	q.mu.Lock()
	if existing := q.pendingLocked(leadID); existing != nil {
		item := *existing
		q.mu.Unlock()
		return &item, nil
	}
	q.mu.Unlock()

	res, err := q.scorer.Score(ctx, leadID)
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", leadID, err)
	}
	perfs := q.topPerformers(ctx)

	q.mu.Lock()
	defer q.mu.Unlock()

	// Re-check: a concurrent Enqueue may have won while we were scoring.
	if existing := q.pendingLocked(leadID); existing != nil {
		item := *existing
		return &item, nil
	}

	item := &Item{
		LeadID:     leadID,
		Segment:    res.Segment,
		Score:      res.Score,
		Priority:   q.priorityLocked(res.Segment, perfs),
		EnqueuedAt: q.now(),
		Status:     StatusWaiting,
	}
	q.items = append(q.items, item)
	q.sortLocked()
	q.saveLocked()

	log.Printf("Queue: enqueued lead %s (%s, priority %.1f)", leadID, item.Segment, item.Priority)
	out := *item
	return &out, nil
}

// priorityLocked computes base priority for the segment, applies the
// performance boosts, caps the combined boost, and adds the tie-break jitter.
func (q *Queue) priorityLocked(segment domain.Segment, perfs []performance.ArmPerformance) float64 {
	base, ok := basePriority[segment]
	if !ok {
		base = 20
	}

	boost := 1.0
	if len(perfs) > 0 {
		if performance.AverageRate(perfs) > hotQueueRate {
			boost *= 1.15
		}
		if performance.InOptimalWindow(perfs, q.now().Hour()) {
			boost *= 1.1
		}
		if segment == domain.SegmentTop {
			if rate, ok := performance.CategoryRate(perfs, "approach"); ok && rate > hotApproachRate {
				boost *= 1.2
			}
		}
	}
	boost = math.Min(boost, maxBoost)

	return base*boost + q.jitter()
}

func (q *Queue) sortLocked() {
	sort.SliceStable(q.items, func(i, j int) bool {
		if q.items[i].Priority != q.items[j].Priority {
			return q.items[i].Priority > q.items[j].Priority
		}
		return q.items[i].EnqueuedAt.Before(q.items[j].EnqueuedAt)
	})
}

// pendingLocked returns the lead's live non-completed item, nil if none.
func (q *Queue) pendingLocked(leadID string) *Item {
	for _, item := range q.items {
		if item.LeadID == leadID && item.Status != StatusCompleted {
			return item
		}
	}
	return nil
}

// AssignLead routes the lead to an agent, enqueuing it first if needed. If
// preferredAgentID is set and that agent has spare capacity it wins;
// otherwise the least-loaded active agent under capacity is picked, with a
// penalty for agents whose focus excludes the lead's segment. Returns the
// chosen agent's id.
func (q *Queue) AssignLead(ctx context.Context, leadID, preferredAgentID string) (string, error) {
	q.mu.Lock()
	known := q.pendingLocked(leadID) != nil
	q.mu.Unlock()

	if !known {
		if _, err := q.Enqueue(ctx, leadID); err != nil {
			return "", err
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	item := q.pendingLocked(leadID)
	if item == nil {
		return "", fmt.Errorf("assign %s: %w", leadID, ErrNotFound)
	}
	if item.Status == StatusAssigned {
		return item.AssignedTo, nil
	}

	agent := q.pickAgentLocked(item, preferredAgentID)
	if agent == nil {
		return "", fmt.Errorf("assign %s: %w", leadID, ErrNoAgentAvailable)
	}

	item.AssignedTo = agent.ID
	item.Status = StatusAssigned
	agent.Assigned++
	q.saveLocked()

	log.Printf("Queue: lead %s assigned to agent %s (%d/%d)", leadID, agent.ID, agent.Assigned, agent.Capacity)
	return agent.ID, nil
}

func (q *Queue) pickAgentLocked(item *Item, preferredAgentID string) *Agent {
	if preferredAgentID != "" {
		if a, ok := q.agents[preferredAgentID]; ok && a.Active && a.Assigned < a.Capacity {
			return a
		}
	}

	var best *Agent
	bestLoad := math.MaxInt
	for _, a := range q.agents {
		if !a.Active || a.Assigned >= a.Capacity {
			continue
		}
		load := a.Assigned
		if len(a.Focus) > 0 && !focusIncludes(a.Focus, item.Segment) {
			load += focusMissPenalty
		}
		// Strictly less keeps the scan deterministic enough for ties to
		// fall to map order; load decides everything that matters.
		if load < bestLoad {
			bestLoad = load
			best = a
		}
	}
	return best
}

func focusIncludes(focus []domain.Segment, segment domain.Segment) bool {
	for _, s := range focus {
		if s == segment {
			return true
		}
	}
	return false
}

// CompleteLead closes the lead's active item with the given result and
// releases the assigned agent's slot.
func (q *Queue) CompleteLead(leadID, result string, value float64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	item := q.pendingLocked(leadID)
	if item == nil {
		return fmt.Errorf("complete %s: %w", leadID, ErrNotFound)
	}

	now := q.now()
	item.Status = StatusCompleted
	item.Result = result
	item.Value = value
	item.CompletedAt = &now

	if item.AssignedTo != "" {
		if a, ok := q.agents[item.AssignedTo]; ok && a.Assigned > 0 {
			a.Assigned--
		}
	}
	q.saveLocked()
	return nil
}

// UpsertAgent registers a new agent or updates an existing one. Unset
// fields keep their current value; a brand-new agent gets the configured
// default capacity and starts active.
func (q *Queue) UpsertAgent(update AgentUpdate) {
	q.mu.Lock()
	defer q.mu.Unlock()

	a, ok := q.agents[update.ID]
	if !ok {
		a = &Agent{ID: update.ID, Capacity: q.cfg.DefaultAgentCapacity, Active: true}
		q.agents[update.ID] = a
	}
	if update.Name != "" {
		a.Name = update.Name
	}
	if update.Capacity > 0 {
		a.Capacity = update.Capacity
	}
	if update.Active != nil {
		a.Active = *update.Active
	}
	if update.Focus != nil {
		a.Focus = update.Focus
	}
	q.saveLocked()
}

// GetQueue returns copies of all non-completed items in priority order.
func (q *Queue) GetQueue() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Item, 0, len(q.items))
	for _, item := range q.items {
		if item.Status != StatusCompleted {
			out = append(out, *item)
		}
	}
	return out
}

// GetMetrics reports queue depth, in-flight count, completions over the
// last hour, average wait of live items, and the agent roster.
func (q *Queue) GetMetrics() Metrics {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	m := Metrics{Agents: make([]AgentView, 0, len(q.agents))}

	var waitSum time.Duration
	var live int
	for _, item := range q.items {
		switch item.Status {
		case StatusWaiting:
			m.QueueLength++
		case StatusAssigned:
			m.Assigned++
		case StatusCompleted:
			if item.CompletedAt != nil && now.Sub(*item.CompletedAt) < time.Hour {
				m.Throughput1h++
			}
			continue
		}
		waitSum += now.Sub(item.EnqueuedAt)
		live++
	}
	if live > 0 {
		m.AvgWaitMs = (waitSum / time.Duration(live)).Milliseconds()
	}

	for _, a := range q.agents {
		m.Agents = append(m.Agents, AgentView{ID: a.ID, Active: a.Active, Assigned: a.Assigned, Capacity: a.Capacity})
	}
	sort.Slice(m.Agents, func(i, j int) bool { return m.Agents[i].ID < m.Agents[j].ID })
	return m
}

func (q *Queue) topPerformers(ctx context.Context) []performance.ArmPerformance {
	if q.perf == nil {
		return nil
	}
	perfs, err := q.perf.TopPerformers(ctx, 10)
	if err != nil {
		log.Printf("Queue: performance signal unavailable, using base priority: %v", err)
		return nil
	}
	return perfs
}

func (q *Queue) saveLocked() {
	q.writer.Save(queueState{Items: q.items, Agents: q.agentsSliceLocked()})
}

func (q *Queue) agentsSliceLocked() []*Agent {
	out := make([]*Agent, 0, len(q.agents))
	for _, a := range q.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
