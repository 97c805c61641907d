package orchestrator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ignite/lead-nurture/internal/domain"
	"github.com/ignite/lead-nurture/internal/policy"
	"github.com/ignite/lead-nurture/internal/queue"
	"github.com/ignite/lead-nurture/internal/scoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pipelineStub struct {
	calls []string

	scoreErr   error
	decideErr  error
	enqueueErr error

	queueMetrics queue.Metrics
}

func (p *pipelineStub) Score(_ context.Context, leadID string) (*scoring.ScoreResult, error) {
	p.calls = append(p.calls, "score")
	if p.scoreErr != nil {
		return nil, p.scoreErr
	}
	return &scoring.ScoreResult{LeadID: leadID, Score: 85.5, Segment: domain.SegmentTop}, nil
}

func (p *pipelineStub) RecordConversion(_ context.Context, leadID string, value float64) (*scoring.ScoreResult, error) {
	p.calls = append(p.calls, "convert")
	if p.scoreErr != nil {
		return nil, p.scoreErr
	}
	return &scoring.ScoreResult{LeadID: leadID, Score: 85.5, Segment: domain.SegmentTop}, nil
}

func (p *pipelineStub) ModelVersion() string { return "1.02" }

func (p *pipelineStub) Decide(_ context.Context, leadID string) (*policy.Decision, error) {
	p.calls = append(p.calls, "decide")
	if p.decideErr != nil {
		return nil, p.decideErr
	}
	return &policy.Decision{ArmID: "greeting_warm", Segment: domain.SegmentTop, Reason: "ucb+segment-bias"}, nil
}

func (p *pipelineStub) RecordReward(leadID, armID string, reward float64) error {
	p.calls = append(p.calls, "reward")
	return p.decideErr
}

func (p *pipelineStub) Metrics() policy.PolicyMetrics {
	return policy.PolicyMetrics{Total: 7}
}

func (p *pipelineStub) Enqueue(_ context.Context, leadID string) (*queue.Item, error) {
	p.calls = append(p.calls, "enqueue")
	if p.enqueueErr != nil {
		return nil, p.enqueueErr
	}
	return &queue.Item{LeadID: leadID, Segment: domain.SegmentTop, Priority: 102.3, Status: queue.StatusWaiting}, nil
}

func (p *pipelineStub) GetMetrics() queue.Metrics { return p.queueMetrics }

func newTestOrchestrator(stub *pipelineStub) *Orchestrator {
	o := New(stub, stub, stub)
	o.now = func() time.Time { return time.Date(2025, 7, 15, 9, 0, 0, 0, time.UTC) }
	return o
}

func TestProcessLeadRunsStagesInOrder(t *testing.T) {
	stub := &pipelineStub{}
	o := newTestOrchestrator(stub)

	d, err := o.ProcessLead(context.Background(), "lead-1", "webhook")
	require.NoError(t, err)

	assert.Equal(t, []string{"score", "decide", "enqueue"}, stub.calls)
	assert.Equal(t, "lead-1", d.LeadID)
	assert.Equal(t, "webhook", d.Source)
	assert.Equal(t, 85.5, d.Score)
	assert.Equal(t, domain.SegmentTop, d.Segment)
	assert.Equal(t, "greeting_warm", d.BotAction.ArmID)
	assert.Equal(t, 102.3, d.QueueItem.Priority)
	assert.Equal(t, int64(1), d.Processed)
	assert.Len(t, d.Reasoning, 3)
}

func TestProcessLeadDefaultsSource(t *testing.T) {
	o := newTestOrchestrator(&pipelineStub{})

	d, err := o.ProcessLead(context.Background(), "lead-1", "")
	require.NoError(t, err)
	assert.Equal(t, "api", d.Source)
}

func TestProcessLeadCountsAcrossCalls(t *testing.T) {
	o := newTestOrchestrator(&pipelineStub{})

	for i := 1; i <= 3; i++ {
		d, err := o.ProcessLead(context.Background(), fmt.Sprintf("lead-%d", i), "")
		require.NoError(t, err)
		assert.Equal(t, int64(i), d.Processed)
	}
}

func TestProcessLeadScoreFailureStopsPipeline(t *testing.T) {
	stub := &pipelineStub{scoreErr: assert.AnError}
	o := newTestOrchestrator(stub)

	_, err := o.ProcessLead(context.Background(), "lead-1", "")
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, []string{"score"}, stub.calls, "later stages must not run")
	assert.Zero(t, o.DashboardData().Processed, "failed passes are not counted")
}

func TestProcessLeadDecideFailureStopsPipeline(t *testing.T) {
	stub := &pipelineStub{decideErr: assert.AnError}
	o := newTestOrchestrator(stub)

	_, err := o.ProcessLead(context.Background(), "lead-1", "")
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, []string{"score", "decide"}, stub.calls)
}

func TestRecordConversionRelaysAndLogs(t *testing.T) {
	stub := &pipelineStub{}
	o := newTestOrchestrator(stub)

	res, err := o.RecordConversion(context.Background(), "lead-1", 150)
	require.NoError(t, err)
	assert.Equal(t, domain.SegmentTop, res.Segment)
	assert.Equal(t, []string{"convert"}, stub.calls)

	events := o.DashboardData().RecentEvents
	require.Len(t, events, 1)
	assert.Equal(t, "conversion", events[0].Type)
}

func TestRecordRewardRelaysAndLogs(t *testing.T) {
	stub := &pipelineStub{}
	o := newTestOrchestrator(stub)

	require.NoError(t, o.RecordReward("lead-1", "greeting_warm", 1))
	assert.Equal(t, []string{"reward"}, stub.calls)

	events := o.DashboardData().RecentEvents
	require.Len(t, events, 1)
	assert.Equal(t, "reward", events[0].Type)
}

func TestRecordRewardFailureNotLogged(t *testing.T) {
	stub := &pipelineStub{decideErr: assert.AnError}
	o := newTestOrchestrator(stub)

	assert.ErrorIs(t, o.RecordReward("lead-1", "no_such_arm", 1), assert.AnError)
	assert.Empty(t, o.DashboardData().RecentEvents)
}

func TestProcessEventRing(t *testing.T) {
	o := newTestOrchestrator(&pipelineStub{})

	for i := 0; i < maxEvents+50; i++ {
		o.ProcessEvent(fmt.Sprintf("lead-%d", i), "message_received")
	}

	assert.Len(t, o.events, maxEvents)
	recent := o.DashboardData().RecentEvents
	require.Len(t, recent, recentEvents)
	assert.Equal(t, fmt.Sprintf("lead-%d", maxEvents+49), recent[len(recent)-1].LeadID)
}

func TestDashboardData(t *testing.T) {
	stub := &pipelineStub{queueMetrics: queue.Metrics{QueueLength: 3}}
	o := newTestOrchestrator(stub)

	_, err := o.ProcessLead(context.Background(), "lead-1", "")
	require.NoError(t, err)
	o.ProcessEvent("lead-1", "replied")

	d := o.DashboardData()
	assert.Equal(t, int64(1), d.Processed)
	assert.Equal(t, "1.02", d.ModelVersion)
	assert.Equal(t, 3, d.Queue.QueueLength)
	assert.Equal(t, int64(7), d.Policy.Total)
	require.Len(t, d.RecentEvents, 1)
	assert.Equal(t, "replied", d.RecentEvents[0].Type)
}

func TestSystemMetricsHealth(t *testing.T) {
	stub := &pipelineStub{queueMetrics: queue.Metrics{QueueLength: 5}}
	o := newTestOrchestrator(stub)

	m := o.SystemMetrics()
	assert.Equal(t, 100, m.Health.Overall)
	assert.Empty(t, m.Health.Bottlenecks)

	stub.queueMetrics.QueueLength = backlogThreshold + 1
	m = o.SystemMetrics()
	assert.Equal(t, 80, m.Health.Overall)
	assert.Equal(t, []string{"queue_backlog"}, m.Health.Bottlenecks)
}
