package scoring

import (
	"context"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/lead-nurture/internal/domain"
	"github.com/ignite/lead-nurture/internal/leadstore"
	"github.com/ignite/lead-nurture/internal/performance"
	"github.com/ignite/lead-nurture/internal/snapshot"
)

const (
	snapshotName = "lead-scoring-state"

	// maxConversionHistory bounds the retained conversion records.
	maxConversionHistory = 5000
	// retrainWindow is how many recent conversions retraining looks at.
	retrainWindow = 300

	// hotStreakRate is the overall signal conversion rate above which all
	// scores get a small boost.
	hotStreakRate = 0.05
)

// WeightEntry is one feature's adaptive weight.
type WeightEntry struct {
	Weight      float64   `json:"weight"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// SegmentRate tracks scored/converted counts per segment.
type SegmentRate struct {
	Segment     domain.Segment `json:"segment"`
	Conversions int            `json:"conversions"`
	Total       int            `json:"total"`
}

// ConversionRecord is one observed conversion.
type ConversionRecord struct {
	ID     string    `json:"id"`
	LeadID string    `json:"leadId"`
	Value  float64   `json:"value"`
	At     time.Time `json:"at"`
}

// ScoreResult is the output of a single scoring call.
type ScoreResult struct {
	LeadID       string         `json:"leadId"`
	Score        float64        `json:"score"`
	Raw          float64        `json:"raw"`
	Segment      domain.Segment `json:"segment"`
	Features     FeatureVector  `json:"features"`
	ModelVersion string         `json:"modelVersion"`
}

// RetrainResult summarizes a retraining pass.
type RetrainResult struct {
	ModelVersion string                         `json:"modelVersion"`
	Weights      map[string]WeightEntry         `json:"weights"`
	Segments     map[domain.Segment]SegmentRate `json:"segments"`
	Conversions  int                            `json:"conversions"`
}

// Metrics is the read-only view of the engine's learning state.
type Metrics struct {
	ModelVersion string                         `json:"modelVersion"`
	Segments     map[domain.Segment]SegmentRate `json:"segments"`
	Weights      map[string]WeightEntry         `json:"weights"`
	Conversions  int                            `json:"conversions"`
}

// engineState is the durable snapshot document.
type engineState struct {
	Stats        map[string]*OnlineStat          `json:"stats"`
	Weights      map[string]*WeightEntry         `json:"weights"`
	SegmentRates map[domain.Segment]*SegmentRate `json:"segmentRates"`
	Conversions  []ConversionRecord              `json:"conversions"`
	ModelVersion string                          `json:"modelVersion"`
}

var seedWeights = map[string]float64{
	featCreatedMinutesAgo: -0.25,
	featNameLength:        0.4,
	featHasWhatsApp:       1.2,
	featSourceScore:       0.9,
	featHourOfDay:         0.15,
	featDayOfWeek:         0.05,
}

// tierFactor is the per-segment multiplicative nudge applied to every
// weight when a conversion lands in that segment.
var tierFactor = map[domain.Segment]float64{
	domain.SegmentTop:    1.05,
	domain.SegmentGood:   1.02,
	domain.SegmentMedium: 1.0,
	domain.SegmentLow:    0.99,
	domain.SegmentCold:   0.97,
}

// Engine is the online lead scoring engine. All state mutation happens under
// a single mutex held for the duration of each logical operation; external
// I/O (lead lookup, performance signal) completes before the lock is taken.
type Engine struct {
	leads  leadstore.Store
	perf   performance.Source
	snaps  snapshot.Store
	writer *snapshot.Writer

	mu           sync.Mutex
	stats        map[string]*OnlineStat
	weights      map[string]*WeightEntry
	segmentRates map[domain.Segment]*SegmentRate
	conversions  []ConversionRecord
	modelVersion string

	now func() time.Time
}

// NewEngine creates a scoring engine, restoring state from the snapshot
// store if a snapshot exists. perf and snaps may be nil (no boost, no
// persistence).
func NewEngine(leads leadstore.Store, perf performance.Source, snaps snapshot.Store) *Engine {
	e := &Engine{
		leads:        leads,
		perf:         perf,
		snaps:        snaps,
		writer:       snapshot.NewWriter(snaps, snapshotName),
		stats:        make(map[string]*OnlineStat),
		weights:      make(map[string]*WeightEntry),
		segmentRates: make(map[domain.Segment]*SegmentRate),
		modelVersion: "1.0.0",
		now:          time.Now,
	}
	for _, k := range featureKeys {
		e.stats[k] = &OnlineStat{}
		e.weights[k] = &WeightEntry{Weight: seedWeights[k], LastUpdated: e.now()}
	}
	e.restore()
	return e
}

func (e *Engine) restore() {
	if e.snaps == nil {
		return
	}
	var st engineState
	err := e.snaps.Load(context.Background(), snapshotName, &st)
	if err == snapshot.ErrNotFound {
		return
	}
	if err != nil {
		log.Printf("Scoring: starting with seed state (could not load snapshot: %v)", err)
		return
	}
	for k, s := range st.Stats {
		if _, ok := e.stats[k]; ok && s != nil {
			e.stats[k] = s
		}
	}
	for k, w := range st.Weights {
		if _, ok := e.weights[k]; ok && w != nil {
			e.weights[k] = w
		}
	}
	if st.SegmentRates != nil {
		e.segmentRates = st.SegmentRates
	}
	e.conversions = st.Conversions
	if st.ModelVersion != "" {
		e.modelVersion = st.ModelVersion
	}
	log.Printf("Scoring: restored snapshot - model %s, %d conversions", e.modelVersion, len(e.conversions))
}

// Score resolves the lead, folds its features into the online statistics,
// and returns the bounded score with its segment. Fails with
// leadstore.ErrNotFound when the lead cannot be resolved.
func (e *Engine) Score(ctx context.Context, leadID string) (*ScoreResult, error) {
	lead, err := e.leads.FetchBasic(ctx, leadID)
	if err != nil {
		return nil, fmt.Errorf("score %s: %w", leadID, err)
	}
	perfs := e.topPerformers(ctx)

	now := e.now()
	e.mu.Lock()
	defer e.mu.Unlock()

	fv := buildFeatures(lead, now)
	for _, k := range featureKeys {
		e.stats[k].Update(fv.value(k))
	}

	raw := e.rawScoreLocked(fv, perfs)
	score := 100 / (1 + math.Exp(-raw))
	score = math.Round(score*100) / 100
	raw = math.Round(raw*10000) / 10000

	segment := domain.SegmentForScore(score)
	e.segmentRateLocked(segment).Total++
	e.saveLocked()

	return &ScoreResult{
		LeadID:       lead.ID,
		Score:        score,
		Raw:          raw,
		Segment:      segment,
		Features:     fv,
		ModelVersion: e.modelVersion,
	}, nil
}

// rawScoreLocked sums the weighted, transformed features and applies the
// optional global performance boosts.
func (e *Engine) rawScoreLocked(fv FeatureVector, perfs []performance.ArmPerformance) float64 {
	var raw float64
	for _, k := range featureKeys {
		raw += e.weights[k].Weight * e.transformLocked(k, fv)
	}

	if len(perfs) > 0 {
		if performance.AverageRate(perfs) > hotStreakRate {
			raw *= 1.1
		}
		if performance.InOptimalWindow(perfs, fv.HourOfDay) {
			raw *= 1.05
		}
	}
	return raw
}

func (e *Engine) transformLocked(key string, fv FeatureVector) float64 {
	x := fv.value(key)
	switch key {
	case featCreatedMinutesAgo:
		// Fresher leads score higher.
		return -e.stats[key].ZScore(x)
	case featNameLength:
		return e.stats[key].ZScore(x)
	case featHourOfDay:
		return math.Cos(x / 24 * 2 * math.Pi)
	case featDayOfWeek:
		return math.Cos(x / 7 * 2 * math.Pi)
	}
	return x
}

func (e *Engine) segmentRateLocked(segment domain.Segment) *SegmentRate {
	sr, ok := e.segmentRates[segment]
	if !ok {
		sr = &SegmentRate{Segment: segment}
		e.segmentRates[segment] = sr
	}
	return sr
}

// RecordConversion re-scores the lead, attributes the conversion to the
// resulting segment, appends a conversion record, and nudges the feature
// weights toward the converting tier.
func (e *Engine) RecordConversion(ctx context.Context, leadID string, value float64) (*ScoreResult, error) {
	res, err := e.Score(ctx, leadID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.segmentRateLocked(res.Segment).Conversions++
	e.conversions = append(e.conversions, ConversionRecord{
		ID:     uuid.New().String(),
		LeadID: leadID,
		Value:  value,
		At:     e.now(),
	})
	if len(e.conversions) > maxConversionHistory {
		e.conversions = e.conversions[len(e.conversions)-maxConversionHistory:]
	}
	e.adaptWeightsLocked(res.Segment)
	e.saveLocked()
	return res, nil
}

// adaptWeightsLocked applies the tier nudge to every weight. The clamp keeps
// replayed conversions from compounding past the bound.
func (e *Engine) adaptWeightsLocked(segment domain.Segment) {
	factor, ok := tierFactor[segment]
	if !ok {
		factor = 1.0
	}
	now := e.now()
	for _, k := range featureKeys {
		w := e.weights[k]
		w.Weight = clampWeight(w.Weight * factor)
		w.LastUpdated = now
	}
}

func clampWeight(w float64) float64 {
	if w > 2 {
		return 2
	}
	if w < -2 {
		return -2
	}
	return w
}

// Retrain recomputes weights from accumulated feature variance and recent
// conversion volume, then bumps the model version.
func (e *Engine) Retrain() RetrainResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	recent := len(e.conversions)
	if recent > retrainWindow {
		recent = retrainWindow
	}

	varianceMap := make(map[string]float64, len(featureKeys))
	var varianceTotal float64
	for _, k := range featureKeys {
		v := e.stats[k].Variance()
		varianceMap[k] = v
		varianceTotal += v
	}
	if varianceTotal == 0 {
		varianceTotal = 1
	}

	// Dampened: 300 recent conversions move weights ~11%.
	convFactor := math.Log(1+float64(recent)) / 5
	now := e.now()
	for _, k := range featureKeys {
		share := varianceMap[k] / varianceTotal
		w := e.weights[k]
		w.Weight = clampWeight(w.Weight * (1 + share*0.1*convFactor))
		w.LastUpdated = now
	}

	e.modelVersion = bumpVersion(e.modelVersion)
	e.saveLocked()

	return RetrainResult{
		ModelVersion: e.modelVersion,
		Weights:      e.weightsCopyLocked(),
		Segments:     e.segmentsCopyLocked(),
		Conversions:  len(e.conversions),
	}
}

// bumpVersion adds 0.01 to the numeric prefix of a version string, so
// "1.0.0" becomes "1.01" and subsequent retrains count up from there.
func bumpVersion(version string) string {
	v, err := strconv.ParseFloat(version, 64)
	if err != nil {
		parts := strings.SplitN(version, ".", 3)
		if len(parts) >= 2 {
			v, err = strconv.ParseFloat(parts[0]+"."+parts[1], 64)
		}
		if err != nil {
			v = 1.0
		}
	}
	return strconv.FormatFloat(v+0.01, 'f', 2, 64)
}

// ModelVersion returns the current model version string.
func (e *Engine) ModelVersion() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.modelVersion
}

// Metrics returns a copy of the engine's learning state.
func (e *Engine) Metrics() Metrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Metrics{
		ModelVersion: e.modelVersion,
		Segments:     e.segmentsCopyLocked(),
		Weights:      e.weightsCopyLocked(),
		Conversions:  len(e.conversions),
	}
}

func (e *Engine) weightsCopyLocked() map[string]WeightEntry {
	out := make(map[string]WeightEntry, len(e.weights))
	for k, w := range e.weights {
		out[k] = *w
	}
	return out
}

func (e *Engine) segmentsCopyLocked() map[domain.Segment]SegmentRate {
	out := make(map[domain.Segment]SegmentRate, len(e.segmentRates))
	for k, sr := range e.segmentRates {
		out[k] = *sr
	}
	return out
}

func (e *Engine) topPerformers(ctx context.Context) []performance.ArmPerformance {
	if e.perf == nil {
		return nil
	}
	perfs, err := e.perf.TopPerformers(ctx, 10)
	if err != nil {
		// Fail open: score without the boost.
		log.Printf("Scoring: performance signal unavailable: %v", err)
		return nil
	}
	return perfs
}

func (e *Engine) saveLocked() {
	e.writer.Save(engineState{
		Stats:        e.stats,
		Weights:      e.weights,
		SegmentRates: e.segmentRates,
		Conversions:  e.conversions,
		ModelVersion: e.modelVersion,
	})
}
