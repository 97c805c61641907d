package domain

import "time"

// Lead is the minimal view of a prospect this core needs. The authoritative
// record lives in the external relational store; we only pull the fields the
// feature extractor reads.
type Lead struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Phone     string    `json:"phone" db:"phone"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	Source    string    `json:"source" db:"source"`
}

// Segment is a discrete conversion-likelihood tier derived from a lead's
// numeric score.
type Segment string

const (
	SegmentTop    Segment = "A-top"
	SegmentGood   Segment = "B-good"
	SegmentMedium Segment = "C-medium"
	SegmentLow    Segment = "D-low"
	SegmentCold   Segment = "E-cold"
)

// AllSegments lists the five tiers from hottest to coldest.
func AllSegments() []Segment {
	return []Segment{SegmentTop, SegmentGood, SegmentMedium, SegmentLow, SegmentCold}
}

// SegmentForScore maps a 0-100 score to its tier. Thresholds are fixed; the
// adaptive parts of the system move scores, never these boundaries.
func SegmentForScore(score float64) Segment {
	switch {
	case score >= 80:
		return SegmentTop
	case score >= 60:
		return SegmentGood
	case score >= 40:
		return SegmentMedium
	case score >= 20:
		return SegmentLow
	default:
		return SegmentCold
	}
}
