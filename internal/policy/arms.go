package policy

import (
	"time"

	"github.com/ignite/lead-nurture/internal/domain"
)

// ArmStats holds one arm's online counters.
type ArmStats struct {
	Impressions int64      `json:"impressions"`
	Rewards     float64    `json:"rewards"`
	LastUsed    *time.Time `json:"lastUsed,omitempty"`
}

// Arm is one candidate outreach action.
type Arm struct {
	ID          string           `json:"id"`
	Type        string           `json:"type"` // message, question, offer
	Template    string           `json:"template"`
	SegmentBias []domain.Segment `json:"segmentBias,omitempty"`
	Stats       ArmStats         `json:"stats"`
}

func (a *Arm) biasedToward(segment domain.Segment) bool {
	for _, s := range a.SegmentBias {
		if s == segment {
			return true
		}
	}
	return false
}

// seedArms returns the fixed catalog. Order matters: UCB ties resolve to the
// earliest arm.
func seedArms() []*Arm {
	return []*Arm{
		{
			ID:          "greeting_warm",
			Type:        "message",
			Template:    `Hi {{ first_name | default: "there" }}! I saw you were checking out our comfort line. Want a hand picking the right model?`,
			SegmentBias: []domain.Segment{domain.SegmentTop, domain.SegmentGood},
		},
		{
			ID:          "question_need",
			Type:        "question",
			Template:    `What matters most to you: all-day comfort, invisible under clothing, or breathable fabric?`,
			SegmentBias: []domain.Segment{domain.SegmentGood, domain.SegmentMedium},
		},
		{
			ID:          "offer_bundle",
			Type:        "offer",
			Template:    `We have a bundle with progressive savings that beats buying separately. Want me to send the details?`,
			SegmentBias: []domain.Segment{domain.SegmentTop, domain.SegmentGood},
		},
		{
			ID:          "social_proof",
			Type:        "message",
			Template:    `Customers with your profile loved the seamless model for the barely-there feel.`,
			SegmentBias: []domain.Segment{domain.SegmentMedium, domain.SegmentLow},
		},
		{
			ID:          "sizing_help",
			Type:        "question",
			Template:    `Can I send you a quick guide so you nail the size on the first try?`,
			SegmentBias: []domain.Segment{domain.SegmentCold, domain.SegmentLow, domain.SegmentMedium},
		},
	}
}
