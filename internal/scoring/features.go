package scoring

import (
	"strings"
	"time"

	"github.com/ignite/lead-nurture/internal/domain"
)

// Feature keys, in the fixed order contributions are summed.
const (
	featCreatedMinutesAgo = "createdMinutesAgo"
	featNameLength        = "nameLength"
	featHasWhatsApp       = "hasWhatsApp"
	featSourceScore       = "sourceScore"
	featHourOfDay         = "hourOfDay"
	featDayOfWeek         = "dayOfWeek"
)

var featureKeys = []string{
	featCreatedMinutesAgo,
	featNameLength,
	featHasWhatsApp,
	featSourceScore,
	featHourOfDay,
	featDayOfWeek,
}

// FeatureVector is the derived per-call view of a lead. It is recomputed on
// every scoring call from the current wall clock and never persisted.
type FeatureVector struct {
	LeadID            string  `json:"leadId"`
	CreatedMinutesAgo float64 `json:"createdMinutesAgo"`
	NameLength        int     `json:"nameLength"`
	HasWhatsApp       int     `json:"hasWhatsApp"`
	SourceScore       float64 `json:"sourceScore"`
	HourOfDay         int     `json:"hourOfDay"`
	DayOfWeek         int     `json:"dayOfWeek"`
}

func (fv FeatureVector) value(key string) float64 {
	switch key {
	case featCreatedMinutesAgo:
		return fv.CreatedMinutesAgo
	case featNameLength:
		return float64(fv.NameLength)
	case featHasWhatsApp:
		return float64(fv.HasWhatsApp)
	case featSourceScore:
		return fv.SourceScore
	case featHourOfDay:
		return float64(fv.HourOfDay)
	case featDayOfWeek:
		return float64(fv.DayOfWeek)
	}
	return 0
}

// buildFeatures derives the feature vector at the given instant. Hour and
// day-of-week deliberately come from scoring time, not lead-creation time:
// the send-window boosts depend on when the decision is being made.
func buildFeatures(lead *domain.Lead, now time.Time) FeatureVector {
	hasWhatsApp := 0
	if lead.Phone != "" {
		hasWhatsApp = 1
	}
	return FeatureVector{
		LeadID:            lead.ID,
		CreatedMinutesAgo: now.Sub(lead.CreatedAt).Minutes(),
		NameLength:        len(strings.TrimSpace(lead.Name)),
		HasWhatsApp:       hasWhatsApp,
		SourceScore:       mapSource(lead.Source),
		HourOfDay:         now.Hour(),
		DayOfWeek:         int(now.Weekday()),
	}
}

// mapSource converts an acquisition-channel label to [0,1].
func mapSource(source string) float64 {
	if source == "" {
		return 0.2
	}
	s := strings.ToLower(source)
	switch {
	case strings.Contains(s, "facebook"), strings.Contains(s, "fb"):
		return 0.9
	case strings.Contains(s, "instagram"), strings.Contains(s, "ig"):
		return 0.8
	case strings.Contains(s, "ads"):
		return 0.85
	case strings.Contains(s, "organic"):
		return 0.5
	case strings.Contains(s, "referral"):
		return 0.6
	}
	return 0.4
}
