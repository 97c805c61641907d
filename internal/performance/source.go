package performance

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

// ArmPerformance is one arm's published conversion stats.
type ArmPerformance struct {
	Category       string  `json:"category"`
	Variant        string  `json:"variant"`
	ConversionRate float64 `json:"conversion_rate"`
}

// Source returns the n best-performing arms, best first.
type Source interface {
	TopPerformers(ctx context.Context, n int) ([]ArmPerformance, error)
}

// RedisSource reads arm stats from a Redis hash written by the messaging
// bot. Hash field is the arm id, value is an ArmPerformance JSON document.
type RedisSource struct {
	client *redis.Client
	key    string
}

// NewRedisSource creates a signal reader over the given hash key.
func NewRedisSource(client *redis.Client, key string) *RedisSource {
	return &RedisSource{client: client, key: key}
}

// TopPerformers fetches all published arms and returns the n with the
// highest conversion rate. Entries that fail to decode are skipped rather
// than failing the whole read.
func (s *RedisSource) TopPerformers(ctx context.Context, n int) ([]ArmPerformance, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("read performance signal: %w", err)
	}

	perfs := make([]ArmPerformance, 0, len(fields))
	for _, raw := range fields {
		var p ArmPerformance
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			continue
		}
		perfs = append(perfs, p)
	}

	sort.SliceStable(perfs, func(i, j int) bool {
		return perfs[i].ConversionRate > perfs[j].ConversionRate
	})
	if n > 0 && len(perfs) > n {
		perfs = perfs[:n]
	}
	return perfs, nil
}

// Static is a fixed Source for tests and for wiring without Redis.
type Static []ArmPerformance

// TopPerformers returns up to n entries in the order given.
func (s Static) TopPerformers(_ context.Context, n int) ([]ArmPerformance, error) {
	if n > 0 && len(s) > n {
		return s[:n], nil
	}
	return s, nil
}

// AverageRate returns the mean conversion rate across the given arms,
// 0 when the slice is empty.
func AverageRate(perfs []ArmPerformance) float64 {
	if len(perfs) == 0 {
		return 0
	}
	var sum float64
	for _, p := range perfs {
		sum += p.ConversionRate
	}
	return sum / float64(len(perfs))
}

// CategoryRate returns the mean conversion rate over arms in one category,
// and whether any such arms exist.
func CategoryRate(perfs []ArmPerformance, category string) (float64, bool) {
	var sum float64
	var count int
	for _, p := range perfs {
		if p.Category == category {
			sum += p.ConversionRate
			count++
		}
	}
	if count == 0 {
		return 0, false
	}
	return sum / float64(count), true
}

// InOptimalWindow reports whether the given hour falls inside a send window
// that the timing arms currently favor. Windows: morning 8-11, afternoon
// 12-17, evening 18-21.
func InOptimalWindow(perfs []ArmPerformance, hour int) bool {
	for _, p := range perfs {
		if p.Category != "timing" {
			continue
		}
		switch {
		case strings.Contains(p.Variant, "morning") && hour >= 8 && hour <= 11:
			return true
		case strings.Contains(p.Variant, "afternoon") && hour >= 12 && hour <= 17:
			return true
		case strings.Contains(p.Variant, "evening") && hour >= 18 && hour <= 21:
			return true
		}
	}
	return false
}
