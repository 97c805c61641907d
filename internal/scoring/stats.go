package scoring

import "math"

// OnlineStat is a single feature's running statistic, maintained with
// Welford's single-pass algorithm.
type OnlineStat struct {
	Count int64   `json:"count"`
	Mean  float64 `json:"mean"`
	M2    float64 `json:"m2"`
}

// Update folds one observation into the statistic.
func (s *OnlineStat) Update(x float64) {
	s.Count++
	delta := x - s.Mean
	s.Mean += delta / float64(s.Count)
	delta2 := x - s.Mean
	s.M2 += delta * delta2
}

// Variance returns the sample variance, defined as 1 below two observations
// so early z-scores stay stable instead of dividing by zero.
func (s *OnlineStat) Variance() float64 {
	if s.Count > 1 {
		return s.M2 / float64(s.Count-1)
	}
	return 1
}

// ZScore standardizes an observation against the running statistic.
func (s *OnlineStat) ZScore(x float64) float64 {
	v := s.Variance()
	if v == 0 {
		v = 1
	}
	std := math.Sqrt(v)
	if std == 0 {
		return 0
	}
	return (x - s.Mean) / std
}
