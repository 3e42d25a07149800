// Package ranker scores filtered events. Importance comes from the
// configured category table, recency from an exponential half-life decay,
// and the final score is their weighted blend. Scoring is deterministic
// given the config and the clock, which keeps redelivery idempotent.
package ranker

import (
	"math"
	"time"

	"github.com/gsantopaolo/sentinel-AI/internal/config"
)

// Scorer computes the three scores for an event.
type Scorer struct {
	cfg *config.RankerConfig
	now func() time.Time
}

func NewScorer(cfg *config.RankerConfig) *Scorer {
	return &Scorer{cfg: cfg, now: time.Now}
}

// ImportanceScore sums the configured weights of the event's categories.
// Unmapped categories count as "Other"; so does an empty list.
func (s *Scorer) ImportanceScore(categories []string) float64 {
	other := s.cfg.CategoryImportanceScores["Other"]
	if len(categories) == 0 {
		return other
	}
	var total float64
	for _, c := range categories {
		score, ok := s.cfg.CategoryImportanceScores[c]
		if !ok {
			score = other
		}
		total += score
	}
	return total
}

// RecencyScore decays from max_score with the configured half life. A
// malformed timestamp counts as just-published rather than killing the
// event; timestamps in the future clamp to zero age.
func (s *Scorer) RecencyScore(timestamp string) float64 {
	maxScore := s.cfg.RecencyDecay.MaxScore

	t, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return maxScore
	}

	ageHours := s.now().Sub(t).Hours()
	if ageHours < 0 {
		ageHours = 0
	}
	return maxScore * math.Pow(0.5, ageHours/s.cfg.RecencyDecay.HalfLifeHours)
}

// FinalScore blends importance and recency with the configured weights.
func (s *Scorer) FinalScore(importance, recency float64) float64 {
	p := s.cfg.RankingParameters
	return p.ImportanceWeight*importance + p.RecencyWeight*recency
}
