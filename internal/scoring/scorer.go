// Package scoring computes composite threat scores for geopolitical events.
// The scorer is a pure function of the event: it never fails, treating
// missing or zeroed fields as neutral contributions.
package scoring

import (
	"math"
	"time"

	"geowatch-go/internal/config"
	"geowatch-go/internal/domain"
)

// Scorer combines seven independent risk components into a weighted total
// score in [0, 100] and derives a severity tier from it.
type Scorer struct {
	weights    map[string]float64
	thresholds config.SeverityThresholds

	// now is injectable for tests; defaults to time.Now.
	now func() time.Time
}

// NewScorer creates a scorer from the given scoring configuration.
func NewScorer(cfg config.ScoringConfig) *Scorer {
	return &Scorer{
		weights:    cfg.Weights,
		thresholds: cfg.Thresholds,
		now:        time.Now,
	}
}

// Score computes the threat score for a single event. Each component is
// clamped to [0, 100] before weighting, so the weighted total is also in
// [0, 100] as long as the weights sum to 1.0.
func (s *Scorer) Score(event domain.EventData) domain.ThreatScoreResult {
	now := s.now().UTC()

	components := map[string]float64{
		config.ComponentConflictIntensity:   clamp100(event.ConflictIntensity * 20),
		config.ComponentHumanitarianImpact:  clamp100(float64(event.Casualties)*0.1 + float64(event.DisplacedPeople)*0.01),
		config.ComponentActorInvolvement:    clamp100(float64(len(event.Actors))*5 + float64(len(event.HighRiskActors))*15),
		config.ComponentGeographicalSpread:  clamp100(float64(len(event.AffectedRegions)) * 20),
		config.ComponentTemporalUrgency:     s.temporalUrgency(event.Timestamp, now),
		config.ComponentSentimentNegativity: clamp100(-event.SentimentScore * 50),
		config.ComponentAnomalyStrength:     clamp100(math.Abs(event.AnomalyScore) * 100),
	}

	var total float64
	weights := make(map[string]float64, len(s.weights))
	for name, weight := range s.weights {
		weights[name] = weight
		total += components[name] * weight
	}

	return domain.ThreatScoreResult{
		TotalScore:      total,
		Severity:        s.thresholds.SeverityFor(total),
		ComponentScores: components,
		WeightsUsed:     weights,
		ComputedAt:      now,
	}
}

// temporalUrgency decays linearly at two points per hour since the event and
// floors at zero. A missing timestamp contributes the neutral zero; events
// with future timestamps (clock skew) clamp at 100.
func (s *Scorer) temporalUrgency(eventTime, now time.Time) float64 {
	if eventTime.IsZero() {
		return 0
	}
	hours := now.Sub(eventTime).Hours()
	if hours < 0 {
		return 100
	}
	urgency := 100 - hours*2
	if urgency < 0 {
		return 0
	}
	return urgency
}

func clamp100(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
