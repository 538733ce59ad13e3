// Package rules implements the alert generation rule engine. Each built-in
// detection rule is evaluated independently against a scored event, so one
// event may yield several alerts of different types.
package rules

import (
	"fmt"
	"log/slog"
	"math"

	"geowatch-go/internal/config"
	"geowatch-go/internal/domain"
)

// rule evaluates one detection condition against a scored event and returns
// an alert when it fires, or nil.
type rule func(event domain.EventData, score domain.ThreatScoreResult) *domain.Alert

// Generator evaluates the built-in detection rules. Thresholds are injected
// through config; all comparisons against minimums are inclusive.
type Generator struct {
	cfg    config.RulesConfig
	logger *slog.Logger
	rules  []rule
}

// NewGenerator creates a generator with the five built-in rules.
func NewGenerator(cfg config.RulesConfig, logger *slog.Logger) *Generator {
	g := &Generator{
		cfg:    cfg,
		logger: logger,
	}
	g.rules = []rule{
		g.conflictEscalation,
		g.newActorDetected,
		g.humanitarianCrisis,
		g.anomalyDetected,
		g.sentimentShift,
	}
	return g
}

// Evaluate runs every rule against the event and returns the alerts that
// fired, possibly none. Rules are independent: a panicking rule is recovered
// and skipped without suppressing the other rules' alerts.
func (g *Generator) Evaluate(event domain.EventData, score domain.ThreatScoreResult) []domain.Alert {
	alerts := make([]domain.Alert, 0, 2)
	for _, r := range g.rules {
		if alert := g.safeEval(r, event, score); alert != nil {
			alerts = append(alerts, *alert)
		}
	}
	return alerts
}

// safeEval isolates a single rule evaluation so one misbehaving rule cannot
// take down the consumer loop or suppress sibling rules.
func (g *Generator) safeEval(r rule, event domain.EventData, score domain.ThreatScoreResult) (alert *domain.Alert) {
	defer func() {
		if rec := recover(); rec != nil {
			g.logger.Error("rule evaluation panicked, skipping rule",
				"panic", rec,
				"region", event.Region,
			)
			alert = nil
		}
	}()
	return r(event, score)
}

// conflictEscalation fires when intensity rose by at least the configured
// minimum and the overall threat score reached its minimum. Both thresholds
// are inclusive.
func (g *Generator) conflictEscalation(event domain.EventData, score domain.ThreatScoreResult) *domain.Alert {
	delta := event.ConflictIntensity - event.PreviousIntensity
	if delta < g.cfg.Escalation.MinIntensityIncrease || score.TotalScore < g.cfg.Escalation.MinThreatScore {
		return nil
	}

	alert := domain.NewAlert(domain.AlertConflictEscalation, event, score)
	alert.Title = fmt.Sprintf("Conflict escalation in %s", regionLabel(event))
	alert.Description = fmt.Sprintf(
		"Conflict intensity rose from %.1f to %.1f (delta %.1f) with threat score %.1f.",
		event.PreviousIntensity, event.ConflictIntensity, delta, score.TotalScore,
	)
	alert.Metadata["intensity_delta"] = delta
	alert.Metadata["previous_intensity"] = event.PreviousIntensity
	alert.Metadata["current_intensity"] = event.ConflictIntensity
	return alert
}

// newActorDetected fires when previously unseen actors appear and the actor
// extraction confidence meets the configured minimum.
func (g *Generator) newActorDetected(event domain.EventData, score domain.ThreatScoreResult) *domain.Alert {
	if len(event.NewActors) == 0 || event.ActorDetectionConfidence < g.cfg.NewActor.MinConfidence {
		return nil
	}

	alert := domain.NewAlert(domain.AlertNewActorDetected, event, score)
	alert.Title = fmt.Sprintf("New actors detected in %s", regionLabel(event))
	alert.Description = fmt.Sprintf(
		"%d previously unseen actor(s) identified with %.0f%% detection confidence.",
		len(event.NewActors), event.ActorDetectionConfidence*100,
	)
	alert.ConfidenceScore = event.ActorDetectionConfidence
	alert.Metadata["new_actors"] = append([]string{}, event.NewActors...)
	alert.Metadata["detection_confidence"] = event.ActorDetectionConfidence
	return alert
}

// humanitarianCrisis fires when any of the casualty, displacement or threat
// score minimums is reached. Rules and severity are orthogonal: a low-scoring
// event can still trigger on casualties alone.
func (g *Generator) humanitarianCrisis(event domain.EventData, score domain.ThreatScoreResult) *domain.Alert {
	c := g.cfg.Humanitarian
	if event.Casualties < c.MinCasualties &&
		event.DisplacedPeople < c.MinDisplaced &&
		score.TotalScore < c.MinThreatScore {
		return nil
	}

	alert := domain.NewAlert(domain.AlertHumanitarianCrisis, event, score)
	alert.Title = fmt.Sprintf("Humanitarian crisis indicators in %s", regionLabel(event))
	alert.Description = fmt.Sprintf(
		"Reported %d casualties and %d displaced people.",
		event.Casualties, event.DisplacedPeople,
	)
	alert.Metadata["casualties"] = event.Casualties
	alert.Metadata["displaced_people"] = event.DisplacedPeople
	return alert
}

// anomalyDetected fires when the absolute anomaly score reaches the
// configured minimum, in either direction.
func (g *Generator) anomalyDetected(event domain.EventData, score domain.ThreatScoreResult) *domain.Alert {
	if math.Abs(event.AnomalyScore) < g.cfg.Anomaly.MinAnomalyScore {
		return nil
	}

	alert := domain.NewAlert(domain.AlertAnomalyDetected, event, score)
	alert.Title = fmt.Sprintf("Anomalous activity in %s", regionLabel(event))
	alert.Description = fmt.Sprintf(
		"Upstream anomaly detectors reported a score of %.2f.",
		event.AnomalyScore,
	)
	alert.Metadata["anomaly_score"] = event.AnomalyScore
	return alert
}

// sentimentShift fires on large negative sentiment changes: the configured
// threshold is negative and only shifts at or below it qualify.
func (g *Generator) sentimentShift(event domain.EventData, score domain.ThreatScoreResult) *domain.Alert {
	if event.SentimentChange > g.cfg.Sentiment.MinChange {
		return nil
	}

	alert := domain.NewAlert(domain.AlertSentimentShift, event, score)
	alert.Title = fmt.Sprintf("Negative sentiment shift in %s", regionLabel(event))
	alert.Description = fmt.Sprintf(
		"Sentiment dropped by %.2f to %.2f.",
		-event.SentimentChange, event.SentimentScore,
	)
	alert.Metadata["sentiment_change"] = event.SentimentChange
	alert.Metadata["sentiment_score"] = event.SentimentScore
	return alert
}

func regionLabel(event domain.EventData) string {
	if event.Region != "" {
		return event.Region
	}
	return "unspecified region"
}
