// Package domain contains the core business entities and value objects for
// GeoWatch. These models represent the ubiquitous language of the geopolitical
// threat-monitoring domain.
package domain

import (
	"time"
)

// TrendDirection describes the trajectory of a conflict as reported by
// upstream analytics producers.
type TrendDirection string

const (
	TrendStable       TrendDirection = "stable"
	TrendEscalating   TrendDirection = "escalating"
	TrendDeEscalating TrendDirection = "de-escalating"
)

// IsValid returns true if the trend direction is a known valid value.
func (d TrendDirection) IsValid() bool {
	switch d {
	case TrendStable, TrendEscalating, TrendDeEscalating:
		return true
	default:
		return false
	}
}

// EventData is a single observation about a geopolitical situation, supplied
// by an external analytics producer. Every field is optional: absent fields
// decode to their zero value and scoring treats zero as neutral.
type EventData struct {
	// ConflictIntensity is the producer's intensity estimate for the event.
	ConflictIntensity float64 `json:"conflict_intensity"`

	// PreviousIntensity is the intensity observed for the same situation
	// before this event, used to detect escalation.
	PreviousIntensity float64 `json:"previous_intensity"`

	// Casualties is the reported casualty count.
	Casualties int `json:"casualties"`

	// DisplacedPeople is the reported number of displaced people.
	DisplacedPeople int `json:"displaced_people"`

	// Actors lists all actors involved in the event.
	Actors []string `json:"actors"`

	// NewActors lists actors not previously seen in this situation.
	NewActors []string `json:"new_actors"`

	// HighRiskActors lists involved actors flagged as high risk upstream.
	HighRiskActors []string `json:"high_risk_actors"`

	// AffectedRegions lists every region touched by the event.
	AffectedRegions []string `json:"affected_regions"`

	// Region is the primary region of the event.
	Region string `json:"region"`

	// Country is the primary country, when known.
	Country *string `json:"country"`

	// Timestamp is when the event was observed. Zero means "now".
	Timestamp time.Time `json:"timestamp"`

	// SentimentScore is the aggregate sentiment in [-1, 1].
	SentimentScore float64 `json:"sentiment_score"`

	// SentimentChange is the delta against the previous sentiment reading.
	SentimentChange float64 `json:"sentiment_change"`

	// AnomalyScore is the upstream anomaly detector output.
	AnomalyScore float64 `json:"anomaly_score"`

	// Confidence is the producer's confidence in the observation, in [0, 1].
	Confidence float64 `json:"confidence"`

	// ActorDetectionConfidence is the confidence of the actor extraction step.
	ActorDetectionConfidence float64 `json:"actor_detection_confidence"`

	// TrendDirection is the reported conflict trajectory.
	TrendDirection TrendDirection `json:"trend_direction"`
}

// Normalize clamps out-of-range fields and fills defaults so downstream
// scoring never has to handle malformed input. It is applied once at the
// ingestion boundary; scoring and rule evaluation assume a normalized event.
func (e *EventData) Normalize(now time.Time) {
	if e.Timestamp.IsZero() {
		e.Timestamp = now.UTC()
	}
	e.SentimentScore = clamp(e.SentimentScore, -1, 1)
	e.Confidence = clamp(e.Confidence, 0, 1)
	e.ActorDetectionConfidence = clamp(e.ActorDetectionConfidence, 0, 1)
	if e.Casualties < 0 {
		e.Casualties = 0
	}
	if e.DisplacedPeople < 0 {
		e.DisplacedPeople = 0
	}
	if e.ConflictIntensity < 0 {
		e.ConflictIntensity = 0
	}
	if e.Actors == nil {
		e.Actors = []string{}
	}
	if e.NewActors == nil {
		e.NewActors = []string{}
	}
	if e.HighRiskActors == nil {
		e.HighRiskActors = []string{}
	}
	if e.AffectedRegions == nil {
		e.AffectedRegions = []string{}
	}
	if e.TrendDirection == "" {
		e.TrendDirection = TrendStable
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// InternalEvent is an enriched event used for internal processing.
// It carries the original observation plus queue routing information.
type InternalEvent struct {
	EventData

	// PartitionKey is the computed key for message queue partitioning.
	// Events for the same region share a key so they are consumed in order.
	PartitionKey string `json:"partition_key"`

	// ReceivedAt is when the event entered the monitor's queue.
	ReceivedAt time.Time `json:"received_at"`
}
