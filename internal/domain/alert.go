package domain

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// ErrAlertNotFound is returned when an alert cannot be found.
var ErrAlertNotFound = errors.New("alert not found")

// Severity is the ordinal classification derived from the weighted threat
// score. Values serialize as lowercase strings for interoperability.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IsValid returns true if the severity is a known valid value.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}

// Rank returns the ordinal position of the severity, Low being 0.
// Unknown severities rank below Low.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return -1
	}
}

// AlertType identifies which detection produced an alert.
// Values serialize as lowercase snake_case strings.
type AlertType string

const (
	AlertConflictEscalation AlertType = "conflict_escalation"
	AlertNewActorDetected   AlertType = "new_actor_detected"
	AlertHumanitarianCrisis AlertType = "humanitarian_crisis"
	AlertAnomalyDetected    AlertType = "anomaly_detected"
	AlertSentimentShift     AlertType = "sentiment_shift"
	AlertPatternChange      AlertType = "pattern_change"
	AlertThreatLevelChange  AlertType = "threat_level_change"
)

// IsValid returns true if the alert type is a known valid value.
func (t AlertType) IsValid() bool {
	switch t {
	case AlertConflictEscalation, AlertNewActorDetected, AlertHumanitarianCrisis,
		AlertAnomalyDetected, AlertSentimentShift, AlertPatternChange,
		AlertThreatLevelChange:
		return true
	default:
		return false
	}
}

// ThreatScoreResult is the output of the threat scorer: the weighted total,
// the derived severity tier and the per-component breakdown.
type ThreatScoreResult struct {
	// TotalScore is the weighted composite score in [0, 100].
	TotalScore float64 `json:"total_threat_score"`

	// Severity is the tier derived from TotalScore via fixed thresholds.
	Severity Severity `json:"severity"`

	// ComponentScores holds each component's clamped score, keyed by name.
	ComponentScores map[string]float64 `json:"component_scores"`

	// WeightsUsed echoes the weight vector applied to the components.
	WeightsUsed map[string]float64 `json:"weights_used"`

	// ComputedAt is when the score was calculated.
	ComputedAt time.Time `json:"computed_at"`
}

// alertSeq disambiguates alert IDs generated within the same nanosecond.
var alertSeq atomic.Uint64

// Alert is a structured notification record generated when an event satisfies
// a detection rule. Alerts are created exactly once and immutable thereafter.
type Alert struct {
	// ID uniquely identifies the alert. It embeds the alert type, a
	// nanosecond creation timestamp and a process-wide sequence number, so
	// IDs stay unique even for alerts generated in the same tick.
	ID string `json:"id"`

	// Type identifies the detection rule that produced the alert.
	Type AlertType `json:"alert_type"`

	// Severity is inherited from the event's threat score unless the
	// producing rule overrides it.
	Severity Severity `json:"severity"`

	// Title is a short human-readable headline.
	Title string `json:"title"`

	// Description explains the triggering condition.
	Description string `json:"description"`

	// Region is the primary region of the triggering event.
	Region string `json:"region"`

	// Country is the primary country, when known.
	Country *string `json:"country,omitempty"`

	// Actors lists the actors relevant to this alert, in event order.
	Actors []string `json:"actors"`

	// ConfidenceScore is the confidence in the detection, in [0, 1].
	ConfidenceScore float64 `json:"confidence_score"`

	// ThreatScore is the weighted total score of the triggering event.
	ThreatScore float64 `json:"threat_score"`

	// Timestamp is the alert creation time. Immutable.
	Timestamp time.Time `json:"timestamp"`

	// SourceData is an opaque copy of the triggering event.
	SourceData EventData `json:"source_data"`

	// Metadata carries rule-specific evidence such as escalation deltas
	// or casualty counts.
	Metadata map[string]any `json:"metadata"`
}

// NewAlert creates an alert of the given type with a unique generated ID.
// Severity, scores and source data come from the triggering event; the
// caller fills in title, description and metadata.
func NewAlert(t AlertType, event EventData, score ThreatScoreResult) *Alert {
	now := time.Now().UTC()
	return &Alert{
		ID:              newAlertID(t, now),
		Type:            t,
		Severity:        score.Severity,
		Region:          event.Region,
		Country:         event.Country,
		Actors:          append([]string{}, event.Actors...),
		ConfidenceScore: event.Confidence,
		ThreatScore:     score.TotalScore,
		Timestamp:       now,
		SourceData:      event,
		Metadata:        map[string]any{},
	}
}

// newAlertID builds a unique alert identifier from the alert type, a
// nanosecond timestamp and a monotonic sequence number.
func newAlertID(t AlertType, now time.Time) string {
	return fmt.Sprintf("%s-%d-%06d", t, now.UnixNano(), alertSeq.Add(1)%1000000)
}

// AlertFilter provides filtering options for querying alerts.
type AlertFilter struct {
	Type     AlertType
	Severity Severity
	Region   string
	Limit    int
	Offset   int
}
