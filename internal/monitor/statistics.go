package monitor

import (
	"time"

	"geowatch-go/internal/domain"
)

// Statistics summarizes the monitor's alert history. All fields are
// zero-valued (with empty, non-nil maps) when no alerts have been recorded.
type Statistics struct {
	TotalAlerts          int            `json:"total_alerts"`
	RecentAlerts24h      int            `json:"recent_alerts_24h"`
	SeverityDistribution map[string]int `json:"severity_distribution"`
	TypeDistribution     map[string]int `json:"type_distribution"`
	AverageThreatScore   float64        `json:"average_threat_score"`
	LastAlertTime        *time.Time     `json:"last_alert_time,omitempty"`
}

// GetStatistics computes summary statistics over the (bounded) alert
// history. Safe to call from any goroutine while the monitor is running.
func (m *Monitor) GetStatistics() Statistics {
	m.histMu.RLock()
	defer m.histMu.RUnlock()

	stats := Statistics{
		SeverityDistribution: make(map[string]int),
		TypeDistribution:     make(map[string]int),
	}

	if len(m.history) == 0 {
		return stats
	}

	cutoff := time.Now().Add(-24 * time.Hour)
	var scoreSum float64
	var last time.Time

	for i := range m.history {
		alert := &m.history[i]
		stats.TotalAlerts++
		stats.SeverityDistribution[string(alert.Severity)]++
		stats.TypeDistribution[string(alert.Type)]++
		scoreSum += alert.ThreatScore

		if !alert.Timestamp.Before(cutoff) {
			stats.RecentAlerts24h++
		}
		if alert.Timestamp.After(last) {
			last = alert.Timestamp
		}
	}

	stats.AverageThreatScore = scoreSum / float64(stats.TotalAlerts)
	stats.LastAlertTime = &last

	return stats
}

// History returns a copy of the current alert history, oldest first.
// Primarily useful for tests and embedded callers.
func (m *Monitor) History() []domain.Alert {
	m.histMu.RLock()
	defer m.histMu.RUnlock()

	out := make([]domain.Alert, len(m.history))
	copy(out, m.history)
	return out
}
