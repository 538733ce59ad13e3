// Package monitor implements the real-time threat monitor: a single
// consumer loop that scores queued events, evaluates detection rules and
// dispatches the resulting alerts, while maintaining an in-process alert
// history for statistics.
package monitor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"geowatch-go/internal/config"
	"geowatch-go/internal/domain"
	"geowatch-go/internal/metrics"
	"geowatch-go/internal/notify"
	"geowatch-go/internal/queue"
	"geowatch-go/internal/rules"
	"geowatch-go/internal/scoring"
	"geowatch-go/internal/store"
)

// Monitor owns the inbound event queue and the single consumer loop wiring
// scorer, rule engine and notification manager together.
//
// Concurrency model: any number of producers call AddEvent; exactly one
// consumer goroutine mutates the history. Statistics reads take a read lock
// so they are safe from any goroutine.
type Monitor struct {
	producer   queue.Producer
	consumer   queue.Consumer
	scorer     *scoring.Scorer
	generator  *rules.Generator
	notifier   *notify.Manager
	alertRepo  store.AlertRepository
	stateStore store.StateStore
	routing    config.RoutingConfig
	cfg        config.MonitorConfig
	logger     *slog.Logger

	// lifecycle state guarded by mu.
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	// history is the bounded alert ring, oldest first. The consumer loop
	// is the only writer; histMu guards concurrent statistics reads.
	histMu  sync.RWMutex
	history []domain.Alert
}

// Deps contains all dependencies required to create a Monitor.
type Deps struct {
	Producer   queue.Producer
	Consumer   queue.Consumer
	Scorer     *scoring.Scorer
	Generator  *rules.Generator
	Notifier   *notify.Manager
	AlertRepo  store.AlertRepository
	StateStore store.StateStore
	Routing    config.RoutingConfig
	Config     config.MonitorConfig
	Logger     *slog.Logger
}

// New creates a monitor in the Stopped state.
func New(deps Deps) *Monitor {
	return &Monitor{
		producer:   deps.Producer,
		consumer:   deps.Consumer,
		scorer:     deps.Scorer,
		generator:  deps.Generator,
		notifier:   deps.Notifier,
		alertRepo:  deps.AlertRepo,
		stateStore: deps.StateStore,
		routing:    deps.Routing,
		cfg:        deps.Config,
		logger:     deps.Logger,
	}
}

// Start transitions Stopped -> Running and spawns the consumer loop.
// Calling Start while already Running is a no-op, so at most one consumer
// loop is ever active per monitor.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		m.logger.Debug("monitor already running, ignoring Start")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true

	go func(done chan struct{}) {
		defer close(done)
		if err := m.consumer.Start(ctx, m.handleMessage); err != nil && ctx.Err() == nil {
			m.logger.Error("consumer loop exited unexpectedly", "error", err)
		}
	}(m.done)

	m.logger.Info("monitor started")
}

// Stop signals the consumer loop to exit and waits for it to drain the
// in-flight event. Safe to call multiple times; history is kept so a
// subsequent Start continues with the existing statistics.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	m.cancel()
	<-m.done
	m.running = false

	m.logger.Info("monitor stopped")
}

// Running reports whether the consumer loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// AddEvent normalizes and enqueues an event for processing. Safe for
// concurrent use by any number of producers. The event is owned by the
// monitor from this point on; with a full bounded queue the call blocks
// until space is available or the context is canceled, never dropping the
// event silently.
func (m *Monitor) AddEvent(ctx context.Context, event domain.EventData) error {
	event.Normalize(time.Now())

	internal := domain.InternalEvent{
		EventData:    event,
		PartitionKey: computePartitionKey(event.Region),
		ReceivedAt:   time.Now().UTC(),
	}

	payload, err := json.Marshal(internal)
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	msg := &queue.Message{
		Key:   []byte(internal.PartitionKey),
		Value: payload,
		Headers: map[string]string{
			"region": event.Region,
		},
	}

	if err := m.producer.Publish(ctx, msg); err != nil {
		return fmt.Errorf("failed to enqueue event: %w", err)
	}

	metrics.EventsReceivedTotal.Inc()
	m.observeQueueDepth()

	return nil
}

// handleMessage processes one queued event: score, evaluate rules, record
// and dispatch. Every step is wrapped so a bad event can never terminate
// the consumer loop; the returned error is always nil by design.
func (m *Monitor) handleMessage(ctx context.Context, msg *queue.Message) error {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			m.logger.Error("panic while processing event", "panic", rec)
			metrics.EventsProcessedTotal.WithLabelValues("error").Inc()
		}
	}()

	var event domain.InternalEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		m.logger.Error("failed to deserialize event", "error", err)
		metrics.EventsProcessedTotal.WithLabelValues("error").Inc()
		return nil
	}

	score := m.scorer.Score(event.EventData)
	metrics.ThreatScores.Observe(score.TotalScore)

	m.logger.Debug("event scored",
		"region", event.Region,
		"totalScore", score.TotalScore,
		"severity", score.Severity,
	)

	alerts := m.generator.Evaluate(event.EventData, score)

	if tlc := m.checkThreatLevelChange(ctx, event.EventData, score); tlc != nil {
		alerts = append(alerts, *tlc)
	}

	for i := range alerts {
		m.processAlert(ctx, &alerts[i])
	}

	metrics.EventsProcessedTotal.WithLabelValues("ok").Inc()
	metrics.EventProcessingLatency.Observe(time.Since(start).Seconds())
	m.observeQueueDepth()

	return nil
}

// checkThreatLevelChange compares the event's severity tier with the last
// tier recorded for its region and emits a threat level change alert on a
// transition. State store failures only disable the check for this event.
func (m *Monitor) checkThreatLevelChange(ctx context.Context, event domain.EventData, score domain.ThreatScoreResult) *domain.Alert {
	if event.Region == "" {
		return nil
	}

	previous, err := m.stateStore.GetRegionSeverity(ctx, event.Region)
	if err != nil {
		m.logger.Warn("failed to read region severity", "region", event.Region, "error", err)
		return nil
	}

	if err := m.stateStore.SetRegionSeverity(ctx, event.Region, score.Severity, m.cfg.RegionStateTTL); err != nil {
		m.logger.Warn("failed to record region severity", "region", event.Region, "error", err)
	}

	if previous == "" || previous == score.Severity {
		return nil
	}

	alert := domain.NewAlert(domain.AlertThreatLevelChange, event, score)
	direction := "decreased"
	if score.Severity.Rank() > previous.Rank() {
		direction = "increased"
	}
	alert.Title = fmt.Sprintf("Threat level %s in %s", direction, event.Region)
	alert.Description = fmt.Sprintf(
		"Severity tier for %s moved from %s to %s (threat score %.1f).",
		event.Region, previous, score.Severity, score.TotalScore,
	)
	alert.Metadata["previous_severity"] = string(previous)
	alert.Metadata["current_severity"] = string(score.Severity)
	return alert
}

// processAlert records one alert and dispatches it according to the
// severity routing table. Persistence and dispatch failures are logged and
// never propagate.
func (m *Monitor) processAlert(ctx context.Context, alert *domain.Alert) {
	m.appendHistory(*alert)
	metrics.AlertsGeneratedTotal.WithLabelValues(string(alert.Type), string(alert.Severity)).Inc()

	if err := m.alertRepo.Create(ctx, alert); err != nil {
		m.logger.Warn("failed to persist alert", "alertID", alert.ID, "error", err)
	}

	if m.cfg.DedupWindow > 0 {
		first, err := m.stateStore.MarkDispatched(ctx, alertFingerprint(alert), m.cfg.DedupWindow)
		if err != nil {
			// Fail open: a broken state store must not silence alerts.
			m.logger.Warn("dedup check failed, dispatching anyway", "alertID", alert.ID, "error", err)
		} else if !first {
			metrics.AlertsSuppressedTotal.WithLabelValues(string(alert.Type)).Inc()
			m.logger.Debug("suppressed duplicate alert dispatch",
				"alertID", alert.ID,
				"fingerprint", alertFingerprint(alert),
			)
			return
		}
	}

	// An in-flight dispatch is allowed to finish after Stop: detach from
	// the loop's cancellation signal so the last alert's delivery is not
	// aborted mid-request. The per-channel timeouts still bound the call.
	route := m.routing.For(alert.Severity)
	result := m.notifier.Dispatch(context.WithoutCancel(ctx), alert, route.Recipients, route.Channels)

	m.logger.Info("alert processed",
		"alertID", alert.ID,
		"type", alert.Type,
		"severity", alert.Severity,
		"region", alert.Region,
		"dispatched", result.Success,
	)
}

// appendHistory adds an alert to the bounded history ring, evicting the
// oldest entries beyond the configured limit.
func (m *Monitor) appendHistory(alert domain.Alert) {
	m.histMu.Lock()
	defer m.histMu.Unlock()

	m.history = append(m.history, alert)
	if limit := m.cfg.HistoryLimit; limit > 0 && len(m.history) > limit {
		m.history = m.history[len(m.history)-limit:]
	}
}

// alertFingerprint is the dedup key for an alert: one alert type per region
// inside the cooldown window.
func alertFingerprint(alert *domain.Alert) string {
	return string(alert.Type) + ":" + alert.Region
}

// computePartitionKey generates a deterministic queue partition key so all
// events for one region are consumed in publish order.
func computePartitionKey(region string) string {
	hash := sha256.Sum256([]byte("region:" + region))
	return hex.EncodeToString(hash[:8])
}

// observeQueueDepth updates the queue depth gauge when the producer can
// report its buffer length (the in-memory queue can, Kafka cannot).
func (m *Monitor) observeQueueDepth() {
	if q, ok := m.producer.(interface{ Len() int }); ok {
		metrics.QueueDepth.Set(float64(q.Len()))
	}
}
