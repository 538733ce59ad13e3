package monitor

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"geowatch-go/internal/config"
	"geowatch-go/internal/domain"
	"geowatch-go/internal/notify"
	"geowatch-go/internal/queue"
	memoryqueue "geowatch-go/internal/queue/memory"
	"geowatch-go/internal/rules"
	"geowatch-go/internal/scoring"
	memorystor "geowatch-go/internal/store/memory"
)

// recordingChannel counts dispatches so tests can observe notification flow.
type recordingChannel struct {
	mu       sync.Mutex
	alerts   []domain.Alert
	succeeds bool
}

func (c *recordingChannel) Name() string { return "record" }

func (c *recordingChannel) Send(ctx context.Context, alert *domain.Alert, recipients []string) notify.ChannelResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, *alert)
	return notify.ChannelResult{Success: c.succeeds, Sent: 1, Attempted: 1}
}

func (c *recordingChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.alerts)
}

type testHarness struct {
	monitor *Monitor
	queue   *memoryqueue.Queue
	repo    *memorystor.AlertRepository
	channel *recordingChannel
}

func newTestMonitor(t *testing.T, mutate func(cfg *config.Config)) *testHarness {
	t.Helper()

	cfg := config.Default()
	// Route everything through the recording channel so no real delivery
	// is attempted.
	route := config.Route{Recipients: []string{"tester"}, Channels: []string{"record"}}
	cfg.Routing = config.RoutingConfig{Critical: route, High: route, Medium: route, Low: route}
	if mutate != nil {
		mutate(cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	q := memoryqueue.NewQueue(cfg.Monitor.QueueSize)
	repo := memorystor.NewAlertRepository()
	channel := &recordingChannel{succeeds: true}

	notifier := notify.NewManager(cfg.Notifications, logger)
	notifier.Register(channel)

	mon := New(Deps{
		Producer:   q,
		Consumer:   q,
		Scorer:     scoring.NewScorer(cfg.Scoring),
		Generator:  rules.NewGenerator(cfg.Rules, logger),
		Notifier:   notifier,
		AlertRepo:  repo,
		StateStore: memorystor.NewStateStore(),
		Routing:    cfg.Routing,
		Config:     cfg.Monitor,
		Logger:     logger,
	})

	t.Cleanup(func() {
		mon.Stop()
		q.Close()
	})

	return &testHarness{monitor: mon, queue: q, repo: repo, channel: channel}
}

// anomalyEvent triggers exactly one anomaly alert and scores Low.
func anomalyEvent(region string) domain.EventData {
	return domain.EventData{
		Region:       region,
		AnomalyScore: 0.9,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestMonitor_ProcessesEvents(t *testing.T) {
	h := newTestMonitor(t, nil)
	h.monitor.Start()

	if err := h.monitor.AddEvent(context.Background(), anomalyEvent("Sahel")); err != nil {
		t.Fatalf("AddEvent() error = %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return h.monitor.GetStatistics().TotalAlerts == 1
	}, "event was not processed into an alert")

	stats := h.monitor.GetStatistics()
	if stats.TypeDistribution[string(domain.AlertAnomalyDetected)] != 1 {
		t.Errorf("TypeDistribution = %v, want 1 anomaly alert", stats.TypeDistribution)
	}
	if stats.SeverityDistribution[string(domain.SeverityLow)] != 1 {
		t.Errorf("SeverityDistribution = %v, want 1 low alert", stats.SeverityDistribution)
	}
	if stats.LastAlertTime == nil {
		t.Error("LastAlertTime should be set")
	}

	// The alert is also persisted and dispatched.
	alerts, err := h.repo.List(context.Background(), domain.AlertFilter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(alerts) != 1 {
		t.Errorf("persisted alerts = %v, want 1", len(alerts))
	}
	if h.channel.count() != 1 {
		t.Errorf("dispatched alerts = %v, want 1", h.channel.count())
	}
}

func TestMonitor_NoEventLossUnderConcurrentProducers(t *testing.T) {
	h := newTestMonitor(t, nil)
	h.monitor.Start()

	const producers = 8
	const perProducer = 25

	var wg sync.WaitGroup
	var failed atomic.Bool
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				if err := h.monitor.AddEvent(context.Background(), anomalyEvent("Sahel")); err != nil {
					failed.Store(true)
					return
				}
			}
		}()
	}
	wg.Wait()

	if failed.Load() {
		t.Fatal("AddEvent failed under concurrency")
	}

	want := producers * perProducer
	waitFor(t, 5*time.Second, func() bool {
		return h.monitor.GetStatistics().TotalAlerts == want
	}, "not every concurrently produced event became an alert")
}

func TestMonitor_StartStopIdempotent(t *testing.T) {
	h := newTestMonitor(t, nil)

	if h.monitor.Running() {
		t.Error("Running() = true before Start")
	}

	h.monitor.Start()
	h.monitor.Start() // second Start is a no-op
	if !h.monitor.Running() {
		t.Error("Running() = false after Start")
	}

	h.monitor.Stop()
	h.monitor.Stop() // second Stop is a no-op
	if h.monitor.Running() {
		t.Error("Running() = true after Stop")
	}
}

func TestMonitor_HistorySurvivesRestart(t *testing.T) {
	h := newTestMonitor(t, nil)
	h.monitor.Start()

	h.monitor.AddEvent(context.Background(), anomalyEvent("Sahel"))
	waitFor(t, 2*time.Second, func() bool {
		return h.monitor.GetStatistics().TotalAlerts == 1
	}, "first event was not processed")

	h.monitor.Stop()
	h.monitor.Start()

	h.monitor.AddEvent(context.Background(), anomalyEvent("Balkans"))
	waitFor(t, 2*time.Second, func() bool {
		return h.monitor.GetStatistics().TotalAlerts == 2
	}, "statistics should accumulate across restarts")
}

func TestMonitor_EmptyStatistics(t *testing.T) {
	h := newTestMonitor(t, nil)

	stats := h.monitor.GetStatistics()
	if stats.TotalAlerts != 0 {
		t.Errorf("TotalAlerts = %v, want 0", stats.TotalAlerts)
	}
	if stats.AverageThreatScore != 0 {
		t.Errorf("AverageThreatScore = %v, want 0", stats.AverageThreatScore)
	}
	if stats.SeverityDistribution == nil || stats.TypeDistribution == nil {
		t.Error("distribution maps should be non-nil even when empty")
	}
	if stats.LastAlertTime != nil {
		t.Errorf("LastAlertTime = %v, want nil", stats.LastAlertTime)
	}
}

func TestMonitor_HistoryRingEvictsOldest(t *testing.T) {
	h := newTestMonitor(t, func(cfg *config.Config) {
		cfg.Monitor.HistoryLimit = 3
	})
	h.monitor.Start()

	for i := 0; i < 5; i++ {
		h.monitor.AddEvent(context.Background(), anomalyEvent("Sahel"))
	}

	waitFor(t, 2*time.Second, func() bool {
		return h.channel.count() == 5
	}, "not every event was dispatched")

	stats := h.monitor.GetStatistics()
	if stats.TotalAlerts != 3 {
		t.Errorf("TotalAlerts = %v, want bounded history of 3", stats.TotalAlerts)
	}
}

func TestMonitor_ThreatLevelChangeAlert(t *testing.T) {
	h := newTestMonitor(t, nil)
	h.monitor.Start()
	ctx := context.Background()

	// First event establishes the region's Low tier; no transition alert.
	h.monitor.AddEvent(ctx, anomalyEvent("Sahel"))
	waitFor(t, 2*time.Second, func() bool {
		return h.monitor.GetStatistics().TotalAlerts == 1
	}, "first event was not processed")

	// A much hotter event moves the region to a higher tier.
	h.monitor.AddEvent(ctx, domain.EventData{
		Region:            "Sahel",
		ConflictIntensity: 9,
		PreviousIntensity: 2,
		Casualties:        5000,
		DisplacedPeople:   200000,
		SentimentScore:    -1,
		AnomalyScore:      0.95,
		Timestamp:         time.Now().UTC(),
	})

	waitFor(t, 2*time.Second, func() bool {
		stats := h.monitor.GetStatistics()
		return stats.TypeDistribution[string(domain.AlertThreatLevelChange)] == 1
	}, "expected a threat level change alert after the tier transition")

	var tlc *domain.Alert
	for _, a := range h.monitor.History() {
		if a.Type == domain.AlertThreatLevelChange {
			found := a
			tlc = &found
		}
	}
	if tlc == nil {
		t.Fatal("threat level change alert missing from history")
	}
	if tlc.Metadata["previous_severity"] != string(domain.SeverityLow) {
		t.Errorf("previous_severity = %v, want low", tlc.Metadata["previous_severity"])
	}
	if tlc.Metadata["current_severity"] == string(domain.SeverityLow) {
		t.Error("current_severity should have moved above low")
	}
}

func TestMonitor_SameTierEmitsNoChangeAlert(t *testing.T) {
	h := newTestMonitor(t, nil)
	h.monitor.Start()
	ctx := context.Background()

	h.monitor.AddEvent(ctx, anomalyEvent("Sahel"))
	h.monitor.AddEvent(ctx, anomalyEvent("Sahel"))

	waitFor(t, 2*time.Second, func() bool {
		return h.monitor.GetStatistics().TotalAlerts == 2
	}, "events were not processed")

	stats := h.monitor.GetStatistics()
	if stats.TypeDistribution[string(domain.AlertThreatLevelChange)] != 0 {
		t.Error("stable severity tier should not emit a threat level change alert")
	}
}

func TestMonitor_DedupSuppressesRepeatDispatch(t *testing.T) {
	h := newTestMonitor(t, func(cfg *config.Config) {
		cfg.Monitor.DedupWindow = time.Minute
	})
	h.monitor.Start()
	ctx := context.Background()

	h.monitor.AddEvent(ctx, anomalyEvent("Sahel"))
	h.monitor.AddEvent(ctx, anomalyEvent("Sahel"))

	waitFor(t, 2*time.Second, func() bool {
		return h.monitor.GetStatistics().TotalAlerts == 2
	}, "events were not processed")

	// Both alerts are recorded, but only the first is dispatched inside
	// the dedup window.
	if got := h.channel.count(); got != 1 {
		t.Errorf("dispatched alerts = %v, want 1 (second suppressed)", got)
	}
}

func TestMonitor_DedupDisabledByDefault(t *testing.T) {
	h := newTestMonitor(t, nil)
	h.monitor.Start()
	ctx := context.Background()

	h.monitor.AddEvent(ctx, anomalyEvent("Sahel"))
	h.monitor.AddEvent(ctx, anomalyEvent("Sahel"))

	waitFor(t, 2*time.Second, func() bool {
		return h.channel.count() == 2
	}, "with dedup disabled both alerts should be dispatched")
}

func TestMonitor_MalformedMessageDoesNotKillConsumer(t *testing.T) {
	h := newTestMonitor(t, nil)
	h.monitor.Start()
	ctx := context.Background()

	// Inject garbage directly into the queue, bypassing AddEvent.
	if err := h.queue.Publish(ctx, &queue.Message{Value: []byte("not json")}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	h.monitor.AddEvent(ctx, anomalyEvent("Sahel"))

	waitFor(t, 2*time.Second, func() bool {
		return h.monitor.GetStatistics().TotalAlerts == 1
	}, "consumer should survive a malformed message and keep processing")
}

// slowChannel blocks in Send long enough for Stop to land mid-dispatch and
// records the context state observed when the send completes.
type slowChannel struct {
	started chan struct{}
	mu      sync.Mutex
	ctxErr  error
	sends   int
}

func (c *slowChannel) Name() string { return "slow" }

func (c *slowChannel) Send(ctx context.Context, alert *domain.Alert, recipients []string) notify.ChannelResult {
	close(c.started)
	time.Sleep(200 * time.Millisecond)
	c.mu.Lock()
	c.ctxErr = ctx.Err()
	c.sends++
	c.mu.Unlock()
	return notify.ChannelResult{Success: true, Sent: 1, Attempted: 1}
}

func TestMonitor_StopLetsInFlightDispatchFinish(t *testing.T) {
	cfg := config.Default()
	route := config.Route{Recipients: []string{"tester"}, Channels: []string{"slow"}}
	cfg.Routing = config.RoutingConfig{Critical: route, High: route, Medium: route, Low: route}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	q := memoryqueue.NewQueue(cfg.Monitor.QueueSize)
	channel := &slowChannel{started: make(chan struct{})}

	notifier := notify.NewManager(cfg.Notifications, logger)
	notifier.Register(channel)

	mon := New(Deps{
		Producer:   q,
		Consumer:   q,
		Scorer:     scoring.NewScorer(cfg.Scoring),
		Generator:  rules.NewGenerator(cfg.Rules, logger),
		Notifier:   notifier,
		AlertRepo:  memorystor.NewAlertRepository(),
		StateStore: memorystor.NewStateStore(),
		Routing:    cfg.Routing,
		Config:     cfg.Monitor,
		Logger:     logger,
	})
	t.Cleanup(func() {
		mon.Stop()
		q.Close()
	})

	mon.Start()
	if err := mon.AddEvent(context.Background(), anomalyEvent("Sahel")); err != nil {
		t.Fatalf("AddEvent() error = %v", err)
	}

	select {
	case <-channel.started:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch never started")
	}

	// Stop lands while the notification is in flight; it must wait for the
	// current event and never abort the delivery.
	mon.Stop()

	channel.mu.Lock()
	defer channel.mu.Unlock()
	if channel.sends != 1 {
		t.Fatalf("completed sends = %v, want 1", channel.sends)
	}
	if channel.ctxErr != nil {
		t.Errorf("dispatch context error = %v, want nil after Stop", channel.ctxErr)
	}
}

func TestMonitor_AverageThreatScore(t *testing.T) {
	h := newTestMonitor(t, nil)
	h.monitor.Start()
	ctx := context.Background()

	h.monitor.AddEvent(ctx, anomalyEvent("Sahel"))
	h.monitor.AddEvent(ctx, anomalyEvent("Balkans"))

	waitFor(t, 2*time.Second, func() bool {
		return h.monitor.GetStatistics().TotalAlerts == 2
	}, "events were not processed")

	stats := h.monitor.GetStatistics()
	if stats.AverageThreatScore <= 0 {
		t.Errorf("AverageThreatScore = %v, want > 0", stats.AverageThreatScore)
	}
	if stats.RecentAlerts24h != 2 {
		t.Errorf("RecentAlerts24h = %v, want 2", stats.RecentAlerts24h)
	}
}
