package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"geowatch-go/internal/api"
	"geowatch-go/internal/config"
	"geowatch-go/internal/monitor"
	"geowatch-go/internal/notify"
	memoryqueue "geowatch-go/internal/queue/memory"
	"geowatch-go/internal/rules"
	"geowatch-go/internal/scoring"
	memorystor "geowatch-go/internal/store/memory"
)

// capturedWebhook records one webhook delivery for assertions.
type capturedWebhook struct {
	Alert struct {
		ID          string  `json:"id"`
		Type        string  `json:"alert_type"`
		Severity    string  `json:"severity"`
		Region      string  `json:"region"`
		ThreatScore float64 `json:"threat_score"`
	} `json:"alert"`
	Recipients []string `json:"recipients"`
}

// webhookSink is an httptest-backed webhook receiver.
type webhookSink struct {
	mu       sync.Mutex
	received []capturedWebhook
	server   *httptest.Server
}

func newWebhookSink() *webhookSink {
	sink := &webhookSink{}
	sink.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload capturedWebhook
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		sink.mu.Lock()
		sink.received = append(sink.received, payload)
		sink.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	return sink
}

func (s *webhookSink) deliveries() []capturedWebhook {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]capturedWebhook, len(s.received))
	copy(out, s.received)
	return out
}

// testStack is a fully wired in-memory GeoWatch instance.
type testStack struct {
	server  *api.Server
	monitor *monitor.Monitor
	queue   *memoryqueue.Queue
	repo    *memorystor.AlertRepository
	sink    *webhookSink
}

func newTestStack() *testStack {
	cfg := config.Default()

	sink := newWebhookSink()
	cfg.Notifications.Webhook.URLs = []string{sink.server.URL}

	// Route every tier through the webhook so the sink observes all
	// dispatches regardless of severity.
	route := config.Route{Recipients: []string{"analyst"}, Channels: []string{"webhook"}}
	cfg.Routing = config.RoutingConfig{Critical: route, High: route, Medium: route, Low: route}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	q := memoryqueue.NewQueue(cfg.Monitor.QueueSize)
	repo := memorystor.NewAlertRepository()

	mon := monitor.New(monitor.Deps{
		Producer:   q,
		Consumer:   q,
		Scorer:     scoring.NewScorer(cfg.Scoring),
		Generator:  rules.NewGenerator(cfg.Rules, logger),
		Notifier:   notify.NewManager(cfg.Notifications, logger),
		AlertRepo:  repo,
		StateStore: memorystor.NewStateStore(),
		Routing:    cfg.Routing,
		Config:     cfg.Monitor,
		Logger:     logger,
	})

	server := api.NewServer(api.ServerDeps{
		Config:       &cfg.Server,
		Logger:       logger,
		EventHandler: api.NewEventHandler(mon, logger),
		AlertHandler: api.NewAlertHandler(repo, logger),
	})

	return &testStack{server: server, monitor: mon, queue: q, repo: repo, sink: sink}
}

func (s *testStack) close() {
	s.monitor.Stop()
	s.queue.Close()
	s.sink.server.Close()
}

func (s *testStack) request(method, path string, body interface{}) *http.Response {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, path, reader)
	Expect(err).NotTo(HaveOccurred())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.server.Test(req, 5000)
	Expect(err).NotTo(HaveOccurred())
	return resp
}

func parseResponse(resp *http.Response, target interface{}) {
	defer resp.Body.Close()
	Expect(json.NewDecoder(resp.Body).Decode(target)).To(Succeed())
}

var _ = Describe("Threat Monitoring Pipeline", func() {
	var stack *testStack

	BeforeEach(func() {
		stack = newTestStack()
		stack.monitor.Start()
	})

	AfterEach(func() {
		stack.close()
	})

	Describe("Health Check", func() {
		It("should return healthy status", func() {
			resp := stack.request("GET", "/healthz", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var result map[string]interface{}
			parseResponse(resp, &result)
			data := result["data"].(map[string]interface{})
			Expect(data["status"]).To(Equal("healthy"))
		})
	})

	Describe("Event Ingestion", func() {
		It("should accept an event and generate an alert end to end", func() {
			payload := map[string]interface{}{
				"region":        "Sahel",
				"anomaly_score": 0.9,
			}

			resp := stack.request("POST", "/v1/events", payload)
			Expect(resp.StatusCode).To(Equal(http.StatusAccepted))

			// The alert shows up in the repository once the consumer
			// loop has processed the event.
			var alerts []map[string]interface{}
			Eventually(func() int {
				listResp := stack.request("GET", "/v1/alerts", nil)
				if listResp.StatusCode != http.StatusOK {
					return 0
				}
				var result struct {
					Data []map[string]interface{} `json:"data"`
				}
				parseResponse(listResp, &result)
				alerts = result.Data
				return len(alerts)
			}, 5*time.Second, 50*time.Millisecond).Should(Equal(1))

			Expect(alerts[0]["alert_type"]).To(Equal("anomaly_detected"))
			Expect(alerts[0]["severity"]).To(Equal("low"))
			Expect(alerts[0]["region"]).To(Equal("Sahel"))
		})

		It("should reject a malformed body", func() {
			req, err := http.NewRequest("POST", "/v1/events", bytes.NewReader([]byte("{not json")))
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Content-Type", "application/json")

			resp, err := stack.server.Test(req, 5000)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("Alert Queries", func() {
		It("should fetch a single alert by ID and filter by type", func() {
			stack.request("POST", "/v1/events", map[string]interface{}{
				"region":        "Balkans",
				"anomaly_score": 0.85,
			})

			var alertID string
			Eventually(func() string {
				resp := stack.request("GET", "/v1/alerts?type=anomaly_detected&region=Balkans", nil)
				if resp.StatusCode != http.StatusOK {
					return ""
				}
				var result struct {
					Data []map[string]interface{} `json:"data"`
				}
				parseResponse(resp, &result)
				if len(result.Data) == 0 {
					return ""
				}
				alertID = result.Data[0]["id"].(string)
				return alertID
			}, 5*time.Second, 50*time.Millisecond).ShouldNot(BeEmpty())

			resp := stack.request("GET", "/v1/alerts/"+alertID, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var result map[string]interface{}
			parseResponse(resp, &result)
			data := result["data"].(map[string]interface{})
			Expect(data["id"]).To(Equal(alertID))
			Expect(data["region"]).To(Equal("Balkans"))
		})

		It("should return 404 for an unknown alert", func() {
			resp := stack.request("GET", "/v1/alerts/no-such-alert", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("should reject unknown filter values", func() {
			resp := stack.request("GET", "/v1/alerts?severity=extreme", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("Webhook Dispatch", func() {
		It("should deliver generated alerts to the configured webhook", func() {
			stack.request("POST", "/v1/events", map[string]interface{}{
				"region":           "Sahel",
				"casualties":       500,
				"displaced_people": 20000,
			})

			Eventually(func() int {
				return len(stack.sink.deliveries())
			}, 5*time.Second, 50*time.Millisecond).Should(BeNumerically(">=", 1))

			delivery := stack.sink.deliveries()[0]
			Expect(delivery.Alert.Type).To(Equal("humanitarian_crisis"))
			Expect(delivery.Alert.Region).To(Equal("Sahel"))
			Expect(delivery.Recipients).To(ContainElement("analyst"))
		})
	})

	Describe("Statistics", func() {
		It("should aggregate alert history across events", func() {
			for _, region := range []string{"Sahel", "Balkans", "Caucasus"} {
				stack.request("POST", "/v1/events", map[string]interface{}{
					"region":        region,
					"anomaly_score": 0.9,
				})
			}

			var stats map[string]interface{}
			Eventually(func() float64 {
				resp := stack.request("GET", "/v1/statistics", nil)
				if resp.StatusCode != http.StatusOK {
					return 0
				}
				var result map[string]interface{}
				parseResponse(resp, &result)
				stats = result["data"].(map[string]interface{})
				return stats["total_alerts"].(float64)
			}, 5*time.Second, 50*time.Millisecond).Should(Equal(float64(3)))

			types := stats["type_distribution"].(map[string]interface{})
			Expect(types["anomaly_detected"]).To(Equal(float64(3)))
			Expect(stats["average_threat_score"].(float64)).To(BeNumerically(">", 0))
			Expect(stats["last_alert_time"]).NotTo(BeNil())
		})
	})
})
