// Package config provides configuration loading and management for GeoWatch.
// It supports loading configuration from YAML files and applies defaults for
// any unset values.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"geowatch-go/internal/domain"
)

// StorageMode represents the storage backend mode.
type StorageMode string

const (
	// StorageModeMemory uses in-memory implementations for all storage.
	StorageModeMemory StorageMode = "memory"
	// StorageModeStorage uses real backends (Kafka, Redis, PostgreSQL).
	StorageModeStorage StorageMode = "storage"
)

// IsValid returns true if the storage mode is valid.
func (m StorageMode) IsValid() bool {
	return m == StorageModeMemory || m == StorageModeStorage
}

// Config represents the complete application configuration.
type Config struct {
	Storage       StorageConfig       `yaml:"storage"`
	Server        ServerConfig        `yaml:"server"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	Redis         RedisConfig         `yaml:"redis"`
	Postgres      PostgresConfig      `yaml:"postgres"`
	Logger        LoggerConfig        `yaml:"logger"`
	Monitor       MonitorConfig       `yaml:"monitor"`
	Scoring       ScoringConfig       `yaml:"scoring"`
	Rules         RulesConfig         `yaml:"rules"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Routing       RoutingConfig       `yaml:"routing"`
}

// StorageConfig holds the storage mode configuration.
type StorageConfig struct {
	Mode StorageMode `yaml:"mode"`
}

// UseMemory returns true if in-memory storage should be used.
func (c *StorageConfig) UseMemory() bool {
	return c.Mode == StorageModeMemory
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// Address returns the full server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// KafkaConfig holds Kafka connection and topic settings.
type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`
	Topic         string   `yaml:"topic"`
	ConsumerGroup string   `yaml:"consumer_group"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// RedisAddr returns the Redis address in host:port format.
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	SSLMode      string `yaml:"ssl_mode"`
	MaxOpenConns int32  `yaml:"max_open_conns"`
	MaxIdleConns int32  `yaml:"max_idle_conns"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// MonitorConfig holds settings for the real-time monitor.
type MonitorConfig struct {
	// QueueSize is the in-memory event queue buffer. Producers block once
	// the buffer is full; no event is silently dropped.
	QueueSize int `yaml:"queue_size"`

	// HistoryLimit bounds the in-process alert history ring. When the
	// limit is reached the oldest alerts are evicted.
	HistoryLimit int `yaml:"history_limit"`

	// DedupWindow is the cooldown during which alerts sharing a
	// type+region fingerprint are not re-dispatched. Zero disables
	// deduplication.
	DedupWindow time.Duration `yaml:"dedup_window"`

	// RegionStateTTL bounds how long a region's last severity tier is
	// remembered for threat-level-change detection.
	RegionStateTTL time.Duration `yaml:"region_state_ttl"`
}

// ScoringConfig holds the threat scorer's weight vector and the severity
// tier thresholds.
type ScoringConfig struct {
	// Weights maps component name to weight. Weights must sum to 1.0.
	Weights map[string]float64 `yaml:"weights"`

	// Thresholds are the lower bounds of the Medium, High and Critical
	// tiers. Scores below Medium classify as Low.
	Thresholds SeverityThresholds `yaml:"thresholds"`
}

// SeverityThresholds are the ascending tier boundaries applied to the
// weighted total score.
type SeverityThresholds struct {
	Medium   float64 `yaml:"medium"`
	High     float64 `yaml:"high"`
	Critical float64 `yaml:"critical"`
}

// SeverityFor classifies a total score against the thresholds.
func (t SeverityThresholds) SeverityFor(score float64) domain.Severity {
	switch {
	case score >= t.Critical:
		return domain.SeverityCritical
	case score >= t.High:
		return domain.SeverityHigh
	case score >= t.Medium:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

// RulesConfig holds per-rule thresholds for the alert generator.
// The defaults are sample values, not calibrated business logic.
type RulesConfig struct {
	Escalation   EscalationRuleConfig   `yaml:"escalation"`
	NewActor     NewActorRuleConfig     `yaml:"new_actor"`
	Humanitarian HumanitarianRuleConfig `yaml:"humanitarian"`
	Anomaly      AnomalyRuleConfig      `yaml:"anomaly"`
	Sentiment    SentimentRuleConfig    `yaml:"sentiment"`
}

// EscalationRuleConfig configures the conflict escalation rule.
type EscalationRuleConfig struct {
	MinIntensityIncrease float64 `yaml:"min_intensity_increase"`
	MinThreatScore       float64 `yaml:"min_threat_score"`
}

// NewActorRuleConfig configures the new actor detection rule.
type NewActorRuleConfig struct {
	MinConfidence float64 `yaml:"min_confidence"`
}

// HumanitarianRuleConfig configures the humanitarian crisis rule.
type HumanitarianRuleConfig struct {
	MinCasualties  int     `yaml:"min_casualties"`
	MinDisplaced   int     `yaml:"min_displaced"`
	MinThreatScore float64 `yaml:"min_threat_score"`
}

// AnomalyRuleConfig configures the anomaly detection rule.
type AnomalyRuleConfig struct {
	MinAnomalyScore float64 `yaml:"min_anomaly_score"`
}

// SentimentRuleConfig configures the sentiment shift rule. MinChange is a
// negative threshold: only shifts at or below it fire.
type SentimentRuleConfig struct {
	MinChange float64 `yaml:"min_change"`
}

// NotificationsConfig holds per-channel delivery settings.
type NotificationsConfig struct {
	Email   EmailConfig   `yaml:"email"`
	Webhook WebhookConfig `yaml:"webhook"`
	SMS     SMSConfig     `yaml:"sms"`
}

// EmailConfig holds SMTP delivery settings.
type EmailConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	FromAddress string `yaml:"from_address"`
	FromName    string `yaml:"from_name"`
}

// SMTPAddr returns the SMTP server address in host:port format.
func (c *EmailConfig) SMTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WebhookConfig holds webhook delivery settings.
type WebhookConfig struct {
	URLs       []string      `yaml:"urls"`
	Timeout    time.Duration `yaml:"timeout"`
	AuthHeader string        `yaml:"auth_header"`
	AuthToken  string        `yaml:"auth_token"`
}

// SMSConfig holds SMS delivery settings. The channel is a stub until a real
// provider is integrated.
type SMSConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Route pairs the recipients and channels used for one severity tier.
type Route struct {
	Recipients []string `yaml:"recipients"`
	Channels   []string `yaml:"channels"`
}

// RoutingConfig maps severity tiers to notification routes.
type RoutingConfig struct {
	Critical Route `yaml:"critical"`
	High     Route `yaml:"high"`
	Medium   Route `yaml:"medium"`
	Low      Route `yaml:"low"`
}

// For returns the route for a severity tier.
func (r *RoutingConfig) For(sev domain.Severity) Route {
	switch sev {
	case domain.SeverityCritical:
		return r.Critical
	case domain.SeverityHigh:
		return r.High
	case domain.SeverityMedium:
		return r.Medium
	default:
		return r.Low
	}
}

// Load reads configuration from the specified YAML file path.
// Returns an error if the file cannot be read, parsed or validated.
func Load(path string) (*Config, error) {
	// Clean the path to prevent path traversal attacks
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration with all defaults applied, suitable for
// embedding GeoWatch as a library without a config file.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults sets sensible default values for configuration fields that
// are not explicitly set.
func ApplyDefaults(cfg *Config) {
	if cfg.Storage.Mode == "" {
		cfg.Storage.Mode = StorageModeMemory
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 120 * time.Second
	}

	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{"localhost:9092"}
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "geowatch-events"
	}
	if cfg.Kafka.ConsumerGroup == "" {
		cfg.Kafka.ConsumerGroup = "geowatch-monitor"
	}

	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}

	if cfg.Postgres.Host == "" {
		cfg.Postgres.Host = "localhost"
	}
	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = 5432
	}
	if cfg.Postgres.SSLMode == "" {
		cfg.Postgres.SSLMode = "disable"
	}
	if cfg.Postgres.MaxOpenConns == 0 {
		cfg.Postgres.MaxOpenConns = 25
	}
	if cfg.Postgres.MaxIdleConns == 0 {
		cfg.Postgres.MaxIdleConns = 5
	}

	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Logger.Format == "" {
		cfg.Logger.Format = "json"
	}

	if cfg.Monitor.QueueSize == 0 {
		cfg.Monitor.QueueSize = 10000
	}
	if cfg.Monitor.HistoryLimit == 0 {
		cfg.Monitor.HistoryLimit = 10000
	}
	if cfg.Monitor.RegionStateTTL == 0 {
		cfg.Monitor.RegionStateTTL = 24 * time.Hour
	}

	if len(cfg.Scoring.Weights) == 0 {
		cfg.Scoring.Weights = DefaultWeights()
	}
	if cfg.Scoring.Thresholds == (SeverityThresholds{}) {
		cfg.Scoring.Thresholds = SeverityThresholds{Medium: 50, High: 70, Critical: 85}
	}

	if cfg.Rules.Escalation == (EscalationRuleConfig{}) {
		cfg.Rules.Escalation = EscalationRuleConfig{MinIntensityIncrease: 2.0, MinThreatScore: 60}
	}
	if cfg.Rules.NewActor == (NewActorRuleConfig{}) {
		cfg.Rules.NewActor = NewActorRuleConfig{MinConfidence: 0.7}
	}
	if cfg.Rules.Humanitarian == (HumanitarianRuleConfig{}) {
		cfg.Rules.Humanitarian = HumanitarianRuleConfig{MinCasualties: 10, MinDisplaced: 1000, MinThreatScore: 70}
	}
	if cfg.Rules.Anomaly == (AnomalyRuleConfig{}) {
		cfg.Rules.Anomaly = AnomalyRuleConfig{MinAnomalyScore: 0.7}
	}
	if cfg.Rules.Sentiment == (SentimentRuleConfig{}) {
		cfg.Rules.Sentiment = SentimentRuleConfig{MinChange: -0.3}
	}

	if cfg.Notifications.Webhook.Timeout == 0 {
		cfg.Notifications.Webhook.Timeout = 30 * time.Second
	}
	if cfg.Notifications.Email.Port == 0 {
		cfg.Notifications.Email.Port = 587
	}

	if len(cfg.Routing.Critical.Recipients) == 0 && len(cfg.Routing.Critical.Channels) == 0 {
		cfg.Routing.Critical = Route{
			Recipients: []string{"admin", "emergency"},
			Channels:   []string{"email", "webhook", "sms"},
		}
	}
	if len(cfg.Routing.High.Recipients) == 0 && len(cfg.Routing.High.Channels) == 0 {
		cfg.Routing.High = Route{
			Recipients: []string{"admin", "analyst"},
			Channels:   []string{"email", "webhook"},
		}
	}
	if len(cfg.Routing.Medium.Recipients) == 0 && len(cfg.Routing.Medium.Channels) == 0 {
		cfg.Routing.Medium = Route{
			Recipients: []string{"analyst"},
			Channels:   []string{"email"},
		}
	}
	if len(cfg.Routing.Low.Recipients) == 0 && len(cfg.Routing.Low.Channels) == 0 {
		cfg.Routing.Low = Route{
			Recipients: []string{"analyst"},
			Channels:   []string{"email"},
		}
	}
}

// Component names recognized by the scorer's weight vector.
const (
	ComponentConflictIntensity   = "conflict_intensity"
	ComponentHumanitarianImpact  = "humanitarian_impact"
	ComponentActorInvolvement    = "actor_involvement"
	ComponentGeographicalSpread  = "geographical_spread"
	ComponentTemporalUrgency     = "temporal_urgency"
	ComponentSentimentNegativity = "sentiment_negativity"
	ComponentAnomalyStrength     = "anomaly_strength"
)

// DefaultWeights returns the reference weight vector. It sums to 1.0.
func DefaultWeights() map[string]float64 {
	return map[string]float64{
		ComponentConflictIntensity:   0.25,
		ComponentHumanitarianImpact:  0.20,
		ComponentActorInvolvement:    0.15,
		ComponentGeographicalSpread:  0.10,
		ComponentTemporalUrgency:     0.15,
		ComponentSentimentNegativity: 0.10,
		ComponentAnomalyStrength:     0.05,
	}
}

// Validation errors.
var (
	ErrWeightsSum           = fmt.Errorf("scoring weights must sum to 1.0")
	ErrThresholdsNotOrdered = fmt.Errorf("severity thresholds must be strictly ascending")
)

// Validate checks cross-field constraints that defaults alone cannot
// guarantee: the weight vector must sum to 1.0 and the severity thresholds
// must be strictly ascending so tiers stay monotonic and non-overlapping.
func (c *Config) Validate() error {
	var sum float64
	for _, w := range c.Scoring.Weights {
		if w < 0 {
			return fmt.Errorf("%w: negative weight %.3f", ErrWeightsSum, w)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > 0.001 {
		return fmt.Errorf("%w: got %.3f", ErrWeightsSum, sum)
	}

	t := c.Scoring.Thresholds
	if !(t.Medium < t.High && t.High < t.Critical) {
		return fmt.Errorf("%w: medium=%.1f high=%.1f critical=%.1f",
			ErrThresholdsNotOrdered, t.Medium, t.High, t.Critical)
	}

	if !c.Storage.Mode.IsValid() {
		return fmt.Errorf("unknown storage mode %q", c.Storage.Mode)
	}

	return nil
}
