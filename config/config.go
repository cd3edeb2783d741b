package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	CTIFlow CTIFlowConfig `yaml:"ctiflow"`
}

// CTIFlowConfig is the project configuration.
type CTIFlowConfig struct {
	Input       InputConfig       `yaml:"input"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Extraction  ExtractionConfig  `yaml:"extraction"`
	Correlation CorrelationConfig `yaml:"correlation"`
	Scoring     ScoringConfig     `yaml:"scoring"`
	Rules       RulesConfig       `yaml:"rules"`
	Output      OutputConfig      `yaml:"output"`
	Storage     StorageConfig     `yaml:"storage"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// InputConfig controls the normalized-events reader.
type InputConfig struct {
	Path string `yaml:"path"`
}

// PipelineConfig controls run behavior.
type PipelineConfig struct {
	Workers int `yaml:"workers"`
}

// ExtractionConfig controls IOC extraction.
type ExtractionConfig struct {
	MinConfidence   float64  `yaml:"min_confidence"`
	AllowPrivateIPs bool     `yaml:"allow_private_ips"`
	Denylist        []string `yaml:"denylist"`
	Allowlist       []string `yaml:"allowlist"`
}

// CorrelationConfig controls campaign formation.
type CorrelationConfig struct {
	Window                 time.Duration `yaml:"window"`
	MinSharedIndicators    int           `yaml:"min_shared_indicators"`
	MinCampaignSize        int           `yaml:"min_campaign_size"`
	MissingTimestampPolicy string        `yaml:"missing_timestamp_policy"`
}

// ScoringConfig controls severity scoring.
type ScoringConfig struct {
	ClassifierWeight float64 `yaml:"classifier_weight"`
	DensityWeight    float64 `yaml:"density_weight"`
	CampaignBonus    float64 `yaml:"campaign_bonus"`
	HighThreshold    float64 `yaml:"high_threshold"`
	MediumThreshold  float64 `yaml:"medium_threshold"`
	LowThreshold     float64 `yaml:"low_threshold"`
	DensityCap       int     `yaml:"density_cap"`
}

// RulesConfig controls Sigma tactic tagging.
type RulesConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// OutputConfig controls run artifacts and the optional ClickHouse sink.
type OutputConfig struct {
	Dir        string                 `yaml:"dir"`
	ClickHouse ClickHouseOutputConfig `yaml:"clickhouse"`
}

// ClickHouseOutputConfig config for ClickHouse HTTP JSONEachRow writes.
type ClickHouseOutputConfig struct {
	Enabled  bool              `yaml:"enabled"`
	URL      string            `yaml:"url"`
	Database string            `yaml:"database"`
	Table    string            `yaml:"table"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	Timeout  time.Duration     `yaml:"timeout"`
	Headers  map[string]string `yaml:"headers"`
}

// StorageConfig controls the optional Redis run-state store.
type StorageConfig struct {
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig controls Redis persistence.
type RedisConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
}

// MetricsConfig controls the Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ApplyDefaults fills unset fields with production defaults.
func (c *Config) ApplyDefaults() {
	p := &c.CTIFlow

	if p.Input.Path == "" {
		p.Input.Path = "input/events.jsonl"
	}
	if p.Pipeline.Workers <= 0 {
		p.Pipeline.Workers = 8
	}

	if p.Correlation.Window == 0 {
		p.Correlation.Window = 14 * 24 * time.Hour
	}
	if p.Correlation.MinSharedIndicators <= 0 {
		p.Correlation.MinSharedIndicators = 1
	}
	if p.Correlation.MinCampaignSize <= 0 {
		p.Correlation.MinCampaignSize = 2
	}
	if p.Correlation.MissingTimestampPolicy == "" {
		p.Correlation.MissingTimestampPolicy = "match_any"
	}

	if p.Scoring.ClassifierWeight <= 0 && p.Scoring.DensityWeight <= 0 && p.Scoring.CampaignBonus <= 0 {
		p.Scoring.ClassifierWeight = 0.6
		p.Scoring.DensityWeight = 0.3
		p.Scoring.CampaignBonus = 0.1
	}
	if p.Scoring.HighThreshold <= 0 && p.Scoring.MediumThreshold <= 0 && p.Scoring.LowThreshold <= 0 {
		p.Scoring.HighThreshold = 0.75
		p.Scoring.MediumThreshold = 0.5
		p.Scoring.LowThreshold = 0.25
	}
	if p.Scoring.DensityCap <= 0 {
		p.Scoring.DensityCap = 5
	}

	if p.Output.Dir == "" {
		p.Output.Dir = "output"
	}
	if p.Output.ClickHouse.Database == "" {
		p.Output.ClickHouse.Database = "ctiflow"
	}
	if p.Output.ClickHouse.Table == "" {
		p.Output.ClickHouse.Table = "indicators"
	}

	if p.Metrics.Addr == "" {
		p.Metrics.Addr = ":9106"
	}
	if p.Logging.Level == "" {
		p.Logging.Level = "info"
	}
}

// Validate rejects configurations that would produce undefined behavior.
// These are fatal before any output is produced.
func (c *Config) Validate() error {
	p := &c.CTIFlow

	if p.Correlation.Window < 0 {
		return fmt.Errorf("correlation.window must not be negative: %s", p.Correlation.Window)
	}
	if p.Correlation.MinSharedIndicators < 1 {
		return fmt.Errorf("correlation.min_shared_indicators must be at least 1: %d", p.Correlation.MinSharedIndicators)
	}
	switch p.Correlation.MissingTimestampPolicy {
	case "match_any", "use_ingest_time", "exclude":
	default:
		return fmt.Errorf("correlation.missing_timestamp_policy must be match_any, use_ingest_time or exclude: %q", p.Correlation.MissingTimestampPolicy)
	}

	if p.Extraction.MinConfidence < 0 || p.Extraction.MinConfidence > 1 {
		return fmt.Errorf("extraction.min_confidence must be in [0, 1]: %f", p.Extraction.MinConfidence)
	}

	t := p.Scoring
	if t.HighThreshold < t.MediumThreshold || t.MediumThreshold < t.LowThreshold {
		return fmt.Errorf("scoring thresholds must be monotonic (high >= medium >= low): %f/%f/%f",
			t.HighThreshold, t.MediumThreshold, t.LowThreshold)
	}
	if t.ClassifierWeight < 0 || t.DensityWeight < 0 || t.CampaignBonus < 0 {
		return fmt.Errorf("scoring weights must not be negative")
	}
	if sum := t.ClassifierWeight + t.DensityWeight + t.CampaignBonus; sum > 1+1e-9 {
		return fmt.Errorf("scoring weights must not sum above 1: %f", sum)
	}

	if p.Output.ClickHouse.Enabled && p.Output.ClickHouse.URL == "" {
		return fmt.Errorf("output.clickhouse.url is required when the clickhouse sink is enabled")
	}
	return nil
}
