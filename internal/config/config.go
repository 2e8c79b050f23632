package config

import (
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration. It is immutable after
// Load and threaded through every stage constructor, so two pipelines can
// run side by side (e.g. different prompt versions) without interference.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Dedup      DedupConfig      `yaml:"dedup" mapstructure:"dedup"`
	Gate       GateConfig       `yaml:"gate" mapstructure:"gate"`
	Extraction ExtractionConfig `yaml:"extraction" mapstructure:"extraction"`
	Validator  ValidatorConfig  `yaml:"validator" mapstructure:"validator"`
	Scoring    ScoringConfig    `yaml:"scoring" mapstructure:"scoring"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings for the classification gateway.
type AnthropicConfig struct {
	Key            string  `yaml:"key" mapstructure:"key"`
	Model          string  `yaml:"model" mapstructure:"model"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts    int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
}

// Timeout returns the per-call gateway timeout.
func (c AnthropicConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// DedupConfig configures the deduplication engine.
type DedupConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
	WindowDays          int     `yaml:"window_days" mapstructure:"window_days"`
	MaxHammingDistance  int     `yaml:"max_hamming_distance" mapstructure:"max_hamming_distance"`
}

// GateConfig configures Stage A noise-gate policy.
type GateConfig struct {
	ConfidenceFloor float64 `yaml:"confidence_floor" mapstructure:"confidence_floor"`
	PromptVersion   string  `yaml:"prompt_version" mapstructure:"prompt_version"`
}

// ExtractionConfig configures Stage B and the reprompt controller.
type ExtractionConfig struct {
	MaxReprompts  int    `yaml:"max_reprompts" mapstructure:"max_reprompts"`
	PromptVersion string `yaml:"prompt_version" mapstructure:"prompt_version"`
}

// ValidatorConfig configures the deterministic rule validator. When
// LexiconPath is set, the YAML keyword list it names replaces
// BannedKeywords at load time.
type ValidatorConfig struct {
	HypeRatioThreshold float64  `yaml:"hype_ratio_threshold" mapstructure:"hype_ratio_threshold"`
	BannedKeywords     []string `yaml:"banned_keywords" mapstructure:"banned_keywords"`
	LexiconPath        string   `yaml:"lexicon_path" mapstructure:"lexicon_path"`
}

// ScoringConfig holds score weights and shaping parameters. Weights are
// external configuration by design, never hardcoded in the scorer.
type ScoringConfig struct {
	InvestorWeight      float64 `yaml:"investor_weight" mapstructure:"investor_weight"`
	FeasibilityWeight   float64 `yaml:"feasibility_weight" mapstructure:"feasibility_weight"`
	CostWeight          float64 `yaml:"cost_weight" mapstructure:"cost_weight"`
	UrgencyWeight       float64 `yaml:"urgency_weight" mapstructure:"urgency_weight"`
	ReliabilityWeight   float64 `yaml:"reliability_weight" mapstructure:"reliability_weight"`
	InvestorCap         float64 `yaml:"investor_cap" mapstructure:"investor_cap"`
	CostScaleUSD        float64 `yaml:"cost_scale_usd" mapstructure:"cost_scale_usd"`
	UrgencyWindowDays   int     `yaml:"urgency_window_days" mapstructure:"urgency_window_days"`
	InvestorWeightsPath string  `yaml:"investor_weights_path" mapstructure:"investor_weights_path"`
}

// PipelineConfig configures the staged worker pools and queues.
type PipelineConfig struct {
	QueueSize       int `yaml:"queue_size" mapstructure:"queue_size"`
	DedupWorkers    int `yaml:"dedup_workers" mapstructure:"dedup_workers"`
	GatewayWorkers  int `yaml:"gateway_workers" mapstructure:"gateway_workers"`
	ScoringWorkers  int `yaml:"scoring_workers" mapstructure:"scoring_workers"`
	ShutdownTimeout int `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
}

// ServerConfig configures the HTTP ingest server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ALPHA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "alpha_hunter.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.timeout_secs", 30)
	v.SetDefault("anthropic.max_attempts", 3)
	v.SetDefault("anthropic.requests_per_sec", 2.0)
	v.SetDefault("dedup.similarity_threshold", 0.85)
	v.SetDefault("dedup.window_days", 7)
	v.SetDefault("dedup.max_hamming_distance", 12)
	v.SetDefault("gate.confidence_floor", 0.70)
	v.SetDefault("gate.prompt_version", "noise-gate-v2")
	v.SetDefault("extraction.max_reprompts", 2)
	v.SetDefault("extraction.prompt_version", "extract-v3")
	v.SetDefault("validator.hype_ratio_threshold", 0.15)
	v.SetDefault("validator.banned_keywords", DefaultBannedKeywords())
	v.SetDefault("scoring.investor_weight", 0.35)
	v.SetDefault("scoring.feasibility_weight", 0.20)
	v.SetDefault("scoring.cost_weight", 0.15)
	v.SetDefault("scoring.urgency_weight", 0.15)
	v.SetDefault("scoring.reliability_weight", 0.15)
	v.SetDefault("scoring.investor_cap", 25)
	v.SetDefault("scoring.cost_scale_usd", 100)
	v.SetDefault("scoring.urgency_window_days", 14)
	v.SetDefault("pipeline.queue_size", 64)
	v.SetDefault("pipeline.dedup_workers", 2)
	v.SetDefault("pipeline.gateway_workers", 4)
	v.SetDefault("pipeline.scoring_workers", 2)
	v.SetDefault("pipeline.shutdown_timeout_secs", 30)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if cfg.Validator.LexiconPath != "" {
		keywords, err := LoadLexicon(cfg.Validator.LexiconPath)
		if err != nil {
			return nil, err
		}
		cfg.Validator.BannedKeywords = keywords
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadLexicon reads a YAML list of banned keywords. A configured lexicon
// replaces the built-in defaults entirely.
func LoadLexicon(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read lexicon %s", path)
	}
	var keywords []string
	if err := yaml.Unmarshal(raw, &keywords); err != nil {
		return nil, eris.Wrapf(err, "config: parse lexicon %s", path)
	}
	if len(keywords) == 0 {
		return nil, eris.Errorf("config: lexicon %s is empty", path)
	}
	return keywords, nil
}

// DefaultBannedKeywords is the built-in hype lexicon used when no external
// lexicon file is configured.
func DefaultBannedKeywords() []string {
	return []string{
		"100x", "1000x", "moon", "mooning", "gem", "pump", "pumping",
		"guaranteed", "get rich", "buy now", "last chance", "dont miss",
		"resistance", "support level", "breakout", "to the moon",
	}
}

// Validate checks invariants that must hold before the pipeline starts.
// Violations are configuration errors: fatal at process start, never
// per-event failures.
func (c *Config) Validate() error {
	var problems []string

	if c.Gate.ConfidenceFloor < 0 || c.Gate.ConfidenceFloor > 1 {
		problems = append(problems, "gate.confidence_floor must be in [0,1]")
	}
	if c.Dedup.SimilarityThreshold < 0 || c.Dedup.SimilarityThreshold > 1 {
		problems = append(problems, "dedup.similarity_threshold must be in [0,1]")
	}
	if c.Extraction.MaxReprompts < 0 {
		problems = append(problems, "extraction.max_reprompts must be >= 0")
	}
	if c.Validator.HypeRatioThreshold < 0 || c.Validator.HypeRatioThreshold > 1 {
		problems = append(problems, "validator.hype_ratio_threshold must be in [0,1]")
	}

	weightSum := c.Scoring.InvestorWeight + c.Scoring.FeasibilityWeight +
		c.Scoring.CostWeight + c.Scoring.UrgencyWeight + c.Scoring.ReliabilityWeight
	if weightSum <= 0 {
		problems = append(problems, "scoring weights must sum to a positive number")
	}
	for _, w := range []float64{
		c.Scoring.InvestorWeight, c.Scoring.FeasibilityWeight, c.Scoring.CostWeight,
		c.Scoring.UrgencyWeight, c.Scoring.ReliabilityWeight,
	} {
		if w < 0 {
			problems = append(problems, "scoring weights must be >= 0")
			break
		}
	}
	if c.Scoring.InvestorCap <= 0 {
		problems = append(problems, "scoring.investor_cap must be > 0")
	}
	if c.Scoring.CostScaleUSD <= 0 {
		problems = append(problems, "scoring.cost_scale_usd must be > 0")
	}
	if c.Pipeline.QueueSize <= 0 {
		problems = append(problems, "pipeline.queue_size must be > 0")
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
