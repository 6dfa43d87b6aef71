package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the single resolved configuration for the pipeline. It is loaded
// once at startup and injected; components never re-read the environment.
//
// Precedence, lowest to highest: built-in defaults, the yaml config file
// (CONFIG_PATH or ./config/synthpanel.yaml), then environment variables.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`

	Generation GenerationConfig `mapstructure:"generation"`
	Research   ResearchConfig   `mapstructure:"research"`
	Verify     VerifyConfig     `mapstructure:"verify"`
	Cache      CacheConfig      `mapstructure:"cache"`
	QC         QCConfig         `mapstructure:"qc"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

type TracingConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

type TelemetryConfig struct {
	Endpoint string `mapstructure:"endpoint"`
}

type GenerationConfig struct {
	// Chain is the ordered backend preference list, first is cheapest/fastest.
	Chain          []string      `mapstructure:"chain"`
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestsPerMin int           `mapstructure:"requests_per_min"`
	StreamTimeout  time.Duration `mapstructure:"stream_timeout"`
	MaxTokens      int           `mapstructure:"max_tokens"`
}

type ResearchConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	APIKey       string        `mapstructure:"api_key"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	MaxResults   int           `mapstructure:"max_results"`
	RecencyDays  int           `mapstructure:"recency_days"`
}

type VerifyConfig struct {
	PrimaryURL   string        `mapstructure:"primary_url"`
	SecondaryURL string        `mapstructure:"secondary_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type CacheConfig struct {
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	PostgresDSN   string        `mapstructure:"postgres_dsn"`
	DefaultTTL    time.Duration `mapstructure:"default_ttl"`
}

type QCConfig struct {
	BatchSize int `mapstructure:"batch_size"`
	// MinAccuracyScore is the accuracy floor for a report to be considered
	// valid. Product policy, not derived from data; keep tunable.
	MinAccuracyScore int `mapstructure:"min_accuracy_score"`
	// CorrectionThreshold is the accuracy below which a corrected rewrite is
	// requested when error-severity issues exist.
	CorrectionThreshold int `mapstructure:"correction_threshold"`
	// OverlapThreshold is the key-term overlap ratio the heuristic fallback
	// validator requires to provisionally verify a claim.
	OverlapThreshold float64       `mapstructure:"overlap_threshold"`
	MaxRetries       int           `mapstructure:"max_retries"`
	RetryBaseDelay   time.Duration `mapstructure:"retry_base_delay"`
}

func defaults() Config {
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Metrics: MetricsConfig{Enabled: true, Port: 2112},
		Tracing: TracingConfig{ServiceName: "synthpanel-orchestrator", OTLPEndpoint: "localhost:4317"},
		Generation: GenerationConfig{
			Chain:          []string{"sonnet-fast", "sonnet-large", "opus-large"},
			BaseURL:        "http://llm-service:8000",
			RequestsPerMin: 30,
			StreamTimeout:  5 * time.Minute,
			MaxTokens:      8192,
		},
		Research: ResearchConfig{
			BaseURL:      "http://research-service:8100",
			BatchSize:    10,
			BatchTimeout: 60 * time.Second,
			MaxResults:   5,
			RecencyDays:  365,
		},
		Verify: VerifyConfig{Timeout: 120 * time.Second},
		Cache:  CacheConfig{DefaultTTL: 24 * time.Hour},
		QC: QCConfig{
			BatchSize:           20,
			MinAccuracyScore:    90,
			CorrectionThreshold: 85,
			OverlapThreshold:    0.30,
			MaxRetries:          3,
			RetryBaseDelay:      time.Second,
		},
	}
}

// Load resolves the configuration once. A missing config file is not an
// error; defaults plus env overrides apply.
func Load() (*Config, error) {
	// Local development convenience; ignored when absent.
	_ = godotenv.Load()

	cfg := defaults()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/synthpanel.yaml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err == nil {
		if err := v.Unmarshal(&cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	} else if _, statErr := os.Stat(path); statErr == nil {
		// File exists but failed to parse; that is a real configuration error.
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks invariants that would otherwise surface deep inside the
// pipeline.
func (c *Config) Validate() error {
	if len(c.Generation.Chain) == 0 {
		return fmt.Errorf("generation.chain must not be empty")
	}
	if c.Generation.RequestsPerMin <= 0 {
		return fmt.Errorf("generation.requests_per_min must be positive")
	}
	if c.Research.BatchSize <= 0 || c.Research.BatchSize > 10 {
		return fmt.Errorf("research.batch_size must be in 1..10")
	}
	if c.QC.BatchSize <= 0 {
		return fmt.Errorf("qc.batch_size must be positive")
	}
	if c.QC.OverlapThreshold <= 0 || c.QC.OverlapThreshold > 1 {
		return fmt.Errorf("qc.overlap_threshold must be in (0,1]")
	}
	if c.QC.MinAccuracyScore < 0 || c.QC.MinAccuracyScore > 100 {
		return fmt.Errorf("qc.min_accuracy_score must be in 0..100")
	}
	return nil
}

func applyEnvOverrides(c *Config) {
	setString(&c.Logging.Level, "LOG_LEVEL")
	setInt(&c.Metrics.Port, "METRICS_PORT")
	setBool(&c.Tracing.Enabled, "TRACING_ENABLED")
	setString(&c.Tracing.OTLPEndpoint, "OTLP_ENDPOINT")
	setString(&c.Telemetry.Endpoint, "TELEMETRY_ENDPOINT")

	if v := os.Getenv("GENERATION_CHAIN"); v != "" {
		parts := strings.Split(v, ",")
		chain := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				chain = append(chain, p)
			}
		}
		if len(chain) > 0 {
			c.Generation.Chain = chain
		}
	}
	setString(&c.Generation.BaseURL, "LLM_SERVICE_URL")
	setString(&c.Generation.APIKey, "LLM_API_KEY")
	setInt(&c.Generation.RequestsPerMin, "GENERATION_RPM")

	setString(&c.Research.BaseURL, "RESEARCH_SERVICE_URL")
	setString(&c.Research.APIKey, "RESEARCH_API_KEY")
	setInt(&c.Research.BatchSize, "RESEARCH_BATCH_SIZE")
	setDuration(&c.Research.BatchTimeout, "RESEARCH_BATCH_TIMEOUT")

	setString(&c.Verify.PrimaryURL, "VERIFY_PRIMARY_URL")
	setString(&c.Verify.SecondaryURL, "VERIFY_SECONDARY_URL")

	setString(&c.Cache.RedisAddr, "REDIS_ADDR")
	setString(&c.Cache.RedisPassword, "REDIS_PASSWORD")
	setString(&c.Cache.PostgresDSN, "DATABASE_URL")
	setDuration(&c.Cache.DefaultTTL, "CACHE_TTL")

	setInt(&c.QC.BatchSize, "QC_BATCH_SIZE")
	setInt(&c.QC.MinAccuracyScore, "QC_MIN_ACCURACY")
	setInt(&c.QC.CorrectionThreshold, "QC_CORRECTION_THRESHOLD")
	setFloat(&c.QC.OverlapThreshold, "QC_OVERLAP_THRESHOLD")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if x, err := strconv.Atoi(v); err == nil && x > 0 {
			*dst = x
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if x, err := strconv.ParseFloat(v, 64); err == nil && x > 0 {
			*dst = x
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if x, err := strconv.ParseBool(v); err == nil {
			*dst = x
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			*dst = d
		}
	}
}
