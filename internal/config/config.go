package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix is the prefix of every environment variable read by Load
const EnvPrefix = "SWITCHBOARD"

// ConfigFileEnv names the variable that points Load at a YAML file
const ConfigFileEnv = EnvPrefix + "_CONFIG_FILE"

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	WebSocket WebSocketConfig `yaml:"websocket" envconfig:"WEBSOCKET"`
	API       APIConfig       `yaml:"api" envconfig:"API"`
	RateLimit RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
	Metrics   MetricsConfig   `yaml:"metrics" envconfig:"METRICS"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr            string        `yaml:"addr" split_words:"true" validate:"required"`
	ReadTimeout     time.Duration `yaml:"read_timeout" split_words:"true" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" split_words:"true" validate:"gt=0"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" split_words:"true" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" split_words:"true" validate:"gt=0"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" split_words:"true" validate:"gt=0"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level       string `yaml:"level" split_words:"true" validate:"oneof=debug info warn error"`
	Output      string `yaml:"output" split_words:"true" validate:"oneof=console file both"`
	FilePath    string `yaml:"file_path" split_words:"true" validate:"required_unless=Output console"`
	Development bool   `yaml:"development" split_words:"true"`
}

// WebSocketConfig holds limits for upgraded connections
type WebSocketConfig struct {
	// MaxFrameSize bounds a single frame payload, 0 means unlimited
	MaxFrameSize int64 `yaml:"max_frame_size" split_words:"true" validate:"gte=0"`
	// MaxMessageSize bounds a reassembled message, 0 means unlimited
	MaxMessageSize int64         `yaml:"max_message_size" split_words:"true" validate:"gte=0"`
	WriteTimeout   time.Duration `yaml:"write_timeout" split_words:"true" validate:"gte=0"`
	// AbortOnWrongMethod makes a non-GET upgrade attempt panic instead of
	// answering 400
	AbortOnWrongMethod bool `yaml:"abort_on_wrong_method" split_words:"true"`
}

// APIConfig holds content conversion settings
type APIConfig struct {
	PrettyJSON bool `yaml:"pretty_json" split_words:"true"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" split_words:"true"`
	RPS     float64 `yaml:"rps" split_words:"true" validate:"required_if=Enabled true,gte=0"`
	Burst   int     `yaml:"burst" split_words:"true" validate:"required_if=Enabled true,gte=0"`
}

// MetricsConfig controls the Prometheus scrape endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" split_words:"true"`
	Path    string `yaml:"path" split_words:"true" validate:"required_if=Enabled true,omitempty,startswith=/"`
}

// TelemetryConfig controls the OpenTelemetry providers
type TelemetryConfig struct {
	ServiceName string `yaml:"service_name" split_words:"true" validate:"required"`
	Environment string `yaml:"environment" split_words:"true"`
	// TraceExporter is "none" or "stdout"
	TraceExporter string  `yaml:"trace_exporter" split_words:"true" validate:"oneof=none stdout"`
	SampleRatio   float64 `yaml:"sample_ratio" split_words:"true" validate:"gte=0,lte=1"`
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxHeaderBytes:  1 << 20,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Output:   "console",
			FilePath: "logs/switchboard.log",
		},
		WebSocket: WebSocketConfig{
			MaxFrameSize:   1 << 20,
			MaxMessageSize: 4 << 20,
			WriteTimeout:   10 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled: false,
			RPS:     100,
			Burst:   50,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Telemetry: TelemetryConfig{
			ServiceName:   "switchboard",
			Environment:   "development",
			TraceExporter: "none",
			SampleRatio:   1.0,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// the environment, in that order of increasing precedence. path may be
// empty, in which case SWITCHBOARD_CONFIG_FILE and the usual locations
// are tried.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Leaf fields use split_words: envconfig-tagged leaves are also looked
	// up unprefixed, so METRICS_PATH would read PATH.
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoad is like Load but panics on error
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// loadFromFile overlays YAML file values onto cfg
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// findConfigFile returns the first config file that exists, or ""
func findConfigFile() string {
	if path := os.Getenv(ConfigFileEnv); path != "" {
		return path
	}

	for _, candidate := range []string{"switchboard.yaml", "configs/switchboard.yaml"} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

func (c *Config) normalize() {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "warning" {
		c.Logging.Level = "warn"
	}
	c.Logging.Output = strings.ToLower(strings.TrimSpace(c.Logging.Output))
	c.Telemetry.TraceExporter = strings.ToLower(strings.TrimSpace(c.Telemetry.TraceExporter))
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration and reports every offending field
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return errors.New(strings.Join(msgs, "; "))
}
