package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// BackendConfig holds the agent backend connection settings.
type BackendConfig struct {
	BaseURL string `yaml:"base_url"`
	// Timeout applies to non-streaming requests. Streaming chat requests use
	// only the context deadline.
	Timeout time.Duration `yaml:"timeout"`
	// SaveRatePerSec caps project save requests per second (token bucket).
	SaveRatePerSec float64 `yaml:"save_rate_per_sec"`
	// SaveBurst is the token bucket burst size for saves.
	SaveBurst int `yaml:"save_burst"`
}

// SaveConfig holds the save-coalescing policy.
type SaveConfig struct {
	// ChangeDebounce is the quiet period after a scene mutation before a
	// flush fires.
	ChangeDebounce time.Duration `yaml:"change_debounce"`
	// SafetyInterval is the period of the recurring flush check and also the
	// minimum elapsed-since-last-save time that makes a periodic or suspend
	// flush actually write.
	SafetyInterval time.Duration `yaml:"safety_interval"`
	// MessageDebounce is the quiet period for persisting the chat message
	// list, separate from the scene debounce.
	MessageDebounce time.Duration `yaml:"message_debounce"`
}

// LayoutConfig holds grid-packing constants for server-driven image insertion.
type LayoutConfig struct {
	// OriginX/OriginY is the top-left corner of the packing grid; the region
	// above and left of it is reserved for fixed UI controls.
	OriginX float64 `yaml:"origin_x"`
	OriginY float64 `yaml:"origin_y"`
	// ColumnLimit is the number of images per row before a new row starts.
	ColumnLimit int `yaml:"column_limit"`
	// MaxImageWidth caps the display width of inserted images; height scales
	// to preserve aspect ratio.
	MaxImageWidth float64 `yaml:"max_image_width"`
	// Gap is the spacing between neighbouring images.
	Gap float64 `yaml:"gap"`
}

// HistoryConfig bounds the chat history sent with each request.
type HistoryConfig struct {
	// TokenBudget is the approximate token cap for history pairs; oldest
	// entries are dropped first. 0 disables trimming.
	TokenBudget int `yaml:"token_budget"`
	// Encoding is the tiktoken encoding name used for counting.
	Encoding string `yaml:"encoding"`
}

// StateConfig locates the client-side persisted state store.
type StateConfig struct {
	// Path is the SQLite database file; ":memory:" keeps state in-process.
	Path string `yaml:"path"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
	Output string `yaml:"output"` // stdout, stderr, or a file path
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // stdout or noop
}

// Config is the top-level application configuration.
type Config struct {
	Backend BackendConfig `yaml:"backend"`
	Saves   SaveConfig    `yaml:"saves"`
	Layout  LayoutConfig  `yaml:"layout"`
	History HistoryConfig `yaml:"history"`
	State   StateConfig   `yaml:"state"`
	Logger  LoggerConfig  `yaml:"logger"`
	Tracer  TracerConfig  `yaml:"tracer"`
}

// Defaults returns a configuration with every knob at its default.
func Defaults() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL:        "http://localhost:8000/api",
			Timeout:        30 * time.Second,
			SaveRatePerSec: 2,
			SaveBurst:      4,
		},
		Saves: SaveConfig{
			ChangeDebounce:  500 * time.Millisecond,
			SafetyInterval:  30 * time.Second,
			MessageDebounce: 5 * time.Second,
		},
		Layout: LayoutConfig{
			OriginX:       40,
			OriginY:       160,
			ColumnLimit:   4,
			MaxImageWidth: 300,
			Gap:           20,
		},
		History: HistoryConfig{
			TokenBudget: 16000,
			Encoding:    "cl100k_base",
		},
		State: StateConfig{
			Path: "canvaschat-state.db",
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file and applies env var overrides. A missing file
// is not an error; defaults plus env overrides are returned.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps CANVASCHAT_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CANVASCHAT_BACKEND_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("CANVASCHAT_BACKEND_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Backend.Timeout = d
		}
	}
	if v := os.Getenv("CANVASCHAT_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("CANVASCHAT_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("CANVASCHAT_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("CANVASCHAT_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("CANVASCHAT_STATE_PATH"); v != "" {
		cfg.State.Path = v
	}
	if v := os.Getenv("CANVASCHAT_HISTORY_TOKEN_BUDGET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.History.TokenBudget = n
		}
	}
}

// Validate checks config invariants.
func Validate(cfg *Config) error {
	if cfg.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	if cfg.Saves.ChangeDebounce <= 0 {
		return fmt.Errorf("saves.change_debounce must be positive")
	}
	if cfg.Saves.SafetyInterval <= 0 {
		return fmt.Errorf("saves.safety_interval must be positive")
	}
	if cfg.Saves.MessageDebounce <= 0 {
		return fmt.Errorf("saves.message_debounce must be positive")
	}
	if cfg.Layout.ColumnLimit < 1 {
		return fmt.Errorf("layout.column_limit must be at least 1")
	}
	if cfg.Layout.MaxImageWidth <= 0 {
		return fmt.Errorf("layout.max_image_width must be positive")
	}
	switch cfg.Logger.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logger.format must be text or json, got %q", cfg.Logger.Format)
	}
	switch cfg.Tracer.Exporter {
	case "", "noop", "stdout":
	default:
		return fmt.Errorf("tracer.exporter must be noop or stdout, got %q", cfg.Tracer.Exporter)
	}
	return nil
}
