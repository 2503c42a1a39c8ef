// Package config defines the global configuration structure for the geodash
// service. Configuration is loaded once at process initialization and is
// immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> Struct Defaults (Lowest)
//
// Any missing required value or invalid format causes startup to fail
// immediately (fail fast).
package config

import "time"

// Config is the top-level configuration struct for the geodash service.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server  ServerConfig
	Archive ArchiveConfig
	Cache   CacheConfig
	Engine  EngineConfig
	Storage StorageConfig
	Window  WindowConfig
}

// ServerConfig holds HTTP control-surface configuration. AllowedOrigins
// feeds the CORS middleware; the dashboard page is served from a different
// origin during development.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	AllowedOrigins  []string      `envconfig:"ALLOWED_ORIGINS" default:"*"`
}

// ArchiveConfig holds the external weather archive endpoint and transport
// tuning. The archive serves hourly historical data and never returns the
// current day or future dates.
type ArchiveConfig struct {
	BaseURL    string        `envconfig:"ARCHIVE_BASE_URL" default:"https://archive-api.open-meteo.com/v1/archive" validate:"required,url"`
	Timeout    time.Duration `envconfig:"ARCHIVE_TIMEOUT" default:"8s"`
	MaxRetries int           `envconfig:"ARCHIVE_MAX_RETRIES" default:"3"`
	UserAgent  string        `envconfig:"ARCHIVE_USER_AGENT" default:"geodash/1.0"`
}

// CacheConfig tunes the response cache. MaxEntries bounds the in-memory LRU
// so a long-running session cannot grow without limit.
type CacheConfig struct {
	MaxEntries int `envconfig:"CACHE_MAX_ENTRIES" default:"512" validate:"min=1"`
}

// EngineConfig tunes the recompute engine.
type EngineConfig struct {
	Debounce       time.Duration `envconfig:"ENGINE_DEBOUNCE" default:"300ms"`
	FetchTimeout   time.Duration `envconfig:"ENGINE_FETCH_TIMEOUT" default:"8s"`
	MaxConcurrency int           `envconfig:"ENGINE_MAX_CONCURRENCY" default:"8" validate:"min=1"`
}

// StorageConfig holds the durable local storage location. Series cache
// records and the persisted application state both live in this database.
type StorageConfig struct {
	Path string `envconfig:"STORAGE_PATH" default:"geodash.db" validate:"required"`
}

// WindowConfig defines the selectable time window. The window is
// archive-constrained: it ends at the end of yesterday (the most recent day
// the archive serves) and reaches LookbackDays further into the past.
type WindowConfig struct {
	LookbackDays int `envconfig:"WINDOW_LOOKBACK_DAYS" default:"15" validate:"min=1,max=60"`
}

// SpanHours returns the total number of hourly slider offsets in the window.
func (w WindowConfig) SpanHours() int {
	return w.LookbackDays * 24
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
