// Package config defines the process configuration for circlemap. It is
// loaded once at startup and treated as immutable afterwards.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> *_FILE secret files (Lowest)
//
// Missing or malformed values fail startup with a ConfigError.
package config

import (
	"time"

	"circlemap/internal/types"
)

// SecretString is an alias for types.SecretString so config structs can
// declare redacted fields without importing types.
type SecretString = types.SecretString

// Config is the top-level configuration. Sub-components receive only the
// section they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"circlemap"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"text" validate:"oneof=text json"`

	Server   ServerConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Geocoder GeocoderConfig
	Session  SessionConfig
	Activity ActivityConfig

	// Build metadata is injected via ldflags, not env.
	Build BuildInfo
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port               string        `envconfig:"PORT" default:"8080" validate:"required,numeric"`
	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT" default:"15s" validate:"gt=0"`
	ShutdownTimeout    time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s" validate:"gt=0"`
	CorsAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// DatabaseConfig holds the history log connection. An empty URL selects the
// in-memory log.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"omitempty,url"`

	MaxConns          int32         `envconfig:"DB_MAX_CONNS" default:"10" validate:"gte=1"`
	MinConns          int32         `envconfig:"DB_MIN_CONNS" default:"1" validate:"gte=0"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// Enabled reports whether a database URL is configured.
func (d DatabaseConfig) Enabled() bool {
	return d.URL.IsSet()
}

// CacheConfig holds the shared geocode cache. An empty RedisAddr selects the
// in-process cache.
type CacheConfig struct {
	RedisAddr     string       `envconfig:"REDIS_ADDR" validate:"omitempty,hostname_port"`
	RedisPassword SecretString `envconfig:"REDIS_PASSWORD"`
	RedisDB       int          `envconfig:"REDIS_DB" default:"0" validate:"gte=0"`
	KeyPrefix     string       `envconfig:"CACHE_KEY_PREFIX" default:"circlemap:geocode:"`
	MemoryEntries int          `envconfig:"CACHE_MEMORY_ENTRIES" default:"10000" validate:"gte=1"`
}

// RedisEnabled reports whether a Redis address is configured.
func (c CacheConfig) RedisEnabled() bool {
	return c.RedisAddr != ""
}

// Geocoder modes.
const (
	GeocoderNominatim = "nominatim"
	GeocoderStub      = "stub"
)

// GeocoderConfig holds the upstream geocoder and resolver cache settings.
type GeocoderConfig struct {
	Mode        string        `envconfig:"GEOCODER_MODE" default:"nominatim" validate:"oneof=nominatim stub"`
	BaseURL     string        `envconfig:"GEOCODER_BASE_URL" default:"https://nominatim.openstreetmap.org" validate:"required,url"`
	Language    string        `envconfig:"GEOCODER_LANGUAGE" default:"ja" validate:"required"`
	Timeout     time.Duration `envconfig:"GEOCODER_TIMEOUT" default:"10s" validate:"gt=0"`
	UserAgent   string        `envconfig:"GEOCODER_USER_AGENT" default:"circlemap/1.0" validate:"required"`
	MinInterval time.Duration `envconfig:"GEOCODER_MIN_INTERVAL" default:"1s" validate:"gte=0"`
	MaxRetries  int           `envconfig:"GEOCODER_MAX_RETRIES" default:"0" validate:"gte=0,lte=5"`
	CacheTTL    time.Duration `envconfig:"GEOCODER_CACHE_TTL" default:"1h" validate:"gte=0"`
	NotFoundTTL time.Duration `envconfig:"GEOCODER_NOT_FOUND_TTL" default:"15m" validate:"gte=0"`

	BreakerFailures uint32        `envconfig:"GEOCODER_BREAKER_FAILURES" default:"5" validate:"gte=1"`
	BreakerTimeout  time.Duration `envconfig:"GEOCODER_BREAKER_TIMEOUT" default:"30s" validate:"gt=0"`
}

// FetchTimeout bounds one upstream lookup: every attempt plus the pacing
// wait in front of it.
func (c GeocoderConfig) FetchTimeout() time.Duration {
	return (c.Timeout + c.MinInterval) * time.Duration(c.MaxRetries+1)
}

// Restore policies.
const (
	RestoreOverwrite   = "overwrite"
	RestoreKeepUnsaved = "keep_unsaved"
)

// SessionConfig holds the in-memory session store settings.
type SessionConfig struct {
	CoordEpsilon  float64       `envconfig:"SESSION_COORD_EPSILON" default:"0.000001" validate:"gte=0"`
	RestorePolicy string        `envconfig:"SESSION_RESTORE_POLICY" default:"overwrite" validate:"oneof=overwrite keep_unsaved"`
	IdleTTL       time.Duration `envconfig:"SESSION_IDLE_TTL" default:"2h" validate:"gt=0"`
	MaxSessions   int           `envconfig:"SESSION_MAX" default:"10000" validate:"gte=1"`
	// SweepInterval is how often idle sessions are purged in the background.
	SweepInterval time.Duration `envconfig:"SESSION_SWEEP_INTERVAL" default:"5m" validate:"gt=0"`
}

// ActivityConfig overrides the speeds and energy costs used for estimates.
type ActivityConfig struct {
	WalkMetersPerMin float64 `envconfig:"ACTIVITY_WALK_M_PER_MIN" default:"80" validate:"gt=0"`
	RunMetersPerMin  float64 `envconfig:"ACTIVITY_RUN_M_PER_MIN" default:"167" validate:"gt=0"`
	BikeMetersPerMin float64 `envconfig:"ACTIVITY_BIKE_M_PER_MIN" default:"250" validate:"gt=0"`
	WalkKcalPerKm    float64 `envconfig:"ACTIVITY_WALK_KCAL_PER_KM" default:"60" validate:"gte=0"`
	RunKcalPerKm     float64 `envconfig:"ACTIVITY_RUN_KCAL_PER_KM" default:"75" validate:"gte=0"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	// ErrSecretResolution indicates a *_FILE secret could not be read.
	ErrSecretResolution ConfigErrorType = "SECRET_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates an environment value could not be parsed into its
	// target type.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
