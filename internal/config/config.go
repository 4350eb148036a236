// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, the storage backend, rate limiting, and observability.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tbourn/crystarise-backend/internal/sysutil"
)

// Storage backends selectable with STORE_BACKEND.
const (
	BackendSQLite   = "sqlite"
	BackendSupabase = "supabase"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SupabaseConfig defines the hosted database and identity provider.
type SupabaseConfig struct {
	URL             string        // SUPABASE_URL (fallback NEXT_PUBLIC_SUPABASE_URL)
	Key             string        // SUPABASE_KEY (fallback NEXT_PUBLIC_SUPABASE_KEY), the anon key
	JWTSecret       string        // SUPABASE_JWT_SECRET: verify tokens locally when set
	Timeout         time.Duration // SUPABASE_TIMEOUT per request
	BreakerFailures int           // BREAKER_FAILURES consecutive failures before opening
	BreakerCooldown time.Duration // BREAKER_COOLDOWN before a half-open probe
}

// JWTConfig defines the embedded identity provider's tokens.
type JWTConfig struct {
	Secret string        // JWT_SECRET; empty means an ephemeral per-process secret
	TTL    time.Duration // JWT_TTL
}

// RecordsConfig bounds record listings.
type RecordsConfig struct {
	DefaultLimit int // RECORDS_DEFAULT_LIMIT
	MaxLimit     int // RECORDS_MAX_LIMIT
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "crystarise-api")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Storage and identity
	StoreBackend        string // sqlite|supabase
	DBPath              string // SQLite path (embedded store, idempotency keys)
	Supabase            SupabaseConfig
	JWT                 JWTConfig
	Records             RecordsConfig
	RedactBackendErrors bool // hide collaborator messages in 500 responses

	// Rate limiting
	RateRPS       float64 // tokens per second (>= 0)
	RateBurst     int     // bucket size (>= 1)
	RateWriteCost int     // tokens taken by an authenticated write (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the environment, applies defaults and normalization, and
// validates the result. Every violated rule is reported in one joined error.
func Load() (Config, error) {
	cfg := Config{
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           oneOf(strings.ToLower(getenv("GIN_MODE", "release")), "release", "debug", "test"),

		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/")),

		StoreBackend: strings.ToLower(strings.TrimSpace(getenv("STORE_BACKEND", BackendSQLite))),
		DBPath:       getenv("DB_PATH", "app.db"),
		Supabase: SupabaseConfig{
			URL:             sysutil.FirstNonEmpty(os.Getenv("SUPABASE_URL"), os.Getenv("NEXT_PUBLIC_SUPABASE_URL")),
			Key:             sysutil.FirstNonEmpty(os.Getenv("SUPABASE_KEY"), os.Getenv("NEXT_PUBLIC_SUPABASE_KEY")),
			JWTSecret:       getenv("SUPABASE_JWT_SECRET", ""),
			Timeout:         getdur("SUPABASE_TIMEOUT", 10*time.Second),
			BreakerFailures: getint("BREAKER_FAILURES", 5),
			BreakerCooldown: getdur("BREAKER_COOLDOWN", 30*time.Second),
		},
		JWT: JWTConfig{
			Secret: getenv("JWT_SECRET", ""),
			TTL:    getdur("JWT_TTL", time.Hour),
		},
		Records: RecordsConfig{
			DefaultLimit: getint("RECORDS_DEFAULT_LIMIT", 50),
			MaxLimit:     getint("RECORDS_MAX_LIMIT", 500),
		},
		RedactBackendErrors: getbool("REDACT_BACKEND_ERRORS", false),

		RateRPS:       getfloat("RATE_RPS", 5.0),
		RateBurst:     getint("RATE_BURST", 10),
		RateWriteCost: getint("RATE_WRITE_COST", 2),

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "crystarise-api"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	return cfg, cfg.validate()
}

// rule is one validation check; msg is reported when bad holds.
type rule struct {
	bad bool
	msg string
}

func (c Config) validate() error {
	blank := func(s string) bool { return strings.TrimSpace(s) == "" }
	supabase := c.StoreBackend == BackendSupabase

	rules := []rule{
		{oneOf(c.LogLevel, "", "debug", "info", "warn", "error", "fatal", "panic") == "",
			"LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic"},
		{blank(c.Port), "PORT must not be empty"},
		{c.ReadTimeout <= 0 || c.ReadHeaderTimeout <= 0 || c.WriteTimeout <= 0 || c.IdleTimeout <= 0,
			"timeouts must be positive durations"},
		{c.MaxHeaderBytes <= 0, "MAX_HEADER_BYTES must be > 0"},
		{blank(c.DBPath), "DB_PATH must not be empty"},
		{oneOf(c.StoreBackend, "", BackendSQLite, BackendSupabase) == "",
			"STORE_BACKEND must be one of: sqlite, supabase"},
		{supabase && (blank(c.Supabase.URL) || blank(c.Supabase.Key)),
			"SUPABASE_URL and SUPABASE_KEY are required when STORE_BACKEND=supabase"},
		{c.Supabase.Timeout <= 0 || c.Supabase.BreakerCooldown <= 0,
			"SUPABASE_TIMEOUT and BREAKER_COOLDOWN must be positive durations"},
		{c.Supabase.BreakerFailures < 1, "BREAKER_FAILURES must be >= 1"},
		{c.JWT.TTL <= 0, "JWT_TTL must be > 0"},
		{c.Records.DefaultLimit < 1 || c.Records.MaxLimit < c.Records.DefaultLimit,
			"RECORDS_DEFAULT_LIMIT must be >= 1 and <= RECORDS_MAX_LIMIT"},
		{c.RateRPS < 0, "RATE_RPS must be >= 0"},
		{c.RateBurst < 1, "RATE_BURST must be >= 1"},
		{c.RateWriteCost < 1, "RATE_WRITE_COST must be >= 1"},
		{c.Security.HSTSMaxAge < 0, "HSTS_MAX_AGE must be >= 0"},
		{c.IdempotencyTTL <= 0, "IDEMPOTENCY_TTL must be > 0"},
		{c.OTEL.SampleRatio < 0 || c.OTEL.SampleRatio > 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]"},
	}

	var errs []error
	for _, r := range rules {
		if r.bad {
			errs = append(errs, errors.New(r.msg))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// oneOf returns v when it is one of allowed, else allowed[0].
func oneOf(v string, allowed ...string) string {
	for _, a := range allowed[1:] {
		if v == a {
			return v
		}
	}
	return allowed[0]
}

// env returns parse(value) for a set, non-empty k, or def when unset or
// unparsable.
func env[T any](k string, def T, parse func(string) (T, error)) T {
	v, ok := os.LookupEnv(k)
	if !ok || v == "" {
		return def
	}
	out, err := parse(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return out
}

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int { return env(k, def, strconv.Atoi) }

func getdur(k string, def time.Duration) time.Duration { return env(k, def, time.ParseDuration) }

func getfloat(k string, def float64) float64 {
	return env(k, def, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

func getbool(k string, def bool) bool {
	return env(k, def, func(s string) (bool, error) {
		switch strings.ToLower(s) {
		case "0", "false", "no", "n", "off":
			return false, nil
		}
		if sysutil.IsTruthy(s) {
			return true, nil
		}
		return false, fmt.Errorf("not a boolean: %q", s)
	})
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath returns p with exactly one leading '/' and no trailing
// '/', or "/" for an empty path.
func normalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	return "/" + p
}
