package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMain keeps deployment env from leaking into the defaults.
func TestMain(m *testing.M) {
	for _, k := range []string{
		"PORT", "STORE_BACKEND", "SUPABASE_URL", "SUPABASE_KEY", "JWT_SECRET",
		"NEXT_PUBLIC_SUPABASE_URL", "NEXT_PUBLIC_SUPABASE_KEY", "CORS_ALLOWED_ORIGINS",
	} {
		os.Unsetenv(k)
	}
	os.Exit(m.Run())
}

func setenv(t *testing.T, kv map[string]string) {
	t.Helper()
	for k, v := range kv {
		t.Setenv(k, v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := MustLoad()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "release", cfg.GinMode)
	assert.Equal(t, "/", cfg.APIBasePath)
	assert.Equal(t, BackendSQLite, cfg.StoreBackend)
	assert.Empty(t, cfg.JWT.Secret)
	assert.Equal(t, time.Hour, cfg.JWT.TTL)
	assert.Equal(t, RecordsConfig{DefaultLimit: 50, MaxLimit: 500}, cfg.Records)
	assert.Equal(t, 2, cfg.RateWriteCost)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, "crystarise-api", cfg.OTEL.ServiceName)
	assert.False(t, cfg.RedactBackendErrors)
}

func TestLoad_OverridesAndNormalization(t *testing.T) {
	setenv(t, map[string]string{
		"PORT":                        "8088",
		"READ_TIMEOUT":                "2s",
		"MAX_HEADER_BYTES":            "8192",
		"GIN_MODE":                    "weird",
		"LOG_LEVEL":                   "Warning",
		"LOG_PRETTY":                  "yes",
		"SWAGGER_ENABLED":             "on",
		"API_BASE_PATH":               "api/v1/",
		"STORE_BACKEND":               " Supabase ",
		"NEXT_PUBLIC_SUPABASE_URL":    "https://xyz.supabase.co",
		"SUPABASE_KEY":                "anon",
		"NEXT_PUBLIC_SUPABASE_KEY":    "ignored",
		"SUPABASE_TIMEOUT":            "3s",
		"BREAKER_FAILURES":            "2",
		"JWT_TTL":                     "2h",
		"RECORDS_DEFAULT_LIMIT":       "20",
		"RECORDS_MAX_LIMIT":           "100",
		"REDACT_BACKEND_ERRORS":       "true",
		"RATE_RPS":                    "x",
		"RATE_BURST":                  "nope",
		"RATE_WRITE_COST":             "4",
		"CORS_ALLOWED_ORIGINS":        " https://a.com , , http://b ",
		"ENABLE_HSTS":                 "TRUE",
		"HSTS_MAX_AGE":                "24h",
		"IDEMPOTENCY_TTL":             "48h",
		"OTEL_ENABLED":                "1",
		"OTEL_EXPORTER_OTLP_INSECURE": "0",
		"OTEL_TRACES_SAMPLER_ARG":     "0.75",
	})

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8088", cfg.Port)
	assert.Equal(t, 2*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 8192, cfg.MaxHeaderBytes)
	assert.Equal(t, "release", cfg.GinMode)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.True(t, cfg.LogPretty && cfg.SwaggerEnabled)
	assert.Equal(t, "/api/v1", cfg.APIBasePath)

	assert.Equal(t, BackendSupabase, cfg.StoreBackend)
	assert.Equal(t, SupabaseConfig{
		URL:             "https://xyz.supabase.co",
		Key:             "anon",
		Timeout:         3 * time.Second,
		BreakerFailures: 2,
		BreakerCooldown: 30 * time.Second,
	}, cfg.Supabase)
	assert.Equal(t, 2*time.Hour, cfg.JWT.TTL)
	assert.Equal(t, RecordsConfig{DefaultLimit: 20, MaxLimit: 100}, cfg.Records)
	assert.True(t, cfg.RedactBackendErrors)

	// unparsable values keep their defaults
	assert.Equal(t, 5.0, cfg.RateRPS)
	assert.Equal(t, 10, cfg.RateBurst)
	assert.Equal(t, 4, cfg.RateWriteCost)

	assert.Equal(t, []string{"https://a.com", "http://b"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, SecurityConfig{EnableHSTS: true, HSTSMaxAge: 24 * time.Hour}, cfg.Security)
	assert.Equal(t, 48*time.Hour, cfg.IdempotencyTTL)
	assert.True(t, cfg.OTEL.Enabled)
	assert.False(t, cfg.OTEL.Insecure)
	assert.Equal(t, 0.75, cfg.OTEL.SampleRatio)
}

func TestLoad_Validation(t *testing.T) {
	cases := map[string]struct {
		env  map[string]string
		want string
	}{
		"log level":          {map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL"},
		"blank port":         {map[string]string{"PORT": "   "}, "PORT must not be empty"},
		"zero timeout":       {map[string]string{"READ_TIMEOUT": "0s"}, "timeouts must be positive"},
		"header bytes":       {map[string]string{"MAX_HEADER_BYTES": "0"}, "MAX_HEADER_BYTES"},
		"blank db path":      {map[string]string{"DB_PATH": "  "}, "DB_PATH must not be empty"},
		"unknown backend":    {map[string]string{"STORE_BACKEND": "postgres"}, "STORE_BACKEND"},
		"supabase no creds":  {map[string]string{"STORE_BACKEND": "supabase"}, "SUPABASE_URL and SUPABASE_KEY"},
		"breaker failures":   {map[string]string{"BREAKER_FAILURES": "0"}, "BREAKER_FAILURES"},
		"breaker cooldown":   {map[string]string{"BREAKER_COOLDOWN": "-1s"}, "BREAKER_COOLDOWN"},
		"inverted limits":    {map[string]string{"RECORDS_DEFAULT_LIMIT": "100", "RECORDS_MAX_LIMIT": "10"}, "RECORDS_DEFAULT_LIMIT"},
		"jwt ttl":            {map[string]string{"JWT_TTL": "0s"}, "JWT_TTL"},
		"negative rps":       {map[string]string{"RATE_RPS": "-1"}, "RATE_RPS"},
		"zero burst":         {map[string]string{"RATE_BURST": "0"}, "RATE_BURST"},
		"zero write cost":    {map[string]string{"RATE_WRITE_COST": "0"}, "RATE_WRITE_COST"},
		"negative hsts":      {map[string]string{"HSTS_MAX_AGE": "-1s"}, "HSTS_MAX_AGE"},
		"zero idem ttl":      {map[string]string{"IDEMPOTENCY_TTL": "0s"}, "IDEMPOTENCY_TTL"},
		"sample out of band": {map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"}, "OTEL_TRACES_SAMPLER_ARG"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			setenv(t, tc.env)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoad_ReportsEveryViolation(t *testing.T) {
	setenv(t, map[string]string{"RATE_BURST": "0", "JWT_TTL": "-1m", "PORT": " "})

	_, err := Load()
	require.Error(t, err)
	for _, want := range []string{"RATE_BURST", "JWT_TTL", "PORT"} {
		assert.Contains(t, err.Error(), want)
	}
	assert.Equal(t, 3, strings.Count(err.Error(), "\n")+1)
}

func TestMustLoad_Panics(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose")
	assert.Panics(t, func() { MustLoad() })
}

func TestEnvHelpers(t *testing.T) {
	setenv(t, map[string]string{
		"X_EMPTY": "", "X_STR": "val",
		"X_INT": " 42 ", "X_FLOAT": "3.5", "X_DUR": "150ms",
		"X_BAD": "zzz", "X_OFF": "Off", "X_YES": " yes ",
	})

	assert.Equal(t, "d", getenv("X_EMPTY", "d"))
	assert.Equal(t, "val", getenv("X_STR", "d"))
	assert.Equal(t, 42, getint("X_INT", 0))
	assert.Equal(t, 7, getint("X_BAD", 7))
	assert.Equal(t, 3.5, getfloat("X_FLOAT", 0))
	assert.Equal(t, 1.25, getfloat("X_BAD", 1.25))
	assert.Equal(t, 150*time.Millisecond, getdur("X_DUR", time.Second))
	assert.Equal(t, 2*time.Second, getdur("X_BAD", 2*time.Second))

	assert.True(t, getbool("X_YES", false))
	assert.False(t, getbool("X_OFF", true))
	assert.True(t, getbool("X_BAD", true), "unparsable keeps default")
	assert.True(t, getbool("X_EMPTY", true))
}

func TestSplitCSVAndBasePath(t *testing.T) {
	assert.Nil(t, splitCSV(""))
	assert.Nil(t, splitCSV(" , ,"))
	assert.Equal(t, []string{"a", "b", "c"}, splitCSV(" a, ,b ,  c  ,"))

	for in, want := range map[string]string{
		"": "/", " / ": "/", "v1": "/v1", "/v1/": "/v1", "//api/v2//": "/api/v2",
	} {
		assert.Equal(t, want, normalizeBasePath(in), "normalizeBasePath(%q)", in)
	}
}

func TestOneOf(t *testing.T) {
	assert.Equal(t, "test", oneOf("test", "release", "debug", "test"))
	assert.Equal(t, "release", oneOf("prod", "release", "debug", "test"))
}
