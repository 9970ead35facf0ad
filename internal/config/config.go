// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes pipeline tuning
// (rate window, cache TTL, retry policy, moderation schedule, chunking),
// server timeouts, logging, the SQLite path, and observability settings.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-bot-gateway")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// UpstreamConfig points at the external collaborators: the entitlement
// service, the reply-generation service, and the platform adapter's send
// endpoint.
type UpstreamConfig struct {
	EntitlementURL string // UPSTREAM_ENTITLEMENT_URL
	GenerateURL    string // UPSTREAM_GENERATE_URL
	SendURL        string // UPSTREAM_SEND_URL
	SystemContext  string // SYSTEM_CONTEXT, persona passed to generation
}

// RateConfig tunes the per-author fixed-window admission limiter.
type RateConfig struct {
	Window time.Duration // RATE_WINDOW, fresh-window duration
	Max    int           // RATE_MAX_PER_WINDOW, admissions per window
}

// CacheConfig tunes the shared response cache.
type CacheConfig struct {
	TTL time.Duration // CACHE_TTL, entry lifetime
}

// RetryConfig tunes the retry executor wrapping remote oracles.
type RetryConfig struct {
	MaxAttempts    int           // RETRY_MAX_ATTEMPTS, total tries per call
	BaseDelay      time.Duration // RETRY_BASE_DELAY, first backoff interval
	AttemptTimeout time.Duration // RETRY_ATTEMPT_TIMEOUT, per-attempt deadline
}

// ModerationConfig tunes the escalation state machine.
//
// Timeouts lists the mute duration per warning level starting at the second
// warning (level 1 is always a plain warning). Violations past the end of the
// list reuse the last entry until BanThreshold is reached. The default
// five-level graduated schedule is 5m, 30m, 1h with BanThreshold 5; a
// three-strike quick-ban policy is expressed as Timeouts="5m" BanThreshold=3.
type ModerationConfig struct {
	Timeouts     []time.Duration // MOD_TIMEOUTS, CSV of durations
	BanThreshold int             // MOD_BAN_THRESHOLD, warnings before a ban
	BanDuration  time.Duration   // MOD_BAN_DURATION, 0 means permanent
}

// ChunkConfig tunes reply splitting and send pacing.
type ChunkConfig struct {
	MaxLen int           // CHUNK_MAX_LEN, per-chunk character budget
	Delay  time.Duration // CHUNK_DELAY, pause between follow-up chunks
}

// SweepConfig tunes the background maintenance sweeper. The rate-window and
// cache sweep interval defaults to the rate window duration; serializer lanes
// are checked more frequently so idle goroutines wind down quickly.
type SweepConfig struct {
	StoreInterval time.Duration // SWEEP_STORE_INTERVAL, rate windows + cache
	LaneInterval  time.Duration // SWEEP_LANE_INTERVAL, idle serializer lanes
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

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// App
	DBPath   string // SQLite path for the violation ledger
	Upstream UpstreamConfig

	// Pipeline
	Rate       RateConfig
	Cache      CacheConfig
	Retry      RetryConfig
	Moderation ModerationConfig
	Chunk      ChunkConfig
	Sweep      SweepConfig

	// Edge rate limiting (HTTP adapter, token bucket per client)
	EdgeRPS   float64 // tokens per second (>= 0)
	EdgeBurst int     // bucket size (>= 1)

	// Web protection
	CORS CORSConfig

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

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		// App
		DBPath: getenv("DB_PATH", "app.db"),
		Upstream: UpstreamConfig{
			EntitlementURL: getenv("UPSTREAM_ENTITLEMENT_URL", "http://localhost:8081/v1/entitlements/check"),
			GenerateURL:    getenv("UPSTREAM_GENERATE_URL", "http://localhost:8082/v1/generate"),
			SendURL:        getenv("UPSTREAM_SEND_URL", "http://localhost:8083/v1/send"),
			SystemContext:  getenv("SYSTEM_CONTEXT", "You are a helpful community assistant. Answer concisely."),
		},

		// Pipeline
		Rate: RateConfig{
			Window: getdur("RATE_WINDOW", time.Minute),
			Max:    getint("RATE_MAX_PER_WINDOW", 10),
		},
		Cache: CacheConfig{
			TTL: getdur("CACHE_TTL", 5*time.Minute),
		},
		Retry: RetryConfig{
			MaxAttempts:    getint("RETRY_MAX_ATTEMPTS", 3),
			BaseDelay:      getdur("RETRY_BASE_DELAY", 2*time.Second),
			AttemptTimeout: getdur("RETRY_ATTEMPT_TIMEOUT", 8*time.Second),
		},
		Moderation: ModerationConfig{
			Timeouts:     splitDurCSV(getenv("MOD_TIMEOUTS", "5m,30m,1h")),
			BanThreshold: getint("MOD_BAN_THRESHOLD", 5),
			BanDuration:  getdur("MOD_BAN_DURATION", 0),
		},
		Chunk: ChunkConfig{
			MaxLen: getint("CHUNK_MAX_LEN", 2000),
			Delay:  getdur("CHUNK_DELAY", 500*time.Millisecond),
		},
		Sweep: SweepConfig{
			StoreInterval: getdur("SWEEP_STORE_INTERVAL", 0), // 0 → rate window
			LaneInterval:  getdur("SWEEP_LANE_INTERVAL", time.Minute),
		},

		// Edge rate limiting
		EdgeRPS:   getfloat("EDGE_RPS", 25.0),
		EdgeBurst: getint("EDGE_BURST", 50),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-bot-gateway"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.Sweep.StoreInterval <= 0 {
		cfg.Sweep.StoreInterval = cfg.Rate.Window
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if strings.TrimSpace(cfg.Upstream.EntitlementURL) == "" ||
		strings.TrimSpace(cfg.Upstream.GenerateURL) == "" ||
		strings.TrimSpace(cfg.Upstream.SendURL) == "" {
		return cfg, errors.New("UPSTREAM_* URLs must not be empty")
	}
	if cfg.Rate.Window <= 0 {
		return cfg, errors.New("RATE_WINDOW must be > 0")
	}
	if cfg.Rate.Max < 1 {
		return cfg, errors.New("RATE_MAX_PER_WINDOW must be >= 1")
	}
	if cfg.Cache.TTL <= 0 {
		return cfg, errors.New("CACHE_TTL must be > 0")
	}
	if cfg.Retry.MaxAttempts < 1 {
		return cfg, errors.New("RETRY_MAX_ATTEMPTS must be >= 1")
	}
	if cfg.Retry.BaseDelay <= 0 {
		return cfg, errors.New("RETRY_BASE_DELAY must be > 0")
	}
	if cfg.Retry.AttemptTimeout <= 0 {
		return cfg, errors.New("RETRY_ATTEMPT_TIMEOUT must be > 0")
	}
	if len(cfg.Moderation.Timeouts) == 0 {
		return cfg, errors.New("MOD_TIMEOUTS must list at least one duration")
	}
	for _, d := range cfg.Moderation.Timeouts {
		if d <= 0 {
			return cfg, errors.New("MOD_TIMEOUTS entries must be positive durations")
		}
	}
	if cfg.Moderation.BanThreshold < 2 {
		return cfg, errors.New("MOD_BAN_THRESHOLD must be >= 2")
	}
	if cfg.Moderation.BanDuration < 0 {
		return cfg, errors.New("MOD_BAN_DURATION must be >= 0 (0 = permanent)")
	}
	if cfg.Chunk.MaxLen < 1 {
		return cfg, errors.New("CHUNK_MAX_LEN must be >= 1")
	}
	if cfg.Chunk.Delay < 0 {
		return cfg, errors.New("CHUNK_DELAY must be >= 0")
	}
	if cfg.Sweep.LaneInterval <= 0 {
		return cfg, errors.New("SWEEP_LANE_INTERVAL must be > 0")
	}
	if cfg.EdgeRPS < 0 {
		return cfg, errors.New("EDGE_RPS must be >= 0")
	}
	if cfg.EdgeBurst < 1 {
		return cfg, errors.New("EDGE_BURST must be >= 1")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// splitDurCSV parses a comma-separated list of durations, dropping entries
// that fail to parse. Validation catches an empty result.
func splitDurCSV(s string) []time.Duration {
	out := make([]time.Duration, 0, 4)
	for _, p := range splitCSV(s) {
		if d, err := time.ParseDuration(p); err == nil {
			out = append(out, d)
		}
	}
	return out
}
