// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, webhook credentials, the
// model backend, the messaging platform client, and rate limiting.
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
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-finance-bot")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// WebhookConfig holds credentials for the inbound webhook endpoint.
//
// Secret signs delivery payloads (HMAC-SHA256 over the raw body); the
// verifier fails closed when it is empty. VerifyToken is the shared token
// checked during the subscribe handshake.
type WebhookConfig struct {
	Secret      string // WEBHOOK_SECRET
	VerifyToken string // VERIFY_TOKEN
}

// ModelConfig holds settings for the Anthropic model backend.
type ModelConfig struct {
	APIKey        string        // ANTHROPIC_API_KEY
	Name          string        // ANTHROPIC_MODEL
	MaxTokens     int           // MODEL_MAX_TOKENS
	Timeout       time.Duration // MODEL_TIMEOUT per API call
	MaxIterations int           // MAX_TOOL_ITERATIONS cap on the tool loop
}

// PlatformConfig holds credentials for the outbound messaging platform
// (WhatsApp Cloud API).
type PlatformConfig struct {
	APIBase     string        // WHATSAPP_API_BASE
	Token       string        // WHATSAPP_TOKEN
	PhoneID     string        // WHATSAPP_PHONE_ID
	SendTimeout time.Duration // SEND_TIMEOUT per outbound send
}

// BotConfig holds conversation-level behavior knobs.
type BotConfig struct {
	HistoryWindow  int           // HISTORY_WINDOW recent turns fed to the model
	RateLimitMax   int           // RATE_LIMIT_MAX user messages per window
	RateLimitWin   time.Duration // RATE_LIMIT_WINDOW trailing window
	PairingCodeTTL time.Duration // PAIRING_CODE_TTL validity of a pairing code
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
	DBPath   string // SQLite path
	Webhook  WebhookConfig
	Model    ModelConfig
	Platform PlatformConfig
	Bot      BotConfig

	// Edge rate limiting (token bucket per client IP)
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

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
		Webhook: WebhookConfig{
			Secret:      getenv("WEBHOOK_SECRET", ""),
			VerifyToken: getenv("VERIFY_TOKEN", ""),
		},
		Model: ModelConfig{
			APIKey:        getenv("ANTHROPIC_API_KEY", ""),
			Name:          getenv("ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),
			MaxTokens:     getint("MODEL_MAX_TOKENS", 1024),
			Timeout:       getdur("MODEL_TIMEOUT", 30*time.Second),
			MaxIterations: getint("MAX_TOOL_ITERATIONS", 5),
		},
		Platform: PlatformConfig{
			APIBase:     getenv("WHATSAPP_API_BASE", "https://graph.facebook.com/v19.0"),
			Token:       getenv("WHATSAPP_TOKEN", ""),
			PhoneID:     getenv("WHATSAPP_PHONE_ID", ""),
			SendTimeout: getdur("SEND_TIMEOUT", 10*time.Second),
		},
		Bot: BotConfig{
			HistoryWindow:  getint("HISTORY_WINDOW", 12),
			RateLimitMax:   getint("RATE_LIMIT_MAX", 5),
			RateLimitWin:   getdur("RATE_LIMIT_WINDOW", 60*time.Second),
			PairingCodeTTL: getdur("PAIRING_CODE_TTL", 10*time.Minute),
		},

		// Edge rate limiting
		RateRPS:   getfloat("RATE_RPS", 20.0),
		RateBurst: getint("RATE_BURST", 40),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-finance-bot"),
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
	cfg.Model.Name = strings.TrimSpace(cfg.Model.Name)

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
	if cfg.Model.Name == "" {
		return cfg, errors.New("ANTHROPIC_MODEL must not be empty")
	}
	if cfg.Model.MaxTokens < 1 {
		return cfg, errors.New("MODEL_MAX_TOKENS must be >= 1")
	}
	if cfg.Model.Timeout <= 0 {
		return cfg, errors.New("MODEL_TIMEOUT must be > 0")
	}
	if cfg.Model.MaxIterations < 1 {
		return cfg, errors.New("MAX_TOOL_ITERATIONS must be >= 1")
	}
	if cfg.Platform.SendTimeout <= 0 {
		return cfg, errors.New("SEND_TIMEOUT must be > 0")
	}
	if cfg.Bot.HistoryWindow < 1 {
		return cfg, errors.New("HISTORY_WINDOW must be >= 1")
	}
	if cfg.Bot.RateLimitMax < 1 {
		return cfg, errors.New("RATE_LIMIT_MAX must be >= 1")
	}
	if cfg.Bot.RateLimitWin <= 0 {
		return cfg, errors.New("RATE_LIMIT_WINDOW must be > 0")
	}
	if cfg.Bot.PairingCodeTTL <= 0 {
		return cfg, errors.New("PAIRING_CODE_TTL must be > 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
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
