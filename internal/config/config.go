// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server, logging, bot,
// storage, session, and observability settings for the relay.
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
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// LogConfig controls the global zerolog logger.
type LogConfig struct {
	Level      string // debug|info|warn|error|fatal|panic
	Pretty     bool   // console writer instead of JSON
	File       string // optional rotating log file
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// BotConfig holds the chat-platform settings.
type BotConfig struct {
	Token         string        // BOT_TOKEN (required)
	Username      string        // used when getMe reports no username
	AdminID       int64         // 0 = nobody may read the audit log
	LinkBaseURL   string        // deep-link base, e.g. https://t.me
	WebhookHost   string        // empty = long polling
	WebhookPath   string        // route the platform posts updates to
	WebhookSecret string        // X-Telegram-Bot-Api-Secret-Token value
	PollTimeout   time.Duration // long-poll wait
	OutboundRPS   float64
	OutboundBurst int
	AuditLimit    int // default /logs size
	NotifyAdmin   bool
}

// WebhookMode reports whether updates arrive via webhook.
func (b BotConfig) WebhookMode() bool { return b.WebhookHost != "" }

// WebhookURL is the public URL registered with the platform.
func (b BotConfig) WebhookURL() string {
	if !b.WebhookMode() {
		return ""
	}
	host := strings.TrimRight(b.WebhookHost, "/")
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "https://" + host
	}
	return host + b.WebhookPath
}

// StorageConfig selects the database.
type StorageConfig struct {
	Driver      string // sqlite|postgres
	Path        string // sqlite file
	DatabaseURL string // postgres DSN
}

// DSN returns the connection string for the configured driver.
func (s StorageConfig) DSN() string {
	if s.Driver == "postgres" {
		return s.DatabaseURL
	}
	return s.Path
}

// SessionConfig selects where compose sessions live.
type SessionConfig struct {
	Backend       string // memory|redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration // 0 = until consumed
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

	Log      LogConfig
	Bot      BotConfig
	Storage  StorageConfig
	Sessions SessionConfig

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
		Port:              getenv("PORT", "10000"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		Log: LogConfig{
			Level:      strings.ToLower(getenv("LOG_LEVEL", "info")),
			Pretty:     getbool("LOG_PRETTY", false),
			File:       strings.TrimSpace(getenv("LOG_FILE", "")),
			MaxSizeMB:  getint("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getint("LOG_MAX_BACKUPS", 3),
			MaxAgeDays: getint("LOG_MAX_AGE_DAYS", 28),
		},

		Bot: BotConfig{
			Token:         strings.TrimSpace(getenv("BOT_TOKEN", "")),
			Username:      strings.TrimPrefix(strings.TrimSpace(getenv("BOT_USERNAME", "anon_message_bot")), "@"),
			AdminID:       getint64("ADMIN_ID", 0),
			LinkBaseURL:   strings.TrimRight(getenv("LINK_BASE_URL", "https://t.me"), "/"),
			WebhookHost:   strings.TrimSpace(getenv("WEBHOOK_HOST", getenv("RENDER_EXTERNAL_HOSTNAME", ""))),
			WebhookPath:   normalizeBasePath(getenv("WEBHOOK_PATH", "/webhook")),
			WebhookSecret: getenv("WEBHOOK_SECRET", ""),
			PollTimeout:   getdur("POLL_TIMEOUT", 30*time.Second),
			OutboundRPS:   getfloat("OUTBOUND_RPS", 25),
			OutboundBurst: getint("OUTBOUND_BURST", 5),
			AuditLimit:    getint("AUDIT_LIMIT", 20),
			NotifyAdmin:   getbool("NOTIFY_ADMIN_ON_START", true),
		},

		Storage: StorageConfig{
			Driver:      strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:        getenv("DB_PATH", "anon_bot.db"),
			DatabaseURL: getenv("DATABASE_URL", ""),
		},

		Sessions: SessionConfig{
			Backend:       strings.ToLower(getenv("SESSION_BACKEND", "memory")),
			RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getenv("REDIS_PASSWORD", ""),
			RedisDB:       getint("REDIS_DB", 0),
			TTL:           getdur("SESSION_TTL", 0),
		},

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
			ServiceName: getenv("OTEL_SERVICE_NAME", "anon-relay"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.Log.Level == "warning" {
		cfg.Log.Level = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.Storage.Driver == "postgresql" {
		cfg.Storage.Driver = "postgres"
	}

	// --- validation ---
	switch cfg.Log.Level {
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
	if cfg.Log.MaxSizeMB <= 0 || cfg.Log.MaxBackups < 0 || cfg.Log.MaxAgeDays < 0 {
		return cfg, errors.New("LOG_MAX_SIZE_MB must be > 0 and LOG_MAX_BACKUPS/LOG_MAX_AGE_DAYS >= 0")
	}
	if cfg.Bot.Token == "" {
		return cfg, errors.New("BOT_TOKEN must not be empty")
	}
	if cfg.Bot.Username == "" {
		return cfg, errors.New("BOT_USERNAME must not be empty")
	}
	if cfg.Bot.AdminID < 0 {
		return cfg, errors.New("ADMIN_ID must be >= 0")
	}
	if cfg.Bot.PollTimeout <= 0 {
		return cfg, errors.New("POLL_TIMEOUT must be > 0")
	}
	if cfg.Bot.OutboundRPS <= 0 {
		return cfg, errors.New("OUTBOUND_RPS must be > 0")
	}
	if cfg.Bot.OutboundBurst < 1 {
		return cfg, errors.New("OUTBOUND_BURST must be >= 1")
	}
	if cfg.Bot.AuditLimit < 1 {
		return cfg, errors.New("AUDIT_LIMIT must be >= 1")
	}
	switch cfg.Storage.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.Storage.DatabaseURL) == "" {
			return cfg, errors.New("DATABASE_URL must be set when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	switch cfg.Sessions.Backend {
	case "memory":
	case "redis":
		if strings.TrimSpace(cfg.Sessions.RedisAddr) == "" {
			return cfg, errors.New("REDIS_ADDR must be set when SESSION_BACKEND=redis")
		}
	default:
		return cfg, errors.New("SESSION_BACKEND must be one of: memory, redis")
	}
	if cfg.Sessions.TTL < 0 {
		return cfg, errors.New("SESSION_TTL must be >= 0")
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
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return def
}

func getint64(k string, def int64) int64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
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

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
