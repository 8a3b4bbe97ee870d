// Package config reads the server's settings from the environment. Every key
// has a working default except JWT_SECRET; unparsable values fall back to the
// default and out-of-range ones fail Load.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type CORSConfig struct {
	AllowedOrigins []string // CORS_ALLOWED_ORIGINS, comma separated; empty allows any origin
}

type SecurityConfig struct {
	EnableHSTS bool          // ENABLE_HSTS
	HSTSMaxAge time.Duration // HSTS_MAX_AGE
}

// OTELConfig drives the OTLP/gRPC trace exporter.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT, host:port
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG, 0..1
}

// AuthConfig verifies HS256 bearer tokens.
type AuthConfig struct {
	JWTSecret string // JWT_SECRET
	JWTIssuer string // JWT_ISSUER; empty skips the iss check
}

// StorageConfig selects the blob store. S3 (or anything speaking its API,
// such as R2 or MinIO via S3_ENDPOINT) is used when S3Bucket is set;
// otherwise keys are joined onto StaticBaseURL.
type StorageConfig struct {
	S3Region      string
	S3Bucket      string
	S3Endpoint    string
	S3AccessKey   string
	S3SecretKey   string
	S3PublicBase  string        // CDN base for public URLs
	S3PresignTTL  time.Duration // lifetime of signed URLs
	StaticBaseURL string
}

// RedisConfig enables cross-instance realtime fan-out when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Config is everything the server reads at startup.
type Config struct {
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	MaxBodyBytes      int64 // request bodies beyond this are rejected with 413
	GinMode           string

	LogLevel       string
	LogPretty      bool
	LogRedact      bool // access logs scrub headers and contact details
	SwaggerEnabled bool
	APIBasePath    string

	DBDriver string // sqlite|postgres|mysql
	DBDSN    string

	DefaultLocale    string   // display locale when a request names none
	TrustedAuthorIDs []string // posts anyone may see and interact with
	GroupTitleMaxLen int      // runes; 0 disables truncation
	MessageMaxRunes  int      // runes; 0 disables the check

	Auth    AuthConfig
	Storage StorageConfig
	Redis   RedisConfig

	RateRPS       float64 // tokens per second per caller
	RateBurst     int
	RateWriteCost int // tokens drawn by POST/PUT/PATCH/DELETE

	CORS     CORSConfig
	Security SecurityConfig

	IdempotencyTTL   time.Duration // how long a stored Idempotency-Key answers replays
	IdempotencyPurge time.Duration // sweep interval for expired keys

	OTEL OTELConfig
}

// MustLoad is Load for main: an invalid environment is fatal.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads, normalizes and validates the configuration. The error joins
// every problem found, not just the first.
func Load() (Config, error) {
	cfg := Config{
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		MaxBodyBytes:      int64(getint("MAX_BODY_BYTES", 1<<20)),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		LogRedact:      getbool("LOG_REDACT", true),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		DBDriver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
		DBDSN:    getenv("DB_DSN", "worldfriends.db"),

		DefaultLocale:    getenv("DEFAULT_LOCALE", "en"),
		TrustedAuthorIDs: splitCSV(getenv("TRUSTED_AUTHOR_IDS", "")),
		GroupTitleMaxLen: getint("GROUP_TITLE_MAX_LEN", 100),
		MessageMaxRunes:  getint("MESSAGE_MAX_RUNES", 4000),

		Auth: AuthConfig{
			JWTSecret: getenv("JWT_SECRET", ""),
			JWTIssuer: getenv("JWT_ISSUER", ""),
		},
		Storage: StorageConfig{
			S3Region:      getenv("S3_REGION", "us-east-1"),
			S3Bucket:      getenv("S3_BUCKET", ""),
			S3Endpoint:    getenv("S3_ENDPOINT", ""),
			S3AccessKey:   getenv("S3_ACCESS_KEY_ID", ""),
			S3SecretKey:   getenv("S3_SECRET_ACCESS_KEY", ""),
			S3PublicBase:  getenv("S3_PUBLIC_BASE_URL", ""),
			S3PresignTTL:  getdur("S3_PRESIGN_TTL", 15*time.Minute),
			StaticBaseURL: getenv("STATIC_BLOB_BASE_URL", "http://localhost:8080/media"),
		},
		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", ""),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getint("REDIS_DB", 0),
		},

		RateRPS:       getfloat("RATE_RPS", 5.0),
		RateBurst:     getint("RATE_BURST", 10),
		RateWriteCost: getint("RATE_WRITE_COST", 2),

		CORS: CORSConfig{AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", ""))},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL:   getdur("IDEMPOTENCY_TTL", 24*time.Hour),
		IdempotencyPurge: getdur("IDEMPOTENCY_PURGE_INTERVAL", time.Hour),

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "worldfriends-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}
	cfg.normalize()
	return cfg, cfg.validate()
}

func (c *Config) normalize() {
	if c.LogLevel == "warning" {
		c.LogLevel = "warn"
	}
	switch c.GinMode {
	case "debug", "release", "test":
	default:
		c.GinMode = "release"
	}
	if c.DBDriver == "postgresql" {
		c.DBDriver = "postgres"
	}
}

func (c *Config) validate() error {
	blank := func(s string) bool { return strings.TrimSpace(s) == "" }
	checks := []struct {
		bad bool
		msg string
	}{
		{!oneOf(c.LogLevel, "debug", "info", "warn", "error", "fatal", "panic"), "LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic"},
		{blank(c.Port), "PORT must not be empty"},
		{c.ReadTimeout <= 0 || c.ReadHeaderTimeout <= 0 || c.WriteTimeout <= 0 || c.IdleTimeout <= 0, "timeouts must be positive durations"},
		{c.MaxHeaderBytes <= 0, "MAX_HEADER_BYTES must be > 0"},
		{c.MaxBodyBytes <= 0, "MAX_BODY_BYTES must be > 0"},
		{!oneOf(c.DBDriver, "sqlite", "postgres", "mysql"), "DB_DRIVER must be one of: sqlite, postgres, mysql"},
		{blank(c.DBDSN), "DB_DSN must not be empty"},
		{c.GroupTitleMaxLen < 0, "GROUP_TITLE_MAX_LEN must be >= 0"},
		{c.MessageMaxRunes < 0, "MESSAGE_MAX_RUNES must be >= 0"},
		{blank(c.Auth.JWTSecret), "JWT_SECRET must be set"},
		{c.Storage.S3Bucket != "" && blank(c.Storage.S3Region), "S3_REGION is required with S3_BUCKET"},
		{c.RateRPS < 0, "RATE_RPS must be >= 0"},
		{c.RateBurst < 1, "RATE_BURST must be >= 1"},
		{c.RateWriteCost < 1, "RATE_WRITE_COST must be >= 1"},
		{c.Security.HSTSMaxAge < 0, "HSTS_MAX_AGE must be >= 0"},
		{c.IdempotencyTTL <= 0, "IDEMPOTENCY_TTL must be > 0"},
		{c.IdempotencyPurge <= 0, "IDEMPOTENCY_PURGE_INTERVAL must be > 0"},
		{c.OTEL.SampleRatio < 0 || c.OTEL.SampleRatio > 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]"},
	}
	var errs []error
	for _, ck := range checks {
		if ck.bad {
			errs = append(errs, errors.New(ck.msg))
		}
	}
	return errors.Join(errs...)
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// lookup returns parse(env[k]), or def when k is unset, empty or unparsable.
func lookup[T any](k string, def T, parse func(string) (T, error)) T {
	v, ok := os.LookupEnv(k)
	if !ok || v == "" {
		return def
	}
	out, err := parse(v)
	if err != nil {
		return def
	}
	return out
}

func getenv(k, def string) string {
	return lookup(k, def, func(v string) (string, error) { return v, nil })
}

func getint(k string, def int) int { return lookup(k, def, strconv.Atoi) }

func getdur(k string, def time.Duration) time.Duration {
	return lookup(k, def, time.ParseDuration)
}

func getfloat(k string, def float64) float64 {
	return lookup(k, def, func(v string) (float64, error) { return strconv.ParseFloat(v, 64) })
}

var errNotBool = errors.New("not a boolean")

func getbool(k string, def bool) bool {
	return lookup(k, def, func(v string) (bool, error) {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true, nil
		case "0", "false", "no", "n", "off":
			return false, nil
		}
		return false, errNotBool
	})
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalizeBasePath returns p with one leading slash and no trailing one;
// blank input is the root.
func normalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	return "/" + p
}
