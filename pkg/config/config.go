package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// TLS modes accepted by TLS_MODE.
const (
	TLSModeNone     = "none"
	TLSModeFiles    = "files"
	TLSModeAutocert = "autocert"
)

type Config struct {
	Env       string
	Port      int
	HostURL   string
	WebSecret string

	Storage StorageConfig
	Link    LinkConfig
	Session SessionConfig
	Push    PushConfig
	Redis   RedisConfig
	Staff   StaffConfig
	Log     LogConfig
	TLS     TLSConfig
	Exports ExportsConfig
	Docs    DocsConfig
	CORS    CORSConfig
}

// StorageConfig locates exercise sources and student submissions on disk.
type StorageConfig struct {
	CoursesDir     string
	SubmissionsDir string
}

// LinkConfig bounds the device-linking rendezvous.
type LinkConfig struct {
	Timeout        time.Duration
	AwaitPerMinute int
	AwaitBurst     int
}

// SessionConfig configures the browser session cookie.
type SessionConfig struct {
	CookieName string
	TTL        time.Duration
	Secure     bool
	LoginURL   string
}

// PushConfig governs the lightweight client push endpoint.
type PushConfig struct {
	TokenWindowHours int
	RatePerMinute    int
	RateBurst        int
	MaxBytes         int64
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// StaffConfig controls caching of course staff rosters.
type StaffConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// TLSConfig selects how the listener obtains certificates.
type TLSConfig struct {
	Mode           string
	CertFile       string
	KeyFile        string
	ReloadInterval time.Duration
	AutocertHosts  []string
	AutocertCache  string
}

// ExportsConfig toggles snapshot exports for staff.
type ExportsConfig struct {
	Enabled bool
}

// DocsConfig toggles the swagger UI.
type DocsConfig struct {
	Enabled bool
}

type CORSConfig struct {
	AllowedOrigins []string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.WebSecret = v.GetString("WEB_SECRET")
	cfg.HostURL = strings.TrimRight(v.GetString("HOST_URL"), "/")
	if cfg.HostURL == "" {
		cfg.HostURL = fmt.Sprintf("http://localhost:%d", cfg.Port)
	}

	cfg.Storage = StorageConfig{
		CoursesDir:     v.GetString("COURSES_DIR"),
		SubmissionsDir: v.GetString("SUBMISSIONS_DIR"),
	}

	cfg.Link = LinkConfig{
		Timeout:        parseDuration(v.GetString("LINK_TIMEOUT"), 10*time.Minute),
		AwaitPerMinute: v.GetInt("AWAIT_RATE_PER_MINUTE"),
		AwaitBurst:     v.GetInt("AWAIT_RATE_BURST"),
	}

	cfg.Session = SessionConfig{
		CookieName: v.GetString("SESSION_COOKIE"),
		TTL:        parseDuration(v.GetString("SESSION_TTL"), 12*time.Hour),
		Secure:     v.GetBool("SESSION_SECURE"),
		LoginURL:   v.GetString("SESSION_LOGIN_URL"),
	}

	maxPush := v.GetInt64("MAX_PUSH_BYTES")
	if maxPush <= 0 {
		maxPush = 1024 * 1024
	}
	window := v.GetInt("USER_TOKEN_WINDOW_HOURS")
	if window <= 0 {
		window = 12
	}
	cfg.Push = PushConfig{
		TokenWindowHours: window,
		RatePerMinute:    v.GetInt("PUSH_RATE_PER_MINUTE"),
		RateBurst:        v.GetInt("PUSH_RATE_BURST"),
		MaxBytes:         maxPush,
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Staff = StaffConfig{
		CacheEnabled: v.GetBool("ENABLE_STAFF_CACHE"),
		CacheTTL:     parseDuration(v.GetString("STAFF_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.TLS = TLSConfig{
		Mode:           strings.ToLower(v.GetString("TLS_MODE")),
		CertFile:       v.GetString("TLS_CERT_FILE"),
		KeyFile:        v.GetString("TLS_KEY_FILE"),
		ReloadInterval: parseDuration(v.GetString("TLS_RELOAD_INTERVAL"), 24*time.Hour),
		AutocertHosts:  splitAndTrim(v.GetString("AUTOCERT_HOSTS")),
		AutocertCache:  v.GetString("AUTOCERT_CACHE_DIR"),
	}

	cfg.Exports = ExportsConfig{Enabled: v.GetBool("ENABLE_EXPORTS")}
	cfg.Docs = DocsConfig{Enabled: v.GetBool("ENABLE_DOCS")}
	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("CORS_ALLOWED_ORIGINS"))}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that would run insecurely or cannot start.
func (c *Config) Validate() error {
	if c.Env == EnvProduction && (c.WebSecret == "" || c.WebSecret == defaultSecret) {
		return errors.New("WEB_SECRET must be set in production")
	}
	if c.WebSecret == "" {
		return errors.New("WEB_SECRET must not be empty")
	}
	switch c.TLS.Mode {
	case TLSModeNone, "":
	case TLSModeFiles:
		if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
			return errors.New("TLS_CERT_FILE and TLS_KEY_FILE are required for TLS_MODE=files")
		}
	case TLSModeAutocert:
		if len(c.TLS.AutocertHosts) == 0 {
			return errors.New("AUTOCERT_HOSTS is required for TLS_MODE=autocert")
		}
	default:
		return fmt.Errorf("unknown TLS_MODE %q", c.TLS.Mode)
	}
	return nil
}

const defaultSecret = "dev_web_secret"

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 4443)
	v.SetDefault("HOST_URL", "")
	v.SetDefault("WEB_SECRET", defaultSecret)

	v.SetDefault("COURSES_DIR", "./courses")
	v.SetDefault("SUBMISSIONS_DIR", "./submissions")

	v.SetDefault("LINK_TIMEOUT", "10m")
	v.SetDefault("AWAIT_RATE_PER_MINUTE", 30)
	v.SetDefault("AWAIT_RATE_BURST", 5)

	v.SetDefault("SESSION_COOKIE", "asterism")
	v.SetDefault("SESSION_TTL", "12h")
	v.SetDefault("SESSION_SECURE", true)
	v.SetDefault("SESSION_LOGIN_URL", "")

	v.SetDefault("USER_TOKEN_WINDOW_HOURS", 12)
	v.SetDefault("PUSH_RATE_PER_MINUTE", 60)
	v.SetDefault("PUSH_RATE_BURST", 10)
	v.SetDefault("MAX_PUSH_BYTES", 1024*1024)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ENABLE_STAFF_CACHE", false)
	v.SetDefault("STAFF_CACHE_TTL", "5m")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("TLS_MODE", TLSModeNone)
	v.SetDefault("TLS_CERT_FILE", "./config/tls/fullchain.pem")
	v.SetDefault("TLS_KEY_FILE", "./config/tls/privkey.pem")
	v.SetDefault("TLS_RELOAD_INTERVAL", "24h")
	v.SetDefault("AUTOCERT_HOSTS", "")
	v.SetDefault("AUTOCERT_CACHE_DIR", "./config/autocert")

	v.SetDefault("ENABLE_EXPORTS", true)
	v.SetDefault("ENABLE_DOCS", false)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "")
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
