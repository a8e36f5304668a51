package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"
)

type Config struct {
	// API
	Addr           string   `envconfig:"API_ADDR" default:"127.0.0.1:8080"` // ":8080" in Docker
	PublicAPIKeys  []string `envconfig:"PUBLIC_API_KEYS"`
	AdminAPIKeys   []string `envconfig:"ADMIN_API_KEYS"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"`
	PublicRPM      int      `envconfig:"PUBLIC_RPM" default:"120"`
	PublicBurst    int      `envconfig:"PUBLIC_BURST" default:"60"`
	AdminRPM       int      `envconfig:"ADMIN_RPM" default:"30"`
	AdminBurst     int      `envconfig:"ADMIN_BURST" default:"10"`

	// Logs
	LogDir   string `envconfig:"LOG_DIR" default:"logs"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Catalog; empty path means the built-in catalog
	CatalogPath    string   `envconfig:"CATALOG_PATH"`
	ProbeIDs       []string `envconfig:"PROBE_IDS"`
	ProbeProviders []string `envconfig:"PROBE_PROVIDERS"`

	// Probe tuning
	ThresholdBytes int64         `envconfig:"PROBE_THRESHOLD_BYTES" default:"65536"`
	ProbeTimeout   time.Duration `envconfig:"PROBE_TIMEOUT" default:"5s"`
	Stagger        time.Duration `envconfig:"PROBE_STAGGER" default:"300ms"`
	ProbeInterval  time.Duration `envconfig:"PROBE_INTERVAL" default:"0s"` // 0 disables periodic runs
	DNSServer      string        `envconfig:"DNS_SERVER"`                  // empty disables DNS diagnostics
	DNSTimeout     time.Duration `envconfig:"DNS_TIMEOUT" default:"3s"`

	// Alerts
	SlackWebhookURL  string        `envconfig:"SLACK_WEBHOOK_URL"`
	TelegramBotToken string        `envconfig:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   string        `envconfig:"TELEGRAM_CHAT_ID"`
	AlertOnRecovery  bool          `envconfig:"ALERT_ON_RECOVERY" default:"true"`
	AlertCooldown    time.Duration `envconfig:"ALERT_COOLDOWN" default:"10m"`

	// Event fan-out
	RedisAddr     string `envconfig:"REDIS_ADDR"` // empty disables the Redis publisher
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisChannel  string `envconfig:"REDIS_CHANNEL" default:"dpiprobe:events"`
	EventBuffer   int    `envconfig:"EVENT_BUFFER" default:"500"`
}

// FromEnv reads an optional .env file, then the process environment.
func FromEnv() (Config, error) {
	// a missing .env is fine; real deployments use the environment
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	cfg.PublicAPIKeys = clean(cfg.PublicAPIKeys)
	cfg.AdminAPIKeys = clean(cfg.AdminAPIKeys)
	cfg.AllowedOrigins = clean(cfg.AllowedOrigins)
	cfg.ProbeIDs = clean(cfg.ProbeIDs)
	cfg.ProbeProviders = clean(cfg.ProbeProviders)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Validate reports every out-of-range setting at once.
func (c Config) Validate() error {
	var err error
	if c.ThresholdBytes <= 0 {
		err = multierr.Append(err, errors.New("PROBE_THRESHOLD_BYTES must be > 0"))
	}
	if c.ProbeTimeout <= 0 {
		err = multierr.Append(err, errors.New("PROBE_TIMEOUT must be > 0"))
	}
	if c.Stagger < 0 {
		err = multierr.Append(err, errors.New("PROBE_STAGGER must be >= 0"))
	}
	if c.ProbeInterval < 0 {
		err = multierr.Append(err, errors.New("PROBE_INTERVAL must be >= 0"))
	}
	if c.DNSTimeout <= 0 {
		err = multierr.Append(err, errors.New("DNS_TIMEOUT must be > 0"))
	}
	if c.PublicRPM <= 0 || c.AdminRPM <= 0 || c.PublicBurst <= 0 || c.AdminBurst <= 0 {
		err = multierr.Append(err, errors.New("rate limits must be > 0"))
	}
	if c.EventBuffer <= 0 {
		err = multierr.Append(err, errors.New("EVENT_BUFFER must be > 0"))
	}
	return err
}

func clean(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
