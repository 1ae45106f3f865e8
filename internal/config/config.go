package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	StoreMemory = "memory"
	StoreMySQL  = "mysql"

	SettingsStore = "store"
	SettingsDapr  = "dapr"

	MailSMTP = "smtp"
	MailLog  = "log"
)

type Config struct {
	ServiceName    string `envconfig:"SERVICE_NAME" default:"newsletter-api"`
	ServiceVersion string `envconfig:"SERVICE_VERSION" default:"1.0.0"`
	Port           string `envconfig:"PORT" default:"8080"`
	GinMode        string `envconfig:"GIN_MODE"`
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	TracingStdout  bool   `envconfig:"TRACING_STDOUT" default:"false"`

	SiteURL  string `envconfig:"SITE_URL" default:"http://localhost:3000"`
	SiteName string `envconfig:"SITE_NAME" default:"Health Life"`

	NewsletterAPIKey string `envconfig:"NEWSLETTER_API_KEY"`
	AdminUser        string `envconfig:"ADMIN_USER" default:"admin"`
	AdminPassword    string `envconfig:"ADMIN_PASSWORD"`

	StoreBackend    string        `envconfig:"STORE_BACKEND" default:"memory"`
	MySQLDSN        string        `envconfig:"MYSQL_DSN"`
	MySQLMaxOpen    int           `envconfig:"MYSQL_MAX_OPEN_CONNS" default:"10"`
	MySQLMaxIdle    int           `envconfig:"MYSQL_MAX_IDLE_CONNS" default:"5"`
	MySQLMaxLife    time.Duration `envconfig:"MYSQL_CONN_MAX_LIFETIME" default:"5m"`
	MigrateOnStart  bool          `envconfig:"MIGRATE_ON_START" default:"false"`
	SettingsBackend string        `envconfig:"SETTINGS_BACKEND" default:"store"`
	DaprStateStore  string        `envconfig:"DAPR_STATE_STORE" default:"statestore"`

	MailTransport string `envconfig:"MAIL_TRANSPORT" default:"smtp"`

	SettingsCacheTTL time.Duration `envconfig:"SETTINGS_CACHE_TTL" default:"1m"`
	DispatchClaimTTL time.Duration `envconfig:"DISPATCH_CLAIM_TTL" default:"10m"`
}

// Load reads an optional .env file and then the process environment.
// A missing env file is not an error.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreMemory:
	case StoreMySQL:
		if c.MySQLDSN == "" {
			return errors.New("MYSQL_DSN is required when STORE_BACKEND=mysql")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	switch c.SettingsBackend {
	case SettingsStore, SettingsDapr:
	default:
		return fmt.Errorf("unknown SETTINGS_BACKEND %q", c.SettingsBackend)
	}

	switch c.MailTransport {
	case MailSMTP, MailLog:
	default:
		return fmt.Errorf("unknown MAIL_TRANSPORT %q", c.MailTransport)
	}

	if c.DispatchClaimTTL <= 0 {
		return errors.New("DISPATCH_CLAIM_TTL must be positive")
	}
	return nil
}
