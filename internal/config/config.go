package config

import (
	"errors"
	"io/fs"
	"log"
	"net"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"NewsHarvester/internal/domain"
)

const (
	defaultTimezone  = "Local"
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115 Safari/537.36"

	configPathEnv     = "NEWS_HARVESTER_CONFIG"
	databaseDSNEnv    = "DATABASE_DSN"
	dbHostEnv         = "DB_HOST"
	dbPortEnv         = "DB_PORT"
	dbNameEnv         = "DB_DATABASE"
	dbUserEnv         = "DB_USER"
	dbPasswordEnv     = "DB_PASSWORD"
	openAIAPIKeyEnv   = "OPENAI_API_KEY"
	openAIModelEnv    = "OPENAI_MODEL"
	openAIBaseURLEnv  = "OPENAI_BASE_URL"
	seedURLEnv        = "HARVEST_SEED_URL"
	themeEnv          = "HARVEST_THEME"
	logLevelEnv       = "LOG_LEVEL"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
	pushGatewayEnv    = "METRICS_PUSHGATEWAY_URL"
)

var tableNameExpr = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config holds high-level settings required across the application.
type Config struct {
	Harvest       HarvestConfig      `yaml:"harvest"`
	Fetcher       FetcherConfig      `yaml:"fetcher"`
	Database      DatabaseConfig     `yaml:"database"`
	Classifier    ClassifierConfig   `yaml:"classifier"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Notifications NotificationConfig `yaml:"notifications"`
	Metrics       MetricsConfig      `yaml:"metrics"`
	Logging       LoggingConfig      `yaml:"logging"`
}

// HarvestConfig describes the seed page and what to keep from it.
type HarvestConfig struct {
	SeedURL    string `yaml:"seedUrl"`
	Theme      string `yaml:"theme"`
	LinkPrefix string `yaml:"linkPrefix"`
	Table      string `yaml:"table"`
	Workers    int    `yaml:"workers"`
}

// FetcherConfig tunes outbound page requests.
type FetcherConfig struct {
	UserAgent         string        `yaml:"userAgent"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
	FailOnHTTPError   bool          `yaml:"failOnHttpError"`
	RespectRobots     bool          `yaml:"respectRobots"`
}

// DatabaseConfig describes Postgres connection details.
type DatabaseConfig struct {
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslMode"`
}

// ConnString returns DSN when set, otherwise a URL assembled from the parts.
func (d DatabaseConfig) ConnString() string {
	if d.DSN != "" {
		return d.DSN
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(d.Host, d.Port),
		Path:   "/" + d.Name,
	}
	if d.User != "" {
		u.User = url.UserPassword(d.User, d.Password)
	}
	if d.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {d.SSLMode}}.Encode()
	}
	return u.String()
}

// ClassifierConfig defines how to contact the OpenAI-compatible API.
type ClassifierConfig struct {
	BaseURL         string        `yaml:"baseUrl"`
	Model           string        `yaml:"model"`
	APIKey          string        `yaml:"apiKey"`
	MaxContentChars int           `yaml:"maxContentChars"`
	MaxTokens       int           `yaml:"maxTokens"`
	Timeout         time.Duration `yaml:"timeout"`
}

// SchedulerConfig defines when the harvest should run. A zero interval runs once.
type SchedulerConfig struct {
	Interval time.Duration  `yaml:"interval"`
	Timezone string         `yaml:"timezone"`
	location *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	return time.Local
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// Enabled reports whether both token and chat are present.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// MetricsConfig points at an optional Prometheus Pushgateway.
type MetricsConfig struct {
	PushGatewayURL string `yaml:"pushGatewayUrl"`
	Job            string `yaml:"job"`
}

// LoggingConfig sets the minimum log level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads .env and YAML configuration (if present) and applies environment overrides.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("config: cannot load .env: %v", err)
	}

	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else if fileCfg, err := parse(raw, cfg); err != nil {
			log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
		} else {
			cfg = fileCfg
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	return cfg
}

// parse overlays YAML onto base; keys absent from raw keep their base value.
func parse(raw []byte, base Config) (Config, error) {
	cfg := base
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return base, err
	}
	return cfg, nil
}

// Validate reports settings that make a run impossible. It never touches the network.
func (c Config) Validate() error {
	var errs []error

	if c.Classifier.APIKey == "" {
		errs = append(errs, &domain.ConfigurationError{Key: openAIAPIKeyEnv, Reason: "is not set"})
	}

	seed, err := url.Parse(c.Harvest.SeedURL)
	if err != nil || (seed.Scheme != "http" && seed.Scheme != "https") || seed.Host == "" {
		errs = append(errs, &domain.ConfigurationError{Key: "harvest.seedUrl", Reason: "must be an absolute http(s) URL"})
	}

	if !tableNameExpr.MatchString(c.Harvest.Table) {
		errs = append(errs, &domain.ConfigurationError{Key: "harvest.table", Reason: "must be a plain SQL identifier"})
	}

	if c.Harvest.Workers < 1 {
		errs = append(errs, &domain.ConfigurationError{Key: "harvest.workers", Reason: "must be at least 1"})
	}

	return errors.Join(errs...)
}

func (c *Config) applyEnvOverrides() {
	overrides := []struct {
		env    string
		target *string
	}{
		{databaseDSNEnv, &c.Database.DSN},
		{dbHostEnv, &c.Database.Host},
		{dbPortEnv, &c.Database.Port},
		{dbNameEnv, &c.Database.Name},
		{dbUserEnv, &c.Database.User},
		{dbPasswordEnv, &c.Database.Password},
		{openAIAPIKeyEnv, &c.Classifier.APIKey},
		{openAIModelEnv, &c.Classifier.Model},
		{openAIBaseURLEnv, &c.Classifier.BaseURL},
		{seedURLEnv, &c.Harvest.SeedURL},
		{themeEnv, &c.Harvest.Theme},
		{logLevelEnv, &c.Logging.Level},
		{telegramTokenEnv, &c.Notifications.Telegram.BotToken},
		{telegramChatIDEnv, &c.Notifications.Telegram.ChatID},
		{pushGatewayEnv, &c.Metrics.PushGatewayURL},
	}

	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.target = v
		}
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc = time.Local
	}
	c.Scheduler.location = loc
}

// TelegramChatID parses the configured chat identifier.
func (c Config) TelegramChatID() (int64, error) {
	id, err := strconv.ParseInt(c.Notifications.Telegram.ChatID, 10, 64)
	if err != nil {
		return 0, &domain.ConfigurationError{Key: telegramChatIDEnv, Reason: "must be a numeric chat id"}
	}
	return id, nil
}

func defaultConfig() Config {
	return Config{
		Harvest: HarvestConfig{
			SeedURL:    "https://www.bbc.com/news",
			Theme:      "Artificial Intelligence",
			LinkPrefix: "/news",
			Table:      "articles",
			Workers:    4,
		},
		Fetcher: FetcherConfig{
			UserAgent: defaultUserAgent,
			Timeout:   20 * time.Second,
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    "5432",
			Name:    "news",
			SSLMode: "disable",
		},
		Classifier: ClassifierConfig{
			BaseURL:         "https://api.openai.com/v1/",
			Model:           "gpt-4",
			MaxContentChars: 1000,
			MaxTokens:       10,
			Timeout:         30 * time.Second,
		},
		Scheduler: SchedulerConfig{Timezone: defaultTimezone, location: time.Local},
		Metrics:   MetricsConfig{Job: "news_harvester"},
		Logging:   LoggingConfig{Level: "info"},
	}
}
