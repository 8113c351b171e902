package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	SourceRealtime = "realtime"
	SourceNATS     = "nats"

	DedupeMemory = "memory"
	DedupeRedis  = "redis"
)

var ErrMissingConfig = errors.New("missing required configuration")

type Config struct {
	App        AppConfig        `yaml:"app"`
	Logging    LoggingConfig    `yaml:"logging"`
	ChangeFeed ChangeFeedConfig `yaml:"changefeed"`
	Supabase   SupabaseConfig   `yaml:"supabase"`
	Mail       MailConfig       `yaml:"mail"`
	Dedupe     DedupeConfig     `yaml:"dedupe"`
	Stores     StoresConfig     `yaml:"stores"`
	PubSub     PubSubConfig     `yaml:"pubsub"`
	API        APIConfig        `yaml:"api"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type AppConfig struct {
	InstanceID      string        `yaml:"instance_id"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // json|console
}

// Which table changes are watched and where they come from
type ChangeFeedConfig struct {
	Source string `yaml:"source"` // realtime|nats
	Schema string `yaml:"schema"`
	Table  string `yaml:"table"`
}

type SupabaseConfig struct {
	URL               string        `yaml:"url"`
	AnonKey           string        `yaml:"anon_key"`
	Channel           string        `yaml:"channel"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	DialTimeout       time.Duration `yaml:"dial_timeout"`
}

type MailConfig struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	Username           string        `yaml:"username"`
	Password           string        `yaml:"password"`
	From               string        `yaml:"from"` // empty -> username
	Subject            string        `yaml:"subject"`
	Timeout            time.Duration `yaml:"timeout"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	HTMLTemplatePath   string        `yaml:"html_template_path"`
	TextTemplatePath   string        `yaml:"text_template_path"`
}

type DedupeConfig struct {
	Backend      string        `yaml:"backend"` // memory|redis
	TTL          time.Duration `yaml:"ttl"`
	JanitorEvery time.Duration `yaml:"janitor_every"`
	Prefix       string        `yaml:"prefix"`
}

type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type ClickHouseWriterConfig struct {
	BatchMaxRows     int           `yaml:"batch_max_rows"`
	BatchMaxInterval time.Duration `yaml:"batch_max_interval"`
	MaxRetries       int           `yaml:"max_retries"`
	RetryBackoff     time.Duration `yaml:"retry_backoff"`
}

type ClickHouseConfig struct {
	Enabled bool                   `yaml:"enabled"`
	DSN     string                 `yaml:"dsn"`
	Table   string                 `yaml:"table"`
	Writer  ClickHouseWriterConfig `yaml:"writer"`
}

type StoresConfig struct {
	Redis      RedisConfig      `yaml:"redis"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

type NATSConfig struct {
	URL string `yaml:"url"`
	// subject with change events when changefeed.source=nats
	ChangeSubject string `yaml:"change_subject"`
	// subject for notification outcomes; empty -> not published
	NotifySubject string `yaml:"notify_subject"`
}

type PubSubConfig struct {
	NATS NATSConfig `yaml:"nats"`
}

type HTTPConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

type APIConfig struct {
	HTTP HTTPConfig `yaml:"http"`
}

type PyroscopeConfig struct {
	Enabled    bool              `yaml:"enabled"`
	AppName    string            `yaml:"app_name"`
	ServerAddr string            `yaml:"server_addr"`
	AuthToken  string            `yaml:"auth_token"`
	Tags       map[string]string `yaml:"tags"`
}

type MetricsConfig struct {
	Pyroscope PyroscopeConfig `yaml:"pyroscope"`
}

func Default() *Config {
	return &Config{
		App: AppConfig{
			InstanceID:      "team-relay",
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		ChangeFeed: ChangeFeedConfig{
			Source: SourceRealtime,
			Schema: "public",
			Table:  "teams",
		},
		Supabase: SupabaseConfig{
			Channel:           "pick_ban",
			HeartbeatInterval: 25 * time.Second,
			DialTimeout:       10 * time.Second,
		},
		Mail: MailConfig{
			Host:    "send.one.com",
			Port:    465,
			Subject: "Laget ditt er registrert i Mythic Trials",
			Timeout: 30 * time.Second,
		},
		Dedupe: DedupeConfig{
			Backend:      DedupeMemory,
			TTL:          time.Minute,
			JanitorEvery: time.Minute,
			Prefix:       "teamrelay:dedupe:",
		},
		Stores: StoresConfig{
			Redis: RedisConfig{
				Addr:         "localhost:6379",
				DialTimeout:  5 * time.Second,
				ReadTimeout:  3 * time.Second,
				WriteTimeout: 3 * time.Second,
			},
			ClickHouse: ClickHouseConfig{
				Table: "team_notifications",
			},
		},
		PubSub: PubSubConfig{
			NATS: NATSConfig{
				ChangeSubject: "changefeed.public.teams",
				NotifySubject: "notifications.teams",
			},
		},
		API: APIConfig{
			HTTP: HTTPConfig{
				Addr:         ":8080",
				ReadTimeout:  5 * time.Second,
				WriteTimeout: 10 * time.Second,
				IdleTimeout:  60 * time.Second,
			},
		},
	}
}

// Load reads yaml on top of defaults. Empty path -> defaults only
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err = yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	return cfg, nil
}

// ApplyEnv overrides credentials from the environment (the names the deployment already uses)
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	set(&c.Supabase.URL, "SUPABASE_URL")
	set(&c.Supabase.AnonKey, "SUPABASE_ANON_KEY")
	set(&c.Mail.Username, "EMAIL_USERNAME")
	set(&c.Mail.Password, "EMAIL_PASSWORD")
	set(&c.PubSub.NATS.URL, "NATS_URL")
	set(&c.Stores.Redis.Addr, "REDIS_ADDR")
	set(&c.Stores.ClickHouse.DSN, "CLICKHOUSE_DSN")
	set(&c.Logging.Level, "LOG_LEVEL")
}

// Validate checks everything the relay cannot start without
func (c *Config) Validate() error {
	var missing []string

	switch c.ChangeFeed.Source {
	case SourceRealtime:
		if c.Supabase.URL == "" {
			missing = append(missing, "SUPABASE_URL")
		}
		if c.Supabase.AnonKey == "" {
			missing = append(missing, "SUPABASE_ANON_KEY")
		}
	case SourceNATS:
		if c.PubSub.NATS.URL == "" {
			missing = append(missing, "NATS_URL")
		}
		if c.PubSub.NATS.ChangeSubject == "" {
			missing = append(missing, "pubsub.nats.change_subject")
		}
	default:
		return fmt.Errorf("unknown changefeed source %q", c.ChangeFeed.Source)
	}

	if c.Mail.Username == "" {
		missing = append(missing, "EMAIL_USERNAME")
	}
	if c.Mail.Password == "" {
		missing = append(missing, "EMAIL_PASSWORD")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingConfig, strings.Join(missing, ", "))
	}

	if c.ChangeFeed.Table == "" {
		return errors.New("changefeed table is required")
	}

	switch c.Dedupe.Backend {
	case DedupeMemory, DedupeRedis:
	default:
		return fmt.Errorf("unknown dedupe backend %q", c.Dedupe.Backend)
	}
	if c.Dedupe.TTL <= 0 {
		return errors.New("dedupe ttl must be positive")
	}

	if c.Stores.ClickHouse.Enabled && c.Stores.ClickHouse.DSN == "" {
		return fmt.Errorf("%w: CLICKHOUSE_DSN", ErrMissingConfig)
	}

	return nil
}
