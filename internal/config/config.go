package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

const (
	IdentityRedis  = "redis"
	IdentityCookie = "cookie"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	PongWait   time.Duration `mapstructure:"pong_wait"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
	SendBuffer int           `mapstructure:"send_buffer"`
	Secret     string        `mapstructure:"secret"`

	Log      LogConfig      `mapstructure:"log"`
	Identity IdentityConfig `mapstructure:"identity"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	Authz    AuthzConfig    `mapstructure:"authz"`
	Typing   TypingConfig   `mapstructure:"typing"`
	Chat     ChatConfig     `mapstructure:"chat"`

	// DiagramDropBudget is how many diagram frames a slow connection may
	// lose before it is kicked. 0 kicks on the first full buffer.
	DiagramDropBudget int `mapstructure:"diagram_drop_budget"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type IdentityConfig struct {
	Backend    string `mapstructure:"backend"`
	CookieName string `mapstructure:"cookie_name"`
}

type RedisConfig struct {
	URL           string `mapstructure:"url"`
	SessionPrefix string `mapstructure:"session_prefix"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type AuthzConfig struct {
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
	CacheSize int           `mapstructure:"cache_size"`
}

type TypingConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type ChatConfig struct {
	RateLimit    int           `mapstructure:"rate_limit"`
	RateInterval time.Duration `mapstructure:"rate_interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "5s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("diagram_drop_budget", 16)
	v.SetDefault("secret", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("identity.backend", IdentityCookie)
	v.SetDefault("identity.cookie_name", "session_token")
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.session_prefix", "session:")
	v.SetDefault("database.url", "")
	v.SetDefault("authz.cache_ttl", "5s")
	v.SetDefault("authz.cache_size", 4096)
	v.SetDefault("typing.ttl", "8s")
	v.SetDefault("typing.sweep_interval", "2s")
	v.SetDefault("chat.rate_limit", 10)
	v.SetDefault("chat.rate_interval", "10s")
}

// Load reads config/config.<CONFIG_ENV>.yaml, or path when non-empty, on top
// of defaults. PRESENCE_* environment variables override both.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	fileName := path
	if fileName == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		fileName = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(fileName)

	v.SetEnvPrefix("PRESENCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if path != "" {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).
		Str("identity", cfg.Identity.Backend).Bool("postgres", cfg.Database.URL != "").Msg("config ready")
	return &cfg, nil
}

// Validate reports every impossible setting at once.
func (c *Config) Validate() error {
	var err error
	if c.Port < 1 || c.Port > 65535 {
		err = multierr.Append(err, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.ReadLimit <= 0 {
		err = multierr.Append(err, errors.New("read_limit must be positive"))
	}
	if c.SendBuffer <= 0 {
		err = multierr.Append(err, errors.New("send_buffer must be positive"))
	}
	if c.PingPeriod <= 0 || c.PongWait <= c.PingPeriod {
		err = multierr.Append(err, errors.New("pong_wait must exceed a positive ping_period"))
	}
	if c.DiagramDropBudget < 0 {
		err = multierr.Append(err, errors.New("diagram_drop_budget must not be negative"))
	}
	if c.WriteWait <= 0 {
		err = multierr.Append(err, errors.New("write_wait must be positive"))
	}
	switch c.Identity.Backend {
	case IdentityRedis:
		if c.Redis.URL == "" {
			err = multierr.Append(err, errors.New("redis.url is required for the redis identity backend"))
		}
	case IdentityCookie:
		if c.Secret == "" {
			err = multierr.Append(err, errors.New("secret is required for the cookie identity backend"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("unknown identity.backend %q", c.Identity.Backend))
	}
	if c.Authz.CacheTTL < 0 || c.Authz.CacheSize < 0 {
		err = multierr.Append(err, errors.New("authz cache settings must not be negative"))
	}
	if c.Typing.TTL < 0 || c.Typing.SweepInterval < 0 {
		err = multierr.Append(err, errors.New("typing settings must not be negative"))
	}
	return err
}
