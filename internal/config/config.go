package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Program  ProgramConfig  `mapstructure:"program"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Driver      string `mapstructure:"driver"`
	DSN         string `mapstructure:"dsn"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Addr          string        `mapstructure:"addr"`
	Password      string        `mapstructure:"password"`
	DB            int           `mapstructure:"db"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	EventsChannel string        `mapstructure:"events_channel"`
}

type ProgramConfig struct {
	// ID seeds every derived pool and escrow address.
	ID string `mapstructure:"id"`
}

type AuthConfig struct {
	NonceWindow time.Duration `mapstructure:"nonce_window"`
	RatePerMin  int           `mapstructure:"rate_per_min"`
	RateBurst   int           `mapstructure:"rate_burst"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// ProgramID parses the configured program id.
func (c *Config) ProgramID() (common.Address, error) {
	if !common.IsHexAddress(c.Program.ID) {
		return common.Address{}, fmt.Errorf("program.id %q is not a hex address", c.Program.ID)
	}
	return common.HexToAddress(c.Program.ID), nil
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"port":         "server.port",
	"db-driver":    "database.driver",
	"dsn":          "database.dsn",
	"auto-migrate": "database.auto_migrate",
	"redis-addr":   "redis.addr",
	"program-id":   "program.id",
	"log-level":    "log.level",
}

// Load merges .env, an optional config file, AMM_* environment variables and
// flags, in increasing order of precedence.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found")
	}

	v := viper.New()
	v.SetEnvPrefix("amm")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "host=localhost user=postgres dbname=nftamm port=5432 sslmode=disable")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cache_ttl", 5*time.Minute)
	v.SetDefault("redis.events_channel", "nftamm:events")
	v.SetDefault("program.id", "0x00000000000000000000000000000000000a4a11")
	v.SetDefault("auth.nonce_window", 5*time.Minute)
	v.SetDefault("auth.rate_per_min", 120)
	v.SetDefault("auth.rate_burst", 20)
	v.SetDefault("log.level", "info")

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if _, err := cfg.ProgramID(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetupLogging applies the configured level with the JSON formatter.
func SetupLogging(cfg LogConfig) {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logrus.WithField("level", cfg.Level).Warn("unknown log level, using info")
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}
