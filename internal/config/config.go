// Package config loads runtime settings from an optional YAML file, an
// optional .env file and the process environment, in that order of
// increasing precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// defaultEnvFile is loaded when present; its absence is not an error.
const defaultEnvFile = ".env"

type Config struct {
	Env      string   `yaml:"env" env:"APP_ENV" env-default:"local"`
	HTTP     HTTP     `yaml:"http_server"`
	Database Database `yaml:"database"`
	Redis    Redis    `yaml:"redis"`
	Cache    Cache    `yaml:"cache"`
}

type HTTP struct {
	Address         string        `yaml:"address" env:"HTTP_ADDRESS" env-default:":3000"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT" env-default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT" env-default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"30s"`
}

type Database struct {
	Driver          string        `yaml:"driver" env:"DB_DRIVER" env-default:"sqlite"`
	Path            string        `yaml:"path" env:"DB_PATH" env-default:"data/features.db"`
	URL             string        `yaml:"url" env:"DATABASE_URL"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS" env-default:"5"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME" env-default:"30m"`
}

type Redis struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type Cache struct {
	TTL time.Duration `yaml:"ttl" env:"CACHE_TTL" env-default:"60s"`
}

// Load reads configuration.
//
// configPath may name a YAML file; when empty, CONFIG_PATH is consulted and
// if that is empty too the environment alone is used. envPath names a .env
// file to load first; when empty, ./.env is loaded if it exists.
func Load(configPath, envPath string) (*Config, error) {
	const op = "config.Load"

	if err := loadEnvFile(envPath); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}

	var cfg Config
	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, fmt.Errorf("%s: config file %s: %w", op, configPath, err)
		}
		// ReadConfig also applies environment overrides and defaults.
		if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
			return nil, fmt.Errorf("%s: reading %s: %w", op, configPath, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("%s: reading environment: %w", op, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

// MustLoad parses -config and -env from the command line and loads the
// configuration, exiting the process on failure.
func MustLoad() *Config {
	var configPath, envPath string
	flag.StringVar(&configPath, "config", "", "path to YAML config file")
	flag.StringVar(&envPath, "env", "", "path to .env file")
	flag.Parse()

	cfg, err := Load(configPath, envPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func loadEnvFile(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("env file %s: %w", path, err)
		}
		return nil
	}

	err := godotenv.Load(defaultEnvFile)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("env file %s: %w", defaultEnvFile, err)
	}
	return nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.Env {
	case EnvLocal, EnvDev, EnvProd:
	default:
		return fmt.Errorf("unknown APP_ENV %q (want %s, %s or %s)", c.Env, EnvLocal, EnvDev, EnvProd)
	}

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return errors.New("DB_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			return errors.New("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown DB_DRIVER %q (want %s or %s)", c.Database.Driver, DriverSQLite, DriverPostgres)
	}

	if c.Cache.TTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive, got %s", c.Cache.TTL)
	}
	return nil
}
