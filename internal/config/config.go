package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all runtime configuration. Every field can be supplied through
// the environment; defaults are suitable for local development only.
type Config struct {
	Env        string `yaml:"env" env:"CREDLEDGER_ENV" env-default:"local"`
	HTTPServer `yaml:"http_server"`
	Auth       `yaml:"auth"`
	Store      `yaml:"store"`
	RateLimit  `yaml:"rate_limit"`
}

type HTTPServer struct {
	Address      string        `yaml:"address" env:"CREDLEDGER_ADDR" env-default:":8080"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"CREDLEDGER_READ_TIMEOUT" env-default:"15s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"CREDLEDGER_WRITE_TIMEOUT" env-default:"15s"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" env:"CREDLEDGER_IDLE_TIMEOUT" env-default:"60s"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" env:"CREDLEDGER_MAX_BODY_BYTES" env-default:"1048576"`
}

type Auth struct {
	// SigningSecret signs both access and refresh tokens. The default exists
	// so the service starts out of the box; it is not safe for production.
	SigningSecret     string        `yaml:"signing_secret" env:"CREDLEDGER_AUTH_SECRET" env-default:"dev-secret-change-me"`
	AccessTTL         time.Duration `yaml:"access_ttl" env:"CREDLEDGER_ACCESS_TTL" env-default:"6h"`
	RefreshTTL        time.Duration `yaml:"refresh_ttl" env:"CREDLEDGER_REFRESH_TTL" env-default:"168h"`
	MinPasswordLength int           `yaml:"min_password_length" env:"CREDLEDGER_MIN_PASSWORD_LENGTH" env-default:"8"`
	BcryptCost        int           `yaml:"bcrypt_cost" env:"CREDLEDGER_BCRYPT_COST" env-default:"10"`
}

type Store struct {
	// FilePath is the flat-file account collection used when no DSN is set.
	FilePath string `yaml:"file_path" env:"CREDLEDGER_STORE_FILE" env-default:"data/accounts.json"`
	// PostgresDSN, when non-empty, selects the Postgres-backed store instead.
	PostgresDSN string `yaml:"postgres_dsn" env:"CREDLEDGER_PG_DSN" env-default:""`
}

type RateLimit struct {
	PerSecond int `yaml:"per_second" env:"CREDLEDGER_RATE_PER_SECOND" env-default:"20"`
	Burst     int `yaml:"burst" env:"CREDLEDGER_RATE_BURST" env-default:"40"`
}

// Load reads configuration from the optional file at path (when it exists)
// and the environment.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, &cfg); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
			return &cfg, nil
		}
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read config from env: %w", err)
	}
	return &cfg, nil
}

// MustLoad is Load that terminates the process on failure. Intended for main.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}
