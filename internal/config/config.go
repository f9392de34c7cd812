// Package config loads process configuration from the environment.
//
// A .env file in the working directory is loaded first (development
// convenience); real environment variables win over it.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Store drivers accepted by STORE_DRIVER.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Server configures the game store server.
type Server struct {
	Port          string        `env:"PORT" envDefault:"5175"`
	LogLevel      string        `env:"LOG_LEVEL" envDefault:"info"`
	StoreDriver   string        `env:"STORE_DRIVER" envDefault:"sqlite"`
	DatabasePath  string        `env:"DATABASE_PATH" envDefault:"./data/snakes.db"`
	PollInterval  time.Duration `env:"STORE_POLL_INTERVAL" envDefault:"500ms"`
	JWTSecret     string        `env:"JWT_SECRET"`
	TokenTTLHours int           `env:"JWT_EXPIRES_HOURS" envDefault:"24"`
	ClientOrigin  string        `env:"CLIENT_ORIGIN" envDefault:"http://localhost:5173"`
}

// Client configures the terminal client; flags override these.
type Client struct {
	ServerURL        string        `env:"SNAKES_SERVER" envDefault:"http://localhost:5175"`
	LogLevel         string        `env:"LOG_LEVEL" envDefault:"info"`
	BoardFile        string        `env:"BOARD_FILE"`
	TripleSixForfeit bool          `env:"TRIPLE_SIX_FORFEIT" envDefault:"false"`
	WriteTimeout     time.Duration `env:"WRITE_TIMEOUT" envDefault:"5s"`
	Token            string        `env:"SNAKES_TOKEN"`
}

// TokenTTL is the lifetime of issued player tokens.
func (s Server) TokenTTL() time.Duration {
	return time.Duration(s.TokenTTLHours) * time.Hour
}

// Validate rejects combinations the server cannot start with.
func (s Server) Validate() error {
	switch s.StoreDriver {
	case DriverMemory, DriverSQLite:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverMemory, DriverSQLite, s.StoreDriver)
	}
	if s.Port == "" {
		return fmt.Errorf("PORT is empty")
	}
	if s.TokenTTLHours <= 0 {
		return fmt.Errorf("JWT_EXPIRES_HOURS must be positive")
	}
	return nil
}

// LoadServer reads .env (if present) and parses Server from the environment.
func LoadServer() (Server, error) {
	_ = godotenv.Load()
	var cfg Server
	if err := ParseEnv(&cfg); err != nil {
		return Server{}, err
	}
	return cfg, cfg.Validate()
}

// LoadClient reads .env (if present) and parses Client from the environment.
func LoadClient() (Client, error) {
	_ = godotenv.Load()
	var cfg Client
	err := ParseEnv(&cfg)
	return cfg, err
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// SetLogLevel applies a LOG_LEVEL string globally; unknown levels keep the default.
func SetLogLevel(level string) {
	if lvl, err := zerolog.ParseLevel(level); err == nil && level != "" {
		zerolog.SetGlobalLevel(lvl)
	}
}
