package config

import (
	"fmt"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

type Config struct {
	// DatabaseURL empty means the in-memory store: local development only,
	// nothing survives a restart.
	DatabaseURL string `env:"DATABASE_URL"`

	Port     string `env:"SERVER_PORT,default=8080"`
	Env      string `env:"ENVIRONMENT,default=development"`
	LogLevel string `env:"LOG_LEVEL,default=info"`

	MigrationsPath string `env:"MIGRATIONS_PATH,default=migrations"`

	TreasuryAccountID      string `env:"TREASURY_ACCOUNT_ID,default=00000000-0000-0000-0000-000000000001"`
	TreasuryOpeningBalance int64  `env:"TREASURY_OPENING_BALANCE,default=1000000000"`

	ReconcileSchedule string `env:"RECONCILE_SCHEDULE,default=@every 1m"`
}

func Load() (*Config, error) {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config decode failed: %w", err)
	}
	return &cfg, nil
}
