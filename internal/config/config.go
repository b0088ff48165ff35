// Package config loads process configuration from the environment, reading
// a .env file first when one exists.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Version is stamped at build time with -ldflags "-X ...config.Version=...".
var Version = "0.4.0"

type Config struct {
	DiscordToken string `env:"DISCORD_TOKEN,required,notEmpty"`
	DeveloperID  string `env:"DEVELOPER_ID"`
	Prefix       string `env:"COMMAND_PREFIX" envDefault:"!"`

	ModulesDir       string `env:"MODULES_DIR" envDefault:"modules"`
	HostVersion      string `env:"HOST_VERSION"`
	WatchModules     bool   `env:"WATCH_MODULES" envDefault:"false"`
	SkipVersionCheck bool   `env:"SKIP_VERSION_CHECK" envDefault:"false"`

	StoragePath string `env:"STORAGE_PATH" envDefault:"datastore.json"`

	SyncGlobal     bool     `env:"SYNC_GLOBAL" envDefault:"true"`
	SyncGuildIDs   []string `env:"SYNC_GUILD_IDS" envSeparator:","`
	GuildBlacklist []string `env:"DISCORD_GUILD_BLACKLIST" envSeparator:","`
	// AutoResync pushes commands again once module state changes settle.
	AutoResync bool `env:"AUTO_RESYNC" envDefault:"false"`

	CooldownSweepInterval time.Duration `env:"COOLDOWN_SWEEP_INTERVAL" envDefault:"1m"`
	WarnUnhandledHalts    bool          `env:"WARN_UNHANDLED_HALTS" envDefault:"true"`

	AdminAddr string `env:"ADMIN_ADDR"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`
}

// Load reads .env (if present) and parses the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return Parse()
}

// Parse reads the process environment only.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.HostVersion == "" {
		cfg.HostVersion = Version
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Prefix == "" {
		errs = append(errs, errors.New("COMMAND_PREFIX must not be empty"))
	}
	if c.CooldownSweepInterval <= 0 {
		errs = append(errs, errors.New("COOLDOWN_SWEEP_INTERVAL must be positive"))
	}
	if c.StoragePath == "" {
		errs = append(errs, errors.New("STORAGE_PATH must not be empty"))
	}
	return errors.Join(errs...)
}

// IsGuildBlacklisted reports whether commands must not be offered in guildID.
func (c *Config) IsGuildBlacklisted(guildID string) bool {
	return slices.Contains(c.GuildBlacklist, guildID)
}
