package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/atmx/settlement-engine/internal/fees"
	"github.com/atmx/settlement-engine/internal/model"
)

// EnvPrefix prefixes every environment override, e.g. SETTLE_HTTP_PORT.
const EnvPrefix = "SETTLE"

// Load builds the configuration in priority order:
// 1. Default values
// 2. Configuration file, when path is non-empty
// 3. Environment variables (SETTLE_ prefix)
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks a loaded configuration.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port %d out of range", cfg.HTTP.Port))
	}

	switch cfg.Storage.Driver {
	case DriverMemory:
	case DriverLevelDB:
		if cfg.Storage.Path == "" {
			errs = append(errs, errors.New("storage.path is required for leveldb"))
		}
	case DriverPostgres:
		if cfg.Storage.DatabaseURL == "" {
			errs = append(errs, errors.New("storage.database_url is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", cfg.Storage.Driver))
	}

	m := cfg.Marketplace
	for name, addr := range map[string]string{
		"marketplace.custody":  m.Custody,
		"marketplace.treasury": m.Treasury,
		"marketplace.admin":    m.Admin,
	} {
		if _, err := model.ParseAddress(addr); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if m.WrappedToken != "" {
		if _, err := model.ParseAddress(m.WrapLiquidity); err != nil {
			errs = append(errs, fmt.Errorf("marketplace.wrap_liquidity: %w", err))
		}
	}
	if m.CutBps > fees.MaxCutPercentage {
		errs = append(errs, fmt.Errorf("marketplace.cut_bps %d above %d", m.CutBps, fees.MaxCutPercentage))
	}
	if len(m.AcceptedTokens) == 0 {
		errs = append(errs, errors.New("marketplace.accepted_tokens must not be empty"))
	}

	if _, err := ParseLevel(cfg.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ParseLevel maps a level name onto a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}
