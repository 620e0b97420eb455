// Package config loads the settlement engine configuration from defaults,
// an optional file and SETTLE_ prefixed environment variables.
package config

import "time"

// Config is the complete service configuration.
type Config struct {
	HTTP        HTTPConfig        `mapstructure:"http"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Marketplace MarketplaceConfig `mapstructure:"marketplace"`
	Limits      LimitsConfig      `mapstructure:"limits"`
	Log         LogConfig         `mapstructure:"log"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverLevelDB  = "leveldb"
	DriverPostgres = "postgres"
)

// StorageConfig selects the persistence backend. RedisURL, when set,
// fronts the primary with a read-through cache.
type StorageConfig struct {
	Driver      string        `mapstructure:"driver"`
	Path        string        `mapstructure:"path"`
	DatabaseURL string        `mapstructure:"database_url"`
	RedisURL    string        `mapstructure:"redis_url"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
}

// MarketplaceConfig holds the engine's initial settings. Addresses are
// hex encoded.
type MarketplaceConfig struct {
	Custody         string   `mapstructure:"custody"`
	Treasury        string   `mapstructure:"treasury"`
	Admin           string   `mapstructure:"admin"`
	CutBps          uint32   `mapstructure:"cut_bps"`
	AcceptedTokens  []string `mapstructure:"accepted_tokens"`
	NativeToken     string   `mapstructure:"native_token"`
	WrappedToken    string   `mapstructure:"wrapped_token"`
	WrapLiquidity   string   `mapstructure:"wrap_liquidity"`
	SignerPublicKey string   `mapstructure:"signer_public_key"`
	MetadataCache   int      `mapstructure:"metadata_cache"`
}

// LimitsConfig bounds live global offers.
type LimitsConfig struct {
	MaxGlobalOffersPerOwner      int `mapstructure:"max_global_offers_per_owner"`
	MaxGlobalOffersPerCollection int `mapstructure:"max_global_offers_per_collection"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level string `mapstructure:"level"`
}
