package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/atmx/settlement-engine/internal/limits"
)

// setDefaults registers every key. Unmarshal only sees environment
// overrides for keys viper already knows, so keys without a meaningful
// default get an empty one.
func setDefaults(v *viper.Viper) {
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.request_timeout", 30*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)

	v.SetDefault("storage.driver", DriverMemory)
	v.SetDefault("storage.path", "data/settlement")
	v.SetDefault("storage.database_url", "")
	v.SetDefault("storage.redis_url", "")
	v.SetDefault("storage.cache_ttl", 5*time.Minute)

	v.SetDefault("marketplace.custody", "")
	v.SetDefault("marketplace.treasury", "")
	v.SetDefault("marketplace.admin", "")
	v.SetDefault("marketplace.cut_bps", 250)
	v.SetDefault("marketplace.native_token", "EGLD")
	v.SetDefault("marketplace.accepted_tokens", []string{"EGLD"})
	v.SetDefault("marketplace.wrapped_token", "")
	v.SetDefault("marketplace.wrap_liquidity", "")
	v.SetDefault("marketplace.signer_public_key", "")
	v.SetDefault("marketplace.metadata_cache", 4096)

	v.SetDefault("limits.max_global_offers_per_owner", limits.DefaultMaxPerOwner)
	v.SetDefault("limits.max_global_offers_per_collection", limits.DefaultMaxPerCollection)

	v.SetDefault("log.level", "info")
}
