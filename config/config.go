package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Configuration is the process-level configuration of the floors engine.
type Configuration struct {
	PriceFloors     PriceFloors `mapstructure:"price_floors"`
	AccountDefaults Account     `mapstructure:"account_defaults"`
}

// PriceFloors holds the engine-level floors settings shared by all accounts.
type PriceFloors struct {
	Enabled bool              `mapstructure:"enabled"`
	Fetcher PriceFloorFetcher `mapstructure:"fetcher"`
}

// PriceFloorFetcher tunes the background fetch machinery.
type PriceFloorFetcher struct {
	Worker               int `mapstructure:"worker"`
	Capacity             int `mapstructure:"capacity"`
	CacheExpirySec       int `mapstructure:"cache_expiry_sec"`
	CacheCleanupSec      int `mapstructure:"cache_cleanup_interval_sec"`
	RefetchCheckInterval int `mapstructure:"refetch_check_interval_sec"`
	MaxRetries           int `mapstructure:"max_retries"`
}

// New creates a Configuration from the provided viper instance, applying
// defaults and validating the account-defaults floors bounds.
func New(v *viper.Viper) (*Configuration, error) {
	var c Configuration
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("viper failed to unmarshal app config: %v", err)
	}

	if errs := c.AccountDefaults.PriceFloors.Validate(); len(errs) > 0 {
		return nil, errs[0]
	}

	return &c, nil
}

// SetupViper sets the default config values for viper.
func SetupViper(v *viper.Viper) {
	v.SetDefault("price_floors.enabled", false)
	v.SetDefault("price_floors.fetcher.worker", 20)
	v.SetDefault("price_floors.fetcher.capacity", 20000)
	v.SetDefault("price_floors.fetcher.cache_expiry_sec", 7200)
	v.SetDefault("price_floors.fetcher.cache_cleanup_interval_sec", 600)
	v.SetDefault("price_floors.fetcher.refetch_check_interval_sec", 300)
	v.SetDefault("price_floors.fetcher.max_retries", 10)

	v.SetDefault("account_defaults.price_floors.enabled", false)
	v.SetDefault("account_defaults.price_floors.enforce_floors_rate", 100)
	v.SetDefault("account_defaults.price_floors.adjust_for_bid_adjustment", true)
	v.SetDefault("account_defaults.price_floors.enforce_deal_floors", false)
	v.SetDefault("account_defaults.price_floors.use_dynamic_data", false)
	v.SetDefault("account_defaults.price_floors.max_rules", 100)
	v.SetDefault("account_defaults.price_floors.max_schema_dims", 3)
	v.SetDefault("account_defaults.price_floors.fetch.enabled", false)
	v.SetDefault("account_defaults.price_floors.fetch.url", "")
	v.SetDefault("account_defaults.price_floors.fetch.timeout_ms", 3000)
	v.SetDefault("account_defaults.price_floors.fetch.max_file_size_kb", 100)
	v.SetDefault("account_defaults.price_floors.fetch.max_rules", 1000)
	v.SetDefault("account_defaults.price_floors.fetch.max_age_sec", 86400)
	v.SetDefault("account_defaults.price_floors.fetch.period_sec", 3600)
	v.SetDefault("account_defaults.price_floors.fetch.max_schema_dims", 0)
}
