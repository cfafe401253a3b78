package config

import (
	"fmt"
	"math"
)

// Account represents the account-level configuration consumed by the floors
// engine. Accounts are stored/retrieved by the host; only the price-floors
// surface is modeled here.
type Account struct {
	ID          string             `mapstructure:"id" json:"id"`
	Disabled    bool               `mapstructure:"disabled" json:"disabled"`
	DebugAllow  bool               `mapstructure:"debug_allow" json:"debug_allow"`
	PriceFloors AccountPriceFloors `mapstructure:"price_floors" json:"price_floors"`
}

// AccountPriceFloors defines the per-account floors configuration surface.
type AccountPriceFloors struct {
	Enabled                bool              `mapstructure:"enabled" json:"enabled"`
	EnforceFloorsRate      int               `mapstructure:"enforce_floors_rate" json:"enforce_floors_rate"`
	AdjustForBidAdjustment bool              `mapstructure:"adjust_for_bid_adjustment" json:"adjust_for_bid_adjustment"`
	EnforceDealFloors      bool              `mapstructure:"enforce_deal_floors" json:"enforce_deal_floors"`
	UseDynamicData         bool              `mapstructure:"use_dynamic_data" json:"use_dynamic_data"`
	MaxRule                int               `mapstructure:"max_rules" json:"max_rules"`
	MaxSchemaDims          int               `mapstructure:"max_schema_dims" json:"max_schema_dims"`
	Fetcher                AccountFloorFetch `mapstructure:"fetch" json:"fetch"`
}

// AccountFloorFetch defines the configuration for fetching floors from a
// remote provider.
type AccountFloorFetch struct {
	Enabled       bool   `mapstructure:"enabled" json:"enabled"`
	URL           string `mapstructure:"url" json:"url"`
	Timeout       int    `mapstructure:"timeout_ms" json:"timeout_ms"`
	MaxFileSizeKB int    `mapstructure:"max_file_size_kb" json:"max_file_size_kb"`
	MaxRules      int    `mapstructure:"max_rules" json:"max_rules"`
	MaxAge        int    `mapstructure:"max_age_sec" json:"max_age_sec"`
	Period        int    `mapstructure:"period_sec" json:"period_sec"`
	MaxSchemaDims int    `mapstructure:"max_schema_dims" json:"max_schema_dims"`
	AccountID     string `mapstructure:"-" json:"-"`
}

func (pf *AccountPriceFloors) validate(errs []error) []error {
	if pf.EnforceFloorsRate < 0 || pf.EnforceFloorsRate > 100 {
		errs = append(errs, fmt.Errorf(`account_defaults.price_floors.enforce_floors_rate should be between 0 and 100`))
	}

	if pf.MaxRule < 0 || pf.MaxRule > math.MaxInt32 {
		errs = append(errs, fmt.Errorf(`account_defaults.price_floors.max_rules should be between 0 and %v`, math.MaxInt32))
	}

	if pf.MaxSchemaDims < 0 || pf.MaxSchemaDims > 20 {
		errs = append(errs, fmt.Errorf(`account_defaults.price_floors.max_schema_dims should be between 0 and 20`))
	}

	if pf.Fetcher.Period > pf.Fetcher.MaxAge {
		errs = append(errs, fmt.Errorf(`account_defaults.price_floors.fetch.period_sec should be less than account_defaults.price_floors.fetch.max_age_sec`))
	}

	if pf.Fetcher.Period < 300 {
		errs = append(errs, fmt.Errorf(`account_defaults.price_floors.fetch.period_sec should not be less than 300 seconds`))
	}

	if pf.Fetcher.MaxAge < 600 || pf.Fetcher.MaxAge > math.MaxInt32 {
		errs = append(errs, fmt.Errorf(`account_defaults.price_floors.fetch.max_age_sec should not be less than 600 seconds and greater than maximum integer value`))
	}

	if !(pf.Fetcher.Timeout > 10 && pf.Fetcher.Timeout < 10000) {
		errs = append(errs, fmt.Errorf(`account_defaults.price_floors.fetch.timeout_ms should be between 10 to 10,000 miliseconds`))
	}

	if pf.Fetcher.MaxRules < 0 {
		errs = append(errs, fmt.Errorf(`account_defaults.price_floors.fetch.max_rules should be greater than or equal to 0`))
	}

	if pf.Fetcher.MaxFileSizeKB < 0 {
		errs = append(errs, fmt.Errorf(`account_defaults.price_floors.fetch.max_file_size_kb should be greater than or equal to 0`))
	}

	if pf.Fetcher.MaxSchemaDims < 0 || pf.Fetcher.MaxSchemaDims > 20 {
		errs = append(errs, fmt.Errorf(`account_defaults.price_floors.fetch.max_schema_dims should not be less than 0 and greater than 20`))
	}

	return errs
}

// Validate exposes the floors bounds checks for account loading.
func (pf *AccountPriceFloors) Validate() []error {
	return pf.validate(nil)
}

// IsAdjustForBidAdjustmentEnabled returns whether bid adjustment factors
// should be applied to floor values for this account.
func (pf *AccountPriceFloors) IsAdjustForBidAdjustmentEnabled() bool {
	return pf.AdjustForBidAdjustment
}

// SafeDefaultPriceFloors is substituted for the account's floors config when
// the configured values fail validation. Floors stay enabled with full
// enforcement, but dynamic fetching is switched off.
func SafeDefaultPriceFloors() AccountPriceFloors {
	return AccountPriceFloors{
		Enabled:                true,
		EnforceFloorsRate:      100,
		AdjustForBidAdjustment: true,
		EnforceDealFloors:      true,
		UseDynamicData:         false,
		MaxRule:                100,
		MaxSchemaDims:          3,
		Fetcher: AccountFloorFetch{
			Enabled: false,
			Timeout: 3000,
			Period:  3600,
			MaxAge:  86400,
		},
	}
}

// SanitizedPriceFloors validates the account floors configuration and
// replaces it wholesale with SafeDefaultPriceFloors on any violation. The
// returned errors describe the violations; the request is never failed for a
// bad account configuration.
func SanitizedPriceFloors(pf AccountPriceFloors) (AccountPriceFloors, []error) {
	errs := pf.validate(nil)
	if len(errs) == 0 {
		return pf, nil
	}

	fallback := SafeDefaultPriceFloors()
	fallback.Fetcher.AccountID = pf.Fetcher.AccountID
	return fallback, errs
}
