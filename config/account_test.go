package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validPriceFloors() AccountPriceFloors {
	return AccountPriceFloors{
		Enabled:           true,
		EnforceFloorsRate: 100,
		MaxRule:           200,
		MaxSchemaDims:     10,
		Fetcher: AccountFloorFetch{
			Enabled:       true,
			URL:           "http://test.com/floors",
			Timeout:       300,
			MaxFileSizeKB: 100,
			MaxRules:      1000,
			MaxAge:        86400,
			Period:        3600,
			MaxSchemaDims: 10,
		},
	}
}

func TestAccountPriceFloorsValidate(t *testing.T) {
	tt := []struct {
		name      string
		configure func(*AccountPriceFloors)
		wantErr   string
	}{
		{
			name:      "valid configuration",
			configure: func(pf *AccountPriceFloors) {},
		},
		{
			name:      "enforce floors rate above 100",
			configure: func(pf *AccountPriceFloors) { pf.EnforceFloorsRate = 110 },
			wantErr:   "account_defaults.price_floors.enforce_floors_rate should be between 0 and 100",
		},
		{
			name:      "enforce floors rate negative",
			configure: func(pf *AccountPriceFloors) { pf.EnforceFloorsRate = -10 },
			wantErr:   "account_defaults.price_floors.enforce_floors_rate should be between 0 and 100",
		},
		{
			name:      "max schema dims above 20",
			configure: func(pf *AccountPriceFloors) { pf.MaxSchemaDims = 40 },
			wantErr:   "account_defaults.price_floors.max_schema_dims should be between 0 and 20",
		},
		{
			name:      "period greater than max age",
			configure: func(pf *AccountPriceFloors) { pf.Fetcher.Period = 90000 },
			wantErr:   "account_defaults.price_floors.fetch.period_sec should be less than account_defaults.price_floors.fetch.max_age_sec",
		},
		{
			name:      "period below 300 seconds",
			configure: func(pf *AccountPriceFloors) { pf.Fetcher.Period = 100 },
			wantErr:   "account_defaults.price_floors.fetch.period_sec should not be less than 300 seconds",
		},
		{
			name: "max age below 600 seconds",
			configure: func(pf *AccountPriceFloors) {
				pf.Fetcher.Period = 300
				pf.Fetcher.MaxAge = 500
			},
			wantErr: "account_defaults.price_floors.fetch.max_age_sec should not be less than 600 seconds and greater than maximum integer value",
		},
		{
			name:      "timeout too small",
			configure: func(pf *AccountPriceFloors) { pf.Fetcher.Timeout = 10 },
			wantErr:   "account_defaults.price_floors.fetch.timeout_ms should be between 10 to 10,000 miliseconds",
		},
		{
			name:      "timeout too large",
			configure: func(pf *AccountPriceFloors) { pf.Fetcher.Timeout = 12000 },
			wantErr:   "account_defaults.price_floors.fetch.timeout_ms should be between 10 to 10,000 miliseconds",
		},
		{
			name:      "negative max rules",
			configure: func(pf *AccountPriceFloors) { pf.Fetcher.MaxRules = -10 },
			wantErr:   "account_defaults.price_floors.fetch.max_rules should be greater than or equal to 0",
		},
		{
			name:      "negative max file size",
			configure: func(pf *AccountPriceFloors) { pf.Fetcher.MaxFileSizeKB = -10 },
			wantErr:   "account_defaults.price_floors.fetch.max_file_size_kb should be greater than or equal to 0",
		},
		{
			name:      "fetch max schema dims above 20",
			configure: func(pf *AccountPriceFloors) { pf.Fetcher.MaxSchemaDims = 40 },
			wantErr:   "account_defaults.price_floors.fetch.max_schema_dims should not be less than 0 and greater than 20",
		},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			pf := validPriceFloors()
			tc.configure(&pf)
			errs := pf.Validate()
			if tc.wantErr == "" {
				assert.Empty(t, errs, tc.name)
			} else {
				assert.Len(t, errs, 1, tc.name)
				assert.EqualError(t, errs[0], tc.wantErr, tc.name)
			}
		})
	}
}

func TestSanitizedPriceFloors(t *testing.T) {
	t.Run("valid config passes through", func(t *testing.T) {
		pf := validPriceFloors()
		sanitized, errs := SanitizedPriceFloors(pf)
		assert.Empty(t, errs)
		assert.Equal(t, pf, sanitized)
	})

	t.Run("invalid config replaced with safe defaults", func(t *testing.T) {
		pf := validPriceFloors()
		pf.EnforceFloorsRate = 200
		pf.Fetcher.AccountID = "5890"

		sanitized, errs := SanitizedPriceFloors(pf)
		assert.Len(t, errs, 1)
		assert.True(t, sanitized.Enabled)
		assert.Equal(t, 100, sanitized.EnforceFloorsRate)
		assert.False(t, sanitized.UseDynamicData)
		assert.False(t, sanitized.Fetcher.Enabled)
		assert.Equal(t, "5890", sanitized.Fetcher.AccountID)
	})
}
