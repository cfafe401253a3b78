package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestNewWithDefaults(t *testing.T) {
	v := viper.New()
	SetupViper(v)

	cfg, err := New(v)
	assert.NoError(t, err)

	assert.False(t, cfg.PriceFloors.Enabled)
	assert.Equal(t, 20, cfg.PriceFloors.Fetcher.Worker)
	assert.Equal(t, 20000, cfg.PriceFloors.Fetcher.Capacity)
	assert.Equal(t, 300, cfg.PriceFloors.Fetcher.RefetchCheckInterval)
	assert.Equal(t, 10, cfg.PriceFloors.Fetcher.MaxRetries)

	accountFloors := cfg.AccountDefaults.PriceFloors
	assert.Equal(t, 100, accountFloors.EnforceFloorsRate)
	assert.Equal(t, 3000, accountFloors.Fetcher.Timeout)
	assert.Equal(t, 3600, accountFloors.Fetcher.Period)
	assert.Equal(t, 86400, accountFloors.Fetcher.MaxAge)
}

func TestNewRejectsInvalidAccountDefaults(t *testing.T) {
	v := viper.New()
	SetupViper(v)
	v.Set("account_defaults.price_floors.enforce_floors_rate", 150)

	cfg, err := New(v)
	assert.Nil(t, cfg)
	assert.EqualError(t, err, "account_defaults.price_floors.enforce_floors_rate should be between 0 and 100")
}
