package currency

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRatesGetRate(t *testing.T) {
	rates := NewRates(map[string]map[string]float64{
		"USD": {"GBP": 0.77208},
		"GBP": {"USD": 1.2952},
	})

	tt := []struct {
		name         string
		from         string
		to           string
		expectedRate float64
		expectedErr  bool
	}{
		{name: "Direct conversion", from: "USD", to: "GBP", expectedRate: 0.77208},
		{name: "Same currency", from: "USD", to: "USD", expectedRate: 1},
		{name: "No conversion path", from: "EUR", to: "USD", expectedErr: true},
		{name: "Unknown currency code", from: "foo", to: "USD", expectedErr: true},
		{name: "Empty currency code", from: "", to: "USD", expectedErr: true},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			rate, err := rates.GetRate(tc.from, tc.to)
			if tc.expectedErr {
				assert.Error(t, err, tc.name)
			} else {
				assert.NoError(t, err, tc.name)
				assert.Equal(t, tc.expectedRate, rate, tc.name)
			}
		})
	}
}

func TestRatesGetRateReciprocal(t *testing.T) {
	rates := NewRates(map[string]map[string]float64{
		"USD": {"GBP": 0.8},
	})

	rate, err := rates.GetRate("GBP", "USD")
	assert.NoError(t, err)
	assert.InDelta(t, 1.25, rate, 0.0001)
}

func TestRatesGetRateIntermediate(t *testing.T) {
	rates := NewRates(map[string]map[string]float64{
		"USD": {"GBP": 0.8, "EUR": 0.9},
	})

	// GBP -> EUR via the USD row
	rate, err := rates.GetRate("GBP", "EUR")
	assert.NoError(t, err)
	assert.InDelta(t, 1.125, rate, 0.0001)
}

func TestRatesGetRateNilConversions(t *testing.T) {
	rates := NewRates(nil)

	_, err := rates.GetRate("USD", "GBP")
	assert.Error(t, err)
}

func TestConstantRates(t *testing.T) {
	rates := NewConstantRates()

	rate, err := rates.GetRate("USD", "USD")
	assert.NoError(t, err)
	assert.Equal(t, 1.0, rate)

	_, err = rates.GetRate("USD", "EUR")
	assert.Error(t, err)
	assert.IsType(t, ConversionNotFoundError{}, err)
}

func TestAggregateConversions(t *testing.T) {
	customRates := NewRates(map[string]map[string]float64{
		"USD": {"GBP": 3.0},
	})
	serverRates := NewRates(map[string]map[string]float64{
		"USD": {"GBP": 0.8, "EUR": 0.9},
	})
	aggregate := NewAggregateConversions(customRates, serverRates)

	t.Run("custom rates take priority", func(t *testing.T) {
		rate, err := aggregate.GetRate("USD", "GBP")
		assert.NoError(t, err)
		assert.Equal(t, 3.0, rate)
	})

	t.Run("falls back to server rates", func(t *testing.T) {
		rate, err := aggregate.GetRate("USD", "EUR")
		assert.NoError(t, err)
		assert.Equal(t, 0.9, rate)
	})

	t.Run("malformed code surfaces immediately", func(t *testing.T) {
		_, err := aggregate.GetRate("foo", "USD")
		assert.Error(t, err)
	})
}
