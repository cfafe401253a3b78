package currency

// AggregateConversions contains both the request-defined currency rate
// map found in request.ext.prebid.currency and the server-wide currency
// conversion rates. It implements the Conversions interface.
type AggregateConversions struct {
	customRates, serverRates Conversions
}

// NewAggregateConversions expects both customRates and serverRates to not be nil
func NewAggregateConversions(customRates, serverRates Conversions) *AggregateConversions {
	return &AggregateConversions{
		customRates: customRates,
		serverRates: serverRates,
	}
}

// GetRate returns the conversion rate between two currencies prioritizing
// the request's custom currency rates over the server-wide rates. It
// returns an error if both Conversions objects return an error.
func (re *AggregateConversions) GetRate(from string, to string) (float64, error) {
	rate, err := re.customRates.GetRate(from, to)
	if err == nil {
		return rate, nil
	} else if _, isMissingRateErr := err.(ConversionNotFoundError); !isMissingRateErr {
		// other error, return the error
		return 0, err
	}

	// the custom rates' GetRate() call returned a "conversion rate not found"
	// error, so the currency codes themselves are fine and the server rates
	// may still know a conversion
	return re.serverRates.GetRate(from, to)
}

// GetRates is not implemented for AggregateConversions. There is no need to
// call this function for this scenario.
func (r *AggregateConversions) GetRates() *map[string]map[string]float64 {
	return nil
}
