package currency

// Conversions allows conversion rate retrieval between two currencies.
type Conversions interface {
	GetRate(from string, to string) (float64, error)
	GetRates() *map[string]map[string]float64
}
