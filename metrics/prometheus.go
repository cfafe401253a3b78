package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/prebid/price-floors-engine/openrtb_ext"
)

const (
	accountLabel     = "account"
	locationLabel    = "location"
	fetchStatusLabel = "fetch_status"
	reasonLabel      = "reason"
	bidderLabel      = "bidder"
)

// PrometheusMetrics records the floors engine metrics into a prometheus registry.
type PrometheusMetrics struct {
	floorStatus          *prometheus.CounterVec
	dynamicFetchFailures *prometheus.CounterVec
	conversionErrors     *prometheus.CounterVec
	invalidFloorsConfig  *prometheus.CounterVec
	rejectedBids         *prometheus.CounterVec
}

// NewPrometheusMetrics initializes the floors counters and registers them on
// the provided registry.
func NewPrometheusMetrics(registry *prometheus.Registry) *PrometheusMetrics {
	m := &PrometheusMetrics{
		floorStatus: newCounter(registry, "floors_request_status",
			"Count of enriched requests by rule-set location and fetch status.",
			[]string{accountLabel, locationLabel, fetchStatusLabel}),
		dynamicFetchFailures: newCounter(registry, "floors_fetch_failures",
			"Count of failed dynamic floors fetches by reason code.",
			[]string{accountLabel, reasonLabel}),
		conversionErrors: newCounter(registry, "floors_conversion_errors",
			"Count of missing currency conversions during floor resolution or enforcement.",
			[]string{accountLabel}),
		invalidFloorsConfig: newCounter(registry, "floors_account_config_invalid",
			"Count of account floors configurations replaced by the safe default.",
			[]string{accountLabel}),
		rejectedBids: newCounter(registry, "floors_rejected_bids",
			"Count of bids rejected for being below the floor.",
			[]string{bidderLabel}),
	}
	return m
}

func newCounter(registry *prometheus.Registry, name, help string, labels []string) *prometheus.CounterVec {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: name,
		Help: help,
	}, labels)
	registry.MustRegister(counter)
	return counter
}

func (m *PrometheusMetrics) RecordFloorStatus(accountID, location, fetchStatus string) {
	m.floorStatus.With(prometheus.Labels{
		accountLabel:     accountID,
		locationLabel:    location,
		fetchStatusLabel: fetchStatus,
	}).Inc()
}

func (m *PrometheusMetrics) RecordDynamicFetchFailure(accountID, code string) {
	m.dynamicFetchFailures.With(prometheus.Labels{
		accountLabel: accountID,
		reasonLabel:  code,
	}).Inc()
}

func (m *PrometheusMetrics) RecordFloorsConversionError(accountID string) {
	m.conversionErrors.With(prometheus.Labels{
		accountLabel: accountID,
	}).Inc()
}

func (m *PrometheusMetrics) RecordInvalidAccountFloorsConfig(accountID string) {
	m.invalidFloorsConfig.With(prometheus.Labels{
		accountLabel: accountID,
	}).Inc()
}

func (m *PrometheusMetrics) RecordRejectedBidsForBidder(bidder openrtb_ext.BidderName) {
	m.rejectedBids.With(prometheus.Labels{
		bidderLabel: bidder.String(),
	}).Inc()
}
