package metrics

import (
	"github.com/prebid/price-floors-engine/openrtb_ext"
)

// Reason codes recorded with RecordDynamicFetchFailure.
const (
	FetchFailureTransport  = "1"
	FetchFailureUnmarshal  = "2"
	FetchFailureValidation = "3"
	FetchFailureOversized  = "4"
	FetchFailureTimeout    = "5"
)

// MetricsEngine is a generic interface to record the floors engine metrics
// into the desired backend.
type MetricsEngine interface {
	// RecordFloorStatus records the effective rule-set provenance and fetch
	// status attached to an enriched request.
	RecordFloorStatus(accountID, location, fetchStatus string)

	// RecordDynamicFetchFailure records a failed provider fetch with a
	// reason code.
	RecordDynamicFetchFailure(accountID, code string)

	// RecordFloorsConversionError records a currency conversion that was
	// needed for floor resolution or enforcement but was unavailable.
	RecordFloorsConversionError(accountID string)

	// RecordInvalidAccountFloorsConfig records an account floors config that
	// failed validation and was replaced by the safe default.
	RecordInvalidAccountFloorsConfig(accountID string)

	// RecordRejectedBidsForBidder records a bid removed by floors enforcement.
	RecordRejectedBidsForBidder(bidder openrtb_ext.BidderName)
}
