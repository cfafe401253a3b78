package metrics

import (
	"github.com/prebid/price-floors-engine/openrtb_ext"
)

// NilMetricsEngine implements the MetricsEngine interface where no metrics are
// actually captured. Used when the host disables metrics.
type NilMetricsEngine struct{}

func (me *NilMetricsEngine) RecordFloorStatus(accountID, location, fetchStatus string) {
}

func (me *NilMetricsEngine) RecordDynamicFetchFailure(accountID, code string) {
}

func (me *NilMetricsEngine) RecordFloorsConversionError(accountID string) {
}

func (me *NilMetricsEngine) RecordInvalidAccountFloorsConfig(accountID string) {
}

func (me *NilMetricsEngine) RecordRejectedBidsForBidder(bidder openrtb_ext.BidderName) {
}
