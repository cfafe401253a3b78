package metrics

import (
	"github.com/prebid/price-floors-engine/openrtb_ext"
	"github.com/stretchr/testify/mock"
)

// MetricsEngineMock is mock for the MetricsEngine interface
type MetricsEngineMock struct {
	mock.Mock
}

func (me *MetricsEngineMock) RecordFloorStatus(accountID, location, fetchStatus string) {
	me.Called(accountID, location, fetchStatus)
}

func (me *MetricsEngineMock) RecordDynamicFetchFailure(accountID, code string) {
	me.Called(accountID, code)
}

func (me *MetricsEngineMock) RecordFloorsConversionError(accountID string) {
	me.Called(accountID)
}

func (me *MetricsEngineMock) RecordInvalidAccountFloorsConfig(accountID string) {
	me.Called(accountID)
}

func (me *MetricsEngineMock) RecordRejectedBidsForBidder(bidder openrtb_ext.BidderName) {
	me.Called(bidder)
}
