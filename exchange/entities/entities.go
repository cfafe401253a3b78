package entities

import (
	"github.com/prebid/openrtb/v20/openrtb2"

	"github.com/prebid/price-floors-engine/openrtb_ext"
)

// PbsOrtbBid is a Bid returned by an adapter, paired with the engine-side
// metadata the pipeline attaches to it.
type PbsOrtbBid struct {
	Bid          *openrtb2.Bid
	BidType      openrtb_ext.BidType
	BidFloors    *openrtb_ext.ExtBidPrebidFloors
	DealPriority int
}

// PbsOrtbSeatBid is a SeatBid returned by an adapter.
type PbsOrtbSeatBid struct {
	Bids     []*PbsOrtbBid
	Currency string
	Seat     string
}
