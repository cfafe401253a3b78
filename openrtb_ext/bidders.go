package openrtb_ext

import "strings"

// BidderName refers to a core bidder id or an alias id.
type BidderName string

func (name BidderName) String() string {
	return string(name)
}

// NormalizeBidderName returns the lower-cased bidder name.
func NormalizeBidderName(name string) BidderName {
	return BidderName(strings.ToLower(name))
}
