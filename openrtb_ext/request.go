package openrtb_ext

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtRequest defines the contract for bidrequest.ext
type ExtRequest struct {
	Prebid ExtRequestPrebid `json:"prebid"`
}

// ExtRequestPrebid defines the contract for bidrequest.ext.prebid
type ExtRequestPrebid struct {
	BidAdjustmentFactors *ExtRequestBidAdjustmentFactors `json:"bidadjustmentfactors,omitempty"`
	Channel              *ExtRequestPrebidChannel        `json:"channel,omitempty"`
	Debug                bool                            `json:"debug,omitempty"`
	Floors               *PriceFloorRules                `json:"floors,omitempty"`
}

// ExtRequestPrebidChannel defines the contract for bidrequest.ext.prebid.channel
type ExtRequestPrebidChannel struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ExtRequestBidAdjustmentFactors defines the contract for
// bidrequest.ext.prebid.bidadjustmentfactors. Bidder factors sit at the top
// level of the object, with optional per-media-type overrides under the
// reserved "mediatypes" key:
//
//	{"bidderA": 0.9, "mediatypes": {"banner": {"bidderA": 0.8}}}
type ExtRequestBidAdjustmentFactors struct {
	Factors    map[string]float64
	MediaTypes map[BidType]map[string]float64
}

const mediaTypesKey = "mediatypes"

func (bidAdjustments *ExtRequestBidAdjustmentFactors) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	for key, value := range raw {
		if strings.EqualFold(key, mediaTypesKey) {
			if err := json.Unmarshal(value, &bidAdjustments.MediaTypes); err != nil {
				return err
			}
			continue
		}

		var factor float64
		if err := json.Unmarshal(value, &factor); err != nil {
			return fmt.Errorf("invalid bid adjustment factor for bidder '%s': %v", key, err)
		}
		if bidAdjustments.Factors == nil {
			bidAdjustments.Factors = make(map[string]float64)
		}
		bidAdjustments.Factors[key] = factor
	}
	return nil
}

func (bidAdjustments ExtRequestBidAdjustmentFactors) MarshalJSON() ([]byte, error) {
	combined := make(map[string]interface{}, len(bidAdjustments.Factors)+1)
	for bidder, factor := range bidAdjustments.Factors {
		combined[bidder] = factor
	}
	if len(bidAdjustments.MediaTypes) > 0 {
		combined[mediaTypesKey] = bidAdjustments.MediaTypes
	}
	return json.Marshal(combined)
}

// FactorForBidder returns the adjustment factor for the given bidder and
// media type, preferring a media-type specific factor over the flat bidder
// factor. Bidder names are matched case-insensitively. Returns nil when no
// factor is configured.
func (bidAdjustments *ExtRequestBidAdjustmentFactors) FactorForBidder(bidder BidderName, mediaType BidType) *float64 {
	if bidAdjustments == nil {
		return nil
	}

	if factors, ok := bidAdjustments.MediaTypes[mediaType]; ok {
		if factor, found := lookupFactor(factors, bidder); found {
			return &factor
		}
	}

	if factor, found := lookupFactor(bidAdjustments.Factors, bidder); found {
		return &factor
	}
	return nil
}

func lookupFactor(factors map[string]float64, bidder BidderName) (float64, bool) {
	if factor, ok := factors[string(bidder)]; ok {
		return factor, true
	}
	for name, factor := range factors {
		if strings.EqualFold(name, string(bidder)) {
			return factor, true
		}
	}
	return 0, false
}
