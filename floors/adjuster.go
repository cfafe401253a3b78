package floors

import (
	"fmt"
	"math"

	"github.com/prebid/openrtb/v20/openrtb2"

	"github.com/prebid/price-floors-engine/config"
	"github.com/prebid/price-floors-engine/errortypes"
	"github.com/prebid/price-floors-engine/openrtb_ext"
	"github.com/prebid/price-floors-engine/util/sliceutil"
)

// AdjustedPrice is a floor value paired with its currency. A nil FloorValue
// means no floor is signalled at all, as opposed to a floor of zero.
type AdjustedPrice struct {
	FloorValue *float64
	FloorCur   string
}

// PriceFloorAdjuster computes the floor advertised to one bidder for one
// impression and recovers the true floor for enforcement.
type PriceFloorAdjuster interface {
	// AdjustForImp returns the floor to advertise to the bidder: the
	// impression floor divided by the bidder's bid-adjustment factor.
	AdjustForImp(imp *openrtb2.Imp, bidder openrtb_ext.BidderName, bidRequestWrapper *openrtb_ext.RequestWrapper, account config.Account, warnings *[]error) AdjustedPrice

	// RevertAdjustmentForImp is the inverse of AdjustForImp: it multiplies
	// the impression floor back by the same factor.
	RevertAdjustmentForImp(imp *openrtb2.Imp, bidder openrtb_ext.BidderName, bidRequestWrapper *openrtb_ext.RequestWrapper, account config.Account) AdjustedPrice
}

// NewPriceFloorAdjuster returns the default adjuster chain: the basic
// bid-adjustment arithmetic wrapped by the no-signal decorator.
func NewPriceFloorAdjuster() PriceFloorAdjuster {
	return &noSignalPriceFloorAdjuster{delegate: &basicPriceFloorAdjuster{}}
}

type basicPriceFloorAdjuster struct{}

func (a *basicPriceFloorAdjuster) AdjustForImp(imp *openrtb2.Imp, bidder openrtb_ext.BidderName, bidRequestWrapper *openrtb_ext.RequestWrapper, account config.Account, warnings *[]error) AdjustedPrice {
	return applyFactor(imp, bidder, bidRequestWrapper, account, func(floor, factor float64) float64 {
		return floor / factor
	})
}

func (a *basicPriceFloorAdjuster) RevertAdjustmentForImp(imp *openrtb2.Imp, bidder openrtb_ext.BidderName, bidRequestWrapper *openrtb_ext.RequestWrapper, account config.Account) AdjustedPrice {
	return applyFactor(imp, bidder, bidRequestWrapper, account, func(floor, factor float64) float64 {
		return floor * factor
	})
}

func applyFactor(imp *openrtb2.Imp, bidder openrtb_ext.BidderName, bidRequestWrapper *openrtb_ext.RequestWrapper, account config.Account, apply func(floor, factor float64) float64) AdjustedPrice {
	if imp == nil || imp.BidFloor <= 0.0 {
		return AdjustedPrice{FloorCur: impFloorCur(imp)}
	}

	adjusted := imp.BidFloor
	if account.PriceFloors.IsAdjustForBidAdjustmentEnabled() {
		if factor := factorForBidder(bidRequestWrapper, imp, bidder); factor != nil && *factor > 0.0 {
			adjusted = math.Round(apply(imp.BidFloor, *factor)*roundingFactor) / roundingFactor
		}
	}

	return AdjustedPrice{FloorValue: &adjusted, FloorCur: impFloorCur(imp)}
}

func impFloorCur(imp *openrtb2.Imp) string {
	if imp == nil {
		return ""
	}
	return imp.BidFloorCur
}

func factorForBidder(bidRequestWrapper *openrtb_ext.RequestWrapper, imp *openrtb2.Imp, bidder openrtb_ext.BidderName) *float64 {
	requestExt, err := bidRequestWrapper.GetRequestExt()
	if err != nil {
		return nil
	}

	prebidExt := requestExt.GetPrebid()
	if prebidExt == nil || prebidExt.BidAdjustmentFactors == nil {
		return nil
	}

	return prebidExt.BidAdjustmentFactors.FactorForBidder(bidder, openrtb_ext.BidType(getMediaType(imp)))
}

// noSignalPriceFloorAdjuster suppresses the floor signal entirely for bidders
// configured in a no-signal list before delegating the arithmetic. Reverting
// always delegates, since enforcement still needs the true floor.
type noSignalPriceFloorAdjuster struct {
	delegate PriceFloorAdjuster
}

func (n *noSignalPriceFloorAdjuster) AdjustForImp(imp *openrtb2.Imp, bidder openrtb_ext.BidderName, bidRequestWrapper *openrtb_ext.RequestWrapper, account config.Account, warnings *[]error) AdjustedPrice {
	floorsExt := requestFloorRules(bidRequestWrapper)
	if floorsExt == nil || floorsExt.GetFloorsSkippedFlag() {
		return n.delegate.AdjustForImp(imp, bidder, bidRequestWrapper, account, warnings)
	}

	noSignalBidders := resolveNoSignalBidders(floorsExt)
	if noSignalBidders != nil && (sliceutil.ContainsStringIgnoreCase(noSignalBidders, catchAll) ||
		sliceutil.ContainsStringIgnoreCase(noSignalBidders, string(bidder))) {
		if warnings != nil {
			*warnings = append(*warnings, &errortypes.Warning{
				Message:     fmt.Sprintf("Price floor signal suppressed for bidder %s", bidder),
				WarningCode: errortypes.FloorNoSignalWarningCode,
			})
		}
		return AdjustedPrice{}
	}

	return n.delegate.AdjustForImp(imp, bidder, bidRequestWrapper, account, warnings)
}

func (n *noSignalPriceFloorAdjuster) RevertAdjustmentForImp(imp *openrtb2.Imp, bidder openrtb_ext.BidderName, bidRequestWrapper *openrtb_ext.RequestWrapper, account config.Account) AdjustedPrice {
	return n.delegate.RevertAdjustmentForImp(imp, bidder, bidRequestWrapper, account)
}

// resolveNoSignalBidders picks the effective no-signal list: the model group
// list, then the data-level list, then the enforcement list. The first
// non-nil list is authoritative even when empty.
func resolveNoSignalBidders(floorsExt *openrtb_ext.PriceFloorRules) []string {
	if floorsExt.Data != nil {
		if len(floorsExt.Data.ModelGroups) > 0 && floorsExt.Data.ModelGroups[0].NoFloorSignalBidders != nil {
			return floorsExt.Data.ModelGroups[0].NoFloorSignalBidders
		}
		if floorsExt.Data.NoFloorSignalBidders != nil {
			return floorsExt.Data.NoFloorSignalBidders
		}
	}
	if floorsExt.Enforcement != nil && floorsExt.Enforcement.NoFloorSignalBidders != nil {
		return floorsExt.Enforcement.NoFloorSignalBidders
	}
	return nil
}

func requestFloorRules(bidRequestWrapper *openrtb_ext.RequestWrapper) *openrtb_ext.PriceFloorRules {
	requestExt, err := bidRequestWrapper.GetRequestExt()
	if err != nil {
		return nil
	}
	if prebidExt := requestExt.GetPrebid(); prebidExt != nil {
		return prebidExt.Floors
	}
	return nil
}
