package floors

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/buger/jsonparser"
	"github.com/prebid/openrtb/v20/openrtb2"

	"github.com/prebid/price-floors-engine/config"
	"github.com/prebid/price-floors-engine/currency"
	"github.com/prebid/price-floors-engine/errortypes"
	"github.com/prebid/price-floors-engine/exchange/entities"
	"github.com/prebid/price-floors-engine/metrics"
	"github.com/prebid/price-floors-engine/openrtb_ext"
)

// RejectionTracker is notified of every bid removed by floor enforcement.
// Hosts plug in their own analytics implementation.
type RejectionTracker interface {
	Reject(impID, bidID, seat, reason string)
}

// Enforce removes every bid priced below the floor of its impression and
// returns the surviving seat bids, the rejection warnings and the rejected
// bids grouped by seat. Bids are compared against the true floor recovered
// through the adjuster, never the adjusted value sent to the bidder.
func Enforce(bidRequestWrapper *openrtb_ext.RequestWrapper, seatBids map[openrtb_ext.BidderName]*entities.PbsOrtbSeatBid, account config.Account, conversions currency.Conversions, adjuster PriceFloorAdjuster, tracker RejectionTracker, metricEngine metrics.MetricsEngine) (map[openrtb_ext.BidderName]*entities.PbsOrtbSeatBid, []error, []*entities.PbsOrtbSeatBid) {
	rejectionErrs := []error{}
	rejectedBids := []*entities.PbsOrtbSeatBid{}

	requestExt, err := bidRequestWrapper.GetRequestExt()
	if err != nil {
		return seatBids, []error{errors.New("error in getting request extension")}, rejectedBids
	}

	if isPriceFloorsDisabled(account, bidRequestWrapper) ||
		isSignalingSkipped(requestExt) ||
		!isValidImpBidFloorPresent(bidRequestWrapper.BidRequest.Imp) {
		return seatBids, nil, rejectedBids
	}

	enforceFloors := isSatisfiedByEnforceRate(requestExt, account.PriceFloors.EnforceFloorsRate, rand.Intn)
	if updateEnforcePBS(enforceFloors, requestExt) {
		if err := bidRequestWrapper.RebuildRequest(); err != nil {
			return seatBids, []error{err}, rejectedBids
		}
	}

	if enforceFloors {
		enforceDealFloors := account.PriceFloors.EnforceDealFloors && getFloorsExt(requestExt).GetEnforceDealsFlag()
		rejectionErrs, seatBids, rejectedBids = enforceFloorToBids(bidRequestWrapper, seatBids, account, conversions, adjuster, tracker, metricEngine, enforceDealFloors)
	}
	return seatBids, rejectionErrs, rejectedBids
}

// enforceFloorToBids drops all the bids with price lower than the floor of
// the impression they answer.
func enforceFloorToBids(bidRequestWrapper *openrtb_ext.RequestWrapper, seatBids map[openrtb_ext.BidderName]*entities.PbsOrtbSeatBid, account config.Account, conversions currency.Conversions, adjuster PriceFloorAdjuster, tracker RejectionTracker, metricEngine metrics.MetricsEngine, enforceDealFloors bool) ([]error, map[openrtb_ext.BidderName]*entities.PbsOrtbSeatBid, []*entities.PbsOrtbSeatBid) {
	errs := []error{}
	rejectedBids := []*entities.PbsOrtbSeatBid{}
	impMap := make(map[string]*openrtb2.Imp, bidRequestWrapper.LenImp())

	for _, v := range bidRequestWrapper.GetImp() {
		impMap[v.ID] = v.Imp
	}

	for bidderName, seatBid := range seatBids {
		eligibleBids := make([]*entities.PbsOrtbBid, 0, len(seatBid.Bids))
		for _, bid := range seatBid.Bids {
			retBid := bid
			reqImp, ok := impMap[bid.Bid.ImpID]
			if !ok || reqImp.BidFloor <= 0 {
				eligibleBids = append(eligibleBids, retBid)
				continue
			}

			if bid.Bid.DealID != "" && !enforceDealFloors {
				eligibleBids = append(eligibleBids, retBid)
				continue
			}

			// enforcement compares against the true floor, with the bidder's
			// adjustment factor multiplied back in
			floorValue := reqImp.BidFloor
			floorCurrency := reqImp.BidFloorCur
			if adjusted := adjuster.RevertAdjustmentForImp(reqImp, bidderName, bidRequestWrapper, account); adjusted.FloorValue != nil {
				floorValue = *adjusted.FloorValue
				floorCurrency = adjusted.FloorCur
			}

			rate, err := getCurrencyConversionRate(seatBid.Currency, floorCurrency, conversions)
			if err != nil {
				errs = append(errs, fmt.Errorf("error in rate conversion from = %s to %s with bidder %s for impression id %s and bid id %s", seatBid.Currency, floorCurrency, bidderName, bid.Bid.ImpID, bid.Bid.ID))
				metricEngine.RecordFloorsConversionError(account.ID)
				eligibleBids = append(eligibleBids, retBid)
				continue
			}

			bidPrice := rate * bid.Bid.Price
			if (floorValue - bidPrice) > floorPrecision {
				rejectedBid := &entities.PbsOrtbSeatBid{
					Currency: seatBid.Currency,
					Seat:     seatBid.Seat,
					Bids:     []*entities.PbsOrtbBid{bid},
				}
				rejectedBids = append(rejectedBids, rejectedBid)
				if tracker != nil {
					tracker.Reject(bid.Bid.ImpID, bid.Bid.ID, seatBid.Seat, "bid price below floor")
				}
				metricEngine.RecordRejectedBidsForBidder(bidderName)
				errs = append(errs, &errortypes.Warning{
					Message:     fmt.Sprintf("bid rejected [bid ID: %s] reason: bid price value %.4f %s is less than bidFloor value %.4f %s for impression id %s bidder %s", bid.Bid.ID, bidPrice, floorCurrency, floorValue, floorCurrency, bid.Bid.ImpID, bidderName),
					WarningCode: errortypes.FloorBidRejectionWarningCode,
				})
				continue
			}

			updateBidExtWithFloors(reqImp, retBid, floorCurrency)
			eligibleBids = append(eligibleBids, retBid)
		}
		seatBids[bidderName].Bids = eligibleBids
	}
	return errs, seatBids, rejectedBids
}

// updateEnforcePBS switches off enforcepbs in the request floors when this
// request lost the enforce-rate draw, so downstream consumers see the
// decision. Returns true when the request ext changed.
func updateEnforcePBS(enforceFloors bool, requestExt *openrtb_ext.RequestExt) bool {
	prebidExt := requestExt.GetPrebid()
	if prebidExt == nil {
		prebidExt = new(openrtb_ext.ExtRequestPrebid)
	}

	if prebidExt.Floors == nil {
		prebidExt.Floors = new(openrtb_ext.PriceFloorRules)
	}
	floorExt := prebidExt.Floors

	if floorExt.GetEnforcePBS() == enforceFloors {
		return false
	}

	if floorExt.Enforcement == nil {
		floorExt.Enforcement = new(openrtb_ext.PriceFloorEnforcement)
	}
	floorExt.Enforcement.EnforcePBS = &enforceFloors
	requestExt.SetPrebid(prebidExt)
	return true
}

// isValidImpBidFloorPresent reports whether any impression carries a floor
// worth enforcing.
func isValidImpBidFloorPresent(imps []openrtb2.Imp) bool {
	for i := range imps {
		if imps[i].BidFloor > 0 {
			return true
		}
	}
	return false
}

// isSignalingSkipped reports whether floor processing skipped this request,
// either by the skip-rate draw or by enforcepbs being off.
func isSignalingSkipped(requestExt *openrtb_ext.RequestExt) bool {
	floorsExt := getFloorsExt(requestExt)
	if floorsExt == nil {
		return false
	}
	return floorsExt.GetFloorsSkippedFlag() || !floorsExt.GetEnforcePBS()
}

// isSatisfiedByEnforceRate samples the effective enforce rate: the request's
// rate when set, the account's otherwise. A rate outside [1,100] never
// enforces.
func isSatisfiedByEnforceRate(requestExt *openrtb_ext.RequestExt, accountEnforceRate int, f func(int) int) bool {
	enforceRate := accountEnforceRate
	if reqRate := getFloorsExt(requestExt).GetEnforceRate(); reqRate > 0 {
		enforceRate = reqRate
	}

	if enforceRate < enforceRateMin || enforceRate > enforceRateMax {
		return false
	}
	return f(enforceRateMax) < enforceRate
}

func getFloorsExt(requestExt *openrtb_ext.RequestExt) *openrtb_ext.PriceFloorRules {
	if prebidExt := requestExt.GetPrebid(); prebidExt != nil {
		return prebidExt.Floors
	}
	return nil
}

func getCurrencyConversionRate(seatBidCur, reqImpCur string, conversions currency.Conversions) (float64, error) {
	if seatBidCur == reqImpCur {
		return 1.0, nil
	}
	return conversions.GetRate(seatBidCur, reqImpCur)
}

// updateBidExtWithFloors attaches the enforced floor and the matched rule to
// the surviving bid for analytics.
func updateBidExtWithFloors(reqImp *openrtb2.Imp, bid *entities.PbsOrtbBid, floorCurrency string) {
	var floorRule string
	var floorRuleValue float64

	if rule, err := jsonparser.GetString(reqImp.Ext, "prebid", "floors", "floorRule"); err == nil {
		floorRule = rule
	}
	if ruleValue, err := jsonparser.GetFloat(reqImp.Ext, "prebid", "floors", "floorRuleValue"); err == nil {
		floorRuleValue = ruleValue
	} else {
		floorRuleValue = reqImp.BidFloor
	}

	bid.BidFloors = &openrtb_ext.ExtBidPrebidFloors{
		FloorRule:      floorRule,
		FloorRuleValue: floorRuleValue,
		FloorValue:     reqImp.BidFloor,
		FloorCurrency:  floorCurrency,
	}
}
