package floors

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"

	jsonpatch "github.com/evanphx/json-patch"
	"github.com/golang/glog"

	"github.com/prebid/price-floors-engine/config"
	"github.com/prebid/price-floors-engine/currency"
	"github.com/prebid/price-floors-engine/metrics"
	"github.com/prebid/price-floors-engine/openrtb_ext"
	"github.com/prebid/price-floors-engine/util/ptrutil"
)

// Price is a floor-minimum value with its currency.
type Price struct {
	FloorMin    float64
	FloorMinCur string
}

const (
	defaultDelimiter string = "|"
	catchAll         string = "*"
	skipRateMin      int    = 0
	skipRateMax      int    = 100
	dataRateMin      int    = 0
	dataRateMax      int    = 100
	modelWeightMax   int    = 100
	modelWeightMin   int    = 1
	enforceRateMin   int    = 1
	enforceRateMax   int    = 100
	defaultCurrency  string = "USD"

	// floorPrecision absorbs float noise when comparing a bid to its floor.
	floorPrecision float64 = 0.00001

	// roundingFactor rounds floor values to 4 decimal places.
	roundingFactor float64 = 10000
)

// EnrichWithPriceFloors selects the effective rule set for the request from
// dynamically fetched provider data and/or the request's own floors, matches
// every impression against it and updates imp.bidfloor/imp.bidfloorcur. The
// selected rule set replaces req.ext.prebid.floors for the rest of the
// auction.
func EnrichWithPriceFloors(bidRequestWrapper *openrtb_ext.RequestWrapper, account config.Account, conversions currency.Conversions, priceFloorFetcher FloorFetcher, metricsEngine metrics.MetricsEngine) []error {
	if bidRequestWrapper == nil || bidRequestWrapper.BidRequest == nil {
		return []error{errors.New("Empty bidrequest")}
	}

	account.PriceFloors = sanitizedAccountFloors(account, metricsEngine)

	if isPriceFloorsDisabled(account, bidRequestWrapper) {
		return []error{errors.New("Floors feature is disabled at account level or request")}
	}

	floors, errList := resolveFloors(account, bidRequestWrapper, conversions, priceFloorFetcher)

	updateReqErrs := updateBidRequestWithFloors(floors, bidRequestWrapper, conversions, account.ID, metricsEngine)
	updateFloorsInRequest(bidRequestWrapper, floors)

	metricsEngine.RecordFloorStatus(account.ID, floors.PriceFloorLocation, floors.FetchStatus)

	return append(errList, updateReqErrs...)
}

// sanitizedAccountFloors clamps the account floors config to safe bounds,
// substituting the safe default on any violation. Bad account configuration
// never fails the request.
func sanitizedAccountFloors(account config.Account, metricsEngine metrics.MetricsEngine) config.AccountPriceFloors {
	sanitized, cfgErrs := config.SanitizedPriceFloors(account.PriceFloors)
	if len(cfgErrs) > 0 {
		metricsEngine.RecordInvalidAccountFloorsConfig(account.ID)
		glog.Warningf("Invalid price floors config for account %s, substituting safe defaults: %v", account.ID, cfgErrs[0])
	}
	return sanitized
}

// updateBidRequestWithFloors updates imp.bidfloor and imp.bidfloorcur based on rules matching
func updateBidRequestWithFloors(extFloorRules *openrtb_ext.PriceFloorRules, request *openrtb_ext.RequestWrapper, conversions currency.Conversions, accountID string, metricsEngine metrics.MetricsEngine) []error {
	var (
		floorErrList []error
		floorVal     float64
	)

	if extFloorRules == nil || extFloorRules.Data == nil || len(extFloorRules.Data.ModelGroups) == 0 {
		return []error{}
	}

	modelGroup := extFloorRules.Data.ModelGroups[0]
	if modelGroup.Schema.Delimiter == "" {
		modelGroup.Schema.Delimiter = defaultDelimiter
	}

	extFloorRules.Skipped = new(bool)
	if shouldSkipFloors(modelGroup.SkipRate, extFloorRules.Data.SkipRate, extFloorRules.SkipRate, rand.Intn) {
		*extFloorRules.Skipped = true
		return []error{}
	}

	floorErrList = validateFloorRulesAndLowerValidRuleKey(modelGroup.Schema, modelGroup.Schema.Delimiter, modelGroup.Values)
	if len(modelGroup.Values) == 0 {
		return floorErrList
	}

	for _, imp := range request.GetImp() {
		desiredRuleKey, err := createRuleKey(modelGroup.Schema, request, imp.Imp)
		if err != nil {
			// required context is entirely absent, no floor for this imp
			continue
		}
		matchedRule, isRuleMatched := findRule(modelGroup.Values, modelGroup.Schema.Delimiter, desiredRuleKey)

		floorVal = modelGroup.Default
		if isRuleMatched {
			floorVal = modelGroup.Values[matchedRule]
		}

		floorMinVal, floorCur, err := getMinFloorValue(extFloorRules, conversions)
		if err != nil {
			metricsEngine.RecordFloorsConversionError(accountID)
			floorErrList = append(floorErrList, fmt.Errorf("Error in getting FloorMin value : '%v'", err.Error()))
			continue
		}

		floorVal = math.Round(floorVal*roundingFactor) / roundingFactor
		bidFloor := floorVal
		if floorMinVal > 0.0 && floorVal < floorMinVal {
			bidFloor = floorMinVal
		}

		if bidFloor > 0.0 {
			imp.BidFloor = math.Round(bidFloor*roundingFactor) / roundingFactor
			imp.BidFloorCur = floorCur
		}
		if isRuleMatched {
			updateImpExtWithFloorDetails(imp, matchedRule, floorVal, imp.BidFloor)
		}
	}
	if err := request.RebuildImp(); err != nil {
		return append(floorErrList, err)
	}
	return floorErrList
}

// isPriceFloorsDisabled check for floors are disabled at account or request level
func isPriceFloorsDisabled(account config.Account, bidRequestWrapper *openrtb_ext.RequestWrapper) bool {
	return isPriceFloorsDisabledForAccount(account) || isPriceFloorsDisabledForRequest(bidRequestWrapper)
}

func isPriceFloorsDisabledForAccount(account config.Account) bool {
	return !account.PriceFloors.Enabled
}

func isPriceFloorsDisabledForRequest(bidRequestWrapper *openrtb_ext.RequestWrapper) bool {
	if reqFloor := extractFloorsFromRequest(bidRequestWrapper); reqFloor != nil && !reqFloor.GetEnabled() {
		return true
	}
	return false
}

// resolveFloors selects the effective rule set: provider data merged over the
// request's own floors when a successful fetch is available, the request's
// floors otherwise, or an empty rule set when neither exists.
func resolveFloors(account config.Account, bidRequestWrapper *openrtb_ext.RequestWrapper, conversions currency.Conversions, priceFloorFetcher FloorFetcher) (*openrtb_ext.PriceFloorRules, []error) {
	var (
		errList    []error
		floorRules *openrtb_ext.PriceFloorRules
	)

	reqFloor := extractFloorsFromRequest(bidRequestWrapper)
	if reqFloor != nil && reqFloor.Location != nil && len(reqFloor.Location.URL) > 0 {
		account.PriceFloors.Fetcher.URL = reqFloor.Location.URL
	}
	account.PriceFloors.Fetcher.AccountID = account.ID

	var fetchResult *openrtb_ext.PriceFloorRules
	fetchStatus := openrtb_ext.FetchNone
	if priceFloorFetcher != nil && account.PriceFloors.UseDynamicData {
		fetchResult, fetchStatus = priceFloorFetcher.Fetch(account.PriceFloors)
	}

	switch {
	case fetchResult != nil && fetchStatus == openrtb_ext.FetchSuccess && shouldUseDynamicFetchedFloor(*fetchResult, rand.Intn):
		mergedFloor := mergeFloors(reqFloor, fetchResult, conversions)
		floorRules, errList = createFloorsFrom(mergedFloor, account, fetchStatus, openrtb_ext.FetchLocation)
	case reqFloor != nil:
		floorRules, errList = createFloorsFrom(reqFloor, account, fetchStatus, openrtb_ext.RequestLocation)
	default:
		floorRules, errList = createFloorsFrom(nil, account, fetchStatus, openrtb_ext.NoDataLocation)
	}
	return floorRules, errList
}

// shouldUseDynamicFetchedFloor samples the data-level useFetchDataRate; an
// absent rate means the fetched data is always used.
func shouldUseDynamicFetchedFloor(f openrtb_ext.PriceFloorRules, rnd func(int) int) bool {
	rate := dataRateMax
	if f.Data != nil && f.Data.UseFetchDataRate != nil {
		rate = *f.Data.UseFetchDataRate
	}
	return rnd(dataRateMax) < rate
}

// mergeFloors merges fetched provider floors (primary) over the request's
// own floors (secondary) with JSON merge-patch semantics: provider-supplied
// fields win, absent provider fields fall back to the request's values.
func mergeFloors(reqFloors, fetchedFloors *openrtb_ext.PriceFloorRules, conversions currency.Conversions) *openrtb_ext.PriceFloorRules {
	mergedFloors := fetchedFloors.DeepCopy()

	if reqFloors != nil {
		if merged, err := mergeFloorsJSON(reqFloors, fetchedFloors); err == nil {
			mergedFloors = merged
		} else {
			glog.Errorf("Failed to merge fetched floors with request floors: %v", err)
		}
	}

	floorMin := resolveFloorMin(reqFloors, *fetchedFloors, conversions)
	if floorMin.FloorMin > 0.0 {
		mergedFloors.FloorMin = floorMin.FloorMin
		mergedFloors.FloorMinCur = floorMin.FloorMinCur
	}
	return mergedFloors
}

func mergeFloorsJSON(reqFloors, fetchedFloors *openrtb_ext.PriceFloorRules) (*openrtb_ext.PriceFloorRules, error) {
	reqJSON, err := json.Marshal(reqFloors)
	if err != nil {
		return nil, err
	}
	fetchedJSON, err := json.Marshal(fetchedFloors)
	if err != nil {
		return nil, err
	}
	mergedJSON, err := jsonpatch.MergePatch(reqJSON, fetchedJSON)
	if err != nil {
		return nil, err
	}

	merged := new(openrtb_ext.PriceFloorRules)
	if err := json.Unmarshal(mergedJSON, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// createFloorsFrom does preparation of floors data which shall be used for further processing
func createFloorsFrom(floors *openrtb_ext.PriceFloorRules, account config.Account, fetchStatus, floorLocation string) (*openrtb_ext.PriceFloorRules, []error) {
	var floorModelErrList []error
	finalFloors := &openrtb_ext.PriceFloorRules{
		FetchStatus:        fetchStatus,
		PriceFloorLocation: floorLocation,
	}

	if floors == nil {
		return finalFloors, floorModelErrList
	}

	if err := validateFloorParams(floors); err != nil {
		finalFloors.Enforcement = floors.Enforcement
		return finalFloors, append(floorModelErrList, err)
	}

	finalFloors.Enforcement = floors.Enforcement

	validModelGroups, floorModelErrList := validateFloorModelGroups(floors.Data.ModelGroups, account.PriceFloors.MaxRule, account.PriceFloors.MaxSchemaDims)
	if len(validModelGroups) == 0 {
		return finalFloors, floorModelErrList
	}

	*finalFloors = *floors
	finalFloors.FetchStatus = fetchStatus
	finalFloors.PriceFloorLocation = floorLocation
	finalFloors.Data = new(openrtb_ext.PriceFloorData)
	*finalFloors.Data = *floors.Data
	if len(validModelGroups) > 1 {
		validModelGroups = selectFloorModelGroup(validModelGroups, rand.Intn)
	}
	finalFloors.Data.ModelGroups = []openrtb_ext.PriceFloorModelGroup{validModelGroups[0].Copy()}

	return finalFloors, floorModelErrList
}

// selectFloorModelGroup selects a single model group weighted by modelWeight.
func selectFloorModelGroup(modelGroups []openrtb_ext.PriceFloorModelGroup, f func(int) int) []openrtb_ext.PriceFloorModelGroup {
	totalModelWeight := 0

	for i := 0; i < len(modelGroups); i++ {
		if modelGroups[i].ModelWeight == nil {
			modelGroups[i].ModelWeight = ptrutil.ToPtr(1)
		}
		totalModelWeight += *modelGroups[i].ModelWeight
	}

	sort.SliceStable(modelGroups, func(i, j int) bool {
		return *modelGroups[i].ModelWeight < *modelGroups[j].ModelWeight
	})

	winWeight := f(totalModelWeight + 1)
	debugWeight := winWeight
	for i, modelGroup := range modelGroups {
		winWeight -= *modelGroup.ModelWeight
		if winWeight <= 0 {
			modelGroups[0], modelGroups[i] = modelGroups[i], modelGroups[0]
			modelGroups[0].DebugWeight = debugWeight
			return modelGroups[:1]
		}
	}
	return modelGroups[:1]
}

// shouldSkipFloors samples the most specific configured skip rate:
// modelGroup over data over root.
func shouldSkipFloors(modelGroupsSkipRate, dataSkipRate, rootSkipRate int, f func(int) int) bool {
	skipRate := rootSkipRate

	if modelGroupsSkipRate > 0 {
		skipRate = modelGroupsSkipRate
	} else if dataSkipRate > 0 {
		skipRate = dataSkipRate
	}
	return skipRate > f(skipRateMax+1)
}

// resolveFloorMin reconciles the floorMin of the request and the fetched
// rule set, converting the provider's floorMin into the request's floorMin
// currency when both are present in different currencies.
func resolveFloorMin(reqFloors *openrtb_ext.PriceFloorRules, fetchFloors openrtb_ext.PriceFloorRules, conversions currency.Conversions) Price {
	var floorCur, reqFloorMinCur string
	var reqFloorMin float64
	if reqFloors != nil {
		floorCur = getFloorCurrency(reqFloors)
		reqFloorMin = reqFloors.FloorMin
		reqFloorMinCur = reqFloors.FloorMinCur
	}

	if len(reqFloorMinCur) == 0 && fetchFloors.Data == nil {
		reqFloorMinCur = floorCur
	}

	provFloorMinCur := fetchFloors.FloorMinCur
	provFloorMin := fetchFloors.FloorMin

	if len(reqFloorMinCur) > 0 {
		if reqFloorMin > 0.0 {
			return Price{FloorMin: reqFloorMin, FloorMinCur: reqFloorMinCur}
		}
		if provFloorMin > 0.0 {
			if len(provFloorMinCur) == 0 || strings.Compare(reqFloorMinCur, provFloorMinCur) == 0 {
				return Price{FloorMin: provFloorMin, FloorMinCur: reqFloorMinCur}
			}
			if rate, err := conversions.GetRate(provFloorMinCur, reqFloorMinCur); err == nil {
				return Price{
					FloorMinCur: reqFloorMinCur,
					FloorMin:    math.Round(rate*provFloorMin*roundingFactor) / roundingFactor,
				}
			}
		}
	}

	if len(provFloorMinCur) == 0 {
		provFloorMinCur = getFloorCurrency(&fetchFloors)
	}
	if len(provFloorMinCur) > 0 {
		if provFloorMin > 0.0 {
			return Price{FloorMin: provFloorMin, FloorMinCur: provFloorMinCur}
		}
		if reqFloorMin > 0.0 {
			return Price{FloorMin: reqFloorMin, FloorMinCur: provFloorMinCur}
		}
	}
	return Price{FloorMin: 0.0, FloorMinCur: floorCur}
}

// extractFloorsFromRequest gets floors data from req.ext.prebid.floors
func extractFloorsFromRequest(bidRequestWrapper *openrtb_ext.RequestWrapper) *openrtb_ext.PriceFloorRules {
	requestExt, err := bidRequestWrapper.GetRequestExt()
	if err == nil {
		if prebidExt := requestExt.GetPrebid(); prebidExt != nil && prebidExt.Floors != nil {
			return prebidExt.Floors
		}
	}
	return nil
}

// updateFloorsInRequest updates floors data into req.ext.prebid.floors
func updateFloorsInRequest(bidRequestWrapper *openrtb_ext.RequestWrapper, priceFloors *openrtb_ext.PriceFloorRules) {
	requestExt, err := bidRequestWrapper.GetRequestExt()
	if err == nil {
		prebidExt := requestExt.GetPrebid()
		if prebidExt == nil {
			prebidExt = new(openrtb_ext.ExtRequestPrebid)
		}
		prebidExt.Floors = priceFloors
		requestExt.SetPrebid(prebidExt)
		bidRequestWrapper.RebuildRequestExt()
	}
}
