package floors

import (
	"errors"
	"fmt"
	"math/bits"
	"regexp"
	"sort"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/prebid/openrtb/v20/openrtb2"

	"github.com/prebid/price-floors-engine/currency"
	"github.com/prebid/price-floors-engine/openrtb_ext"
)

// Schema field kinds supported by the rule matching algorithm.
const (
	SiteDomain string = "siteDomain"
	PubDomain  string = "pubDomain"
	Domain     string = "domain"
	Bundle     string = "bundle"
	Channel    string = "channel"
	MediaType  string = "mediaType"
	Size       string = "size"
	GptSlot    string = "gptSlot"
	PbAdSlot   string = "pbAdSlot"
	Country    string = "country"
	DeviceType string = "deviceType"
)

// Device type classes derived from the user agent.
const (
	tablet  string = "tablet"
	phone   string = "phone"
	desktop string = "desktop"
)

var (
	mobileDeviceUARegex = regexp.MustCompile(`(?i)Phone|iPhone|Android|Mobile`)
	tabletDeviceUARegex = regexp.MustCompile(`(?i)tablet|iPad|Windows NT`)
)

// getFloorCurrency returns the currency a model group's values are expressed
// in: the model group currency, falling back to the data currency, falling
// back to USD.
func getFloorCurrency(floorExt *openrtb_ext.PriceFloorRules) string {
	floorCur := defaultCurrency
	if floorExt != nil && floorExt.Data != nil {
		if floorExt.Data.Currency != "" {
			floorCur = floorExt.Data.Currency
		}
		if len(floorExt.Data.ModelGroups) > 0 && floorExt.Data.ModelGroups[0].Currency != "" {
			floorCur = floorExt.Data.ModelGroups[0].Currency
		}
	}
	return floorCur
}

// getMinFloorValue returns floorMin converted into the rule data currency so
// it can be compared against matched rule values.
func getMinFloorValue(floorExt *openrtb_ext.PriceFloorRules, conversions currency.Conversions) (float64, string, error) {
	var err error
	floorMin := floorExt.FloorMin
	floorCur := getFloorCurrency(floorExt)

	if floorExt.FloorMin > 0.0 && floorExt.FloorMinCur != "" && floorCur != "" &&
		floorExt.FloorMinCur != floorCur {
		var rate float64
		rate, err = conversions.GetRate(floorExt.FloorMinCur, floorCur)
		floorMin = rate * floorExt.FloorMin
	}
	return floorMin, floorCur, err
}

// updateImpExtWithFloorDetails retains the matched rule and both raw and
// final floor values on imp.ext for debugging and analytics.
func updateImpExtWithFloorDetails(imp *openrtb_ext.ImpWrapper, matchedRule string, floorRuleVal, floorVal float64) {
	if len(imp.Ext) == 0 {
		imp.Ext = []byte(`{}`)
	}
	imp.Ext, _ = jsonparser.Set(imp.Ext, []byte(`"`+matchedRule+`"`), "prebid", "floors", "floorRule")
	imp.Ext, _ = jsonparser.Set(imp.Ext, []byte(fmt.Sprintf("%.4f", floorRuleVal)), "prebid", "floors", "floorRuleValue")
	imp.Ext, _ = jsonparser.Set(imp.Ext, []byte(fmt.Sprintf("%.4f", floorVal)), "prebid", "floors", "floorValue")
}

// createRuleKey computes the resolved value for every schema field of one
// impression. A structurally ambiguous concept resolves to the wildcard
// marker; entirely absent required context aborts resolution with an error.
func createRuleKey(floorSchema openrtb_ext.PriceFloorSchema, bidRequestWrapper *openrtb_ext.RequestWrapper, imp *openrtb2.Imp) ([]string, error) {
	var ruleKeys []string

	for _, field := range floorSchema.Fields {
		value := catchAll
		var err error
		switch field {
		case MediaType:
			value = getMediaType(imp)
		case Size:
			value = getSizeValue(imp)
		case Domain:
			value, err = getDomain(bidRequestWrapper.BidRequest)
		case SiteDomain:
			value, err = getSiteDomain(bidRequestWrapper.BidRequest)
		case Bundle:
			value = getBundle(bidRequestWrapper.BidRequest)
		case PubDomain:
			value, err = getPublisherDomain(bidRequestWrapper.BidRequest)
		case Country:
			value = getDeviceCountry(bidRequestWrapper.BidRequest)
		case DeviceType:
			value = getDeviceType(bidRequestWrapper.BidRequest)
		case Channel:
			value = getChannelName(bidRequestWrapper)
		case GptSlot:
			value = getgptslot(imp)
		case PbAdSlot:
			value = getpbadslot(imp)
		}
		if err != nil {
			return nil, err
		}
		if value == "" {
			value = catchAll
		}
		ruleKeys = append(ruleKeys, strings.ToLower(value))
	}
	return ruleKeys, nil
}

func getDeviceType(request *openrtb2.BidRequest) string {
	if request.Device == nil || len(request.Device.UA) == 0 {
		return catchAll
	}

	if mobileDeviceUARegex.MatchString(request.Device.UA) {
		return phone
	}
	if tabletDeviceUARegex.MatchString(request.Device.UA) {
		return tablet
	}
	return desktop
}

func getDeviceCountry(request *openrtb2.BidRequest) string {
	if request.Device != nil && request.Device.Geo != nil {
		return request.Device.Geo.Country
	}
	return catchAll
}

// getMediaType resolves to the impression's media type, or the wildcard when
// the impression declares zero or more than one media type.
func getMediaType(imp *openrtb2.Imp) string {
	var mediaTypes []string
	if imp.Banner != nil {
		mediaTypes = append(mediaTypes, string(openrtb_ext.BidTypeBanner))
	}
	if imp.Video != nil {
		mediaTypes = append(mediaTypes, string(openrtb_ext.BidTypeVideo))
	}
	if imp.Audio != nil {
		mediaTypes = append(mediaTypes, string(openrtb_ext.BidTypeAudio))
	}
	if imp.Native != nil {
		mediaTypes = append(mediaTypes, string(openrtb_ext.BidTypeNative))
	}

	if len(mediaTypes) != 1 {
		return catchAll
	}
	return mediaTypes[0]
}

// getSizeValue resolves to "WxH", or the wildcard when the impression
// declares more than one candidate size or no size at all.
func getSizeValue(imp *openrtb2.Imp) string {
	width := int64(0)
	height := int64(0)

	switch {
	case imp.Banner != nil:
		if len(imp.Banner.Format) == 1 {
			width = imp.Banner.Format[0].W
			height = imp.Banner.Format[0].H
		} else if len(imp.Banner.Format) > 1 {
			return catchAll
		} else if imp.Banner.W != nil && imp.Banner.H != nil {
			width = *imp.Banner.W
			height = *imp.Banner.H
		}
	case imp.Video != nil:
		if imp.Video.W != nil && imp.Video.H != nil {
			width = *imp.Video.W
			height = *imp.Video.H
		}
	}

	if width == 0 || height == 0 {
		return catchAll
	}
	return fmt.Sprintf("%dx%d", width, height)
}

func getDomain(request *openrtb2.BidRequest) (string, error) {
	if request.Site != nil {
		if len(request.Site.Domain) > 0 {
			return request.Site.Domain, nil
		}
		if request.Site.Publisher != nil {
			return request.Site.Publisher.Domain, nil
		}
		return catchAll, nil
	}
	if request.App != nil {
		if len(request.App.Domain) > 0 {
			return request.App.Domain, nil
		}
		if request.App.Publisher != nil {
			return request.App.Publisher.Domain, nil
		}
		return catchAll, nil
	}
	return "", errors.New("request has no site or app to resolve domain")
}

func getSiteDomain(request *openrtb2.BidRequest) (string, error) {
	if request.Site != nil {
		return request.Site.Domain, nil
	}
	if request.App != nil {
		return request.App.Domain, nil
	}
	return "", errors.New("request has no site or app to resolve siteDomain")
}

func getPublisherDomain(request *openrtb2.BidRequest) (string, error) {
	if request.Site != nil {
		if request.Site.Publisher != nil {
			return request.Site.Publisher.Domain, nil
		}
		return catchAll, nil
	}
	if request.App != nil {
		if request.App.Publisher != nil {
			return request.App.Publisher.Domain, nil
		}
		return catchAll, nil
	}
	return "", errors.New("request has no site or app to resolve pubDomain")
}

func getBundle(request *openrtb2.BidRequest) string {
	if request.App != nil {
		return request.App.Bundle
	}
	return catchAll
}

func getChannelName(bidRequestWrapper *openrtb_ext.RequestWrapper) string {
	requestExt, err := bidRequestWrapper.GetRequestExt()
	if err != nil {
		return catchAll
	}
	if prebidExt := requestExt.GetPrebid(); prebidExt != nil && prebidExt.Channel != nil {
		return prebidExt.Channel.Name
	}
	return catchAll
}

func getgptslot(imp *openrtb2.Imp) string {
	adsName, err := jsonparser.GetString(imp.Ext, "data", "adserver", "name")
	if err == nil && adsName == "gam" {
		if gptSlot, _ := jsonparser.GetString(imp.Ext, "data", "adserver", "adslot"); gptSlot != "" {
			return gptSlot
		}
		return catchAll
	}
	return getpbadslot(imp)
}

func getpbadslot(imp *openrtb2.Imp) string {
	pbAdSlot, err := jsonparser.GetString(imp.Ext, "data", "pbadslot")
	if err != nil {
		return catchAll
	}
	return pbAdSlot
}

// findRule looks up the fully-specific composite key and then every wildcard
// fallback, in precedence order, returning the first key present.
func findRule(ruleValues map[string]float64, delimiter string, desiredRuleKey []string) (string, bool) {
	ruleKeys := prepareRuleCombinations(desiredRuleKey, delimiter)
	for i := 0; i < len(ruleKeys); i++ {
		if _, ok := ruleValues[ruleKeys[i]]; ok {
			return ruleKeys[i], true
		}
	}
	return "", false
}

// prepareRuleCombinations enumerates all composite keys obtained by replacing
// subsets of fields with the wildcard marker, ordered by increasing wildcard
// count. Among combinations with an equal wildcard count, those wildcarding
// the less significant (right-most) fields come first, which makes the order
// total and the first match unambiguous.
func prepareRuleCombinations(keys []string, delimiter string) []string {
	numFields := len(keys)
	ruleKeys := []string{strings.ToLower(strings.Join(keys, delimiter))}

	for numWildcards := 1; numWildcards <= numFields; numWildcards++ {
		for _, comb := range generateCombinations(numFields, numWildcards) {
			eachSet := make([]string, numFields)
			copy(eachSet, keys)
			for _, idx := range comb {
				eachSet[idx] = catchAll
			}
			ruleKeys = append(ruleKeys, strings.ToLower(strings.Join(eachSet, delimiter)))
		}
	}
	return ruleKeys
}

// generateCombinations returns every subset of field indexes of the given
// size, ordered so that subsets covering right-most fields come first.
func generateCombinations(numFields, subsetSize int) [][]int {
	var combs [][]int

	for mask := 1; mask < (1 << numFields); mask++ {
		if bits.OnesCount(uint(mask)) != subsetSize {
			continue
		}
		var subset []int
		for i := 0; i < numFields; i++ {
			if (mask>>i)&1 == 1 {
				subset = append(subset, i)
			}
		}
		combs = append(combs, subset)
	}

	sort.SliceStable(combs, func(i, j int) bool {
		return combinationWeight(combs[i], numFields) < combinationWeight(combs[j], numFields)
	})
	return combs
}

// combinationWeight weighs a subset by the significance of the fields it
// wildcards; left-most fields carry the highest weight.
func combinationWeight(subset []int, numFields int) int {
	wt := 0
	for _, idx := range subset {
		wt += 1 << (numFields - 1 - idx)
	}
	return wt
}
