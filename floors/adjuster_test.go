package floors

import (
	"encoding/json"
	"testing"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/stretchr/testify/assert"

	"github.com/prebid/price-floors-engine/config"
	"github.com/prebid/price-floors-engine/errortypes"
	"github.com/prebid/price-floors-engine/openrtb_ext"
)

func adjusterTestAccount() config.Account {
	return config.Account{
		ID: "5890",
		PriceFloors: config.AccountPriceFloors{
			Enabled:                true,
			AdjustForBidAdjustment: true,
		},
	}
}

func TestAdjustForImp(t *testing.T) {
	tt := []struct {
		name          string
		imp           openrtb2.Imp
		requestExt    json.RawMessage
		account       config.Account
		expectedFloor *float64
		expectedCur   string
	}{
		{
			name:          "Floor divided by bidder factor",
			imp:           openrtb2.Imp{ID: "1234", BidFloor: 10, BidFloorCur: "USD", Banner: &openrtb2.Banner{Format: []openrtb2.Format{{W: 300, H: 250}}}},
			requestExt:    json.RawMessage(`{"prebid":{"bidadjustmentfactors":{"appnexus":0.8}}}`),
			account:       adjusterTestAccount(),
			expectedFloor: float64Ptr(12.5),
			expectedCur:   "USD",
		},
		{
			name:          "Media type specific factor preferred",
			imp:           openrtb2.Imp{ID: "1234", BidFloor: 10, BidFloorCur: "USD", Banner: &openrtb2.Banner{Format: []openrtb2.Format{{W: 300, H: 250}}}},
			requestExt:    json.RawMessage(`{"prebid":{"bidadjustmentfactors":{"appnexus":0.8,"mediatypes":{"banner":{"appnexus":0.5}}}}}`),
			account:       adjusterTestAccount(),
			expectedFloor: float64Ptr(20),
			expectedCur:   "USD",
		},
		{
			name:          "No factor configured leaves the floor unchanged",
			imp:           openrtb2.Imp{ID: "1234", BidFloor: 10, BidFloorCur: "USD", Banner: &openrtb2.Banner{}},
			requestExt:    json.RawMessage(`{"prebid":{}}`),
			account:       adjusterTestAccount(),
			expectedFloor: float64Ptr(10),
			expectedCur:   "USD",
		},
		{
			name:       "Account disables bid adjustment",
			imp:        openrtb2.Imp{ID: "1234", BidFloor: 10, BidFloorCur: "USD", Banner: &openrtb2.Banner{}},
			requestExt: json.RawMessage(`{"prebid":{"bidadjustmentfactors":{"appnexus":0.8}}}`),
			account: config.Account{
				ID:          "5890",
				PriceFloors: config.AccountPriceFloors{Enabled: true, AdjustForBidAdjustment: false},
			},
			expectedFloor: float64Ptr(10),
			expectedCur:   "USD",
		},
		{
			name:        "No floor on the impression means no signal",
			imp:         openrtb2.Imp{ID: "1234", BidFloorCur: "USD", Banner: &openrtb2.Banner{}},
			requestExt:  json.RawMessage(`{"prebid":{"bidadjustmentfactors":{"appnexus":0.8}}}`),
			account:     adjusterTestAccount(),
			expectedCur: "USD",
		},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			wrapper := &openrtb_ext.RequestWrapper{BidRequest: &openrtb2.BidRequest{
				ID:  "req",
				Imp: []openrtb2.Imp{tc.imp},
				Ext: tc.requestExt,
			}}

			var warnings []error
			adjusted := NewPriceFloorAdjuster().AdjustForImp(&tc.imp, "appnexus", wrapper, tc.account, &warnings)

			if tc.expectedFloor == nil {
				assert.Nil(t, adjusted.FloorValue, tc.name)
			} else {
				assert.NotNil(t, adjusted.FloorValue, tc.name)
				assert.InDelta(t, *tc.expectedFloor, *adjusted.FloorValue, 0.0001, tc.name)
			}
			assert.Equal(t, tc.expectedCur, adjusted.FloorCur, tc.name)
			assert.Empty(t, warnings, tc.name)
		})
	}
}

func TestAdjustRevertRoundTrip(t *testing.T) {
	imp := openrtb2.Imp{ID: "1234", BidFloor: 7.37, BidFloorCur: "USD", Banner: &openrtb2.Banner{Format: []openrtb2.Format{{W: 300, H: 250}}}}
	wrapper := &openrtb_ext.RequestWrapper{BidRequest: &openrtb2.BidRequest{
		ID:  "req",
		Imp: []openrtb2.Imp{imp},
		Ext: json.RawMessage(`{"prebid":{"bidadjustmentfactors":{"appnexus":0.8}}}`),
	}}
	account := adjusterTestAccount()
	adjuster := NewPriceFloorAdjuster()

	var warnings []error
	adjusted := adjuster.AdjustForImp(&imp, "appnexus", wrapper, account, &warnings)
	assert.NotNil(t, adjusted.FloorValue)

	sentImp := imp
	sentImp.BidFloor = *adjusted.FloorValue
	reverted := adjuster.RevertAdjustmentForImp(&sentImp, "appnexus", wrapper, account)

	assert.NotNil(t, reverted.FloorValue)
	assert.InDelta(t, imp.BidFloor, *reverted.FloorValue, 0.0001)
}

func TestNoSignalAdjuster(t *testing.T) {
	imp := openrtb2.Imp{ID: "1234", BidFloor: 10, BidFloorCur: "USD", Banner: &openrtb2.Banner{}}

	tt := []struct {
		name             string
		floors           *openrtb_ext.PriceFloorRules
		bidder           openrtb_ext.BidderName
		expectSuppressed bool
	}{
		{
			name: "Bidder in model group no-signal list is suppressed",
			floors: &openrtb_ext.PriceFloorRules{Data: &openrtb_ext.PriceFloorData{
				ModelGroups: []openrtb_ext.PriceFloorModelGroup{{
					NoFloorSignalBidders: []string{"appnexus"},
					Schema:               openrtb_ext.PriceFloorSchema{Fields: []string{"mediaType"}},
					Values:               map[string]float64{"banner": 1.01},
				}},
			}},
			bidder:           "appnexus",
			expectSuppressed: true,
		},
		{
			name: "Bidder match is case-insensitive",
			floors: &openrtb_ext.PriceFloorRules{Data: &openrtb_ext.PriceFloorData{
				NoFloorSignalBidders: []string{"AppNexus"},
				ModelGroups: []openrtb_ext.PriceFloorModelGroup{{
					Schema: openrtb_ext.PriceFloorSchema{Fields: []string{"mediaType"}},
					Values: map[string]float64{"banner": 1.01},
				}},
			}},
			bidder:           "appnexus",
			expectSuppressed: true,
		},
		{
			name: "Wildcard suppresses every bidder",
			floors: &openrtb_ext.PriceFloorRules{
				Enforcement: &openrtb_ext.PriceFloorEnforcement{NoFloorSignalBidders: []string{"*"}},
				Data: &openrtb_ext.PriceFloorData{
					ModelGroups: []openrtb_ext.PriceFloorModelGroup{{
						Schema: openrtb_ext.PriceFloorSchema{Fields: []string{"mediaType"}},
						Values: map[string]float64{"banner": 1.01},
					}},
				},
			},
			bidder:           "rubicon",
			expectSuppressed: true,
		},
		{
			name: "Empty model group list beats populated data list",
			floors: &openrtb_ext.PriceFloorRules{Data: &openrtb_ext.PriceFloorData{
				NoFloorSignalBidders: []string{"appnexus"},
				ModelGroups: []openrtb_ext.PriceFloorModelGroup{{
					NoFloorSignalBidders: []string{},
					Schema:               openrtb_ext.PriceFloorSchema{Fields: []string{"mediaType"}},
					Values:               map[string]float64{"banner": 1.01},
				}},
			}},
			bidder:           "appnexus",
			expectSuppressed: false,
		},
		{
			name: "Bidder not listed keeps the signal",
			floors: &openrtb_ext.PriceFloorRules{Data: &openrtb_ext.PriceFloorData{
				NoFloorSignalBidders: []string{"rubicon"},
				ModelGroups: []openrtb_ext.PriceFloorModelGroup{{
					Schema: openrtb_ext.PriceFloorSchema{Fields: []string{"mediaType"}},
					Values: map[string]float64{"banner": 1.01},
				}},
			}},
			bidder:           "appnexus",
			expectSuppressed: false,
		},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			floorsJSON, err := json.Marshal(tc.floors)
			assert.NoError(t, err)
			wrapper := &openrtb_ext.RequestWrapper{BidRequest: &openrtb2.BidRequest{
				ID:  "req",
				Imp: []openrtb2.Imp{imp},
				Ext: json.RawMessage(`{"prebid":{"floors":` + string(floorsJSON) + `}}`),
			}}

			var warnings []error
			adjusted := NewPriceFloorAdjuster().AdjustForImp(&imp, tc.bidder, wrapper, adjusterTestAccount(), &warnings)

			if tc.expectSuppressed {
				assert.Nil(t, adjusted.FloorValue, tc.name)
				assert.Empty(t, adjusted.FloorCur, tc.name)
				assert.Len(t, warnings, 1, tc.name)
				warning, ok := warnings[0].(*errortypes.Warning)
				assert.True(t, ok, tc.name)
				assert.Equal(t, errortypes.FloorNoSignalWarningCode, warning.WarningCode, tc.name)
			} else {
				assert.NotNil(t, adjusted.FloorValue, tc.name)
				assert.Empty(t, warnings, tc.name)
			}
		})
	}
}

func float64Ptr(v float64) *float64 {
	return &v
}
