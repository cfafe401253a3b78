package floors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/prebid/price-floors-engine/config"
	"github.com/prebid/price-floors-engine/openrtb_ext"
	"github.com/prebid/price-floors-engine/util/ptrutil"
)

func TestValidateFloorParams(t *testing.T) {
	tt := []struct {
		name        string
		floorExt    *openrtb_ext.PriceFloorRules
		expectedErr error
	}{
		{
			name: "Valid rule set",
			floorExt: &openrtb_ext.PriceFloorRules{Data: &openrtb_ext.PriceFloorData{
				ModelGroups: []openrtb_ext.PriceFloorModelGroup{{
					Schema: openrtb_ext.PriceFloorSchema{Fields: []string{"mediaType", "size"}},
					Values: map[string]float64{"banner|300x250": 1.01},
				}},
			}},
		},
		{
			name:        "Invalid root skip rate",
			floorExt:    &openrtb_ext.PriceFloorRules{SkipRate: 110, Data: &openrtb_ext.PriceFloorData{}},
			expectedErr: errors.New("Invalid SkipRate = '110' at ext.prebid.floors.skiprate"),
		},
		{
			name:        "Negative floorMin",
			floorExt:    &openrtb_ext.PriceFloorRules{FloorMin: -1, Data: &openrtb_ext.PriceFloorData{}},
			expectedErr: errors.New("Invalid FloorMin = '-1', value should be >= 0"),
		},
		{
			name:        "Missing data",
			floorExt:    &openrtb_ext.PriceFloorRules{},
			expectedErr: errors.New("Empty data in floors rule set"),
		},
		{
			name:        "Invalid data skip rate",
			floorExt:    &openrtb_ext.PriceFloorRules{Data: &openrtb_ext.PriceFloorData{SkipRate: -2}},
			expectedErr: errors.New("Invalid SkipRate = '-2' at ext.prebid.floors.data.skiprate"),
		},
		{
			name: "Invalid useFetchDataRate",
			floorExt: &openrtb_ext.PriceFloorRules{Data: &openrtb_ext.PriceFloorData{
				UseFetchDataRate: ptrutil.ToPtr(150),
			}},
			expectedErr: errors.New("Invalid UseFetchDataRate = '150', value should be between 0 and 100"),
		},
		{
			name:        "No model groups",
			floorExt:    &openrtb_ext.PriceFloorRules{Data: &openrtb_ext.PriceFloorData{}},
			expectedErr: errors.New("No model group present in floors.data"),
		},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expectedErr, validateFloorParams(tc.floorExt), tc.name)
		})
	}
}

func TestValidateFloorModelGroups(t *testing.T) {
	validGroup := openrtb_ext.PriceFloorModelGroup{
		ModelVersion: "model 1",
		Schema:       openrtb_ext.PriceFloorSchema{Fields: []string{"mediaType", "size"}},
		Values:       map[string]float64{"banner|300x250": 1.01},
	}

	tt := []struct {
		name          string
		modelGroups   []openrtb_ext.PriceFloorModelGroup
		maxRules      int
		maxSchemaDims int
		expectedValid int
		expectedErrs  int
	}{
		{
			name:          "All groups valid",
			modelGroups:   []openrtb_ext.PriceFloorModelGroup{validGroup},
			expectedValid: 1,
		},
		{
			name: "Invalid model weight filtered out",
			modelGroups: []openrtb_ext.PriceFloorModelGroup{
				validGroup,
				{
					ModelVersion: "model 2",
					ModelWeight:  ptrutil.ToPtr(0),
					Schema:       openrtb_ext.PriceFloorSchema{Fields: []string{"mediaType"}},
					Values:       map[string]float64{"banner": 1.01},
				},
			},
			expectedValid: 1,
			expectedErrs:  1,
		},
		{
			name: "Empty rule values filtered out",
			modelGroups: []openrtb_ext.PriceFloorModelGroup{
				{
					ModelVersion: "model 2",
					Schema:       openrtb_ext.PriceFloorSchema{Fields: []string{"mediaType"}},
				},
			},
			expectedErrs: 1,
		},
		{
			name:          "Rule count over limit filtered out",
			modelGroups:   []openrtb_ext.PriceFloorModelGroup{validGroup},
			maxRules:      0,
			maxSchemaDims: 0,
			expectedValid: 1,
		},
		{
			name: "Schema dims over limit filtered out",
			modelGroups: []openrtb_ext.PriceFloorModelGroup{
				{
					ModelVersion: "model 3",
					Schema:       openrtb_ext.PriceFloorSchema{Fields: []string{"mediaType", "size", "domain"}},
					Values:       map[string]float64{"banner|300x250|www.test.com": 1.01},
				},
			},
			maxSchemaDims: 2,
			expectedErrs:  1,
		},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			valid, errs := validateFloorModelGroups(tc.modelGroups, tc.maxRules, tc.maxSchemaDims)
			assert.Len(t, valid, tc.expectedValid, tc.name)
			assert.Len(t, errs, tc.expectedErrs, tc.name)
		})
	}
}

func TestValidateRules(t *testing.T) {
	fetchConfig := config.AccountFloorFetch{MaxRules: 2, MaxSchemaDims: 2}

	tt := []struct {
		name        string
		priceFloors *openrtb_ext.PriceFloorRules
		expectedErr bool
	}{
		{
			name: "Valid fetched rule set",
			priceFloors: &openrtb_ext.PriceFloorRules{Data: &openrtb_ext.PriceFloorData{
				ModelGroups: []openrtb_ext.PriceFloorModelGroup{{
					Schema: openrtb_ext.PriceFloorSchema{Fields: []string{"mediaType", "size"}},
					Values: map[string]float64{"banner|300x250": 1.01},
				}},
			}},
		},
		{
			name:        "Structural failure aborts",
			priceFloors: &openrtb_ext.PriceFloorRules{},
			expectedErr: true,
		},
		{
			name: "Any invalid model group aborts",
			priceFloors: &openrtb_ext.PriceFloorRules{Data: &openrtb_ext.PriceFloorData{
				ModelGroups: []openrtb_ext.PriceFloorModelGroup{
					{
						Schema: openrtb_ext.PriceFloorSchema{Fields: []string{"mediaType", "size"}},
						Values: map[string]float64{"banner|300x250": 1.01},
					},
					{
						Schema: openrtb_ext.PriceFloorSchema{Fields: []string{"mediaType", "size"}},
						Values: map[string]float64{"banner|300x250": 1.01, "banner|*": 1.0, "*|*": 0.5},
					},
				},
			}},
			expectedErr: true,
		},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			err := validateRules(fetchConfig, tc.priceFloors)
			if tc.expectedErr {
				assert.Error(t, err, tc.name)
			} else {
				assert.NoError(t, err, tc.name)
			}
		})
	}
}

func TestValidateFloorRulesAndLowerValidRuleKey(t *testing.T) {
	schema := openrtb_ext.PriceFloorSchema{Fields: []string{"mediaType", "size"}}

	ruleValues := map[string]float64{
		"BANNER|300x250":        1.01,
		"video|640x480":         2.01,
		"banner|300x250|extras": 3.01,
	}

	errs := validateFloorRulesAndLowerValidRuleKey(schema, "|", ruleValues)

	assert.Len(t, errs, 1)
	assert.Equal(t, map[string]float64{
		"banner|300x250": 1.01,
		"video|640x480":  2.01,
	}, ruleValues)
}
