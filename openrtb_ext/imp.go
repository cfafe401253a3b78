package openrtb_ext

// ExtImpPrebid defines the contract for bidrequest.imp[i].ext.prebid
type ExtImpPrebid struct {
	Floors *ExtImpPrebidFloors `json:"floors,omitempty"`
}

// ExtImpPrebidFloors defines the contract for bidrequest.imp[i].ext.prebid.floors
type ExtImpPrebidFloors struct {
	FloorRule      string  `json:"floorRule,omitempty"`
	FloorRuleValue float64 `json:"floorRuleValue,omitempty"`
	FloorValue     float64 `json:"floorValue,omitempty"`
}
