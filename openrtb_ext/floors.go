package openrtb_ext

// Defines strings for FetchStatus
const (
	FetchSuccess    = "success"
	FetchTimeout    = "timeout"
	FetchError      = "error"
	FetchInprogress = "inprogress"
	FetchNone       = "none"
)

// Defines strings for PriceFloorLocation
const (
	NoDataLocation  = "noData"
	RequestLocation = "request"
	FetchLocation   = "fetch"
)

// PriceFloorRules defines the contract for bidrequest.ext.prebid.floors
type PriceFloorRules struct {
	FloorMin           float64                `json:"floormin,omitempty"`
	FloorMinCur        string                 `json:"floormincur,omitempty"`
	SkipRate           int                    `json:"skiprate,omitempty"`
	Location           *PriceFloorEndpoint    `json:"floorendpoint,omitempty"`
	Data               *PriceFloorData        `json:"data,omitempty"`
	Enforcement        *PriceFloorEnforcement `json:"enforcement,omitempty"`
	Enabled            *bool                  `json:"enabled,omitempty"`
	Skipped            *bool                  `json:"skipped,omitempty"`
	FloorProvider      string                 `json:"floorprovider,omitempty"`
	FetchStatus        string                 `json:"fetchstatus,omitempty"`
	PriceFloorLocation string                 `json:"location,omitempty"`
}

// GetEnforcePBS returns enforcePBS flag from PriceFloorRules
func (floorRules *PriceFloorRules) GetEnforcePBS() bool {
	if floorRules != nil && floorRules.Enforcement != nil && floorRules.Enforcement.EnforcePBS != nil {
		return *floorRules.Enforcement.EnforcePBS
	}
	return true
}

// GetFloorsSkippedFlag returns floors skipped flag from PriceFloorRules
func (floorRules *PriceFloorRules) GetFloorsSkippedFlag() bool {
	if floorRules != nil && floorRules.Skipped != nil {
		return *floorRules.Skipped
	}
	return false
}

// GetEnforceRate returns enforceRate from PriceFloorRules
func (floorRules *PriceFloorRules) GetEnforceRate() int {
	if floorRules != nil && floorRules.Enforcement != nil {
		return floorRules.Enforcement.EnforceRate
	}
	return 0
}

// GetEnforceDealsFlag returns FloorDeals flag from PriceFloorRules
func (floorRules *PriceFloorRules) GetEnforceDealsFlag() bool {
	if floorRules != nil && floorRules.Enforcement != nil && floorRules.Enforcement.FloorDeals != nil {
		return *floorRules.Enforcement.FloorDeals
	}
	return false
}

// GetEnabled returns whether floors are enabled in PriceFloorRules
func (floorRules *PriceFloorRules) GetEnabled() bool {
	if floorRules != nil && floorRules.Enabled != nil {
		return *floorRules.Enabled
	}
	return true
}

type PriceFloorEndpoint struct {
	URL string `json:"url,omitempty"`
}

type PriceFloorData struct {
	Currency             string                 `json:"currency,omitempty"`
	SkipRate             int                    `json:"skiprate,omitempty"`
	FloorsSchemaVersion  string                 `json:"floorsschemaversion,omitempty"`
	ModelTimestamp       int                    `json:"modeltimestamp,omitempty"`
	ModelGroups          []PriceFloorModelGroup `json:"modelgroups,omitempty"`
	UseFetchDataRate     *int                   `json:"usefetchdatarate,omitempty"`
	NoFloorSignalBidders []string               `json:"noFloorSignalBidders,omitempty"`
}

type PriceFloorModelGroup struct {
	Currency             string             `json:"currency,omitempty"`
	ModelWeight          *int               `json:"modelweight,omitempty"`
	DebugWeight          int                `json:"-"`
	ModelVersion         string             `json:"modelversion,omitempty"`
	SkipRate             int                `json:"skiprate,omitempty"`
	Schema               PriceFloorSchema   `json:"schema,omitempty"`
	Values               map[string]float64 `json:"values,omitempty"`
	Default              float64            `json:"default,omitempty"`
	NoFloorSignalBidders []string           `json:"noFloorSignalBidders,omitempty"`
}

func (mg PriceFloorModelGroup) Copy() PriceFloorModelGroup {
	newMg := new(PriceFloorModelGroup)
	newMg.Currency = mg.Currency
	newMg.ModelVersion = mg.ModelVersion
	newMg.SkipRate = mg.SkipRate
	newMg.DebugWeight = mg.DebugWeight
	newMg.Default = mg.Default

	if mg.ModelWeight != nil {
		newMg.ModelWeight = new(int)
		*newMg.ModelWeight = *mg.ModelWeight
	}

	if mg.NoFloorSignalBidders != nil {
		newMg.NoFloorSignalBidders = make([]string, len(mg.NoFloorSignalBidders))
		copy(newMg.NoFloorSignalBidders, mg.NoFloorSignalBidders)
	}

	newMg.Schema.Delimiter = mg.Schema.Delimiter
	newMg.Schema.Fields = make([]string, len(mg.Schema.Fields))
	copy(newMg.Schema.Fields, mg.Schema.Fields)

	newMg.Values = make(map[string]float64, len(mg.Values))
	for key, val := range mg.Values {
		newMg.Values[key] = val
	}
	return *newMg
}

type PriceFloorSchema struct {
	Fields    []string `json:"fields,omitempty"`
	Delimiter string   `json:"delimiter,omitempty"`
}

type PriceFloorEnforcement struct {
	EnforceJS            *bool    `json:"enforcejs,omitempty"`
	EnforcePBS           *bool    `json:"enforcepbs,omitempty"`
	FloorDeals           *bool    `json:"floordeals,omitempty"`
	BidAdjustment        *bool    `json:"bidadjustment,omitempty"`
	EnforceRate          int      `json:"enforcerate,omitempty"`
	NoFloorSignalBidders []string `json:"noFloorSignalBidders,omitempty"`
}

// DeepCopy returns a fresh copy of the rule set which shares no mutable
// state with the receiver. Used to hand out cache snapshots.
func (floorRules *PriceFloorRules) DeepCopy() *PriceFloorRules {
	if floorRules == nil {
		return nil
	}

	newRules := *floorRules
	newRules.Enabled = copyPtr(floorRules.Enabled)
	newRules.Skipped = copyPtr(floorRules.Skipped)

	if floorRules.Location != nil {
		location := *floorRules.Location
		newRules.Location = &location
	}

	if floorRules.Enforcement != nil {
		enforcement := *floorRules.Enforcement
		enforcement.EnforceJS = copyPtr(floorRules.Enforcement.EnforceJS)
		enforcement.EnforcePBS = copyPtr(floorRules.Enforcement.EnforcePBS)
		enforcement.FloorDeals = copyPtr(floorRules.Enforcement.FloorDeals)
		enforcement.BidAdjustment = copyPtr(floorRules.Enforcement.BidAdjustment)
		if floorRules.Enforcement.NoFloorSignalBidders != nil {
			enforcement.NoFloorSignalBidders = make([]string, len(floorRules.Enforcement.NoFloorSignalBidders))
			copy(enforcement.NoFloorSignalBidders, floorRules.Enforcement.NoFloorSignalBidders)
		}
		newRules.Enforcement = &enforcement
	}

	if floorRules.Data != nil {
		data := *floorRules.Data
		data.UseFetchDataRate = copyPtr(floorRules.Data.UseFetchDataRate)
		if floorRules.Data.NoFloorSignalBidders != nil {
			data.NoFloorSignalBidders = make([]string, len(floorRules.Data.NoFloorSignalBidders))
			copy(data.NoFloorSignalBidders, floorRules.Data.NoFloorSignalBidders)
		}
		data.ModelGroups = make([]PriceFloorModelGroup, len(floorRules.Data.ModelGroups))
		for i := range floorRules.Data.ModelGroups {
			data.ModelGroups[i] = floorRules.Data.ModelGroups[i].Copy()
		}
		newRules.Data = &data
	}

	return &newRules
}

func copyPtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
