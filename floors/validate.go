package floors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/prebid/price-floors-engine/config"
	"github.com/prebid/price-floors-engine/openrtb_ext"
)

// validateFloorParams runs the root-level structural checks on a rule set.
// The first violation aborts with a specific message; nothing is mutated.
func validateFloorParams(extFloorRules *openrtb_ext.PriceFloorRules) error {
	if extFloorRules.SkipRate < skipRateMin || extFloorRules.SkipRate > skipRateMax {
		return fmt.Errorf("Invalid SkipRate = '%v' at ext.prebid.floors.skiprate", extFloorRules.SkipRate)
	}

	if extFloorRules.FloorMin < 0.0 {
		return fmt.Errorf("Invalid FloorMin = '%v', value should be >= 0", extFloorRules.FloorMin)
	}

	if extFloorRules.Data == nil {
		return errors.New("Empty data in floors rule set")
	}

	if extFloorRules.Data.SkipRate < skipRateMin || extFloorRules.Data.SkipRate > skipRateMax {
		return fmt.Errorf("Invalid SkipRate = '%v' at ext.prebid.floors.data.skiprate", extFloorRules.Data.SkipRate)
	}

	if extFloorRules.Data.UseFetchDataRate != nil &&
		(*extFloorRules.Data.UseFetchDataRate < dataRateMin || *extFloorRules.Data.UseFetchDataRate > dataRateMax) {
		return fmt.Errorf("Invalid UseFetchDataRate = '%v', value should be between 0 and 100", *extFloorRules.Data.UseFetchDataRate)
	}

	if len(extFloorRules.Data.ModelGroups) == 0 {
		return errors.New("No model group present in floors.data")
	}

	return nil
}

// validateFloorModelGroups filters out the invalid model groups from the rule
// set, collecting one distinct error per rejected group.
func validateFloorModelGroups(modelGroups []openrtb_ext.PriceFloorModelGroup, maxRules, maxSchemaDims int) ([]openrtb_ext.PriceFloorModelGroup, []error) {
	var errs []error
	var validModelGroups []openrtb_ext.PriceFloorModelGroup
	for _, modelGroup := range modelGroups {
		if err := validateFloorModelGroup(modelGroup, maxRules, maxSchemaDims); err != nil {
			errs = append(errs, err)
			continue
		}
		validModelGroups = append(validModelGroups, modelGroup)
	}
	return validModelGroups, errs
}

func validateFloorModelGroup(modelGroup openrtb_ext.PriceFloorModelGroup, maxRules, maxSchemaDims int) error {
	if modelGroup.ModelWeight != nil && (*modelGroup.ModelWeight < modelWeightMin || *modelGroup.ModelWeight > modelWeightMax) {
		return fmt.Errorf("Invalid Floor Model = '%v' due to ModelWeight = '%v'", modelGroup.ModelVersion, *modelGroup.ModelWeight)
	}

	if modelGroup.SkipRate < skipRateMin || modelGroup.SkipRate > skipRateMax {
		return fmt.Errorf("Invalid Floor Model = '%v' due to SkipRate = '%v'", modelGroup.ModelVersion, modelGroup.SkipRate)
	}

	if modelGroup.Default < 0.0 {
		return fmt.Errorf("Invalid Floor Model = '%v' due to Default = '%v'", modelGroup.ModelVersion, modelGroup.Default)
	}

	if len(modelGroup.Values) == 0 {
		return fmt.Errorf("Invalid Floor Model = '%v' due to empty rule values", modelGroup.ModelVersion)
	}

	if maxRules > 0 && len(modelGroup.Values) > maxRules {
		return fmt.Errorf("Invalid Floor Model = '%v' due to number of rules = '%v' exceeds limit = '%v'", modelGroup.ModelVersion, len(modelGroup.Values), maxRules)
	}

	if len(modelGroup.Schema.Fields) == 0 {
		return fmt.Errorf("Invalid Floor Model = '%v' due to empty schema fields", modelGroup.ModelVersion)
	}

	if maxSchemaDims > 0 && len(modelGroup.Schema.Fields) > maxSchemaDims {
		return fmt.Errorf("Invalid Floor Model = '%v' due to number of schema fields = '%v' exceeds limit = '%v'", modelGroup.ModelVersion, len(modelGroup.Schema.Fields), maxSchemaDims)
	}

	return nil
}

// validateRules runs the full structural validation used for a fetched rule
// set, bounded by the fetch configuration limits. The first violation aborts.
func validateRules(configs config.AccountFloorFetch, priceFloors *openrtb_ext.PriceFloorRules) error {
	if err := validateFloorParams(priceFloors); err != nil {
		return err
	}

	for _, modelGroup := range priceFloors.Data.ModelGroups {
		if err := validateFloorModelGroup(modelGroup, configs.MaxRules, configs.MaxSchemaDims); err != nil {
			return err
		}
	}

	return nil
}

// validateFloorRulesAndLowerValidRuleKey prunes rule keys whose field count
// does not match the schema and normalizes the surviving keys to lower case.
func validateFloorRulesAndLowerValidRuleKey(schema openrtb_ext.PriceFloorSchema, delimiter string, ruleValues map[string]float64) []error {
	var errs []error
	for key, val := range ruleValues {
		parsedKey := strings.Split(key, delimiter)
		if len(parsedKey) != len(schema.Fields) {
			errs = append(errs, fmt.Errorf("Invalid Floor Rule = '%v' for Schema Fields = '%v'", key, schema.Fields))
			delete(ruleValues, key)
			continue
		}
		newKey := strings.ToLower(key)
		if newKey != key {
			delete(ruleValues, key)
			ruleValues[newKey] = val
		}
	}
	return errs
}
