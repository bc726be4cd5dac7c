package llm

import "github.com/joseph-ayodele/regbench/constants"

// Schemas for the blocks extracted from oracle responses (draft 2020-12 subset).
// They run after Response.Block and the lenient coercions, so they describe the
// inner record, not the wrapper.

// dimensionKeyPattern matches the keys a framework or assignment may carry.
const dimensionKeyPattern = "^" + constants.DimensionKeyPrefix + "[0-9]+$"

// FrameworkSchema: {"dimension_1": "Label: description", ...} with at least one entry.
func FrameworkSchema() map[string]any {
	return map[string]any{
		"type":          "object",
		"minProperties": 1,
		"propertyNames": map[string]any{"pattern": dimensionKeyPattern},
		"additionalProperties": map[string]any{
			"type":      "string",
			"minLength": 1,
		},
	}
}

// RelevanceSchema: {"dimension_1": 0, "dimension_2": 1, ...}.
func RelevanceSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"additionalProperties": map[string]any{
			"type":    "integer",
			"minimum": 0,
			"maximum": 1,
		},
	}
}

// AssignmentSchema: one or more {"dimension_k": "Label: description"} pairs. The text
// may be empty when the unit is attached to an existing dimension unchanged.
func AssignmentSchema() map[string]any {
	return map[string]any{
		"type":          "object",
		"minProperties": 1,
		"propertyNames": map[string]any{"pattern": dimensionKeyPattern},
		"additionalProperties": map[string]any{
			"type": "string",
		},
	}
}

// NonCoreSchema: {"non_core_dimensions": ["dimension_3", ...]}.
func NonCoreSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"non_core_dimensions"},
		"properties": map[string]any{
			"non_core_dimensions": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
	}
}

// ComparativeSchema: {"country_provisions": {"UK": "..."}, "comparative_analysis": "..."}.
func ComparativeSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"country_provisions", "comparative_analysis"},
		"properties": map[string]any{
			"country_provisions": map[string]any{
				"type":                 "object",
				"additionalProperties": map[string]any{"type": "string"},
			},
			"comparative_analysis": map[string]any{"type": "string"},
		},
	}
}
