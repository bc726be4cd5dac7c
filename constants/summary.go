package constants

import "strings"

// NotApplicable is the normalized summary the segmentation step writes for units
// without substantive content.
const NotApplicable = "not applicable"

// FallbackDimensionLabel is used when the oracle mints a dimension without a label.
const FallbackDimensionLabel = "Others"

// NormalizeSummary lowercases s, collapses runs of whitespace and strips trailing periods.
func NormalizeSummary(s string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(s)), " ")
	for strings.HasSuffix(normalized, ".") {
		normalized = strings.TrimSpace(strings.TrimSuffix(normalized, "."))
	}
	return normalized
}
