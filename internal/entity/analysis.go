package entity

import "strings"

// DimensionAnalysis is the comparative result for one dimension.
type DimensionAnalysis struct {
	Key               string            `json:"dimension_key"`
	Name              string            `json:"dimension_name"`
	CountryProvisions map[string]string `json:"country_provisions"` // document display name -> provisions
	Comparative       string            `json:"comparative_analysis"`
}

// BenchmarkAnalysis is the persisted output of the analysis stage.
type BenchmarkAnalysis struct {
	Dimensions []DimensionAnalysis `json:"benchmarking_analysis"`
	// Columns lists document display names in document order; report columns follow it.
	Columns []string `json:"columns,omitempty"`
	// NonCore holds dimension keys excluded as non-core.
	NonCore []string `json:"non_core_dimensions,omitempty"`
	// Failed holds dimension keys whose comparative call failed.
	Failed []string `json:"failed_dimensions,omitempty"`
}

// HasProvision reports whether text carries an actual provision rather than a placeholder.
func HasProvision(text string) bool {
	t := strings.TrimSpace(text)
	return t != "" && !strings.Contains(strings.ToLower(t), "no data provided")
}
