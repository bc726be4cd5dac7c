package constants

import "strings"

// Artifact names used by blob-backed repositories and the CLI output directory.
const (
	FrameworkArtifact = "benchmarking_analysis_framework.json"
	MappingArtifact   = "benchmarking_analysis_framework_mapping.json"
	AnalysisArtifact  = "benchmarking_analysis.json"
	ReportArtifact    = "benchmarking_report.xlsx"
	DocumentsPrefix   = "documents/"
)

// UnitsKeySuffix is appended to a document tag to form the per-document id list key
// in the mapping artifact, e.g. "regulation_1_logical_units".
const UnitsKeySuffix = "_logical_units"

// DimensionKeyPrefix is the prefix of minted dimension keys ("dimension_7").
const DimensionKeyPrefix = "dimension_"

// Import limits. A tag becomes a file name and a key prefix; a unit id and its
// heading are repeated in every prompt that mentions the unit.
const (
	MaxTagLength     = 128
	MaxUnitIDLength  = 64
	MaxHeadingLength = 500
)

// AllowedExtensions holds the file extensions accepted by directory import.
var AllowedExtensions = map[string]struct{}{
	"json": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// UnitsKey returns the mapping artifact key for a document tag.
func UnitsKey(tag string) string {
	return tag + UnitsKeySuffix
}

// TagFromUnitsKey reverses UnitsKey. ok is false if key lacks the suffix.
func TagFromUnitsKey(key string) (tag string, ok bool) {
	if !strings.HasSuffix(key, UnitsKeySuffix) {
		return "", false
	}
	tag = strings.TrimSuffix(key, UnitsKeySuffix)
	return tag, tag != ""
}
