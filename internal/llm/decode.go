package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/joseph-ayodele/regbench/internal/entity"
)

// Wrapper keys the prompts ask for.
const (
	FrameworkKey   = "benchmarking_dimensions"
	MappingKey     = "benchmarking_dimensions_mapping"
	NonCoreKey     = "non_core_dimensions"
	ComparativeKey = "benchmarking_analysis"
)

// Assignment attaches a unit to a dimension key. Label and Description are empty
// when the oracle named an existing dimension without restating it.
type Assignment struct {
	Key         string
	Label       string
	Description string
}

// HasText reports whether the oracle supplied a label or description.
func (a Assignment) HasText() bool {
	return a.Label != "" || a.Description != ""
}

// Provisions is the per-dimension comparative answer.
type Provisions struct {
	CountryProvisions map[string]string `json:"country_provisions"`
	Comparative       string            `json:"comparative_analysis"`
}

// DecodeFramework parses the framework builder answer into dimensions in natural key order.
func DecodeFramework(raw string) ([]entity.Dimension, error) {
	block, err := ParseResponse(raw).Block(FrameworkKey)
	if err != nil {
		return nil, err
	}
	texts, dropped := CoerceTexts(block)
	if len(dropped) > 0 && len(texts) == 0 {
		return nil, fmt.Errorf("%w: no usable dimensions (dropped %v)", ErrMalformed, dropped)
	}
	if err := ValidateValue(FrameworkSchema(), texts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return entity.DimensionsFromFlat(texts), nil
}

// DecodeRelevance parses a per-unit relevance answer into the set of keys flagged 1.
// dropped lists keys whose flag could not be understood.
func DecodeRelevance(raw string) (relevant []string, dropped []string, err error) {
	block, err := ParseResponse(raw).Block(MappingKey)
	if err != nil {
		return nil, nil, err
	}
	flags, dropped := CoerceFlags(block)
	if err := ValidateValue(RelevanceSchema(), flags); err != nil {
		return nil, dropped, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	for k, v := range flags {
		if v == 1 {
			relevant = append(relevant, k)
		}
	}
	entity.SortNatural(relevant)
	return relevant, dropped, nil
}

// DecodeAssignments parses the closure loop's answer for one unmapped unit.
func DecodeAssignments(raw string) ([]Assignment, error) {
	block, err := ParseResponse(raw).Block(MappingKey)
	if err != nil {
		return nil, err
	}
	texts, _ := CoerceTexts(block)
	if err := ValidateValue(AssignmentSchema(), texts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	keys := make([]string, 0, len(texts))
	for k := range texts {
		keys = append(keys, k)
	}
	entity.SortNatural(keys)
	out := make([]Assignment, 0, len(keys))
	for _, k := range keys {
		var a Assignment
		if t := texts[k]; t != "" {
			d := entity.ParseDimension(k, t)
			a = Assignment{Key: k, Label: d.Label, Description: d.Description}
		} else {
			a = Assignment{Key: k}
		}
		out = append(out, a)
	}
	return out, nil
}

// DecodeNonCore parses the list of dimension keys judged non-core.
func DecodeNonCore(raw string) ([]string, error) {
	resp := ParseResponse(raw)
	var list json.RawMessage
	switch resp.Kind {
	case KindObject:
		v, ok := resp.Object[NonCoreKey]
		if !ok {
			return nil, fmt.Errorf("%w: missing %q", ErrMalformed, NonCoreKey)
		}
		list = v
	case KindList:
		b, err := json.Marshal(resp.List)
		if err != nil {
			return nil, err
		}
		list = b
	case KindRaw:
		return nil, fmt.Errorf("%w: expected json, got text", ErrMalformed)
	}
	keys, err := CoerceStrings(list)
	if err != nil {
		return nil, err
	}
	if err := ValidateValue(NonCoreSchema(), map[string]any{NonCoreKey: keys}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return keys, nil
}

// DecodeComparative parses the comparative analysis answer for one dimension.
func DecodeComparative(raw string) (Provisions, error) {
	block, err := ParseResponse(raw).Block(ComparativeKey)
	if err != nil {
		return Provisions{}, err
	}
	b, err := json.Marshal(block)
	if err != nil {
		return Provisions{}, err
	}
	if err := ValidateJSONAgainstSchema(ComparativeSchema(), b); err != nil {
		return Provisions{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var p Provisions
	if err := json.Unmarshal(b, &p); err != nil {
		return Provisions{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	p.Comparative = strings.TrimSpace(p.Comparative)
	return p, nil
}
