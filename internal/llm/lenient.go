package llm

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// CoerceFlags normalizes a relevance block so it can validate against RelevanceSchema.
// Models answer with 0/1, true/false, "1", "yes" and friends; anything unrecognized
// is dropped and reported.
func CoerceFlags(block map[string]json.RawMessage) (map[string]int, []string) {
	out := make(map[string]int, len(block))
	var dropped []string
	for k, raw := range block {
		key := strings.TrimSpace(k)
		if key == "" {
			dropped = append(dropped, "(empty key)")
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			dropped = append(dropped, key)
			continue
		}
		flag, ok := coerceFlag(v)
		if !ok {
			dropped = append(dropped, key)
			continue
		}
		out[key] = flag
	}
	return out, dropped
}

func coerceFlag(v any) (int, bool) {
	switch t := v.(type) {
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case float64:
		switch t {
		case 0:
			return 0, true
		case 1:
			return 1, true
		}
		return 0, false
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		switch s {
		case "1", "true", "yes", "y", "relevant":
			return 1, true
		case "0", "false", "no", "n", "", "not relevant":
			return 0, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return coerceFlag(f)
		}
		return 0, false
	case nil:
		return 0, true
	default:
		return 0, false
	}
}

// CoerceTexts reads a block of key -> "label: description" strings. Objects of the form
// {"dimension_label": ..., "dimension_description": ...} are flattened to the text form.
func CoerceTexts(block map[string]json.RawMessage) (map[string]string, []string) {
	out := make(map[string]string, len(block))
	var dropped []string
	for k, raw := range block {
		key := strings.TrimSpace(k)
		if key == "" {
			dropped = append(dropped, "(empty key)")
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			out[key] = strings.TrimSpace(s)
			continue
		}
		var obj struct {
			Label       string `json:"dimension_label"`
			Description string `json:"dimension_description"`
		}
		if err := json.Unmarshal(raw, &obj); err == nil && (obj.Label != "" || obj.Description != "") {
			out[key] = strings.TrimSpace(obj.Label) + ": " + strings.TrimSpace(obj.Description)
			continue
		}
		if string(raw) == "null" {
			out[key] = ""
			continue
		}
		dropped = append(dropped, key)
	}
	return out, dropped
}

// CoerceStrings reads a JSON array whose items should be strings; numbers are formatted.
func CoerceStrings(raw json.RawMessage) ([]string, error) {
	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: expected list: %v", ErrMalformed, err)
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		switch t := it.(type) {
		case string:
			if s := strings.TrimSpace(t); s != "" {
				out = append(out, s)
			}
		case float64:
			out = append(out, strconv.FormatFloat(t, 'f', -1, 64))
		}
	}
	return out, nil
}
