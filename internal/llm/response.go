package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/joseph-ayodele/regbench/internal/entity"
)

// ErrMalformed marks an oracle answer that could not be turned into the expected structure.
var ErrMalformed = errors.New("malformed oracle response")

// Kind tags the shape of a parsed oracle response.
type Kind int

const (
	KindRaw Kind = iota
	KindObject
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindList:
		return "list"
	default:
		return "raw"
	}
}

// Response is the oracle's answer decoded once. Exactly one of Object, List or Raw
// is meaningful, selected by Kind.
type Response struct {
	Kind   Kind
	Object map[string]json.RawMessage
	List   []json.RawMessage
	Raw    string
}

// ParseResponse decodes raw model output, tolerating markdown code fences and
// prose around the JSON payload.
func ParseResponse(raw string) Response {
	body := stripFences(raw)
	if obj, ok := decodeObject(body); ok {
		return Response{Kind: KindObject, Object: obj}
	}
	if list, ok := decodeList(body); ok {
		return Response{Kind: KindList, List: list}
	}
	// last resort: the outermost {...} span
	if i, j := strings.IndexByte(body, '{'), strings.LastIndexByte(body, '}'); i >= 0 && j > i {
		if obj, ok := decodeObject(body[i : j+1]); ok {
			return Response{Kind: KindObject, Object: obj}
		}
	}
	return Response{Kind: KindRaw, Raw: strings.TrimSpace(raw)}
}

// Block extracts the object stored under key. Accepted shapes:
//
//	{"key": [{...}]}   {"key": {...}}   {...}   [{...}]
//
// The unwrapped shapes are accepted only when every key is a dimension key, so a
// refusal such as {"error": "..."} is malformed rather than a block.
func (r Response) Block(key string) (map[string]json.RawMessage, error) {
	switch r.Kind {
	case KindObject:
		inner, ok := r.Object[key]
		if !ok {
			return unwrapped(r.Object, key)
		}
		return blockFromRaw(inner, key)
	case KindList:
		obj, err := firstObject(r.List, key)
		if err != nil {
			return nil, err
		}
		return unwrapped(obj, key)
	case KindRaw:
		return nil, fmt.Errorf("%w: expected json under %q, got text (%d bytes)", ErrMalformed, key, len(r.Raw))
	default:
		return nil, fmt.Errorf("%w: unknown response kind %d", ErrMalformed, r.Kind)
	}
}

func unwrapped(obj map[string]json.RawMessage, key string) (map[string]json.RawMessage, error) {
	if len(obj) == 0 {
		return nil, fmt.Errorf("%w: missing %q", ErrMalformed, key)
	}
	for k := range obj {
		if !entity.IsDimensionKey(k) {
			return nil, fmt.Errorf("%w: missing %q and %q is not a dimension key", ErrMalformed, key, k)
		}
	}
	return obj, nil
}

func blockFromRaw(raw json.RawMessage, key string) (map[string]json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		// string-encoded nested json
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrMalformed, key, err)
		}
		return ParseResponse(s).Block(key)
	}
	if obj, ok := decodeObject(string(raw)); ok {
		return obj, nil
	}
	if list, ok := decodeList(string(raw)); ok {
		return firstObject(list, key)
	}
	return nil, fmt.Errorf("%w: %q is neither object nor list", ErrMalformed, key)
}

func firstObject(list []json.RawMessage, key string) (map[string]json.RawMessage, error) {
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: %q is an empty list", ErrMalformed, key)
	}
	// models sometimes split one record into several single-key objects
	merged := make(map[string]json.RawMessage)
	for _, item := range list {
		obj, ok := decodeObject(string(item))
		if !ok {
			return nil, fmt.Errorf("%w: %q list holds a non-object", ErrMalformed, key)
		}
		for k, v := range obj {
			merged[k] = v
		}
	}
	return merged, nil
}

func decodeObject(s string) (map[string]json.RawMessage, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func decodeList(s string) ([]json.RawMessage, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") {
		return nil, false
	}
	var list []json.RawMessage
	if err := json.Unmarshal([]byte(s), &list); err != nil {
		return nil, false
	}
	return list, true
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// drop the language hint line ("json")
		s = s[nl+1:]
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}
