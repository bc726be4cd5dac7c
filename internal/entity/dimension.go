package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/regbench/constants"
)

// Dimension represents a named axis of comparison.
type Dimension struct {
	Key         string `json:"key"`
	Label       string `json:"dimension_label"`
	Description string `json:"dimension_description"`
}

// ParseDimension splits "Label: description" on the first colon.
func ParseDimension(key, text string) Dimension {
	text = strings.TrimSpace(text)
	label, desc, found := strings.Cut(text, ":")
	if !found {
		return Dimension{Key: key, Label: text}
	}
	return Dimension{Key: key, Label: strings.TrimSpace(label), Description: strings.TrimSpace(desc)}
}

// Text renders the "label: description" wire form.
func (d Dimension) Text() string {
	switch {
	case d.Description == "":
		return d.Label
	case d.Label == "":
		return d.Description
	default:
		return d.Label + ": " + d.Description
	}
}

// Framework is the ordered dimension registry of record. Keys are never removed.
type Framework struct {
	order []string
	dims  map[string]Dimension
}

func NewFramework(dims ...Dimension) *Framework {
	f := &Framework{dims: make(map[string]Dimension, len(dims))}
	for _, d := range dims {
		f.Add(d)
	}
	return f
}

// Len returns the number of dimensions.
func (f *Framework) Len() int { return len(f.order) }

// Keys returns dimension keys in registry order.
func (f *Framework) Keys() []string {
	return append([]string(nil), f.order...)
}

// Dimensions returns a copy of all dimensions in registry order.
func (f *Framework) Dimensions() []Dimension {
	out := make([]Dimension, 0, len(f.order))
	for _, k := range f.order {
		out = append(out, f.dims[k])
	}
	return out
}

func (f *Framework) Has(key string) bool {
	_, ok := f.dims[key]
	return ok
}

func (f *Framework) Get(key string) (Dimension, bool) {
	d, ok := f.dims[key]
	return d, ok
}

// Add registers d if its key is new and reports whether it was created.
// Existing dimensions are left untouched; use Update to refine them.
func (f *Framework) Add(d Dimension) bool {
	if d.Key == "" || f.Has(d.Key) {
		return false
	}
	if f.dims == nil {
		f.dims = make(map[string]Dimension)
	}
	f.dims[d.Key] = d
	f.order = append(f.order, d.Key)
	return true
}

// Update overwrites label and description of an existing dimension when non-empty.
func (f *Framework) Update(key, label, description string) bool {
	d, ok := f.dims[key]
	if !ok {
		return false
	}
	if label = strings.TrimSpace(label); label != "" {
		d.Label = label
	}
	if description = strings.TrimSpace(description); description != "" {
		d.Description = description
	}
	f.dims[key] = d
	return true
}

// NextKey mints a key numbered beyond every existing "dimension_N" key.
func (f *Framework) NextKey() string {
	highest := 0
	for _, k := range f.order {
		if n, ok := dimensionNumber(k); ok && n > highest {
			highest = n
		}
	}
	return constants.DimensionKeyPrefix + strconv.Itoa(highest+1)
}

// Overview renders one "key: label: description" line per dimension.
func (f *Framework) Overview() string {
	var b strings.Builder
	for i, k := range f.order {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(f.dims[k].Text())
	}
	return b.String()
}

// Clone returns an independent copy, used as a read-only snapshot by workers.
func (f *Framework) Clone() *Framework {
	return NewFramework(f.Dimensions()...)
}

// MarshalJSON writes {"dimension_1": "Label: description", ...} in registry order.
func (f *Framework) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range f.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(f.dims[k].Text())
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the flat key -> "label: description" record.
func (f *Framework) UnmarshalJSON(b []byte) error {
	var flat map[string]string
	if err := json.Unmarshal(b, &flat); err != nil {
		return fmt.Errorf("framework: %w", err)
	}
	*f = *NewFramework(DimensionsFromFlat(flat)...)
	return nil
}

// DimensionsFromFlat parses a flat record, ordering keys naturally (dimension_2 < dimension_10).
func DimensionsFromFlat(flat map[string]string) []Dimension {
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	SortNatural(keys)
	out := make([]Dimension, 0, len(keys))
	for _, k := range keys {
		out = append(out, ParseDimension(k, flat[k]))
	}
	return out
}

// IsDimensionKey reports whether key has the minted form "dimension_<n>".
func IsDimensionKey(key string) bool {
	_, ok := dimensionNumber(key)
	return ok
}

func dimensionNumber(key string) (int, bool) {
	if !strings.HasPrefix(key, constants.DimensionKeyPrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(key, constants.DimensionKeyPrefix))
	if err != nil {
		return 0, false
	}
	return n, true
}

// SortNatural sorts strings so that embedded numbers compare numerically.
func SortNatural(s []string) {
	sort.SliceStable(s, func(i, j int) bool { return naturalLess(s[i], s[j]) })
}

func naturalLess(a, b string) bool {
	for a != "" && b != "" {
		da, db := isDigit(a[0]), isDigit(b[0])
		switch {
		case da && db:
			na, ra := leadingNumber(a)
			nb, rb := leadingNumber(b)
			if len(na) != len(nb) {
				return len(na) < len(nb)
			}
			if na != nb {
				return na < nb
			}
			a, b = ra, rb
		case a[0] != b[0]:
			return a[0] < b[0]
		default:
			a, b = a[1:], b[1:]
		}
	}
	return len(a) < len(b)
}

func leadingNumber(s string) (num, rest string) {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	num = strings.TrimLeft(s[:i], "0")
	return num, s[i:]
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
