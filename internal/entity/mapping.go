package entity

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/joseph-ayodele/regbench/constants"
)

// ErrInconsistent is returned when the mapping references a dimension the framework lacks.
var ErrInconsistent = errors.New("mapping references dimensions missing from framework")

type idSet map[UnitID]struct{}

// Mapping is the many-to-many relevance relation: dimension -> document tag -> unit ids.
// It only grows: there is no removal API.
type Mapping struct {
	entries map[string]map[string]idSet
}

func NewMapping() *Mapping {
	return &Mapping{entries: make(map[string]map[string]idSet)}
}

// Ensure registers dim with empty per-document lists for tags.
func (m *Mapping) Ensure(dim string, tags ...string) {
	if m.entries == nil {
		m.entries = make(map[string]map[string]idSet)
	}
	perDoc, ok := m.entries[dim]
	if !ok {
		perDoc = make(map[string]idSet)
		m.entries[dim] = perDoc
	}
	for _, t := range tags {
		if _, ok := perDoc[t]; !ok {
			perDoc[t] = make(idSet)
		}
	}
}

// Add inserts id under (dim, tag) and reports whether it was not already present.
func (m *Mapping) Add(dim, tag string, id UnitID) bool {
	m.Ensure(dim, tag)
	set := m.entries[dim][tag]
	if _, ok := set[id]; ok {
		return false
	}
	set[id] = struct{}{}
	return true
}

// Merge unions other into m and returns the number of newly inserted ids.
func (m *Mapping) Merge(other *Mapping) int {
	added := 0
	for dim, perDoc := range other.entries {
		m.Ensure(dim)
		for tag, ids := range perDoc {
			m.Ensure(dim, tag)
			for id := range ids {
				if m.Add(dim, tag, id) {
					added++
				}
			}
		}
	}
	return added
}

// Has reports whether id is mapped under (dim, tag).
func (m *Mapping) Has(dim, tag string, id UnitID) bool {
	_, ok := m.entries[dim][tag][id]
	return ok
}

// Dimensions returns mapped dimension keys in natural order.
func (m *Mapping) Dimensions() []string {
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	SortNatural(keys)
	return keys
}

// Tags returns the document tags that appear under dim, in natural order.
func (m *Mapping) Tags(dim string) []string {
	perDoc := m.entries[dim]
	tags := make([]string, 0, len(perDoc))
	for t := range perDoc {
		tags = append(tags, t)
	}
	SortNatural(tags)
	return tags
}

// IDs returns the ids mapped under (dim, tag) in natural order.
func (m *Mapping) IDs(dim, tag string) []UnitID {
	set := m.entries[dim][tag]
	raw := make([]string, 0, len(set))
	for id := range set {
		raw = append(raw, string(id))
	}
	SortNatural(raw)
	out := make([]UnitID, len(raw))
	for i, s := range raw {
		out[i] = UnitID(s)
	}
	return out
}

// MappedIDs returns every id mapped to any dimension for tag.
func (m *Mapping) MappedIDs(tag string) map[UnitID]struct{} {
	out := make(map[UnitID]struct{})
	for _, perDoc := range m.entries {
		for id := range perDoc[tag] {
			out[id] = struct{}{}
		}
	}
	return out
}

// Size returns the number of (dimension, tag, id) triples.
func (m *Mapping) Size() int {
	n := 0
	for _, perDoc := range m.entries {
		for _, ids := range perDoc {
			n += len(ids)
		}
	}
	return n
}

// Clone returns a deep copy.
func (m *Mapping) Clone() *Mapping {
	c := NewMapping()
	c.Merge(m)
	return c
}

// Contains reports whether every triple of other is present in m.
func (m *Mapping) Contains(other *Mapping) bool {
	for dim, perDoc := range other.entries {
		for tag, ids := range perDoc {
			for id := range ids {
				if !m.Has(dim, tag, id) {
					return false
				}
			}
		}
	}
	return true
}

// CheckConsistency verifies every mapped dimension exists in fw.
func CheckConsistency(fw *Framework, m *Mapping) error {
	var missing []string
	for _, dim := range m.Dimensions() {
		if !fw.Has(dim) {
			missing = append(missing, dim)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrInconsistent, strings.Join(missing, ", "))
	}
	return nil
}

// MappingEntry is the artifact form of one dimension's row.
type MappingEntry struct {
	Label       string
	Description string
	Units       map[string][]UnitID // tag -> ids
}

func (e MappingEntry) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	write := func(k string, v any) error {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return err
		}
		vb, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
		return nil
	}
	if err := write("dimension_label", e.Label); err != nil {
		return nil, err
	}
	if err := write("dimension_description", e.Description); err != nil {
		return nil, err
	}
	tags := make([]string, 0, len(e.Units))
	for t := range e.Units {
		tags = append(tags, t)
	}
	SortNatural(tags)
	for _, t := range tags {
		ids := e.Units[t]
		if ids == nil {
			ids = []UnitID{}
		}
		if err := write(constants.UnitsKey(t), ids); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (e *MappingEntry) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("mapping entry: %w", err)
	}
	out := MappingEntry{Units: make(map[string][]UnitID)}
	for k, v := range raw {
		switch k {
		case "dimension_label":
			if err := json.Unmarshal(v, &out.Label); err != nil {
				return fmt.Errorf("mapping entry label: %w", err)
			}
		case "dimension_description":
			if err := json.Unmarshal(v, &out.Description); err != nil {
				return fmt.Errorf("mapping entry description: %w", err)
			}
		default:
			tag, ok := constants.TagFromUnitsKey(k)
			if !ok {
				continue
			}
			var ids []UnitID
			if err := json.Unmarshal(v, &ids); err != nil {
				return fmt.Errorf("mapping entry %s: %w", k, err)
			}
			out.Units[tag] = ids
		}
	}
	*e = out
	return nil
}

// MappingDocument is the persisted mapping artifact.
type MappingDocument struct {
	Dimensions map[string]MappingEntry `json:"benchmarking_dimensions_mapping"`
}

// NewMappingDocument renders m with labels from fw. tags seeds empty lists so every
// dimension lists every document.
func NewMappingDocument(fw *Framework, m *Mapping, tags []string) MappingDocument {
	doc := MappingDocument{Dimensions: make(map[string]MappingEntry)}
	for _, dim := range m.Dimensions() {
		d, _ := fw.Get(dim)
		entry := MappingEntry{Label: d.Label, Description: d.Description, Units: make(map[string][]UnitID)}
		for _, t := range tags {
			entry.Units[t] = []UnitID{}
		}
		for _, t := range m.Tags(dim) {
			entry.Units[t] = m.IDs(dim, t)
		}
		doc.Dimensions[dim] = entry
	}
	return doc
}

// Mapping rebuilds the in-memory relation from the artifact.
func (d MappingDocument) Mapping() *Mapping {
	m := NewMapping()
	for dim, entry := range d.Dimensions {
		m.Ensure(dim)
		for tag, ids := range entry.Units {
			m.Ensure(dim, tag)
			for _, id := range ids {
				m.Add(dim, tag, id)
			}
		}
	}
	return m
}

// SortUnitIDs sorts ids naturally in place.
func SortUnitIDs(ids []UnitID) {
	sort.SliceStable(ids, func(i, j int) bool { return LessUnitID(ids[i], ids[j]) })
}

// LessUnitID orders ids naturally ("2" < "10").
func LessUnitID(a, b UnitID) bool {
	return naturalLess(string(a), string(b))
}
