package entity

// State is the closure loop's accumulator: the dimension registry and the relevance relation.
type State struct {
	Framework *Framework
	Mapping   *Mapping
}

func NewState(fw *Framework, m *Mapping) *State {
	if fw == nil {
		fw = NewFramework()
	}
	if m == nil {
		m = NewMapping()
	}
	return &State{Framework: fw, Mapping: m}
}

// Unmapped lists units of docs not mapped to any dimension, in document then unit order.
// It is derived from the current mapping on every call.
func (s *State) Unmapped(docs []SourceDocument) []UnitRef {
	var out []UnitRef
	for i := range docs {
		mapped := s.Mapping.MappedIDs(docs[i].Tag)
		for _, u := range docs[i].Units {
			if _, ok := mapped[u.ID]; !ok {
				out = append(out, UnitRef{Tag: docs[i].Tag, ID: u.ID})
			}
		}
	}
	return out
}

// Clone deep-copies both halves.
func (s *State) Clone() *State {
	return &State{Framework: s.Framework.Clone(), Mapping: s.Mapping.Clone()}
}

// Tags returns the tags of docs in order.
func Tags(docs []SourceDocument) []string {
	out := make([]string, len(docs))
	for i := range docs {
		out[i] = docs[i].Tag
	}
	return out
}

// CountUnits returns the number of units across docs.
func CountUnits(docs []SourceDocument) int {
	n := 0
	for i := range docs {
		n += len(docs[i].Units)
	}
	return n
}
