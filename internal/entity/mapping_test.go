package entity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapping_SetSemantics(t *testing.T) {
	m := NewMapping()
	assert.True(t, m.Add("dimension_1", "doc_a", "2"))
	assert.False(t, m.Add("dimension_1", "doc_a", "2"))
	m.Add("dimension_1", "doc_a", "10")
	m.Add("dimension_1", "doc_a", "1")

	assert.Equal(t, []UnitID{"1", "2", "10"}, m.IDs("dimension_1", "doc_a"))
	assert.Equal(t, 3, m.Size())
	assert.True(t, m.Has("dimension_1", "doc_a", "10"))
	assert.False(t, m.Has("dimension_1", "doc_b", "10"))
}

func TestMapping_MergeAndContains(t *testing.T) {
	a := NewMapping()
	a.Add("dimension_1", "doc_a", "1")
	b := NewMapping()
	b.Add("dimension_1", "doc_a", "1")
	b.Add("dimension_2", "doc_b", "4")

	assert.Equal(t, 1, a.Merge(b))
	assert.True(t, a.Contains(b))
	assert.True(t, b.Contains(a))
	assert.Equal(t, []string{"dimension_1", "dimension_2"}, a.Dimensions())
	_, ok := a.MappedIDs("doc_b")["4"]
	assert.True(t, ok)
}

func TestCheckConsistency(t *testing.T) {
	fw := NewFramework(Dimension{Key: "dimension_1", Label: "Fees"})
	m := NewMapping()
	m.Ensure("dimension_1", "doc_a")
	assert.NoError(t, CheckConsistency(fw, m))

	m.Add("dimension_3", "doc_a", "1")
	err := CheckConsistency(fw, m)
	assert.ErrorIs(t, err, ErrInconsistent)
	assert.ErrorContains(t, err, "dimension_3")
}

func TestMappingDocument_JSON(t *testing.T) {
	fw := NewFramework(
		Dimension{Key: "dimension_1", Label: "Fees", Description: "fee-related provisions"},
		Dimension{Key: "dimension_2", Label: "Disclosure"},
	)
	m := NewMapping()
	m.Ensure("dimension_1", "doc_a", "doc_b")
	m.Ensure("dimension_2", "doc_a", "doc_b")
	m.Add("dimension_1", "doc_a", "1")
	m.Add("dimension_1", "doc_b", "3")

	out, err := json.Marshal(NewMappingDocument(fw, m, []string{"doc_a", "doc_b"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"benchmarking_dimensions_mapping": {
		"dimension_1": {"dimension_label": "Fees", "dimension_description": "fee-related provisions", "doc_a_logical_units": ["1"], "doc_b_logical_units": ["3"]},
		"dimension_2": {"dimension_label": "Disclosure", "dimension_description": "", "doc_a_logical_units": [], "doc_b_logical_units": []}
	}}`, string(out))

	var back MappingDocument
	require.NoError(t, json.Unmarshal(out, &back))
	got := back.Mapping()
	assert.True(t, got.Contains(m))
	assert.True(t, m.Contains(got))
	assert.Equal(t, []string{"doc_a", "doc_b"}, got.Tags("dimension_2"))
}

func TestState_Unmapped(t *testing.T) {
	docs := []SourceDocument{
		{Tag: "doc_a", Units: []LogicalUnit{{ID: "1"}, {ID: "2"}}},
		{Tag: "doc_b", Units: []LogicalUnit{{ID: "1"}}},
	}
	s := NewState(nil, nil)
	s.Mapping.Add("dimension_1", "doc_a", "1")

	assert.Equal(t, []UnitRef{{Tag: "doc_a", ID: "2"}, {Tag: "doc_b", ID: "1"}}, s.Unmapped(docs))
	assert.Equal(t, []string{"doc_a", "doc_b"}, Tags(docs))
	assert.Equal(t, 3, CountUnits(docs))

	c := s.Clone()
	c.Mapping.Add("dimension_1", "doc_b", "1")
	assert.Len(t, s.Unmapped(docs), 2, "clone does not alias")
}
