package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/regbench/internal/entity"
)

func TestParseResponse_Kinds(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Kind
	}{
		{"object", `{"a": 1}`, KindObject},
		{"list", `[{"a": 1}]`, KindList},
		{"fenced object", "```json\n{\"a\": 1}\n```", KindObject},
		{"prose around object", "Here you go:\n{\"a\": 1}\nThanks", KindObject},
		{"plain text", "Error occurred: rate limited", KindRaw},
		{"empty", "", KindRaw},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseResponse(tt.in).Kind)
		})
	}
}

func TestBlock_Shapes(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"wrapped list", `{"benchmarking_dimensions_mapping": [{"dimension_1": 1}]}`},
		{"wrapped object", `{"benchmarking_dimensions_mapping": {"dimension_1": 1}}`},
		{"flat", `{"dimension_1": 1}`},
		{"bare list", `[{"dimension_1": 1}]`},
		{"string encoded", `{"benchmarking_dimensions_mapping": "{\"dimension_1\": 1}"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			block, err := ParseResponse(tt.in).Block(MappingKey)
			require.NoError(t, err)
			assert.JSONEq(t, `1`, string(block["dimension_1"]))
		})
	}
}

func TestBlock_Errors(t *testing.T) {
	_, err := ParseResponse("no json here").Block(MappingKey)
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = ParseResponse(`{"benchmarking_dimensions_mapping": []}`).Block(MappingKey)
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = ParseResponse(`{"benchmarking_dimensions_mapping": 5}`).Block(MappingKey)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestBlock_UnwrappedNeedsDimensionKeys(t *testing.T) {
	for _, in := range []string{
		`{"error": "unable to classify this unit"}`,
		`{"note": "I could not derive dimensions"}`,
		`{"dimension_1": 1, "reasoning": "close enough"}`,
		`[{"error": "rate limited"}]`,
		`{}`,
	} {
		_, err := ParseResponse(in).Block(MappingKey)
		assert.ErrorIs(t, err, ErrMalformed, "input %s", in)
	}
}

func TestDecode_RefusalObjectsAreMalformed(t *testing.T) {
	as, err := DecodeAssignments(`{"error": "unable to classify this unit"}`)
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Empty(t, as)

	dims, err := DecodeFramework(`{"note": "I could not derive dimensions"}`)
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Empty(t, dims)

	// junk keys inside the wrapper are rejected too
	_, err = DecodeFramework(`{"benchmarking_dimensions": [{"dimension_1": "Fees", "note": "partial"}]}`)
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = DecodeAssignments(`{"benchmarking_dimensions_mapping": [{"error": "no fit"}]}`)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeFramework(t *testing.T) {
	dims, err := DecodeFramework(`{"benchmarking_dimensions": [{"dimension_10": "Audit: audit rules", "dimension_2": "Fees: fee-related provisions"}]}`)
	require.NoError(t, err)
	require.Len(t, dims, 2)
	assert.Equal(t, entity.Dimension{Key: "dimension_2", Label: "Fees", Description: "fee-related provisions"}, dims[0])
	assert.Equal(t, "dimension_10", dims[1].Key)
}

func TestDecodeFramework_Failures(t *testing.T) {
	for _, in := range []string{"", "not json", `{"benchmarking_dimensions": [{}]}`, `{}`} {
		_, err := DecodeFramework(in)
		assert.ErrorIs(t, err, ErrMalformed, "input %q", in)
	}
}

func TestDecodeRelevance_CoercesFlags(t *testing.T) {
	rel, dropped, err := DecodeRelevance(`{"benchmarking_dimensions_mapping": [{"dimension_1": 1, "dimension_2": "0", "dimension_3": true, "dimension_4": "maybe"}]}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"dimension_1", "dimension_3"}, rel)
	assert.Equal(t, []string{"dimension_4"}, dropped)
}

func TestDecodeAssignments(t *testing.T) {
	as, err := DecodeAssignments(`{"benchmarking_dimensions_mapping": [{"dimension_1": ""}, {"dimension_2": "Disclosure: disclosure-related provisions"}]}`)
	require.NoError(t, err)
	require.Len(t, as, 2)
	assert.Equal(t, Assignment{Key: "dimension_1"}, as[0])
	assert.False(t, as[0].HasText())
	assert.Equal(t, Assignment{Key: "dimension_2", Label: "Disclosure", Description: "disclosure-related provisions"}, as[1])

	_, err = DecodeAssignments(`{"benchmarking_dimensions_mapping": [{}]}`)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeNonCore(t *testing.T) {
	keys, err := DecodeNonCore(`{"non_core_dimensions": ["dimension_3", "dimension_7"]}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"dimension_3", "dimension_7"}, keys)

	keys, err = DecodeNonCore(`["dimension_1"]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"dimension_1"}, keys)

	_, err = DecodeNonCore(`{"something_else": []}`)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeComparative(t *testing.T) {
	p, err := DecodeComparative(`{"benchmarking_analysis": {"country_provisions": {"UK": "caps fees", "SG": "discloses fees"}, "comparative_analysis": " UK is stricter. "}}`)
	require.NoError(t, err)
	assert.Equal(t, "UK is stricter.", p.Comparative)
	assert.Equal(t, "caps fees", p.CountryProvisions["UK"])

	_, err = DecodeComparative(`{"benchmarking_analysis": {"comparative_analysis": "x"}}`)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestBuildUnmappedPrompt_NamesNextKey(t *testing.T) {
	fw := entity.NewFramework(entity.Dimension{Key: "dimension_1", Label: "Fees", Description: "fee rules"})
	p := BuildUnmappedPrompt(fw, "regulation_2", entity.LogicalUnit{ID: "b1", Summary: "covers fees"}, fw.NextKey())
	assert.Contains(t, p, "dimension_1: Fees: fee rules")
	assert.Contains(t, p, "dimension_2")
	assert.Contains(t, p, "Logical Unit ID: b1")
	assert.Contains(t, p, "regulation_2")
}
