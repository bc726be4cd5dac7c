package analysis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/regbench/constants"
	"github.com/joseph-ayodele/regbench/internal/async"
	"github.com/joseph-ayodele/regbench/internal/entity"
	"github.com/joseph-ayodele/regbench/internal/llm"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixture() (*entity.Framework, *entity.Mapping, []entity.SourceDocument) {
	fw := entity.NewFramework(
		entity.Dimension{Key: "dimension_1", Label: "Fees", Description: "fee-related provisions"},
		entity.Dimension{Key: "dimension_2", Label: "Definitions", Description: "defined terms"},
		entity.Dimension{Key: "dimension_3", Label: "Disclosure", Description: "disclosure duties"},
		entity.Dimension{Key: "dimension_4", Label: "Unused"},
	)
	m := entity.NewMapping()
	for _, k := range fw.Keys() {
		m.Ensure(k, "regulation_1", "regulation_2")
	}
	m.Add("dimension_1", "regulation_1", "1")
	m.Add("dimension_1", "regulation_2", "7")
	m.Add("dimension_2", "regulation_1", "2")
	m.Add("dimension_3", "regulation_2", "8")

	docs := []entity.SourceDocument{
		{Tag: "regulation_1", Overview: entity.Overview{Country: "UK", Authority: "FCA"}, Units: []entity.LogicalUnit{
			{ID: "1", Heading: "Charges", Content: []string{"Firms must cap fees."}},
			{ID: "2", Heading: "Interpretation", Content: []string{"In this notice..."}},
		}},
		{Tag: "regulation_2", Overview: entity.Overview{Country: "Singapore", Authority: "MAS"}, Units: []entity.LogicalUnit{
			{ID: "7", Heading: "Fees", Content: []string{"Fees must be disclosed."}},
			{ID: "8", Heading: "Disclosure", Content: []string{"Disclose conflicts."}},
		}},
	}
	return fw, m, docs
}

func TestAnalyzer_Run(t *testing.T) {
	fw, m, docs := fixture()
	var prompts []string
	var comparative atomic.Int32
	oracle := llm.OracleFunc(func(_ context.Context, req llm.Request) (string, error) {
		switch req.Purpose {
		case constants.StageNonCore:
			assert.NotContains(t, req.Prompt, "dimension_4", "dimensions without units are not offered")
			return `{"non_core_dimensions": ["dimension_2", "dimension_99"]}`, nil
		case constants.StageComparative:
			comparative.Add(1)
			if strings.Contains(req.Prompt, "Dimension: Disclosure") {
				return "", errors.New("rate limited")
			}
			prompts = append(prompts, req.Prompt)
			return `{"benchmarking_analysis": {"country_provisions": {"mas": "disclose fees", "UK": "cap fees"}, "comparative_analysis": " UK caps, Singapore discloses. "}}`, nil
		}
		return "", errors.New("unexpected stage")
	})

	a := NewAnalyzer(oracle, async.NewPool(async.WithWorkers(1), async.WithLogger(quietLogger())), "o1", quietLogger())
	out, err := a.Run(context.Background(), fw, m, docs)
	require.NoError(t, err)

	assert.Equal(t, int32(2), comparative.Load(), "non-core dimension skipped")
	assert.Equal(t, []string{"FCA", "MAS"}, out.Columns)
	assert.Equal(t, []string{"dimension_2"}, out.NonCore)
	assert.Equal(t, []string{"dimension_3"}, out.Failed)
	require.Len(t, out.Dimensions, 1)
	d := out.Dimensions[0]
	assert.Equal(t, "dimension_1", d.Key)
	assert.Equal(t, "Fees", d.Name)
	assert.Equal(t, map[string]string{"FCA": "cap fees", "MAS": "disclose fees"}, d.CountryProvisions)
	assert.Equal(t, "UK caps, Singapore discloses.", d.Comparative)

	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "Firms must cap fees.")
	assert.Contains(t, prompts[0], "Fees must be disclosed.")
	assert.Contains(t, prompts[0], "--- FCA ---")
	assert.NotContains(t, prompts[0], "Disclose conflicts.")
}

func TestAnalyzer_NonCoreFailureAnalyzesEverything(t *testing.T) {
	fw, m, docs := fixture()
	var comparative atomic.Int32
	oracle := llm.OracleFunc(func(_ context.Context, req llm.Request) (string, error) {
		if req.Purpose == constants.StageNonCore {
			return "not json at all", nil
		}
		comparative.Add(1)
		return `{"benchmarking_analysis": {"country_provisions": {}, "comparative_analysis": "n/a"}}`, nil
	})
	out, err := NewAnalyzer(oracle, nil, "", quietLogger()).Run(context.Background(), fw, m, docs)
	require.NoError(t, err)
	assert.Equal(t, int32(3), comparative.Load())
	assert.Empty(t, out.NonCore)
	assert.Len(t, out.Dimensions, 3)
	assert.Equal(t, []string{"dimension_1", "dimension_2", "dimension_3"}, []string{out.Dimensions[0].Key, out.Dimensions[1].Key, out.Dimensions[2].Key})
}

func TestAnalyzer_NothingMapped(t *testing.T) {
	fw, _, docs := fixture()
	_, err := NewAnalyzer(llm.OracleFunc(func(context.Context, llm.Request) (string, error) {
		t.Fatal("oracle must not be called")
		return "", nil
	}), nil, "", quietLogger()).Run(context.Background(), fw, entity.NewMapping(), docs)
	assert.ErrorIs(t, err, ErrNothingToAnalyze)
}

func TestColumns_DisambiguatesDuplicateNames(t *testing.T) {
	docs := []entity.SourceDocument{
		{Tag: "regulation_1", Overview: entity.Overview{Authority: "FCA"}},
		{Tag: "regulation_2", Overview: entity.Overview{Authority: "FCA"}},
		{Tag: "regulation_3"},
	}
	cols := columns(docs)
	assert.Equal(t, "FCA (regulation_1)", cols[0].name)
	assert.Equal(t, "FCA (regulation_2)", cols[1].name)
	assert.Equal(t, "regulation_3", cols[2].name)
}

func TestAlign_FillsUnmatchedKeysInOrder(t *testing.T) {
	_, _, docs := fixture()
	cols := columns(docs)
	got := align(cols, map[string]string{"Jurisdiction B": "b", "Jurisdiction A": "a"}, []string{"Jurisdiction A", "Jurisdiction B"})
	assert.Equal(t, map[string]string{"FCA": "a", "MAS": "b"}, got)
}

func TestAlign_LeftoversFollowNaturalKeyOrder(t *testing.T) {
	_, _, docs := fixture()
	got := map[string]string{"Jurisdiction 10": "ten", "Jurisdiction 2": "two"}
	keys := []string{"Jurisdiction 10", "Jurisdiction 2"}
	entity.SortNatural(keys)
	assert.Equal(t, map[string]string{"FCA": "two", "MAS": "ten"}, align(columns(docs), got, keys))
}
