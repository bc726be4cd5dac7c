package benchmark

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/regbench/constants"
	"github.com/joseph-ayodele/regbench/internal/entity"
)

func feesFramework() *entity.Framework {
	return entity.NewFramework(
		entity.Dimension{Key: "dimension_1", Label: "Fees", Description: "fee-related provisions"},
		entity.Dimension{Key: "dimension_2", Label: "Governance", Description: "board oversight"},
	)
}

func TestInitialMapper_Map(t *testing.T) {
	o := newScriptedOracle()
	o.relevance["a1"] = mappingAnswer(`"dimension_1": 1, "dimension_2": 1`)
	o.relevance["a2"] = mappingAnswer(`"dimension_1": 0, "dimension_2": "1", "dimension_9": 1`)
	o.relevance["b1"] = "garbage"
	// b2 has no scripted answer: oracle error

	docs := []entity.SourceDocument{
		doc("doc_a", unit("a1", "fees and board"), unit("a2", "board")),
		doc("doc_b", unit("b1", "x"), unit("b2", "y")),
	}
	m, report, err := NewInitialMapper(o, testPool(), "o3-mini", quietLogger()).Map(context.Background(), feesFramework(), docs)
	require.NoError(t, err)

	assert.Equal(t, []entity.UnitID{"a1"}, m.IDs("dimension_1", "doc_a"))
	assert.Equal(t, []entity.UnitID{"a1", "a2"}, m.IDs("dimension_2", "doc_a"))
	assert.Empty(t, m.IDs("dimension_1", "doc_b"))
	assert.Equal(t, []string{"doc_a", "doc_b"}, m.Tags("dimension_1"), "every document listed per dimension")
	assert.NoError(t, entity.CheckConsistency(feesFramework(), m), "unknown keys are not mapped")

	assert.Equal(t, 4, report.Units)
	assert.Equal(t, 2, report.Mapped)
	assert.ElementsMatch(t, []entity.UnitRef{{Tag: "doc_b", ID: "b1"}, {Tag: "doc_b", ID: "b2"}}, report.Failed)
	assert.Equal(t, []string{"dimension_9"}, report.UnknownKeys)
	assert.Equal(t, 4, o.callCount(constants.StageRelevance))
}

func TestInitialMapper_EmptyFrameworkMakesNoCalls(t *testing.T) {
	o := newScriptedOracle()
	m, report, err := NewInitialMapper(o, testPool(), "", quietLogger()).Map(context.Background(), entity.NewFramework(), []entity.SourceDocument{doc("d", unit("1", "x"))})
	require.NoError(t, err)
	assert.Zero(t, m.Size())
	assert.Equal(t, 1, report.Units)
	assert.Zero(t, o.callCount(constants.StageRelevance))
}

func TestInitialMapper_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := NewInitialMapper(newScriptedOracle(), testPool(), "", quietLogger()).Map(ctx, feesFramework(), []entity.SourceDocument{doc("d", unit("1", "x"))})
	assert.ErrorIs(t, err, context.Canceled)
}
