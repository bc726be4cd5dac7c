package benchmark

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/regbench/constants"
	"github.com/joseph-ayodele/regbench/internal/common"
	"github.com/joseph-ayodele/regbench/internal/entity"
)

func newTestDefiner(o *scriptedOracle, store *memStore) *Definer {
	pool := testPool()
	return NewDefiner(store,
		NewFrameworkBuilder(o, "", quietLogger()),
		NewInitialMapper(o, pool, "", quietLogger()),
		NewClosureLoop(o, pool, quietLogger(), WithCheckpointer(store)),
		quietLogger(),
	)
}

func feesDocs() []entity.SourceDocument {
	return []entity.SourceDocument{
		doc("doc_a", unit("a1", "covers fees"), unit("a2", "not applicable")),
		doc("doc_b", unit("b1", "covers fees")),
	}
}

func TestDefiner_EndToEnd(t *testing.T) {
	o := newScriptedOracle()
	o.framework = `{"benchmarking_dimensions": [{"dimension_1": "Fees: fee-related provisions"}]}`
	o.relevance["a1"] = mappingAnswer(`"dimension_1": 1`)
	// b1 fails during initial mapping and is picked up by the closure loop
	o.unmapped["b1"] = mappingAnswer(`"dimension_1": ""`)
	store := newMemStore()

	res, err := newTestDefiner(o, store).Define(context.Background(), feesDocs(), DefineOptions{})
	require.NoError(t, err)

	assert.False(t, res.Resumed)
	assert.Equal(t, constants.OutcomeConverged, res.Closure.Outcome)
	assert.Equal(t, []entity.UnitRef{{Tag: "doc_b", ID: "b1"}}, res.Initial.Failed)
	assert.Equal(t, []string{"dimension_1"}, store.framework.Keys())
	assert.Equal(t, []entity.UnitID{"a1"}, store.mapping.IDs("dimension_1", "doc_a"))
	assert.Equal(t, []entity.UnitID{"b1"}, store.mapping.IDs("dimension_1", "doc_b"))
	assert.False(t, store.mapping.Has("dimension_1", "doc_a", "a2"), "filtered unit is never mapped")

	saved, ok := store.docs["doc_a"]
	require.True(t, ok, "filtered document written back")
	assert.Len(t, saved.Units, 1)
	_, touched := store.docs["doc_b"]
	assert.False(t, touched, "unchanged document not rewritten")

	assert.Equal(t, "document:doc_a", store.ops[0])
	assert.Equal(t, []string{"reset", "framework", "mapping"}, store.ops[1:4], "framework stored before the initial mapping")
	assert.Equal(t, 2, o.callCount(constants.StageRelevance))
}

func TestDefiner_ResumeSkipsFrameworkAndInitialMapping(t *testing.T) {
	store := newMemStore()
	fw := feesOnly()
	m := entity.NewMapping()
	m.Add("dimension_1", "doc_a", "a1")
	require.NoError(t, store.SaveFramework(context.Background(), fw))
	require.NoError(t, store.SaveMapping(context.Background(), fw, m))

	o := newScriptedOracle()
	o.unmapped["b1"] = mappingAnswer(`"dimension_1": ""`)

	res, err := newTestDefiner(o, store).Define(context.Background(), feesDocs(), DefineOptions{Resume: true})
	require.NoError(t, err)

	assert.True(t, res.Resumed)
	assert.Zero(t, o.callCount(constants.StageFramework))
	assert.Zero(t, o.callCount(constants.StageRelevance))
	assert.Equal(t, 1, o.callCount(constants.StageUnmapped))
	assert.Equal(t, constants.OutcomeConverged, res.Closure.Outcome)
	assert.Equal(t, []entity.UnitID{"b1"}, store.mapping.IDs("dimension_1", "doc_b"))
}

func TestDefiner_ResumeWithoutStoredStateStartsFresh(t *testing.T) {
	o := newScriptedOracle()
	o.framework = `{"benchmarking_dimensions": [{"dimension_1": "Fees: fee-related provisions"}]}`
	o.relevance["a1"] = mappingAnswer(`"dimension_1": 1`)
	o.relevance["b1"] = mappingAnswer(`"dimension_1": 1`)

	res, err := newTestDefiner(o, newMemStore()).Define(context.Background(), feesDocs(), DefineOptions{Resume: true})
	require.NoError(t, err)
	assert.False(t, res.Resumed)
	assert.Equal(t, 1, o.callCount(constants.StageFramework))
	assert.Zero(t, o.callCount(constants.StageUnmapped))
}

func TestDefiner_ResumeRejectsInconsistentState(t *testing.T) {
	store := newMemStore()
	store.framework = feesOnly()
	store.mapping = entity.NewMapping()
	store.mapping.Add("dimension_7", "doc_a", "a1")

	_, err := newTestDefiner(newScriptedOracle(), store).Define(context.Background(), feesDocs(), DefineOptions{Resume: true})
	assert.ErrorIs(t, err, entity.ErrInconsistent)
}

func TestDefiner_NoDocuments(t *testing.T) {
	_, err := newTestDefiner(newScriptedOracle(), newMemStore()).Define(context.Background(), nil, DefineOptions{})
	assert.ErrorIs(t, err, ErrNoDocuments)
}

func TestDefiner_FrameworkOracleFailure(t *testing.T) {
	store := newMemStore()
	_, err := newTestDefiner(newScriptedOracle(), store).Define(context.Background(), feesDocs(), DefineOptions{})
	assert.ErrorIs(t, err, common.ErrOracle)
	assert.Nil(t, store.framework)
}
