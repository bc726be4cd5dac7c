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

func TestFrameworkBuilder_Build(t *testing.T) {
	o := newScriptedOracle()
	o.framework = `{"benchmarking_dimensions": [{"dimension_1": "Fees: fee-related provisions", "dimension_2": "Disclosure: what must be disclosed"}]}`
	b := NewFrameworkBuilder(o, "o1", quietLogger())

	fw, err := b.Build(context.Background(), []entity.SourceDocument{doc("doc_a", unit("a1", "covers fees"))})
	require.NoError(t, err)
	assert.Equal(t, []string{"dimension_1", "dimension_2"}, fw.Keys())
	d, _ := fw.Get("dimension_1")
	assert.Equal(t, "Fees", d.Label)
	assert.Equal(t, 1, o.callCount(constants.StageFramework))
}

func TestFrameworkBuilder_NoDocuments(t *testing.T) {
	b := NewFrameworkBuilder(newScriptedOracle(), "", quietLogger())
	_, err := b.Build(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoDocuments)
}

func TestFrameworkBuilder_NoUnitsShortCircuits(t *testing.T) {
	o := newScriptedOracle()
	b := NewFrameworkBuilder(o, "", quietLogger())
	fw, err := b.Build(context.Background(), []entity.SourceDocument{doc("doc_a"), doc("doc_b")})
	require.NoError(t, err)
	assert.Zero(t, fw.Len())
	assert.Zero(t, o.callCount(constants.StageFramework))
}

func TestFrameworkBuilder_Unparseable(t *testing.T) {
	for _, answer := range []string{"I cannot help with that", `{"benchmarking_dimensions": []}`, `{}`} {
		o := newScriptedOracle()
		o.framework = answer
		_, err := NewFrameworkBuilder(o, "", quietLogger()).Build(context.Background(), []entity.SourceDocument{doc("d", unit("1", "x"))})
		assert.ErrorIs(t, err, ErrFrameworkUnparseable, "answer %q", answer)
	}
}

func TestFrameworkBuilder_OracleFailureIsFatal(t *testing.T) {
	_, err := NewFrameworkBuilder(newScriptedOracle(), "", quietLogger()).Build(context.Background(), []entity.SourceDocument{doc("d", unit("1", "x"))})
	assert.ErrorIs(t, err, common.ErrOracle)
	assert.ErrorIs(t, err, errOracleDown)
}
