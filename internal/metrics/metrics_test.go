package metrics

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/regbench/constants"
	"github.com/joseph-ayodele/regbench/internal/benchmark"
	"github.com/joseph-ayodele/regbench/internal/llm"
)

func TestInstrumentOracle(t *testing.T) {
	m := New()
	calls := 0
	o := m.InstrumentOracle(llm.OracleFunc(func(context.Context, llm.Request) (string, error) {
		calls++
		if calls == 2 {
			return "", errors.New("boom")
		}
		return "{}", nil
	}))

	ctx := context.Background()
	_, _ = o.Ask(ctx, llm.Request{Purpose: constants.StageRelevance})
	_, err := o.Ask(ctx, llm.Request{Purpose: constants.StageRelevance})
	assert.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OracleCalls.WithLabelValues("relevance", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OracleCalls.WithLabelValues("relevance", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.OracleDuration))
}

func TestObserveClosure(t *testing.T) {
	m := New()
	m.ObserveIteration(benchmark.IterationStats{
		Iteration: 1,
		Unmapped:  4,
		Merge:     benchmark.MergeReport{Assigned: 3, Created: []string{"dimension_5"}},
	})
	m.ObserveIteration(benchmark.IterationStats{Iteration: 2, Unmapped: 1})
	m.ObserveClosure(benchmark.Result{Outcome: constants.OutcomeStalled})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Iterations))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Assigned))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DimensionsCreated))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Unmapped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ClosureOutcomes.WithLabelValues("STALLED")))
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.Iterations.Inc()
	path := filepath.Join(t.TempDir(), "regbench.prom")
	require.NoError(t, m.WriteTextfile(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "regbench_closure_iterations_total 1")
}
