package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/goleak"

	"github.com/joseph-ayodele/regbench/constants"
	"github.com/joseph-ayodele/regbench/internal/common"
	"github.com/joseph-ayodele/regbench/internal/export"
	"github.com/joseph-ayodele/regbench/internal/llm"
	"github.com/joseph-ayodele/regbench/internal/metrics"
	"github.com/joseph-ayodele/regbench/internal/repository"
	"github.com/joseph-ayodele/regbench/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var unitID = regexp.MustCompile(`Logical Unit ID: (\S+)`)

func mapping(pairs string) string {
	return `{"benchmarking_dimensions_mapping": [{` + pairs + `}]}`
}

// fakeOracle answers every stage for a two-document corpus: unit 2 only fits a
// dimension the closure loop has to mint.
func fakeOracle() llm.Oracle {
	return llm.OracleFunc(func(_ context.Context, req llm.Request) (string, error) {
		id := ""
		if m := unitID.FindStringSubmatch(req.Prompt); m != nil {
			id = m[1]
		}
		switch req.Purpose {
		case constants.StageFramework:
			return `{"benchmarking_dimensions": [{"dimension_1": "Fees: fee-related provisions"}]}`, nil
		case constants.StageRelevance:
			if id == "2" {
				return mapping(`"dimension_1": 0`), nil
			}
			return mapping(`"dimension_1": 1`), nil
		case constants.StageUnmapped:
			return mapping(`"dimension_2": "Disclosure: disclosure duties"`), nil
		case constants.StageNonCore:
			return `{"non_core_dimensions": []}`, nil
		case constants.StageComparative:
			return `{"benchmarking_analysis": {"country_provisions": {"FCA": "caps fees", "MAS": "No data provided"}, "comparative_analysis": "Only the FCA acts."}}`, nil
		}
		return "", errors.New("unexpected stage")
	})
}

func writeCorpus(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"regulation_1.json": `{"regulation_overview": {"country": "UK", "authority": "FCA"}, "response": [
			{"logical_unit_id": 1, "logical_unit_heading": "Fees", "logical_unit_content": ["Cap fees."], "logical_unit_summary": "fee caps"},
			{"logical_unit_id": 2, "logical_unit_heading": "Disclosure", "logical_unit_content": ["Disclose conflicts."], "logical_unit_summary": "conflicts"},
			{"logical_unit_id": 3, "logical_unit_heading": "Annex", "logical_unit_content": [], "logical_unit_summary": "Not applicable"}
		]}`,
		"regulation_2.json": `{"regulation_overview": {"country": "Singapore", "authority": "MAS"}, "response": [
			{"logical_unit_id": 7, "logical_unit_heading": "Charges", "logical_unit_content": ["Fees must be fair."], "logical_unit_summary": "fees"}
		]}`,
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

type harness struct {
	proc    *Processor
	repo    repository.Repository
	metrics *metrics.Metrics
	outDir  string
}

func newHarness(t *testing.T, oracle llm.Oracle) harness {
	t.Helper()
	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	return newHarnessOver(t, oracle, repository.NewBlob(store, quietLogger()))
}

func newHarnessOver(t *testing.T, oracle llm.Oracle, repo repository.Repository) harness {
	t.Helper()
	outDir := t.TempDir()
	out, err := storage.NewLocal(outDir)
	require.NoError(t, err)

	cfg := common.DefaultConfig()
	cfg.Benchmark.Workers = 2
	m := metrics.New()
	return harness{
		proc:    Build(cfg, repo, oracle, out, m, quietLogger()),
		repo:    repo,
		metrics: m,
		outDir:  outDir,
	}
}

func TestProcessor_Run(t *testing.T) {
	h := newHarness(t, fakeOracle())
	ctx := context.Background()

	sum, err := h.proc.Run(ctx, writeCorpus(t), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, uint32(2), sum.Import.Succeeded)
	assert.Equal(t, constants.OutcomeConverged, sum.Define.Closure.Outcome)
	assert.Equal(t, []string{"dimension_1", "dimension_2"}, sum.Define.Framework.Keys())
	require.NotNil(t, sum.Analysis)
	assert.Len(t, sum.Analysis.Dimensions, 2)
	assert.Equal(t, constants.ReportArtifact, sum.Report)

	m, err := h.repo.LoadMapping(ctx)
	require.NoError(t, err)
	assert.True(t, m.Has("dimension_2", "regulation_1", "2"))
	assert.False(t, m.Has("dimension_1", "regulation_1", "3"), "not-applicable units are filtered")

	stored, err := h.repo.LoadAnalysis(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"FCA", "MAS"}, stored.Columns)

	f, err := excelize.OpenFile(filepath.Join(h.outDir, constants.ReportArtifact))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{export.SheetBenchmarking, export.SheetCoverage, export.SheetUnconverged}, f.GetSheetList())

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ClosureOutcomes.WithLabelValues(string(constants.OutcomeConverged))))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.DimensionsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.OracleCalls.WithLabelValues(string(constants.StageFramework), "ok")))
}

func TestProcessor_RunResumeSkipsImportWhenDirEmpty(t *testing.T) {
	h := newHarness(t, fakeOracle())
	ctx := context.Background()
	_, err := h.proc.Run(ctx, writeCorpus(t), RunOptions{})
	require.NoError(t, err)

	framework := 0
	h2 := h
	h2.proc = Build(common.DefaultConfig(), h.repo, llm.OracleFunc(func(ctx context.Context, req llm.Request) (string, error) {
		if req.Purpose == constants.StageFramework {
			framework++
		}
		return fakeOracle().Ask(ctx, req)
	}), h.proc.Output, nil, quietLogger())

	sum, err := h2.proc.Run(ctx, "", RunOptions{Resume: true})
	require.NoError(t, err)
	assert.True(t, sum.Define.Resumed)
	assert.Zero(t, framework)
	assert.Zero(t, sum.Import.Matched)
}

func TestProcessor_NothingMappedStillReports(t *testing.T) {
	oracle := llm.OracleFunc(func(ctx context.Context, req llm.Request) (string, error) {
		switch req.Purpose {
		case constants.StageRelevance:
			return mapping(`"dimension_1": 0`), nil
		case constants.StageUnmapped:
			return mapping(``), nil
		}
		return fakeOracle().Ask(ctx, req)
	})
	h := newHarness(t, oracle)

	sum, err := h.proc.Run(context.Background(), writeCorpus(t), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, constants.OutcomeStalled, sum.Define.Closure.Outcome)
	assert.Nil(t, sum.Analysis)

	f, err := excelize.OpenFile(filepath.Join(h.outDir, constants.ReportArtifact))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(export.SheetUnconverged)
	require.NoError(t, err)
	assert.Len(t, rows, 4, "header plus three applicable units")
}

func TestProcessor_EverythingNotApplicableOnSQLite(t *testing.T) {
	ctx := context.Background()
	repo, err := repository.OpenSQLite(ctx, filepath.Join(t.TempDir(), "bench.db"), quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "regulation_1.json"), []byte(`{"regulation_overview": {"authority": "FCA"}, "response": [
		{"logical_unit_id": 1, "logical_unit_heading": "Annex", "logical_unit_content": [], "logical_unit_summary": "Not applicable"}
	]}`), 0o644))

	h := newHarnessOver(t, fakeOracle(), repo)
	sum, err := h.proc.Run(ctx, dir, RunOptions{})
	require.NoError(t, err)
	assert.Zero(t, sum.Define.Framework.Len())
	assert.Equal(t, constants.OutcomeConverged, sum.Define.Closure.Outcome)
	assert.Nil(t, sum.Analysis)
	assert.Zero(t, testutil.ToFloat64(h.metrics.OracleCalls.WithLabelValues(string(constants.StageFramework), "ok")))

	f, err := excelize.OpenFile(filepath.Join(h.outDir, constants.ReportArtifact))
	require.NoError(t, err)
	defer f.Close()
	assert.NotContains(t, f.GetSheetList(), export.SheetBenchmarking)
}

func TestProcessor_FreshRunOnSQLiteReplacesMapping(t *testing.T) {
	ctx := context.Background()
	repo, err := repository.OpenSQLite(ctx, filepath.Join(t.TempDir(), "bench.db"), quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	corpus := writeCorpus(t)

	_, err = newHarnessOver(t, fakeOracle(), repo).proc.Run(ctx, corpus, RunOptions{})
	require.NoError(t, err)

	// second run: unit 1 no longer fits dimension_1, so the closure loop has to place it
	second := llm.OracleFunc(func(ctx context.Context, req llm.Request) (string, error) {
		if m := unitID.FindStringSubmatch(req.Prompt); req.Purpose == constants.StageRelevance && m != nil && m[1] == "1" {
			return mapping(`"dimension_1": 0`), nil
		}
		return fakeOracle().Ask(ctx, req)
	})
	sum, err := newHarnessOver(t, second, repo).proc.Run(ctx, "", RunOptions{})
	require.NoError(t, err)

	stored, err := repo.LoadMapping(ctx)
	require.NoError(t, err)
	assert.False(t, stored.Has("dimension_1", "regulation_1", "1"), "first run's assignment is gone")
	assert.True(t, stored.Contains(sum.Define.Mapping))
	assert.True(t, sum.Define.Mapping.Contains(stored))
}

func TestProcessor_ImportEmptyDir(t *testing.T) {
	h := newHarness(t, fakeOracle())
	_, _, err := h.proc.Import(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestProcessor_DefineWithoutDocuments(t *testing.T) {
	h := newHarness(t, fakeOracle())
	_, err := h.proc.Run(context.Background(), "", RunOptions{})
	assert.Error(t, err)
}
