package pipeline

import (
	"log/slog"

	"github.com/joseph-ayodele/regbench/constants"
	"github.com/joseph-ayodele/regbench/internal/analysis"
	"github.com/joseph-ayodele/regbench/internal/async"
	"github.com/joseph-ayodele/regbench/internal/benchmark"
	"github.com/joseph-ayodele/regbench/internal/common"
	"github.com/joseph-ayodele/regbench/internal/export"
	"github.com/joseph-ayodele/regbench/internal/ingest"
	"github.com/joseph-ayodele/regbench/internal/llm"
	"github.com/joseph-ayodele/regbench/internal/metrics"
	"github.com/joseph-ayodele/regbench/internal/repository"
	"github.com/joseph-ayodele/regbench/internal/storage"
)

// Build wires every stage from cfg. m may be nil; when set, oracle calls and
// closure rounds are recorded on it.
func Build(cfg *common.Config, repo repository.Repository, oracle llm.Oracle, output storage.Storage, m *metrics.Metrics, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if m != nil {
		oracle = m.InstrumentOracle(oracle)
	}
	pool := async.NewPool(
		async.WithWorkers(cfg.Benchmark.Workers),
		async.WithTaskTimeout(cfg.Benchmark.TaskTimeout),
		async.WithLogger(logger),
	)

	loopOpts := []benchmark.ClosureOption{
		benchmark.WithModel(cfg.LLM.ModelFor(constants.StageUnmapped)),
		benchmark.WithMaxIterations(cfg.Benchmark.MaxIterations),
		benchmark.WithMaxAttemptsPerUnit(cfg.Benchmark.MaxAttemptsPerUnit),
		benchmark.WithCheckpointer(repo),
	}
	if m != nil {
		loopOpts = append(loopOpts, benchmark.WithObserver(m.ObserveIteration))
	}
	definer := benchmark.NewDefiner(repo,
		benchmark.NewFrameworkBuilder(oracle, cfg.LLM.ModelFor(constants.StageFramework), logger),
		benchmark.NewInitialMapper(oracle, pool, cfg.LLM.ModelFor(constants.StageRelevance), logger),
		benchmark.NewClosureLoop(oracle, pool, logger, loopOpts...),
		logger,
	)
	analyzer := analysis.NewAnalyzer(oracle, pool, cfg.LLM.ModelFor(constants.StageComparative), logger)

	return NewProcessor(logger,
		ingest.NewFSImporter(repo, logger),
		NewDefineStage(repo, definer, m, logger),
		NewAnalyzeStage(repo, analyzer, logger),
		export.NewService(repo, logger),
		output,
	)
}
