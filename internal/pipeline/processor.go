package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/regbench/constants"
	"github.com/joseph-ayodele/regbench/internal/analysis"
	"github.com/joseph-ayodele/regbench/internal/benchmark"
	"github.com/joseph-ayodele/regbench/internal/common"
	"github.com/joseph-ayodele/regbench/internal/entity"
	"github.com/joseph-ayodele/regbench/internal/export"
	"github.com/joseph-ayodele/regbench/internal/ingest"
	"github.com/joseph-ayodele/regbench/internal/storage"
)

// Processor coordinates import, definition, analysis and the report.
type Processor struct {
	Logger   *slog.Logger
	Importer ingest.Importer
	Define   *DefineStage
	Analyze  *AnalyzeStage
	Export   *export.Service
	Output   storage.Storage
}

func NewProcessor(logger *slog.Logger, importer ingest.Importer, define *DefineStage, analyze *AnalyzeStage, exporter *export.Service, output storage.Storage) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{Logger: logger, Importer: importer, Define: define, Analyze: analyze, Export: exporter, Output: output}
}

// Summary is what one full run produced.
type Summary struct {
	Import   ingest.DirStats
	Define   benchmark.DefineResult
	Analysis *entity.BenchmarkAnalysis // nil when nothing was mapped
	Report   string                    // output key of the workbook
}

// Import loads every segmented document under dir into the store. Per-file
// failures are reported in the stats; a directory with no documents is an error.
func (p *Processor) Import(ctx context.Context, dir string) ([]ingest.ImportResult, ingest.DirStats, error) {
	results, stats, err := p.Importer.ImportDirectory(ctx, dir, true)
	if err != nil {
		return results, stats, err
	}
	if stats.Matched == 0 {
		return results, stats, common.NewAppError(common.CodeInput, "no documents found under "+dir, common.ErrInvalidInput)
	}
	if stats.Succeeded == 0 {
		return results, stats, common.NewAppError(common.CodeInput, fmt.Sprintf("all %d documents under %s failed to import", stats.Failed, dir), common.ErrInvalidInput)
	}
	return results, stats, nil
}

// Report renders the stored run and writes it to the output store.
func (p *Processor) Report(ctx context.Context) (string, error) {
	b, err := p.Export.ExportReportXLSX(ctx)
	if err != nil {
		return "", err
	}
	if err := p.Output.Put(ctx, constants.ReportArtifact, b); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return constants.ReportArtifact, nil
}

// RunOptions tunes Run.
type RunOptions struct {
	Resume bool
}

// Run executes import -> define -> analyze -> report. An empty dir skips the
// import and benchmarks what is already stored.
func (p *Processor) Run(ctx context.Context, dir string, opts RunOptions) (Summary, error) {
	log := common.LoggerFrom(ctx, p.Logger)
	start := time.Now()
	var sum Summary

	// 1) import
	if dir != "" {
		_, stats, err := p.Import(ctx, dir)
		sum.Import = stats
		if err != nil {
			log.Error("processor.import.failed", "dir", dir, "err", err)
			return sum, err
		}
		log.Info("processor.import.ok", "dir", dir, "succeeded", stats.Succeeded, "failed", stats.Failed)
	}

	// 2) dimensions + mapping
	res, err := p.Define.Run(ctx, opts.Resume)
	sum.Define = res
	if err != nil {
		log.Error("processor.define.failed", "err", err)
		return sum, err
	}
	log.Info("processor.define.ok",
		"dimensions", res.Framework.Len(),
		"outcome", res.Closure.Outcome,
		"unconverged", len(res.Closure.Unconverged),
	)

	// 3) comparative analysis; nothing mapped still yields a coverage report
	a, err := p.Analyze.Run(ctx)
	switch {
	case errors.Is(err, analysis.ErrNothingToAnalyze):
		log.Warn("processor.analyze.skipped", "reason", err.Error())
	case err != nil:
		log.Error("processor.analyze.failed", "err", err)
		return sum, err
	default:
		sum.Analysis = a
	}

	// 4) report
	key, err := p.Report(ctx)
	if err != nil {
		log.Error("processor.report.failed", "err", err)
		return sum, err
	}
	sum.Report = key
	log.Info("processor.run.ok", "report", key, "elapsed_ms", time.Since(start).Milliseconds())
	return sum, nil
}
