package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/regbench/internal/analysis"
	"github.com/joseph-ayodele/regbench/internal/common"
	"github.com/joseph-ayodele/regbench/internal/entity"
)

// AnalysisStore is the slice of the repository the analysis stage uses.
type AnalysisStore interface {
	DocumentLoader
	LoadFramework(ctx context.Context) (*entity.Framework, error)
	LoadMapping(ctx context.Context) (*entity.Mapping, error)
	SaveAnalysis(ctx context.Context, a *entity.BenchmarkAnalysis) error
}

type AnalyzeStage struct {
	Store    AnalysisStore
	Analyzer *analysis.Analyzer
	Logger   *slog.Logger
}

func NewAnalyzeStage(store AnalysisStore, analyzer *analysis.Analyzer, logger *slog.Logger) *AnalyzeStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalyzeStage{Store: store, Analyzer: analyzer, Logger: logger}
}

// Run reads the stored framework and mapping, runs the comparative analysis,
// and persists the result.
func (s *AnalyzeStage) Run(ctx context.Context) (*entity.BenchmarkAnalysis, error) {
	log := common.LoggerFrom(ctx, s.Logger)
	start := time.Now()

	docs, err := s.Store.LoadDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	fw, err := s.Store.LoadFramework(ctx)
	if err != nil {
		return nil, fmt.Errorf("load framework: %w", err)
	}
	m, err := s.Store.LoadMapping(ctx)
	if err != nil {
		return nil, fmt.Errorf("load mapping: %w", err)
	}
	if err := entity.CheckConsistency(fw, m); err != nil {
		return nil, err
	}

	out, err := s.Analyzer.Run(ctx, fw, m, docs)
	if err != nil {
		return nil, err
	}
	if err := s.Store.SaveAnalysis(ctx, out); err != nil {
		return nil, fmt.Errorf("save analysis: %w", err)
	}
	log.Info("pipeline.analyze.ok",
		"dimensions", len(out.Dimensions),
		"non_core", len(out.NonCore),
		"failed", len(out.Failed),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}
