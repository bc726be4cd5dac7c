package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/regbench/internal/benchmark"
	"github.com/joseph-ayodele/regbench/internal/entity"
	"github.com/joseph-ayodele/regbench/internal/metrics"
)

// DocumentLoader reads the imported corpus.
type DocumentLoader interface {
	LoadDocuments(ctx context.Context) ([]entity.SourceDocument, error)
}

type DefineStage struct {
	Docs    DocumentLoader
	Definer *benchmark.Definer
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

func NewDefineStage(docs DocumentLoader, definer *benchmark.Definer, m *metrics.Metrics, logger *slog.Logger) *DefineStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefineStage{Docs: docs, Definer: definer, Metrics: m, Logger: logger}
}

// Run loads every stored document and builds the dimension registry and mapping.
func (s *DefineStage) Run(ctx context.Context, resume bool) (benchmark.DefineResult, error) {
	docs, err := s.Docs.LoadDocuments(ctx)
	if err != nil {
		return benchmark.DefineResult{}, fmt.Errorf("load documents: %w", err)
	}
	res, err := s.Definer.Define(ctx, docs, benchmark.DefineOptions{Resume: resume})
	if s.Metrics != nil && res.Closure.Outcome != "" {
		s.Metrics.ObserveClosure(res.Closure)
	}
	return res, err
}
