package benchmark

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/regbench/constants"
	"github.com/joseph-ayodele/regbench/internal/common"
	"github.com/joseph-ayodele/regbench/internal/entity"
	"github.com/joseph-ayodele/regbench/internal/llm"
)

var (
	// ErrNoDocuments halts a run that has nothing to benchmark.
	ErrNoDocuments = errors.New("no source documents")
	// ErrFrameworkUnparseable halts a run whose framework answer could not be used.
	ErrFrameworkUnparseable = errors.New("framework response unparseable")
)

// FrameworkBuilder derives the initial dimension registry from the whole corpus.
type FrameworkBuilder struct {
	oracle llm.Oracle
	model  string
	logger *slog.Logger
}

func NewFrameworkBuilder(oracle llm.Oracle, model string, logger *slog.Logger) *FrameworkBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &FrameworkBuilder{oracle: oracle, model: model, logger: logger}
}

// Build issues one oracle call over the corpus digest. With documents but no
// units it returns an empty framework and logs a warning.
func (b *FrameworkBuilder) Build(ctx context.Context, docs []entity.SourceDocument) (*entity.Framework, error) {
	log := common.LoggerFrom(ctx, b.logger)
	start := time.Now()

	if len(docs) == 0 {
		log.Error("benchmark.framework.no_documents")
		return nil, ErrNoDocuments
	}
	units := entity.CountUnits(docs)
	if units == 0 {
		log.Warn("benchmark.framework.no_units", "documents", len(docs))
		return entity.NewFramework(), nil
	}

	log.Info("benchmark.framework.start", "documents", len(docs), "units", units, "model", b.model)
	raw, err := b.oracle.Ask(ctx, llm.Request{
		Prompt:   llm.BuildFrameworkPrompt(docs),
		Model:    b.model,
		JSONMode: true,
		Purpose:  constants.StageFramework,
	})
	if err != nil {
		log.Error("benchmark.framework.oracle_error", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, fmt.Errorf("%w: %w", common.ErrOracle, err)
	}

	dims, err := llm.DecodeFramework(raw)
	if err != nil {
		log.Error("benchmark.framework.unparseable",
			"error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, fmt.Errorf("%w: %w", ErrFrameworkUnparseable, err)
	}

	fw := entity.NewFramework(dims...)
	log.Info("benchmark.framework.ok",
		"dimensions", fw.Len(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return fw, nil
}
