package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/regbench/internal/common"
	"github.com/joseph-ayodele/regbench/internal/entity"
	"github.com/joseph-ayodele/regbench/internal/storage"
)

// Repository persists source documents, the framework, the mapping and the analysis.
// SaveMapping refuses a mapping that references a dimension missing from the stored framework.
type Repository interface {
	SaveDocument(ctx context.Context, doc entity.SourceDocument) error
	LoadDocuments(ctx context.Context) ([]entity.SourceDocument, error)

	SaveFramework(ctx context.Context, fw *entity.Framework) error
	LoadFramework(ctx context.Context) (*entity.Framework, error)

	SaveMapping(ctx context.Context, fw *entity.Framework, m *entity.Mapping) error
	LoadMapping(ctx context.Context) (*entity.Mapping, error)
	// ResetMapping discards every stored assignment. A fresh definition run calls it
	// before saving its framework so keys reused from an earlier run start empty.
	ResetMapping(ctx context.Context) error

	SaveAnalysis(ctx context.Context, a *entity.BenchmarkAnalysis) error
	LoadAnalysis(ctx context.Context) (*entity.BenchmarkAnalysis, error)

	Health(ctx context.Context) error
	Close() error
}

// Open returns the backend selected by cfg.Store.Backend.
func Open(ctx context.Context, cfg *common.Config, logger *slog.Logger) (Repository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.ValidateStore(); err != nil {
		return nil, err
	}
	switch cfg.Store.Backend {
	case common.StoreLocal, common.StoreS3:
		blobs, err := storage.New(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return NewBlob(blobs, logger), nil
	case common.StoreSQLite:
		return OpenSQLite(ctx, cfg.Store.SQLitePath, logger)
	case common.StorePostgres:
		return OpenPostgres(ctx, cfg.Database, logger)
	default:
		return nil, common.NewAppError(common.CodeConfig, fmt.Sprintf("unknown store backend: %s", cfg.Store.Backend), common.ErrInvalidInput)
	}
}

// checkAgainst verifies m against the framework already persisted.
func checkAgainst(stored *entity.Framework, m *entity.Mapping) error {
	if err := entity.CheckConsistency(stored, m); err != nil {
		return common.NewAppError(common.CodeConsistent, "mapping rejected", err)
	}
	return nil
}
