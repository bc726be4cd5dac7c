package ingest

import (
	"context"

	"github.com/joseph-ayodele/regbench/internal/entity"
)

// ImportResult is the per-file import outcome.
type ImportResult struct {
	SourcePath   string
	Tag          string
	Units        int
	Deduplicated bool
	HashHex      string
	Err          string
}

// DirStats summarizes a directory import.
type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Succeeded    uint32
	Deduplicated uint32
	Failed       uint32
}

// DocumentSaver is the slice of the repository the importer writes to.
type DocumentSaver interface {
	SaveDocument(ctx context.Context, doc entity.SourceDocument) error
}

// Importer is the behavior the pipeline depends on.
type Importer interface {
	// ImportPath imports a single segmented document.
	ImportPath(ctx context.Context, path string) (ImportResult, error)
	// ImportDirectory imports all matching files under root.
	ImportDirectory(ctx context.Context, root string, skipHidden bool) ([]ImportResult, DirStats, error)
}
