package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/regbench/internal/common"
)

// Storage is a flat key/blob store for documents and artifacts.
// Keys use forward slashes ("documents/regulation_1.json").
type Storage interface {
	// Put writes data under key, replacing any previous blob.
	Put(ctx context.Context, key string, data []byte) error

	// Get returns the blob under key, or common.ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns keys with the given prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
}

// New builds the blob backend named by cfg.Store.Backend. Only the blob
// backends are handled here; database backends live in the repository package.
func New(ctx context.Context, cfg *common.Config, logger *slog.Logger) (Storage, error) {
	switch cfg.Store.Backend {
	case common.StoreLocal:
		return NewLocal(cfg.Store.LocalDir)
	case common.StoreS3:
		return NewS3(ctx, cfg.S3, logger)
	default:
		return nil, common.NewAppError(common.CodeConfig, fmt.Sprintf("unknown blob storage backend: %s", cfg.Store.Backend), common.ErrInvalidInput)
	}
}

// cleanKey normalizes key and rejects anything that escapes the store root.
func cleanKey(key string) (string, error) {
	k := strings.Trim(filepath.ToSlash(strings.TrimSpace(key)), "/")
	if k == "" {
		return "", fmt.Errorf("%w: empty storage key", common.ErrInvalidInput)
	}
	for _, seg := range strings.Split(k, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: storage key %q escapes the store", common.ErrInvalidInput, key)
		}
	}
	return path.Clean(k), nil
}

func contentType(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".json":
		return "application/json"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}
