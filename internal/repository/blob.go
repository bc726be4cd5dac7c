package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/joseph-ayodele/regbench/constants"
	"github.com/joseph-ayodele/regbench/internal/common"
	"github.com/joseph-ayodele/regbench/internal/entity"
	"github.com/joseph-ayodele/regbench/internal/storage"
)

// blobRepository writes each record as a JSON artifact: documents under
// "documents/<tag>.json", the framework, mapping and analysis at fixed names.
type blobRepository struct {
	blobs  storage.Storage
	logger *slog.Logger
	// serializes framework/mapping writes so the consistency check sees the latest framework
	mu sync.Mutex
}

func NewBlob(blobs storage.Storage, logger *slog.Logger) Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &blobRepository{blobs: blobs, logger: logger}
}

func documentKey(tag string) string {
	return constants.DocumentsPrefix + tag + ".json"
}

func (r *blobRepository) putJSON(ctx context.Context, key string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return r.blobs.Put(ctx, key, b)
}

func (r *blobRepository) getJSON(ctx context.Context, key string, v any) error {
	b, err := r.blobs.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%w: decode %s: %w", common.ErrStorage, key, err)
	}
	return nil
}

func (r *blobRepository) SaveDocument(ctx context.Context, doc entity.SourceDocument) error {
	if strings.TrimSpace(doc.Tag) == "" {
		return fmt.Errorf("%w: document tag is required", common.ErrInvalidInput)
	}
	if err := r.putJSON(ctx, documentKey(doc.Tag), doc); err != nil {
		r.logger.Error("repository.document.save_failed", "tag", doc.Tag, "error", err)
		return err
	}
	r.logger.Debug("repository.document.saved", "tag", doc.Tag, "units", len(doc.Units))
	return nil
}

// LoadDocuments returns every stored document in natural tag order. A document
// without a tag takes it from its file name.
func (r *blobRepository) LoadDocuments(ctx context.Context) ([]entity.SourceDocument, error) {
	keys, err := r.blobs.List(ctx, constants.DocumentsPrefix)
	if err != nil {
		return nil, err
	}
	docs := make([]entity.SourceDocument, 0, len(keys))
	for _, k := range keys {
		if path.Ext(k) != ".json" {
			continue
		}
		var d entity.SourceDocument
		if err := r.getJSON(ctx, k, &d); err != nil {
			return nil, err
		}
		if d.Tag == "" {
			d.Tag = strings.TrimSuffix(path.Base(k), ".json")
		}
		docs = append(docs, d)
	}
	sortDocuments(docs)
	return docs, nil
}

func (r *blobRepository) SaveFramework(ctx context.Context, fw *entity.Framework) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.putJSON(ctx, constants.FrameworkArtifact, fw); err != nil {
		return err
	}
	r.logger.Debug("repository.framework.saved", "dimensions", fw.Len())
	return nil
}

func (r *blobRepository) LoadFramework(ctx context.Context) (*entity.Framework, error) {
	fw := entity.NewFramework()
	if err := r.getJSON(ctx, constants.FrameworkArtifact, fw); err != nil {
		return nil, err
	}
	return fw, nil
}

func (r *blobRepository) SaveMapping(ctx context.Context, fw *entity.Framework, m *entity.Mapping) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, err := r.LoadFramework(ctx)
	if err != nil {
		return fmt.Errorf("load stored framework: %w", err)
	}
	if err := checkAgainst(stored, m); err != nil {
		return err
	}
	if err := r.putJSON(ctx, constants.MappingArtifact, entity.NewMappingDocument(fw, m, nil)); err != nil {
		return err
	}
	r.logger.Debug("repository.mapping.saved", "dimensions", len(m.Dimensions()), "assignments", m.Size())
	return nil
}

func (r *blobRepository) LoadMapping(ctx context.Context) (*entity.Mapping, error) {
	var doc entity.MappingDocument
	if err := r.getJSON(ctx, constants.MappingArtifact, &doc); err != nil {
		return nil, err
	}
	return doc.Mapping(), nil
}

func (r *blobRepository) ResetMapping(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.blobs.Delete(ctx, constants.MappingArtifact); err != nil {
		return err
	}
	r.logger.Debug("repository.mapping.reset")
	return nil
}

func (r *blobRepository) SaveAnalysis(ctx context.Context, a *entity.BenchmarkAnalysis) error {
	return r.putJSON(ctx, constants.AnalysisArtifact, a)
}

func (r *blobRepository) LoadAnalysis(ctx context.Context) (*entity.BenchmarkAnalysis, error) {
	var a entity.BenchmarkAnalysis
	if err := r.getJSON(ctx, constants.AnalysisArtifact, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *blobRepository) Health(ctx context.Context) error {
	_, err := r.blobs.List(ctx, constants.DocumentsPrefix)
	return err
}

func (r *blobRepository) Close() error { return nil }

func sortDocuments(docs []entity.SourceDocument) {
	tags := make([]string, len(docs))
	for i := range docs {
		tags[i] = docs[i].Tag
	}
	entity.SortNatural(tags)
	rank := make(map[string]int, len(tags))
	for i, t := range tags {
		rank[t] = i
	}
	sort.SliceStable(docs, func(i, j int) bool { return rank[docs[i].Tag] < rank[docs[j].Tag] })
}
