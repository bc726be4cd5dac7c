package ingest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joseph-ayodele/regbench/constants"
	"github.com/joseph-ayodele/regbench/internal/common"
	"github.com/joseph-ayodele/regbench/internal/entity"
)

// FSImporter reads segmented documents from the local filesystem.
type FSImporter struct {
	docs   DocumentSaver
	logger *slog.Logger

	mu     sync.Mutex
	hashes map[string]string // content hash -> tag, per importer
}

func NewFSImporter(docs DocumentSaver, logger *slog.Logger) *FSImporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSImporter{docs: docs, logger: logger, hashes: map[string]string{}}
}

// ImportPath decodes one JSON document and saves it under its tag. A document
// without a tag takes the file name. Identical content imported twice through
// the same importer is saved once.
func (i *FSImporter) ImportPath(ctx context.Context, path string) (ImportResult, error) {
	return i.importPath(ctx, path, nil)
}

// claim may veto a tag before anything is written.
func (i *FSImporter) importPath(ctx context.Context, path string, claim func(tag, path string) error) (ImportResult, error) {
	log := common.LoggerFrom(ctx, i.logger)
	start := time.Now()
	out := ImportResult{SourcePath: path}

	abs, err := filepath.Abs(path)
	if err != nil {
		return out, fmt.Errorf("abs path: %w", err)
	}
	out.SourcePath = abs

	ext := constants.NormalizeExt(filepath.Ext(abs))
	if ext == "" || !AllowedExt(ext) {
		return out, common.NewAppError(common.CodeInput, fmt.Sprintf("unsupported or missing extension: %q", ext), common.ErrInvalidInput)
	}

	b, err := os.ReadFile(abs)
	if err != nil {
		return out, fmt.Errorf("read %s: %w", abs, err)
	}
	sum := sha256.Sum256(b)
	out.HashHex = hex.EncodeToString(sum[:])

	doc, err := decodeDocument(b)
	if err != nil {
		return out, common.NewAppError(common.CodeInput, "decode "+filepath.Base(abs), errors.Join(common.ErrInvalidInput, err))
	}
	if strings.TrimSpace(doc.Tag) == "" {
		doc.Tag = TagFromPath(abs)
	}
	doc.Tag = strings.TrimSpace(doc.Tag)
	out.Tag = doc.Tag
	out.Units = len(doc.Units)

	if err := validateDocument(doc); err != nil {
		return out, err
	}
	if len(doc.Units) == 0 {
		log.Warn("ingest.document.empty", "tag", doc.Tag, "path", abs)
	}

	i.mu.Lock()
	prev, seen := i.hashes[out.HashHex]
	if !seen {
		i.hashes[out.HashHex] = doc.Tag
	}
	i.mu.Unlock()
	if seen && prev == doc.Tag {
		out.Deduplicated = true
		log.Info("ingest.document.dedup", "tag", doc.Tag, "path", abs)
		return out, nil
	}

	if claim != nil {
		if err := claim(doc.Tag, abs); err != nil {
			i.forget(out.HashHex, seen)
			return out, err
		}
	}
	if err := i.docs.SaveDocument(ctx, doc); err != nil {
		i.forget(out.HashHex, seen)
		return out, fmt.Errorf("save document %s: %w", doc.Tag, err)
	}

	log.Info("ingest.document.ok",
		"tag", doc.Tag,
		"units", out.Units,
		"hash", out.HashHex[:12],
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

func (i *FSImporter) forget(hash string, seen bool) {
	if seen {
		return
	}
	i.mu.Lock()
	delete(i.hashes, hash)
	i.mu.Unlock()
}

// ImportDirectory walks root, skips hidden entries if requested,
// and calls ImportPath for each file. Returns per-file results + aggregate stats.
// Two different files claiming the same tag fail the second one.
func (i *FSImporter) ImportDirectory(
	ctx context.Context,
	root string,
	skipHidden bool,
) ([]ImportResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, common.NewAppError(common.CodeInput, "root path is required", common.ErrInvalidInput)
	}
	if fi, err := os.Stat(root); err != nil {
		return nil, DirStats{}, common.NewAppError(common.CodeInput, "stat "+root, errors.Join(common.ErrInvalidInput, err))
	} else if !fi.IsDir() {
		return nil, DirStats{}, common.NewAppError(common.CodeInput, root+" is not a directory", common.ErrInvalidInput)
	}
	log := common.LoggerFrom(ctx, i.logger)
	start := time.Now()

	var results []ImportResult
	var stats DirStats
	tags := map[string]string{}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, ImportResult{SourcePath: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !AllowedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++

		r, err := i.importPath(ctx, path, func(tag, src string) error {
			if other, dup := tags[tag]; dup {
				return common.NewAppError(common.CodeInput, fmt.Sprintf("tag %q already imported from %s", tag, other), common.ErrInvalidInput)
			}
			tags[tag] = src
			return nil
		})
		if err != nil {
			log.Warn("ingest.document.failed", "path", path, "error", err)
			r.Err = err.Error()
			results = append(results, r)
			stats.Failed++
			return nil
		}

		results = append(results, r)
		stats.Succeeded++
		if r.Deduplicated {
			stats.Deduplicated++
		}
		return nil
	})
	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}

	log.Info("ingest.directory.done",
		"root", root,
		"matched", stats.Matched,
		"succeeded", stats.Succeeded,
		"deduplicated", stats.Deduplicated,
		"failed", stats.Failed,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return results, stats, nil
}

func decodeDocument(b []byte) (entity.SourceDocument, error) {
	var doc entity.SourceDocument
	b = bytes.TrimPrefix(b, []byte("\xef\xbb\xbf"))
	dec := json.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(&doc); err != nil {
		return doc, err
	}
	return doc, nil
}

func validateDocument(doc entity.SourceDocument) error {
	ids := make([]string, 0, len(doc.Units))
	v := common.NewValidator().Field("tag", doc.Tag, common.Required, common.Tag, common.Length(1, constants.MaxTagLength))
	for n, u := range doc.Units {
		v.Field(fmt.Sprintf("response[%d].logical_unit_id", n), string(u.ID), common.Required, common.Length(1, constants.MaxUnitIDLength))
		v.Field(fmt.Sprintf("response[%d].logical_unit_heading", n), u.Heading, common.Length(0, constants.MaxHeadingLength))
		ids = append(ids, string(u.ID))
	}
	v.Field("response.logical_unit_id", ids, common.Unique)
	return common.ValidateAndReturnError(v)
}
