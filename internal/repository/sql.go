package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/regbench/internal/common"
	"github.com/joseph-ayodele/regbench/internal/entity"
)

type dialect string

const (
	dialectSQLite   dialect = "sqlite"
	dialectPostgres dialect = "postgres"
)

const (
	analysisArtifact = "analysis"
	// present once a framework or mapping has been saved, even an empty one
	frameworkMarker = "framework"
	mappingMarker   = "mapping"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		tag        TEXT PRIMARY KEY,
		body       TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS dimensions (
		dim_key     TEXT PRIMARY KEY,
		position    INTEGER NOT NULL,
		label       TEXT NOT NULL,
		description TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS mapping_tags (
		dim_key TEXT NOT NULL,
		tag     TEXT NOT NULL,
		PRIMARY KEY (dim_key, tag)
	)`,
	`CREATE TABLE IF NOT EXISTS mappings (
		dim_key TEXT NOT NULL,
		tag     TEXT NOT NULL,
		unit_id TEXT NOT NULL,
		PRIMARY KEY (dim_key, tag, unit_id)
	)`,
	`CREATE TABLE IF NOT EXISTS artifacts (
		name       TEXT PRIMARY KEY,
		body       TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
}

// sqlRepository stores records relationally over database/sql. The same queries
// serve sqlite and postgres; placeholders are rebound per dialect.
type sqlRepository struct {
	db      *sql.DB
	dialect dialect
	logger  *slog.Logger
	onClose func()
}

func newSQL(ctx context.Context, db *sql.DB, d dialect, logger *slog.Logger) (*sqlRepository, error) {
	r := &sqlRepository{db: db, dialect: d, logger: logger}
	if err := r.migrate(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *sqlRepository) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: migrate: %w", common.ErrDatabase, err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $1, $2, ... for postgres.
func (r *sqlRepository) rebind(q string) string {
	if r.dialect != dialectPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

func (r *sqlRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", common.ErrDatabase, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", common.ErrDatabase, err)
	}
	return nil
}

func now() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func (r *sqlRepository) SaveDocument(ctx context.Context, doc entity.SourceDocument) error {
	if strings.TrimSpace(doc.Tag) == "" {
		return fmt.Errorf("%w: document tag is required", common.ErrInvalidInput)
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", doc.Tag, err)
	}
	_, err = r.db.ExecContext(ctx, r.rebind(`
		INSERT INTO documents (tag, body, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (tag) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`),
		doc.Tag, string(body), now())
	if err != nil {
		r.logger.Error("repository.document.save_failed", "tag", doc.Tag, "error", err)
		return fmt.Errorf("%w: save document %s: %w", common.ErrDatabase, doc.Tag, err)
	}
	return nil
}

func (r *sqlRepository) LoadDocuments(ctx context.Context) ([]entity.SourceDocument, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT tag, body FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("%w: load documents: %w", common.ErrDatabase, err)
	}
	defer rows.Close()
	var docs []entity.SourceDocument
	for rows.Next() {
		var tag, body string
		if err := rows.Scan(&tag, &body); err != nil {
			return nil, fmt.Errorf("%w: scan document: %w", common.ErrDatabase, err)
		}
		var d entity.SourceDocument
		if err := json.Unmarshal([]byte(body), &d); err != nil {
			return nil, fmt.Errorf("%w: decode document %s: %w", common.ErrStorage, tag, err)
		}
		d.Tag = tag
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: load documents: %w", common.ErrDatabase, err)
	}
	sortDocuments(docs)
	return docs, nil
}

// SaveFramework replaces the stored registry. Dimensions no longer present are
// removed together with their mapping rows.
func (r *sqlRepository) SaveFramework(ctx context.Context, fw *entity.Framework) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := dimensionKeys(ctx, tx)
		if err != nil {
			return err
		}
		for _, k := range existing {
			if fw.Has(k) {
				continue
			}
			for _, q := range []string{
				`DELETE FROM mappings WHERE dim_key = ?`,
				`DELETE FROM mapping_tags WHERE dim_key = ?`,
				`DELETE FROM dimensions WHERE dim_key = ?`,
			} {
				if _, err := tx.ExecContext(ctx, r.rebind(q), k); err != nil {
					return fmt.Errorf("%w: drop dimension %s: %w", common.ErrDatabase, k, err)
				}
			}
		}
		upsert := r.rebind(`
			INSERT INTO dimensions (dim_key, position, label, description) VALUES (?, ?, ?, ?)
			ON CONFLICT (dim_key) DO UPDATE SET position = excluded.position, label = excluded.label, description = excluded.description`)
		for i, d := range fw.Dimensions() {
			if _, err := tx.ExecContext(ctx, upsert, d.Key, i, d.Label, d.Description); err != nil {
				return fmt.Errorf("%w: save dimension %s: %w", common.ErrDatabase, d.Key, err)
			}
		}
		if err := r.putArtifact(ctx, tx, frameworkMarker, strconv.Itoa(fw.Len())); err != nil {
			return err
		}
		r.logger.Debug("repository.framework.saved", "dimensions", fw.Len())
		return nil
	})
}

func dimensionKeys(ctx context.Context, tx *sql.Tx) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT dim_key FROM dimensions`)
	if err != nil {
		return nil, fmt.Errorf("%w: list dimensions: %w", common.ErrDatabase, err)
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("%w: scan dimension: %w", common.ErrDatabase, err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (r *sqlRepository) LoadFramework(ctx context.Context) (*entity.Framework, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT dim_key, label, description FROM dimensions ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("%w: load framework: %w", common.ErrDatabase, err)
	}
	defer rows.Close()
	fw := entity.NewFramework()
	for rows.Next() {
		var d entity.Dimension
		if err := rows.Scan(&d.Key, &d.Label, &d.Description); err != nil {
			return nil, fmt.Errorf("%w: scan dimension: %w", common.ErrDatabase, err)
		}
		fw.Add(d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: load framework: %w", common.ErrDatabase, err)
	}
	_ = rows.Close()
	if fw.Len() > 0 {
		return fw, nil
	}
	// an empty registry is valid when every unit was filtered out
	ok, err := r.hasArtifact(ctx, frameworkMarker)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: framework", common.ErrNotFound)
	}
	return fw, nil
}

// SaveMapping unions m into the stored relation; rows are never deleted here.
func (r *sqlRepository) SaveMapping(ctx context.Context, _ *entity.Framework, m *entity.Mapping) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		keys, err := dimensionKeys(ctx, tx)
		if err != nil {
			return err
		}
		stored := entity.NewFramework()
		for _, k := range keys {
			stored.Add(entity.Dimension{Key: k})
		}
		if err := checkAgainst(stored, m); err != nil {
			return err
		}

		insTag := r.rebind(`INSERT INTO mapping_tags (dim_key, tag) VALUES (?, ?) ON CONFLICT DO NOTHING`)
		insUnit := r.rebind(`INSERT INTO mappings (dim_key, tag, unit_id) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`)
		for _, dim := range m.Dimensions() {
			for _, tag := range m.Tags(dim) {
				if _, err := tx.ExecContext(ctx, insTag, dim, tag); err != nil {
					return fmt.Errorf("%w: save mapping tag: %w", common.ErrDatabase, err)
				}
				for _, id := range m.IDs(dim, tag) {
					if _, err := tx.ExecContext(ctx, insUnit, dim, tag, string(id)); err != nil {
						return fmt.Errorf("%w: save mapping: %w", common.ErrDatabase, err)
					}
				}
			}
		}
		if err := r.putArtifact(ctx, tx, mappingMarker, strconv.Itoa(m.Size())); err != nil {
			return err
		}
		r.logger.Debug("repository.mapping.saved", "dimensions", len(m.Dimensions()), "assignments", m.Size())
		return nil
	})
}

func (r *sqlRepository) LoadMapping(ctx context.Context) (*entity.Mapping, error) {
	m := entity.NewMapping()
	tags, err := r.db.QueryContext(ctx, `SELECT dim_key, tag FROM mapping_tags`)
	if err != nil {
		return nil, fmt.Errorf("%w: load mapping: %w", common.ErrDatabase, err)
	}
	defer tags.Close()
	rowsSeen := 0
	for tags.Next() {
		var dim, tag string
		if err := tags.Scan(&dim, &tag); err != nil {
			return nil, fmt.Errorf("%w: scan mapping tag: %w", common.ErrDatabase, err)
		}
		m.Ensure(dim, tag)
		rowsSeen++
	}
	if err := tags.Err(); err != nil {
		return nil, fmt.Errorf("%w: load mapping: %w", common.ErrDatabase, err)
	}
	// release the connection before the second query; sqlite runs with one
	_ = tags.Close()

	units, err := r.db.QueryContext(ctx, `SELECT dim_key, tag, unit_id FROM mappings`)
	if err != nil {
		return nil, fmt.Errorf("%w: load mapping: %w", common.ErrDatabase, err)
	}
	defer units.Close()
	for units.Next() {
		var dim, tag, id string
		if err := units.Scan(&dim, &tag, &id); err != nil {
			return nil, fmt.Errorf("%w: scan mapping: %w", common.ErrDatabase, err)
		}
		m.Add(dim, tag, entity.UnitID(id))
		rowsSeen++
	}
	if err := units.Err(); err != nil {
		return nil, fmt.Errorf("%w: load mapping: %w", common.ErrDatabase, err)
	}
	_ = units.Close()
	if rowsSeen > 0 {
		return m, nil
	}
	ok, err := r.hasArtifact(ctx, mappingMarker)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: mapping", common.ErrNotFound)
	}
	return m, nil
}

func (r *sqlRepository) ResetMapping(ctx context.Context) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		for _, q := range []string{`DELETE FROM mappings`, `DELETE FROM mapping_tags`} {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				return fmt.Errorf("%w: reset mapping: %w", common.ErrDatabase, err)
			}
		}
		if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM artifacts WHERE name = ?`), mappingMarker); err != nil {
			return fmt.Errorf("%w: reset mapping: %w", common.ErrDatabase, err)
		}
		r.logger.Debug("repository.mapping.reset")
		return nil
	})
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *sqlRepository) putArtifact(ctx context.Context, ex execer, name, body string) error {
	_, err := ex.ExecContext(ctx, r.rebind(`
		INSERT INTO artifacts (name, body, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`),
		name, body, now())
	if err != nil {
		return fmt.Errorf("%w: save %s: %w", common.ErrDatabase, name, err)
	}
	return nil
}

func (r *sqlRepository) hasArtifact(ctx context.Context, name string) (bool, error) {
	var body string
	err := r.db.QueryRowContext(ctx, r.rebind(`SELECT body FROM artifacts WHERE name = ?`), name).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: lookup %s: %w", common.ErrDatabase, name, err)
	}
	return true, nil
}

func (r *sqlRepository) SaveAnalysis(ctx context.Context, a *entity.BenchmarkAnalysis) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}
	return r.putArtifact(ctx, r.db, analysisArtifact, string(body))
}

func (r *sqlRepository) LoadAnalysis(ctx context.Context) (*entity.BenchmarkAnalysis, error) {
	var body string
	err := r.db.QueryRowContext(ctx, r.rebind(`SELECT body FROM artifacts WHERE name = ?`), analysisArtifact).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: analysis", common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load analysis: %w", common.ErrDatabase, err)
	}
	var a entity.BenchmarkAnalysis
	if err := json.Unmarshal([]byte(body), &a); err != nil {
		return nil, fmt.Errorf("%w: decode analysis: %w", common.ErrStorage, err)
	}
	return &a, nil
}

func (r *sqlRepository) Health(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: ping: %w", common.ErrDatabase, err)
	}
	return nil
}

func (r *sqlRepository) Close() error {
	r.logger.Info("closing database connections")
	err := r.db.Close()
	if r.onClose != nil {
		r.onClose()
	}
	if err != nil {
		return fmt.Errorf("%w: close: %w", common.ErrDatabase, err)
	}
	return nil
}
