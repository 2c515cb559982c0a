package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/matthewbaird/reportcore/internal/types"
)

const documentsTable = "report_documents"

// batchSize keeps inserts well under SQLite's bound-parameter limit.
const batchSize = 500

var documentColumns = []string{
	"report_id", "id", "scope", "cell_id", "group_id", "sector_id",
	"created_at", "values_json", "context_json",
}

// SQLiteStore implements Store on a SQLite database. Statements are built with the
// ent SQL builder and run through the ent driver.
type SQLiteStore struct {
	drv *entsql.Driver
}

// NewSQLiteStore wraps an open database/sql handle using the "sqlite" driver.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{drv: entsql.OpenDB(dialect.SQLite, db)}
}

// Migrate creates the documents table and its listing index.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS report_documents (
			report_id    TEXT NOT NULL,
			id           TEXT NOT NULL,
			scope        TEXT NOT NULL DEFAULT '',
			cell_id      TEXT NOT NULL DEFAULT '',
			group_id     TEXT NOT NULL DEFAULT '',
			sector_id    TEXT NOT NULL DEFAULT '',
			created_at   INTEGER NOT NULL,
			values_json  TEXT NOT NULL DEFAULT '{}',
			context_json TEXT NOT NULL DEFAULT '{}',
			PRIMARY KEY (report_id, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_report_documents_created
			ON report_documents (report_id, created_at)`,
	}
	for _, stmt := range stmts {
		if err := s.drv.Exec(ctx, stmt, []any{}, nil); err != nil {
			return fmt.Errorf("migrating %s: %w", documentsTable, err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.drv.Close() }

func (s *SQLiteStore) WriteDocuments(ctx context.Context, docs []types.Document) error {
	if len(docs) == 0 {
		return nil
	}
	for _, d := range docs {
		if err := validate(d); err != nil {
			return err
		}
	}

	tx, err := s.drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	for lo := 0; lo < len(docs); lo += batchSize {
		hi := min(lo+batchSize, len(docs))
		query, args, err := insertQuery(docs[lo:hi])
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Exec(ctx, query, args, nil); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("writing documents: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing documents: %w", err)
	}
	return nil
}

func insertQuery(docs []types.Document) (string, []any, error) {
	b := entsql.Dialect(dialect.SQLite).
		Insert(documentsTable).
		Columns(documentColumns...)
	for _, d := range docs {
		values, err := json.Marshal(d.Values)
		if err != nil {
			return "", nil, fmt.Errorf("encoding values of %s: %w", d.ID, err)
		}
		if d.Values == nil {
			values = []byte("{}")
		}
		ctxJSON, err := json.Marshal(d.Context)
		if err != nil {
			return "", nil, fmt.Errorf("encoding context of %s: %w", d.ID, err)
		}
		b.Values(
			d.ReportID, d.ID, string(d.Scope), d.CellID, d.GroupID, d.SectorID,
			d.CreatedAt.UTC().UnixMicro(), string(values), string(ctxJSON),
		)
	}
	b.OnConflict(
		entsql.ConflictColumns("report_id", "id"),
		entsql.ResolveWithNewValues(),
	)
	query, args := b.Query()
	return query, args, nil
}

// ListDocuments returns matching documents oldest first.
func (s *SQLiteStore) ListDocuments(ctx context.Context, reportID string, opts ListOptions) ([]types.Document, error) {
	sel := entsql.Dialect(dialect.SQLite).
		Select(documentColumns...).
		From(entsql.Table(documentsTable)).
		Where(entsql.EQ("report_id", reportID))
	if opts.Since != nil {
		sel.Where(entsql.GTE("created_at", opts.Since.UTC().UnixMicro()))
	}
	if opts.Until != nil {
		sel.Where(entsql.LTE("created_at", opts.Until.UTC().UnixMicro()))
	}
	if opts.Scope != "" {
		sel.Where(entsql.EQ("scope", string(opts.Scope)))
	}
	sel.OrderBy("created_at", "id")
	if opts.Limit > 0 {
		sel.Limit(opts.Limit)
	}
	query, args := sel.Query()

	var rows entsql.Rows
	if err := s.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []types.Document
	for rows.Next() {
		var (
			d              types.Document
			scope          string
			createdAt      int64
			values, ctxRaw string
		)
		if err := rows.Scan(&d.ReportID, &d.ID, &scope, &d.CellID, &d.GroupID, &d.SectorID,
			&createdAt, &values, &ctxRaw); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		d.Scope = types.Scope(scope)
		d.CreatedAt = time.UnixMicro(createdAt).UTC()
		if err := json.Unmarshal([]byte(values), &d.Values); err != nil {
			return nil, fmt.Errorf("decoding values of %s: %w", d.ID, err)
		}
		if err := json.Unmarshal([]byte(ctxRaw), &d.Context); err != nil {
			return nil, fmt.Errorf("decoding context of %s: %w", d.ID, err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	return docs, nil
}
