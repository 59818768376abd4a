package etl

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"gristmigrate/internal/domain"
)

// ── Destination ────────────────────────────────────────────
// A Destination writes transformed rows into the target document.

// SyncMode determines how a step treats rows already in its target table.
type SyncMode string

const (
	SyncReplace SyncMode = "replace" // delete all existing rows, insert fresh
	SyncAppend  SyncMode = "append"  // add rows without deleting existing
)

// Valid reports whether m is a known mode.
func (m SyncMode) Valid() bool { return m == SyncReplace || m == SyncAppend }

// Document is the subset of the Grist client the migration uses. Both
// grist.Client and gristfake.Document satisfy it.
type Document interface {
	Reader
	AttachmentSource
	AttachmentSink
	ListTables(ctx context.Context) ([]domain.Table, error)
	ListColumns(ctx context.Context, table string) ([]domain.Column, error)
	CreateRecords(ctx context.Context, table string, rows []domain.Fields) ([]domain.Record, error)
	DeleteAllRecords(ctx context.Context, table string) (int, error)
	DeleteUnusedAttachments(ctx context.Context) error
}

// Destination writes records to a target system.
type Destination interface {
	Clear(ctx context.Context, table string) (int, error)
	Write(ctx context.Context, table string, rows []domain.Fields) (int, error)
	Cleanup(ctx context.Context) error
}

// ── Grist Destination ──────────────────────────────────────

// UnknownColumnError reports a field the target table has no column for.
type UnknownColumnError struct {
	Table   string
	Column  string
	Columns []string
}

func (e *UnknownColumnError) Error() string {
	return fmt.Sprintf("table %s has no column %q (columns: %s)", e.Table, e.Column, strings.Join(e.Columns, ", "))
}

// GristWriter implements Destination for a Grist document.
type GristWriter struct {
	Doc Document
	Log zerolog.Logger

	schemas map[string]*Schema
}

// NewGristWriter creates a writer for doc.
func NewGristWriter(doc Document, log zerolog.Logger) *GristWriter {
	return &GristWriter{Doc: doc, Log: log, schemas: map[string]*Schema{}}
}

// Clear deletes every row of table and returns how many were removed.
func (w *GristWriter) Clear(ctx context.Context, table string) (int, error) {
	n, err := w.Doc.DeleteAllRecords(ctx, table)
	if err != nil {
		return 0, fmt.Errorf("clear %s: %w", table, err)
	}
	return n, nil
}

// Write creates rows in one bulk request. Formula columns are skipped with a
// warning; a column the table does not have fails the whole batch.
func (w *GristWriter) Write(ctx context.Context, table string, rows []domain.Fields) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	schema, err := w.schema(ctx, table)
	if err != nil {
		return 0, err
	}

	formulas := map[string]bool{}
	out := make([]domain.Fields, len(rows))
	for i, row := range rows {
		clean := make(domain.Fields, len(row))
		for col, v := range row {
			if !schema.Known(col) {
				return 0, &UnknownColumnError{Table: table, Column: col, Columns: schema.FieldNames()}
			}
			if schema.Formula(col) {
				formulas[col] = true
				continue
			}
			clean[col] = v
		}
		out[i] = clean
	}
	for col := range formulas {
		w.Log.Warn().Str("table", table).Str("column", col).Msg("formula column skipped")
	}

	created, err := w.Doc.CreateRecords(ctx, table, out)
	if err != nil {
		return 0, fmt.Errorf("write %s: %w", table, err)
	}
	return len(created), nil
}

// Cleanup purges attachments no longer referenced by any cell.
func (w *GristWriter) Cleanup(ctx context.Context) error {
	if err := w.Doc.DeleteUnusedAttachments(ctx); err != nil {
		return fmt.Errorf("remove unused attachments: %w", err)
	}
	return nil
}

func (w *GristWriter) schema(ctx context.Context, table string) (*Schema, error) {
	if s, ok := w.schemas[table]; ok {
		return s, nil
	}
	cols, err := w.Doc.ListColumns(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("columns of %s: %w", table, err)
	}
	s := NewSchema(table, cols)
	w.schemas[table] = s
	return s, nil
}
