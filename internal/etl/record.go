package etl

import "gristmigrate/internal/domain"

// ── Schema ─────────────────────────────────────────────────
// Column layout of a target table, as reported by the document. The writer
// uses it to skip formula columns and to reject columns the table lacks.

// Schema describes the columns of one table.
type Schema struct {
	Table   string          `json:"table"`
	Columns []domain.Column `json:"columns"`
}

// NewSchema indexes cols for table.
func NewSchema(table string, cols []domain.Column) *Schema {
	return &Schema{Table: table, Columns: cols}
}

// FieldNames returns the column ids in document order.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.ID
	}
	return names
}

// Column returns the column with the given id.
func (s *Schema) Column(id string) (domain.Column, bool) {
	for _, c := range s.Columns {
		if c.ID == id {
			return c, true
		}
	}
	return domain.Column{}, false
}

// Known reports whether the table has column id. An empty schema knows
// every column.
func (s *Schema) Known(id string) bool {
	if s == nil || len(s.Columns) == 0 {
		return true
	}
	_, ok := s.Column(id)
	return ok
}

// Formula reports whether column id is computed by the document.
func (s *Schema) Formula(id string) bool {
	if s == nil {
		return false
	}
	c, ok := s.Column(id)
	return ok && c.IsFormula
}
