package domain

import "strings"

// Fields maps a column id to its value. A column absent from the map is left
// to the document's default when written.
type Fields map[string]Value

// Get returns the value of a column, Null when absent.
func (f Fields) Get(col string) Value {
	if f == nil {
		return Null()
	}
	return f[col]
}

// Record is one table row as returned by the API.
type Record struct {
	ID     int64  `json:"id"`
	Fields Fields `json:"fields"`
}

// Table is a table of a document, identified by its id.
type Table struct {
	ID string `json:"id"`
}

// Column describes a table column. Type is the raw Grist type, for example
// "Text", "Bool", "Ref:Operateurs" or "RefList:Solutions".
type Column struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Type      string `json:"type"`
	IsFormula bool   `json:"isFormula"`
}

func (c Column) IsReference() bool     { return strings.HasPrefix(c.Type, "Ref:") }
func (c Column) IsReferenceList() bool { return strings.HasPrefix(c.Type, "RefList:") }

// ReferencedTable returns the table a reference column points at, or "".
func (c Column) ReferencedTable() string {
	if _, t, ok := strings.Cut(c.Type, ":"); ok && (c.IsReference() || c.IsReferenceList()) {
		return t
	}
	return ""
}

// Filter is a server-side equality filter: column id to allowed values.
type Filter map[string][]any

// Attachment is a file stored in a document.
type Attachment struct {
	ID       int64  `json:"id"`
	FileName string `json:"fileName"`
	Data     []byte `json:"-"`
}
