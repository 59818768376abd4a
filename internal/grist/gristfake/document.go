// Package gristfake provides an in-memory document with the same surface as
// grist.Client, for tests of code that migrates between documents.
package gristfake

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"gristmigrate/internal/domain"
	"gristmigrate/internal/grist"
)

// Document is an in-memory Grist document. Ids are assigned per table and per
// attachment store, starting at 1, and never reused.
type Document struct {
	mu          sync.Mutex
	tables      map[string][]domain.Record
	columns     map[string][]domain.Column
	nextID      map[string]int64
	attachments map[int64]domain.Attachment
	nextAttID   int64

	// Calls counts operations by name ("ListRecords", "CreateRecords", ...).
	Calls map[string]int
	// FailCreate makes CreateRecords on the named table return a RequestError.
	FailCreate map[string]bool
}

// New returns an empty document.
func New() *Document {
	return &Document{
		tables:      map[string][]domain.Record{},
		columns:     map[string][]domain.Column{},
		nextID:      map[string]int64{},
		attachments: map[int64]domain.Attachment{},
		Calls:       map[string]int{},
		FailCreate:  map[string]bool{},
	}
}

// AddTable declares a table (and optionally its columns) without rows.
func (d *Document) AddTable(name string, cols ...domain.Column) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.tables[name]; !ok {
		d.tables[name] = nil
	}
	d.columns[name] = append(d.columns[name], cols...)
}

// Seed appends rows to a table and returns their ids.
func (d *Document) Seed(table string, rows ...domain.Fields) []int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.insert(table, rows)
}

// SeedAttachment stores a file and returns its id.
func (d *Document) SeedAttachment(name string, data []byte) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.storeAttachment(name, data)
}

// Rows returns a copy of the table's records in insertion order.
func (d *Document) Rows(table string) []domain.Record {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]domain.Record, len(d.tables[table]))
	copy(out, d.tables[table])
	return out
}

// Attachment returns a stored attachment.
func (d *Document) Attachment(id int64) (domain.Attachment, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.attachments[id]
	return a, ok
}

// AttachmentCount reports how many attachments are stored.
func (d *Document) AttachmentCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.attachments)
}

func (d *Document) insert(table string, rows []domain.Fields) []int64 {
	ids := make([]int64, len(rows))
	for i, row := range rows {
		d.nextID[table]++
		id := d.nextID[table]
		fields := make(domain.Fields, len(row))
		for k, v := range row {
			fields[k] = v
		}
		d.tables[table] = append(d.tables[table], domain.Record{ID: id, Fields: fields})
		ids[i] = id
	}
	return ids
}

func (d *Document) storeAttachment(name string, data []byte) int64 {
	d.nextAttID++
	cp := make([]byte, len(data))
	copy(cp, data)
	d.attachments[d.nextAttID] = domain.Attachment{ID: d.nextAttID, FileName: name, Data: cp}
	return d.nextAttID
}

func (d *Document) notFound(verb grist.Verb, endpoint string) error {
	return &grist.RequestError{Verb: verb, Endpoint: endpoint, Status: http.StatusNotFound, Body: `{"error":"not found"}`}
}

// ── grist.Client surface ───────────────────────────────────

func (d *Document) ListTables(_ context.Context) ([]domain.Table, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls["ListTables"]++
	names := make([]string, 0, len(d.tables))
	for name := range d.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]domain.Table, len(names))
	for i, n := range names {
		out[i] = domain.Table{ID: n}
	}
	return out, nil
}

func (d *Document) ListColumns(_ context.Context, table string) ([]domain.Column, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls["ListColumns"]++
	if _, ok := d.tables[table]; !ok {
		return nil, d.notFound(grist.VerbGet, "/tables/"+table+"/columns")
	}
	out := make([]domain.Column, len(d.columns[table]))
	copy(out, d.columns[table])
	return out, nil
}

func (d *Document) ListRecords(_ context.Context, table string, filter domain.Filter) ([]domain.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls["ListRecords"]++
	rows, ok := d.tables[table]
	if !ok {
		return nil, d.notFound(grist.VerbGet, "/tables/"+table+"/records")
	}
	var out []domain.Record
	for _, r := range rows {
		if matches(r, filter) {
			out = append(out, r)
		}
	}
	return out, nil
}

func matches(r domain.Record, filter domain.Filter) bool {
	for col, allowed := range filter {
		v := r.Fields.Get(col)
		hit := false
		for _, a := range allowed {
			if domain.FromWire(a).Equal(v) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

func (d *Document) CreateRecords(_ context.Context, table string, rows []domain.Fields) ([]domain.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls["CreateRecords"]++
	if _, ok := d.tables[table]; !ok {
		return nil, d.notFound(grist.VerbPost, "/tables/"+table+"/records")
	}
	if d.FailCreate[table] {
		return nil, &grist.RequestError{Verb: grist.VerbPost, Endpoint: "/tables/" + table + "/records", Status: http.StatusBadRequest, Body: `{"error":"invalid row"}`}
	}
	if len(rows) == 0 {
		return nil, nil
	}
	ids := d.insert(table, rows)
	out := make([]domain.Record, len(ids))
	for i, id := range ids {
		out[i] = domain.Record{ID: id, Fields: rows[i]}
	}
	return out, nil
}

func (d *Document) DeleteRecords(_ context.Context, table string, ids []int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls["DeleteRecords"]++
	return d.deleteLocked(table, ids)
}

func (d *Document) deleteLocked(table string, ids []int64) error {
	rows, ok := d.tables[table]
	if !ok {
		return d.notFound(grist.VerbPost, "/tables/"+table+"/data/delete")
	}
	drop := make(map[int64]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := rows[:0:0]
	for _, r := range rows {
		if !drop[r.ID] {
			kept = append(kept, r)
		}
	}
	d.tables[table] = kept
	return nil
}

func (d *Document) DeleteAllRecords(_ context.Context, table string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls["DeleteAllRecords"]++
	rows, ok := d.tables[table]
	if !ok {
		return 0, d.notFound(grist.VerbGet, "/tables/"+table+"/records")
	}
	ids := make([]int64, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return len(ids), d.deleteLocked(table, ids)
}

func (d *Document) UploadAttachments(_ context.Context, files []domain.Attachment) ([]int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls["UploadAttachments"]++
	ids := make([]int64, len(files))
	for i, f := range files {
		ids[i] = d.storeAttachment(f.FileName, f.Data)
	}
	return ids, nil
}

func (d *Document) DownloadAttachment(_ context.Context, id int64) (*domain.Attachment, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls["DownloadAttachment"]++
	a, ok := d.attachments[id]
	if !ok {
		return nil, d.notFound(grist.VerbGet, fmt.Sprintf("/attachments/%d", id))
	}
	return &a, nil
}

// DeleteUnusedAttachments drops every attachment no attachment column
// references.
func (d *Document) DeleteUnusedAttachments(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls["DeleteUnusedAttachments"]++
	used := map[int64]bool{}
	for table, rows := range d.tables {
		for _, r := range rows {
			for col, v := range r.Fields {
				if !d.isAttachmentColumn(table, col) {
					continue
				}
				for _, id := range v.IDs() {
					used[id] = true
				}
			}
		}
	}
	for id := range d.attachments {
		if !used[id] {
			delete(d.attachments, id)
		}
	}
	return nil
}

// isAttachmentColumn reports whether col is declared with type "Attachments".
// Tables seeded without columns hold no attachments.
func (d *Document) isAttachmentColumn(table, col string) bool {
	for _, c := range d.columns[table] {
		if c.ID == col {
			return c.Type == "Attachments"
		}
	}
	return false
}
