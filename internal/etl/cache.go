package etl

import (
	"context"
	"fmt"

	"gristmigrate/internal/domain"
)

// Reader is the read side of a document.
type Reader interface {
	ListRecords(ctx context.Context, table string, filter domain.Filter) ([]domain.Record, error)
}

// TableCache memoizes full-table reads of one document. Each table is fetched
// once, on first access, and kept until invalidated. It is not safe for
// concurrent use; a migration run owns its caches.
type TableCache struct {
	doc    Reader
	tables map[string][]domain.Record
	byID   map[string]map[int64]int
	// Fetches counts bulk reads, per table.
	Fetches map[string]int
}

// NewTableCache creates an empty cache over doc.
func NewTableCache(doc Reader) *TableCache {
	return &TableCache{
		doc:     doc,
		tables:  map[string][]domain.Record{},
		byID:    map[string]map[int64]int{},
		Fetches: map[string]int{},
	}
}

// Records returns every record of table, fetching it on first use.
func (c *TableCache) Records(ctx context.Context, table string) ([]domain.Record, error) {
	if recs, ok := c.tables[table]; ok {
		return recs, nil
	}
	recs, err := c.doc.ListRecords(ctx, table, nil)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", table, err)
	}
	c.Fetches[table]++

	idx := make(map[int64]int, len(recs))
	for i, r := range recs {
		idx[r.ID] = i
	}
	c.tables[table] = recs
	c.byID[table] = idx
	return recs, nil
}

// Lookup returns the record of table with the given id.
func (c *TableCache) Lookup(ctx context.Context, table string, id int64) (domain.Record, bool, error) {
	recs, err := c.Records(ctx, table)
	if err != nil {
		return domain.Record{}, false, err
	}
	i, ok := c.byID[table][id]
	if !ok {
		return domain.Record{}, false, nil
	}
	return recs[i], true, nil
}

// Invalidate drops the cached copy of table so the next access refetches it.
func (c *TableCache) Invalidate(table string) {
	delete(c.tables, table)
	delete(c.byID, table)
}

// Reset drops every cached table.
func (c *TableCache) Reset() {
	c.tables = map[string][]domain.Record{}
	c.byID = map[string]map[int64]int{}
}

// Cached reports whether table is currently held.
func (c *TableCache) Cached(table string) bool {
	_, ok := c.tables[table]
	return ok
}
