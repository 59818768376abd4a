package etl

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// ErrNotFound is wrapped by every failed name lookup.
var ErrNotFound = errors.New("reference not found")

// ResolutionError reports a name with no match in the target table.
type ResolutionError struct {
	Table  string
	Column string
	Value  string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("no record in %s with %s = %q", e.Table, e.Column, e.Value)
}

func (e *ResolutionError) Unwrap() error { return ErrNotFound }

// Resolver turns human-readable names into record ids of one document,
// reading through a TableCache.
type Resolver struct {
	cache *TableCache
	log   zerolog.Logger
}

// NewResolver creates a resolver over cache.
func NewResolver(cache *TableCache, log zerolog.Logger) *Resolver {
	return &Resolver{cache: cache, log: log}
}

// Cache returns the table cache backing the resolver.
func (r *Resolver) Cache() *TableCache { return r.cache }

// Resolve returns the id of the first record of table whose column equals
// value exactly. When several records match, the first one wins and a
// warning is logged.
func (r *Resolver) Resolve(ctx context.Context, table, column, value string) (int64, error) {
	recs, err := r.cache.Records(ctx, table)
	if err != nil {
		return 0, err
	}

	var (
		id      int64
		matches int
	)
	for _, rec := range recs {
		v := rec.Fields.Get(column)
		if v.IsNull() || v.String() != value {
			continue
		}
		if matches == 0 {
			id = rec.ID
		}
		matches++
	}

	switch {
	case matches == 0:
		return 0, &ResolutionError{Table: table, Column: column, Value: value}
	case matches > 1:
		r.log.Warn().
			Str("table", table).
			Str("column", column).
			Str("value", value).
			Int("matches", matches).
			Int64("id", id).
			Msg("duplicate name, using first match")
	}
	return id, nil
}
