package etl

import (
	"fmt"
	"sort"
	"sync"

	"gristmigrate/internal/domain"
)

// ── Source ──────────────────────────────────────────────────
// A SourceQuery reads one source table, narrows it, and names the
// transformer that turns each surviving row into a target row.

// SourceQuery describes one read of the source document.
type SourceQuery struct {
	Table string `json:"table"`
	// Filter is sent to the server as an equality filter.
	Filter domain.Filter `json:"filter,omitempty"`
	// Where is applied client-side after the fetch, in order.
	Where       []RowFilter `json:"where,omitempty"`
	Transformer Transformer `json:"-"`
}

// Keep reports whether rec passes every client-side filter.
func (q SourceQuery) Keep(rec domain.Record) bool {
	for _, f := range q.Where {
		if !f.Keep(rec) {
			return false
		}
	}
	return true
}

// ── Row filters ────────────────────────────────────────────

// FilterOp is a client-side comparison.
type FilterOp string

const (
	OpEq       FilterOp = "eq"
	OpNeq      FilterOp = "neq"
	OpEmpty    FilterOp = "empty"
	OpNotEmpty FilterOp = "not_empty"
)

// RowFilter keeps or drops a record based on one field.
type RowFilter struct {
	Field string       `json:"field"`
	Op    FilterOp     `json:"op"`
	Value domain.Value `json:"value"`
}

// Where builds an equality filter.
func Where(field string, v domain.Value) RowFilter {
	return RowFilter{Field: field, Op: OpEq, Value: v}
}

// WhereNot builds an inequality filter.
func WhereNot(field string, v domain.Value) RowFilter {
	return RowFilter{Field: field, Op: OpNeq, Value: v}
}

// WhereEmpty keeps rows whose field holds no value (null, false, "" or 0).
func WhereEmpty(field string) RowFilter { return RowFilter{Field: field, Op: OpEmpty} }

// WhereNotEmpty keeps rows whose field holds a value.
func WhereNotEmpty(field string) RowFilter { return RowFilter{Field: field, Op: OpNotEmpty} }

// Keep reports whether rec passes the filter. Unknown operators keep everything.
func (f RowFilter) Keep(rec domain.Record) bool {
	v := rec.Fields.Get(f.Field)
	switch f.Op {
	case OpEq:
		return v.Equal(f.Value)
	case OpNeq:
		return !v.Equal(f.Value)
	case OpEmpty:
		return isEmpty(v)
	case OpNotEmpty:
		return !isEmpty(v)
	default:
		return true
	}
}

func isEmpty(v domain.Value) bool {
	switch v.Kind() {
	case domain.KindNull:
		return true
	case domain.KindText:
		s, _ := v.AsText()
		return s == ""
	case domain.KindBool:
		b, _ := v.AsBool()
		return !b
	case domain.KindNumber:
		n, _ := v.AsNumber()
		return n == 0
	default:
		return false
	}
}

// ── Plan Registry ──────────────────────────────────────────
// Compile-time registration via init() in each plan package.

var (
	registryMu sync.RWMutex
	registry   = map[string]*Plan{}
)

// RegisterPlan registers a plan by name. Called from init().
func RegisterPlan(p *Plan) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[p.Name] = p
}

// GetPlan returns a registered plan by name, or an error if not found.
func GetPlan(name string) (*Plan, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	p, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown plan: %q", name)
	}
	return p, nil
}

// ListPlans returns the names of all registered plans, sorted.
func ListPlans() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
