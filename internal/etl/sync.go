package etl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"gristmigrate/internal/domain"
)

// ── Plan ───────────────────────────────────────────────────
// A Plan is the ordered list of steps of one migration. Each step rebuilds
// one target table: clear → fetch → transform → write → cleanup.

// Step populates one target table from one or more source queries.
type Step struct {
	Name  string   `json:"name"`
	Table string   `json:"table"`
	Mode  SyncMode `json:"mode"`
	// DependsOn lists target tables referenced by this step's rules. Each must
	// be written by an earlier step or declared external to the plan.
	DependsOn []string      `json:"dependsOn,omitempty"`
	Sources   []SourceQuery `json:"sources"`
	// Cleanup purges unused attachments after the write.
	Cleanup bool `json:"cleanup,omitempty"`
}

// Plan holds the steps of a migration, in execution order.
type Plan struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	// External lists target tables the plan reads but never writes.
	External []string `json:"external,omitempty"`
	Steps    []*Step  `json:"steps"`
}

// Step returns the step with the given name.
func (p *Plan) Step(name string) (*Step, bool) {
	for _, s := range p.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// StepNames returns the step names in execution order.
func (p *Plan) StepNames() []string {
	names := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		names[i] = s.Name
	}
	return names
}

// Select returns the named steps in plan order. No names selects every step.
func (p *Plan) Select(names ...string) ([]*Step, error) {
	if len(names) == 0 {
		return p.Steps, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := p.Step(n); !ok {
			return nil, fmt.Errorf("plan %s: unknown step %q", p.Name, n)
		}
		want[n] = true
	}
	out := make([]*Step, 0, len(want))
	for _, s := range p.Steps {
		if want[s.Name] {
			out = append(out, s)
		}
	}
	return out, nil
}

// Validate checks step names are unique, modes are known, every step has a
// source, and every dependency is satisfied by an earlier step.
func (p *Plan) Validate() error {
	written := map[string]bool{}
	for _, t := range p.External {
		written[t] = true
	}
	names := map[string]bool{}
	var errs []error
	for _, s := range p.Steps {
		if names[s.Name] {
			errs = append(errs, fmt.Errorf("step %s: duplicate name", s.Name))
		}
		names[s.Name] = true
		if !s.Mode.Valid() {
			errs = append(errs, fmt.Errorf("step %s: unknown mode %q", s.Name, s.Mode))
		}
		if len(s.Sources) == 0 {
			errs = append(errs, fmt.Errorf("step %s: no sources", s.Name))
		}
		for _, q := range s.Sources {
			if q.Transformer == nil {
				errs = append(errs, fmt.Errorf("step %s: source %s has no transformer", s.Name, q.Table))
			}
		}
		for _, dep := range s.DependsOn {
			if !written[dep] {
				errs = append(errs, fmt.Errorf("step %s: depends on %s, which no earlier step writes", s.Name, dep))
			}
		}
		written[s.Table] = true
	}
	return errors.Join(errs...)
}

// ── Results ────────────────────────────────────────────────

// Phase names the part of a step that failed.
type Phase string

const (
	PhaseClear     Phase = "clear"
	PhaseFetch     Phase = "fetch"
	PhaseTransform Phase = "transform"
	PhaseWrite     Phase = "write"
	PhaseCleanup   Phase = "cleanup"
)

// StepError wraps the cause of a failed step.
type StepError struct {
	Step  string
	Phase Phase
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %s: %v", e.Step, e.Phase, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// StepResult is the outcome of running one step.
type StepResult struct {
	Step        string        `json:"step"`
	Table       string        `json:"table"`
	Mode        SyncMode      `json:"mode"`
	Status      string        `json:"status"` // "success" | "error"
	RowsDeleted int           `json:"rowsDeleted"`
	RowsRead    int           `json:"rowsRead"`
	RowsWritten int           `json:"rowsWritten"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
}

// RunResult is the outcome of running a plan.
type RunResult struct {
	Plan     string        `json:"plan"`
	Status   string        `json:"status"`
	Steps    []*StepResult `json:"steps"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// RowsWritten sums the rows written by every step.
func (r *RunResult) RowsWritten() int {
	n := 0
	for _, s := range r.Steps {
		n += s.RowsWritten
	}
	return n
}

// ── Engine ─────────────────────────────────────────────────
// The Engine runs steps sequentially. It owns one table cache per document;
// the target cache entry of a table is dropped whenever the table changes.

// Engine moves records from Source to Target.
type Engine struct {
	Source Document
	Target Document
	Dest   Destination
	Log    zerolog.Logger

	sourceCache *TableCache
	targetCache *TableCache
	resolver    *Resolver
}

// NewEngine builds an engine writing to target through a GristWriter.
func NewEngine(source, target Document, log zerolog.Logger) *Engine {
	e := &Engine{
		Source: source,
		Target: target,
		Dest:   NewGristWriter(target, log),
		Log:    log,
	}
	e.Reset()
	return e
}

// Reset drops both caches.
func (e *Engine) Reset() {
	e.sourceCache = NewTableCache(e.Source)
	e.targetCache = NewTableCache(e.Target)
	e.resolver = NewResolver(e.targetCache, e.Log)
}

// TargetCache exposes the target cache, mainly for tests.
func (e *Engine) TargetCache() *TableCache { return e.targetCache }

func (e *Engine) env() *Env {
	return &Env{
		Source:      e.sourceCache,
		Target:      e.resolver,
		SourceFiles: e.Source,
		TargetFiles: e.Target,
		Log:         e.Log,
	}
}

// Run executes the selected steps of plan in order, stopping at the first
// failure. The result holds every step attempted so far.
func (e *Engine) Run(ctx context.Context, plan *Plan, names ...string) (*RunResult, error) {
	start := time.Now()
	result := &RunResult{Plan: plan.Name}

	fail := func(err error) (*RunResult, error) {
		result.Status = "error"
		result.Error = err.Error()
		result.Duration = time.Since(start)
		return result, err
	}

	steps, err := plan.Select(names...)
	if err != nil {
		return fail(err)
	}

	e.Log.Info().Str("plan", plan.Name).Int("steps", len(steps)).Msg("migration started")
	for _, step := range steps {
		sr, err := e.RunStep(ctx, step)
		result.Steps = append(result.Steps, sr)
		if err != nil {
			return fail(err)
		}
	}

	result.Status = "success"
	result.Duration = time.Since(start)
	e.Log.Info().Str("plan", plan.Name).Int("rows", result.RowsWritten()).Dur("took", result.Duration).Msg("migration done")
	return result, nil
}

// RunStep executes one step end-to-end.
func (e *Engine) RunStep(ctx context.Context, step *Step) (*StepResult, error) {
	start := time.Now()
	result := &StepResult{Step: step.Name, Table: step.Table, Mode: step.Mode}
	log := e.Log.With().Str("step", step.Name).Str("table", step.Table).Logger()

	fail := func(phase Phase, err error) (*StepResult, error) {
		serr := &StepError{Step: step.Name, Phase: phase, Err: err}
		result.Status = "error"
		result.Error = serr.Error()
		result.Duration = time.Since(start)
		log.Error().Err(err).Str("phase", string(phase)).Msg("step failed")
		return result, serr
	}

	// 1. Clear the target table.
	if step.Mode != SyncAppend {
		n, err := e.Dest.Clear(ctx, step.Table)
		e.targetCache.Invalidate(step.Table)
		if err != nil {
			return fail(PhaseClear, err)
		}
		result.RowsDeleted = n
		log.Info().Int("rows", n).Msg("cleared")
	}

	// 2-3. Fetch and transform each source in order.
	rows, read, phase, err := e.collect(ctx, step, 0)
	result.RowsRead = read
	if err != nil {
		return fail(phase, err)
	}

	// 4. Write in one batch.
	if len(rows) > 0 {
		n, err := e.Dest.Write(ctx, step.Table, rows)
		e.targetCache.Invalidate(step.Table)
		if err != nil {
			return fail(PhaseWrite, err)
		}
		result.RowsWritten = n
	}
	log.Info().Int("read", read).Int("written", result.RowsWritten).Msg("written")

	// 5. Cleanup.
	if step.Cleanup {
		if err := e.Dest.Cleanup(ctx); err != nil {
			return fail(PhaseCleanup, err)
		}
		log.Info().Msg("unused attachments removed")
	}

	result.Status = "success"
	result.Duration = time.Since(start)
	return result, nil
}

// collect reads and transforms every source of step. limit > 0 stops after
// that many output rows.
func (e *Engine) collect(ctx context.Context, step *Step, limit int) ([]domain.Fields, int, Phase, error) {
	env := e.env()
	var (
		rows []domain.Fields
		read int
	)
	for _, q := range step.Sources {
		recs, err := e.Source.ListRecords(ctx, q.Table, q.Filter)
		if err != nil {
			return rows, read, PhaseFetch, fmt.Errorf("read %s: %w", q.Table, err)
		}
		read += len(recs)
		for _, rec := range recs {
			if err := ctx.Err(); err != nil {
				return rows, read, PhaseTransform, err
			}
			if !q.Keep(rec) {
				continue
			}
			fields, err := q.Transformer.Transform(ctx, env, rec)
			if err != nil {
				return rows, read, PhaseTransform, err
			}
			e.Log.Debug().Str("step", step.Name).Str("source", q.Table).Int64("id", rec.ID).Msg("transformed")
			rows = append(rows, fields)
			if limit > 0 && len(rows) >= limit {
				return rows, read, "", nil
			}
		}
	}
	return rows, read, "", nil
}

// Preview runs the fetch and transform phases of a step without writing, and
// returns up to maxRows output rows. References still resolve against the
// current content of the target document.
func (e *Engine) Preview(ctx context.Context, step *Step, maxRows int) ([]domain.Fields, error) {
	rows, _, phase, err := e.collect(ctx, step, maxRows)
	if err != nil {
		return rows, &StepError{Step: step.Name, Phase: phase, Err: err}
	}
	return rows, nil
}
