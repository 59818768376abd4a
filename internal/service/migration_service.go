package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"gristmigrate/internal/domain"
	"gristmigrate/internal/etl"
	"gristmigrate/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// Migration Service — runs, history, schedule and file trigger
// ─────────────────────────────────────────────────────────────

var (
	// ErrAlreadyRunning is returned when a run of the same plan is in progress.
	ErrAlreadyRunning = errors.New("migration already running")
	// ErrNoHistory is returned by history queries when no store is configured.
	ErrNoHistory = errors.New("run history is not configured")
)

// Trigger values recorded with each run.
const (
	TriggerManual   = "manual"
	TriggerSchedule = "schedule"
	TriggerWatch    = "file_watch"
	TriggerMCP      = "mcp"
)

// watchDebounce coalesces bursts of file events into one run.
const watchDebounce = 500 * time.Millisecond

// Options configures a MigrationService.
type Options struct {
	Plan      *etl.Plan
	Source    etl.Document
	Target    etl.Document
	SourceDoc string
	TargetDoc string
	// History is optional; nil disables run recording.
	History *storage.RunStore
	Emitter EventEmitter
	Log     zerolog.Logger
	// RunTimeout bounds a single run; zero means no bound.
	RunTimeout time.Duration
}

// MigrationService runs one plan between two documents. Each run gets a fresh
// engine so caches never outlive a run.
type MigrationService struct {
	opts    Options
	log     zerolog.Logger
	emitter EventEmitter
	running runGuard

	mu          sync.Mutex
	watchCancel context.CancelFunc
	watcher     *fsnotify.Watcher
	cronSched   *cron.Cron
}

// NewMigrationService creates a MigrationService ready for use.
func NewMigrationService(opts Options) *MigrationService {
	em := opts.Emitter
	if em == nil {
		em = LogEmitter{Log: opts.Log}
	}
	return &MigrationService{
		opts:    opts,
		log:     opts.Log.With().Str("component", "service").Logger(),
		emitter: em,
	}
}

// Plan returns the plan the service runs.
func (s *MigrationService) Plan() *etl.Plan { return s.opts.Plan }

// ── Steps ──────────────────────────────────────────────────

// StepInfo describes a step for listings.
type StepInfo struct {
	Name      string       `json:"name"`
	Table     string       `json:"table"`
	Mode      etl.SyncMode `json:"mode"`
	DependsOn []string     `json:"dependsOn,omitempty"`
	Sources   []string     `json:"sources"`
	Cleanup   bool         `json:"cleanup,omitempty"`
}

// Steps lists the plan's steps in execution order.
func (s *MigrationService) Steps() []StepInfo {
	out := make([]StepInfo, 0, len(s.opts.Plan.Steps))
	for _, st := range s.opts.Plan.Steps {
		info := StepInfo{Name: st.Name, Table: st.Table, Mode: st.Mode, DependsOn: st.DependsOn, Cleanup: st.Cleanup}
		for _, q := range st.Sources {
			info.Sources = append(info.Sources, q.Table)
		}
		out = append(out, info)
	}
	return out
}

// ── Run ────────────────────────────────────────────────────

// Run executes the selected steps (all when none are named), records the run
// in the history store and emits lifecycle events.
func (s *MigrationService) Run(ctx context.Context, trigger string, steps ...string) (*etl.RunResult, error) {
	plan := s.opts.Plan
	if !s.running.TryLock(plan.Name) {
		s.emitter.Emit(ctx, EventRunSkipped, map[string]string{"plan": plan.Name, "trigger": trigger})
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, plan.Name)
	}
	defer s.running.Unlock(plan.Name)

	selected, err := plan.Select(steps...)
	if err != nil {
		return nil, err
	}
	s.warnStaleAppends(selected)

	var run *storage.Run
	if s.opts.History != nil {
		run = &storage.Run{
			Plan:      plan.Name,
			Trigger:   trigger,
			SourceDoc: s.opts.SourceDoc,
			TargetDoc: s.opts.TargetDoc,
			Steps:     steps,
		}
		if err := s.opts.History.StartRun(run); err != nil {
			s.log.Warn().Err(err).Msg("could not record run start")
			run = nil
		}
	}
	s.emitter.Emit(ctx, EventRunStarted, map[string]any{"plan": plan.Name, "trigger": trigger, "steps": steps})

	runCtx := ctx
	if s.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.opts.RunTimeout)
		defer cancel()
	}

	engine := etl.NewEngine(s.opts.Source, s.opts.Target, s.opts.Log)
	result, runErr := engine.Run(runCtx, plan, steps...)

	if run != nil {
		if err := s.opts.History.FinishRun(run.ID, result); err != nil {
			s.log.Warn().Err(err).Str("run", run.ID).Msg("could not record run result")
		}
	}
	s.emitter.Emit(ctx, EventRunCompleted, result)
	return result, runErr
}

// warnStaleAppends flags append steps rerun after a successful run. Rows they
// kept from that run still hold ids of records replaced steps have since
// deleted and recreated.
func (s *MigrationService) warnStaleAppends(steps []*etl.Step) {
	if s.opts.History == nil {
		return
	}
	var last *storage.Run
	for _, st := range steps {
		if st.Mode != etl.SyncAppend {
			continue
		}
		if last == nil {
			var err error
			last, err = s.opts.History.LastSuccess(s.opts.Plan.Name)
			if err != nil {
				s.log.Warn().Err(err).Msg("could not read last successful run")
				return
			}
			if last == nil {
				return
			}
		}
		s.log.Warn().
			Str("step", st.Name).
			Str("table", st.Table).
			Str("since_run", last.ID).
			Msg("append step keeps earlier rows; their references may point at deleted records")
	}
}

// Preview transforms up to maxRows rows of one step without writing.
func (s *MigrationService) Preview(ctx context.Context, stepName string, maxRows int) ([]domain.Fields, error) {
	step, ok := s.opts.Plan.Step(stepName)
	if !ok {
		return nil, fmt.Errorf("plan %s: unknown step %q", s.opts.Plan.Name, stepName)
	}
	if maxRows <= 0 {
		maxRows = 10
	}
	engine := etl.NewEngine(s.opts.Source, s.opts.Target, s.opts.Log)
	return engine.Preview(ctx, step, maxRows)
}

// ── History ────────────────────────────────────────────────

// History returns the most recent runs.
func (s *MigrationService) History(limit int) ([]storage.Run, error) {
	if s.opts.History == nil {
		return nil, ErrNoHistory
	}
	return s.opts.History.ListRuns(limit)
}

// RunDetail returns one run with its step results.
func (s *MigrationService) RunDetail(id string) (*storage.Run, error) {
	if s.opts.History == nil {
		return nil, ErrNoHistory
	}
	return s.opts.History.GetRun(id)
}

// ── Triggers (cron + file_watch) ───────────────────────────

// Schedule runs the whole plan on a cron expression until Stop is called.
// Ticks that find a run in progress are skipped.
func (s *MigrationService) Schedule(ctx context.Context, expr string) error {
	c := cron.New()
	_, err := c.AddFunc(expr, func() {
		s.log.Info().Str("schedule", expr).Msg("scheduled run")
		if _, err := s.Run(ctx, TriggerSchedule); err != nil {
			s.log.Error().Err(err).Msg("scheduled run failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", expr, err)
	}

	s.mu.Lock()
	if s.cronSched != nil {
		s.cronSched.Stop()
	}
	s.cronSched = c
	s.mu.Unlock()

	c.Start()
	s.log.Info().Str("schedule", expr).Msg("schedule active")
	return nil
}

// Watch re-runs the plan whenever the file at path is written or recreated,
// debounced. It returns once the watcher is set up.
func (s *MigrationService) Watch(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("bad path %q: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// Watch the directory: editors replace files rather than writing in place.
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %q: %w", filepath.Dir(absPath), err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.stopWatcherLocked()
	s.watcher = watcher
	s.watchCancel = cancel
	s.mu.Unlock()

	go func() {
		var timer *time.Timer
		for {
			select {
			case <-watchCtx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if name, _ := filepath.Abs(event.Name); name != absPath {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(watchDebounce, func() {
					s.log.Info().Str("file", absPath).Msg("file changed, running migration")
					if _, err := s.Run(watchCtx, TriggerWatch); err != nil {
						s.log.Error().Err(err).Msg("triggered run failed")
					}
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.log.Warn().Err(err).Msg("watcher error")
			}
		}
	}()

	s.log.Info().Str("file", absPath).Msg("watching")
	return nil
}

// WaitRunning blocks until the current run finishes or ctx is cancelled.
// Used for graceful shutdown.
func (s *MigrationService) WaitRunning(ctx context.Context) {
	s.running.WaitAll(ctx)
}

// Stop tears down the watcher and the scheduler. Safe to call repeatedly.
func (s *MigrationService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopWatcherLocked()
	if s.cronSched != nil {
		s.cronSched.Stop()
		s.cronSched = nil
	}
}

func (s *MigrationService) stopWatcherLocked() {
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
}
