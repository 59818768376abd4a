package service

import (
	"context"
	"sync"
)

// ExportedRunGuard is an exported alias so _test packages can test the guard.
type ExportedRunGuard = runGuard

// ─────────────────────────────────────────────────────────────
// runGuard — one migration per plan at a time
// ─────────────────────────────────────────────────────────────

// runGuard ensures at most one run of a given plan writes to the target
// document at a time, whatever triggered it.
type runGuard struct {
	mu      sync.Mutex
	running map[string]struct{}
	wg      sync.WaitGroup
}

// TryLock marks plan as running. Returns false if it already is.
func (g *runGuard) TryLock(plan string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running == nil {
		g.running = make(map[string]struct{})
	}
	if _, ok := g.running[plan]; ok {
		return false
	}
	g.running[plan] = struct{}{}
	g.wg.Add(1)
	return true
}

// Unlock marks plan as no longer running. Must follow a successful TryLock.
func (g *runGuard) Unlock(plan string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.running, plan)
	g.wg.Done()
}

// Running reports whether plan is currently running.
func (g *runGuard) Running(plan string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.running[plan]
	return ok
}

// WaitAll blocks until all current runs complete or ctx is cancelled.
func (g *runGuard) WaitAll(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
