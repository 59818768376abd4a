package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gristmigrate/internal/storage"
)

// EventEmitter lets the approval queue announce pending actions.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// ErrRejected is returned when an operator rejects a pending action.
var ErrRejected = errors.New("action rejected")

// ApprovalQueue gates destructive tool calls on an operator decision.
// Pending actions are written to the history database, where
// `gristmigrate approvals approve <id>` resolves them from another shell.
type ApprovalQueue struct {
	store   *storage.ApprovalStore
	emitter EventEmitter
	// AutoApprove skips the queue entirely.
	AutoApprove bool
	Timeout     time.Duration
	Interval    time.Duration
}

// NewApprovalQueue creates a queue over store. store may be nil when
// AutoApprove is set.
func NewApprovalQueue(store *storage.ApprovalStore, emitter EventEmitter) *ApprovalQueue {
	return &ApprovalQueue{
		store:    store,
		emitter:  emitter,
		Timeout:  120 * time.Second,
		Interval: 500 * time.Millisecond,
	}
}

// Request blocks until the action is approved, rejected, times out or ctx
// is cancelled. It reports true only on approval.
func (q *ApprovalQueue) Request(ctx context.Context, tool, description string) (bool, error) {
	if q.AutoApprove {
		return true, nil
	}
	if q.store == nil {
		return false, fmt.Errorf("%s needs approval but no approval store is configured", tool)
	}

	a, err := q.store.Create(tool, description)
	if err != nil {
		return false, err
	}
	defer q.store.Delete(a.ID) //nolint:errcheck

	if q.emitter != nil {
		q.emitter.Emit(ctx, "mcp:approval-required", a)
	}

	deadline := time.NewTimer(q.Timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(q.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			status, err := q.store.Status(a.ID)
			if err != nil {
				continue
			}
			switch status {
			case storage.ApprovalApproved:
				return true, nil
			case storage.ApprovalRejected:
				return false, fmt.Errorf("%w: %s", ErrRejected, tool)
			}
		case <-deadline.C:
			return false, fmt.Errorf("action timed out after %s: %s", q.Timeout, tool)
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}
