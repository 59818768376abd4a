package service

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// ─────────────────────────────────────────────────────────────
// EventEmitter — reports run lifecycle events to whoever listens
// ─────────────────────────────────────────────────────────────

// Events emitted by MigrationService.
const (
	EventRunStarted   = "migration:started"
	EventRunCompleted = "migration:completed"
	EventRunSkipped   = "migration:skipped"
)

// EventEmitter receives lifecycle events. The CLI logs them; tests record
// them.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// LogEmitter writes every event as a log line.
type LogEmitter struct {
	Log zerolog.Logger
}

func (l LogEmitter) Emit(_ context.Context, event string, data any) {
	l.Log.Info().Str("event", event).Interface("data", data).Msg("event")
}

// MockEmitter is a test-friendly EventEmitter that records all calls.
type MockEmitter struct {
	mu     sync.Mutex
	Events []EmittedEvent
}

// EmittedEvent holds a single recorded emission for test assertions.
type EmittedEvent struct {
	Event string
	Data  any
}

func (m *MockEmitter) Emit(_ context.Context, event string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, EmittedEvent{Event: event, Data: data})
}

// Names returns the recorded event names in order.
func (m *MockEmitter) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Events))
	for i, e := range m.Events {
		out[i] = e.Event
	}
	return out
}
