// Package events publishes proposal lifecycle notifications.
//
// Emission is best effort: the treasury logs and drops emitter errors, so an
// unreachable broker never rolls back or blocks a state change.
package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/yashannadate/stellar-pay/pkg/contracts"
)

// Emitter delivers lifecycle events.
type Emitter interface {
	Emit(ctx context.Context, ev contracts.Event) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Emit(context.Context, contracts.Event) error { return nil }

// LogEmitter writes each event as a structured log line.
type LogEmitter struct {
	logger *slog.Logger
}

func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger.With("component", "events")}
}

func (e *LogEmitter) Emit(ctx context.Context, ev contracts.Event) error {
	attrs := []any{
		"event_id", ev.ID,
		"kind", string(ev.Kind),
		"proposal_id", ev.ProposalID,
		"actor", string(ev.Actor),
	}
	if ev.Kind == contracts.EventExecuted {
		attrs = append(attrs, "payee_count", ev.PayeeCount)
	}
	e.logger.InfoContext(ctx, "proposal event", attrs...)
	return nil
}

// Recorder keeps events in memory, in emission order.
type Recorder struct {
	mu     sync.Mutex
	events []contracts.Event
}

func (r *Recorder) Emit(ctx context.Context, ev contracts.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a snapshot of recorded events.
func (r *Recorder) Events() []contracts.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]contracts.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Fanout emits to every emitter and joins their errors.
type Fanout []Emitter

func (f Fanout) Emit(ctx context.Context, ev contracts.Event) error {
	var errs []error
	for _, e := range f {
		if err := e.Emit(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
