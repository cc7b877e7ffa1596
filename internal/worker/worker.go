// Package worker implements the single background worker that owns the
// engine's state machine so the foreground never touches it directly.
//
// Grounded on the teacher's internal/session/processor.go — its mutex
// guarding a shared map of per-session working state is narrowed here to
// the spec's single-worker, single-run model (internal/engine.Engine
// already serializes its own state behind one mutex, so the worker itself
// owns only the idle/busy polling cadence and the should_stop/state_changed
// flags). The condition-variable-with-timeout the spec calls for is
// expressed idiomatically as a buffered wake channel selected against
// time.After, since Go has no native timed condvar.
package worker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/evmts/smithers/internal/domain"
	"github.com/evmts/smithers/internal/engine"
	"github.com/evmts/smithers/internal/logging"
	"github.com/evmts/smithers/internal/store"
)

const (
	idleWait  = 50 * time.Millisecond
	tickSleep = 5 * time.Millisecond
)

// Worker drives internal/engine.Engine.Tick in a loop against whichever
// session is current, until stopped.
type Worker struct {
	store *store.Store
	eng   *engine.Engine
	log   *logging.Handle

	sessionID    atomic.Int64
	shouldStop   atomic.Bool
	stateChanged atomic.Bool
	wake         chan struct{}
}

// New constructs a Worker. sessionID is the initial session to service;
// SetSession may change it at any time (e.g. once session.Service's
// SwitchSession runs).
func New(st *store.Store, eng *engine.Engine, log *logging.Handle, sessionID int64) *Worker {
	if log == nil {
		log = logging.Nop()
	}
	w := &Worker{store: st, eng: eng, log: log, wake: make(chan struct{}, 1)}
	w.sessionID.Store(sessionID)
	return w
}

// SetSession changes which session the worker services on its next idle
// check, and wakes it immediately so a newly-current session isn't left
// waiting out the idle timeout.
func (w *Worker) SetSession(id int64) {
	w.sessionID.Store(id)
	w.poke()
}

// Stop requests the loop to exit at its next should_stop check and wakes
// it immediately so shutdown isn't delayed by the idle timeout.
func (w *Worker) Stop() {
	w.shouldStop.Store(true)
	w.poke()
}

func (w *Worker) poke() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// ConsumeStateChanged atomically reports and clears whether observable
// state changed since the last call, letting a UI decide whether to
// reload from the store.
func (w *Worker) ConsumeStateChanged() bool {
	return w.stateChanged.Swap(false)
}

// Run executes the worker loop until Stop is called or ctx is done. It
// performs the crash-recovery sweep first.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.recoverCrashedRuns(); err != nil {
		return err
	}

	for {
		if w.shouldStop.Load() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		changed, err := w.eng.Tick(ctx, w.sessionID.Load())
		if err != nil {
			w.log.WithSpan("worker", "tick").Warn("tick_error", "worker", err.Error())
			time.Sleep(idleWait)
			continue
		}
		if changed {
			w.stateChanged.Store(true)
			continue
		}
		if w.eng.Busy() {
			time.Sleep(tickSleep)
			continue
		}

		select {
		case <-w.wake:
		case <-time.After(idleWait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// recoverCrashedRuns marks any run left non-terminal by a prior process as
// `error` with a one-line interruption notice, exactly once per run.
func (w *Worker) recoverCrashedRuns() error {
	runs, err := w.store.ListActiveRuns()
	if err != nil {
		return err
	}
	span := w.log.WithSpan("worker", "recover")
	for _, run := range runs {
		if err := w.store.FailRun(run.ID); err != nil {
			return err
		}
		if _, _, err := w.store.AddMessage(run.SessionID, domain.RoleSystem,
			"Previous agent run was interrupted. Starting fresh.", store.AddMessageOpts{}); err != nil {
			return err
		}
		span.Warn("crash_recovery", "worker", "recovered interrupted run")
	}
	return nil
}
