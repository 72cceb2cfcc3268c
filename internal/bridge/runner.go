package bridge

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/twinsync/twinsync/internal/sim"
)

// State is the Runner lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateClosingOnSignal
	StateClosingOnError
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateClosingOnSignal:
		return "closing_on_signal"
	case StateClosingOnError:
		return "closing_on_error"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// teardownTimeout bounds the teardown path when the run context is already
// cancelled: mirror destruction still gets a live context to work with.
const teardownTimeout = 10 * time.Second

// Runner drives the bridge at a fixed real-time cadence.
//
// Each iteration: check the continuation predicate, advance the traffic
// world's native step, run one reconciliation tick, then sleep whatever
// remains of the step budget. Overruns are absorbed by the next tick
// starting late; ticks are never skipped. Cancellation is cooperative and
// observed only at tick boundaries, so no reconciliation pass is ever left
// half-applied.
type Runner struct {
	rec     *Reconciler
	traffic sim.World
	step    time.Duration

	// pending is the loop continuation predicate: keep running while the
	// traffic world reports remaining work. nil means run until cancelled.
	pending func(ctx context.Context) (bool, error)

	// onTick runs after each completed tick; cosmetic hooks (spectator
	// follow, camera capture) attach here and cannot fail the loop.
	onTick func(ctx context.Context)

	state atomic.Int32

	// Injectable time sources for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithPending sets the loop continuation predicate.
func WithPending(fn func(ctx context.Context) (bool, error)) RunnerOption {
	return func(r *Runner) { r.pending = fn }
}

// WithOnTick attaches a post-tick hook.
func WithOnTick(fn func(ctx context.Context)) RunnerOption {
	return func(r *Runner) { r.onTick = fn }
}

// withTimeSource overrides wall-clock pacing; tests only.
func withTimeSource(now func() time.Time, sleep func(ctx context.Context, d time.Duration)) RunnerOption {
	return func(r *Runner) {
		r.now = now
		r.sleep = sleep
	}
}

// NewRunner creates a Runner. traffic is the world the driver advances
// before each reconciliation tick; the driving world is stepped inside
// Reconciler.Tick between the two half-passes.
func NewRunner(rec *Reconciler, traffic sim.World, step time.Duration, opts ...RunnerOption) *Runner {
	r := &Runner{
		rec:     rec,
		traffic: traffic,
		step:    step,
		now:     time.Now,
		sleep:   sleepCtx,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns the current lifecycle state.
func (r *Runner) State() State {
	return State(r.state.Load())
}

// Run executes the loop until the continuation predicate reports no more
// work, the context is cancelled, or a connection-level failure occurs.
// Teardown runs exactly once on every exit path, including a Prepare
// failure after partial initialization.
//
// Returns nil on natural completion or cancellation; cancellation is a
// graceful shutdown, not an error.
func (r *Runner) Run(ctx context.Context) error {
	r.state.Store(int32(StateRunning))
	defer r.teardown()

	if err := r.rec.Prepare(ctx); err != nil {
		r.state.Store(int32(StateClosingOnError))
		return err
	}

	slog.Info("bridge running", "step", r.step)

	for {
		// Cancellation is checked only here, at the tick boundary.
		if ctx.Err() != nil {
			slog.Info("cancelled, shutting down")
			r.state.Store(int32(StateClosingOnSignal))
			return nil
		}

		if r.pending != nil {
			more, err := r.pending(ctx)
			if err != nil {
				r.state.Store(int32(StateClosingOnError))
				return err
			}
			if !more {
				slog.Info("traffic simulation finished")
				r.state.Store(int32(StateClosingOnSignal))
				return nil
			}
		}

		start := r.now()

		if err := r.traffic.Step(ctx); err != nil {
			if ctxErr(err) {
				r.state.Store(int32(StateClosingOnSignal))
				return nil
			}
			r.state.Store(int32(StateClosingOnError))
			return err
		}

		if err := r.rec.Tick(ctx); err != nil {
			if ctxErr(err) {
				r.state.Store(int32(StateClosingOnSignal))
				return nil
			}
			r.state.Store(int32(StateClosingOnError))
			return err
		}

		if r.onTick != nil {
			r.onTick(ctx)
		}

		// Hold real-time cadence: sleep the unspent step budget. An
		// overrun simply starts the next tick late.
		if elapsed := r.now().Sub(start); elapsed < r.step {
			r.sleep(ctx, r.step-elapsed)
		}
	}
}

// teardown runs the exactly-once close path with a bounded fresh context,
// since the run context is typically already cancelled by the time we get
// here.
func (r *Runner) teardown() {
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()

	r.rec.Close(ctx)
	r.state.Store(int32(StateClosed))
	slog.Info("bridge closed")
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
