package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twinsync/twinsync/internal/sim"
	"github.com/twinsync/twinsync/internal/worldtest"
)

// fastTime is an injectable time source: now() advances by a scripted tick
// cost per call pair, sleep records requested durations without blocking.
type fastTime struct {
	t       time.Time
	advance time.Duration
	slept   []time.Duration
}

func (f *fastTime) now() time.Time {
	f.t = f.t.Add(f.advance)
	return f.t
}

func (f *fastTime) sleep(ctx context.Context, d time.Duration) {
	f.slept = append(f.slept, d)
}

func newRunnerUnderTest(t *testing.T, ticks int, opts ...RunnerOption) (*Runner, *Reconciler, *worldtest.Fake) {
	t.Helper()
	rec, traffic, _, _ := testWorlds(t, testConfig())

	remaining := ticks
	base := []RunnerOption{
		WithPending(func(ctx context.Context) (bool, error) {
			if remaining == 0 {
				return false, nil
			}
			remaining--
			return true, nil
		}),
	}
	r := NewRunner(rec, traffic, testConfig().StepLength, append(base, opts...)...)
	return r, rec, traffic
}

func TestRunner_RunsUntilNoPendingWork(t *testing.T) {
	ft := &fastTime{advance: time.Millisecond}
	r, rec, traffic := newRunnerUnderTest(t, 5, withTimeSource(ft.now, ft.sleep))

	require.Equal(t, StateIdle, r.State())
	err := r.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 5, traffic.Steps())
	assert.Equal(t, int64(5), rec.Clock().Current())
	assert.Equal(t, StateClosed, r.State())
	assert.Equal(t, 1, traffic.CloseCount(), "teardown ran")
}

func TestRunner_CancellationIsGracefulAndCheckedAtTickBoundary(t *testing.T) {
	ft := &fastTime{advance: time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())

	var ticksSeen int
	r, rec, _ := newRunnerUnderTest(t, 100,
		withTimeSource(ft.now, ft.sleep),
		WithOnTick(func(ctx context.Context) {
			ticksSeen++
			if ticksSeen == 3 {
				cancel()
			}
		}),
	)

	err := r.Run(ctx)

	require.NoError(t, err, "cancellation is a graceful shutdown, not an error")
	assert.Equal(t, 3, ticksSeen, "the in-flight tick completes, the next never starts")
	assert.Equal(t, int64(3), rec.Clock().Current())
	assert.Equal(t, StateClosed, r.State())
}

func TestRunner_EngineLossAbortsWithError(t *testing.T) {
	ft := &fastTime{advance: time.Millisecond}
	r, _, traffic := newRunnerUnderTest(t, 100, withTimeSource(ft.now, ft.sleep))

	traffic.FailStep(errors.New("connection reset"))
	err := r.Run(context.Background())

	require.Error(t, err)
	assert.True(t, sim.IsEngineUnavailable(err))
	assert.Equal(t, StateClosed, r.State(), "teardown still runs on the error path")
	assert.Equal(t, 1, traffic.CloseCount())
}

func TestRunner_PacingSleepsTheUnspentBudget(t *testing.T) {
	// Each now() call advances 10ms; a loop iteration calls now() twice, so
	// the measured tick cost is 10ms against a 50ms step.
	ft := &fastTime{advance: 10 * time.Millisecond}
	r, _, _ := newRunnerUnderTest(t, 3, withTimeSource(ft.now, ft.sleep))

	require.NoError(t, r.Run(context.Background()))

	require.Len(t, ft.slept, 3)
	for _, d := range ft.slept {
		assert.Equal(t, 40*time.Millisecond, d)
	}
}

func TestRunner_OverrunSkipsSleepNotTicks(t *testing.T) {
	// 60ms per now() call: every tick blows the 50ms budget, so the loop
	// never sleeps but still runs every tick.
	ft := &fastTime{advance: 60 * time.Millisecond}
	r, rec, _ := newRunnerUnderTest(t, 4, withTimeSource(ft.now, ft.sleep))

	require.NoError(t, r.Run(context.Background()))

	assert.Empty(t, ft.slept, "no sleep when over budget")
	assert.Equal(t, int64(4), rec.Clock().Current(), "ticks are never skipped")
}

func TestRunner_PendingPredicateErrorAborts(t *testing.T) {
	rec, traffic, _, _ := testWorlds(t, testConfig())
	boom := errors.New("pending probe failed")
	r := NewRunner(rec, traffic, testConfig().StepLength,
		WithPending(func(ctx context.Context) (bool, error) { return false, boom }),
	)

	err := r.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateClosed, r.State())
}

// fixedStepWorld wraps a Fake with FixedStepper and records mode switches.
type fixedStepWorld struct {
	*worldtest.Fake
	fixed      []time.Duration
	free       int
	prepareErr error
}

func (w *fixedStepWorld) SetFixedStep(ctx context.Context, step time.Duration) error {
	if w.prepareErr != nil {
		return w.prepareErr
	}
	w.fixed = append(w.fixed, step)
	return nil
}

func (w *fixedStepWorld) SetFreeRunning(ctx context.Context) error {
	w.free++
	return nil
}

func TestRunner_PrepareSetsFixedStepAndTeardownRestores(t *testing.T) {
	tr := testTranslator(t)
	traffic := worldtest.New("traffic")
	driving := &fixedStepWorld{Fake: worldtest.New("driving")}
	rec := New(testConfig(), traffic, driving, tr)

	r := NewRunner(rec, traffic, testConfig().StepLength,
		WithPending(func(ctx context.Context) (bool, error) { return false, nil }),
	)
	require.NoError(t, r.Run(context.Background()))

	require.Len(t, driving.fixed, 1)
	assert.Equal(t, testConfig().StepLength, driving.fixed[0])
	assert.Equal(t, 1, driving.free, "free-running mode restored on teardown")
}

func TestRunner_PrepareFailureStillTearsDown(t *testing.T) {
	tr := testTranslator(t)
	traffic := worldtest.New("traffic")
	driving := &fixedStepWorld{Fake: worldtest.New("driving"), prepareErr: errors.New("settings rejected")}
	rec := New(testConfig(), traffic, driving, tr)

	r := NewRunner(rec, traffic, testConfig().StepLength)
	err := r.Run(context.Background())

	require.Error(t, err)
	assert.Equal(t, StateClosed, r.State())
	assert.Equal(t, 1, traffic.CloseCount(), "teardown is safe after partial init")
	assert.Equal(t, 1, driving.CloseCount())
}
