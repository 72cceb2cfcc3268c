package cli

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twinsync/twinsync/internal/bridge"
	"github.com/twinsync/twinsync/internal/catalog"
	"github.com/twinsync/twinsync/internal/frame"
	"github.com/twinsync/twinsync/internal/sim"
	"github.com/twinsync/twinsync/internal/translate"
	"github.com/twinsync/twinsync/internal/worldtest"
)

type followStub struct {
	calls []sim.ActorID
	err   error
}

func (s *followStub) Follow(ctx context.Context, id sim.ActorID) error {
	s.calls = append(s.calls, id)
	return s.err
}

type followWorlds struct {
	traffic *worldtest.Fake
	driving *worldtest.Fake
	rec     *bridge.Reconciler
}

func newFollowWorlds(t *testing.T) *followWorlds {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)

	w := &followWorlds{
		traffic: worldtest.New("traffic"),
		driving: worldtest.New("driving"),
	}
	cfg := bridge.Config{Authority: bridge.AuthorityNone, StepLength: 50 * time.Millisecond}
	w.rec = bridge.New(cfg, w.traffic, w.driving, translate.New(cat, sim.Vec3{}))
	return w
}

func (w *followWorlds) spawnEgo(t *testing.T, ctx context.Context) {
	t.Helper()
	w.traffic.QueueSpawn(sim.EntityView{
		ID:     "hero",
		TypeID: "vehicle.audi.a2",
		Extent: sim.Extent{X: 2.3, Y: 1.0, Z: 0.75},
	})
	require.NoError(t, w.traffic.Step(ctx))
	require.NoError(t, w.rec.Tick(ctx))
}

func TestEgoFollower_FollowsMirrorOnceItAppears(t *testing.T) {
	ctx := t.Context()
	w := newFollowWorlds(t)
	stub := &followStub{}
	var frames frame.Buffer
	f := newEgoFollower("hero", w.rec, stub, &frames)

	// No mirror yet: nothing to follow.
	f.tick(ctx)
	assert.Empty(t, stub.calls)

	w.spawnEgo(t, ctx)
	f.tick(ctx)
	require.Equal(t, []sim.ActorID{"driving-1"}, stub.calls)

	// Steady state re-issues nothing.
	f.tick(ctx)
	assert.Len(t, stub.calls, 1)
}

func TestEgoFollower_RetriesAfterFailure(t *testing.T) {
	ctx := t.Context()
	w := newFollowWorlds(t)
	stub := &followStub{err: sim.NewStaleReference("driving", "driving-1")}
	var frames frame.Buffer
	f := newEgoFollower("hero", w.rec, stub, &frames)

	w.spawnEgo(t, ctx)
	f.tick(ctx)
	require.Len(t, stub.calls, 1)

	stub.err = nil
	f.tick(ctx)
	require.Len(t, stub.calls, 2, "a failed follow is retried next tick")

	f.tick(ctx)
	assert.Len(t, stub.calls, 2)
}

func TestEgoFollower_RefollowsAFreshMirror(t *testing.T) {
	ctx := t.Context()
	w := newFollowWorlds(t)
	stub := &followStub{}
	var frames frame.Buffer
	f := newEgoFollower("hero", w.rec, stub, &frames)

	w.spawnEgo(t, ctx)
	f.tick(ctx)
	require.Equal(t, []sim.ActorID{"driving-1"}, stub.calls)

	// Ego leaves and comes back; its mirror gets a new id.
	w.traffic.QueueDestroy("hero")
	require.NoError(t, w.traffic.Step(ctx))
	require.NoError(t, w.rec.Tick(ctx))
	f.tick(ctx)
	assert.Len(t, stub.calls, 1)

	w.spawnEgo(t, ctx)
	f.tick(ctx)
	assert.Equal(t, []sim.ActorID{"driving-1", "driving-2"}, stub.calls)
}

func TestEgoFollower_SurfacesNewFramesOnly(t *testing.T) {
	ctx := t.Context()
	w := newFollowWorlds(t)
	stub := &followStub{}
	var frames frame.Buffer
	f := newEgoFollower("hero", w.rec, stub, &frames)

	frames.Store(frame.Frame{Seq: 1, Width: 2, Height: 2})
	f.tick(ctx)
	assert.Equal(t, int64(1), f.lastSeq)

	f.tick(ctx)
	assert.Equal(t, int64(1), f.lastSeq)

	frames.Store(frame.Frame{Seq: 2, Width: 2, Height: 2})
	f.tick(ctx)
	assert.Equal(t, int64(2), f.lastSeq)
}
