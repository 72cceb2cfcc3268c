package cli

import (
	"context"
	"log/slog"

	"github.com/twinsync/twinsync/internal/bridge"
	"github.com/twinsync/twinsync/internal/frame"
	"github.com/twinsync/twinsync/internal/sim"
)

// spectatorWorld is the slice of the driving adapter the follower needs.
type spectatorWorld interface {
	Follow(ctx context.Context, id sim.ActorID) error
}

// egoFollower chases the ego vehicle across worlds. The ego lives in the
// traffic world, so its driving-world id only exists once the bridge has
// mirrored it; after each tick the follower resolves the current mirror,
// re-issues the spectator follow whenever the mirror id changes, and
// surfaces newly captured camera frames.
type egoFollower struct {
	ego     sim.ActorID
	rec     *bridge.Reconciler
	driving spectatorWorld
	frames  *frame.Buffer

	followed sim.ActorID
	lastSeq  int64
}

func newEgoFollower(ego sim.ActorID, rec *bridge.Reconciler, driving spectatorWorld, frames *frame.Buffer) *egoFollower {
	return &egoFollower{ego: ego, rec: rec, driving: driving, frames: frames}
}

// tick is the Runner's post-tick hook. Cosmetic: failures are logged and
// retried on a later tick, never propagated into the loop.
func (f *egoFollower) tick(ctx context.Context) {
	mirror, ok := f.rec.DrivingMirror(f.ego)
	switch {
	case !ok:
		// No mirror right now (not spawned yet, rejected, or destroyed).
		// Re-follow whenever one appears.
		f.followed = sim.InvalidActorID
	case mirror != f.followed:
		if err := f.driving.Follow(ctx, mirror); err != nil {
			slog.Warn("spectator follow failed", "ego", f.ego, "mirror", mirror, "error", err)
		} else {
			f.followed = mirror
			slog.Info("spectator following ego mirror", "ego", f.ego, "mirror", mirror)
		}
	}

	if fr, ok := f.frames.Latest(); ok && fr.Seq > f.lastSeq {
		f.lastSeq = fr.Seq
		slog.Debug("camera frame", "seq", fr.Seq, "width", fr.Width, "height", fr.Height)
	}
}
