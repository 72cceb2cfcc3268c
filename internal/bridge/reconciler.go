package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/twinsync/twinsync/internal/sim"
	"github.com/twinsync/twinsync/internal/translate"
)

// FixedStepper is implemented by adapters whose engine must be switched into
// fixed-step mode for the run and restored to free-running on teardown.
type FixedStepper interface {
	SetFixedStep(ctx context.Context, step time.Duration) error
	SetFreeRunning(ctx context.Context) error
}

// LightSwitcher is implemented by adapters whose engine can disable its own
// traffic-light logic, so the authority world's state is not fought over.
type LightSwitcher interface {
	SwitchOffTrafficLights(ctx context.Context) error
}

// Reconciler owns the bidirectional mirror mapping and executes the per-tick
// synchronization protocol.
//
// The two tables are ownership-disjoint: an actor id appears as a key in at
// most one of them (it originates in exactly one world), and as a value in at
// most one (it mirrors exactly one foreign actor). All mutation happens on
// the single driver goroutine; no locking beyond the teardown once.
type Reconciler struct {
	cfg      Config
	traffic  sim.World
	driving  sim.World
	tr       *translate.Translator
	clock    *Clock
	recorder Recorder

	// trafficToDriving maps traffic-origin actors to their driving mirrors;
	// drivingToTraffic is the reverse ownership.
	trafficToDriving map[sim.ActorID]sim.ActorID
	drivingToTraffic map[sim.ActorID]sim.ActorID

	// Actors whose descriptor has no equivalent in the other world. Once
	// excluded, an id is never mirrored again even if the engine re-reports
	// it as spawned.
	excludedTraffic map[sim.ActorID]bool
	excludedDriving map[sim.ActorID]bool

	events    []Event // scratch, reset each tick
	closeOnce sync.Once
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithRecorder attaches a tick recorder (e.g. the journal).
func WithRecorder(rec Recorder) Option {
	return func(r *Reconciler) { r.recorder = rec }
}

// WithClock substitutes the logical tick clock, for tests that need to
// control tick numbering.
func WithClock(c *Clock) Option {
	return func(r *Reconciler) { r.clock = c }
}

// New creates a Reconciler over the two worlds. cfg must already be
// validated.
func New(cfg Config, traffic, driving sim.World, tr *translate.Translator, opts ...Option) *Reconciler {
	r := &Reconciler{
		cfg:              cfg,
		traffic:          traffic,
		driving:          driving,
		tr:               tr,
		clock:            NewClock(),
		trafficToDriving: make(map[sim.ActorID]sim.ActorID),
		drivingToTraffic: make(map[sim.ActorID]sim.ActorID),
		excludedTraffic:  make(map[sim.ActorID]bool),
		excludedDriving:  make(map[sim.ActorID]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Prepare applies the run-level engine side effects before the first tick:
// the driving engine is switched into fixed-step mode at the configured step
// length, and the non-authoritative world's own traffic-light logic is
// switched off so the propagated state is not immediately overwritten.
func (r *Reconciler) Prepare(ctx context.Context) error {
	if fs, ok := r.driving.(FixedStepper); ok {
		if err := fs.SetFixedStep(ctx, r.cfg.StepLength); err != nil {
			return err
		}
	}

	switch r.cfg.Authority {
	case AuthorityTraffic:
		if ls, ok := r.driving.(LightSwitcher); ok {
			if err := ls.SwitchOffTrafficLights(ctx); err != nil {
				return err
			}
		}
	case AuthorityDriving:
		if ls, ok := r.traffic.(LightSwitcher); ok {
			if err := ls.SwitchOffTrafficLights(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// Tick runs one full reconciliation tick.
//
// The traffic world has already advanced (the Runner steps it); this runs
// the traffic-drives half-pass against its fresh event buffers, advances the
// driving world, then runs the driving-drives half-pass. The two halves are
// strictly sequential: the driving pass must observe the mirrors the traffic
// pass just committed, and vice versa on the next tick.
//
// Per-entity failures are logged and skipped; only connection-level failures
// (or cancellation) return an error and abort the run.
func (r *Reconciler) Tick(ctx context.Context) error {
	seq := r.clock.Next()
	start := time.Now()
	r.events = r.events[:0]

	if err := r.syncTrafficToDriving(ctx); err != nil {
		return err
	}
	if r.cfg.Authority == AuthorityTraffic {
		if err := r.pushTrafficLights(ctx); err != nil {
			return err
		}
	}

	if err := r.driving.Step(ctx); err != nil {
		return err
	}

	if err := r.syncDrivingToTraffic(ctx); err != nil {
		return err
	}
	if r.cfg.Authority == AuthorityDriving {
		if err := r.pushTrafficLights(ctx); err != nil {
			return err
		}
	}

	r.record(ctx, seq, time.Since(start))
	return nil
}

// syncTrafficToDriving is the traffic-drives half-pass: propagate spawns,
// destructions, then full state for every mapped pair into the driving world.
func (r *Reconciler) syncTrafficToDriving(ctx context.Context) error {
	// Ids that are themselves mirrors the bridge spawned into the traffic
	// world. Re-mirroring one of those would create a cycle.
	mirrors := make(map[sim.ActorID]bool, len(r.drivingToTraffic))
	for _, trafficID := range r.drivingToTraffic {
		mirrors[trafficID] = true
	}

	for _, id := range r.traffic.SpawnedSince() {
		if mirrors[id] || r.excludedTraffic[id] {
			continue
		}
		if _, mapped := r.trafficToDriving[id]; mapped {
			continue
		}

		view, err := r.traffic.Actor(ctx, id)
		if err != nil {
			if fatal := r.entityFailure(TrafficToDriving, "read spawned actor", id, err); fatal != nil {
				return fatal
			}
			continue
		}

		desc, ok := r.tr.DrivingDescriptor(view, r.cfg.SyncVehicleColor)
		if !ok {
			// No equivalent blueprint: permanently excluded.
			r.excludedTraffic[id] = true
			r.event(Event{Kind: EventExcluded, Direction: TrafficToDriving, Source: id, Detail: view.TypeID})
			slog.Debug("no driving equivalent, excluding", "actor", id, "type", view.TypeID)
			continue
		}

		pose := r.tr.DrivingPose(view.Pose, view.Extent)
		mirror, err := r.driving.Spawn(ctx, desc, pose)
		if err != nil {
			if fatal := r.entityFailure(TrafficToDriving, "spawn mirror", id, err); fatal != nil {
				return fatal
			}
			continue
		}
		if !mirror.Valid() {
			// One-shot attempt: the engine declined, no retry this tick.
			r.event(Event{Kind: EventSpawnRejected, Direction: TrafficToDriving, Source: id})
			slog.Warn("driving engine rejected spawn", "actor", id, "blueprint", desc.TypeID)
			continue
		}

		r.trafficToDriving[id] = mirror
		r.event(Event{Kind: EventMirrorSpawned, Direction: TrafficToDriving, Source: id, Mirror: mirror})
		slog.Debug("mirror spawned", "direction", TrafficToDriving, "source", id, "mirror", mirror)
	}

	for _, id := range r.traffic.DestroyedSince() {
		delete(r.excludedTraffic, id)

		mirror, mapped := r.trafficToDriving[id]
		if !mapped {
			// Already unmirrored (rejected spawn or excluded type).
			continue
		}
		delete(r.trafficToDriving, id)

		if err := r.driving.Destroy(ctx, mirror); err != nil {
			if fatal := r.entityFailure(TrafficToDriving, "destroy mirror", id, err); fatal != nil {
				return fatal
			}
		}
		r.event(Event{Kind: EventMirrorDestroyed, Direction: TrafficToDriving, Source: id, Mirror: mirror})
		slog.Debug("mirror destroyed", "direction", TrafficToDriving, "source", id, "mirror", mirror)
	}

	for id, mirror := range r.trafficToDriving {
		view, err := r.traffic.Actor(ctx, id)
		if err != nil {
			// Stale source: treated as already destroyed, the pair is
			// removed when the engine reports the destruction.
			if fatal := r.entityFailure(TrafficToDriving, "read actor state", id, err); fatal != nil {
				return fatal
			}
			continue
		}

		pose := r.tr.DrivingPose(view.Pose, view.Extent)
		if err := r.driving.SetTransform(ctx, mirror, pose); err != nil {
			if fatal := r.entityFailure(TrafficToDriving, "set transform", id, err); fatal != nil {
				return fatal
			}
			continue
		}

		if r.cfg.SyncVehicleLights && view.HasLights {
			mirrorView, err := r.driving.Actor(ctx, mirror)
			if err != nil {
				if fatal := r.entityFailure(TrafficToDriving, "read mirror lights", id, err); fatal != nil {
					return fatal
				}
				continue
			}
			lights, changed := translate.DrivingLights(sim.Lights(mirrorView.Lights), sim.Signals(view.Lights))
			if changed {
				if err := r.driving.SetLights(ctx, mirror, uint32(lights)); err != nil {
					if fatal := r.entityFailure(TrafficToDriving, "set lights", id, err); fatal != nil {
						return fatal
					}
				}
			}
		}
	}

	return nil
}

// syncDrivingToTraffic is the driving-drives half-pass, the mirror image of
// syncTrafficToDriving.
func (r *Reconciler) syncDrivingToTraffic(ctx context.Context) error {
	mirrors := make(map[sim.ActorID]bool, len(r.trafficToDriving))
	for _, drivingID := range r.trafficToDriving {
		mirrors[drivingID] = true
	}

	for _, id := range r.driving.SpawnedSince() {
		if mirrors[id] || r.excludedDriving[id] {
			continue
		}
		if _, mapped := r.drivingToTraffic[id]; mapped {
			continue
		}

		view, err := r.driving.Actor(ctx, id)
		if err != nil {
			if fatal := r.entityFailure(DrivingToTraffic, "read spawned actor", id, err); fatal != nil {
				return fatal
			}
			continue
		}

		desc, ok := r.tr.TrafficDescriptor(view, r.cfg.SyncVehicleColor)
		if !ok {
			r.excludedDriving[id] = true
			r.event(Event{Kind: EventExcluded, Direction: DrivingToTraffic, Source: id, Detail: view.TypeID})
			slog.Debug("no traffic equivalent, excluding", "actor", id, "type", view.TypeID)
			continue
		}

		pose := r.tr.TrafficPose(view.Pose, view.Extent)
		mirror, err := r.traffic.Spawn(ctx, desc, pose)
		if err != nil {
			if fatal := r.entityFailure(DrivingToTraffic, "spawn mirror", id, err); fatal != nil {
				return fatal
			}
			continue
		}
		if !mirror.Valid() {
			r.event(Event{Kind: EventSpawnRejected, Direction: DrivingToTraffic, Source: id})
			slog.Warn("traffic engine rejected spawn", "actor", id, "vtype", desc.TypeID)
			continue
		}

		r.drivingToTraffic[id] = mirror
		r.event(Event{Kind: EventMirrorSpawned, Direction: DrivingToTraffic, Source: id, Mirror: mirror})
		slog.Debug("mirror spawned", "direction", DrivingToTraffic, "source", id, "mirror", mirror)
	}

	for _, id := range r.driving.DestroyedSince() {
		delete(r.excludedDriving, id)

		mirror, mapped := r.drivingToTraffic[id]
		if !mapped {
			continue
		}
		delete(r.drivingToTraffic, id)

		if err := r.traffic.Destroy(ctx, mirror); err != nil {
			if fatal := r.entityFailure(DrivingToTraffic, "destroy mirror", id, err); fatal != nil {
				return fatal
			}
		}
		r.event(Event{Kind: EventMirrorDestroyed, Direction: DrivingToTraffic, Source: id, Mirror: mirror})
		slog.Debug("mirror destroyed", "direction", DrivingToTraffic, "source", id, "mirror", mirror)
	}

	for id, mirror := range r.drivingToTraffic {
		view, err := r.driving.Actor(ctx, id)
		if err != nil {
			if fatal := r.entityFailure(DrivingToTraffic, "read actor state", id, err); fatal != nil {
				return fatal
			}
			continue
		}

		pose := r.tr.TrafficPose(view.Pose, view.Extent)
		if err := r.traffic.SetTransform(ctx, mirror, pose); err != nil {
			if fatal := r.entityFailure(DrivingToTraffic, "set transform", id, err); fatal != nil {
				return fatal
			}
			continue
		}

		if r.cfg.SyncVehicleLights && view.HasLights {
			mirrorView, err := r.traffic.Actor(ctx, mirror)
			if err != nil {
				if fatal := r.entityFailure(DrivingToTraffic, "read mirror signals", id, err); fatal != nil {
					return fatal
				}
				continue
			}
			signals, changed := translate.TrafficSignals(sim.Signals(mirrorView.Lights), sim.Lights(view.Lights))
			if changed {
				if err := r.traffic.SetLights(ctx, mirror, uint32(signals)); err != nil {
					if fatal := r.entityFailure(DrivingToTraffic, "set signals", id, err); fatal != nil {
						return fatal
					}
				}
			}
		}
	}

	return nil
}

// pushTrafficLights propagates the authority world's traffic-light state to
// the other world, over the fresh intersection of both registries. Called
// only on the authority's half of the tick.
func (r *Reconciler) pushTrafficLights(ctx context.Context) error {
	trafficIDs, err := r.traffic.TrafficLightIDs(ctx)
	if err != nil {
		return err
	}
	drivingIDs, err := r.driving.TrafficLightIDs(ctx)
	if err != nil {
		return err
	}

	inDriving := make(map[sim.LandmarkID]bool, len(drivingIDs))
	for _, id := range drivingIDs {
		inDriving[id] = true
	}

	for _, id := range trafficIDs {
		if !inDriving[id] {
			continue
		}

		switch r.cfg.Authority {
		case AuthorityTraffic:
			state, err := r.traffic.TrafficLightState(ctx, id)
			if err != nil {
				if fatal := r.landmarkFailure(TrafficToDriving, id, err); fatal != nil {
					return fatal
				}
				continue
			}
			phase := translate.DrivingPhase(linkStateOf(state))
			if err := r.driving.SetTrafficLightState(ctx, id, phase.String()); err != nil {
				if fatal := r.landmarkFailure(TrafficToDriving, id, err); fatal != nil {
					return fatal
				}
				continue
			}
			r.event(Event{Kind: EventLightPushed, Direction: TrafficToDriving, Landmark: id, Detail: phase.String()})

		case AuthorityDriving:
			state, err := r.driving.TrafficLightState(ctx, id)
			if err != nil {
				if fatal := r.landmarkFailure(DrivingToTraffic, id, err); fatal != nil {
					return fatal
				}
				continue
			}
			link := translate.TrafficLinkState(translate.ParsePhase(state))
			if err := r.traffic.SetTrafficLightState(ctx, id, string(link)); err != nil {
				if fatal := r.landmarkFailure(DrivingToTraffic, id, err); fatal != nil {
					return fatal
				}
				continue
			}
			r.event(Event{Kind: EventLightPushed, Direction: DrivingToTraffic, Landmark: id, Detail: string(link)})
		}
	}

	return nil
}

// Close tears the bridge down exactly once: restore the driving engine to
// free-running mode, destroy every mirror in both directions ignoring
// individual failures, then close both adapters.
func (r *Reconciler) Close(ctx context.Context) {
	r.closeOnce.Do(func() {
		if fs, ok := r.driving.(FixedStepper); ok {
			if err := fs.SetFreeRunning(ctx); err != nil {
				slog.Warn("restore free-running mode failed", "error", err)
			}
		}

		for _, mirror := range r.trafficToDriving {
			if err := r.driving.Destroy(ctx, mirror); err != nil {
				slog.Warn("teardown destroy failed", "world", r.driving.Name(), "actor", mirror, "error", err)
			}
		}
		for _, mirror := range r.drivingToTraffic {
			if err := r.traffic.Destroy(ctx, mirror); err != nil {
				slog.Warn("teardown destroy failed", "world", r.traffic.Name(), "actor", mirror, "error", err)
			}
		}
		r.trafficToDriving = make(map[sim.ActorID]sim.ActorID)
		r.drivingToTraffic = make(map[sim.ActorID]sim.ActorID)

		if err := r.traffic.Close(); err != nil {
			slog.Warn("close failed", "world", r.traffic.Name(), "error", err)
		}
		if err := r.driving.Close(); err != nil {
			slog.Warn("close failed", "world", r.driving.Name(), "error", err)
		}
	})
}

// MirroredCount returns the number of live mirror pairs across both tables.
func (r *Reconciler) MirroredCount() int {
	return len(r.trafficToDriving) + len(r.drivingToTraffic)
}

// DrivingMirror returns the driving-world mirror of a traffic actor, if any.
// Used by the spectator follower to locate the ego vehicle's mirror.
func (r *Reconciler) DrivingMirror(id sim.ActorID) (sim.ActorID, bool) {
	mirror, ok := r.trafficToDriving[id]
	return mirror, ok
}

// TrafficMirror returns the traffic-world mirror of a driving actor, if any.
func (r *Reconciler) TrafficMirror(id sim.ActorID) (sim.ActorID, bool) {
	mirror, ok := r.drivingToTraffic[id]
	return mirror, ok
}

// Clock returns the logical tick clock.
func (r *Reconciler) Clock() *Clock { return r.clock }

// entityFailure classifies a per-entity error: connection loss and
// cancellation are returned as fatal, everything else is logged and absorbed
// so the rest of the tick's propagation still runs.
func (r *Reconciler) entityFailure(dir Direction, op string, id sim.ActorID, err error) error {
	if sim.IsEngineUnavailable(err) || ctxErr(err) {
		return err
	}
	if sim.IsStaleReference(err) {
		slog.Debug("stale actor, skipping", "direction", dir, "op", op, "actor", id)
		return nil
	}
	slog.Warn("entity propagation failed", "direction", dir, "op", op, "actor", id, "error", err)
	return nil
}

func (r *Reconciler) landmarkFailure(dir Direction, id sim.LandmarkID, err error) error {
	if sim.IsEngineUnavailable(err) || ctxErr(err) {
		return err
	}
	slog.Warn("traffic-light propagation failed", "direction", dir, "landmark", id, "error", err)
	return nil
}

func (r *Reconciler) event(ev Event) {
	r.events = append(r.events, ev)
}

func (r *Reconciler) record(ctx context.Context, seq int64, elapsed time.Duration) {
	if r.recorder == nil {
		return
	}
	rec := TickRecord{
		Seq:      seq,
		Elapsed:  elapsed,
		Mirrored: r.MirroredCount(),
		Events:   append([]Event(nil), r.events...),
	}
	if err := r.recorder.RecordTick(ctx, rec); err != nil {
		slog.Warn("tick recording failed", "seq", seq, "error", err)
	}
}

func linkStateOf(state string) sim.LinkState {
	if state == "" {
		return sim.LinkUnknown
	}
	return sim.LinkState(state[0])
}

func ctxErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
