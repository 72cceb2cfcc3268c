// Package worldtest provides a scriptable in-memory sim.World for tests.
//
// Tests queue spawns and destroys before a step; Step publishes them exactly
// the way a real adapter would, including reporting bridge-spawned mirrors in
// the next step's spawned list. Failure injection covers spawn rejection,
// stale reads, and forced connection loss.
package worldtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/twinsync/twinsync/internal/sim"
)

// Fake is a deterministic in-memory world.
//
// All methods are safe for concurrent use, though the bridge only ever calls
// them from its single driver goroutine.
type Fake struct {
	mu sync.Mutex

	name   string
	nextID int

	actors map[sim.ActorID]sim.EntityView
	lights map[sim.LandmarkID]string

	// Queued events, published on the next Step.
	pendingSpawn   []sim.EntityView
	pendingDestroy []sim.ActorID

	// Buffers for the just-completed step.
	spawned   []sim.ActorID
	destroyed []sim.ActorID

	// Failure injection.
	rejectSpawns int
	stale        map[sim.ActorID]bool
	stepErr      error

	// Recorded calls.
	destroyCalls  []sim.ActorID
	spawnCalls    []sim.Descriptor
	lightWrites   map[sim.LandmarkID][]string
	setLights     map[sim.ActorID]uint32
	setTransforms map[sim.ActorID]sim.Pose
	steps         int
	pending       int
	closed        int
}

// New creates a Fake named name. Actor ids are "<name>-1", "<name>-2", ...
func New(name string) *Fake {
	return &Fake{
		name:          name,
		actors:        make(map[sim.ActorID]sim.EntityView),
		lights:        make(map[sim.LandmarkID]string),
		stale:         make(map[sim.ActorID]bool),
		lightWrites:   make(map[sim.LandmarkID][]string),
		setLights:     make(map[sim.ActorID]uint32),
		setTransforms: make(map[sim.ActorID]sim.Pose),
	}
}

// Name implements sim.World.
func (f *Fake) Name() string { return f.name }

// QueueSpawn schedules an engine-native spawn for the next Step and returns
// the id it will appear under.
func (f *Fake) QueueSpawn(view sim.EntityView) sim.ActorID {
	f.mu.Lock()
	defer f.mu.Unlock()
	if view.ID == sim.InvalidActorID {
		view.ID = f.allocID()
	}
	f.pendingSpawn = append(f.pendingSpawn, view)
	return view.ID
}

// QueueDestroy schedules an engine-native destruction for the next Step.
func (f *Fake) QueueDestroy(id sim.ActorID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pendingDestroy = append(f.pendingDestroy, id)
}

// UpdateActor overwrites a live actor's view in place without generating a
// spawn event; simulates engine-native movement and light changes.
func (f *Fake) UpdateActor(view sim.EntityView) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.actors[view.ID]; ok {
		f.actors[view.ID] = view
	}
}

// RejectNextSpawns makes the next n Spawn calls return the Invalid sentinel.
func (f *Fake) RejectNextSpawns(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejectSpawns = n
}

// MarkStale makes Actor return a stale-reference error for id without
// removing it from the world.
func (f *Fake) MarkStale(id sim.ActorID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stale[id] = true
}

// FailStep makes every subsequent Step return err (connection loss).
func (f *Fake) FailStep(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stepErr = err
}

// SetTrafficLight seeds or overwrites a landmark's state directly.
func (f *Fake) SetTrafficLight(id sim.LandmarkID, state string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lights[id] = state
}

// SetPending sets the value reported by Pending.
func (f *Fake) SetPending(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = n
}

// Pending reports scripted remaining work, the loop continuation predicate.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending
}

// Step implements sim.World: publish queued events as this step's buffers.
func (f *Fake) Step(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stepErr != nil {
		return sim.NewEngineUnavailable(f.name, f.stepErr)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	f.steps++
	f.spawned = f.spawned[:0]
	f.destroyed = f.destroyed[:0]

	for _, view := range f.pendingSpawn {
		f.actors[view.ID] = view
		f.spawned = append(f.spawned, view.ID)
	}
	f.pendingSpawn = nil

	for _, id := range f.pendingDestroy {
		if _, ok := f.actors[id]; ok {
			delete(f.actors, id)
			f.destroyed = append(f.destroyed, id)
		}
	}
	f.pendingDestroy = nil

	return nil
}

// SpawnedSince implements sim.World.
func (f *Fake) SpawnedSince() []sim.ActorID {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sim.ActorID, len(f.spawned))
	copy(out, f.spawned)
	return out
}

// DestroyedSince implements sim.World.
func (f *Fake) DestroyedSince() []sim.ActorID {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sim.ActorID, len(f.destroyed))
	copy(out, f.destroyed)
	return out
}

// Actor implements sim.World.
func (f *Fake) Actor(ctx context.Context, id sim.ActorID) (sim.EntityView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stale[id] {
		return sim.EntityView{}, sim.NewStaleReference(f.name, id)
	}
	view, ok := f.actors[id]
	if !ok {
		return sim.EntityView{}, sim.NewStaleReference(f.name, id)
	}
	return view, nil
}

// Spawn implements sim.World. Bridge-spawned actors are reported in the next
// step's spawned list, matching real engine event streams.
func (f *Fake) Spawn(ctx context.Context, desc sim.Descriptor, pose sim.Pose) (sim.ActorID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.spawnCalls = append(f.spawnCalls, desc)
	if f.rejectSpawns > 0 {
		f.rejectSpawns--
		return sim.InvalidActorID, nil
	}

	id := f.allocID()
	view := sim.EntityView{
		ID:     id,
		TypeID: desc.TypeID,
		Class:  desc.Class,
		Pose:   pose,
		Color:  desc.Color,
	}
	f.actors[id] = view
	f.pendingSpawn = append(f.pendingSpawn, view)
	return id, nil
}

// Destroy implements sim.World. Unknown ids are a no-op.
func (f *Fake) Destroy(ctx context.Context, id sim.ActorID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyCalls = append(f.destroyCalls, id)
	delete(f.actors, id)
	return nil
}

// SetTransform implements sim.World.
func (f *Fake) SetTransform(ctx context.Context, id sim.ActorID, pose sim.Pose) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	view, ok := f.actors[id]
	if !ok {
		return sim.NewStaleReference(f.name, id)
	}
	view.Pose = pose
	f.actors[id] = view
	f.setTransforms[id] = pose
	return nil
}

// SetLights implements sim.World.
func (f *Fake) SetLights(ctx context.Context, id sim.ActorID, lights uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.actors[id]; !ok {
		return sim.NewStaleReference(f.name, id)
	}
	f.setLights[id] = lights
	return nil
}

// TrafficLightIDs implements sim.World.
func (f *Fake) TrafficLightIDs(ctx context.Context) ([]sim.LandmarkID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sim.LandmarkID, 0, len(f.lights))
	for id := range f.lights {
		out = append(out, id)
	}
	return out, nil
}

// TrafficLightState implements sim.World.
func (f *Fake) TrafficLightState(ctx context.Context, id sim.LandmarkID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.lights[id]
	if !ok {
		return "", fmt.Errorf("unknown landmark %s", id)
	}
	return state, nil
}

// SetTrafficLightState implements sim.World and records every write.
func (f *Fake) SetTrafficLightState(ctx context.Context, id sim.LandmarkID, state string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lights[id] = state
	f.lightWrites[id] = append(f.lightWrites[id], state)
	return nil
}

// Close implements sim.World; safe to call repeatedly.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *Fake) allocID() sim.ActorID {
	f.nextID++
	return sim.ActorID(fmt.Sprintf("%s-%d", f.name, f.nextID))
}

// Inspection helpers for tests.

// Has reports whether an actor currently exists.
func (f *Fake) Has(id sim.ActorID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.actors[id]
	return ok
}

// ActorCount returns the number of live actors.
func (f *Fake) ActorCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.actors)
}

// DestroyCalls returns every id Destroy was called with, in order.
func (f *Fake) DestroyCalls() []sim.ActorID {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sim.ActorID, len(f.destroyCalls))
	copy(out, f.destroyCalls)
	return out
}

// SpawnCalls returns every descriptor Spawn was called with, in order.
func (f *Fake) SpawnCalls() []sim.Descriptor {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sim.Descriptor, len(f.spawnCalls))
	copy(out, f.spawnCalls)
	return out
}

// LightWrites returns the states written to a landmark, in order.
func (f *Fake) LightWrites(id sim.LandmarkID) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.lightWrites[id]))
	copy(out, f.lightWrites[id])
	return out
}

// LastTransform returns the last pose pushed via SetTransform.
func (f *Fake) LastTransform(id sim.ActorID) (sim.Pose, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pose, ok := f.setTransforms[id]
	return pose, ok
}

// LastLights returns the last light state pushed via SetLights.
func (f *Fake) LastLights(id sim.ActorID) (uint32, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lights, ok := f.setLights[id]
	return lights, ok
}

// Steps returns how many times Step has been called.
func (f *Fake) Steps() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.steps
}

// CloseCount returns how many times Close has been called.
func (f *Fake) CloseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
