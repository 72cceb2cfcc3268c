package sim

import "context"

// World is the capability surface the bridge needs from one simulation
// engine. Two concrete adapters implement it (internal/traffic and
// internal/driving), plus the scriptable double in internal/worldtest.
//
// Contract notes, which the bridge depends on:
//
//   - Step advances the world by exactly one fixed step and replaces the
//     spawned/destroyed buffers with that step's events only; the buffers are
//     never cumulative.
//   - Spawn returns InvalidActorID, not an error, when the engine declines
//     (blocked spawn point, unsupported descriptor). Errors are reserved for
//     connection-level failures.
//   - Destroy is idempotent in intent: destroying an id the engine no longer
//     has is a no-op.
//   - SetTransform and SetLights are best effort; failures are reported so
//     the caller can log them, but a tick must never be aborted over them.
//   - Close must be safe after partially failed setup and safe to call more
//     than once.
type World interface {
	// Name identifies the world in logs and errors ("traffic", "driving").
	Name() string

	// Step advances the world one fixed step.
	Step(ctx context.Context) error

	// SpawnedSince returns ids of actors that appeared during the last
	// Step. The slice is owned by the adapter and valid until the next Step.
	SpawnedSince() []ActorID

	// DestroyedSince returns ids of actors removed during the last Step.
	DestroyedSince() []ActorID

	// Actor returns a read snapshot of one actor. Returns a WorldError with
	// ErrCodeStaleReference if the id is gone.
	Actor(ctx context.Context, id ActorID) (EntityView, error)

	// Spawn creates an actor and returns its id, or InvalidActorID when the
	// engine declines the spawn.
	Spawn(ctx context.Context, desc Descriptor, pose Pose) (ActorID, error)

	// Destroy removes an actor. No-op for unknown ids.
	Destroy(ctx context.Context, id ActorID) error

	// SetTransform overwrites an actor's pose.
	SetTransform(ctx context.Context, id ActorID, pose Pose) error

	// SetLights overwrites an actor's light state. The raw value is
	// world-native: a Signals bitmask for the traffic world, a Lights
	// bitmask for the driving world.
	SetLights(ctx context.Context, id ActorID, lights uint32) error

	// TrafficLightIDs returns the landmark ids in this world's registry.
	TrafficLightIDs(ctx context.Context) ([]LandmarkID, error)

	// TrafficLightState reads one landmark's state in world-native form.
	TrafficLightState(ctx context.Context, id LandmarkID) (string, error)

	// SetTrafficLightState overwrites one landmark's state.
	SetTrafficLightState(ctx context.Context, id LandmarkID, state string) error

	// Close releases engine resources.
	Close() error
}
