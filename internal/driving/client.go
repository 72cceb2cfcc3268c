package driving

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/twinsync/twinsync/internal/frame"
	"github.com/twinsync/twinsync/internal/sim"
)

// WorldName labels this adapter in errors and logs.
const WorldName = "driving"

// Options configures the connection to the driving engine.
type Options struct {
	// URL is the engine's WebSocket endpoint, e.g. ws://localhost:2000/session.
	URL string
	// DialTimeout bounds the handshake. Zero means 5 seconds.
	DialTimeout time.Duration
	// Frames receives camera notifications once Follow has attached the
	// camera to an actor.
	Frames *frame.Buffer
}

// Client is the sim.World implementation backed by a live engine session.
// It also implements the bridge's FixedStepper and LightSwitcher.
type Client struct {
	rpc    *rpcConn
	frames *frame.Buffer

	closeOnce sync.Once
	closeErr  error

	mu        sync.Mutex
	known     map[sim.ActorID]struct{}
	spawned   []sim.ActorID
	destroyed []sim.ActorID
}

// Connect dials the engine and seeds the actor registry. The caller owns
// the returned client and must Close it.
func Connect(ctx context.Context, opts Options) (*Client, error) {
	timeout := opts.DialTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, resp, err := dialer.DialContext(ctx, opts.URL, nil)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("dial %s: %w (http %d)", opts.URL, err, resp.StatusCode)
		} else {
			err = fmt.Errorf("dial %s: %w", opts.URL, err)
		}
		return nil, sim.NewEngineUnavailable(WorldName, err)
	}

	c := &Client{
		frames: opts.Frames,
		known:  make(map[sim.ActorID]struct{}),
	}
	c.rpc = newRPCConn(conn, c.handleNotify)

	// Seed the registry so pre-existing actors are not reported as spawned
	// on the first tick.
	ids, err := c.listActors(ctx)
	if err != nil {
		c.rpc.close()
		return nil, err
	}
	for _, id := range ids {
		c.known[id] = struct{}{}
	}
	return c, nil
}

// Follow parks the spectator behind an actor and attaches the front camera
// whose frames feed the Frames buffer. The target is typically a mirror the
// bridge only just spawned, so an unknown id is reported as a stale
// reference and the caller retries once a live mirror exists.
func (c *Client) Follow(ctx context.Context, id sim.ActorID) error {
	if _, err := c.rpc.call(ctx, "spectator.follow", actorArgs{ID: string(id)}); err != nil {
		if isCode(err, codeUnknownActor) {
			return sim.NewStaleReference(WorldName, id)
		}
		return asWorldErr(err)
	}
	if _, err := c.rpc.call(ctx, "camera.attach", actorArgs{ID: string(id)}); err != nil {
		if isCode(err, codeUnknownActor) {
			return sim.NewStaleReference(WorldName, id)
		}
		return asWorldErr(err)
	}
	return nil
}

func (c *Client) handleNotify(method string, params json.RawMessage) {
	if method != "camera.frame" || c.frames == nil {
		return
	}
	var f frameNotification
	if err := json.Unmarshal(params, &f); err != nil {
		return
	}
	c.frames.Store(frame.Frame{Seq: f.Seq, Width: f.Width, Height: f.Height, Data: f.Data})
}

// Name implements sim.World.
func (c *Client) Name() string { return WorldName }

// Step implements sim.World: tick the engine, then diff the actor registry
// against the previous tick to produce the spawned and destroyed lists.
func (c *Client) Step(ctx context.Context) error {
	if _, err := c.rpc.call(ctx, "world.tick", nil); err != nil {
		return asWorldErr(err)
	}

	ids, err := c.listActors(ctx)
	if err != nil {
		return err
	}

	current := make(map[sim.ActorID]struct{}, len(ids))
	for _, id := range ids {
		current[id] = struct{}{}
	}

	c.mu.Lock()
	c.spawned = c.spawned[:0]
	for _, id := range ids {
		if _, ok := c.known[id]; !ok {
			c.spawned = append(c.spawned, id)
		}
	}
	c.destroyed = c.destroyed[:0]
	for id := range c.known {
		if _, ok := current[id]; !ok {
			c.destroyed = append(c.destroyed, id)
		}
	}
	c.known = current
	c.mu.Unlock()
	return nil
}

func (c *Client) listActors(ctx context.Context) ([]sim.ActorID, error) {
	raw, err := c.rpc.call(ctx, "actors.list", nil)
	if err != nil {
		return nil, asWorldErr(err)
	}
	var res actorListResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, sim.NewEngineUnavailable(WorldName, fmt.Errorf("decode actors.list: %w", err))
	}
	ids := make([]sim.ActorID, len(res.IDs))
	for i, id := range res.IDs {
		ids[i] = sim.ActorID(id)
	}
	return ids, nil
}

// SpawnedSince implements sim.World.
func (c *Client) SpawnedSince() []sim.ActorID {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]sim.ActorID, len(c.spawned))
	copy(out, c.spawned)
	return out
}

// DestroyedSince implements sim.World.
func (c *Client) DestroyedSince() []sim.ActorID {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]sim.ActorID, len(c.destroyed))
	copy(out, c.destroyed)
	return out
}

// Actor implements sim.World.
func (c *Client) Actor(ctx context.Context, id sim.ActorID) (sim.EntityView, error) {
	raw, err := c.rpc.call(ctx, "actor.get", actorArgs{ID: string(id)})
	if err != nil {
		if isCode(err, codeUnknownActor) {
			return sim.EntityView{}, sim.NewStaleReference(WorldName, id)
		}
		return sim.EntityView{}, asWorldErr(err)
	}

	var res actorResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return sim.EntityView{}, sim.NewEngineUnavailable(WorldName, fmt.Errorf("decode actor.get: %w", err))
	}

	view := sim.EntityView{
		ID:     id,
		TypeID: res.Blueprint,
		Class:  sim.VehicleClass(res.Class),
		Pose:   res.Pose,
		Extent: res.Extent,
		Color:  res.Color,
	}
	if res.Lights != nil {
		view.Lights = *res.Lights
		view.HasLights = true
	}
	return view, nil
}

// Spawn implements sim.World. A blocked spawn point or unsupported
// blueprint returns the Invalid sentinel with a nil error.
func (c *Client) Spawn(ctx context.Context, desc sim.Descriptor, pose sim.Pose) (sim.ActorID, error) {
	args := spawnArgs{Blueprint: desc.TypeID, Pose: pose, Color: desc.Color, Role: desc.Role}
	raw, err := c.rpc.call(ctx, "actor.spawn", args)
	if err != nil {
		if isCode(err, codeSpawnFailed) {
			return sim.InvalidActorID, nil
		}
		return sim.InvalidActorID, asWorldErr(err)
	}

	var res spawnResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return sim.InvalidActorID, sim.NewEngineUnavailable(WorldName, fmt.Errorf("decode actor.spawn: %w", err))
	}
	return sim.ActorID(res.ID), nil
}

// Destroy implements sim.World. Destroying an already-gone actor is a no-op.
func (c *Client) Destroy(ctx context.Context, id sim.ActorID) error {
	_, err := c.rpc.call(ctx, "actor.destroy", actorArgs{ID: string(id)})
	if isCode(err, codeUnknownActor) {
		return nil
	}
	return asWorldErr(err)
}

// SetTransform implements sim.World.
func (c *Client) SetTransform(ctx context.Context, id sim.ActorID, pose sim.Pose) error {
	_, err := c.rpc.call(ctx, "actor.set_transform", transformArgs{ID: string(id), Pose: pose})
	if isCode(err, codeUnknownActor) {
		return sim.NewStaleReference(WorldName, id)
	}
	return asWorldErr(err)
}

// SetLights implements sim.World; lights is the engine's light bitmask.
func (c *Client) SetLights(ctx context.Context, id sim.ActorID, lights uint32) error {
	_, err := c.rpc.call(ctx, "actor.set_lights", lightsArgs{ID: string(id), Lights: lights})
	if isCode(err, codeUnknownActor) {
		return sim.NewStaleReference(WorldName, id)
	}
	return asWorldErr(err)
}

// TrafficLightIDs implements sim.World.
func (c *Client) TrafficLightIDs(ctx context.Context) ([]sim.LandmarkID, error) {
	raw, err := c.rpc.call(ctx, "traffic_lights.list", nil)
	if err != nil {
		return nil, asWorldErr(err)
	}
	var res lightListResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, sim.NewEngineUnavailable(WorldName, fmt.Errorf("decode traffic_lights.list: %w", err))
	}
	ids := make([]sim.LandmarkID, len(res.IDs))
	for i, id := range res.IDs {
		ids[i] = sim.LandmarkID(id)
	}
	return ids, nil
}

// TrafficLightState implements sim.World; the state is a phase name
// (red, yellow, green, off, unknown).
func (c *Client) TrafficLightState(ctx context.Context, id sim.LandmarkID) (string, error) {
	raw, err := c.rpc.call(ctx, "traffic_light.get", landmarkArgs{ID: string(id)})
	if err != nil {
		return "", asWorldErr(err)
	}
	var res lightStateResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", sim.NewEngineUnavailable(WorldName, fmt.Errorf("decode traffic_light.get: %w", err))
	}
	return res.State, nil
}

// SetTrafficLightState implements sim.World. The push also freezes the
// landmark so the engine's own controller stops fighting the bridge.
func (c *Client) SetTrafficLightState(ctx context.Context, id sim.LandmarkID, state string) error {
	_, err := c.rpc.call(ctx, "traffic_light.set", setLightArgs{ID: string(id), State: state, Freeze: true})
	return asWorldErr(err)
}

// SetFixedStep puts the engine in synchronous mode with the given delta.
func (c *Client) SetFixedStep(ctx context.Context, step time.Duration) error {
	args := settingsArgs{Synchronous: true, FixedDeltaMS: step.Milliseconds()}
	_, err := c.rpc.call(ctx, "settings.apply", args)
	return asWorldErr(err)
}

// SetFreeRunning restores variable-step asynchronous mode.
func (c *Client) SetFreeRunning(ctx context.Context) error {
	_, err := c.rpc.call(ctx, "settings.apply", settingsArgs{})
	return asWorldErr(err)
}

// SwitchOffTrafficLights sets every landmark dark and freezes it, so only
// bridge-pushed states show up.
func (c *Client) SwitchOffTrafficLights(ctx context.Context) error {
	_, err := c.rpc.call(ctx, "traffic_lights.off", nil)
	return asWorldErr(err)
}

// Close implements sim.World; safe to call repeatedly.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { c.closeErr = c.rpc.close() })
	return c.closeErr
}

// asWorldErr keeps typed world errors and context errors as-is and wraps
// any engine-reported error we did not classify. Transport errors already
// arrive as engine-unavailable.
func asWorldErr(err error) error {
	if err == nil {
		return nil
	}
	var re *rpcError
	if errors.As(err, &re) {
		return fmt.Errorf("%s: %w", WorldName, re)
	}
	return err
}
