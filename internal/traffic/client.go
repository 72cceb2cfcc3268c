package traffic

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/twinsync/twinsync/internal/sim"
)

// WorldName labels this adapter in errors and logs.
const WorldName = "traffic"

// Options configures the connection to the traffic engine.
type Options struct {
	// Addr is the engine's TCP endpoint, host:port.
	Addr string
	// Scenario is the scenario file the engine should load on connect.
	Scenario string
	// StepLength is the simulation step the engine advances per step command.
	StepLength time.Duration
	// DialTimeout bounds the initial TCP dial. Zero means 5 seconds.
	DialTimeout time.Duration
}

// Client is the sim.World implementation backed by a live engine session.
type Client struct {
	mu     sync.Mutex
	conn   net.Conn
	r      *bufio.Reader
	nextID int64
	closed bool

	// Buffers from the most recent step.
	spawned   []sim.ActorID
	destroyed []sim.ActorID
	pending   int
}

// Connect dials the engine, loads the scenario, and fixes the step length
// for the session.
func Connect(ctx context.Context, opts Options) (*Client, error) {
	timeout := opts.DialTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", opts.Addr)
	if err != nil {
		return nil, sim.NewEngineUnavailable(WorldName, fmt.Errorf("dial %s: %w", opts.Addr, err))
	}

	c := &Client{conn: conn, r: bufio.NewReader(conn)}
	args := loadArgs{Scenario: opts.Scenario, StepLength: opts.StepLength.Milliseconds()}
	raw, err := c.call(ctx, "load", args)
	if err != nil {
		conn.Close()
		return nil, err
	}

	// The load report carries the scenario's initial scheduled-vehicle
	// count, so Pending is meaningful before the first step.
	var res loadResult
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &res); err != nil {
			slog.Warn("undecodable load report, pending count starts at zero", "error", err)
		}
	}
	c.pending = res.Pending
	return c, nil
}

// Name implements sim.World.
func (c *Client) Name() string { return WorldName }

// Step implements sim.World: advance one step and capture the departed and
// arrived vehicle reports as this step's spawned/destroyed buffers.
func (c *Client) Step(ctx context.Context) error {
	raw, err := c.call(ctx, "step", nil)
	if err != nil {
		return err
	}
	var res stepResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return sim.NewEngineUnavailable(WorldName, fmt.Errorf("decode step result: %w", err))
	}

	c.mu.Lock()
	c.spawned = c.spawned[:0]
	for _, id := range res.Departed {
		c.spawned = append(c.spawned, sim.ActorID(id))
	}
	c.destroyed = c.destroyed[:0]
	for _, id := range res.Arrived {
		c.destroyed = append(c.destroyed, sim.ActorID(id))
	}
	c.pending = res.Pending
	c.mu.Unlock()
	return nil
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

// Pending reports the engine's remaining scheduled vehicles as of the last
// step: active vehicles plus those not yet departed. The runner keeps
// ticking while this is positive.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Actor implements sim.World.
func (c *Client) Actor(ctx context.Context, id sim.ActorID) (sim.EntityView, error) {
	raw, err := c.call(ctx, "vehicle", vehicleArgs{ID: string(id)})
	if err != nil {
		if isCode(err, codeUnknownActor) {
			return sim.EntityView{}, sim.NewStaleReference(WorldName, id)
		}
		return sim.EntityView{}, err
	}

	var res vehicleResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return sim.EntityView{}, sim.NewEngineUnavailable(WorldName, fmt.Errorf("decode vehicle: %w", err))
	}

	view := sim.EntityView{
		ID:     id,
		TypeID: res.TypeID,
		Class:  sim.VehicleClass(res.Class),
		Pose:   fromWirePose(res.Pose),
		Extent: sim.Extent{X: res.Extent.X, Y: res.Extent.Y, Z: res.Extent.Z},
	}
	if res.Color != nil {
		view.Color = &sim.Color{R: res.Color.R, G: res.Color.G, B: res.Color.B}
	}
	if res.Signals != nil {
		view.Lights = *res.Signals
		view.HasLights = true
	}
	return view, nil
}

// Spawn implements sim.World. An engine refusal returns the Invalid
// sentinel with a nil error; the bridge never retries.
func (c *Client) Spawn(ctx context.Context, desc sim.Descriptor, pose sim.Pose) (sim.ActorID, error) {
	args := addVehicleArgs{TypeID: desc.TypeID, Pose: toWirePose(pose)}
	if desc.Color != nil {
		args.Color = &wireColor{R: desc.Color.R, G: desc.Color.G, B: desc.Color.B}
	}

	raw, err := c.call(ctx, "add_vehicle", args)
	if err != nil {
		if isCode(err, codeSpawnRejected) {
			return sim.InvalidActorID, nil
		}
		return sim.InvalidActorID, err
	}

	var res addVehicleResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return sim.InvalidActorID, sim.NewEngineUnavailable(WorldName, fmt.Errorf("decode add_vehicle: %w", err))
	}
	return sim.ActorID(res.ID), nil
}

// Destroy implements sim.World. Removing an already-gone vehicle is a no-op.
func (c *Client) Destroy(ctx context.Context, id sim.ActorID) error {
	_, err := c.call(ctx, "remove_vehicle", vehicleArgs{ID: string(id)})
	if isCode(err, codeUnknownActor) {
		return nil
	}
	return err
}

// SetTransform implements sim.World.
func (c *Client) SetTransform(ctx context.Context, id sim.ActorID, pose sim.Pose) error {
	_, err := c.call(ctx, "move_vehicle", moveVehicleArgs{ID: string(id), Pose: toWirePose(pose)})
	if isCode(err, codeUnknownActor) {
		return sim.NewStaleReference(WorldName, id)
	}
	return err
}

// SetLights implements sim.World; lights is a signal bitmask here.
func (c *Client) SetLights(ctx context.Context, id sim.ActorID, lights uint32) error {
	_, err := c.call(ctx, "set_signals", setSignalsArgs{ID: string(id), Signals: lights})
	if isCode(err, codeUnknownActor) {
		return sim.NewStaleReference(WorldName, id)
	}
	return err
}

// TrafficLightIDs implements sim.World.
func (c *Client) TrafficLightIDs(ctx context.Context) ([]sim.LandmarkID, error) {
	raw, err := c.call(ctx, "tl_ids", nil)
	if err != nil {
		return nil, err
	}
	var res lightIDsResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, sim.NewEngineUnavailable(WorldName, fmt.Errorf("decode tl_ids: %w", err))
	}
	ids := make([]sim.LandmarkID, len(res.IDs))
	for i, id := range res.IDs {
		ids[i] = sim.LandmarkID(id)
	}
	return ids, nil
}

// TrafficLightState implements sim.World; the state is a link-state string,
// one letter per controlled link.
func (c *Client) TrafficLightState(ctx context.Context, id sim.LandmarkID) (string, error) {
	raw, err := c.call(ctx, "tl_state", landmarkArgs{ID: string(id)})
	if err != nil {
		return "", err
	}
	var res lightStateResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", sim.NewEngineUnavailable(WorldName, fmt.Errorf("decode tl_state: %w", err))
	}
	return res.State, nil
}

// SetTrafficLightState implements sim.World.
func (c *Client) SetTrafficLightState(ctx context.Context, id sim.LandmarkID, state string) error {
	_, err := c.call(ctx, "set_tl_state", setLightArgs{ID: string(id), State: state})
	return err
}

// SwitchOffTrafficLights implements bridge.LightSwitcher: disables the
// engine's own signal programs so pushed states are not overwritten.
func (c *Client) SwitchOffTrafficLights(ctx context.Context) error {
	_, err := c.call(ctx, "tl_off", nil)
	return err
}

// Close implements sim.World; safe to call repeatedly.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	// Best effort goodbye so the engine can release the scenario.
	deadline := time.Now().Add(time.Second)
	c.conn.SetDeadline(deadline)
	req := request{ID: c.nextID + 1, Cmd: "close"}
	if data, err := json.Marshal(req); err == nil {
		c.conn.Write(append(data, '\n'))
	}
	return c.conn.Close()
}

// call sends one request line and reads its response line. Transport
// failures poison the session and surface as engine-unavailable.
func (c *Client) call(ctx context.Context, cmd string, args any) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, sim.NewEngineUnavailable(WorldName, fmt.Errorf("session closed"))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.nextID++
	req := request{ID: c.nextID, Cmd: cmd}
	if args != nil {
		data, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("marshal %s args: %w", cmd, err)
		}
		req.Args = data
	}

	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetDeadline(deadline)
	} else {
		c.conn.SetDeadline(time.Time{})
	}

	line, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", cmd, err)
	}
	if _, err := c.conn.Write(append(line, '\n')); err != nil {
		return nil, sim.NewEngineUnavailable(WorldName, fmt.Errorf("send %s: %w", cmd, err))
	}

	respLine, err := c.r.ReadBytes('\n')
	if err != nil {
		return nil, sim.NewEngineUnavailable(WorldName, fmt.Errorf("read %s response: %w", cmd, err))
	}

	var resp response
	if err := json.Unmarshal(respLine, &resp); err != nil {
		return nil, sim.NewEngineUnavailable(WorldName, fmt.Errorf("decode %s response: %w", cmd, err))
	}
	if resp.ID != req.ID {
		return nil, sim.NewEngineUnavailable(WorldName, fmt.Errorf("%s response id %d, want %d", cmd, resp.ID, req.ID))
	}
	if !resp.OK {
		return nil, &commandError{Cmd: cmd, Code: resp.Code, Message: resp.Error}
	}
	return resp.Result, nil
}

// commandError is an ok:false response; the session stays usable.
type commandError struct {
	Cmd     string
	Code    string
	Message string
}

func (e *commandError) Error() string {
	return fmt.Sprintf("traffic engine %s: %s (%s)", e.Cmd, e.Message, e.Code)
}

func isCode(err error, code string) bool {
	var ce *commandError
	return errors.As(err, &ce) && ce.Code == code
}
