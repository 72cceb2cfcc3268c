package driving

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twinsync/twinsync/internal/frame"
	"github.com/twinsync/twinsync/internal/sim"
)

// fakeEngine is an in-process driving engine behind an httptest server.
type fakeEngine struct {
	mu sync.Mutex

	server   *httptest.Server
	upgrader websocket.Upgrader

	conn    *websocket.Conn
	writeMu sync.Mutex

	actors      map[string]actorResult
	lights      map[string]string
	nextID      int
	ticks       int
	rejectSpawn bool
	settings    []settingsArgs
	frozen      map[string]bool
	tlOff       int
	follow      string
	camera      string
	dropNext    bool
}

func startFakeEngine(t *testing.T) *fakeEngine {
	t.Helper()
	e := &fakeEngine{
		actors: make(map[string]actorResult),
		lights: make(map[string]string),
		frozen: make(map[string]bool),
	}
	e.server = httptest.NewServer(http.HandlerFunc(e.handleWS))
	t.Cleanup(e.server.Close)
	return e
}

func (e *fakeEngine) url() string {
	return "ws" + strings.TrimPrefix(e.server.URL, "http") + "/session"
}

func (e *fakeEngine) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	e.mu.Lock()
	e.conn = conn
	e.mu.Unlock()

	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}

		e.mu.Lock()
		drop := e.dropNext
		e.mu.Unlock()
		if drop {
			conn.Close()
			return
		}

		resp := e.handle(env)
		e.writeMu.Lock()
		err = conn.WriteJSON(resp)
		e.writeMu.Unlock()
		if err != nil {
			return
		}
	}
}

// pushFrame sends an unsolicited camera notification.
func (e *fakeEngine) pushFrame(f frameNotification) {
	params, _ := json.Marshal(f)
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	e.conn.WriteJSON(envelope{Method: "camera.frame", Params: params})
}

func (e *fakeEngine) handle(req envelope) envelope {
	e.mu.Lock()
	defer e.mu.Unlock()

	ok := func(result any) envelope {
		data, _ := json.Marshal(result)
		return envelope{ID: req.ID, Result: data}
	}
	fail := func(code, msg string) envelope {
		return envelope{ID: req.ID, Error: &rpcError{Code: code, Message: msg}}
	}

	switch req.Method {
	case "world.tick":
		e.ticks++
		return ok(nil)

	case "actors.list":
		ids := make([]string, 0, len(e.actors))
		for id := range e.actors {
			ids = append(ids, id)
		}
		return ok(actorListResult{IDs: ids})

	case "actor.get":
		var args actorArgs
		json.Unmarshal(req.Params, &args)
		a, present := e.actors[args.ID]
		if !present {
			return fail(codeUnknownActor, "no such actor")
		}
		return ok(a)

	case "actor.spawn":
		if e.rejectSpawn {
			return fail(codeSpawnFailed, "collision at spawn point")
		}
		var args spawnArgs
		json.Unmarshal(req.Params, &args)
		e.nextID++
		id := "actor" + strconv.Itoa(e.nextID)
		e.actors[id] = actorResult{Blueprint: args.Blueprint, Pose: args.Pose, Color: args.Color}
		return ok(spawnResult{ID: id})

	case "actor.destroy":
		var args actorArgs
		json.Unmarshal(req.Params, &args)
		if _, present := e.actors[args.ID]; !present {
			return fail(codeUnknownActor, "no such actor")
		}
		delete(e.actors, args.ID)
		return ok(nil)

	case "actor.set_transform":
		var args transformArgs
		json.Unmarshal(req.Params, &args)
		a, present := e.actors[args.ID]
		if !present {
			return fail(codeUnknownActor, "no such actor")
		}
		a.Pose = args.Pose
		e.actors[args.ID] = a
		return ok(nil)

	case "actor.set_lights":
		var args lightsArgs
		json.Unmarshal(req.Params, &args)
		a, present := e.actors[args.ID]
		if !present {
			return fail(codeUnknownActor, "no such actor")
		}
		a.Lights = &args.Lights
		e.actors[args.ID] = a
		return ok(nil)

	case "traffic_lights.list":
		ids := make([]string, 0, len(e.lights))
		for id := range e.lights {
			ids = append(ids, id)
		}
		return ok(lightListResult{IDs: ids})

	case "traffic_light.get":
		var args landmarkArgs
		json.Unmarshal(req.Params, &args)
		state, present := e.lights[args.ID]
		if !present {
			return fail(codeUnknownLandmark, "no such landmark")
		}
		return ok(lightStateResult{State: state})

	case "traffic_light.set":
		var args setLightArgs
		json.Unmarshal(req.Params, &args)
		e.lights[args.ID] = args.State
		e.frozen[args.ID] = args.Freeze
		return ok(nil)

	case "traffic_lights.off":
		e.tlOff++
		return ok(nil)

	case "settings.apply":
		var args settingsArgs
		json.Unmarshal(req.Params, &args)
		e.settings = append(e.settings, args)
		return ok(nil)

	case "spectator.follow":
		var args actorArgs
		json.Unmarshal(req.Params, &args)
		if _, present := e.actors[args.ID]; !present {
			return fail(codeUnknownActor, "no such actor")
		}
		e.follow = args.ID
		return ok(nil)

	case "camera.attach":
		var args actorArgs
		json.Unmarshal(req.Params, &args)
		e.camera = args.ID
		return ok(nil)

	default:
		return fail("unknown_method", req.Method)
	}
}

func (e *fakeEngine) seedActor(id string, a actorResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.actors[id] = a
}

func (e *fakeEngine) removeActor(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.actors, id)
}

func connectTestClient(t *testing.T, e *fakeEngine, opts ...func(*Options)) *Client {
	t.Helper()
	o := Options{URL: e.url()}
	for _, fn := range opts {
		fn(&o)
	}
	c, err := Connect(context.Background(), o)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestConnect_BadEndpointIsEngineUnavailable(t *testing.T) {
	_, err := Connect(context.Background(), Options{
		URL:         "ws://127.0.0.1:1/session",
		DialTimeout: 200 * time.Millisecond,
	})
	require.Error(t, err)
	assert.True(t, sim.IsEngineUnavailable(err))
}

func TestStep_DiffsActorRegistry(t *testing.T) {
	e := startFakeEngine(t)
	e.seedActor("a1", actorResult{Blueprint: "vehicle.sedan"})
	c := connectTestClient(t, e)
	ctx := context.Background()

	// a1 existed at connect time; the first tick reports nothing.
	require.NoError(t, c.Step(ctx))
	assert.Empty(t, c.SpawnedSince())
	assert.Empty(t, c.DestroyedSince())

	e.seedActor("a2", actorResult{Blueprint: "vehicle.bus"})
	e.removeActor("a1")
	require.NoError(t, c.Step(ctx))
	assert.Equal(t, []sim.ActorID{"a2"}, c.SpawnedSince())
	assert.Equal(t, []sim.ActorID{"a1"}, c.DestroyedSince())

	// Steady state clears both buffers.
	require.NoError(t, c.Step(ctx))
	assert.Empty(t, c.SpawnedSince())
	assert.Empty(t, c.DestroyedSince())
}

func TestSpawn_AppearsInNextDiff(t *testing.T) {
	e := startFakeEngine(t)
	c := connectTestClient(t, e)
	ctx := context.Background()

	require.NoError(t, c.Step(ctx))

	id, err := c.Spawn(ctx, sim.Descriptor{TypeID: "vehicle.sedan", Role: "bridge"}, sim.Pose{})
	require.NoError(t, err)
	require.True(t, id.Valid())

	require.NoError(t, c.Step(ctx))
	assert.Equal(t, []sim.ActorID{id}, c.SpawnedSince(),
		"a bridge-spawned actor shows up in the next diff like any other")
}

func TestSpawn_FailureReturnsInvalidSentinel(t *testing.T) {
	e := startFakeEngine(t)
	e.mu.Lock()
	e.rejectSpawn = true
	e.mu.Unlock()
	c := connectTestClient(t, e)

	id, err := c.Spawn(context.Background(), sim.Descriptor{TypeID: "vehicle.sedan"}, sim.Pose{})
	require.NoError(t, err, "a declined spawn is not an error")
	assert.Equal(t, sim.InvalidActorID, id)
}

func TestActor_ViewAndStaleReference(t *testing.T) {
	e := startFakeEngine(t)
	lights := uint32(0b101)
	e.seedActor("a1", actorResult{
		Blueprint: "vehicle.sedan",
		Class:     "passenger",
		Pose:      sim.Pose{Location: sim.Vec3{X: 4}, Rotation: sim.Rotation{Yaw: 180}},
		Extent:    sim.Extent{X: 2.4, Y: 1.0, Z: 0.7},
		Lights:    &lights,
	})
	c := connectTestClient(t, e)
	ctx := context.Background()

	view, err := c.Actor(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "vehicle.sedan", view.TypeID)
	assert.Equal(t, sim.ClassPassenger, view.Class)
	assert.Equal(t, 180.0, view.Pose.Rotation.Yaw)
	assert.True(t, view.HasLights)
	assert.Equal(t, lights, view.Lights)

	_, err = c.Actor(ctx, "ghost")
	assert.True(t, sim.IsStaleReference(err))
}

func TestDestroyAndTransformAndLights(t *testing.T) {
	e := startFakeEngine(t)
	e.seedActor("a1", actorResult{Blueprint: "vehicle.sedan"})
	c := connectTestClient(t, e)
	ctx := context.Background()

	pose := sim.Pose{Location: sim.Vec3{X: 1, Y: 2, Z: 3}}
	require.NoError(t, c.SetTransform(ctx, "a1", pose))
	require.NoError(t, c.SetLights(ctx, "a1", 0b11))

	view, err := c.Actor(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, pose, view.Pose)
	assert.Equal(t, uint32(0b11), view.Lights)

	assert.True(t, sim.IsStaleReference(c.SetTransform(ctx, "ghost", pose)))
	assert.NoError(t, c.Destroy(ctx, "a1"))
	assert.NoError(t, c.Destroy(ctx, "a1"), "destroying a gone actor is a no-op")
}

func TestTrafficLights_PhaseWritesFreeze(t *testing.T) {
	e := startFakeEngine(t)
	e.mu.Lock()
	e.lights["tl-1"] = "green"
	e.mu.Unlock()
	c := connectTestClient(t, e)
	ctx := context.Background()

	ids, err := c.TrafficLightIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []sim.LandmarkID{"tl-1"}, ids)

	state, err := c.TrafficLightState(ctx, "tl-1")
	require.NoError(t, err)
	assert.Equal(t, "green", state)

	require.NoError(t, c.SetTrafficLightState(ctx, "tl-1", "red"))
	e.mu.Lock()
	assert.Equal(t, "red", e.lights["tl-1"])
	assert.True(t, e.frozen["tl-1"], "a pushed state freezes the landmark")
	e.mu.Unlock()

	require.NoError(t, c.SwitchOffTrafficLights(ctx))
	e.mu.Lock()
	assert.Equal(t, 1, e.tlOff)
	e.mu.Unlock()
}

func TestFixedStepToggle(t *testing.T) {
	e := startFakeEngine(t)
	c := connectTestClient(t, e)
	ctx := context.Background()

	require.NoError(t, c.SetFixedStep(ctx, 50*time.Millisecond))
	require.NoError(t, c.SetFreeRunning(ctx))

	e.mu.Lock()
	defer e.mu.Unlock()
	require.Len(t, e.settings, 2)
	assert.Equal(t, settingsArgs{Synchronous: true, FixedDeltaMS: 50}, e.settings[0])
	assert.Equal(t, settingsArgs{}, e.settings[1])
}

func TestFollow_AttachesSpectatorAndCamera(t *testing.T) {
	e := startFakeEngine(t)
	e.seedActor("hero", actorResult{Blueprint: "vehicle.sedan"})

	var buf frame.Buffer
	c := connectTestClient(t, e, func(o *Options) { o.Frames = &buf })

	require.NoError(t, c.Follow(context.Background(), "hero"))
	e.mu.Lock()
	assert.Equal(t, "hero", e.follow)
	assert.Equal(t, "hero", e.camera)
	e.mu.Unlock()

	e.pushFrame(frameNotification{Seq: 9, Width: 2, Height: 1, Data: []byte{1, 2}})

	require.Eventually(t, func() bool {
		f, ok := buf.Latest()
		return ok && f.Seq == 9
	}, time.Second, 5*time.Millisecond)

	f, _ := buf.Latest()
	assert.Equal(t, 2, f.Width)
	assert.Equal(t, []byte{1, 2}, f.Data)
}

func TestFollow_UnknownActorIsStaleReference(t *testing.T) {
	e := startFakeEngine(t)
	c := connectTestClient(t, e)

	err := c.Follow(context.Background(), "ghost")
	assert.True(t, sim.IsStaleReference(err),
		"the mirror may not exist yet; the caller retries next tick")
	assert.NoError(t, c.Step(context.Background()))
}

func TestConnectionLossIsEngineUnavailable(t *testing.T) {
	e := startFakeEngine(t)
	c := connectTestClient(t, e)

	e.mu.Lock()
	e.dropNext = true
	e.mu.Unlock()

	err := c.Step(context.Background())
	require.Error(t, err)
	assert.True(t, sim.IsEngineUnavailable(err))

	// The session is poisoned for every later call too.
	_, err = c.Actor(context.Background(), "a1")
	assert.True(t, sim.IsEngineUnavailable(err))
}

func TestClose_IsIdempotent(t *testing.T) {
	e := startFakeEngine(t)
	c := connectTestClient(t, e)

	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())

	err := c.Step(context.Background())
	assert.True(t, sim.IsEngineUnavailable(err))
}
