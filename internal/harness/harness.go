package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/twinsync/twinsync/internal/bridge"
	"github.com/twinsync/twinsync/internal/catalog"
	"github.com/twinsync/twinsync/internal/sim"
	"github.com/twinsync/twinsync/internal/translate"
	"github.com/twinsync/twinsync/internal/worldtest"
)

// TickTrace is one tick of the scenario trace. Wall-clock elapsed time is
// deliberately dropped so traces are byte-stable across machines.
type TickTrace struct {
	Seq      int64          `json:"seq"`
	Mirrored int            `json:"mirrored"`
	Events   []bridge.Event `json:"events"`
}

// Result is the outcome of one scenario run.
type Result struct {
	Scenario *Scenario
	Trace    []TickTrace

	Traffic *worldtest.Fake
	Driving *worldtest.Fake
	Rec     *bridge.Reconciler

	// Failures lists every assertion that did not hold.
	Failures []string
}

// Passed reports whether every assertion held.
func (r *Result) Passed() bool { return len(r.Failures) == 0 }

// collector captures tick records as the trace.
type collector struct {
	trace []TickTrace
}

func (c *collector) RecordTick(ctx context.Context, rec bridge.TickRecord) error {
	events := rec.Events
	if events == nil {
		events = []bridge.Event{}
	}
	c.trace = append(c.trace, TickTrace{Seq: rec.Seq, Mirrored: rec.Mirrored, Events: events})
	return nil
}

// Run executes a scenario against two fresh worldtest doubles and evaluates
// its assertions. Execution mirrors the production Runner loop: scripted
// events land in the worlds, the traffic world steps, then the reconciler
// ticks (stepping the driving world in between its half-passes).
func Run(scenario *Scenario) (*Result, error) {
	cfg, err := buildConfig(scenario.Config)
	if err != nil {
		return nil, err
	}

	cat, err := catalog.Default()
	if err != nil {
		return nil, fmt.Errorf("default catalog: %w", err)
	}
	tr := translate.New(cat, sim.Vec3{X: scenario.Config.OffsetX, Y: scenario.Config.OffsetY})
	traffic := worldtest.New("traffic")
	driving := worldtest.New("driving")

	col := &collector{}
	rec := bridge.New(cfg, traffic, driving, tr, bridge.WithRecorder(col))

	ctx := context.Background()
	if err := rec.Prepare(ctx); err != nil {
		return nil, fmt.Errorf("prepare: %w", err)
	}

	for i, tick := range scenario.Ticks {
		applyWorldStep(traffic, tick.Traffic)
		applyWorldStep(driving, tick.Driving)

		if err := traffic.Step(ctx); err != nil {
			return nil, fmt.Errorf("tick %d: traffic step: %w", i+1, err)
		}
		if err := rec.Tick(ctx); err != nil {
			return nil, fmt.Errorf("tick %d: %w", i+1, err)
		}
	}

	result := &Result{
		Scenario: scenario,
		Trace:    col.trace,
		Traffic:  traffic,
		Driving:  driving,
		Rec:      rec,
	}
	evaluate(result)
	return result, nil
}

func buildConfig(spec ConfigSpec) (bridge.Config, error) {
	authority, err := bridge.ParseAuthority(spec.Authority)
	if err != nil {
		return bridge.Config{}, err
	}
	cfg := bridge.Config{
		Authority:         authority,
		SyncVehicleColor:  spec.SyncColor,
		SyncVehicleLights: spec.SyncLights,
		StepLength:        time.Duration(spec.StepMS) * time.Millisecond,
	}
	if err := cfg.Validate(); err != nil {
		return bridge.Config{}, err
	}
	return cfg, nil
}

func applyWorldStep(w *worldtest.Fake, step WorldStep) {
	for _, spawn := range step.Spawn {
		view := sim.EntityView{
			ID:     sim.ActorID(spawn.ID),
			TypeID: spawn.Type,
			Pose: sim.Pose{
				Location: sim.Vec3{X: spawn.X, Y: spawn.Y, Z: spawn.Z},
				Rotation: sim.Rotation{Yaw: spawn.Yaw},
			},
			Extent: sim.Extent{X: 2.3, Y: 1.0, Z: 0.75},
		}
		if spawn.Lights != nil {
			view.Lights = *spawn.Lights
			view.HasLights = true
		}
		w.QueueSpawn(view)
	}
	for _, id := range step.Destroy {
		w.QueueDestroy(sim.ActorID(id))
	}
	if step.RejectSpawns > 0 {
		w.RejectNextSpawns(step.RejectSpawns)
	}
	for _, id := range step.Stale {
		w.MarkStale(sim.ActorID(id))
	}
	for id, state := range step.Lights {
		w.SetTrafficLight(sim.LandmarkID(id), state)
	}
}
