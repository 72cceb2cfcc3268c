package harness

import (
	"context"
	"fmt"

	"github.com/twinsync/twinsync/internal/bridge"
	"github.com/twinsync/twinsync/internal/sim"
	"github.com/twinsync/twinsync/internal/worldtest"
)

// evaluate checks every assertion against the final state, appending a
// failure message per assertion that does not hold.
func evaluate(r *Result) {
	for i, a := range r.Scenario.Assertions {
		if msg := check(r, a); msg != "" {
			r.Failures = append(r.Failures, fmt.Sprintf("assertion %d (%s): %s", i, a.Type, msg))
		}
	}
}

func check(r *Result, a Assertion) string {
	switch a.Type {
	case AssertMirrored:
		return checkMirrored(r, a)
	case AssertAbsent:
		if world(r, a.World).Has(sim.ActorID(a.Actor)) {
			return fmt.Sprintf("%s still exists in %s", a.Actor, a.World)
		}
		return ""
	case AssertMirrorCount:
		if got := r.Rec.MirroredCount(); got != a.Count {
			return fmt.Sprintf("mirror count is %d, want %d", got, a.Count)
		}
		return ""
	case AssertLight:
		state, err := world(r, a.World).TrafficLightState(context.Background(), sim.LandmarkID(a.Landmark))
		if err != nil {
			return fmt.Sprintf("landmark %s: %v", a.Landmark, err)
		}
		if state != a.State {
			return fmt.Sprintf("landmark %s is %q, want %q", a.Landmark, state, a.State)
		}
		return ""
	case AssertEventCount:
		var got int
		for _, tick := range r.Trace {
			for _, ev := range tick.Events {
				if ev.Kind == bridge.EventKind(a.Kind) {
					got++
				}
			}
		}
		if got != a.Count {
			return fmt.Sprintf("%d %s events, want %d", got, a.Kind, a.Count)
		}
		return ""
	default:
		return fmt.Sprintf("unknown assertion type %q", a.Type)
	}
}

// checkMirrored verifies the source actor has a live mirror in the other
// world: mapped in the reconciler table and actually present there.
func checkMirrored(r *Result, a Assertion) string {
	source := sim.ActorID(a.Source)
	var mirror sim.ActorID
	var mapped bool
	var target *worldtest.Fake

	switch a.World {
	case "traffic":
		mirror, mapped = r.Rec.DrivingMirror(source)
		target = r.Driving
	case "driving":
		mirror, mapped = r.Rec.TrafficMirror(source)
		target = r.Traffic
	}

	if !mapped {
		return fmt.Sprintf("%s has no mirror mapping", a.Source)
	}
	if !target.Has(mirror) {
		return fmt.Sprintf("mirror %s of %s is not live in %s", mirror, a.Source, target.Name())
	}
	return ""
}

func world(r *Result, name string) *worldtest.Fake {
	if name == "driving" {
		return r.Driving
	}
	return r.Traffic
}
