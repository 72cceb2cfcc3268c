// Package translate converts entity descriptors, poses, vehicle lights, and
// traffic-light states between the two worlds' vocabularies.
//
// Everything here is deterministic and side-effect-free: the same inputs
// always produce the same outputs and nothing is cached between calls. The
// bridge relies on that to keep the per-tick protocol replayable.
package translate

import (
	"math"

	"github.com/twinsync/twinsync/internal/catalog"
	"github.com/twinsync/twinsync/internal/sim"
)

// mirrorRole tags spawned mirror actors so operators can tell them apart
// from engine-native traffic in either world's own tooling.
const mirrorRole = "twinsync-mirror"

// Translator converts between the traffic world's and the driving world's
// vocabularies. It is stateless apart from immutable construction inputs:
// the vehicle catalog and the network origin offset between the two maps.
type Translator struct {
	catalog *catalog.Catalog
	offset  sim.Vec3 // traffic-net origin expressed in traffic coordinates
}

// New creates a Translator. offset is the traffic network's origin offset:
// subtracting it from a traffic location yields the shared map frame.
func New(cat *catalog.Catalog, offset sim.Vec3) *Translator {
	return &Translator{catalog: cat, offset: offset}
}

// DrivingDescriptor maps a traffic actor to a spawnable driving descriptor.
// Returns ok=false when the catalog has no equivalent blueprint; per the
// reconciliation protocol such an actor is never mirrored.
//
// Color is carried over only when syncColor is set; otherwise the driving
// engine picks its blueprint default.
func (t *Translator) DrivingDescriptor(view sim.EntityView, syncColor bool) (sim.Descriptor, bool) {
	entry, ok := t.catalog.ByVType(view.TypeID)
	if !ok {
		return sim.Descriptor{}, false
	}

	desc := sim.Descriptor{
		TypeID: entry.Blueprint,
		Class:  entry.Class,
		Role:   mirrorRole,
	}
	if syncColor && view.Color != nil {
		c := *view.Color
		desc.Color = &c
	}
	return desc, true
}

// TrafficDescriptor maps a driving actor to a spawnable traffic descriptor.
// Returns ok=false when the catalog has no equivalent vtype.
func (t *Translator) TrafficDescriptor(view sim.EntityView, syncColor bool) (sim.Descriptor, bool) {
	entry, ok := t.catalog.ByBlueprint(view.TypeID)
	if !ok {
		return sim.Descriptor{}, false
	}

	desc := sim.Descriptor{
		TypeID: entry.VType,
		Class:  entry.Class,
		Role:   mirrorRole,
	}
	if syncColor && view.Color != nil {
		c := *view.Color
		desc.Color = &c
	}
	return desc, true
}

// DrivingPose converts a traffic pose (front-bumper anchored, right-handed)
// into a driving pose (body-center anchored, left-handed).
//
// The conversion: slide the anchor from the front bumper back to the body
// center along the heading, subtract the network offset, then flip the Y
// axis and rotate the yaw reference by -90 degrees for the left-handed frame.
func (t *Translator) DrivingPose(pose sim.Pose, extent sim.Extent) sim.Pose {
	yaw := radians(-pose.Rotation.Yaw + 90)
	pitch := radians(pose.Rotation.Pitch)

	x := pose.Location.X - math.Cos(yaw)*extent.X
	y := pose.Location.Y - math.Sin(yaw)*extent.X
	z := pose.Location.Z - math.Sin(pitch)*extent.X

	x -= t.offset.X
	y -= t.offset.Y

	return sim.Pose{
		Location: sim.Vec3{X: x, Y: -y, Z: z},
		Rotation: sim.Rotation{
			Pitch: pose.Rotation.Pitch,
			Yaw:   pose.Rotation.Yaw - 90,
			Roll:  pose.Rotation.Roll,
		},
	}
}

// TrafficPose converts a driving pose into a traffic pose; the exact inverse
// of DrivingPose for matching extents.
func (t *Translator) TrafficPose(pose sim.Pose, extent sim.Extent) sim.Pose {
	yaw := radians(-pose.Rotation.Yaw)
	pitch := radians(pose.Rotation.Pitch)

	// From body center forward to the front bumper, still left-handed.
	x := pose.Location.X + math.Cos(yaw)*extent.X
	y := pose.Location.Y - math.Sin(yaw)*extent.X
	z := pose.Location.Z - math.Sin(pitch)*extent.X

	x += t.offset.X
	y = -(y - t.offset.Y)

	return sim.Pose{
		Location: sim.Vec3{X: x, Y: y, Z: z},
		Rotation: sim.Rotation{
			Pitch: pose.Rotation.Pitch,
			Yaw:   pose.Rotation.Yaw + 90,
			Roll:  pose.Rotation.Roll,
		},
	}
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
