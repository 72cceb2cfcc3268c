package sim

import "fmt"

// ActorID identifies a vehicle within a single world.
//
// IDs are opaque and world-local: the traffic engine and the driving engine
// each assign their own ids and neither knows about the other's. Cross-world
// correspondence lives exclusively in the bridge mapping tables.
type ActorID string

// InvalidActorID is the sentinel returned by World.Spawn when the engine
// declines a spawn (blocked spawn point, unsupported descriptor). Callers
// must check for it; a failed spawn is never reported as an error.
const InvalidActorID ActorID = ""

// Valid reports whether the id is not the Invalid sentinel.
func (id ActorID) Valid() bool { return id != InvalidActorID }

// LandmarkID identifies a traffic light. Unlike actor ids, landmark ids are
// shared vocabulary: a landmark present in both worlds' registries refers to
// the same physical signal, which is what makes one-directional state
// propagation possible.
type LandmarkID string

// Vec3 is a point or extent in meters.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Rotation is an orientation in degrees.
type Rotation struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	Roll  float64 `json:"roll"`
}

// Pose is a position plus orientation in one world's reference frame.
//
// The two worlds use different frames (the traffic engine anchors vehicles at
// the front bumper in a right-handed frame, the driving engine at the body
// center in a left-handed frame); translate converts between them.
type Pose struct {
	Location Vec3     `json:"location"`
	Rotation Rotation `json:"rotation"`
}

// Extent is the half-size bounding extent of a vehicle in meters.
type Extent struct {
	X float64 `json:"x"` // half length
	Y float64 `json:"y"` // half width
	Z float64 `json:"z"` // half height
}

// VehicleClass is the coarse vehicle category shared by the catalog.
type VehicleClass string

const (
	ClassPassenger  VehicleClass = "passenger"
	ClassMotorcycle VehicleClass = "motorcycle"
	ClassBicycle    VehicleClass = "bicycle"
	ClassTruck      VehicleClass = "truck"
	ClassBus        VehicleClass = "bus"
	ClassEmergency  VehicleClass = "emergency"
)

// Color is an RGB vehicle color. Nil pointers mean "engine default".
type Color struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// String renders the color in the "R,G,B" attribute form both engines accept.
func (c Color) String() string { return fmt.Sprintf("%d,%d,%d", c.R, c.G, c.B) }

// Descriptor describes what to spawn: the world-native type identifier plus
// the attributes the spawn call carries. TypeID is a traffic vtype id or a
// driving blueprint id depending on which world the descriptor targets.
type Descriptor struct {
	TypeID string       `json:"type_id"`
	Class  VehicleClass `json:"class,omitempty"`
	Color  *Color       `json:"color,omitempty"`
	// Role tags mirror actors so operators can tell them apart from
	// engine-native traffic in either world's own tooling.
	Role string `json:"role,omitempty"`
}

// EntityView is a read snapshot of one actor in one world.
//
// Lights is the raw world-native light value: a Signals bitmask when the
// view comes from the traffic world, a Lights bitmask when it comes from the
// driving world. HasLights distinguishes "all lights off" from "engine does
// not report light state for this actor".
type EntityView struct {
	ID        ActorID      `json:"id"`
	TypeID    string       `json:"type_id"`
	Class     VehicleClass `json:"class,omitempty"`
	Pose      Pose         `json:"pose"`
	Extent    Extent       `json:"extent"`
	Color     *Color       `json:"color,omitempty"`
	Lights    uint32       `json:"lights"`
	HasLights bool         `json:"has_lights"`
}
