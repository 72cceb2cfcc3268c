package traffic

import (
	"encoding/json"

	"github.com/twinsync/twinsync/internal/sim"
)

// Wire types for the engine's line-delimited JSON protocol. Every request
// carries a client-assigned id; the engine echoes it on the response line.

type request struct {
	ID   int64           `json:"id"`
	Cmd  string          `json:"cmd"`
	Args json.RawMessage `json:"args,omitempty"`
}

type response struct {
	ID     int64           `json:"id"`
	OK     bool            `json:"ok"`
	Code   string          `json:"code,omitempty"`
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// Failure codes the engine reports on ok:false responses.
const (
	codeUnknownActor  = "unknown_actor"
	codeSpawnRejected = "spawn_rejected"
)

type loadArgs struct {
	Scenario   string `json:"scenario"`
	StepLength int64  `json:"step_length_ms"`
}

type loadResult struct {
	Pending int `json:"pending"`
}

type stepResult struct {
	Departed []string `json:"departed"`
	Arrived  []string `json:"arrived"`
	Pending  int      `json:"pending"`
}

type vehicleArgs struct {
	ID string `json:"id"`
}

type vehicleResult struct {
	TypeID  string     `json:"type_id"`
	Class   string     `json:"class,omitempty"`
	Pose    wirePose   `json:"pose"`
	Extent  wireVec    `json:"extent"`
	Color   *wireColor `json:"color,omitempty"`
	Signals *uint32    `json:"signals,omitempty"`
}

type addVehicleArgs struct {
	TypeID string     `json:"type_id"`
	Pose   wirePose   `json:"pose"`
	Color  *wireColor `json:"color,omitempty"`
}

type addVehicleResult struct {
	ID string `json:"id"`
}

type moveVehicleArgs struct {
	ID   string   `json:"id"`
	Pose wirePose `json:"pose"`
}

type setSignalsArgs struct {
	ID      string `json:"id"`
	Signals uint32 `json:"signals"`
}

type landmarkArgs struct {
	ID string `json:"id"`
}

type setLightArgs struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

type lightIDsResult struct {
	IDs []string `json:"ids"`
}

type lightStateResult struct {
	State string `json:"state"`
}

type wireVec struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type wirePose struct {
	Position wireVec `json:"position"`
	Rotation wireVec `json:"rotation"` // pitch, yaw, roll in degrees
}

type wireColor struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

func toWirePose(p sim.Pose) wirePose {
	return wirePose{
		Position: wireVec{X: p.Location.X, Y: p.Location.Y, Z: p.Location.Z},
		Rotation: wireVec{X: p.Rotation.Pitch, Y: p.Rotation.Yaw, Z: p.Rotation.Roll},
	}
}

func fromWirePose(p wirePose) sim.Pose {
	return sim.Pose{
		Location: sim.Vec3{X: p.Position.X, Y: p.Position.Y, Z: p.Position.Z},
		Rotation: sim.Rotation{Pitch: p.Rotation.X, Yaw: p.Rotation.Y, Roll: p.Rotation.Z},
	}
}
