package driving

import "github.com/twinsync/twinsync/internal/sim"

// Method parameter and result types. Poses and extents reuse the sim JSON
// shapes; the engine speaks the same field names.

type actorArgs struct {
	ID string `json:"id"`
}

type actorListResult struct {
	IDs []string `json:"ids"`
}

type actorResult struct {
	Blueprint string     `json:"blueprint"`
	Class     string     `json:"class,omitempty"`
	Pose      sim.Pose   `json:"pose"`
	Extent    sim.Extent `json:"extent"`
	Color     *sim.Color `json:"color,omitempty"`
	Lights    *uint32    `json:"lights,omitempty"`
}

type spawnArgs struct {
	Blueprint string     `json:"blueprint"`
	Pose      sim.Pose   `json:"pose"`
	Color     *sim.Color `json:"color,omitempty"`
	Role      string     `json:"role,omitempty"`
}

type spawnResult struct {
	ID string `json:"id"`
}

type transformArgs struct {
	ID   string   `json:"id"`
	Pose sim.Pose `json:"pose"`
}

type lightsArgs struct {
	ID     string `json:"id"`
	Lights uint32 `json:"lights"`
}

type landmarkArgs struct {
	ID string `json:"id"`
}

type setLightArgs struct {
	ID     string `json:"id"`
	State  string `json:"state"`
	Freeze bool   `json:"freeze,omitempty"`
}

type lightListResult struct {
	IDs []string `json:"ids"`
}

type lightStateResult struct {
	State string `json:"state"`
}

type settingsArgs struct {
	Synchronous  bool  `json:"synchronous"`
	FixedDeltaMS int64 `json:"fixed_delta_ms"`
}

type frameNotification struct {
	Seq    int64  `json:"seq"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Data   []byte `json:"data"` // base64 on the wire
}
