package bridge

import (
	"context"
	"time"

	"github.com/twinsync/twinsync/internal/sim"
)

// Direction labels which world drove a propagation event.
type Direction string

const (
	TrafficToDriving Direction = "traffic_to_driving"
	DrivingToTraffic Direction = "driving_to_traffic"
)

// EventKind classifies one propagation outcome within a tick.
type EventKind string

const (
	EventMirrorSpawned   EventKind = "mirror_spawned"
	EventMirrorDestroyed EventKind = "mirror_destroyed"
	EventSpawnRejected   EventKind = "spawn_rejected"
	EventExcluded        EventKind = "excluded"
	EventLightPushed     EventKind = "light_pushed"
)

// Event is one propagation outcome: a mirror created or destroyed, a spawn
// the target engine declined, a permanent translation exclusion, or a
// traffic-light push.
type Event struct {
	Kind      EventKind      `json:"kind"`
	Direction Direction      `json:"direction"`
	Source    sim.ActorID    `json:"source,omitempty"`
	Mirror    sim.ActorID    `json:"mirror,omitempty"`
	Landmark  sim.LandmarkID `json:"landmark,omitempty"`
	Detail    string         `json:"detail,omitempty"`
}

// TickRecord summarizes one reconciliation tick for the journal.
type TickRecord struct {
	Seq      int64         `json:"seq"`
	Elapsed  time.Duration `json:"elapsed"`
	Mirrored int           `json:"mirrored"` // live pairs across both tables after the tick
	Events   []Event       `json:"events"`
}

// Recorder observes completed ticks. Implementations must treat the record
// as read-only. A recorder failure is logged and never fails the tick.
//
// Implemented by journal.Store; a nil Recorder disables recording.
type Recorder interface {
	RecordTick(ctx context.Context, rec TickRecord) error
}
