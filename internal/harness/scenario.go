package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines one conformance scenario.
type Scenario struct {
	// Name uniquely identifies the scenario; also the golden file name.
	Name string `yaml:"name"`

	// Description explains what behavior the scenario pins down.
	Description string `yaml:"description"`

	// Config is the reconciliation configuration for the run.
	Config ConfigSpec `yaml:"config"`

	// Ticks is the scripted event sequence, one entry per reconciliation
	// tick. An empty entry is a tick where nothing happens in either world.
	Ticks []TickStep `yaml:"ticks"`

	// Assertions validate the final worlds and mapping state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// ConfigSpec mirrors bridge.Config in YAML form.
type ConfigSpec struct {
	Authority  string `yaml:"authority"`
	SyncColor  bool   `yaml:"sync_color,omitempty"`
	SyncLights bool   `yaml:"sync_lights,omitempty"`
	StepMS     int    `yaml:"step_ms"`
	// OffsetX/OffsetY is the network origin offset applied by the pose
	// translation, in meters.
	OffsetX float64 `yaml:"offset_x,omitempty"`
	OffsetY float64 `yaml:"offset_y,omitempty"`
}

// TickStep scripts both worlds for one tick. Events are applied before the
// worlds advance, so they surface in this tick's reports.
type TickStep struct {
	Traffic WorldStep `yaml:"traffic,omitempty"`
	Driving WorldStep `yaml:"driving,omitempty"`
}

// WorldStep scripts one world for one tick.
type WorldStep struct {
	// Spawn queues engine-native vehicle arrivals.
	Spawn []SpawnSpec `yaml:"spawn,omitempty"`

	// Destroy queues engine-native vehicle departures by id.
	Destroy []string `yaml:"destroy,omitempty"`

	// RejectSpawns makes the world decline the next n bridge spawn calls.
	RejectSpawns int `yaml:"reject_spawns,omitempty"`

	// Stale marks actors whose reads fail with a stale reference.
	Stale []string `yaml:"stale,omitempty"`

	// Lights seeds or overwrites traffic-light states, landmark id to
	// world-native state string.
	Lights map[string]string `yaml:"lights,omitempty"`
}

// SpawnSpec describes one engine-native vehicle arrival.
type SpawnSpec struct {
	ID   string  `yaml:"id"`
	Type string  `yaml:"type"`
	X    float64 `yaml:"x,omitempty"`
	Y    float64 `yaml:"y,omitempty"`
	Z    float64 `yaml:"z,omitempty"`
	Yaw  float64 `yaml:"yaw,omitempty"`

	// Lights is the world-native light value; nil means the engine does not
	// report light state for this vehicle.
	Lights *uint32 `yaml:"lights,omitempty"`
}

// Assertion validates final state after all ticks ran.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// World selects "traffic" or "driving" where the assertion looks.
	World string `yaml:"world,omitempty"`

	// Source is the home-world actor whose mirror is checked (mirrored).
	Source string `yaml:"source,omitempty"`

	// Actor is an actor id checked for absence (absent).
	Actor string `yaml:"actor,omitempty"`

	// Landmark and State check a traffic-light (light).
	Landmark string `yaml:"landmark,omitempty"`
	State    string `yaml:"state,omitempty"`

	// Kind and Count check trace events (event_count); Count alone checks
	// live pairs (mirror_count).
	Kind  string `yaml:"kind,omitempty"`
	Count int    `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertMirrored    = "mirrored"     // Source in World has a live mirror
	AssertAbsent      = "absent"       // Actor does not exist in World
	AssertMirrorCount = "mirror_count" // live pair count across both tables
	AssertLight       = "light"        // landmark State in World
	AssertEventCount  = "event_count"  // Kind occurs Count times in the trace
)

// LoadScenario reads and parses a scenario file. Unknown YAML fields are
// rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	var scenario Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Ticks) == 0 {
		return fmt.Errorf("ticks list is required and must be non-empty")
	}
	for i, tick := range s.Ticks {
		for _, spawn := range append(append([]SpawnSpec{}, tick.Traffic.Spawn...), tick.Driving.Spawn...) {
			if spawn.ID == "" || spawn.Type == "" {
				return fmt.Errorf("tick %d: spawn needs id and type", i+1)
			}
		}
	}
	for i, a := range s.Assertions {
		switch a.Type {
		case AssertMirrored, AssertAbsent, AssertLight:
			if a.World != "traffic" && a.World != "driving" {
				return fmt.Errorf("assertion %d: world must be traffic or driving", i)
			}
		case AssertMirrorCount, AssertEventCount:
		default:
			return fmt.Errorf("assertion %d: unknown type %q", i, a.Type)
		}
	}
	return nil
}
