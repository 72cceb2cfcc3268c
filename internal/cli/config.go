package cli

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/twinsync/twinsync/internal/bridge"
)

// FileConfig is the twinsync run configuration file.
type FileConfig struct {
	Traffic TrafficConfig `yaml:"traffic"`
	Driving DrivingConfig `yaml:"driving"`
	Sync    SyncConfig    `yaml:"sync"`

	// Catalog is an optional directory of CUE catalog files; empty means
	// the built-in default catalog.
	Catalog string `yaml:"catalog,omitempty"`

	// Journal is an optional SQLite journal path; empty disables recording.
	Journal string `yaml:"journal,omitempty"`
}

// TrafficConfig locates the traffic engine.
type TrafficConfig struct {
	Addr     string `yaml:"addr"`
	Scenario string `yaml:"scenario"`
}

// DrivingConfig locates the driving engine.
type DrivingConfig struct {
	URL string `yaml:"url"`

	// Follow is the traffic-world id of the ego vehicle. The spectator
	// chases its driving mirror once the bridge creates it, with a front
	// camera attached. Optional, cosmetic.
	Follow string `yaml:"follow,omitempty"`
}

// SyncConfig mirrors bridge.Config plus the pose translation offset.
type SyncConfig struct {
	Authority  string  `yaml:"authority"`
	SyncColor  bool    `yaml:"sync_color,omitempty"`
	SyncLights bool    `yaml:"sync_lights,omitempty"`
	StepMS     int     `yaml:"step_ms"`
	OffsetX    float64 `yaml:"offset_x,omitempty"`
	OffsetY    float64 `yaml:"offset_y,omitempty"`
}

// LoadConfig reads and validates a configuration file. Unknown fields are
// rejected so typos fail loudly.
func LoadConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks the file's own fields plus the derived bridge config.
func (c *FileConfig) Validate() error {
	if c.Traffic.Addr == "" {
		return fmt.Errorf("traffic.addr is required")
	}
	if c.Traffic.Scenario == "" {
		return fmt.Errorf("traffic.scenario is required")
	}
	if c.Driving.URL == "" {
		return fmt.Errorf("driving.url is required")
	}
	if _, err := c.BridgeConfig(); err != nil {
		return err
	}
	return nil
}

// BridgeConfig derives the validated reconciliation configuration.
func (c *FileConfig) BridgeConfig() (bridge.Config, error) {
	authority, err := bridge.ParseAuthority(c.Sync.Authority)
	if err != nil {
		return bridge.Config{}, err
	}
	cfg := bridge.Config{
		Authority:         authority,
		SyncVehicleColor:  c.Sync.SyncColor,
		SyncVehicleLights: c.Sync.SyncLights,
		StepLength:        time.Duration(c.Sync.StepMS) * time.Millisecond,
	}
	if err := cfg.Validate(); err != nil {
		return bridge.Config{}, err
	}
	return cfg, nil
}
