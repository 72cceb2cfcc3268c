package bridge

import (
	"fmt"
	"time"
)

// Authority selects which world's traffic-light state is propagated to the
// other. AuthorityNone disables cross-world light sync entirely: each world's
// signals evolve independently.
type Authority string

const (
	AuthorityNone    Authority = "none"
	AuthorityTraffic Authority = "traffic"
	AuthorityDriving Authority = "driving"
)

// ParseAuthority validates an authority mode string.
func ParseAuthority(s string) (Authority, error) {
	switch Authority(s) {
	case AuthorityNone, AuthorityTraffic, AuthorityDriving:
		return Authority(s), nil
	default:
		return "", fmt.Errorf("invalid traffic-light authority %q (none|traffic|driving)", s)
	}
}

// Config is the immutable per-run synchronization configuration.
// Read-only after construction; Validate before use.
type Config struct {
	// Authority selects traffic-light propagation direction.
	Authority Authority

	// SyncVehicleColor mirrors vehicle color onto spawned mirrors.
	SyncVehicleColor bool

	// SyncVehicleLights mirrors vehicle light state every tick.
	SyncVehicleLights bool

	// StepLength is the fixed simulation step both worlds advance by, and
	// the real-time cadence the Runner paces to.
	StepLength time.Duration
}

// Validate checks the configuration. StepLength must be positive: a zero
// step would make the pacing loop spin and the engines step by nothing.
func (c Config) Validate() error {
	if _, err := ParseAuthority(string(c.Authority)); err != nil {
		return err
	}
	if c.StepLength <= 0 {
		return fmt.Errorf("step length must be positive, got %v", c.StepLength)
	}
	return nil
}
