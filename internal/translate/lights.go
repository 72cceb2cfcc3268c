package translate

import "github.com/twinsync/twinsync/internal/sim"

// DrivingLights maps traffic signal bits onto the driving light bitmask.
//
// Returns ok=false when the computed state equals current, meaning no write
// is needed this tick. Signal bits with no driving equivalent (wipers, door
// state) are dropped.
func DrivingLights(current sim.Lights, signals sim.Signals) (sim.Lights, bool) {
	lights := sim.LightNone

	if signals&sim.SignalBlinkerRight != 0 {
		lights |= sim.LightRightBlinker
	}
	if signals&sim.SignalBlinkerLeft != 0 {
		lights |= sim.LightLeftBlinker
	}
	if signals&sim.SignalBlinkerEmergency != 0 {
		lights |= sim.LightRightBlinker | sim.LightLeftBlinker
	}
	if signals&sim.SignalBrake != 0 {
		lights |= sim.LightBrake
	}
	if signals&sim.SignalFront != 0 {
		lights |= sim.LightPosition | sim.LightLowBeam
	}
	if signals&sim.SignalFog != 0 {
		lights |= sim.LightFog
	}
	if signals&sim.SignalHighBeam != 0 {
		lights |= sim.LightHighBeam
	}
	if signals&sim.SignalBackdrive != 0 {
		lights |= sim.LightReverse
	}
	if signals&(sim.SignalEmergencyBlue|sim.SignalEmergencyRed|sim.SignalEmergencyYellow) != 0 {
		lights |= sim.LightSpecial1
	}

	if lights == current {
		return current, false
	}
	return lights, true
}

// TrafficSignals maps driving light bits onto the traffic signal bitmask.
//
// Returns ok=false when the computed state equals current. Driving bits with
// no traffic equivalent (interior light) are dropped.
func TrafficSignals(current sim.Signals, lights sim.Lights) (sim.Signals, bool) {
	right := lights&sim.LightRightBlinker != 0
	left := lights&sim.LightLeftBlinker != 0

	var signals sim.Signals
	switch {
	case right && left:
		signals |= sim.SignalBlinkerEmergency
	case right:
		signals |= sim.SignalBlinkerRight
	case left:
		signals |= sim.SignalBlinkerLeft
	}
	if lights&sim.LightBrake != 0 {
		signals |= sim.SignalBrake
	}
	if lights&(sim.LightPosition|sim.LightLowBeam) != 0 {
		signals |= sim.SignalFront
	}
	if lights&sim.LightFog != 0 {
		signals |= sim.SignalFog
	}
	if lights&sim.LightHighBeam != 0 {
		signals |= sim.SignalHighBeam
	}
	if lights&sim.LightReverse != 0 {
		signals |= sim.SignalBackdrive
	}
	if lights&(sim.LightSpecial1|sim.LightSpecial2) != 0 {
		signals |= sim.SignalEmergencyBlue
	}

	if signals == current {
		return current, false
	}
	return signals, true
}

// DrivingPhase maps a traffic link state to a driving traffic-light phase.
// Unrecognized states are treated as red: the safe interpretation for a
// signal the mapping does not understand.
func DrivingPhase(state sim.LinkState) sim.LightPhase {
	switch state {
	case sim.LinkRed:
		return sim.PhaseRed
	case sim.LinkYellow:
		return sim.PhaseYellow
	case sim.LinkGreen, sim.LinkGreenMajor, sim.LinkGreenRight:
		return sim.PhaseGreen
	case sim.LinkOff, sim.LinkOffBlinking:
		return sim.PhaseOff
	default:
		return sim.PhaseRed
	}
}

// TrafficLinkState maps a driving traffic-light phase to a traffic link
// state. Unknown phases come back red for the same reason as DrivingPhase.
func TrafficLinkState(phase sim.LightPhase) sim.LinkState {
	switch phase {
	case sim.PhaseRed:
		return sim.LinkRed
	case sim.PhaseYellow:
		return sim.LinkYellow
	case sim.PhaseGreen:
		return sim.LinkGreenMajor
	case sim.PhaseOff:
		return sim.LinkOff
	default:
		return sim.LinkRed
	}
}

// ParsePhase parses the driving engine's wire name for a phase.
func ParsePhase(s string) sim.LightPhase {
	switch s {
	case "red":
		return sim.PhaseRed
	case "yellow":
		return sim.PhaseYellow
	case "green":
		return sim.PhaseGreen
	case "off":
		return sim.PhaseOff
	default:
		return sim.PhaseUnknown
	}
}
