package sim

// Signals is the traffic engine's vehicle signal bitmask.
//
// Bit assignments follow the microscopic simulator's wire format and must not
// be reordered: adapters pass the raw integer through unchanged.
type Signals uint32

const (
	SignalBlinkerRight Signals = 1 << iota
	SignalBlinkerLeft
	SignalBlinkerEmergency
	SignalBrake
	SignalFront
	SignalFog
	SignalHighBeam
	SignalBackdrive
	SignalWiper
	SignalDoorOpenLeft
	SignalDoorOpenRight
	SignalEmergencyBlue
	SignalEmergencyRed
	SignalEmergencyYellow
)

// Lights is the driving engine's vehicle light state bitmask.
type Lights uint32

const (
	LightNone     Lights = 0
	LightPosition Lights = 1 << (iota - 1)
	LightLowBeam
	LightHighBeam
	LightBrake
	LightRightBlinker
	LightLeftBlinker
	LightReverse
	LightFog
	LightInterior
	LightSpecial1
	LightSpecial2
)

// LightPhase is a traffic-light phase in the driving world's vocabulary.
type LightPhase int

const (
	PhaseRed LightPhase = iota
	PhaseYellow
	PhaseGreen
	PhaseOff
	PhaseUnknown
)

func (p LightPhase) String() string {
	switch p {
	case PhaseRed:
		return "red"
	case PhaseYellow:
		return "yellow"
	case PhaseGreen:
		return "green"
	case PhaseOff:
		return "off"
	default:
		return "unknown"
	}
}

// LinkState is one signal head's state in the traffic world's vocabulary:
// a single byte per controlled link ('r', 'y', 'g', 'G', 's', 'o', 'O', 'u').
// A traffic-light program state string is a sequence of these.
type LinkState byte

const (
	LinkRed         LinkState = 'r'
	LinkYellow      LinkState = 'y'
	LinkGreen       LinkState = 'g'
	LinkGreenMajor  LinkState = 'G'
	LinkGreenRight  LinkState = 's'
	LinkOff         LinkState = 'O'
	LinkOffBlinking LinkState = 'o'
	LinkUnknown     LinkState = 'u'
)
