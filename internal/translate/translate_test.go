package translate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twinsync/twinsync/internal/catalog"
	"github.com/twinsync/twinsync/internal/sim"
)

func testTranslator(t *testing.T, offset sim.Vec3) *Translator {
	t.Helper()
	cat, err := catalog.New([]catalog.Entry{
		{VType: "vt.car", Blueprint: "bp.car", Class: sim.ClassPassenger},
		{VType: "vt.bus", Blueprint: "bp.bus", Class: sim.ClassBus},
	})
	require.NoError(t, err)
	return New(cat, offset)
}

func TestDrivingDescriptor_Mapped(t *testing.T) {
	tr := testTranslator(t, sim.Vec3{})

	desc, ok := tr.DrivingDescriptor(sim.EntityView{TypeID: "vt.car"}, false)
	require.True(t, ok)
	assert.Equal(t, "bp.car", desc.TypeID)
	assert.Equal(t, sim.ClassPassenger, desc.Class)
	assert.Nil(t, desc.Color, "color must not flow when sync is off")
	assert.NotEmpty(t, desc.Role)
}

func TestDrivingDescriptor_NoEquivalent(t *testing.T) {
	tr := testTranslator(t, sim.Vec3{})

	_, ok := tr.DrivingDescriptor(sim.EntityView{TypeID: "vt.tram"}, false)
	assert.False(t, ok)
}

func TestDrivingDescriptor_ColorSync(t *testing.T) {
	tr := testTranslator(t, sim.Vec3{})
	view := sim.EntityView{TypeID: "vt.car", Color: &sim.Color{R: 200, G: 10, B: 10}}

	desc, ok := tr.DrivingDescriptor(view, true)
	require.True(t, ok)
	require.NotNil(t, desc.Color)
	assert.Equal(t, uint8(200), desc.Color.R)

	// The descriptor must own its color copy, not alias the view's.
	view.Color.R = 0
	assert.Equal(t, uint8(200), desc.Color.R)
}

func TestTrafficDescriptor_Mapped(t *testing.T) {
	tr := testTranslator(t, sim.Vec3{})

	desc, ok := tr.TrafficDescriptor(sim.EntityView{TypeID: "bp.bus"}, false)
	require.True(t, ok)
	assert.Equal(t, "vt.bus", desc.TypeID)
	assert.Equal(t, sim.ClassBus, desc.Class)
}

func TestTrafficDescriptor_NoEquivalent(t *testing.T) {
	tr := testTranslator(t, sim.Vec3{})

	_, ok := tr.TrafficDescriptor(sim.EntityView{TypeID: "bp.unknown"}, false)
	assert.False(t, ok)
}

func TestDrivingPose_AxisFlipAndOffset(t *testing.T) {
	tr := testTranslator(t, sim.Vec3{X: 100, Y: 50})

	// Heading 90 degrees = due east in the traffic frame; the front bumper
	// anchor slides back along +X by the half length.
	in := sim.Pose{
		Location: sim.Vec3{X: 110, Y: 60, Z: 0},
		Rotation: sim.Rotation{Yaw: 90},
	}
	out := tr.DrivingPose(in, sim.Extent{X: 2})

	assert.InDelta(t, 8, out.Location.X, 1e-9)
	assert.InDelta(t, -10, out.Location.Y, 1e-9)
	assert.InDelta(t, 0, out.Location.Z, 1e-9)
	assert.InDelta(t, 0, out.Rotation.Yaw, 1e-9)
}

func TestPoseRoundTrip(t *testing.T) {
	tr := testTranslator(t, sim.Vec3{X: -25.5, Y: 13.25})
	extent := sim.Extent{X: 2.45, Y: 1.0, Z: 0.75}

	poses := []sim.Pose{
		{Location: sim.Vec3{X: 10, Y: 20, Z: 0.3}, Rotation: sim.Rotation{Yaw: 0}},
		{Location: sim.Vec3{X: -3.5, Y: 99, Z: 0}, Rotation: sim.Rotation{Yaw: 90}},
		{Location: sim.Vec3{X: 250, Y: -80, Z: 1.2}, Rotation: sim.Rotation{Yaw: 217.5}},
		{Location: sim.Vec3{X: 0, Y: 0, Z: 0}, Rotation: sim.Rotation{Yaw: -45}},
	}

	for _, in := range poses {
		out := tr.TrafficPose(tr.DrivingPose(in, extent), extent)
		assert.InDelta(t, in.Location.X, out.Location.X, 1e-9)
		assert.InDelta(t, in.Location.Y, out.Location.Y, 1e-9)
		assert.InDelta(t, in.Location.Z, out.Location.Z, 1e-9)
		assert.InDelta(t, in.Rotation.Yaw, out.Rotation.Yaw, 1e-9)
	}
}

func TestDrivingLights_Mapping(t *testing.T) {
	signals := sim.SignalBlinkerRight | sim.SignalBrake | sim.SignalFront

	lights, changed := DrivingLights(sim.LightNone, signals)
	require.True(t, changed)
	assert.Equal(t, sim.LightRightBlinker|sim.LightBrake|sim.LightPosition|sim.LightLowBeam, lights)
}

func TestDrivingLights_EmergencyBlinker(t *testing.T) {
	lights, changed := DrivingLights(sim.LightNone, sim.SignalBlinkerEmergency)
	require.True(t, changed)
	assert.Equal(t, sim.LightRightBlinker|sim.LightLeftBlinker, lights)
}

func TestDrivingLights_NoChange(t *testing.T) {
	current := sim.LightBrake
	_, changed := DrivingLights(current, sim.SignalBrake)
	assert.False(t, changed, "identical computed state must not request a write")
}

func TestTrafficSignals_Mapping(t *testing.T) {
	lights := sim.LightLeftBlinker | sim.LightReverse

	signals, changed := TrafficSignals(0, lights)
	require.True(t, changed)
	assert.Equal(t, sim.SignalBlinkerLeft|sim.SignalBackdrive, signals)
}

func TestTrafficSignals_BothBlinkersBecomeEmergency(t *testing.T) {
	signals, changed := TrafficSignals(0, sim.LightLeftBlinker|sim.LightRightBlinker)
	require.True(t, changed)
	assert.Equal(t, sim.SignalBlinkerEmergency, signals)
}

func TestTrafficSignals_NoChange(t *testing.T) {
	current := sim.SignalBrake
	_, changed := TrafficSignals(current, sim.LightBrake)
	assert.False(t, changed)
}

func TestPhaseMapping(t *testing.T) {
	cases := []struct {
		link  sim.LinkState
		phase sim.LightPhase
	}{
		{sim.LinkRed, sim.PhaseRed},
		{sim.LinkYellow, sim.PhaseYellow},
		{sim.LinkGreen, sim.PhaseGreen},
		{sim.LinkGreenMajor, sim.PhaseGreen},
		{sim.LinkGreenRight, sim.PhaseGreen},
		{sim.LinkOff, sim.PhaseOff},
		{sim.LinkOffBlinking, sim.PhaseOff},
		{sim.LinkState('x'), sim.PhaseRed},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.phase, DrivingPhase(tc.link), "link %q", tc.link)
	}
}

func TestTrafficLinkState(t *testing.T) {
	assert.Equal(t, sim.LinkRed, TrafficLinkState(sim.PhaseRed))
	assert.Equal(t, sim.LinkYellow, TrafficLinkState(sim.PhaseYellow))
	assert.Equal(t, sim.LinkGreenMajor, TrafficLinkState(sim.PhaseGreen))
	assert.Equal(t, sim.LinkOff, TrafficLinkState(sim.PhaseOff))
	assert.Equal(t, sim.LinkRed, TrafficLinkState(sim.PhaseUnknown))
}

func TestParsePhase(t *testing.T) {
	assert.Equal(t, sim.PhaseGreen, ParsePhase("green"))
	assert.Equal(t, sim.PhaseUnknown, ParsePhase("purple"))
}
