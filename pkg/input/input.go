// Package input defines the normalized controller event model shared by
// drivers and downstream consumers.
package input

import "strings"

// Buttons is a bitmask of logical gamepad buttons.
type Buttons uint32

const (
	BtnDPadUp Buttons = 1 << iota
	BtnDPadDown
	BtnDPadLeft
	BtnDPadRight
	BtnSouth
	BtnEast
	BtnWest
	BtnNorth
	BtnL1
	BtnR1
	BtnL2
	BtnR2
	BtnSelect
	BtnStart
	BtnGuide
)

var buttonNames = []struct {
	mask Buttons
	name string
}{
	{BtnDPadUp, "dpad-up"},
	{BtnDPadDown, "dpad-down"},
	{BtnDPadLeft, "dpad-left"},
	{BtnDPadRight, "dpad-right"},
	{BtnSouth, "south"},
	{BtnEast, "east"},
	{BtnWest, "west"},
	{BtnNorth, "north"},
	{BtnL1, "l1"},
	{BtnR1, "r1"},
	{BtnL2, "l2"},
	{BtnR2, "r2"},
	{BtnSelect, "select"},
	{BtnStart, "start"},
	{BtnGuide, "guide"},
}

// Has reports whether every bit in mask is set.
func (b Buttons) Has(mask Buttons) bool {
	return b&mask == mask
}

// With returns b with mask set or cleared.
func (b Buttons) With(mask Buttons, on bool) Buttons {
	if on {
		return b | mask
	}
	return b &^ mask
}

func (b Buttons) String() string {
	if b == 0 {
		return "none"
	}
	var parts []string
	for _, bn := range buttonNames {
		if b.Has(bn.mask) {
			parts = append(parts, bn.name)
		}
	}
	return strings.Join(parts, "+")
}

// Axis indexes one analog channel of an Event.
type Axis int

const (
	AxisLeftX Axis = iota
	AxisLeftY
	AxisRightX
	AxisRightY
	AxisTriggerL
	AxisTriggerR

	AxisCount
)

// AxisCenter is the resting value of a stick axis. Trigger axes rest at 0.
const AxisCenter uint8 = 128

// Event is one normalized controller snapshot. Axis values span 0-255.
type Event struct {
	Buttons Buttons
	Axes    [AxisCount]uint8
}

// Neutral returns an event with no buttons held, sticks centered and
// triggers released.
func Neutral() Event {
	var ev Event
	ev.ResetAxes()
	return ev
}

// ResetAxes centers the stick axes and releases the triggers, leaving the
// button mask untouched.
func (ev *Event) ResetAxes() {
	ev.Axes[AxisLeftX] = AxisCenter
	ev.Axes[AxisLeftY] = AxisCenter
	ev.Axes[AxisRightX] = AxisCenter
	ev.Axes[AxisRightY] = AxisCenter
	ev.Axes[AxisTriggerL] = 0
	ev.Axes[AxisTriggerR] = 0
}
