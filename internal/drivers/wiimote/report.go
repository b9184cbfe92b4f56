package wiimote

import (
	"time"

	"go.uber.org/zap"

	"github.com/chaosweilder/wiibridge/pkg/input"
)

// Core button bits, bytes 1-2 of every button report. Active high on the
// wire. Eleven logical buttons regardless of accessory.
const (
	coreDPadLeft  = 0x0001
	coreDPadRight = 0x0002
	coreDPadDown  = 0x0004
	coreDPadUp    = 0x0008
	corePlus      = 0x0010
	coreTwo       = 0x0100
	coreOne       = 0x0200
	coreB         = 0x0400
	coreA         = 0x0800
	coreMinus     = 0x1000
	coreHome      = 0x8000
)

var coreButtonMap = []struct {
	wire uint16
	btn  input.Buttons
}{
	{coreDPadUp, input.BtnDPadUp},
	{coreDPadDown, input.BtnDPadDown},
	{coreDPadLeft, input.BtnDPadLeft},
	{coreDPadRight, input.BtnDPadRight},
	{coreA, input.BtnSouth},
	{coreB, input.BtnEast},
	{coreOne, input.BtnWest},
	{coreTwo, input.BtnNorth},
	{coreMinus, input.BtnSelect},
	{corePlus, input.BtnStart},
	{coreHome, input.BtnGuide},
}

// Classic Controller button bits in the bit-inverted 16-bit mask formed from
// extension bytes 4-5. The Classic reports its own D-pad, independent of the
// core buttons.
const (
	classicR         = 0x0002
	classicPlus      = 0x0004
	classicHome      = 0x0008
	classicMinus     = 0x0010
	classicL         = 0x0020
	classicDPadDown  = 0x0040
	classicDPadRight = 0x0080
	classicDPadUp    = 0x0100
	classicDPadLeft  = 0x0200
	classicZR        = 0x0400
	classicX         = 0x0800
	classicA         = 0x1000
	classicY         = 0x2000
	classicB         = 0x4000
	classicZL        = 0x8000
)

var classicButtonMap = []struct {
	wire uint16
	btn  input.Buttons
}{
	{classicDPadUp, input.BtnDPadUp},
	{classicDPadDown, input.BtnDPadDown},
	{classicDPadLeft, input.BtnDPadLeft},
	{classicDPadRight, input.BtnDPadRight},
	{classicA, input.BtnSouth},
	{classicB, input.BtnEast},
	{classicY, input.BtnWest},
	{classicX, input.BtnNorth},
	{classicL, input.BtnL1},
	{classicR, input.BtnR1},
	{classicZL, input.BtnL2},
	{classicZR, input.BtnR2},
	{classicMinus, input.BtnSelect},
	{classicPlus, input.BtnStart},
	{classicHome, input.BtnGuide},
}

// decode translates one button report into the slot's normalized event and,
// when the connection is in steady state, pushes the update to the router.
// Total over arbitrary input: short reports fall out of the bounds checks
// without mutating anything.
func (d *Driver) decode(sl *slot, data []byte, now time.Time) {
	if len(data) < 3 {
		return
	}
	btns := decodeCore(data[1], data[2])

	if data[0] == modeCoreExtension && len(data) >= 3+extIdentLen {
		ext := data[3:]
		switch sl.ext {
		case ExtNunchuk:
			btns |= decodeNunchuk(&sl.event, ext)
		case ExtClassic:
			btns |= decodeClassic(&sl.event, ext, true)
		case ExtClassicMini:
			btns |= decodeClassic(&sl.event, ext, false)
		case ExtNone:
			if sl.extPresent {
				d.dumpUnclassified(sl, ext, now)
			}
		}
	}
	sl.event.Buttons = btns

	if sl.state == stateReady {
		d.router.SubmitInput(sl.key, sl.event)
	}
}

func decodeCore(b1, b2 byte) input.Buttons {
	wire := uint16(b1) | uint16(b2)<<8
	var btns input.Buttons
	for _, m := range coreButtonMap {
		if wire&m.wire != 0 {
			btns |= m.btn
		}
	}
	return btns
}

// decodeNunchuk reads the stick into the left-stick axes and returns the C
// and Z buttons. Stick Y grows upward on the wire and is inverted here;
// byte 5 is active low with the accelerometer LSBs in the upper bits.
func decodeNunchuk(ev *input.Event, ext []byte) input.Buttons {
	if len(ext) < 6 {
		return 0
	}
	ev.Axes[input.AxisLeftX] = ext[0]
	ev.Axes[input.AxisLeftY] = 255 - ext[1]

	keys := ^ext[5]
	var btns input.Buttons
	if keys&0x01 != 0 {
		btns |= input.BtnL2 // Z
	}
	if keys&0x02 != 0 {
		btns |= input.BtnL1 // C
	}
	return btns
}

// widen6 and widen5 stretch the Classic's packed stick and trigger fields to
// the full 8-bit range by replicating the high bits into the vacated low
// bits, so 0x3F maps to 0xFF rather than 0xFC.
func widen6(v byte) uint8 {
	return v<<2 | v>>4
}

func widen5(v byte) uint8 {
	return v<<3 | v>>2
}

// decodeClassic handles both the Classic/Classic Pro and the NES/SNES
// Classic Mini pads. The Mini carries no sticks or analog triggers, so its
// analog fields are ignored entirely.
func decodeClassic(ev *input.Event, ext []byte, analog bool) input.Buttons {
	if len(ext) < 6 {
		return 0
	}
	if analog {
		rx := ext[0]>>3&0x18 | ext[1]>>5&0x06 | ext[2]>>7
		lt := ext[2]>>2&0x18 | ext[3]>>5
		ev.Axes[input.AxisLeftX] = widen6(ext[0] & 0x3F)
		ev.Axes[input.AxisLeftY] = widen6(ext[1] & 0x3F)
		ev.Axes[input.AxisRightX] = widen5(rx)
		ev.Axes[input.AxisRightY] = widen5(ext[2] & 0x1F)
		ev.Axes[input.AxisTriggerL] = widen5(lt)
		ev.Axes[input.AxisTriggerR] = widen5(ext[3] & 0x1F)
	}

	wire := ^(uint16(ext[4]) | uint16(ext[5])<<8)
	var btns input.Buttons
	for _, m := range classicButtonMap {
		if wire&m.wire != 0 {
			btns |= m.btn
		}
	}
	return btns
}

const unclassifiedDumpInterval = time.Second

// dumpUnclassified logs the raw extension bytes for accessories that are
// present but never classified, rate-limited per connection so a 200Hz
// report stream does not flood the log.
func (d *Driver) dumpUnclassified(sl *slot, ext []byte, now time.Time) {
	if !due(now, sl.nextDump) {
		return
	}
	sl.nextDump = now.Add(unclassifiedDumpInterval)
	n := len(ext)
	if n > 8 {
		n = 8
	}
	d.log.Debug("unclassified extension bytes",
		zap.Stringer("key", sl.key),
		zap.Binary("ext", ext[:n]))
}
