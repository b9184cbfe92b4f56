package wiimote

import (
	"testing"

	"github.com/chaosweilder/wiibridge/pkg/input"
)

func TestDecodeCore(t *testing.T) {
	tests := []struct {
		name     string
		b1, b2   byte
		expected input.Buttons
	}{
		{"nothing", 0x00, 0x00, 0},
		{"dpad left only", 0x01, 0x00, input.BtnDPadLeft},
		{"home only", 0x00, 0x80, input.BtnGuide},
		{"dpad up", 0x08, 0x00, input.BtnDPadUp},
		{"plus", 0x10, 0x00, input.BtnStart},
		{"a", 0x00, 0x08, input.BtnSouth},
		{"b", 0x00, 0x04, input.BtnEast},
		{"one+two", 0x00, 0x03, input.BtnWest | input.BtnNorth},
		{"minus", 0x00, 0x10, input.BtnSelect},
		{"everything", 0x1F, 0x9F,
			input.BtnDPadUp | input.BtnDPadDown | input.BtnDPadLeft | input.BtnDPadRight |
				input.BtnSouth | input.BtnEast | input.BtnWest | input.BtnNorth |
				input.BtnSelect | input.BtnStart | input.BtnGuide},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := decodeCore(tt.b1, tt.b2); got != tt.expected {
				t.Errorf("decodeCore(%02X, %02X) = %v, want %v", tt.b1, tt.b2, got, tt.expected)
			}
		})
	}
}

func TestDecodeNunchuk(t *testing.T) {
	ev := input.Neutral()
	// stick at wire origin, both buttons held (byte 5 is active low)
	btns := decodeNunchuk(&ev, []byte{0x00, 0x00, 0x80, 0x80, 0x80, 0xFC})
	if btns != input.BtnL1|input.BtnL2 {
		t.Errorf("buttons = %v, want c+z", btns)
	}
	if ev.Axes[input.AxisLeftX] != 0 {
		t.Errorf("stick x = %d, want 0", ev.Axes[input.AxisLeftX])
	}
	if ev.Axes[input.AxisLeftY] != 255 {
		t.Errorf("stick y = %d, want 255 (inverted)", ev.Axes[input.AxisLeftY])
	}

	// released buttons, centered stick
	ev = input.Neutral()
	btns = decodeNunchuk(&ev, []byte{0x80, 0x7F, 0x80, 0x80, 0x80, 0xFF})
	if btns != 0 {
		t.Errorf("buttons = %v, want none", btns)
	}
	if ev.Axes[input.AxisLeftX] != 0x80 {
		t.Errorf("stick x = %d, want 128", ev.Axes[input.AxisLeftX])
	}
	if ev.Axes[input.AxisLeftY] != 255-0x7F {
		t.Errorf("stick y = %d, want %d", ev.Axes[input.AxisLeftY], 255-0x7F)
	}

	// short payload must not touch the event
	ev = input.Neutral()
	if btns = decodeNunchuk(&ev, []byte{0x00, 0x00}); btns != 0 {
		t.Errorf("short payload produced buttons %v", btns)
	}
	if ev != input.Neutral() {
		t.Error("short payload mutated the event")
	}
}

func TestWidenScaling(t *testing.T) {
	tests := []struct {
		in6, out6 uint8
		in5, out5 uint8
	}{
		{0x00, 0x00, 0x00, 0x00},
		{0x3F, 0xFF, 0x1F, 0xFF},
		{0x20, 0x82, 0x10, 0x84},
	}
	for _, tt := range tests {
		if got := widen6(tt.in6); got != tt.out6 {
			t.Errorf("widen6(%#02x) = %#02x, want %#02x", tt.in6, got, tt.out6)
		}
		if got := widen5(tt.in5); got != tt.out5 {
			t.Errorf("widen5(%#02x) = %#02x, want %#02x", tt.in5, got, tt.out5)
		}
	}
}

func TestDecodeClassicButtons(t *testing.T) {
	// all buttons released: mask bytes read 0xFF on the wire
	ev := input.Neutral()
	if btns := decodeClassic(&ev, []byte{0x00, 0x00, 0x00, 0x00, 0xFF, 0xFF}, true); btns != 0 {
		t.Errorf("released mask produced buttons %v", btns)
	}

	tests := []struct {
		name     string
		b4, b5   byte
		expected input.Buttons
	}{
		{"a", 0xFF, ^byte(0x10), input.BtnSouth},
		{"b", 0xFF, ^byte(0x40), input.BtnEast},
		{"x", 0xFF, ^byte(0x08), input.BtnNorth},
		{"y", 0xFF, ^byte(0x20), input.BtnWest},
		{"l", ^byte(0x20), 0xFF, input.BtnL1},
		{"r", ^byte(0x02), 0xFF, input.BtnR1},
		{"zl", 0xFF, ^byte(0x80), input.BtnL2},
		{"zr", 0xFF, ^byte(0x04), input.BtnR2},
		{"plus", ^byte(0x04), 0xFF, input.BtnStart},
		{"minus", ^byte(0x10), 0xFF, input.BtnSelect},
		{"home", ^byte(0x08), 0xFF, input.BtnGuide},
		{"dpad down", ^byte(0x40), 0xFF, input.BtnDPadDown},
		{"dpad right", ^byte(0x80), 0xFF, input.BtnDPadRight},
		{"dpad up", 0xFF, ^byte(0x01), input.BtnDPadUp},
		{"dpad left", 0xFF, ^byte(0x02), input.BtnDPadLeft},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := input.Neutral()
			got := decodeClassic(&ev, []byte{0x00, 0x00, 0x00, 0x00, tt.b4, tt.b5}, true)
			if got != tt.expected {
				t.Errorf("buttons = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestDecodeClassicAnalog(t *testing.T) {
	// left stick at 6-bit max, everything else at wire zero
	ev := input.Neutral()
	decodeClassic(&ev, []byte{0x3F, 0x3F, 0x00, 0x00, 0xFF, 0xFF}, true)
	if ev.Axes[input.AxisLeftX] != 255 || ev.Axes[input.AxisLeftY] != 255 {
		t.Errorf("left stick = (%d,%d), want (255,255)",
			ev.Axes[input.AxisLeftX], ev.Axes[input.AxisLeftY])
	}
	if ev.Axes[input.AxisRightX] != 0 || ev.Axes[input.AxisRightY] != 0 {
		t.Errorf("right stick = (%d,%d), want (0,0)",
			ev.Axes[input.AxisRightX], ev.Axes[input.AxisRightY])
	}

	// right stick X is split across bytes 0-2: 0b11111 reassembles from
	// the top bits of bytes 0-1 plus the top bit of byte 2
	ev = input.Neutral()
	decodeClassic(&ev, []byte{0xC0, 0xC0, 0x80, 0x00, 0xFF, 0xFF}, true)
	if ev.Axes[input.AxisRightX] != 255 {
		t.Errorf("right stick x = %d, want 255", ev.Axes[input.AxisRightX])
	}

	// triggers: LT splits across bytes 2-3, RT sits in byte 3
	ev = input.Neutral()
	decodeClassic(&ev, []byte{0x00, 0x00, 0x60, 0xFF, 0xFF, 0xFF}, true)
	if ev.Axes[input.AxisTriggerL] != 255 {
		t.Errorf("trigger l = %d, want 255", ev.Axes[input.AxisTriggerL])
	}
	if ev.Axes[input.AxisTriggerR] != 255 {
		t.Errorf("trigger r = %d, want 255", ev.Axes[input.AxisTriggerR])
	}

	// the mini variant has no analog hardware at all
	ev = input.Neutral()
	decodeClassic(&ev, []byte{0x3F, 0x3F, 0xFF, 0xFF, 0xFF, 0xFF}, false)
	want := input.Neutral()
	if ev != want {
		t.Errorf("mini decode mutated axes: %+v", ev.Axes)
	}
}

func TestClassifyExtension(t *testing.T) {
	tests := []struct {
		name     string
		id       []byte
		expected Extension
	}{
		{"nunchuk", []byte{0x00, 0x00, 0xA4, 0x20, 0x00, 0x00}, ExtNunchuk},
		{"classic", []byte{0x00, 0x00, 0xA4, 0x20, 0x01, 0x01}, ExtClassic},
		{"classic pro", []byte{0x01, 0x00, 0xA4, 0x20, 0x01, 0x01}, ExtClassic},
		{"classic mini", []byte{0x02, 0x00, 0xA4, 0x20, 0x01, 0x01}, ExtClassicMini},
		{"wii u pro not ours", []byte{0x00, 0x00, 0xA4, 0x20, 0x01, 0x20}, ExtNone},
		{"unknown type falls back to nunchuk", []byte{0x00, 0x00, 0xA4, 0x20, 0x03, 0x05}, ExtNunchuk},
		{"bad signature", []byte{0x00, 0x00, 0xA5, 0x20, 0x00, 0x00}, ExtNone},
		{"bad signature second byte", []byte{0x00, 0x00, 0xA4, 0x21, 0x00, 0x00}, ExtNone},
		{"short read", []byte{0xA4, 0x20}, ExtNone},
		{"empty", nil, ExtNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyExtension(tt.id); got != tt.expected {
				t.Errorf("classifyExtension(% X) = %v, want %v", tt.id, got, tt.expected)
			}
		})
	}
}
