package wiimote

import (
	"testing"
	"time"

	"github.com/chaosweilder/wiibridge/internal/drivers"
	"github.com/chaosweilder/wiibridge/pkg/input"
)

func TestSlotPoolAcquireRelease(t *testing.T) {
	now := time.Unix(100, 0)
	p := newSlotPool(2)

	k1 := drivers.ConnKey{Addr: "aa:bb", Instance: 1}
	k2 := drivers.ConnKey{Addr: "cc:dd", Instance: 1}
	k3 := drivers.ConnKey{Addr: "ee:ff", Instance: 1}

	i1, ok := p.acquire(k1, now)
	if !ok {
		t.Fatal("first acquire failed")
	}
	i2, ok := p.acquire(k2, now)
	if !ok {
		t.Fatal("second acquire failed")
	}
	if _, ok := p.acquire(k3, now); ok {
		t.Fatal("acquire succeeded on exhausted pool")
	}

	sl, _, ok := p.lookup(k1)
	if !ok {
		t.Fatal("lookup failed after acquire")
	}
	if sl.state != stateWaitInit {
		t.Errorf("fresh slot state = %v, want %v", sl.state, stateWaitInit)
	}
	if !sl.deadline.Equal(now.Add(initDelay)) {
		t.Errorf("fresh slot deadline = %v, want %v", sl.deadline, now.Add(initDelay))
	}
	if sl.event != input.Neutral() {
		t.Errorf("fresh slot event = %+v, want neutral", sl.event)
	}
	if sl.ext != ExtNone || sl.extPresent {
		t.Errorf("fresh slot extension = %v present=%v, want none/false", sl.ext, sl.extPresent)
	}

	p.release(i1)
	if _, _, ok := p.lookup(k1); ok {
		t.Error("lookup succeeded after release")
	}
	// release is idempotent
	p.release(i1)
	p.release(-1)
	p.release(99)

	// a released slot is immediately reusable
	if _, ok := p.acquire(k3, now); !ok {
		t.Fatal("acquire failed after release")
	}
	_ = i2
}

func TestSlotNeutralEvent(t *testing.T) {
	ev := input.Neutral()
	if ev.Buttons != 0 {
		t.Errorf("neutral buttons = %v, want none", ev.Buttons)
	}
	for _, a := range []input.Axis{input.AxisLeftX, input.AxisLeftY, input.AxisRightX, input.AxisRightY} {
		if ev.Axes[a] != input.AxisCenter {
			t.Errorf("axis %d = %d, want %d", a, ev.Axes[a], input.AxisCenter)
		}
	}
	for _, a := range []input.Axis{input.AxisTriggerL, input.AxisTriggerR} {
		if ev.Axes[a] != 0 {
			t.Errorf("trigger axis %d = %d, want 0", a, ev.Axes[a])
		}
	}
}
