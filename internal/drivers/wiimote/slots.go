package wiimote

import (
	"time"

	"github.com/chaosweilder/wiibridge/internal/drivers"
	"github.com/chaosweilder/wiibridge/pkg/input"
)

// slot holds the full state of one connection. Slots are drawn from a fixed
// arena and addressed by index; nothing outside this package ever sees a
// pointer into the arena.
type slot struct {
	inUse bool
	key   drivers.ConnKey

	state      connState
	ext        Extension
	extPresent bool

	deadline    time.Time
	retries     int
	keepaliveAt time.Time
	nextDump    time.Time

	ledPattern byte
	rumbleOn   bool

	event input.Event
}

type slotPool struct {
	slots []slot
}

func newSlotPool(capacity int) *slotPool {
	return &slotPool{
		slots: make([]slot, capacity),
	}
}

// acquire claims a free slot for key and primes it for the handshake. The
// second return is false when the pool is exhausted; the caller surfaces
// that as a rejected connection.
func (p *slotPool) acquire(key drivers.ConnKey, now time.Time) (int, bool) {
	for i := range p.slots {
		if p.slots[i].inUse {
			continue
		}
		p.slots[i] = slot{
			inUse:    true,
			key:      key,
			state:    stateWaitInit,
			deadline: now.Add(initDelay),
			event:    input.Neutral(),
		}
		return i, true
	}
	return -1, false
}

// release returns a slot to the pool. Safe to call from any state and on an
// already-idle slot.
func (p *slotPool) release(idx int) {
	if idx < 0 || idx >= len(p.slots) {
		return
	}
	p.slots[idx] = slot{
		state: stateIdle,
		event: input.Neutral(),
	}
}

func (p *slotPool) lookup(key drivers.ConnKey) (*slot, int, bool) {
	for i := range p.slots {
		if p.slots[i].inUse && p.slots[i].key == key {
			return &p.slots[i], i, true
		}
	}
	return nil, -1, false
}
