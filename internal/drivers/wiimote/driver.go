// Package wiimote implements the Bluetooth HID driver for the Nintendo
// remote family: handshake, accessory identification, report decoding and
// steady-state feedback sync. The transport layer delivers raw reports and
// ticks from a single loop per connection, so the driver needs no locking;
// it never blocks and never allocates per report.
package wiimote

import (
	"time"

	"go.uber.org/zap"

	"github.com/chaosweilder/wiibridge/internal/drivers"
)

const defaultCapacity = 4

type options struct {
	capacity int
	now      func() time.Time
}

type Option func(*options)

// WithCapacity bounds the number of simultaneous connections.
func WithCapacity(n int) Option {
	return func(o *options) {
		o.capacity = n
	}
}

// WithNow injects the clock, mainly for tests.
func WithNow(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

type Driver struct {
	log     *zap.Logger
	router  drivers.Router
	players drivers.Players
	now     func() time.Time
	pool    *slotPool
}

func New(log *zap.Logger, router drivers.Router, players drivers.Players, opts ...Option) *Driver {
	o := options{
		capacity: defaultCapacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Driver{
		log:     log,
		router:  router,
		players: players,
		now:     o.now,
		pool:    newSlotPool(o.capacity),
	}
}

func (d *Driver) Name() string {
	return "wiimote"
}

func (d *Driver) Matches(name string, vendorID, productID uint16) bool {
	return Matches(name, vendorID, productID)
}

// Init claims a slot for the connection. A false return means the pool is
// exhausted and the connection is rejected.
func (d *Driver) Init(conn drivers.Connection) bool {
	key := conn.Key()
	if _, _, ok := d.pool.lookup(key); ok {
		d.log.Warn("connection already initialized", zap.Stringer("key", key))
		return false
	}
	idx, ok := d.pool.acquire(key, d.now())
	if !ok {
		d.log.Warn("slot pool exhausted, rejecting connection", zap.Stringer("key", key))
		return false
	}
	d.log.Info("connection accepted",
		zap.Stringer("key", key),
		zap.String("name", conn.Name()),
		zap.Int("slot", idx))
	return true
}

func (d *Driver) OnDisconnect(conn drivers.Connection) {
	key := conn.Key()
	_, idx, ok := d.pool.lookup(key)
	if !ok {
		return
	}
	d.pool.release(idx)
	d.router.DeviceDisconnected(key)
	d.log.Info("connection released", zap.Stringer("key", key), zap.Int("slot", idx))
}

// OnTick drives timeouts, pending sends and the steady-state feedback sync.
// At most one outbound command is attempted per tick.
func (d *Driver) OnTick(conn drivers.Connection) {
	sl, _, ok := d.pool.lookup(conn.Key())
	if !ok {
		return
	}
	now := d.now()

	switch sl.state {
	case stateIdle:
		return
	case stateReady:
		if !d.syncFeedback(conn, sl) {
			d.keepalive(conn, sl, now)
		}
		return
	case stateWaitInit:
		if due(now, sl.deadline) {
			sl.state = stateSendStatusReq
			d.trySend(conn, sl, now)
		}
		return
	case stateWaitStatus:
		if due(now, sl.deadline) {
			d.onStatusTimeout(conn, sl, now)
		}
		return
	case stateSendStatusReq, stateSendExtUnlock1, stateSendExtUnlock2,
		stateReadExtType, stateSendReportMode, stateSendLEDs:
		d.trySend(conn, sl, now)
		return
	default:
		// remaining wait states: timeout is an implicit success
		if due(now, sl.deadline) {
			next, ok := timeoutNext(sl.state)
			if !ok {
				return
			}
			d.log.Debug("wait state timed out, advancing",
				zap.Stringer("key", sl.key),
				zap.Stringer("from", sl.state),
				zap.Stringer("to", next))
			d.enterState(conn, sl, next, now)
		}
	}
}

func (d *Driver) onStatusTimeout(conn drivers.Connection, sl *slot, now time.Time) {
	if sl.retries < statusRetryMax {
		sl.retries++
		sl.state = stateSendStatusReq
		d.trySend(conn, sl, now)
		return
	}
	// Give up on extension detection and bring the connection up without it.
	d.log.Warn("no status response, proceeding without extension",
		zap.Stringer("key", sl.key),
		zap.Int("retries", sl.retries))
	d.enterState(conn, sl, stateSendReportMode, now)
}

// enterState moves the slot to next and, when next is a send state,
// immediately attempts the send on this tick.
func (d *Driver) enterState(conn drivers.Connection, sl *slot, next connState, now time.Time) {
	sl.state = next
	switch next {
	case stateReady:
		sl.keepaliveAt = now.Add(keepaliveInterval)
		d.log.Info("connection ready",
			zap.Stringer("key", sl.key),
			zap.Stringer("extension", sl.ext))
	case stateSendStatusReq, stateSendExtUnlock1, stateSendExtUnlock2,
		stateReadExtType, stateSendReportMode, stateSendLEDs:
		d.trySend(conn, sl, now)
	}
}

// trySend attempts the command belonging to the current send state. If the
// channel is not ready the state is left unchanged and the same command is
// retried on the next tick; nothing is queued and nothing is lost.
func (d *Driver) trySend(conn drivers.Connection, sl *slot, now time.Time) {
	var (
		cmd     []byte
		next    connState
		timeout time.Duration
	)
	switch sl.state {
	case stateSendStatusReq:
		cmd = statusRequest()
		next, timeout = stateWaitStatus, statusTimeout
	case stateSendExtUnlock1:
		cmd = writeRegister(regExtUnlock1, extUnlock1Value)
		next, timeout = stateWaitExtUnlock1Ack, ackTimeout
	case stateSendExtUnlock2:
		cmd = writeRegister(regExtUnlock2, extUnlock2Value)
		next, timeout = stateWaitExtUnlock2Ack, ackTimeout
	case stateReadExtType:
		cmd = readRegister(regExtIdent, extIdentLen)
		next, timeout = stateWaitExtType, ackTimeout
	case stateSendReportMode:
		cmd = setReportMode(sl.extPresent)
		next, timeout = stateWaitReportAck, ackTimeout
	case stateSendLEDs:
		sl.ledPattern = d.initialLEDPattern(sl.key)
		cmd = setLEDs(sl.ledPattern)
		next, timeout = stateWaitLEDsAck, ackTimeout
	default:
		return
	}
	if !conn.CanSend() {
		return
	}
	if !conn.SendControl(cmd) {
		return
	}
	sl.state = next
	sl.deadline = now.Add(timeout)
}

func (d *Driver) initialLEDPattern(key drivers.ConnKey) byte {
	if idx, ok := d.players.FindPlayerIndex(key); ok {
		return d.players.DefaultLEDPattern(idx)
	}
	return d.players.DefaultLEDPattern(0)
}

// OnReport handles one inbound report. Malformed or short reports are
// ignored without any state change.
func (d *Driver) OnReport(conn drivers.Connection, data []byte) {
	sl, _, ok := d.pool.lookup(conn.Key())
	if !ok || len(data) == 0 {
		return
	}
	now := d.now()
	switch data[0] {
	case reportStatus:
		if len(data) >= 4 {
			d.onStatus(conn, sl, data, now)
		}
	case reportAck:
		if len(data) >= 5 {
			d.onAck(conn, sl, data, now)
		}
	case reportReadData:
		if len(data) >= 7 {
			d.onReadData(conn, sl, data, now)
		}
	case 0x30, 0x31, 0x32, 0x33, 0x34, 0x35, 0x36, 0x37, 0x3E, 0x3F:
		d.decode(sl, data, now)
	default:
		d.log.Debug("unknown report id",
			zap.Stringer("key", sl.key),
			zap.Uint8("id", data[0]))
	}
}

// onStatus records extension presence and drives both the handshake edge
// out of stateWaitStatus and the hot-swap edges while ready.
func (d *Driver) onStatus(conn drivers.Connection, sl *slot, data []byte, now time.Time) {
	present := data[3]&0x02 != 0
	was := sl.extPresent
	sl.extPresent = present
	if !present {
		sl.ext = ExtNone
	}

	switch {
	case sl.state == stateWaitStatus:
		if present {
			d.enterState(conn, sl, stateSendExtUnlock1, now)
		} else {
			d.enterState(conn, sl, stateSendReportMode, now)
		}
	case sl.state == stateReady && present && !was:
		d.log.Info("extension attached, identifying", zap.Stringer("key", sl.key))
		sl.ext = ExtNone
		d.enterState(conn, sl, stateSendExtUnlock1, now)
	case sl.state == stateReady && !present && was:
		d.log.Info("extension detached", zap.Stringer("key", sl.key))
		sl.event.ResetAxes()
		d.router.SubmitInput(sl.key, sl.event)
		d.enterState(conn, sl, stateSendReportMode, now)
	}
}

func (d *Driver) onAck(conn drivers.Connection, sl *slot, data []byte, now time.Time) {
	cmd, errCode := data[3], data[4]
	if errCode != 0 {
		d.log.Warn("command acknowledged with error",
			zap.Stringer("key", sl.key),
			zap.Uint8("cmd", cmd),
			zap.Uint8("error", errCode))
		// fall through: an error advances the same edge a timeout would
	}
	if next, ok := ackNext(sl.state, cmd); ok {
		d.enterState(conn, sl, next, now)
	}
}

// onReadData consumes the register read response carrying the extension
// identification bytes. A nonzero error nibble skips classification but the
// handshake still proceeds to report-mode configuration.
func (d *Driver) onReadData(conn drivers.Connection, sl *slot, data []byte, now time.Time) {
	if sl.state != stateWaitExtType {
		return
	}
	errCode := data[3] & 0x0F
	size := int(data[3]>>4)&0x0F + 1
	if errCode != 0 {
		d.log.Warn("extension register read failed",
			zap.Stringer("key", sl.key),
			zap.Uint8("error", errCode))
	} else if size >= extIdentLen && len(data) >= 6+extIdentLen {
		sl.ext = classifyExtension(data[6 : 6+extIdentLen])
		d.log.Info("extension identified",
			zap.Stringer("key", sl.key),
			zap.Stringer("extension", sl.ext))
	}
	d.enterState(conn, sl, stateSendReportMode, now)
}
