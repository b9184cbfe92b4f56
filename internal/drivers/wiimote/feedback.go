package wiimote

import (
	"time"

	"go.uber.org/zap"

	"github.com/chaosweilder/wiibridge/internal/drivers"
)

// syncFeedback reflects the externally owned LED/rumble intent onto the
// device. The intent record is read-only here; the dirty flags are cleared
// only once the hardware matches the intent. Returns true when a command
// was issued this tick.
func (d *Driver) syncFeedback(conn drivers.Connection, sl *slot) bool {
	idx, ok := d.players.FindPlayerIndex(sl.key)
	if !ok {
		return false
	}
	fb := d.players.FeedbackState(idx)
	rumbleOn := fb.RumbleLeft > 0 || fb.RumbleRight > 0

	if !fb.LEDDirty && !fb.RumbleDirty &&
		fb.LEDPattern == sl.ledPattern && rumbleOn == sl.rumbleOn {
		return false
	}

	if fb.LEDPattern != sl.ledPattern {
		if !conn.CanSend() || !conn.SendControl(setLEDs(fb.LEDPattern)) {
			return false
		}
		sl.ledPattern = fb.LEDPattern
		d.log.Debug("led pattern written",
			zap.Stringer("key", sl.key),
			zap.Uint8("pattern", fb.LEDPattern))
		return true
	}
	if rumbleOn != sl.rumbleOn {
		if !conn.CanSend() || !conn.SendControl(setRumble(rumbleOn)) {
			return false
		}
		sl.rumbleOn = rumbleOn
		d.log.Debug("rumble written",
			zap.Stringer("key", sl.key),
			zap.Bool("on", rumbleOn))
		return true
	}

	// Hardware already matches the intent.
	d.players.ClearDirty(idx)
	return false
}

// keepalive pings the link with a status request while ready. The resulting
// status report doubles as the hot-swap detector.
func (d *Driver) keepalive(conn drivers.Connection, sl *slot, now time.Time) {
	if !due(now, sl.keepaliveAt) {
		return
	}
	if !conn.CanSend() || !conn.SendControl(statusRequest()) {
		return
	}
	sl.keepaliveAt = now.Add(keepaliveInterval)
}
