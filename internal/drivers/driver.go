// Package drivers defines the contract between the transport layer and the
// per-device-family protocol drivers, plus the registry the transport uses
// to dispatch newly connected devices.
package drivers

import (
	"fmt"

	"github.com/chaosweilder/wiibridge/pkg/input"
)

// ConnKey identifies one live connection. Instance disambiguates reconnects
// of the same address within a single process lifetime.
type ConnKey struct {
	Addr     string
	Instance int
}

func (k ConnKey) String() string {
	return fmt.Sprintf("%s#%d", k.Addr, k.Instance)
}

// Connection is the transport-side handle a driver talks through. None of
// the methods block: CanSend is a readiness poll, SendControl reports
// acceptance, SendRaw is fire-and-forget.
type Connection interface {
	Key() ConnKey
	Name() string

	// CanSend reports whether the control channel can take one more
	// outbound command right now.
	CanSend() bool
	// SendControl hands one command to the control channel. A false return
	// means the command was rejected and the caller should retry later.
	SendControl(data []byte) bool
	// SendRaw writes to the interrupt channel, dropping on backpressure.
	SendRaw(data []byte)
}

// Driver is implemented once per supported device family. The transport
// calls Init when Matches accepted a device, then feeds it reports and
// ticks from a single loop per connection; no two entry points for the
// same connection ever run concurrently.
type Driver interface {
	Name() string
	Matches(name string, vendorID, productID uint16) bool
	// Init claims per-connection state. A false return rejects the
	// connection (e.g. the driver's slot pool is exhausted).
	Init(conn Connection) bool
	OnReport(conn Connection, data []byte)
	OnTick(conn Connection)
	OnDisconnect(conn Connection)
}

// Router receives normalized input decoded by drivers.
type Router interface {
	SubmitInput(key ConnKey, ev input.Event)
	DeviceDisconnected(key ConnKey)
}

// Feedback is the externally owned per-player intent a driver reflects onto
// the device while in steady state. Drivers read it, never write it.
type Feedback struct {
	LEDPattern  byte
	LEDDirty    bool
	RumbleLeft  uint8
	RumbleRight uint8
	RumbleDirty bool
}

// Players maps connections to player indices and exposes feedback intent.
type Players interface {
	FindPlayerIndex(key ConnKey) (int, bool)
	FeedbackState(index int) Feedback
	// ClearDirty acknowledges that the current intent has been written to
	// the hardware.
	ClearDirty(index int)
	// DefaultLEDPattern returns the raw LED encoding for a player slot.
	DefaultLEDPattern(index int) byte
}
