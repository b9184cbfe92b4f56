package btsvc

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/chaosweilder/wiibridge/internal/drivers"
)

type fakeDevice struct {
	in  chan []byte
	out chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		in:     make(chan []byte, 8),
		out:    make(chan []byte, 8),
		closed: make(chan struct{}),
	}
}

func (d *fakeDevice) Read(p []byte) (int, error) {
	select {
	case data := <-d.in:
		return copy(p, data), nil
	case <-d.closed:
		return 0, io.EOF
	}
}

func (d *fakeDevice) Write(p []byte) (int, error) {
	select {
	case <-d.closed:
		return 0, io.ErrClosedPipe
	default:
	}
	buf := make([]byte, len(p))
	copy(buf, p)
	d.out <- buf
	return len(p), nil
}

func (d *fakeDevice) Close() error {
	d.closeOnce.Do(func() {
		close(d.closed)
	})
	return nil
}

// echoDriver forwards every report it sees into a channel and answers the
// first tick with a control command.
type echoDriver struct {
	reports chan []byte
	sent    bool
}

func (d *echoDriver) Name() string                        { return "echo" }
func (d *echoDriver) Matches(string, uint16, uint16) bool { return true }
func (d *echoDriver) Init(drivers.Connection) bool        { return true }
func (d *echoDriver) OnDisconnect(drivers.Connection)     {}
func (d *echoDriver) OnReport(_ drivers.Connection, data []byte) {
	d.reports <- data
}
func (d *echoDriver) OnTick(conn drivers.Connection) {
	if !d.sent && conn.CanSend() {
		d.sent = conn.SendControl([]byte{0xA2, 0x15, 0x00})
	}
}

func startConnection(t *testing.T) (*connection, *fakeDevice, *echoDriver, chan struct{}) {
	t.Helper()
	dev := newFakeDevice()
	drv := &echoDriver{reports: make(chan []byte, 8)}
	key := drivers.ConnKey{Addr: "test", Instance: 1}
	conn := newConnection(zap.NewNop(), key, "Test Device", dev, drv, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	done := make(chan struct{})
	go func() {
		conn.run(ctx)
		close(done)
	}()
	return conn, dev, drv, done
}

func TestConnectionDispatchesReports(t *testing.T) {
	_, dev, drv, _ := startConnection(t)

	dev.in <- []byte{0x30, 0x01, 0x00}
	select {
	case data := <-drv.reports:
		if len(data) != 3 || data[0] != 0x30 {
			t.Errorf("driver got report % #x", data)
		}
	case <-time.After(time.Second):
		t.Fatal("report never reached the driver")
	}
}

func TestConnectionWritesControlCommands(t *testing.T) {
	_, dev, _, _ := startConnection(t)

	select {
	case data := <-dev.out:
		if len(data) != 3 || data[0] != 0xA2 || data[1] != 0x15 {
			t.Errorf("device got % #x", data)
		}
	case <-time.After(time.Second):
		t.Fatal("control command never reached the device")
	}
}

func TestConnectionEndsOnReadError(t *testing.T) {
	_, dev, _, done := startConnection(t)

	dev.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("run loop did not end after device close")
	}
}

func TestConnectionEndsOnShutdown(t *testing.T) {
	conn, _, _, done := startConnection(t)

	conn.shutdown()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("run loop did not end after shutdown")
	}
}

func TestSendRawDropsOnBackpressure(t *testing.T) {
	dev := newFakeDevice()
	drv := &echoDriver{reports: make(chan []byte, 8)}
	key := drivers.ConnKey{Addr: "test", Instance: 1}
	// no run loop: the raw queue fills up and further sends must not block
	conn := newConnection(zap.NewNop(), key, "Test Device", dev, drv, time.Millisecond)

	for i := 0; i < rawQueueSize+4; i++ {
		conn.SendRaw([]byte{byte(i)})
	}
}
