package btsvc

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chaosweilder/wiibridge/internal/drivers"
)

const (
	readBufSize  = 64
	rawQueueSize = 8
)

// connection pumps one device. All driver entry points (OnReport, OnTick)
// run on the single run loop goroutine, so drivers need no locking.
type connection struct {
	log  *zap.Logger
	key  drivers.ConnKey
	name string
	dev  Device
	drv  drivers.Driver
	tick time.Duration

	// control holds at most one pending command; CanSend mirrors its
	// occupancy so drivers can hold off instead of dropping.
	control chan []byte
	raw     chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newConnection(log *zap.Logger, key drivers.ConnKey, name string, dev Device, drv drivers.Driver, tick time.Duration) *connection {
	return &connection{
		log:     log.With(zap.Stringer("key", key)),
		key:     key,
		name:    name,
		dev:     dev,
		drv:     drv,
		tick:    tick,
		control: make(chan []byte, 1),
		raw:     make(chan []byte, rawQueueSize),
		closed:  make(chan struct{}),
	}
}

// Key implements drivers.Connection.
func (c *connection) Key() drivers.ConnKey {
	return c.key
}

// Name implements drivers.Connection.
func (c *connection) Name() string {
	return c.name
}

// CanSend implements drivers.Connection.
func (c *connection) CanSend() bool {
	return len(c.control) == 0
}

// SendControl implements drivers.Connection.
func (c *connection) SendControl(data []byte) bool {
	select {
	case c.control <- data:
		return true
	default:
		return false
	}
}

// SendRaw implements drivers.Connection.
func (c *connection) SendRaw(data []byte) {
	select {
	case c.raw <- data:
	default:
		c.log.Debug("raw send dropped on backpressure")
	}
}

func (c *connection) shutdown() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
}

// run drives the connection until the device goes away or the context
// ends. It returns after the device handle is closed; the caller performs
// driver and player teardown.
func (c *connection) run(ctx context.Context) {
	reports := make(chan []byte)
	readErr := make(chan error, 1)
	go c.readLoop(reports, readErr)

	writeErr := make(chan error, 1)
	go c.writeLoop(writeErr)

	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			c.dev.Close()
			return
		case <-c.closed:
			c.dev.Close()
			return
		case err := <-readErr:
			if !errors.Is(err, io.EOF) {
				c.log.Warn("read failed", zap.Error(err))
			}
			c.shutdown()
			c.dev.Close()
			return
		case err := <-writeErr:
			c.log.Warn("write failed", zap.Error(err))
			c.shutdown()
			c.dev.Close()
			return
		case data := <-reports:
			c.drv.OnReport(c, data)
		case <-ticker.C:
			c.drv.OnTick(c)
		}
	}
}

func (c *connection) readLoop(reports chan<- []byte, readErr chan<- error) {
	for {
		buf := make([]byte, readBufSize)
		n, err := c.dev.Read(buf)
		if err != nil {
			readErr <- err
			return
		}
		if n == 0 {
			continue
		}
		select {
		case reports <- buf[:n]:
		case <-c.closed:
			return
		}
	}
}

func (c *connection) writeLoop(writeErr chan<- error) {
	for {
		var data []byte
		select {
		case <-c.closed:
			return
		case data = <-c.control:
		case data = <-c.raw:
		}
		if _, err := c.dev.Write(data); err != nil {
			writeErr <- err
			return
		}
	}
}
