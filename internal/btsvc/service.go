// Package btsvc owns the transport side of the bridge: it watches backends
// for controller arrivals, dispatches them to the matching protocol driver
// and runs one report/tick loop per live connection.
package btsvc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/chaosweilder/wiibridge/internal/drivers"
	"github.com/chaosweilder/wiibridge/pkg/bus"
)

// DeviceInfo describes one advertised device as seen by a backend.
type DeviceInfo struct {
	Addr      string
	Name      string
	VendorID  uint16
	ProductID uint16
}

// BackendEvent is published by a backend whenever its device set changes.
type BackendEvent struct {
	Connected    []DeviceInfo
	Disconnected []string
}

type (
	BackendBus       = bus.Bus[string, BackendEvent]
	BackendPublisher = bus.Publisher[BackendEvent]
)

// Device is an open transport handle. Read blocks; Write sends one complete
// outbound frame (with the 0xA2 transaction header, which the backend strips
// or keeps as its link layer requires).
type Device interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Backend enumerates devices and opens transport handles.
type Backend interface {
	Ready() <-chan struct{}
	Start(ctx context.Context, publisher BackendPublisher) error
	Open(addr string) (Device, error)
}

// Players is the slice of the player service the transport needs: slot
// assignment on connect and release on disconnect.
type Players interface {
	Attach(key drivers.ConnKey) (int, error)
	Detach(key drivers.ConnKey)
}

var defaultOptions = serviceOptions{
	backends:     make(map[string]Backend),
	tickInterval: 5 * time.Millisecond,
}

type serviceOptions struct {
	backends     map[string]Backend
	tickInterval time.Duration
}

type Option func(*serviceOptions)

func WithBackend(name string, backend Backend) Option {
	return func(o *serviceOptions) {
		o.backends[name] = backend
	}
}

func WithTickInterval(d time.Duration) Option {
	return func(o *serviceOptions) {
		o.tickInterval = d
	}
}

type Service struct {
	log      *zap.Logger
	registry *drivers.Registry
	players  Players
	options  serviceOptions
	ready    chan struct{}

	backendBus *BackendBus
	conns      *xsync.MapOf[string, *connection]

	mu        sync.Mutex
	instances map[string]int
}

func New(log *zap.Logger, registry *drivers.Registry, players Players, opts ...Option) *Service {
	options := defaultOptions
	for _, opt := range opts {
		opt(&options)
	}
	return &Service{
		log:        log,
		registry:   registry,
		players:    players,
		options:    options,
		ready:      make(chan struct{}),
		backendBus: bus.NewBus[string, BackendEvent](log),
		conns:      xsync.NewMapOf[string, *connection](),
		instances:  make(map[string]int),
	}
}

func (s *Service) Start(ctx context.Context) error {
	if err := s.backendBus.Start(ctx); err != nil {
		return fmt.Errorf("failed to start backend bus: %w", err)
	}
	select {
	case <-ctx.Done():
		return nil
	case <-s.backendBus.Ready():
	}

	s.consumeEvents(ctx)

	for backendID, backend := range s.options.backends {
		backendID, backend := backendID, backend
		go func() {
			err := backend.Start(ctx, s.backendBus.CreatePublisher(backendID))
			if err != nil {
				s.log.Error("backend failed",
					zap.String("backend", backendID), zap.Error(err))
			}
		}()
	}
	for _, backend := range s.options.backends {
		select {
		case <-ctx.Done():
			return nil
		case <-backend.Ready():
		}
	}
	close(s.ready)
	s.log.Info("Transport service started")
	<-ctx.Done()
	return nil
}

func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

func (s *Service) consumeEvents(ctx context.Context) {
	go func() {
		ch := s.backendBus.Subscribe(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-ch:
				s.handleBackendEvent(ctx, msg.Key, msg.Message)
			}
		}
	}()
}

func (s *Service) handleBackendEvent(ctx context.Context, backendID string, event BackendEvent) {
	for _, info := range event.Connected {
		s.onDeviceConnected(ctx, backendID, info)
	}
	for _, addr := range event.Disconnected {
		s.onDeviceDisconnected(addr)
	}
}

func (s *Service) onDeviceConnected(ctx context.Context, backendID string, info DeviceInfo) {
	if _, ok := s.conns.Load(info.Addr); ok {
		return
	}
	drv, ok := s.registry.Match(info.Name, info.VendorID, info.ProductID)
	if !ok {
		s.log.Debug("no driver for device",
			zap.String("addr", info.Addr),
			zap.String("name", info.Name))
		return
	}
	backend := s.options.backends[backendID]
	dev, err := backend.Open(info.Addr)
	if err != nil {
		s.log.Error("failed to open device",
			zap.String("addr", info.Addr), zap.Error(err))
		return
	}

	key := drivers.ConnKey{Addr: info.Addr, Instance: s.nextInstance(info.Addr)}
	conn := newConnection(s.log.Named("conn"), key, info.Name, dev, drv, s.options.tickInterval)

	if _, err := s.players.Attach(key); err != nil {
		s.log.Warn("no player slot for device",
			zap.Stringer("key", key), zap.Error(err))
		// the connection still runs; it just gets no feedback intent
	}
	if !drv.Init(conn) {
		s.log.Warn("driver rejected connection", zap.Stringer("key", key))
		s.players.Detach(key)
		dev.Close()
		return
	}

	s.conns.Store(info.Addr, conn)
	go func() {
		conn.run(ctx)
		s.conns.Delete(info.Addr)
		drv.OnDisconnect(conn)
		s.players.Detach(key)
	}()
	s.log.Info("device connected",
		zap.Stringer("key", key),
		zap.String("driver", drv.Name()),
		zap.String("name", info.Name))
}

func (s *Service) onDeviceDisconnected(addr string) {
	conn, ok := s.conns.Load(addr)
	if !ok {
		return
	}
	conn.shutdown()
}

func (s *Service) nextInstance(addr string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances[addr]++
	return s.instances[addr]
}

// Connections returns the addresses of the live connections, for the CLI.
func (s *Service) Connections() []string {
	var out []string
	s.conns.Range(func(addr string, _ *connection) bool {
		out = append(out, addr)
		return true
	})
	return out
}
