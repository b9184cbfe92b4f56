// Package linux implements the btsvc backend for Linux, reading Bluetooth
// HID controllers through hidraw via hidapi and reacting to hotplug through
// udev.
package linux

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jochenvg/go-udev"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sstallion/go-hid"
	"go.uber.org/zap"

	"github.com/chaosweilder/wiibridge/internal/btsvc"
)

var defaultBackendOptions = backendOptions{
	pollInterval: 1 * time.Second,
}

type backendOptions struct {
	pollInterval time.Duration
}

type Option func(*backendOptions)

func WithPollInterval(d time.Duration) Option {
	return func(o *backendOptions) {
		o.pollInterval = d
	}
}

// Backend enumerates hidraw devices and exposes them to the transport
// service. A udev netlink monitor delivers hotplug events promptly; a slow
// poll ticker and the external Refresh trigger cover anything udev misses.
type Backend struct {
	log     *zap.Logger
	options backendOptions

	devices *xsync.MapOf[string, hid.DeviceInfo]
	udev    *udev.Udev
	refresh chan struct{}
	ready   chan struct{}

	publisher btsvc.BackendPublisher
}

func NewBackend(log *zap.Logger, opts ...Option) *Backend {
	options := defaultBackendOptions
	for _, opt := range opts {
		opt(&options)
	}
	return &Backend{
		log:     log,
		options: options,
		devices: xsync.NewMapOf[string, hid.DeviceInfo](),
		refresh: make(chan struct{}, 1),
		ready:   make(chan struct{}),
	}
}

func (b *Backend) Ready() <-chan struct{} {
	return b.ready
}

// Refresh requests an out-of-band re-enumeration, e.g. when BlueZ reports a
// device connection before the hidraw node shows up in a poll cycle.
func (b *Backend) Refresh() {
	select {
	case b.refresh <- struct{}{}:
	default:
	}
}

func (b *Backend) Start(ctx context.Context, publisher btsvc.BackendPublisher) error {
	hid.Init()
	b.udev = &udev.Udev{}
	b.publisher = publisher

	b.log.Info("Starting Linux backend")

	hotplug, err := b.startUdevMonitor(ctx)
	if err != nil {
		// udev is an accelerator; polling still works without it
		b.log.Warn("udev monitor unavailable, relying on polling", zap.Error(err))
	}

	if err := b.refreshDevices(ctx); err != nil {
		return fmt.Errorf("failed to enumerate devices: %w", err)
	}

	close(b.ready)
	b.log.Info("Linux backend started")

	pollTicker := time.NewTicker(b.options.pollInterval)
	defer pollTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pollTicker.C:
		case <-b.refresh:
		case _, ok := <-hotplug:
			if !ok {
				hotplug = nil
				continue
			}
		}
		if err := b.refreshDevices(ctx); err != nil {
			b.log.Error("failed to refresh devices", zap.Error(err))
		}
	}
}

// startUdevMonitor subscribes to hidraw add/remove uevents. Only the fact
// that something changed matters; refreshDevices computes the diff.
func (b *Backend) startUdevMonitor(ctx context.Context) (<-chan struct{}, error) {
	monitor := b.udev.NewMonitorFromNetlink("udev")
	if monitor == nil {
		return nil, fmt.Errorf("failed to create udev monitor")
	}
	if err := monitor.FilterAddMatchSubsystem("hidraw"); err != nil {
		return nil, fmt.Errorf("failed to filter hidraw subsystem: %w", err)
	}
	devCh, err := monitor.DeviceChan(ctx.Done())
	if err != nil {
		return nil, fmt.Errorf("failed to start udev monitor: %w", err)
	}
	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		for range devCh {
			select {
			case out <- struct{}{}:
			default:
			}
		}
	}()
	return out, nil
}

func (b *Backend) refreshDevices(ctx context.Context) error {
	newDevices, err := enumerateDevices()
	if err != nil {
		return err
	}
	var disconnected []string
	var connected []btsvc.DeviceInfo
	b.devices.Range(func(path string, _ hid.DeviceInfo) bool {
		if _, ok := newDevices[path]; !ok {
			disconnected = append(disconnected, path)
			b.devices.Delete(path)
			return true
		}
		delete(newDevices, path)
		return true
	})

	for path, device := range newDevices {
		b.devices.Store(path, device)
		connected = append(connected, btsvc.DeviceInfo{
			Addr:      path,
			Name:      generateName(device),
			VendorID:  device.VendorID,
			ProductID: device.ProductID,
		})
	}

	if len(connected) > 0 || len(disconnected) > 0 {
		b.publisher(ctx, btsvc.BackendEvent{
			Connected:    connected,
			Disconnected: disconnected,
		})
	}
	return nil
}

func generateName(device hid.DeviceInfo) string {
	var parts []string
	if device.MfrStr != "" {
		parts = append(parts, device.MfrStr)
	}
	if device.ProductStr != "" {
		parts = append(parts, device.ProductStr)
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%04x:%04x", device.VendorID, device.ProductID)
	}
	return strings.Join(parts, " ")
}

// ListDevices performs a one-shot enumeration, for the CLI.
func ListDevices() ([]btsvc.DeviceInfo, error) {
	hid.Init()
	devices, err := enumerateDevices()
	if err != nil {
		return nil, err
	}
	out := make([]btsvc.DeviceInfo, 0, len(devices))
	for path, device := range devices {
		out = append(out, btsvc.DeviceInfo{
			Addr:      path,
			Name:      generateName(device),
			VendorID:  device.VendorID,
			ProductID: device.ProductID,
		})
	}
	return out, nil
}

func enumerateDevices() (map[string]hid.DeviceInfo, error) {
	devices := make(map[string]hid.DeviceInfo)
	err := hid.Enumerate(hid.VendorIDAny, hid.ProductIDAny, func(device *hid.DeviceInfo) error {
		devices[device.Path] = *device
		return nil
	})
	if err != nil {
		return nil, err
	}
	return devices, nil
}

// Open implements btsvc.Backend.
func (b *Backend) Open(addr string) (btsvc.Device, error) {
	info, ok := b.devices.Load(addr)
	if !ok {
		return nil, fmt.Errorf("device not found: %s", addr)
	}
	dev, err := hid.OpenPath(info.Path)
	if err != nil {
		return nil, err
	}
	return &hidapiDevice{dev: dev}, nil
}

type hidapiDevice struct {
	dev *hid.Device
}

func (h *hidapiDevice) Read(buf []byte) (int, error) {
	return h.dev.Read(buf)
}

// Write strips the Bluetooth transaction header byte when present: the
// kernel hid layer frames hidraw writes itself, so commands start at the
// report ID.
func (h *hidapiDevice) Write(buf []byte) (int, error) {
	if len(buf) > 1 && buf[0] == 0xA2 {
		buf = buf[1:]
	}
	n, err := h.dev.Write(buf)
	if err != nil {
		return n, err
	}
	return n + 1, nil
}

func (h *hidapiDevice) Close() error {
	return h.dev.Close()
}
