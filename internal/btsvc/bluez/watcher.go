// Package bluez watches BlueZ over D-Bus for controller link state changes.
// It does not own any transport itself: when a device connects or drops it
// nudges the hidraw backend to re-enumerate immediately instead of waiting
// for the next poll cycle.
package bluez

import (
	"context"
	"fmt"
	"strings"

	dbus "github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

const (
	bluezService = "org.bluez"
	deviceIface  = "org.bluez.Device1"
	propsIface   = "org.freedesktop.DBus.Properties"
)

// Watcher subscribes to org.bluez.Device1 PropertiesChanged signals and
// invokes refresh whenever the Connected property flips.
type Watcher struct {
	log     *zap.Logger
	refresh func()
	ready   chan struct{}
}

func NewWatcher(log *zap.Logger, refresh func()) *Watcher {
	return &Watcher{
		log:     log,
		refresh: refresh,
		ready:   make(chan struct{}),
	}
}

func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

func (w *Watcher) Start(ctx context.Context) error {
	bus, err := dbus.SystemBus()
	if err != nil {
		return fmt.Errorf("failed to connect system bus: %w", err)
	}
	defer bus.Close()

	if err := bus.AddMatchSignal(
		dbus.WithMatchInterface(propsIface),
		dbus.WithMatchMember("PropertiesChanged"),
		dbus.WithMatchArg(0, deviceIface),
	); err != nil {
		return fmt.Errorf("failed to add match signal: %w", err)
	}
	defer func() {
		_ = bus.RemoveMatchSignal(
			dbus.WithMatchInterface(propsIface),
			dbus.WithMatchMember("PropertiesChanged"),
			dbus.WithMatchArg(0, deviceIface),
		)
	}()

	sigCh := make(chan *dbus.Signal, 16)
	bus.Signal(sigCh)
	defer bus.RemoveSignal(sigCh)

	close(w.ready)
	w.log.Info("BlueZ watcher started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-sigCh:
			if sig == nil {
				return nil
			}
			w.handleSignal(sig)
		}
	}
}

func (w *Watcher) handleSignal(sig *dbus.Signal) {
	if len(sig.Body) < 2 {
		return
	}
	iface, _ := sig.Body[0].(string)
	if iface != deviceIface {
		return
	}
	changed, _ := sig.Body[1].(map[string]dbus.Variant)
	v, ok := changed["Connected"]
	if !ok {
		return
	}
	connected, _ := v.Value().(bool)
	w.log.Debug("device link state changed",
		zap.String("mac", macFromPath(sig.Path)),
		zap.Bool("connected", connected))
	w.refresh()
}

func macFromPath(p dbus.ObjectPath) string {
	s := string(p)
	idx := strings.LastIndex(s, "/dev_")
	if idx < 0 {
		return ""
	}
	return strings.ReplaceAll(s[idx+5:], "_", ":")
}
