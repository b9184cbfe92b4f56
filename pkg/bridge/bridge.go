// Package bridge assembles the services into the controller bridge daemon.
package bridge

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/chaosweilder/wiibridge/internal/btsvc"
	"github.com/chaosweilder/wiibridge/internal/btsvc/bluez"
	"github.com/chaosweilder/wiibridge/internal/btsvc/linux"
	"github.com/chaosweilder/wiibridge/internal/configsvc"
	"github.com/chaosweilder/wiibridge/internal/drivers"
	"github.com/chaosweilder/wiibridge/internal/drivers/wiimote"
	"github.com/chaosweilder/wiibridge/internal/playersvc"
	"github.com/chaosweilder/wiibridge/internal/routersvc"
)

type Bridge struct {
	config Config
	log    *zap.Logger

	db        *badger.DB
	registry  *drivers.Registry
	configSvc *configsvc.Service
	playerSvc *playersvc.Service
	routerSvc *routersvc.Service
	btSvc     *btsvc.Service
	bluez     *bluez.Watcher
}

func NewBridge(config Config) (*Bridge, error) {
	loggerConfig := zap.NewDevelopmentConfig()
	loggerConfig.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000000000")
	loggerConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logger, err := loggerConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	dbOptions := badger.DefaultOptions(filepath.Join(config.DataDir, "db"))
	dbOptions.Logger = &badgerLogger{l: logger.Named("badger")}
	db, err := badger.Open(dbOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	configSvc := configsvc.New(logger.Named("config"))
	playerSvc := playersvc.New(db, logger.Named("players"))
	routerSvc := routersvc.New(logger.Named("router"))

	registry := drivers.NewRegistry()
	var wiiOpts []wiimote.Option
	if config.MaxControllers > 0 {
		wiiOpts = append(wiiOpts, wiimote.WithCapacity(config.MaxControllers))
	}
	wii := wiimote.New(logger.Named("wiimote"), routerSvc, playerSvc, wiiOpts...)
	if err := registry.Register(wii); err != nil {
		return nil, fmt.Errorf("failed to register driver: %w", err)
	}

	linuxBackend := linux.NewBackend(logger.Named("bt.linux"))
	btSvc := btsvc.New(logger.Named("bt"), registry, playerSvc,
		btsvc.WithBackend("linux", linuxBackend))
	bluezWatcher := bluez.NewWatcher(logger.Named("bluez"), linuxBackend.Refresh)

	return &Bridge{
		config:    config,
		log:       logger,
		db:        db,
		registry:  registry,
		configSvc: configSvc,
		playerSvc: playerSvc,
		routerSvc: routerSvc,
		btSvc:     btSvc,
		bluez:     bluezWatcher,
	}, nil
}

func (b *Bridge) Close() error {
	return b.db.Close()
}

type badgerLogger struct {
	l *zap.Logger
}

func (l badgerLogger) Errorf(msg string, args ...any) {
	l.l.Error(fmt.Sprintf(msg, args...))
}

func (l badgerLogger) Warningf(msg string, args ...any) {
	l.l.Warn(fmt.Sprintf(msg, args...))
}

func (l badgerLogger) Infof(msg string, args ...any) {
	l.l.Info(fmt.Sprintf(msg, args...))
}

func (l badgerLogger) Debugf(msg string, args ...any) {
	l.l.Debug(fmt.Sprintf(msg, args...))
}

// Run starts the bridge and blocks until the context is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return b.configSvc.Start(groupCtx)
	})
	group.Go(func() error {
		return b.routerSvc.Start(groupCtx)
	})
	group.Go(func() error {
		return b.btSvc.Start(groupCtx)
	})
	group.Go(func() error {
		// BlueZ only accelerates hotplug detection; a missing system bus
		// must not take the bridge down.
		if err := b.bluez.Start(groupCtx); err != nil {
			b.log.Warn("BlueZ watcher failed", zap.Error(err))
		}
		return nil
	})
	group.Go(func() error {
		return b.watchSettings(groupCtx)
	})

	if err := group.Wait(); err != nil {
		return fmt.Errorf("bridge failed: %w", err)
	}
	return nil
}

func (b *Bridge) watchSettings(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case <-b.configSvc.Ready():
	}
	settings, err := configsvc.RegisterWithDefault(b.configSvc, b.config.SettingsConfig, Settings{},
		func(cfg Settings, err error) {
			if err != nil {
				b.log.Error("failed to parse settings", zap.Error(err))
				return
			}
			b.applySettings(cfg)
		})
	if err != nil {
		return fmt.Errorf("failed to register settings config: %w", err)
	}
	b.applySettings(settings)
	return nil
}

// applySettings pushes LED overrides onto the currently connected players.
// Drivers pick the change up on their next tick.
func (b *Bridge) applySettings(settings Settings) {
	for i, pattern := range settings.PlayerLEDs {
		if i >= playersvc.MaxPlayers || pattern == 0 {
			continue
		}
		b.playerSvc.SetLEDPattern(i, pattern)
	}
}

func (b *Bridge) Players() *playersvc.Service {
	return b.playerSvc
}

func (b *Bridge) Router() *routersvc.Service {
	return b.routerSvc
}

func (b *Bridge) Transport() *btsvc.Service {
	return b.btSvc
}
