// Package routersvc fans decoded controller events out to downstream
// consumers. Drivers push into it through the drivers.Router contract;
// consumers subscribe per connection or globally.
package routersvc

import (
	"context"

	"go.uber.org/zap"

	"github.com/chaosweilder/wiibridge/internal/drivers"
	"github.com/chaosweilder/wiibridge/pkg/bus"
	"github.com/chaosweilder/wiibridge/pkg/input"
)

type EventType uint8

const (
	EventInput EventType = iota
	EventDisconnected
)

type Event struct {
	Type  EventType
	Input input.Event
}

type (
	EventBus       = bus.Bus[drivers.ConnKey, Event]
	EventSubscribe = bus.Message[drivers.ConnKey, Event]
)

type Service struct {
	log   *zap.Logger
	bus   *EventBus
	ready chan struct{}

	// set by Start; events submitted before that are dropped
	ctx context.Context
}

func New(log *zap.Logger) *Service {
	return &Service{
		log:   log,
		bus:   bus.NewBus[drivers.ConnKey, Event](log),
		ready: make(chan struct{}),
	}
}

func (s *Service) Start(ctx context.Context) error {
	s.ctx = ctx
	if err := s.bus.Start(ctx); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return nil
	case <-s.bus.Ready():
	}
	go s.debugSink(ctx)
	close(s.ready)
	s.log.Info("Router started")
	<-ctx.Done()
	return nil
}

func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

// Subscribe exposes the event stream to downstream consumers (output
// emulation, recording, diagnostics).
func (s *Service) Subscribe(ctx context.Context, key ...drivers.ConnKey) <-chan EventSubscribe {
	return s.bus.Subscribe(ctx, key...)
}

// SubmitInput implements drivers.Router.
func (s *Service) SubmitInput(key drivers.ConnKey, ev input.Event) {
	if s.ctx == nil {
		return
	}
	s.bus.Publish(s.ctx, key, Event{Type: EventInput, Input: ev})
}

// DeviceDisconnected implements drivers.Router.
func (s *Service) DeviceDisconnected(key drivers.ConnKey) {
	if s.ctx == nil {
		return
	}
	s.bus.Publish(s.ctx, key, Event{Type: EventDisconnected})
}

// debugSink traces every routed event at debug level.
func (s *Service) debugSink(ctx context.Context) {
	ch := s.bus.Subscribe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-ch:
			switch msg.Message.Type {
			case EventInput:
				s.log.Debug("input",
					zap.Stringer("key", msg.Key),
					zap.Stringer("buttons", msg.Message.Input.Buttons),
					zap.Uint8s("axes", msg.Message.Input.Axes[:]))
			case EventDisconnected:
				s.log.Debug("disconnected", zap.Stringer("key", msg.Key))
			}
		}
	}
}
