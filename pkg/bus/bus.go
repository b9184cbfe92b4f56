// Package bus provides a small in-process pub/sub bus with key-scoped and
// global subscribers. Delivery never blocks the publish path: every
// subscriber owns a buffered channel and messages are dropped, with a log
// line, when a subscriber stops draining.
package bus

import (
	"context"

	"go.uber.org/zap"
)

const (
	publishBuffer    = 64
	subscriberBuffer = 64
)

type Message[K comparable, M any] struct {
	Key     K
	Message M
}

type Publisher[M any] func(ctx context.Context, msg M)

type subRequest[K comparable, M any] struct {
	ch   chan Message[K, M]
	keys []K
}

// Bus fans messages out to subscribers. A single goroutine owns the
// subscriber maps: delivery, subscription and teardown are serialized
// through it, so a channel is only ever closed after it has been removed.
type Bus[K comparable, M any] struct {
	log   *zap.Logger
	ready chan struct{}
	done  chan struct{}

	ch    chan Message[K, M]
	sub   chan subRequest[K, M]
	unsub chan chan Message[K, M]
}

func NewBus[K comparable, M any](logger *zap.Logger) *Bus[K, M] {
	return &Bus[K, M]{
		log:   logger,
		ready: make(chan struct{}),
		done:  make(chan struct{}),
		ch:    make(chan Message[K, M], publishBuffer),
		sub:   make(chan subRequest[K, M]),
		unsub: make(chan chan Message[K, M]),
	}
}

func (b *Bus[K, M]) Start(ctx context.Context) error {
	go b.run(ctx)
	close(b.ready)
	return nil
}

func (b *Bus[K, M]) Ready() <-chan struct{} {
	return b.ready
}

func (b *Bus[K, M]) run(ctx context.Context) {
	defer close(b.done)
	keySubs := make(map[K]map[chan Message[K, M]]struct{})
	globalSubs := make(map[chan Message[K, M]]struct{})
	subKeys := make(map[chan Message[K, M]][]K)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.ch:
			for sub := range globalSubs {
				b.send(sub, msg)
			}
			for sub := range keySubs[msg.Key] {
				b.send(sub, msg)
			}
		case req := <-b.sub:
			subKeys[req.ch] = req.keys
			if len(req.keys) == 0 {
				globalSubs[req.ch] = struct{}{}
				continue
			}
			for _, k := range req.keys {
				subs := keySubs[k]
				if subs == nil {
					subs = make(map[chan Message[K, M]]struct{}, 4)
					keySubs[k] = subs
				}
				subs[req.ch] = struct{}{}
			}
		case ch := <-b.unsub:
			keys, ok := subKeys[ch]
			if !ok {
				continue
			}
			delete(subKeys, ch)
			if len(keys) == 0 {
				delete(globalSubs, ch)
			}
			for _, k := range keys {
				delete(keySubs[k], ch)
				if len(keySubs[k]) == 0 {
					delete(keySubs, k)
				}
			}
			close(ch)
		}
	}
}

// send delivers without blocking. A full subscriber buffer means the
// subscriber has stalled; stalling the bus instead would back-pressure every
// publisher and every other subscriber.
func (b *Bus[K, M]) send(sub chan Message[K, M], msg Message[K, M]) {
	select {
	case sub <- msg:
	default:
		b.log.Warn("subscriber not draining, dropping message")
	}
}

func (b *Bus[K, M]) Publish(ctx context.Context, key K, msg M) {
	select {
	case <-ctx.Done():
	case b.ch <- Message[K, M]{key, msg}:
	}
}

func (b *Bus[K, M]) CreatePublisher(key K) Publisher[M] {
	return func(ctx context.Context, msg M) {
		b.Publish(ctx, key, msg)
	}
}

// Subscribe returns a channel receiving messages for the given keys, or for
// every key when none are given. The subscription lasts until ctx is done;
// the channel is closed on teardown.
func (b *Bus[K, M]) Subscribe(ctx context.Context, key ...K) <-chan Message[K, M] {
	ch := make(chan Message[K, M], subscriberBuffer)
	select {
	case b.sub <- subRequest[K, M]{ch: ch, keys: key}:
	case <-ctx.Done():
		close(ch)
		return ch
	case <-b.done:
		close(ch)
		return ch
	}
	go func() {
		select {
		case <-b.done:
			return
		case <-ctx.Done():
		}
		select {
		case b.unsub <- ch:
		case <-b.done:
		}
	}()
	return ch
}
