package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func recv[K comparable, M any](t *testing.T, ch <-chan Message[K, M]) Message[K, M] {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		panic("unreachable")
	}
}

func TestKeyScopedSubscription(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewBus[string, int](zap.NewNop())
	if err := b.Start(ctx); err != nil {
		t.Fatal(err)
	}
	<-b.Ready()

	keyed := b.Subscribe(ctx, "a")
	global := b.Subscribe(ctx)

	go b.Publish(ctx, "a", 1)
	msg := recv(t, keyed)
	if msg.Key != "a" || msg.Message != 1 {
		t.Errorf("keyed subscriber got %+v", msg)
	}
	msg = recv(t, global)
	if msg.Key != "a" || msg.Message != 1 {
		t.Errorf("global subscriber got %+v", msg)
	}

	go b.Publish(ctx, "b", 2)
	msg = recv(t, global)
	if msg.Key != "b" || msg.Message != 2 {
		t.Errorf("global subscriber got %+v", msg)
	}
	select {
	case msg := <-keyed:
		t.Errorf("keyed subscriber got message for foreign key: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublisherBindsKey(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewBus[string, string](zap.NewNop())
	if err := b.Start(ctx); err != nil {
		t.Fatal(err)
	}
	<-b.Ready()

	sub := b.Subscribe(ctx, "linux")
	pub := b.CreatePublisher("linux")
	go pub(ctx, "hello")
	msg := recv(t, sub)
	if msg.Key != "linux" || msg.Message != "hello" {
		t.Errorf("got %+v", msg)
	}
}

func TestIdleSubscriberDoesNotStallDelivery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewBus[string, int](zap.NewNop())
	if err := b.Start(ctx); err != nil {
		t.Fatal(err)
	}
	<-b.Ready()

	// never drained: once its buffer fills, deliveries to it are dropped
	// and must not hold up anyone else
	b.Subscribe(ctx)
	keyed := b.Subscribe(ctx, "a")

	const total = subscriberBuffer * 3
	for i := 0; i < total; i++ {
		b.Publish(ctx, "a", i)
		msg := recv(t, keyed)
		if msg.Message != i {
			t.Fatalf("message %d = %d, want %d", i, msg.Message, i)
		}
	}
}

func TestTeardownDuringPublish(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewBus[string, int](zap.NewNop())
	if err := b.Start(ctx); err != nil {
		t.Fatal(err)
	}
	<-b.Ready()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				b.Publish(ctx, "a", 1)
			}
		}
	}()

	// churn subscriptions under constant publish load; a send on a closed
	// channel would panic here
	for i := 0; i < 100; i++ {
		subCtx, subCancel := context.WithCancel(ctx)
		ch := b.Subscribe(subCtx, "a")
		recv(t, ch)
		subCancel()
	}
	close(stop)
	wg.Wait()
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewBus[string, int](zap.NewNop())
	if err := b.Start(ctx); err != nil {
		t.Fatal(err)
	}
	<-b.Ready()

	subCtx, subCancel := context.WithCancel(ctx)
	sub := b.Subscribe(subCtx, "a")
	subCancel()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-sub:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("subscription channel never closed")
		}
	}
}
