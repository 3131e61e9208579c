package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"canvaschat/internal/domain"
	"canvaschat/internal/infra/logger"
)

func collect(bus *Bus, et domain.EventType) (*[]domain.Event, *sync.Mutex, func()) {
	var mu sync.Mutex
	var got []domain.Event
	unsub := bus.Subscribe(et, func(_ context.Context, ev domain.Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})
	return &got, &mu, unsub
}

func TestPublishTyped(t *testing.T) {
	bus := New(logger.Discard())
	got, mu, unsub := collect(bus, domain.EventProjectSaved)
	defer unsub()

	bus.Publish(context.Background(), domain.NewEvent(domain.EventProjectSaved, "p1"))
	bus.Publish(context.Background(), domain.NewEvent(domain.EventProjectDeleted, "p2"))
	bus.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, *got, 1)
	assert.Equal(t, "p1", (*got)[0].Payload)
}

func TestSubscribeAllAndUnsubscribe(t *testing.T) {
	bus := New(logger.Discard())
	var mu sync.Mutex
	var count int
	unsub := bus.SubscribeAll(func(_ context.Context, _ domain.Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	bus.Publish(context.Background(), domain.NewEvent(domain.EventSceneChanged, nil))
	// Give the dispatch goroutine a moment, then unsubscribe.
	time.Sleep(20 * time.Millisecond)
	unsub()
	bus.Publish(context.Background(), domain.NewEvent(domain.EventSceneChanged, nil))
	bus.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}

func TestPanickingHandlerIsRecovered(t *testing.T) {
	bus := New(logger.Discard())
	bus.SubscribeAll(func(_ context.Context, _ domain.Event) {
		panic("boom")
	})
	assert.NotPanics(t, func() {
		bus.Publish(context.Background(), domain.NewEvent(domain.EventSceneChanged, nil))
		bus.Close()
	})
}
