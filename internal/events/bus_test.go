package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_TypedDelivery(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	requested, unsubReq := Subscribe[UpdateRequested](bus, 4)
	defer unsubReq()
	completed, unsubDone := Subscribe[UpdateCompleted](bus, 4)
	defer unsubDone()

	require.NoError(t, bus.Publish(context.Background(), UpdateRequested{Source: "webhook"}))

	select {
	case got := <-requested:
		assert.Equal(t, "webhook", got.Source)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for UpdateRequested")
	}

	select {
	case <-completed:
		t.Fatal("UpdateCompleted subscriber must not see UpdateRequested")
	default:
	}
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, unsub := Subscribe[StateChanged](bus, 1)
	unsub()

	require.NoError(t, bus.Publish(context.Background(), StateChanged{Phase: "idle"}))

	_, open := <-ch
	assert.False(t, open, "channel must be closed after unsubscribe")
}

func TestBus_PublishAfterClose(t *testing.T) {
	bus := NewBus()
	ch, _ := Subscribe[StateChanged](bus, 1)
	bus.Close()

	err := bus.Publish(context.Background(), StateChanged{Phase: "idle"})
	assert.ErrorIs(t, err, ErrClosed)

	_, open := <-ch
	assert.False(t, open)
}

func TestBus_PublishBlocksUntilContextCanceled(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	_, unsub := Subscribe[StateChanged](bus, 0) // unbuffered, never drained
	defer unsub()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := bus.Publish(ctx, StateChanged{Phase: "updating"})
	require.Error(t, err)
}

func TestBus_CloseReleasesBlockedPublisher(t *testing.T) {
	bus := NewBus()

	ch, _ := Subscribe[StateChanged](bus, 0) // unbuffered, never drained

	pubErr := make(chan error, 1)
	go func() { pubErr <- bus.Publish(context.Background(), StateChanged{Phase: "updating"}) }()
	time.Sleep(10 * time.Millisecond) // let the publisher park on the send

	bus.Close()

	select {
	case err := <-pubErr:
		assert.NoError(t, err, "closing drops the event instead of failing the publish")
	case <-time.After(time.Second):
		t.Fatal("publisher still blocked after Close")
	}

	_, open := <-ch
	assert.False(t, open)
}

func TestBus_PublishConcurrentWithClose(t *testing.T) {
	for range 25 {
		bus := NewBus()
		ch, _ := Subscribe[StateChanged](bus, 1)
		go func() {
			for range ch {
			}
		}()

		var wg sync.WaitGroup
		for range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 50; i++ {
					if err := bus.Publish(context.Background(), StateChanged{Phase: "idle"}); err != nil {
						return
					}
				}
			}()
		}

		bus.Close()
		wg.Wait()
	}
}
