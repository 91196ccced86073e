package status

import (
	"context"
	"sync"

	"git.home.luguber.info/inful/ordserve/internal/events"
)

// Hub pushes a fresh status snapshot to every observer whenever the update
// lifecycle moves. Slow observers miss intermediate snapshots instead of
// blocking the pipeline.
type Hub struct {
	provider *Provider
	bus      *events.Bus

	mu        sync.Mutex
	observers map[uint64]chan Snapshot
	nextID    uint64
}

func NewHub(provider *Provider, bus *events.Bus) *Hub {
	return &Hub{
		provider:  provider,
		bus:       bus,
		observers: make(map[uint64]chan Snapshot),
	}
}

// Subscribe registers an observer. The returned function must be called to
// release it.
func (h *Hub) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 4)

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.observers[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.observers, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Run broadcasts until ctx is canceled.
func (h *Hub) Run(ctx context.Context) error {
	stateCh, unsubState := events.Subscribe[events.StateChanged](h.bus, 16)
	defer unsubState()
	scheduledCh, unsubSched := events.Subscribe[events.UpdateScheduled](h.bus, 16)
	defer unsubSched()
	progressCh, unsubProg := events.Subscribe[events.UpdateProgress](h.bus, 16)
	defer unsubProg()

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-stateCh:
			if !ok {
				return nil
			}
		case _, ok := <-scheduledCh:
			if !ok {
				return nil
			}
		case _, ok := <-progressCh:
			if !ok {
				return nil
			}
		}
		h.broadcast()
	}
}

func (h *Hub) broadcast() {
	snap := h.provider.Snapshot()

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.observers {
		select {
		case ch <- snap:
		default:
		}
	}
}
