package menu

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"botfleet/core/store"
)

func TestNavLogWritesEvents(t *testing.T) {
	events := store.NewMemoryNavigationEvents()
	log := NewNavLog(events, NavLogOptions{QueueSize: 8, Workers: 1})

	for i := 0; i < 5; i++ {
		if err := log.Record(&store.NavigationEvent{BotID: 1, SubscriberID: 10, MenuID: int64(i), Action: "enter"}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	log.Close()

	if got := len(events.Events()); got != 5 {
		t.Fatalf("wrote %d events, want 5", got)
	}
	if log.Dropped() != 0 {
		t.Fatalf("unexpected drops: %d", log.Dropped())
	}
}

// slowEvents blocks Append until released so the queue can be saturated.
type slowEvents struct {
	release chan struct{}
	mu      sync.Mutex
	n       int
}

func (s *slowEvents) Append(ctx context.Context, _ *store.NavigationEvent) error {
	select {
	case <-s.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.Lock()
	s.n++
	s.mu.Unlock()
	return nil
}

func TestNavLogDropsUnderPressure(t *testing.T) {
	slow := &slowEvents{release: make(chan struct{})}
	log := NewNavLog(slow, NavLogOptions{QueueSize: 1, Workers: 1, WriteTimeout: time.Second})

	// First event occupies the worker, second fills the queue. Keep
	// offering until the queue reports full; the worker may not have
	// picked up the first event yet.
	deadline := time.After(2 * time.Second)
	for {
		err := log.Record(&store.NavigationEvent{BotID: 1, Action: "enter"})
		if errors.Is(err, ErrLogFull) {
			break
		}
		if err != nil {
			t.Fatalf("Record: %v", err)
		}
		select {
		case <-deadline:
			t.Fatal("queue never saturated")
		default:
		}
	}
	if log.Dropped() == 0 {
		t.Fatal("drop not counted")
	}

	close(slow.release)
	log.Close()

	if err := log.Record(&store.NavigationEvent{}); !errors.Is(err, ErrLogClosed) {
		t.Fatalf("expected ErrLogClosed after Close, got %v", err)
	}
}
