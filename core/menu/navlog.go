package menu

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"botfleet/core/logger"
	"botfleet/core/store"
)

var (
	// ErrLogClosed is returned when a record is offered after Close.
	ErrLogClosed = errors.New("menu navlog: closed")
	// ErrLogFull indicates the queue is saturated and the event was dropped.
	ErrLogFull = errors.New("menu navlog: queue full")
)

// NavLogOptions controls the asynchronous analytics writer.
type NavLogOptions struct {
	QueueSize    int
	Workers      int
	WriteTimeout time.Duration
}

// NavLog writes navigation analytics rows off the request path. Recording
// never blocks; under pressure events are counted as dropped and lost.
type NavLog struct {
	events  store.NavigationEvents
	opts    NavLogOptions
	jobs    chan *store.NavigationEvent
	stop    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
	dropped atomic.Uint64
}

// NewNavLog starts the writer with sane defaults if options are zeroed.
func NewNavLog(events store.NavigationEvents, opts NavLogOptions) *NavLog {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}

	l := &NavLog{
		events: events,
		opts:   opts,
		jobs:   make(chan *store.NavigationEvent, opts.QueueSize),
		stop:   make(chan struct{}),
	}

	l.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go l.worker()
	}

	return l
}

// Record offers one event to the queue without blocking.
func (l *NavLog) Record(ev *store.NavigationEvent) error {
	select {
	case <-l.stop:
		return ErrLogClosed
	default:
	}

	select {
	case l.jobs <- ev:
		return nil
	default:
		l.dropped.Add(1)
		return ErrLogFull
	}
}

// Dropped returns the number of events lost to queue pressure.
func (l *NavLog) Dropped() uint64 {
	return l.dropped.Load()
}

// Close stops accepting events and waits for queued ones to be written.
func (l *NavLog) Close() {
	l.once.Do(func() {
		close(l.stop)
		close(l.jobs)
		l.wg.Wait()
	})
}

func (l *NavLog) worker() {
	defer l.wg.Done()
	for ev := range l.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), l.opts.WriteTimeout)
		if err := l.events.Append(ctx, ev); err != nil {
			logger.Warn(ctx, "service.menus", "navlog.write.fail",
				slog.Int64("bot_id", ev.BotID),
				slog.Int64("subscriber_id", ev.SubscriberID),
				slog.Int64("menu_id", ev.MenuID),
				slog.String("error", err.Error()),
			)
		}
		cancel()
	}
}
