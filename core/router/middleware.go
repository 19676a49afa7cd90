package router

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"botfleet/core/logger"
)

// Recover converts handler panics into returned errors so one broken handler
// cannot take the webhook server down.
func Recover(next HandlerFunc) HandlerFunc {
	return func(ev *Event) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error(ev.Ctx, "http", "panic",
					slog.Any("err", r),
					slog.String("stack", string(debug.Stack())),
				)
				err = fmt.Errorf("handler panic: %v", r)
			}
		}()
		return next(ev)
	}
}

// RateLimitOptions configures the per-sender inbound rate limit.
type RateLimitOptions struct {
	Interval time.Duration
	// Exclude bypasses limiting for the named update kinds, "callback"
	// and "message".
	Exclude map[string]struct{}
}

// RateLimit enforces a minimum interval between events from the same sender.
// Limited events are dropped silently.
func RateLimit(opts RateLimitOptions) Middleware {
	var (
		lastSeen   = make(map[int64]time.Time)
		lastSeenMu sync.Mutex
	)
	return func(next HandlerFunc) HandlerFunc {
		return func(ev *Event) error {
			if opts.Interval <= 0 || ev.SenderID == 0 {
				return next(ev)
			}

			kind := "message"
			if ev.IsCallback() {
				kind = "callback"
			}
			if _, skip := opts.Exclude[kind]; skip {
				return next(ev)
			}

			now := time.Now()
			lastSeenMu.Lock()
			if last, ok := lastSeen[ev.SenderID]; ok && now.Sub(last) < opts.Interval {
				lastSeenMu.Unlock()
				logger.Warn(ev.Ctx, "http", "rate_limit",
					slog.Int64("chat_id", ev.ChatID),
					slog.Int64("user_id", ev.SenderID),
				)
				return nil
			}
			lastSeen[ev.SenderID] = now
			lastSeenMu.Unlock()
			return next(ev)
		}
	}
}

// Logging emits one receipt line per event and one completion line with the
// handler outcome.
func Logging(next HandlerFunc) HandlerFunc {
	return func(ev *Event) error {
		start := time.Now()
		if logger.ShouldSampleDebug() {
			attrs := []slog.Attr{
				slog.String("chat_type", "private"),
			}
			if ev.IsCallback() {
				attrs = append(attrs,
					slog.String("cb_key", logger.SanitizeLimit(ev.CallbackName, 128)),
					slog.String("payload", logger.SanitizeLimit(ev.CallbackArg, 256)),
				)
			} else if ev.Text != "" {
				attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(ev.Text, 256)))
			}
			logger.Debug(ev.Ctx, "http", "update.received", attrs...)
		}

		err := next(ev)

		elapsed := int(time.Since(start) / time.Millisecond)
		if err != nil {
			logger.Error(ev.Ctx, "http", "update.handled",
				slog.String("outcome", "failed"),
				slog.String("error", err.Error()),
				slog.Int("elapsed_ms", elapsed),
			)
		} else if logger.ShouldSampleDebug() {
			logger.Debug(ev.Ctx, "http", "update.handled",
				slog.String("outcome", "ok"),
				slog.Int("elapsed_ms", elapsed),
			)
		}
		return err
	}
}

// Chain applies middlewares outermost-first.
func Chain(h HandlerFunc, mws ...Middleware) HandlerFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
