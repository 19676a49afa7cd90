// Package broadcast fans a composed message out to a bot's subscribers with
// paced delivery and a per-recipient audit trail. Counters and delivery
// records are committed one recipient at a time, so an interrupted run leaves
// an accurate history of what was actually sent.
package broadcast

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"botfleet/core/logger"
	"botfleet/core/platform"
	"botfleet/core/store"
)

var (
	// ErrRunInProgress guards against two concurrent runs for one bot.
	ErrRunInProgress = errors.New("broadcast: run already in progress for this bot")
	// ErrNotDraft is returned when Send is asked to run a non-draft broadcast.
	ErrNotDraft = errors.New("broadcast: not in draft status")
	// ErrBadContent is returned for drafts that fail validation.
	ErrBadContent = errors.New("broadcast: invalid content")
)

// Message length bounds enforced at draft time.
const (
	MaxMessageLength = 4096
	MaxCaptionLength = 1024
)

// Progress is invoked after every batch of recipients with the running
// counters. Failures to deliver the progress report never affect the run.
type Progress func(processed, total, successful, failed int)

// Options tunes the delivery loop.
type Options struct {
	// MessagesPerSecond paces outbound sends across the whole run.
	MessagesPerSecond float64
	// ProgressEvery reports progress each N recipients.
	ProgressEvery int
}

// Engine owns broadcast runs. One Engine serves all bots; each bot gets at
// most one concurrent run.
type Engine struct {
	broadcasts store.Broadcasts
	subs       store.Subscribers
	opts       Options
	now        func() time.Time

	mu      sync.Mutex
	running map[int64]bool
}

// NewEngine builds an Engine with sane defaults for zeroed options.
func NewEngine(broadcasts store.Broadcasts, subs store.Subscribers, opts Options) *Engine {
	if opts.MessagesPerSecond <= 0 {
		opts.MessagesPerSecond = 25
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = 10
	}
	return &Engine{
		broadcasts: broadcasts,
		subs:       subs,
		opts:       opts,
		now:        time.Now,
		running:    make(map[int64]bool),
	}
}

// Draft validates content and stores a new draft broadcast.
func (e *Engine) Draft(ctx context.Context, botID int64, contentType, text, mediaRef string) (*store.Broadcast, error) {
	switch contentType {
	case store.ContentText:
		if text == "" {
			return nil, fmt.Errorf("%w: empty text", ErrBadContent)
		}
		if len([]rune(text)) > MaxMessageLength {
			return nil, fmt.Errorf("%w: text over %d characters", ErrBadContent, MaxMessageLength)
		}
	case store.ContentPhoto, store.ContentVideo:
		if mediaRef == "" {
			return nil, fmt.Errorf("%w: missing media", ErrBadContent)
		}
		if len([]rune(text)) > MaxCaptionLength {
			return nil, fmt.Errorf("%w: caption over %d characters", ErrBadContent, MaxCaptionLength)
		}
	default:
		return nil, fmt.Errorf("%w: unknown content type %q", ErrBadContent, contentType)
	}

	b := &store.Broadcast{
		BotID:       botID,
		ContentType: contentType,
		Text:        text,
		Status:      store.BroadcastDraft,
	}
	if mediaRef != "" {
		b.MediaRef = sql.NullString{String: mediaRef, Valid: true}
	}
	if err := e.broadcasts.Create(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Send runs the delivery loop for a draft broadcast. It returns once every
// snapshot recipient has a committed outcome, or earlier on an engine-level
// fault, in which case the run is marked failed with zero counters.
func (e *Engine) Send(ctx context.Context, broadcastID int64, client platform.Client, progress Progress) (*store.Broadcast, error) {
	b, err := e.broadcasts.Get(ctx, broadcastID)
	if err != nil {
		return nil, err
	}
	if b.Status != store.BroadcastDraft {
		return nil, ErrNotDraft
	}

	if !e.acquire(b.BotID) {
		return nil, ErrRunInProgress
	}
	defer e.release(b.BotID)

	// Snapshot the audience before transitioning; subscribers blocked
	// during this very run are already in the snapshot and still get a
	// committed outcome.
	recipients, err := e.subs.ListActive(ctx, b.BotID)
	if err != nil {
		return nil, e.fail(ctx, b, err)
	}
	total := len(recipients)
	if err := e.broadcasts.MarkSending(ctx, b.ID, total, e.now()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotDraft
		}
		return nil, err
	}

	logger.Info(ctx, "service.broadcasts", "run.start",
		slog.Int64("bot_id", b.BotID),
		slog.Int64("broadcast_id", b.ID),
		slog.Int("recipients", total),
	)

	limiter := rate.NewLimiter(rate.Limit(e.opts.MessagesPerSecond), 1)
	successful, failed := 0, 0

	for i, sub := range recipients {
		if err := limiter.Wait(ctx); err != nil {
			return nil, e.fail(ctx, b, err)
		}

		sendErr := e.deliver(ctx, client, b, sub)
		rec := &store.DeliveryRecord{
			BroadcastID:  b.ID,
			SubscriberID: sub.ID,
			CreatedAt:    e.now(),
		}
		if sendErr == nil {
			rec.Status = store.DeliverySent
			successful++
		} else {
			rec.Status = store.DeliveryFailed
			kind := platform.Classify(sendErr)
			rec.ErrorKind = sql.NullString{String: string(kind), Valid: true}
			rec.ErrorText = sql.NullString{String: platform.Sanitize(sendErr), Valid: true}
			failed++

			if kind == platform.KindPermissionRevoked {
				if err := e.subs.Block(ctx, sub.ID); err != nil {
					logger.Warn(ctx, "service.broadcasts", "block.fail",
						slog.Int64("subscriber_id", sub.ID),
						slog.String("error", err.Error()),
					)
				}
			}
		}
		if err := e.broadcasts.AppendDelivery(ctx, rec); err != nil {
			return nil, e.fail(ctx, b, err)
		}

		if progress != nil && (i+1)%e.opts.ProgressEvery == 0 {
			progress(i+1, total, successful, failed)
		}
	}

	status := store.BroadcastFailed
	if successful > 0 {
		status = store.BroadcastSent
	}
	if err := e.broadcasts.Finish(ctx, b.ID, status, e.now()); err != nil {
		return nil, err
	}

	logger.Info(ctx, "service.broadcasts", "run.finish",
		slog.Int64("bot_id", b.BotID),
		slog.Int64("broadcast_id", b.ID),
		slog.String("outcome", statusOutcome(status)),
		slog.Int("delivered", successful),
		slog.Int("failed", failed),
	)

	return e.broadcasts.Get(ctx, b.ID)
}

// Get returns one broadcast with its counters.
func (e *Engine) Get(ctx context.Context, id int64) (*store.Broadcast, error) {
	return e.broadcasts.Get(ctx, id)
}

// History lists a bot's most recent broadcasts.
func (e *Engine) History(ctx context.Context, botID int64, limit int) ([]store.Broadcast, error) {
	if limit <= 0 {
		limit = 10
	}
	return e.broadcasts.ListByBot(ctx, botID, limit)
}

func (e *Engine) deliver(ctx context.Context, client platform.Client, b *store.Broadcast, sub store.Subscriber) error {
	switch b.ContentType {
	case store.ContentPhoto:
		return client.SendPhoto(ctx, sub.ExternalUserID, b.MediaRef.String, b.Text, nil)
	case store.ContentVideo:
		return client.SendVideo(ctx, sub.ExternalUserID, b.MediaRef.String, b.Text, nil)
	default:
		return client.SendText(ctx, sub.ExternalUserID, b.Text, nil)
	}
}

// fail marks the run failed after an engine-level fault. Per-recipient
// counters keep whatever was committed before the fault.
func (e *Engine) fail(ctx context.Context, b *store.Broadcast, cause error) error {
	if err := e.broadcasts.Finish(ctx, b.ID, store.BroadcastFailed, e.now()); err != nil && !errors.Is(err, store.ErrNotFound) {
		logger.Warn(ctx, "service.broadcasts", "fail.mark.fail",
			slog.Int64("broadcast_id", b.ID),
			slog.String("error", err.Error()),
		)
	}
	logger.Error(ctx, "service.broadcasts", "run.fail",
		slog.Int64("bot_id", b.BotID),
		slog.Int64("broadcast_id", b.ID),
		slog.String("error", cause.Error()),
	)
	return cause
}

func (e *Engine) acquire(botID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running[botID] {
		return false
	}
	e.running[botID] = true
	return true
}

func (e *Engine) release(botID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.running, botID)
}

func statusOutcome(status string) string {
	if status == store.BroadcastSent {
		return "ok"
	}
	return "failed"
}
