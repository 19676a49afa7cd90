// Package subscriber tracks each bot's audience. Every inbound event touches
// the sender's record before any dispatch decision, so the audience roster is
// complete even for updates no handler claims.
package subscriber

import (
	"context"
	"log/slog"
	"time"

	"botfleet/core/logger"
	"botfleet/core/store"
)

type Service struct {
	subs store.Subscribers
	now  func() time.Time
}

func NewService(subs store.Subscribers) *Service {
	return &Service{subs: subs, now: time.Now}
}

// Touch records an interaction from the given platform user. New users are
// enrolled, lapsed ones reactivated; blocked users keep their block.
func (s *Service) Touch(ctx context.Context, botID, externalUserID int64, username string) (*store.Subscriber, error) {
	sub, err := s.subs.Touch(ctx, botID, externalUserID, username, s.now())
	if err != nil {
		logger.Error(ctx, "service.subscribers", "touch.fail",
			slog.Int64("bot_id", botID),
			slog.Int64("user_id", externalUserID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return sub, nil
}

// Get looks up one subscriber record.
func (s *Service) Get(ctx context.Context, botID, externalUserID int64) (*store.Subscriber, error) {
	return s.subs.Get(ctx, botID, externalUserID)
}

// CountActive returns the size of the reachable audience.
func (s *Service) CountActive(ctx context.Context, botID int64) (int, error) {
	return s.subs.CountActive(ctx, botID)
}
