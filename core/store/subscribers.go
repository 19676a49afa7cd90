package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

type pgSubscribers struct {
	db *sqlx.DB
}

// NewSubscribers returns the Postgres-backed audience storage.
func NewSubscribers(db *sqlx.DB) Subscribers {
	return &pgSubscribers{db: db}
}

func (s *pgSubscribers) Touch(ctx context.Context, botID, externalUserID int64, username string, at time.Time) (*Subscriber, error) {
	var sub Subscriber
	const q = `
		INSERT INTO subscribers (bot_id, external_user_id, username, active, blocked, last_interaction)
		VALUES ($1, $2, $3, TRUE, FALSE, $4)
		ON CONFLICT (bot_id, external_user_id)
		DO UPDATE SET
			username = EXCLUDED.username,
			last_interaction = EXCLUDED.last_interaction,
			active = CASE WHEN subscribers.blocked THEN subscribers.active ELSE TRUE END
		RETURNING *`
	if err := s.db.GetContext(ctx, &sub, q, botID, externalUserID, username, at.UTC()); err != nil {
		return nil, fmt.Errorf("subscribers touch: %w", err)
	}
	return &sub, nil
}

func (s *pgSubscribers) Get(ctx context.Context, botID, externalUserID int64) (*Subscriber, error) {
	var sub Subscriber
	err := s.db.GetContext(ctx, &sub,
		`SELECT * FROM subscribers WHERE bot_id = $1 AND external_user_id = $2`,
		botID, externalUserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("subscribers get: %w", err)
	}
	return &sub, nil
}

func (s *pgSubscribers) ListActive(ctx context.Context, botID int64) ([]Subscriber, error) {
	var out []Subscriber
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM subscribers WHERE bot_id = $1 AND active AND NOT blocked ORDER BY id`,
		botID)
	if err != nil {
		return nil, fmt.Errorf("subscribers list active: %w", err)
	}
	return out, nil
}

func (s *pgSubscribers) CountActive(ctx context.Context, botID int64) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM subscribers WHERE bot_id = $1 AND active AND NOT blocked`, botID)
	if err != nil {
		return 0, fmt.Errorf("subscribers count active: %w", err)
	}
	return n, nil
}

func (s *pgSubscribers) Block(ctx context.Context, subscriberID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE subscribers SET blocked = TRUE, active = FALSE WHERE id = $1`, subscriberID)
	if err != nil {
		return fmt.Errorf("subscribers block: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
