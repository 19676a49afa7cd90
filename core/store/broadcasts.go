package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

type pgBroadcasts struct {
	db *sqlx.DB
}

// NewBroadcasts returns the Postgres-backed broadcast storage.
func NewBroadcasts(db *sqlx.DB) Broadcasts {
	return &pgBroadcasts{db: db}
}

func (s *pgBroadcasts) Create(ctx context.Context, b *Broadcast) error {
	const q = `
		INSERT INTO broadcasts (bot_id, content_type, text, media_ref, status)
		VALUES ($1, $2, $3, $4, 'draft')
		RETURNING id, created_at`
	if err := s.db.QueryRowxContext(ctx, q,
		b.BotID, b.ContentType, b.Text, b.MediaRef).
		Scan(&b.ID, &b.CreatedAt); err != nil {
		return fmt.Errorf("broadcasts insert: %w", err)
	}
	b.Status = BroadcastDraft
	return nil
}

func (s *pgBroadcasts) Get(ctx context.Context, id int64) (*Broadcast, error) {
	var b Broadcast
	err := s.db.GetContext(ctx, &b, `SELECT * FROM broadcasts WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("broadcasts get: %w", err)
	}
	return &b, nil
}

func (s *pgBroadcasts) ListByBot(ctx context.Context, botID int64, limit int) ([]Broadcast, error) {
	if limit <= 0 {
		limit = 10
	}
	var out []Broadcast
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM broadcasts WHERE bot_id = $1 ORDER BY id DESC LIMIT $2`, botID, limit)
	if err != nil {
		return nil, fmt.Errorf("broadcasts list: %w", err)
	}
	return out, nil
}

func (s *pgBroadcasts) MarkSending(ctx context.Context, id int64, total int, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE broadcasts
		 SET status = 'sending', total_subscribers = $2, started_at = $3
		 WHERE id = $1 AND status = 'draft'`,
		id, total, at.UTC())
	if err != nil {
		return fmt.Errorf("broadcasts mark sending: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgBroadcasts) AppendDelivery(ctx context.Context, rec *DeliveryRecord) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delivery append begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const q = `
		INSERT INTO delivery_records (broadcast_id, subscriber_id, status, error_kind, error_text)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`
	if err := tx.QueryRowxContext(ctx, q,
		rec.BroadcastID, rec.SubscriberID, rec.Status, rec.ErrorKind, rec.ErrorText).
		Scan(&rec.ID, &rec.CreatedAt); err != nil {
		return fmt.Errorf("delivery append: %w", err)
	}

	column := "failed"
	if rec.Status == DeliverySent {
		column = "successful"
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE broadcasts SET %s = %s + 1 WHERE id = $1`, column, column),
		rec.BroadcastID); err != nil {
		return fmt.Errorf("delivery counter bump: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delivery append commit: %w", err)
	}
	return nil
}

func (s *pgBroadcasts) Finish(ctx context.Context, id int64, status string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE broadcasts SET status = $2, completed_at = $3 WHERE id = $1 AND status = 'sending'`,
		id, status, at.UTC())
	if err != nil {
		return fmt.Errorf("broadcasts finish: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgBroadcasts) ListDeliveries(ctx context.Context, broadcastID int64) ([]DeliveryRecord, error) {
	var out []DeliveryRecord
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM delivery_records WHERE broadcast_id = $1 ORDER BY id`, broadcastID)
	if err != nil {
		return nil, fmt.Errorf("delivery list: %w", err)
	}
	return out, nil
}
