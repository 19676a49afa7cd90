package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type pgBots struct {
	db *sqlx.DB
}

// NewBots returns the Postgres-backed bot registry storage.
func NewBots(db *sqlx.DB) Bots {
	return &pgBots{db: db}
}

func (s *pgBots) Create(ctx context.Context, b *Bot) error {
	const q = `
		INSERT INTO bots (username, token_sealed, owner_id, welcome_text, active)
		VALUES ($1, $2, $3, $4, TRUE)
		RETURNING id, created_at`
	if err := s.db.QueryRowxContext(ctx, q, b.Username, b.TokenSealed, b.OwnerID, b.WelcomeText).
		Scan(&b.ID, &b.CreatedAt); err != nil {
		return fmt.Errorf("bots insert: %w", err)
	}
	b.Active = true
	return nil
}

func (s *pgBots) GetByUsername(ctx context.Context, username string) (*Bot, error) {
	var b Bot
	err := s.db.GetContext(ctx, &b,
		`SELECT * FROM bots WHERE username = $1 AND active`, username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("bots get by username: %w", err)
	}
	return &b, nil
}

func (s *pgBots) GetByID(ctx context.Context, id int64) (*Bot, error) {
	var b Bot
	err := s.db.GetContext(ctx, &b, `SELECT * FROM bots WHERE id = $1 AND active`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("bots get: %w", err)
	}
	return &b, nil
}

func (s *pgBots) ListByOwner(ctx context.Context, ownerID int64) ([]Bot, error) {
	var out []Bot
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM bots WHERE owner_id = $1 AND active ORDER BY id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("bots list by owner: %w", err)
	}
	return out, nil
}

func (s *pgBots) CountActiveByOwner(ctx context.Context, ownerID int64) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM bots WHERE owner_id = $1 AND active`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("bots count by owner: %w", err)
	}
	return n, nil
}

func (s *pgBots) SetWelcomeText(ctx context.Context, id int64, text string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE bots SET welcome_text = $2 WHERE id = $1 AND active`, id, text)
	if err != nil {
		return fmt.Errorf("bots set welcome: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgBots) Deactivate(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("bots deactivate begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE bots SET active = FALSE WHERE id = $1 AND active`, id)
	if err != nil {
		return fmt.Errorf("bots deactivate: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE menu_buttons SET active = FALSE
		 WHERE menu_id IN (SELECT id FROM menus WHERE bot_id = $1)`, id); err != nil {
		return fmt.Errorf("bots deactivate buttons: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE menus SET active = FALSE WHERE bot_id = $1`, id); err != nil {
		return fmt.Errorf("bots deactivate menus: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("bots deactivate commit: %w", err)
	}
	return nil
}
