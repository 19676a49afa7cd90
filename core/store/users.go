package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type pgUsers struct {
	db *sqlx.DB
}

// NewUsers returns the Postgres-backed platform user directory.
func NewUsers(db *sqlx.DB) Users {
	return &pgUsers{db: db}
}

func (s *pgUsers) GetByExternalID(ctx context.Context, externalID int64) (*User, error) {
	var u User
	err := s.db.GetContext(ctx, &u, `SELECT * FROM users WHERE external_id = $1`, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("users get: %w", err)
	}
	return &u, nil
}

func (s *pgUsers) Upsert(ctx context.Context, externalID int64, username string) (*User, error) {
	var u User
	const q = `
		INSERT INTO users (external_id, username, tier)
		VALUES ($1, $2, 'free')
		ON CONFLICT (external_id)
		DO UPDATE SET username = EXCLUDED.username
		RETURNING *`
	if err := s.db.GetContext(ctx, &u, q, externalID, username); err != nil {
		return nil, fmt.Errorf("users upsert: %w", err)
	}
	return &u, nil
}
