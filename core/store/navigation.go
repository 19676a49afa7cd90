package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type pgNavigation struct {
	db *sqlx.DB
}

// NewNavigation returns the Postgres-backed breadcrumb storage.
func NewNavigation(db *sqlx.DB) Navigation {
	return &pgNavigation{db: db}
}

func (s *pgNavigation) Get(ctx context.Context, botID, subscriberID int64) (*NavigationState, error) {
	var st NavigationState
	err := s.db.GetContext(ctx, &st,
		`SELECT * FROM navigation_states WHERE bot_id = $1 AND subscriber_id = $2`,
		botID, subscriberID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("navigation_states get: %w", err)
	}
	return &st, nil
}

func (s *pgNavigation) Save(ctx context.Context, st *NavigationState) error {
	const q = `
		INSERT INTO navigation_states (bot_id, subscriber_id, current_menu_id, path, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (bot_id, subscriber_id)
		DO UPDATE SET
			current_menu_id = EXCLUDED.current_menu_id,
			path = EXCLUDED.path,
			updated_at = EXCLUDED.updated_at`
	_, err := s.db.ExecContext(ctx, q,
		st.BotID, st.SubscriberID, st.CurrentMenuID, st.Path, st.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("navigation_states save: %w", err)
	}
	return nil
}

type pgNavigationEvents struct {
	db *sqlx.DB
}

// NewNavigationEvents returns the Postgres-backed analytics log.
func NewNavigationEvents(db *sqlx.DB) NavigationEvents {
	return &pgNavigationEvents{db: db}
}

func (s *pgNavigationEvents) Append(ctx context.Context, ev *NavigationEvent) error {
	const q = `
		INSERT INTO navigation_events (bot_id, subscriber_id, menu_id, button_id, action)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`
	if err := s.db.QueryRowxContext(ctx, q,
		ev.BotID, ev.SubscriberID, ev.MenuID, ev.ButtonID, ev.Action).
		Scan(&ev.ID, &ev.CreatedAt); err != nil {
		return fmt.Errorf("navigation_events append: %w", err)
	}
	return nil
}
