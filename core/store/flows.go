package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type pgFlowStates struct {
	db *sqlx.DB
}

// NewFlowStates returns the Postgres-backed conversation state storage.
func NewFlowStates(db *sqlx.DB) FlowStates {
	return &pgFlowStates{db: db}
}

func (s *pgFlowStates) Get(ctx context.Context, botID, actorID int64) (*FlowStateRow, error) {
	var row FlowStateRow
	err := s.db.GetContext(ctx, &row,
		`SELECT * FROM flow_states WHERE bot_id = $1 AND actor_id = $2`, botID, actorID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("flow_states get: %w", err)
	}
	return &row, nil
}

func (s *pgFlowStates) Set(ctx context.Context, row *FlowStateRow) error {
	const q = `
		INSERT INTO flow_states (bot_id, actor_id, kind, media_kind, step, payload, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (bot_id, actor_id)
		DO UPDATE SET
			kind = EXCLUDED.kind,
			media_kind = EXCLUDED.media_kind,
			step = EXCLUDED.step,
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at`
	_, err := s.db.ExecContext(ctx, q,
		row.BotID, row.ActorID, row.Kind, row.MediaKind, row.Step, row.Payload, row.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("flow_states set: %w", err)
	}
	return nil
}

func (s *pgFlowStates) Clear(ctx context.Context, botID, actorID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM flow_states WHERE bot_id = $1 AND actor_id = $2`, botID, actorID)
	if err != nil {
		return fmt.Errorf("flow_states clear: %w", err)
	}
	return nil
}
