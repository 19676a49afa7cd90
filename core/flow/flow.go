// Package flow keeps per-actor wizard progress in durable storage so that a
// multi-step dialog survives process restarts. Each (bot, actor) pair owns at
// most one state; starting a new wizard replaces the old one wholesale.
package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"botfleet/core/logger"
	"botfleet/core/store"
)

// Kind identifies which wizard a state belongs to.
type Kind string

const (
	KindAddBot           Kind = "add_bot"
	KindComposeBroadcast Kind = "compose_broadcast"
	KindCreateMenu       Kind = "create_menu"
	KindCreateButton     Kind = "create_button"
	KindEditMenu         Kind = "edit_menu"
)

// MediaKind narrows which message contents a waiting step accepts.
type MediaKind string

const (
	MediaNone  MediaKind = ""
	MediaPhoto MediaKind = "photo"
	MediaVideo MediaKind = "video"
	MediaAny   MediaKind = "any"
)

// State is one actor's position inside a wizard. Payload accumulates the
// answers gathered so far.
type State struct {
	Kind      Kind
	MediaKind MediaKind
	Step      string
	Payload   map[string]string
}

// Accepts reports whether a message carrying the given content kind may feed
// this state while it is active.
func (s *State) Accepts(content MediaKind) bool {
	if content == MediaNone {
		return true
	}
	return s.MediaKind == MediaAny || s.MediaKind == content
}

// Service mediates wizard state reads and writes, enforcing the optional
// expiry window.
type Service struct {
	states store.FlowStates
	ttl    time.Duration
	now    func() time.Time
}

// NewService builds a Service. A zero ttl means states never expire.
func NewService(states store.FlowStates, ttl time.Duration) *Service {
	return &Service{states: states, ttl: ttl, now: time.Now}
}

// Get returns the actor's current state, or nil when none is active. Expired
// states are cleared on read and reported as absent.
func (s *Service) Get(ctx context.Context, botID, actorID int64) (*State, error) {
	row, err := s.states.Get(ctx, botID, actorID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if s.ttl > 0 && s.now().Sub(row.UpdatedAt) > s.ttl {
		if err := s.states.Clear(ctx, botID, actorID); err != nil {
			logger.Warn(ctx, "service.flows", "state.expire.fail", slog.String("error", err.Error()))
		}
		return nil, nil
	}
	st := &State{
		Kind:      Kind(row.Kind),
		MediaKind: MediaKind(row.MediaKind),
		Step:      row.Step,
		Payload:   map[string]string{},
	}
	if len(row.Payload) > 0 {
		if err := json.Unmarshal(row.Payload, &st.Payload); err != nil {
			return nil, fmt.Errorf("flow payload decode: %w", err)
		}
	}
	return st, nil
}

// Set replaces the actor's state. Any previous state for the key is
// discarded, whatever wizard it belonged to.
func (s *Service) Set(ctx context.Context, botID, actorID int64, st *State) error {
	payload, err := json.Marshal(st.Payload)
	if err != nil {
		return fmt.Errorf("flow payload encode: %w", err)
	}
	row := &store.FlowStateRow{
		BotID:     botID,
		ActorID:   actorID,
		Kind:      string(st.Kind),
		MediaKind: string(st.MediaKind),
		Step:      st.Step,
		Payload:   payload,
		UpdatedAt: s.now(),
	}
	if err := s.states.Set(ctx, row); err != nil {
		return err
	}
	logger.Debug(ctx, "service.flows", "state.set",
		slog.Int64("bot_id", botID),
		slog.Int64("user_id", actorID),
		slog.String("flow", string(st.Kind)),
		slog.String("step", st.Step),
	)
	return nil
}

// Clear drops the actor's state if any. Clearing an absent state is a no-op.
func (s *Service) Clear(ctx context.Context, botID, actorID int64) error {
	return s.states.Clear(ctx, botID, actorID)
}
