// Package bots is the tenant registry: it validates credentials with the
// platform, seals tokens at rest and keeps webhook registrations pointing at
// this deployment.
package bots

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"botfleet/core/logger"
	"botfleet/core/platform"
	"botfleet/core/store"
	"botfleet/core/tier"
	"botfleet/core/vault"
)

var (
	// ErrBotNotFound covers unknown and soft-deleted bots alike.
	ErrBotNotFound = errors.New("bots: not found")
	// ErrLimitReached means the owner's tier does not allow another bot.
	ErrLimitReached = errors.New("bots: tier bot limit reached")
	// ErrBadToken means the platform rejected the supplied credentials.
	ErrBadToken = errors.New("bots: token rejected by platform")
	// ErrNotOwner is returned when a caller manages a bot they do not own.
	ErrNotOwner = errors.New("bots: not the owner")
)

// Registry manages bot registrations for all tenants.
type Registry struct {
	bots      store.Bots
	users     store.Users
	vault     *vault.Vault
	factory   platform.Factory
	publicURL string
}

// NewRegistry builds a Registry. publicURL is the externally reachable base
// of this deployment, without a trailing slash.
func NewRegistry(bots store.Bots, users store.Users, v *vault.Vault, factory platform.Factory, publicURL string) *Registry {
	return &Registry{
		bots:      bots,
		users:     users,
		vault:     v,
		factory:   factory,
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

// WebhookURL returns the webhook endpoint served for the given bot username.
func (r *Registry) WebhookURL(username string) string {
	return r.publicURL + "/webhook/" + username
}

// Register validates the token against the platform, seals it and stores the
// bot under the owner, then points the platform's webhook at this deployment.
func (r *Registry) Register(ctx context.Context, owner *store.User, token string) (*store.Bot, error) {
	limits := tier.LimitsFor(tier.Parse(owner.Tier))
	current, err := r.bots.CountActiveByOwner(ctx, owner.ID)
	if err != nil {
		return nil, err
	}
	if !tier.Allows(limits.MaxBots, current) {
		return nil, ErrLimitReached
	}

	client, err := r.factory.Client(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBadToken, platform.Sanitize(err))
	}
	info, err := client.GetMe(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBadToken, platform.Sanitize(err))
	}

	sealed, err := r.vault.Encrypt(token)
	if err != nil {
		return nil, err
	}
	bot := &store.Bot{
		Username:    info.Username,
		TokenSealed: sealed,
		OwnerID:     owner.ID,
	}
	if err := r.bots.Create(ctx, bot); err != nil {
		return nil, err
	}

	if err := client.SetWebhook(ctx, r.WebhookURL(info.Username)); err != nil {
		// Roll the registration back; a registered bot that receives no
		// updates is worse than a clean failure.
		if derr := r.bots.Deactivate(ctx, bot.ID); derr != nil {
			logger.Warn(ctx, "service.bots", "register.rollback.fail",
				slog.Int64("bot_id", bot.ID),
				slog.String("error", derr.Error()),
			)
		}
		return nil, fmt.Errorf("bots: webhook setup failed: %s", platform.Sanitize(err))
	}

	logger.Info(ctx, "service.bots", "registered",
		slog.Int64("bot_id", bot.ID),
		slog.String("bot_username", info.Username),
		slog.Int64("user_id", owner.ExternalID),
	)
	return bot, nil
}

// Resolve finds an active bot by its public username and opens a platform
// client with its unsealed token.
func (r *Registry) Resolve(ctx context.Context, username string) (*store.Bot, platform.Client, error) {
	bot, err := r.bots.GetByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, ErrBotNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	client, err := r.client(bot)
	if err != nil {
		return nil, nil, err
	}
	return bot, client, nil
}

// ClientFor opens a platform client for an already loaded bot.
func (r *Registry) ClientFor(bot *store.Bot) (platform.Client, error) {
	return r.client(bot)
}

// Owned loads a bot and verifies it belongs to the owner.
func (r *Registry) Owned(ctx context.Context, botID int64, owner *store.User) (*store.Bot, error) {
	bot, err := r.bots.GetByID(ctx, botID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrBotNotFound
	}
	if err != nil {
		return nil, err
	}
	if bot.OwnerID != owner.ID {
		return nil, ErrNotOwner
	}
	return bot, nil
}

// List returns the owner's active bots.
func (r *Registry) List(ctx context.Context, owner *store.User) ([]store.Bot, error) {
	return r.bots.ListByOwner(ctx, owner.ID)
}

// SetWelcome stores the text sent to subscribers on /start.
func (r *Registry) SetWelcome(ctx context.Context, botID int64, owner *store.User, text string) error {
	if _, err := r.Owned(ctx, botID, owner); err != nil {
		return err
	}
	return r.bots.SetWelcomeText(ctx, botID, text)
}

// Remove soft-deletes the bot, cascading to its menus, and detaches the
// platform webhook. Webhook removal is best effort.
func (r *Registry) Remove(ctx context.Context, botID int64, owner *store.User) error {
	bot, err := r.Owned(ctx, botID, owner)
	if err != nil {
		return err
	}
	if client, cerr := r.client(bot); cerr == nil {
		if werr := client.DeleteWebhook(ctx); werr != nil {
			logger.Warn(ctx, "service.bots", "webhook.remove.fail",
				slog.Int64("bot_id", bot.ID),
				slog.String("error", platform.Sanitize(werr)),
			)
		}
	}
	if err := r.bots.Deactivate(ctx, botID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrBotNotFound
		}
		return err
	}
	logger.Info(ctx, "service.bots", "removed",
		slog.Int64("bot_id", bot.ID),
		slog.String("bot_username", bot.Username),
	)
	return nil
}

// Identify upserts the platform account behind an inbound event. Role
// derivation compares the returned account against the bot's owner on every
// event; ownership is never cached.
func (r *Registry) Identify(ctx context.Context, externalID int64, username string) (*store.User, error) {
	return r.users.Upsert(ctx, externalID, username)
}

func (r *Registry) client(bot *store.Bot) (platform.Client, error) {
	token, err := r.vault.Decrypt(bot.TokenSealed)
	if err != nil {
		return nil, err
	}
	return r.factory.Client(token)
}
