package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound is returned by lookups that match no live row.
var ErrNotFound = errors.New("store: not found")

// Bots persists tenant bot registrations.
type Bots interface {
	Create(ctx context.Context, b *Bot) error
	GetByUsername(ctx context.Context, username string) (*Bot, error)
	GetByID(ctx context.Context, id int64) (*Bot, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]Bot, error)
	CountActiveByOwner(ctx context.Context, ownerID int64) (int, error)
	SetWelcomeText(ctx context.Context, id int64, text string) error
	// Deactivate soft-deletes the bot and cascades to its menus and buttons.
	Deactivate(ctx context.Context, id int64) error
}

// Users persists platform-level accounts.
type Users interface {
	GetByExternalID(ctx context.Context, externalID int64) (*User, error)
	Upsert(ctx context.Context, externalID int64, username string) (*User, error)
}

// Subscribers persists per-bot audience membership.
type Subscribers interface {
	// Touch creates or refreshes the (bot, user) record: updates username and
	// last_interaction and reactivates a previously inactive subscriber.
	// Blocked subscribers stay blocked.
	Touch(ctx context.Context, botID, externalUserID int64, username string, at time.Time) (*Subscriber, error)
	Get(ctx context.Context, botID, externalUserID int64) (*Subscriber, error)
	// ListActive returns active, non-blocked subscribers in stable id order.
	ListActive(ctx context.Context, botID int64) ([]Subscriber, error)
	CountActive(ctx context.Context, botID int64) (int, error)
	// Block marks the subscriber blocked and inactive. Only the broadcast
	// delivery engine calls this.
	Block(ctx context.Context, subscriberID int64) error
}

// FlowStates persists wizard state keyed by (bot_id, actor_id).
type FlowStates interface {
	Get(ctx context.Context, botID, actorID int64) (*FlowStateRow, error)
	// Set fully replaces any prior state for the key.
	Set(ctx context.Context, row *FlowStateRow) error
	Clear(ctx context.Context, botID, actorID int64) error
}

// Menus persists a bot's menu tree and its buttons.
type Menus interface {
	CreateMenu(ctx context.Context, m *Menu) error
	GetMenu(ctx context.Context, id int64) (*Menu, error)
	GetDefaultMenu(ctx context.Context, botID int64) (*Menu, error)
	// ListMenus returns a bot's active menus in stable id order.
	ListMenus(ctx context.Context, botID int64) ([]Menu, error)
	ListChildren(ctx context.Context, parentID int64) ([]Menu, error)
	CountActiveMenus(ctx context.Context, botID int64) (int, error)
	UpdateMenuName(ctx context.Context, id int64, name string) error
	UpdateMenuDescription(ctx context.Context, id int64, description string) error
	// UpdateMenuParent moves a menu under a new parent; a null parent makes
	// it a root. Callers must reject moves that would close a cycle.
	UpdateMenuParent(ctx context.Context, id int64, parentID sql.NullInt64) error
	DeactivateMenu(ctx context.Context, id int64) error

	CreateButton(ctx context.Context, b *Button) error
	GetButton(ctx context.Context, id int64) (*Button, error)
	// ListButtons returns active buttons of a menu in row-major order.
	ListButtons(ctx context.Context, menuID int64) ([]Button, error)
	CountActiveButtons(ctx context.Context, menuID int64) (int, error)
}

// Navigation persists per-subscriber breadcrumb state.
type Navigation interface {
	Get(ctx context.Context, botID, subscriberID int64) (*NavigationState, error)
	Save(ctx context.Context, st *NavigationState) error
}

// NavigationEvents appends analytics rows.
type NavigationEvents interface {
	Append(ctx context.Context, ev *NavigationEvent) error
}

// Broadcasts persists broadcast runs and their delivery audit trail.
type Broadcasts interface {
	Create(ctx context.Context, b *Broadcast) error
	Get(ctx context.Context, id int64) (*Broadcast, error)
	ListByBot(ctx context.Context, botID int64, limit int) ([]Broadcast, error)
	// MarkSending transitions draft -> sending and snapshots the audience size.
	MarkSending(ctx context.Context, id int64, total int, at time.Time) error
	// AppendDelivery writes one recipient outcome and bumps the matching
	// counter in the same transaction, so a crash between recipients leaves a
	// consistent history.
	AppendDelivery(ctx context.Context, rec *DeliveryRecord) error
	Finish(ctx context.Context, id int64, status string, at time.Time) error
	ListDeliveries(ctx context.Context, broadcastID int64) ([]DeliveryRecord, error)
}
