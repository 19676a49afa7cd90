package store

import (
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// User is a platform-level account known to the control plane. Bot ownership
// and tier ceilings hang off this record.
type User struct {
	ID         int64     `db:"id"`
	ExternalID int64     `db:"external_id"`
	Username   string    `db:"username"`
	Tier       string    `db:"tier"`
	CreatedAt  time.Time `db:"created_at"`
}

// Bot is a registered tenant bot. Token is stored sealed by the vault and the
// row is soft-deleted by clearing Active.
type Bot struct {
	ID          int64          `db:"id"`
	Username    string         `db:"username"`
	TokenSealed string         `db:"token_sealed"`
	OwnerID     int64          `db:"owner_id"`
	WelcomeText sql.NullString `db:"welcome_text"`
	Active      bool           `db:"active"`
	CreatedAt   time.Time      `db:"created_at"`
}

// Subscriber tracks one end user of one bot. Blocked is flipped only by the
// broadcast delivery engine on a permission-revoked send.
type Subscriber struct {
	ID              int64     `db:"id"`
	BotID           int64     `db:"bot_id"`
	ExternalUserID  int64     `db:"external_user_id"`
	Username        string    `db:"username"`
	Active          bool      `db:"active"`
	Blocked         bool      `db:"blocked"`
	LastInteraction time.Time `db:"last_interaction"`
	CreatedAt       time.Time `db:"created_at"`
}

// FlowStateRow is the durable form of an in-progress wizard, keyed by
// (bot_id, actor_id). At most one row per key; writes are full replaces.
type FlowStateRow struct {
	BotID     int64          `db:"bot_id"`
	ActorID   int64          `db:"actor_id"`
	Kind      string         `db:"kind"`
	MediaKind string         `db:"media_kind"`
	Step      string         `db:"step"`
	Payload   types.JSONText `db:"payload"`
	UpdatedAt time.Time      `db:"updated_at"`
}

// Menu is a node of a bot's navigational tree. ParentID null marks a root.
type Menu struct {
	ID          int64         `db:"id"`
	BotID       int64         `db:"bot_id"`
	ParentID    sql.NullInt64 `db:"parent_id"`
	Name        string        `db:"name"`
	Description string        `db:"description"`
	IsDefault   bool          `db:"is_default"`
	Active      bool          `db:"active"`
	CreatedAt   time.Time     `db:"created_at"`
}

// Button action types.
const (
	ActionSendMessage    = "send_message"
	ActionOpenSubmenu    = "open_submenu"
	ActionOpenURL        = "open_url"
	ActionLaunchForm     = "launch_form"
	ActionTriggerWebhook = "trigger_webhook"
)

// Button is an interactive element of a menu. Value is interpreted by the
// action type: message text, target menu id, URL, or an opaque config.
type Button struct {
	ID        int64     `db:"id"`
	MenuID    int64     `db:"menu_id"`
	Label     string    `db:"label"`
	Row       int       `db:"row"`
	Col       int       `db:"col"`
	Action    string    `db:"action"`
	Value     string    `db:"value"`
	Active    bool      `db:"active"`
	CreatedAt time.Time `db:"created_at"`
}

// NavigationState is the per-subscriber breadcrumb through a bot's menu tree.
// Path holds visited menu ids from the default menu to the current one.
type NavigationState struct {
	BotID         int64          `db:"bot_id"`
	SubscriberID  int64          `db:"subscriber_id"`
	CurrentMenuID int64          `db:"current_menu_id"`
	Path          types.JSONText `db:"path"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

// NavigationEvent is one analytics row per enter/click. Written through a
// non-blocking queue; losing one under pressure is acceptable.
type NavigationEvent struct {
	ID           int64         `db:"id"`
	BotID        int64         `db:"bot_id"`
	SubscriberID int64         `db:"subscriber_id"`
	MenuID       int64         `db:"menu_id"`
	ButtonID     sql.NullInt64 `db:"button_id"`
	Action       string        `db:"action"`
	CreatedAt    time.Time     `db:"created_at"`
}

// Broadcast statuses.
const (
	BroadcastDraft   = "draft"
	BroadcastSending = "sending"
	BroadcastSent    = "sent"
	BroadcastFailed  = "failed"
)

// Broadcast content types.
const (
	ContentText  = "text"
	ContentPhoto = "photo"
	ContentVideo = "video"
)

// Broadcast is one composed message fanned out to a bot's subscribers.
// Content is immutable once the status leaves draft.
type Broadcast struct {
	ID               int64          `db:"id"`
	BotID            int64          `db:"bot_id"`
	ContentType      string         `db:"content_type"`
	Text             string         `db:"text"`
	MediaRef         sql.NullString `db:"media_ref"`
	Status           string         `db:"status"`
	TotalSubscribers int            `db:"total_subscribers"`
	Successful       int            `db:"successful"`
	Failed           int            `db:"failed"`
	CreatedAt        time.Time      `db:"created_at"`
	StartedAt        sql.NullTime   `db:"started_at"`
	CompletedAt      sql.NullTime   `db:"completed_at"`
}

// Delivery record statuses.
const (
	DeliveryPending = "pending"
	DeliverySent    = "sent"
	DeliveryFailed  = "failed"
)

// DeliveryRecord is the immutable audit entry for one recipient of one
// broadcast. Append-once; a retried broadcast gets a brand-new Broadcast row.
type DeliveryRecord struct {
	ID           int64          `db:"id"`
	BroadcastID  int64          `db:"broadcast_id"`
	SubscriberID int64          `db:"subscriber_id"`
	Status       string         `db:"status"`
	ErrorKind    sql.NullString `db:"error_kind"`
	ErrorText    sql.NullString `db:"error_text"`
	CreatedAt    time.Time      `db:"created_at"`
}
