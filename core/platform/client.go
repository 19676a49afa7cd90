package platform

import "context"

// BotInfo is the platform's view of a bot account.
type BotInfo struct {
	ID       int64
	Username string
}

// WebhookInfo reports the currently installed webhook of a bot.
type WebhookInfo struct {
	URL          string
	PendingCount int
}

// KeyButton is one interactive element of an outbound keyboard. Data carries
// an encoded action token for callback buttons; URL buttons set URL instead.
type KeyButton struct {
	Label string
	Data  string
	URL   string
}

// Keyboard is a row-major button grid.
type Keyboard [][]KeyButton

// Client is the outbound transport for one bot credential. Implementations
// surface failures through the closed error set in errors.go.
type Client interface {
	SendText(ctx context.Context, chatID int64, text string, kb Keyboard) error
	SendPhoto(ctx context.Context, chatID int64, fileID, caption string, kb Keyboard) error
	SendVideo(ctx context.Context, chatID int64, fileID, caption string, kb Keyboard) error
	GetMe(ctx context.Context) (BotInfo, error)
	SetWebhook(ctx context.Context, url string) error
	DeleteWebhook(ctx context.Context) error
	GetWebhookInfo(ctx context.Context) (WebhookInfo, error)
}

// Factory builds a Client from a decrypted bot token. The router builds one
// per request; the delivery engine holds one for a whole run.
type Factory interface {
	Client(token string) (Client, error)
}
