package router

import (
	"context"

	tele "gopkg.in/telebot.v4"

	"botfleet/core/flow"
	"botfleet/core/menu"
	"botfleet/core/platform"
	"botfleet/core/store"
)

// Role is the sender's relationship to the bot an update arrived on. It is
// derived fresh for every event; ownership changes take effect immediately.
type Role string

const (
	RoleOwner      Role = "owner"
	RoleSubscriber Role = "subscriber"
)

// Event is one normalized inbound update bound to its bot. Handlers receive
// the same Event the middleware chain saw.
type Event struct {
	Ctx    context.Context
	Bot    *store.Bot
	Client platform.Client
	Role   Role
	// User is set when the sender has a platform account on record; always
	// set for owners.
	User *store.User
	// Sub is the sender's subscriber record, touched before dispatch.
	Sub    *store.Subscriber
	Update tele.Update

	ChatID   int64
	SenderID int64
	Username string

	// Text is the message text, or the callback payload's origin text.
	Text string
	// Command is the leading /word of Text, empty for plain messages.
	Command string
	// Media describes attached content for flow whitelisting.
	Media    flow.MediaKind
	MediaRef string

	// CallbackName and CallbackArg are set for callback updates.
	CallbackName string
	CallbackArg  string
}

// IsCallback reports whether the event is an inline button press.
func (ev *Event) IsCallback() bool {
	return ev.Update.Callback != nil
}

// Reply sends plain text back to the originating chat.
func (ev *Event) Reply(text string) error {
	return ev.Client.SendText(ev.Ctx, ev.ChatID, text, nil)
}

// ReplyKeyboard sends text with an inline keyboard.
func (ev *Event) ReplyKeyboard(text string, kb platform.Keyboard) error {
	return ev.Client.SendText(ev.Ctx, ev.ChatID, text, kb)
}

// ReplyMenu displays a rendered menu.
func (ev *Event) ReplyMenu(r *menu.Rendered) error {
	return ev.Client.SendText(ev.Ctx, ev.ChatID, r.Text, r.Keyboard)
}
