// Package router is the single entry point for inbound platform events. It
// resolves each webhook update to a bot and a sender role, feeds in-progress
// wizards first, and otherwise dispatches by command or callback name. It is
// also the error boundary: handler failures are logged here and never
// propagate past the webhook acknowledgement.
package router

import (
	"context"
	"strings"
	"sync"

	tele "gopkg.in/telebot.v4"

	"botfleet/core/action"
	"botfleet/core/bots"
	"botfleet/core/broadcast"
	"botfleet/core/flow"
	"botfleet/core/logger"
	"botfleet/core/menu"
	"botfleet/core/platform"
	"botfleet/core/store"
	"botfleet/core/subscriber"
)

// Deps bundles the services the router dispatches into.
type Deps struct {
	Bots        *bots.Registry
	Subscribers *subscriber.Service
	Flows       *flow.Service
	Menus       *menu.Engine
	Broadcasts  *broadcast.Engine
	RateLimit   RateLimitOptions
}

type stepHandler func(ev *Event, st *flow.State) error

// Router dispatches normalized events to wizards and handlers.
type Router struct {
	deps  Deps
	reg   *Registry
	chain HandlerFunc
	steps map[flow.Kind]map[string]stepHandler

	bg sync.WaitGroup
}

// New wires the full handler set and middleware chain.
func New(deps Deps) *Router {
	r := &Router{
		deps:  deps,
		reg:   NewRegistry(),
		steps: make(map[flow.Kind]map[string]stepHandler),
	}
	r.registerOwnerHandlers()
	r.registerSubscriberHandlers()
	r.chain = Chain(r.dispatch, Recover, Logging, RateLimit(deps.RateLimit))
	return r
}

// Registry exposes the command and action table, for diagnostics.
func (r *Router) Registry() *Registry {
	return r.reg
}

// Drain waits for background work (broadcast runs) to finish. Used on
// shutdown and in tests.
func (r *Router) Drain() {
	r.bg.Wait()
}

// HandleUpdate processes one decoded update for a resolved bot. The returned
// error is already logged; callers acknowledge the webhook regardless.
func (r *Router) HandleUpdate(ctx context.Context, bot *store.Bot, client platform.Client, upd tele.Update) error {
	ev, ok := r.normalize(ctx, bot, client, upd)
	if !ok {
		return nil
	}

	user, err := r.deps.Bots.Identify(ev.Ctx, ev.SenderID, ev.Username)
	if err != nil {
		return err
	}
	ev.User = user
	ev.Role = RoleSubscriber
	if user.ID == bot.OwnerID {
		ev.Role = RoleOwner
	}
	ev.Ctx = logger.WithBotMeta(ev.Ctx, bot.ID, bot.Username, string(ev.Role))

	// Every sender joins the audience before any dispatch decision.
	sub, err := r.deps.Subscribers.Touch(ev.Ctx, bot.ID, ev.SenderID, ev.Username)
	if err != nil {
		return err
	}
	ev.Sub = sub

	if err := r.chain(ev); err != nil {
		// The chain already logged the failure. Tell the sender something
		// went wrong; if even that fails there is nothing more to do.
		_ = ev.Reply("Something went wrong. Please try again.")
		return err
	}
	return nil
}

func (r *Router) normalize(ctx context.Context, bot *store.Bot, client platform.Client, upd tele.Update) (*Event, bool) {
	ev := &Event{Bot: bot, Client: client, Update: upd}

	switch {
	case upd.Message != nil:
		msg := upd.Message
		if msg.Sender == nil || msg.Chat == nil {
			return nil, false
		}
		ev.SenderID = msg.Sender.ID
		ev.Username = msg.Sender.Username
		ev.ChatID = msg.Chat.ID
		ev.Text = msg.Text
		if msg.Photo != nil {
			ev.Media = flow.MediaPhoto
			ev.MediaRef = msg.Photo.FileID
			if ev.Text == "" {
				ev.Text = msg.Caption
			}
		} else if msg.Video != nil {
			ev.Media = flow.MediaVideo
			ev.MediaRef = msg.Video.FileID
			if ev.Text == "" {
				ev.Text = msg.Caption
			}
		}
		ev.Command = parseCommand(ev.Text, bot.Username)

	case upd.Callback != nil:
		cb := upd.Callback
		if cb.Sender == nil {
			return nil, false
		}
		ev.SenderID = cb.Sender.ID
		ev.Username = cb.Sender.Username
		if cb.Message != nil && cb.Message.Chat != nil {
			ev.ChatID = cb.Message.Chat.ID
		} else {
			ev.ChatID = cb.Sender.ID
		}
		ev.CallbackName, ev.CallbackArg = action.Parse(cb.Data)

	default:
		// Edited messages, channel posts and the rest are acknowledged
		// and ignored.
		return nil, false
	}

	rid := logger.BuildRID(upd.ID, ev.ChatID, ev.SenderID)
	ctx = logger.WithRID(ctx, rid)
	ctx = logger.WithUpdateMeta(ctx, upd.ID, ev.SenderID, ev.ChatID)
	ev.Ctx = ctx
	return ev, true
}

// dispatch is the core routing decision: wizard first, then callbacks, then
// commands, then the plain-text fallback.
func (r *Router) dispatch(ev *Event) error {
	st, err := r.deps.Flows.Get(ev.Ctx, ev.Bot.ID, ev.SenderID)
	if err != nil {
		return err
	}
	if st != nil {
		return r.dispatchFlow(ev, st)
	}

	if ev.IsCallback() {
		h, ok := r.reg.GetAction(ev.CallbackName)
		if !ok {
			h = r.reg.ActionNotFound()
		}
		return h(ev)
	}

	if ev.Command != "" {
		if _, cmd, ok := r.reg.LookupCommand(ev.Command); ok {
			if !cmd.OwnerOnly || ev.Role == RoleOwner {
				return cmd.Handler(ev)
			}
		}
	}

	if fb := r.reg.TextFallback(); fb != nil {
		return fb(ev)
	}
	return nil
}

// dispatchFlow feeds an event to the in-progress wizard. Only /cancel and
// content matching the step's expectations get through; everything else is
// answered with a nudge instead of leaking into command dispatch.
func (r *Router) dispatchFlow(ev *Event, st *flow.State) error {
	if ev.Command == "/cancel" {
		return r.cancelFlow(ev)
	}
	if !ev.IsCallback() {
		if ev.Command != "" {
			return ev.Reply("Finish the current dialog first, or send /cancel.")
		}
		if !st.Accepts(ev.Media) {
			return ev.Reply("That content does not fit this step. Send the expected kind, or /cancel.")
		}
	}

	steps, ok := r.steps[st.Kind]
	if !ok {
		// Unknown wizard kind in storage; drop it rather than trap the user.
		if err := r.deps.Flows.Clear(ev.Ctx, ev.Bot.ID, ev.SenderID); err != nil {
			return err
		}
		return ev.Reply("That dialog is no longer available.")
	}
	h, ok := steps[st.Step]
	if !ok {
		if err := r.deps.Flows.Clear(ev.Ctx, ev.Bot.ID, ev.SenderID); err != nil {
			return err
		}
		return ev.Reply("That dialog is no longer available.")
	}
	return h(ev, st)
}

func (r *Router) cancelFlow(ev *Event) error {
	if err := r.deps.Flows.Clear(ev.Ctx, ev.Bot.ID, ev.SenderID); err != nil {
		return err
	}
	return ev.Reply("Cancelled.")
}

func (r *Router) registerStep(kind flow.Kind, step string, h stepHandler) {
	if r.steps[kind] == nil {
		r.steps[kind] = make(map[string]stepHandler)
	}
	r.steps[kind][step] = h
}

// setFlow stores wizard state for the event's sender.
func (r *Router) setFlow(ev *Event, st *flow.State) error {
	return r.deps.Flows.Set(ev.Ctx, ev.Bot.ID, ev.SenderID, st)
}

// clearFlow drops the sender's wizard state.
func (r *Router) clearFlow(ev *Event) error {
	return r.deps.Flows.Clear(ev.Ctx, ev.Bot.ID, ev.SenderID)
}

func parseCommand(text, botUsername string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	word := text
	if i := strings.IndexAny(word, " \n"); i >= 0 {
		word = word[:i]
	}
	// Strip the /cmd@bot_name addressing form.
	if i := strings.Index(word, "@"); i >= 0 {
		if botUsername != "" && !strings.EqualFold(word[i+1:], botUsername) {
			return ""
		}
		word = word[:i]
	}
	return strings.ToLower(word)
}

// spawn runs fn off the request path, tracked for Drain.
func (r *Router) spawn(fn func()) {
	r.bg.Add(1)
	go func() {
		defer r.bg.Done()
		fn()
	}()
}

// commandArg returns the text after the command word, trimmed.
func commandArg(text string) string {
	if i := strings.IndexAny(text, " \n"); i >= 0 {
		return strings.TrimSpace(text[i+1:])
	}
	return ""
}
