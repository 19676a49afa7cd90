package router

import (
	"errors"
	"strings"

	"botfleet/core/action"
	"botfleet/core/menu"
)

func (r *Router) registerSubscriberHandlers() {
	r.reg.RegisterCommand("/start", Command{
		Handler: r.cmdStart, Description: "Show the welcome message and menu",
		Aliases: []string{"help"},
	})

	r.reg.RegisterAction(action.Button, r.actionButton)
	r.reg.RegisterAction(action.Back, r.actionBack)

	r.reg.SetTextFallback(r.textFallback)
}

func (r *Router) cmdStart(ev *Event) error {
	welcome := "Welcome!"
	if ev.Bot.WelcomeText.Valid && ev.Bot.WelcomeText.String != "" {
		welcome = ev.Bot.WelcomeText.String
	}
	if err := ev.Reply(welcome); err != nil {
		return err
	}
	return r.showDefaultMenu(ev)
}

// showDefaultMenu displays the bot's default menu, or nothing when the owner
// has not built one yet.
func (r *Router) showDefaultMenu(ev *Event) error {
	rendered, err := r.deps.Menus.EnterDefault(ev.Ctx, ev.Bot.ID, ev.Sub.ID)
	if errors.Is(err, menu.ErrMenuNotFound) {
		if ev.Role == RoleOwner {
			return ev.Reply("No menus yet. Use /newmenu to build one.")
		}
		return nil
	}
	if err != nil {
		return err
	}
	return ev.ReplyMenu(rendered)
}

func (r *Router) actionButton(ev *Event) error {
	buttonID, err := action.PayloadInt64(ev.CallbackArg)
	if err != nil {
		return r.reg.ActionNotFound()(ev)
	}
	out, err := r.deps.Menus.Click(ev.Ctx, ev.Bot.ID, ev.Sub.ID, buttonID)
	if errors.Is(err, menu.ErrButtonNotFound) || errors.Is(err, menu.ErrMenuNotFound) {
		return ev.Reply("That option is not available anymore.")
	}
	if errors.Is(err, menu.ErrBadButton) {
		return ev.Reply("That option is misconfigured. Tell the bot owner.")
	}
	if err != nil {
		return err
	}

	if out.Text != "" {
		if err := ev.Reply(out.Text); err != nil {
			return err
		}
	}
	if out.Menu != nil {
		return ev.ReplyMenu(out.Menu)
	}
	if out.URL != "" {
		return ev.Reply(out.URL)
	}
	return nil
}

func (r *Router) actionBack(ev *Event) error {
	rendered, err := r.deps.Menus.Back(ev.Ctx, ev.Bot.ID, ev.Sub.ID)
	if errors.Is(err, menu.ErrMenuNotFound) {
		return ev.Reply("That option is not available anymore.")
	}
	if err != nil {
		return err
	}
	return ev.ReplyMenu(rendered)
}

// textFallback answers plain messages no command or wizard claimed by
// re-offering the menu, keeping subscribers oriented.
func (r *Router) textFallback(ev *Event) error {
	if ev.Role == RoleOwner {
		return ev.Reply("Unknown command. Available: " + strings.Join(r.reg.ListCommands(false), ", ") + ".")
	}
	return r.showDefaultMenu(ev)
}
