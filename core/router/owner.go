package router

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"botfleet/core/action"
	"botfleet/core/bots"
	"botfleet/core/broadcast"
	"botfleet/core/flow"
	"botfleet/core/format"
	"botfleet/core/logger"
	"botfleet/core/menu"
	"botfleet/core/platform"
	"botfleet/core/store"
	"botfleet/core/tier"
)

// Wizard step names. A step is the routing key inside one wizard kind.
const (
	stepAwaitToken   = "await_token"
	stepChooseType   = "choose_type"
	stepAwaitContent = "await_content"
	stepConfirm      = "confirm"
	stepAwaitName    = "await_name"
	stepChooseMenu   = "choose_menu"
	stepAwaitLabel   = "await_label"
	stepChooseAction = "choose_action"
	stepAwaitValue   = "await_value"
	stepChooseTarget = "choose_target"
	stepChooseField  = "choose_field"
)

func (r *Router) registerOwnerHandlers() {
	r.reg.RegisterCommand("/addbot", Command{
		Handler: r.cmdAddBot, Description: "Register a new bot", OwnerOnly: true,
	})
	r.reg.RegisterCommand("/mybots", Command{
		Handler: r.cmdMyBots, Description: "List your bots", OwnerOnly: true,
	})
	r.reg.RegisterCommand("/removebot", Command{
		Handler: r.cmdRemoveBot, Description: "Remove this bot", OwnerOnly: true,
	})
	r.reg.RegisterCommand("/setwelcome", Command{
		Handler: r.cmdSetWelcome, Description: "Set the /start welcome text", OwnerOnly: true,
	})
	r.reg.RegisterCommand("/newmenu", Command{
		Handler: r.cmdNewMenu, Description: "Create a menu", OwnerOnly: true,
	})
	r.reg.RegisterCommand("/newbutton", Command{
		Handler: r.cmdNewButton, Description: "Add a button to a menu", OwnerOnly: true,
	})
	r.reg.RegisterCommand("/editmenu", Command{
		Handler: r.cmdEditMenu, Description: "Edit or remove a menu", OwnerOnly: true,
	})
	r.reg.RegisterCommand("/broadcast", Command{
		Handler: r.cmdBroadcast, Description: "Send a message to all subscribers", OwnerOnly: true,
	})
	r.reg.RegisterCommand("/history", Command{
		Handler: r.cmdHistory, Description: "Recent broadcasts", OwnerOnly: true,
	})
	r.reg.RegisterCommand("/cancel", Command{
		Handler: func(ev *Event) error { return ev.Reply("Nothing to cancel.") },
		Description: "Abort the current dialog",
	})

	r.reg.RegisterAction(action.PickBot, r.actionPickBotToRemove)
	r.reg.RegisterAction(action.RemoveGo, r.actionRemoveBot)
	r.reg.RegisterAction(action.RemoveNo, func(ev *Event) error {
		return ev.Reply("Kept.")
	})

	r.registerStep(flow.KindAddBot, stepAwaitToken, r.stepAddBotToken)

	r.registerStep(flow.KindComposeBroadcast, stepChooseType, r.stepBroadcastType)
	r.registerStep(flow.KindComposeBroadcast, stepAwaitContent, r.stepBroadcastContent)
	r.registerStep(flow.KindComposeBroadcast, stepConfirm, r.stepBroadcastConfirm)

	r.registerStep(flow.KindCreateMenu, stepAwaitName, r.stepMenuName)

	r.registerStep(flow.KindCreateButton, stepChooseMenu, r.stepButtonMenu)
	r.registerStep(flow.KindCreateButton, stepAwaitLabel, r.stepButtonLabel)
	r.registerStep(flow.KindCreateButton, stepChooseAction, r.stepButtonAction)
	r.registerStep(flow.KindCreateButton, stepAwaitValue, r.stepButtonValue)
	r.registerStep(flow.KindCreateButton, stepChooseTarget, r.stepButtonTarget)

	r.registerStep(flow.KindEditMenu, stepChooseMenu, r.stepEditPickMenu)
	r.registerStep(flow.KindEditMenu, stepChooseField, r.stepEditField)
	r.registerStep(flow.KindEditMenu, stepAwaitValue, r.stepEditValue)
}

// --- add bot ---

func (r *Router) cmdAddBot(ev *Event) error {
	if err := r.setFlow(ev, &flow.State{Kind: flow.KindAddBot, Step: stepAwaitToken}); err != nil {
		return err
	}
	return ev.Reply("Send me the bot token you got from BotFather. /cancel to abort.")
}

func (r *Router) stepAddBotToken(ev *Event, _ *flow.State) error {
	token := strings.TrimSpace(ev.Text)
	if token == "" {
		return ev.Reply("That does not look like a token. Paste the token, or /cancel.")
	}

	bot, err := r.deps.Bots.Register(ev.Ctx, ev.User, token)
	switch {
	case errors.Is(err, bots.ErrLimitReached):
		if cerr := r.clearFlow(ev); cerr != nil {
			return cerr
		}
		limits := tier.LimitsFor(tier.Parse(ev.User.Tier))
		return ev.Reply(fmt.Sprintf("Your plan allows %d bots. Upgrade to add more.", limits.MaxBots))
	case errors.Is(err, bots.ErrBadToken):
		return ev.Reply("The platform rejected that token. Check it and try again, or /cancel.")
	case err != nil:
		return err
	}

	if cerr := r.clearFlow(ev); cerr != nil {
		return cerr
	}
	return ev.Reply(fmt.Sprintf("Done. @%s is registered and receiving updates.", bot.Username))
}

// --- bot management ---

func (r *Router) cmdMyBots(ev *Event) error {
	list, err := r.deps.Bots.List(ev.Ctx, ev.User)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return ev.Reply("You have no bots yet. Use /addbot to register one.")
	}
	var b strings.Builder
	b.WriteString("Your bots:\n")
	for _, bot := range list {
		fmt.Fprintf(&b, "• @%s\n", bot.Username)
	}
	return ev.Reply(b.String())
}

func (r *Router) cmdRemoveBot(ev *Event) error {
	list, err := r.deps.Bots.List(ev.Ctx, ev.User)
	if err != nil {
		return err
	}
	// With a single bot there is nothing to choose; go straight to the
	// confirmation.
	if len(list) <= 1 {
		return r.confirmRemoveBot(ev, ev.Bot.ID, ev.Bot.Username)
	}
	var kb platform.Keyboard
	for _, b := range list {
		kb = append(kb, []platform.KeyButton{
			{Label: "@" + b.Username, Data: action.EncodeInt64(action.PickBot, b.ID)},
		})
	}
	return ev.ReplyKeyboard("Which bot do you want to remove?", kb)
}

func (r *Router) actionPickBotToRemove(ev *Event) error {
	if ev.Role != RoleOwner {
		return nil
	}
	botID, err := action.PayloadInt64(ev.CallbackArg)
	if err != nil {
		return ev.Reply("This button is no longer supported.")
	}
	list, err := r.deps.Bots.List(ev.Ctx, ev.User)
	if err != nil {
		return err
	}
	for _, b := range list {
		if b.ID == botID {
			return r.confirmRemoveBot(ev, b.ID, b.Username)
		}
	}
	return ev.Reply("That bot is not yours to remove.")
}

func (r *Router) confirmRemoveBot(ev *Event, botID int64, username string) error {
	kb := platform.Keyboard{{
		{Label: "Yes, remove", Data: action.EncodeInt64(action.RemoveGo, botID)},
		{Label: "Keep it", Data: action.Encode(action.RemoveNo, "")},
	}}
	return ev.ReplyKeyboard(
		fmt.Sprintf("Remove @%s? Its menus stop working and subscribers lose access.", username), kb)
}

func (r *Router) actionRemoveBot(ev *Event) error {
	if ev.Role != RoleOwner {
		return nil
	}
	botID, err := action.PayloadInt64(ev.CallbackArg)
	if err != nil {
		return ev.Reply("This button is no longer supported.")
	}
	if err := r.deps.Bots.Remove(ev.Ctx, botID, ev.User); err != nil {
		if errors.Is(err, bots.ErrBotNotFound) || errors.Is(err, bots.ErrNotOwner) {
			return ev.Reply("That bot is not yours to remove.")
		}
		return err
	}
	return ev.Reply("The bot has been removed.")
}

func (r *Router) cmdSetWelcome(ev *Event) error {
	text := commandArg(ev.Text)
	if text == "" {
		return ev.Reply("Usage: /setwelcome <text shown to new subscribers>")
	}
	if err := r.deps.Bots.SetWelcome(ev.Ctx, ev.Bot.ID, ev.User, text); err != nil {
		return err
	}
	return ev.Reply("Welcome text updated.")
}

// --- broadcast wizard ---

func (r *Router) cmdBroadcast(ev *Event) error {
	if err := r.setFlow(ev, &flow.State{Kind: flow.KindComposeBroadcast, Step: stepChooseType}); err != nil {
		return err
	}
	kb := platform.Keyboard{{
		{Label: "Text", Data: action.Encode(action.PickAction, store.ContentText)},
		{Label: "Photo", Data: action.Encode(action.PickAction, store.ContentPhoto)},
		{Label: "Video", Data: action.Encode(action.PickAction, store.ContentVideo)},
	}}
	return ev.ReplyKeyboard("What kind of broadcast? /cancel to abort.", kb)
}

func (r *Router) stepBroadcastType(ev *Event, st *flow.State) error {
	if !ev.IsCallback() || ev.CallbackName != action.PickAction {
		return ev.Reply("Pick a content type with the buttons above, or /cancel.")
	}
	contentType := ev.CallbackArg

	next := &flow.State{
		Kind:    flow.KindComposeBroadcast,
		Step:    stepAwaitContent,
		Payload: map[string]string{"content_type": contentType},
	}
	var prompt string
	switch contentType {
	case store.ContentText:
		prompt = "Send the message text."
	case store.ContentPhoto:
		next.MediaKind = flow.MediaPhoto
		prompt = "Send the photo. A caption is optional."
	case store.ContentVideo:
		next.MediaKind = flow.MediaVideo
		prompt = "Send the video. A caption is optional."
	default:
		return ev.Reply("Pick a content type with the buttons above, or /cancel.")
	}
	if err := r.setFlow(ev, next); err != nil {
		return err
	}
	return ev.Reply(prompt)
}

func (r *Router) stepBroadcastContent(ev *Event, st *flow.State) error {
	contentType := st.Payload["content_type"]
	switch contentType {
	case store.ContentPhoto, store.ContentVideo:
		if ev.MediaRef == "" {
			return ev.Reply("Attach the media for this broadcast, or /cancel.")
		}
	default:
		if strings.TrimSpace(ev.Text) == "" {
			return ev.Reply("Send the message text, or /cancel.")
		}
	}

	count, err := r.deps.Subscribers.CountActive(ev.Ctx, ev.Bot.ID)
	if err != nil {
		return err
	}
	next := &flow.State{
		Kind:      flow.KindComposeBroadcast,
		Step:      stepConfirm,
		MediaKind: st.MediaKind,
		Payload: map[string]string{
			"content_type": contentType,
			"text":         ev.Text,
			"media_ref":    ev.MediaRef,
		},
	}
	if err := r.setFlow(ev, next); err != nil {
		return err
	}

	kb := platform.Keyboard{{
		{Label: "Send", Data: action.Encode(action.BroadcastGo, "")},
		{Label: "Discard", Data: action.Encode(action.BroadcastNo, "")},
	}}
	preview := ev.Text
	if preview == "" {
		preview = "(media without caption)"
	}
	return ev.ReplyKeyboard(
		fmt.Sprintf("Preview:\n%s\n\nRecipients: %d. Send it?", format.EscapeMarkdown(preview), count), kb)
}

func (r *Router) stepBroadcastConfirm(ev *Event, st *flow.State) error {
	if !ev.IsCallback() {
		return ev.Reply("Use the Send or Discard buttons, or /cancel.")
	}
	switch ev.CallbackName {
	case action.BroadcastNo:
		if err := r.clearFlow(ev); err != nil {
			return err
		}
		return ev.Reply("Discarded.")
	case action.BroadcastGo:
	default:
		return ev.Reply("Use the Send or Discard buttons, or /cancel.")
	}

	draft, err := r.deps.Broadcasts.Draft(ev.Ctx, ev.Bot.ID,
		st.Payload["content_type"], st.Payload["text"], st.Payload["media_ref"])
	if errors.Is(err, broadcast.ErrBadContent) {
		if cerr := r.clearFlow(ev); cerr != nil {
			return cerr
		}
		return ev.Reply("That content cannot be broadcast: " + err.Error())
	}
	if err != nil {
		return err
	}
	if err := r.clearFlow(ev); err != nil {
		return err
	}
	if err := ev.Reply("Broadcast started."); err != nil {
		return err
	}

	ownerChat := ev.ChatID
	client := ev.Client
	bgCtx := logger.WithBotMeta(context.Background(), ev.Bot.ID, ev.Bot.Username, string(RoleOwner))
	r.spawn(func() {
		progress := func(processed, total, successful, failed int) {
			// Progress delivery is best effort; a failed report never
			// affects the run.
			_ = client.SendText(bgCtx, ownerChat, fmt.Sprintf("Progress: %d/%d (%d delivered, %d failed)", processed, total, successful, failed), nil)
		}
		run, err := r.deps.Broadcasts.Send(bgCtx, draft.ID, client, progress)
		if err != nil {
			if errors.Is(err, broadcast.ErrRunInProgress) {
				_ = client.SendText(bgCtx, ownerChat, "Another broadcast is still running for this bot.", nil)
				return
			}
			_ = client.SendText(bgCtx, ownerChat, "The broadcast failed to run. Check /history.", nil)
			return
		}
		_ = client.SendText(bgCtx, ownerChat,
			fmt.Sprintf("Broadcast finished: %d delivered, %d failed of %d.",
				run.Successful, run.Failed, run.TotalSubscribers), nil)
	})
	return nil
}

func (r *Router) cmdHistory(ev *Event) error {
	list, err := r.deps.Broadcasts.History(ev.Ctx, ev.Bot.ID, 10)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return ev.Reply("No broadcasts yet. Use /broadcast to send one.")
	}
	var b strings.Builder
	b.WriteString("Recent broadcasts:\n")
	for _, bc := range list {
		fmt.Fprintf(&b, "• #%d %s: %d/%d delivered\n",
			bc.ID, bc.Status, bc.Successful, bc.TotalSubscribers)
	}
	return ev.Reply(b.String())
}

// --- menu wizards ---

func (r *Router) cmdNewMenu(ev *Event) error {
	limits := tier.LimitsFor(tier.Parse(ev.User.Tier))
	current, err := r.deps.Menus.CountMenus(ev.Ctx, ev.Bot.ID)
	if err != nil {
		return err
	}
	if !tier.Allows(limits.MaxMenus, current) {
		return ev.Reply(fmt.Sprintf("Your plan allows %d menus per bot.", limits.MaxMenus))
	}
	if err := r.setFlow(ev, &flow.State{Kind: flow.KindCreateMenu, Step: stepAwaitName}); err != nil {
		return err
	}
	return ev.Reply("What should the menu be called? /cancel to abort.")
}

func (r *Router) stepMenuName(ev *Event, _ *flow.State) error {
	name := strings.TrimSpace(ev.Text)
	if name == "" {
		return ev.Reply("Send the menu name, or /cancel.")
	}

	// The bot's first menu doubles as its default menu.
	existing, err := r.deps.Menus.Menus(ev.Ctx, ev.Bot.ID)
	if err != nil {
		return err
	}
	isDefault := len(existing) == 0

	m := &store.Menu{BotID: ev.Bot.ID, Name: name, IsDefault: isDefault}
	if err := r.deps.Menus.CreateMenu(ev.Ctx, m); err != nil {
		return err
	}
	if err := r.clearFlow(ev); err != nil {
		return err
	}
	if isDefault {
		return ev.Reply(fmt.Sprintf("Menu %q created and set as the default menu.", name))
	}
	return ev.Reply(fmt.Sprintf("Menu %q created. Use /newbutton to add buttons.", name))
}

func (r *Router) cmdNewButton(ev *Event) error {
	menus, err := r.deps.Menus.Menus(ev.Ctx, ev.Bot.ID)
	if err != nil {
		return err
	}
	if len(menus) == 0 {
		return ev.Reply("Create a menu first with /newmenu.")
	}
	if err := r.setFlow(ev, &flow.State{Kind: flow.KindCreateButton, Step: stepChooseMenu}); err != nil {
		return err
	}
	return ev.ReplyKeyboard("Which menu gets the button?", menuPicker(menus))
}

func menuPicker(menus []store.Menu) platform.Keyboard {
	var kb platform.Keyboard
	for _, m := range menus {
		kb = append(kb, []platform.KeyButton{
			{Label: m.Name, Data: action.EncodeInt64(action.PickMenu, m.ID)},
		})
	}
	return kb
}

func (r *Router) stepButtonMenu(ev *Event, st *flow.State) error {
	if !ev.IsCallback() || ev.CallbackName != action.PickMenu {
		return ev.Reply("Pick a menu with the buttons above, or /cancel.")
	}
	menuID, err := action.PayloadInt64(ev.CallbackArg)
	if err != nil {
		return ev.Reply("Pick a menu with the buttons above, or /cancel.")
	}

	limits := tier.LimitsFor(tier.Parse(ev.User.Tier))
	current, err := r.deps.Menus.CountButtons(ev.Ctx, menuID)
	if err != nil {
		return err
	}
	if !tier.Allows(limits.MaxButtonsPerMenu, current) {
		if cerr := r.clearFlow(ev); cerr != nil {
			return cerr
		}
		return ev.Reply(fmt.Sprintf("Your plan allows %d buttons per menu.", limits.MaxButtonsPerMenu))
	}

	next := &flow.State{
		Kind:    flow.KindCreateButton,
		Step:    stepAwaitLabel,
		Payload: map[string]string{"menu_id": ev.CallbackArg},
	}
	if err := r.setFlow(ev, next); err != nil {
		return err
	}
	return ev.Reply(fmt.Sprintf("Button label? Up to %d characters.", menu.MaxLabelLength))
}

func (r *Router) stepButtonLabel(ev *Event, st *flow.State) error {
	label := strings.TrimSpace(ev.Text)
	if label == "" || len([]rune(label)) > menu.MaxLabelLength {
		return ev.Reply(fmt.Sprintf("Send a label up to %d characters, or /cancel.", menu.MaxLabelLength))
	}

	st.Payload["label"] = label
	st.Step = stepChooseAction
	if err := r.setFlow(ev, st); err != nil {
		return err
	}
	kb := platform.Keyboard{{
		{Label: "Send a message", Data: action.Encode(action.PickAction, store.ActionSendMessage)},
		{Label: "Open a submenu", Data: action.Encode(action.PickAction, store.ActionOpenSubmenu)},
	}, {
		{Label: "Open a link", Data: action.Encode(action.PickAction, store.ActionOpenURL)},
	}}
	return ev.ReplyKeyboard("What should the button do?", kb)
}

func (r *Router) stepButtonAction(ev *Event, st *flow.State) error {
	if !ev.IsCallback() || ev.CallbackName != action.PickAction {
		return ev.Reply("Pick an action with the buttons above, or /cancel.")
	}
	st.Payload["action"] = ev.CallbackArg

	switch ev.CallbackArg {
	case store.ActionSendMessage:
		st.Step = stepAwaitValue
		if err := r.setFlow(ev, st); err != nil {
			return err
		}
		return ev.Reply("Send the message the button should deliver.")
	case store.ActionOpenURL:
		st.Step = stepAwaitValue
		if err := r.setFlow(ev, st); err != nil {
			return err
		}
		return ev.Reply("Send the URL, starting with http:// or https://.")
	case store.ActionOpenSubmenu:
		menus, err := r.deps.Menus.Menus(ev.Ctx, ev.Bot.ID)
		if err != nil {
			return err
		}
		st.Step = stepChooseTarget
		if err := r.setFlow(ev, st); err != nil {
			return err
		}
		return ev.ReplyKeyboard("Which menu should it open?", menuPicker(menus))
	default:
		return ev.Reply("Pick an action with the buttons above, or /cancel.")
	}
}

func (r *Router) stepButtonValue(ev *Event, st *flow.State) error {
	value := strings.TrimSpace(ev.Text)
	if value == "" {
		return ev.Reply("Send the button content, or /cancel.")
	}
	return r.commitButton(ev, st, value)
}

func (r *Router) stepButtonTarget(ev *Event, st *flow.State) error {
	if !ev.IsCallback() || ev.CallbackName != action.PickMenu {
		return ev.Reply("Pick the target menu with the buttons above, or /cancel.")
	}
	return r.commitButton(ev, st, ev.CallbackArg)
}

func (r *Router) commitButton(ev *Event, st *flow.State, value string) error {
	menuID, err := action.PayloadInt64(st.Payload["menu_id"])
	if err != nil {
		return r.cancelFlow(ev)
	}
	count, err := r.deps.Menus.CountButtons(ev.Ctx, menuID)
	if err != nil {
		return err
	}
	b := &store.Button{
		MenuID: menuID,
		Label:  st.Payload["label"],
		Row:    count / 2,
		Col:    count % 2,
		Action: st.Payload["action"],
		Value:  value,
	}
	if err := r.deps.Menus.CreateButton(ev.Ctx, b); err != nil {
		if errors.Is(err, menu.ErrBadButton) {
			return ev.Reply("That value does not fit the action: " + err.Error())
		}
		if errors.Is(err, menu.ErrMenuNotFound) {
			if cerr := r.clearFlow(ev); cerr != nil {
				return cerr
			}
			return ev.Reply("That menu no longer exists.")
		}
		return err
	}
	if err := r.clearFlow(ev); err != nil {
		return err
	}
	return ev.Reply(fmt.Sprintf("Button %q added.", b.Label))
}

// --- edit menu wizard ---

func (r *Router) cmdEditMenu(ev *Event) error {
	menus, err := r.deps.Menus.Menus(ev.Ctx, ev.Bot.ID)
	if err != nil {
		return err
	}
	if len(menus) == 0 {
		return ev.Reply("No menus yet. Use /newmenu to create one.")
	}
	if err := r.setFlow(ev, &flow.State{Kind: flow.KindEditMenu, Step: stepChooseMenu}); err != nil {
		return err
	}
	return ev.ReplyKeyboard("Which menu do you want to edit?", menuPicker(menus))
}

func (r *Router) stepEditPickMenu(ev *Event, st *flow.State) error {
	if !ev.IsCallback() || ev.CallbackName != action.PickMenu {
		return ev.Reply("Pick a menu with the buttons above, or /cancel.")
	}
	if _, err := action.PayloadInt64(ev.CallbackArg); err != nil {
		return ev.Reply("Pick a menu with the buttons above, or /cancel.")
	}
	next := &flow.State{
		Kind:    flow.KindEditMenu,
		Step:    stepChooseField,
		Payload: map[string]string{"menu_id": ev.CallbackArg},
	}
	if err := r.setFlow(ev, next); err != nil {
		return err
	}
	kb := platform.Keyboard{{
		{Label: "Rename", Data: action.Encode(action.PickAction, "name")},
		{Label: "Description", Data: action.Encode(action.PickAction, "description")},
	}, {
		{Label: "Delete menu", Data: action.Encode(action.PickAction, "delete")},
	}}
	return ev.ReplyKeyboard("What do you want to change?", kb)
}

func (r *Router) stepEditField(ev *Event, st *flow.State) error {
	if !ev.IsCallback() || ev.CallbackName != action.PickAction {
		return ev.Reply("Pick a field with the buttons above, or /cancel.")
	}
	menuID, err := action.PayloadInt64(st.Payload["menu_id"])
	if err != nil {
		return r.cancelFlow(ev)
	}

	switch ev.CallbackArg {
	case "delete":
		if err := r.deps.Menus.Remove(ev.Ctx, menuID); err != nil {
			if errors.Is(err, menu.ErrMenuNotFound) {
				if cerr := r.clearFlow(ev); cerr != nil {
					return cerr
				}
				return ev.Reply("That menu no longer exists.")
			}
			return err
		}
		if err := r.clearFlow(ev); err != nil {
			return err
		}
		return ev.Reply("Menu removed, buttons included.")
	case "name", "description":
		st.Payload["field"] = ev.CallbackArg
		st.Step = stepAwaitValue
		if err := r.setFlow(ev, st); err != nil {
			return err
		}
		return ev.Reply("Send the new value.")
	default:
		return ev.Reply("Pick a field with the buttons above, or /cancel.")
	}
}

func (r *Router) stepEditValue(ev *Event, st *flow.State) error {
	value := strings.TrimSpace(ev.Text)
	if value == "" {
		return ev.Reply("Send the new value, or /cancel.")
	}
	menuID, err := action.PayloadInt64(st.Payload["menu_id"])
	if err != nil {
		return r.cancelFlow(ev)
	}

	switch st.Payload["field"] {
	case "description":
		err = r.deps.Menus.Describe(ev.Ctx, menuID, value)
	default:
		err = r.deps.Menus.Rename(ev.Ctx, menuID, value)
	}
	if err != nil {
		if errors.Is(err, menu.ErrMenuNotFound) {
			if cerr := r.clearFlow(ev); cerr != nil {
				return cerr
			}
			return ev.Reply("That menu no longer exists.")
		}
		return err
	}
	if err := r.clearFlow(ev); err != nil {
		return err
	}
	return ev.Reply("Menu updated.")
}
