// Package menu renders a bot's navigational tree and walks subscribers
// through it. Each subscriber keeps a breadcrumb path from the default menu
// to wherever they are; rendering a menu never mutates that path.
package menu

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"botfleet/core/action"
	"botfleet/core/format"
	"botfleet/core/platform"
	"botfleet/core/store"
)

var (
	// ErrMenuNotFound covers missing and soft-deleted menus alike.
	ErrMenuNotFound = errors.New("menu: not found")
	// ErrButtonNotFound covers missing and soft-deleted buttons alike.
	ErrButtonNotFound = errors.New("menu: button not found")
	// ErrCycle is returned when a reparent would close a loop in the tree.
	ErrCycle = errors.New("menu: reparent would create a cycle")
	// ErrBadButton is returned for button definitions that fail validation.
	ErrBadButton = errors.New("menu: invalid button")
)

// MaxLabelLength bounds inline button captions.
const MaxLabelLength = 64

const backLabel = "⬅ Back"

// Rendered is one displayable menu: text plus inline keyboard. Rendering the
// same menu twice yields the same Rendered.
type Rendered struct {
	MenuID   int64
	Text     string
	Keyboard platform.Keyboard
}

// Outcome is the visible result of a button click. At most one of Text, Menu
// and URL is meaningful; Text may accompany Menu when the clicked action
// sends a message and the current menu is redisplayed after it.
type Outcome struct {
	Text string
	Menu *Rendered
	URL  string
}

// Engine walks subscribers through menu trees and applies button actions.
type Engine struct {
	menus store.Menus
	nav   store.Navigation
	log   *NavLog
	now   func() time.Time
}

// NewEngine builds an Engine. log may be nil to disable analytics.
func NewEngine(menus store.Menus, nav store.Navigation, log *NavLog) *Engine {
	return &Engine{menus: menus, nav: nav, log: log, now: time.Now}
}

// Render produces the displayable form of a menu. showBack appends a back
// row; callers decide based on the subscriber's path depth.
func (e *Engine) Render(ctx context.Context, menuID int64, showBack bool) (*Rendered, error) {
	m, err := e.menus.GetMenu(ctx, menuID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrMenuNotFound
	}
	if err != nil {
		return nil, err
	}

	buttons, err := e.menus.ListButtons(ctx, menuID)
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	text.WriteString(format.Bold(format.EscapeMarkdown(m.Name)))
	if m.Description != "" {
		text.WriteString("\n")
		text.WriteString(format.EscapeMarkdown(m.Description))
	}

	var kb platform.Keyboard
	var row []platform.KeyButton
	lastRow := -1
	for _, b := range buttons {
		if b.Row != lastRow {
			if len(row) > 0 {
				kb = append(kb, row)
			}
			row = nil
			lastRow = b.Row
		}
		row = append(row, buttonKey(b))
	}
	if len(row) > 0 {
		kb = append(kb, row)
	}
	if showBack {
		kb = append(kb, []platform.KeyButton{{Label: backLabel, Data: action.Encode(action.Back, "")}})
	}

	return &Rendered{MenuID: m.ID, Text: text.String(), Keyboard: kb}, nil
}

func buttonKey(b store.Button) platform.KeyButton {
	if b.Action == store.ActionOpenURL {
		return platform.KeyButton{Label: b.Label, URL: b.Value}
	}
	return platform.KeyButton{Label: b.Label, Data: action.EncodeInt64(action.Button, b.ID)}
}

// EnterDefault places the subscriber at the bot's default menu, resetting any
// prior breadcrumb. Returns ErrMenuNotFound when the bot has no default menu.
func (e *Engine) EnterDefault(ctx context.Context, botID, subscriberID int64) (*Rendered, error) {
	m, err := e.menus.GetDefaultMenu(ctx, botID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrMenuNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := e.savePath(ctx, botID, subscriberID, []int64{m.ID}); err != nil {
		return nil, err
	}
	e.record(botID, subscriberID, m.ID, 0, "enter")
	return e.Render(ctx, m.ID, false)
}

// Enter pushes a menu onto the subscriber's path and renders it. A menu
// already on the breadcrumb is not pushed again: the path rewinds to its
// earlier occurrence, so ping-ponging between two menus keeps a bounded
// trail and Back stays meaningful.
func (e *Engine) Enter(ctx context.Context, botID, subscriberID, menuID int64) (*Rendered, error) {
	if _, err := e.menus.GetMenu(ctx, menuID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrMenuNotFound
		}
		return nil, err
	}

	path, err := e.loadPath(ctx, botID, subscriberID)
	if err != nil {
		return nil, err
	}
	seen := -1
	for i, id := range path {
		if id == menuID {
			seen = i
			break
		}
	}
	if seen >= 0 {
		path = path[:seen+1]
	} else {
		path = append(path, menuID)
	}
	if err := e.savePath(ctx, botID, subscriberID, path); err != nil {
		return nil, err
	}
	e.record(botID, subscriberID, menuID, 0, "enter")
	return e.Render(ctx, menuID, len(path) > 1)
}

// Back pops the current menu and renders the previous one. With one or zero
// entries on the path the subscriber lands back on the default menu.
func (e *Engine) Back(ctx context.Context, botID, subscriberID int64) (*Rendered, error) {
	path, err := e.loadPath(ctx, botID, subscriberID)
	if err != nil {
		return nil, err
	}
	if len(path) <= 1 {
		return e.EnterDefault(ctx, botID, subscriberID)
	}

	path = path[:len(path)-1]
	top := path[len(path)-1]
	if _, err := e.menus.GetMenu(ctx, top); err != nil {
		// The previous menu vanished underneath the subscriber; restart
		// from the default menu rather than strand them.
		return e.EnterDefault(ctx, botID, subscriberID)
	}
	if err := e.savePath(ctx, botID, subscriberID, path); err != nil {
		return nil, err
	}
	e.record(botID, subscriberID, top, 0, "back")
	return e.Render(ctx, top, len(path) > 1)
}

// Click applies a button's action for the subscriber.
func (e *Engine) Click(ctx context.Context, botID, subscriberID, buttonID int64) (*Outcome, error) {
	b, err := e.menus.GetButton(ctx, buttonID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrButtonNotFound
	}
	if err != nil {
		return nil, err
	}
	owner, err := e.menus.GetMenu(ctx, b.MenuID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrButtonNotFound
		}
		return nil, err
	}
	if owner.BotID != botID {
		return nil, ErrButtonNotFound
	}

	e.record(botID, subscriberID, b.MenuID, b.ID, "click")

	switch b.Action {
	case store.ActionSendMessage:
		// Redisplay the current menu after the message so the subscriber
		// is never left without navigation.
		path, err := e.loadPath(ctx, botID, subscriberID)
		if err != nil {
			return nil, err
		}
		current := b.MenuID
		if len(path) > 0 {
			current = path[len(path)-1]
		}
		r, err := e.Render(ctx, current, len(path) > 1)
		if err != nil {
			return nil, err
		}
		return &Outcome{Text: b.Value, Menu: r}, nil

	case store.ActionOpenSubmenu:
		target, err := action.PayloadInt64(b.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: submenu target %q", ErrBadButton, b.Value)
		}
		r, err := e.Enter(ctx, botID, subscriberID, target)
		if err != nil {
			return nil, err
		}
		return &Outcome{Menu: r}, nil

	case store.ActionOpenURL:
		return &Outcome{URL: b.Value}, nil

	default:
		// launch_form and trigger_webhook are registered but not yet
		// served; answer honestly instead of staying silent.
		return &Outcome{Text: "This action is not available yet."}, nil
	}
}

// CreateMenu validates and stores a new menu node.
func (e *Engine) CreateMenu(ctx context.Context, m *store.Menu) error {
	if strings.TrimSpace(m.Name) == "" {
		return errors.New("menu: empty name")
	}
	if m.ParentID.Valid {
		parent, err := e.menus.GetMenu(ctx, m.ParentID.Int64)
		if errors.Is(err, store.ErrNotFound) {
			return ErrMenuNotFound
		}
		if err != nil {
			return err
		}
		if parent.BotID != m.BotID {
			return ErrMenuNotFound
		}
		if err := e.checkAncestors(ctx, parent, 0); err != nil {
			return err
		}
	}
	return e.menus.CreateMenu(ctx, m)
}

// Reparent moves a menu under a new parent, or to the root when parentID is
// zero. Moves that would make the menu its own ancestor are rejected.
func (e *Engine) Reparent(ctx context.Context, menuID, parentID int64) error {
	m, err := e.menus.GetMenu(ctx, menuID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrMenuNotFound
	}
	if err != nil {
		return err
	}

	if parentID == 0 {
		return e.menus.UpdateMenuParent(ctx, menuID, sql.NullInt64{})
	}
	if parentID == menuID {
		return ErrCycle
	}
	parent, err := e.menus.GetMenu(ctx, parentID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrMenuNotFound
	}
	if err != nil {
		return err
	}
	if parent.BotID != m.BotID {
		return ErrMenuNotFound
	}
	if err := e.checkAncestors(ctx, parent, menuID); err != nil {
		return err
	}
	return e.menus.UpdateMenuParent(ctx, menuID, sql.NullInt64{Int64: parentID, Valid: true})
}

// checkAncestors walks up from start and fails if forbidden appears, or if
// the chain already loops.
func (e *Engine) checkAncestors(ctx context.Context, start *store.Menu, forbidden int64) error {
	seen := map[int64]bool{start.ID: true}
	cur := start
	for cur.ParentID.Valid {
		next := cur.ParentID.Int64
		if next == forbidden || seen[next] {
			return ErrCycle
		}
		seen[next] = true
		m, err := e.menus.GetMenu(ctx, next)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			return err
		}
		cur = m
	}
	return nil
}

// CreateButton validates and stores a new button.
func (e *Engine) CreateButton(ctx context.Context, b *store.Button) error {
	if strings.TrimSpace(b.Label) == "" {
		return fmt.Errorf("%w: empty label", ErrBadButton)
	}
	if len([]rune(b.Label)) > MaxLabelLength {
		return fmt.Errorf("%w: label over %d characters", ErrBadButton, MaxLabelLength)
	}
	owner, err := e.menus.GetMenu(ctx, b.MenuID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrMenuNotFound
	}
	if err != nil {
		return err
	}

	switch b.Action {
	case store.ActionSendMessage:
		if strings.TrimSpace(b.Value) == "" {
			return fmt.Errorf("%w: empty message text", ErrBadButton)
		}
	case store.ActionOpenSubmenu:
		target, err := action.PayloadInt64(b.Value)
		if err != nil {
			return fmt.Errorf("%w: submenu target %q", ErrBadButton, b.Value)
		}
		sub, err := e.menus.GetMenu(ctx, target)
		if errors.Is(err, store.ErrNotFound) {
			return ErrMenuNotFound
		}
		if err != nil {
			return err
		}
		if sub.BotID != owner.BotID {
			return ErrMenuNotFound
		}
	case store.ActionOpenURL:
		if !strings.HasPrefix(b.Value, "http://") && !strings.HasPrefix(b.Value, "https://") {
			return fmt.Errorf("%w: url must start with http:// or https://", ErrBadButton)
		}
	case store.ActionLaunchForm, store.ActionTriggerWebhook:
		// Accepted for forward compatibility.
	default:
		return fmt.Errorf("%w: unknown action %q", ErrBadButton, b.Action)
	}

	return e.menus.CreateButton(ctx, b)
}

// Menus lists a bot's active menus.
func (e *Engine) Menus(ctx context.Context, botID int64) ([]store.Menu, error) {
	return e.menus.ListMenus(ctx, botID)
}

// Menu loads one active menu.
func (e *Engine) Menu(ctx context.Context, id int64) (*store.Menu, error) {
	m, err := e.menus.GetMenu(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrMenuNotFound
	}
	return m, err
}

// CountMenus returns the number of active menus a bot has.
func (e *Engine) CountMenus(ctx context.Context, botID int64) (int, error) {
	return e.menus.CountActiveMenus(ctx, botID)
}

// CountButtons returns the number of active buttons on a menu.
func (e *Engine) CountButtons(ctx context.Context, menuID int64) (int, error) {
	return e.menus.CountActiveButtons(ctx, menuID)
}

// Rename updates a menu's displayed name.
func (e *Engine) Rename(ctx context.Context, menuID int64, name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("menu: empty name")
	}
	if err := e.menus.UpdateMenuName(ctx, menuID, name); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrMenuNotFound
		}
		return err
	}
	return nil
}

// Describe updates a menu's description text.
func (e *Engine) Describe(ctx context.Context, menuID int64, description string) error {
	if err := e.menus.UpdateMenuDescription(ctx, menuID, description); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrMenuNotFound
		}
		return err
	}
	return nil
}

// Remove soft-deletes a menu and its buttons.
func (e *Engine) Remove(ctx context.Context, menuID int64) error {
	if err := e.menus.DeactivateMenu(ctx, menuID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrMenuNotFound
		}
		return err
	}
	return nil
}

func (e *Engine) loadPath(ctx context.Context, botID, subscriberID int64) ([]int64, error) {
	st, err := e.nav.Get(ctx, botID, subscriberID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var path []int64
	if len(st.Path) > 0 {
		if err := json.Unmarshal(st.Path, &path); err != nil {
			return nil, fmt.Errorf("menu path decode: %w", err)
		}
	}
	return path, nil
}

func (e *Engine) savePath(ctx context.Context, botID, subscriberID int64, path []int64) error {
	raw, err := json.Marshal(path)
	if err != nil {
		return fmt.Errorf("menu path encode: %w", err)
	}
	return e.nav.Save(ctx, &store.NavigationState{
		BotID:         botID,
		SubscriberID:  subscriberID,
		CurrentMenuID: path[len(path)-1],
		Path:          raw,
		UpdatedAt:     e.now(),
	})
}

func (e *Engine) record(botID, subscriberID, menuID, buttonID int64, act string) {
	if e.log == nil {
		return
	}
	ev := &store.NavigationEvent{
		BotID:        botID,
		SubscriberID: subscriberID,
		MenuID:       menuID,
		Action:       act,
		CreatedAt:    e.now(),
	}
	if buttonID != 0 {
		ev.ButtonID = sql.NullInt64{Int64: buttonID, Valid: true}
	}
	// Best effort; queue pressure drops the event, never the navigation.
	_ = e.log.Record(ev)
}
