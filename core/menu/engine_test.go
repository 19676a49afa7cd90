package menu

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"botfleet/core/store"
)

type fixture struct {
	menus  store.Menus
	engine *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	menus := store.NewMemoryMenus()
	return &fixture{
		menus:  menus,
		engine: NewEngine(menus, store.NewMemoryNavigation(), nil),
	}
}

func (f *fixture) mustMenu(t *testing.T, botID int64, name string, parentID int64, isDefault bool) *store.Menu {
	t.Helper()
	m := &store.Menu{BotID: botID, Name: name, IsDefault: isDefault}
	if parentID != 0 {
		m.ParentID = sql.NullInt64{Int64: parentID, Valid: true}
	}
	if err := f.engine.CreateMenu(context.Background(), m); err != nil {
		t.Fatalf("CreateMenu(%s): %v", name, err)
	}
	return m
}

func (f *fixture) mustButton(t *testing.T, menuID int64, label string, row, col int, act, value string) *store.Button {
	t.Helper()
	b := &store.Button{MenuID: menuID, Label: label, Row: row, Col: col, Action: act, Value: value}
	if err := f.engine.CreateButton(context.Background(), b); err != nil {
		t.Fatalf("CreateButton(%s): %v", label, err)
	}
	return b
}

func TestRenderRowMajorOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	root := f.mustMenu(t, 1, "Main", 0, true)

	// Created out of order on purpose.
	f.mustButton(t, root.ID, "C", 1, 0, store.ActionSendMessage, "c")
	f.mustButton(t, root.ID, "B", 0, 1, store.ActionSendMessage, "b")
	f.mustButton(t, root.ID, "A", 0, 0, store.ActionSendMessage, "a")

	r, err := f.engine.Render(ctx, root.ID, false)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if len(r.Keyboard) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(r.Keyboard))
	}
	var labels []string
	for _, row := range r.Keyboard {
		for _, b := range row {
			labels = append(labels, b.Label)
		}
	}
	if got := strings.Join(labels, ""); got != "ABC" {
		t.Fatalf("button order %q, want ABC", got)
	}
}

func TestRenderIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	root := f.mustMenu(t, 1, "Main", 0, true)
	f.mustButton(t, root.ID, "Go", 0, 0, store.ActionSendMessage, "hi")

	first, err := f.engine.Render(ctx, root.ID, false)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	second, err := f.engine.Render(ctx, root.ID, false)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if first.Text != second.Text || len(first.Keyboard) != len(second.Keyboard) {
		t.Fatal("two renders of an unchanged menu differ")
	}
}

func TestRenderEscapesMarkdown(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.mustMenu(t, 1, "Deals_and*offers", 0, true)

	r, err := f.engine.Render(ctx, m.ID, false)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(r.Text, `Deals\_and\*offers`) {
		t.Fatalf("menu name not escaped: %q", r.Text)
	}
}

func TestEnterPushesAndDeduplicates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	root := f.mustMenu(t, 1, "Main", 0, true)
	sub := f.mustMenu(t, 1, "Shop", root.ID, false)

	if _, err := f.engine.EnterDefault(ctx, 1, 10); err != nil {
		t.Fatalf("EnterDefault: %v", err)
	}
	r, err := f.engine.Enter(ctx, 1, 10, sub.ID)
	if err != nil {
		t.Fatalf("Enter: %v", err)
	}
	if r.MenuID != sub.ID {
		t.Fatalf("rendered %d, want %d", r.MenuID, sub.ID)
	}

	// Entering the current menu again must not deepen the path: one back
	// step still returns to the root.
	if _, err := f.engine.Enter(ctx, 1, 10, sub.ID); err != nil {
		t.Fatalf("repeat Enter: %v", err)
	}
	back, err := f.engine.Back(ctx, 1, 10)
	if err != nil {
		t.Fatalf("Back: %v", err)
	}
	if back.MenuID != root.ID {
		t.Fatalf("back landed on %d, want root %d", back.MenuID, root.ID)
	}
}

func TestEnterRewindsOnRevisit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	root := f.mustMenu(t, 1, "Main", 0, true)
	sub := f.mustMenu(t, 1, "Shop", root.ID, false)

	if _, err := f.engine.EnterDefault(ctx, 1, 10); err != nil {
		t.Fatalf("EnterDefault: %v", err)
	}
	// Ping-pong between the two menus. The breadcrumb must not accumulate
	// one entry per visit.
	for _, id := range []int64{sub.ID, root.ID, sub.ID, root.ID, sub.ID} {
		if _, err := f.engine.Enter(ctx, 1, 10, id); err != nil {
			t.Fatalf("Enter(%d): %v", id, err)
		}
	}

	path, err := f.engine.loadPath(ctx, 1, 10)
	if err != nil {
		t.Fatalf("loadPath: %v", err)
	}
	if len(path) != 2 || path[0] != root.ID || path[1] != sub.ID {
		t.Fatalf("path after ping-pong = %v, want [%d %d]", path, root.ID, sub.ID)
	}

	// One back step returns to the root, not to an earlier echo.
	back, err := f.engine.Back(ctx, 1, 10)
	if err != nil {
		t.Fatalf("Back: %v", err)
	}
	if back.MenuID != root.ID {
		t.Fatalf("back landed on %d, want root %d", back.MenuID, root.ID)
	}
}

func TestBackAtRootFallsBackToDefault(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	root := f.mustMenu(t, 1, "Main", 0, true)

	if _, err := f.engine.EnterDefault(ctx, 1, 10); err != nil {
		t.Fatalf("EnterDefault: %v", err)
	}
	r, err := f.engine.Back(ctx, 1, 10)
	if err != nil {
		t.Fatalf("Back: %v", err)
	}
	if r.MenuID != root.ID {
		t.Fatalf("expected default menu %d, got %d", root.ID, r.MenuID)
	}

	// No navigation state at all behaves the same.
	r, err = f.engine.Back(ctx, 1, 99)
	if err != nil {
		t.Fatalf("Back without state: %v", err)
	}
	if r.MenuID != root.ID {
		t.Fatalf("expected default menu %d, got %d", root.ID, r.MenuID)
	}
}

func TestClickSendMessageRedisplaysMenu(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	root := f.mustMenu(t, 1, "Main", 0, true)
	btn := f.mustButton(t, root.ID, "Hours", 0, 0, store.ActionSendMessage, "Open 9-17")

	if _, err := f.engine.EnterDefault(ctx, 1, 10); err != nil {
		t.Fatalf("EnterDefault: %v", err)
	}
	out, err := f.engine.Click(ctx, 1, 10, btn.ID)
	if err != nil {
		t.Fatalf("Click: %v", err)
	}
	if out.Text != "Open 9-17" {
		t.Fatalf("message text %q", out.Text)
	}
	if out.Menu == nil || out.Menu.MenuID != root.ID {
		t.Fatalf("menu not redisplayed after message: %+v", out.Menu)
	}
}

func TestClickOpenSubmenuNavigates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	root := f.mustMenu(t, 1, "Main", 0, true)
	sub := f.mustMenu(t, 1, "Shop", root.ID, false)
	btn := f.mustButton(t, root.ID, "Shop", 0, 0, store.ActionOpenSubmenu, "2")
	if sub.ID != 2 {
		t.Fatalf("fixture assumption broken: sub id %d", sub.ID)
	}

	if _, err := f.engine.EnterDefault(ctx, 1, 10); err != nil {
		t.Fatalf("EnterDefault: %v", err)
	}
	out, err := f.engine.Click(ctx, 1, 10, btn.ID)
	if err != nil {
		t.Fatalf("Click: %v", err)
	}
	if out.Menu == nil || out.Menu.MenuID != sub.ID {
		t.Fatalf("expected submenu %d, got %+v", sub.ID, out.Menu)
	}
	// The submenu view carries a back row.
	last := out.Menu.Keyboard[len(out.Menu.Keyboard)-1]
	if len(last) != 1 || last[0].Data == "" {
		t.Fatalf("expected a back row, got %+v", last)
	}
}

func TestClickDeactivatedSubmenuIsGraceful(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	root := f.mustMenu(t, 1, "Main", 0, true)
	sub := f.mustMenu(t, 1, "Shop", root.ID, false)
	btn := f.mustButton(t, root.ID, "Shop", 0, 0, store.ActionOpenSubmenu, "2")

	if err := f.menus.DeactivateMenu(ctx, sub.ID); err != nil {
		t.Fatalf("DeactivateMenu: %v", err)
	}
	if _, err := f.engine.EnterDefault(ctx, 1, 10); err != nil {
		t.Fatalf("EnterDefault: %v", err)
	}
	_, err := f.engine.Click(ctx, 1, 10, btn.ID)
	if !errors.Is(err, ErrMenuNotFound) {
		t.Fatalf("expected ErrMenuNotFound, got %v", err)
	}
}

func TestClickDeactivatedButton(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	root := f.mustMenu(t, 1, "Main", 0, true)
	btn := f.mustButton(t, root.ID, "Gone", 0, 0, store.ActionSendMessage, "x")

	if err := f.menus.DeactivateMenu(ctx, root.ID); err != nil {
		t.Fatalf("DeactivateMenu: %v", err)
	}
	_, err := f.engine.Click(ctx, 1, 10, btn.ID)
	if !errors.Is(err, ErrButtonNotFound) {
		t.Fatalf("expected ErrButtonNotFound, got %v", err)
	}
}

func TestReparentCycleGuard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.mustMenu(t, 1, "A", 0, true)
	b := f.mustMenu(t, 1, "B", a.ID, false)
	c := f.mustMenu(t, 1, "C", b.ID, false)

	// A under its own grandchild closes a loop.
	if err := f.engine.Reparent(ctx, a.ID, c.ID); !errors.Is(err, ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}
	if err := f.engine.Reparent(ctx, a.ID, a.ID); !errors.Is(err, ErrCycle) {
		t.Fatalf("self-parent: expected ErrCycle, got %v", err)
	}

	// A legal move still works.
	if err := f.engine.Reparent(ctx, c.ID, a.ID); err != nil {
		t.Fatalf("Reparent: %v", err)
	}
	// And back to root.
	if err := f.engine.Reparent(ctx, c.ID, 0); err != nil {
		t.Fatalf("Reparent to root: %v", err)
	}
}

func TestCreateButtonValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	root := f.mustMenu(t, 1, "Main", 0, true)

	cases := []struct {
		name string
		btn  store.Button
	}{
		{"empty label", store.Button{MenuID: root.ID, Action: store.ActionSendMessage, Value: "x"}},
		{"label too long", store.Button{MenuID: root.ID, Label: strings.Repeat("x", MaxLabelLength+1), Action: store.ActionSendMessage, Value: "x"}},
		{"empty message", store.Button{MenuID: root.ID, Label: "ok", Action: store.ActionSendMessage}},
		{"bad url", store.Button{MenuID: root.ID, Label: "ok", Action: store.ActionOpenURL, Value: "ftp://nope"}},
		{"bad submenu ref", store.Button{MenuID: root.ID, Label: "ok", Action: store.ActionOpenSubmenu, Value: "abc"}},
		{"unknown action", store.Button{MenuID: root.ID, Label: "ok", Action: "explode"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := tc.btn
			if err := f.engine.CreateButton(ctx, &b); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	// Exactly at the limit is fine.
	ok := store.Button{MenuID: root.ID, Label: strings.Repeat("x", MaxLabelLength), Action: store.ActionSendMessage, Value: "x"}
	if err := f.engine.CreateButton(ctx, &ok); err != nil {
		t.Fatalf("max-length label rejected: %v", err)
	}
}

func TestCreateMenuAcrossBots(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	root := f.mustMenu(t, 1, "Main", 0, true)

	other := &store.Menu{BotID: 2, Name: "Stolen", ParentID: sql.NullInt64{Int64: root.ID, Valid: true}}
	if err := f.engine.CreateMenu(ctx, other); !errors.Is(err, ErrMenuNotFound) {
		t.Fatalf("expected ErrMenuNotFound for cross-bot parent, got %v", err)
	}
}
