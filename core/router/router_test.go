package router_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"botfleet/core/bots"
	"botfleet/core/broadcast"
	"botfleet/core/config"
	"botfleet/core/flow"
	"botfleet/core/menu"
	"botfleet/core/platform"
	"botfleet/core/router"
	"botfleet/core/store"
	"botfleet/core/subscriber"
	"botfleet/core/vault"
)

const (
	testVaultKey = "6368616e676520746869732070617373776f726420746f206120736563726574"
	ownerID      = 500
	botToken     = "111:secret"
	botUsername  = "shop_bot"
)

type harness struct {
	t          *testing.T
	handler    http.Handler
	router     *router.Router
	client     *platform.FakeClient
	factory    *platform.FakeFactory
	broadcasts store.Broadcasts
	engine     *menu.Engine
	bot        *store.Bot

	nextUpdate int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	users := store.NewMemoryUsers()
	menus := store.NewMemoryMenus()
	botsStore := store.NewMemoryBots(menus)
	subs := store.NewMemorySubscribers()
	broadcasts := store.NewMemoryBroadcasts()

	v, err := vault.New(testVaultKey)
	if err != nil {
		t.Fatalf("vault.New: %v", err)
	}
	factory := platform.NewFakeFactory()
	client := platform.NewFakeClient(platform.BotInfo{ID: 111, Username: botUsername})
	factory.Register(botToken, client)

	registry := bots.NewRegistry(botsStore, users, v, factory, "https://fleet.example.com")
	engine := menu.NewEngine(menus, store.NewMemoryNavigation(), nil)

	owner, err := users.Upsert(ctx, ownerID, "alice")
	if err != nil {
		t.Fatalf("seed owner: %v", err)
	}
	bot, err := registry.Register(ctx, owner, botToken)
	if err != nil {
		t.Fatalf("seed bot: %v", err)
	}

	rtr := router.New(router.Deps{
		Bots:        registry,
		Subscribers: subscriber.NewService(subs),
		Flows:       flow.NewService(store.NewMemoryFlowStates(), 0),
		Menus:       engine,
		Broadcasts:  broadcast.NewEngine(broadcasts, subs, broadcast.Options{MessagesPerSecond: 100000, ProgressEvery: 10}),
	})
	srv := router.NewServer(config.ServerConfig{Listen: "127.0.0.1", Port: 8080}, registry, rtr)

	return &harness{
		t:          t,
		handler:    srv.Handler(),
		router:     rtr,
		client:     client,
		factory:    factory,
		broadcasts: broadcasts,
		engine:     engine,
		bot:        bot,
	}
}

func (h *harness) post(path, body string) *httptest.ResponseRecorder {
	h.t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *harness) sendText(userID int64, username, text string) {
	h.t.Helper()
	h.nextUpdate++
	body := fmt.Sprintf(`{"update_id":%d,"message":{"message_id":%d,"from":{"id":%d,"is_bot":false,"username":%q},"chat":{"id":%d,"type":"private"},"text":%q}}`,
		h.nextUpdate, h.nextUpdate, userID, username, userID, text)
	rec := h.post("/webhook/"+botUsername, body)
	if rec.Code != http.StatusOK {
		h.t.Fatalf("webhook returned %d for %q", rec.Code, text)
	}
}

func (h *harness) sendCallback(userID int64, username, data string) {
	h.t.Helper()
	h.nextUpdate++
	body := fmt.Sprintf(`{"update_id":%d,"callback_query":{"id":"cb%d","from":{"id":%d,"is_bot":false,"username":%q},"message":{"message_id":1,"chat":{"id":%d,"type":"private"}},"data":%q}}`,
		h.nextUpdate, h.nextUpdate, userID, username, userID, data)
	rec := h.post("/webhook/"+botUsername, body)
	if rec.Code != http.StatusOK {
		h.t.Fatalf("webhook returned %d for callback %q", rec.Code, data)
	}
}

func (h *harness) lastReplyTo(chatID int64) string {
	h.t.Helper()
	msgs := h.client.SentTo(chatID)
	if len(msgs) == 0 {
		h.t.Fatalf("no messages sent to chat %d", chatID)
	}
	return msgs[len(msgs)-1].Text
}

func TestHealthEndpoint(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("health returned %d", rec.Code)
	}
}

func TestWebhookUnknownBot(t *testing.T) {
	h := newHarness(t)
	rec := h.post("/webhook/ghost_bot", `{"update_id":1}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown bot returned %d, want 404", rec.Code)
	}
}

func TestWebhookMalformedBody(t *testing.T) {
	h := newHarness(t)
	rec := h.post("/webhook/"+botUsername, `{"update_id": nope`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed body returned %d, want 400", rec.Code)
	}
}

func TestWebhookIgnoresUnhandledKinds(t *testing.T) {
	h := newHarness(t)
	rec := h.post("/webhook/"+botUsername, `{"update_id":1,"edited_message":{"message_id":5}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unhandled update returned %d, want 200", rec.Code)
	}
}

// Owner registers a second bot through the /addbot wizard.
func TestAddBotWizard(t *testing.T) {
	h := newHarness(t)

	h.sendText(ownerID, "alice", "/addbot")
	if got := h.lastReplyTo(ownerID); !strings.Contains(got, "token") {
		t.Fatalf("expected token prompt, got %q", got)
	}

	h.sendText(ownerID, "alice", "222:other")
	if got := h.lastReplyTo(ownerID); !strings.Contains(got, "registered") {
		t.Fatalf("expected registration confirmation, got %q", got)
	}

	// The wizard state is gone: the token text now falls through to
	// normal dispatch.
	h.sendText(ownerID, "alice", "222:other")
	if got := h.lastReplyTo(ownerID); !strings.Contains(got, "Unknown command") {
		t.Fatalf("wizard state survived completion: %q", got)
	}

	// The new bot got a webhook pointing at this deployment.
	created := h.factory.Get("222:other")
	if created == nil {
		t.Fatal("no client opened for the new token")
	}
	if got := created.WebhookURL(); !strings.HasPrefix(got, "https://fleet.example.com/webhook/") {
		t.Fatalf("webhook url %q", got)
	}
}

func TestAddBotWizardCancel(t *testing.T) {
	h := newHarness(t)

	h.sendText(ownerID, "alice", "/addbot")
	h.sendText(ownerID, "alice", "/cancel")
	if got := h.lastReplyTo(ownerID); got != "Cancelled." {
		t.Fatalf("expected cancellation, got %q", got)
	}
}

func TestAddBotRejectedToken(t *testing.T) {
	h := newHarness(t)
	h.factory.Reject["bad:token"] = fmt.Errorf("unauthorized (401)")

	h.sendText(ownerID, "alice", "/addbot")
	h.sendText(ownerID, "alice", "bad:token")
	if got := h.lastReplyTo(ownerID); !strings.Contains(got, "rejected") {
		t.Fatalf("expected rejection notice, got %q", got)
	}

	// The wizard stays open for another try.
	h.sendText(ownerID, "alice", "222:other")
	if got := h.lastReplyTo(ownerID); !strings.Contains(got, "registered") {
		t.Fatalf("expected registration after retry, got %q", got)
	}
}

// Owner composes and sends a text broadcast end to end.
func TestBroadcastWizard(t *testing.T) {
	h := newHarness(t)

	// Three subscribers join.
	for i := int64(0); i < 3; i++ {
		h.sendText(600+i, fmt.Sprintf("sub%d", i), "/start")
	}

	h.sendText(ownerID, "alice", "/broadcast")
	h.sendCallback(ownerID, "alice", "pick_action|text")
	if got := h.lastReplyTo(ownerID); !strings.Contains(got, "text") {
		t.Fatalf("expected content prompt, got %q", got)
	}

	h.sendText(ownerID, "alice", "Hello everyone")
	// The owner is a subscriber of their own bot, so the audience is 4.
	if got := h.lastReplyTo(ownerID); !strings.Contains(got, "Recipients: 4") {
		t.Fatalf("expected preview with recipient count, got %q", got)
	}

	h.sendCallback(ownerID, "alice", "bc_go")
	h.router.Drain()

	list, err := h.broadcasts.ListByBot(context.Background(), h.bot.ID, 10)
	if err != nil || len(list) != 1 {
		t.Fatalf("broadcast history: %v %d", err, len(list))
	}
	run := list[0]
	if run.Status != store.BroadcastSent {
		t.Fatalf("status %q, want sent", run.Status)
	}
	if run.TotalSubscribers != 4 || run.Successful != 4 || run.Failed != 0 {
		t.Fatalf("counters total=%d ok=%d fail=%d", run.TotalSubscribers, run.Successful, run.Failed)
	}
	if run.Successful+run.Failed != run.TotalSubscribers {
		t.Fatal("counters do not add up")
	}
	for i := int64(0); i < 3; i++ {
		found := false
		for _, m := range h.client.SentTo(600 + i) {
			if m.Text == "Hello everyone" {
				found = true
			}
		}
		if !found {
			t.Fatalf("subscriber %d did not receive the broadcast", 600+i)
		}
	}
	// Completion summary went back to the owner.
	if got := h.lastReplyTo(ownerID); !strings.Contains(got, "finished") {
		t.Fatalf("expected completion summary, got %q", got)
	}
}

func TestBroadcastDiscard(t *testing.T) {
	h := newHarness(t)

	h.sendText(ownerID, "alice", "/broadcast")
	h.sendCallback(ownerID, "alice", "pick_action|text")
	h.sendText(ownerID, "alice", "draft text")
	h.sendCallback(ownerID, "alice", "bc_no")
	if got := h.lastReplyTo(ownerID); got != "Discarded." {
		t.Fatalf("expected discard, got %q", got)
	}

	list, _ := h.broadcasts.ListByBot(context.Background(), h.bot.ID, 10)
	if len(list) != 0 {
		t.Fatalf("discarded compose still created %d broadcasts", len(list))
	}
}

// A SendMessage button delivers its text and redisplays the menu.
func TestMenuButtonRedisplaysMenu(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	root := &store.Menu{BotID: h.bot.ID, Name: "Main", IsDefault: true}
	if err := h.engine.CreateMenu(ctx, root); err != nil {
		t.Fatalf("CreateMenu: %v", err)
	}
	btn := &store.Button{MenuID: root.ID, Label: "Hours", Action: store.ActionSendMessage, Value: "Open 9-17"}
	if err := h.engine.CreateButton(ctx, btn); err != nil {
		t.Fatalf("CreateButton: %v", err)
	}

	h.sendText(600, "bob", "/start")
	msgs := h.client.SentTo(600)
	if len(msgs) < 2 {
		t.Fatalf("expected welcome + menu, got %d messages", len(msgs))
	}
	if !strings.Contains(msgs[len(msgs)-1].Text, "Main") {
		t.Fatalf("menu not shown on /start: %q", msgs[len(msgs)-1].Text)
	}

	h.sendCallback(600, "bob", fmt.Sprintf("btn|%d", btn.ID))
	msgs = h.client.SentTo(600)
	if len(msgs) < 4 {
		t.Fatalf("expected message + redisplayed menu, got %d messages", len(msgs))
	}
	if msgs[len(msgs)-2].Text != "Open 9-17" {
		t.Fatalf("button text %q", msgs[len(msgs)-2].Text)
	}
	if !strings.Contains(msgs[len(msgs)-1].Text, "Main") {
		t.Fatalf("menu not redisplayed: %q", msgs[len(msgs)-1].Text)
	}
}

// Clicking into a soft-deleted submenu degrades to a polite notice.
func TestDeactivatedSubmenuClick(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	root := &store.Menu{BotID: h.bot.ID, Name: "Main", IsDefault: true}
	if err := h.engine.CreateMenu(ctx, root); err != nil {
		t.Fatalf("CreateMenu: %v", err)
	}
	sub := &store.Menu{BotID: h.bot.ID, Name: "Shop"}
	if err := h.engine.CreateMenu(ctx, sub); err != nil {
		t.Fatalf("CreateMenu: %v", err)
	}
	btn := &store.Button{MenuID: root.ID, Label: "Shop", Action: store.ActionOpenSubmenu, Value: fmt.Sprintf("%d", sub.ID)}
	if err := h.engine.CreateButton(ctx, btn); err != nil {
		t.Fatalf("CreateButton: %v", err)
	}
	if err := h.engine.Remove(ctx, sub.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	h.sendText(600, "bob", "/start")
	h.sendCallback(600, "bob", fmt.Sprintf("btn|%d", btn.ID))
	if got := h.lastReplyTo(600); !strings.Contains(got, "not available") {
		t.Fatalf("expected graceful notice, got %q", got)
	}
}

// Owner-only commands fall through for subscribers.
func TestOwnerCommandGate(t *testing.T) {
	h := newHarness(t)

	h.sendText(600, "bob", "/broadcast")
	msgs := h.client.SentTo(600)
	for _, m := range msgs {
		if strings.Contains(m.Text, "broadcast") {
			t.Fatalf("subscriber reached an owner command: %q", m.Text)
		}
	}

	h.sendText(ownerID, "alice", "/broadcast")
	if got := h.lastReplyTo(ownerID); !strings.Contains(got, "broadcast") {
		t.Fatalf("owner blocked from /broadcast: %q", got)
	}
}

// The menu wizard builds a working menu and button.
func TestMenuWizards(t *testing.T) {
	h := newHarness(t)

	h.sendText(ownerID, "alice", "/newmenu")
	h.sendText(ownerID, "alice", "Main")
	if got := h.lastReplyTo(ownerID); !strings.Contains(got, "default") {
		t.Fatalf("first menu should become default: %q", got)
	}

	h.sendText(ownerID, "alice", "/newbutton")
	h.sendCallback(ownerID, "alice", "pick_menu|1")
	h.sendText(ownerID, "alice", "Opening hours")
	h.sendCallback(ownerID, "alice", "pick_action|send_message")
	h.sendText(ownerID, "alice", "Open 9-17")
	if got := h.lastReplyTo(ownerID); !strings.Contains(got, "added") {
		t.Fatalf("button wizard did not finish: %q", got)
	}

	// The subscriber sees the new button.
	h.sendText(600, "bob", "/start")
	msgs := h.client.SentTo(600)
	last := msgs[len(msgs)-1]
	if len(last.Keyboard) == 0 || last.Keyboard[0][0].Label != "Opening hours" {
		t.Fatalf("button missing from rendered menu: %+v", last.Keyboard)
	}
}

// /help resolves to the same handler as /start.
func TestHelpAliasesStart(t *testing.T) {
	h := newHarness(t)

	h.sendText(600, "bob", "/help")
	if got := h.lastReplyTo(600); !strings.Contains(got, "Welcome") {
		t.Fatalf("expected the welcome message, got %q", got)
	}
}

// Unknown owner input lists the registered commands.
func TestOwnerUnknownCommandListsCommands(t *testing.T) {
	h := newHarness(t)

	h.sendText(ownerID, "alice", "gibberish")
	got := h.lastReplyTo(ownerID)
	if !strings.Contains(got, "Unknown command") {
		t.Fatalf("expected the unknown-command notice, got %q", got)
	}
	for _, name := range []string{"/addbot", "/broadcast", "/newmenu"} {
		if !strings.Contains(got, name) {
			t.Fatalf("command list misses %s: %q", name, got)
		}
	}
}

// With several bots /removebot offers a picker before the confirmation.
func TestRemoveBotPicker(t *testing.T) {
	h := newHarness(t)

	// A single bot skips the picker.
	h.sendText(ownerID, "alice", "/removebot")
	if got := h.lastReplyTo(ownerID); !strings.Contains(got, "Remove @"+botUsername) {
		t.Fatalf("expected a direct confirmation, got %q", got)
	}

	h.sendText(ownerID, "alice", "/addbot")
	h.sendText(ownerID, "alice", "222:other")

	h.sendText(ownerID, "alice", "/removebot")
	msgs := h.client.SentTo(ownerID)
	picker := msgs[len(msgs)-1]
	if !strings.Contains(picker.Text, "Which bot") || len(picker.Keyboard) != 2 {
		t.Fatalf("expected a two-bot picker, got %q %+v", picker.Text, picker.Keyboard)
	}

	// Pick the second bot and confirm.
	var pickData string
	for _, row := range picker.Keyboard {
		if row[0].Label != "@"+botUsername {
			pickData = row[0].Data
		}
	}
	if pickData == "" {
		t.Fatalf("second bot missing from picker: %+v", picker.Keyboard)
	}
	h.sendCallback(ownerID, "alice", pickData)

	msgs = h.client.SentTo(ownerID)
	confirm := msgs[len(msgs)-1]
	if !strings.Contains(confirm.Text, "Remove @") || len(confirm.Keyboard) == 0 {
		t.Fatalf("expected a confirmation keyboard, got %q", confirm.Text)
	}
	h.sendCallback(ownerID, "alice", confirm.Keyboard[0][0].Data)
	if got := h.lastReplyTo(ownerID); !strings.Contains(got, "removed") {
		t.Fatalf("expected removal notice, got %q", got)
	}

	// The remaining bot is still listed.
	h.sendText(ownerID, "alice", "/mybots")
	if got := h.lastReplyTo(ownerID); !strings.Contains(got, "@"+botUsername) {
		t.Fatalf("surviving bot missing from /mybots: %q", got)
	}
}

func TestFlowBlocksOtherCommands(t *testing.T) {
	h := newHarness(t)

	h.sendText(ownerID, "alice", "/newmenu")
	h.sendText(ownerID, "alice", "/mybots")
	if got := h.lastReplyTo(ownerID); !strings.Contains(got, "/cancel") {
		t.Fatalf("expected a nudge to cancel, got %q", got)
	}
}

func TestHistoryCommand(t *testing.T) {
	h := newHarness(t)

	h.sendText(ownerID, "alice", "/history")
	if got := h.lastReplyTo(ownerID); !strings.Contains(got, "No broadcasts") {
		t.Fatalf("expected empty history notice, got %q", got)
	}
}
