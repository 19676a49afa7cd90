package router

import (
	"testing"
	"time"
)

func nopHandler(*Event) error { return nil }

func TestRegisterCommandValidation(t *testing.T) {
	r := NewRegistry()

	r.RegisterCommand("/one", Command{Handler: nopHandler, Description: "one"})
	r.RegisterCommand("one", Command{Handler: nopHandler, Description: "no slash"})
	r.RegisterCommand("/two", Command{Handler: nil, Description: "no handler"})
	r.RegisterCommand("/three", Command{Handler: nopHandler})
	r.RegisterCommand("/one", Command{Handler: nopHandler, Description: "duplicate"})

	if _, _, ok := r.LookupCommand("/one"); !ok {
		t.Fatal("valid command not registered")
	}
	if _, _, ok := r.LookupCommand("/two"); ok {
		t.Fatal("command without handler registered")
	}
	if _, _, ok := r.LookupCommand("/three"); ok {
		t.Fatal("command without description registered")
	}
	if got := len(r.ListCommands(false)); got != 1 {
		t.Fatalf("registered %d commands, want 1", got)
	}
}

func TestLookupCommandAlias(t *testing.T) {
	r := NewRegistry()
	r.RegisterCommand("/start", Command{
		Handler: nopHandler, Description: "start", Aliases: []string{"help"},
	})

	key, _, ok := r.LookupCommand("/help")
	if !ok || key != "/start" {
		t.Fatalf("alias lookup = %q %v", key, ok)
	}
	if _, _, ok := r.LookupCommand("start"); !ok {
		t.Fatal("bare name lookup failed")
	}
}

func TestListCommandsVisibility(t *testing.T) {
	r := NewRegistry()
	r.RegisterCommand("/start", Command{Handler: nopHandler, Description: "start"})
	r.RegisterCommand("/admin", Command{Handler: nopHandler, Description: "admin", OwnerOnly: true})
	r.RegisterCommand("/debug", Command{Handler: nopHandler, Description: "debug", Hidden: true})

	visible := r.ListCommands(true)
	if len(visible) != 1 || visible[0] != "/start" {
		t.Fatalf("visible commands = %v", visible)
	}
	if got := len(r.ListCommands(false)); got != 3 {
		t.Fatalf("all commands = %d, want 3", got)
	}
}

func TestParseCommand(t *testing.T) {
	cases := []struct {
		text, bot, want string
	}{
		{"/start", "shop_bot", "/start"},
		{"/START extra args", "shop_bot", "/start"},
		{"/start@shop_bot", "shop_bot", "/start"},
		{"/start@Shop_Bot", "shop_bot", "/start"},
		{"/start@other_bot", "shop_bot", ""},
		{"plain text", "shop_bot", ""},
		{"", "shop_bot", ""},
		{"/multi\nline", "shop_bot", "/multi"},
	}
	for _, tc := range cases {
		if got := parseCommand(tc.text, tc.bot); got != tc.want {
			t.Errorf("parseCommand(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestCommandArg(t *testing.T) {
	if got := commandArg("/setwelcome  Hello there "); got != "Hello there" {
		t.Fatalf("commandArg = %q", got)
	}
	if got := commandArg("/setwelcome"); got != "" {
		t.Fatalf("commandArg without args = %q", got)
	}
}

func TestRateLimitDropsRapidEvents(t *testing.T) {
	var calls int
	h := RateLimit(RateLimitOptions{Interval: time.Hour})(func(*Event) error {
		calls++
		return nil
	})

	ev := &Event{SenderID: 42}
	for i := 0; i < 5; i++ {
		if err := h(ev); err != nil {
			t.Fatalf("handler error: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("handler ran %d times, want 1", calls)
	}

	// A different sender is not throttled by the first one.
	if err := h(&Event{SenderID: 43}); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("handler ran %d times, want 2", calls)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	var calls int
	h := RateLimit(RateLimitOptions{})(func(*Event) error {
		calls++
		return nil
	})
	ev := &Event{SenderID: 42}
	for i := 0; i < 3; i++ {
		_ = h(ev)
	}
	if calls != 3 {
		t.Fatalf("handler ran %d times, want 3", calls)
	}
}

func TestRecoverTurnsPanicIntoError(t *testing.T) {
	h := Recover(func(*Event) error {
		panic("boom")
	})
	if err := h(&Event{SenderID: 1}); err == nil {
		t.Fatal("expected an error from a recovered panic")
	}
}
