package subscriber

import (
	"context"
	"testing"
	"time"

	"botfleet/core/store"
)

func TestTouchEnrollsAndRefreshes(t *testing.T) {
	ctx := context.Background()
	subs := store.NewMemorySubscribers()
	svc := NewService(subs)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	sub, err := svc.Touch(ctx, 1, 500, "alice")
	if err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if !sub.Active || sub.Blocked {
		t.Fatalf("new subscriber should be active and unblocked: %+v", sub)
	}

	svc.now = func() time.Time { return base.Add(time.Hour) }
	again, err := svc.Touch(ctx, 1, 500, "alice_renamed")
	if err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if again.ID != sub.ID {
		t.Fatalf("touch created a duplicate: %d vs %d", again.ID, sub.ID)
	}
	if again.Username != "alice_renamed" {
		t.Fatalf("username not refreshed: %q", again.Username)
	}
	if !again.LastInteraction.After(sub.LastInteraction) {
		t.Fatal("last_interaction not advanced")
	}
}

func TestTouchKeepsBlock(t *testing.T) {
	ctx := context.Background()
	subs := store.NewMemorySubscribers()
	svc := NewService(subs)

	sub, err := svc.Touch(ctx, 1, 500, "alice")
	if err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if err := subs.Block(ctx, sub.ID); err != nil {
		t.Fatalf("Block: %v", err)
	}

	after, err := svc.Touch(ctx, 1, 500, "alice")
	if err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if !after.Blocked || after.Active {
		t.Fatalf("blocked subscriber must stay blocked and inactive: %+v", after)
	}

	n, err := svc.CountActive(ctx, 1)
	if err != nil {
		t.Fatalf("CountActive: %v", err)
	}
	if n != 0 {
		t.Fatalf("blocked subscriber counted as active: %d", n)
	}
}
