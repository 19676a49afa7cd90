package broadcast

import (
	"context"
	"errors"
	"testing"

	"botfleet/core/platform"
	"botfleet/core/store"

	tele "gopkg.in/telebot.v4"
)

type world struct {
	broadcasts store.Broadcasts
	subs       store.Subscribers
	engine     *Engine
	client     *platform.FakeClient
}

func newWorld(t *testing.T, audience int) *world {
	t.Helper()
	w := &world{
		broadcasts: store.NewMemoryBroadcasts(),
		subs:       store.NewMemorySubscribers(),
		client:     platform.NewFakeClient(platform.BotInfo{ID: 1, Username: "shop_bot"}),
	}
	// Fast pacing keeps the tests quick without changing the loop shape.
	w.engine = NewEngine(w.broadcasts, w.subs, Options{MessagesPerSecond: 100000, ProgressEvery: 10})
	ctx := context.Background()
	for i := 0; i < audience; i++ {
		if _, err := w.subs.Touch(ctx, 1, int64(1000+i), "", w.engine.now()); err != nil {
			t.Fatalf("seed subscriber: %v", err)
		}
	}
	return w
}

func TestSendDeliversToWholeAudience(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t, 25)

	b, err := w.engine.Draft(ctx, 1, store.ContentText, "big news", "")
	if err != nil {
		t.Fatalf("Draft: %v", err)
	}

	type report struct{ processed, successful, failed int }
	var reports []report
	done, err := w.engine.Send(ctx, b.ID, w.client, func(processed, total, successful, failed int) {
		reports = append(reports, report{processed, successful, failed})
		if total != 25 {
			t.Errorf("progress total %d, want 25", total)
		}
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if done.Status != store.BroadcastSent {
		t.Fatalf("status %q, want sent", done.Status)
	}
	if done.TotalSubscribers != 25 || done.Successful != 25 || done.Failed != 0 {
		t.Fatalf("counters total=%d ok=%d fail=%d", done.TotalSubscribers, done.Successful, done.Failed)
	}
	if got := len(w.client.Sent()); got != 25 {
		t.Fatalf("sent %d messages, want 25", got)
	}
	want := []report{{10, 10, 0}, {20, 20, 0}}
	if len(reports) != 2 || reports[0] != want[0] || reports[1] != want[1] {
		t.Fatalf("progress reports %v, want %v", reports, want)
	}

	recs, err := w.broadcasts.ListDeliveries(ctx, b.ID)
	if err != nil {
		t.Fatalf("ListDeliveries: %v", err)
	}
	if len(recs) != 25 {
		t.Fatalf("delivery records %d, want 25", len(recs))
	}
}

func TestSendBlocksRevokedRecipients(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t, 5)

	// The third recipient has blocked the bot.
	w.client.FailChat(1002, platform.ClassifyError(&tele.Error{Code: 403, Description: "Forbidden: bot was blocked by the user"}))

	b, err := w.engine.Draft(ctx, 1, store.ContentText, "hello", "")
	if err != nil {
		t.Fatalf("Draft: %v", err)
	}
	done, err := w.engine.Send(ctx, b.ID, w.client, nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if done.Successful != 4 || done.Failed != 1 {
		t.Fatalf("counters ok=%d fail=%d, want 4/1", done.Successful, done.Failed)
	}
	if done.Successful+done.Failed != done.TotalSubscribers {
		t.Fatal("counters do not add up to the snapshot")
	}
	if done.Status != store.BroadcastSent {
		t.Fatalf("status %q, want sent", done.Status)
	}

	sub, err := w.subs.Get(ctx, 1, 1002)
	if err != nil {
		t.Fatalf("Get subscriber: %v", err)
	}
	if !sub.Blocked {
		t.Fatal("revoked recipient not blocked")
	}

	// The blocked subscriber is excluded from the next run's snapshot.
	b2, err := w.engine.Draft(ctx, 1, store.ContentText, "again", "")
	if err != nil {
		t.Fatalf("Draft: %v", err)
	}
	done2, err := w.engine.Send(ctx, b2.ID, w.client, nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if done2.TotalSubscribers != 4 {
		t.Fatalf("second snapshot %d, want 4", done2.TotalSubscribers)
	}

	recs, _ := w.broadcasts.ListDeliveries(ctx, b.ID)
	var failedRec *store.DeliveryRecord
	for i := range recs {
		if recs[i].Status == store.DeliveryFailed {
			failedRec = &recs[i]
		}
	}
	if failedRec == nil || failedRec.ErrorKind.String != string(platform.KindPermissionRevoked) {
		t.Fatalf("failed record missing or misclassified: %+v", failedRec)
	}
}

func TestSendAllFailedMarksFailed(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t, 3)
	for i := 0; i < 3; i++ {
		w.client.FailChat(int64(1000+i), errors.New("wire down"))
	}

	b, err := w.engine.Draft(ctx, 1, store.ContentText, "hello", "")
	if err != nil {
		t.Fatalf("Draft: %v", err)
	}
	done, err := w.engine.Send(ctx, b.ID, w.client, nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if done.Status != store.BroadcastFailed {
		t.Fatalf("status %q, want failed", done.Status)
	}
	if done.Successful != 0 || done.Failed != 3 {
		t.Fatalf("counters ok=%d fail=%d", done.Successful, done.Failed)
	}
}

func TestSendMediaUsesCaption(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t, 1)

	b, err := w.engine.Draft(ctx, 1, store.ContentPhoto, "caption here", "file-abc")
	if err != nil {
		t.Fatalf("Draft: %v", err)
	}
	if _, err := w.engine.Send(ctx, b.ID, w.client, nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	sent := w.client.Sent()
	if len(sent) != 1 || sent[0].Kind != "photo" || sent[0].FileID != "file-abc" || sent[0].Text != "caption here" {
		t.Fatalf("unexpected send: %+v", sent)
	}
}

func TestSendRejectsNonDraft(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t, 1)

	b, err := w.engine.Draft(ctx, 1, store.ContentText, "x", "")
	if err != nil {
		t.Fatalf("Draft: %v", err)
	}
	if _, err := w.engine.Send(ctx, b.ID, w.client, nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, err := w.engine.Send(ctx, b.ID, w.client, nil); !errors.Is(err, ErrNotDraft) {
		t.Fatalf("expected ErrNotDraft, got %v", err)
	}
}

func TestSendGuardsConcurrentRuns(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t, 1)

	b, err := w.engine.Draft(ctx, 1, store.ContentText, "x", "")
	if err != nil {
		t.Fatalf("Draft: %v", err)
	}
	if !w.engine.acquire(1) {
		t.Fatal("acquire failed on idle engine")
	}
	if _, err := w.engine.Send(ctx, b.ID, w.client, nil); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}
	w.engine.release(1)
	if _, err := w.engine.Send(ctx, b.ID, w.client, nil); err != nil {
		t.Fatalf("Send after release: %v", err)
	}
}

func TestDraftValidation(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t, 0)

	long := make([]rune, MaxMessageLength+1)
	for i := range long {
		long[i] = 'x'
	}

	cases := []struct {
		name        string
		contentType string
		text        string
		media       string
	}{
		{"empty text", store.ContentText, "", ""},
		{"text too long", store.ContentText, string(long), ""},
		{"photo without media", store.ContentPhoto, "cap", ""},
		{"caption too long", store.ContentPhoto, string(long[:MaxCaptionLength+1]), "file-1"},
		{"unknown type", "sticker", "x", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := w.engine.Draft(ctx, 1, tc.contentType, tc.text, tc.media); !errors.Is(err, ErrBadContent) {
				t.Fatalf("expected ErrBadContent, got %v", err)
			}
		})
	}
}
