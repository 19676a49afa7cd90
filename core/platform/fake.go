package platform

import (
	"context"
	"sync"
)

// SentMessage records one outbound message captured by FakeClient.
type SentMessage struct {
	ChatID   int64
	Kind     string
	Text     string
	FileID   string
	Keyboard Keyboard
}

// FakeClient is an in-memory Client for tests. Errors queued per chat via
// FailChat are returned instead of recording the send.
type FakeClient struct {
	mu       sync.Mutex
	sent     []SentMessage
	failures map[int64]error
	info     BotInfo
	webhook  string
}

// NewFakeClient returns a FakeClient reporting the given identity from GetMe.
func NewFakeClient(info BotInfo) *FakeClient {
	return &FakeClient{info: info, failures: make(map[int64]error)}
}

// FailChat makes every send to chatID return err.
func (c *FakeClient) FailChat(chatID int64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[chatID] = err
}

// Sent returns a copy of all recorded messages.
func (c *FakeClient) Sent() []SentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SentMessage, len(c.sent))
	copy(out, c.sent)
	return out
}

// SentTo returns recorded messages addressed to chatID.
func (c *FakeClient) SentTo(chatID int64) []SentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []SentMessage
	for _, m := range c.sent {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

// WebhookURL returns the last URL passed to SetWebhook.
func (c *FakeClient) WebhookURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.webhook
}

func (c *FakeClient) record(m SentMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.failures[m.ChatID]; ok {
		return err
	}
	c.sent = append(c.sent, m)
	return nil
}

func (c *FakeClient) SendText(ctx context.Context, chatID int64, text string, kb Keyboard) error {
	return c.record(SentMessage{ChatID: chatID, Kind: "text", Text: text, Keyboard: kb})
}

func (c *FakeClient) SendPhoto(ctx context.Context, chatID int64, fileID, caption string, kb Keyboard) error {
	return c.record(SentMessage{ChatID: chatID, Kind: "photo", Text: caption, FileID: fileID, Keyboard: kb})
}

func (c *FakeClient) SendVideo(ctx context.Context, chatID int64, fileID, caption string, kb Keyboard) error {
	return c.record(SentMessage{ChatID: chatID, Kind: "video", Text: caption, FileID: fileID, Keyboard: kb})
}

func (c *FakeClient) GetMe(ctx context.Context) (BotInfo, error) {
	return c.info, nil
}

func (c *FakeClient) SetWebhook(ctx context.Context, url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.webhook = url
	return nil
}

func (c *FakeClient) DeleteWebhook(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.webhook = ""
	return nil
}

func (c *FakeClient) GetWebhookInfo(ctx context.Context) (WebhookInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return WebhookInfo{URL: c.webhook}, nil
}

// FakeFactory hands out clients by token, creating a FakeClient on first use.
type FakeFactory struct {
	mu      sync.Mutex
	clients map[string]*FakeClient
	// Reject maps tokens to errors returned from Client, for testing
	// credential validation paths.
	Reject map[string]error

	nextID int64
}

func NewFakeFactory() *FakeFactory {
	return &FakeFactory{clients: make(map[string]*FakeClient), Reject: make(map[string]error), nextID: 1000}
}

// Register pre-seeds a client for token.
func (f *FakeFactory) Register(token string, c *FakeClient) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clients[token] = c
}

// Get returns the client already created for token, or nil.
func (f *FakeFactory) Get(token string) *FakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clients[token]
}

func (f *FakeFactory) Client(token string) (Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.Reject[token]; ok {
		return nil, err
	}
	if c, ok := f.clients[token]; ok {
		return c, nil
	}
	f.nextID++
	c := NewFakeClient(BotInfo{ID: f.nextID, Username: "bot" + token})
	f.clients[token] = c
	return c, nil
}
