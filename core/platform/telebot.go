package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	tele "gopkg.in/telebot.v4"
)

type telebotClient struct {
	bot *tele.Bot
}

type telebotFactory struct {
	httpClient *http.Client
}

// NewFactory returns a Factory producing telebot-backed clients that share
// one tuned HTTP client.
func NewFactory() Factory {
	return &telebotFactory{httpClient: BuildHTTPClient()}
}

func (f *telebotFactory) Client(token string) (Client, error) {
	// Offline skips the startup getMe probe; credentials are verified
	// explicitly via GetMe where the caller needs it.
	b, err := tele.NewBot(tele.Settings{
		Token:   token,
		Client:  f.httpClient,
		Offline: true,
	})
	if err != nil {
		return nil, ClassifyError(err)
	}
	return &telebotClient{bot: b}, nil
}

func (c *telebotClient) SendText(ctx context.Context, chatID int64, text string, kb Keyboard) error {
	_, err := c.bot.Send(tele.ChatID(chatID), text, sendOpts(kb))
	if err != nil {
		return ClassifyError(err)
	}
	return nil
}

func (c *telebotClient) SendPhoto(ctx context.Context, chatID int64, fileID, caption string, kb Keyboard) error {
	photo := &tele.Photo{File: tele.File{FileID: fileID}, Caption: caption}
	_, err := c.bot.Send(tele.ChatID(chatID), photo, sendOpts(kb))
	if err != nil {
		return ClassifyError(err)
	}
	return nil
}

func (c *telebotClient) SendVideo(ctx context.Context, chatID int64, fileID, caption string, kb Keyboard) error {
	video := &tele.Video{File: tele.File{FileID: fileID}, Caption: caption}
	_, err := c.bot.Send(tele.ChatID(chatID), video, sendOpts(kb))
	if err != nil {
		return ClassifyError(err)
	}
	return nil
}

func (c *telebotClient) GetMe(ctx context.Context) (BotInfo, error) {
	data, err := c.bot.Raw("getMe", nil)
	if err != nil {
		return BotInfo{}, ClassifyError(err)
	}
	var resp struct {
		Result struct {
			ID       int64  `json:"id"`
			Username string `json:"username"`
		} `json:"result"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return BotInfo{}, &Error{Kind: KindOther, Err: fmt.Errorf("getMe decode: %w", err)}
	}
	return BotInfo{ID: resp.Result.ID, Username: resp.Result.Username}, nil
}

func (c *telebotClient) SetWebhook(ctx context.Context, url string) error {
	params := map[string]string{"url": url}
	if _, err := c.bot.Raw("setWebhook", params); err != nil {
		return ClassifyError(err)
	}
	return nil
}

func (c *telebotClient) DeleteWebhook(ctx context.Context) error {
	if _, err := c.bot.Raw("deleteWebhook", nil); err != nil {
		return ClassifyError(err)
	}
	return nil
}

func (c *telebotClient) GetWebhookInfo(ctx context.Context) (WebhookInfo, error) {
	data, err := c.bot.Raw("getWebhookInfo", nil)
	if err != nil {
		return WebhookInfo{}, ClassifyError(err)
	}
	var resp struct {
		Result struct {
			URL          string `json:"url"`
			PendingCount int    `json:"pending_update_count"`
		} `json:"result"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return WebhookInfo{}, &Error{Kind: KindOther, Err: fmt.Errorf("getWebhookInfo decode: %w", err)}
	}
	return WebhookInfo{URL: resp.Result.URL, PendingCount: resp.Result.PendingCount}, nil
}

func sendOpts(kb Keyboard) *tele.SendOptions {
	opts := &tele.SendOptions{ParseMode: tele.ModeMarkdown}
	if len(kb) == 0 {
		return opts
	}
	markup := &tele.ReplyMarkup{}
	rows := make([][]tele.InlineButton, 0, len(kb))
	for _, row := range kb {
		r := make([]tele.InlineButton, 0, len(row))
		for _, btn := range row {
			r = append(r, tele.InlineButton{Text: btn.Label, Data: btn.Data, URL: btn.URL})
		}
		rows = append(rows, r)
	}
	markup.InlineKeyboard = rows
	opts.ReplyMarkup = markup
	return opts
}
