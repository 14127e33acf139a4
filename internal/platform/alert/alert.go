package alert

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const telegramAPI = "https://api.telegram.org"

// Telegram posts operator messages to a chat through the Bot API.
type Telegram struct {
	Identity string
	BotID    string
	ChatID   string
	BaseURL  string
	Client   *http.Client
}

func NewTelegram(identity, botID, chatID string) *Telegram {
	return &Telegram{
		Identity: identity,
		BotID:    botID,
		ChatID:   chatID,
		BaseURL:  telegramAPI,
		Client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *Telegram) Alert(ctx context.Context, msg string) error {
	if t.BotID == "" || t.ChatID == "" || msg == "" {
		return nil
	}
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(t.BaseURL, "/"), t.BotID)
	form := url.Values{
		"chat_id":    {t.ChatID},
		"parse_mode": {"html"},
		"text":       {fmt.Sprintf("%s: %s", t.Identity, msg)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.Client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram message to chat %s: %w", t.ChatID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("send telegram message to chat %s: status %d", t.ChatID, resp.StatusCode)
	}
	return nil
}

// Log writes alerts to the structured log when no chat is configured.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Alert(_ context.Context, msg string) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error("operator alert", "message", msg)
	return nil
}
