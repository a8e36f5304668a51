package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const telegramAPI = "https://api.telegram.org"

// Telegram posts alerts through the Bot API sendMessage method.
type Telegram struct {
	BaseURL  string
	botToken string
	chatID   string
	client   *http.Client
	limiter  *rate.Limiter
}

func NewTelegram(botToken, chatID string) *Telegram {
	if botToken == "" || chatID == "" {
		return nil
	}
	return &Telegram{
		BaseURL:  telegramAPI,
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: 10 * time.Second},
		limiter:  rate.NewLimiter(rate.Every(time.Second), 1), // one message per second per chat
	}
}

func (t *Telegram) Send(ctx context.Context, title, text string) error {
	if t == nil {
		return fmt.Errorf("telegram: %w", ErrDisabled)
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram: rate limiter: %w", err)
	}

	body, err := json.Marshal(map[string]string{
		"chat_id": t.chatID,
		"text":    title + "\n" + text,
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal: %w", err)
	}

	endpoint := strings.TrimRight(t.BaseURL, "/") + "/bot" + t.botToken + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram: api error: %s - %s", resp.Status, string(msg))
	}
	return nil
}
