package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"lanos_go/utils"
)

// TelegramNotifier posts messages through the Bot API sendMessage call.
type TelegramNotifier struct {
	apiBase string
	token   string
	chatID  string
	client  *http.Client
}

func NewTelegramNotifier(apiBase, token, chatID string, timeout time.Duration) (*TelegramNotifier, error) {
	if token == "" || chatID == "" {
		return nil, errors.New("bot token or chat id is missing")
	}
	if apiBase == "" {
		apiBase = "https://api.telegram.org"
	}
	return &TelegramNotifier{
		apiBase: strings.TrimRight(apiBase, "/"),
		token:   token,
		chatID:  chatID,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

type telegramReply struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Result      struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
}

// Send delivers text as an HTML-mode message. text is escaped, so submitted
// values show up verbatim and cannot inject tags.
func (t *TelegramNotifier) Send(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]string{
		"chat_id":    t.chatID,
		"text":       utils.EscapeHTML(text),
		"parse_mode": "HTML",
	})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		// the error text contains the URL, and with it the token
		return errors.New("telegram: request failed: " + strings.ReplaceAll(err.Error(), t.token, "***"))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("telegram: read reply: %w", err)
	}
	var reply telegramReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return fmt.Errorf("telegram: status %d: malformed reply", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !reply.OK {
		desc := reply.Description
		if desc == "" {
			desc = "Unknown error"
		}
		return fmt.Errorf("telegram API error: %s", desc)
	}
	return nil
}
