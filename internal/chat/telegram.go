package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-bot/internal/config"
)

// Telegram implements Client against the Telegram Bot API using long
// polling. The wire types below map directly to the Bot API JSON; the
// surface used is small enough that a dedicated SDK buys nothing.
type Telegram struct {
	httpClient  *http.Client
	baseURL     string
	token       string
	pollTimeout int
	logger      *zap.Logger
}

// NewTelegram creates the transport. The HTTP client timeout must
// exceed the long-poll timeout or every idle poll turns into an error.
func NewTelegram(cfg config.TelegramConfig, logger *zap.Logger) *Telegram {
	pollTimeout := cfg.PollTimeoutSec
	if pollTimeout <= 0 {
		pollTimeout = 30
	}
	return &Telegram{
		httpClient: &http.Client{
			Timeout: time.Duration(pollTimeout+10) * time.Second,
		},
		baseURL:     cfg.BaseURL,
		token:       cfg.Token,
		pollTimeout: pollTimeout,
		logger:      logger,
	}
}

// --- Bot API wire types ---

type apiEnvelope struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

type wireUpdate struct {
	UpdateID int64        `json:"update_id"`
	Message  *wireMessage `json:"message"`
}

type wireMessage struct {
	Chat wireChat `json:"chat"`
	Text string   `json:"text"`
}

type wireChat struct {
	ID int64 `json:"id"`
}

type wireKeyboardButton struct {
	Text string `json:"text"`
}

type wireReplyKeyboard struct {
	Keyboard        [][]wireKeyboardButton `json:"keyboard,omitempty"`
	ResizeKeyboard  bool                   `json:"resize_keyboard,omitempty"`
	OneTimeKeyboard bool                   `json:"one_time_keyboard,omitempty"`
	RemoveKeyboard  bool                   `json:"remove_keyboard,omitempty"`
}

type sendMessageRequest struct {
	ChatID      int64              `json:"chat_id"`
	Text        string             `json:"text"`
	ReplyMarkup *wireReplyKeyboard `json:"reply_markup,omitempty"`
}

type getUpdatesRequest struct {
	Offset  int64 `json:"offset,omitempty"`
	Timeout int   `json:"timeout"`
}

// Send delivers a text message with an optional reply keyboard.
func (t *Telegram) Send(ctx context.Context, chatID int64, text string, opts *SendOptions) error {
	req := sendMessageRequest{ChatID: chatID, Text: text}
	if opts != nil {
		switch {
		case opts.RemoveKeyboard:
			req.ReplyMarkup = &wireReplyKeyboard{RemoveKeyboard: true}
		case len(opts.Keyboard) > 0:
			markup := &wireReplyKeyboard{
				ResizeKeyboard:  true,
				OneTimeKeyboard: opts.OneTime,
			}
			for _, row := range opts.Keyboard {
				buttons := make([]wireKeyboardButton, len(row))
				for i, label := range row {
					buttons[i] = wireKeyboardButton{Text: label}
				}
				markup.Keyboard = append(markup.Keyboard, buttons)
			}
			req.ReplyMarkup = markup
		}
	}

	var ignored json.RawMessage
	return t.call(ctx, "sendMessage", req, &ignored)
}

// Updates starts long polling and returns the inbound stream. Updates
// without a text message body are skipped.
func (t *Telegram) Updates(ctx context.Context) <-chan Update {
	out := make(chan Update)

	go func() {
		defer close(out)
		var offset int64

		for {
			if ctx.Err() != nil {
				return
			}

			var batch []wireUpdate
			err := t.call(ctx, "getUpdates", getUpdatesRequest{
				Offset:  offset,
				Timeout: t.pollTimeout,
			}, &batch)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				t.logger.Warn("getUpdates failed", zap.Error(err))
				select {
				case <-time.After(3 * time.Second):
				case <-ctx.Done():
					return
				}
				continue
			}

			for _, upd := range batch {
				if upd.UpdateID >= offset {
					offset = upd.UpdateID + 1
				}
				if upd.Message == nil || upd.Message.Text == "" {
					continue
				}
				select {
				case out <- Update{
					UpdateID: upd.UpdateID,
					ChatID:   upd.Message.Chat.ID,
					Text:     upd.Message.Text,
				}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

// call posts a JSON request to one Bot API method and decodes the
// result payload out of the response envelope.
func (t *Telegram) call(ctx context.Context, method string, body any, result any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("chat/telegram: encoding %s: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", t.baseURL, t.token, method)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("chat/telegram: building %s request: %w", method, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("chat/telegram: %s: %w", method, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("chat/telegram: reading %s response: %w", method, err)
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("chat/telegram: parsing %s response (status %d): %w", method, httpResp.StatusCode, err)
	}
	if !envelope.OK {
		return fmt.Errorf("chat/telegram: %s rejected: %s", method, envelope.Description)
	}
	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("chat/telegram: decoding %s result: %w", method, err)
		}
	}
	return nil
}

var _ Client = (*Telegram)(nil)
