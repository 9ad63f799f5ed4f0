package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-bot/internal/config"
)

func newTestTelegram(baseURL string) *Telegram {
	return NewTelegram(config.TelegramConfig{
		Token:          "test-token",
		BaseURL:        baseURL,
		PollTimeoutSec: 1,
	}, zap.NewNop())
}

func TestSendBuildsRequest(t *testing.T) {
	var captured sendMessageRequest
	var path string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer server.Close()

	tg := newTestTelegram(server.URL)
	err := tg.Send(context.Background(), 42, "hello", &SendOptions{
		Keyboard: Keyboard{{"Yes", "No"}},
		OneTime:  true,
	})
	require.NoError(t, err)

	assert.Equal(t, "/bottest-token/sendMessage", path)
	assert.Equal(t, int64(42), captured.ChatID)
	assert.Equal(t, "hello", captured.Text)
	require.NotNil(t, captured.ReplyMarkup)
	require.Len(t, captured.ReplyMarkup.Keyboard, 1)
	assert.Equal(t, "Yes", captured.ReplyMarkup.Keyboard[0][0].Text)
	assert.True(t, captured.ReplyMarkup.OneTimeKeyboard)
}

func TestSendRemoveKeyboard(t *testing.T) {
	var captured sendMessageRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer server.Close()

	tg := newTestTelegram(server.URL)
	require.NoError(t, tg.Send(context.Background(), 42, "done", &SendOptions{RemoveKeyboard: true}))
	require.NotNil(t, captured.ReplyMarkup)
	assert.True(t, captured.ReplyMarkup.RemoveKeyboard)
	assert.Empty(t, captured.ReplyMarkup.Keyboard)
}

func TestSendRejectedByAPI(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer server.Close()

	tg := newTestTelegram(server.URL)
	err := tg.Send(context.Background(), 42, "hello", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestUpdatesStreamAndOffset(t *testing.T) {
	var mu sync.Mutex
	var requests []getUpdatesRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req getUpdatesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		mu.Lock()
		requests = append(requests, req)
		count := len(requests)
		mu.Unlock()

		switch count {
		case 1:
			// One text update plus one without text, which must be skipped
			// but still advance the offset.
			w.Write([]byte(`{"ok":true,"result":[
                {"update_id":10,"message":{"chat":{"id":7},"text":"/start"}},
                {"update_id":11,"message":{"chat":{"id":8}}}
            ]}`))
		default:
			w.Write([]byte(`{"ok":true,"result":[]}`))
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tg := newTestTelegram(server.URL)
	updates := tg.Updates(ctx)

	select {
	case update := <-updates:
		assert.Equal(t, int64(7), update.ChatID)
		assert.Equal(t, "/start", update.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("no update received")
	}

	// Wait for the second poll, then check the acknowledged offset.
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(requests) >= 2
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int64(12), requests[1].Offset)
}
