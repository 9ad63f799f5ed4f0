package chat

import "context"

// Update is one inbound text message from a reporter or the manager.
type Update struct {
	UpdateID int64
	ChatID   int64
	Text     string
}

// Keyboard is a grid of one-tap reply choices.
type Keyboard [][]string

// SendOptions controls the reply surface attached to a message.
type SendOptions struct {
	Keyboard       Keyboard
	OneTime        bool
	RemoveKeyboard bool
}

// Sender delivers a text message to an arbitrary chat destination.
// Delivery failures are returned as errors; callers decide whether
// they are fatal.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string, opts *SendOptions) error
}

// Client is the full transport: outbound sends plus the inbound
// update stream. The stream closes when the context is cancelled.
type Client interface {
	Sender
	Updates(ctx context.Context) <-chan Update
}
