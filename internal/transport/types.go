// Package transport defines the outbound messaging primitives the core
// consumes. The concrete Telegram implementation lives in the telegram
// subpackage; the core treats send and delete as black boxes.
package transport

import "context"

// Recipient is an opaque destination identifier: a public handle ("@promo")
// or a numeric chat id in decimal form ("-1001234567890").
type Recipient string

// MessageRef identifies a sent message. ChatID is always the resolved numeric
// chat id as reported by the transport, even when the send targeted a handle,
// so a later delete does not depend on the handle still resolving.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	// ReplyMarkup is transport-specific markup (Telegram: *telebot.ReplyMarkup).
	ReplyMarkup any
}

// Transport is the send/delete surface used by the dispatch engine and the
// deletion sweeper. Both calls are bounded by the transport's own timeouts.
type Transport interface {
	SendMessage(ctx context.Context, to Recipient, text string, opt *SendOptions) (MessageRef, error)
	DeleteMessage(ctx context.Context, ref MessageRef) error
}
