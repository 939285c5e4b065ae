package transport

import (
	"context"
	"errors"
)

type UpdateKind string

const (
	UpdateMessage UpdateKind = "message"
)

type Update struct {
	Kind    UpdateKind
	Message *Message
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	FromFirst    string
	FromLast     string
	Language     string
	Text         string
	IsGroup      bool
}

type ChatTarget struct {
	ChatID int64
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// ErrRecipientGone marks a delivery failure that will never succeed for this
// recipient: the bot was blocked, the account was deleted, or the chat no
// longer exists. Adapters wrap their platform errors so callers can classify
// with errors.Is.
var ErrRecipientGone = errors.New("recipient unreachable permanently")

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) error
	SendPhoto(ctx context.Context, to ChatTarget, png []byte, caption string) error
}
