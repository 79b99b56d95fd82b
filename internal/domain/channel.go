package domain

import "context"

// Channel is a chat front end. Start blocks until the user leaves or ctx
// ends; Send writes an unsolicited message to a chat.
type Channel interface {
	Name() string
	Start(ctx context.Context, bus MessageBus) error
	Stop() error
	Send(ctx context.Context, chatID, content string) error
}
