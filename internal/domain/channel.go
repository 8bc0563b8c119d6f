package domain

import "context"

// Messenger is the outbound side of a messaging platform.
type Messenger interface {
	SendText(ctx context.Context, recipientID, text string) error
	SendImage(ctx context.Context, recipientID, imageURL string) error
}

// Channel is a platform integration that feeds inbound events into the bus
// and can deliver replies.
type Channel interface {
	Messenger
	Name() string
	Start(ctx context.Context, bus MessageBus) error
	Stop() error
}
