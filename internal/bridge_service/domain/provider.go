package domain

import (
	"context"
	"time"
)

// SendResult is what the provider reports for an accepted outbound message.
type SendResult struct {
	Handle string
	Status string
}

// Provider is the narrow set of provider operations the core calls.
type Provider interface {
	FetchInbound(ctx context.Context, since time.Time) ([]InboundMessage, error)
	SendText(ctx context.Context, to string, text string) (SendResult, error)
	SendMedia(ctx context.Context, to string, text string, mediaURL string) (SendResult, error)
	MarkRead(ctx context.Context, chatID string) error
	SendTypingIndicator(ctx context.Context, to string) error
	LookupStatus(ctx context.Context, handle string) (string, error)
}
