package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Intake sources, used for logging and metrics labels.
const (
	SourcePoll    = "poll"
	SourceWebhook = "webhook"
)

// InboundMessage is a single message pulled from or pushed by the provider.
// It lives only for the duration of one pipeline invocation.
type InboundMessage struct {
	Handle     string    `json:"message_handle"`
	FromNumber string    `json:"from_number"`
	ToNumber   string    `json:"to_number"`
	Content    string    `json:"content"`
	MediaURL   string    `json:"media_url,omitempty"`
	SentAt     time.Time `json:"date_sent"`
	IsOutbound bool      `json:"is_outbound"`
}

// Normalize trims surrounding whitespace from the identifier fields.
func (m *InboundMessage) Normalize() {
	m.Handle = strings.TrimSpace(m.Handle)
	m.FromNumber = strings.TrimSpace(m.FromNumber)
	m.ToNumber = strings.TrimSpace(m.ToNumber)
	m.MediaURL = strings.TrimSpace(m.MediaURL)
}

// Validate requires the handle and the sender.
func (m InboundMessage) Validate() error {
	if strings.TrimSpace(m.Handle) == "" {
		return fmt.Errorf("%w: message_handle is required", ErrValidation)
	}
	if strings.TrimSpace(m.FromNumber) == "" {
		return fmt.Errorf("%w: from_number is required", ErrValidation)
	}
	return nil
}

// HasPayload reports whether there is anything to forward to the backend.
func (m InboundMessage) HasPayload() bool {
	return strings.TrimSpace(m.Content) != "" || m.MediaURL != ""
}

// Envelope is the normalized form handed to the conversational backend.
type Envelope struct {
	ID         uuid.UUID `json:"id"`
	Channel    string    `json:"channel"`
	Handle     string    `json:"message_handle"`
	ChatID     string    `json:"chat_id"`
	SenderID   string    `json:"sender_id"`
	Recipient  string    `json:"recipient,omitempty"`
	Text       string    `json:"text"`
	MediaURL   string    `json:"media_url,omitempty"`
	SentAt     time.Time `json:"sent_at"`
	ReceivedAt time.Time `json:"received_at"`
	Source     string    `json:"source"`
}

// ChannelIMessage names the channel in envelopes sent to the backend.
const ChannelIMessage = "imessage"

// NewEnvelope builds the backend envelope. The chat is keyed by the sender's number,
// since provider conversations are one-to-one.
func NewEnvelope(msg InboundMessage, source string, receivedAt time.Time) Envelope {
	sentAt := msg.SentAt
	if sentAt.IsZero() {
		sentAt = receivedAt
	}
	return Envelope{
		ID:         uuid.New(),
		Channel:    ChannelIMessage,
		Handle:     msg.Handle,
		ChatID:     msg.FromNumber,
		SenderID:   msg.FromNumber,
		Recipient:  msg.ToNumber,
		Text:       strings.TrimSpace(msg.Content),
		MediaURL:   msg.MediaURL,
		SentAt:     sentAt.UTC(),
		ReceivedAt: receivedAt.UTC(),
		Source:     source,
	}
}
