package http

import (
	"strings"
	"time"

	"github.com/aradsms/imessage_bridge/internal/bridge_service/domain"
)

// WebhookPayload is the JSON body the provider pushes for a message event.
type WebhookPayload struct {
	MessageHandle string `json:"message_handle" validate:"required"`
	FromNumber    string `json:"from_number" validate:"required"`
	ToNumber      string `json:"to_number"`
	Content       string `json:"content"`
	MediaURL      string `json:"media_url"`
	DateSent      string `json:"date_sent"`
	IsOutbound    bool   `json:"is_outbound"`
	Status        string `json:"status"`
}

func (p *WebhookPayload) trim() {
	p.MessageHandle = strings.TrimSpace(p.MessageHandle)
	p.FromNumber = strings.TrimSpace(p.FromNumber)
	p.ToNumber = strings.TrimSpace(p.ToNumber)
	p.MediaURL = strings.TrimSpace(p.MediaURL)
}

// toInbound converts the payload; an unparseable date_sent is left zero and
// the pipeline falls back to the receive time.
func (p WebhookPayload) toInbound() domain.InboundMessage {
	msg := domain.InboundMessage{
		Handle:     p.MessageHandle,
		FromNumber: p.FromNumber,
		ToNumber:   p.ToNumber,
		Content:    p.Content,
		MediaURL:   p.MediaURL,
		IsOutbound: p.IsOutbound,
	}
	if ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(p.DateSent)); err == nil {
		msg.SentAt = ts
	}
	return msg
}

type webhookAck struct {
	Received bool `json:"received"`
}

type errorResponse struct {
	Error string `json:"error"`
}
