package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestInboundMessage_Validate(t *testing.T) {
	ok := InboundMessage{Handle: "m1", FromNumber: "+15551234567"}
	assert.NoError(t, ok.Validate())

	missingHandle := InboundMessage{Handle: "  ", FromNumber: "+15551234567"}
	assert.True(t, errors.Is(missingHandle.Validate(), ErrValidation))

	missingSender := InboundMessage{Handle: "m1"}
	err := missingSender.Validate()
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Contains(t, err.Error(), "from_number")
}

func TestInboundMessage_HasPayload(t *testing.T) {
	assert.False(t, InboundMessage{Content: "   "}.HasPayload())
	assert.True(t, InboundMessage{Content: "hi"}.HasPayload())
	assert.True(t, InboundMessage{MediaURL: "https://cdn.example.com/a.jpg"}.HasPayload())
}

func TestNewEnvelope(t *testing.T) {
	received := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	msg := InboundMessage{Handle: "m1", FromNumber: "+15551234567", ToNumber: "+15550001111", Content: "  hello "}

	env := NewEnvelope(msg, SourceWebhook, received)

	assert.NotEqual(t, uuid.Nil, env.ID)
	assert.Equal(t, ChannelIMessage, env.Channel)
	assert.Equal(t, "+15551234567", env.ChatID)
	assert.Equal(t, "hello", env.Text)
	assert.Equal(t, received, env.SentAt, "missing sent-at falls back to receipt time")
	assert.Equal(t, SourceWebhook, env.Source)
}

func TestTerminalSet(t *testing.T) {
	set := NewTerminalSet(nil)
	for _, s := range []string{"DELIVERED", "read", " Failed ", "undelivered", "canceled", "CANCELLED"} {
		assert.True(t, set.IsTerminal(s), s)
	}
	for _, s := range []string{"sent", "QUEUED", "", "pending"} {
		assert.False(t, set.IsTerminal(s), s)
	}

	custom := NewTerminalSet([]string{"ERROR", "delivered"})
	assert.True(t, custom.IsTerminal("error"))
	assert.False(t, custom.IsTerminal("read"))
}

func TestParseAccessMode(t *testing.T) {
	assert.Equal(t, AccessModeOpen, ParseAccessMode("OPEN"))
	assert.Equal(t, AccessModeDisabled, ParseAccessMode("disabled"))
	assert.Equal(t, AccessModeAllowlist, ParseAccessMode(""))
	assert.Equal(t, AccessModeAllowlist, ParseAccessMode("pairing"))
}
