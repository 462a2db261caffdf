package domain

import (
	"strings"
	"time"
)

// StatusSent is recorded for a freshly sent message when the provider gives nothing better.
const StatusSent = "sent"

// DefaultTerminalStatuses is the provider vocabulary treated as final unless configured otherwise.
var DefaultTerminalStatuses = []string{"delivered", "read", "failed", "undelivered", "canceled", "cancelled"}

// OutboundStatusRecord tracks delivery of one message this service sent.
type OutboundStatusRecord struct {
	Handle        string
	ChatID        string
	Status        string
	IsTerminal    bool
	LastCheckedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TerminalSet classifies provider status strings, case-insensitively.
type TerminalSet map[string]struct{}

// NewTerminalSet builds a set from the given statuses, falling back to
// DefaultTerminalStatuses when none are given.
func NewTerminalSet(statuses []string) TerminalSet {
	if len(statuses) == 0 {
		statuses = DefaultTerminalStatuses
	}
	set := make(TerminalSet, len(statuses))
	for _, s := range statuses {
		if s = normalizeStatus(s); s != "" {
			set[s] = struct{}{}
		}
	}
	return set
}

// IsTerminal reports whether status is final. Unknown values are non-terminal.
func (t TerminalSet) IsTerminal(status string) bool {
	_, ok := t[normalizeStatus(status)]
	return ok
}

func normalizeStatus(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// StatusChange is emitted when the reconciler applies a new provider status.
type StatusChange struct {
	Handle     string    `json:"message_handle"`
	ChatID     string    `json:"chat_id"`
	Status     string    `json:"status"`
	IsTerminal bool      `json:"is_terminal"`
	CheckedAt  time.Time `json:"checked_at"`
}
