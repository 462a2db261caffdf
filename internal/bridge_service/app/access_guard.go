package app

import (
	"strings"

	"github.com/aradsms/imessage_bridge/internal/bridge_service/domain"
)

// AccessGuard decides whether a sender may reach the backend. It holds no
// mutable state and is safe for concurrent use.
type AccessGuard struct {
	mode    domain.AccessMode
	allowed map[string]struct{}
}

func NewAccessGuard(policy domain.AccessPolicy) *AccessGuard {
	allowed := make(map[string]struct{}, len(policy.AllowFrom))
	for _, entry := range policy.AllowFrom {
		if n := NormalizeSender(entry); n != "" {
			allowed[n] = struct{}{}
		}
	}
	mode := policy.Mode
	if mode == "" {
		mode = domain.AccessModeAllowlist
	}
	return &AccessGuard{mode: mode, allowed: allowed}
}

// IsAllowed evaluates the policy: disabled rejects everyone, open admits
// everyone, allowlist admits only senders whose digits match an entry.
func (g *AccessGuard) IsAllowed(senderID string) bool {
	switch g.mode {
	case domain.AccessModeDisabled:
		return false
	case domain.AccessModeOpen:
		return true
	}
	n := NormalizeSender(senderID)
	if n == "" {
		return false
	}
	_, ok := g.allowed[n]
	return ok
}

func (g *AccessGuard) Mode() domain.AccessMode { return g.mode }

// NormalizeSender keeps only the digits of an identifier, so "+1 (555) 987-6543"
// and "15559876543" compare equal.
func NormalizeSender(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range id {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
