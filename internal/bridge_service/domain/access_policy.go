package domain

import "strings"

// AccessMode selects how AccessGuard evaluates senders.
type AccessMode string

const (
	AccessModeDisabled  AccessMode = "disabled"
	AccessModeOpen      AccessMode = "open"
	AccessModeAllowlist AccessMode = "allowlist"
)

// ParseAccessMode maps configuration text to a mode. Unknown or empty values
// fall back to allowlist, the restrictive default.
func ParseAccessMode(raw string) AccessMode {
	switch AccessMode(strings.ToLower(strings.TrimSpace(raw))) {
	case AccessModeDisabled:
		return AccessModeDisabled
	case AccessModeOpen:
		return AccessModeOpen
	default:
		return AccessModeAllowlist
	}
}

// AccessPolicy is read-only configuration owned by the service.
type AccessPolicy struct {
	Mode      AccessMode
	AllowFrom []string
}
