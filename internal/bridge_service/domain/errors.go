package domain

import "errors"

var (
	// ErrValidation marks a malformed or incomplete inbound payload.
	ErrValidation = errors.New("validation failed")
	// ErrUnauthorized marks a missing or mismatched webhook shared secret.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRateLimited marks a request rejected by the receiver rate limiter.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrDuplicateMessage is the normal "already claimed" outcome. It is never logged as a failure.
	ErrDuplicateMessage = errors.New("message already processed")
	// ErrPolicyRejected marks a sender the access policy does not admit.
	ErrPolicyRejected = errors.New("sender not allowed")
	// ErrProviderTransient wraps network and 5xx failures from the provider or backend.
	ErrProviderTransient = errors.New("transient provider error")
	// ErrPersistence wraps store failures. Fatal to the operation, never to the process.
	ErrPersistence = errors.New("persistence error")
	// ErrNotFound is returned by repositories when a keyed record does not exist.
	ErrNotFound = errors.New("not found")
)
