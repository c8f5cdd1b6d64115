package telegram

import "errors"

// Sentinel errors for inbound update handling.
var (
	// ErrUnauthorized indicates the secret-token header was missing or did
	// not match. The request must be rejected before its body is parsed.
	ErrUnauthorized = errors.New("telegram: invalid webhook secret token")

	// ErrMalformedUpdate indicates the body is not valid JSON or has no
	// top-level message object.
	ErrMalformedUpdate = errors.New("telegram: malformed update")

	// ErrEmptyUpdate indicates a well-formed update without a chat ID or
	// text. Nothing can be replied to it.
	ErrEmptyUpdate = errors.New("telegram: update has no chat or text")
)
