package llm

import "errors"

// Sentinel error kinds for this package.
var (
	ErrUpstream      = errors.New("llm request failed")
	ErrEmptyResponse = errors.New("llm response missing content")
	ErrBadPayload    = errors.New("llm response payload invalid")
)
