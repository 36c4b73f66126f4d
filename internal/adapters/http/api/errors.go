package api

import "errors"

// Sentinel kinds for API errors.
var (
	ErrBadRequest           = errors.New("bad request")
	ErrMissingTask          = errors.New("missing task")
	ErrStreamingUnsupported = errors.New("streaming unsupported")
)
