package sdk

import "errors"

// Sentinel errors. Use errors.Is() to check.
var (
	// ErrUnauthorized signals a missing or rejected API key.
	ErrUnauthorized = errors.New("sdk: unauthorized")
	// ErrBadRequest signals an invalid question or request body.
	ErrBadRequest = errors.New("sdk: bad request")
	// ErrAnswerFailed signals that answer generation failed server-side.
	ErrAnswerFailed = errors.New("sdk: answer generation failed")
	// ErrServer signals any other server-side failure.
	ErrServer = errors.New("sdk: server error")
)
