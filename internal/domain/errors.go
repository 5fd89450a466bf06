package domain

import "errors"

var (
	// ErrUpstreamUnavailable signals a failed embedding, LLM, or index call.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrMalformedResponse signals LLM output that failed schema validation.
	ErrMalformedResponse = errors.New("malformed model response")
	// ErrGenerationFailed signals that the final answer stream failed.
	// This is the only pipeline error surfaced to the caller.
	ErrGenerationFailed = errors.New("answer generation failed")
	// ErrRateLimited signals a rate limit hit at the completion provider.
	ErrRateLimited = errors.New("rate limited")
)
