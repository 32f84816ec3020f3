package ai

import "errors"

var (
	// ErrDelegate marks a failed, timed out or unavailable remote model call.
	ErrDelegate = errors.New("model delegate failed")
	// ErrParse marks a model response that could not be decoded.
	ErrParse = errors.New("model response could not be parsed")
	// ErrRateLimited is returned when no request slot frees up within the
	// configured wait bound.
	ErrRateLimited = errors.New("rate limit wait exceeded")
)
