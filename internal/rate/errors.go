package rate

import "errors"

var (
	// ErrRateLimited reports that the key exhausted its window.
	ErrRateLimited = errors.New("rate limited")
	// ErrUnavailable wraps counter backend failures.
	ErrUnavailable = errors.New("rate counter unavailable")
)
