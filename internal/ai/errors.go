package ai

import "errors"

var (
	ErrUnavailable = errors.New("encoder unavailable")
	// ErrInvalidFormat reports input the encoder cannot accept.
	ErrInvalidFormat = errors.New("invalid input format")
	// ErrPlatform reports a missing derived input or environment failure.
	ErrPlatform = errors.New("platform error")
)

// IsClassified reports whether err is a known per-item failure that should be
// recorded as an empty embedding instead of being retried.
func IsClassified(err error) bool {
	return errors.Is(err, ErrInvalidFormat) || errors.Is(err, ErrPlatform)
}
