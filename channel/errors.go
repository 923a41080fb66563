package channel

import (
	"context"
	"errors"
	"fmt"
)

type channelError string

var _ error = channelError("")

func (err channelError) Error() string {
	return string(err)
}

const (
	// Returned by non-blocking calls whose condition is not met. Not a failure.
	ErrWouldBlock = channelError("operation would block")

	// Returned by blocking calls aborted by their context. Callers usually retry.
	ErrInterrupted = channelError("interrupted")

	ErrInvalidArgument   = channelError("invalid argument")
	ErrResourceExhausted = channelError("resource exhausted")
	ErrClosed            = channelError("channel is closed")
)

// IsTemporary reports whether err is an expected control-flow outcome
// (would block, or interrupted) rather than a failure.
func IsTemporary(err error) bool {
	return errors.Is(err, ErrWouldBlock) || errors.Is(err, ErrInterrupted)
}

func interrupted(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrInterrupted, context.Cause(ctx))
}
