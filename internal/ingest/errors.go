package ingest

import (
	"errors"
	"fmt"
	"time"
)

// ErrConcurrentRun is returned when a run is requested while another one
// holds the run lock. Nothing is started or changed.
var ErrConcurrentRun = errors.New("ingest: another index run is in progress")

// ErrInvalidRange is returned for options that describe no valid walk.
var ErrInvalidRange = errors.New("ingest: invalid message range")

// RateLimitedError reports a transient throttle from the platform. The
// caller should wait RetryAfter before retrying.
type RateLimitedError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rate limited (retry after %s): %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("rate limited (retry after %s)", e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error { return e.Err }

// IsRateLimited reports whether err is or wraps a *RateLimitedError and
// returns it.
func IsRateLimited(err error) (*RateLimitedError, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}

// SourceWalkError reports an unrecoverable failure reading the message
// source. The run ends as Failed with its counters preserved.
type SourceWalkError struct {
	Chat     string
	Position int
	Err      error
}

func (e *SourceWalkError) Error() string {
	return fmt.Sprintf("walk %s at message %d: %v", e.Chat, e.Position, e.Err)
}

func (e *SourceWalkError) Unwrap() error { return e.Err }
