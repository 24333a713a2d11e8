// Package notify delivers job notifications to chat services and terminals.
package notify

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/raphaelgruber/minutes-go/internal/jobs"
)

const (
	// maxRetries limits retries after a rate-limit response.
	maxRetries = 2
	// baseBackoff is the first wait when the service gives no Retry-After.
	baseBackoff = time.Second
)

// levelColor maps a notification level to a hex color for chat attachments.
func levelColor(l jobs.Level) string {
	switch l {
	case jobs.LevelSuccess:
		return "#00D787"
	case jobs.LevelError:
		return "#FF005F"
	case jobs.LevelWarning:
		return "#FFAF00"
	default:
		return "#5FAFD7"
	}
}

// headline is the one-line summary used as text fallback.
func headline(n jobs.Notification) string {
	if n.Title == "" {
		return n.Message
	}
	return fmt.Sprintf("%s: %s", n.Message, n.Title)
}

// errRateLimited is returned by a send function to request a retry.
type errRateLimited struct {
	retryAfter time.Duration
	err        error
}

func (e *errRateLimited) Error() string { return e.err.Error() }
func (e *errRateLimited) Unwrap() error { return e.err }

// retryOnRateLimit calls fn and retries with backoff while fn reports a rate
// limit. It respects context cancellation.
func retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var rle *errRateLimited
		if !errors.As(err, &rle) || attempt == maxRetries {
			return err
		}

		wait := rle.retryAfter
		if wait <= 0 {
			wait = time.Duration(math.Pow(2, float64(attempt))) * baseBackoff
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
