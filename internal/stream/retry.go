package stream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/parley0/parley/internal/log"
)

// ErrNotModified marks a delivery error that carries no information: the
// target message no longer exists or the edit would not change it. The chat
// transport rejects value-less updates, so this class is swallowed rather
// than retried or surfaced.
var ErrNotModified = errors.New("message unchanged or gone")

// RetryAfterError is a rate-limit signal carrying the wait the transport
// asked for. Transports wrap their vendor-specific throttling errors in this
// type so the delivery retry can honor the announced interval.
type RetryAfterError struct {
	After time.Duration
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("rate limited, retry after %v", e.After)
}

// RetryPolicy bounds the delivery retry around placeholder creation and
// live-message edits. It is distinct from the completion stream itself:
// only network calls to the chat transport go through it.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries. Zero uses the default of 3.
	MaxAttempts int

	// TimeoutBackoff is the initial wait after a timeout, growing linearly
	// by the same amount on each further timeout. Zero uses 2s.
	TimeoutBackoff time.Duration
}

// DefaultRetryPolicy returns the reference delivery retry settings.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		TimeoutBackoff: 2 * time.Second,
	}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts <= 0 {
		return 3
	}
	return p.MaxAttempts
}

func (p RetryPolicy) backoff() time.Duration {
	if p.TimeoutBackoff <= 0 {
		return 2 * time.Second
	}
	return p.TimeoutBackoff
}

// do runs op under the bounded retry policy. Rate-limit signals wait the
// announced interval; everything else transient backs off linearly. A
// not-modified error ends the operation successfully. After the attempt
// budget the last error is returned.
func (p RetryPolicy) do(ctx context.Context, logger log.Logger, op func(context.Context) error) error {
	backoff := p.backoff()
	var lastErr error

	for attempt := 1; attempt <= p.attempts(); attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrNotModified) {
			return nil
		}
		lastErr = err

		if attempt == p.attempts() {
			break
		}

		wait := backoff
		var ra *RetryAfterError
		switch {
		case errors.As(err, &ra):
			wait = ra.After
		case isTimeout(err):
			// Linear growth for the next timeout wait.
			backoff += p.backoff()
		}

		logger.Debug("delivery failed, retrying",
			"attempt", attempt,
			"wait", wait,
			"error", err)

		select {
		case <-ctx.Done():
			return fmt.Errorf("context canceled during delivery retry: %w", ctx.Err())
		case <-time.After(wait):
		}
	}

	return lastErr
}

// isTimeout classifies transient timeout errors from the chat transport.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out")
}
