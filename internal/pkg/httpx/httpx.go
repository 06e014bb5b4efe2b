// Package httpx holds the retry helpers shared by the outbound HTTP
// clients (OpenAI, load callbacks).
package httpx

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HTTPStatusCoder is implemented by client errors that carry the
// upstream HTTP status.
type HTTPStatusCoder interface {
	HTTPStatusCode() int
}

func IsRetryableStatus(code int) bool {
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return true
	}
	return code >= 500 && code <= 599
}

// IsRetryable reports whether a request error is worth another attempt:
// timeouts, transient network failures, and retryable upstream statuses.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var sc HTTPStatusCoder
	if errors.As(err, &sc) {
		return IsRetryableStatus(sc.HTTPStatusCode())
	}
	return false
}

// Backoff times retry sleeps: Base doubled per attempt, capped at Max,
// overridden by a Retry-After header when the server sent one, and
// jittered so synchronized workers spread out.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

func (b Backoff) Next(attempt int, resp *http.Response) time.Duration {
	base := b.Base
	if base <= 0 {
		base = time.Second
	}
	d := base
	for i := 0; i < attempt && (b.Max <= 0 || d < b.Max); i++ {
		d *= 2
	}
	if resp != nil {
		if ra := strings.TrimSpace(resp.Header.Get("Retry-After")); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
				d = time.Duration(secs) * time.Second
			}
		}
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return jitter(d)
}

// jitter spreads a duration across plus or minus 20 percent.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	delta := float64(d) * 0.2
	low := float64(d) - delta
	return time.Duration(low + rand.Float64()*2*delta)
}
