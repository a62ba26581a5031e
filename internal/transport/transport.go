package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"summons-lookup/internal/record"
)

// Transport submits a single lookup and returns the raw result page.
// Implementations never retry, throttling is surfaced as an *Error with
// Kind THROTTLED and left to the caller.
type Transport interface {
	Submit(ctx context.Context, req record.Request) (record.RawResponse, error)
	// Close releases any session held by the transport, it is safe to call
	// more than once.
	Close() error
}

type Kind int

const (
	NETWORK_FAILURE Kind = iota
	HTTP_STATUS
	ELEMENT_NOT_FOUND
	THROTTLED
)

func (k Kind) String() string {
	switch k {
	case NETWORK_FAILURE:
		return "network failure"
	case HTTP_STATUS:
		return "http status"
	case ELEMENT_NOT_FOUND:
		return "element not found"
	case THROTTLED:
		return "throttled"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is the only error type returned by a Transport's Submit, apart from
// the context's own error on cancellation.
type Error struct {
	Kind Kind
	// HTTP status code, set for HTTP_STATUS and THROTTLED
	Code int
	// name of the exhausted locator, set for ELEMENT_NOT_FOUND
	Locator string
	// advised wait, set for THROTTLED
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	switch e.Kind {
	case HTTP_STATUS:
		fmt.Fprintf(&b, " %d", e.Code)
	case THROTTLED:
		fmt.Fprintf(&b, " (status %d, retry after %s)", e.Code, e.RetryAfter)
	case ELEMENT_NOT_FOUND:
		fmt.Fprintf(&b, " %q", e.Locator)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AsThrottled reports whether err is a throttling error and the wait it advises.
func AsThrottled(err error) (time.Duration, bool) {
	var terr *Error
	if errors.As(err, &terr) && terr.Kind == THROTTLED {
		return terr.RetryAfter, true
	}
	return 0, false
}

// DefaultRetryAfter is used when a throttled response does not say how long to wait.
const DefaultRetryAfter = 5 * time.Second

// DefaultMaxRetryAfter bounds how long a single throttled response can stall a run.
const DefaultMaxRetryAfter = 5 * time.Minute

// ParseRetryAfter reads a Retry-After header value, which is either a number
// of seconds or an HTTP date. Anything unparsable or in the past yields
// fallback, anything longer than limit yields limit. A limit of zero means
// DefaultMaxRetryAfter.
func ParseRetryAfter(value string, now time.Time, fallback, limit time.Duration) time.Duration {
	if limit <= 0 {
		limit = DefaultMaxRetryAfter
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return clampWait(fallback, limit)
	}

	seconds, err := strconv.ParseInt(value, 10, 64)
	if errors.Is(err, strconv.ErrRange) && !strings.HasPrefix(value, "-") {
		return limit
	}
	if err == nil {
		if seconds < 0 {
			return clampWait(fallback, limit)
		}
		if seconds > int64(limit/time.Second) {
			return limit
		}
		return clampWait(time.Duration(seconds)*time.Second, limit)
	}

	if at, err := http.ParseTime(value); err == nil {
		wait := at.Sub(now)
		if wait <= 0 {
			return clampWait(fallback, limit)
		}
		return clampWait(wait, limit)
	}
	return clampWait(fallback, limit)
}

func clampWait(wait, limit time.Duration) time.Duration {
	if wait > limit {
		return limit
	}
	return wait
}
