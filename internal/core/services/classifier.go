package services

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/custodia-labs/mailsync-core/internal/core/domain"
)

// transientStatuses are HTTP statuses worth retrying with backoff
var transientStatuses = map[int]bool{
	http.StatusRequestTimeout:      true, // 408
	http.StatusTooManyRequests:     true, // 429
	http.StatusInternalServerError: true, // 500
	http.StatusBadGateway:          true, // 502
	http.StatusServiceUnavailable:  true, // 503
	http.StatusGatewayTimeout:      true, // 504
}

// permanentStatuses are HTTP statuses that retrying cannot fix
var permanentStatuses = map[int]bool{
	http.StatusBadRequest:   true, // 400
	http.StatusUnauthorized: true, // 401
	http.StatusForbidden:    true, // 403
	http.StatusNotFound:     true, // 404
	http.StatusGone:         true, // 410
}

// Classify maps a raw failure to its retry classification. Pure function of
// the error value and, for Retry-After date parsing, the supplied clock.
func Classify(err error) domain.Classification {
	return classifyAt(err, time.Now())
}

func classifyAt(err error, now time.Time) domain.Classification {
	if err == nil {
		return domain.Classification{Class: domain.ErrorClassUnknown, Message: "no error"}
	}

	c := domain.Classification{Message: err.Error()}

	var provErr *domain.ProviderError
	if errors.As(err, &provErr) {
		c.HTTPStatus = provErr.StatusCode
		c.RetryAfter = parseRetryAfter(provErr.RetryAfter, now)

		switch {
		case transientStatuses[provErr.StatusCode]:
			c.Class = domain.ErrorClassTransient
		case permanentStatuses[provErr.StatusCode]:
			c.Class = domain.ErrorClassPermanent
		case provErr.StatusCode == 0:
			// Wrapped network failure without a response
			c.Class = domain.ErrorClassTransient
		default:
			c.Class = domain.ErrorClassUnknown
		}
		return c
	}

	// Generic network failures are transient
	var netErr net.Error
	if errors.As(err, &netErr) {
		c.Class = domain.ErrorClassTransient
		return c
	}

	if errors.Is(err, context.DeadlineExceeded) {
		c.Class = domain.ErrorClassTransient
		return c
	}

	// Cancellation reflects caller intent, not provider health
	if errors.Is(err, context.Canceled) {
		c.Class = domain.ErrorClassPermanent
		return c
	}

	if errors.Is(err, domain.ErrReauthRequired) {
		c.Class = domain.ErrorClassPermanent
		return c
	}

	c.Class = domain.ErrorClassUnknown
	return c
}

// parseRetryAfter interprets a Retry-After header as delay-seconds or an
// HTTP-date. Returns 0 when absent or unparseable.
func parseRetryAfter(value string, now time.Time) time.Duration {
	if value == "" {
		return 0
	}

	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}

	if t, err := http.ParseTime(value); err == nil {
		d := t.Sub(now)
		if d < 0 {
			return 0
		}
		return d
	}

	return 0
}
