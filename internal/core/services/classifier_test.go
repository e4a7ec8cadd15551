package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/custodia-labs/mailsync-core/internal/core/domain"
)

// TestClassify_TransientStatuses tests that retryable HTTP statuses classify as transient
func TestClassify_TransientStatuses(t *testing.T) {
	for _, status := range []int{408, 429, 500, 502, 503, 504} {
		err := domain.NewProviderError(status, "provider failure")
		c := Classify(err)
		if c.Class != domain.ErrorClassTransient {
			t.Errorf("status %d: expected transient, got %s", status, c.Class)
		}
		if c.HTTPStatus != status {
			t.Errorf("status %d: expected HTTPStatus preserved, got %d", status, c.HTTPStatus)
		}
		if !c.Retryable() {
			t.Errorf("status %d: expected retryable", status)
		}
	}
}

// TestClassify_PermanentStatuses tests that non-retryable HTTP statuses classify as permanent
func TestClassify_PermanentStatuses(t *testing.T) {
	for _, status := range []int{400, 401, 403, 404, 410} {
		err := domain.NewProviderError(status, "provider failure")
		c := Classify(err)
		if c.Class != domain.ErrorClassPermanent {
			t.Errorf("status %d: expected permanent, got %s", status, c.Class)
		}
		if c.Retryable() {
			t.Errorf("status %d: expected not retryable", status)
		}
	}
}

// TestClassify_UnrecognizedStatus tests that unmapped statuses classify as unknown
func TestClassify_UnrecognizedStatus(t *testing.T) {
	err := domain.NewProviderError(418, "teapot")
	c := Classify(err)
	if c.Class != domain.ErrorClassUnknown {
		t.Errorf("expected unknown, got %s", c.Class)
	}
	if !c.Retryable() {
		t.Error("unknown errors should be retryable")
	}
}

// TestClassify_WrappedProviderError tests that wrapping does not hide the classification
func TestClassify_WrappedProviderError(t *testing.T) {
	inner := domain.NewProviderError(429, "quota")
	err := fmt.Errorf("fetch item: %w", inner)
	c := Classify(err)
	if c.Class != domain.ErrorClassTransient {
		t.Errorf("expected transient through wrapping, got %s", c.Class)
	}
	if c.HTTPStatus != 429 {
		t.Errorf("expected 429, got %d", c.HTTPStatus)
	}
}

// TestClassify_NetworkError tests that net.Error failures are transient
func TestClassify_NetworkError(t *testing.T) {
	c := Classify(&timeoutError{})
	if c.Class != domain.ErrorClassTransient {
		t.Errorf("expected transient for network error, got %s", c.Class)
	}
}

// TestClassify_NoStatusProviderError tests that a status-less provider error is transient
func TestClassify_NoStatusProviderError(t *testing.T) {
	err := &domain.ProviderError{Message: "connection reset", Err: errors.New("reset")}
	c := Classify(err)
	if c.Class != domain.ErrorClassTransient {
		t.Errorf("expected transient, got %s", c.Class)
	}
}

// TestClassify_ContextErrors tests deadline vs cancellation handling
func TestClassify_ContextErrors(t *testing.T) {
	if c := Classify(context.DeadlineExceeded); c.Class != domain.ErrorClassTransient {
		t.Errorf("deadline: expected transient, got %s", c.Class)
	}
	if c := Classify(context.Canceled); c.Class != domain.ErrorClassPermanent {
		t.Errorf("canceled: expected permanent, got %s", c.Class)
	}
}

// TestClassify_ReauthRequired tests that re-auth failures are permanent
func TestClassify_ReauthRequired(t *testing.T) {
	err := fmt.Errorf("%w: refresh rejected", domain.ErrReauthRequired)
	c := Classify(err)
	if c.Class != domain.ErrorClassPermanent {
		t.Errorf("expected permanent, got %s", c.Class)
	}
}

// TestClassify_UnknownError tests the fallback for arbitrary errors
func TestClassify_UnknownError(t *testing.T) {
	c := Classify(errors.New("something odd"))
	if c.Class != domain.ErrorClassUnknown {
		t.Errorf("expected unknown, got %s", c.Class)
	}
	if c.Message != "something odd" {
		t.Errorf("expected message preserved, got %q", c.Message)
	}
}

// TestClassify_RetryAfterSeconds tests Retry-After given as delay-seconds
func TestClassify_RetryAfterSeconds(t *testing.T) {
	err := &domain.ProviderError{StatusCode: 429, RetryAfter: "30", Message: "quota"}
	c := Classify(err)
	if c.RetryAfter != 30*time.Second {
		t.Errorf("expected 30s, got %s", c.RetryAfter)
	}
}

// TestClassify_RetryAfterHTTPDate tests Retry-After given as an HTTP-date
func TestClassify_RetryAfterHTTPDate(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	date := now.Add(90 * time.Second).Format("Mon, 02 Jan 2006 15:04:05 GMT")

	err := &domain.ProviderError{StatusCode: 503, RetryAfter: date, Message: "maintenance"}
	c := classifyAt(err, now)
	if c.RetryAfter != 90*time.Second {
		t.Errorf("expected 90s, got %s", c.RetryAfter)
	}
}

// TestClassify_RetryAfterGarbage tests that unparseable Retry-After is ignored
func TestClassify_RetryAfterGarbage(t *testing.T) {
	err := &domain.ProviderError{StatusCode: 429, RetryAfter: "soonish", Message: "quota"}
	c := Classify(err)
	if c.RetryAfter != 0 {
		t.Errorf("expected zero, got %s", c.RetryAfter)
	}
}

// TestClassify_RetryAfterPastDate tests that a past HTTP-date yields zero
func TestClassify_RetryAfterPastDate(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	date := now.Add(-time.Hour).Format("Mon, 02 Jan 2006 15:04:05 GMT")

	err := &domain.ProviderError{StatusCode: 429, RetryAfter: date, Message: "quota"}
	c := classifyAt(err, now)
	if c.RetryAfter != 0 {
		t.Errorf("expected zero for past date, got %s", c.RetryAfter)
	}
}

// timeoutError implements net.Error for tests
type timeoutError struct{}

func (e *timeoutError) Error() string   { return "i/o timeout" }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return true }
