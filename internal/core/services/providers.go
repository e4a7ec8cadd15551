package services

import (
	"strings"
	"time"
	"unicode"

	"github.com/custodia-labs/mailsync-core/internal/core/domain"
)

// ProviderProfile captures what actually differs between the provider
// families: cursor shape, listing page size, and quota tuning. The sync
// state machine itself is shared; profiles only parameterize it.
type ProviderProfile struct {
	Provider domain.ProviderType

	// PageSize is the full-sync listing page size the adapter is expected
	// to honor
	PageSize int

	RateLimit RateLimiterConfig
	Retry     *RetryPolicy

	// CursorValid rejects stored cursors that cannot possibly be honored,
	// forcing a full sync instead of burning a provider round trip
	CursorValid func(cursor string) bool
}

// GmailProfile tunes the engine for the history-id provider family. The
// cursor is a decimal history id; quotas are generous but bursty.
func GmailProfile() ProviderProfile {
	return ProviderProfile{
		Provider:    domain.ProviderGmail,
		PageSize:    100,
		RateLimit:   RateLimiterConfig{MaxTokens: 50, RefillRate: 10, ThrottleThreshold: 80},
		Retry:       NewRetryPolicy(time.Second, 2, 30*time.Second, 3),
		CursorValid: validHistoryID,
	}
}

// OutlookProfile tunes the engine for the delta-query provider family. The
// cursor is an opaque delta link; throttling kicks in earlier and sustained
// rates are lower.
func OutlookProfile() ProviderProfile {
	return ProviderProfile{
		Provider:    domain.ProviderOutlook,
		PageSize:    50,
		RateLimit:   RateLimiterConfig{MaxTokens: 40, RefillRate: 4, ThrottleThreshold: 70},
		Retry:       NewRetryPolicy(2*time.Second, 2, time.Minute, 3),
		CursorValid: validDeltaLink,
	}
}

// ProfileFor returns the profile for a provider type.
func ProfileFor(p domain.ProviderType) ProviderProfile {
	if p == domain.ProviderOutlook {
		return OutlookProfile()
	}
	return GmailProfile()
}

// validHistoryID accepts non-empty strings of decimal digits.
func validHistoryID(cursor string) bool {
	if cursor == "" {
		return false
	}
	for _, r := range cursor {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// validDeltaLink accepts delta-link style cursors: an absolute URL or a bare
// delta token.
func validDeltaLink(cursor string) bool {
	if cursor == "" {
		return false
	}
	if strings.HasPrefix(cursor, "https://") || strings.HasPrefix(cursor, "http://") {
		return true
	}
	// Bare tokens contain no whitespace
	return !strings.ContainsAny(cursor, " \t\n")
}
