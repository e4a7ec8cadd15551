package driven

import (
	"context"

	"github.com/custodia-labs/mailsync-core/internal/core/domain"
)

// ProviderAdapter wraps one remote mail API for one account. Wire-level
// request/response handling lives behind this port; the sync engine only
// sees opaque payloads and canonical records.
//
// Gmail-style adapters use a numeric history id as cursor; Outlook-style
// adapters use a delta link. Both are opaque strings here.
type ProviderAdapter interface {
	// Provider returns the provider family this adapter talks to
	Provider() domain.ProviderType

	// ListPage lists message ids within the lookback window, newest first.
	// An empty pageToken starts from the beginning. An empty next token
	// means the listing is exhausted. total may be 0 when unknown.
	ListPage(ctx context.Context, pageToken string) (ListPageResult, error)

	// FetchItem fetches the raw provider payload for one message
	FetchItem(ctx context.Context, itemID string) (RawMessage, error)

	// Normalize converts a raw provider payload into a canonical record
	Normalize(raw RawMessage) (*domain.EmailRecord, error)

	// FetchDelta fetches changes since the cursor. Returns
	// domain.ErrCursorExpired (possibly wrapped) when the provider no longer
	// honors the cursor; the engine falls back to a full sync.
	FetchDelta(ctx context.Context, cursor string) (DeltaResult, error)

	// LatestCursor obtains a fresh position cursor representing "now",
	// persisted after a full sync to enable the next incremental sync.
	LatestCursor(ctx context.Context) (string, error)
}

// RawMessage is an opaque provider payload plus the provider's item id.
type RawMessage struct {
	ItemID  string
	Payload []byte
}

// ListPageResult is one page of a full-sync listing.
type ListPageResult struct {
	ItemIDs       []string
	NextPageToken string
	// Total is the provider's estimate of items in the window; 0 if unknown
	Total int
}

// DeltaChangeKind distinguishes incremental change records.
type DeltaChangeKind string

const (
	// DeltaAdded is a new message; the engine fetches and upserts it
	DeltaAdded DeltaChangeKind = "added"
	// DeltaUpdated is a label/flag-only change; the engine re-fetches the item
	DeltaUpdated DeltaChangeKind = "updated"
	// DeltaRemoved is a deletion; the engine removes the local record
	DeltaRemoved DeltaChangeKind = "removed"
)

// DeltaChange is one change reported by an incremental sync.
type DeltaChange struct {
	Kind   DeltaChangeKind
	ItemID string
}

// DeltaResult is the outcome of one incremental fetch.
type DeltaResult struct {
	Changes   []DeltaChange
	NewCursor string
}
