package domain

import (
	"crypto/rand"
	"encoding/base64"
	"time"
)

// GenerateID creates a unique random ID.
func GenerateID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// ProviderType identifies a remote mail provider family
type ProviderType string

const (
	// ProviderGmail is the incremental-history provider (opaque history-id cursor)
	ProviderGmail ProviderType = "gmail"
	// ProviderOutlook is the delta-query provider (opaque delta-link cursor)
	ProviderOutlook ProviderType = "outlook"
)

// Valid reports whether the provider type is one of the known providers.
func (p ProviderType) Valid() bool {
	return p == ProviderGmail || p == ProviderOutlook
}

// Account is a connected mailbox
type Account struct {
	ID        string       `json:"id"`
	Email     string       `json:"email"`
	Provider  ProviderType `json:"provider"`
	Enabled   bool         `json:"enabled"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// SyncStatus represents the lifecycle state of an account's sync
type SyncStatus string

const (
	SyncStatusIdle    SyncStatus = "idle"
	SyncStatusSyncing SyncStatus = "syncing"
	SyncStatusPaused  SyncStatus = "paused"
	SyncStatusError   SyncStatus = "error"
)

// SyncState tracks per-account sync progress and cursors.
// Mutated only by the sync engine run that owns the account; read by the
// orchestrator and the HTTP layer.
type SyncState struct {
	AccountID string       `json:"account_id"`
	Provider  ProviderType `json:"provider"`
	Status    SyncStatus   `json:"status"`

	// Cursor is the opaque provider position token (history id / delta link).
	// Empty means no incremental baseline exists and the next run is a full sync.
	Cursor string `json:"cursor,omitempty"`

	// PageToken resumes a partially completed full-sync listing
	PageToken string `json:"page_token,omitempty"`

	// InitialSyncDone is true once a full sync has completed and produced a cursor
	InitialSyncDone bool `json:"initial_sync_done"`

	EmailsSynced      int `json:"emails_synced"`
	TotalEmailsToSync int `json:"total_emails_to_sync"`
	ErrorCount        int `json:"error_count"`

	LastError     string     `json:"last_error,omitempty"`
	LastSyncAt    *time.Time `json:"last_sync_at,omitempty"`
	NextSyncAt    *time.Time `json:"next_sync_at,omitempty"`
	SyncStartedAt *time.Time `json:"sync_started_at,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// NewSyncState returns the pre-initial-sync state for an account.
func NewSyncState(accountID string, provider ProviderType) *SyncState {
	return &SyncState{
		AccountID: accountID,
		Provider:  provider,
		Status:    SyncStatusIdle,
		UpdatedAt: time.Now(),
	}
}

// Reset clears cursors and progress back to pre-initial-sync defaults.
// Used when declaring sync bankruptcy.
func (s *SyncState) Reset() {
	s.Status = SyncStatusIdle
	s.Cursor = ""
	s.PageToken = ""
	s.InitialSyncDone = false
	s.EmailsSynced = 0
	s.TotalEmailsToSync = 0
	s.ErrorCount = 0
	s.LastError = ""
	s.LastSyncAt = nil
	s.NextSyncAt = nil
	s.SyncStartedAt = nil
	s.UpdatedAt = time.Now()
}

// Progress reports completion percentage and a rough time-remaining estimate.
type Progress struct {
	AccountID     string     `json:"account_id"`
	Status        SyncStatus `json:"status"`
	EmailsSynced  int        `json:"emails_synced"`
	TotalEmails   int        `json:"total_emails"`
	Percent       float64    `json:"percent"`
	EstimatedLeft string     `json:"estimated_time_remaining,omitempty"`
	LastSyncAt    *time.Time `json:"last_sync_at,omitempty"`
	NextSyncAt    *time.Time `json:"next_sync_at,omitempty"`
}

// Progress computes the current progress snapshot at the given instant.
func (s *SyncState) Progress(now time.Time) Progress {
	p := Progress{
		AccountID:    s.AccountID,
		Status:       s.Status,
		EmailsSynced: s.EmailsSynced,
		TotalEmails:  s.TotalEmailsToSync,
		LastSyncAt:   s.LastSyncAt,
		NextSyncAt:   s.NextSyncAt,
	}

	if s.TotalEmailsToSync > 0 {
		p.Percent = float64(s.EmailsSynced) / float64(s.TotalEmailsToSync) * 100
		if p.Percent > 100 {
			p.Percent = 100
		}
	}

	// Estimate remaining time from the observed per-item rate of this run.
	if s.Status == SyncStatusSyncing && s.SyncStartedAt != nil && s.EmailsSynced > 0 {
		elapsed := now.Sub(*s.SyncStartedAt)
		remaining := s.TotalEmailsToSync - s.EmailsSynced
		if remaining > 0 && elapsed > 0 {
			perItem := elapsed / time.Duration(s.EmailsSynced)
			p.EstimatedLeft = (perItem * time.Duration(remaining)).Round(time.Second).String()
		}
	}

	return p
}
