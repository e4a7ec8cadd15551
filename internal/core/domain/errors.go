package domain

import "errors"

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates the resource already exists
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrSyncInProgress indicates a sync is already running for the account
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrCursorExpired indicates the provider no longer accepts the stored cursor.
	// The sync engine recovers from this by falling back to a full sync; it is
	// never surfaced to callers.
	ErrCursorExpired = errors.New("sync cursor expired")

	// ErrReauthRequired indicates token refresh failed and the user must
	// re-authenticate the account before sync can resume
	ErrReauthRequired = errors.New("re-authentication required")

	// ErrOffline indicates the network is unreachable
	ErrOffline = errors.New("network offline")

	// ErrCircuitOpen indicates the provider circuit breaker is open and
	// attempts are being short-circuited until the cool-down elapses
	ErrCircuitOpen = errors.New("provider circuit open")

	// ErrAccountDisabled indicates the account exists but sync is disabled for it
	ErrAccountDisabled = errors.New("account disabled")

	// ErrConflictUnresolvable indicates a conflict type that cannot be
	// auto-resolved and requires an explicit user choice
	ErrConflictUnresolvable = errors.New("conflict requires manual resolution")

	// ErrOrchestratorStopped indicates an operation was attempted after shutdown
	ErrOrchestratorStopped = errors.New("orchestrator stopped")
)
