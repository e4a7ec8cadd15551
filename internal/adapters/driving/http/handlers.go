package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/custodia-labs/mailsync-core/internal/core/domain"
)

// ErrorResponse is the API error body
type ErrorResponse struct {
	Error string `json:"error"`
}

// Health endpoints

// handleHealth reports per-component health. The document store is required;
// lock and bus backends are optional and only reported when configured.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	healthy := true
	components := map[string]string{}

	check := func(name string, p Pinger, required bool) {
		if p == nil {
			return
		}
		if err := p.Ping(ctx); err != nil {
			components[name] = err.Error()
			if required {
				healthy = false
			}
			return
		}
		components[name] = "ok"
	}
	check("store", s.store, true)
	check("lock", s.lock, false)
	check("bus", s.bus, false)

	status := http.StatusOK
	overall := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "unhealthy"
	}
	writeJSON(w, status, map[string]any{
		"status":     overall,
		"components": components,
	})
}

// handleVersion returns the build version
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

// Account endpoints

// handleListAccounts returns all connected accounts
func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.accounts.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list accounts")
		return
	}
	if accounts == nil {
		accounts = []*domain.Account{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

// handleTriggerSync runs a sync for the account immediately
func (s *Server) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	accountID := r.PathValue("id")
	if err := s.orchestrator.TriggerSync(r.Context(), accountID); err != nil {
		writeSyncError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSwitchAccount syncs the account the user just opened
func (s *Server) handleSwitchAccount(w http.ResponseWriter, r *http.Request) {
	accountID := r.PathValue("id")
	if err := s.orchestrator.SwitchAccount(r.Context(), accountID); err != nil {
		writeSyncError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleGetProgress returns the account's sync progress snapshot
func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	accountID := r.PathValue("id")
	progress, err := s.orchestrator.GetProgress(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no sync state for account")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load progress")
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

// Failure endpoints

// handleListFailures returns the account's failure records
func (s *Server) handleListFailures(w http.ResponseWriter, r *http.Request) {
	accountID := r.PathValue("id")
	failures, err := s.failures.List(r.Context(), accountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list failures")
		return
	}
	if failures == nil {
		failures = []*domain.SyncFailure{}
	}
	writeJSON(w, http.StatusOK, failures)
}

// handleFailureStats returns the partial-success rollup for the account
func (s *Server) handleFailureStats(w http.ResponseWriter, r *http.Request) {
	accountID := r.PathValue("id")
	stats, err := s.failures.Stats(r.Context(), accountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load failure stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleRetryAllFailures resets exhausted failures to immediately retryable
func (s *Server) handleRetryAllFailures(w http.ResponseWriter, r *http.Request) {
	accountID := r.PathValue("id")
	n, err := s.failures.RetryAllExhausted(r.Context(), accountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to reset failures")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"retried": n})
}

// handleDismissFailure marks a failure record as dismissed
func (s *Server) handleDismissFailure(w http.ResponseWriter, r *http.Request) {
	failureID := r.PathValue("id")
	if err := s.failures.Dismiss(r.Context(), failureID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "failure not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to dismiss failure")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Conflict endpoints

// handleListConflicts returns pending conflicts, optionally filtered by the
// account_id query parameter
func (s *Server) handleListConflicts(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account_id")
	conflicts, err := s.conflicts.ListPending(r.Context(), accountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list conflicts")
		return
	}
	if conflicts == nil {
		conflicts = []*domain.PendingConflict{}
	}
	writeJSON(w, http.StatusOK, conflicts)
}

// resolveConflictRequest is the body for manual conflict resolution
type resolveConflictRequest struct {
	Strategy domain.ResolutionStrategy `json:"strategy"`
	Merged   *domain.EmailRecord       `json:"merged,omitempty"`
}

// handleResolveConflict applies a user-directed choice to a pending conflict
func (s *Server) handleResolveConflict(w http.ResponseWriter, r *http.Request) {
	conflictID := r.PathValue("id")

	var req resolveConflictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resolvedBy := Subject(r.Context())
	if resolvedBy == "" {
		resolvedBy = "user"
	}

	resolution, err := s.conflicts.Resolve(r.Context(), conflictID, req.Strategy, req.Merged, resolvedBy)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "conflict not found")
		case errors.Is(err, domain.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "invalid resolution strategy")
		default:
			writeError(w, http.StatusInternalServerError, "failed to resolve conflict")
		}
		return
	}
	writeJSON(w, http.StatusOK, resolution)
}

// setPreferenceRequest is the body for pinning a standing resolution
type setPreferenceRequest struct {
	Type     domain.ConflictType       `json:"type"`
	Strategy domain.ResolutionStrategy `json:"strategy"`
}

// handleSetConflictPreference pins a standing resolution for a conflict type
func (s *Server) handleSetConflictPreference(w http.ResponseWriter, r *http.Request) {
	accountID := r.PathValue("id")

	var req setPreferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	pref := &domain.ConflictPreference{
		AccountID: accountID,
		Type:      req.Type,
		Strategy:  req.Strategy,
		UpdatedAt: time.Now(),
	}
	if err := s.conflicts.SetPreference(r.Context(), pref); err != nil {
		switch {
		case errors.Is(err, domain.ErrConflictUnresolvable):
			writeError(w, http.StatusUnprocessableEntity, "content conflicts always require manual resolution")
		case errors.Is(err, domain.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "invalid preference strategy")
		default:
			writeError(w, http.StatusInternalServerError, "failed to save preference")
		}
		return
	}
	writeJSON(w, http.StatusOK, pref)
}

// writeSyncError maps orchestrator errors onto HTTP statuses
func writeSyncError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "account not found")
	case errors.Is(err, domain.ErrSyncInProgress):
		writeError(w, http.StatusConflict, "sync already in progress")
	case errors.Is(err, domain.ErrCircuitOpen):
		writeError(w, http.StatusServiceUnavailable, "provider temporarily unavailable")
	case errors.Is(err, domain.ErrReauthRequired):
		writeError(w, http.StatusForbidden, "account requires re-authentication")
	case errors.Is(err, domain.ErrOrchestratorStopped):
		writeError(w, http.StatusServiceUnavailable, "sync service is shutting down")
	default:
		writeError(w, http.StatusInternalServerError, "sync failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
