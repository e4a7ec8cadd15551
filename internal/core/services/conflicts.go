package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/mailsync-core/internal/core/domain"
	"github.com/custodia-labs/mailsync-core/internal/core/ports/driven"
	"github.com/custodia-labs/mailsync-core/internal/core/ports/driving"
)

var _ driving.ConflictManager = (*ConflictResolver)(nil)

// ConflictResolver detects local/remote divergence during sync and applies
// automatic or user-directed resolution. Pending conflicts are transient and
// held in memory; resolved conflicts are archived to the audit store.
type ConflictResolver struct {
	emails driven.EmailStore
	audit  driven.ConflictAuditStore
	prefs  driven.PreferenceStore
	bus    driven.EventBus
	logger *slog.Logger

	mu      sync.RWMutex
	pending map[string]*domain.PendingConflict

	now func() time.Time
}

// ConflictResolverConfig holds dependencies for ConflictResolver.
type ConflictResolverConfig struct {
	EmailStore driven.EmailStore
	AuditStore driven.ConflictAuditStore
	PrefStore  driven.PreferenceStore
	Bus        driven.EventBus
	Logger     *slog.Logger
}

// NewConflictResolver creates the resolver.
func NewConflictResolver(cfg ConflictResolverConfig) *ConflictResolver {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ConflictResolver{
		emails:  cfg.EmailStore,
		audit:   cfg.AuditStore,
		prefs:   cfg.PrefStore,
		bus:     cfg.Bus,
		logger:  logger,
		pending: make(map[string]*domain.PendingConflict),
		now:     time.Now,
	}
}

// DetectConflict compares snapshots. A conflict exists only when the local
// copy carries an uncommitted modification strictly newer than the last
// known server timestamp; otherwise the incoming version wins uncontested.
// Ties favor the server. Pure function of the two snapshots.
func DetectConflict(local, remote *domain.EmailRecord) (domain.ConflictType, []string, bool) {
	if local == nil || remote == nil || !local.Dirty() {
		return "", nil, false
	}
	if !local.LocalModifiedAt.After(remote.ServerTimestamp) {
		return "", nil, false
	}

	// Priority order: content, then labels, then metadata.
	var fields []string
	if local.Subject != remote.Subject {
		fields = append(fields, "subject")
	}
	if local.Body != remote.Body {
		fields = append(fields, "body")
	}
	if len(fields) > 0 {
		return domain.ConflictTypeContent, fields, true
	}

	if !domain.EqualLabelSets(local.Labels, remote.Labels) {
		return domain.ConflictTypeLabels, []string{"labels"}, true
	}

	if local.Read != remote.Read {
		fields = append(fields, "read")
	}
	if local.Starred != remote.Starred {
		fields = append(fields, "starred")
	}
	if local.Importance != remote.Importance {
		fields = append(fields, "importance")
	}
	if attributesDiverge(local.Attributes, remote.Attributes) {
		fields = append(fields, "attributes")
	}
	if len(fields) > 0 {
		return domain.ConflictTypeMetadata, fields, true
	}

	return "", nil, false
}

// attributesDiverge reports whether the per-key attribute maps differ.
func attributesDiverge(a, b map[string]domain.AttributeValue) bool {
	if len(a) != len(b) {
		return true
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || av.Value != bv.Value {
			return true
		}
	}
	return false
}

// Reconcile is the sync-time entrypoint: given the stored local record and
// the freshly fetched remote one, it returns the record to persist. When a
// content conflict needs user input it registers a pending conflict,
// publishes a raised event, and returns nil — the remote value must not
// overwrite local state until the user chooses.
func (r *ConflictResolver) Reconcile(ctx context.Context, local, remote *domain.EmailRecord) (*domain.EmailRecord, error) {
	conflictType, fields, found := DetectConflict(local, remote)
	if !found {
		remote.ClearDirty()
		return remote, nil
	}

	// A standing preference bypasses detection for this type, except content
	// which always requires explicit resolution.
	if conflictType != domain.ConflictTypeContent && r.prefs != nil {
		pref, err := r.prefs.GetPreference(ctx, local.AccountID, conflictType)
		if err == nil {
			return r.applyPreference(ctx, local, remote, conflictType, fields, pref)
		}
		if err != domain.ErrNotFound {
			return nil, fmt.Errorf("load conflict preference: %w", err)
		}
	}

	switch conflictType {
	case domain.ConflictTypeContent:
		r.raisePending(ctx, local, remote, conflictType, fields)
		return nil, nil

	case domain.ConflictTypeLabels:
		resolved, changes := ResolveLabelConflict(local, remote)
		res := r.buildResolution("", local, conflictType, domain.StrategyAutoMerge, resolved, changes, "system")
		if err := r.finalize(ctx, res, local.AccountID); err != nil {
			return nil, err
		}
		return resolved, nil

	default: // metadata
		resolved, changes := ResolveMetadataConflict(local, remote)
		res := r.buildResolution("", local, conflictType, domain.StrategyAutoLWW, resolved, changes, "system")
		if err := r.finalize(ctx, res, local.AccountID); err != nil {
			return nil, err
		}
		return resolved, nil
	}
}

// ResolveLabelConflict merges the two label sets by union, so no label is
// ever silently dropped. Metadata divergence in the same record is folded in
// last-write-wins so it is not lost either. Commutative in the label sets.
func ResolveLabelConflict(local, remote *domain.EmailRecord) (*domain.EmailRecord, []string) {
	resolved, changes := ResolveMetadataConflict(local, remote)

	union := domain.UnionLabels(local.Labels, remote.Labels)
	if !domain.EqualLabelSets(union, remote.Labels) || !domain.EqualLabelSets(union, local.Labels) {
		changes = append(changes,
			fmt.Sprintf("labels: union merged local %v and server %v into %v", local.Labels, remote.Labels, union))
	}
	resolved.Labels = union
	return resolved, changes
}

// ResolveMetadataConflict resolves read/starred/importance last-write-wins
// using the later of the local modification and server timestamps, and
// merges attribute maps per key by recency. The result is based on the
// server record (canonical content) with winning local fields applied.
func ResolveMetadataConflict(local, remote *domain.EmailRecord) (*domain.EmailRecord, []string) {
	resolved := *remote
	var changes []string

	localWins := local.LocalModifiedAt.After(remote.ServerTimestamp)
	if localWins {
		if local.Read != remote.Read {
			resolved.Read = local.Read
			changes = append(changes,
				fmt.Sprintf("read: kept local %v over server %v (local modified later)", local.Read, remote.Read))
		}
		if local.Starred != remote.Starred {
			resolved.Starred = local.Starred
			changes = append(changes,
				fmt.Sprintf("starred: kept local %v over server %v (local modified later)", local.Starred, remote.Starred))
		}
		if local.Importance != remote.Importance {
			resolved.Importance = local.Importance
			changes = append(changes,
				fmt.Sprintf("importance: kept local %q over server %q (local modified later)", local.Importance, remote.Importance))
		}
	} else {
		if local.Read != remote.Read {
			changes = append(changes,
				fmt.Sprintf("read: took server %v over local %v (server newer)", remote.Read, local.Read))
		}
		if local.Starred != remote.Starred {
			changes = append(changes,
				fmt.Sprintf("starred: took server %v over local %v (server newer)", remote.Starred, local.Starred))
		}
		if local.Importance != remote.Importance {
			changes = append(changes,
				fmt.Sprintf("importance: took server %q over local %q (server newer)", remote.Importance, local.Importance))
		}
	}

	merged, attrChanges := mergeAttributes(local, remote)
	resolved.Attributes = merged
	changes = append(changes, attrChanges...)

	resolved.ClearDirty()
	return &resolved, changes
}

// mergeAttributes merges per-key: keys unique to either side are kept,
// overlapping keys resolved by recency.
func mergeAttributes(local, remote *domain.EmailRecord) (map[string]domain.AttributeValue, []string) {
	if len(local.Attributes) == 0 && len(remote.Attributes) == 0 {
		return nil, nil
	}

	merged := make(map[string]domain.AttributeValue, len(local.Attributes)+len(remote.Attributes))
	for k, v := range remote.Attributes {
		merged[k] = v
	}

	var changes []string
	keys := make([]string, 0, len(local.Attributes))
	for k := range local.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		lv := local.Attributes[k]
		rv, ok := merged[k]
		switch {
		case !ok:
			merged[k] = lv
			changes = append(changes, fmt.Sprintf("attribute %q: kept local-only value", k))
		case lv.Value != rv.Value && lv.UpdatedAt.After(rv.UpdatedAt):
			merged[k] = lv
			changes = append(changes, fmt.Sprintf("attribute %q: kept local value (updated later)", k))
		case lv.Value != rv.Value:
			changes = append(changes, fmt.Sprintf("attribute %q: took server value (updated later)", k))
		}
	}
	return merged, changes
}

// applyPreference resolves a non-content conflict via a standing preference.
func (r *ConflictResolver) applyPreference(ctx context.Context, local, remote *domain.EmailRecord, conflictType domain.ConflictType, fields []string, pref *domain.ConflictPreference) (*domain.EmailRecord, error) {
	var resolved *domain.EmailRecord
	if pref.Strategy == domain.StrategyLocal {
		cp := *local
		// The remote snapshot still owns the server timestamp baseline
		cp.ServerTimestamp = remote.ServerTimestamp
		resolved = &cp
	} else {
		cp := *remote
		resolved = &cp
	}
	resolved.ClearDirty()

	changes := []string{fmt.Sprintf("%s: applied standing %q preference to fields %v", conflictType, pref.Strategy, fields)}
	res := r.buildResolution("", local, conflictType, pref.Strategy, resolved, changes, "preference")
	if err := r.finalize(ctx, res, local.AccountID); err != nil {
		return nil, err
	}
	return resolved, nil
}

// ListPending returns unresolved conflicts; empty accountID means all.
func (r *ConflictResolver) ListPending(ctx context.Context, accountID string) ([]*domain.PendingConflict, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.PendingConflict, 0, len(r.pending))
	for _, c := range r.pending {
		if accountID == "" || c.AccountID == accountID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DetectedAt.Before(out[j].DetectedAt) })
	return out, nil
}

// Resolve applies a user-directed choice to a pending conflict. For strategy
// merged the caller supplies the merged record. The resolved record is
// upserted, the pending entry destroyed, and an audit record archived.
func (r *ConflictResolver) Resolve(ctx context.Context, conflictID string, strategy domain.ResolutionStrategy, merged *domain.EmailRecord, resolvedBy string) (*domain.Resolution, error) {
	r.mu.RLock()
	c, ok := r.pending[conflictID]
	r.mu.RUnlock()

	if !ok {
		return nil, domain.ErrNotFound
	}

	var resolved *domain.EmailRecord
	var changes []string
	switch strategy {
	case domain.StrategyLocal:
		cp := *c.Local
		cp.ServerTimestamp = c.Remote.ServerTimestamp
		resolved = &cp
		changes = []string{fmt.Sprintf("%s: user kept local version for fields %v", c.Type, c.Fields)}
	case domain.StrategyServer:
		cp := *c.Remote
		resolved = &cp
		changes = []string{fmt.Sprintf("%s: user kept server version for fields %v", c.Type, c.Fields)}
	case domain.StrategyMerged:
		if merged == nil {
			return nil, domain.ErrInvalidInput
		}
		cp := *merged
		resolved = &cp
		changes = []string{fmt.Sprintf("%s: user supplied merged version for fields %v", c.Type, c.Fields)}
	default:
		return nil, domain.ErrInvalidInput
	}
	resolved.ClearDirty()

	if err := r.emails.Upsert(ctx, resolved); err != nil {
		// The conflict stays pending so the user can retry
		return nil, fmt.Errorf("persist resolved record: %w", err)
	}

	r.mu.Lock()
	delete(r.pending, conflictID)
	r.mu.Unlock()

	res := r.buildResolution(conflictID, c.Local, c.Type, strategy, resolved, changes, resolvedBy)
	if err := r.archive(ctx, res, c.AccountID); err != nil {
		r.logger.Warn("failed to archive conflict resolution", "conflict_id", conflictID, "error", err)
	}
	r.publishResolved(ctx, res, c.AccountID)
	return res, nil
}

// SetPreference pins a standing resolution for a conflict type.
func (r *ConflictResolver) SetPreference(ctx context.Context, pref *domain.ConflictPreference) error {
	if err := pref.Validate(); err != nil {
		return err
	}
	pref.UpdatedAt = r.now()
	return r.prefs.SavePreference(ctx, pref)
}

// raisePending registers a conflict awaiting user resolution.
func (r *ConflictResolver) raisePending(ctx context.Context, local, remote *domain.EmailRecord, conflictType domain.ConflictType, fields []string) {
	lc, rc := *local, *remote
	c := &domain.PendingConflict{
		ID:         uuid.NewString(),
		AccountID:  local.AccountID,
		EmailID:    local.ID,
		Type:       conflictType,
		Local:      &lc,
		Remote:     &rc,
		Fields:     fields,
		DetectedAt: r.now(),
	}

	r.mu.Lock()
	// One pending conflict per email: a newer detection replaces the old one
	for id, existing := range r.pending {
		if existing.EmailID == c.EmailID {
			delete(r.pending, id)
		}
	}
	r.pending[c.ID] = c
	r.mu.Unlock()

	r.logger.Info("conflict raised",
		"account_id", c.AccountID, "email_id", c.EmailID, "type", string(conflictType), "fields", fields)

	if r.bus != nil {
		_ = r.bus.Publish(ctx, domain.Event{
			ID:        uuid.NewString(),
			Category:  domain.EventCategoryConflict,
			Type:      domain.EventConflictRaised,
			AccountID: c.AccountID,
			EmailID:   c.EmailID,
			Payload:   map[string]any{"conflict_id": c.ID, "conflict_type": string(conflictType), "fields": fields},
			At:        r.now(),
		})
	}
}

// buildResolution assembles the structured result of a resolution.
func (r *ConflictResolver) buildResolution(conflictID string, local *domain.EmailRecord, conflictType domain.ConflictType, strategy domain.ResolutionStrategy, resolved *domain.EmailRecord, changes []string, resolvedBy string) *domain.Resolution {
	if conflictID == "" {
		conflictID = uuid.NewString()
	}
	return &domain.Resolution{
		ConflictID: conflictID,
		EmailID:    local.ID,
		Type:       conflictType,
		Strategy:   strategy,
		Resolved:   resolved,
		Changes:    changes,
		ResolvedBy: resolvedBy,
		ResolvedAt: r.now(),
	}
}

// finalize archives an automatic resolution and publishes its event.
func (r *ConflictResolver) finalize(ctx context.Context, res *domain.Resolution, accountID string) error {
	if err := r.archive(ctx, res, accountID); err != nil {
		r.logger.Warn("failed to archive conflict resolution", "email_id", res.EmailID, "error", err)
	}
	r.publishResolved(ctx, res, accountID)
	return nil
}

// archive writes the immutable audit record.
func (r *ConflictResolver) archive(ctx context.Context, res *domain.Resolution, accountID string) error {
	if r.audit == nil {
		return nil
	}
	return r.audit.Append(ctx, &domain.ConflictAudit{
		ID:         uuid.NewString(),
		AccountID:  accountID,
		EmailID:    res.EmailID,
		Type:       res.Type,
		Strategy:   res.Strategy,
		Changes:    res.Changes,
		ResolvedBy: res.ResolvedBy,
		ResolvedAt: res.ResolvedAt,
	})
}

// publishResolved emits the conflict-resolved event.
func (r *ConflictResolver) publishResolved(ctx context.Context, res *domain.Resolution, accountID string) {
	if r.bus == nil {
		return
	}
	_ = r.bus.Publish(ctx, domain.Event{
		ID:        uuid.NewString(),
		Category:  domain.EventCategoryConflict,
		Type:      domain.EventConflictResolved,
		AccountID: accountID,
		EmailID:   res.EmailID,
		Payload: map[string]any{
			"conflict_id": res.ConflictID,
			"strategy":    string(res.Strategy),
			"changes":     res.Changes,
		},
		At: r.now(),
	})
}
