package services

import (
	"context"
	"testing"
	"time"

	"github.com/custodia-labs/mailsync-core/internal/core/domain"
	"github.com/custodia-labs/mailsync-core/internal/core/ports/driven/mocks"
)

// newTestConflictResolver wires a resolver over mocks
func newTestConflictResolver(t *testing.T) (*ConflictResolver, *mocks.MockEmailStore, *mocks.MockAuditStore, *mocks.MockPreferenceStore, *mocks.MockEventBus) {
	t.Helper()

	emails := mocks.NewMockEmailStore()
	audit := mocks.NewMockAuditStore()
	prefs := mocks.NewMockPreferenceStore()
	bus := mocks.NewMockEventBus()

	r := NewConflictResolver(ConflictResolverConfig{
		EmailStore: emails,
		AuditStore: audit,
		PrefStore:  prefs,
		Bus:        bus,
	})
	return r, emails, audit, prefs, bus
}

var conflictBase = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// conflictPair builds a dirty local record and a remote record where the
// local edit is newer than the server timestamp
func conflictPair() (*domain.EmailRecord, *domain.EmailRecord) {
	local := &domain.EmailRecord{
		ID:              "gmail:1",
		AccountID:       "acc-1",
		Subject:         "hello",
		Body:            "body",
		Labels:          []string{"inbox", "work"},
		Read:            true,
		ServerTimestamp: conflictBase,
		LocalModifiedAt: conflictBase.Add(time.Minute),
	}
	remote := &domain.EmailRecord{
		ID:              "gmail:1",
		AccountID:       "acc-1",
		Subject:         "hello",
		Body:            "body",
		Labels:          []string{"inbox", "work"},
		Read:            true,
		ServerTimestamp: conflictBase,
	}
	return local, remote
}

// TestDetectConflict_RequiresDirtyLocal tests the detection precondition
func TestDetectConflict_RequiresDirtyLocal(t *testing.T) {
	local, remote := conflictPair()
	local.ClearDirty()
	remote.Subject = "changed upstream"

	if _, _, found := DetectConflict(local, remote); found {
		t.Error("clean local record can never conflict")
	}
}

// TestDetectConflict_ServerNewerWins tests that a newer server version is no conflict
func TestDetectConflict_ServerNewerWins(t *testing.T) {
	local, remote := conflictPair()
	remote.Subject = "changed upstream"
	remote.ServerTimestamp = local.LocalModifiedAt.Add(time.Minute)

	if _, _, found := DetectConflict(local, remote); found {
		t.Error("server newer than local edit is not a conflict")
	}
}

// TestDetectConflict_EqualTimestampsFavorServer tests the tie-break
func TestDetectConflict_EqualTimestampsFavorServer(t *testing.T) {
	local, remote := conflictPair()
	remote.Subject = "changed upstream"
	remote.ServerTimestamp = local.LocalModifiedAt

	if _, _, found := DetectConflict(local, remote); found {
		t.Error("equal timestamps must not raise a conflict")
	}
}

// TestDetectConflict_NoDivergence tests dirty-but-identical records
func TestDetectConflict_NoDivergence(t *testing.T) {
	local, remote := conflictPair()
	if _, _, found := DetectConflict(local, remote); found {
		t.Error("identical field values are not a conflict")
	}
}

// TestDetectConflict_PriorityOrder tests content > labels > metadata
func TestDetectConflict_PriorityOrder(t *testing.T) {
	// All three groups diverge: content wins
	local, remote := conflictPair()
	remote.Body = "server body"
	remote.Labels = []string{"inbox"}
	remote.Read = false
	typ, fields, found := DetectConflict(local, remote)
	if !found || typ != domain.ConflictTypeContent {
		t.Fatalf("expected content conflict, got %s found=%v", typ, found)
	}
	if len(fields) != 1 || fields[0] != "body" {
		t.Errorf("expected [body], got %v", fields)
	}

	// Labels and metadata diverge: labels win
	local, remote = conflictPair()
	remote.Labels = []string{"inbox"}
	remote.Read = false
	typ, _, found = DetectConflict(local, remote)
	if !found || typ != domain.ConflictTypeLabels {
		t.Fatalf("expected labels conflict, got %s", typ)
	}

	// Only metadata diverges
	local, remote = conflictPair()
	remote.Starred = true
	typ, fields, found = DetectConflict(local, remote)
	if !found || typ != domain.ConflictTypeMetadata {
		t.Fatalf("expected metadata conflict, got %s", typ)
	}
	if len(fields) != 1 || fields[0] != "starred" {
		t.Errorf("expected [starred], got %v", fields)
	}
}

// TestResolveLabelConflict_UnionMerge tests that no label is ever dropped
func TestResolveLabelConflict_UnionMerge(t *testing.T) {
	local, remote := conflictPair()
	local.Labels = []string{"inbox", "local-tag"}
	remote.Labels = []string{"inbox", "server-tag"}

	resolved, changes := ResolveLabelConflict(local, remote)

	want := []string{"inbox", "local-tag", "server-tag"}
	if !domain.EqualLabelSets(resolved.Labels, want) {
		t.Errorf("expected union %v, got %v", want, resolved.Labels)
	}
	if len(changes) == 0 {
		t.Error("expected a change entry for the merge")
	}
	if resolved.Dirty() {
		t.Error("resolution must clear the dirty marker")
	}

	// Union is commutative
	flipped, _ := ResolveLabelConflict(remote, local)
	if !domain.EqualLabelSets(flipped.Labels, resolved.Labels) {
		t.Error("union merge must be order-independent")
	}
}

// TestResolveMetadataConflict_LocalNewer tests LWW keeping local flags
func TestResolveMetadataConflict_LocalNewer(t *testing.T) {
	local, remote := conflictPair()
	local.Read = false
	local.Starred = true
	remote.Read = true
	remote.Starred = false

	resolved, changes := ResolveMetadataConflict(local, remote)
	if resolved.Read != false || resolved.Starred != true {
		t.Errorf("expected local flags kept, got read=%v starred=%v", resolved.Read, resolved.Starred)
	}
	if len(changes) != 2 {
		t.Errorf("expected 2 change entries, got %v", changes)
	}
	if resolved.Dirty() {
		t.Error("resolution must clear the dirty marker")
	}
}

// TestResolveMetadataConflict_ServerNewer tests LWW taking server flags
func TestResolveMetadataConflict_ServerNewer(t *testing.T) {
	local, remote := conflictPair()
	local.Starred = true
	remote.Starred = false
	remote.ServerTimestamp = local.LocalModifiedAt.Add(time.Hour)

	resolved, _ := ResolveMetadataConflict(local, remote)
	if resolved.Starred {
		t.Error("expected server value for newer server timestamp")
	}
}

// TestResolveMetadataConflict_AttributeMerge tests per-key attribute LWW
func TestResolveMetadataConflict_AttributeMerge(t *testing.T) {
	local, remote := conflictPair()
	local.Attributes = map[string]domain.AttributeValue{
		"color":      {Value: "red", UpdatedAt: conflictBase.Add(time.Minute)},
		"local-only": {Value: "x", UpdatedAt: conflictBase},
	}
	remote.Attributes = map[string]domain.AttributeValue{
		"color":       {Value: "blue", UpdatedAt: conflictBase},
		"server-only": {Value: "y", UpdatedAt: conflictBase},
	}

	resolved, _ := ResolveMetadataConflict(local, remote)

	if resolved.Attributes["color"].Value != "red" {
		t.Errorf("expected newer local value, got %s", resolved.Attributes["color"].Value)
	}
	if resolved.Attributes["local-only"].Value != "x" {
		t.Error("local-only key must survive")
	}
	if resolved.Attributes["server-only"].Value != "y" {
		t.Error("server-only key must survive")
	}
}

// TestReconcile_NoConflictTakesRemote tests the uncontested path
func TestReconcile_NoConflictTakesRemote(t *testing.T) {
	r, _, audit, _, bus := newTestConflictResolver(t)
	local, remote := conflictPair()
	local.ClearDirty()
	remote.Subject = "upstream"

	got, err := r.Reconcile(context.Background(), local, remote)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if got.Subject != "upstream" {
		t.Error("expected the remote record back")
	}
	if audit.Len() != 0 || len(bus.Published()) != 0 {
		t.Error("no conflict means no audit and no events")
	}
}

// TestReconcile_ContentConflictPendsForUser tests that content is never auto-resolved
func TestReconcile_ContentConflictPendsForUser(t *testing.T) {
	r, _, _, _, bus := newTestConflictResolver(t)
	local, remote := conflictPair()
	remote.Body = "server body"

	got, err := r.Reconcile(context.Background(), local, remote)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if got != nil {
		t.Fatal("content conflict must not overwrite local state")
	}

	pending, _ := r.ListPending(context.Background(), "acc-1")
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending conflict, got %d", len(pending))
	}
	if pending[0].Type != domain.ConflictTypeContent {
		t.Errorf("expected content type, got %s", pending[0].Type)
	}
	if pending[0].Local == nil || pending[0].Remote == nil {
		t.Error("pending conflict must carry both snapshots")
	}

	raised := bus.PublishedOfType(domain.EventConflictRaised)
	if len(raised) != 1 {
		t.Errorf("expected a raised event, got %d", len(raised))
	}
}

// TestReconcile_LabelsAutoMerge tests the automatic union resolution path
func TestReconcile_LabelsAutoMerge(t *testing.T) {
	r, _, audit, _, bus := newTestConflictResolver(t)
	local, remote := conflictPair()
	local.Labels = []string{"inbox", "local-tag"}
	remote.Labels = []string{"inbox", "server-tag"}

	got, err := r.Reconcile(context.Background(), local, remote)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !domain.EqualLabelSets(got.Labels, []string{"inbox", "local-tag", "server-tag"}) {
		t.Errorf("expected union, got %v", got.Labels)
	}

	if audit.Len() != 1 {
		t.Fatalf("expected 1 audit record, got %d", audit.Len())
	}
	last := audit.Last()
	if last.Strategy != domain.StrategyAutoMerge {
		t.Errorf("expected auto-merge strategy, got %s", last.Strategy)
	}
	if len(bus.PublishedOfType(domain.EventConflictResolved)) != 1 {
		t.Error("expected a resolved event")
	}
}

// TestReconcile_MetadataAutoLWW tests the automatic LWW resolution path
func TestReconcile_MetadataAutoLWW(t *testing.T) {
	r, _, audit, _, _ := newTestConflictResolver(t)
	local, remote := conflictPair()
	local.Starred = true

	got, err := r.Reconcile(context.Background(), local, remote)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !got.Starred {
		t.Error("expected newer local flag kept")
	}
	if audit.Last().Strategy != domain.StrategyAutoLWW {
		t.Errorf("expected auto-lww, got %s", audit.Last().Strategy)
	}
}

// TestReconcile_PreferenceBypassesDetection tests standing preferences
func TestReconcile_PreferenceBypassesDetection(t *testing.T) {
	r, _, audit, prefs, _ := newTestConflictResolver(t)
	ctx := context.Background()

	prefs.SavePreference(ctx, &domain.ConflictPreference{
		AccountID: "acc-1",
		Type:      domain.ConflictTypeLabels,
		Strategy:  domain.StrategyServer,
	})

	local, remote := conflictPair()
	local.Labels = []string{"inbox", "local-tag"}
	remote.Labels = []string{"inbox"}

	got, err := r.Reconcile(ctx, local, remote)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !domain.EqualLabelSets(got.Labels, []string{"inbox"}) {
		t.Errorf("server preference must discard the local tag, got %v", got.Labels)
	}
	if audit.Last().Strategy != domain.StrategyServer {
		t.Errorf("expected server strategy in audit, got %s", audit.Last().Strategy)
	}
}

// TestReconcile_ContentIgnoresPreference tests that content always pends
func TestReconcile_ContentIgnoresPreference(t *testing.T) {
	r, _, _, prefs, _ := newTestConflictResolver(t)
	ctx := context.Background()

	// A labels preference must not leak onto content conflicts
	prefs.SavePreference(ctx, &domain.ConflictPreference{
		AccountID: "acc-1",
		Type:      domain.ConflictTypeLabels,
		Strategy:  domain.StrategyServer,
	})

	local, remote := conflictPair()
	remote.Body = "server body"

	got, err := r.Reconcile(ctx, local, remote)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if got != nil {
		t.Error("content conflicts require explicit resolution regardless of preferences")
	}
}

// TestResolve_UserChoices tests manual resolution strategies
func TestResolve_UserChoices(t *testing.T) {
	r, emails, audit, _, bus := newTestConflictResolver(t)
	ctx := context.Background()

	raise := func() string {
		t.Helper()
		local, remote := conflictPair()
		local.Body = "local body"
		remote.Body = "server body"
		if got, _ := r.Reconcile(ctx, local, remote); got != nil {
			t.Fatal("expected pending conflict")
		}
		pending, _ := r.ListPending(ctx, "acc-1")
		return pending[len(pending)-1].ID
	}

	// Keep local
	id := raise()
	res, err := r.Resolve(ctx, id, domain.StrategyLocal, nil, "user-1")
	if err != nil {
		t.Fatalf("Resolve local: %v", err)
	}
	if res.Resolved.Body != "local body" {
		t.Error("expected local body kept")
	}
	stored, _ := emails.Get(ctx, "gmail:1")
	if stored.Body != "local body" || stored.Dirty() {
		t.Error("expected clean local version persisted")
	}

	// Keep server
	id = raise()
	res, err = r.Resolve(ctx, id, domain.StrategyServer, nil, "user-1")
	if err != nil {
		t.Fatalf("Resolve server: %v", err)
	}
	if res.Resolved.Body != "server body" {
		t.Error("expected server body kept")
	}

	// Merged version supplied by the user
	id = raise()
	merged := &domain.EmailRecord{ID: "gmail:1", AccountID: "acc-1", Body: "merged body"}
	res, err = r.Resolve(ctx, id, domain.StrategyMerged, merged, "user-1")
	if err != nil {
		t.Fatalf("Resolve merged: %v", err)
	}
	if res.Resolved.Body != "merged body" {
		t.Error("expected merged body")
	}

	// Pending registry is empty, audits and events accumulated
	pending, _ := r.ListPending(ctx, "")
	if len(pending) != 0 {
		t.Errorf("expected no pending conflicts, got %d", len(pending))
	}
	if audit.Len() != 3 {
		t.Errorf("expected 3 audit records, got %d", audit.Len())
	}
	if len(bus.PublishedOfType(domain.EventConflictResolved)) != 3 {
		t.Error("expected 3 resolved events")
	}
}

// TestResolve_Validation tests bad manual resolutions
func TestResolve_Validation(t *testing.T) {
	r, _, _, _, _ := newTestConflictResolver(t)
	ctx := context.Background()

	if _, err := r.Resolve(ctx, "missing", domain.StrategyLocal, nil, "user-1"); err != domain.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	local, remote := conflictPair()
	remote.Body = "server body"
	r.Reconcile(ctx, local, remote)
	pending, _ := r.ListPending(ctx, "acc-1")
	id := pending[0].ID

	if _, err := r.Resolve(ctx, id, domain.StrategyMerged, nil, "user-1"); err != domain.ErrInvalidInput {
		t.Errorf("merged without a record: expected ErrInvalidInput, got %v", err)
	}
}

// TestSetPreference_RejectsContent tests preference validation
func TestSetPreference_RejectsContent(t *testing.T) {
	r, _, _, _, _ := newTestConflictResolver(t)
	ctx := context.Background()

	err := r.SetPreference(ctx, &domain.ConflictPreference{
		AccountID: "acc-1",
		Type:      domain.ConflictTypeContent,
		Strategy:  domain.StrategyServer,
	})
	if err != domain.ErrConflictUnresolvable {
		t.Errorf("expected ErrConflictUnresolvable, got %v", err)
	}

	err = r.SetPreference(ctx, &domain.ConflictPreference{
		AccountID: "acc-1",
		Type:      domain.ConflictTypeMetadata,
		Strategy:  domain.StrategyLocal,
	})
	if err != nil {
		t.Errorf("valid preference rejected: %v", err)
	}
}

// TestReconcile_NewConflictReplacesOld tests one pending conflict per email
func TestReconcile_NewConflictReplacesOld(t *testing.T) {
	r, _, _, _, _ := newTestConflictResolver(t)
	ctx := context.Background()

	local, remote := conflictPair()
	remote.Body = "server body v1"
	r.Reconcile(ctx, local, remote)

	local2, remote2 := conflictPair()
	remote2.Body = "server body v2"
	r.Reconcile(ctx, local2, remote2)

	pending, _ := r.ListPending(ctx, "acc-1")
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending conflict per email, got %d", len(pending))
	}
	if pending[0].Remote.Body != "server body v2" {
		t.Error("expected the newer detection to replace the old one")
	}
}
