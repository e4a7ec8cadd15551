package domain

import (
	"sort"
	"time"
)

// EmailRecord is the provider-agnostic representation of a message stored in
// the local document store. IDs are namespaced by provider so they are
// globally unique across accounts (e.g. "gmail:18c2...", "outlook:AAMk...").
type EmailRecord struct {
	ID        string       `json:"id"`
	AccountID string       `json:"account_id"`
	Provider  ProviderType `json:"provider"`
	ThreadID  string       `json:"thread_id,omitempty"`

	From    string   `json:"from"`
	To      []string `json:"to,omitempty"`
	Cc      []string `json:"cc,omitempty"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
	Snippet string   `json:"snippet,omitempty"`

	Labels     []string `json:"labels,omitempty"`
	Read       bool     `json:"read"`
	Starred    bool     `json:"starred"`
	Importance string   `json:"importance,omitempty"`
	Draft      bool     `json:"draft"`

	HasAttachments bool `json:"has_attachments"`

	// Attributes holds user-defined key/value metadata. Survives bankruptcy
	// resets and is merged per-key on conflict.
	Attributes map[string]AttributeValue `json:"attributes,omitempty"`

	// DeltaHint is an optional provider cursor hint attached to the record
	DeltaHint string `json:"delta_hint,omitempty"`

	// ServerTimestamp is the last known remote modification time
	ServerTimestamp time.Time `json:"server_timestamp"`

	// LocalModifiedAt is set when a local edit has not been pushed yet.
	// Zero means the record is clean.
	LocalModifiedAt time.Time `json:"local_modified_at,omitempty"`

	ReceivedAt time.Time `json:"received_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// AttributeValue is a timestamped user attribute, merged last-write-wins per key.
type AttributeValue struct {
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Dirty reports whether the record carries an uncommitted local modification.
func (e *EmailRecord) Dirty() bool {
	return !e.LocalModifiedAt.IsZero()
}

// ClearDirty removes the uncommitted-modification marker.
func (e *EmailRecord) ClearDirty() {
	e.LocalModifiedAt = time.Time{}
}

// HasLabel reports whether the record carries the given label.
func (e *EmailRecord) HasLabel(label string) bool {
	for _, l := range e.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// UnionLabels returns the sorted union of two label sets with no duplicates.
func UnionLabels(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, l := range a {
		seen[l] = struct{}{}
	}
	for _, l := range b {
		seen[l] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// EqualLabelSets reports whether two label slices contain the same labels,
// ignoring order and duplicates.
func EqualLabelSets(a, b []string) bool {
	as := make(map[string]struct{}, len(a))
	for _, l := range a {
		as[l] = struct{}{}
	}
	bs := make(map[string]struct{}, len(b))
	for _, l := range b {
		bs[l] = struct{}{}
	}
	if len(as) != len(bs) {
		return false
	}
	for l := range as {
		if _, ok := bs[l]; !ok {
			return false
		}
	}
	return true
}
