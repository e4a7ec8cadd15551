package domain

import "time"

// ConflictType classifies a local/remote divergence by the highest-priority
// field group that differs: content > labels > metadata.
type ConflictType string

const (
	// ConflictTypeContent covers subject/body divergence; never auto-resolved
	ConflictTypeContent ConflictType = "content"
	// ConflictTypeLabels covers label-set asymmetry; auto-resolved by union merge
	ConflictTypeLabels ConflictType = "labels"
	// ConflictTypeMetadata covers read/starred/importance; auto-resolved last-write-wins
	ConflictTypeMetadata ConflictType = "metadata"
)

// ResolutionStrategy names how a conflict was (or must be) resolved
type ResolutionStrategy string

const (
	StrategyAutoLWW   ResolutionStrategy = "auto-lww"
	StrategyAutoMerge ResolutionStrategy = "auto-merge"
	StrategyLocal     ResolutionStrategy = "local"
	StrategyServer    ResolutionStrategy = "server"
	StrategyMerged    ResolutionStrategy = "merged"
)

// PendingConflict is a transient record of a detected divergence, created
// before the remote value overwrites local state and destroyed on resolution.
type PendingConflict struct {
	ID         string       `json:"id"`
	AccountID  string       `json:"account_id"`
	EmailID    string       `json:"email_id"`
	Type       ConflictType `json:"type"`
	Local      *EmailRecord `json:"local"`
	Remote     *EmailRecord `json:"remote"`
	Fields     []string     `json:"fields"`
	DetectedAt time.Time    `json:"detected_at"`
}

// Resolution is the structured outcome of resolving a conflict.
type Resolution struct {
	ConflictID string             `json:"conflict_id"`
	EmailID    string             `json:"email_id"`
	Type       ConflictType       `json:"type"`
	Strategy   ResolutionStrategy `json:"strategy"`
	Resolved   *EmailRecord       `json:"resolved"`

	// Changes is a human-readable list of exactly which fields changed and
	// why. This is what gets written to the audit trail.
	Changes []string `json:"changes"`

	ResolvedBy string    `json:"resolved_by"` // "system" or a user id
	ResolvedAt time.Time `json:"resolved_at"`
}

// ConflictAudit is the immutable archived record of a resolved conflict.
type ConflictAudit struct {
	ID         string             `json:"id"`
	AccountID  string             `json:"account_id"`
	EmailID    string             `json:"email_id"`
	Type       ConflictType       `json:"type"`
	Strategy   ResolutionStrategy `json:"strategy"`
	Changes    []string           `json:"changes"`
	ResolvedBy string             `json:"resolved_by"`
	ResolvedAt time.Time          `json:"resolved_at"`
}

// ConflictPreference lets a user pin a standing resolution for a conflict
// type. Content conflicts always require explicit resolution, so a content
// preference is invalid.
type ConflictPreference struct {
	AccountID string             `json:"account_id"`
	Type      ConflictType       `json:"type"`
	Strategy  ResolutionStrategy `json:"strategy"` // StrategyLocal or StrategyServer
	UpdatedAt time.Time          `json:"updated_at"`
}

// Validate checks that the preference is expressible.
func (p ConflictPreference) Validate() error {
	if p.Type == ConflictTypeContent {
		return ErrConflictUnresolvable
	}
	if p.Strategy != StrategyLocal && p.Strategy != StrategyServer {
		return ErrInvalidInput
	}
	return nil
}
