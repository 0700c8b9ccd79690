package models

import "time"

// RetentionAction is the compliance action applied to an expired entity.
type RetentionAction string

const (
	RetentionActionMask   RetentionAction = "Mask"
	RetentionActionDelete RetentionAction = "Delete"
)

// Retention categories known to the policy table.
const (
	RetentionCategoryMessages        = "messages"
	RetentionCategoryRecordings      = "recordings"
	RetentionCategoryMedical         = "medical"
	RetentionCategoryHighSensitivity = "high-sensitivity"
)

// RedactedValue overwrites masked fields.
const RedactedValue = "[REDACTED]"

// RetentionQueueEntry is a scheduled compliance action. Rows are never deleted.
type RetentionQueueEntry struct {
	ID          string          `db:"id" json:"id"`
	Category    string          `db:"category" json:"category"`
	TargetID    string          `db:"target_id" json:"targetId"`
	Action      RetentionAction `db:"action" json:"action"`
	EnqueuedAt  time.Time       `db:"enqueued_at" json:"enqueuedAt"`
	ProcessedAt *time.Time      `db:"processed_at" json:"processedAt,omitempty"`
}

// RetentionCandidate is a source entity that aged past a retention window.
type RetentionCandidate struct {
	ID   string `db:"id"`
	Name string `db:"name"`
}

// RetentionQueueFilter narrows audit trail listings.
type RetentionQueueFilter struct {
	Category    string
	OnlyPending bool
	Limit       int
	Offset      int
}
