package models

import "time"

// Audit categories and actions written by the upload and compliance pipeline.
const (
	AuditCategoryDocs      = "docs"
	AuditCategoryRetention = "retention"

	AuditActionPresign       = "presign"
	AuditActionConfirm       = "confirm"
	AuditActionScanClean     = "scan_clean"
	AuditActionScanInfected  = "scan_infected"
	AuditActionScanRejected  = "scan_rejected"
	AuditActionRetentionMask = "retention_mask"
	AuditActionRetentionDel  = "retention_delete"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID          string    `db:"id" json:"id"`
	Category    string    `db:"category" json:"category"`
	ActorUserID *string   `db:"actor_user_id" json:"actorUserId,omitempty"`
	Action      string    `db:"action" json:"action"`
	TargetType  string    `db:"target_type" json:"targetType"`
	TargetID    string    `db:"target_id" json:"targetId"`
	Details     []byte    `db:"details_json" json:"-"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}
