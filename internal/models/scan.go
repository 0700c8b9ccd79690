package models

import "time"

// ScanSummary reports the outcome of one antivirus pass.
type ScanSummary struct {
	Scanned  int `json:"scanned"`
	Clean    int `json:"clean"`
	Infected int `json:"infected"`
	Rejected int `json:"rejected"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
	// Awaiting counts uploads whose file has not reached quarantine yet.
	Awaiting int           `json:"awaiting"`
	Duration time.Duration `json:"duration"`
}

// RetentionSummary reports the outcome of one retention pass.
type RetentionSummary struct {
	Enqueued         int            `json:"enqueued"`
	Executed         int            `json:"executed"`
	AlreadySatisfied int            `json:"alreadySatisfied"`
	Failed           int            `json:"failed"`
	ByCategory       map[string]int `json:"byCategory,omitempty"`
	Duration         time.Duration  `json:"duration"`
}

// ReconcileIssue types reported by the reconciliation check.
const (
	ReconcileOrphanedQuarantine = "orphaned_quarantine"
	ReconcileMissingCleanFile   = "missing_clean_file"
)

// ReconcileIssue describes one storage/database inconsistency.
type ReconcileIssue struct {
	Type     string `json:"type"`
	Path     string `json:"path"`
	UploadID string `json:"uploadId,omitempty"`
}

// ReconcileSummary reports the outcome of one reconciliation pass.
type ReconcileSummary struct {
	Issues   []ReconcileIssue `json:"issues"`
	Duration time.Duration    `json:"duration"`
}
