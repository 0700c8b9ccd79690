package models

import "time"

// UploadStatus tracks the antivirus lifecycle of an upload.
type UploadStatus string

const (
	UploadStatusPending  UploadStatus = "pending"
	UploadStatusClean    UploadStatus = "clean"
	UploadStatusInfected UploadStatus = "infected"
	UploadStatusRejected UploadStatus = "rejected"
)

// Terminal reports whether the status is a final verdict.
func (s UploadStatus) Terminal() bool {
	return s == UploadStatusClean || s == UploadStatusInfected || s == UploadStatusRejected
}

// Upload represents one case-linked file artifact.
type Upload struct {
	ID           string       `db:"id" json:"id"`
	CaseID       string       `db:"case_id" json:"caseId"`
	OriginalName string       `db:"original_name" json:"originalName"`
	Mime         string       `db:"mime" json:"mime"`
	SizeBytes    int64        `db:"size_bytes" json:"sizeBytes"`
	Key          string       `db:"key" json:"key"`
	Status       UploadStatus `db:"status" json:"status"`
	StorageURL   *string      `db:"storage_url" json:"storageUrl,omitempty"`
	VerdictAt    *time.Time   `db:"verdict_at" json:"verdictAt,omitempty"`
	CreatedAt    time.Time    `db:"created_at" json:"createdAt"`
}

// UploadVerdict carries the terminal scan outcome written once per upload.
type UploadVerdict struct {
	Status     UploadStatus
	StorageURL *string
	VerdictAt  time.Time
}
