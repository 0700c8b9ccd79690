package models

import "time"

// MessageThread is a case conversation between staff and client.
type MessageThread struct {
	ID        string    `db:"id" json:"id"`
	CaseID    string    `db:"case_id" json:"caseId"`
	Subject   string    `db:"subject" json:"subject"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// InterviewSession is a recorded client interview.
type InterviewSession struct {
	ID           string     `db:"id" json:"id"`
	CaseID       string     `db:"case_id" json:"caseId"`
	RecordingURL *string    `db:"recording_url" json:"recordingUrl,omitempty"`
	StartedAt    time.Time  `db:"started_at" json:"startedAt"`
	FinishedAt   *time.Time `db:"finished_at" json:"finishedAt,omitempty"`
}
