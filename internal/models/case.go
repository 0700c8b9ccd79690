package models

// Case statuses that accept uploads.
const (
	CaseStatusActive = "active"
	CaseStatusPaid   = "paid"
)

// Case is the subset of case data the upload path needs.
type Case struct {
	ID           string `db:"id" json:"id"`
	ClientUserID string `db:"client_user_id" json:"clientUserId"`
	Status       string `db:"status" json:"status"`
}

// AcceptsUploads reports whether documents may be attached to the case.
func (c *Case) AcceptsUploads() bool {
	return c != nil && (c.Status == CaseStatusActive || c.Status == CaseStatusPaid)
}
