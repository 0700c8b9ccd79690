package dto

// RetentionQueueQuery captures the audit trail filters.
type RetentionQueueQuery struct {
	Category    string `form:"category"`
	OnlyPending bool   `form:"pending"`
	Format      string `form:"format"`
	Limit       int    `form:"limit"`
	Offset      int    `form:"offset"`
}
