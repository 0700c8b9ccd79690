package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/casevault-api/internal/models"
)

const retentionColumns = `id, category, target_id, action, enqueued_at, processed_at`

// RetentionRepository persists the retention queue. Entries are never deleted so
// the table doubles as the compliance audit trail.
type RetentionRepository struct {
	db *sqlx.DB
}

// NewRetentionRepository constructs the repository.
func NewRetentionRepository(db *sqlx.DB) *RetentionRepository {
	return &RetentionRepository{db: db}
}

// Enqueue inserts an entry unless an unprocessed one already exists for the same
// category and target. It reports whether a row was written.
func (r *RetentionRepository) Enqueue(ctx context.Context, entry *models.RetentionQueueEntry) (bool, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.EnqueuedAt.IsZero() {
		entry.EnqueuedAt = time.Now().UTC()
	}
	const query = `INSERT INTO retention_queue (id, category, target_id, action, enqueued_at, processed_at)
	VALUES (:id, :category, :target_id, :action, :enqueued_at, NULL)
	ON CONFLICT (category, target_id) WHERE processed_at IS NULL DO NOTHING`
	res, err := r.db.NamedExecContext(ctx, query, entry)
	if err != nil {
		return false, fmt.Errorf("enqueue retention entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check retention enqueue rows: %w", err)
	}
	return affected > 0, nil
}

// ListUnprocessed returns pending entries, oldest first.
func (r *RetentionRepository) ListUnprocessed(ctx context.Context, limit int) ([]models.RetentionQueueEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 500
	}
	const query = `SELECT ` + retentionColumns + ` FROM retention_queue
	WHERE processed_at IS NULL ORDER BY enqueued_at ASC LIMIT $1`
	var entries []models.RetentionQueueEntry
	if err := r.db.SelectContext(ctx, &entries, query, limit); err != nil {
		return nil, fmt.Errorf("list unprocessed retention entries: %w", err)
	}
	return entries, nil
}

// MarkProcessed stamps an entry as done. Only unprocessed entries are touched;
// sql.ErrNoRows means another executor got there first.
func (r *RetentionRepository) MarkProcessed(ctx context.Context, id string, processedAt time.Time) error {
	const query = `UPDATE retention_queue SET processed_at = $2 WHERE id = $1 AND processed_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, processedAt)
	if err != nil {
		return fmt.Errorf("mark retention entry processed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check retention processed rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// List returns queue entries for the audit trail.
func (r *RetentionRepository) List(ctx context.Context, filter models.RetentionQueueFilter) ([]models.RetentionQueueEntry, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + retentionColumns + ` FROM retention_queue`)
	args := make([]interface{}, 0, 1)
	conditions := make([]string, 0, 2)

	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.OnlyPending {
		conditions = append(conditions, "processed_at IS NULL")
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY enqueued_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var entries []models.RetentionQueueEntry
	if err := r.db.SelectContext(ctx, &entries, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list retention entries: %w", err)
	}
	return entries, nil
}
