package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/casevault-api/internal/models"
)

// MessageThreadRepository exposes the retention-relevant operations on case message threads.
type MessageThreadRepository struct {
	db *sqlx.DB
}

// NewMessageThreadRepository constructs the repository.
func NewMessageThreadRepository(db *sqlx.DB) *MessageThreadRepository {
	return &MessageThreadRepository{db: db}
}

// ListCreatedBefore returns threads created strictly before cutoff.
func (r *MessageThreadRepository) ListCreatedBefore(ctx context.Context, cutoff time.Time) ([]models.RetentionCandidate, error) {
	const query = `SELECT id, subject AS name FROM message_threads WHERE created_at < $1 ORDER BY created_at ASC`
	var candidates []models.RetentionCandidate
	if err := r.db.SelectContext(ctx, &candidates, query, cutoff); err != nil {
		return nil, fmt.Errorf("list expired message threads: %w", err)
	}
	return candidates, nil
}

// Mask overwrites the thread subject.
func (r *MessageThreadRepository) Mask(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE message_threads SET subject = $2 WHERE id = $1`, id, models.RedactedValue)
	if err != nil {
		return fmt.Errorf("mask message thread: %w", err)
	}
	return requireAffected(res, "mask message thread")
}

// Delete removes the thread.
func (r *MessageThreadRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM message_threads WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete message thread: %w", err)
	}
	return requireAffected(res, "delete message thread")
}

func requireAffected(res sql.Result, op string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check %s rows: %w", op, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
