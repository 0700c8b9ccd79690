package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/casevault-api/internal/models"
)

// InterviewSessionRepository exposes the retention-relevant operations on interview recordings.
type InterviewSessionRepository struct {
	db *sqlx.DB
}

// NewInterviewSessionRepository constructs the repository.
func NewInterviewSessionRepository(db *sqlx.DB) *InterviewSessionRepository {
	return &InterviewSessionRepository{db: db}
}

// ListFinishedBefore returns sessions that finished strictly before cutoff.
// Sessions still in progress are never candidates.
func (r *InterviewSessionRepository) ListFinishedBefore(ctx context.Context, cutoff time.Time) ([]models.RetentionCandidate, error) {
	const query = `SELECT id, COALESCE(recording_url, '') AS name FROM interview_sessions
	WHERE finished_at IS NOT NULL AND finished_at < $1 ORDER BY finished_at ASC`
	var candidates []models.RetentionCandidate
	if err := r.db.SelectContext(ctx, &candidates, query, cutoff); err != nil {
		return nil, fmt.Errorf("list expired interview sessions: %w", err)
	}
	return candidates, nil
}

// Mask overwrites the recording reference.
func (r *InterviewSessionRepository) Mask(ctx context.Context, id string) error {
	const query = `UPDATE interview_sessions
	SET recording_url = CASE WHEN recording_url IS NULL THEN NULL ELSE $2 END WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, models.RedactedValue)
	if err != nil {
		return fmt.Errorf("mask interview session: %w", err)
	}
	return requireAffected(res, "mask interview session")
}

// Delete removes the session.
func (r *InterviewSessionRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM interview_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete interview session: %w", err)
	}
	return requireAffected(res, "delete interview session")
}
