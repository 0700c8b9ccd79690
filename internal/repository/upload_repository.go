package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/casevault-api/internal/models"
)

const uploadColumns = `id, case_id, original_name, mime, size_bytes, key, status, storage_url, verdict_at, created_at`

// UploadRepository persists upload records and their scan verdicts.
type UploadRepository struct {
	db *sqlx.DB
}

// NewUploadRepository constructs the repository.
func NewUploadRepository(db *sqlx.DB) *UploadRepository {
	return &UploadRepository{db: db}
}

// Create inserts a pending upload.
func (r *UploadRepository) Create(ctx context.Context, upload *models.Upload) error {
	if upload.ID == "" {
		upload.ID = uuid.NewString()
	}
	if upload.CreatedAt.IsZero() {
		upload.CreatedAt = time.Now().UTC()
	}
	if upload.Status == "" {
		upload.Status = models.UploadStatusPending
	}
	const query = `INSERT INTO uploads (` + uploadColumns + `)
	VALUES (:id, :case_id, :original_name, :mime, :size_bytes, :key, :status, :storage_url, :verdict_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, upload); err != nil {
		return fmt.Errorf("create upload: %w", err)
	}
	return nil
}

// GetByID fetches one upload.
func (r *UploadRepository) GetByID(ctx context.Context, id string) (*models.Upload, error) {
	const query = `SELECT ` + uploadColumns + ` FROM uploads WHERE id = $1`
	var upload models.Upload
	if err := r.db.GetContext(ctx, &upload, query, id); err != nil {
		return nil, err
	}
	return &upload, nil
}

// GetByKey fetches the upload registered for a quarantine key.
func (r *UploadRepository) GetByKey(ctx context.Context, key string) (*models.Upload, error) {
	const query = `SELECT ` + uploadColumns + ` FROM uploads WHERE key = $1`
	var upload models.Upload
	if err := r.db.GetContext(ctx, &upload, query, key); err != nil {
		return nil, err
	}
	return &upload, nil
}

// ListByCase returns the uploads of a case, newest first.
func (r *UploadRepository) ListByCase(ctx context.Context, caseID string) ([]models.Upload, error) {
	const query = `SELECT ` + uploadColumns + ` FROM uploads WHERE case_id = $1 ORDER BY created_at DESC`
	var uploads []models.Upload
	if err := r.db.SelectContext(ctx, &uploads, query, caseID); err != nil {
		return nil, fmt.Errorf("list case uploads: %w", err)
	}
	return uploads, nil
}

// ListPending returns up to limit pending uploads, oldest first, skipping the
// given ids (already attempted in the current pass).
func (r *UploadRepository) ListPending(ctx context.Context, limit int, exclude []string) ([]models.Upload, error) {
	if limit <= 0 {
		limit = 10
	}
	if exclude == nil {
		exclude = []string{}
	}
	const query = `SELECT ` + uploadColumns + ` FROM uploads
	WHERE status = 'pending' AND NOT (id::text = ANY($1))
	ORDER BY created_at ASC LIMIT $2`
	var uploads []models.Upload
	if err := r.db.SelectContext(ctx, &uploads, query, pq.Array(exclude), limit); err != nil {
		return nil, fmt.Errorf("list pending uploads: %w", err)
	}
	return uploads, nil
}

// ListPendingKeys returns the storage keys of every pending upload.
func (r *UploadRepository) ListPendingKeys(ctx context.Context) ([]string, error) {
	var keys []string
	if err := r.db.SelectContext(ctx, &keys, `SELECT key FROM uploads WHERE status = 'pending'`); err != nil {
		return nil, fmt.Errorf("list pending upload keys: %w", err)
	}
	return keys, nil
}

// ListClean returns clean uploads that still reference a stored file.
func (r *UploadRepository) ListClean(ctx context.Context) ([]models.Upload, error) {
	const query = `SELECT ` + uploadColumns + ` FROM uploads
	WHERE status = 'clean' AND storage_url IS NOT NULL AND storage_url <> $1`
	var uploads []models.Upload
	if err := r.db.SelectContext(ctx, &uploads, query, models.RedactedValue); err != nil {
		return nil, fmt.Errorf("list clean uploads: %w", err)
	}
	return uploads, nil
}

// MarkVerdict records the terminal scan outcome. Only pending rows are touched;
// sql.ErrNoRows means another pass already recorded a verdict or the row is gone.
func (r *UploadRepository) MarkVerdict(ctx context.Context, id string, verdict models.UploadVerdict) error {
	if !verdict.Status.Terminal() {
		return fmt.Errorf("mark verdict: %q is not a terminal status", verdict.Status)
	}
	const query = `UPDATE uploads SET status = $2, storage_url = $3, verdict_at = $4
	WHERE id = $1 AND status = 'pending'`
	res, err := r.db.ExecContext(ctx, query, id, verdict.Status, verdict.StorageURL, verdict.VerdictAt)
	if err != nil {
		return fmt.Errorf("mark upload verdict: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check upload verdict rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListCreatedBefore returns uploads created strictly before cutoff as retention candidates.
func (r *UploadRepository) ListCreatedBefore(ctx context.Context, cutoff time.Time) ([]models.RetentionCandidate, error) {
	const query = `SELECT id, original_name AS name FROM uploads WHERE created_at < $1 ORDER BY created_at ASC`
	var candidates []models.RetentionCandidate
	if err := r.db.SelectContext(ctx, &candidates, query, cutoff); err != nil {
		return nil, fmt.Errorf("list expired uploads: %w", err)
	}
	return candidates, nil
}

// Mask overwrites the identifying fields of an upload while keeping the row.
func (r *UploadRepository) Mask(ctx context.Context, id string) error {
	const query = `UPDATE uploads SET original_name = $2, key = $2,
	storage_url = CASE WHEN storage_url IS NULL THEN NULL ELSE $2 END
	WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, models.RedactedValue)
	if err != nil {
		return fmt.Errorf("mask upload: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check upload mask rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes an upload row.
func (r *UploadRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM uploads WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete upload: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check upload delete rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
