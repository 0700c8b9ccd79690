package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/casevault-api/internal/models"
)

// CaseRepository reads the case data the upload path depends on.
type CaseRepository struct {
	db *sqlx.DB
}

// NewCaseRepository constructs the repository.
func NewCaseRepository(db *sqlx.DB) *CaseRepository {
	return &CaseRepository{db: db}
}

// GetByID fetches a case.
func (r *CaseRepository) GetByID(ctx context.Context, id string) (*models.Case, error) {
	var c models.Case
	if err := r.db.GetContext(ctx, &c, `SELECT id, client_user_id, status FROM cases WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &c, nil
}

// Touch records activity on the case.
func (r *CaseRepository) Touch(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE cases SET last_activity_at = NOW() WHERE id = $1`, id)
	return err
}
