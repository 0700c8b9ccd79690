package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/casevault-api/internal/models"
	"github.com/noah-isme/casevault-api/pkg/storage"
)

type maskDeleter interface {
	Mask(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

type messageThreadSource interface {
	maskDeleter
	ListCreatedBefore(ctx context.Context, cutoff time.Time) ([]models.RetentionCandidate, error)
}

type interviewSessionSource interface {
	maskDeleter
	ListFinishedBefore(ctx context.Context, cutoff time.Time) ([]models.RetentionCandidate, error)
}

type uploadRetentionRepository interface {
	maskDeleter
	GetByID(ctx context.Context, id string) (*models.Upload, error)
	ListCreatedBefore(ctx context.Context, cutoff time.Time) ([]models.RetentionCandidate, error)
}

// rowStore adapts a repository with uuid-keyed rows to RetentionStore.
type rowStore struct {
	list func(ctx context.Context, cutoff time.Time) ([]models.RetentionCandidate, error)
	rows maskDeleter
}

// NewMessageRetentionStore exposes case message threads to the retention engine.
func NewMessageRetentionStore(repo messageThreadSource) RetentionStore {
	return &rowStore{list: repo.ListCreatedBefore, rows: repo}
}

// NewRecordingRetentionStore exposes finished interview recordings to the retention engine.
func NewRecordingRetentionStore(repo interviewSessionSource) RetentionStore {
	return &rowStore{list: repo.ListFinishedBefore, rows: repo}
}

func (s *rowStore) ListExpired(ctx context.Context, cutoff time.Time) ([]models.RetentionCandidate, error) {
	return s.list(ctx, cutoff)
}

func (s *rowStore) Mask(ctx context.Context, id string) error {
	if !validTargetID(id) {
		return sql.ErrNoRows
	}
	return s.rows.Mask(ctx, id)
}

func (s *rowStore) Delete(ctx context.Context, id string) error {
	if !validTargetID(id) {
		return sql.ErrNoRows
	}
	return s.rows.Delete(ctx, id)
}

// UploadRetentionStore applies retention to uploads and removes their stored files.
type UploadRetentionStore struct {
	repo        uploadRetentionRepository
	quarantine  *storage.LocalStorage
	clean       *storage.LocalStorage
	cleanPrefix string
	logger      *zap.Logger
}

// NewUploadRetentionStore constructs the upload adapter. cleanPrefix is the prefix
// the scan worker puts in front of clean storage keys.
func NewUploadRetentionStore(repo uploadRetentionRepository, quarantine, clean *storage.LocalStorage, cleanPrefix string, logger *zap.Logger) *UploadRetentionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UploadRetentionStore{
		repo:        repo,
		quarantine:  quarantine,
		clean:       clean,
		cleanPrefix: strings.Trim(cleanPrefix, "/"),
		logger:      logger,
	}
}

// ListExpired returns uploads created before cutoff.
func (s *UploadRetentionStore) ListExpired(ctx context.Context, cutoff time.Time) ([]models.RetentionCandidate, error) {
	return s.repo.ListCreatedBefore(ctx, cutoff)
}

// Mask removes the stored file and redacts the identifying columns.
func (s *UploadRetentionStore) Mask(ctx context.Context, id string) error {
	if err := s.removeFiles(ctx, id); err != nil {
		return err
	}
	return s.repo.Mask(ctx, id)
}

// Delete removes the stored file and the row.
func (s *UploadRetentionStore) Delete(ctx context.Context, id string) error {
	if err := s.removeFiles(ctx, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

func (s *UploadRetentionStore) removeFiles(ctx context.Context, id string) error {
	if !validTargetID(id) {
		return sql.ErrNoRows
	}
	upload, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if upload.StorageURL != nil && *upload.StorageURL != models.RedactedValue && s.clean != nil {
		key := s.cleanKey(*upload.StorageURL)
		if err := s.clean.Delete(key); err != nil {
			return fmt.Errorf("remove clean file for upload %s: %w", id, err)
		}
		if err := s.clean.RemoveDirIfEmpty(key); err != nil {
			s.logger.Sugar().Warnw("failed to remove empty clean folder", "upload_id", id, "error", err)
		}
	}
	if upload.Status == models.UploadStatusPending && upload.Key != models.RedactedValue && s.quarantine != nil {
		if err := s.quarantine.Delete(upload.Key); err != nil {
			return fmt.Errorf("remove quarantine file for upload %s: %w", id, err)
		}
		if err := s.quarantine.RemoveDirIfEmpty(upload.Key); err != nil {
			s.logger.Sugar().Warnw("failed to remove empty quarantine folder", "upload_id", id, "error", err)
		}
	}
	return nil
}

func (s *UploadRetentionStore) cleanKey(storageURL string) string {
	key := strings.TrimPrefix(storageURL, "/")
	if s.cleanPrefix != "" {
		key = strings.TrimPrefix(key, s.cleanPrefix+"/")
	}
	return key
}

// validTargetID reports whether id can name a row; anything else cannot exist.
func validTargetID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
