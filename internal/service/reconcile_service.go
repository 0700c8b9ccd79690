package service

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/casevault-api/internal/models"
	"github.com/noah-isme/casevault-api/pkg/storage"
)

const passReconcile = "reconcile"

type reconcileUploadRepository interface {
	ListPendingKeys(ctx context.Context) ([]string, error)
	ListClean(ctx context.Context) ([]models.Upload, error)
}

// ReconcileService compares the upload storage tree against the database and
// reports inconsistencies. It never modifies either side.
type ReconcileService struct {
	repo        reconcileUploadRepository
	quarantine  *storage.LocalStorage
	clean       *storage.LocalStorage
	cleanPrefix string
	metrics     *MetricsService
	logger      *zap.Logger

	mu sync.Mutex
}

// NewReconcileService constructs the reconciliation check.
func NewReconcileService(repo reconcileUploadRepository, quarantine, clean *storage.LocalStorage, cleanPrefix string, metrics *MetricsService, logger *zap.Logger) *ReconcileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconcileService{
		repo:        repo,
		quarantine:  quarantine,
		clean:       clean,
		cleanPrefix: strings.Trim(cleanPrefix, "/"),
		metrics:     metrics,
		logger:      logger,
	}
}

// RunOnce lists quarantine folders no pending upload points at and clean uploads
// whose file is gone.
func (s *ReconcileService) RunOnce(ctx context.Context) (*models.ReconcileSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	summary := &models.ReconcileSummary{Issues: []models.ReconcileIssue{}}

	orphaned, err := s.orphanedQuarantine(ctx)
	if err != nil {
		return s.finish(summary, start, 1), err
	}
	summary.Issues = append(summary.Issues, orphaned...)

	if err := ctx.Err(); err != nil {
		return s.finish(summary, start, 0), err
	}

	missing, err := s.missingCleanFiles(ctx)
	if err != nil {
		return s.finish(summary, start, 1), err
	}
	summary.Issues = append(summary.Issues, missing...)

	return s.finish(summary, start, 0), nil
}

func (s *ReconcileService) orphanedQuarantine(ctx context.Context) ([]models.ReconcileIssue, error) {
	keys, err := s.repo.ListPendingKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending upload keys: %w", err)
	}
	referenced := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		folder := strings.SplitN(strings.TrimPrefix(key, "/"), "/", 2)[0]
		referenced[folder] = struct{}{}
	}

	folders, err := s.quarantine.ListFolders()
	if err != nil {
		return nil, err
	}
	sort.Strings(folders)

	var issues []models.ReconcileIssue
	for _, folder := range folders {
		if _, ok := referenced[folder]; ok {
			continue
		}
		issues = append(issues, models.ReconcileIssue{Type: models.ReconcileOrphanedQuarantine, Path: folder})
		s.metrics.RecordReconcileIssue(models.ReconcileOrphanedQuarantine)
		s.logger.Sugar().Warnw("orphaned quarantine folder", "folder", folder)
	}
	return issues, nil
}

func (s *ReconcileService) missingCleanFiles(ctx context.Context) ([]models.ReconcileIssue, error) {
	uploads, err := s.repo.ListClean(ctx)
	if err != nil {
		return nil, fmt.Errorf("list clean uploads: %w", err)
	}

	var issues []models.ReconcileIssue
	for _, upload := range uploads {
		if upload.StorageURL == nil {
			continue
		}
		key := strings.TrimPrefix(*upload.StorageURL, "/")
		if s.cleanPrefix != "" {
			key = strings.TrimPrefix(key, s.cleanPrefix+"/")
		}
		exists, err := s.clean.Exists(path.Clean(key))
		if err != nil {
			s.logger.Sugar().Warnw("failed to check clean file", "upload_id", upload.ID, "error", err)
		}
		if exists {
			continue
		}
		issues = append(issues, models.ReconcileIssue{Type: models.ReconcileMissingCleanFile, Path: *upload.StorageURL, UploadID: upload.ID})
		s.metrics.RecordReconcileIssue(models.ReconcileMissingCleanFile)
		s.logger.Sugar().Warnw("clean upload file missing", "upload_id", upload.ID, "storage_url", *upload.StorageURL)
	}
	return issues, nil
}

func (s *ReconcileService) finish(summary *models.ReconcileSummary, start time.Time, failures int) *models.ReconcileSummary {
	summary.Duration = time.Since(start)
	s.metrics.ObservePass(passReconcile, summary.Duration, failures)
	if len(summary.Issues) > 0 {
		s.logger.Sugar().Infow("reconcile pass completed", "issues", len(summary.Issues), "duration", summary.Duration.String())
	}
	return summary
}
