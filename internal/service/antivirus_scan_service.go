package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/casevault-api/internal/models"
	"github.com/noah-isme/casevault-api/pkg/storage"
)

const passAntivirusScan = "antivirus-scan"

type scanUploadRepository interface {
	ListPending(ctx context.Context, limit int, exclude []string) ([]models.Upload, error)
	MarkVerdict(ctx context.Context, id string, verdict models.UploadVerdict) error
}

type auditLogWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AntivirusScanConfig controls the scan worker.
type AntivirusScanConfig struct {
	Enabled   bool
	BatchSize int
	// CleanPrefix is prepended to clean storage keys to form the stored storage URL,
	// i.e. the clean subdirectory relative to the uploads base path.
	CleanPrefix string
	// AwaitContentFor keeps a pending upload whose file has not reached quarantine
	// yet out of the missing-file verdict until it is this old. It should cover
	// the upload token lifetime. Zero rejects missing files immediately.
	AwaitContentFor time.Duration
}

// AntivirusScanService classifies pending uploads and moves their files out of quarantine.
type AntivirusScanService struct {
	repo       scanUploadRepository
	audit      auditLogWriter
	scanner    Scanner
	quarantine *storage.LocalStorage
	clean      *storage.LocalStorage
	metrics    *MetricsService
	logger     *zap.Logger
	cfg        AntivirusScanConfig
	now        func() time.Time

	mu sync.Mutex
}

// NewAntivirusScanService constructs the scan worker.
func NewAntivirusScanService(
	repo scanUploadRepository,
	audit auditLogWriter,
	scanner Scanner,
	quarantine, clean *storage.LocalStorage,
	metrics *MetricsService,
	logger *zap.Logger,
	cfg AntivirusScanConfig,
) *AntivirusScanService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if scanner == nil {
		scanner = NewSignatureScanner(nil)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	return &AntivirusScanService{
		repo:       repo,
		audit:      audit,
		scanner:    scanner,
		quarantine: quarantine,
		clean:      clean,
		metrics:    metrics,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
}

type scanOutcome int

const (
	outcomeClean scanOutcome = iota
	outcomeInfected
	outcomeRejected
	outcomeSkipped
	outcomeFailed
	outcomeAwaiting
)

// RunOnce drains the pending uploads one batch at a time. Each upload is attempted
// at most once per pass; items that fail stay pending for the next pass.
// Cancellation is honored between items.
func (s *AntivirusScanService) RunOnce(ctx context.Context) (*models.ScanSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	summary := &models.ScanSummary{}
	if !s.cfg.Enabled {
		return summary, nil
	}

	attempted := make([]string, 0, s.cfg.BatchSize)
	var runErr error
drain:
	for {
		batch, err := s.repo.ListPending(ctx, s.cfg.BatchSize, attempted)
		if err != nil {
			runErr = fmt.Errorf("list pending uploads: %w", err)
			break
		}
		for i := range batch {
			if err := ctx.Err(); err != nil {
				runErr = err
				break drain
			}
			upload := batch[i]
			attempted = append(attempted, upload.ID)

			outcome := s.processUpload(ctx, &upload)
			if outcome == outcomeAwaiting {
				summary.Awaiting++
				continue
			}
			summary.Scanned++
			switch outcome {
			case outcomeClean:
				summary.Clean++
			case outcomeInfected:
				summary.Infected++
			case outcomeRejected:
				summary.Rejected++
			case outcomeSkipped:
				summary.Skipped++
			case outcomeFailed:
				summary.Failed++
			}
		}
		if len(batch) < s.cfg.BatchSize {
			break
		}
	}

	summary.Duration = time.Since(start)
	s.metrics.ObservePass(passAntivirusScan, summary.Duration, summary.Failed)
	if summary.Scanned > 0 || runErr != nil {
		s.logger.Sugar().Infow("antivirus pass completed",
			"scanned", summary.Scanned,
			"clean", summary.Clean,
			"infected", summary.Infected,
			"rejected", summary.Rejected,
			"skipped", summary.Skipped,
			"failed", summary.Failed,
			"awaiting", summary.Awaiting,
			"duration", summary.Duration.String(),
		)
	}
	return summary, runErr
}

func (s *AntivirusScanService) processUpload(ctx context.Context, upload *models.Upload) scanOutcome {
	log := s.logger.Sugar().With("upload_id", upload.ID, "case_id", upload.CaseID)

	kind, err := s.quarantine.Kind(upload.Key)
	switch {
	case errors.Is(err, storage.ErrOutsideRoot):
		log.Warnw("quarantine key escapes storage root, rejecting upload", "key", upload.Key)
		return s.recordVerdict(ctx, upload, models.UploadStatusRejected, nil, "invalid quarantine key")
	case err != nil:
		log.Errorw("failed to inspect quarantine file", "error", err)
		return outcomeFailed
	case kind == storage.EntryOther:
		log.Warnw("quarantine key is not a regular file, rejecting upload", "key", upload.Key)
		return s.recordVerdict(ctx, upload, models.UploadStatusRejected, nil, "quarantine entry is not a regular file")
	case kind == storage.EntryMissing:
		if s.awaitingContent(upload) {
			log.Debugw("upload content not received yet", "key", upload.Key)
			return outcomeAwaiting
		}
		log.Warnw("quarantine file missing, rejecting upload", "key", upload.Key)
		return s.recordVerdict(ctx, upload, models.UploadStatusRejected, nil, "file not found in quarantine")
	}

	content, err := s.quarantine.ReadAll(upload.Key)
	if err != nil {
		log.Errorw("failed to read quarantine file", "error", err)
		return outcomeFailed
	}

	result, err := s.scanner.Classify(ctx, content)
	if err != nil {
		log.Errorw("scanner failed", "error", err)
		return outcomeFailed
	}

	s.detectFormat(log, upload, content)

	// Verdict first, so a failed write leaves the file for the next pass.
	if result.Infected {
		outcome := s.recordVerdict(ctx, upload, models.UploadStatusInfected, nil, result.Verdict())
		if outcome != outcomeInfected {
			return outcome
		}
		if err := s.quarantine.Delete(upload.Key); err != nil {
			log.Errorw("infected verdict recorded but quarantine copy could not be removed", "key", upload.Key, "error", err)
			return outcome
		}
		s.removeQuarantineDir(log, upload.Key)
		log.Warnw("infected file deleted from quarantine", "verdict", result.Verdict())
		return outcome
	}

	cleanKey := path.Join(upload.CaseID, uuid.NewString(), path.Base(upload.Key))
	if _, err := s.quarantine.CopyTo(s.clean, upload.Key, cleanKey); err != nil {
		log.Errorw("failed to copy clean file, leaving upload pending", "error", err)
		return outcomeFailed
	}

	storageURL := path.Join(s.cfg.CleanPrefix, cleanKey)
	outcome := s.recordVerdict(ctx, upload, models.UploadStatusClean, &storageURL, result.Verdict())
	if outcome != outcomeClean {
		if err := s.clean.Delete(cleanKey); err != nil {
			log.Errorw("failed to remove unused clean copy", "clean_key", cleanKey, "error", err)
		}
		if err := s.clean.RemoveDirIfEmpty(cleanKey); err != nil {
			log.Warnw("failed to remove clean folder", "clean_key", cleanKey, "error", err)
		}
		return outcome
	}

	if err := s.quarantine.Delete(upload.Key); err != nil {
		log.Errorw("clean file recorded but quarantine copy could not be removed", "key", upload.Key, "error", err)
		return outcome
	}
	s.removeQuarantineDir(log, upload.Key)
	log.Infow("upload scanned clean", "storage_url", storageURL)
	return outcome
}

func (s *AntivirusScanService) awaitingContent(upload *models.Upload) bool {
	return s.cfg.AwaitContentFor > 0 && s.now().Sub(upload.CreatedAt) < s.cfg.AwaitContentFor
}

func (s *AntivirusScanService) recordVerdict(ctx context.Context, upload *models.Upload, status models.UploadStatus, storageURL *string, detail string) scanOutcome {
	verdict := models.UploadVerdict{Status: status, StorageURL: storageURL, VerdictAt: s.now().UTC()}
	if err := s.repo.MarkVerdict(ctx, upload.ID, verdict); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Sugar().Infow("upload no longer pending, verdict skipped", "upload_id", upload.ID, "verdict", status)
			return outcomeSkipped
		}
		s.logger.Sugar().Errorw("failed to record verdict", "upload_id", upload.ID, "verdict", status, "error", err)
		return outcomeFailed
	}

	upload.Status = verdict.Status
	upload.StorageURL = verdict.StorageURL
	upload.VerdictAt = &verdict.VerdictAt
	s.metrics.RecordScanVerdict(string(status))
	s.writeAudit(ctx, upload, status, detail)

	switch status {
	case models.UploadStatusClean:
		return outcomeClean
	case models.UploadStatusInfected:
		return outcomeInfected
	default:
		return outcomeRejected
	}
}

func (s *AntivirusScanService) writeAudit(ctx context.Context, upload *models.Upload, status models.UploadStatus, detail string) {
	if s.audit == nil {
		return
	}
	action := models.AuditActionScanRejected
	switch status {
	case models.UploadStatusClean:
		action = models.AuditActionScanClean
	case models.UploadStatusInfected:
		action = models.AuditActionScanInfected
	}
	details, _ := json.Marshal(map[string]string{"uploadId": upload.ID, "verdict": detail})
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		Category:   models.AuditCategoryDocs,
		Action:     action,
		TargetType: "Upload",
		TargetID:   upload.ID,
		Details:    details,
	}); err != nil {
		s.logger.Sugar().Warnw("failed to write scan audit entry", "upload_id", upload.ID, "error", err)
	}
}

func (s *AntivirusScanService) removeQuarantineDir(log *zap.SugaredLogger, key string) {
	if err := s.quarantine.RemoveDirIfEmpty(key); err != nil {
		log.Warnw("failed to remove quarantine folder", "key", key, "error", err)
	}
}

// detectFormat logs HEIC/HEIF images, which are kept as uploaded, and declared
// types that disagree with the sniffed content.
func (s *AntivirusScanService) detectFormat(log *zap.SugaredLogger, upload *models.Upload, content []byte) {
	detected := mimetype.Detect(content)
	name := strings.ToLower(upload.OriginalName)
	declared := strings.ToLower(upload.Mime)
	if strings.HasSuffix(name, ".heic") || strings.HasSuffix(name, ".heif") ||
		declared == "image/heic" || declared == "image/heif" ||
		detected.Is("image/heic") || detected.Is("image/heif") {
		log.Infow("heic image detected", "detected_mime", detected.String())
	}
	if declared != "" && !detected.Is(declared) {
		log.Debugw("declared content type differs from sniffed type", "declared", upload.Mime, "detected", detected.String())
	}
}
