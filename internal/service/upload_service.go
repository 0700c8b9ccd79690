package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/casevault-api/internal/dto"
	"github.com/noah-isme/casevault-api/internal/models"
	appErrors "github.com/noah-isme/casevault-api/pkg/errors"
	"github.com/noah-isme/casevault-api/pkg/middleware/requestid"
	"github.com/noah-isme/casevault-api/pkg/storage"
)

type uploadStore interface {
	Create(ctx context.Context, upload *models.Upload) error
	GetByID(ctx context.Context, id string) (*models.Upload, error)
	GetByKey(ctx context.Context, key string) (*models.Upload, error)
	ListByCase(ctx context.Context, caseID string) ([]models.Upload, error)
}

type caseStore interface {
	GetByID(ctx context.Context, id string) (*models.Case, error)
	Touch(ctx context.Context, id string) error
}

type uploadTokenLedger interface {
	Claim(ctx context.Context, folder string, expiresAt time.Time) (bool, error)
	Release(ctx context.Context, folder string) error
}

type scanTrigger interface {
	Trigger() bool
}

// UploadServiceConfig holds the upload limits and public gateway location.
type UploadServiceConfig struct {
	MaxSizeBytes         int64
	AllowedExtensions    []string
	GatewayPublicBaseURL string
}

// GatewayUpload is one file body arriving at the upload gateway.
type GatewayUpload struct {
	Filename      string
	ContentType   string
	ContentLength int64
	Body          io.Reader
}

// UploadService drives the request side of the upload pipeline: token issuance,
// quarantine intake, confirmation and status polling.
type UploadService struct {
	uploads    uploadStore
	cases      caseStore
	ledger     uploadTokenLedger
	signer     *storage.UploadTokenSigner
	quarantine *storage.LocalStorage
	audit      auditLogWriter
	scans      scanTrigger
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	cfg        UploadServiceConfig
	extensions map[string]struct{}
}

// NewUploadService constructs the service.
func NewUploadService(
	uploads uploadStore,
	cases caseStore,
	ledger uploadTokenLedger,
	signer *storage.UploadTokenSigner,
	quarantine *storage.LocalStorage,
	audit auditLogWriter,
	scans scanTrigger,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg UploadServiceConfig,
) *UploadService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxSizeBytes <= 0 {
		cfg.MaxSizeBytes = 25 * 1024 * 1024
	}
	cfg.GatewayPublicBaseURL = strings.TrimRight(cfg.GatewayPublicBaseURL, "/")
	extensions := make(map[string]struct{}, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		extensions[ext] = struct{}{}
	}
	return &UploadService{
		uploads:    uploads,
		cases:      cases,
		ledger:     ledger,
		signer:     signer,
		quarantine: quarantine,
		audit:      audit,
		scans:      scans,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
		cfg:        cfg,
		extensions: extensions,
	}
}

// Presign registers a pending upload and mints the capability token for it.
func (s *UploadService) Presign(ctx context.Context, req dto.PresignUploadRequest, actor *models.JWTClaims) (*dto.PresignUploadResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	if _, err := s.authorizeCase(ctx, req.CaseID, actor, true); err != nil {
		return nil, err
	}
	if req.SizeBytes > s.cfg.MaxSizeBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds %d bytes limit", s.cfg.MaxSizeBytes))
	}

	safeName := storage.GetSafeFilename(req.Filename)
	if !s.extensionAllowed(safeName) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file extension not allowed")
	}

	token, expiresAt := s.signer.GenerateToken(req.CaseID, req.Filename, req.ContentType, req.SizeBytes)
	upload := &models.Upload{
		CaseID:       req.CaseID,
		OriginalName: req.Filename,
		Mime:         req.ContentType,
		SizeBytes:    req.SizeBytes,
		Key:          path.Join(storage.QuarantineFolder(token), safeName),
		Status:       models.UploadStatusPending,
	}
	if err := s.uploads.Create(ctx, upload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to register upload")
	}

	s.writeAudit(ctx, actor, models.AuditActionPresign, upload, map[string]interface{}{
		"caseId":    upload.CaseID,
		"filename":  safeName,
		"sizeBytes": upload.SizeBytes,
	})
	if err := s.cases.Touch(ctx, upload.CaseID); err != nil {
		s.logger.Sugar().Warnw("failed to touch case", "case_id", upload.CaseID, "error", err)
	}

	return &dto.PresignUploadResponse{
		UploadID:  upload.ID,
		UploadURL: s.cfg.GatewayPublicBaseURL + "/gateway/uploads/" + token,
		Key:       upload.Key,
		ExpiresAt: expiresAt,
		Headers:   map[string]string{"Content-Type": req.ContentType},
	}, nil
}

// StoreToQuarantine accepts the file body for a capability token. The body is
// capped at the claimed size and must match every claim once stored.
func (s *UploadService) StoreToQuarantine(ctx context.Context, token string, in GatewayUpload) (*dto.GatewayUploadResponse, error) {
	claims, err := s.signer.Parse(token, false)
	if err != nil {
		s.metrics.RecordGatewayUpload("token_rejected")
		return nil, err
	}
	log := s.logger.Sugar().With("case_id", claims.CaseID)

	if in.ContentType != claims.ContentType {
		s.metrics.RecordGatewayUpload("claim_mismatch")
		return nil, appErrors.Clone(appErrors.ErrClaimMismatch, "content type does not match token")
	}
	if in.ContentLength > claims.SizeBytes || in.ContentLength > s.cfg.MaxSizeBytes {
		s.metrics.RecordGatewayUpload("too_large")
		return nil, appErrors.ErrPayloadTooLarge
	}
	filename := in.Filename
	if filename == "" {
		filename = claims.Filename
	}

	folder := storage.QuarantineFolder(token)
	key := path.Join(folder, storage.GetSafeFilename(claims.Filename))

	if _, err := s.acceptingUpload(ctx, key); err != nil {
		s.metrics.RecordGatewayUpload("not_accepting")
		return nil, err
	}

	claimed, err := s.ledger.Claim(ctx, folder, claims.ExpiresAt())
	if err != nil {
		s.metrics.RecordGatewayUpload("error")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to claim upload token")
	}
	if !claimed {
		s.metrics.RecordGatewayUpload("token_consumed")
		return nil, appErrors.ErrTokenConsumed
	}
	release := func() {
		if err := s.ledger.Release(ctx, folder); err != nil {
			log.Warnw("failed to release upload token claim", "error", err)
		}
	}

	exists, err := s.quarantine.Exists(key)
	if err != nil {
		release()
		s.metrics.RecordGatewayUpload("error")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to inspect quarantine")
	}
	if exists {
		s.metrics.RecordGatewayUpload("token_consumed")
		return nil, appErrors.ErrTokenConsumed
	}

	limit := claims.SizeBytes
	if limit > s.cfg.MaxSizeBytes {
		limit = s.cfg.MaxSizeBytes
	}
	written, err := s.quarantine.SaveStream(key, in.Body, limit)
	if err != nil {
		release()
		_ = s.quarantine.RemoveDirIfEmpty(key)
		if errors.Is(err, storage.ErrSizeExceeded) {
			s.metrics.RecordGatewayUpload("too_large")
			return nil, appErrors.ErrPayloadTooLarge
		}
		s.metrics.RecordGatewayUpload("error")
		log.Errorw("failed to store upload in quarantine", "error", err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store upload")
	}

	observed := storage.ObservedFile{Filename: filename, ContentType: in.ContentType, SizeBytes: written}
	if err := storage.VerifyClaims(claims, observed); err != nil {
		if delErr := s.quarantine.Delete(key); delErr != nil {
			log.Errorw("failed to remove mismatched upload", "key", key, "error", delErr)
		}
		_ = s.quarantine.RemoveDirIfEmpty(key)
		release()
		s.metrics.RecordGatewayUpload("claim_mismatch")
		return nil, err
	}

	// The scan worker may have given up on the row while the body was streaming.
	if upload, err := s.uploads.GetByKey(ctx, key); err != nil || upload.Status == models.UploadStatusRejected {
		if delErr := s.quarantine.Delete(key); delErr != nil {
			log.Errorw("failed to remove upload stored after rejection", "key", key, "error", delErr)
		}
		_ = s.quarantine.RemoveDirIfEmpty(key)
		s.metrics.RecordGatewayUpload("not_accepting")
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load upload")
		}
		return nil, appErrors.Clone(appErrors.ErrConflict, "upload no longer accepts content")
	}

	if detected, err := mimetype.DetectFile(s.quarantine.Path(key)); err == nil && !detected.Is(in.ContentType) {
		log.Infow("uploaded content differs from declared type", "declared", in.ContentType, "detected", detected.String())
	}
	s.metrics.RecordGatewayUpload("stored")
	log.Infow("upload stored in quarantine", "key", key, "size_bytes", written)

	return &dto.GatewayUploadResponse{Status: "stored", Key: key, SizeBytes: written}, nil
}

// acceptingUpload returns the upload registered for key if it still waits for
// its content.
func (s *UploadService) acceptingUpload(ctx context.Context, key string) (*models.Upload, error) {
	upload, err := s.uploads.GetByKey(ctx, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "upload not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load upload")
	}
	if upload.Status != models.UploadStatusPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "upload no longer accepts content")
	}
	return upload, nil
}

// Confirm marks the client's upload as complete and asks for an immediate scan.
func (s *UploadService) Confirm(ctx context.Context, req dto.ConfirmUploadRequest, actor *models.JWTClaims) (*dto.ConfirmUploadResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	upload, err := s.Get(ctx, req.UploadID, actor)
	if err != nil {
		return nil, err
	}
	if upload.Status != models.UploadStatusPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "upload already scanned")
	}

	if s.scans != nil && !s.scans.Trigger() {
		s.logger.Sugar().Debugw("scan already scheduled", "upload_id", upload.ID)
	}
	s.writeAudit(ctx, actor, models.AuditActionConfirm, upload, map[string]interface{}{"caseId": upload.CaseID})

	return &dto.ConfirmUploadResponse{UploadID: upload.ID, Status: upload.Status}, nil
}

// Get returns an upload the actor may see.
func (s *UploadService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Upload, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !validTargetID(id) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "upload not found")
	}
	upload, err := s.uploads.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "upload not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load upload")
	}
	if _, err := s.authorizeCase(ctx, upload.CaseID, actor, false); err != nil {
		if appErrors.Is(err, appErrors.ErrForbidden) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "upload not found")
		}
		return nil, err
	}
	return upload, nil
}

// ListByCase returns the uploads attached to a case.
func (s *UploadService) ListByCase(ctx context.Context, caseID string, actor *models.JWTClaims) ([]models.Upload, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if _, err := s.authorizeCase(ctx, caseID, actor, false); err != nil {
		return nil, err
	}
	uploads, err := s.uploads.ListByCase(ctx, caseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list uploads")
	}
	if uploads == nil {
		uploads = []models.Upload{}
	}
	return uploads, nil
}

// authorizeCase loads the case and applies the ownership rule: staff see every
// case, clients only their own. requireOpen additionally demands a case that
// accepts new documents.
func (s *UploadService) authorizeCase(ctx context.Context, caseID string, actor *models.JWTClaims, requireOpen bool) (*models.Case, error) {
	if !validTargetID(caseID) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "case not found")
	}
	c, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "case not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load case")
	}
	if !actor.Role.IsStaff() && c.ClientUserID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	if requireOpen && !c.AcceptsUploads() {
		return nil, appErrors.Clone(appErrors.ErrConflict, "case does not accept uploads")
	}
	return c, nil
}

func (s *UploadService) extensionAllowed(name string) bool {
	if len(s.extensions) == 0 {
		return true
	}
	_, ok := s.extensions[strings.ToLower(path.Ext(name))]
	return ok
}

func (s *UploadService) writeAudit(ctx context.Context, actor *models.JWTClaims, action string, upload *models.Upload, details map[string]interface{}) {
	if s.audit == nil {
		return
	}
	if reqID := requestid.FromContext(ctx); reqID != "" {
		if details == nil {
			details = map[string]interface{}{}
		}
		details["request_id"] = reqID
	}
	payload, _ := json.Marshal(details)
	var actorID *string
	if actor != nil && actor.UserID != "" {
		id := actor.UserID
		actorID = &id
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		Category:    models.AuditCategoryDocs,
		ActorUserID: actorID,
		Action:      action,
		TargetType:  "Upload",
		TargetID:    upload.ID,
		Details:     payload,
	}); err != nil {
		s.logger.Sugar().Warnw("failed to write upload audit entry", "upload_id", upload.ID, "action", action, "error", err)
	}
}
