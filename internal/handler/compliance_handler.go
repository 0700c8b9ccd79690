package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/casevault-api/internal/dto"
	"github.com/noah-isme/casevault-api/internal/models"
	"github.com/noah-isme/casevault-api/internal/service"
	appErrors "github.com/noah-isme/casevault-api/pkg/errors"
	"github.com/noah-isme/casevault-api/pkg/response"
)

type retentionRunner interface {
	EnqueueExpiredItems(ctx context.Context, now time.Time) (*models.RetentionSummary, error)
	ExecuteQueuedActions(ctx context.Context) (*models.RetentionSummary, error)
}

type retentionReporter interface {
	List(ctx context.Context, filter models.RetentionQueueFilter) ([]models.RetentionQueueEntry, error)
	Export(ctx context.Context, filter models.RetentionQueueFilter, format string) (*service.RetentionReport, error)
}

type scanRunner interface {
	RunOnce(ctx context.Context) (*models.ScanSummary, error)
}

type reconcileRunner interface {
	RunOnce(ctx context.Context) (*models.ReconcileSummary, error)
}

// ComplianceHandler exposes manual triggers for the background passes and the
// retention audit trail.
type ComplianceHandler struct {
	retention retentionRunner
	reports   retentionReporter
	scans     scanRunner
	reconcile reconcileRunner
}

// NewComplianceHandler constructs the handler.
func NewComplianceHandler(retention retentionRunner, reports retentionReporter, scans scanRunner, reconcile reconcileRunner) *ComplianceHandler {
	return &ComplianceHandler{retention: retention, reports: reports, scans: scans, reconcile: reconcile}
}

// EnqueueRetention godoc
// @Summary Enqueue records past their retention window
// @Tags Compliance
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/retention/enqueue [post]
func (h *ComplianceHandler) EnqueueRetention(c *gin.Context) {
	summary, err := h.retention.EnqueueExpiredItems(c.Request.Context(), time.Now().UTC())
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "retention enqueue failed"))
		return
	}
	response.JSON(c, http.StatusOK, summary)
}

// ExecuteRetention godoc
// @Summary Execute queued retention actions
// @Tags Compliance
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/retention/execute [post]
func (h *ComplianceHandler) ExecuteRetention(c *gin.Context) {
	summary, err := h.retention.ExecuteQueuedActions(c.Request.Context())
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "retention execute failed"))
		return
	}
	response.JSON(c, http.StatusOK, summary)
}

// RetentionQueue godoc
// @Summary List or export the retention queue
// @Tags Compliance
// @Produce json
// @Produce text/csv
// @Produce application/pdf
// @Param category query string false "Category"
// @Param pending query bool false "Only unprocessed entries"
// @Param format query string false "json, csv or pdf"
// @Success 200 {object} response.Envelope
// @Router /admin/retention/queue [get]
func (h *ComplianceHandler) RetentionQueue(c *gin.Context) {
	var query dto.RetentionQueueQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	filter := models.RetentionQueueFilter{
		Category:    query.Category,
		OnlyPending: query.OnlyPending,
		Limit:       query.Limit,
		Offset:      query.Offset,
	}

	format := strings.ToLower(strings.TrimSpace(query.Format))
	if format == "" || format == "json" {
		entries, err := h.reports.List(c.Request.Context(), filter)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, entries, map[string]interface{}{
			"count":  len(entries),
			"limit":  filter.Limit,
			"offset": filter.Offset,
		})
		return
	}

	report, err := h.reports.Export(c.Request.Context(), filter, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, report.Filename, report.ContentType, report.Body)
}

// RunScan godoc
// @Summary Run one antivirus pass now
// @Tags Compliance
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/scans/run [post]
func (h *ComplianceHandler) RunScan(c *gin.Context) {
	summary, err := h.scans.RunOnce(c.Request.Context())
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "antivirus pass failed"))
		return
	}
	response.JSON(c, http.StatusOK, summary)
}

// RunReconcile godoc
// @Summary Report storage and database inconsistencies
// @Tags Compliance
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/reconcile/run [post]
func (h *ComplianceHandler) RunReconcile(c *gin.Context) {
	summary, err := h.reconcile.RunOnce(c.Request.Context())
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "reconcile pass failed"))
		return
	}
	response.JSON(c, http.StatusOK, summary)
}
