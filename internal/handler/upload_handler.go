package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/casevault-api/internal/dto"
	"github.com/noah-isme/casevault-api/internal/middleware"
	"github.com/noah-isme/casevault-api/internal/models"
	appErrors "github.com/noah-isme/casevault-api/pkg/errors"
	"github.com/noah-isme/casevault-api/pkg/response"
)

type uploadService interface {
	Presign(ctx context.Context, req dto.PresignUploadRequest, actor *models.JWTClaims) (*dto.PresignUploadResponse, error)
	Confirm(ctx context.Context, req dto.ConfirmUploadRequest, actor *models.JWTClaims) (*dto.ConfirmUploadResponse, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Upload, error)
	ListByCase(ctx context.Context, caseID string, actor *models.JWTClaims) ([]models.Upload, error)
}

// UploadHandler exposes the authenticated upload endpoints.
type UploadHandler struct {
	service uploadService
}

// NewUploadHandler constructs the handler.
func NewUploadHandler(service uploadService) *UploadHandler {
	return &UploadHandler{service: service}
}

// Presign godoc
// @Summary Request an upload capability token
// @Tags Uploads
// @Accept json
// @Produce json
// @Param payload body dto.PresignUploadRequest true "Upload intent"
// @Success 201 {object} response.Envelope
// @Router /uploads/presign [post]
func (h *UploadHandler) Presign(c *gin.Context) {
	var req dto.PresignUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid presign payload"))
		return
	}
	result, err := h.service.Presign(c.Request.Context(), req, middleware.CurrentClaims(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Confirm godoc
// @Summary Confirm an upload and schedule its scan
// @Tags Uploads
// @Accept json
// @Produce json
// @Param payload body dto.ConfirmUploadRequest true "Upload reference"
// @Success 202 {object} response.Envelope
// @Router /uploads/confirm [post]
func (h *UploadHandler) Confirm(c *gin.Context) {
	var req dto.ConfirmUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid confirm payload"))
		return
	}
	result, err := h.service.Confirm(c.Request.Context(), req, middleware.CurrentClaims(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, result)
}

// Get godoc
// @Summary Get upload status
// @Tags Uploads
// @Produce json
// @Param id path string true "Upload ID"
// @Success 200 {object} response.Envelope
// @Router /uploads/{id} [get]
func (h *UploadHandler) Get(c *gin.Context) {
	upload, err := h.service.Get(c.Request.Context(), c.Param("id"), middleware.CurrentClaims(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, upload)
}

// ListByCase godoc
// @Summary List the uploads of a case
// @Tags Uploads
// @Produce json
// @Param caseId path string true "Case ID"
// @Success 200 {object} response.Envelope
// @Router /cases/{caseId}/uploads [get]
func (h *UploadHandler) ListByCase(c *gin.Context) {
	uploads, err := h.service.ListByCase(c.Request.Context(), c.Param("caseId"), middleware.CurrentClaims(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, uploads)
}
