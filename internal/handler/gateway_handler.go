package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/casevault-api/internal/dto"
	"github.com/noah-isme/casevault-api/internal/service"
	"github.com/noah-isme/casevault-api/pkg/response"
)

// FilenameHeader lets a client name the file it sends to the gateway.
const FilenameHeader = "X-Upload-Filename"

type gatewayService interface {
	StoreToQuarantine(ctx context.Context, token string, in service.GatewayUpload) (*dto.GatewayUploadResponse, error)
}

// GatewayHandler receives file bodies authorized by an upload capability token.
type GatewayHandler struct {
	service  gatewayService
	maxBytes int64
}

// NewGatewayHandler constructs the handler. maxBytes bounds the request body.
func NewGatewayHandler(service gatewayService, maxBytes int64) *GatewayHandler {
	return &GatewayHandler{service: service, maxBytes: maxBytes}
}

// Put godoc
// @Summary Upload a file body into quarantine
// @Tags Uploads
// @Accept octet-stream
// @Produce json
// @Param token path string true "Upload capability token"
// @Success 201 {object} response.Envelope
// @Router /gateway/uploads/{token} [put]
func (h *GatewayHandler) Put(c *gin.Context) {
	body := c.Request.Body
	if h.maxBytes > 0 {
		// One extra byte lets the service tell an oversized body from an exact fit.
		body = http.MaxBytesReader(c.Writer, body, h.maxBytes+1)
	}
	result, err := h.service.StoreToQuarantine(c.Request.Context(), c.Param("token"), service.GatewayUpload{
		Filename:      strings.TrimSpace(c.GetHeader(FilenameHeader)),
		ContentType:   strings.TrimSpace(c.GetHeader("Content-Type")),
		ContentLength: c.Request.ContentLength,
		Body:          body,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}
