package dto

import (
	"time"

	"github.com/noah-isme/casevault-api/internal/models"
)

// PresignUploadRequest announces an upload and asks for a capability token.
type PresignUploadRequest struct {
	CaseID      string `json:"caseId" validate:"required,uuid"`
	Filename    string `json:"filename" validate:"required,max=1024"`
	ContentType string `json:"contentType" validate:"required,max=255"`
	SizeBytes   int64  `json:"sizeBytes" validate:"required,gt=0"`
}

// PresignUploadResponse tells the client where and how to send the file.
type PresignUploadResponse struct {
	UploadID  string            `json:"uploadId"`
	UploadURL string            `json:"uploadUrl"`
	Key       string            `json:"key"`
	ExpiresAt time.Time         `json:"expiresAt"`
	Headers   map[string]string `json:"headers"`
}

// GatewayUploadResponse acknowledges a file stored in quarantine.
type GatewayUploadResponse struct {
	Status    string `json:"status"`
	Key       string `json:"key"`
	SizeBytes int64  `json:"sizeBytes"`
}

// ConfirmUploadRequest asks for the scan of an uploaded file.
type ConfirmUploadRequest struct {
	UploadID string `json:"uploadId" validate:"required,uuid"`
}

// ConfirmUploadResponse reports the upload state after confirmation.
type ConfirmUploadResponse struct {
	UploadID string              `json:"uploadId"`
	Status   models.UploadStatus `json:"status"`
}
