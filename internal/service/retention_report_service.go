package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/casevault-api/internal/models"
	appErrors "github.com/noah-isme/casevault-api/pkg/errors"
	"github.com/noah-isme/casevault-api/pkg/export"
)

type retentionQueueReader interface {
	List(ctx context.Context, filter models.RetentionQueueFilter) ([]models.RetentionQueueEntry, error)
}

// RetentionReport is a rendered retention queue document.
type RetentionReport struct {
	Filename    string
	ContentType string
	Body        []byte
}

// RetentionReportService exposes the retention queue as the compliance audit trail.
type RetentionReportService struct {
	repo   retentionQueueReader
	logger *zap.Logger
	now    func() time.Time
}

// NewRetentionReportService constructs the report service.
func NewRetentionReportService(repo retentionQueueReader, logger *zap.Logger) *RetentionReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetentionReportService{repo: repo, logger: logger, now: time.Now}
}

// List returns queue entries, newest first.
func (s *RetentionReportService) List(ctx context.Context, filter models.RetentionQueueFilter) ([]models.RetentionQueueEntry, error) {
	entries, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list retention queue")
	}
	if entries == nil {
		entries = []models.RetentionQueueEntry{}
	}
	return entries, nil
}

// Export renders queue entries as json, csv or pdf.
func (s *RetentionReportService) Export(ctx context.Context, filter models.RetentionQueueFilter, format string) (*RetentionReport, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "csv"
	}
	entries, err := s.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	generatedAt := s.now().UTC()
	stamp := generatedAt.Format("20060102-150405")

	if format == "json" {
		body, err := json.Marshal(entries)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode retention queue")
		}
		return &RetentionReport{Filename: fmt.Sprintf("retention-queue-%s.json", stamp), ContentType: "application/json", Body: body}, nil
	}

	exporter, err := export.ForFormat(format)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be one of json, csv, pdf")
	}
	body, err := exporter.Render(retentionDataset(entries, generatedAt))
	if err != nil {
		s.logger.Sugar().Errorw("failed to render retention report", "format", format, "error", err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render retention report")
	}
	return &RetentionReport{
		Filename:    fmt.Sprintf("retention-queue-%s.%s", stamp, exporter.Extension()),
		ContentType: exporter.ContentType(),
		Body:        body,
	}, nil
}

func retentionDataset(entries []models.RetentionQueueEntry, generatedAt time.Time) export.Dataset {
	rows := make([]map[string]string, 0, len(entries))
	for _, entry := range entries {
		processed := ""
		if entry.ProcessedAt != nil {
			processed = entry.ProcessedAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, map[string]string{
			"ID":           entry.ID,
			"Category":     entry.Category,
			"Target":       entry.TargetID,
			"Action":       string(entry.Action),
			"Enqueued At":  entry.EnqueuedAt.UTC().Format(time.RFC3339),
			"Processed At": processed,
		})
	}
	return export.Dataset{
		Title:       "Retention Queue",
		GeneratedAt: generatedAt,
		Headers:     []string{"ID", "Category", "Target", "Action", "Enqueued At", "Processed At"},
		Rows:        rows,
	}
}
