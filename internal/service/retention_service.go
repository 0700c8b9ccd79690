package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/casevault-api/internal/models"
)

const (
	passRetentionEnqueue = "retention-enqueue"
	passRetentionExecute = "retention-execute"

	retentionExecuteBatch = 500
)

var (
	medicalKeywords         = []string{"medical", "health", "doctor", "hospital", "prescription"}
	highSensitivityKeywords = []string{"ssn", "social", "passport", "license", "birth"}
)

type retentionQueueRepository interface {
	Enqueue(ctx context.Context, entry *models.RetentionQueueEntry) (bool, error)
	ListUnprocessed(ctx context.Context, limit int) ([]models.RetentionQueueEntry, error)
	MarkProcessed(ctx context.Context, id string, processedAt time.Time) error
}

// RetentionStore is one source of retention candidates together with the
// mutations a queued action may apply to it. Mask and Delete return
// sql.ErrNoRows when the target no longer exists.
type RetentionStore interface {
	ListExpired(ctx context.Context, cutoff time.Time) ([]models.RetentionCandidate, error)
	Mask(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// RetentionPolicy is the strategy record for one retention category.
type RetentionPolicy struct {
	WindowDays int
	Action     models.RetentionAction
	Store      RetentionStore
	// Match narrows the expired candidates; nil selects all of them.
	Match func(models.RetentionCandidate) bool
}

// RetentionWindows holds the configured window per category family, in days.
type RetentionWindows struct {
	PiiDays             int
	RecordingsDays      int
	MedicalDays         int
	HighSensitivityDays int
}

// DefaultRetentionPolicies builds the standard category table.
func DefaultRetentionPolicies(windows RetentionWindows, messages, recordings, uploads RetentionStore) map[string]RetentionPolicy {
	return map[string]RetentionPolicy{
		models.RetentionCategoryMessages: {
			WindowDays: windows.PiiDays,
			Action:     models.RetentionActionDelete,
			Store:      messages,
		},
		models.RetentionCategoryRecordings: {
			WindowDays: windows.RecordingsDays,
			Action:     models.RetentionActionDelete,
			Store:      recordings,
		},
		models.RetentionCategoryMedical: {
			WindowDays: windows.MedicalDays,
			Action:     models.RetentionActionMask,
			Store:      uploads,
			Match:      nameContainsAny(medicalKeywords),
		},
		models.RetentionCategoryHighSensitivity: {
			WindowDays: windows.HighSensitivityDays,
			Action:     models.RetentionActionDelete,
			Store:      uploads,
			Match:      nameContainsAny(highSensitivityKeywords),
		},
	}
}

func nameContainsAny(keywords []string) func(models.RetentionCandidate) bool {
	return func(c models.RetentionCandidate) bool {
		name := strings.ToLower(c.Name)
		if name == strings.ToLower(models.RedactedValue) {
			return false
		}
		for _, keyword := range keywords {
			if strings.Contains(name, keyword) {
				return true
			}
		}
		return false
	}
}

// RetentionService enqueues aged records and executes the queued compliance actions.
type RetentionService struct {
	queue    retentionQueueRepository
	policies map[string]RetentionPolicy
	audit    auditLogWriter
	metrics  *MetricsService
	logger   *zap.Logger
	now      func() time.Time

	enqueueMu sync.Mutex
	executeMu sync.Mutex
}

// NewRetentionService constructs the retention engine.
func NewRetentionService(queue retentionQueueRepository, policies map[string]RetentionPolicy, audit auditLogWriter, metrics *MetricsService, logger *zap.Logger) *RetentionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetentionService{
		queue:    queue,
		policies: policies,
		audit:    audit,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Categories returns the configured categories in a stable order.
func (s *RetentionService) Categories() []string {
	categories := make([]string, 0, len(s.policies))
	for category := range s.policies {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	return categories
}

// EnqueueExpiredItems queues every record older than its category window as of now.
// A record with an unprocessed entry in the same category is not queued twice.
// A failing category is logged and does not stop the others.
func (s *RetentionService) EnqueueExpiredItems(ctx context.Context, now time.Time) (*models.RetentionSummary, error) {
	s.enqueueMu.Lock()
	defer s.enqueueMu.Unlock()

	start := time.Now()
	summary := &models.RetentionSummary{ByCategory: make(map[string]int)}

	for _, category := range s.Categories() {
		if err := ctx.Err(); err != nil {
			return s.finish(passRetentionEnqueue, summary, start), err
		}
		policy := s.policies[category]
		log := s.logger.Sugar().With("category", category)
		if policy.Store == nil || policy.WindowDays <= 0 {
			log.Warnw("retention policy incomplete, skipping category", "window_days", policy.WindowDays)
			summary.Failed++
			continue
		}

		cutoff := now.AddDate(0, 0, -policy.WindowDays)
		candidates, err := policy.Store.ListExpired(ctx, cutoff)
		if err != nil {
			log.Errorw("failed to list expired records", "error", err)
			summary.Failed++
			continue
		}

		for _, candidate := range candidates {
			if policy.Match != nil && !policy.Match(candidate) {
				continue
			}
			entry := &models.RetentionQueueEntry{
				Category:   category,
				TargetID:   candidate.ID,
				Action:     policy.Action,
				EnqueuedAt: now.UTC(),
			}
			inserted, err := s.queue.Enqueue(ctx, entry)
			if err != nil {
				log.Errorw("failed to enqueue retention entry", "target_id", candidate.ID, "error", err)
				summary.Failed++
				continue
			}
			if !inserted {
				continue
			}
			summary.Enqueued++
			summary.ByCategory[category]++
			s.metrics.RecordRetentionAction(category, string(policy.Action), "enqueued")
		}
	}

	return s.finish(passRetentionEnqueue, summary, start), nil
}

// ExecuteQueuedActions applies every unprocessed entry, oldest first, and stamps it
// processed. A target that no longer exists counts as already satisfied. Failed
// entries stay unprocessed for the next pass.
func (s *RetentionService) ExecuteQueuedActions(ctx context.Context) (*models.RetentionSummary, error) {
	s.executeMu.Lock()
	defer s.executeMu.Unlock()

	start := time.Now()
	summary := &models.RetentionSummary{ByCategory: make(map[string]int)}

	entries, err := s.queue.ListUnprocessed(ctx, retentionExecuteBatch)
	if err != nil {
		return s.finish(passRetentionExecute, summary, start), fmt.Errorf("list retention queue: %w", err)
	}

	for i := range entries {
		if err := ctx.Err(); err != nil {
			return s.finish(passRetentionExecute, summary, start), err
		}
		s.executeEntry(ctx, &entries[i], summary)
	}

	return s.finish(passRetentionExecute, summary, start), nil
}

func (s *RetentionService) executeEntry(ctx context.Context, entry *models.RetentionQueueEntry, summary *models.RetentionSummary) {
	log := s.logger.Sugar().With("entry_id", entry.ID, "category", entry.Category, "target_id", entry.TargetID, "action", entry.Action)

	policy, ok := s.policies[entry.Category]
	if !ok || policy.Store == nil {
		log.Errorw("no retention policy for category")
		summary.Failed++
		return
	}

	var applyErr error
	switch entry.Action {
	case models.RetentionActionMask:
		applyErr = policy.Store.Mask(ctx, entry.TargetID)
	case models.RetentionActionDelete:
		applyErr = policy.Store.Delete(ctx, entry.TargetID)
	default:
		log.Errorw("unknown retention action")
		summary.Failed++
		return
	}

	outcome := "executed"
	if applyErr != nil {
		if !errors.Is(applyErr, sql.ErrNoRows) {
			log.Errorw("retention action failed", "error", applyErr)
			s.metrics.RecordRetentionAction(entry.Category, string(entry.Action), "failed")
			summary.Failed++
			return
		}
		outcome = "already_satisfied"
	}

	processedAt := s.now().UTC()
	if err := s.queue.MarkProcessed(ctx, entry.ID, processedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Infow("retention entry already processed elsewhere")
			return
		}
		log.Errorw("retention action applied but entry not marked processed", "error", err)
		summary.Failed++
		return
	}
	entry.ProcessedAt = &processedAt

	if outcome == "already_satisfied" {
		summary.AlreadySatisfied++
		log.Infow("retention target already gone, entry closed")
	} else {
		summary.Executed++
		summary.ByCategory[entry.Category]++
		log.Infow("retention action executed")
		s.writeAudit(ctx, entry)
	}
	s.metrics.RecordRetentionAction(entry.Category, string(entry.Action), outcome)
}

func (s *RetentionService) writeAudit(ctx context.Context, entry *models.RetentionQueueEntry) {
	if s.audit == nil {
		return
	}
	action := models.AuditActionRetentionDel
	if entry.Action == models.RetentionActionMask {
		action = models.AuditActionRetentionMask
	}
	details, _ := json.Marshal(map[string]string{"entryId": entry.ID, "category": entry.Category})
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		Category:   models.AuditCategoryRetention,
		Action:     action,
		TargetType: entry.Category,
		TargetID:   entry.TargetID,
		Details:    details,
	}); err != nil {
		s.logger.Sugar().Warnw("failed to write retention audit entry", "entry_id", entry.ID, "error", err)
	}
}

func (s *RetentionService) finish(pass string, summary *models.RetentionSummary, start time.Time) *models.RetentionSummary {
	summary.Duration = time.Since(start)
	s.metrics.ObservePass(pass, summary.Duration, summary.Failed)
	if summary.Enqueued > 0 || summary.Executed > 0 || summary.AlreadySatisfied > 0 || summary.Failed > 0 {
		s.logger.Sugar().Infow("retention pass completed",
			"pass", pass,
			"enqueued", summary.Enqueued,
			"executed", summary.Executed,
			"already_satisfied", summary.AlreadySatisfied,
			"failed", summary.Failed,
			"duration", summary.Duration.String(),
		)
	}
	return summary
}
