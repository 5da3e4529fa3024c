package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/campus-ops/clearance-api/internal/dto"
	"github.com/campus-ops/clearance-api/internal/models"
	"github.com/campus-ops/clearance-api/pkg/config"
	appErrors "github.com/campus-ops/clearance-api/pkg/errors"
)

type pendingQueueStore interface {
	PendingFormsFor(ctx context.Context, signatoryID string, formTypes []models.FormType, limit, offset int) ([]models.Form, error)
	CountPendingFor(ctx context.Context, signatoryID string, formTypes []models.FormType) (int, error)
	MarkSeen(ctx context.Context, formID, signatoryID string) error
}

type nameResolver interface {
	NamesByIDs(ctx context.Context, ids []string) (map[string]string, error)
}

type queueCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// SignatoryService serves a signatory's work queue.
type SignatoryService struct {
	slots       pendingQueueStore
	assignments assignmentResolver
	names       nameResolver
	cache       queueCache
	cfg         config.WorkflowConfig
	logger      *zap.Logger
}

// NewSignatoryService constructs the service.
func NewSignatoryService(slots pendingQueueStore, assignments assignmentResolver, names nameResolver, cache queueCache, cfg config.WorkflowConfig, logger *zap.Logger) *SignatoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SignatoryService{
		slots:       slots,
		assignments: assignments,
		names:       names,
		cache:       cache,
		cfg:         cfg,
		logger:      logger,
	}
}

// PendingQueue lists forms awaiting the signatory's decision, oldest first.
// Results are cached briefly to keep dashboard polling off the database.
func (s *SignatoryService) PendingQueue(ctx context.Context, signatoryID string, page, perPage int) ([]dto.PendingQueueItem, *models.Pagination, error) {
	assignment, err := s.assignments.ActiveByUser(ctx, signatoryID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve signatory assignment")
	}
	if assignment == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "user holds no active signing office")
	}

	if perPage <= 0 || perPage > 100 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}

	cacheKey := pendingQueueKey(signatoryID, page, perPage)
	if s.cacheEnabled() {
		var cached pendingQueuePage
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return cached.Items, cached.Pagination, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("pending queue cache read failed", zap.Error(err))
		}
	}

	// Only form types that route through the actor's office belong in the
	// queue.
	formTypes := models.FormTypesForOffice(assignment.OfficeRole)
	forms, err := s.slots.PendingFormsFor(ctx, signatoryID, formTypes, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending forms")
	}
	total, err := s.slots.CountPendingFor(ctx, signatoryID, formTypes)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count pending forms")
	}

	studentIDs := make([]string, 0, len(forms))
	for _, form := range forms {
		studentIDs = append(studentIDs, form.StudentID)
	}
	names, err := s.names.NamesByIDs(ctx, studentIDs)
	if err != nil {
		s.logger.Warn("student name lookup failed", zap.Error(err))
		names = map[string]string{}
	}

	items := make([]dto.PendingQueueItem, 0, len(forms))
	for _, form := range forms {
		item := dto.PendingQueueItem{
			Form:        form,
			StudentName: names[form.StudentID],
			OfficeRole:  assignment.OfficeRole,
			Status:      models.SlotStatusPending,
		}
		items = append(items, item)
	}

	pagination := models.NewPagination(page, perPage, total)
	if s.cacheEnabled() {
		pageValue := pendingQueuePage{Items: items, Pagination: pagination}
		if err := s.cache.Set(ctx, cacheKey, pageValue, s.cfg.PendingCacheTTL); err != nil {
			s.logger.Warn("pending queue cache write failed", zap.Error(err))
		}
	}
	return items, pagination, nil
}

// MarkSeen flags the signatory's slot on a form as viewed.
func (s *SignatoryService) MarkSeen(ctx context.Context, formID, signatoryID string) error {
	if err := s.slots.MarkSeen(ctx, formID, signatoryID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark form seen")
	}
	return nil
}

// InvalidateQueues drops every cached pending-queue page. Called after
// decisions and submissions change queue contents.
func (s *SignatoryService) InvalidateQueues(ctx context.Context) {
	if !s.cacheEnabled() {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "pending_queue:*"); err != nil {
		s.logger.Warn("pending queue cache invalidation failed", zap.Error(err))
	}
}

func (s *SignatoryService) cacheEnabled() bool {
	return s.cfg.CacheEnabled && s.cache != nil
}

type pendingQueuePage struct {
	Items      []dto.PendingQueueItem `json:"items"`
	Pagination *models.Pagination     `json:"pagination"`
}

func pendingQueueKey(signatoryID string, page, perPage int) string {
	return fmt.Sprintf("pending_queue:%s:%d:%d", signatoryID, page, perPage)
}
