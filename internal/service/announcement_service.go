package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/announcer-api/internal/dto"
	"github.com/noah-isme/announcer-api/internal/models"
	appErrors "github.com/noah-isme/announcer-api/pkg/errors"
)

type announcementReader interface {
	GetByID(ctx context.Context, id int64) (*models.Announcement, error)
	ListAll(ctx context.Context) ([]models.Announcement, error)
	GetDeliveredTo(ctx context.Context, id int64) ([]int64, error)
}

type announcementScheduler interface {
	Schedule(ctx context.Context, content string, sendAt time.Time) (*models.Announcement, error)
}

// AnnouncementService handles announcement creation and the read-only
// query projections over the store.
type AnnouncementService struct {
	repo      announcementReader
	scheduler announcementScheduler
	validator *validator.Validate
	cache     *CacheService
	logger    *zap.Logger
}

// NewAnnouncementService constructs the service.
func NewAnnouncementService(repo announcementReader, scheduler announcementScheduler, validate *validator.Validate, cache *CacheService, logger *zap.Logger) *AnnouncementService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnnouncementService{
		repo:      repo,
		scheduler: scheduler,
		validator: validate,
		cache:     cache,
		logger:    logger,
	}
}

// Create validates the payload and registers the announcement with the
// scheduler. Creation always succeeds immediately; delivery is asynchronous.
func (s *AnnouncementService) Create(ctx context.Context, req dto.CreateAnnouncementRequest) (*models.Announcement, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	announcement, err := s.scheduler.Schedule(ctx, req.Content, req.SendAt)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to schedule announcement")
	}
	return announcement, nil
}

// Get returns a fired announcement by id.
func (s *AnnouncementService) Get(ctx context.Context, id int64) (*dto.AnnouncementResponse, error) {
	cacheKey := fmt.Sprintf("announcements:id:%d", id)
	var cached dto.AnnouncementResponse
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return &cached, nil
	}

	announcement, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to get announcement")
	}
	resp := dto.NewAnnouncementResponse(announcement)
	_ = s.cache.Set(ctx, cacheKey, resp, 0)
	return &resp, nil
}

// List returns every fired announcement, newest send_at first.
func (s *AnnouncementService) List(ctx context.Context) ([]dto.AnnouncementResponse, error) {
	const cacheKey = "announcements:list"
	var cached []dto.AnnouncementResponse
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return cached, nil
	}

	announcements, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list announcements")
	}
	responses := make([]dto.AnnouncementResponse, 0, len(announcements))
	for i := range announcements {
		responses = append(responses, dto.NewAnnouncementResponse(&announcements[i]))
	}
	_ = s.cache.Set(ctx, cacheKey, responses, 0)
	return responses, nil
}

// DeliveredTo returns the ordered recipient ids already delivered to. An
// announcement with no deliveries yet yields an empty list, never null.
func (s *AnnouncementService) DeliveredTo(ctx context.Context, id int64) ([]int64, error) {
	cacheKey := fmt.Sprintf("announcements:id:%d:delivered", id)
	var cached []int64
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return cached, nil
	}

	delivered, err := s.repo.GetDeliveredTo(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to get delivery roster")
	}
	if delivered == nil {
		delivered = []int64{}
	}
	_ = s.cache.Set(ctx, cacheKey, delivered, 0)
	return delivered, nil
}
