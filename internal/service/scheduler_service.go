package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/announcer-api/internal/models"
	"github.com/noah-isme/announcer-api/pkg/jobs"
)

type announcementStore interface {
	Insert(ctx context.Context, announcement *models.Announcement) error
	UpdateDeliveredTo(ctx context.Context, id int64, recipients []int64) error
	UpdateStatus(ctx context.Context, id int64, status models.AnnouncementStatus) error
	GetAnyByID(ctx context.Context, id int64) (*models.Announcement, error)
	ListIncomplete(ctx context.Context, limit int) ([]models.Announcement, error)
}

type deliveryDispatcher interface {
	Enqueue(job jobs.Job) error
}

// SchedulerService owns the announcement lifecycle: it persists the armed
// schedule, waits out the delay, and runs the roster delivery pass.
//
// The store is the sole source of truth; the only in-memory state is the map
// of pending timers, so a restart loses nothing that Recover cannot re-arm.
type SchedulerService struct {
	repo    announcementStore
	sink    DeliverySink
	roster  models.Roster
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
	cfg     SchedulerServiceConfig

	dispatcher deliveryDispatcher
	now        func() time.Time

	mu     sync.Mutex
	timers map[int64]*time.Timer
}

// SchedulerServiceConfig governs startup recovery.
type SchedulerServiceConfig struct {
	RecoveryLimit int
}

// NewSchedulerService constructs the scheduler. The delivery dispatcher is
// attached separately because the queue's handler is the scheduler itself.
func NewSchedulerService(repo announcementStore, sink DeliverySink, roster models.Roster, cache *CacheService, metrics *MetricsService, logger *zap.Logger, cfg SchedulerServiceConfig) *SchedulerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RecoveryLimit <= 0 {
		cfg.RecoveryLimit = 500
	}
	return &SchedulerService{
		repo:    repo,
		sink:    sink,
		roster:  roster,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
		timers:  make(map[int64]*time.Timer),
	}
}

// SetDispatcher attaches the worker queue that executes delivery passes.
func (s *SchedulerService) SetDispatcher(d deliveryDispatcher) {
	s.dispatcher = d
}

// Schedule persists the armed schedule and arms exactly one timer for it.
// It returns immediately; delivery happens asynchronously. Empty content and
// past send times are accepted, a past send_at fires with zero delay.
func (s *SchedulerService) Schedule(ctx context.Context, content string, sendAt time.Time) (*models.Announcement, error) {
	announcement := &models.Announcement{
		Content: content,
		SendAt:  sendAt.UTC(),
		Status:  models.AnnouncementStatusScheduled,
	}
	if err := s.repo.Insert(ctx, announcement); err != nil {
		return nil, err
	}

	delay := announcement.SendAt.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	s.arm(announcement.ID, delay)

	s.logger.Info("announcement scheduled",
		zap.Int64("announcement_id", announcement.ID),
		zap.Time("send_at", announcement.SendAt),
		zap.Duration("delay", delay),
	)
	return announcement, nil
}

// Recover re-arms timers for every persisted-but-incomplete announcement.
// Rows whose send_at already passed fire immediately; DELIVERING rows resume
// mid-roster because the pass skips recipients already recorded.
func (s *SchedulerService) Recover(ctx context.Context) error {
	incomplete, err := s.repo.ListIncomplete(ctx, s.cfg.RecoveryLimit)
	if err != nil {
		return err
	}
	for i := range incomplete {
		announcement := &incomplete[i]
		delay := announcement.SendAt.Sub(s.now())
		if delay < 0 {
			delay = 0
		}
		s.arm(announcement.ID, delay)
	}
	if len(incomplete) > 0 {
		s.logger.Info("recovered incomplete announcements", zap.Int("count", len(incomplete)))
	}
	return nil
}

// Pending reports the number of armed, not-yet-fired timers.
func (s *SchedulerService) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop disarms all pending timers. The schedules stay persisted and are
// re-armed by Recover on the next start.
func (s *SchedulerService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
	s.metrics.SetPendingSchedules(0)
}

func (s *SchedulerService) arm(id int64, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.timers[id]; exists {
		return
	}
	s.timers[id] = time.AfterFunc(delay, func() { s.fire(id) })
	s.metrics.SetPendingSchedules(len(s.timers))
}

func (s *SchedulerService) fire(id int64) {
	s.mu.Lock()
	delete(s.timers, id)
	s.metrics.SetPendingSchedules(len(s.timers))
	s.mu.Unlock()

	if s.dispatcher == nil {
		s.logger.Error("no delivery dispatcher attached", zap.Int64("announcement_id", id))
		return
	}
	job := jobs.Job{ID: uuid.NewString(), AnnouncementID: id}
	if err := s.dispatcher.Enqueue(job); err != nil {
		s.logger.Error("failed to enqueue delivery",
			zap.Int64("announcement_id", id), zap.Error(err))
	}
}

// Deliver runs one sequential roster pass for the job's announcement. It is
// the queue handler: returning an error triggers the queue's retry, and the
// pass is resumable because each recipient is persisted before the next one
// is attempted.
func (s *SchedulerService) Deliver(ctx context.Context, job jobs.Job) error {
	start := s.now()

	announcement, err := s.repo.GetAnyByID(ctx, job.AnnouncementID)
	if err != nil {
		s.metrics.ObserveDeliveryPass(s.now().Sub(start), err)
		return err
	}
	if announcement.Status == models.AnnouncementStatusDelivered {
		return nil
	}
	if announcement.Status == models.AnnouncementStatusScheduled {
		if err := s.repo.UpdateStatus(ctx, announcement.ID, models.AnnouncementStatusDelivering); err != nil {
			s.metrics.ObserveDeliveryPass(s.now().Sub(start), err)
			return err
		}
	}

	delivered := make(map[int64]struct{}, len(announcement.DeliveredTo))
	progress := make([]int64, 0, len(s.roster))
	for _, recipient := range announcement.DeliveredTo {
		delivered[recipient] = struct{}{}
		progress = append(progress, recipient)
	}

	err = s.pass(ctx, announcement.ID, announcement.Content, delivered, progress)
	s.metrics.ObserveDeliveryPass(s.now().Sub(start), err)
	s.invalidateQueries(ctx)
	if err != nil {
		return err
	}

	s.logger.Info("announcement delivered",
		zap.Int64("announcement_id", announcement.ID),
		zap.Int("recipients", len(s.roster)),
		zap.Duration("dur", s.now().Sub(start)),
	)
	return nil
}

func (s *SchedulerService) pass(ctx context.Context, id int64, content string, delivered map[int64]struct{}, progress []int64) error {
	for _, recipient := range s.roster {
		if _, ok := delivered[recipient]; ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.sink.Deliver(ctx, id, recipient, content); err != nil {
			return err
		}
		progress = append(progress, recipient)
		if err := s.repo.UpdateDeliveredTo(ctx, id, progress); err != nil {
			return err
		}
		delivered[recipient] = struct{}{}
		s.metrics.RecordDelivery()
	}
	return s.repo.UpdateStatus(ctx, id, models.AnnouncementStatusDelivered)
}

func (s *SchedulerService) invalidateQueries(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, "announcements:*"); err != nil {
		s.logger.Warn("query cache invalidation failed", zap.Error(err))
	}
}
