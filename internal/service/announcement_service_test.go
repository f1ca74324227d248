package service

import (
	"context"
	"database/sql"
	"sort"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/announcer-api/internal/dto"
	"github.com/noah-isme/announcer-api/internal/models"
	appErrors "github.com/noah-isme/announcer-api/pkg/errors"
)

type readerStub struct {
	rows map[int64]models.Announcement
	err  error
}

func (s *readerStub) GetByID(ctx context.Context, id int64) (*models.Announcement, error) {
	if s.err != nil {
		return nil, s.err
	}
	row, ok := s.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &row, nil
}

func (s *readerStub) ListAll(ctx context.Context) ([]models.Announcement, error) {
	if s.err != nil {
		return nil, s.err
	}
	rows := make([]models.Announcement, 0, len(s.rows))
	for _, row := range s.rows {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].SendAt.After(rows[j].SendAt) })
	return rows, nil
}

func (s *readerStub) GetDeliveredTo(ctx context.Context, id int64) ([]int64, error) {
	if s.err != nil {
		return nil, s.err
	}
	row, ok := s.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return append([]int64{}, row.DeliveredTo...), nil
}

type schedulerStub struct {
	scheduled []dto.CreateAnnouncementRequest
	err       error
}

func (s *schedulerStub) Schedule(ctx context.Context, content string, sendAt time.Time) (*models.Announcement, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.scheduled = append(s.scheduled, dto.CreateAnnouncementRequest{Content: content, SendAt: sendAt})
	return &models.Announcement{ID: int64(len(s.scheduled)), Content: content, SendAt: sendAt, Status: models.AnnouncementStatusScheduled}, nil
}

func newQueryService(reader *readerStub, scheduler *schedulerStub) *AnnouncementService {
	return NewAnnouncementService(reader, scheduler, validator.New(), nil, nil)
}

func TestAnnouncementServiceCreateSchedules(t *testing.T) {
	scheduler := &schedulerStub{}
	svc := newQueryService(&readerStub{}, scheduler)

	sendAt := time.Now().Add(time.Hour)
	announcement, err := svc.Create(context.Background(), dto.CreateAnnouncementRequest{Content: "hello", SendAt: sendAt})
	require.NoError(t, err)
	assert.Equal(t, int64(1), announcement.ID)
	require.Len(t, scheduler.scheduled, 1)
	assert.Equal(t, "hello", scheduler.scheduled[0].Content)
}

func TestAnnouncementServiceCreateRejectsMissingFields(t *testing.T) {
	scheduler := &schedulerStub{}
	svc := newQueryService(&readerStub{}, scheduler)

	_, err := svc.Create(context.Background(), dto.CreateAnnouncementRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, scheduler.scheduled)
}

func TestAnnouncementServiceGetUnknownID(t *testing.T) {
	svc := newQueryService(&readerStub{rows: map[int64]models.Announcement{}}, &schedulerStub{})

	_, err := svc.Get(context.Background(), 9999)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestAnnouncementServiceListNewestFirstAndIdempotent(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	reader := &readerStub{rows: map[int64]models.Announcement{
		1: {ID: 1, Content: "ten", SendAt: now.Add(time.Hour), Status: models.AnnouncementStatusDelivered},
		2: {ID: 2, Content: "nine", SendAt: now, Status: models.AnnouncementStatusDelivered},
		3: {ID: 3, Content: "eleven", SendAt: now.Add(2 * time.Hour), Status: models.AnnouncementStatusDelivered},
	}}
	svc := newQueryService(reader, &schedulerStub{})

	first, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.Equal(t, "eleven", first[0].Content)
	assert.Equal(t, "ten", first[1].Content)
	assert.Equal(t, "nine", first[2].Content)

	second, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAnnouncementServiceDeliveredToEmptyIsNotNull(t *testing.T) {
	reader := &readerStub{rows: map[int64]models.Announcement{
		1: {ID: 1, Content: "fresh", SendAt: time.Now(), DeliveredTo: pq.Int64Array{}, Status: models.AnnouncementStatusDelivering},
	}}
	svc := newQueryService(reader, &schedulerStub{})

	delivered, err := svc.DeliveredTo(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, delivered)
	assert.Empty(t, delivered)
}

func TestAnnouncementServiceDeliveredToUnknownID(t *testing.T) {
	svc := newQueryService(&readerStub{rows: map[int64]models.Announcement{}}, &schedulerStub{})

	_, err := svc.DeliveredTo(context.Background(), 42)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
