package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/announcer-api/internal/models"
)

func newAnnouncementRepoMock(t *testing.T) (*AnnouncementRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return NewAnnouncementRepository(sqlx.NewDb(db, "sqlmock")), mock, func() { db.Close() }
}

func announcementRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "content", "send_at", "delivered_to", "status", "created_at", "updated_at"})
}

func TestAnnouncementRepositoryInsertAssignsID(t *testing.T) {
	repo, mock, cleanup := newAnnouncementRepoMock(t)
	defer cleanup()

	sendAt := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO announcements")).
		WithArgs("hello", sendAt, sqlmock.AnyArg(), "SCHEDULED", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	announcement := &models.Announcement{Content: "hello", SendAt: sendAt}
	require.NoError(t, repo.Insert(context.Background(), announcement))
	require.Equal(t, int64(7), announcement.ID)
	require.Equal(t, models.AnnouncementStatusScheduled, announcement.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAnnouncementRepositoryUpdateDeliveredTo(t *testing.T) {
	repo, mock, cleanup := newAnnouncementRepoMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE announcements SET delivered_to = $1, updated_at = $2 WHERE id = $3")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateDeliveredTo(context.Background(), 7, []int64{1, 2, 3}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAnnouncementRepositoryUpdateDeliveredToUnknownID(t *testing.T) {
	repo, mock, cleanup := newAnnouncementRepoMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE announcements SET delivered_to = $1, updated_at = $2 WHERE id = $3")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), int64(9999)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateDeliveredTo(context.Background(), 9999, []int64{1})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAnnouncementRepositoryGetByIDExcludesArmed(t *testing.T) {
	repo, mock, cleanup := newAnnouncementRepoMock(t)
	defer cleanup()

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, content, send_at, delivered_to, status, created_at, updated_at FROM announcements WHERE id = $1 AND status <> $2")).
		WithArgs(int64(7), models.AnnouncementStatusScheduled).
		WillReturnRows(announcementRows().AddRow(int64(7), "hello", now, []byte("{1,2}"), "DELIVERING", now, now))

	announcement, err := repo.GetByID(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, int64(7), announcement.ID)
	require.Equal(t, []int64{1, 2}, []int64(announcement.DeliveredTo))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAnnouncementRepositoryGetByIDNotFound(t *testing.T) {
	repo, mock, cleanup := newAnnouncementRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, content, send_at, delivered_to, status, created_at, updated_at FROM announcements WHERE id = $1 AND status <> $2")).
		WithArgs(int64(9999), models.AnnouncementStatusScheduled).
		WillReturnRows(announcementRows())

	_, err := repo.GetByID(context.Background(), 9999)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAnnouncementRepositoryListAllOrdersBySendAtDesc(t *testing.T) {
	repo, mock, cleanup := newAnnouncementRepoMock(t)
	defer cleanup()

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, content, send_at, delivered_to, status, created_at, updated_at FROM announcements WHERE status <> $1 ORDER BY send_at DESC")).
		WithArgs(models.AnnouncementStatusScheduled).
		WillReturnRows(announcementRows().
			AddRow(int64(3), "eleven", now.Add(2*time.Hour), []byte("{}"), "DELIVERED", now, now).
			AddRow(int64(1), "ten", now.Add(time.Hour), []byte("{}"), "DELIVERED", now, now).
			AddRow(int64(2), "nine", now, []byte("{}"), "DELIVERED", now, now))

	announcements, err := repo.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, announcements, 3)
	require.Equal(t, "eleven", announcements[0].Content)
	require.Equal(t, "nine", announcements[2].Content)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAnnouncementRepositoryGetDeliveredToEmpty(t *testing.T) {
	repo, mock, cleanup := newAnnouncementRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT delivered_to FROM announcements WHERE id = $1 AND status <> $2")).
		WithArgs(int64(7), models.AnnouncementStatusScheduled).
		WillReturnRows(sqlmock.NewRows([]string{"delivered_to"}).AddRow([]byte("{}")))

	delivered, err := repo.GetDeliveredTo(context.Background(), 7)
	require.NoError(t, err)
	require.Empty(t, delivered)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAnnouncementRepositoryListIncomplete(t *testing.T) {
	repo, mock, cleanup := newAnnouncementRepoMock(t)
	defer cleanup()

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, content, send_at, delivered_to, status, created_at, updated_at FROM announcements WHERE status <> $1 ORDER BY send_at ASC LIMIT $2")).
		WithArgs(models.AnnouncementStatusDelivered, 500).
		WillReturnRows(announcementRows().
			AddRow(int64(1), "armed", now.Add(time.Hour), []byte("{}"), "SCHEDULED", now, now).
			AddRow(int64(2), "interrupted", now.Add(-time.Hour), []byte("{1,2,3}"), "DELIVERING", now, now))

	incomplete, err := repo.ListIncomplete(context.Background(), 500)
	require.NoError(t, err)
	require.Len(t, incomplete, 2)
	require.Equal(t, models.AnnouncementStatusDelivering, incomplete[1].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}
