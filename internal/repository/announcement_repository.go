package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/announcer-api/internal/models"
)

// AnnouncementRepository provides persistence for announcements.
type AnnouncementRepository struct {
	db *sqlx.DB
}

// NewAnnouncementRepository creates the repository.
func NewAnnouncementRepository(db *sqlx.DB) *AnnouncementRepository {
	return &AnnouncementRepository{db: db}
}

const announcementSchema = `CREATE TABLE IF NOT EXISTS announcements (
	id           BIGSERIAL PRIMARY KEY,
	content      TEXT NOT NULL,
	send_at      TIMESTAMPTZ NOT NULL,
	delivered_to BIGINT[] NOT NULL DEFAULT '{}',
	status       TEXT NOT NULL DEFAULT 'SCHEDULED',
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
)`

// EnsureSchema creates the announcements table when it does not exist yet.
func (r *AnnouncementRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, announcementSchema); err != nil {
		return fmt.Errorf("ensure announcements schema: %w", err)
	}
	return nil
}

const announcementColumns = "id, content, send_at, delivered_to, status, created_at, updated_at"

// Insert persists a new announcement and assigns its id. Ids are monotonic
// and never reused.
func (r *AnnouncementRepository) Insert(ctx context.Context, announcement *models.Announcement) error {
	now := time.Now().UTC()
	if announcement.CreatedAt.IsZero() {
		announcement.CreatedAt = now
	}
	announcement.UpdatedAt = now
	if announcement.Status == "" {
		announcement.Status = models.AnnouncementStatusScheduled
	}
	if announcement.DeliveredTo == nil {
		announcement.DeliveredTo = pq.Int64Array{}
	}
	const query = `INSERT INTO announcements (content, send_at, delivered_to, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query,
		announcement.Content,
		announcement.SendAt,
		announcement.DeliveredTo,
		announcement.Status,
		announcement.CreatedAt,
		announcement.UpdatedAt,
	).Scan(&announcement.ID); err != nil {
		return fmt.Errorf("insert announcement: %w", err)
	}
	return nil
}

// UpdateDeliveredTo overwrites the delivery progress for the given id.
// Returns sql.ErrNoRows when the id is unknown.
func (r *AnnouncementRepository) UpdateDeliveredTo(ctx context.Context, id int64, recipients []int64) error {
	const query = `UPDATE announcements SET delivered_to = $1, updated_at = $2 WHERE id = $3`
	res, err := r.db.ExecContext(ctx, query, pq.Int64Array(recipients), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update delivered_to for announcement %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update delivered_to for announcement %d: %w", id, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateStatus advances the lifecycle status for the given id.
func (r *AnnouncementRepository) UpdateStatus(ctx context.Context, id int64, status models.AnnouncementStatus) error {
	const query = `UPDATE announcements SET status = $1, updated_at = $2 WHERE id = $3`
	res, err := r.db.ExecContext(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update status for announcement %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update status for announcement %d: %w", id, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetByID returns an announcement whose timer has fired. Armed schedules are
// not visible to queries.
func (r *AnnouncementRepository) GetByID(ctx context.Context, id int64) (*models.Announcement, error) {
	query := fmt.Sprintf(`SELECT %s FROM announcements WHERE id = $1 AND status <> $2`, announcementColumns)
	var announcement models.Announcement
	if err := r.db.GetContext(ctx, &announcement, query, id, models.AnnouncementStatusScheduled); err != nil {
		return nil, err
	}
	return &announcement, nil
}

// ListAll returns every fired announcement, newest send_at first.
func (r *AnnouncementRepository) ListAll(ctx context.Context) ([]models.Announcement, error) {
	query := fmt.Sprintf(`SELECT %s FROM announcements WHERE status <> $1 ORDER BY send_at DESC`, announcementColumns)
	var announcements []models.Announcement
	if err := r.db.SelectContext(ctx, &announcements, query, models.AnnouncementStatusScheduled); err != nil {
		return nil, fmt.Errorf("list announcements: %w", err)
	}
	return announcements, nil
}

// GetDeliveredTo returns the ordered recipient ids already delivered to.
// An announcement with no deliveries yet yields an empty slice.
func (r *AnnouncementRepository) GetDeliveredTo(ctx context.Context, id int64) ([]int64, error) {
	const query = `SELECT delivered_to FROM announcements WHERE id = $1 AND status <> $2`
	var delivered pq.Int64Array
	if err := r.db.GetContext(ctx, &delivered, query, id, models.AnnouncementStatusScheduled); err != nil {
		return nil, err
	}
	return []int64(delivered), nil
}

// GetAnyByID returns an announcement regardless of status. Used by the
// delivery path, which must see armed rows.
func (r *AnnouncementRepository) GetAnyByID(ctx context.Context, id int64) (*models.Announcement, error) {
	query := fmt.Sprintf(`SELECT %s FROM announcements WHERE id = $1`, announcementColumns)
	var announcement models.Announcement
	if err := r.db.GetContext(ctx, &announcement, query, id); err != nil {
		return nil, err
	}
	return &announcement, nil
}

// ListIncomplete returns announcements whose delivery has not finished,
// oldest send_at first, for startup recovery.
func (r *AnnouncementRepository) ListIncomplete(ctx context.Context, limit int) ([]models.Announcement, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT %s FROM announcements WHERE status <> $1 ORDER BY send_at ASC LIMIT $2`, announcementColumns)
	var announcements []models.Announcement
	if err := r.db.SelectContext(ctx, &announcements, query, models.AnnouncementStatusDelivered, limit); err != nil {
		return nil, fmt.Errorf("list incomplete announcements: %w", err)
	}
	return announcements, nil
}
