package models

import (
	"time"

	"github.com/lib/pq"
)

// AnnouncementStatus tracks an announcement through its delivery lifecycle.
type AnnouncementStatus string

const (
	// AnnouncementStatusScheduled means the timer is armed but has not fired.
	// Scheduled rows are invisible to the query endpoints.
	AnnouncementStatusScheduled AnnouncementStatus = "SCHEDULED"
	// AnnouncementStatusDelivering means the timer fired and the roster pass
	// is in progress (or was interrupted by a restart).
	AnnouncementStatusDelivering AnnouncementStatus = "DELIVERING"
	// AnnouncementStatusDelivered means every roster member has been recorded.
	AnnouncementStatusDelivered AnnouncementStatus = "DELIVERED"
)

// Announcement represents a persisted announcement row.
//
// DeliveredTo grows append-only in roster order and never contains
// duplicates; once it equals the full roster the announcement is complete
// and stays complete. Rows are never deleted.
type Announcement struct {
	ID          int64              `db:"id" json:"id"`
	Content     string             `db:"content" json:"content"`
	SendAt      time.Time          `db:"send_at" json:"send_at"`
	DeliveredTo pq.Int64Array      `db:"delivered_to" json:"delivered_to"`
	Status      AnnouncementStatus `db:"status" json:"status"`
	CreatedAt   time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `db:"updated_at" json:"updated_at"`
}

// Complete reports whether the announcement reached the whole roster.
func (a *Announcement) Complete(roster Roster) bool {
	return len(a.DeliveredTo) >= len(roster)
}
