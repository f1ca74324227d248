package dto

import (
	"time"

	"github.com/noah-isme/announcer-api/internal/models"
)

// CreateAnnouncementRequest describes the create payload. The timestamp is
// RFC 3339; a send_at in the past is accepted and delivered immediately, and
// empty content is allowed.
type CreateAnnouncementRequest struct {
	Content string    `json:"content"`
	SendAt  time.Time `json:"send_at" validate:"required"`
}

// CreateAnnouncementResponse confirms scheduling. Delivery happens later;
// progress is observable through the query endpoints.
type CreateAnnouncementResponse struct {
	ID      int64  `json:"id"`
	Message string `json:"message"`
}

// AnnouncementResponse is the client-facing projection of a delivered or
// in-delivery announcement.
type AnnouncementResponse struct {
	ID          int64                     `json:"id"`
	Content     string                    `json:"content"`
	SendAt      time.Time                 `json:"send_at"`
	DeliveredTo []int64                   `json:"delivered_to"`
	Status      models.AnnouncementStatus `json:"status"`
}

// NewAnnouncementResponse maps a model row to its API projection, ensuring
// delivered_to serializes as [] rather than null when empty.
func NewAnnouncementResponse(a *models.Announcement) AnnouncementResponse {
	delivered := make([]int64, len(a.DeliveredTo))
	copy(delivered, a.DeliveredTo)
	return AnnouncementResponse{
		ID:          a.ID,
		Content:     a.Content,
		SendAt:      a.SendAt,
		DeliveredTo: delivered,
		Status:      a.Status,
	}
}
