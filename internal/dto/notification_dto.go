package dto

import (
	"time"

	"jobboard-notify-be/internal/entity"
)

// NotificationEventPayload is the part of an event payload every notification
// needs. Extra keys stay available to templates.
type NotificationEventPayload struct {
	RecipientID    string `json:"recipient_id" validate:"required"`
	SenderName     string `json:"sender_name" validate:"required"`
	JobID          string `json:"job_id" validate:"required_with=JobTitle"`
	JobTitle       string `json:"job_title"`
	Link           string `json:"link" validate:"omitempty,uri"`
	RecipientEmail string `json:"recipient_email" validate:"omitempty,email"`
}

type NotificationResponse struct {
	Id                string    `json:"id"`
	RecipientId       string    `json:"recipient_id"`
	Type              string    `json:"type"`
	JobId             string    `json:"job_id,omitempty"`
	JobTitle          string    `json:"job_title,omitempty"`
	SenderName        string    `json:"sender_name"`
	Message           string    `json:"message"`
	Link              string    `json:"link"`
	IsRead            bool      `json:"is_read"`
	CreatedAt         time.Time `json:"created_at"`
	ApplicantCount    int       `json:"applicant_count,omitempty"`
	NewApplicantNames []string  `json:"new_applicant_names,omitempty"`
	OriginalIds       []string  `json:"original_ids,omitempty"`
}

type NotificationListResponse struct {
	Data        []NotificationResponse `json:"data"`
	UnreadCount int                    `json:"unread_count"`
	Total       int                    `json:"total"`
}

type UnreadCountResponse struct {
	Count int `json:"count"`
}

type TriggerNotificationRequest struct {
	Type    string                 `json:"type" validate:"required"`
	Payload map[string]interface{} `json:"payload"`
}

func ToNotificationResponse(d entity.DisplayNotification) NotificationResponse {
	return NotificationResponse{
		Id:                d.ID,
		RecipientId:       d.RecipientID,
		Type:              d.Type,
		JobId:             d.JobID,
		JobTitle:          d.JobTitle,
		SenderName:        d.SenderName,
		Message:           d.Message,
		Link:              d.Link,
		IsRead:            d.IsRead,
		CreatedAt:         d.CreatedAt,
		ApplicantCount:    d.ApplicantCount,
		NewApplicantNames: d.NewApplicantNames,
		OriginalIds:       d.OriginalIDs,
	}
}

func ToNotificationListResponse(display []entity.DisplayNotification, unread int) NotificationListResponse {
	data := make([]NotificationResponse, 0, len(display))
	for _, d := range display {
		data = append(data, ToNotificationResponse(d))
	}
	return NotificationListResponse{
		Data:        data,
		UnreadCount: unread,
		Total:       len(data),
	}
}
