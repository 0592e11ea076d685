package mapper

import (
	"jobboard-notify-be/internal/entity"
	"jobboard-notify-be/internal/model"
)

type NotificationMapper struct{}

func NewNotificationMapper() *NotificationMapper {
	return &NotificationMapper{}
}

func (m *NotificationMapper) ToEntity(n *model.Notification) *entity.RawNotification {
	if n == nil {
		return nil
	}
	return &entity.RawNotification{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		Type:        n.TypeCode,
		JobID:       n.JobID,
		JobTitle:    n.JobTitle,
		SenderName:  n.SenderName,
		Message:     n.Message,
		Link:        n.Link,
		IsRead:      n.IsRead,
		CreatedAt:   n.CreatedAt,
	}
}

func (m *NotificationMapper) ToEntities(notifications []model.Notification) []entity.RawNotification {
	out := make([]entity.RawNotification, 0, len(notifications))
	for i := range notifications {
		out = append(out, *m.ToEntity(&notifications[i]))
	}
	return out
}

// ToModel leaves ID and CreatedAt as given; the repository assigns them.
func (m *NotificationMapper) ToModel(e *entity.RawNotification) *model.Notification {
	if e == nil {
		return nil
	}
	return &model.Notification{
		ID:          e.ID,
		RecipientID: e.RecipientID,
		TypeCode:    e.Type,
		JobID:       e.JobID,
		JobTitle:    e.JobTitle,
		SenderName:  e.SenderName,
		Message:     e.Message,
		Link:        e.Link,
		IsRead:      e.IsRead,
		CreatedAt:   e.CreatedAt,
	}
}
