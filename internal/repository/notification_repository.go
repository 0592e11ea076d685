package repository

import (
	"context"
	"errors"

	"jobboard-notify-be/internal/model"
)

var (
	ErrNotificationNotFound     = errors.New("notification not found")
	ErrNotificationTypeNotFound = errors.New("notification type not found")
)

type NotificationRepository interface {
	// CreateNotification assigns ID and CreatedAt when they are empty.
	CreateNotification(ctx context.Context, notification *model.Notification) error
	// GetNotificationsByRecipient returns the full set ordered by created_at DESC.
	GetNotificationsByRecipient(ctx context.Context, recipientID string) ([]model.Notification, error)
	// MarkAsRead flags every id as read in one transaction. If any id is
	// unknown for the recipient nothing is written and ErrNotificationNotFound
	// is returned.
	MarkAsRead(ctx context.Context, recipientID string, ids []string) error

	GetNotificationTypeByCode(ctx context.Context, code string) (*model.NotificationType, error)
}
