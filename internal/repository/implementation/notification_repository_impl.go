package implementation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"jobboard-notify-be/internal/model"
	"jobboard-notify-be/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type NotificationRepositoryImpl struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) repository.NotificationRepository {
	return &NotificationRepositoryImpl{db: db}
}

func (r *NotificationRepositoryImpl) CreateNotification(ctx context.Context, notification *model.Notification) error {
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(notification).Error
}

func (r *NotificationRepositoryImpl) GetNotificationsByRecipient(ctx context.Context, recipientID string) ([]model.Notification, error) {
	var notifications []model.Notification
	err := r.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&notifications).Error
	return notifications, err
}

func (r *NotificationRepositoryImpl) MarkAsRead(ctx context.Context, recipientID string, ids []string) error {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil
	}

	now := time.Now().UTC()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.Notification{}).
			Where("recipient_id = ? AND id IN ?", recipientID, ids).
			Updates(map[string]interface{}{
				"is_read": true,
				"read_at": gorm.Expr("COALESCE(read_at, ?)", now),
			})
		if result.Error != nil {
			return result.Error
		}
		// Postgres reports matched rows, so already-read rows still count.
		if result.RowsAffected != int64(len(ids)) {
			return fmt.Errorf("%w: %d of %d ids matched", repository.ErrNotificationNotFound, result.RowsAffected, len(ids))
		}
		return nil
	})
}

func (r *NotificationRepositoryImpl) GetNotificationTypeByCode(ctx context.Context, code string) (*model.NotificationType, error) {
	var notifType model.NotificationType
	err := r.db.WithContext(ctx).
		Where("code = ?", code).
		First(&notifType).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrNotificationTypeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &notifType, nil
}

func uniqueIDs(ids []string) []string {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
