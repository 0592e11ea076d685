package model

import (
	"time"

	"gorm.io/datatypes"
)

const (
	ChannelWeb   = "web"
	ChannelEmail = "email"
)

// NotificationType serves as a registry for event-to-notification mapping.
type NotificationType struct {
	ID          uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	Code        string         `gorm:"type:varchar(50);unique;not null" json:"code"`
	DisplayName string         `gorm:"type:varchar(100);not null" json:"display_name"`
	Template    string         `gorm:"type:text;not null" json:"template"`
	Channels    datatypes.JSON `gorm:"type:jsonb;default:'[\"web\"]'" json:"channels"`
	IsActive    bool           `gorm:"default:true" json:"is_active"`
	CreatedAt   time.Time      `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// Notification is the persisted raw notification of one recipient.
type Notification struct {
	ID          string         `gorm:"type:varchar(64);primaryKey" json:"id"`
	RecipientID string         `gorm:"type:varchar(128);not null;index:idx_notifications_recipient_created,priority:1;index:idx_notifications_recipient_unread,priority:1" json:"recipient_id"`
	TypeCode    string         `gorm:"type:varchar(50);not null;index:idx_notifications_type" json:"type"`
	JobID       string         `gorm:"type:varchar(64);index:idx_notifications_job" json:"job_id,omitempty"`
	JobTitle    string         `gorm:"type:varchar(200)" json:"job_title,omitempty"`
	SenderName  string         `gorm:"type:varchar(200)" json:"sender_name"`
	Message     string         `gorm:"type:text;not null" json:"message"`
	Link        string         `gorm:"type:varchar(500)" json:"link"`
	Metadata    datatypes.JSON `gorm:"type:jsonb" json:"metadata,omitempty"`
	IsRead      bool           `gorm:"default:false;index:idx_notifications_recipient_unread,priority:2" json:"is_read"`
	ReadAt      *time.Time     `json:"read_at,omitempty"`
	CreatedAt   time.Time      `gorm:"not null;index:idx_notifications_recipient_created,priority:2" json:"created_at"`
}

// DefaultNotificationTypes is the registry seeded on migration.
func DefaultNotificationTypes() []NotificationType {
	web := datatypes.JSON([]byte(`["web"]`))
	webAndEmail := datatypes.JSON([]byte(`["web", "email"]`))

	return []NotificationType{
		{
			Code:        "NEW_APPLICATION",
			DisplayName: "New Application",
			Template:    "**{sender_name}** applied for **{job_title}**.",
			Channels:    webAndEmail,
			IsActive:    true,
		},
		{
			Code:        "APPLICATION_STATUS_CHANGED",
			DisplayName: "Application Update",
			Template:    "Your application for **{job_title}** is now **{status}**.",
			Channels:    webAndEmail,
			IsActive:    true,
		},
		{
			Code:        "ASSESSMENT_ASSIGNED",
			DisplayName: "Assessment Assigned",
			Template:    "**{sender_name}** assigned you an assessment for **{job_title}**.",
			Channels:    webAndEmail,
			IsActive:    true,
		},
		{
			Code:        "SUBSCRIPTION_EXPIRING",
			DisplayName: "Subscription Expiring",
			Template:    "Your **{plan_name}** subscription expires on {expires_at}.",
			Channels:    web,
			IsActive:    true,
		},
		{
			Code:        "JOB_APPROVED",
			DisplayName: "Job Approved",
			Template:    "**{job_title}** was approved by {sender_name} and is now live.",
			Channels:    web,
			IsActive:    true,
		},
	}
}
