package entity

import "time"

const (
	NotificationTypeNewApplication           = "NEW_APPLICATION"
	NotificationTypeApplicationStatusChanged = "APPLICATION_STATUS_CHANGED"
	NotificationTypeAssessmentAssigned       = "ASSESSMENT_ASSIGNED"
	NotificationTypeSubscriptionExpiring     = "SUBSCRIPTION_EXPIRING"
	NotificationTypeJobApproved              = "JOB_APPROVED"
)

// RawNotification is one event as persisted by the store.
type RawNotification struct {
	ID          string
	RecipientID string
	Type        string
	JobID       string
	JobTitle    string
	SenderName  string
	Message     string
	Link        string
	IsRead      bool
	CreatedAt   time.Time
}

// DisplayNotification is either a raw notification passed through or a
// summary of several unread NEW_APPLICATION events for the same job.
type DisplayNotification struct {
	RawNotification

	// Set only on summaries.
	ApplicantCount    int
	NewApplicantNames []string
	OriginalIDs       []string
}

func (d DisplayNotification) IsSummary() bool {
	return len(d.OriginalIDs) > 0
}
