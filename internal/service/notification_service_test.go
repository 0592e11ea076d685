package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"jobboard-notify-be/internal/entity"
	"jobboard-notify-be/internal/feed"
	"jobboard-notify-be/internal/model"
	"jobboard-notify-be/internal/pkg/logger"
	"jobboard-notify-be/internal/repository"
	"jobboard-notify-be/internal/repository/memory"
	"jobboard-notify-be/pkg/changefeed"
	"jobboard-notify-be/pkg/events"
	"jobboard-notify-be/pkg/grouping"
	pktNats "jobboard-notify-be/pkg/nats"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMail struct {
	to, title, message, link string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *fakeMailer) SendNotification(toEmail, title, message, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{toEmail, title, message, link})
	return nil
}

type fakeSubscriber struct {
	subject, durable string
	handler          pktNats.EventHandler
}

func (f *fakeSubscriber) Subscribe(subject string, durableName string, handler pktNats.EventHandler) error {
	f.subject, f.durable, f.handler = subject, durableName, handler
	return nil
}

type fixture struct {
	svc    *NotificationService
	repo   *memory.NotificationRepository
	sub    *fakeSubscriber
	mailer *fakeMailer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := memory.NewNotificationRepository()
	bus := changefeed.NewGoChannelBus(nil)
	t.Cleanup(func() { _ = bus.Close() })

	f := &fixture{repo: repo, sub: &fakeSubscriber{}, mailer: &fakeMailer{}}
	f.svc = NewNotificationService(repo, f.sub, bus, f.mailer, logger.NewNopLogger())
	require.NoError(t, f.svc.Start())
	return f
}

func (f *fixture) apply(t *testing.T, company, jobID, title, sender string) {
	t.Helper()
	_, err := f.svc.Trigger(context.Background(), entity.NotificationTypeNewApplication, map[string]interface{}{
		"recipient_id": company,
		"job_id":       jobID,
		"job_title":    title,
		"sender_name":  sender,
	})
	require.NoError(t, err)
}

func TestStart_SubscribesToAllEvents(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, "events.>", f.sub.subject)
	assert.Equal(t, "notif-service-worker", f.sub.durable)
	assert.NotNil(t, f.sub.handler)
}

func TestHandleEvent_PersistsTemplatedNotification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.sub.handler(ctx, events.BaseEvent{
		Type: events.Subject(entity.NotificationTypeNewApplication),
		Data: map[string]interface{}{
			"recipient_id":    "company-1",
			"job_id":          "J1",
			"job_title":       "Backend Engineer",
			"sender_name":     "Alice",
			"recipient_email": "hr@company.test",
		},
		OccurredAt: time.Now(),
	})
	require.NoError(t, err)

	rows, err := f.repo.GetNotificationsByRecipient(ctx, "company-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "**Alice** applied for **Backend Engineer**.", rows[0].Message)
	assert.Equal(t, "/jobs/J1/applications", rows[0].Link)
	assert.False(t, rows[0].IsRead)

	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "hr@company.test", f.mailer.sent[0].to)
	assert.Equal(t, "/jobs/J1/applications", f.mailer.sent[0].link)
}

func TestHandleEvent_UnknownTypeIsAcked(t *testing.T) {
	f := newFixture(t)

	err := f.sub.handler(context.Background(), events.BaseEvent{
		Type: events.Subject("NO_SUCH_TYPE"),
		Data: map[string]interface{}{"recipient_id": "company-1", "sender_name": "Alice"},
	})

	assert.NoError(t, err)
}

func TestHandleEvent_InvalidPayloadIsPermanent(t *testing.T) {
	f := newFixture(t)

	err := f.sub.handler(context.Background(), events.BaseEvent{
		Type: events.Subject(entity.NotificationTypeNewApplication),
		Data: map[string]interface{}{"job_id": "J1"},
	})

	assert.ErrorIs(t, err, pktNats.ErrPermanent)
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestHandleEvent_StoreFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("connection reset")
	f.repo.FailWith(nil, boom)

	err := f.sub.handler(context.Background(), events.BaseEvent{
		Type: events.Subject(entity.NotificationTypeNewApplication),
		Data: map[string]interface{}{"recipient_id": "company-1", "job_id": "J1", "job_title": "Eng", "sender_name": "Alice"},
	})

	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, pktNats.ErrPermanent)
}

func TestTrigger_InactiveTypeCreatesNothing(t *testing.T) {
	f := newFixture(t)
	f.repo.PutNotificationType(model.NotificationType{Code: "MUTED", Template: "x", IsActive: false})

	notif, err := f.svc.Trigger(context.Background(), "MUTED", map[string]interface{}{"recipient_id": "company-1", "sender_name": "A"})

	require.NoError(t, err)
	assert.Nil(t, notif)
}

func TestInvalidateNotificationTypes_DeactivationTakesEffect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	payload := map[string]interface{}{"recipient_id": "company-1", "sender_name": "A"}
	f.repo.PutNotificationType(model.NotificationType{Code: "DIGEST", Template: "x", IsActive: true})

	notif, err := f.svc.Trigger(ctx, "DIGEST", payload)
	require.NoError(t, err)
	require.NotNil(t, notif)

	f.repo.PutNotificationType(model.NotificationType{Code: "DIGEST", Template: "x", IsActive: false})

	// Still served from the cache.
	notif, err = f.svc.Trigger(ctx, "DIGEST", payload)
	require.NoError(t, err)
	require.NotNil(t, notif)

	f.svc.InvalidateNotificationTypes("DIGEST")

	notif, err = f.svc.Trigger(ctx, "DIGEST", payload)
	require.NoError(t, err)
	assert.Nil(t, notif)
}

func TestInvalidateNotificationTypes_FlushAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	payload := map[string]interface{}{"recipient_id": "company-1", "sender_name": "A"}
	f.repo.PutNotificationType(model.NotificationType{Code: "DIGEST", Template: "x", IsActive: true})

	_, err := f.svc.Trigger(ctx, "DIGEST", payload)
	require.NoError(t, err)

	f.repo.PutNotificationType(model.NotificationType{Code: "DIGEST", Template: "x", IsActive: false})
	f.svc.InvalidateNotificationTypes()

	notif, err := f.svc.Trigger(ctx, "DIGEST", payload)
	require.NoError(t, err)
	assert.Nil(t, notif)
}

func TestTrigger_WebOnlyTypeSendsNoEmail(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Trigger(context.Background(), entity.NotificationTypeJobApproved, map[string]interface{}{
		"recipient_id":    "company-1",
		"sender_name":     "Admin",
		"job_title":       "Eng",
		"job_id":          "J1",
		"recipient_email": "hr@company.test",
	})

	require.NoError(t, err)
	assert.Empty(t, f.mailer.sent)
}

func TestGetNotifications_GroupsApplications(t *testing.T) {
	f := newFixture(t)
	f.apply(t, "company-1", "J1", "Engineer", "Carol")
	f.apply(t, "company-1", "J1", "Engineer", "Bob")
	f.apply(t, "company-1", "J1", "Engineer", "Alice")

	res, err := f.svc.GetNotifications(context.Background(), "company-1")
	require.NoError(t, err)

	require.Len(t, res.Data, 1)
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, 1, res.UnreadCount)
	assert.Equal(t, 3, res.Data[0].ApplicantCount)
	assert.Equal(t, "**3** new candidates have applied for **Engineer**.", res.Data[0].Message)
	assert.Equal(t, "Alice, Bob and 1 others", res.Data[0].SenderName)
	assert.True(t, grouping.IsSummaryID(res.Data[0].Id))
}

func TestMarkAsRead_SummaryMarksEveryApplication(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.apply(t, "company-1", "J1", "Engineer", "Bob")
	f.apply(t, "company-1", "J1", "Engineer", "Alice")

	res, err := f.svc.GetNotifications(ctx, "company-1")
	require.NoError(t, err)
	require.Len(t, res.Data, 1)

	require.NoError(t, f.svc.MarkAsRead(ctx, "company-1", res.Data[0].Id))

	rows, err := f.repo.GetNotificationsByRecipient(ctx, "company-1")
	require.NoError(t, err)
	for _, r := range rows {
		assert.True(t, r.IsRead, r.ID)
	}

	count, err := f.svc.GetUnreadCount(ctx, "company-1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMarkAsRead_StaleSummary(t *testing.T) {
	f := newFixture(t)
	f.apply(t, "company-1", "J1", "Engineer", "Bob")

	err := f.svc.MarkAsRead(context.Background(), "company-1", grouping.SummaryID("J1", "gone"))

	assert.ErrorIs(t, err, feed.ErrUnknownSummary)
}

func TestMarkAsRead_ForeignIDIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.apply(t, "company-2", "J9", "Designer", "Zed")
	rows, err := f.repo.GetNotificationsByRecipient(ctx, "company-2")
	require.NoError(t, err)

	err = f.svc.MarkAsRead(ctx, "company-1", rows[0].ID)

	assert.ErrorIs(t, err, repository.ErrNotificationNotFound)
}

func TestMarkAllAsRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.apply(t, "company-1", "J1", "Engineer", "Bob")
	f.apply(t, "company-1", "J1", "Engineer", "Alice")
	f.apply(t, "company-1", "J2", "Designer", "Dan")

	require.NoError(t, f.svc.MarkAllAsRead(ctx, "company-1"))

	count, err := f.svc.GetUnreadCount(ctx, "company-1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestOpenFeed_ReceivesNewApplications(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	fd, err := f.svc.OpenFeed(ctx, "company-1")
	require.NoError(t, err)
	defer fd.Close()
	assert.Empty(t, fd.Snapshot().Display)

	f.apply(t, "company-1", "J1", "Engineer", "Bob")
	f.apply(t, "company-1", "J1", "Engineer", "Alice")

	assert.Eventually(t, func() bool {
		snap := fd.Snapshot()
		return len(snap.Display) == 1 && snap.Display[0].ApplicantCount == 2
	}, 2*time.Second, 10*time.Millisecond)
}
