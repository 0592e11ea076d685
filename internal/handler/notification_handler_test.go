package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"jobboard-notify-be/internal/dto"
	"jobboard-notify-be/internal/entity"
	"jobboard-notify-be/internal/model"
	"jobboard-notify-be/internal/pkg/logger"
	"jobboard-notify-be/internal/pkg/serverutils"
	"jobboard-notify-be/internal/repository/memory"
	"jobboard-notify-be/internal/service"
	internalWS "jobboard-notify-be/internal/websocket"
	"jobboard-notify-be/pkg/changefeed"
	"jobboard-notify-be/pkg/events"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "handler-secret"

type recordingPublisher struct {
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, event events.Event) error {
	p.events = append(p.events, event)
	return nil
}

type testApp struct {
	app  *fiber.App
	svc  *service.NotificationService
	repo *memory.NotificationRepository
}

func newTestApp(t *testing.T, pub EventPublisher) *testApp {
	t.Helper()
	bus := changefeed.NewGoChannelBus(nil)
	t.Cleanup(func() { _ = bus.Close() })

	log := logger.NewNopLogger()
	repo := memory.NewNotificationRepository()
	svc := service.NewNotificationService(repo, nil, bus, nil, log)
	hub := internalWS.NewHub(svc, log)

	app := fiber.New()
	app.Use(serverutils.ErrorHandlerMiddleware())
	NewNotificationHandler(svc, pub, hub, testSecret, log).RegisterRoutes(app.Group("/api"))
	return &testApp{app: app, svc: svc, repo: repo}
}

func token(t *testing.T, companyID string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"company_id": companyID}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func (a *testApp) do(t *testing.T, method, path, companyID string, body interface{}) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if companyID != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, companyID))
	}
	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func (a *testApp) apply(t *testing.T, companyID, jobID, sender string) {
	t.Helper()
	_, err := a.svc.Trigger(context.Background(), entity.NotificationTypeNewApplication, map[string]interface{}{
		"recipient_id": companyID,
		"job_id":       jobID,
		"job_title":    "Engineer",
		"sender_name":  sender,
	})
	require.NoError(t, err)
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestRoutes_RequireToken(t *testing.T) {
	a := newTestApp(t, nil)

	resp := a.do(t, http.MethodGet, "/api/notifications", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp = a.do(t, http.MethodGet, "/api/ws", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestGetNotifications_Grouped(t *testing.T) {
	a := newTestApp(t, nil)
	a.apply(t, "company-1", "J1", "Carol")
	a.apply(t, "company-1", "J1", "Bob")
	a.apply(t, "company-1", "J1", "Alice")
	a.apply(t, "company-2", "J1", "Mallory")

	resp := a.do(t, http.MethodGet, "/api/notifications", "company-1", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	list := decode[dto.NotificationListResponse](t, resp)
	require.Len(t, list.Data, 1)
	assert.Equal(t, 1, list.UnreadCount)
	assert.Equal(t, 3, list.Data[0].ApplicantCount)
	assert.Equal(t, []string{"Alice", "Bob", "Carol"}, list.Data[0].NewApplicantNames)
	assert.Len(t, list.Data[0].OriginalIds, 3)

	resp = a.do(t, http.MethodGet, "/api/notifications/unread-count", "company-1", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, decode[dto.UnreadCountResponse](t, resp).Count)
}

func TestMarkAsRead_SummaryID(t *testing.T) {
	a := newTestApp(t, nil)
	a.apply(t, "company-1", "J1", "Bob")
	a.apply(t, "company-1", "J1", "Alice")

	list := decode[dto.NotificationListResponse](t, a.do(t, http.MethodGet, "/api/notifications", "company-1", nil))
	require.Len(t, list.Data, 1)

	resp := a.do(t, http.MethodPatch, "/api/notifications/"+list.Data[0].Id+"/read", "company-1", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	list = decode[dto.NotificationListResponse](t, a.do(t, http.MethodGet, "/api/notifications", "company-1", nil))
	assert.Equal(t, 0, list.UnreadCount)
	assert.Equal(t, 2, list.Total)
}

func TestMarkAsRead_NotFound(t *testing.T) {
	a := newTestApp(t, nil)
	a.apply(t, "company-2", "J1", "Mallory")
	other := decode[dto.NotificationListResponse](t, a.do(t, http.MethodGet, "/api/notifications", "company-2", nil))
	require.Len(t, other.Data, 1)

	resp := a.do(t, http.MethodPatch, "/api/notifications/"+other.Data[0].Id+"/read", "company-1", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp = a.do(t, http.MethodPatch, "/api/notifications/group:J1:stale/read", "company-1", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestMarkAllAsRead(t *testing.T) {
	a := newTestApp(t, nil)
	a.apply(t, "company-1", "J1", "Bob")
	a.apply(t, "company-1", "J1", "Alice")
	a.apply(t, "company-1", "J2", "Dan")

	resp := a.do(t, http.MethodPatch, "/api/notifications/read-all", "company-1", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = a.do(t, http.MethodGet, "/api/notifications/unread-count", "company-1", nil)
	assert.Equal(t, 0, decode[dto.UnreadCountResponse](t, resp).Count)
}

func TestDebugTrigger_InProcess(t *testing.T) {
	a := newTestApp(t, nil)

	resp := a.do(t, http.MethodPost, "/api/debug/trigger-notification", "company-1", dto.TriggerNotificationRequest{
		Type: entity.NotificationTypeNewApplication,
		Payload: map[string]interface{}{
			"job_id":      "J1",
			"job_title":   "Engineer",
			"sender_name": "Alice",
		},
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	list := decode[dto.NotificationListResponse](t, a.do(t, http.MethodGet, "/api/notifications", "company-1", nil))
	require.Len(t, list.Data, 1)
	assert.Equal(t, "/jobs/J1/applications", list.Data[0].Link)
}

func TestDebugTrigger_Validation(t *testing.T) {
	a := newTestApp(t, nil)

	resp := a.do(t, http.MethodPost, "/api/debug/trigger-notification", "company-1", map[string]interface{}{})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = a.do(t, http.MethodPost, "/api/debug/trigger-notification", "company-1", dto.TriggerNotificationRequest{
		Type:    entity.NotificationTypeNewApplication,
		Payload: map[string]interface{}{"job_title": "Engineer"},
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = a.do(t, http.MethodPost, "/api/debug/trigger-notification", "company-1", dto.TriggerNotificationRequest{
		Type:    "NO_SUCH_TYPE",
		Payload: map[string]interface{}{"sender_name": "A"},
	})
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestDebugTrigger_PublishesWhenBusConfigured(t *testing.T) {
	pub := &recordingPublisher{}
	a := newTestApp(t, pub)

	resp := a.do(t, http.MethodPost, "/api/debug/trigger-notification", "company-1", dto.TriggerNotificationRequest{
		Type:    entity.NotificationTypeJobApproved,
		Payload: map[string]interface{}{"job_title": "Engineer", "job_id": "J1", "sender_name": "Admin"},
	})
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	require.Len(t, pub.events, 1)
	assert.Equal(t, entity.NotificationTypeJobApproved, pub.events[0].EventType())
	assert.Equal(t, "company-1", pub.events[0].Payload()["recipient_id"])
}

func TestRefreshNotificationTypes(t *testing.T) {
	a := newTestApp(t, nil)
	trigger := dto.TriggerNotificationRequest{
		Type:    "DIGEST",
		Payload: map[string]interface{}{"sender_name": "Admin"},
	}
	a.repo.PutNotificationType(model.NotificationType{Code: "DIGEST", Template: "x", IsActive: true})

	resp := a.do(t, http.MethodPost, "/api/debug/trigger-notification", "company-1", trigger)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	a.repo.PutNotificationType(model.NotificationType{Code: "DIGEST", Template: "x", IsActive: false})

	resp = a.do(t, http.MethodDelete, "/api/debug/notification-types/cache?code=DIGEST", "company-1", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = a.do(t, http.MethodPost, "/api/debug/trigger-notification", "company-1", trigger)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	list := decode[dto.NotificationListResponse](t, a.do(t, http.MethodGet, "/api/notifications", "company-1", nil))
	assert.Len(t, list.Data, 1)
}
