package handler

import (
	"context"
	"time"

	"jobboard-notify-be/internal/dto"
	"jobboard-notify-be/internal/pkg/logger"
	"jobboard-notify-be/internal/pkg/serverutils"
	"jobboard-notify-be/internal/service"
	internalWS "jobboard-notify-be/internal/websocket"
	"jobboard-notify-be/pkg/events"
	pktNats "jobboard-notify-be/pkg/nats"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// EventPublisher is implemented by pkg/nats.Publisher.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type NotificationHandler struct {
	service   *service.NotificationService
	publisher EventPublisher
	hub       *internalWS.Hub
	jwtSecret string
	logger    logger.ILogger
}

// NewNotificationHandler wires the handler. pub may be nil, in which case
// debug triggers run in-process.
func NewNotificationHandler(service *service.NotificationService, pub EventPublisher, hub *internalWS.Hub, jwtSecret string, log logger.ILogger) *NotificationHandler {
	return &NotificationHandler{
		service:   service,
		publisher: pub,
		hub:       hub,
		jwtSecret: jwtSecret,
		logger:    log,
	}
}

// ServeWs upgrades an authenticated request and streams the recipient's
// grouped notifications.
func (h *NotificationHandler) ServeWs(c *fiber.Ctx) error {
	// Priority 1: Query Param (Browser standard)
	tokenStr := c.Query("token")

	// Priority 2: Authorization Header (Tooling/Non-browser standard)
	if tokenStr == "" {
		tokenStr = serverutils.BearerToken(c)
	}

	if tokenStr == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(fiber.StatusUnauthorized, "Missing token (Query 'token' or Header 'Authorization')"))
	}

	recipientID, err := serverutils.ParseToken(tokenStr, h.jwtSecret)
	if err != nil {
		h.logger.Warn("NotificationHandler", "Invalid Token in WS Handshake", map[string]interface{}{"error": err.Error()})
		return c.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(fiber.StatusUnauthorized, "Invalid token"))
	}

	if websocket.IsWebSocketUpgrade(c) {
		return websocket.New(func(c *websocket.Conn) {
			h.logger.Info("NotificationHandler", "Starting WebSocket session", map[string]interface{}{"recipient_id": recipientID})
			internalWS.ServeWs(h.hub, c, recipientID)
			h.logger.Info("NotificationHandler", "WebSocket session ended", map[string]interface{}{"recipient_id": recipientID})
		})(c)
	}
	return fiber.ErrUpgradeRequired
}

// GetNotifications returns the recipient's grouped notifications.
func (h *NotificationHandler) GetNotifications(c *fiber.Ctx) error {
	recipientID, ok := serverutils.RecipientID(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	res, err := h.service.GetNotifications(c.UserContext(), recipientID)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

// GetUnreadCount returns the number of unread display entries.
func (h *NotificationHandler) GetUnreadCount(c *fiber.Ctx) error {
	recipientID, ok := serverutils.RecipientID(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	count, err := h.service.GetUnreadCount(c.UserContext(), recipientID)
	if err != nil {
		return err
	}
	return c.JSON(dto.UnreadCountResponse{Count: count})
}

// MarkAsRead accepts a raw id or a summary id.
func (h *NotificationHandler) MarkAsRead(c *fiber.Ctx) error {
	recipientID, ok := serverutils.RecipientID(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	id := c.Params("id")
	if id == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid ID")
	}

	if err := h.service.MarkAsRead(c.UserContext(), recipientID, id); err != nil {
		return err
	}
	return c.JSON(serverutils.SuccessResponse[any]("Notification marked as read", nil))
}

func (h *NotificationHandler) MarkAllAsRead(c *fiber.Ctx) error {
	recipientID, ok := serverutils.RecipientID(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	if err := h.service.MarkAllAsRead(c.UserContext(), recipientID); err != nil {
		return err
	}
	return c.JSON(serverutils.SuccessResponse[any]("All notifications marked as read", nil))
}

// DebugTriggerEvent simulates an event to test the flow.
func (h *NotificationHandler) DebugTriggerEvent(c *fiber.Ctx) error {
	var req dto.TriggerNotificationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}
	if req.Payload == nil {
		req.Payload = make(map[string]interface{})
	}

	// If no recipient in payload, use current caller if available
	if _, ok := req.Payload["recipient_id"]; !ok {
		if recipientID, ok := serverutils.RecipientID(c); ok {
			req.Payload["recipient_id"] = recipientID
		}
	}

	if h.publisher != nil {
		evt := events.BaseEvent{
			Type:       req.Type,
			Data:       req.Payload,
			OccurredAt: time.Now(),
		}
		if err := h.publisher.Publish(c.UserContext(), evt); err != nil {
			return err
		}
		return c.Status(fiber.StatusAccepted).JSON(serverutils.SuccessResponse("Event Published", req))
	}

	notif, err := h.service.Trigger(c.UserContext(), req.Type, req.Payload)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Notification created", notif))
}

// RefreshNotificationTypes drops cached notification types so edits to the
// type table apply to the next event.
func (h *NotificationHandler) RefreshNotificationTypes(c *fiber.Ctx) error {
	var codes []string
	if code := c.Query("code"); code != "" {
		codes = append(codes, code)
	}
	h.service.InvalidateNotificationTypes(codes...)
	return c.JSON(serverutils.SuccessResponse[any]("Notification type cache cleared", nil))
}

// RegisterRoutes registers the notification routes.
func (h *NotificationHandler) RegisterRoutes(router fiber.Router) {
	auth := serverutils.JwtMiddleware(h.jwtSecret)

	notif := router.Group("/notifications")
	notif.Use(auth)
	notif.Get("/", h.GetNotifications)
	notif.Get("/unread-count", h.GetUnreadCount)
	notif.Patch("/read-all", h.MarkAllAsRead)
	notif.Patch("/:id/read", h.MarkAsRead)

	debug := router.Group("/debug")
	debug.Use(auth)
	debug.Post("/trigger-notification", h.DebugTriggerEvent)
	debug.Delete("/notification-types/cache", h.RefreshNotificationTypes)

	// WebSocket
	router.Get("/ws", h.ServeWs)
}

var _ EventPublisher = (*pktNats.Publisher)(nil)
