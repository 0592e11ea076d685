package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"jobboard-notify-be/internal/dto"
	"jobboard-notify-be/internal/entity"
	"jobboard-notify-be/internal/feed"
	"jobboard-notify-be/internal/mapper"
	"jobboard-notify-be/internal/model"
	"jobboard-notify-be/internal/pkg/logger"
	"jobboard-notify-be/internal/pkg/mailer"
	"jobboard-notify-be/internal/repository"
	"jobboard-notify-be/pkg/changefeed"
	"jobboard-notify-be/pkg/events"
	"jobboard-notify-be/pkg/grouping"
	pktNats "jobboard-notify-be/pkg/nats" // Renamed to avoid collision

	"github.com/go-playground/validator/v10"
	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
)

const (
	eventSubject = events.SubjectPrefix + ">"
	durableName  = "notif-service-worker"
)

var ErrInvalidEvent = errors.New("invalid notification event")

// EventSubscriber is implemented by pkg/nats.Subscriber.
type EventSubscriber interface {
	Subscribe(subject string, durableName string, handler pktNats.EventHandler) error
}

type NotificationService struct {
	repo       repository.NotificationRepository
	subscriber EventSubscriber
	bus        changefeed.Bus
	mailer     mailer.IEmailService
	mutator    *feed.ReadStateMutator
	mapper     *mapper.NotificationMapper
	typeCache  *cache.Cache
	validate   *validator.Validate
	tracer     trace.Tracer
	logger     logger.ILogger
}

// NewNotificationService wires the service. sub and mail may be nil.
func NewNotificationService(
	repo repository.NotificationRepository,
	sub EventSubscriber,
	bus changefeed.Bus,
	mail mailer.IEmailService,
	log logger.ILogger,
) *NotificationService {
	return &NotificationService{
		repo:       repo,
		subscriber: sub,
		bus:        bus,
		mailer:     mail,
		mutator:    feed.NewReadStateMutator(feed.PublishingWriter(repo, bus, log)),
		mapper:     mapper.NewNotificationMapper(),
		typeCache:  cache.New(5*time.Minute, 10*time.Minute),
		validate:   validator.New(),
		tracer:     otel.Tracer("jobboard-notify-be/service"),
		logger:     log,
	}
}

// Start begins listening to the event bus.
func (s *NotificationService) Start() error {
	if s.subscriber == nil {
		return errors.New("notification service has no event subscriber")
	}
	if err := s.subscriber.Subscribe(eventSubject, durableName, s.handleEvent); err != nil {
		s.logger.Error("NotificationService", "Failed to start notification subscriber", map[string]interface{}{"error": err.Error()})
		return err
	}
	s.logger.Info("NotificationService", "Notification service started, listening to "+eventSubject, nil)
	return nil
}

func (s *NotificationService) handleEvent(ctx context.Context, event events.Event) error {
	_, err := s.process(ctx, event)
	switch {
	case errors.Is(err, repository.ErrNotificationTypeNotFound):
		s.logger.Warn("NotificationService", fmt.Sprintf("Config not found for code: '%s'", events.TypeFromSubject(event.EventType())), nil)
		return nil
	case errors.Is(err, ErrInvalidEvent):
		return fmt.Errorf("%w: %w", pktNats.ErrPermanent, err)
	}
	return err
}

// Trigger runs a payload through the same pipeline as a bus event. It
// returns nil and no error when the type is inactive.
func (s *NotificationService) Trigger(ctx context.Context, typeCode string, payload map[string]interface{}) (*model.Notification, error) {
	return s.process(ctx, events.BaseEvent{Type: typeCode, Data: payload, OccurredAt: time.Now()})
}

func (s *NotificationService) process(ctx context.Context, event events.Event) (*model.Notification, error) {
	typeCode := events.TypeFromSubject(event.EventType())
	ctx, span := s.tracer.Start(ctx, "NotificationService.process", trace.WithAttributes(
		attribute.String("type", typeCode),
	))
	defer span.End()

	s.logger.Info("NotificationService", "Processing event", map[string]interface{}{"type": typeCode})

	config, err := s.notificationType(ctx, typeCode)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !config.IsActive {
		s.logger.Info("NotificationService", fmt.Sprintf("Notification type '%s' is inactive", typeCode), nil)
		return nil, nil
	}

	payload, err := s.decodePayload(event.Payload())
	if err != nil {
		s.logger.Warn("NotificationService", "Dropping invalid event", map[string]interface{}{"type": typeCode, "error": err.Error()})
		span.RecordError(err)
		return nil, err
	}

	notif, err := s.buildNotification(config, payload, event)
	if err != nil {
		return nil, err
	}

	if err := s.repo.CreateNotification(ctx, notif); err != nil {
		s.logger.Error("NotificationService", "Error saving notification", map[string]interface{}{
			"recipient_id": notif.RecipientID,
			"error":        err.Error(),
		})
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := s.bus.Publish(ctx, notif.RecipientID); err != nil {
		s.logger.Warn("NotificationService", "Failed to signal notification change", map[string]interface{}{
			"recipient_id": notif.RecipientID,
			"error":        err.Error(),
		})
	}

	s.sendEmail(config, payload, notif)
	return notif, nil
}

func (s *NotificationService) notificationType(ctx context.Context, code string) (*model.NotificationType, error) {
	if x, found := s.typeCache.Get(code); found {
		return x.(*model.NotificationType), nil
	}
	config, err := s.repo.GetNotificationTypeByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	s.typeCache.Set(code, config, cache.DefaultExpiration)
	return config, nil
}

// InvalidateNotificationTypes evicts cached types so the next event reloads
// them from the store. With no codes the whole cache is flushed.
func (s *NotificationService) InvalidateNotificationTypes(codes ...string) {
	if len(codes) == 0 {
		s.typeCache.Flush()
		return
	}
	for _, code := range codes {
		s.typeCache.Delete(code)
	}
}

func (s *NotificationService) decodePayload(data map[string]interface{}) (*dto.NotificationEventPayload, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	var payload dto.NotificationEventPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if err := s.validate.Struct(payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return &payload, nil
}

func (s *NotificationService) buildNotification(config *model.NotificationType, payload *dto.NotificationEventPayload, event events.Event) (*model.Notification, error) {
	data := event.Payload()

	// Simple Template Engine
	msg := config.Template
	for k, v := range data {
		msg = strings.ReplaceAll(msg, "{"+k+"}", fmt.Sprintf("%v", v))
	}

	link := payload.Link
	if link == "" && payload.JobID != "" {
		link = fmt.Sprintf("/jobs/%s/applications", payload.JobID)
	}

	metadata, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	return &model.Notification{
		RecipientID: payload.RecipientID,
		TypeCode:    config.Code,
		JobID:       payload.JobID,
		JobTitle:    payload.JobTitle,
		SenderName:  payload.SenderName,
		Message:     msg,
		Link:        link,
		Metadata:    datatypes.JSON(metadata),
	}, nil
}

func (s *NotificationService) sendEmail(config *model.NotificationType, payload *dto.NotificationEventPayload, notif *model.Notification) {
	if s.mailer == nil || payload.RecipientEmail == "" {
		return
	}
	var channels []string
	if err := json.Unmarshal(config.Channels, &channels); err != nil || !slices.Contains(channels, model.ChannelEmail) {
		return
	}
	if err := s.mailer.SendNotification(payload.RecipientEmail, config.DisplayName, notif.Message, notif.Link); err != nil {
		s.logger.Warn("NotificationService", "Failed to email notification", map[string]interface{}{
			"notification_id": notif.ID,
			"error":           err.Error(),
		})
	}
}

func (s *NotificationService) display(ctx context.Context, recipientID string) ([]entity.DisplayNotification, error) {
	rows, err := s.repo.GetNotificationsByRecipient(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	return grouping.Group(s.mapper.ToEntities(rows)), nil
}

// GetNotifications returns the grouped list for a recipient.
func (s *NotificationService) GetNotifications(ctx context.Context, recipientID string) (*dto.NotificationListResponse, error) {
	display, err := s.display(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	res := dto.ToNotificationListResponse(display, grouping.UnreadCount(display))
	return &res, nil
}

// GetUnreadCount counts unread display records, so a summary counts once.
func (s *NotificationService) GetUnreadCount(ctx context.Context, recipientID string) (int, error) {
	display, err := s.display(ctx, recipientID)
	if err != nil {
		return 0, err
	}
	return grouping.UnreadCount(display), nil
}

// MarkAsRead marks a raw or summary notification as read.
func (s *NotificationService) MarkAsRead(ctx context.Context, recipientID, id string) error {
	ctx, span := s.tracer.Start(ctx, "NotificationService.MarkAsRead", trace.WithAttributes(
		attribute.String("recipient_id", recipientID),
		attribute.String("notification_id", id),
	))
	defer span.End()

	display, err := s.display(ctx, recipientID)
	if err == nil {
		err = s.mutator.MarkAsRead(ctx, recipientID, display, id)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// MarkAllAsRead marks every unread notification of the recipient as read.
func (s *NotificationService) MarkAllAsRead(ctx context.Context, recipientID string) error {
	ctx, span := s.tracer.Start(ctx, "NotificationService.MarkAllAsRead", trace.WithAttributes(
		attribute.String("recipient_id", recipientID),
	))
	defer span.End()

	display, err := s.display(ctx, recipientID)
	if err == nil {
		err = s.mutator.MarkAllAsRead(ctx, recipientID, display)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// OpenFeed returns a live feed the caller owns and must Close.
func (s *NotificationService) OpenFeed(ctx context.Context, recipientID string) (*feed.Feed, error) {
	return feed.Open(ctx, recipientID, s.repo, s.bus, s.logger)
}
