package bootstrap

import (
	"context"
	"log"

	"jobboard-notify-be/internal/config"
	"jobboard-notify-be/internal/handler"
	"jobboard-notify-be/internal/pkg/logger"
	"jobboard-notify-be/internal/pkg/mailer"
	"jobboard-notify-be/internal/repository"
	"jobboard-notify-be/internal/repository/implementation"
	"jobboard-notify-be/internal/repository/memory"
	"jobboard-notify-be/internal/service"
	"jobboard-notify-be/internal/websocket"
	"jobboard-notify-be/pkg/changefeed"
	"jobboard-notify-be/pkg/database"

	pktNats "jobboard-notify-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/redis/go-redis/v9"
)

type Container struct {
	// Background Services (Exposed for main.go to run)
	NotificationService *service.NotificationService
	WebSocketHub        *websocket.Hub

	NotificationHandler *handler.NotificationHandler

	SysLogger logger.ILogger

	closers []func()
}

func NewContainer(cfg *config.Config) (*Container, error) {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	feedLogger := logger.NewIsolatedLogger(cfg.App.FeedLogFilePath)
	c := &Container{SysLogger: sysLogger}

	// 2. Storage
	var notifRepo repository.NotificationRepository
	if cfg.Database.Connection == "" {
		log.Println("[WARN] DB_CONNECTION_STRING is empty, notifications are kept in memory")
		notifRepo = memory.NewNotificationRepository()
	} else {
		db, err := database.NewGormDBFromDSN(cfg.Database.Connection)
		if err != nil {
			return nil, err
		}
		if err := database.AutoMigrate(db); err != nil {
			return nil, err
		}
		notifRepo = implementation.NewNotificationRepository(db)
	}

	// 3. Change Feed Bus
	bus := newChangeFeedBus(cfg)
	c.closers = append(c.closers, func() { _ = bus.Close() })

	// 4. Event Bus (NATS)
	var publisher handler.EventPublisher
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	} else {
		publisher = natsPub
		c.closers = append(c.closers, natsPub.Close)
	}

	var subscriber service.EventSubscriber
	natsSub, err := pktNats.NewSubscriber(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
	} else {
		subscriber = natsSub
		c.closers = append(c.closers, natsSub.Close)
	}

	// 5. Email channel
	var emailService mailer.IEmailService
	if cfg.SMTP.Host != "" {
		emailService = mailer.NewEmailService(
			cfg.SMTP.Host,
			cfg.SMTP.Port,
			cfg.SMTP.Email,
			cfg.SMTP.Password,
			cfg.SMTP.SenderName,
			cfg.App.ClientURL,
		)
	}

	// 6. Notification Domain
	c.NotificationService = service.NewNotificationService(notifRepo, subscriber, bus, emailService, feedLogger)
	c.WebSocketHub = websocket.NewHub(c.NotificationService, feedLogger)
	c.NotificationHandler = handler.NewNotificationHandler(c.NotificationService, publisher, c.WebSocketHub, cfg.Auth.JWTSecret, feedLogger)

	c.closers = append(c.closers, func() {
		_ = feedLogger.Sync()
		_ = sysLogger.Sync()
	})
	return c, nil
}

// Start runs the hub and, when NATS is reachable, the event worker.
func (c *Container) Start(ctx context.Context) {
	go c.WebSocketHub.Run(ctx)

	if err := c.NotificationService.Start(); err != nil {
		c.SysLogger.Warn("Container", "Event ingestion disabled", map[string]interface{}{"error": err.Error()})
	}
}

// Close releases connections in reverse order of creation.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

func newChangeFeedBus(cfg *config.Config) changefeed.Bus {
	if cfg.App.ChangeFeedDriver == "redis" {
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
			opt = &redis.Options{
				Addr: cfg.App.RedisURL,
			}
		}
		rdb := redis.NewClient(opt)
		if _, err := rdb.Ping(context.Background()).Result(); err != nil {
			log.Printf("[WARN] Failed to connect to Redis: %v. Falling back to in-process change feed", err)
			_ = rdb.Close()
		} else {
			log.Printf("[INFO] Using change feed: REDIS (%s)", opt.Addr)
			return changefeed.NewRedisBus(rdb)
		}
	}

	log.Printf("[INFO] Using change feed: IN-PROCESS")
	return changefeed.NewGoChannelBus(watermill.NewStdLogger(false, false))
}
