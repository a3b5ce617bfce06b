package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fuseproject/fuse/backend/internal/config"
	"github.com/fuseproject/fuse/backend/internal/models"
	"github.com/fuseproject/fuse/backend/internal/services"
	"github.com/fuseproject/fuse/backend/internal/utils"
	"github.com/fuseproject/fuse/backend/pkg/bus"
	"github.com/fuseproject/fuse/backend/pkg/logger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	defaultAdminPassword = "admin123"
	groupStreamName      = "FUSE_GROUPS"
)

// appServices holds everything the routes and the shutdown path need.
type appServices struct {
	cfg        *config.Config
	db         *gorm.DB
	membership *services.Membership
	auth       *services.AuthService
	users      *services.UserService
	inbox      *services.InboxService
	hub        *services.InboxHub
	holidays   *services.HolidayService
	configs    *services.SystemConfigService
	logs       *services.SystemLogService
	taskQueue  services.TaskQueue
	worker     *services.Worker
	scheduler  *services.Scheduler
	redis      *redis.Client
	bus        *bus.Bus
}

// bootstrap connects storage and wires the membership engine with its
// notification, locking and event collaborators.
func bootstrap(ctx context.Context, cfg *config.Config) (*appServices, error) {
	utils.SetJWTSecret(cfg.JWT.Secret)

	if err := models.InitDB(&cfg.Database); err != nil {
		return nil, err
	}
	if err := models.AutoMigrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := models.SeedDefaultData(); err != nil {
		logger.Warn().Err(err).Msg("Failed to seed default data")
	}

	db := models.GetDB()
	services.InitSystemLogger(db)

	svc := &appServices{
		cfg:      cfg,
		db:       db,
		hub:      services.NewInboxHub(),
		holidays: services.NewHolidayService(),
		configs:  services.NewSystemConfigService(db),
		logs:     services.NewSystemLogService(db),
		inbox:    services.NewInboxService(db),
		users:    services.NewUserService(db),
	}

	// Notifications: the in-process queue delivers inline, the asynq queue
	// hands tasks to the worker.
	var mailer services.Mailer
	if cfg.Mail.Enabled {
		mailer = services.NewEmailService(&cfg.Mail)
	}
	processor := services.NewNotificationProcessor(db, mailer).WithHub(svc.hub)

	svc.taskQueue = services.InitTaskQueue(cfg)
	if syncQueue, ok := svc.taskQueue.(*services.SyncQueue); ok {
		syncQueue.SetProcessor(processor.Process)
	} else if worker := services.NewWorker(&cfg.Redis); worker != nil {
		worker.SetProcessor(processor.Process)
		if err := worker.Start(); err != nil {
			return nil, fmt.Errorf("start worker: %w", err)
		}
		svc.worker = worker
	}

	opts := services.Options{
		Notifier: services.NewNotificationService(svc.taskQueue),
		Holidays: svc.holidays,
	}

	if cfg.Redis.Enabled {
		svc.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := svc.redis.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Msg("Redis unreachable, using in-process join locks")
		} else {
			opts.Locker = services.NewRedisLocker(svc.redis, "fuse")
		}
	}

	if cfg.NATS.Enabled {
		b, err := bus.New(cfg.NATS.URL)
		if err != nil {
			logger.Warn().Err(err).Str("url", cfg.NATS.URL).Msg("NATS unavailable, group events disabled")
		} else {
			publisher := services.NewBusPublisher(b, cfg.NATS.SubjectPrefix)
			if err := b.EnsureStream(groupStreamName, publisher.Subjects()...); err != nil {
				logger.Warn().Err(err).Msg("Failed to ensure group event stream")
			}
			svc.bus = b
			opts.Publisher = publisher
		}
	}

	svc.membership = services.NewMembership(db, opts)

	svc.auth = services.NewAuthService(db, &cfg.JWT, &cfg.LDAP)
	adminPassword := os.Getenv("ADMIN_PASSWORD")
	if adminPassword == "" {
		adminPassword = defaultAdminPassword
	}
	if err := svc.auth.CreateAdminIfNotExists(ctx, adminPassword); err != nil {
		logger.Warn().Err(err).Msg("Failed to create admin user")
	}

	if cfg.Scheduler.DigestEnabled {
		digest := services.NewDigestService(db, processor)
		svc.scheduler = services.NewScheduler(digest, svc.logs, svc.configs)
		if err := svc.scheduler.Start(context.WithoutCancel(ctx)); err != nil {
			return nil, fmt.Errorf("start scheduler: %w", err)
		}
	} else {
		logger.Info().Msg("Scheduler disabled on this instance")
	}

	return svc, nil
}

// shutdown stops background work, then closes connections.
func (s *appServices) shutdown() {
	if s.scheduler != nil {
		s.scheduler.Stop()
		logger.Info().Msg("Scheduler stopped")
	}
	if s.worker != nil {
		s.worker.Stop()
	}
	if s.taskQueue != nil {
		if err := s.taskQueue.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close task queue")
		}
	}
	if s.bus != nil {
		s.bus.Close()
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close redis client")
		}
	}
}
