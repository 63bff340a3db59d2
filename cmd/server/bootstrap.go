package main

import (
	"context"

	"github.com/deedox/platform/internal/config"
	"github.com/deedox/platform/internal/handlers"
	"github.com/deedox/platform/internal/metrics"
	"github.com/deedox/platform/internal/middleware"
	"github.com/deedox/platform/internal/models"
	"github.com/deedox/platform/internal/services"
	"github.com/deedox/platform/internal/utils"
	"github.com/deedox/platform/pkg/logger"
	"github.com/gin-gonic/gin"
)

// appServices holds all initialized services and handlers needed by the application.
type appServices struct {
	cfg         *config.Config
	feed        *services.ChangeFeed
	mailQueue   services.MailQueue
	worker      *services.Worker
	maintenance *services.MaintenanceScheduler
	stopWatches []func()

	authHandler      *handlers.AuthHandler
	profileHandler   *handlers.ProfileHandler
	messageHandler   *handlers.MessageHandler
	dashboardHandler *handlers.DashboardHandler
	systemLogHandler *handlers.SystemLogHandler
	settingsHandler  *handlers.SettingsHandler
	publicHandler    *handlers.PublicHandler
	modelHandler     *handlers.ModelConfigHandler
	uploadHandler    *handlers.UploadHandler
	eventsHandler    *handlers.EventsHandler
	chatHandler      *handlers.ChatProxyHandler
	healthHandler    *handlers.HealthHandler

	courses      *handlers.CRUDHandler[models.Course]
	notices      *handlers.CRUDHandler[models.Notice]
	testimonials *handlers.CRUDHandler[models.Testimonial]
	news         *handlers.CRUDHandler[models.NewsItem]
	students     *handlers.CRUDHandler[models.User]
}

// bootstrap initializes all application dependencies: database, services, schedulers.
func bootstrap(cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.JWT.Secret)
	utils.RegisterValidators()

	if err := models.InitDB(&cfg.Database, cfg.Server.Mode == "debug"); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	db := models.GetDB()
	if sqlDB, err := db.DB(); err == nil {
		metrics.RegisterDB(sqlDB, cfg.Database.Driver)
	}

	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}
	if err := models.SeedDefaultData(db); err != nil {
		logger.Warn().Err(err).Msg("Failed to seed default data")
	}

	services.InitSystemLogger(db)
	feed := services.GetChangeFeed()

	// Mail goes through Redis when enabled, otherwise it is sent inline
	mailer := services.NewMailer(&cfg.Mail)
	mailQueue := services.InitMailQueue(cfg, mailer)
	worker := services.NewWorker(&cfg.Redis, mailer)
	if worker != nil {
		if err := worker.Start(); err != nil {
			logger.Error().Err(err).Msg("Failed to start mail worker")
		}
	}

	otpService := services.NewOTPService(db, mailQueue)
	authService := services.NewAuthService(db, cfg, feed, otpService)
	if err := authService.CreateAdminIfNotExists(context.Background(), cfg.Admin.Email, cfg.Admin.Password); err != nil {
		logger.Warn().Err(err).Msg("Failed to create admin user")
	}

	box, err := utils.NewSecretBox(cfg.Credential.Secret)
	if err != nil {
		logger.Fatalf("Failed to initialize credential box: %v", err)
	}
	modelService := services.NewModelConfigService(db, feed)
	credentialService := services.NewCredentialService(db, box, cfg.AI.APIKey)

	settingsStore := services.NewSettingsStore(db, feed)
	publicSettings := services.NewSettingsAggregator(settingsStore)
	if err := publicSettings.Load(context.Background()); err != nil {
		logger.Warn().Err(err).Msg("Failed to load settings, serving defaults")
	}
	stopWatches := []func(){publicSettings.Watch(feed, "public-settings")}

	proxy := services.NewChatProxy(modelService, credentialService, &cfg.AI, nil).
		WithGuestPolicy(func() bool { return publicSettings.Bool("ai_assistant", "guest_allowed") })

	content := services.NewContent(db, feed)
	publicHandler := handlers.NewPublicHandler(content)
	if stop, err := publicHandler.Start(context.Background(), feed); err != nil {
		logger.Warn().Err(err).Msg("Failed to load public lists")
	} else {
		stopWatches = append(stopWatches, stop)
	}

	messageService := services.NewMessageService(db, feed)
	systemLogService := services.NewSystemLogService(db)

	jobs := services.DefaultMaintenanceJobs(systemLogService, otpService, authService, cfg.Log.RetentionDays)
	jobs = append(jobs, services.MaintenanceJob{
		Name: "public_cache_reload",
		Spec: "@every 5m",
		Run: func(ctx context.Context) (int64, error) {
			if err := publicSettings.Load(ctx); err != nil {
				return 0, err
			}
			return 0, publicHandler.Reload(ctx)
		},
	})
	maintenance := services.NewMaintenanceScheduler(jobs...)
	if err := maintenance.Start(); err != nil {
		logger.Error().Err(err).Msg("Failed to start maintenance scheduler")
	}

	createdBy := func(c *gin.Context) *uint { return middleware.GetUserIDPtr(c) }

	return &appServices{
		cfg:         cfg,
		feed:        feed,
		mailQueue:   mailQueue,
		worker:      worker,
		maintenance: maintenance,
		stopWatches: stopWatches,

		authHandler:      handlers.NewAuthHandler(authService),
		profileHandler:   handlers.NewProfileHandler(services.NewProfileService(db, feed)),
		messageHandler:   handlers.NewMessageHandler(messageService),
		dashboardHandler: handlers.NewDashboardHandler(services.NewDashboardService(db, content, messageService, feed)),
		systemLogHandler: handlers.NewSystemLogHandler(systemLogService),
		settingsHandler:  handlers.NewSettingsHandler(settingsStore, publicSettings),
		publicHandler:    publicHandler,
		modelHandler:     handlers.NewModelConfigHandler(modelService, credentialService),
		uploadHandler:    handlers.NewUploadHandler(services.NewStorageService(db, feed, cfg.Storage)),
		eventsHandler:    handlers.NewEventsHandler(feed, cfg.Server.SSEHeartbeatSeconds),
		chatHandler:      handlers.NewChatProxyHandler(proxy),
		healthHandler:    handlers.NewHealthHandler(db, feed, mailQueue),

		courses: handlers.NewCRUDHandler(content.Courses, "course",
			[]string{"title", "description", "category", "level", "duration", "price", "image_url", "is_published"},
			[]string{"title"},
		).OnCreate(func(c *gin.Context, row *models.Course) { row.CreatedBy = createdBy(c) }),
		notices: handlers.NewCRUDHandler(content.Notices, "notice",
			[]string{"title", "content", "audience", "is_published"},
			[]string{"title"},
		).OnCreate(func(c *gin.Context, row *models.Notice) { row.CreatedBy = createdBy(c) }),
		testimonials: handlers.NewCRUDHandler(content.Testimonials, "testimonial",
			[]string{"author_name", "author_role", "content", "avatar_url", "rating", "is_published"},
			[]string{"author_name", "content"},
		),
		news: handlers.NewCRUDHandler(content.News, "news item",
			[]string{"title", "summary", "body", "image_url", "link", "is_published"},
			[]string{"title"},
		),
		students: handlers.NewCRUDHandler(content.Students, "student", nil, nil),
	}
}

// shutdown gracefully stops all services.
func (s *appServices) shutdown() {
	for _, stop := range s.stopWatches {
		stop()
	}
	s.maintenance.Stop()
	logger.Info().Msg("Maintenance scheduler stopped")

	if s.worker != nil {
		s.worker.Stop()
	}
	if s.mailQueue != nil {
		if err := s.mailQueue.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close mail queue")
		}
	}
}
