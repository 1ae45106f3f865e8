package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"

	"newsletter-go/internal/cache"
	"newsletter-go/internal/config"
	"newsletter-go/internal/handlers"
	"newsletter-go/internal/logging"
	"newsletter-go/internal/mail"
	"newsletter-go/internal/models"
	"newsletter-go/internal/service"
	"newsletter-go/internal/telemetry"
)

type Config struct {
	Settings       *config.Config
	Logger         *logging.ContextLogger
	TracerProvider trace.TracerProvider
	// Stores and Transports are optional; defaults come from Settings.
	Stores     *Stores
	Transports mail.TransportFactory
}

type Application struct {
	server   *http.Server
	config   *Config
	router   *gin.Engine
	stores   *Stores
	registry *prometheus.Registry

	settings   *service.SettingsService
	dispatcher *service.Dispatcher
}

func Build(cfg *Config) (*Application, error) {
	settings := cfg.Settings
	if settings.GinMode != "" {
		gin.SetMode(settings.GinMode)
	}

	stores := cfg.Stores
	if stores == nil {
		var err error
		stores, err = OpenStores(settings, cfg.Logger)
		if err != nil {
			return nil, err
		}
	}

	transports := cfg.Transports
	if transports == nil {
		if settings.MailTransport == config.MailLog {
			transports = mail.LogTransportFactory(cfg.Logger)
		} else {
			transports = mail.SMTPTransportFactory()
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(registry)

	settingsService := service.NewSettingsService(stores.Settings, cache.NewInMemoryCache[models.MailSettings](),
		settings.SettingsCacheTTL, settings.NewsletterAPIKey, cfg.Logger)
	contentResolver := service.NewContentResolver(stores.Content)
	subscriberService := service.NewSubscriberService(stores.Subscribers, cfg.Logger)
	notificationService := service.NewNotificationService(stores.Notifications, stores.Subscribers, contentResolver, cfg.Logger)
	dispatcher := service.NewDispatcher(service.DispatcherDeps{
		Notifications: stores.Notifications,
		Audience:      service.NewAudienceResolver(stores.Subscribers),
		Content:       contentResolver,
		Composer:      service.NewComposer(settings.SiteURL, settings.SiteName),
		Settings:      settingsService,
		Transports:    transports,
		Metrics:       metrics,
		Logger:        cfg.Logger,
		SiteName:      settings.SiteName,
		ClaimTTL:      settings.DispatchClaimTTL,
	})

	newsletterHandler := handlers.NewNewsletterHandler(subscriberService, cfg.Logger)
	dispatchHandler := handlers.NewDispatchHandler(dispatcher, settingsService, cfg.Logger)
	adminHandler := handlers.NewAdminHandler(subscriberService, notificationService, dispatcher, settingsService, cfg.Logger)

	router := gin.New()
	router.Use(gin.Recovery())
	var otelOpts []otelgin.Option
	if cfg.TracerProvider != nil {
		otelOpts = append(otelOpts, otelgin.WithTracerProvider(cfg.TracerProvider))
	}
	router.Use(otelgin.Middleware(settings.ServiceName, otelOpts...))

	router.Use(cfg.Logger.RequestLogger("/health", "/metrics"))

	api := router.Group("/api")
	{
		newsletter := api.Group("/newsletter")
		{
			newsletter.POST("/subscribe", newsletterHandler.Subscribe)
			newsletter.POST("/unsubscribe", newsletterHandler.Unsubscribe)
			newsletter.GET("/preferences", newsletterHandler.Preferences)
			newsletter.POST("/send-notifications", dispatchHandler.SendNotifications)
		}

		admin := api.Group("/admin", adminAuth(settings, cfg.Logger))
		{
			admin.GET("/dashboard", adminHandler.Dashboard)
			admin.GET("/subscribers", adminHandler.ListSubscribers)
			admin.POST("/unsubscribe", adminHandler.RemoveSubscriber)
			admin.GET("/notifications", adminHandler.ListNotifications)
			admin.POST("/notifications", adminHandler.CreateNotification)
			admin.POST("/send-notification", adminHandler.SendNotification)
			admin.POST("/send-custom", adminHandler.SendCustom)
			admin.GET("/email-settings", adminHandler.GetEmailSettings)
			admin.POST("/email-settings", adminHandler.SaveEmailSettings)
		}
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC(),
			"service":   settings.ServiceName,
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	server := &http.Server{
		Addr:    ":" + settings.Port,
		Handler: router,
	}

	return &Application{
		server:     server,
		config:     cfg,
		router:     router,
		stores:     stores,
		registry:   registry,
		settings:   settingsService,
		dispatcher: dispatcher,
	}, nil
}

// adminAuth guards the admin API with basic auth. Without a configured
// password every request is rejected.
func adminAuth(settings *config.Config, logger *logging.ContextLogger) gin.HandlerFunc {
	if settings.AdminPassword == "" {
		logger.Warn("ADMIN_PASSWORD is not set, admin API is disabled")
		return func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		}
	}
	return gin.BasicAuth(gin.Accounts{settings.AdminUser: settings.AdminPassword})
}

func (app *Application) Run() error {
	app.config.Logger.Info("Starting server on :" + app.config.Settings.Port)
	if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (app *Application) Shutdown(ctx context.Context) error {
	app.config.Logger.Info("Shutting down server...")
	err := app.server.Shutdown(ctx)
	if closeErr := app.stores.Close(); err == nil {
		err = closeErr
	}
	return err
}

func (app *Application) Close() error {
	return app.stores.Close()
}

func (app *Application) GetStores() *Stores {
	return app.stores
}

func (app *Application) GetDispatcher() *service.Dispatcher {
	return app.dispatcher
}

func (app *Application) GetSettingsService() *service.SettingsService {
	return app.settings
}

func (app *Application) GetRegistry() *prometheus.Registry {
	return app.registry
}

func (app *Application) GetRouter() *gin.Engine {
	return app.router
}
