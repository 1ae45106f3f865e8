package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"newsletter-go/internal/logging"
	"newsletter-go/internal/models"
	"newsletter-go/internal/service"
)

// AdminHandler serves the admin console API. Authentication is applied by
// the router.
type AdminHandler struct {
	subscribers   *service.SubscriberService
	notifications *service.NotificationService
	dispatcher    *service.Dispatcher
	settings      *service.SettingsService
	logger        *logging.ContextLogger
	tracer        trace.Tracer
}

func NewAdminHandler(subscribers *service.SubscriberService, notifications *service.NotificationService, dispatcher *service.Dispatcher, settings *service.SettingsService, logger *logging.ContextLogger) *AdminHandler {
	return &AdminHandler{
		subscribers:   subscribers,
		notifications: notifications,
		dispatcher:    dispatcher,
		settings:      settings,
		logger:        logger,
		tracer:        otel.Tracer("admin-handler"),
	}
}

func (h *AdminHandler) Dashboard(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "admin.handler.dashboard")
	defer span.End()

	stats, err := h.notifications.Dashboard(ctx)
	if err != nil {
		respondError(ctx, c, span, h.logger, "Failed to load dashboard", err, logrus.Fields{
			"endpoint": "GET /api/admin/dashboard",
		})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *AdminHandler) ListSubscribers(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "admin.handler.list_subscribers")
	defer span.End()

	subscribers, err := h.subscribers.List(ctx)
	if err != nil {
		respondError(ctx, c, span, h.logger, "Failed to list subscribers", err, logrus.Fields{
			"endpoint": "GET /api/admin/subscribers",
		})
		return
	}

	span.SetAttributes(attribute.Int("subscriber.count", len(subscribers)))
	c.JSON(http.StatusOK, gin.H{
		"subscribers": subscribers,
		"count":       len(subscribers),
	})
}

func (h *AdminHandler) RemoveSubscriber(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "admin.handler.remove_subscriber")
	defer span.End()

	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}

	if err := h.subscribers.Remove(ctx, req.Email); err != nil {
		respondError(ctx, c, span, h.logger, "Failed to remove subscriber", err, logrus.Fields{
			"email":    req.Email,
			"endpoint": "POST /api/admin/unsubscribe",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *AdminHandler) ListNotifications(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "admin.handler.list_notifications")
	defer span.End()

	pending, sent, err := h.notifications.Overview(ctx)
	if err != nil {
		respondError(ctx, c, span, h.logger, "Failed to list notifications", err, logrus.Fields{
			"endpoint": "GET /api/admin/notifications",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"pending": pending,
		"sent":    sent,
	})
}

func (h *AdminHandler) CreateNotification(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "admin.handler.create_notification")
	defer span.End()

	var req models.CreateNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.ErrorWithTracing(ctx, "Invalid request payload", err, logrus.Fields{
			"endpoint": "POST /api/admin/notifications",
		})
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	notification, err := h.notifications.Create(ctx, &req)
	if err != nil {
		respondError(ctx, c, span, h.logger, "Failed to create notification", err, logrus.Fields{
			"content_type": req.ContentType,
			"content_id":   req.ContentID.String(),
			"endpoint":     "POST /api/admin/notifications",
		})
		return
	}

	span.SetAttributes(attribute.String("notification.id", notification.ID.String()))
	c.JSON(http.StatusCreated, notification)
}

func (h *AdminHandler) SendNotification(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "admin.handler.send_notification")
	defer span.End()

	idParam := c.Query("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid notification ID"})
		return
	}

	result, err := h.dispatcher.DispatchOne(context.WithoutCancel(ctx), id)
	if err != nil {
		respondError(ctx, c, span, h.logger, "Failed to send notification", err, logrus.Fields{
			"notification_id": idParam,
			"endpoint":        "POST /api/admin/send-notification",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": result.Status != models.DispatchError,
		"result":  result,
	})
}

// SendCustom records a custom broadcast and dispatches it right away.
func (h *AdminHandler) SendCustom(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "admin.handler.send_custom")
	defer span.End()

	var req models.CustomBroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "title and content are required"})
		return
	}

	notification, err := h.notifications.CreateCustom(ctx, &req)
	if err != nil {
		respondError(ctx, c, span, h.logger, "Failed to create custom notification", err, logrus.Fields{
			"endpoint": "POST /api/admin/send-custom",
		})
		return
	}

	result, err := h.dispatcher.DispatchOne(context.WithoutCancel(ctx), notification.ID)
	if err != nil {
		respondError(ctx, c, span, h.logger, "Failed to send custom notification", err, logrus.Fields{
			"notification_id": notification.ID.String(),
			"endpoint":        "POST /api/admin/send-custom",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      result.Status != models.DispatchError,
		"notification": notification,
		"result":       result,
	})
}

func (h *AdminHandler) GetEmailSettings(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "admin.handler.get_email_settings")
	defer span.End()

	settings, err := h.settings.Current(ctx)
	if err != nil {
		respondError(ctx, c, span, h.logger, "Failed to load email settings", err, logrus.Fields{
			"endpoint": "GET /api/admin/email-settings",
		})
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (h *AdminHandler) SaveEmailSettings(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "admin.handler.save_email_settings")
	defer span.End()

	var settings models.MailSettings
	if err := c.ShouldBindJSON(&settings); err != nil {
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.settings.Save(ctx, settings); err != nil {
		respondError(ctx, c, span, h.logger, "Failed to save email settings", err, logrus.Fields{
			"endpoint": "POST /api/admin/email-settings",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
