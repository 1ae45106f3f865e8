package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"newsletter-go/internal/logging"
	"newsletter-go/internal/models"
	"newsletter-go/internal/service"
)

// NewsletterHandler serves the public subscription endpoints.
type NewsletterHandler struct {
	subscribers *service.SubscriberService
	logger      *logging.ContextLogger
	tracer      trace.Tracer
}

func NewNewsletterHandler(subscribers *service.SubscriberService, logger *logging.ContextLogger) *NewsletterHandler {
	return &NewsletterHandler{
		subscribers: subscribers,
		logger:      logger,
		tracer:      otel.Tracer("newsletter-handler"),
	}
}

func (h *NewsletterHandler) Subscribe(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "newsletter.handler.subscribe")
	defer span.End()

	var req models.SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.ErrorWithTracing(ctx, "Invalid request payload", err, logrus.Fields{
			"endpoint": "POST /api/newsletter/subscribe",
		})
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "A valid email address is required"})
		return
	}

	subscriber, created, err := h.subscribers.Subscribe(ctx, &req)
	if err != nil {
		respondError(ctx, c, span, h.logger, "Failed to subscribe", err, logrus.Fields{
			"email":    req.Email,
			"endpoint": "POST /api/newsletter/subscribe",
		})
		return
	}

	span.SetAttributes(
		attribute.String("subscriber.id", subscriber.ID.String()),
		attribute.Bool("created", created),
	)

	if !created {
		c.JSON(http.StatusOK, gin.H{
			"message":           "You are already subscribed",
			"alreadySubscribed": true,
			"preferences":       subscriber.Preferences,
		})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":     "Successfully subscribed to the newsletter",
		"preferences": subscriber.Preferences,
	})
}

func (h *NewsletterHandler) Unsubscribe(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "newsletter.handler.unsubscribe")
	defer span.End()

	var req models.UnsubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.ErrorWithTracing(ctx, "Invalid request payload", err, logrus.Fields{
			"endpoint": "POST /api/newsletter/unsubscribe",
		})
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "A valid email address is required"})
		return
	}

	result, err := h.subscribers.Unsubscribe(ctx, &req)
	if err != nil {
		respondError(ctx, c, span, h.logger, "Failed to unsubscribe", err, logrus.Fields{
			"email":    req.Email,
			"endpoint": "POST /api/newsletter/unsubscribe",
		})
		return
	}

	switch {
	case result.AlreadyUnsubscribed:
		c.JSON(http.StatusOK, gin.H{
			"message":             "This email is not subscribed",
			"alreadyUnsubscribed": true,
		})
	case result.Removed:
		c.JSON(http.StatusOK, gin.H{"message": "Successfully unsubscribed"})
	default:
		c.JSON(http.StatusOK, gin.H{
			"message":     "Preferences updated",
			"preferences": result.Subscriber.Preferences,
		})
	}
}

func (h *NewsletterHandler) Preferences(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "newsletter.handler.preferences")
	defer span.End()

	email := c.Query("email")
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email query parameter is required"})
		return
	}

	subscriber, err := h.subscribers.GetByEmail(ctx, email)
	if err != nil {
		respondError(ctx, c, span, h.logger, "Failed to load preferences", err, logrus.Fields{
			"email":    email,
			"endpoint": "GET /api/newsletter/preferences",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"email":       subscriber.Email,
		"preferences": subscriber.Preferences,
	})
}
