package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"newsletter-go/internal/logging"
	"newsletter-go/internal/service"
)

// DispatchHandler exposes the dispatch run to an external scheduler.
type DispatchHandler struct {
	dispatcher *service.Dispatcher
	settings   *service.SettingsService
	logger     *logging.ContextLogger
	tracer     trace.Tracer
}

func NewDispatchHandler(dispatcher *service.Dispatcher, settings *service.SettingsService, logger *logging.ContextLogger) *DispatchHandler {
	return &DispatchHandler{
		dispatcher: dispatcher,
		settings:   settings,
		logger:     logger,
		tracer:     otel.Tracer("dispatch-handler"),
	}
}

func (h *DispatchHandler) SendNotifications(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "dispatch.handler.send_notifications")
	defer span.End()

	if !h.settings.VerifyAPIKey(ctx, c.Query("apiKey")) {
		h.logger.WarnWithTracing(ctx, "Rejected dispatch trigger with invalid api key", logrus.Fields{
			"client_ip": c.ClientIP(),
		})
		span.SetAttributes(attribute.Bool("authorized", false))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	// The run outlives the trigger request: a caller timing out must not
	// abort sends or leave claims behind.
	results, err := h.dispatcher.DispatchPending(context.WithoutCancel(ctx))
	if err != nil {
		h.logger.ErrorWithTracing(ctx, "Dispatch run failed", err, nil)
		span.RecordError(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process notifications"})
		return
	}

	span.SetAttributes(attribute.Int("dispatch.processed", len(results)))
	if len(results) == 0 {
		c.JSON(http.StatusOK, gin.H{"message": "No pending notifications"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"processed": len(results),
		"results":   results,
	})
}
