package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"newsletter-go/internal/logging"
	"newsletter-go/internal/models"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrSubscriberNotFound),
		errors.Is(err, models.ErrNotificationNotFound),
		errors.Is(err, models.ErrContentNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidEmail),
		errors.Is(err, models.ErrInvalidContentType),
		errors.Is(err, models.ErrInvalidAudience),
		errors.Is(err, models.ErrInvalidSettings):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrSubscriberExists):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// respondError logs err, records it on span and writes the mapped status.
// Internal errors are reported with the generic message only.
func respondError(ctx context.Context, c *gin.Context, span trace.Span, logger *logging.ContextLogger, msg string, err error, fields logrus.Fields) {
	logger.ErrorWithTracing(ctx, msg, err, fields)
	span.RecordError(err)

	status := statusFor(err)
	if status == http.StatusInternalServerError {
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
