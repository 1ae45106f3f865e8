package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"newsletter-go/internal/logging"
	"newsletter-go/internal/models"
	"newsletter-go/internal/repository"
)

const (
	recentSentLimit        = 20
	recentSubscribersLimit = 5
)

type NotificationService struct {
	notifications repository.NotificationRepository
	subscribers   repository.SubscriberRepository
	content       *ContentResolver
	logger        *logging.ContextLogger
	tracer        trace.Tracer
}

func NewNotificationService(notifications repository.NotificationRepository, subscribers repository.SubscriberRepository, content *ContentResolver, logger *logging.ContextLogger) *NotificationService {
	return &NotificationService{
		notifications: notifications,
		subscribers:   subscribers,
		content:       content,
		logger:        logger,
		tracer:        otel.Tracer("notification-service"),
	}
}

// Create records a pending notification for a published content item. The
// item must exist.
func (s *NotificationService) Create(ctx context.Context, req *models.CreateNotificationRequest) (*models.Notification, error) {
	contentType, err := models.ParseContentType(req.ContentType)
	if err != nil {
		return nil, err
	}
	if contentType.IsCustom() {
		return nil, fmt.Errorf("%w: custom notifications are sent as broadcasts", models.ErrInvalidContentType)
	}

	ctx, span := s.tracer.Start(ctx, "notification.service.create",
		trace.WithAttributes(
			attribute.String("notification.content_type", string(contentType)),
			attribute.String("content.id", req.ContentID.String()),
		))
	defer span.End()

	if _, err := s.content.Resolve(ctx, contentType, req.ContentID); err != nil {
		span.RecordError(err)
		return nil, err
	}

	notification := models.NewNotification(contentType, req.ContentID, req.Title, req.Excerpt)
	if err := s.notifications.Create(ctx, notification); err != nil {
		s.logger.ErrorWithTracing(ctx, "Failed to create notification", err, logrus.Fields{
			"content_type": string(contentType),
			"content_id":   req.ContentID.String(),
		})
		span.RecordError(err)
		return nil, err
	}

	s.logger.InfoWithTracing(ctx, "Notification queued", logrus.Fields{
		"notification_id": notification.ID.String(),
		"content_type":    string(contentType),
	})
	span.SetAttributes(attribute.String("notification.id", notification.ID.String()))
	return notification, nil
}

// CreateCustom records a pending custom broadcast.
func (s *NotificationService) CreateCustom(ctx context.Context, req *models.CustomBroadcastRequest) (*models.Notification, error) {
	audience, err := models.ParseAudience(req.Recipients)
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "notification.service.create_custom",
		trace.WithAttributes(
			attribute.String("audience", audience),
		))
	defer span.End()

	notification := models.NewCustomNotification(req.Title, req.Content, audience)
	if err := s.notifications.Create(ctx, notification); err != nil {
		s.logger.ErrorWithTracing(ctx, "Failed to create custom notification", err, nil)
		span.RecordError(err)
		return nil, err
	}

	s.logger.InfoWithTracing(ctx, "Custom broadcast queued", logrus.Fields{
		"notification_id": notification.ID.String(),
		"audience":        audience,
	})
	return notification, nil
}

// Overview lists pending notifications newest first and the most recently
// sent ones.
func (s *NotificationService) Overview(ctx context.Context) (pending, sent []*models.Notification, err error) {
	ctx, span := s.tracer.Start(ctx, "notification.service.overview")
	defer span.End()

	pending, err = s.notifications.FindPending(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}
	for i, j := 0, len(pending)-1; i < j; i, j = i+1, j-1 {
		pending[i], pending[j] = pending[j], pending[i]
	}

	sent, err = s.notifications.FindSent(ctx, recentSentLimit)
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}
	return pending, sent, nil
}

func (s *NotificationService) Dashboard(ctx context.Context) (*models.DashboardStats, error) {
	ctx, span := s.tracer.Start(ctx, "notification.service.dashboard")
	defer span.End()

	total, err := s.subscribers.Count(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	pending, sent, err := s.notifications.CountByState(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	subscribers, err := s.subscribers.GetAll(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if len(subscribers) > recentSubscribersLimit {
		subscribers = subscribers[:recentSubscribersLimit]
	}

	return &models.DashboardStats{
		TotalSubscribers:     total,
		PendingNotifications: pending,
		SentNotifications:    sent,
		RecentSubscribers:    subscribers,
	}, nil
}
