package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"newsletter-go/internal/logging"
	"newsletter-go/internal/models"
	"newsletter-go/internal/repository"
)

type SubscriberService struct {
	repo   repository.SubscriberRepository
	logger *logging.ContextLogger
	tracer trace.Tracer
}

func NewSubscriberService(repo repository.SubscriberRepository, logger *logging.ContextLogger) *SubscriberService {
	return &SubscriberService{
		repo:   repo,
		logger: logger,
		tracer: otel.Tracer("subscriber-service"),
	}
}

// Subscribe creates a subscriber, or merges preferences into an existing
// one. created is false for a resubscription.
func (s *SubscriberService) Subscribe(ctx context.Context, req *models.SubscribeRequest) (*models.Subscriber, bool, error) {
	email, err := models.NormalizeEmail(req.Email)
	if err != nil {
		return nil, false, err
	}

	ctx, span := s.tracer.Start(ctx, "subscriber.service.subscribe",
		trace.WithAttributes(
			attribute.String("subscriber.email", email),
		))
	defer span.End()

	s.logger.InfoWithTracing(ctx, "Subscribing", logrus.Fields{
		"email": email,
	})

	existing, err := s.repo.GetByEmail(ctx, email)
	if err == nil {
		return s.resubscribe(ctx, span, existing, req.Preferences)
	}
	if !errors.Is(err, models.ErrSubscriberNotFound) {
		s.logger.ErrorWithTracing(ctx, "Failed to look up subscriber", err, logrus.Fields{
			"email": email,
		})
		span.RecordError(err)
		return nil, false, err
	}

	subscriber := models.NewSubscriber(email, models.DefaultPreferences().Merge(req.Preferences))
	if err := s.repo.Create(ctx, subscriber); err != nil {
		if errors.Is(err, models.ErrSubscriberExists) {
			// Lost a race with a concurrent subscribe for the same address.
			existing, getErr := s.repo.GetByEmail(ctx, email)
			if getErr == nil {
				return s.resubscribe(ctx, span, existing, req.Preferences)
			}
		}
		s.logger.ErrorWithTracing(ctx, "Failed to create subscriber", err, logrus.Fields{
			"email": email,
		})
		span.RecordError(err)
		return nil, false, err
	}

	s.logger.InfoWithTracing(ctx, "Successfully created subscriber", logrus.Fields{
		"subscriber_id": subscriber.ID.String(),
		"email":         subscriber.Email,
	})
	span.SetAttributes(
		attribute.String("subscriber.id", subscriber.ID.String()),
		attribute.Bool("created", true),
	)
	return subscriber, true, nil
}

func (s *SubscriberService) resubscribe(ctx context.Context, span trace.Span, existing *models.Subscriber, update *models.PreferencesUpdate) (*models.Subscriber, bool, error) {
	span.SetAttributes(
		attribute.String("subscriber.id", existing.ID.String()),
		attribute.Bool("created", false),
	)
	if update.IsEmpty() {
		return existing, false, nil
	}

	existing.Preferences = existing.Preferences.Merge(update)
	existing.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, existing); err != nil {
		s.logger.ErrorWithTracing(ctx, "Failed to update preferences on resubscribe", err, logrus.Fields{
			"subscriber_id": existing.ID.String(),
		})
		span.RecordError(err)
		return nil, false, err
	}

	s.logger.InfoWithTracing(ctx, "Existing subscriber updated preferences", logrus.Fields{
		"subscriber_id": existing.ID.String(),
	})
	return existing, false, nil
}

// UnsubscribeResult describes what Unsubscribe did. Subscriber is set when
// preferences were updated rather than the subscriber removed.
type UnsubscribeResult struct {
	Removed             bool
	AlreadyUnsubscribed bool
	Subscriber          *models.Subscriber
}

// Unsubscribe removes the subscriber when All is set or no preferences are
// given; otherwise it merges the given preferences.
func (s *SubscriberService) Unsubscribe(ctx context.Context, req *models.UnsubscribeRequest) (*UnsubscribeResult, error) {
	email, err := models.NormalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "subscriber.service.unsubscribe",
		trace.WithAttributes(
			attribute.String("subscriber.email", email),
			attribute.Bool("unsubscribe.all", req.All || req.Preferences.IsEmpty()),
		))
	defer span.End()

	if req.All || req.Preferences.IsEmpty() {
		err := s.repo.DeleteByEmail(ctx, email)
		if errors.Is(err, models.ErrSubscriberNotFound) {
			return &UnsubscribeResult{AlreadyUnsubscribed: true}, nil
		}
		if err != nil {
			s.logger.ErrorWithTracing(ctx, "Failed to delete subscriber", err, logrus.Fields{
				"email": email,
			})
			span.RecordError(err)
			return nil, err
		}
		s.logger.InfoWithTracing(ctx, "Subscriber unsubscribed", logrus.Fields{
			"email": email,
		})
		return &UnsubscribeResult{Removed: true}, nil
	}

	subscriber, err := s.repo.GetByEmail(ctx, email)
	if errors.Is(err, models.ErrSubscriberNotFound) {
		return &UnsubscribeResult{AlreadyUnsubscribed: true}, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	subscriber.Preferences = subscriber.Preferences.Merge(req.Preferences)
	subscriber.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, subscriber); err != nil {
		s.logger.ErrorWithTracing(ctx, "Failed to update preferences", err, logrus.Fields{
			"subscriber_id": subscriber.ID.String(),
		})
		span.RecordError(err)
		return nil, err
	}

	s.logger.InfoWithTracing(ctx, "Subscriber preferences updated", logrus.Fields{
		"subscriber_id": subscriber.ID.String(),
	})
	return &UnsubscribeResult{Subscriber: subscriber}, nil
}

func (s *SubscriberService) GetByEmail(ctx context.Context, email string) (*models.Subscriber, error) {
	email, err := models.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "subscriber.service.get_by_email",
		trace.WithAttributes(
			attribute.String("subscriber.email", email),
		))
	defer span.End()

	subscriber, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return subscriber, nil
}

func (s *SubscriberService) List(ctx context.Context) ([]*models.Subscriber, error) {
	ctx, span := s.tracer.Start(ctx, "subscriber.service.list")
	defer span.End()

	s.logger.InfoWithTracing(ctx, "Retrieving all subscribers", nil)

	subscribers, err := s.repo.GetAll(ctx)
	if err != nil {
		s.logger.ErrorWithTracing(ctx, "Failed to retrieve subscribers", err, nil)
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("subscriber.count", len(subscribers)),
		attribute.Bool("success", true),
	)
	return subscribers, nil
}

// Remove deletes a subscriber on behalf of an admin. Unlike Unsubscribe it
// reports an unknown address as ErrSubscriberNotFound.
func (s *SubscriberService) Remove(ctx context.Context, email string) error {
	email, err := models.NormalizeEmail(email)
	if err != nil {
		return err
	}

	ctx, span := s.tracer.Start(ctx, "subscriber.service.remove",
		trace.WithAttributes(
			attribute.String("subscriber.email", email),
		))
	defer span.End()

	if err := s.repo.DeleteByEmail(ctx, email); err != nil {
		s.logger.ErrorWithTracing(ctx, "Failed to remove subscriber", err, logrus.Fields{
			"email": email,
		})
		span.RecordError(err)
		return err
	}

	s.logger.InfoWithTracing(ctx, "Subscriber removed by admin", logrus.Fields{
		"email": email,
	})
	return nil
}
