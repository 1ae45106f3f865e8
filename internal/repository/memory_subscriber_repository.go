package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"newsletter-go/internal/models"
)

type InMemorySubscriberRepository struct {
	mu          sync.RWMutex
	subscribers map[uuid.UUID]*models.Subscriber
	byEmail     map[string]uuid.UUID
	tracer      trace.Tracer
}

func NewInMemorySubscriberRepository() *InMemorySubscriberRepository {
	return &InMemorySubscriberRepository{
		subscribers: make(map[uuid.UUID]*models.Subscriber),
		byEmail:     make(map[string]uuid.UUID),
		tracer:      otel.Tracer("subscriber-repository"),
	}
}

func (r *InMemorySubscriberRepository) Create(ctx context.Context, subscriber *models.Subscriber) error {
	_, span := r.tracer.Start(ctx, "subscriber.repository.create",
		trace.WithAttributes(
			attribute.String("subscriber.id", subscriber.ID.String()),
			attribute.String("subscriber.email", subscriber.Email),
			attribute.String("operation", "database.write"),
		))
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[subscriber.Email]; exists {
		span.RecordError(models.ErrSubscriberExists)
		return fmt.Errorf("subscriber %s: %w", subscriber.Email, models.ErrSubscriberExists)
	}
	if _, exists := r.subscribers[subscriber.ID]; exists {
		span.RecordError(models.ErrSubscriberExists)
		return fmt.Errorf("subscriber with ID %s: %w", subscriber.ID, models.ErrSubscriberExists)
	}

	stored := *subscriber
	r.subscribers[subscriber.ID] = &stored
	r.byEmail[subscriber.Email] = subscriber.ID
	span.SetAttributes(attribute.Bool("success", true))
	return nil
}

func (r *InMemorySubscriberRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Subscriber, error) {
	_, span := r.tracer.Start(ctx, "subscriber.repository.get_by_id",
		trace.WithAttributes(
			attribute.String("subscriber.id", id.String()),
			attribute.String("operation", "database.read"),
		))
	defer span.End()

	r.mu.RLock()
	defer r.mu.RUnlock()

	subscriber, exists := r.subscribers[id]
	if !exists {
		span.RecordError(models.ErrSubscriberNotFound)
		return nil, fmt.Errorf("subscriber with ID %s: %w", id, models.ErrSubscriberNotFound)
	}

	span.SetAttributes(attribute.Bool("success", true))
	copied := *subscriber
	return &copied, nil
}

func (r *InMemorySubscriberRepository) GetByEmail(ctx context.Context, email string) (*models.Subscriber, error) {
	_, span := r.tracer.Start(ctx, "subscriber.repository.get_by_email",
		trace.WithAttributes(
			attribute.String("subscriber.email", email),
			attribute.String("operation", "database.read"),
		))
	defer span.End()

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.byEmail[email]
	if !exists {
		span.SetAttributes(attribute.Bool("found", false))
		return nil, models.ErrSubscriberNotFound
	}

	span.SetAttributes(attribute.Bool("found", true))
	copied := *r.subscribers[id]
	return &copied, nil
}

func (r *InMemorySubscriberRepository) GetAll(ctx context.Context) ([]*models.Subscriber, error) {
	_, span := r.tracer.Start(ctx, "subscriber.repository.get_all",
		trace.WithAttributes(
			attribute.String("operation", "database.read"),
		))
	defer span.End()

	subscribers := r.filter(func(*models.Subscriber) bool { return true })
	sort.Slice(subscribers, func(i, j int) bool {
		return subscribers[i].SubscribedAt.After(subscribers[j].SubscribedAt)
	})

	span.SetAttributes(attribute.Int("subscriber.count", len(subscribers)))
	return subscribers, nil
}

func (r *InMemorySubscriberRepository) FindByPreference(ctx context.Context, key models.PreferenceKey) ([]*models.Subscriber, error) {
	_, span := r.tracer.Start(ctx, "subscriber.repository.find_by_preference",
		trace.WithAttributes(
			attribute.String("subscriber.preference", string(key)),
			attribute.String("operation", "database.read"),
		))
	defer span.End()

	subscribers := r.filter(func(s *models.Subscriber) bool { return s.Preferences.Allows(key) })
	sort.Slice(subscribers, func(i, j int) bool {
		return subscribers[i].SubscribedAt.Before(subscribers[j].SubscribedAt)
	})

	span.SetAttributes(attribute.Int("subscriber.count", len(subscribers)))
	return subscribers, nil
}

func (r *InMemorySubscriberRepository) Update(ctx context.Context, subscriber *models.Subscriber) error {
	_, span := r.tracer.Start(ctx, "subscriber.repository.update",
		trace.WithAttributes(
			attribute.String("subscriber.id", subscriber.ID.String()),
			attribute.String("operation", "database.write"),
		))
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.subscribers[subscriber.ID]
	if !exists {
		span.RecordError(models.ErrSubscriberNotFound)
		return fmt.Errorf("subscriber with ID %s: %w", subscriber.ID, models.ErrSubscriberNotFound)
	}
	if existing.Email != subscriber.Email {
		if _, taken := r.byEmail[subscriber.Email]; taken {
			span.RecordError(models.ErrSubscriberExists)
			return fmt.Errorf("subscriber %s: %w", subscriber.Email, models.ErrSubscriberExists)
		}
		delete(r.byEmail, existing.Email)
		r.byEmail[subscriber.Email] = subscriber.ID
	}

	stored := *subscriber
	r.subscribers[subscriber.ID] = &stored
	span.SetAttributes(attribute.Bool("success", true))
	return nil
}

func (r *InMemorySubscriberRepository) DeleteByEmail(ctx context.Context, email string) error {
	_, span := r.tracer.Start(ctx, "subscriber.repository.delete",
		trace.WithAttributes(
			attribute.String("subscriber.email", email),
			attribute.String("operation", "database.write"),
		))
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	id, exists := r.byEmail[email]
	if !exists {
		span.RecordError(models.ErrSubscriberNotFound)
		return models.ErrSubscriberNotFound
	}

	delete(r.byEmail, email)
	delete(r.subscribers, id)
	span.SetAttributes(attribute.Bool("success", true))
	return nil
}

func (r *InMemorySubscriberRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscribers), nil
}

func (r *InMemorySubscriberRepository) filter(keep func(*models.Subscriber) bool) []*models.Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Subscriber, 0, len(r.subscribers))
	for _, s := range r.subscribers {
		if keep(s) {
			copied := *s
			out = append(out, &copied)
		}
	}
	return out
}
