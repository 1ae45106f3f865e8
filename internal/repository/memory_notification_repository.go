package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"newsletter-go/internal/models"
)

type InMemoryNotificationRepository struct {
	mu            sync.RWMutex
	notifications map[uuid.UUID]*models.Notification
	tracer        trace.Tracer
}

func NewInMemoryNotificationRepository() *InMemoryNotificationRepository {
	return &InMemoryNotificationRepository{
		notifications: make(map[uuid.UUID]*models.Notification),
		tracer:        otel.Tracer("notification-repository"),
	}
}

func (r *InMemoryNotificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	_, span := r.tracer.Start(ctx, "notification.repository.create",
		trace.WithAttributes(
			attribute.String("notification.id", notification.ID.String()),
			attribute.String("notification.content_type", string(notification.ContentType)),
			attribute.String("operation", "database.write"),
		))
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.notifications[notification.ID]; exists {
		err := fmt.Errorf("notification with ID %s already exists", notification.ID)
		span.RecordError(err)
		return err
	}

	r.notifications[notification.ID] = cloneNotification(notification)
	span.SetAttributes(attribute.Bool("success", true))
	return nil
}

func (r *InMemoryNotificationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
	_, span := r.tracer.Start(ctx, "notification.repository.get_by_id",
		trace.WithAttributes(
			attribute.String("notification.id", id.String()),
			attribute.String("operation", "database.read"),
		))
	defer span.End()

	r.mu.RLock()
	defer r.mu.RUnlock()

	n, exists := r.notifications[id]
	if !exists {
		span.RecordError(models.ErrNotificationNotFound)
		return nil, fmt.Errorf("notification with ID %s: %w", id, models.ErrNotificationNotFound)
	}
	return cloneNotification(n), nil
}

func (r *InMemoryNotificationRepository) FindPending(ctx context.Context) ([]*models.Notification, error) {
	_, span := r.tracer.Start(ctx, "notification.repository.find_pending",
		trace.WithAttributes(
			attribute.String("operation", "database.read"),
		))
	defer span.End()

	pending := r.filter(func(n *models.Notification) bool { return n.SentAt == nil })
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})

	span.SetAttributes(attribute.Int("notification.count", len(pending)))
	return pending, nil
}

func (r *InMemoryNotificationRepository) FindSent(ctx context.Context, limit int) ([]*models.Notification, error) {
	_, span := r.tracer.Start(ctx, "notification.repository.find_sent",
		trace.WithAttributes(
			attribute.Int("limit", limit),
			attribute.String("operation", "database.read"),
		))
	defer span.End()

	sent := r.filter(func(n *models.Notification) bool { return n.SentAt != nil })
	sort.Slice(sent, func(i, j int) bool {
		return sent[i].SentAt.After(*sent[j].SentAt)
	})
	if limit > 0 && len(sent) > limit {
		sent = sent[:limit]
	}

	span.SetAttributes(attribute.Int("notification.count", len(sent)))
	return sent, nil
}

func (r *InMemoryNotificationRepository) CountByState(ctx context.Context) (int, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var pending, sent int
	for _, n := range r.notifications {
		if n.SentAt == nil {
			pending++
		} else {
			sent++
		}
	}
	return pending, sent, nil
}

func (r *InMemoryNotificationRepository) Claim(ctx context.Context, id, runID uuid.UUID, now time.Time, ttl time.Duration) (bool, error) {
	_, span := r.tracer.Start(ctx, "notification.repository.claim",
		trace.WithAttributes(
			attribute.String("notification.id", id.String()),
			attribute.String("dispatch.run_id", runID.String()),
			attribute.String("operation", "database.write"),
		))
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	n, exists := r.notifications[id]
	if !exists {
		span.SetAttributes(attribute.Bool("found", false))
		return false, nil
	}
	if n.SentAt != nil {
		span.SetAttributes(attribute.Bool("claimed", false))
		return false, nil
	}
	if n.ClaimedBy != nil && *n.ClaimedBy != runID && n.ClaimedAt.After(now.Add(-ttl)) {
		span.SetAttributes(attribute.Bool("claimed", false))
		return false, nil
	}

	claimedBy, claimedAt := runID, now
	n.ClaimedBy = &claimedBy
	n.ClaimedAt = &claimedAt
	span.SetAttributes(attribute.Bool("claimed", true))
	return true, nil
}

func (r *InMemoryNotificationRepository) Release(ctx context.Context, id, runID uuid.UUID) error {
	_, span := r.tracer.Start(ctx, "notification.repository.release",
		trace.WithAttributes(
			attribute.String("notification.id", id.String()),
			attribute.String("dispatch.run_id", runID.String()),
			attribute.String("operation", "database.write"),
		))
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	n, exists := r.notifications[id]
	if !exists || n.ClaimedBy == nil || *n.ClaimedBy != runID {
		return nil
	}
	n.ClaimedBy = nil
	n.ClaimedAt = nil
	return nil
}

func (r *InMemoryNotificationRepository) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	_, span := r.tracer.Start(ctx, "notification.repository.mark_sent",
		trace.WithAttributes(
			attribute.String("notification.id", id.String()),
			attribute.String("operation", "database.write"),
		))
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	n, exists := r.notifications[id]
	if !exists {
		span.SetAttributes(attribute.Bool("found", false))
		return false, nil
	}
	if n.SentAt != nil {
		span.SetAttributes(attribute.Bool("updated", false))
		return false, nil
	}

	sentAt := at
	n.SentAt = &sentAt
	n.ClaimedBy = nil
	n.ClaimedAt = nil
	span.SetAttributes(attribute.Bool("updated", true))
	return true, nil
}

func (r *InMemoryNotificationRepository) filter(keep func(*models.Notification) bool) []*models.Notification {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Notification, 0, len(r.notifications))
	for _, n := range r.notifications {
		if keep(n) {
			out = append(out, cloneNotification(n))
		}
	}
	return out
}

func cloneNotification(n *models.Notification) *models.Notification {
	c := *n
	if n.ContentID != nil {
		id := *n.ContentID
		c.ContentID = &id
	}
	if n.SentAt != nil {
		t := *n.SentAt
		c.SentAt = &t
	}
	if n.ClaimedBy != nil {
		id := *n.ClaimedBy
		c.ClaimedBy = &id
	}
	if n.ClaimedAt != nil {
		t := *n.ClaimedAt
		c.ClaimedAt = &t
	}
	return &c
}
