package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"newsletter-go/internal/models"
	"newsletter-go/internal/repository"
)

// AudienceResolver maps a notification to the subscribers who should
// receive it. Preferences are read at dispatch time, not at creation.
type AudienceResolver struct {
	subscribers repository.SubscriberRepository
	tracer      trace.Tracer
}

func NewAudienceResolver(subscribers repository.SubscriberRepository) *AudienceResolver {
	return &AudienceResolver{
		subscribers: subscribers,
		tracer:      otel.Tracer("audience-resolver"),
	}
}

// ForContentType returns subscribers opted into the category of t.
func (r *AudienceResolver) ForContentType(ctx context.Context, t models.ContentType) ([]*models.Subscriber, error) {
	route, ok := t.Route()
	if !ok {
		return nil, fmt.Errorf("%w: %q has no audience preference", models.ErrInvalidContentType, t)
	}

	ctx, span := r.tracer.Start(ctx, "audience.resolve",
		trace.WithAttributes(
			attribute.String("content.type", string(t)),
			attribute.String("subscriber.preference", string(route.Preference)),
		))
	defer span.End()

	subscribers, err := r.subscribers.FindByPreference(ctx, route.Preference)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("audience.size", len(subscribers)))
	return subscribers, nil
}

// ForNotification resolves content notifications by category. Custom
// broadcasts go to everyone, or to one preference group when the
// notification names one.
func (r *AudienceResolver) ForNotification(ctx context.Context, n *models.Notification) ([]*models.Subscriber, error) {
	if !n.ContentType.IsCustom() {
		return r.ForContentType(ctx, n.ContentType)
	}

	audience, err := models.ParseAudience(n.Audience)
	if err != nil {
		return nil, err
	}

	ctx, span := r.tracer.Start(ctx, "audience.resolve",
		trace.WithAttributes(
			attribute.String("content.type", string(n.ContentType)),
			attribute.String("audience", audience),
		))
	defer span.End()

	var subscribers []*models.Subscriber
	if audience == models.AudienceAll {
		subscribers, err = r.subscribers.GetAll(ctx)
	} else {
		subscribers, err = r.subscribers.FindByPreference(ctx, models.PreferenceKey(audience))
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("audience.size", len(subscribers)))
	return subscribers, nil
}

// ContentResolver loads the content item a notification announces.
type ContentResolver struct {
	content repository.ContentRepository
}

func NewContentResolver(content repository.ContentRepository) *ContentResolver {
	return &ContentResolver{content: content}
}

func (r *ContentResolver) Resolve(ctx context.Context, t models.ContentType, id uuid.UUID) (*models.ContentItem, error) {
	if _, ok := t.Route(); !ok {
		return nil, fmt.Errorf("%w: %q is not backed by content", models.ErrInvalidContentType, t)
	}
	return r.content.FindContent(ctx, t, id)
}
