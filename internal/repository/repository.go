package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"newsletter-go/internal/models"
)

type SubscriberRepository interface {
	Create(ctx context.Context, subscriber *models.Subscriber) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Subscriber, error)
	GetByEmail(ctx context.Context, email string) (*models.Subscriber, error)
	// GetAll returns subscribers newest first.
	GetAll(ctx context.Context) ([]*models.Subscriber, error)
	FindByPreference(ctx context.Context, key models.PreferenceKey) ([]*models.Subscriber, error)
	Update(ctx context.Context, subscriber *models.Subscriber) error
	DeleteByEmail(ctx context.Context, email string) error
	Count(ctx context.Context) (int, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Notification, error)
	// FindPending returns notifications without sent_at, oldest first.
	FindPending(ctx context.Context) ([]*models.Notification, error)
	// FindSent returns up to limit sent notifications, most recently sent first.
	FindSent(ctx context.Context, limit int) ([]*models.Notification, error)
	CountByState(ctx context.Context) (pending int, sent int, err error)
	// Claim takes a dispatch lease on a pending notification. It reports
	// false when the notification is missing, already sent, or leased by
	// another run less than ttl ago.
	Claim(ctx context.Context, id, runID uuid.UUID, now time.Time, ttl time.Duration) (bool, error)
	// Release drops the lease held by runID, leaving the notification pending.
	Release(ctx context.Context, id, runID uuid.UUID) error
	// MarkSent sets sent_at only if it is still null and reports whether it did.
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

type ContentRepository interface {
	FindContent(ctx context.Context, contentType models.ContentType, id uuid.UUID) (*models.ContentItem, error)
}

type SettingsRepository interface {
	GetMailSettings(ctx context.Context) (*models.MailSettings, error)
	SaveMailSettings(ctx context.Context, settings *models.MailSettings) error
}
