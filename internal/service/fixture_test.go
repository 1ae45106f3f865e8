package service

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"newsletter-go/internal/cache"
	"newsletter-go/internal/logging"
	"newsletter-go/internal/mail"
	"newsletter-go/internal/models"
	"newsletter-go/internal/repository"
)

const (
	testSiteURL  = "https://healthlife.example"
	testSiteName = "Health Life"
)

type fixture struct {
	subscribers   *repository.InMemorySubscriberRepository
	notifications *repository.InMemoryNotificationRepository
	content       *repository.InMemoryContentRepository
	settingsRepo  *repository.InMemorySettingsRepository
	transport     *mail.MemoryTransport
	settings      *SettingsService
	dispatcher    *Dispatcher
	logger        *logging.ContextLogger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		subscribers:   repository.NewInMemorySubscriberRepository(),
		notifications: repository.NewInMemoryNotificationRepository(),
		content:       repository.NewInMemoryContentRepository(),
		settingsRepo:  repository.NewInMemorySettingsRepository(),
		transport:     mail.NewMemoryTransport(),
		logger:        logging.NewLoggerWithOutput(io.Discard, "debug"),
	}
	f.settings = NewSettingsService(f.settingsRepo, cache.NewInMemoryCache[models.MailSettings](), time.Minute, "", f.logger)
	require.NoError(t, f.settingsRepo.SaveMailSettings(context.Background(), &models.MailSettings{
		Host:      "smtp.example.com",
		Port:      587,
		User:      "mailer",
		Password:  "secret",
		FromEmail: "news@healthlife.example",
		APIKey:    "trigger-key",
	}))
	f.dispatcher = f.newDispatcher(f.transport.Factory())
	return f
}

func (f *fixture) newDispatcher(factory mail.TransportFactory) *Dispatcher {
	return NewDispatcher(DispatcherDeps{
		Notifications: f.notifications,
		Audience:      NewAudienceResolver(f.subscribers),
		Content:       NewContentResolver(f.content),
		Composer:      NewComposer(testSiteURL, testSiteName),
		Settings:      f.settings,
		Transports:    factory,
		Logger:        f.logger,
		SiteName:      testSiteName,
		ClaimTTL:      10 * time.Minute,
	})
}

func (f *fixture) addSubscriber(t *testing.T, email string, prefs models.Preferences) *models.Subscriber {
	t.Helper()
	s := models.NewSubscriber(email, prefs)
	require.NoError(t, f.subscribers.Create(context.Background(), s))
	// Keep subscription order stable for assertions.
	time.Sleep(time.Millisecond)
	return s
}

func (f *fixture) addContent(t *testing.T, contentType models.ContentType, slug, title string) models.ContentItem {
	t.Helper()
	item := models.ContentItem{ID: uuid.New(), Type: contentType, Slug: slug, Title: title}
	require.NoError(t, f.content.Put(item))
	return item
}

func (f *fixture) addNotification(t *testing.T, item models.ContentItem, excerpt string) *models.Notification {
	t.Helper()
	n := models.NewNotification(item.Type, item.ID, item.Title, excerpt)
	require.NoError(t, f.notifications.Create(context.Background(), n))
	time.Sleep(time.Millisecond)
	return n
}

func (f *fixture) notification(t *testing.T, id uuid.UUID) *models.Notification {
	t.Helper()
	n, err := f.notifications.GetByID(context.Background(), id)
	require.NoError(t, err)
	return n
}

func resultFor(results []models.DispatchResult, id uuid.UUID) (models.DispatchResult, bool) {
	for _, r := range results {
		if r.NotificationID == id {
			return r, true
		}
	}
	return models.DispatchResult{}, false
}
