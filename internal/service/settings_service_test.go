package service

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsletter-go/internal/cache"
	"newsletter-go/internal/logging"
	"newsletter-go/internal/models"
	"newsletter-go/internal/repository"
)

func validSettings() models.MailSettings {
	return models.MailSettings{
		Host:      "smtp.example.com",
		Port:      465,
		Secure:    true,
		User:      "mailer",
		Password:  "secret",
		FromEmail: "news@example.com",
		APIKey:    "stored-key",
	}
}

func newSettingsService(fallback string) (*SettingsService, *repository.InMemorySettingsRepository) {
	repo := repository.NewInMemorySettingsRepository()
	svc := NewSettingsService(repo, cache.NewInMemoryCache[models.MailSettings](), time.Minute, fallback,
		logging.NewLoggerWithOutput(io.Discard, "info"))
	return svc, repo
}

func TestSettingsCurrentWhenUnset(t *testing.T) {
	svc, _ := newSettingsService("")
	settings, err := svc.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.MailSettings{}, settings)
}

func TestSettingsSaveValidatesAndRedacts(t *testing.T) {
	svc, _ := newSettingsService("")
	ctx := context.Background()

	incomplete := validSettings()
	incomplete.Host = ""
	assert.ErrorIs(t, svc.Save(ctx, incomplete), models.ErrInvalidSettings)

	require.NoError(t, svc.Save(ctx, validSettings()))
	current, err := svc.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.RedactedPassword, current.Password)
	assert.Equal(t, "smtp.example.com", current.Host)

	// Saving the redacted form back keeps the stored password.
	current.Port = 587
	require.NoError(t, svc.Save(ctx, current))
	settings, err := svc.MailSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "secret", settings.Password)
	assert.Equal(t, 587, settings.Port)
}

func TestSettingsSaveInvalidatesCache(t *testing.T) {
	svc, repo := newSettingsService("")
	ctx := context.Background()

	require.NoError(t, svc.Save(ctx, validSettings()))
	_, err := svc.MailSettings(ctx)
	require.NoError(t, err)

	// Writes behind the service are only seen after the cache expires.
	direct := validSettings()
	direct.Host = "other.example.com"
	require.NoError(t, repo.SaveMailSettings(ctx, &direct))
	settings, err := svc.MailSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com", settings.Host)

	updated := validSettings()
	updated.Host = "new.example.com"
	require.NoError(t, svc.Save(ctx, updated))
	settings, err = svc.MailSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new.example.com", settings.Host)
}

func TestVerifyAPIKey(t *testing.T) {
	ctx := context.Background()

	svc, _ := newSettingsService("")
	assert.False(t, svc.VerifyAPIKey(ctx, ""), "no key configured rejects everything")
	assert.False(t, svc.VerifyAPIKey(ctx, "anything"))

	svc, _ = newSettingsService("env-key")
	assert.True(t, svc.VerifyAPIKey(ctx, "env-key"))
	assert.False(t, svc.VerifyAPIKey(ctx, "wrong"))

	require.NoError(t, svc.Save(ctx, validSettings()))
	assert.True(t, svc.VerifyAPIKey(ctx, "stored-key"))
	assert.False(t, svc.VerifyAPIKey(ctx, "env-key"), "stored key takes precedence")
}
