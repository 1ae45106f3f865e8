package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"newsletter-go/internal/cache"
	"newsletter-go/internal/logging"
	"newsletter-go/internal/models"
	"newsletter-go/internal/repository"
)

const mailSettingsCacheKey = "settings:mail"

// SettingsService reads and writes the mail configuration. Reads are cached
// for ttl; saving invalidates the cache so the next dispatch run sees the
// new values without a restart.
type SettingsService struct {
	repo           repository.SettingsRepository
	cache          cache.Cache[models.MailSettings]
	ttl            time.Duration
	fallbackAPIKey string
	logger         *logging.ContextLogger
	tracer         trace.Tracer
}

func NewSettingsService(repo repository.SettingsRepository, c cache.Cache[models.MailSettings], ttl time.Duration, fallbackAPIKey string, logger *logging.ContextLogger) *SettingsService {
	return &SettingsService{
		repo:           repo,
		cache:          c,
		ttl:            ttl,
		fallbackAPIKey: fallbackAPIKey,
		logger:         logger,
		tracer:         otel.Tracer("settings-service"),
	}
}

// MailSettings returns the stored settings or ErrSettingsNotFound.
func (s *SettingsService) MailSettings(ctx context.Context) (models.MailSettings, error) {
	ctx, span := s.tracer.Start(ctx, "settings.service.mail")
	defer span.End()

	if settings, err := s.cache.Get(ctx, mailSettingsCacheKey); err == nil {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return settings, nil
	}

	settings, err := s.repo.GetMailSettings(ctx)
	if err != nil {
		if !errors.Is(err, models.ErrSettingsNotFound) {
			s.logger.ErrorWithTracing(ctx, "Failed to load mail settings", err, nil)
			span.RecordError(err)
		}
		return models.MailSettings{}, err
	}

	if s.ttl > 0 {
		if err := s.cache.Set(ctx, mailSettingsCacheKey, *settings, s.ttl); err != nil {
			s.logger.WarnWithTracing(ctx, "Failed to cache mail settings", logrus.Fields{
				"error": err.Error(),
			})
		}
	}

	span.SetAttributes(attribute.Bool("cache.hit", false))
	return *settings, nil
}

// Current is MailSettings for the admin console: missing settings read as
// empty values and the password is redacted.
func (s *SettingsService) Current(ctx context.Context) (models.MailSettings, error) {
	settings, err := s.MailSettings(ctx)
	if errors.Is(err, models.ErrSettingsNotFound) {
		return models.MailSettings{}, nil
	}
	if err != nil {
		return models.MailSettings{}, err
	}
	return settings.Redacted(), nil
}

func (s *SettingsService) Save(ctx context.Context, settings models.MailSettings) error {
	ctx, span := s.tracer.Start(ctx, "settings.service.save",
		trace.WithAttributes(
			attribute.String("mail.host", settings.Host),
			attribute.Int("mail.port", settings.Port),
		))
	defer span.End()

	if settings.Password == models.RedactedPassword {
		existing, err := s.repo.GetMailSettings(ctx)
		if err != nil && !errors.Is(err, models.ErrSettingsNotFound) {
			span.RecordError(err)
			return err
		}
		settings.Password = ""
		if existing != nil {
			settings.Password = existing.Password
		}
	}

	if err := settings.Validate(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidSettings, err)
	}

	if err := s.repo.SaveMailSettings(ctx, &settings); err != nil {
		s.logger.ErrorWithTracing(ctx, "Failed to save mail settings", err, nil)
		span.RecordError(err)
		return err
	}

	if err := s.cache.Delete(ctx, mailSettingsCacheKey); err != nil {
		s.logger.WarnWithTracing(ctx, "Failed to invalidate mail settings cache", logrus.Fields{
			"error": err.Error(),
		})
	}

	s.logger.InfoWithTracing(ctx, "Mail settings updated", logrus.Fields{
		"host": settings.Host,
		"port": settings.Port,
	})
	span.SetAttributes(attribute.Bool("success", true))
	return nil
}

// APIKey is the key the dispatch trigger expects: the stored one when set,
// otherwise the configured fallback.
func (s *SettingsService) APIKey(ctx context.Context) string {
	settings, err := s.MailSettings(ctx)
	if err == nil && settings.APIKey != "" {
		return settings.APIKey
	}
	return s.fallbackAPIKey
}

// VerifyAPIKey reports whether key matches. An unset key matches nothing.
func (s *SettingsService) VerifyAPIKey(ctx context.Context, key string) bool {
	expected := s.APIKey(ctx)
	if expected == "" || key == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(key)) == 1
}
