package repository

import (
	"context"
	"encoding/json"
	"fmt"

	dapr "github.com/dapr/go-sdk/client"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"newsletter-go/internal/models"
)

// MailSettingsKey is the state key mail settings are stored under.
const MailSettingsKey = "email_settings"

// DaprStateClient is the subset of the dapr client the settings repository uses.
type DaprStateClient interface {
	GetState(ctx context.Context, storeName, key string, meta map[string]string) (*dapr.StateItem, error)
	SaveState(ctx context.Context, storeName, key string, data []byte, meta map[string]string, so ...dapr.StateOption) error
}

type DaprSettingsRepository struct {
	client    DaprStateClient
	tracer    trace.Tracer
	storeName string
}

func NewDaprSettingsRepository(client DaprStateClient, storeName string) *DaprSettingsRepository {
	return &DaprSettingsRepository{
		client:    client,
		tracer:    otel.Tracer("dapr.repository"),
		storeName: storeName,
	}
}

func (r *DaprSettingsRepository) GetMailSettings(ctx context.Context) (*models.MailSettings, error) {
	ctx, span := r.tracer.Start(ctx, "settings.repository.get",
		trace.WithAttributes(
			attribute.String("settings.key", MailSettingsKey),
			attribute.String("operation", "database.read"),
			attribute.String("dapr.store", r.storeName),
		))
	defer span.End()

	item, err := r.client.GetState(ctx, r.storeName, MailSettingsKey, nil)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get mail settings from dapr state store: %w", err)
	}

	if item == nil || len(item.Value) == 0 {
		span.SetAttributes(attribute.Bool("found", false))
		return nil, models.ErrSettingsNotFound
	}

	var settings models.MailSettings
	if err := json.Unmarshal(item.Value, &settings); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to unmarshal mail settings: %w", err)
	}

	span.SetAttributes(attribute.Bool("found", true))
	return &settings, nil
}

func (r *DaprSettingsRepository) SaveMailSettings(ctx context.Context, settings *models.MailSettings) error {
	ctx, span := r.tracer.Start(ctx, "settings.repository.save",
		trace.WithAttributes(
			attribute.String("settings.key", MailSettingsKey),
			attribute.String("operation", "database.write"),
			attribute.String("dapr.store", r.storeName),
		))
	defer span.End()

	data, err := json.Marshal(settings)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to marshal mail settings: %w", err)
	}

	if err := r.client.SaveState(ctx, r.storeName, MailSettingsKey, data, nil); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save mail settings to dapr state store: %w", err)
	}

	span.SetAttributes(attribute.Bool("success", true))
	return nil
}
