package repository

import (
	"context"
	"sync"

	"newsletter-go/internal/models"
)

type InMemorySettingsRepository struct {
	mu       sync.RWMutex
	settings *models.MailSettings
}

func NewInMemorySettingsRepository() *InMemorySettingsRepository {
	return &InMemorySettingsRepository{}
}

func (r *InMemorySettingsRepository) GetMailSettings(ctx context.Context) (*models.MailSettings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.settings == nil {
		return nil, models.ErrSettingsNotFound
	}
	copied := *r.settings
	return &copied, nil
}

func (r *InMemorySettingsRepository) SaveMailSettings(ctx context.Context, settings *models.MailSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *settings
	r.settings = &copied
	return nil
}
