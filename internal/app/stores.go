package app

import (
	"fmt"

	dapr "github.com/dapr/go-sdk/client"
	"github.com/sirupsen/logrus"

	"newsletter-go/internal/config"
	"newsletter-go/internal/logging"
	"newsletter-go/internal/repository"
)

// Stores groups the repositories the application runs on.
type Stores struct {
	Subscribers   repository.SubscriberRepository
	Notifications repository.NotificationRepository
	Content       repository.ContentRepository
	Settings      repository.SettingsRepository

	closers []func() error
}

// NewMemoryStores returns empty in-memory stores.
func NewMemoryStores() *Stores {
	return &Stores{
		Subscribers:   repository.NewInMemorySubscriberRepository(),
		Notifications: repository.NewInMemoryNotificationRepository(),
		Content:       repository.NewInMemoryContentRepository(),
		Settings:      repository.NewInMemorySettingsRepository(),
	}
}

// OpenStores connects the backends selected by cfg.
func OpenStores(cfg *config.Config, logger *logging.ContextLogger) (*Stores, error) {
	var stores *Stores

	switch cfg.StoreBackend {
	case config.StoreMySQL:
		if cfg.MigrateOnStart {
			if err := repository.MigrateUp(cfg.MySQLDSN); err != nil {
				return nil, err
			}
			logger.Info("Database migrations applied")
		}

		db, err := repository.OpenMySQL(repository.MySQLOptions{
			DSN:             cfg.MySQLDSN,
			MaxOpenConns:    cfg.MySQLMaxOpen,
			MaxIdleConns:    cfg.MySQLMaxIdle,
			ConnMaxLifetime: cfg.MySQLMaxLife,
		})
		if err != nil {
			return nil, err
		}
		stores = &Stores{
			Subscribers:   repository.NewMySQLSubscriberRepository(db),
			Notifications: repository.NewMySQLNotificationRepository(db),
			Content:       repository.NewMySQLContentRepository(db),
			Settings:      repository.NewMySQLSettingsRepository(db),
			closers:       []func() error{db.Close},
		}
	default:
		stores = NewMemoryStores()
	}

	if cfg.SettingsBackend == config.SettingsDapr {
		client, err := dapr.NewClient()
		if err != nil {
			_ = stores.Close()
			return nil, fmt.Errorf("failed to create dapr client: %w", err)
		}
		stores.Settings = repository.NewDaprSettingsRepository(client, cfg.DaprStateStore)
		stores.closers = append(stores.closers, func() error {
			client.Close()
			return nil
		})
	}

	logger.WithFields(logrus.Fields{
		"store":    cfg.StoreBackend,
		"settings": cfg.SettingsBackend,
	}).Info("Stores ready")
	return stores, nil
}

func (s *Stores) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}
