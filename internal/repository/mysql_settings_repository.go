package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"newsletter-go/internal/models"
)

// MySQLSettingsRepository stores settings as JSON values in admin_settings.
type MySQLSettingsRepository struct {
	db *sqlx.DB
}

func NewMySQLSettingsRepository(db *sqlx.DB) *MySQLSettingsRepository {
	return &MySQLSettingsRepository{db: db}
}

func (r *MySQLSettingsRepository) GetMailSettings(ctx context.Context) (*models.MailSettings, error) {
	var raw []byte
	err := r.db.GetContext(ctx, &raw, "SELECT value FROM admin_settings WHERE `key` = ?", MailSettingsKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrSettingsNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to select mail settings")
	}

	var settings models.MailSettings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal mail settings")
	}
	return &settings, nil
}

func (r *MySQLSettingsRepository) SaveMailSettings(ctx context.Context, settings *models.MailSettings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return errors.Wrap(err, "failed to marshal mail settings")
	}
	_, err = r.db.ExecContext(ctx,
		"INSERT INTO admin_settings (`key`, value) VALUES (?, ?) ON DUPLICATE KEY UPDATE value = VALUES(value)",
		MailSettingsKey, string(raw))
	if err != nil {
		return errors.Wrap(err, "failed to save mail settings")
	}
	return nil
}
