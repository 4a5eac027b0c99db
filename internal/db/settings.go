package db

import (
	"context"

	"EmailBlaster/internal/models"
)

// GetEmailSettings reads every stored setting in one query and lays the rows
// over the defaults.
func (s *Store) GetEmailSettings(ctx context.Context) (models.EmailSettings, error) {
	settings := models.DefaultEmailSettings()

	rows, err := s.DB.QueryContext(ctx,
		`SELECT setting_key, COALESCE(setting_value, '') FROM email_settings`)
	if err != nil {
		return settings, err
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return settings, err
		}
		settings.Apply(key, value)
	}
	return settings, rows.Err()
}
