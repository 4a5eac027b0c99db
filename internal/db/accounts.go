package db

import (
	"context"
	"database/sql"
	"errors"

	"EmailBlaster/internal/models"
)

const accountColumns = `id, COALESCE(name, ''), email, smtp_host, smtp_port,
	COALESCE(smtp_user, ''), COALESCE(smtp_pass, ''), smtp_secure, is_default, created_at`

func scanAccount(row scanner) (*models.EmailAccount, error) {
	var a models.EmailAccount
	err := row.Scan(
		&a.ID, &a.Name, &a.Email, &a.SMTPHost, &a.SMTPPort,
		&a.SMTPUser, &a.SMTPPass, &a.SMTPSecure, &a.IsDefault, &a.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) GetAccount(ctx context.Context, id int64) (*models.EmailAccount, error) {
	return scanAccount(s.DB.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM email_accounts WHERE id = $1`, id))
}

// GetDefaultAccount returns ErrNotFound when no account is flagged default.
func (s *Store) GetDefaultAccount(ctx context.Context) (*models.EmailAccount, error) {
	return scanAccount(s.DB.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM email_accounts WHERE is_default = TRUE ORDER BY id LIMIT 1`))
}
