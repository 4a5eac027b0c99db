package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"EmailBlaster/internal/models"
)

const campaignColumns = `id, name, template_id, email_account_id, status, scheduled_at,
	total_recipients, sent_count, failed_count, created_at, updated_at, sent_at`

func scanCampaign(row scanner) (*models.Campaign, error) {
	var (
		c          models.Campaign
		templateID sql.NullInt64
		accountID  sql.NullInt64
		scheduled  sql.NullTime
		sentAt     sql.NullTime
	)
	err := row.Scan(
		&c.ID, &c.Name, &templateID, &accountID, &c.Status, &scheduled,
		&c.TotalRecipients, &c.SentCount, &c.FailedCount, &c.CreatedAt, &c.UpdatedAt, &sentAt,
	)
	if err != nil {
		return nil, err
	}
	c.TemplateID = nullInt64(templateID)
	c.AccountID = nullInt64(accountID)
	c.ScheduledAt = nullTime(scheduled)
	c.SentAt = nullTime(sentAt)
	return &c, nil
}

func (s *Store) GetCampaign(ctx context.Context, id int64) (*models.Campaign, error) {
	c, err := scanCampaign(s.DB.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// GetCampaignTemplate returns the subject and body of the campaign's template,
// or ErrNotFound when the campaign has none.
func (s *Store) GetCampaignTemplate(ctx context.Context, campaignID int64) (*models.Template, error) {
	var t models.Template
	err := s.DB.QueryRowContext(ctx, `
		SELECT t.subject, t.body
		FROM campaigns c
		JOIN templates t ON t.id = c.template_id
		WHERE c.id = $1`, campaignID).Scan(&t.Subject, &t.Body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// MarkSending moves a draft campaign to sending and records the account it
// will be sent from. A nil accountID keeps the current assignment. Only one
// caller can win the transition; everyone else gets ErrConflict.
func (s *Store) MarkSending(
	ctx context.Context,
	id int64,
	accountID *int64,
) error {

	res, err := s.DB.ExecContext(ctx, `
		UPDATE campaigns
		SET status = 'sending',
		    email_account_id = COALESCE($2, email_account_id),
		    updated_at = NOW()
		WHERE id = $1 AND status = 'draft'`,
		id,
		accountID,
	)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (s *Store) SetCampaignStatus(
	ctx context.Context,
	id int64,
	status models.CampaignStatus,
) error {

	_, err := s.DB.ExecContext(ctx,
		`UPDATE campaigns SET status = $2, updated_at = NOW() WHERE id = $1`,
		id,
		status,
	)
	return err
}

func (s *Store) SetTotalRecipients(ctx context.Context, id int64, total int) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE campaigns SET total_recipients = $2, updated_at = NOW() WHERE id = $1`,
		id,
		total,
	)
	return err
}

func (s *Store) IncrementCounters(
	ctx context.Context,
	id int64,
	sent int,
	failed int,
) error {

	_, err := s.DB.ExecContext(ctx, `
		UPDATE campaigns
		SET sent_count = sent_count + $2,
		    failed_count = failed_count + $3,
		    updated_at = NOW()
		WHERE id = $1`,
		id,
		sent,
		failed,
	)
	return err
}

func (s *Store) FinalizeCampaign(ctx context.Context, id int64) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE campaigns
		SET status = 'sent',
		    sent_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1`,
		id,
	)
	return err
}

// ResetCampaign returns the campaign to draft and every recipient to pending.
// A campaign in sending is only reset when force is set.
func (s *Store) ResetCampaign(ctx context.Context, id int64, force bool) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE campaigns
			SET status = 'draft',
			    sent_count = 0,
			    failed_count = 0,
			    sent_at = NULL,
			    updated_at = NOW()
			WHERE id = $1 AND (status <> 'sending' OR $2)`,
			id, force,
		)
		if err != nil {
			return err
		}
		if err := expectOne(res); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE campaign_recipients
			SET status = 'pending',
			    sent_at = NULL,
			    opened_at = NULL,
			    clicked_at = NULL,
			    error_message = NULL,
			    updated_at = NOW()
			WHERE campaign_id = $1`,
			id,
		)
		if err != nil {
			return fmt.Errorf("reset recipients: %w", err)
		}
		return nil
	})
}

func (s *Store) ListCampaignsByStatus(ctx context.Context, status models.CampaignStatus) ([]models.Campaign, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE status = $1 ORDER BY id`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}
