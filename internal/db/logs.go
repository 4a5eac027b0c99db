package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"EmailBlaster/internal/models"
)

// AppendEmailLog inserts one send attempt and fills in its id and timestamp.
func (s *Store) AppendEmailLog(ctx context.Context, l *models.EmailLog) error {
	return s.DB.QueryRowContext(ctx, `
		INSERT INTO email_logs
		(campaign_id, contact_id, to_email, subject, status, error_message, email_account_id, sent_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, NOW())
		RETURNING id, sent_at`,
		l.CampaignID,
		l.ContactID,
		l.ToEmail,
		l.Subject,
		l.Status,
		l.ErrorMessage,
		l.AccountID,
	).Scan(&l.ID, &l.SentAt)
}

func (s *Store) ListEmailLogs(ctx context.Context, f models.EmailLogFilter) ([]models.EmailLog, error) {
	var (
		where []string
		args  []any
	)
	if f.CampaignID != nil {
		args = append(args, *f.CampaignID)
		where = append(where, fmt.Sprintf("campaign_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	q := `SELECT id, campaign_id, contact_id, to_email, subject, status,
		COALESCE(error_message, ''), email_account_id, sent_at
		FROM email_logs`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	q += fmt.Sprintf(" ORDER BY sent_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.EmailLog{}
	for rows.Next() {
		var (
			l                                models.EmailLog
			campaignID, contactID, accountID sql.NullInt64
		)
		if err := rows.Scan(
			&l.ID, &campaignID, &contactID, &l.ToEmail, &l.Subject, &l.Status,
			&l.ErrorMessage, &accountID, &l.SentAt,
		); err != nil {
			return nil, err
		}
		l.CampaignID = nullInt64(campaignID)
		l.ContactID = nullInt64(contactID)
		l.AccountID = nullInt64(accountID)
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) GetEmailLogStats(ctx context.Context) (*models.EmailLogStats, error) {
	var st models.EmailLogStats
	err := s.DB.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'sent'),
		       COUNT(*) FILTER (WHERE status = 'failed'),
		       COUNT(*) FILTER (WHERE sent_at > NOW() - INTERVAL '24 hours'),
		       COUNT(*) FILTER (WHERE sent_at > NOW() - INTERVAL '7 days')
		FROM email_logs`).Scan(&st.Total, &st.Sent, &st.Failed, &st.Last24h, &st.Last7d)
	if err != nil {
		return nil, err
	}
	return &st, nil
}
