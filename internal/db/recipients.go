package db

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"EmailBlaster/internal/models"
)

// GetEligibleRecipients returns the pending recipients of a campaign whose
// contact is still subscribed, in attachment order.
func (s *Store) GetEligibleRecipients(ctx context.Context, campaignID int64) ([]models.Recipient, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT c.id, c.email,
		       COALESCE(c.first_name, ''), COALESCE(c.last_name, ''), COALESCE(c.company, ''),
		       COALESCE(c.metadata::text, '{}'), c.subscribed
		FROM campaign_recipients cr
		JOIN contacts c ON c.id = cr.contact_id
		WHERE cr.campaign_id = $1
		  AND cr.status = 'pending'
		  AND c.subscribed = TRUE
		ORDER BY cr.id`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Recipient
	for rows.Next() {
		var (
			r    = models.Recipient{CampaignID: campaignID}
			meta []byte
		)
		if err := rows.Scan(
			&r.ID, &r.Email, &r.FirstName, &r.LastName, &r.Company, &meta, &r.Subscribed,
		); err != nil {
			return nil, err
		}
		if r.Metadata, err = decodeMetadata(meta); err != nil {
			return nil, fmt.Errorf("contact %d metadata: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// decodeMetadata flattens a JSON object into strings. Non-string values keep
// their JSON text, null becomes empty.
func decodeMetadata(raw []byte) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var fields map[string]json.RawMessage
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}

	out := make(map[string]string, len(fields))
	for k, v := range fields {
		var str string
		switch {
		case bytes.Equal(v, []byte("null")):
		case json.Unmarshal(v, &str) == nil:
		default:
			str = string(v)
		}
		out[k] = str
	}
	return out, nil
}

func (s *Store) UpdateRecipientOutcome(
	ctx context.Context,
	campaignID int64,
	contactID int64,
	status models.RecipientStatus,
	sentAt *time.Time,
	errorMsg string,
) error {

	_, err := s.DB.ExecContext(ctx, `
		UPDATE campaign_recipients
		SET status = $3,
		    sent_at = $4,
		    error_message = NULLIF($5, ''),
		    updated_at = NOW()
		WHERE campaign_id = $1 AND contact_id = $2`,
		campaignID,
		contactID,
		status,
		sentAt,
		errorMsg,
	)
	return err
}

func (s *Store) GetRecipientStats(ctx context.Context, campaignID int64) (*models.RecipientStats, error) {
	var st models.RecipientStats
	err := s.DB.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'sent'),
		       COUNT(*) FILTER (WHERE status = 'failed'),
		       COUNT(*) FILTER (WHERE status = 'pending'),
		       COUNT(opened_at),
		       COUNT(clicked_at)
		FROM campaign_recipients
		WHERE campaign_id = $1`, campaignID).Scan(
		&st.Total, &st.Sent, &st.Failed, &st.Pending, &st.Opened, &st.Clicked,
	)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// GetRecentRecipients lists settled recipients, most recently updated first.
func (s *Store) GetRecentRecipients(ctx context.Context, campaignID int64, limit int) ([]models.RecentRecipient, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT c.id, c.email, COALESCE(c.first_name, ''), COALESCE(c.last_name, ''),
		       cr.status, cr.sent_at, COALESCE(cr.error_message, ''), cr.updated_at
		FROM campaign_recipients cr
		JOIN contacts c ON c.id = cr.contact_id
		WHERE cr.campaign_id = $1 AND cr.status <> 'pending'
		ORDER BY cr.updated_at DESC, cr.id DESC
		LIMIT $2`, campaignID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.RecentRecipient{}
	for rows.Next() {
		var (
			r      models.RecentRecipient
			sentAt sql.NullTime
		)
		if err := rows.Scan(
			&r.ContactID, &r.Email, &r.FirstName, &r.LastName,
			&r.Status, &sentAt, &r.ErrorMessage, &r.UpdatedAt,
		); err != nil {
			return nil, err
		}
		r.SentAt = nullTime(sentAt)
		out = append(out, r)
	}
	return out, rows.Err()
}
