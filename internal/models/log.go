package models

import "time"

type EmailLog struct {
	ID           int64           `json:"id"`
	CampaignID   *int64          `json:"campaign_id,omitempty"`
	ContactID    *int64          `json:"contact_id,omitempty"`
	ToEmail      string          `json:"to_email"`
	Subject      string          `json:"subject"`
	Status       RecipientStatus `json:"status"`
	ErrorMessage string          `json:"error_message,omitempty"`
	AccountID    *int64          `json:"email_account_id,omitempty"`
	SentAt       time.Time       `json:"sent_at"`
}

type EmailLogFilter struct {
	CampaignID *int64
	Status     string
	Limit      int
	Offset     int
}

type EmailLogStats struct {
	Total   int `json:"total"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Last24h int `json:"last_24h"`
	Last7d  int `json:"last_7d"`
}
