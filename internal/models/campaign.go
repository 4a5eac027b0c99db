package models

import "time"

type CampaignStatus string

const (
	CampaignDraft   CampaignStatus = "draft"
	CampaignSending CampaignStatus = "sending"
	CampaignSent    CampaignStatus = "sent"
)

type RecipientStatus string

const (
	StatusPending RecipientStatus = "pending"
	StatusSent    RecipientStatus = "sent"
	StatusFailed  RecipientStatus = "failed"
)

type Campaign struct {
	ID         int64          `json:"id"`
	Name       string         `json:"name"`
	TemplateID *int64         `json:"template_id,omitempty"`
	AccountID  *int64         `json:"email_account_id,omitempty"`
	Status     CampaignStatus `json:"status"`

	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`

	TotalRecipients int `json:"total_recipients"`
	SentCount       int `json:"sent_count"`
	FailedCount     int `json:"failed_count"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
}

type Template struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type Contact struct {
	ID         int64             `json:"id"`
	Email      string            `json:"email"`
	FirstName  string            `json:"first_name"`
	LastName   string            `json:"last_name"`
	Company    string            `json:"company"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Subscribed bool              `json:"subscribed"`
}

// Recipient is a campaign_recipients row joined with its contact.
type Recipient struct {
	CampaignID int64 `json:"campaign_id"`
	Contact
}

type RecipientStats struct {
	Total   int `json:"total"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Pending int `json:"pending"`
	Opened  int `json:"opened"`
	Clicked int `json:"clicked"`
}

type RecentRecipient struct {
	ContactID    int64           `json:"contact_id"`
	Email        string          `json:"email"`
	FirstName    string          `json:"first_name"`
	LastName     string          `json:"last_name"`
	Status       RecipientStatus `json:"status"`
	SentAt       *time.Time      `json:"sent_at,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// DispatchJob is one frozen dispatch pass handed to a worker.
type DispatchJob struct {
	CampaignID int64       `json:"campaign_id"`
	AccountID  *int64      `json:"account_id,omitempty"`
	Template   Template    `json:"template"`
	Recipients []Recipient `json:"recipients"`
}
