package dispatch

import (
	"errors"
	"fmt"

	"EmailBlaster/internal/models"
)

var (
	ErrCampaignNotFound = errors.New("campaign not found")
	ErrNoTemplate       = errors.New("campaign has no template assigned")
	ErrNoAccount        = errors.New("no email account and no default SMTP configured")
	ErrAccountNotFound  = errors.New("email account not found")
	ErrNotDraft         = errors.New("campaign is not in draft")
	ErrSending          = errors.New("campaign is currently sending")
)

// StatusError reports the status that kept a campaign from being sent.
type StatusError struct {
	Status models.CampaignStatus
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("campaign cannot be sent in status %q", e.Status)
}

func (e *StatusError) Unwrap() error { return ErrNotDraft }
