package models

import (
	"fmt"
	"time"
)

type EmailAccount struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	SMTPHost   string    `json:"smtp_host"`
	SMTPPort   int       `json:"smtp_port"`
	SMTPUser   string    `json:"smtp_user"`
	SMTPPass   string    `json:"-"`
	SMTPSecure bool      `json:"smtp_secure"`
	IsDefault  bool      `json:"is_default"`
	CreatedAt  time.Time `json:"created_at"`
}

// FromAddress formats the account as an RFC 5322 mailbox.
func (a *EmailAccount) FromAddress() string {
	if a.Name == "" {
		return a.Email
	}
	return fmt.Sprintf("%s <%s>", a.Name, a.Email)
}
