package email

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"EmailBlaster/internal/models"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
)

var ErrNoTransport = errors.New("no email account and no default SMTP configured")

// Message is a fully rendered email ready for delivery.
type Message struct {
	From            string
	To              string
	Subject         string
	HTML            string
	ListUnsubscribe string
}

// Sender delivers messages over SMTP. The embedded host settings describe the
// process-wide default transport used when no account is supplied.
type Sender struct {
	Host     string
	Port     int
	User     string
	Password string
	Secure   bool
	From     string
}

func (s *Sender) HasDefault() bool {
	return s != nil && s.Host != ""
}

func (s *Sender) dialer(account *models.EmailAccount) (*gomail.Dialer, error) {
	if account != nil {
		d := gomail.NewDialer(account.SMTPHost, account.SMTPPort, account.SMTPUser, account.SMTPPass)
		if account.SMTPSecure {
			d.SSL = true
		}
		return d, nil
	}
	if !s.HasDefault() {
		return nil, ErrNoTransport
	}
	d := gomail.NewDialer(s.Host, s.Port, s.User, s.Password)
	if s.Secure {
		d.SSL = true
	}
	return d, nil
}

func (s *Sender) from(account *models.EmailAccount) string {
	if account != nil && account.Email != "" {
		return account.FromAddress()
	}
	if s.From != "" {
		return s.From
	}
	return s.User
}

// Send delivers msg through the account's SMTP server, or the default one
// when account is nil, and returns the Message-ID it was sent with.
func (s *Sender) Send(ctx context.Context, msg Message, account *models.EmailAccount) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	d, err := s.dialer(account)
	if err != nil {
		return "", err
	}

	if msg.From == "" {
		msg.From = s.from(account)
	}
	m, id := buildMessage(msg)

	if err := d.DialAndSend(m); err != nil {
		return "", fmt.Errorf("smtp send error: %w", err)
	}

	return id, nil
}

// Verify opens and authenticates a session against the SMTP server without
// sending anything.
func (s *Sender) Verify(ctx context.Context, account *models.EmailAccount) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d, err := s.dialer(account)
	if err != nil {
		return err
	}

	sc, err := d.Dial()
	if err != nil {
		return fmt.Errorf("smtp verify error: %w", err)
	}
	return sc.Close()
}

func buildMessage(msg Message) (*gomail.Message, string) {
	id := fmt.Sprintf("<%s@%s>", uuid.NewString(), domainOf(msg.From))

	m := gomail.NewMessage()
	m.SetHeader("From", msg.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("Message-ID", id)
	if msg.ListUnsubscribe != "" {
		m.SetHeader("List-Unsubscribe", "<"+msg.ListUnsubscribe+">")
	}
	m.SetBody("text/html", msg.HTML)

	return m, id
}

func domainOf(addr string) string {
	addr = strings.TrimSuffix(strings.TrimSpace(addr), ">")
	if i := strings.LastIndex(addr, "@"); i >= 0 && i < len(addr)-1 {
		return addr[i+1:]
	}
	return "localhost"
}
