package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"EmailBlaster/internal/db"
	"EmailBlaster/internal/email"
	"EmailBlaster/internal/models"
)

type recipientRow struct {
	campaignID int64
	contactID  int64
	status     models.RecipientStatus
	sentAt     *time.Time
	errorMsg   string
}

// memStore mirrors the guarded updates of db.Store in memory.
type memStore struct {
	mu sync.Mutex

	campaigns  map[int64]*models.Campaign
	templates  map[int64]*models.Template
	contacts   map[int64]*models.Contact
	recipients []*recipientRow
	accounts   map[int64]*models.EmailAccount
	settings   models.EmailSettings
	logs       []models.EmailLog
	calls      []string

	failLogAfter   int
	failRecipients error
	failSettings   error
}

func newMemStore() *memStore {
	return &memStore{
		campaigns:    map[int64]*models.Campaign{},
		templates:    map[int64]*models.Template{},
		contacts:     map[int64]*models.Contact{},
		accounts:     map[int64]*models.EmailAccount{},
		settings:     models.DefaultEmailSettings(),
		failLogAfter: -1,
	}
}

func (m *memStore) addCampaign(id int64, subject, body string) {
	m.campaigns[id] = &models.Campaign{ID: id, Name: fmt.Sprintf("c%d", id), Status: models.CampaignDraft}
	if subject != "" || body != "" {
		m.templates[id] = &models.Template{Subject: subject, Body: body}
	}
}

func (m *memStore) addRecipient(campaignID int64, c models.Contact) {
	cc := c
	m.contacts[c.ID] = &cc
	m.recipients = append(m.recipients, &recipientRow{
		campaignID: campaignID,
		contactID:  c.ID,
		status:     models.StatusPending,
	})
}

func (m *memStore) campaign(id int64) models.Campaign {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.campaigns[id]
}

func (m *memStore) recipient(campaignID, contactID int64) recipientRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.recipients {
		if r.campaignID == campaignID && r.contactID == contactID {
			return *r
		}
	}
	return recipientRow{}
}

func (m *memStore) logsFor(campaignID int64) []models.EmailLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.EmailLog
	for _, l := range m.logs {
		if l.CampaignID != nil && *l.CampaignID == campaignID {
			out = append(out, l)
		}
	}
	return out
}

func (m *memStore) GetCampaign(_ context.Context, id int64) (*models.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) GetCampaignTemplate(_ context.Context, id int64) (*models.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) MarkSending(_ context.Context, id int64, accountID *int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.Status != models.CampaignDraft {
		return db.ErrConflict
	}
	c.Status = models.CampaignSending
	if accountID != nil {
		a := *accountID
		c.AccountID = &a
	}
	return nil
}

func (m *memStore) SetCampaignStatus(_ context.Context, id int64, status models.CampaignStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.campaigns[id].Status = status
	return nil
}

func (m *memStore) SetTotalRecipients(_ context.Context, id int64, total int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.campaigns[id].TotalRecipients = total
	return nil
}

func (m *memStore) IncrementCounters(_ context.Context, id int64, sent, failed int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "counters")
	m.campaigns[id].SentCount += sent
	m.campaigns[id].FailedCount += failed
	return nil
}

func (m *memStore) FinalizeCampaign(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	m.campaigns[id].Status = models.CampaignSent
	m.campaigns[id].SentAt = &now
	return nil
}

func (m *memStore) ResetCampaign(_ context.Context, id int64, force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || (c.Status == models.CampaignSending && !force) {
		return db.ErrConflict
	}
	c.Status = models.CampaignDraft
	c.SentCount, c.FailedCount = 0, 0
	c.SentAt = nil
	for _, r := range m.recipients {
		if r.campaignID == id {
			r.status, r.sentAt, r.errorMsg = models.StatusPending, nil, ""
		}
	}
	return nil
}

func (m *memStore) GetEligibleRecipients(_ context.Context, campaignID int64) ([]models.Recipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRecipients != nil {
		return nil, m.failRecipients
	}
	var out []models.Recipient
	for _, r := range m.recipients {
		c := m.contacts[r.contactID]
		if r.campaignID == campaignID && r.status == models.StatusPending && c.Subscribed {
			out = append(out, models.Recipient{CampaignID: campaignID, Contact: *c})
		}
	}
	return out, nil
}

func (m *memStore) UpdateRecipientOutcome(_ context.Context, campaignID, contactID int64, status models.RecipientStatus, sentAt *time.Time, errorMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "recipient")
	for _, r := range m.recipients {
		if r.campaignID == campaignID && r.contactID == contactID {
			r.status, r.sentAt, r.errorMsg = status, sentAt, errorMsg
		}
	}
	return nil
}

func (m *memStore) GetAccount(_ context.Context, id int64) (*models.EmailAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return a, nil
}

func (m *memStore) GetDefaultAccount(_ context.Context) (*models.EmailAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(m.accounts))
	for id := range m.accounts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if m.accounts[id].IsDefault {
			return m.accounts[id], nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *memStore) GetEmailSettings(_ context.Context) (models.EmailSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSettings != nil {
		return models.EmailSettings{}, m.failSettings
	}
	return m.settings, nil
}

func (m *memStore) AppendEmailLog(_ context.Context, l *models.EmailLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failLogAfter >= 0 && len(m.logs) >= m.failLogAfter {
		return errors.New("connection reset by peer")
	}
	m.calls = append(m.calls, "log")
	l.ID = int64(len(m.logs) + 1)
	l.SentAt = time.Now()
	m.logs = append(m.logs, *l)
	return nil
}

type sentMessage struct {
	msg     email.Message
	account *models.EmailAccount
}

type fakeTransport struct {
	mu         sync.Mutex
	hasDefault bool
	fail       map[string]error
	sent       []sentMessage
}

func (t *fakeTransport) Send(_ context.Context, msg email.Message, account *models.EmailAccount) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.fail[msg.To]; err != nil {
		return "", err
	}
	t.sent = append(t.sent, sentMessage{msg: msg, account: account})
	return fmt.Sprintf("<%d@test>", len(t.sent)), nil
}

func (t *fakeTransport) HasDefault() bool { return t.hasDefault }

func (t *fakeTransport) recipients() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.sent))
	for _, s := range t.sent {
		out = append(out, s.msg.To)
	}
	return out
}
