package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"EmailBlaster/internal/db"
	"EmailBlaster/internal/email"
	"EmailBlaster/internal/metrics"
	"EmailBlaster/internal/models"
	"EmailBlaster/internal/render"
	"EmailBlaster/internal/unsubscribe"
)

// SendInterval is the minimum spacing between the starts of two sends of
// the same pass.
const SendInterval = 100 * time.Millisecond

const releaseTimeout = 5 * time.Second

type Store interface {
	GetCampaign(ctx context.Context, id int64) (*models.Campaign, error)
	GetCampaignTemplate(ctx context.Context, campaignID int64) (*models.Template, error)
	MarkSending(ctx context.Context, id int64, accountID *int64) error
	SetCampaignStatus(ctx context.Context, id int64, status models.CampaignStatus) error
	SetTotalRecipients(ctx context.Context, id int64, total int) error
	IncrementCounters(ctx context.Context, id int64, sent, failed int) error
	FinalizeCampaign(ctx context.Context, id int64) error
	ResetCampaign(ctx context.Context, id int64, force bool) error

	GetEligibleRecipients(ctx context.Context, campaignID int64) ([]models.Recipient, error)
	UpdateRecipientOutcome(ctx context.Context, campaignID, contactID int64, status models.RecipientStatus, sentAt *time.Time, errorMsg string) error

	GetAccount(ctx context.Context, id int64) (*models.EmailAccount, error)
	GetDefaultAccount(ctx context.Context) (*models.EmailAccount, error)
	GetEmailSettings(ctx context.Context) (models.EmailSettings, error)
	AppendEmailLog(ctx context.Context, l *models.EmailLog) error
}

type Transport interface {
	Send(ctx context.Context, msg email.Message, account *models.EmailAccount) (string, error)
	HasDefault() bool
}

type Engine struct {
	store     Store
	transport Transport
	unsub     unsubscribe.Generator
	log       *zap.Logger
	interval  time.Duration
}

func NewEngine(store Store, transport Transport, unsub unsubscribe.Generator, logger *zap.Logger) *Engine {
	return &Engine{
		store:     store,
		transport: transport,
		unsub:     unsub,
		log:       logger,
		interval:  SendInterval,
	}
}

// Prepared is a campaign that has been claimed for sending. Job is the frozen
// pass handed to Run.
type Prepared struct {
	Job     models.DispatchJob
	Account *models.EmailAccount
}

// AccountLabel names the sending account for API responses.
func (p *Prepared) AccountLabel() string {
	if p.Account == nil {
		return "default SMTP"
	}
	return p.Account.Email
}

type RecipientError struct {
	Email string `json:"email"`
	Error string `json:"error"`
}

type Result struct {
	Sent   int              `json:"sent"`
	Failed int              `json:"failed"`
	Errors []RecipientError `json:"errors"`
}

// Prepare validates the campaign, resolves its sending account, claims it by
// moving it to sending and freezes the eligible recipient set. Any error
// leaves the campaign as it was.
func (e *Engine) Prepare(ctx context.Context, campaignID int64, accountID *int64) (*Prepared, error) {
	c, err := e.store.GetCampaign(ctx, campaignID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrCampaignNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load campaign: %w", err)
	}
	if c.Status != models.CampaignDraft {
		return nil, &StatusError{Status: c.Status}
	}

	tmpl, err := e.store.GetCampaignTemplate(ctx, campaignID)
	if errors.Is(err, db.ErrNotFound) || (err == nil && (tmpl.Subject == "" || tmpl.Body == "")) {
		return nil, ErrNoTemplate
	}
	if err != nil {
		return nil, fmt.Errorf("load template: %w", err)
	}

	account, err := e.resolveAccount(ctx, c, accountID)
	if err != nil {
		return nil, err
	}

	var sticky *int64
	if account != nil {
		sticky = &account.ID
	}
	if err := e.store.MarkSending(ctx, campaignID, sticky); err != nil {
		if errors.Is(err, db.ErrConflict) {
			return nil, e.statusConflict(ctx, campaignID)
		}
		return nil, fmt.Errorf("mark sending: %w", err)
	}

	recipients, err := e.store.GetEligibleRecipients(ctx, campaignID)
	if err == nil {
		err = e.store.SetTotalRecipients(ctx, campaignID, c.SentCount+c.FailedCount+len(recipients))
	}
	if err != nil {
		e.releaseDetached(campaignID)
		return nil, fmt.Errorf("load recipients: %w", err)
	}

	return &Prepared{
		Job: models.DispatchJob{
			CampaignID: campaignID,
			AccountID:  sticky,
			Template:   *tmpl,
			Recipients: recipients,
		},
		Account: account,
	}, nil
}

// resolveAccount picks the explicit account, then the campaign's previous
// one, then the default account. A nil account with no error means the
// process-wide transport.
func (e *Engine) resolveAccount(ctx context.Context, c *models.Campaign, explicit *int64) (*models.EmailAccount, error) {
	id := explicit
	if id == nil {
		id = c.AccountID
	}
	if id != nil {
		a, err := e.store.GetAccount(ctx, *id)
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrAccountNotFound, *id)
		}
		if err != nil {
			return nil, fmt.Errorf("load account: %w", err)
		}
		return a, nil
	}

	a, err := e.store.GetDefaultAccount(ctx)
	switch {
	case err == nil:
		return a, nil
	case !errors.Is(err, db.ErrNotFound):
		return nil, fmt.Errorf("load default account: %w", err)
	}

	if e.transport.HasDefault() {
		return nil, nil
	}
	return nil, ErrNoAccount
}

func (e *Engine) statusConflict(ctx context.Context, campaignID int64) error {
	c, err := e.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return &StatusError{Status: models.CampaignSending}
	}
	return &StatusError{Status: c.Status}
}

// Release hands a claimed campaign back to draft when its pass could not be
// started, e.g. because the job queue rejected it.
func (e *Engine) Release(ctx context.Context, campaignID int64) error {
	return e.store.SetCampaignStatus(ctx, campaignID, models.CampaignDraft)
}

// releaseDetached releases on a fresh deadline; the caller's ctx may already
// be done.
func (e *Engine) releaseDetached(campaignID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := e.Release(ctx, campaignID); err != nil {
		e.log.Error("failed to release campaign",
			zap.Int64("campaign_id", campaignID),
			zap.Error(err),
		)
	}
}

// Run sends the frozen pass one recipient at a time and finalizes the
// campaign. Transport failures are recorded per recipient and never stop the
// pass; a store failure or a cancelled ctx aborts it. An aborted pass that
// never reached the transport is released back to draft, otherwise the
// campaign stays in sending.
func (e *Engine) Run(ctx context.Context, job models.DispatchJob) (*Result, error) {
	start := time.Now()
	metrics.PassesInFlight.Inc()
	defer func() {
		metrics.PassesInFlight.Dec()
		metrics.PassDuration.Observe(time.Since(start).Seconds())
	}()

	log := e.log.With(zap.Int64("campaign_id", job.CampaignID))
	log.Info("dispatch pass started", zap.Int("recipients", len(job.Recipients)))

	res, attempted, err := e.run(ctx, job, log)
	if err != nil {
		metrics.DispatchPasses.WithLabelValues("aborted").Inc()
		log.Error("dispatch pass aborted",
			zap.Int("sent", res.Sent),
			zap.Int("failed", res.Failed),
			zap.Bool("released", !attempted),
			zap.Error(err),
		)
		if !attempted {
			e.releaseDetached(job.CampaignID)
		}
		return res, err
	}

	metrics.DispatchPasses.WithLabelValues("completed").Inc()
	log.Info("dispatch pass finished",
		zap.Int("sent", res.Sent),
		zap.Int("failed", res.Failed),
		zap.Duration("took", time.Since(start)),
	)
	return res, nil
}

// run reports whether any recipient reached the transport, so an abort
// before the first send can give the campaign back.
func (e *Engine) run(ctx context.Context, job models.DispatchJob, log *zap.Logger) (*Result, bool, error) {
	res := &Result{Errors: []RecipientError{}}

	var account *models.EmailAccount
	if job.AccountID != nil {
		a, err := e.store.GetAccount(ctx, *job.AccountID)
		if err != nil {
			return res, false, fmt.Errorf("load account %d: %w", *job.AccountID, err)
		}
		account = a
	}

	settings, err := e.store.GetEmailSettings(ctx)
	if err != nil {
		log.Warn("email settings unavailable, using defaults", zap.Error(err))
		settings = models.DefaultEmailSettings()
	}

	// Spaces the start of consecutive sends by at least the interval. A send
	// slower than the interval is followed directly by the next one.
	limiter := rate.NewLimiter(rate.Every(e.interval), 1)

	attempted := false
	for _, r := range job.Recipients {
		if err := limiter.Wait(ctx); err != nil {
			return res, attempted, err
		}
		attempted = true
		if err := e.deliver(ctx, job, r, account, settings, res, log); err != nil {
			return res, attempted, err
		}
	}

	if err := e.store.FinalizeCampaign(ctx, job.CampaignID); err != nil {
		return res, attempted, fmt.Errorf("finalize campaign: %w", err)
	}
	return res, attempted, nil
}

// deliver sends to one recipient and settles it: log row, then recipient
// row, then campaign counters. Only store errors are returned.
func (e *Engine) deliver(
	ctx context.Context,
	job models.DispatchJob,
	r models.Recipient,
	account *models.EmailAccount,
	settings models.EmailSettings,
	res *Result,
	log *zap.Logger,
) error {

	unsubURL := e.unsub.URL(r.Email)
	subject := render.Render(job.Template.Subject, r.Contact, unsubURL)
	body := render.Render(job.Template.Body, r.Contact, unsubURL)

	settings.Header = render.Render(settings.Header, r.Contact, unsubURL)
	settings.Footer = render.Render(settings.Footer, r.Contact, unsubURL)

	_, sendErr := e.transport.Send(ctx, email.Message{
		To:              r.Email,
		Subject:         subject,
		HTML:            email.Compose(body, settings, unsubURL),
		ListUnsubscribe: unsubURL,
	}, account)

	var (
		status   = models.StatusSent
		sentAt   *time.Time
		errorMsg string
	)
	if sendErr != nil {
		status = models.StatusFailed
		errorMsg = sendErr.Error()
	} else {
		now := time.Now()
		sentAt = &now
	}

	campaignID, contactID := job.CampaignID, r.ID
	entry := &models.EmailLog{
		CampaignID:   &campaignID,
		ContactID:    &contactID,
		ToEmail:      r.Email,
		Subject:      subject,
		Status:       status,
		ErrorMessage: errorMsg,
		AccountID:    job.AccountID,
	}
	if err := e.store.AppendEmailLog(ctx, entry); err != nil {
		return fmt.Errorf("append email log for contact %d: %w", r.ID, err)
	}

	if err := e.store.UpdateRecipientOutcome(ctx, job.CampaignID, r.ID, status, sentAt, errorMsg); err != nil {
		return fmt.Errorf("update recipient %d: %w", r.ID, err)
	}

	sent, failed := 1, 0
	if sendErr != nil {
		sent, failed = 0, 1
	}
	if err := e.store.IncrementCounters(ctx, job.CampaignID, sent, failed); err != nil {
		return fmt.Errorf("increment counters: %w", err)
	}

	if sendErr != nil {
		res.Failed++
		res.Errors = append(res.Errors, RecipientError{Email: r.Email, Error: errorMsg})
		metrics.EmailFailures.Inc()
		log.Warn("email send failed",
			zap.Int64("contact_id", r.ID),
			zap.String("to", r.Email),
			zap.Error(sendErr),
		)
		return nil
	}

	res.Sent++
	metrics.EmailsSent.Inc()
	log.Info("email sent",
		zap.Int64("contact_id", r.ID),
		zap.String("to", r.Email),
	)
	return nil
}

// Dispatch prepares and runs a pass synchronously.
func (e *Engine) Dispatch(ctx context.Context, campaignID int64, accountID *int64) (*Result, error) {
	p, err := e.Prepare(ctx, campaignID, accountID)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx, p.Job)
}

// Reset returns a campaign to draft with every recipient pending so it can be
// sent again. Campaigns that are mid-pass are only reset with force, which is
// meant for passes whose process died.
func (e *Engine) Reset(ctx context.Context, campaignID int64, force bool) error {
	c, err := e.store.GetCampaign(ctx, campaignID)
	if errors.Is(err, db.ErrNotFound) {
		return ErrCampaignNotFound
	}
	if err != nil {
		return fmt.Errorf("load campaign: %w", err)
	}
	if c.Status == models.CampaignSending && !force {
		return ErrSending
	}

	err = e.store.ResetCampaign(ctx, campaignID, force)
	if errors.Is(err, db.ErrConflict) {
		return ErrSending
	}
	if err != nil {
		return fmt.Errorf("reset campaign: %w", err)
	}

	e.log.Info("campaign reset to draft",
		zap.Int64("campaign_id", campaignID),
		zap.String("previous_status", string(c.Status)),
		zap.Bool("force", force),
	)
	return nil
}
