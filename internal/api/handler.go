package api

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/badoux/checkmail"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"EmailBlaster/internal/db"
	"EmailBlaster/internal/dispatch"
	"EmailBlaster/internal/email"
	"EmailBlaster/internal/models"
	"EmailBlaster/internal/report"
)

const (
	defaultLogLimit = 100
	maxLogLimit     = 500
	requestTimeout  = 10 * time.Second
)

type Dispatcher interface {
	Prepare(ctx context.Context, campaignID int64, accountID *int64) (*dispatch.Prepared, error)
	Release(ctx context.Context, campaignID int64) error
	Reset(ctx context.Context, campaignID int64, force bool) error
}

// Enqueuer hands a prepared pass to the workers, in process or over RabbitMQ.
type Enqueuer interface {
	Enqueue(ctx context.Context, job models.DispatchJob) error
}

type Reporter interface {
	Stats(ctx context.Context, campaignID int64) (*report.Stats, error)
	Progress(ctx context.Context, campaignID int64) (*report.Progress, error)
}

type Store interface {
	GetAccount(ctx context.Context, id int64) (*models.EmailAccount, error)
	AppendEmailLog(ctx context.Context, l *models.EmailLog) error
	ListEmailLogs(ctx context.Context, f models.EmailLogFilter) ([]models.EmailLog, error)
	GetEmailLogStats(ctx context.Context) (*models.EmailLogStats, error)
}

type Mailer interface {
	Send(ctx context.Context, msg email.Message, account *models.EmailAccount) (string, error)
	Verify(ctx context.Context, account *models.EmailAccount) error
	HasDefault() bool
}

type Handler struct {
	Dispatch Dispatcher
	Queue    Enqueuer
	Reports  Reporter
	Store    Store
	Mailer   Mailer
	Log      *zap.Logger

	// Ping reports database health for /healthz. Optional.
	Ping func(ctx context.Context) error
}

func (h *Handler) Healthz(c *gin.Context) {
	if h.Ping != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.Ping(ctx); err != nil {
			c.String(http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	c.String(http.StatusOK, "ok")
}

type sendCampaignReq struct {
	EmailAccountID *int64 `json:"email_account_id"`
}

type sendCampaignResp struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	RecipientCount int    `json:"recipientCount"`
	Account        string `json:"account"`
}

// SendCampaign claims the campaign and queues its pass. The response only
// carries the size of the frozen recipient set; outcomes are polled.
func (h *Handler) SendCampaign(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req sendCampaignReq
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	p, err := h.Dispatch.Prepare(ctx, id, req.EmailAccountID)
	if err != nil {
		h.fail(c, err)
		return
	}

	if err := h.Queue.Enqueue(ctx, p.Job); err != nil {
		h.Log.Error("enqueue dispatch failed", zap.Int64("campaign_id", id), zap.Error(err))
		if rerr := h.Dispatch.Release(context.WithoutCancel(ctx), id); rerr != nil {
			h.Log.Error("failed to release campaign", zap.Int64("campaign_id", id), zap.Error(rerr))
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "dispatch queue unavailable"})
		return
	}

	n := len(p.Job.Recipients)
	c.JSON(http.StatusOK, sendCampaignResp{
		Success:        true,
		Message:        fmt.Sprintf("Sending emails to %d recipients", n),
		RecipientCount: n,
		Account:        p.AccountLabel(),
	})
}

func (h *Handler) CampaignProgress(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	p, err := h.Reports.Progress(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) CampaignStats(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	st, err := h.Reports.Stats(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) ResetCampaign(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	force, _ := strconv.ParseBool(c.Query("force"))

	if err := h.Dispatch.Reset(c.Request.Context(), id, force); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) EmailLogs(c *gin.Context) {
	var f models.EmailLogFilter

	if v := c.Query("campaign_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid campaign_id"})
			return
		}
		f.CampaignID = &id
	}

	switch s := c.Query("status"); s {
	case "", string(models.StatusSent), string(models.StatusFailed):
		f.Status = s
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be sent or failed"})
		return
	}

	f.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLogLimit)))
	if f.Limit <= 0 {
		f.Limit = defaultLogLimit
	}
	if f.Limit > maxLogLimit {
		f.Limit = maxLogLimit
	}
	f.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if f.Offset < 0 {
		f.Offset = 0
	}

	logs, err := h.Store.ListEmailLogs(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

func (h *Handler) EmailLogStats(c *gin.Context) {
	st, err := h.Store.GetEmailLogStats(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// VerifySMTP checks the process-wide default transport.
func (h *Handler) VerifySMTP(c *gin.Context) {
	if !h.Mailer.HasDefault() {
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "No SMTP configuration available"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	if err := h.Mailer.Verify(ctx, nil); err != nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "SMTP connection verified"})
}

type testAccountReq struct {
	TestEmail string `json:"test_email"`
}

// TestAccount verifies an account's SMTP settings and optionally sends a
// test message through it.
func (h *Handler) TestAccount(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req testAccountReq
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.TestEmail != "" {
		if err := checkmail.ValidateFormat(req.TestEmail); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid test_email"})
			return
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	account, err := h.Store.GetAccount(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Email account not found"})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	if err := h.Mailer.Verify(ctx, account); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	if req.TestEmail == "" {
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "SMTP connection verified"})
		return
	}

	_, err = h.Mailer.Send(ctx, email.Message{
		To:      req.TestEmail,
		Subject: "Test Email from Email Blaster",
		HTML:    testEmailBody(account, time.Now()),
	}, account)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Test email sent successfully"})
}

func testEmailBody(a *models.EmailAccount, at time.Time) string {
	return fmt.Sprintf(`<h1>Test Email</h1>
<p>This is a test email from your Email Blaster service.</p>
<p>Email Account: <strong>%s</strong></p>
<p>If you received this email, your SMTP configuration is working correctly!</p>
<p><small>Sent at: %s</small></p>`, html.EscapeString(a.Name), at.Format(time.RFC1123))
}

type sendSingleReq struct {
	To        string `json:"to" binding:"required"`
	Subject   string `json:"subject" binding:"required"`
	Body      string `json:"body" binding:"required"`
	ContactID *int64 `json:"contact_id"`
}

// SendSingle sends one ad-hoc message through the default transport and
// logs it outside of any campaign.
func (h *Handler) SendSingle(c *gin.Context) {
	var req sendSingleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields: to, subject, body"})
		return
	}
	if err := checkmail.ValidateFormat(req.To); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid recipient address"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	messageID, sendErr := h.Mailer.Send(ctx, email.Message{
		To:      req.To,
		Subject: req.Subject,
		HTML:    req.Body,
	}, nil)

	entry := &models.EmailLog{
		ContactID: req.ContactID,
		ToEmail:   req.To,
		Subject:   req.Subject,
		Status:    models.StatusSent,
	}
	if sendErr != nil {
		entry.Status = models.StatusFailed
		entry.ErrorMessage = sendErr.Error()
	}
	if err := h.Store.AppendEmailLog(ctx, entry); err != nil {
		h.Log.Error("append email log failed", zap.String("to", req.To), zap.Error(err))
	}

	if sendErr != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": sendErr.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "messageId": messageID})
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// fail maps engine errors onto HTTP statuses. Anything unrecognised is
// logged and reported as a 500 without internals.
func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, dispatch.ErrCampaignNotFound), errors.Is(err, dispatch.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, dispatch.ErrNoTemplate), errors.Is(err, dispatch.ErrNoAccount):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, dispatch.ErrNotDraft), errors.Is(err, dispatch.ErrSending):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.Log.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
