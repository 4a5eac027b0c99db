// Package report projects live campaign state for polling clients.
package report

import (
	"context"
	"errors"
	"fmt"
	"math"

	"EmailBlaster/internal/db"
	"EmailBlaster/internal/dispatch"
	"EmailBlaster/internal/models"
)

// RecentLimit caps the activity feed returned with progress.
const RecentLimit = 20

type Store interface {
	GetCampaign(ctx context.Context, id int64) (*models.Campaign, error)
	GetRecipientStats(ctx context.Context, campaignID int64) (*models.RecipientStats, error)
	GetRecentRecipients(ctx context.Context, campaignID int64, limit int) ([]models.RecentRecipient, error)
}

type Stats struct {
	models.RecipientStats
	CampaignStatus models.CampaignStatus `json:"campaign_status"`
	IsComplete     bool                  `json:"is_complete"`
}

type Progress struct {
	Status           models.CampaignStatus    `json:"status"`
	Total            int                      `json:"total"`
	Sent             int                      `json:"sent"`
	Failed           int                      `json:"failed"`
	Pending          int                      `json:"pending"`
	ProgressPercent  int                      `json:"progressPercent"`
	IsComplete       bool                     `json:"is_complete"`
	RecentRecipients []models.RecentRecipient `json:"recent_recipients"`
}

type Reporter struct {
	Store Store
}

func (r *Reporter) Stats(ctx context.Context, campaignID int64) (*Stats, error) {
	c, err := r.campaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	st, err := r.Store.GetRecipientStats(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("recipient stats: %w", err)
	}

	return &Stats{
		RecipientStats: *st,
		CampaignStatus: c.Status,
		IsComplete:     complete(c.Status),
	}, nil
}

func (r *Reporter) Progress(ctx context.Context, campaignID int64) (*Progress, error) {
	c, err := r.campaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	st, err := r.Store.GetRecipientStats(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("recipient stats: %w", err)
	}

	recent, err := r.Store.GetRecentRecipients(ctx, campaignID, RecentLimit)
	if err != nil {
		return nil, fmt.Errorf("recent recipients: %w", err)
	}
	if recent == nil {
		recent = []models.RecentRecipient{}
	}

	return &Progress{
		Status:           c.Status,
		Total:            st.Total,
		Sent:             st.Sent,
		Failed:           st.Failed,
		Pending:          st.Pending,
		ProgressPercent:  Percent(st.Sent, st.Failed, st.Total),
		IsComplete:       complete(c.Status),
		RecentRecipients: recent,
	}, nil
}

func (r *Reporter) campaign(ctx context.Context, id int64) (*models.Campaign, error) {
	c, err := r.Store.GetCampaign(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, dispatch.ErrCampaignNotFound
	}
	return c, err
}

// Percent is the settled share of total rounded to the nearest integer, 0
// for an empty campaign.
func Percent(sent, failed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(sent+failed) / float64(total)))
}

// A campaign that is not mid-pass has nothing left for a poller to wait on.
func complete(s models.CampaignStatus) bool {
	return s == models.CampaignSent || s == models.CampaignDraft
}
