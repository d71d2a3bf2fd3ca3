package service

import (
	"context"
	"fmt"
	"time"

	"github.com/nexusmail/nexus-mailer/internal/domain"
)

type campaignRepository interface {
	Create(ctx context.Context, userID int64, name string) (*domain.Campaign, error)
	GetByID(ctx context.Context, id int64) (*domain.Campaign, error)
	ListWithStats(ctx context.Context, userID int64) ([]domain.CampaignStats, error)
	Delete(ctx context.Context, id int64) error
}

type campaignMessageRepository interface {
	CreateForCampaign(ctx context.Context, userID, campaignID int64, recipients []string, subject, body string, scheduledAt time.Time) (int, error)
	DeleteByCampaign(ctx context.Context, campaignID int64) error
}

type CampaignService struct {
	campaigns campaignRepository
	messages  campaignMessageRepository
}

func NewCampaignService(campaigns campaignRepository, messages campaignMessageRepository) *CampaignService {
	return &CampaignService{campaigns: campaigns, messages: messages}
}

// CreateCampaign creates the campaign record and one pending message per
// recipient. Bodies arrive fully rendered; this service does no templating.
func (s *CampaignService) CreateCampaign(
	ctx context.Context,
	userID int64,
	name, subject, body string,
	recipients []string,
	scheduledAt time.Time,
) (*domain.Campaign, int, error) {
	if len(recipients) == 0 {
		return nil, 0, fmt.Errorf("campaign needs at least one recipient")
	}

	if scheduledAt.IsZero() {
		scheduledAt = time.Now()
	}

	campaign, err := s.campaigns.Create(ctx, userID, name)
	if err != nil {
		return nil, 0, err
	}

	queued, err := s.messages.CreateForCampaign(ctx, userID, campaign.ID, recipients, subject, body, scheduledAt)
	if err != nil {
		return nil, 0, fmt.Errorf("campaign %d created but message insert failed: %w", campaign.ID, err)
	}

	return campaign, queued, nil
}

func (s *CampaignService) ListCampaigns(ctx context.Context, userID int64) ([]domain.CampaignStats, error) {
	return s.campaigns.ListWithStats(ctx, userID)
}

func (s *CampaignService) GetCampaign(ctx context.Context, id int64) (*domain.Campaign, error) {
	return s.campaigns.GetByID(ctx, id)
}

// DeleteCampaign removes the campaign and all its messages, sent or not.
func (s *CampaignService) DeleteCampaign(ctx context.Context, id int64) error {
	campaign, err := s.campaigns.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if campaign == nil {
		return fmt.Errorf("no campaign found with id %d", id)
	}

	if err := s.messages.DeleteByCampaign(ctx, id); err != nil {
		return err
	}

	return s.campaigns.Delete(ctx, id)
}
