package service

import (
	"context"
	"testing"
	"time"

	"github.com/nexusmail/nexus-mailer/internal/domain"
)

type fakeCampaignRepo struct {
	campaign *domain.Campaign
	deleted  []int64
}

func (f *fakeCampaignRepo) Create(_ context.Context, userID int64, name string) (*domain.Campaign, error) {
	f.campaign = &domain.Campaign{ID: 42, UserID: userID, Name: name}
	return f.campaign, nil
}

func (f *fakeCampaignRepo) GetByID(_ context.Context, id int64) (*domain.Campaign, error) {
	if f.campaign != nil && f.campaign.ID == id {
		return f.campaign, nil
	}
	return nil, nil
}

func (f *fakeCampaignRepo) ListWithStats(_ context.Context, _ int64) ([]domain.CampaignStats, error) {
	return nil, nil
}

func (f *fakeCampaignRepo) Delete(_ context.Context, id int64) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeCampaignMessageRepo struct {
	queued         int
	deletedFor     []int64
	lastScheduled  time.Time
	lastCampaignID int64
}

func (f *fakeCampaignMessageRepo) CreateForCampaign(
	_ context.Context,
	_, campaignID int64,
	recipients []string,
	_, _ string,
	scheduledAt time.Time,
) (int, error) {
	f.queued = len(recipients)
	f.lastScheduled = scheduledAt
	f.lastCampaignID = campaignID
	return len(recipients), nil
}

func (f *fakeCampaignMessageRepo) DeleteByCampaign(_ context.Context, campaignID int64) error {
	f.deletedFor = append(f.deletedFor, campaignID)
	return nil
}

func TestCreateCampaign_QueuesOneMessagePerRecipient(t *testing.T) {
	campaigns := &fakeCampaignRepo{}
	messages := &fakeCampaignMessageRepo{}
	s := NewCampaignService(campaigns, messages)

	recipients := []string{"a@example.com", "b@example.com", "c@example.com"}
	campaign, queued, err := s.CreateCampaign(context.Background(), 7, "Launch", "Hello", "<p>Hi</p>", recipients, time.Time{})
	if err != nil {
		t.Fatalf("create returned error: %v", err)
	}

	if campaign == nil || campaign.ID != 42 {
		t.Fatalf("expected campaign 42, got %+v", campaign)
	}
	if queued != 3 {
		t.Errorf("expected 3 queued, got %d", queued)
	}
	if messages.lastCampaignID != 42 {
		t.Errorf("expected messages linked to campaign 42, got %d", messages.lastCampaignID)
	}
	if messages.lastScheduled.IsZero() {
		t.Error("expected an immediate schedule to default to now")
	}
}

func TestCreateCampaign_RejectsEmptyRecipients(t *testing.T) {
	s := NewCampaignService(&fakeCampaignRepo{}, &fakeCampaignMessageRepo{})

	if _, _, err := s.CreateCampaign(context.Background(), 7, "Launch", "Hello", "<p>Hi</p>", nil, time.Time{}); err == nil {
		t.Fatal("expected an error for a campaign without recipients")
	}
}

func TestDeleteCampaign_RemovesMessagesThenCampaign(t *testing.T) {
	campaigns := &fakeCampaignRepo{campaign: &domain.Campaign{ID: 42, UserID: 7, Name: "Launch"}}
	messages := &fakeCampaignMessageRepo{}
	s := NewCampaignService(campaigns, messages)

	if err := s.DeleteCampaign(context.Background(), 42); err != nil {
		t.Fatalf("delete returned error: %v", err)
	}

	if len(messages.deletedFor) != 1 || messages.deletedFor[0] != 42 {
		t.Errorf("expected campaign 42 messages deleted, got %v", messages.deletedFor)
	}
	if len(campaigns.deleted) != 1 || campaigns.deleted[0] != 42 {
		t.Errorf("expected campaign 42 deleted, got %v", campaigns.deleted)
	}
}

func TestDeleteCampaign_UnknownIDFails(t *testing.T) {
	s := NewCampaignService(&fakeCampaignRepo{}, &fakeCampaignMessageRepo{})

	if err := s.DeleteCampaign(context.Background(), 99); err == nil {
		t.Fatal("expected an error for an unknown campaign")
	}
}
