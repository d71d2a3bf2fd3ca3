package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/nexusmail/nexus-mailer/internal/domain"
)

// CampaignRepository handles database operations for campaigns.
type CampaignRepository struct {
	db *sqlx.DB
}

func NewCampaignRepository(db *sqlx.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

func (r *CampaignRepository) Create(ctx context.Context, userID int64, name string) (*domain.Campaign, error) {
	result, err := r.db.ExecContext(ctx,
		"INSERT INTO campaigns (user_id, name) VALUES (?, ?)", userID, name,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	return r.GetByID(ctx, id)
}

func (r *CampaignRepository) GetByID(ctx context.Context, id int64) (*domain.Campaign, error) {
	var campaign domain.Campaign
	err := r.db.GetContext(ctx, &campaign,
		"SELECT id, user_id, name, created_at FROM campaigns WHERE id = ?", id,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}

	return &campaign, nil
}

// ListWithStats returns all campaigns for a user, newest first, each with
// per-status message counts for the dashboard.
func (r *CampaignRepository) ListWithStats(ctx context.Context, userID int64) ([]domain.CampaignStats, error) {
	query := `
		SELECT c.id, c.user_id, c.name, c.created_at,
		       COUNT(m.id) AS total,
		       COALESCE(SUM(CASE WHEN m.status = 'sent' THEN 1 ELSE 0 END), 0)    AS sent,
		       COALESCE(SUM(CASE WHEN m.status = 'failed' THEN 1 ELSE 0 END), 0)  AS failed,
		       COALESCE(SUM(CASE WHEN m.status = 'pending' THEN 1 ELSE 0 END), 0) AS pending
		FROM campaigns c
		LEFT JOIN messages m ON m.campaign_id = c.id
		WHERE c.user_id = ?
		GROUP BY c.id, c.user_id, c.name, c.created_at
		ORDER BY c.created_at DESC
	`

	var campaigns []domain.CampaignStats
	if err := r.db.SelectContext(ctx, &campaigns, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}

	return campaigns, nil
}

func (r *CampaignRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM campaigns WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete campaign: %w", err)
	}
	return nil
}
