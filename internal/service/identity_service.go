package service

import (
	"context"
	"fmt"

	"github.com/nexusmail/nexus-mailer/internal/domain"
)

type identityRepository interface {
	GetByUserID(ctx context.Context, userID int64) (*domain.SMTPIdentity, error)
	Upsert(ctx context.Context, identity *domain.SMTPIdentity) (*domain.SMTPIdentity, error)
}

type IdentityService struct {
	repo identityRepository
}

func NewIdentityService(repo identityRepository) *IdentityService {
	return &IdentityService{repo: repo}
}

func (s *IdentityService) GetIdentity(ctx context.Context, userID int64) (*domain.SMTPIdentity, error) {
	return s.repo.GetByUserID(ctx, userID)
}

// SaveIdentity creates or replaces the user's relay settings. Each user has
// exactly one identity; a second save overwrites the first.
func (s *IdentityService) SaveIdentity(ctx context.Context, identity *domain.SMTPIdentity) (*domain.SMTPIdentity, error) {
	if identity.Host == "" || identity.Port == 0 || identity.FromEmail == "" {
		return nil, fmt.Errorf("host, port and from_email are required")
	}
	return s.repo.Upsert(ctx, identity)
}
