package service

import (
	"context"
	"fmt"
	"time"

	"github.com/nexusmail/nexus-mailer/internal/domain"
)

// Small internal interfaces so we can test without touching a real database.
type messageRepository interface {
	Create(ctx context.Context, msg *domain.Message) (*domain.Message, error)
	GetByID(ctx context.Context, id int64) (*domain.Message, error)
	GetAll(ctx context.Context, status *domain.MessageStatus, page, pageSize int) ([]domain.Message, int64, error)
	GetStats(ctx context.Context) (domain.MessageStatsRow, error)
	ReplayFailedByID(ctx context.Context, id int64) error
	ReplayAllFailed(ctx context.Context) (int64, error)
}

type MessageService struct {
	repo messageRepository
}

func NewMessageService(repo messageRepository) *MessageService {
	return &MessageService{repo: repo}
}

// ScheduleMessage queues one rendered email for delivery, optionally delayed.
// The dispatch pipeline picks it up once scheduled_at passes.
func (s *MessageService) ScheduleMessage(
	ctx context.Context,
	userID int64,
	recipient, subject, body string,
	delay time.Duration,
) (*domain.Message, error) {
	if delay < 0 {
		return nil, fmt.Errorf("delay must not be negative")
	}

	msg := &domain.Message{
		UserID:      userID,
		Recipient:   recipient,
		Subject:     subject,
		Body:        body,
		Status:      domain.StatusPending,
		ScheduledAt: time.Now().Add(delay),
	}

	return s.repo.Create(ctx, msg)
}

func (s *MessageService) GetMessage(ctx context.Context, id int64) (*domain.Message, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *MessageService) GetAllMessages(
	ctx context.Context,
	status *domain.MessageStatus,
	page, pageSize int,
) ([]domain.Message, int64, error) {
	return s.repo.GetAll(ctx, status, page, pageSize)
}

func (s *MessageService) GetStats(ctx context.Context) (domain.MessageStatsRow, error) {
	return s.repo.GetStats(ctx)
}

// ReplayFailedMessage resets one failed message to pending so the next
// scheduler tick can pick it up again. This is the only sanctioned way back
// out of a terminal state.
func (s *MessageService) ReplayFailedMessage(ctx context.Context, id int64) error {
	return s.repo.ReplayFailedByID(ctx, id)
}

func (s *MessageService) ReplayAllFailedMessages(ctx context.Context) (int64, error) {
	return s.repo.ReplayAllFailed(ctx)
}
