package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nexusmail/nexus-mailer/internal/domain"
)

// MessageRepository handles database operations for messages.
type MessageRepository struct {
	db *sqlx.DB
}

func NewMessageRepository(db *sqlx.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// ReclaimDeferred resets rate-limit deferrals that have expired, making the
// affected messages eligible for selection again. Runs at the start of every
// scheduler tick, before selection.
func (r *MessageRepository) ReclaimDeferred(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE messages
		SET rate_limit_retry_at = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE status = 'pending'
		  AND rate_limit_retry_at IS NOT NULL
		  AND rate_limit_retry_at <= ?
	`

	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim deferred messages: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return rows, nil
}

// SelectEligible returns up to limit unclaimed pending messages whose
// scheduled time has passed. Only id and owner are loaded; the delivery
// worker reloads full rows for its own batch after the claim.
func (r *MessageRepository) SelectEligible(ctx context.Context, now time.Time, limit int) ([]domain.Message, error) {
	query := `
		SELECT id, user_id
		FROM messages
		WHERE status = 'pending'
		  AND scheduled_at <= ?
		  AND rate_limit_retry_at IS NULL
		  AND batch_id IS NULL
		ORDER BY scheduled_at ASC, id ASC
		LIMIT ?
	`

	var messages []domain.Message
	if err := r.db.SelectContext(ctx, &messages, query, now, limit); err != nil {
		return nil, fmt.Errorf("failed to select eligible messages: %w", err)
	}

	return messages, nil
}

// ClaimBatch stamps batchID on the given messages in one atomic update and
// returns the ids actually claimed. The WHERE clause re-checks eligibility,
// so a message selected by two overlapping ticks is stamped by exactly one
// of them; the loser sees it missing from the returned set.
func (r *MessageRepository) ClaimBatch(ctx context.Context, batchID string, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`
		UPDATE messages
		SET batch_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id IN (?)
		  AND status = 'pending'
		  AND batch_id IS NULL
	`, batchID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build claim query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to claim batch %s: %w", batchID, err)
	}

	var claimed []int64
	if err := r.db.SelectContext(ctx, &claimed,
		"SELECT id FROM messages WHERE batch_id = ? ORDER BY id ASC", batchID,
	); err != nil {
		return nil, fmt.Errorf("failed to read claimed ids for batch %s: %w", batchID, err)
	}

	return claimed, nil
}

// GetByBatchID loads the full rows for one claimed batch in a fixed order.
func (r *MessageRepository) GetByBatchID(ctx context.Context, batchID string) ([]domain.Message, error) {
	query := `
		SELECT id, user_id, campaign_id, recipient, subject, body, status,
		       scheduled_at, rate_limit_retry_at, batch_id, tracking_token,
		       opened_at, clicked_at, created_at, updated_at
		FROM messages
		WHERE batch_id = ?
		ORDER BY id ASC
	`

	var messages []domain.Message
	if err := r.db.SelectContext(ctx, &messages, query, batchID); err != nil {
		return nil, fmt.Errorf("failed to load batch %s: %w", batchID, err)
	}

	return messages, nil
}

// ApplyBatchOutcomes commits a batch's final per-message states in a single
// transaction. Any statement failure rolls back the whole batch; the caller
// escalates that as a commit error rather than retrying the sends.
func (r *MessageRepository) ApplyBatchOutcomes(ctx context.Context, outcome domain.BatchOutcome) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin outcome transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	// Tokens are assigned before the send attempt, so they are written for
	// sent and failed messages alike.
	for id, token := range outcome.Tokens {
		if _, err := tx.ExecContext(ctx,
			"UPDATE messages SET tracking_token = ? WHERE id = ? AND tracking_token IS NULL",
			token, id,
		); err != nil {
			return fmt.Errorf("failed to store tracking token for message %d: %w", id, err)
		}
	}

	if len(outcome.SentIDs) > 0 {
		query, args, err := sqlx.In(
			"UPDATE messages SET status = 'sent', updated_at = CURRENT_TIMESTAMP WHERE id IN (?) AND status = 'pending'",
			outcome.SentIDs,
		)
		if err != nil {
			return fmt.Errorf("failed to build sent update: %w", err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
			return fmt.Errorf("failed to mark batch %s messages sent: %w", outcome.BatchID, err)
		}
	}

	if len(outcome.FailedIDs) > 0 {
		query, args, err := sqlx.In(
			"UPDATE messages SET status = 'failed', updated_at = CURRENT_TIMESTAMP WHERE id IN (?) AND status = 'pending'",
			outcome.FailedIDs,
		)
		if err != nil {
			return fmt.Errorf("failed to build failed update: %w", err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
			return fmt.Errorf("failed to mark batch %s messages failed: %w", outcome.BatchID, err)
		}
	}

	// A deferred message stays pending and gives up its claim so a later
	// tick can re-select it once the deferral expires.
	for id, retryAt := range outcome.Deferrals {
		if _, err := tx.ExecContext(ctx,
			"UPDATE messages SET rate_limit_retry_at = ?, batch_id = NULL, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status = 'pending'",
			retryAt, id,
		); err != nil {
			return fmt.Errorf("failed to defer message %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit outcomes for batch %s: %w", outcome.BatchID, err)
	}

	return nil
}

// FailBatch marks every still-pending message of a batch as failed. Used for
// whole-batch terminal failures (no sending identity, connection budget
// exhausted before any send).
func (r *MessageRepository) FailBatch(ctx context.Context, batchID string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"UPDATE messages SET status = 'failed', updated_at = CURRENT_TIMESTAMP WHERE batch_id = ? AND status = 'pending'",
		batchID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to fail batch %s: %w", batchID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return rows, nil
}

// MarkOpened records the first open for a tracking token. Later hits are
// no-ops; unknown tokens affect zero rows and report found=false.
func (r *MessageRepository) MarkOpened(ctx context.Context, token string, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		"UPDATE messages SET opened_at = ? WHERE tracking_token = ? AND opened_at IS NULL",
		at, token,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark message opened: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return rows > 0, nil
}

// MarkClicked records the first click for a tracking token. A click implies
// an open, so opened_at is backfilled when still null.
func (r *MessageRepository) MarkClicked(ctx context.Context, token string, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE messages
		SET clicked_at = COALESCE(clicked_at, ?),
		    opened_at = COALESCE(opened_at, ?)
		WHERE tracking_token = ?
	`, at, at, token)
	if err != nil {
		return false, fmt.Errorf("failed to mark message clicked: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return rows > 0, nil
}

func (r *MessageRepository) Create(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	query := `
		INSERT INTO messages (user_id, campaign_id, recipient, subject, body, status, scheduled_at)
		VALUES (?, ?, ?, ?, ?, 'pending', ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		msg.UserID, msg.CampaignID, msg.Recipient, msg.Subject, msg.Body, msg.ScheduledAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	return r.GetByID(ctx, id)
}

// CreateForCampaign inserts one pending message per recipient, all sharing
// the campaign's subject and rendered body.
func (r *MessageRepository) CreateForCampaign(
	ctx context.Context,
	userID, campaignID int64,
	recipients []string,
	subject, body string,
	scheduledAt time.Time,
) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin insert transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO messages (user_id, campaign_id, recipient, subject, body, status, scheduled_at)
		VALUES (?, ?, ?, ?, ?, 'pending', ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, recipient := range recipients {
		if _, err := stmt.ExecContext(ctx, userID, campaignID, recipient, subject, body, scheduledAt); err != nil {
			return 0, fmt.Errorf("failed to insert message for %s: %w", recipient, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit campaign messages: %w", err)
	}

	return len(recipients), nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	query := `
		SELECT id, user_id, campaign_id, recipient, subject, body, status,
		       scheduled_at, rate_limit_retry_at, batch_id, tracking_token,
		       opened_at, clicked_at, created_at, updated_at
		FROM messages
		WHERE id = ?
	`

	var message domain.Message
	if err := r.db.GetContext(ctx, &message, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	return &message, nil
}

func (r *MessageRepository) GetAll(
	ctx context.Context,
	status *domain.MessageStatus,
	page, pageSize int,
) ([]domain.Message, int64, error) {
	offset := (page - 1) * pageSize
	var totalCount int64
	var messages []domain.Message

	if status != nil {
		if err := r.db.GetContext(ctx, &totalCount,
			"SELECT COUNT(*) FROM messages WHERE status = ?", *status,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to count messages: %w", err)
		}

		query := `
			SELECT id, user_id, campaign_id, recipient, subject, body, status,
			       scheduled_at, rate_limit_retry_at, batch_id, tracking_token,
			       opened_at, clicked_at, created_at, updated_at
			FROM messages
			WHERE status = ?
			ORDER BY created_at DESC
			LIMIT ? OFFSET ?
		`
		if err := r.db.SelectContext(ctx, &messages, query, *status, pageSize, offset); err != nil {
			return nil, 0, fmt.Errorf("failed to get messages: %w", err)
		}
	} else {
		if err := r.db.GetContext(ctx, &totalCount, "SELECT COUNT(*) FROM messages"); err != nil {
			return nil, 0, fmt.Errorf("failed to count messages: %w", err)
		}

		query := `
			SELECT id, user_id, campaign_id, recipient, subject, body, status,
			       scheduled_at, rate_limit_retry_at, batch_id, tracking_token,
			       opened_at, clicked_at, created_at, updated_at
			FROM messages
			ORDER BY created_at DESC
			LIMIT ? OFFSET ?
		`
		if err := r.db.SelectContext(ctx, &messages, query, pageSize, offset); err != nil {
			return nil, 0, fmt.Errorf("failed to get messages: %w", err)
		}
	}

	return messages, totalCount, nil
}

// GetStats returns counts of messages by status plus engagement totals.
func (r *MessageRepository) GetStats(ctx context.Context) (domain.MessageStatsRow, error) {
	query := `
		SELECT
			COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0) AS pending,
			COALESCE(SUM(CASE WHEN status = 'sent' THEN 1 ELSE 0 END), 0)    AS sent,
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)  AS failed,
			COALESCE(SUM(CASE WHEN opened_at IS NOT NULL THEN 1 ELSE 0 END), 0)  AS opened,
			COALESCE(SUM(CASE WHEN clicked_at IS NOT NULL THEN 1 ELSE 0 END), 0) AS clicked
		FROM messages
	`

	var stats domain.MessageStatsRow
	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return domain.MessageStatsRow{}, fmt.Errorf("failed to get stats: %w", err)
	}

	return stats, nil
}

// ReplayFailedByID resets one failed message to pending. The claim token and
// any deferral are cleared so the next tick can select it; this is the
// external retry path, outside the dispatch pipeline itself.
func (r *MessageRepository) ReplayFailedByID(ctx context.Context, id int64) error {
	query := `
		UPDATE messages
		SET status = 'pending',
		    batch_id = NULL,
		    rate_limit_retry_at = NULL,
		    scheduled_at = CURRENT_TIMESTAMP,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'failed'
	`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to replay failed message: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("no failed message found with id %d", id)
	}

	return nil
}

func (r *MessageRepository) ReplayAllFailed(ctx context.Context) (int64, error) {
	query := `
		UPDATE messages
		SET status = 'pending',
		    batch_id = NULL,
		    rate_limit_retry_at = NULL,
		    scheduled_at = CURRENT_TIMESTAMP,
		    updated_at = CURRENT_TIMESTAMP
		WHERE status = 'failed'
	`

	result, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to replay failed messages: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return rows, nil
}

func (r *MessageRepository) DeleteByCampaign(ctx context.Context, campaignID int64) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM messages WHERE campaign_id = ?", campaignID); err != nil {
		return fmt.Errorf("failed to delete campaign messages: %w", err)
	}
	return nil
}
