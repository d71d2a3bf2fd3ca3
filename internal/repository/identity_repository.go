package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/nexusmail/nexus-mailer/internal/domain"
)

// IdentityRepository handles database operations for SMTP sending identities.
type IdentityRepository struct {
	db *sqlx.DB
}

func NewIdentityRepository(db *sqlx.DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

// GetByUserID returns the sending identity owned by a user, or nil when the
// owner has never configured one.
func (r *IdentityRepository) GetByUserID(ctx context.Context, userID int64) (*domain.SMTPIdentity, error) {
	query := `
		SELECT id, user_id, host, port, use_tls, username, password,
		       from_email, signature, created_at, updated_at
		FROM smtp_identities
		WHERE user_id = ?
	`

	var identity domain.SMTPIdentity
	if err := r.db.GetContext(ctx, &identity, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get smtp identity: %w", err)
	}

	return &identity, nil
}

// Upsert creates or replaces a user's sending identity. One identity per
// owner is enforced by the unique key on user_id.
func (r *IdentityRepository) Upsert(ctx context.Context, identity *domain.SMTPIdentity) (*domain.SMTPIdentity, error) {
	query := `
		INSERT INTO smtp_identities (user_id, host, port, use_tls, username, password, from_email, signature)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			host = VALUES(host),
			port = VALUES(port),
			use_tls = VALUES(use_tls),
			username = VALUES(username),
			password = VALUES(password),
			from_email = VALUES(from_email),
			signature = VALUES(signature)
	`

	_, err := r.db.ExecContext(ctx, query,
		identity.UserID, identity.Host, identity.Port, identity.UseTLS,
		identity.Username, identity.Password, identity.FromEmail, identity.Signature,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert smtp identity: %w", err)
	}

	return r.GetByUserID(ctx, identity.UserID)
}
