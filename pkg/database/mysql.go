package database

import (
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/nexusmail/nexus-mailer/environments"
	"github.com/nexusmail/nexus-mailer/pkg/logger"
)

func NewMySQLDB(cfg environments.DatabaseConfig) (*sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&collation=utf8mb4_unicode_ci",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName,
	)

	db, err := sqlx.Connect("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Infof("Connected to MySQL database")
	return db, nil
}

func RunMigrations(db *sqlx.DB) error {
	schemas := []string{
		`CREATE TABLE IF NOT EXISTS campaigns (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			user_id BIGINT NOT NULL,
			name VARCHAR(100) NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_campaigns_user_id (user_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`,

		`CREATE TABLE IF NOT EXISTS smtp_identities (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			user_id BIGINT NOT NULL,
			host VARCHAR(255) NOT NULL,
			port INT NOT NULL DEFAULT 587,
			use_tls BOOLEAN NOT NULL DEFAULT TRUE,
			username VARCHAR(255) NOT NULL,
			password VARCHAR(255) NOT NULL,
			from_email VARCHAR(255) NOT NULL,
			signature TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			UNIQUE KEY uniq_smtp_identities_user_id (user_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`,

		`CREATE TABLE IF NOT EXISTS messages (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			user_id BIGINT NOT NULL,
			campaign_id BIGINT,
			recipient VARCHAR(255) NOT NULL,
			subject VARCHAR(500) NOT NULL,
			body MEDIUMTEXT NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			scheduled_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			rate_limit_retry_at DATETIME,
			batch_id VARCHAR(36),
			tracking_token VARCHAR(36),
			opened_at DATETIME,
			clicked_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			UNIQUE KEY uniq_messages_tracking_token (tracking_token),
			INDEX idx_messages_dispatch (status, scheduled_at, batch_id),
			INDEX idx_messages_batch_id (batch_id),
			INDEX idx_messages_campaign_id (campaign_id),
			INDEX idx_messages_user_id (user_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`,
	}

	for _, schema := range schemas {
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	logger.Infof("Database migrations completed")

	return nil
}

func SeedTestData(db *sqlx.DB) error {
	var count int

	if err := db.Get(&count, "SELECT COUNT(*) FROM messages"); err != nil {
		return err
	}

	if count > 0 {
		logger.Infof("Database already has %d messages, skipping seed", count)
		return nil
	}

	const seedUserID = 1

	if _, err := db.Exec(
		`INSERT INTO smtp_identities (user_id, host, port, use_tls, username, password, from_email, signature)
		 VALUES (?, 'localhost', 1025, FALSE, 'dev', 'dev', 'dev@nexusmail.local', 'Sent with Nexus Mailer')
		 ON DUPLICATE KEY UPDATE host = VALUES(host)`,
		seedUserID,
	); err != nil {
		return fmt.Errorf("failed to seed smtp identity: %w", err)
	}

	res, err := db.Exec(
		"INSERT INTO campaigns (user_id, name) VALUES (?, 'Launch announcement')",
		seedUserID,
	)
	if err != nil {
		return fmt.Errorf("failed to seed campaign: %w", err)
	}

	campaignID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get campaign id: %w", err)
	}

	recipients := []string{
		"alice@example.com",
		"bob@example.com",
		"carol@example.com",
		"dave@example.com",
		"erin@example.com",
	}

	for _, recipient := range recipients {
		_, err := db.Exec(
			`INSERT INTO messages (user_id, campaign_id, recipient, subject, body, status)
			 VALUES (?, ?, ?, 'We are live!', '<p>Hello, check out <a href="https://nexusmail.local/launch" data-track>our launch</a>.</p>', 'pending')`,
			seedUserID, campaignID, recipient,
		)
		if err != nil {
			return fmt.Errorf("failed to seed test data: %w", err)
		}
	}

	logger.Infof("Seeded 1 campaign with %d pending messages", len(recipients))
	return nil
}
