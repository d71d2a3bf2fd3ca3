package domain

import "time"

type MessageStatus string

const (
	StatusPending MessageStatus = "pending"
	StatusSent    MessageStatus = "sent"
	StatusFailed  MessageStatus = "failed"
)

// Message is a single rendered email waiting for (or past) delivery.
// BatchID is the dispatch claim token: non-nil exactly when the message has
// been claimed by a dispatch round. TrackingToken is assigned on the first
// send attempt and is unique across all messages.
type Message struct {
	ID               int64         `db:"id" json:"id"`
	UserID           int64         `db:"user_id" json:"userId"`
	CampaignID       *int64        `db:"campaign_id" json:"campaignId,omitempty"`
	Recipient        string        `db:"recipient" json:"recipient"`
	Subject          string        `db:"subject" json:"subject"`
	Body             string        `db:"body" json:"-"`
	Status           MessageStatus `db:"status" json:"status"`
	ScheduledAt      time.Time     `db:"scheduled_at" json:"scheduledAt"`
	RateLimitRetryAt *time.Time    `db:"rate_limit_retry_at" json:"rateLimitRetryAt,omitempty"`
	BatchID          *string       `db:"batch_id" json:"batchId,omitempty"`
	TrackingToken    *string       `db:"tracking_token" json:"trackingToken,omitempty"`
	OpenedAt         *time.Time    `db:"opened_at" json:"openedAt,omitempty"`
	ClickedAt        *time.Time    `db:"clicked_at" json:"clickedAt,omitempty"`
	CreatedAt        time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time     `db:"updated_at" json:"updatedAt"`
}

type Campaign struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"userId"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// CampaignStats is a campaign row joined with per-status message counts.
type CampaignStats struct {
	Campaign
	Total   int64 `db:"total" json:"total"`
	Sent    int64 `db:"sent" json:"sent"`
	Failed  int64 `db:"failed" json:"failed"`
	Pending int64 `db:"pending" json:"pending"`
}

// SMTPIdentity holds one owner's relay credentials and sender metadata.
// All fields are explicit columns; missing required fields are rejected at
// the API boundary, never discovered at send time.
type SMTPIdentity struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"userId"`
	Host      string    `db:"host" json:"host"`
	Port      int       `db:"port" json:"port"`
	UseTLS    bool      `db:"use_tls" json:"useTls"`
	Username  string    `db:"username" json:"username"`
	Password  string    `db:"password" json:"-"`
	FromEmail string    `db:"from_email" json:"fromEmail"`
	Signature string    `db:"signature" json:"signature"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Batch is a claimed, uniquely-identified slice of message ids belonging to
// one sending identity, the unit handed to a delivery worker.
type Batch struct {
	ID         string
	UserID     int64
	MessageIDs []int64
}

// BatchOutcome accumulates a worker's final per-message states. The outcome
// recorder applies it as a single transaction.
type BatchOutcome struct {
	BatchID     string
	SentIDs     []int64
	FailedIDs   []int64
	Tokens      map[int64]string // message id -> tracking token assigned this run
	Deferrals   map[int64]time.Time
	RateLimited int // accepted-but-unconfirmed sends, kept for observability
}

// MessageStatsRow aggregates per-status and engagement counts for the
// dashboard endpoints.
type MessageStatsRow struct {
	Pending int64 `db:"pending" json:"pending"`
	Sent    int64 `db:"sent" json:"sent"`
	Failed  int64 `db:"failed" json:"failed"`
	Opened  int64 `db:"opened" json:"opened"`
	Clicked int64 `db:"clicked" json:"clicked"`
}

func (o *BatchOutcome) Empty() bool {
	return len(o.SentIDs) == 0 && len(o.FailedIDs) == 0 && len(o.Deferrals) == 0
}
