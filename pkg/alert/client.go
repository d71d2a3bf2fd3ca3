package alert

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/nexusmail/nexus-mailer/environments"
	"github.com/nexusmail/nexus-mailer/pkg/logger"
)

// Client posts operator alerts to a configured webhook. A lost batch outcome
// can mean re-sending already-delivered mail, so commit failures must reach
// a human even when the process keeps running.
type Client struct {
	httpClient *resty.Client
	webhookURL string
}

func NewClient(cfg environments.AlertConfig) *Client {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json")

	return &Client{
		httpClient: client,
		webhookURL: cfg.WebhookURL,
	}
}

type payload struct {
	Alert     string `json:"alert"`
	BatchID   string `json:"batchId,omitempty"`
	Detail    string `json:"detail"`
	Timestamp string `json:"timestamp"`
}

// CommitFailure reports an outcome-recorder transaction failure for a batch.
func (c *Client) CommitFailure(ctx context.Context, batchID string, cause error) {
	c.post(ctx, payload{
		Alert:     "batch_commit_failed",
		BatchID:   batchID,
		Detail:    fmt.Sprintf("failed to record outcomes for batch %s: %v", batchID, cause),
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// BatchFailure reports a batch that was terminally failed without sending
// (missing identity, connection budget exhausted).
func (c *Client) BatchFailure(ctx context.Context, batchID string, cause error) {
	c.post(ctx, payload{
		Alert:     "batch_failed",
		BatchID:   batchID,
		Detail:    cause.Error(),
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func (c *Client) post(ctx context.Context, p payload) {
	if c.webhookURL == "" {
		logger.Warnf("Alert webhook not configured, dropping alert %q: %s", p.Alert, p.Detail)
		return
	}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(p).
		Post(c.webhookURL)
	if err != nil {
		logger.Errorf("Failed to deliver alert %q: %v", p.Alert, err)
		return
	}

	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusNoContent {
		logger.Warnf("Alert webhook returned status %d for alert %q", resp.StatusCode(), p.Alert)
		return
	}

	logger.Infof("Alert %q delivered", p.Alert)
}
