package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/nexusmail/nexus-mailer/environments"
	"github.com/nexusmail/nexus-mailer/pkg/logger"
)

// Client caches tracking token -> message id mappings so the beacon and
// click endpoints can resolve tokens without hitting MySQL on every image
// load. The cache is best-effort: a miss falls back to the database.
type Client struct {
	client valkey.Client
}

const (
	trackingTokenKeyPrefix = "tracking_token:"
	trackingTokenTTL       = 30 * 24 * time.Hour
)

func NewRedisClient(cfg environments.RedisConfig) (*Client, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)},
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Infof("Connected to Redis (via Valkey client)")

	return &Client{client: client}, nil
}

func (c *Client) CacheTrackingToken(ctx context.Context, token string, messageID int64) error {
	key := trackingTokenKeyPrefix + token

	err := c.client.Do(ctx, c.client.B().Set().Key(key).Value(strconv.FormatInt(messageID, 10)).Ex(trackingTokenTTL).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to cache tracking token: %w", err)
	}

	logger.Debugf("Cached tracking token %s -> message %d", token, messageID)

	return nil
}

// LookupTrackingToken returns the cached message id for a token, or
// (0, nil) on a cache miss.
func (c *Client) LookupTrackingToken(ctx context.Context, token string) (int64, error) {
	key := trackingTokenKeyPrefix + token

	result := c.client.Do(ctx, c.client.B().Get().Key(key).Build())
	if result.Error() != nil {
		if valkey.IsValkeyNil(result.Error()) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get cached tracking token: %w", result.Error())
	}

	id, err := result.AsInt64()
	if err != nil {
		return 0, fmt.Errorf("failed to read cached tracking token: %w", err)
	}

	return id, nil
}

func (c *Client) Close() error {
	c.client.Close()
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Do(ctx, c.client.B().Ping().Build()).Error()
}
