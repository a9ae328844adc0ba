package streams

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Publisher appends brief events to the stream
type Publisher struct {
	rdb *redis.Client
	now func() time.Time
}

// NewPublisherFromClient wraps an existing Redis client. The client is owned by the caller.
func NewPublisherFromClient(rdb *redis.Client) *Publisher {
	return &Publisher{rdb: rdb, now: time.Now}
}

// PublishBriefEvent appends event and returns the stream entry ID.
// Status and brief_id are duplicated as flat fields so XRANGE output is readable.
func (p *Publisher) PublishBriefEvent(ctx context.Context, event BriefEvent) (string, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("failed to encode brief event: %w", err)
	}

	id, err := p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamBriefEvents,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"schema_version": SchemaVersionV1,
			"brief_id":       strconv.FormatUint(uint64(event.BriefID), 10),
			"status":         event.Status,
			"payload":        string(payload),
			"published_at":   p.now().UTC().Format(time.RFC3339),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to append brief event: %w", err)
	}
	return id, nil
}
