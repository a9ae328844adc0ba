package streams

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	readBatch     = 10
	readBlock     = 5 * time.Second
	claimIdle     = time.Minute
	claimInterval = 30 * time.Second
)

// Consumer reads brief events as a member of GroupBriefRecorders. Messages whose
// handler fails stay pending and are reclaimed once they have idled for claimIdle.
type Consumer struct {
	rdb       *redis.Client
	name      string
	handle    EventHandler
	logger    *slog.Logger
	block     time.Duration
	claimIdle time.Duration
}

// NewConsumer joins the consumer group, creating the stream and group when missing
func NewConsumer(ctx context.Context, rdb *redis.Client, name string, handle EventHandler) (*Consumer, error) {
	err := rdb.XGroupCreateMkStream(ctx, StreamBriefEvents, GroupBriefRecorders, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return &Consumer{
		rdb:       rdb,
		name:      name,
		handle:    handle,
		logger:    slog.Default().With("consumer", name),
		block:     readBlock,
		claimIdle: claimIdle,
	}, nil
}

// Run consumes until ctx is canceled
func (c *Consumer) Run(ctx context.Context) error {
	var lastClaim time.Time
	for ctx.Err() == nil {
		if time.Since(lastClaim) >= claimInterval {
			if _, err := c.reclaim(ctx); err != nil && ctx.Err() == nil {
				c.logger.Warn("Failed to reclaim pending events", "error", err)
			}
			lastClaim = time.Now()
		}

		if _, err := c.read(ctx); err != nil && ctx.Err() == nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			c.logger.Error("Failed to read brief events", "error", err)
			time.Sleep(time.Second)
		}
	}
	return ctx.Err()
}

// read handles the next batch of new messages and returns how many were acknowledged
func (c *Consumer) read(ctx context.Context) (int, error) {
	res, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    GroupBriefRecorders,
		Consumer: c.name,
		Streams:  []string{StreamBriefEvents, ">"},
		Count:    readBatch,
		Block:    c.block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	acked := 0
	for _, stream := range res {
		acked += c.apply(ctx, stream.Messages)
	}
	return acked, nil
}

// reclaim takes over messages another consumer (or this one) failed to finish
func (c *Consumer) reclaim(ctx context.Context) (int, error) {
	acked := 0
	start := "0-0"
	for {
		msgs, next, err := c.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   StreamBriefEvents,
			Group:    GroupBriefRecorders,
			Consumer: c.name,
			MinIdle:  c.claimIdle,
			Start:    start,
			Count:    readBatch,
		}).Result()
		if err != nil {
			return acked, err
		}
		if len(msgs) > 0 {
			c.logger.Info("Reclaimed pending brief events", "count", len(msgs))
			acked += c.apply(ctx, msgs)
		}
		if next == "0-0" || next == "" {
			return acked, nil
		}
		start = next
	}
}

// apply runs the handler over msgs. Undecodable messages are acknowledged and
// dropped; handler failures are left pending.
func (c *Consumer) apply(ctx context.Context, msgs []redis.XMessage) int {
	acked := 0
	for _, msg := range msgs {
		event, err := decode(msg)
		if err != nil {
			c.logger.Error("Dropping malformed brief event", "message_id", msg.ID, "error", err)
		} else if err := c.handle(ctx, event); err != nil {
			c.logger.Error("Brief event handler failed", "message_id", msg.ID, "brief_id", event.BriefID, "error", err)
			continue
		}

		if err := c.rdb.XAck(ctx, StreamBriefEvents, GroupBriefRecorders, msg.ID).Err(); err != nil {
			c.logger.Error("Failed to acknowledge brief event", "message_id", msg.ID, "error", err)
			continue
		}
		acked++
	}
	return acked
}

func decode(msg redis.XMessage) (BriefEvent, error) {
	var event BriefEvent
	if v, _ := msg.Values["schema_version"].(string); v != SchemaVersionV1 {
		return event, fmt.Errorf("unsupported schema version %q", v)
	}
	payload, ok := msg.Values["payload"].(string)
	if !ok {
		return event, errors.New("missing payload")
	}
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return event, fmt.Errorf("invalid payload: %w", err)
	}
	return event, nil
}

// consumerName identifies this process within the group
func consumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "mediecho"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// StartEventConsumer records brief events on user rows in a background goroutine
// and returns a stop function that also closes its Redis connection
func StartEventConsumer(redisURL string, db *gorm.DB) (stop func(), err error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	// Must outlast the blocking read
	opts.ReadTimeout = 2 * readBlock
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithCancel(context.Background())
	consumer, err := NewConsumer(ctx, rdb, consumerName(), HandleBriefEvent(db))
	if err != nil {
		cancel()
		rdb.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			consumer.logger.Error("Brief event consumer stopped", "error", err)
		}
	}()
	consumer.logger.Info("Brief event consumer started")

	return func() {
		cancel()
		<-done
		rdb.Close()
	}, nil
}
