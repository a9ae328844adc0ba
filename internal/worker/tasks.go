package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Task type constants
const (
	TaskGenerateBrief = "brief:generate"
	TaskWeeklyBriefs  = "brief:weekly"

	queueDefault = "default"
)

type generateBriefPayload struct {
	BriefID uint `json:"brief_id"`
}

// taskEnqueuer is the part of asynq.Client the Client uses
type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Client enqueues brief tasks for the worker
type Client struct {
	enq taskEnqueuer
}

// NewClient connects a task client to the Redis at redisURL
func NewClient(redisURL string) (*Client, error) {
	conn, err := redisConn(redisURL)
	if err != nil {
		return nil, err
	}
	return &Client{enq: asynq.NewClient(conn)}, nil
}

// Close closes the Asynq client connection gracefully.
func (c *Client) Close() error {
	return c.enq.Close()
}

// EnqueueGenerateBrief enqueues completion of a generating brief.
// The task will be processed with a 5-minute timeout, retry up to 3 times,
// and retain for 24 hours after completion.
func (c *Client) EnqueueGenerateBrief(ctx context.Context, briefID uint) error {
	task, err := newGenerateBriefTask(briefID)
	if err != nil {
		return err
	}
	if _, err := c.enq.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", TaskGenerateBrief, err)
	}
	return nil
}

func newGenerateBriefTask(briefID uint) (*asynq.Task, error) {
	payload, err := json.Marshal(generateBriefPayload{BriefID: briefID})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskGenerateBrief,
		payload,
		asynq.Queue(queueDefault),
		asynq.MaxRetry(3),
		asynq.Timeout(5*time.Minute),
		asynq.Retention(24*time.Hour),
		// One task per brief even if the request is retried
		asynq.TaskID(fmt.Sprintf("brief-%d", briefID)),
	), nil
}

// newWeeklyBriefsTask has an empty payload; the handler queries eligible users
func newWeeklyBriefsTask() *asynq.Task {
	return asynq.NewTask(
		TaskWeeklyBriefs,
		nil,
		asynq.Queue(queueDefault),
		asynq.MaxRetry(3),
		asynq.Timeout(30*time.Minute),
		asynq.Retention(24*time.Hour),
		asynq.Unique(24*time.Hour), // Prevent duplicate if scheduler runs twice
	)
}
