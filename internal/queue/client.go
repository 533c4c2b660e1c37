package queue

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
)

// Enqueuer is the producer side used by HTTP handlers.
type Enqueuer interface {
	EnqueueConfirm(ctx context.Context, p ConfirmPayload) error
	EnqueueWebhook(ctx context.Context, p WebhookPayload) error
}

// TaskClient is the subset of *asynq.Client used for producing tasks.
type TaskClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Client enqueues tasks through asynq. Duplicate task ids inside the
// retention window are dropped silently.
type Client struct {
	tasks     TaskClient
	queue     string
	maxRetry  int
	retention time.Duration
}

// ClientOptions tunes enqueued tasks.
type ClientOptions struct {
	Queue     string
	MaxRetry  int
	Retention time.Duration
}

// NewClient wraps an asynq client connected through opt.
func NewClient(opt asynq.RedisConnOpt, o ClientOptions) *Client {
	return NewClientFrom(asynq.NewClient(opt), o)
}

// NewClientFrom wraps an existing task client.
func NewClientFrom(tc TaskClient, o ClientOptions) *Client {
	if o.Queue == "" {
		o.Queue = DefaultQueue
	}
	if o.MaxRetry <= 0 {
		o.MaxRetry = 5
	}
	if o.Retention <= 0 {
		o.Retention = time.Hour
	}
	return &Client{tasks: tc, queue: o.Queue, maxRetry: o.MaxRetry, retention: o.Retention}
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	if c == nil || c.tasks == nil {
		return nil
	}
	return c.tasks.Close()
}

// EnqueueConfirm schedules confirmation of a hosted-page resource.
func (c *Client) EnqueueConfirm(ctx context.Context, p ConfirmPayload) error {
	task, id, err := NewConfirmTask(p)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task, id)
}

// EnqueueWebhook schedules processing of a validated webhook.
func (c *Client) EnqueueWebhook(ctx context.Context, p WebhookPayload) error {
	task, id, err := NewWebhookTask(p)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task, id)
}

func (c *Client) enqueue(ctx context.Context, task *asynq.Task, id string) error {
	_, err := c.tasks.EnqueueContext(ctx, task,
		asynq.Queue(c.queue),
		asynq.MaxRetry(c.maxRetry),
		asynq.TaskID(id),
		asynq.Retention(c.retention),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}
