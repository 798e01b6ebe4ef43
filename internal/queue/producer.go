package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/adverant/nexus/inkcompare/internal/logging"
)

// Task options
const (
	DefaultMaxRetry  = 3
	DefaultRetention = 24 * time.Hour
)

// Producer enqueues comparisons for the worker
type Producer struct {
	client    *asynq.Client
	queueName string
	timeout   time.Duration
	logger    *logging.Logger
}

// ProducerConfig holds producer configuration
type ProducerConfig struct {
	RedisURL  string
	QueueName string
	// TaskTimeout bounds one execution of a task on the worker
	TaskTimeout time.Duration
}

// NewProducer creates a producer connected to Redis
func NewProducer(cfg *ProducerConfig) (*Producer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	return &Producer{
		client:    asynq.NewClient(redisOpt),
		queueName: cfg.QueueName,
		timeout:   cfg.TaskTimeout,
		logger:    logging.NewLogger("queue"),
	}, nil
}

// Enqueue submits a comparison and returns the task id. The comparison id
// doubles as the task id so duplicate submissions are rejected by asynq.
func (p *Producer) Enqueue(ctx context.Context, payload *ComparePayload) (string, error) {
	task, err := NewCompareTask(payload)
	if err != nil {
		return "", err
	}

	opts := []asynq.Option{
		asynq.Queue(p.queueName),
		asynq.TaskID(payload.ComparisonID),
		asynq.MaxRetry(DefaultMaxRetry),
		asynq.Retention(DefaultRetention),
	}
	if p.timeout > 0 {
		opts = append(opts, asynq.Timeout(p.timeout))
	}

	info, err := p.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue comparison %s: %w", payload.ComparisonID, err)
	}

	p.logger.Info(fmt.Sprintf("[Compare %s] Enqueued", payload.ComparisonID),
		"task_id", info.ID, "queue", info.Queue, "bytes", len(payload.File1)+len(payload.File2))
	return info.ID, nil
}

// Close closes the Redis connection
func (p *Producer) Close() error {
	return p.client.Close()
}
