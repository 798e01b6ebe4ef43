/**
 * Queue Consumer for inkcompare
 *
 * Consumes compare-documents tasks from Redis through asynq and runs them on
 * the shared ComparisonProcessor. The task result holds the comparison JSON.
 */

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	apperrors "github.com/adverant/nexus/inkcompare/internal/errors"
	"github.com/adverant/nexus/inkcompare/internal/logging"
	"github.com/adverant/nexus/inkcompare/internal/processor"
)

// Consumer handles comparison tasks from the Redis queue
type Consumer struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor processor.ComparisonProcessorInterface
	config    *ConsumerConfig
	logger    *logging.Logger
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL    string
	QueueName   string
	Concurrency int
	Processor   processor.ComparisonProcessorInterface
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}

	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := logging.NewLogger("queue")

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10,
				"default":     1,
			},
			// Exponential backoff: 5s, 10s, 20s, capped at 60s
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				delay := time.Duration(5*(1<<uint(n))) * time.Second
				if delay > 60*time.Second {
					delay = 60 * time.Second
				}
				return delay
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task processing error", "type", task.Type(), "bytes", len(task.Payload()), "error", err)
			}),
			Logger: &asynqLogger{logger: logger},
		},
	)

	consumer := &Consumer{
		server:    server,
		mux:       asynq.NewServeMux(),
		processor: cfg.Processor,
		config:    cfg,
		logger:    logger,
	}
	consumer.mux.HandleFunc(TaskTypeCompare, consumer.handleCompare)

	return consumer, nil
}

// Start starts processing tasks in the background
func (c *Consumer) Start() error {
	c.logger.Info("Starting queue consumer", "concurrency", c.config.Concurrency, "queue", c.config.QueueName)
	if err := c.server.Start(c.mux); err != nil {
		return fmt.Errorf("failed to start queue consumer: %w", err)
	}
	return nil
}

// Stop waits for in-flight tasks and stops the consumer
func (c *Consumer) Stop() {
	c.logger.Info("Stopping queue consumer...")
	c.server.Shutdown()
	c.logger.Info("Queue consumer stopped")
}

// handleCompare runs one comparison task
func (c *Consumer) handleCompare(ctx context.Context, task *asynq.Task) error {
	startTime := time.Now()

	var payload ComparePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}

	c.logger.Info(fmt.Sprintf("[Compare %s] Task received", payload.ComparisonID),
		"filename1", payload.Filename1, "filename2", payload.Filename2,
		"bytes", len(payload.File1)+len(payload.File2))

	resp, err := c.processor.Compare(ctx, &processor.CompareRequest{
		ComparisonID: payload.ComparisonID,
		File1:        payload.File1,
		File2:        payload.File2,
		Filename1:    payload.Filename1,
		Filename2:    payload.Filename2,
		WeightText:   payload.WeightText,
	})
	duration := time.Since(startTime)

	if err != nil {
		c.logger.Error(fmt.Sprintf("[Compare %s] Task failed after %v", payload.ComparisonID, duration),
			"error", err, "code", apperrors.CodeOf(err))
		c.writeResult(task, failureResult(payload.ComparisonID, err))

		if apperrors.Is(err, apperrors.ErrorInvalidInput) {
			return fmt.Errorf("comparison rejected: %v: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("comparison failed: %w", err)
	}

	c.logger.Info(fmt.Sprintf("[Compare %s] Task completed in %v", payload.ComparisonID, duration),
		"similarity_index", resp.Result.SimilarityIndex, "cache_hit", resp.Result.CacheHit)
	c.writeResult(task, resp.Result)
	return nil
}

// writeResult stores v as the task result when the task carries a writer
func (c *Consumer) writeResult(task *asynq.Task, v interface{}) {
	rw := task.ResultWriter()
	if rw == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("Failed to encode task result", "error", err)
		return
	}
	if _, err := rw.Write(data); err != nil {
		c.logger.Warn("Failed to write task result", "task_id", rw.TaskID(), "error", err)
	}
}

func failureResult(id string, err error) map[string]interface{} {
	var ce *apperrors.ComparisonError
	if errors.As(err, &ce) {
		return ce.ToMap()
	}
	return map[string]interface{}{
		"comparison_id": id,
		"error_code":    string(apperrors.CodeOf(err)),
		"message":       err.Error(),
	}
}

// asynqLogger routes asynq's own logs into the component logger
type asynqLogger struct {
	logger *logging.Logger
}

func (l *asynqLogger) Debug(args ...interface{}) { l.logger.Debug(fmt.Sprint(args...)) }
func (l *asynqLogger) Info(args ...interface{})  { l.logger.Info(fmt.Sprint(args...)) }
func (l *asynqLogger) Warn(args ...interface{})  { l.logger.Warn(fmt.Sprint(args...)) }
func (l *asynqLogger) Error(args ...interface{}) { l.logger.Error(fmt.Sprint(args...)) }

func (l *asynqLogger) Fatal(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
	panic(fmt.Sprint(args...))
}
