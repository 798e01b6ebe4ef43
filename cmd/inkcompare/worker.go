package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adverant/nexus/inkcompare/internal/queue"
)

func newWorkerCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume queued comparisons from Redis",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if a.cfg.RedisURL == "" {
				return fmt.Errorf("REDIS_URL is required for the worker")
			}

			rt, err := a.newServices(ctx)
			if err != nil {
				return err
			}
			defer rt.Close(a.logger)

			consumer, err := queue.NewConsumer(&queue.ConsumerConfig{
				RedisURL:    a.cfg.RedisURL,
				QueueName:   a.cfg.QueueName,
				Concurrency: a.cfg.WorkerConcurrency,
				Processor:   rt.processor,
			})
			if err != nil {
				return fmt.Errorf("failed to initialize queue consumer: %w", err)
			}

			if err := consumer.Start(); err != nil {
				return err
			}
			a.logger.Info("Worker ready, waiting for comparisons",
				"queue", a.cfg.QueueName, "concurrency", a.cfg.WorkerConcurrency)

			<-ctx.Done()
			a.logger.Info("Received shutdown signal, draining in-flight comparisons...")
			consumer.Stop()
			return nil
		},
	}
}
