package main

import (
	"github.com/spf13/cobra"

	"github.com/adverant/nexus/inkcompare/internal/api"
	"github.com/adverant/nexus/inkcompare/internal/queue"
	"github.com/adverant/nexus/inkcompare/internal/report"
)

func newServeCmd(a *app) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Example: `  # Start on PORT from the environment (default 8080)
  inkcompare serve

  # Start on a custom port
  inkcompare serve --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if port == "" {
				port = a.cfg.Port
			}

			rt, err := a.newServices(ctx)
			if err != nil {
				return err
			}
			defer rt.Close(a.logger)

			reports, err := report.NewRenderer(a.cfg.ReportsDir)
			if err != nil {
				return err
			}

			scfg := &api.ServerConfig{
				Processor:   rt.processor,
				Reports:     reports,
				MaxFileSize: a.cfg.MaxFileSize,
			}
			if rt.storage.History != nil {
				scfg.History = rt.storage.History
			}

			if a.cfg.RedisURL != "" {
				producer, err := queue.NewProducer(&queue.ProducerConfig{
					RedisURL:    a.cfg.RedisURL,
					QueueName:   a.cfg.QueueName,
					TaskTimeout: a.cfg.ProcessingTimeoutDuration(),
				})
				if err != nil {
					a.logger.Warn("Async comparisons disabled", "error", err)
				} else {
					defer producer.Close()
					scfg.Queue = producer
				}
			} else {
				a.logger.Info("REDIS_URL not set, async comparisons disabled")
			}

			server, err := api.NewServer(scfg)
			if err != nil {
				return err
			}
			return server.Run(ctx, ":"+port)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "port to listen on (overrides PORT)")

	return cmd
}
