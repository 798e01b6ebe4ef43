package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/adverant/nexus/inkcompare/internal/config"
	"github.com/adverant/nexus/inkcompare/internal/logging"
	"github.com/adverant/nexus/inkcompare/internal/processor"
	"github.com/adverant/nexus/inkcompare/internal/storage"
)

// app carries state prepared by the root command for its subcommands
type app struct {
	envFile string
	cfg     *config.Config
	logger  *logging.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "inkcompare",
		Short: "Compare the text and handwriting of two PDF documents",
		Long: `inkcompare rasterizes two PDFs, recognizes every page, and scores how
similar the documents are in content and in handwriting. It also flags
regions that deviate from the rest of their document and pages whose
handwriting changes noticeably from the previous page.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// .env is optional
			_ = godotenv.Load(a.envFile)

			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			logging.Setup(os.Stderr, cfg.LogFormat, cfg.LogLevel)

			a.cfg = cfg
			a.logger = logging.NewLogger("inkcompare")
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "environment file to load before reading configuration")

	cmd.AddCommand(
		newServeCmd(a),
		newWorkerCmd(a),
		newCompareCmd(a),
	)

	return cmd
}

// services is the storage layer plus the processor built on it
type services struct {
	storage   *storage.Manager
	processor *processor.ComparisonProcessor
	cleanup   func() error
}

func (a *app) newServices(ctx context.Context) (*services, error) {
	mgr, err := storage.NewManager(a.cfg)
	if err != nil {
		return nil, err
	}

	proc, cleanup, err := processor.NewFromConfig(ctx, a.cfg, mgr)
	if err != nil {
		mgr.Close()
		return nil, fmt.Errorf("failed to initialize comparison processor: %w", err)
	}

	return &services{storage: mgr, processor: proc, cleanup: cleanup}, nil
}

func (r *services) Close(logger *logging.Logger) {
	if err := r.cleanup(); err != nil {
		logger.Warn("Error releasing processor clients", "error", err)
	}
	if err := r.storage.Close(); err != nil {
		logger.Warn("Error closing storage", "error", err)
	}
}
