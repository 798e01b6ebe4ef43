/**
 * inkcompare - PDF handwriting and text comparison
 *
 * Subcommands:
 * - serve:   HTTP API (synchronous comparisons, report and history lookup)
 * - worker:  asynq consumer for queued comparisons
 * - compare: one-shot comparison of two local PDFs, printed as JSON
 */

package main

import (
	"context"
	"os"
	"syscall"

	"github.com/charmbracelet/fang"
)

var version = "dev"

func main() {
	root := newRootCmd()

	if err := fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(version),
		fang.WithNotifySignal(os.Interrupt, syscall.SIGTERM),
	); err != nil {
		os.Exit(1)
	}
}
