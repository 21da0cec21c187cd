package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kirillkom/invoice-dashboard/internal/bootstrap"
	"github.com/kirillkom/invoice-dashboard/internal/config"
	"github.com/kirillkom/invoice-dashboard/internal/observability/logging"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "invoicectl: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// cliEnv is shared by all subcommands. The app is opened lazily so --help and
// flag errors never touch the database.
type cliEnv struct {
	cfg    config.Config
	logger *slog.Logger
	app    *bootstrap.App
}

func (e *cliEnv) open(ctx context.Context) (*bootstrap.App, error) {
	if e.app != nil {
		return e.app, nil
	}
	app, err := bootstrap.New(ctx, e.cfg, e.logger)
	if err != nil {
		return nil, err
	}
	e.app = app
	return app, nil
}

func (e *cliEnv) close() {
	if e.app != nil {
		e.app.Close()
	}
}

func newRootCmd() *cobra.Command {
	env := &cliEnv{}
	var logLevel string

	root := &cobra.Command{
		Use:   "invoicectl",
		Short: "Operate the invoice dashboard from the command line",
		Long: `invoicectl talks to the same database, storage and extraction webhook as
the API. Configuration comes from the environment, .env and CONFIG_FILE.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			env.cfg = config.Load()
			if logLevel == "" {
				logLevel = env.cfg.LogLevel
			}
			env.logger = logging.New(cmd.ErrOrStderr(), "invoicectl", logLevel, "text")
			slog.SetDefault(env.logger)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			env.close()
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		newUploadCmd(env),
		newReprocessCmd(env),
		newStatsCmd(env),
		newListCmd(env),
	)
	return root
}
