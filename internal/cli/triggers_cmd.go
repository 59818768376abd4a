package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"gristmigrate/internal/config"
)

// shutdownGrace bounds how long a stopping daemon waits for the current run.
const shutdownGrace = 30 * time.Second

func newScheduleCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule [cron-expression]",
		Short: "Run the migration on a cron schedule until interrupted",
		Long: `Run the whole plan on a cron schedule. The expression defaults to the
schedule key of the config file or ` + config.EnvSchedule + `.
Ticks that find a run still in progress are skipped.

Example:
  gristmigrate schedule "0 3 * * *"
  gristmigrate schedule "@every 6h"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			expr := opts.cfg.Schedule
			if len(args) == 1 {
				expr = args[0]
			}
			if expr == "" {
				return WrapExitError(ExitCommandError, "no schedule", errors.New("pass a cron expression or set "+config.EnvSchedule))
			}

			svc, closeFn, err := opts.newService()
			if err != nil {
				return err
			}
			defer closeFn()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			if err := svc.Schedule(ctx, expr); err != nil {
				return WrapExitError(ExitCommandError, "schedule", err)
			}
			<-ctx.Done()
			return shutdown(opts, svc.Stop, svc.WaitRunning)
		},
	}
}

func newWatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <file>",
		Short: "Run the migration each time a file changes",
		Long: `Watch a file (for example an export dropped by another job) and run the
whole plan after each change, debounced. Runs until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := opts.newService()
			if err != nil {
				return err
			}
			defer closeFn()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			if err := svc.Watch(ctx, args[0]); err != nil {
				return WrapExitError(ExitCommandError, "watch", err)
			}
			<-ctx.Done()
			return shutdown(opts, svc.Stop, svc.WaitRunning)
		},
	}
}

// shutdown stops the triggers and waits a bounded time for a run in progress.
func shutdown(opts *rootOptions, stop func(), wait func(context.Context)) error {
	opts.log.Info().Msg("shutting down")
	stop()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	wait(ctx)
	if ctx.Err() != nil {
		opts.log.Warn().Msg("a run was still in progress at shutdown")
	}
	return nil
}
