package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"gristmigrate/internal/etl"
	"gristmigrate/internal/service"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate [step...]",
		Short: "Run the migration plan",
		Long: `Run every step of the plan in order, or only the named steps.

Each step clears its target table (unless it appends), fetches and transforms
the source records, writes them, and optionally removes unused attachments.
The run stops at the first failing step.

Example:
  gristmigrate migrate
  gristmigrate migrate operateurs solutions`,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := opts.newService()
			if err != nil {
				return err
			}
			defer closeFn()

			steps := args
			if len(steps) == 0 {
				steps = opts.cfg.Steps
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			result, err := svc.Run(ctx, service.TriggerManual, steps...)
			if result == nil {
				return WrapExitError(ExitCommandError, "migration not started", err)
			}
			if perr := emit(cmd, result, func(w io.Writer) { printRunResult(w, result) }); perr != nil {
				return perr
			}
			if err != nil {
				return WrapExitError(ExitFailure, "migration failed", err)
			}
			return nil
		},
	}
}

func printRunResult(w io.Writer, res *etl.RunResult) {
	rows := make([][]string, 0, len(res.Steps))
	for _, s := range res.Steps {
		rows = append(rows, []string{
			s.Step, s.Table, string(s.Mode), s.Status,
			strconv.Itoa(s.RowsDeleted), strconv.Itoa(s.RowsRead), strconv.Itoa(s.RowsWritten),
			s.Duration.Round(time.Millisecond).String(),
		})
	}
	printTable(w, []string{"Step", "Table", "Mode", "Status", "Deleted", "Read", "Written", "Took"}, rows)
	fmt.Fprintf(w, "\n%s: %s, %d rows written in %s\n", res.Plan, res.Status, res.RowsWritten(), res.Duration.Round(time.Millisecond))
	if res.Error != "" {
		fmt.Fprintf(w, "error: %s\n", res.Error)
	}
}
