package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"gristmigrate/internal/storage"
)

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recent runs, or show one run step by step",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := opts.requireHistory()
			if err != nil {
				return err
			}
			defer db.Close()
			runs := storage.NewRunStore(db)

			if len(args) == 1 {
				run, err := runs.GetRun(args[0])
				if errors.Is(err, storage.ErrRunNotFound) {
					return WrapExitError(ExitCommandError, "history", err)
				}
				if err != nil {
					return err
				}
				return emit(cmd, run, func(w io.Writer) { printRun(w, run) })
			}

			list, err := runs.ListRuns(limit)
			if err != nil {
				return err
			}
			return emit(cmd, list, func(w io.Writer) { printRuns(w, list) })
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs")
	return cmd
}

func printRuns(w io.Writer, runs []storage.Run) {
	rows := make([][]string, len(runs))
	for i, r := range runs {
		took := ""
		if r.FinishedAt != nil {
			took = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		rows[i] = []string{
			r.ID, r.StartedAt.Local().Format(time.DateTime), r.Trigger, r.Status,
			strconv.Itoa(r.RowsWritten), took,
		}
	}
	printTable(w, []string{"Run", "Started", "Trigger", "Status", "Written", "Took"}, rows)
}

func printRun(w io.Writer, run *storage.Run) {
	fmt.Fprintf(w, "run %s (%s)\nplan %s: %s -> %s\nstarted %s, status %s\n\n",
		run.ID, run.Trigger, run.Plan, run.SourceDoc, run.TargetDoc,
		run.StartedAt.Local().Format(time.DateTime), run.Status)

	rows := make([][]string, len(run.StepRuns))
	for i, s := range run.StepRuns {
		rows[i] = []string{
			s.Step, s.Table, s.Mode, s.Status,
			strconv.Itoa(s.RowsDeleted), strconv.Itoa(s.RowsRead), strconv.Itoa(s.RowsWritten),
			s.Duration.String(),
		}
	}
	printTable(w, []string{"Step", "Table", "Mode", "Status", "Deleted", "Read", "Written", "Took"}, rows)
	if run.Error != "" {
		fmt.Fprintf(w, "\nerror: %s\n", run.Error)
	}
}
