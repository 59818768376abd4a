package cli

import (
	"io"
	"strings"

	"github.com/spf13/cobra"

	"gristmigrate/internal/etl"
)

func newStepsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "steps",
		Short: "List the steps of the plan in execution order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			plan, err := opts.loadPlan()
			if err != nil {
				return err
			}
			return emit(cmd, plan.Steps, func(w io.Writer) { printSteps(w, plan) })
		},
	}
}

func printSteps(w io.Writer, plan *etl.Plan) {
	rows := make([][]string, 0, len(plan.Steps))
	for _, st := range plan.Steps {
		sources := make([]string, len(st.Sources))
		for i, q := range st.Sources {
			sources[i] = q.Table
		}
		cleanup := ""
		if st.Cleanup {
			cleanup = "yes"
		}
		rows = append(rows, []string{
			st.Name, st.Table, string(st.Mode), strings.Join(sources, ", "),
			strings.Join(st.DependsOn, ", "), cleanup,
		})
	}
	printTable(w, []string{"Step", "Table", "Mode", "Sources", "Depends on", "Cleanup"}, rows)
}
