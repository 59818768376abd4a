package cli

import (
	"io"
	"sort"

	"github.com/spf13/cobra"

	"gristmigrate/internal/domain"
)

func newPreviewCmd(opts *rootOptions) *cobra.Command {
	var maxRows int

	cmd := &cobra.Command{
		Use:   "preview <step>",
		Short: "Show the rows a step would write, without writing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := opts.newService()
			if err != nil {
				return err
			}
			defer closeFn()

			rows, err := svc.Preview(cmd.Context(), args[0], maxRows)
			if err != nil {
				return WrapExitError(ExitCommandError, "preview "+args[0], err)
			}
			return emit(cmd, rows, func(w io.Writer) { printFields(w, rows) })
		},
	}

	cmd.Flags().IntVarP(&maxRows, "max-rows", "n", 10, "Maximum number of rows")
	return cmd
}

// printFields renders field sets with one column per field, sorted by name.
func printFields(w io.Writer, rows []domain.Fields) {
	seen := map[string]bool{}
	var header []string
	for _, r := range rows {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				header = append(header, k)
			}
		}
	}
	sort.Strings(header)

	out := make([][]string, len(rows))
	for i, r := range rows {
		line := make([]string, len(header))
		for j, k := range header {
			line[j] = r.Get(k).String()
		}
		out[i] = line
	}
	printTable(w, header, out)
}
