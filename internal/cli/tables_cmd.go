package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"gristmigrate/internal/domain"
	"gristmigrate/internal/etl"
)

// pickDocument returns the source or target document per the --document flag.
func pickDocument(opts *rootOptions, which string) (etl.Document, error) {
	source, target, err := opts.openDocuments()
	if err != nil {
		return nil, err
	}
	switch which {
	case "source":
		return source, nil
	case "target":
		return target, nil
	default:
		return nil, WrapExitError(ExitCommandError, "invalid flags", fmt.Errorf("--document must be source or target, got %q", which))
	}
}

func newTablesCmd(opts *rootOptions) *cobra.Command {
	var which string

	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List the tables of a document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			doc, err := pickDocument(opts, which)
			if err != nil {
				return err
			}
			tables, err := doc.ListTables(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "list tables", err)
			}
			return emit(cmd, tables, func(w io.Writer) {
				rows := make([][]string, len(tables))
				for i, t := range tables {
					rows[i] = []string{t.ID}
				}
				printTable(w, []string{"Table"}, rows)
			})
		},
	}

	cmd.Flags().StringVarP(&which, "document", "d", "target", "Document to inspect (source, target)")
	return cmd
}

func newColumnsCmd(opts *rootOptions) *cobra.Command {
	var which string

	cmd := &cobra.Command{
		Use:   "columns <table>",
		Short: "List the columns of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := pickDocument(opts, which)
			if err != nil {
				return err
			}
			cols, err := doc.ListColumns(cmd.Context(), args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "list columns", err)
			}
			return emit(cmd, cols, func(w io.Writer) { printColumns(w, cols) })
		},
	}

	cmd.Flags().StringVarP(&which, "document", "d", "target", "Document to inspect (source, target)")
	return cmd
}

func printColumns(w io.Writer, cols []domain.Column) {
	rows := make([][]string, len(cols))
	for i, c := range cols {
		rows[i] = []string{c.ID, c.Label, c.Type, strconv.FormatBool(c.IsFormula)}
	}
	printTable(w, []string{"Column", "Label", "Type", "Formula"}, rows)
}
