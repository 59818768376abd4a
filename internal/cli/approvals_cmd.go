package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"gristmigrate/internal/storage"
)

func newApprovalsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approvals",
		Short: "List and resolve pending MCP actions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, closeFn, err := openApprovals(opts)
			if err != nil {
				return err
			}
			defer closeFn()

			pending, err := store.Pending()
			if err != nil {
				return err
			}
			return emit(cmd, pending, func(w io.Writer) {
				rows := make([][]string, len(pending))
				for i, a := range pending {
					rows[i] = []string{a.ID, a.Tool, a.CreatedAt.Local().Format(time.DateTime), a.Description}
				}
				printTable(w, []string{"ID", "Tool", "Requested", "Description"}, rows)
			})
		},
	}

	cmd.AddCommand(newResolveCmd(opts, "approve", "Approve a pending action", true))
	cmd.AddCommand(newResolveCmd(opts, "reject", "Reject a pending action", false))
	return cmd
}

func newResolveCmd(opts *rootOptions, use, short string, approved bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeFn, err := openApprovals(opts)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := store.Resolve(args[0], approved); err != nil {
				if errors.Is(err, storage.ErrApprovalNotFound) {
					return WrapExitError(ExitCommandError, use, err)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %sd\n", args[0], use)
			return nil
		},
	}
}

func openApprovals(opts *rootOptions) (*storage.ApprovalStore, func(), error) {
	db, err := opts.requireHistory()
	if err != nil {
		return nil, nil, err
	}
	return storage.NewApprovalStore(db), func() { db.Close() }, nil
}
