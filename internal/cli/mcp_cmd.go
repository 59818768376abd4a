package cli

import (
	"github.com/spf13/cobra"

	mcpserver "gristmigrate/internal/mcp"
	"gristmigrate/internal/service"
	"gristmigrate/internal/storage"
)

func newMCPCmd(opts *rootOptions) *cobra.Command {
	var autoApprove bool

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the migration tools over MCP on stdin/stdout",
		Long: `Start a Model Context Protocol server on stdin/stdout so an AI agent can
inspect both documents, preview steps and run the migration.

run_migration waits for an operator decision recorded in the history
database (see "gristmigrate approvals"), unless --yes is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, closeFn, err := opts.newService()
			if err != nil {
				return err
			}
			defer closeFn()
			defer svc.Stop()

			source, target, err := opts.openDocuments()
			if err != nil {
				return err
			}

			var approvals *storage.ApprovalStore
			db, err := opts.openHistory()
			if err != nil {
				return err
			}
			if db != nil {
				defer db.Close()
				approvals = storage.NewApprovalStore(db)
			}
			queue := mcpserver.NewApprovalQueue(approvals, service.LogEmitter{Log: opts.log})
			queue.AutoApprove = autoApprove

			srv := mcpserver.New(mcpserver.Deps{
				Migration: svc,
				Source:    source,
				Target:    target,
				Approval:  queue,
				Log:       opts.log,
				Version:   version,
			})
			return srv.ServeStdio()
		},
	}

	cmd.Flags().BoolVarP(&autoApprove, "yes", "y", false, "Approve run_migration calls without asking")
	return cmd
}
