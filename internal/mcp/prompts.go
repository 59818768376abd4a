package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("review_migration",
		mcp.WithPromptDescription("Check a migration step against both documents before running it"),
		mcp.WithArgument("step",
			mcp.ArgumentDescription("Step to review (see list_steps)"),
			mcp.RequiredArgument(),
		),
	), s.handleReviewPrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("diagnose_run",
		mcp.WithPromptDescription("Explain why a migration run failed and what to fix in the documents"),
		mcp.WithArgument("runId",
			mcp.ArgumentDescription("Run ID (see list_runs)"),
			mcp.RequiredArgument(),
		),
	), s.handleDiagnosePrompt)
}

func (s *Server) handleReviewPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	step := req.Params.Arguments["step"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Review migration step %s", step),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Review the migration step "%s" before it runs. Follow these steps:

1. Use list_steps to find its target table, sync mode and source tables
2. Use list_columns on the target document for the target table, and on the source document for each source table
3. Use preview_step to see the rows it would write
4. Report any target column the preview leaves empty that has data in the source, and any reference the preview could not resolve

Do not call run_migration.`, step),
				},
			},
		},
	}, nil
}

func (s *Server) handleDiagnosePrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	runID := req.Params.Arguments["runId"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Diagnose migration run %s", runID),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Diagnose migration run "%s". Follow these steps:

1. Use get_run to find the failed step, its phase (clear, fetch, transform, write or cleanup) and its error
2. If the error names a missing reference, use peek_records on the target table it names to look for near matches (case, accents, trailing spaces)
3. Use preview_step on the failed step to reproduce the error
4. Explain which record must change, in which document, for the next run to succeed`, runID),
				},
			},
		},
	}, nil
}
