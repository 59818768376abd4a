package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

const documentArgHelp = `Which document to read: "source" or "target" (default "target")`

func (s *Server) registerDocumentTools() {
	s.mcp.AddTool(mcp.NewTool("list_tables",
		mcp.WithDescription("List the tables of the source or target Grist document"),
		mcp.WithString("document", mcp.Description(documentArgHelp)),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleListTables)

	s.mcp.AddTool(mcp.NewTool("list_columns",
		mcp.WithDescription("List the columns of a table, with their Grist types and whether they are formulas"),
		mcp.WithString("document", mcp.Description(documentArgHelp)),
		mcp.WithString("table", mcp.Description("Table id"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleListColumns)

	s.mcp.AddTool(mcp.NewTool("peek_records",
		mcp.WithDescription("Return the first records of a table"),
		mcp.WithString("document", mcp.Description(documentArgHelp)),
		mcp.WithString("table", mcp.Description("Table id"), mcp.Required()),
		mcp.WithNumber("limit", mcp.Description("Maximum number of records (default 10)")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handlePeekRecords)
}

func (s *Server) handleListTables(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, name, err := s.catalog(req)
	if err != nil {
		return nil, err
	}
	tables, err := doc.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("list %s tables: %w", name, err)
	}
	return jsonResult(tables)
}

func (s *Server) handleListColumns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, name, err := s.catalog(req)
	if err != nil {
		return nil, err
	}
	table := req.GetString("table", "")
	if table == "" {
		return nil, fmt.Errorf("table is required")
	}
	cols, err := doc.ListColumns(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("list %s columns of %s: %w", name, table, err)
	}
	return jsonResult(cols)
}

func (s *Server) handlePeekRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, name, err := s.catalog(req)
	if err != nil {
		return nil, err
	}
	table := req.GetString("table", "")
	if table == "" {
		return nil, fmt.Errorf("table is required")
	}
	limit := intArg(req.GetArguments(), "limit", 10)

	recs, err := doc.ListRecords(ctx, table, nil)
	if err != nil {
		return nil, fmt.Errorf("read %s table %s: %w", name, table, err)
	}
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return jsonResult(recs)
}
