package grist

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"gristmigrate/internal/domain"
)

// ── Tables & columns ───────────────────────────────────────

// ListTables returns the tables of the document.
func (c *Client) ListTables(ctx context.Context) ([]domain.Table, error) {
	var resp struct {
		Tables []domain.Table `json:"tables"`
	}
	if err := c.doJSON(ctx, VerbGet, c.docPath("/tables"), nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tables, nil
}

// ListColumns returns the columns of a table, in document order.
func (c *Client) ListColumns(ctx context.Context, table string) ([]domain.Column, error) {
	var resp struct {
		Columns []struct {
			ID     string `json:"id"`
			Fields struct {
				Label     string `json:"label"`
				Type      string `json:"type"`
				IsFormula bool   `json:"isFormula"`
			} `json:"fields"`
		} `json:"columns"`
	}
	endpoint := c.docPath("/tables/%s/columns", url.PathEscape(table))
	if err := c.doJSON(ctx, VerbGet, endpoint, nil, nil, &resp); err != nil {
		return nil, err
	}

	cols := make([]domain.Column, 0, len(resp.Columns))
	for _, col := range resp.Columns {
		cols = append(cols, domain.Column{
			ID:        col.ID,
			Label:     col.Fields.Label,
			Type:      col.Fields.Type,
			IsFormula: col.Fields.IsFormula,
		})
	}
	return cols, nil
}

// ── Records ────────────────────────────────────────────────

// ListRecords returns the records of a table, optionally narrowed by a
// server-side equality filter.
func (c *Client) ListRecords(ctx context.Context, table string, filter domain.Filter) ([]domain.Record, error) {
	var query url.Values
	if len(filter) > 0 {
		data, err := json.Marshal(filter)
		if err != nil {
			return nil, fmt.Errorf("marshal filter: %w", err)
		}
		query = url.Values{"filter": {string(data)}}
	}

	var resp struct {
		Records []domain.Record `json:"records"`
	}
	endpoint := c.docPath("/tables/%s/records", url.PathEscape(table))
	if err := c.doJSON(ctx, VerbGet, endpoint, query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

type recordFields struct {
	Fields domain.Fields `json:"fields"`
}

// CreateRecords inserts rows in one request and returns them with their new
// ids, in input order.
func (c *Client) CreateRecords(ctx context.Context, table string, rows []domain.Fields) ([]domain.Record, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	body := struct {
		Records []recordFields `json:"records"`
	}{Records: make([]recordFields, len(rows))}
	for i, row := range rows {
		body.Records[i] = recordFields{Fields: row}
	}

	var resp struct {
		Records []struct {
			ID int64 `json:"id"`
		} `json:"records"`
	}
	endpoint := c.docPath("/tables/%s/records", url.PathEscape(table))
	if err := c.doJSON(ctx, VerbPost, endpoint, nil, body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Records) != len(rows) {
		return nil, fmt.Errorf("create records in %s: sent %d rows, got %d ids", table, len(rows), len(resp.Records))
	}

	created := make([]domain.Record, len(rows))
	for i, r := range resp.Records {
		created[i] = domain.Record{ID: r.ID, Fields: rows[i]}
	}
	return created, nil
}

// DeleteRecords removes rows by id.
func (c *Client) DeleteRecords(ctx context.Context, table string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	endpoint := c.docPath("/tables/%s/data/delete", url.PathEscape(table))
	return c.doJSON(ctx, VerbPost, endpoint, nil, ids, nil)
}

// DeleteAllRecords fetches every id of the table, deletes them, and returns
// how many rows were removed.
func (c *Client) DeleteAllRecords(ctx context.Context, table string) (int, error) {
	records, err := c.ListRecords(ctx, table, nil)
	if err != nil {
		return 0, err
	}
	ids := make([]int64, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	if err := c.DeleteRecords(ctx, table, ids); err != nil {
		return 0, err
	}
	return len(ids), nil
}
