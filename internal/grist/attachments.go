package grist

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"

	"gristmigrate/internal/domain"
)

// UploadAttachments uploads files in a single multipart request and returns
// one attachment id per file, in input order.
func (c *Client) UploadAttachments(ctx context.Context, files []domain.Attachment) ([]int64, error) {
	if len(files) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		part, err := mw.CreateFormFile("upload", f.FileName)
		if err != nil {
			return nil, fmt.Errorf("create form file %q: %w", f.FileName, err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, fmt.Errorf("write form file %q: %w", f.FileName, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	resp, err := c.Do(ctx, VerbPost, c.docPath("/attachments"), nil, &buf, mw.FormDataContentType())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var ids []int64
	if err := decodeJSON(resp.Body, &ids); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	if len(ids) != len(files) {
		return nil, fmt.Errorf("uploaded %d files, got %d ids", len(files), len(ids))
	}
	return ids, nil
}

// UploadAttachment uploads a single file.
func (c *Client) UploadAttachment(ctx context.Context, data []byte, filename string) (int64, error) {
	ids, err := c.UploadAttachments(ctx, []domain.Attachment{{FileName: filename, Data: data}})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// DownloadAttachment fetches an attachment's metadata and content.
func (c *Client) DownloadAttachment(ctx context.Context, id int64) (*domain.Attachment, error) {
	var meta struct {
		FileName string `json:"fileName"`
	}
	if err := c.doJSON(ctx, VerbGet, c.docPath("/attachments/%d", id), nil, nil, &meta); err != nil {
		return nil, err
	}

	resp, err := c.Do(ctx, VerbGet, c.docPath("/attachments/%d/download", id), nil, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read attachment %d: %w", id, err)
	}
	return &domain.Attachment{ID: id, FileName: meta.FileName, Data: data}, nil
}

// DeleteUnusedAttachments purges attachments no record references anymore.
func (c *Client) DeleteUnusedAttachments(ctx context.Context) error {
	return c.doJSON(ctx, VerbPost, c.docPath("/attachments/removeUnused"), nil, nil, nil)
}
