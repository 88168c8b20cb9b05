package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"

	"github.com/greater-social/greater/internal/core"
)

// UploadMedia uploads a file through the v2 media endpoint.
func (c *Client) UploadMedia(ctx context.Context, filename string, content io.Reader, description string) (*core.MediaAttachment, error) {
	if content == nil {
		return nil, errors.New("media content is required")
	}
	form := &Form{
		Fields: map[string]string{},
		Files:  []FormFile{{Field: "file", Filename: filepath.Base(filename), Content: content}},
	}
	if description != "" {
		form.Fields["description"] = description
	}

	var media core.MediaAttachment
	if err := c.sendJSON(ctx, http.MethodPost, "/api/v2/media", &RequestOptions{Form: form}, "media", &media); err != nil {
		return nil, err
	}
	return &media, nil
}
