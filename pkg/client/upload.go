package client

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/Sternrassler/gphotos-client/pkg/ratelimit"
)

// Upload sends raw media bytes and returns the upload token to pass to
// BatchCreateMediaItems. name is used to derive the MIME type.
func (c *Client) Upload(ctx context.Context, name string, r io.Reader) (string, error) {
	if name == "" {
		return "", invalidf("file name is required")
	}

	body, err := ratelimit.NewBandwidthReader(ctx, r, c.config.UploadBytesPerSecond)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, body)
	if err != nil {
		return "", fmt.Errorf("create upload request: %w", err)
	}

	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Accept", "text/plain")
	req.Header.Set("X-Goog-Upload-Content-Type", mimeType)
	req.Header.Set("X-Goog-Upload-File-Name", filepath.Base(name))
	req.Header.Set("X-Goog-Upload-Protocol", "raw")

	resp, err := c.Do(req, "uploads")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	token, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read upload token: %w", err)
	}

	c.logger.Debug().
		Str("file", filepath.Base(name)).
		Str("mime_type", mimeType).
		Msg("Uploaded media bytes")

	return strings.TrimSpace(string(token)), nil
}

// UploadFile uploads the file at path.
func (c *Client) UploadFile(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open media file: %w", err)
	}
	defer f.Close()

	return c.Upload(ctx, path, f)
}
