package objectstore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"auditflow/internal/ports"
)

// HTTPTransfer PUTs file bytes to a presigned URL.
type HTTPTransfer struct {
	Client *http.Client
}

var _ ports.Transferer = HTTPTransfer{}

func (t HTTPTransfer) Transfer(ctx context.Context, uploadURL string, body io.Reader, size int64, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, body)
	if err != nil {
		return err
	}
	if size >= 0 {
		req.ContentLength = size
		if size == 0 {
			req.Body = http.NoBody
		}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("upload rejected: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	return nil
}
