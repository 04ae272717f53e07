package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/54b3r/pdfrag-go/internal/version"
)

var userAgent = "pdfrag-go/" + version.Version

// maxResponseBytes bounds how much of an embedding response is read.
const maxResponseBytes = 64 << 20

// postJSON sends body as JSON to url and returns the raw response body and
// status code. Non-2xx responses are not treated as errors here so callers
// can extract backend-specific error messages.
func postJSON(ctx context.Context, client *http.Client, url string, body any, header http.Header) ([]byte, int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	return raw, resp.StatusCode, nil
}

// statusError formats a non-2xx response. The status code stays in the text
// so provider.Classify can recognise 429 and 401/403.
func statusError(code int, detail string) error {
	detail = strings.TrimSpace(detail)
	if detail == "" {
		return fmt.Errorf("HTTP %d %s", code, http.StatusText(code))
	}
	return fmt.Errorf("HTTP %d: %s", code, detail)
}

func ok(code int) bool { return code >= 200 && code < 300 }
