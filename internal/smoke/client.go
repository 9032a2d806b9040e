package smoke

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/okian/talentlens/pkg/logger"
)

// client wraps http.Client and decodes bodies with gjson.
type client struct {
	http    *http.Client
	baseURL string
	log     logger.Logger
	verbose bool
}

func newClient(baseURL string, timeout time.Duration, log logger.Logger, verbose bool) *client {
	return &client{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log,
		verbose: verbose,
	}
}

// do sends a request and returns the status and parsed body.
func (c *client) do(ctx context.Context, method, path string, body any) (int, gjson.Result, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, gjson.Result{}, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, gjson.Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, gjson.Result{}, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, gjson.Result{}, fmt.Errorf("failed to read response: %w", err)
	}
	if c.verbose {
		c.log.Debug(ctx, "request done",
			logger.String("method", method),
			logger.String("path", path),
			logger.Int("status", resp.StatusCode),
		)
	}
	return resp.StatusCode, gjson.ParseBytes(data), nil
}

// expect is do plus a status check.
func (c *client) expect(ctx context.Context, want int, method, path string, body any) (gjson.Result, error) {
	status, doc, err := c.do(ctx, method, path, body)
	if err != nil {
		return doc, err
	}
	if status != want {
		return doc, fmt.Errorf("%s %s: status %d, want %d: %s", method, path, status, want, doc.Get("message").String())
	}
	return doc, nil
}
