// Package github provides the GitHub REST operations exposed to guest code.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/crypto-ninja/mcp-server-for-Github-sub000/pkg/credentials"
	"github.com/crypto-ninja/mcp-server-for-Github-sub000/pkg/operations"
)

// Client issues authenticated requests against the GitHub REST API.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any, cred credentials.Credential) (json.RawMessage, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("github: encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("github: creating request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if cred.Token != "" {
		req.Header.Set("Authorization", "Bearer "+cred.Token)
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, operations.Errorf(operations.ErrUpstream, "github: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, operations.Errorf(operations.ErrUpstream, "github: reading response: %v", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, operations.Errorf(operations.ErrUnauthorized, "github: %s %s: %s", method, path, resp.Status)
	case resp.StatusCode >= 400:
		return nil, operations.Errorf(operations.ErrUpstream, "github: %s %s: %s: %s", method, path, resp.Status, firstLine(data))
	}

	if len(data) == 0 {
		data = []byte("null")
	}
	return json.RawMessage(data), nil
}

func firstLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

func stringArg(args map[string]any, key string) (string, *operations.OpError) {
	v, ok := args[key]
	if !ok {
		return "", operations.Errorf(operations.ErrInvalidArguments, "missing argument %q", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", operations.Errorf(operations.ErrInvalidArguments, "argument %q must be a non-empty string", key)
	}
	return s, nil
}
