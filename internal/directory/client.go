// Package directory implements the HTTP client for the corporate directory
// service. It satisfies core.DirectoryClient: batch, read-only, idempotent
// lookups of users and locations.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/fleetops/assetpipe/internal/core"
)

// Client talks to the directory service over JSON/HTTP.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a directory client. timeout bounds each request; the
// resolver layers its own retry policy on top.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 5 * time.Second,
			},
		},
	}
}

type lookupRequest struct {
	Names []string `json:"names"`
}

type userLookupResponse struct {
	Users map[string]*core.DirectoryUser `json:"users"`
}

type locationLookupResponse struct {
	Locations map[string]*core.DirectoryLocation `json:"locations"`
}

// LookupUsers batch-resolves usernames. Every requested name appears in the
// returned map; names the directory does not know map to nil.
func (c *Client) LookupUsers(ctx context.Context, names []string) (map[string]*core.DirectoryUser, error) {
	var resp userLookupResponse
	if err := c.post(ctx, "/api/v1/users/lookup", lookupRequest{Names: names}, &resp); err != nil {
		return nil, err
	}

	out := make(map[string]*core.DirectoryUser, len(names))
	for _, name := range names {
		out[name] = resp.Users[name]
	}
	return out, nil
}

// LookupLocations batch-resolves location names by exact name match.
func (c *Client) LookupLocations(ctx context.Context, names []string) (map[string]*core.DirectoryLocation, error) {
	var resp locationLookupResponse
	if err := c.post(ctx, "/api/v1/locations/lookup", lookupRequest{Names: names}, &resp); err != nil {
		return nil, err
	}

	out := make(map[string]*core.DirectoryLocation, len(names))
	for _, name := range names {
		out[name] = resp.Locations[name]
	}
	return out, nil
}

// post sends one JSON request and decodes the JSON response into out.
func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("directory %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Read a short prefix of the body for the error message.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("directory %s: status %d: %s", path, resp.StatusCode, snippet)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("directory %s: decode response: %w", path, err)
	}
	return nil
}
