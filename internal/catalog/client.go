// Package catalog defines the remote catalog interface and its default
// JSON-over-HTTP implementation.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/starford/fehu/internal/apperr"
)

// Item is one catalog search result.
type Item struct {
	GroupKey      string `json:"group_key"`
	Creator       string `json:"creator"`
	Name          string `json:"name"`
	LatestVersion uint64 `json:"latest_version"`
	SizeBytes     int64  `json:"size_bytes"`
	Description   string `json:"description,omitempty"`
}

// Download describes where to fetch a concrete package version. Identifier
// is the exact identifier the catalog resolved the request to, so a
// ".latest" request comes back pinned to a concrete version.
type Download struct {
	Identifier string `json:"identifier"`
	URL        string `json:"url"`
	SizeBytes  int64  `json:"size_bytes"`
	SHA256     string `json:"sha256,omitempty"`
}

// Client is the narrow catalog interface the engine consumes. A lookup that
// the catalog cannot answer returns apperr.ErrIndeterminate; callers must
// never interpret that as "up to date".
type Client interface {
	// RemoteLatest returns the newest version the catalog offers for a group.
	RemoteLatest(ctx context.Context, groupKey string) (uint64, error)
	// ResolveDownload resolves an identifier string to a download source.
	ResolveDownload(ctx context.Context, rawIdentifier string) (Download, error)
	// Search queries the catalog by free text.
	Search(ctx context.Context, query string, limit int) ([]Item, error)
}

// HTTPClient implements Client against a JSON HTTP catalog service.
type HTTPClient struct {
	base string
	http *http.Client
}

// NewHTTPClient creates a catalog client for the given base URL.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		base: baseURL,
		http: &http.Client{Timeout: timeout},
	}
}

// RemoteLatest implements Client.
func (c *HTTPClient) RemoteLatest(ctx context.Context, groupKey string) (uint64, error) {
	var body struct {
		Version uint64 `json:"version"`
	}
	endpoint := c.base + "/packages/" + url.PathEscape(groupKey) + "/latest"
	if err := c.getJSON(ctx, endpoint, &body); err != nil {
		return 0, err
	}
	return body.Version, nil
}

// ResolveDownload implements Client.
func (c *HTTPClient) ResolveDownload(ctx context.Context, rawIdentifier string) (Download, error) {
	var body Download
	endpoint := c.base + "/packages/" + url.PathEscape(rawIdentifier) + "/download"
	if err := c.getJSON(ctx, endpoint, &body); err != nil {
		return Download{}, err
	}
	return body, nil
}

// Search implements Client.
func (c *HTTPClient) Search(ctx context.Context, query string, limit int) ([]Item, error) {
	var body struct {
		Items []Item `json:"items"`
	}
	endpoint := c.base + "/search?q=" + url.QueryEscape(query) + "&limit=" + strconv.Itoa(limit)
	if err := c.getJSON(ctx, endpoint, &body); err != nil {
		return nil, err
	}
	return body.Items, nil
}

// getJSON performs a GET and decodes the JSON response. Network failures
// and non-200 responses map to apperr.ErrIndeterminate so resolution code
// can distinguish "catalog cannot answer" from "no update".
func (c *HTTPClient) getJSON(ctx context.Context, endpoint string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("catalog: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("catalog: %s: %w", endpoint, apperr.ErrIndeterminate)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("catalog: %s: %w", endpoint, apperr.ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("catalog: %s: status %d: %w", endpoint, resp.StatusCode, apperr.ErrIndeterminate)
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("catalog: decode %s: %w", endpoint, apperr.ErrIndeterminate)
	}
	return nil
}
