// Package catalog provides the search and mutation adapters the batch
// executor talks to: an HTTP client for a live catalog and an in-memory
// catalog loaded from a YAML fixture.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/JonMunkholm/metascaler/internal/config"
	"github.com/JonMunkholm/metascaler/internal/core"
)

// StatusActive is the only asset status a search returns.
const StatusActive = "ACTIVE"

// DefaultPageSize is used when the configured page size is not positive.
const DefaultPageSize = 100

// maxErrorBody bounds how much of a failed response is kept for the error.
const maxErrorBody = 4 << 10

// Client talks to a catalog over HTTP/JSON.
type Client struct {
	baseURL  *url.URL
	apiKey   string
	pageSize int
	http     *http.Client
}

var _ core.Catalog = (*Client)(nil)

// NewClient creates a catalog client. Per-call deadlines come from the
// caller's context, so httpClient should not set its own Timeout. A nil
// httpClient means http.DefaultClient.
func NewClient(cfg config.CatalogConfig, httpClient *http.Client) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse catalog URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("catalog URL %q must be absolute", cfg.BaseURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Client{
		baseURL:  base,
		apiKey:   cfg.APIKey,
		pageSize: pageSize,
		http:     httpClient,
	}, nil
}

type searchRequest struct {
	Name       string   `json:"name"`
	Types      []string `json:"types,omitempty"`
	ActiveOnly bool     `json:"active_only"`
	From       int      `json:"from"`
	Size       int      `json:"size"`
}

// AssetHit is one search result.
type AssetHit struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Status string `json:"status,omitempty"`
}

type searchResponse struct {
	Total  int        `json:"total"`
	Assets []AssetHit `json:"assets"`
}

// FindByExactName pages through the search endpoint and returns the IDs of
// active assets whose name equals name exactly. The server-side match is not
// trusted to be case-sensitive, so every hit is re-checked. Paging stops on a
// short page, at the reported total, or when a page returns no asset not
// already seen.
func (c *Client) FindByExactName(ctx context.Context, name string, types []string) ([]string, error) {
	var ids []string
	seen := make(map[string]bool)
	for from := 0; ; {
		resp, err := c.searchPage(ctx, searchRequest{
			Name:       name,
			Types:      types,
			ActiveOnly: true,
			From:       from,
			Size:       c.pageSize,
		})
		if err != nil {
			return nil, err
		}

		fresh := 0
		for _, hit := range resp.Assets {
			if seen[hit.ID] {
				continue
			}
			seen[hit.ID] = true
			fresh++

			if hit.Name != name {
				continue
			}
			if hit.Status != "" && !strings.EqualFold(hit.Status, StatusActive) {
				continue
			}
			ids = append(ids, hit.ID)
		}

		from += len(resp.Assets)
		if fresh == 0 || len(resp.Assets) < c.pageSize || (resp.Total > 0 && from >= resp.Total) {
			return ids, nil
		}
	}
}

func (c *Client) searchPage(ctx context.Context, body searchRequest) (*searchResponse, error) {
	res, err := c.post(ctx, "/api/search", body)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		return nil, fmt.Errorf("search returned %s: %s", res.Status, readError(res.Body))
	}

	var out searchResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return &out, nil
}

// ApplyChangeSet submits a partial update for one asset. Failures are
// returned as *core.MutationError.
func (c *Client) ApplyChangeSet(ctx context.Context, cs *core.ChangeSet) error {
	path := "/api/assets/" + url.PathEscape(cs.AssetID) + "/metadata"

	res, err := c.post(ctx, path, cs)
	if err != nil {
		kind := core.MutationTransient
		if errors.Is(err, context.DeadlineExceeded) {
			kind = core.MutationTimeout
		}
		return &core.MutationError{AssetID: cs.AssetID, Kind: kind, Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode/100 == 2 {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}

	return &core.MutationError{
		AssetID: cs.AssetID,
		Kind:    mutationKind(res.StatusCode),
		Err:     fmt.Errorf("catalog returned %s: %s", res.Status, readError(res.Body)),
	}
}

// mutationKind classifies a non-2xx mutation response. Requests the catalog
// understood and refused are rejections; everything else may succeed later.
func mutationKind(status int) core.MutationKind {
	switch status {
	case http.StatusBadRequest,
		http.StatusUnauthorized,
		http.StatusForbidden,
		http.StatusNotFound,
		http.StatusConflict,
		http.StatusUnprocessableEntity:
		return core.MutationRejected
	default:
		// 408, 429 and 5xx
		return core.MutationTransient
	}
}

func (c *Client) post(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL.String()+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return c.http.Do(req)
}

// readError extracts a message from an error response body, preferring a
// JSON {"error": "..."} field.
func readError(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &body) == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	if s := strings.TrimSpace(string(data)); s != "" {
		return s
	}
	return "no response body"
}
