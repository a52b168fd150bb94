package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/spire-contrib/envoy-compat/internal/version"
	srvErrors "github.com/spire-contrib/envoy-compat/pkg/errors"
)

// TagLister fetches the raw tag page from the release catalog.
type TagLister interface {
	ListTags(ctx context.Context) ([]string, error)
}

// Client is the HTTP tag catalog client. The catalog endpoint returns a
// Docker-Hub-shaped page: {"results": [{"name": "v1.21.3"}, ...]}. A single
// page is assumed sufficient for the testable window; there is no pagination.
type Client struct {
	baseURL    string
	pageSize   int
	httpClient *http.Client
}

func NewClient(baseURL string, pageSize int) *Client {
	return &Client{
		baseURL:    baseURL,
		pageSize:   pageSize,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type tagPage struct {
	Results []struct {
		Name string `json:"name"`
	} `json:"results"`
}

// ListTags returns the raw tag names of the first catalog page. A fetch or
// status failure is fatal; a malformed body is treated as an empty catalog,
// which downstream handles as "no candidates".
func (c *Client) ListTags(ctx context.Context) ([]string, error) {
	url := fmt.Sprintf("%s?page_size=%d", c.baseURL, c.pageSize)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, srvErrors.NewCatalogUnavailableError(c.baseURL, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, srvErrors.NewCatalogUnavailableError(c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, srvErrors.NewCatalogUnavailableError(c.baseURL, fmt.Errorf("unexpected status %s", resp.Status))
	}

	var page tagPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		zap.S().Warnw("malformed catalog page, treating as empty", "url", c.baseURL, "error", err)
		return nil, nil
	}

	tags := make([]string, 0, len(page.Results))
	for _, r := range page.Results {
		tags = append(tags, r.Name)
	}
	return tags, nil
}

// Resolver computes the candidate window from the live catalog: families are
// deduplicated, ordered newest first and truncated to the configured maximum.
type Resolver struct {
	catalog     TagLister
	maxReleases int
}

func NewResolver(catalog TagLister, maxReleases int) *Resolver {
	return &Resolver{catalog: catalog, maxReleases: maxReleases}
}

func (r *Resolver) Resolve(ctx context.Context) ([]version.Version, error) {
	tags, err := r.catalog.ListTags(ctx)
	if err != nil {
		return nil, err
	}

	families := version.Families(tags)
	if len(families) > r.maxReleases {
		families = families[:r.maxReleases]
	}

	zap.S().Infow("resolved candidate releases", "tags", len(tags), "candidates", families)
	return families, nil
}
