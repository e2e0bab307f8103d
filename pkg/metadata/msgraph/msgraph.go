package msgraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/OFFIS-RIT/schemagraph/internal/util"
	"github.com/OFFIS-RIT/schemagraph/pkg/logger"
	"github.com/OFFIS-RIT/schemagraph/pkg/metadata"
)

// DefaultBaseURL is the Microsoft Graph v1.0 endpoint.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

const acceptHeader = "application/json;odata.metadata=minimal;odata.streaming=true;IEEE754Compatible=false;charset=utf-8"

var (
	// ErrMalformedPayload is returned when a response has no "value" array.
	ErrMalformedPayload = errors.New("response has no value array")
	// ErrForeignNextLink is returned when @odata.nextLink points away from
	// the configured base URL. The bearer token is never sent there.
	ErrForeignNextLink = errors.New("next link outside base URL")
)

// GraphMetadataClient lists SharePoint lists and columns through Microsoft Graph.
type GraphMetadataClient struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	maxPages   int
	backoff    util.BackoffFunc
}

// NewGraphMetadataClientParams configures a GraphMetadataClient.
//
// BaseURL defaults to DefaultBaseURL, Timeout (per request) to 30s,
// MaxRetries to 3 and MaxPages (followed @odata.nextLink pages) to 50.
type NewGraphMetadataClientParams struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	MaxRetries int
	MaxPages   int
}

// NewGraphMetadataClient creates a client implementing metadata.SchemaSource.
func NewGraphMetadataClient(params NewGraphMetadataClientParams) *GraphMetadataClient {
	baseURL := strings.TrimSuffix(params.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := params.HTTPClient
	if httpClient == nil {
		timeout := params.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	maxRetries := params.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	maxPages := params.MaxPages
	if maxPages <= 0 {
		maxPages = 50
	}

	return &GraphMetadataClient{
		baseURL:    baseURL,
		httpClient: httpClient,
		maxRetries: maxRetries,
		maxPages:   maxPages,
		backoff:    util.ExponentialBackoff(500*time.Millisecond, 5*time.Second),
	}
}

// ListCollections returns the lists of creds.SiteID.
func (c *GraphMetadataClient) ListCollections(ctx context.Context, creds metadata.Credentials) ([]metadata.Descriptor, error) {
	return c.getAll(ctx, c.listsEndpoint(creds.SiteID), creds.Token)
}

// ListFields returns the column definitions of one list.
func (c *GraphMetadataClient) ListFields(ctx context.Context, collectionID string, creds metadata.Credentials) ([]metadata.Descriptor, error) {
	endpoint := fmt.Sprintf("%s/%s/columns", c.listsEndpoint(creds.SiteID), collectionID)
	return c.getAll(ctx, endpoint, creds.Token)
}

func (c *GraphMetadataClient) listsEndpoint(siteID string) string {
	return fmt.Sprintf("%s/sites/%s/lists", c.baseURL, siteID)
}

type collectionPage struct {
	Value    *[]metadata.Descriptor `json:"value"`
	NextLink string                 `json:"@odata.nextLink"`
}

func (c *GraphMetadataClient) getAll(ctx context.Context, endpoint string, token string) ([]metadata.Descriptor, error) {
	var items []metadata.Descriptor
	next := endpoint
	for page := 0; next != "" && page < c.maxPages; page++ {
		pageURL := next
		if page > 0 && !c.sameOrigin(pageURL) {
			logger.Error("[MSGraph] Refusing foreign next link", "endpoint", endpoint, "next", pageURL)
			return nil, fmt.Errorf("%w: %s", ErrForeignNextLink, pageURL)
		}
		result, err := util.RetryWithContext(ctx, c.maxRetries, c.backoff, func(ctx context.Context) (*collectionPage, error) {
			return c.fetchPage(ctx, pageURL, token)
		})
		if err != nil {
			return nil, err
		}
		items = append(items, *result.Value...)
		next = result.NextLink
	}
	if next != "" {
		logger.Warn("[MSGraph] Page limit reached, result truncated", "endpoint", endpoint, "max_pages", c.maxPages)
	}
	return items, nil
}

func (c *GraphMetadataClient) sameOrigin(link string) bool {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return false
	}
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Scheme, base.Scheme) && strings.EqualFold(u.Host, base.Host)
}

func (c *GraphMetadataClient) fetchPage(ctx context.Context, url string, token string) (*collectionPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, util.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Debug("[MSGraph] Request failed", "url", url, "err", err)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		statusErr := &metadata.StatusError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
		if statusErr.Temporary() {
			return nil, statusErr
		}
		return nil, util.Permanent(statusErr)
	}

	var page collectionPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, util.Permanent(fmt.Errorf("failed to decode response from %s: %w", url, err))
	}
	if page.Value == nil {
		return nil, util.Permanent(fmt.Errorf("%s: %w", url, ErrMalformedPayload))
	}
	return &page, nil
}
