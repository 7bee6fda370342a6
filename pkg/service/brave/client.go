package brave

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemosyne/pkg/utils/safe"
)

// DefaultEndpoint is the Brave Search web search API endpoint
const DefaultEndpoint = "https://api.search.brave.com/res/v1/web/search"

// Result is one web search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Client calls the Brave Search API.
type Client struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

// Option is a functional option for Client configuration
type Option func(*Client)

// WithEndpoint overrides the API endpoint. Used by tests.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		c.endpoint = endpoint
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// New creates a Brave Search client with the given subscription token.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, goerr.New("Brave Search API key is required")
	}

	c := &Client{
		apiKey:     apiKey,
		endpoint:   DefaultEndpoint,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// braveResponse mirrors the fields of the API response we consume. The
// snippet comes back under "description".
type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

// Search runs a web search and returns up to count results.
func (c *Client) Search(ctx context.Context, query string, count int) ([]Result, error) {
	if query == "" {
		return nil, goerr.New("search query is required")
	}

	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid endpoint", goerr.V("endpoint", c.endpoint))
	}
	q := u.Query()
	q.Set("q", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build search request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "search request failed", goerr.V("query", query))
	}
	defer safe.Close(ctx, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, goerr.New("search request returned non-OK status",
			goerr.V("status", resp.StatusCode), goerr.V("query", query))
	}

	var body braveResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, goerr.Wrap(err, "failed to decode search response")
	}

	results := make([]Result, 0, len(body.Web.Results))
	for _, item := range body.Web.Results {
		results = append(results, Result{
			Title:   item.Title,
			URL:     item.URL,
			Snippet: item.Description,
		})
		if count > 0 && len(results) >= count {
			break
		}
	}
	return results, nil
}
