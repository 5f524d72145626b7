// Package pmc is a minimal client for the NCBI E-utilities API,
// scoped to searching PubMed Central open-access full text and
// fetching articles as JATS XML.
//
// NCBI enforces a request budget per API key (10 requests per second
// with a key, 3 without). The client holds a shared rate limiter so
// concurrent callers stay within it.
package pmc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// Errors returned by the client.
var (
	ErrEmptyQuery   = errors.New("pmc: search query is empty")
	ErrEmptyID      = errors.New("pmc: article id is empty")
	ErrBadStatus    = errors.New("pmc: unexpected http status")
	ErrBadResponse  = errors.New("pmc: malformed esearch response")
	ErrResponseSize = errors.New("pmc: response exceeds size limit")
)

const (
	// DefaultBaseURL is the production E-utilities endpoint.
	DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

	toolName = "formulary"

	requestTimeout = 30 * time.Second

	// maxResponseBytes bounds a single efetch body. Full-text JATS
	// articles run to a few MB; anything past this is not an article.
	maxResponseBytes = 32 << 20

	keyedRequestsPerSecond   = 10
	unkeyedRequestsPerSecond = 3
)

// Client talks to the E-utilities endpoints.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	email      string
	apiKey     string
	logger     *slog.Logger
}

// New creates a Client. An empty baseURL selects the production
// endpoint. The email identifies the caller to NCBI per their usage
// policy; the apiKey is optional and raises the rate budget.
func New(baseURL, email, apiKey string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	rps := unkeyedRequestsPerSecond
	if apiKey != "" {
		rps = keyedRequestsPerSecond
	}
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), rps),
		baseURL:    baseURL,
		email:      email,
		apiKey:     apiKey,
		logger:     logger,
	}
}

type esearchResponse struct {
	ESearchResult struct {
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

// Search runs an esearch against the PMC open-access subset and
// returns up to max article IDs, most relevant first.
func (c *Client) Search(ctx context.Context, query string, max int) ([]string, error) {
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if max < 1 {
		max = 1
	}

	params := url.Values{}
	params.Set("db", "pmc")
	params.Set("term", query+" AND open access[filter]")
	params.Set("retmax", fmt.Sprintf("%d", max))
	params.Set("sort", "relevance")
	params.Set("retmode", "json")

	body, err := c.get(ctx, "esearch.fcgi", params)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	var parsed esearchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("search %q: %w: %w", query, ErrBadResponse, err)
	}

	c.logger.Debug("pmc search complete", "query", query, "results", len(parsed.ESearchResult.IDList))
	return parsed.ESearchResult.IDList, nil
}

// Fetch retrieves one article as JATS XML via efetch. The id may be
// given with or without the PMC prefix.
func (c *Client) Fetch(ctx context.Context, id string) ([]byte, error) {
	if id == "" {
		return nil, ErrEmptyID
	}

	params := url.Values{}
	params.Set("db", "pmc")
	params.Set("id", id)
	params.Set("retmode", "xml")

	body, err := c.get(ctx, "efetch.fcgi", params)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", id, err)
	}

	c.logger.Debug("pmc fetch complete", "id", id, "bytes", len(body))
	return body, nil
}

// get performs one rate-limited request against an E-utilities
// endpoint and returns the full body.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params.Set("tool", toolName)
	if c.email != "" {
		params.Set("email", c.email)
	}
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s", ErrBadStatus, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxResponseBytes {
		return nil, ErrResponseSize
	}
	return body, nil
}
