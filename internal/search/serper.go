// Package search implements the synchronous search stage: one Serper
// query per company, rate-gated and cost-tracked, producing an ordered
// SearchResult.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/datastack-br/perfil-pipeline/internal/model"
	"github.com/datastack-br/perfil-pipeline/internal/ratelimit"
	"github.com/datastack-br/perfil-pipeline/internal/resilience"
)

// DefaultTimeout bounds one Serper request.
const DefaultTimeout = 10 * time.Second

// Gate is the subset of ratelimit.Gate the client needs.
type Gate interface {
	Acquire(ctx context.Context, key ratelimit.Key, cost int, timeout time.Duration) error
}

// Client queries the Serper search API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	gate       Gate
}

// New builds a Client. gate may be nil to skip rate gating (tests).
func New(baseURL, apiKey string, gate Gate) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		gate:       gate,
	}
}

var gateKey = ratelimit.Key{Vendor: "serper", Resource: "search"}

type serperRequest struct {
	Query string `json:"q"`
	Gl    string `json:"gl"`
	Hl    string `json:"hl"`
}

type serperResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

// BuildQuery composes the search query for a company from its name, trade
// name, and city, favoring specificity when both names are given.
func BuildQuery(companyName, tradeName, city string) string {
	q := companyName
	if tradeName != "" && tradeName != companyName {
		q = fmt.Sprintf("%s %s", companyName, tradeName)
	}
	if city != "" {
		q = fmt.Sprintf("%s %s", q, city)
	}
	return q + " site oficial"
}

// Search runs one Serper query for key and returns the ordered hits as a
// SearchResult. Callers are responsible for persisting the result.
func (c *Client) Search(ctx context.Context, key model.CompanyKey, query string) (model.SearchResult, error) {
	if c.gate != nil {
		if err := c.gate.Acquire(ctx, gateKey, 1, DefaultTimeout); err != nil {
			return model.SearchResult{}, resilience.Wrap(resilience.KindRateLimited, eris.Wrap(err, "search: rate gate"))
		}
	}

	body, err := json.Marshal(serperRequest{Query: query, Gl: "br", Hl: "pt-br"})
	if err != nil {
		return model.SearchResult{}, eris.Wrap(err, "search: encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return model.SearchResult{}, resilience.Wrap(resilience.KindTransport, eris.Wrap(err, "search: build request"))
	}
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.SearchResult{}, resilience.Wrap(resilience.KindTransport, eris.Wrap(err, "search: do request"))
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.SearchResult{}, resilience.Wrap(resilience.KindTransport, eris.Wrap(err, "search: read response"))
	}

	if resp.StatusCode >= 400 {
		kind := resilience.KindTransport
		if resp.StatusCode == http.StatusTooManyRequests {
			kind = resilience.KindRateLimited
		}
		return model.SearchResult{}, resilience.WrapMsg(kind, fmt.Sprintf("search: serper status %d", resp.StatusCode))
	}

	var parsed serperResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return model.SearchResult{}, eris.Wrap(err, "search: decode response")
	}

	hits := make([]model.SearchHit, 0, len(parsed.Organic))
	for _, o := range parsed.Organic {
		hits = append(hits, model.SearchHit{Title: o.Title, URL: o.Link, Snippet: o.Snippet})
	}

	return model.SearchResult{
		Key:       key,
		Query:     query,
		Hits:      hits,
		CreatedAt: time.Now(),
	}, nil
}
