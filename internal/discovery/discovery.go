// Package discovery implements the site-discovery agent: given a
// company's search results, decide which hit (if any) is the company's
// own site, without fetching any candidate page.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/datastack-br/perfil-pipeline/internal/llm"
	"github.com/datastack-br/perfil-pipeline/internal/model"
)

const systemPrompt = "You decide which search result, if any, is a company's own official " +
	"website. You are given the company's key and an ordered list of search hits (title, " +
	"URL, snippet). Choose the single best candidate, or none if no hit looks like the " +
	"company's own site (e.g. only directory listings, social media profiles, or unrelated " +
	"companies). Do not fetch or guess at content beyond what's given. Return only the JSON object."

func schema() llm.Schema {
	return llm.Schema{
		"type":     "object",
		"required": []any{"status", "confidence"},
		"properties": map[string]any{
			"chosen_url": llm.Schema{"type": "string"},
			"status":     llm.Schema{"type": "string"},
			"confidence": llm.Schema{"type": "number"},
			"reasoning":  llm.Schema{"type": "string"},
		},
	}
}

// Agent runs the discovery stage for one company key.
type Agent struct {
	manager *llm.Manager
}

// NewAgent builds an Agent over manager.
func NewAgent(manager *llm.Manager) *Agent {
	return &Agent{manager: manager}
}

// Discover builds a ranking prompt from result's ordered hits, calls the
// structured-output caller, and returns the verdict as a DiscoveryResult.
func (a *Agent) Discover(ctx context.Context, result model.SearchResult) (model.DiscoveryResult, error) {
	prompt := buildPrompt(result)

	req := llm.Request{
		System: systemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: prompt},
		},
		Schema:      schema(),
		InputTokens: len(prompt) / 4,
	}

	res, err := a.manager.Call(ctx, req)
	if err != nil {
		return model.DiscoveryResult{
			Key:       result.Key,
			Status:    model.DiscoveryError,
			Reasoning: err.Error(),
			UpdatedAt: time.Now(),
		}, eris.Wrapf(err, "discovery: %s", result.Key)
	}

	raw, err := json.Marshal(res.Object)
	if err != nil {
		return model.DiscoveryResult{}, eris.Wrap(err, "discovery: re-marshal verdict")
	}

	var verdict struct {
		ChosenURL  string  `json:"chosen_url"`
		Status     string  `json:"status"`
		Confidence float64 `json:"confidence"`
		Reasoning  string  `json:"reasoning"`
	}
	if err := json.Unmarshal(raw, &verdict); err != nil {
		return model.DiscoveryResult{}, eris.Wrap(err, "discovery: decode verdict")
	}

	out := model.DiscoveryResult{
		Key:        result.Key,
		Status:     model.DiscoveryStatus(verdict.Status),
		Confidence: verdict.Confidence,
		Reasoning:  verdict.Reasoning,
		UpdatedAt:  time.Now(),
	}
	if verdict.ChosenURL != "" {
		out.SiteURL = &verdict.ChosenURL
	}
	return out, nil
}

func buildPrompt(result model.SearchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Company key: %s\nSearch query: %s\n\nHits, in rank order:\n", result.Key, result.Query)
	for i, hit := range result.Hits {
		fmt.Fprintf(&b, "%d. %s\n   %s\n   %s\n", i+1, hit.Title, hit.URL, hit.Snippet)
	}
	return b.String()
}
