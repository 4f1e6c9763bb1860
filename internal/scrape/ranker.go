package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/datastack-br/perfil-pipeline/internal/llm"
)

const rankerSystemPrompt = "You rank a site's internal links by how likely each is to contain " +
	"company profile information (products, services, clients, case studies, certifications). " +
	"Return the given URLs reordered, most useful first, dropping none. Return only the JSON object."

func rankerSchema() llm.Schema {
	return llm.Schema{
		"type":     "object",
		"required": []any{"ranked_urls"},
		"properties": map[string]any{
			"ranked_urls": llm.Schema{
				"type":  "array",
				"items": llm.Schema{"type": "string"},
			},
		},
	}
}

// ModelRanker implements linkselect.Ranker against the structured-output
// caller, used only when the heuristic candidate count exceeds budget.
type ModelRanker struct {
	manager *llm.Manager
}

// NewModelRanker builds a ModelRanker over manager.
func NewModelRanker(manager *llm.Manager) *ModelRanker {
	return &ModelRanker{manager: manager}
}

// Rank asks the model to reorder candidates for baseURL, truncated to
// budget by the caller.
func (r *ModelRanker) Rank(ctx context.Context, baseURL string, candidates []string, budget int) ([]string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Site: %s\nCandidate budget: %d\nLinks:\n", baseURL, budget)
	for _, c := range candidates {
		fmt.Fprintf(&b, "- %s\n", c)
	}

	req := llm.Request{
		System: rankerSystemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: b.String()},
		},
		Schema:      rankerSchema(),
		InputTokens: len(candidates) * 20,
	}

	res, err := r.manager.Call(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "scrape: rank links")
	}

	raw, err := json.Marshal(res.Object)
	if err != nil {
		return nil, eris.Wrap(err, "scrape: re-marshal ranking")
	}

	var parsed struct {
		RankedURLs []string `json:"ranked_urls"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, eris.Wrap(err, "scrape: decode ranking")
	}
	return parsed.RankedURLs, nil
}
