package discovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datastack-br/perfil-pipeline/internal/llm"
	"github.com/datastack-br/perfil-pipeline/internal/model"
	"github.com/datastack-br/perfil-pipeline/pkg/anthropic"
)

type stubClient struct {
	response string
	err      error
}

func (c *stubClient) CreateMessage(_ context.Context, _ anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: c.response}},
		Usage:   anthropic.TokenUsage{InputTokens: 50, OutputTokens: 20},
	}, nil
}

func newTestManager(client anthropic.Client) *llm.Manager {
	return llm.NewManager(llm.ManagerConfig{
		Vendors: []llm.VendorConfig{
			{Name: "primary", Client: client, Model: "claude-sonnet-4-5-20250929", MaxOutputTokens: 4096},
		},
	})
}

func sampleResult() model.SearchResult {
	return model.SearchResult{
		Key:   "acme-co",
		Query: "acme industria site oficial",
		Hits: []model.SearchHit{
			{Title: "Acme Indústria - Home", URL: "https://acme.com.br", Snippet: "Site oficial da Acme"},
			{Title: "Acme no LinkedIn", URL: "https://linkedin.com/company/acme", Snippet: "..."},
		},
	}
}

func TestDiscover_FoundWithChosenURL(t *testing.T) {
	client := &stubClient{response: `{"chosen_url":"https://acme.com.br","status":"found","confidence":0.95,"reasoning":"matches company name"}`}
	agent := NewAgent(newTestManager(client))

	got, err := agent.Discover(context.Background(), sampleResult())
	require.NoError(t, err)
	assert.Equal(t, model.DiscoveryFound, got.Status)
	require.NotNil(t, got.SiteURL)
	assert.Equal(t, "https://acme.com.br", *got.SiteURL)
	assert.Equal(t, 0.95, got.Confidence)
}

func TestDiscover_NotFoundHasNilSiteURL(t *testing.T) {
	client := &stubClient{response: `{"status":"not_found","confidence":0.2,"reasoning":"no matching hit"}`}
	agent := NewAgent(newTestManager(client))

	got, err := agent.Discover(context.Background(), sampleResult())
	require.NoError(t, err)
	assert.Equal(t, model.DiscoveryNotFound, got.Status)
	assert.Nil(t, got.SiteURL)
}

func TestDiscover_CallFailureReturnsErrorStatus(t *testing.T) {
	client := &stubClient{err: assertErr("vendor exhausted")}
	agent := NewAgent(newTestManager(client))

	got, err := agent.Discover(context.Background(), sampleResult())
	assert.Error(t, err)
	assert.Equal(t, model.DiscoveryError, got.Status)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

func TestBuildPrompt_IncludesAllHitsInOrder(t *testing.T) {
	prompt := buildPrompt(sampleResult())
	assert.Contains(t, prompt, "acme-co")
	assert.Contains(t, prompt, "Acme Indústria - Home")
	assert.Contains(t, prompt, "Acme no LinkedIn")
}
