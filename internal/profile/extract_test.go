package profile

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
	responses []string
	errs      []error
	call      int
}

func (c *stubClient) CreateMessage(_ context.Context, _ anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	i := c.call
	c.call++
	if i < len(c.errs) && c.errs[i] != nil {
		return nil, c.errs[i]
	}
	text := c.responses[i]
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
		Usage:   anthropic.TokenUsage{InputTokens: 100, OutputTokens: 50},
	}, nil
}

func newTestManager(client anthropic.Client) *llm.Manager {
	return llm.NewManager(llm.ManagerConfig{
		Vendors: []llm.VendorConfig{
			{Name: "primary", Client: client, Model: "claude-sonnet-4-5-20250929", MaxOutputTokens: 4096},
		},
	})
}

func TestExtractChunk_ParsesAndNormalizes(t *testing.T) {
	client := &stubClient{responses: []string{
		`{"company_name":"Acme","offerings":{"services":["Consulting","Consulting"]}}`,
	}}
	extractor := NewExtractor(newTestManager(client))

	profile, err := extractor.ExtractChunk(context.Background(), "acme-co", model.ScrapedChunk{Index: 0, Content: "chunk text"})
	require.NoError(t, err)
	assert.Equal(t, "Acme", profile.CompanyName)
	assert.Equal(t, []string{"Consulting"}, profile.Offerings.Services)
}

func TestExtractChunk_PropagatesTerminalError(t *testing.T) {
	client := &stubClient{responses: []string{"", "", ""}, errs: []error{assertErr("boom"), assertErr("boom"), assertErr("boom")}}
	extractor := NewExtractor(newTestManager(client))

	_, err := extractor.ExtractChunk(context.Background(), "acme-co", model.ScrapedChunk{Index: 0, Content: "chunk text"})
	assert.Error(t, err)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

func TestBuildProfile_SkipsFailedChunksAndMerges(t *testing.T) {
	client := &stubClient{responses: []string{
		`{"company_name":"Acme","description":"short"}`,
		"",
		`{"company_name":"Acme","description":"a much longer description of Acme"}`,
	}, errs: []error{nil, assertErr("boom"), nil}}
	// Second chunk fails all 3 retry attempts with the same error kind (transport).
	client.errs = []error{nil, assertErr("boom"), assertErr("boom"), assertErr("boom"), nil}
	client.responses = []string{
		`{"company_name":"Acme","description":"short"}`,
		"", "", "",
		`{"company_name":"Acme","description":"a much longer description of Acme"}`,
	}

	extractor := NewExtractor(newTestManager(client))
	chunks := []model.ScrapedChunk{
		{Index: 0, Content: "chunk 0"},
		{Index: 1, Content: "chunk 1"},
		{Index: 2, Content: "chunk 2"},
	}

	result, err := extractor.BuildProfile(context.Background(), "acme-co", chunks)
	require.NoError(t, err)
	assert.Equal(t, 3, result.ChunksTotal)
	assert.Equal(t, 2, result.ChunksUsed)
	assert.Equal(t, model.StagePartial, result.Status)
	assert.Equal(t, "a much longer description of Acme", result.Description)
}
