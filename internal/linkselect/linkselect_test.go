package linkselect

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<html><body>
<a href="/">Home</a>
<a href="/sobre">Sobre</a>
<a href="/produtos">Produtos</a>
<a href="/blog/post-1">Blog</a>
<a href="/blog/post-1/comments/deep">Blog deep</a>
<a href="/contato">Contato</a>
<a href="/assets/brochure.pdf">Brochure</a>
<a href="https://other.com/x">External</a>
</body></html>`

func TestSelect_PrefersHighSignalOverLowValue(t *testing.T) {
	s := New(DefaultBudget, nil)
	urls, err := s.Select(context.Background(), "https://acme.com.br/", samplePage)
	require.NoError(t, err)
	require.NotEmpty(t, urls)

	assert.NotContains(t, urls, "https://acme.com.br/assets/brochure.pdf")
	assert.NotContains(t, urls, "https://other.com/x")

	posProdutos, posBlog := -1, -1
	for i, u := range urls {
		if u == "https://acme.com.br/produtos" {
			posProdutos = i
		}
		if u == "https://acme.com.br/blog/post-1" {
			posBlog = i
		}
	}
	require.GreaterOrEqual(t, posProdutos, 0)
	require.GreaterOrEqual(t, posBlog, 0)
	assert.Less(t, posProdutos, posBlog)
}

func TestSelect_TruncatesToBudget(t *testing.T) {
	s := New(2, nil)
	urls, err := s.Select(context.Background(), "https://acme.com.br/", samplePage)
	require.NoError(t, err)
	assert.Len(t, urls, 2)
}

type stubRanker struct {
	urls []string
	err  error
}

func (r stubRanker) Rank(_ context.Context, _ string, _ []string, _ int) ([]string, error) {
	return r.urls, r.err
}

func TestSelect_UsesModelRankingWhenOverBudget(t *testing.T) {
	s := New(1, stubRanker{urls: []string{"https://acme.com.br/contato"}})
	urls, err := s.Select(context.Background(), "https://acme.com.br/", samplePage)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://acme.com.br/contato"}, urls)
}

func TestSelect_FallsBackOnHallucinatedRanking(t *testing.T) {
	s := New(1, stubRanker{urls: []string{"https://evil.com/phish"}})
	urls, err := s.Select(context.Background(), "https://acme.com.br/", samplePage)
	require.NoError(t, err)
	require.Len(t, urls, 1)
	assert.NotEqual(t, "https://evil.com/phish", urls[0])
}
