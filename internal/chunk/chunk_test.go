package chunk

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDedupe_CollapsesRepeatedNavAcrossPages(t *testing.T) {
	pages := []Page{
		{URL: "https://a.com.br/", Text: "Home\nAbout\nContact\nWelcome to Acme"},
		{URL: "https://a.com.br/about", Text: "Home\nAbout\nContact\nWe build great software"},
	}
	deduped := Dedupe(pages)
	assert.Equal(t, 1, strings.Count(deduped, "Home"))
	assert.Equal(t, 1, strings.Count(deduped, "About"))
	assert.Contains(t, deduped, "Welcome to Acme")
	assert.Contains(t, deduped, "We build great software")
}

func TestDedupe_CaseFoldedDuplicateCollapses(t *testing.T) {
	pages := []Page{
		{URL: "https://a.com.br/", Text: "Nossos Serviços"},
		{URL: "https://a.com.br/x", Text: "NOSSOS SERVIÇOS"},
	}
	deduped := Dedupe(pages)
	assert.Equal(t, 1, strings.Count(deduped, "Serviços")+strings.Count(deduped, "SERVIÇOS"))
}

func TestProcess_ChunksSatisfyTokenBudgetAndUnion(t *testing.T) {
	var lines []string
	for i := 0; i < 2000; i++ {
		lines = append(lines, "This is a unique content line number "+strconv.Itoa(i))
	}
	pages := []Page{{URL: "https://a.com.br/", Text: strings.Join(lines, "\n")}}

	c := New(500)
	chunks, err := c.Process(pages)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	for _, ch := range chunks {
		assert.LessOrEqual(t, ch.TokenCount, 500)
		assert.Equal(t, len(chunks), ch.Total)
	}

	var reconstructed []string
	for _, ch := range chunks {
		reconstructed = append(reconstructed, ch.Content)
	}
	assert.Equal(t, Dedupe(pages), strings.Join(reconstructed, "\n"))
}

func TestProcess_SingleOversizedLineIsHardError(t *testing.T) {
	huge := strings.Repeat("word ", 2000)
	pages := []Page{{URL: "https://a.com.br/", Text: huge}}

	c := New(100)
	_, err := c.Process(pages)
	require.Error(t, err)
}

func TestProcess_EmptyInput(t *testing.T) {
	c := New(500)
	chunks, err := c.Process(nil)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}
