// Package chunk implements the content chunker: deduplicate, greedily pack
// into token-bounded units, then validate. Token counting here is an
// approximate word/punctuation heuristic, not a real vendor tokenizer —
// exact tokenization is opaque to this system and only the vendor's own
// count is authoritative.
package chunk

import (
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"

	"github.com/datastack-br/perfil-pipeline/internal/model"
)

// DefaultMaxTokens is the effective per-chunk budget, leaving headroom for
// the extraction prompt and the model's response.
const DefaultMaxTokens = 14700

// lookbackLines bounds how far back a cut point search walks when
// preferring a page or paragraph boundary over an arbitrary line boundary.
const lookbackLines = 40

// Page is one fetched page's plaintext, keyed by its source URL.
type Page struct {
	URL  string
	Text string
}

// Chunker deduplicates and packs pages into token-bounded chunks.
type Chunker struct {
	maxTokens int
}

// New builds a Chunker with the given effective max token budget. A
// non-positive value falls back to DefaultMaxTokens.
func New(maxTokens int) *Chunker {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Chunker{maxTokens: maxTokens}
}

type line struct {
	text         string
	tokens       int
	pageBoundary bool
	paraBoundary bool
	sourceURL    string
}

// Dedupe collapses line-level duplicates across pages, preserving first
// occurrence, and returns the deduplicated text joined by newlines. Chunk
// output must reconstruct this string verbatim when concatenated in order.
func Dedupe(pages []Page) string {
	lines := dedupeLines(pages)
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = l.text
	}
	return strings.Join(parts, "\n")
}

func dedupeLines(pages []Page) []line {
	seen := make(map[string]bool)
	var out []line
	for pi, pg := range pages {
		rawLines := strings.Split(pg.Text, "\n")
		paraBoundary := true
		for li, raw := range rawLines {
			trimmed := strings.TrimRight(raw, " \t\r")
			trimmedLeft := strings.TrimSpace(trimmed)
			if trimmedLeft == "" {
				paraBoundary = true
				continue
			}
			key := normalizeKey(trimmedLeft)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, line{
				text:         trimmedLeft,
				tokens:       approxTokens(trimmedLeft),
				pageBoundary: li == 0 && pi > 0,
				paraBoundary: paraBoundary,
				sourceURL:    pg.URL,
			})
			paraBoundary = false
		}
	}
	return out
}

// normalizeKey NFKC-normalizes and case-folds a line so Portuguese accented
// text ("Serviços" vs "SERVIÇOS") dedups on a canonical form, then collapses
// internal whitespace. Diacritics are kept, so "serviços" and "servicos"
// remain distinct keys.
func normalizeKey(s string) string {
	folded := strings.ToLower(norm.NFKC.String(s))
	return strings.Join(strings.Fields(folded), " ")
}

// approxTokens estimates token count as roughly one token per word plus one
// per run of punctuation, a heuristic close enough to bound prompt sizing
// without depending on a vendor-specific tokenizer.
func approxTokens(s string) int {
	tokens := 0
	inWord := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			inWord = false
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if !inWord {
				tokens++
				inWord = true
			}
		default:
			inWord = false
			tokens++
		}
	}
	return tokens
}

// Process deduplicates pages and greedily packs the result into chunks
// whose token count never exceeds the configured maximum. Returns a hard
// error if a single deduplicated line alone exceeds the budget — it can
// never fit any chunk.
func (c *Chunker) Process(pages []Page) ([]model.ScrapedChunk, error) {
	lines := dedupeLines(pages)
	if len(lines) == 0 {
		return nil, nil
	}

	groups := c.pack(lines)

	chunks := make([]model.ScrapedChunk, len(groups))
	for i, g := range groups {
		tokens := 0
		urlSet := make(map[string]bool)
		var texts []string
		for _, l := range g {
			tokens += l.tokens
			texts = append(texts, l.text)
			urlSet[l.sourceURL] = true
		}
		if tokens > c.maxTokens {
			return nil, eris.Errorf("chunk: chunk %d token count %d exceeds maximum %d", i, tokens, c.maxTokens)
		}
		var urls []string
		for u := range urlSet {
			urls = append(urls, u)
		}
		chunks[i] = model.ScrapedChunk{
			Index:      i,
			Total:      len(groups),
			Content:    strings.Join(texts, "\n"),
			TokenCount: tokens,
			SourceURLs: urls,
		}
	}
	return chunks, nil
}

// pack greedily fills groups of lines up to maxTokens, preferring to cut at
// a page boundary, then a paragraph boundary, then falling back to whatever
// line boundary the budget lands on — never splitting a line.
func (c *Chunker) pack(lines []line) [][]line {
	var groups [][]line
	var cur []line
	curTokens := 0

	flush := func() {
		if len(cur) > 0 {
			groups = append(groups, cur)
			cur = nil
			curTokens = 0
		}
	}

	for _, l := range lines {
		if curTokens+l.tokens > c.maxTokens && len(cur) > 0 {
			cut := bestCut(cur)
			groups = append(groups, cur[:cut])
			cur = append([]line{}, cur[cut:]...)
			curTokens = 0
			for _, r := range cur {
				curTokens += r.tokens
			}
			if curTokens+l.tokens > c.maxTokens {
				flush()
			}
		}
		cur = append(cur, l)
		curTokens += l.tokens
	}
	flush()
	return groups
}

// bestCut looks backward from the end of cur for the nearest page boundary,
// then paragraph boundary, within lookbackLines; if neither exists it
// returns len(cur), cutting at the current line boundary.
func bestCut(cur []line) int {
	start := 0
	if len(cur) > lookbackLines {
		start = len(cur) - lookbackLines
	}
	for i := len(cur) - 1; i >= start; i-- {
		if i > 0 && cur[i].pageBoundary {
			return i
		}
	}
	for i := len(cur) - 1; i >= start; i-- {
		if i > 0 && cur[i].paraBoundary {
			return i
		}
	}
	return len(cur)
}
