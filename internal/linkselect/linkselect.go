// Package linkselect ranks in-site links for follow-up fetches. A heuristic
// pass runs first; when the candidate count exceeds the budget it consults
// the structured-output caller with a compact ranking schema, falling back
// to the heuristic order if the model is unavailable or unparseable.
package linkselect

import (
	"context"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultBudget is the default link-selector output size (§4.6).
const DefaultBudget = 30

var lowValuePaths = []string{"/blog", "/news", "/press", "/careers", "/login", "/cart", "/legal", "/privacy", "/terms"}

var highSignalKeywords = []string{"about", "sobre", "produtos", "products", "services", "servicos", "serviços", "contact", "contato", "team", "equipe", "cases", "clientes", "clients"}

var assetExtensions = []string{".pdf", ".jpg", ".jpeg", ".png", ".gif", ".svg", ".css", ".js", ".zip", ".doc", ".docx", ".xls", ".xlsx", ".webp", ".ico", ".mp4"}

// Ranker consults the model for a ranking when the heuristic candidate
// count exceeds budget. Returns the ranked URLs, or an error if the call
// fails or the response doesn't parse — either falls back to heuristic
// order.
type Ranker interface {
	Rank(ctx context.Context, baseURL string, candidates []string, budget int) ([]string, error)
}

// Selector ranks in-site links.
type Selector struct {
	budget int
	ranker Ranker
}

// New builds a Selector. ranker may be nil to always use the heuristic.
func New(budget int, ranker Ranker) *Selector {
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Selector{budget: budget, ranker: ranker}
}

// Select extracts in-site links from html (the main page's document),
// ranks them, and returns up to budget URLs in priority order.
func (s *Selector) Select(ctx context.Context, baseURL, html string) ([]string, error) {
	candidates, err := extractLinks(baseURL, html)
	if err != nil {
		return nil, err
	}

	ranked := heuristicRank(candidates)

	if len(ranked) <= s.budget || s.ranker == nil {
		return truncate(ranked, s.budget), nil
	}

	modelRanked, err := s.ranker.Rank(ctx, baseURL, ranked, s.budget)
	if err != nil || !validRanking(modelRanked, ranked) {
		return truncate(ranked, s.budget), nil
	}
	return truncate(modelRanked, s.budget), nil
}

func truncate(urls []string, budget int) []string {
	if len(urls) <= budget {
		return urls
	}
	return urls[:budget]
}

// validRanking rejects a model response that doesn't contain a subset of
// the offered candidates — an unparseable or hallucinated ranking must fall
// back to the heuristic order, not silently introduce new URLs.
func validRanking(ranked, candidates []string) bool {
	if len(ranked) == 0 {
		return false
	}
	allowed := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		allowed[c] = true
	}
	for _, r := range ranked {
		if !allowed[r] {
			return false
		}
	}
	return true
}

// extractLinks pulls same-site <a href> targets from html, excluding
// non-HTML assets.
func extractLinks(baseURL, html string) ([]string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		u, err := base.Parse(href)
		if err != nil {
			return
		}
		if u.Host != base.Host {
			return
		}
		u.Fragment = ""
		normalized := u.String()
		if seen[normalized] {
			return
		}
		if isAsset(u.Path) {
			return
		}
		seen[normalized] = true
		out = append(out, normalized)
	})
	return out, nil
}

func isAsset(p string) bool {
	ext := strings.ToLower(path.Ext(p))
	for _, a := range assetExtensions {
		if ext == a {
			return true
		}
	}
	return false
}

// heuristicRank penalizes known low-value paths, rewards high-signal
// keywords, and penalizes path depth, then sorts descending by score.
func heuristicRank(candidates []string) []string {
	type scored struct {
		url   string
		score int
	}
	scoredList := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		scoredList = append(scoredList, scored{url: c, score: score(c)})
	}
	sort.SliceStable(scoredList, func(i, j int) bool {
		return scoredList[i].score > scoredList[j].score
	})
	out := make([]string, len(scoredList))
	for i, s := range scoredList {
		out[i] = s.url
	}
	return out
}

func score(rawURL string) int {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0
	}
	lowerPath := strings.ToLower(u.Path)

	points := 0
	for _, lv := range lowValuePaths {
		if strings.HasPrefix(lowerPath, lv) {
			points -= 10
		}
	}
	for _, kw := range highSignalKeywords {
		if strings.Contains(lowerPath, kw) {
			points += 5
		}
	}

	depth := strings.Count(strings.Trim(lowerPath, "/"), "/")
	points -= depth

	if lowerPath == "" || lowerPath == "/" {
		points += 2
	}
	return points
}
