// Package scrape implements the synchronous scrape stage: probe a
// company's site, fetch the home page plus a budget of ranked in-site
// links, chunk the aggregated text, and replace the stored chunks.
package scrape

import (
	"context"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/datastack-br/perfil-pipeline/internal/chunk"
	"github.com/datastack-br/perfil-pipeline/internal/fetch"
	"github.com/datastack-br/perfil-pipeline/internal/linkselect"
	"github.com/datastack-br/perfil-pipeline/internal/model"
	"github.com/datastack-br/perfil-pipeline/internal/prober"
	"github.com/datastack-br/perfil-pipeline/internal/resilience"
	"github.com/datastack-br/perfil-pipeline/internal/store"
)

// Scraper runs the full scrape stage for one company site.
type Scraper struct {
	Prober   *prober.Prober
	Fetcher  *fetch.Fetcher
	Selector *linkselect.Selector
	Chunker  *chunk.Chunker
	Store    store.Store
	Breakers *resilience.ServiceBreakers
}

// New builds a Scraper from its component stages.
func New(p *prober.Prober, f *fetch.Fetcher, selector *linkselect.Selector, chunker *chunk.Chunker, st store.Store, breakers *resilience.ServiceBreakers) *Scraper {
	return &Scraper{Prober: p, Fetcher: f, Selector: selector, Chunker: chunker, Store: st, Breakers: breakers}
}

// Scrape probes baseURL, fetches the home page and a ranked set of
// in-site links, chunks the aggregated text, and replaces key's stored
// chunks. Partial success (some links failed but at least one page
// succeeded) still saves what was gathered.
func (s *Scraper) Scrape(ctx context.Context, key model.CompanyKey, baseURL string) (model.ScrapeStageResult, error) {
	start := time.Now()

	probe, err := s.Prober.Probe(ctx, baseURL)
	if err != nil {
		return model.ScrapeStageResult{Status: model.ScrapeStatusError, Elapsed: time.Since(start)}, err
	}

	origin := originOf(probe.ChosenURL)
	breaker := s.Breakers.Get(origin)

	var preferred model.FetchStrategy
	if known, err := s.Store.GetSiteKnowledge(ctx, origin); err == nil && known != nil {
		preferred = model.FetchStrategy(known.BestStrategy)
	}

	homePage, err := s.Fetcher.FetchWithEscalation(ctx, probe.ChosenURL, fetch.Promote(preferred), breaker)
	if err != nil {
		return model.ScrapeStageResult{Status: model.ScrapeStatusError, Elapsed: time.Since(start)}, err
	}

	pages := []chunk.Page{{URL: homePage.URL, Text: homePage.Text}}
	failedPages := 0

	links, err := s.Selector.Select(ctx, homePage.URL, homePage.RawHTML)
	if err != nil {
		zap.L().Warn("scrape: link selection failed, continuing with home page only",
			zap.String("key", string(key)), zap.Error(err))
		links = nil
	}

	for _, link := range links {
		page, err := s.Fetcher.FetchWithEscalation(ctx, link, fetch.Promote(preferred), breaker)
		if err != nil {
			failedPages++
			zap.L().Debug("scrape: link fetch failed", zap.String("url", link), zap.Error(err))
			continue
		}
		pages = append(pages, chunk.Page{URL: page.URL, Text: page.Text})
	}

	s.recordKnowledge(ctx, origin, probe, homePage.Strategy, len(pages) > 0)

	chunks, err := s.Chunker.Process(pages)
	if err != nil {
		return model.ScrapeStageResult{Status: model.ScrapeStatusError, Elapsed: time.Since(start)}, err
	}

	for i := range chunks {
		chunks[i].Key = key
		chunks[i].CreatedAt = time.Now()
	}

	if err := s.Store.ReplaceScrapedChunks(ctx, key, chunks); err != nil {
		return model.ScrapeStageResult{Status: model.ScrapeStatusError, Elapsed: time.Since(start)}, err
	}

	status := model.ScrapeStatusSuccess
	if failedPages > 0 {
		status = model.ScrapeStatusPartial
	}

	tokens := 0
	for _, c := range chunks {
		tokens += c.TokenCount
	}

	return model.ScrapeStageResult{
		Status:      status,
		ChunksSaved: len(chunks),
		Tokens:      tokens,
		Pages:       len(pages),
		FailedPages: failedPages,
		Elapsed:     time.Since(start),
	}, nil
}

// recordKnowledge updates the advisory SiteKnowledge row for origin after a
// scrape attempt, promoting the strategy that actually worked.
func (s *Scraper) recordKnowledge(ctx context.Context, origin string, probe *model.SiteProbe, usedStrategy model.FetchStrategy, succeeded bool) {
	knowledge := model.SiteKnowledge{
		Origin:     origin,
		Protection: string(probe.Protection),
		UpdatedAt:  time.Now(),
	}
	if usedStrategy != "" {
		knowledge.BestStrategy = string(usedStrategy)
	}
	if succeeded {
		knowledge.SuccessRate = 1
		knowledge.LastSuccessAt = time.Now()
	}
	if err := s.Store.UpdateSiteKnowledge(ctx, knowledge); err != nil {
		zap.L().Warn("scrape: failed to update site knowledge", zap.String("origin", origin), zap.Error(err))
	}
}

func originOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Scheme + "://" + u.Host
}

// KnowledgeStore adapts store.Store to prober.Knowledge.
type KnowledgeStore struct {
	Store store.Store
}

func (k KnowledgeStore) Get(ctx context.Context, origin string) (*model.SiteKnowledge, error) {
	return k.Store.GetSiteKnowledge(ctx, origin)
}
