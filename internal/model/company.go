// Package model holds the typed records that cross every component boundary:
// queue rows, stage results, and language-model messages. Schemas live here
// and nowhere else, per the one-place-for-schemas convention.
package model

import "time"

// CompanyKey is the opaque 8-character identifier every entity is keyed by —
// the first segment of a Brazilian CNPJ (national tax number).
type CompanyKey string

// Valid reports whether k has the expected 8-character shape. It does not
// validate check digits; that belongs to the upstream facade's input
// validation, not the core pipeline.
func (k CompanyKey) Valid() bool {
	return len(k) == 8
}

func (k CompanyKey) String() string { return string(k) }

// SearchHit is one organic result returned by the search-engine query stage.
type SearchHit struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// SearchResult is one row per search execution, written by the search stage
// and read by discovery. Immutable once written.
type SearchResult struct {
	Key       CompanyKey  `json:"key"`
	Query     string      `json:"query"`
	Hits      []SearchHit `json:"hits"`
	CreatedAt time.Time   `json:"created_at"`
}

// DiscoveryStatus is the outcome of the site-discovery agent.
type DiscoveryStatus string

const (
	DiscoveryFound    DiscoveryStatus = "found"
	DiscoveryNotFound DiscoveryStatus = "not_found"
	DiscoveryError    DiscoveryStatus = "error"
)

// DiscoveryResult is one row per key, upserted by the discovery stage.
type DiscoveryResult struct {
	Key        CompanyKey      `json:"key"`
	SiteURL    *string         `json:"site_url"`
	Status     DiscoveryStatus `json:"status"`
	Confidence float64         `json:"confidence"`
	Reasoning  string          `json:"reasoning,omitempty"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// ScrapedChunk is one token-bounded slice of deduplicated aggregated site
// text, totally replaced on a re-scrape.
type ScrapedChunk struct {
	Key        CompanyKey `json:"key"`
	Index      int        `json:"index"`
	Total      int        `json:"total"`
	Content    string     `json:"content"`
	TokenCount int        `json:"token_count"`
	SourceURLs []string   `json:"source_urls"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ScrapeStageStatus reflects the outcome of one scrape-stage invocation.
// Partial means some pages were fetched but at least one failed (open
// question, resolved: aggregate whatever we have).
type ScrapeStageStatus string

const (
	ScrapeStatusSuccess ScrapeStageStatus = "success"
	ScrapeStatusPartial ScrapeStageStatus = "partial"
	ScrapeStatusError   ScrapeStageStatus = "error"
)

// ScrapeStageResult summarizes one scrape-stage run for the facade response.
type ScrapeStageResult struct {
	Status      ScrapeStageStatus `json:"status"`
	ChunksSaved int               `json:"chunks_saved"`
	Tokens      int               `json:"tokens"`
	Pages       int               `json:"pages"`
	FailedPages int               `json:"failed_pages"`
	Elapsed     time.Duration     `json:"-"`
}

// StageStatus reflects how much of a multi-chunk profile build succeeded.
type StageStatus string

const (
	StageSuccess StageStatus = "success"
	StagePartial StageStatus = "partial"
	StageError   StageStatus = "error"
)

// SiteKnowledge is advisory, per-origin (scheme+host) knowledge consulted
// by the site prober and updated by the fetcher. It is not durable across a
// schema migration and carries no invariant beyond "best guess so far".
type SiteKnowledge struct {
	Origin        string    `json:"origin"`
	BestStrategy  string    `json:"best_strategy"`
	Protection    string    `json:"protection"`
	SuccessRate   float64   `json:"success_rate"`
	LastSuccessAt time.Time `json:"last_success_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
