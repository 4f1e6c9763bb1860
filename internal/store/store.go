// Package store persists the five durable record types that cross stage
// boundaries: search results, discovery results, scraped chunks, company
// profiles, and site knowledge. Postgres is the production backend; an
// in-memory fake satisfies the same interface for tests.
package store

import (
	"context"

	"github.com/datastack-br/perfil-pipeline/internal/model"
)

// Store is the persistence contract every stage reads and writes through.
type Store interface {
	SaveSearchResult(ctx context.Context, result model.SearchResult) error
	GetSearchResult(ctx context.Context, key model.CompanyKey) (*model.SearchResult, error)

	SaveDiscoveryResult(ctx context.Context, result model.DiscoveryResult) error
	GetDiscoveryResult(ctx context.Context, key model.CompanyKey) (*model.DiscoveryResult, error)

	// ReplaceScrapedChunks discards any chunks previously stored for key and
	// writes chunks in their place — a re-scrape totally replaces, never
	// appends.
	ReplaceScrapedChunks(ctx context.Context, key model.CompanyKey, chunks []model.ScrapedChunk) error
	GetScrapedChunks(ctx context.Context, key model.CompanyKey) ([]model.ScrapedChunk, error)

	SaveCompanyProfile(ctx context.Context, profile model.CompanyProfile) error
	GetCompanyProfile(ctx context.Context, key model.CompanyKey) (*model.CompanyProfile, error)

	GetSiteKnowledge(ctx context.Context, origin string) (*model.SiteKnowledge, error)
	UpdateSiteKnowledge(ctx context.Context, knowledge model.SiteKnowledge) error
}
