package store

import (
	"context"
	"sync"

	"github.com/datastack-br/perfil-pipeline/internal/model"
)

// MemoryStore is an in-process Store fake for tests, satisfying the same
// contract as PostgresStore.
type MemoryStore struct {
	mu        sync.Mutex
	search    map[model.CompanyKey]model.SearchResult
	discovery map[model.CompanyKey]model.DiscoveryResult
	chunks    map[model.CompanyKey][]model.ScrapedChunk
	profiles  map[model.CompanyKey]model.CompanyProfile
	knowledge map[string]model.SiteKnowledge
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		search:    make(map[model.CompanyKey]model.SearchResult),
		discovery: make(map[model.CompanyKey]model.DiscoveryResult),
		chunks:    make(map[model.CompanyKey][]model.ScrapedChunk),
		profiles:  make(map[model.CompanyKey]model.CompanyProfile),
		knowledge: make(map[string]model.SiteKnowledge),
	}
}

func (s *MemoryStore) SaveSearchResult(_ context.Context, result model.SearchResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.search[result.Key] = result
	return nil
}

func (s *MemoryStore) GetSearchResult(_ context.Context, key model.CompanyKey) (*model.SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.search[key]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s *MemoryStore) SaveDiscoveryResult(_ context.Context, result model.DiscoveryResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discovery[result.Key] = result
	return nil
}

func (s *MemoryStore) GetDiscoveryResult(_ context.Context, key model.CompanyKey) (*model.DiscoveryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.discovery[key]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s *MemoryStore) ReplaceScrapedChunks(_ context.Context, key model.CompanyKey, chunks []model.ScrapedChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]model.ScrapedChunk, len(chunks))
	copy(cp, chunks)
	s.chunks[key] = cp
	return nil
}

func (s *MemoryStore) GetScrapedChunks(_ context.Context, key model.CompanyKey) ([]model.ScrapedChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunks[key], nil
}

func (s *MemoryStore) SaveCompanyProfile(_ context.Context, profile model.CompanyProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.Key] = profile
	return nil
}

func (s *MemoryStore) GetCompanyProfile(_ context.Context, key model.CompanyKey) (*model.CompanyProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[key]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *MemoryStore) GetSiteKnowledge(_ context.Context, origin string) (*model.SiteKnowledge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.knowledge[origin]
	if !ok {
		return nil, nil
	}
	return &k, nil
}

func (s *MemoryStore) UpdateSiteKnowledge(_ context.Context, knowledge model.SiteKnowledge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.knowledge[knowledge.Origin] = knowledge
	return nil
}
