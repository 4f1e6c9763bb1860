package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/datastack-br/perfil-pipeline/internal/db"
	"github.com/datastack-br/perfil-pipeline/internal/model"
)

// PostgresStore is the production Store backend.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore builds a PostgresStore over pool.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) SaveSearchResult(ctx context.Context, result model.SearchResult) error {
	hits, err := json.Marshal(result.Hits)
	if err != nil {
		return eris.Wrap(err, "store: marshal search hits")
	}

	sql := `
INSERT INTO search_results (key, query, hits, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (key) DO UPDATE SET query = EXCLUDED.query, hits = EXCLUDED.hits, created_at = EXCLUDED.created_at`

	if _, err := s.pool.Exec(ctx, sql, string(result.Key), result.Query, hits, result.CreatedAt); err != nil {
		return eris.Wrap(err, "store: save search result")
	}
	return nil
}

func (s *PostgresStore) GetSearchResult(ctx context.Context, key model.CompanyKey) (*model.SearchResult, error) {
	sql := `SELECT key, query, hits, created_at FROM search_results WHERE key = $1`

	var res model.SearchResult
	var k string
	var hits []byte
	err := s.pool.QueryRow(ctx, sql, string(key)).Scan(&k, &res.Query, &hits, &res.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: get search result")
	}
	res.Key = model.CompanyKey(k)
	if err := json.Unmarshal(hits, &res.Hits); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal search hits")
	}
	return &res, nil
}

func (s *PostgresStore) SaveDiscoveryResult(ctx context.Context, result model.DiscoveryResult) error {
	sql := `
INSERT INTO discovery_results (key, site_url, status, confidence, reasoning, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (key) DO UPDATE SET
	site_url = EXCLUDED.site_url,
	status = EXCLUDED.status,
	confidence = EXCLUDED.confidence,
	reasoning = EXCLUDED.reasoning,
	updated_at = EXCLUDED.updated_at`

	if _, err := s.pool.Exec(ctx, sql, string(result.Key), result.SiteURL, string(result.Status), result.Confidence, result.Reasoning, result.UpdatedAt); err != nil {
		return eris.Wrap(err, "store: save discovery result")
	}
	return nil
}

func (s *PostgresStore) GetDiscoveryResult(ctx context.Context, key model.CompanyKey) (*model.DiscoveryResult, error) {
	sql := `SELECT key, site_url, status, confidence, reasoning, updated_at FROM discovery_results WHERE key = $1`

	var res model.DiscoveryResult
	var k, status string
	err := s.pool.QueryRow(ctx, sql, string(key)).Scan(&k, &res.SiteURL, &status, &res.Confidence, &res.Reasoning, &res.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: get discovery result")
	}
	res.Key = model.CompanyKey(k)
	res.Status = model.DiscoveryStatus(status)
	return &res, nil
}

func (s *PostgresStore) ReplaceScrapedChunks(ctx context.Context, key model.CompanyKey, chunks []model.ScrapedChunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "store: replace chunks: begin tx")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM scraped_chunks WHERE key = $1`, string(key)); err != nil {
		return eris.Wrap(err, "store: replace chunks: delete")
	}

	for _, c := range chunks {
		sourceURLs, err := json.Marshal(c.SourceURLs)
		if err != nil {
			return eris.Wrap(err, "store: marshal source urls")
		}
		sql := `
INSERT INTO scraped_chunks (key, index, total, content, token_count, source_urls, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
		if _, err := tx.Exec(ctx, sql, string(key), c.Index, c.Total, c.Content, c.TokenCount, sourceURLs, c.CreatedAt); err != nil {
			return eris.Wrap(err, "store: replace chunks: insert")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "store: replace chunks: commit")
	}
	return nil
}

func (s *PostgresStore) GetScrapedChunks(ctx context.Context, key model.CompanyKey) ([]model.ScrapedChunk, error) {
	sql := `SELECT key, index, total, content, token_count, source_urls, created_at FROM scraped_chunks WHERE key = $1 ORDER BY index`

	rows, err := s.pool.Query(ctx, sql, string(key))
	if err != nil {
		return nil, eris.Wrap(err, "store: get scraped chunks")
	}
	defer rows.Close()

	var chunks []model.ScrapedChunk
	for rows.Next() {
		var c model.ScrapedChunk
		var k string
		var sourceURLs []byte
		if err := rows.Scan(&k, &c.Index, &c.Total, &c.Content, &c.TokenCount, &sourceURLs, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "store: scan scraped chunk")
		}
		c.Key = model.CompanyKey(k)
		if err := json.Unmarshal(sourceURLs, &c.SourceURLs); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal source urls")
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (s *PostgresStore) SaveCompanyProfile(ctx context.Context, profile model.CompanyProfile) error {
	offerings, err := json.Marshal(profile.Offerings)
	if err != nil {
		return eris.Wrap(err, "store: marshal offerings")
	}
	clients, err := json.Marshal(profile.Clients)
	if err != nil {
		return eris.Wrap(err, "store: marshal clients")
	}
	partnerships, err := json.Marshal(profile.Partnerships)
	if err != nil {
		return eris.Wrap(err, "store: marshal partnerships")
	}
	certifications, err := json.Marshal(profile.Certifications)
	if err != nil {
		return eris.Wrap(err, "store: marshal certifications")
	}
	caseStudies, err := json.Marshal(profile.CaseStudies)
	if err != nil {
		return eris.Wrap(err, "store: marshal case studies")
	}

	sql := `
INSERT INTO company_profiles (
	key, company_name, industry, description, offerings, clients,
	partnerships, certifications, case_studies, status, chunks_total, chunks_used, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (key) DO UPDATE SET
	company_name = EXCLUDED.company_name,
	industry = EXCLUDED.industry,
	description = EXCLUDED.description,
	offerings = EXCLUDED.offerings,
	clients = EXCLUDED.clients,
	partnerships = EXCLUDED.partnerships,
	certifications = EXCLUDED.certifications,
	case_studies = EXCLUDED.case_studies,
	status = EXCLUDED.status,
	chunks_total = EXCLUDED.chunks_total,
	chunks_used = EXCLUDED.chunks_used,
	updated_at = EXCLUDED.updated_at`

	_, err = s.pool.Exec(ctx, sql,
		string(profile.Key), profile.CompanyName, profile.Industry, profile.Description,
		offerings, clients, partnerships, certifications, caseStudies,
		string(profile.Status), profile.ChunksTotal, profile.ChunksUsed, profile.UpdatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "store: save company profile")
	}
	return nil
}

func (s *PostgresStore) GetCompanyProfile(ctx context.Context, key model.CompanyKey) (*model.CompanyProfile, error) {
	sql := `
SELECT key, company_name, industry, description, offerings, clients,
	partnerships, certifications, case_studies, status, chunks_total, chunks_used, updated_at
FROM company_profiles WHERE key = $1`

	var p model.CompanyProfile
	var k, status string
	var offerings, clients, partnerships, certifications, caseStudies []byte

	err := s.pool.QueryRow(ctx, sql, string(key)).Scan(
		&k, &p.CompanyName, &p.Industry, &p.Description, &offerings, &clients,
		&partnerships, &certifications, &caseStudies, &status, &p.ChunksTotal, &p.ChunksUsed, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: get company profile")
	}

	p.Key = model.CompanyKey(k)
	p.Status = model.StageStatus(status)
	if err := json.Unmarshal(offerings, &p.Offerings); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal offerings")
	}
	if err := json.Unmarshal(clients, &p.Clients); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal clients")
	}
	if err := json.Unmarshal(partnerships, &p.Partnerships); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal partnerships")
	}
	if err := json.Unmarshal(certifications, &p.Certifications); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal certifications")
	}
	if err := json.Unmarshal(caseStudies, &p.CaseStudies); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal case studies")
	}
	return &p, nil
}

func (s *PostgresStore) GetSiteKnowledge(ctx context.Context, origin string) (*model.SiteKnowledge, error) {
	sql := `SELECT origin, best_strategy, protection, success_rate, last_success_at, updated_at FROM site_knowledge WHERE origin = $1`

	var k model.SiteKnowledge
	err := s.pool.QueryRow(ctx, sql, origin).Scan(&k.Origin, &k.BestStrategy, &k.Protection, &k.SuccessRate, &k.LastSuccessAt, &k.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: get site knowledge")
	}
	return &k, nil
}

func (s *PostgresStore) UpdateSiteKnowledge(ctx context.Context, knowledge model.SiteKnowledge) error {
	sql := `
INSERT INTO site_knowledge (origin, best_strategy, protection, success_rate, last_success_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (origin) DO UPDATE SET
	best_strategy = EXCLUDED.best_strategy,
	protection = EXCLUDED.protection,
	success_rate = EXCLUDED.success_rate,
	last_success_at = EXCLUDED.last_success_at,
	updated_at = EXCLUDED.updated_at`

	if _, err := s.pool.Exec(ctx, sql, knowledge.Origin, knowledge.BestStrategy, knowledge.Protection, knowledge.SuccessRate, knowledge.LastSuccessAt, knowledge.UpdatedAt); err != nil {
		return eris.Wrap(err, "store: update site knowledge")
	}
	return nil
}
