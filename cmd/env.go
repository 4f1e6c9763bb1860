package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/datastack-br/perfil-pipeline/internal/chunk"
	"github.com/datastack-br/perfil-pipeline/internal/db"
	"github.com/datastack-br/perfil-pipeline/internal/discovery"
	"github.com/datastack-br/perfil-pipeline/internal/fetch"
	"github.com/datastack-br/perfil-pipeline/internal/linkselect"
	"github.com/datastack-br/perfil-pipeline/internal/llm"
	"github.com/datastack-br/perfil-pipeline/internal/model"
	"github.com/datastack-br/perfil-pipeline/internal/prober"
	"github.com/datastack-br/perfil-pipeline/internal/profile"
	"github.com/datastack-br/perfil-pipeline/internal/queue"
	"github.com/datastack-br/perfil-pipeline/internal/ratelimit"
	"github.com/datastack-br/perfil-pipeline/internal/resilience"
	"github.com/datastack-br/perfil-pipeline/internal/scrape"
	"github.com/datastack-br/perfil-pipeline/internal/search"
	"github.com/datastack-br/perfil-pipeline/internal/store"
	"github.com/datastack-br/perfil-pipeline/pkg/anthropic"
)

const (
	discoveryQueueTable = "discovery_queue"
	profileQueueTable   = "profile_queue"
)

// env holds every shared dependency the serve and worker commands wire
// together, built once from cfg and torn down on shutdown.
type env struct {
	pool           *pgxpool.Pool
	Store          store.Store
	DiscoveryQueue queue.Queue
	ProfileQueue   queue.Queue
	Search         *search.Client
	Scraper        *scrape.Scraper
	Manager        *llm.Manager
	DiscoveryAgent *discovery.Agent
	Extractor      *profile.Extractor
}

// Close releases the database pool.
func (e *env) Close() {
	if e.pool != nil {
		e.pool.Close()
	}
}

func queueBackoff() queue.BackoffConfig {
	return queue.BackoffConfig{
		Base: time.Duration(cfg.Queue.BackoffBaseSecs) * time.Second,
		Cap:  time.Duration(cfg.Queue.BackoffCapSecs) * time.Second,
	}
}

// buildEnv wires the store, queues, and every stage's runtime dependencies
// from cfg. Every command (serve, worker) shares this so a worker process
// talks to the exact same store/queue implementations the facade does.
func buildEnv(ctx context.Context) (*env, error) {
	pool, err := db.NewPgxPool(ctx, cfg.Store.DatabaseURL, cfg.Store.MaxConns, cfg.Store.MinConns)
	if err != nil {
		return nil, err
	}

	st := store.NewPostgresStore(pool)
	visibility := time.Duration(cfg.Queue.VisibilityTimeoutSecs) * time.Second

	discoveryQueue := queue.NewPostgresQueue(pool, model.QueueDiscovery, discoveryQueueTable, visibility, cfg.Queue.MaxAttempts, queueBackoff())
	profileQueue := queue.NewPostgresQueue(pool, model.QueueProfile, profileQueueTable, visibility, cfg.Queue.MaxAttempts, queueBackoff())

	searchGate := ratelimit.New(cfg.RateLimit.Search.RatePerSecond, cfg.RateLimit.Search.Burst)
	searchClient := search.New(cfg.Search.BaseURL, cfg.Search.Key, searchGate)

	manager := llm.NewManager(llm.ManagerConfig{
		GlobalConcurrencyCap: cfg.Worker.LLMConcurrencyHardCap,
		Vendors: []llm.VendorConfig{
			{
				Name:            "anthropic",
				Client:          anthropic.NewClient(cfg.Anthropic.Key),
				Model:           cfg.Anthropic.Model,
				MaxOutputTokens: cfg.Anthropic.MaxOutputTokens,
				Concurrency:     cfg.Anthropic.Concurrency,
				RatePerSecond:   cfg.RateLimit.Anthropic.RatePerSecond,
				Burst:           cfg.RateLimit.Anthropic.Burst,
			},
			{
				Name:            "secondary",
				Client:          anthropic.NewClient(cfg.Secondary.Key),
				Model:           cfg.Secondary.Model,
				MaxOutputTokens: cfg.Secondary.MaxOutputTokens,
				Concurrency:     cfg.Secondary.Concurrency,
				RatePerSecond:   cfg.RateLimit.Secondary.RatePerSecond,
				Burst:           cfg.RateLimit.Secondary.Burst,
			},
		},
	})

	breakers := resilience.NewServiceBreakers(resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		ResetTimeout:     time.Duration(cfg.Breaker.CooldownSecs) * time.Second,
		MaxResetTimeout:  time.Duration(cfg.Breaker.MaxCooldownSecs) * time.Second,
	})
	fetcher := fetch.New(fetch.DefaultConfig())
	prb := prober.New(scrape.KnowledgeStore{Store: st}, 5*time.Second)
	selector := linkselect.New(cfg.LinkBudget, scrape.NewModelRanker(manager))
	chunker := chunk.New(cfg.Chunk.MaxTokensPerChunk)
	scraper := scrape.New(prb, fetcher, selector, chunker, st, breakers)

	return &env{
		pool:           pool,
		Store:          st,
		DiscoveryQueue: discoveryQueue,
		ProfileQueue:   profileQueue,
		Search:         searchClient,
		Scraper:        scraper,
		Manager:        manager,
		DiscoveryAgent: discovery.NewAgent(manager),
		Extractor:      profile.NewExtractor(manager),
	}, nil
}
