// Package facade implements the orchestration facade: one HTTP endpoint
// per stage behind a shared-secret header, synchronous for search and
// scrape, enqueue-and-202 for discovery and profile.
package facade

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/datastack-br/perfil-pipeline/internal/model"
	"github.com/datastack-br/perfil-pipeline/internal/queue"
	"github.com/datastack-br/perfil-pipeline/internal/scrape"
	"github.com/datastack-br/perfil-pipeline/internal/search"
	"github.com/datastack-br/perfil-pipeline/internal/store"
)

// SearchDeadline and ScrapeDeadline bound the synchronous stage
// invocations the facade drives inline (§5).
const (
	SearchDeadline = 30 * time.Second
	ScrapeDeadline = 2 * time.Minute
)

// Facade wires every stage's entry point behind the HTTP surface.
type Facade struct {
	Search         *search.Client
	Scraper        *scrape.Scraper
	Store          store.Store
	DiscoveryQueue queue.Queue
	ProfileQueue   queue.Queue
	AccessToken    string
}

// New builds a Facade.
func New(searchClient *search.Client, scraper *scrape.Scraper, st store.Store, discoveryQueue, profileQueue queue.Queue, accessToken string) *Facade {
	return &Facade{
		Search:         searchClient,
		Scraper:        scraper,
		Store:          st,
		DiscoveryQueue: discoveryQueue,
		ProfileQueue:   profileQueue,
		AccessToken:    accessToken,
	}
}

// Router builds the chi router for every endpoint in the external
// interfaces table, with shared-secret auth applied to every route except
// /healthz.
func (f *Facade) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(loggingMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type", "X-Access-Token"},
	}))

	r.Get("/healthz", f.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(f.authMiddleware)

		r.Post("/v2/serper", f.handleSerper)
		r.Post("/v2/encontrar_site", f.handleEncontrarSite)
		r.Post("/v2/scrape", f.handleScrape)
		r.Post("/v2/montagem_perfil", f.handleMontagemPerfil)

		r.Post("/v2/queue_discovery/enqueue", f.queueEnqueueHandler(model.QueueDiscovery))
		r.Post("/v2/queue_discovery/enqueue_batch", f.queueEnqueueBatchHandler(model.QueueDiscovery))
		r.Get("/v2/queue_discovery/metrics", f.queueMetricsHandler(model.QueueDiscovery))

		r.Post("/v2/queue_profile/enqueue", f.queueEnqueueHandler(model.QueueProfile))
		r.Post("/v2/queue_profile/enqueue_batch", f.queueEnqueueBatchHandler(model.QueueProfile))
		r.Get("/v2/queue_profile/metrics", f.queueMetricsHandler(model.QueueProfile))

		r.Get("/v2/queues/metrics", f.handleCombinedQueueMetrics)
	})

	return r
}
