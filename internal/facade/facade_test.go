package facade

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datastack-br/perfil-pipeline/internal/chunk"
	"github.com/datastack-br/perfil-pipeline/internal/fetch"
	"github.com/datastack-br/perfil-pipeline/internal/linkselect"
	"github.com/datastack-br/perfil-pipeline/internal/model"
	"github.com/datastack-br/perfil-pipeline/internal/prober"
	"github.com/datastack-br/perfil-pipeline/internal/queue"
	"github.com/datastack-br/perfil-pipeline/internal/resilience"
	"github.com/datastack-br/perfil-pipeline/internal/scrape"
	"github.com/datastack-br/perfil-pipeline/internal/search"
	"github.com/datastack-br/perfil-pipeline/internal/store"
)

const testAccessToken = "test-token"

func newTestFacade(t *testing.T, siteServer *httptest.Server) (*Facade, store.Store) {
	t.Helper()

	serperServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"organic":[{"title":"Acme","link":"` + siteServer.URL + `","snippet":"..."}]}`))
	}))
	t.Cleanup(serperServer.Close)

	st := store.NewMemoryStore()
	searchClient := search.New(serperServer.URL, "fake-key", nil)

	p := prober.New(scrape.KnowledgeStore{Store: st}, 5*time.Second)
	f := fetch.New(fetch.DefaultConfig())
	selector := linkselect.New(linkselect.DefaultBudget, nil)
	chunker := chunk.New(chunk.DefaultMaxTokens)
	breakers := resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig())
	scraper := scrape.New(p, f, selector, chunker, st, breakers)

	discoveryQueue := queue.NewMemoryQueue(queue.DefaultVisibilityTimeout, queue.DefaultMaxAttempts, queue.DefaultBackoffConfig())
	profileQueue := queue.NewMemoryQueue(queue.DefaultVisibilityTimeout, queue.DefaultMaxAttempts, queue.DefaultBackoffConfig())

	return New(searchClient, scraper, st, discoveryQueue, profileQueue, testAccessToken), st
}

func newSiteServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		filler := "filler content to pass the minimum body size check "
		_, _ = fmt.Fprintf(w, "<html><body><p>%s</p></body></html>", filler+filler+filler)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func doRequest(t *testing.T, handler http.Handler, method, path string, body any, withAuth bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if withAuth {
		req.Header.Set(AccessTokenHeader, testAccessToken)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthz_NoAuthRequired(t *testing.T) {
	f, _ := newTestFacade(t, newSiteServer(t))
	rec := doRequest(t, f.Router(), http.MethodGet, "/healthz", nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddleware_RejectsMissingToken(t *testing.T) {
	f, _ := newTestFacade(t, newSiteServer(t))
	rec := doRequest(t, f.Router(), http.MethodPost, "/v2/serper", map[string]string{"key": "12345678"}, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSerper_SavesSearchResultAndReturnsSummary(t *testing.T) {
	f, st := newTestFacade(t, newSiteServer(t))
	body := map[string]string{"key": "12345678", "company_name": "Acme Indústria", "city": "São Paulo"}
	rec := doRequest(t, f.Router(), http.MethodPost, "/v2/serper", body, true)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(1), resp["result_count"])

	saved, err := st.GetSearchResult(t.Context(), model.CompanyKey("12345678"))
	require.NoError(t, err)
	require.NotNil(t, saved)
}

func TestEncontrarSite_404WhenNoSearchRow(t *testing.T) {
	f, _ := newTestFacade(t, newSiteServer(t))
	rec := doRequest(t, f.Router(), http.MethodPost, "/v2/encontrar_site", map[string]string{"key": "12345678"}, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEncontrarSite_EnqueuesWhenSearchRowExists(t *testing.T) {
	f, st := newTestFacade(t, newSiteServer(t))
	require.NoError(t, st.SaveSearchResult(t.Context(), model.SearchResult{Key: "12345678", Query: "q"}))

	rec := doRequest(t, f.Router(), http.MethodPost, "/v2/encontrar_site", map[string]string{"key": "12345678"}, true)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestScrape_SavesChunksAndReturnsSummary(t *testing.T) {
	site := newSiteServer(t)
	f, st := newTestFacade(t, site)

	rec := doRequest(t, f.Router(), http.MethodPost, "/v2/scrape", map[string]string{"key": "12345678", "url": site.URL}, true)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Greater(t, resp["chunks_saved"], float64(0))

	saved, err := st.GetScrapedChunks(t.Context(), model.CompanyKey("12345678"))
	require.NoError(t, err)
	assert.NotEmpty(t, saved)
}

func TestMontagemPerfil_404WhenNoChunks(t *testing.T) {
	f, _ := newTestFacade(t, newSiteServer(t))
	rec := doRequest(t, f.Router(), http.MethodPost, "/v2/montagem_perfil", map[string]string{"key": "12345678"}, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQueueEnqueue_Discovery(t *testing.T) {
	f, _ := newTestFacade(t, newSiteServer(t))
	rec := doRequest(t, f.Router(), http.MethodPost, "/v2/queue_discovery/enqueue", map[string]string{"key": "12345678"}, true)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec2 := doRequest(t, f.Router(), http.MethodPost, "/v2/queue_discovery/enqueue", map[string]string{"key": "12345678"}, true)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &resp))
	assert.Equal(t, string(model.AlreadyActive), resp["status"])
}

func TestQueueEnqueueBatch_PartitionsResults(t *testing.T) {
	f, _ := newTestFacade(t, newSiteServer(t))
	body := map[string][]string{"keys": {"12345678", "87654321"}}
	rec := doRequest(t, f.Router(), http.MethodPost, "/v2/queue_profile/enqueue_batch", body, true)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp model.BatchEnqueueResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Enqueued, 2)
}

func TestQueueMetrics_PerQueueAndCombined(t *testing.T) {
	f, _ := newTestFacade(t, newSiteServer(t))
	doRequest(t, f.Router(), http.MethodPost, "/v2/queue_discovery/enqueue", map[string]string{"key": "12345678"}, true)

	rec := doRequest(t, f.Router(), http.MethodGet, "/v2/queue_discovery/metrics", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var metrics model.QueueMetrics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &metrics))
	assert.Equal(t, 1, metrics.Queued)

	combinedRec := doRequest(t, f.Router(), http.MethodGet, "/v2/queues/metrics", nil, true)
	require.Equal(t, http.StatusOK, combinedRec.Code)
	var combined map[string]any
	require.NoError(t, json.Unmarshal(combinedRec.Body.Bytes(), &combined))
	assert.NotNil(t, combined["combined"])
}
