package facade

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/datastack-br/perfil-pipeline/internal/model"
	"github.com/datastack-br/perfil-pipeline/internal/queue"
	"github.com/datastack-br/perfil-pipeline/internal/resilience"
	"github.com/datastack-br/perfil-pipeline/internal/search"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(r *http.Request, v any) bool {
	return json.NewDecoder(r.Body).Decode(v) == nil
}

func (f *Facade) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (f *Facade) handleSerper(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key         model.CompanyKey `json:"key"`
		CompanyName string           `json:"company_name"`
		TradeName   string           `json:"trade_name"`
		City        string           `json:"city"`
	}
	if !decodeBody(r, &req) || !req.Key.Valid() || req.CompanyName == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), SearchDeadline)
	defer cancel()

	query := search.BuildQuery(req.CompanyName, req.TradeName, req.City)
	result, err := f.Search.Search(ctx, req.Key, query)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "search vendor unreachable")
		return
	}

	if err := f.Store.SaveSearchResult(ctx, result); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save search result")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":           true,
		"search_id":    req.Key,
		"result_count": len(result.Hits),
		"query_used":   query,
	})
}

func (f *Facade) handleEncontrarSite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key model.CompanyKey `json:"key"`
	}
	if !decodeBody(r, &req) || !req.Key.Valid() {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	existing, err := f.Store.GetSearchResult(r.Context(), req.Key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load search result")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "no search row for key")
		return
	}

	outcome, _, err := f.DiscoveryQueue.Enqueue(r.Context(), req.Key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to enqueue")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"enqueued": outcome == model.Enqueued})
}

func (f *Facade) handleScrape(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key model.CompanyKey `json:"key"`
		URL string           `json:"url"`
	}
	if !decodeBody(r, &req) || !req.Key.Valid() || req.URL == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), ScrapeDeadline)
	defer cancel()

	result, err := f.Scraper.Scrape(ctx, req.Key, req.URL)
	if err != nil {
		if resilience.KindOf(err) == resilience.KindTransport {
			writeError(w, http.StatusNotFound, "no url")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":           result.Status != model.ScrapeStatusError,
		"chunks_saved": result.ChunksSaved,
		"tokens":       result.Tokens,
		"pages":        result.Pages,
		"ms":           result.Elapsed.Milliseconds(),
	})
}

func (f *Facade) handleMontagemPerfil(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key model.CompanyKey `json:"key"`
	}
	if !decodeBody(r, &req) || !req.Key.Valid() {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	chunks, err := f.Store.GetScrapedChunks(r.Context(), req.Key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load chunks")
		return
	}
	if len(chunks) == 0 {
		writeError(w, http.StatusNotFound, "no chunks for key")
		return
	}

	outcome, _, err := f.ProfileQueue.Enqueue(r.Context(), req.Key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to enqueue")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"enqueued": outcome == model.Enqueued})
}

func (f *Facade) queueFor(kind model.QueueKind) queue.Queue {
	if kind == model.QueueDiscovery {
		return f.DiscoveryQueue
	}
	return f.ProfileQueue
}

func (f *Facade) queueEnqueueHandler(kind model.QueueKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Key model.CompanyKey `json:"key"`
		}
		if !decodeBody(r, &req) || !req.Key.Valid() {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		outcome, _, err := f.queueFor(kind).Enqueue(r.Context(), req.Key)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to enqueue")
			return
		}
		writeJSON(w, http.StatusOK, map[string]model.EnqueueOutcome{"status": outcome})
	}
}

func (f *Facade) queueEnqueueBatchHandler(kind model.QueueKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Keys []model.CompanyKey `json:"keys"`
		}
		if !decodeBody(r, &req) {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		result, err := f.queueFor(kind).EnqueueBatch(r.Context(), req.Keys)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to enqueue batch")
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func (f *Facade) queueMetricsHandler(kind model.QueueKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metrics, err := f.queueFor(kind).Metrics(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load metrics")
			return
		}
		writeJSON(w, http.StatusOK, metrics)
	}
}

// handleCombinedQueueMetrics sums both queues for operators watching the
// whole pipeline at once — beyond the per-queue endpoints, doesn't change
// their contracts.
func (f *Facade) handleCombinedQueueMetrics(w http.ResponseWriter, r *http.Request) {
	discoveryMetrics, err := f.DiscoveryQueue.Metrics(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load discovery metrics")
		return
	}
	profileMetrics, err := f.ProfileQueue.Metrics(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load profile metrics")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"discovery": discoveryMetrics,
		"profile":   profileMetrics,
		"combined": model.QueueMetrics{
			Queued:     discoveryMetrics.Queued + profileMetrics.Queued,
			Processing: discoveryMetrics.Processing + profileMetrics.Processing,
			Done:       discoveryMetrics.Done + profileMetrics.Done,
			Failed:     discoveryMetrics.Failed + profileMetrics.Failed,
		},
	})
}
