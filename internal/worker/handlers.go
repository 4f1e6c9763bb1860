package worker

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/datastack-br/perfil-pipeline/internal/discovery"
	"github.com/datastack-br/perfil-pipeline/internal/model"
	"github.com/datastack-br/perfil-pipeline/internal/profile"
	"github.com/datastack-br/perfil-pipeline/internal/store"
)

// DiscoveryHandler runs the site-discovery agent for a claimed entry's
// company key, reading its search result and writing the verdict back.
type DiscoveryHandler struct {
	Agent *discovery.Agent
	Store store.Store
}

func NewDiscoveryHandler(agent *discovery.Agent, st store.Store) *DiscoveryHandler {
	return &DiscoveryHandler{Agent: agent, Store: st}
}

func (h *DiscoveryHandler) Handle(ctx context.Context, entry model.QueueEntry) error {
	result, err := h.Store.GetSearchResult(ctx, entry.Key)
	if err != nil {
		return eris.Wrapf(err, "discovery handler: load search result for %s", entry.Key)
	}
	if result == nil {
		return eris.Errorf("discovery handler: no search result stored for %s", entry.Key)
	}

	verdict, err := h.Agent.Discover(ctx, *result)
	if err != nil {
		// Persist the error verdict so callers can see why, but still
		// fail the queue entry so it retries or dead-letters.
		if saveErr := h.Store.SaveDiscoveryResult(ctx, verdict); saveErr != nil {
			return eris.Wrapf(saveErr, "discovery handler: save error verdict for %s", entry.Key)
		}
		return eris.Wrapf(err, "discovery handler: %s", entry.Key)
	}

	if err := h.Store.SaveDiscoveryResult(ctx, verdict); err != nil {
		return eris.Wrapf(err, "discovery handler: save verdict for %s", entry.Key)
	}
	return nil
}

// ProfileHandler runs the profile extractor/merger for a claimed entry's
// company key, reading its scraped chunks and writing the merged profile
// back.
type ProfileHandler struct {
	Extractor *profile.Extractor
	Store     store.Store
}

func NewProfileHandler(extractor *profile.Extractor, st store.Store) *ProfileHandler {
	return &ProfileHandler{Extractor: extractor, Store: st}
}

func (h *ProfileHandler) Handle(ctx context.Context, entry model.QueueEntry) error {
	chunks, err := h.Store.GetScrapedChunks(ctx, entry.Key)
	if err != nil {
		return eris.Wrapf(err, "profile handler: load chunks for %s", entry.Key)
	}
	if len(chunks) == 0 {
		return eris.Errorf("profile handler: no scraped chunks stored for %s", entry.Key)
	}

	prof, err := h.Extractor.BuildProfile(ctx, entry.Key, chunks)
	if err != nil {
		return eris.Wrapf(err, "profile handler: %s", entry.Key)
	}

	if err := h.Store.SaveCompanyProfile(ctx, prof); err != nil {
		return eris.Wrapf(err, "profile handler: save profile for %s", entry.Key)
	}
	return nil
}
