// Package profile implements the profile-extraction and cross-chunk merge
// stage: one structured-output call per chunk, unconditional post-parse
// normalization, then a merge across every chunk that contributed.
package profile

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/datastack-br/perfil-pipeline/internal/llm"
	"github.com/datastack-br/perfil-pipeline/internal/model"
)

// Extractor runs the profile-build stage for one company key: one
// structured-output call per chunk, normalized and merged.
type Extractor struct {
	manager *llm.Manager
	caps    model.Caps
	cmp     descriptionComparator
}

// NewExtractor builds an Extractor over manager, using DefaultCaps and the
// default longer-wins description comparator.
func NewExtractor(manager *llm.Manager) *Extractor {
	return &Extractor{manager: manager, caps: model.DefaultCaps(), cmp: longerWins}
}

// ExtractChunk runs one chunk through the model and returns its normalized
// partial profile. A terminal failure for this chunk is returned as an
// error; the caller (BuildProfile) treats that as a skipped contribution.
func (e *Extractor) ExtractChunk(ctx context.Context, key model.CompanyKey, chunk model.ScrapedChunk) (*model.CompanyProfile, error) {
	req := llm.Request{
		System: systemPrompt(e.caps),
		Messages: []llm.Message{
			{Role: "user", Content: chunk.Content},
		},
		Schema:      companySchema(),
		InputTokens: chunk.TokenCount,
	}

	result, err := e.manager.Call(ctx, req)
	if err != nil {
		return nil, eris.Wrapf(err, "profile: extract chunk %d for %s", chunk.Index, key)
	}

	raw, err := json.Marshal(result.Object)
	if err != nil {
		return nil, eris.Wrap(err, "profile: re-marshal extracted object")
	}

	var parsed model.CompanyProfile
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, eris.Wrap(err, "profile: decode extracted object")
	}
	parsed.Key = key

	normalized := Normalize(parsed, e.caps)
	return &normalized, nil
}

// BuildProfile runs every chunk through ExtractChunk, skipping chunks that
// fail terminally, then merges every contributing chunk's normalized
// partial profile into one CompanyProfile whose status reflects the
// fraction of chunks that actually contributed.
func (e *Extractor) BuildProfile(ctx context.Context, key model.CompanyKey, chunks []model.ScrapedChunk) (model.CompanyProfile, error) {
	var contributed []model.CompanyProfile
	for _, chunk := range chunks {
		partial, err := e.ExtractChunk(ctx, key, chunk)
		if err != nil {
			continue
		}
		contributed = append(contributed, *partial)
	}

	merged := Merge(key, contributed, e.caps, e.cmp)
	merged.ChunksTotal = len(chunks)
	merged.ChunksUsed = len(contributed)
	merged.Status = StageStatus(merged.ChunksTotal, merged.ChunksUsed)
	merged.UpdatedAt = time.Now()
	return merged, nil
}
