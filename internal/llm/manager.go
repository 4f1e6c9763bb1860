// Package llm implements the structured-output caller: the single path
// through which every model call in the pipeline flows, regardless of
// vendor. It owns concurrency limits, the rate-budget gate, adaptive
// output-token budgets, degeneration detection, schema enforcement, retry
// policy, and vendor fallback.
package llm

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"github.com/datastack-br/perfil-pipeline/internal/ratelimit"
	"github.com/datastack-br/perfil-pipeline/internal/resilience"
	"github.com/datastack-br/perfil-pipeline/pkg/anthropic"
)

// Message is a single conversational turn going into a call.
type Message struct {
	Role    string
	Content string
}

// Request describes one structured-output call, vendor-agnostic.
type Request struct {
	System      string
	Messages    []Message
	Schema      Schema
	InputTokens int
	MaxAttempts int
}

// Result carries the raw parsed JSON object plus attribution.
type Result struct {
	Object map[string]any
	Raw    string
	Vendor string
	Usage  anthropic.TokenUsage
}

// VendorConfig configures one vendor pool.
type VendorConfig struct {
	Name            string
	Client          anthropic.Client
	Model           string
	MaxOutputTokens int
	Concurrency     int
	RatePerSecond   float64
	Burst           int
}

// vendorPool bounds concurrency and tracks health for one vendor.
type vendorPool struct {
	cfg    VendorConfig
	sem    chan struct{}
	gate   *ratelimit.Gate
	gateKy ratelimit.Key
	health *healthWindow
}

func newVendorPool(cfg VendorConfig) *vendorPool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 2
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.Concurrency
	}
	return &vendorPool{
		cfg:    cfg,
		sem:    make(chan struct{}, cfg.Concurrency),
		gate:   ratelimit.New(cfg.RatePerSecond, cfg.Burst),
		gateKy: ratelimit.Key{Vendor: cfg.Name, Resource: "messages"},
		health: newHealthWindow(),
	}
}

// Manager routes calls across vendor pools with health-weighted fallback
// and a process-wide hard concurrency cap.
type Manager struct {
	pools     []*vendorPool
	globalSem chan struct{}
}

// ManagerConfig configures the Manager.
type ManagerConfig struct {
	Vendors              []VendorConfig
	GlobalConcurrencyCap int
}

// DefaultGlobalConcurrencyCap is the process-wide hard cap across vendors.
const DefaultGlobalConcurrencyCap = 32

// NewManager builds a Manager. Vendors are tried in the given priority
// order, subject to health-score skipping.
func NewManager(cfg ManagerConfig) *Manager {
	globalCap := cfg.GlobalConcurrencyCap
	if globalCap <= 0 {
		globalCap = DefaultGlobalConcurrencyCap
	}
	m := &Manager{globalSem: make(chan struct{}, globalCap)}
	for _, vc := range cfg.Vendors {
		m.pools = append(m.pools, newVendorPool(vc))
	}
	return m
}

// AdaptiveOutputBudget derives the output-token cap from input size, to
// bound the blast radius of degenerate runs on small inputs.
func AdaptiveOutputBudget(inputTokens, vendorMax int) int {
	switch {
	case inputTokens < 3000:
		return 1200
	case inputTokens <= 8000:
		return 2000
	default:
		return vendorMax
	}
}

// Call routes req through the healthiest available vendor, retrying on
// transport errors with back-off and on degeneration immediately with
// adjusted sampling, falling over to the next vendor once attempts are
// exhausted.
func (m *Manager) Call(ctx context.Context, req Request) (*Result, error) {
	if len(m.pools) == 0 {
		return nil, resilience.WrapMsg(resilience.KindFatalConfig, "llm: no vendors configured")
	}

	ordered := m.rankedPools()
	var lastErr error
	for _, pool := range ordered {
		res, err := m.callVendor(ctx, pool, req)
		if err == nil {
			return res, nil
		}
		lastErr = err
	}
	return nil, resilience.Wrap(resilience.KindExhausted, lastErr)
}

// rankedPools returns pools sorted by descending health score, excluding
// those below the health floor unless every pool is below it (in which
// case degraded service beats none at all).
func (m *Manager) rankedPools() []*vendorPool {
	now := time.Now()
	type scored struct {
		pool  *vendorPool
		score float64
	}
	scoredList := make([]scored, len(m.pools))
	for i, p := range m.pools {
		scoredList[i] = scored{pool: p, score: p.health.score(now)}
	}
	sort.SliceStable(scoredList, func(i, j int) bool {
		return scoredList[i].score > scoredList[j].score
	})

	var healthy []*vendorPool
	for _, s := range scoredList {
		if s.score >= healthFloor {
			healthy = append(healthy, s.pool)
		}
	}
	if len(healthy) == 0 {
		for _, s := range scoredList {
			healthy = append(healthy, s.pool)
		}
	}
	return healthy
}

func (m *Manager) callVendor(ctx context.Context, pool *vendorPool, req Request) (*Result, error) {
	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	// The Messages API exposes temperature but not presence/frequency
	// penalties, so the degeneration-retry sampling adjustment is limited
	// to raising temperature from 0.1 to 0.2.
	temperature := 0.1
	schemaRetried := false

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res, kind, err := m.attempt(ctx, pool, req, temperature)
		if err == nil {
			return res, nil
		}
		lastErr = err

		switch kind {
		case resilience.KindDegeneration, resilience.KindSchemaViolation:
			if kind == resilience.KindSchemaViolation {
				if schemaRetried {
					return nil, resilience.Wrap(resilience.KindExhausted, lastErr)
				}
				schemaRetried = true
			}
			temperature = 0.2
			continue
		case resilience.KindTransport, resilience.KindRateLimited:
			if attempt >= maxAttempts-1 {
				break
			}
			delay := backoff(attempt)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		default:
			return nil, err
		}
	}
	return nil, resilience.Wrap(resilience.KindExhausted, lastErr)
}

func backoff(attempt int) time.Duration {
	base := 500 * time.Millisecond
	delay := base << attempt
	if delay > 30*time.Second {
		delay = 30 * time.Second
	}
	jitter := time.Duration(rand.Float64() * float64(delay) * 0.25)
	return delay + jitter
}

// attempt performs exactly one call, gating on concurrency and the rate
// limiter, then runs degeneration detection and schema validation. It
// returns the error's Kind alongside the error so the retry loop in
// callVendor can branch without re-deriving the kind.
func (m *Manager) attempt(ctx context.Context, pool *vendorPool, req Request, temperature float64) (*Result, resilience.ErrKind, error) {
	select {
	case m.globalSem <- struct{}{}:
	case <-ctx.Done():
		return nil, resilience.KindTransport, ctx.Err()
	}
	defer func() { <-m.globalSem }()

	select {
	case pool.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, resilience.KindTransport, ctx.Err()
	}
	defer func() { <-pool.sem }()

	if err := pool.gate.Acquire(ctx, pool.gateKy, 1, 60*time.Second); err != nil {
		return nil, resilience.KindRateLimited, resilience.Wrap(resilience.KindRateLimited, err)
	}

	budget := AdaptiveOutputBudget(req.InputTokens, pool.cfg.MaxOutputTokens)

	start := time.Now()
	resp, err := pool.cfg.Client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       pool.cfg.Model,
		MaxTokens:   int64(budget),
		System:      []anthropic.SystemBlock{{Text: req.System}},
		Messages:    toAnthropicMessages(req.Messages),
		Temperature: &temperature,
	})
	latency := time.Since(start)

	if err != nil {
		rateLimited := strings.Contains(strings.ToLower(err.Error()), "429") ||
			strings.Contains(strings.ToLower(err.Error()), "rate limit")
		pool.health.record(outcome{success: false, rateLimited: rateLimited, latency: latency, at: start})
		kind := resilience.KindTransport
		if rateLimited {
			kind = resilience.KindRateLimited
		}
		return nil, kind, resilience.Wrap(kind, err)
	}

	text := extractText(resp)

	if DetectDegeneration(text) {
		pool.health.record(outcome{success: false, latency: latency, at: start})
		return nil, resilience.KindDegeneration, resilience.WrapMsg(resilience.KindDegeneration, "llm: degenerate output detected")
	}

	var parsed map[string]any
	if jsonErr := json.Unmarshal([]byte(text), &parsed); jsonErr != nil {
		pool.health.record(outcome{success: false, latency: latency, at: start})
		return nil, resilience.KindSchemaViolation, resilience.Wrap(resilience.KindSchemaViolation, jsonErr)
	}

	if req.Schema != nil {
		if err := Validate(req.Schema, parsed); err != nil {
			pool.health.record(outcome{success: false, latency: latency, at: start})
			return nil, resilience.KindSchemaViolation, resilience.Wrap(resilience.KindSchemaViolation, err)
		}
	}

	pool.health.record(outcome{success: true, latency: latency, at: start})
	return &Result{Object: parsed, Raw: text, Vendor: pool.cfg.Name, Usage: resp.Usage}, resilience.KindTransport, nil
}

func toAnthropicMessages(msgs []Message) []anthropic.Message {
	out := make([]anthropic.Message, len(msgs))
	for i, m := range msgs {
		out[i] = anthropic.Message{Role: m.Role, Content: m.Content}
	}
	return out
}

func extractText(resp *anthropic.MessageResponse) string {
	var sb []byte
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb = append(sb, []byte(b.Text)...)
		}
	}
	return string(sb)
}
