package llm

import (
	"container/ring"
	"sync"
	"time"
)

// healthWindowSize is the number of recent outcomes the health score
// blends over.
const healthWindowSize = 50

// healthFloor is the score below which a vendor is temporarily skipped
// during fallback routing.
const healthFloor = 20.0

type outcome struct {
	success     bool
	rateLimited bool
	latency     time.Duration
	at          time.Time
}

// healthWindow tracks the last healthWindowSize call outcomes for one
// vendor and blends them into a single 0-100 health score.
type healthWindow struct {
	mu          sync.Mutex
	ring        *ring.Ring
	count       int
	lastSuccess time.Time
}

func newHealthWindow() *healthWindow {
	return &healthWindow{ring: ring.New(healthWindowSize)}
}

func (h *healthWindow) record(o outcome) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ring.Value = o
	h.ring = h.ring.Next()
	if h.count < healthWindowSize {
		h.count++
	}
	if o.success {
		h.lastSuccess = o.at
	}
}

// score blends recent success rate (0.4), inverse recent latency (0.3),
// rate-limit hit fraction (0.2), and recency of success (0.1) into a
// 0-100 score. An empty window scores neutrally so an unused vendor
// isn't skipped before it has ever been called.
func (h *healthWindow) score(now time.Time) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count == 0 {
		return 100
	}

	var successes, rateLimited int
	var totalLatency time.Duration
	r := h.ring.Move(-h.count)
	for i := 0; i < h.count; i++ {
		o, ok := r.Value.(outcome)
		if ok {
			if o.success {
				successes++
			}
			if o.rateLimited {
				rateLimited++
			}
			totalLatency += o.latency
		}
		r = r.Next()
	}

	successRate := float64(successes) / float64(h.count)
	avgLatency := totalLatency / time.Duration(h.count)

	// Normalize latency against a 30s ceiling: at or above it, the
	// inverse-latency component bottoms out at 0.
	latencyCeiling := 30 * time.Second
	invLatency := 1 - float64(avgLatency)/float64(latencyCeiling)
	if invLatency < 0 {
		invLatency = 0
	}

	rateLimitFraction := float64(rateLimited) / float64(h.count)

	recency := 0.0
	if !h.lastSuccess.IsZero() {
		age := now.Sub(h.lastSuccess)
		recencyCeiling := 10 * time.Minute
		recency = 1 - float64(age)/float64(recencyCeiling)
		if recency < 0 {
			recency = 0
		}
	}

	score := 0.4*successRate*100 + 0.3*invLatency*100 + 0.2*(1-rateLimitFraction)*100 + 0.1*recency*100
	return score
}
