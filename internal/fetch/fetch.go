// Package fetch implements the adaptive HTTP fetcher: a net/http client
// parameterized by strategy (fast, standard, robust, aggressive), each with
// its own timeout and transport, plus protection-signature detection and
// the strategy-escalation loop stage handlers drive.
package fetch

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/datastack-br/perfil-pipeline/internal/model"
	"github.com/datastack-br/perfil-pipeline/internal/resilience"
)

const maxBodyBytes = 512 * 1024

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
}

// Config parameterizes every strategy's transport.
type Config struct {
	FastTimeout       time.Duration
	StandardTimeout   time.Duration
	RobustTimeout     time.Duration
	AggressiveTimeout time.Duration

	// ProxyURL routes standard/aggressive traffic through an upstream proxy;
	// fast and robust always dial directly. Nil means direct dial for every strategy (acceptable for local
	// development; production deployments set this).
	ProxyURL *url.URL

	// UserAgents is the rotation pool used by robust and aggressive.
	UserAgents []string
}

// DefaultConfig returns the strategy timeouts from the strategy ordering in
// §4.4: FAST direct/short, STANDARD via proxy/medium, ROBUST UA-rotated,
// AGGRESSIVE proxy+UA rotation with the longest timeout.
func DefaultConfig() Config {
	return Config{
		FastTimeout:       8 * time.Second,
		StandardTimeout:   15 * time.Second,
		RobustTimeout:     20 * time.Second,
		AggressiveTimeout: 30 * time.Second,
		UserAgents:        defaultUserAgents,
	}
}

// Fetcher executes fetches under a chosen strategy.
type Fetcher struct {
	cfg     Config
	clients map[model.FetchStrategy]*http.Client
}

// New builds a Fetcher with one *http.Client per strategy.
func New(cfg Config) *Fetcher {
	if len(cfg.UserAgents) == 0 {
		cfg.UserAgents = defaultUserAgents
	}
	f := &Fetcher{cfg: cfg}
	f.clients = map[model.FetchStrategy]*http.Client{
		model.StrategyFast:       {Timeout: cfg.FastTimeout, Transport: directTransport()},
		model.StrategyStandard:   {Timeout: cfg.StandardTimeout, Transport: proxiedTransport(cfg.ProxyURL)},
		model.StrategyRobust:     {Timeout: cfg.RobustTimeout, Transport: directTransport()},
		model.StrategyAggressive: {Timeout: cfg.AggressiveTimeout, Transport: proxiedTransport(cfg.ProxyURL)},
	}
	return f
}

func directTransport() *http.Transport {
	return &http.Transport{
		DialContext:         (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

func proxiedTransport(proxy *url.URL) *http.Transport {
	t := directTransport()
	if proxy != nil {
		t.Proxy = http.ProxyURL(proxy)
	}
	return t
}

func (f *Fetcher) userAgent(strategy model.FetchStrategy) string {
	if strategy != model.StrategyRobust && strategy != model.StrategyAggressive {
		return f.cfg.UserAgents[0]
	}
	return f.cfg.UserAgents[rand.IntN(len(f.cfg.UserAgents))]
}

// Fetch executes one HTTP GET under strategy. A detected protection
// signature returns a KindProtectionDetected error carrying the body's
// classification; genuine transport failures, statuses of 400 and above,
// and bodies shorter than 100 bytes return KindTransport.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string, strategy model.FetchStrategy) (*model.FetchedPage, error) {
	client, ok := f.clients[strategy]
	if !ok {
		return nil, resilience.WrapMsg(resilience.KindFatalConfig, "fetch: unknown strategy "+string(strategy))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, resilience.Wrap(resilience.KindTransport, eris.Wrap(err, "fetch: create request"))
	}
	req.Header.Set("User-Agent", f.userAgent(strategy))
	req.Header.Set("Accept-Language", "pt-BR,pt;q=0.9,en;q=0.5")

	resp, err := client.Do(req)
	if err != nil {
		return nil, resilience.Wrap(resilience.KindTransport, eris.Wrapf(err, "fetch: %s strategy", strategy))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resilience.Wrap(resilience.KindTransport, eris.Wrap(err, "fetch: read body"))
	}

	if blocked, kind := DetectBlock(resp, body); blocked {
		return nil, resilience.WrapMsg(resilience.KindProtectionDetected, "fetch: "+string(kind))
	}

	if resp.StatusCode >= 400 {
		return nil, resilience.WrapMsg(resilience.KindTransport, fmt.Sprintf("fetch: status %d", resp.StatusCode))
	}
	if len(body) < 100 {
		return nil, resilience.WrapMsg(resilience.KindTransport, "fetch: empty page")
	}

	return &model.FetchedPage{
		URL:        targetURL,
		Title:      extractTitle(body),
		Text:       stripHTML(string(body)),
		RawHTML:    string(body),
		StatusCode: resp.StatusCode,
		Strategy:   strategy,
		FetchedAt:  time.Now(),
	}, nil
}

// strategyOrder is the default escalation sequence; SiteKnowledge may
// promote a previously-successful strategy to the head (§4.5).
var strategyOrder = []model.FetchStrategy{
	model.StrategyFast, model.StrategyStandard, model.StrategyRobust, model.StrategyAggressive,
}

// Promote returns strategyOrder with preferred moved to the front, if present.
func Promote(preferred model.FetchStrategy) []model.FetchStrategy {
	if preferred == "" {
		return strategyOrder
	}
	out := make([]model.FetchStrategy, 0, len(strategyOrder))
	out = append(out, preferred)
	for _, s := range strategyOrder {
		if s != preferred {
			out = append(out, s)
		}
	}
	return out
}

// FetchWithEscalation tries strategies in order, stopping at the first
// non-protected success or once every strategy has been tried. Protection
// detections are not recorded against breaker; every other failure is.
// Breaker may be nil to skip circuit accounting entirely.
func (f *Fetcher) FetchWithEscalation(ctx context.Context, targetURL string, strategies []model.FetchStrategy, breaker *resilience.CircuitBreaker) (*model.FetchedPage, error) {
	if breaker != nil {
		if err := breaker.Allow(); err != nil {
			return nil, err
		}
	}

	var lastErr error
	for _, strategy := range strategies {
		page, err := f.Fetch(ctx, targetURL, strategy)
		if err == nil {
			if breaker != nil {
				breaker.RecordSuccess()
			}
			return page, nil
		}
		lastErr = err
		if resilience.KindOf(err) == resilience.KindProtectionDetected {
			continue
		}
		if breaker != nil {
			breaker.RecordFailure(err)
		}
	}
	return nil, lastErr
}

var titleRe = regexp.MustCompile(`(?i)<title[^>]*>(.*?)</title>`)

func extractTitle(body []byte) string {
	m := titleRe.FindSubmatch(body)
	if len(m) > 1 {
		return strings.TrimSpace(string(m[1]))
	}
	return ""
}

// stripHTML removes scripts/styles/nav/footer, strips tags, decodes common
// entities, and collapses whitespace into plaintext suitable for chunking.
func stripHTML(html string) string {
	for _, tag := range []string{"script", "style", "nav", "footer"} {
		re := regexp.MustCompile(`(?is)<` + tag + `[^>]*>.*?</` + tag + `>`)
		html = re.ReplaceAllString(html, "")
	}

	tagRe := regexp.MustCompile(`<[^>]+>`)
	html = tagRe.ReplaceAllString(html, " ")

	r := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	)
	html = r.Replace(html)

	spaceRe := regexp.MustCompile(`[ \t]+`)
	html = spaceRe.ReplaceAllString(html, " ")

	nlRe := regexp.MustCompile(`\n{3,}`)
	html = nlRe.ReplaceAllString(html, "\n\n")

	return strings.TrimSpace(html)
}
