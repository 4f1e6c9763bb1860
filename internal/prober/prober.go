// Package prober implements the site prober: given a base URL, it probes
// http/https x apex/www variants concurrently, picks the fastest reachable
// one, and classifies its rendering style and protection signature.
package prober

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/datastack-br/perfil-pipeline/internal/model"
)

// Knowledge is the subset of SiteKnowledge lookups the prober needs; it
// decouples the prober from the store's concrete implementation.
type Knowledge interface {
	Get(ctx context.Context, origin string) (*model.SiteKnowledge, error)
}

// Prober probes URL variants and classifies the winner.
type Prober struct {
	client    *http.Client
	knowledge Knowledge
	budget    time.Duration
}

// New builds a Prober. budget bounds the whole four-way probe round;
// knowledge may be nil to skip the SiteKnowledge consultation.
func New(knowledge Knowledge, budget time.Duration) *Prober {
	if budget <= 0 {
		budget = 5 * time.Second
	}
	return &Prober{
		client:    &http.Client{Timeout: budget},
		knowledge: knowledge,
		budget:    budget,
	}
}

// variants builds {http,https} x {apex,www} candidates for a base URL or
// bare hostname.
func variants(base string) ([]string, error) {
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		u, err = url.Parse("https://" + base)
		if err != nil {
			return nil, eris.Wrapf(err, "prober: parse base url %q", base)
		}
	}
	host := u.Hostname()
	host = strings.TrimPrefix(host, "www.")
	// Preserve an explicit port (non-default ports, local dev servers) so
	// variant probing hits the same endpoint the caller gave us.
	portSuffix := ""
	if p := u.Port(); p != "" {
		portSuffix = ":" + p
	}

	var out []string
	for _, scheme := range []string{"https", "http"} {
		for _, hostVariant := range []string{host, "www." + host} {
			out = append(out, scheme+"://"+hostVariant+portSuffix+"/")
		}
	}
	return out, nil
}

// Probe runs the full site-prober pipeline for a base URL: parallel
// variant probing, classification of the winner, and a SiteKnowledge
// consult whose best-known strategy is only logged; the scrape stage reads
// SiteKnowledge itself and moves that strategy to the head of its
// escalation order.
func (p *Prober) Probe(ctx context.Context, base string) (*model.SiteProbe, error) {
	candidates, err := variants(base)
	if err != nil {
		return nil, err
	}

	budgetCtx, cancel := context.WithTimeout(ctx, p.budget)
	defer cancel()

	results := make([]model.ProbeResult, len(candidates))
	bodies := make([][]byte, len(candidates))
	resps := make([]*http.Response, len(candidates))

	g, gCtx := errgroup.WithContext(budgetCtx)
	for i, c := range candidates {
		i, c := i, c
		g.Go(func() error {
			start := time.Now()
			req, err := http.NewRequestWithContext(gCtx, http.MethodGet, c, nil)
			if err != nil {
				results[i] = model.ProbeResult{URL: c}
				return nil
			}
			resp, err := p.client.Do(req)
			if err != nil {
				results[i] = model.ProbeResult{URL: c, Latency: time.Since(start)}
				return nil
			}
			results[i] = model.ProbeResult{
				URL:       c,
				Status:    resp.StatusCode,
				Latency:   time.Since(start),
				Succeeded: resp.StatusCode >= 200 && resp.StatusCode < 400,
			}
			resps[i] = resp
			return nil
		})
	}
	_ = g.Wait()

	winner := -1
	for i, r := range results {
		if !r.Succeeded {
			continue
		}
		if winner == -1 || r.Latency < results[winner].Latency {
			winner = i
		}
	}
	for i, resp := range resps {
		if resp == nil {
			continue
		}
		if i == winner {
			continue
		}
		_ = resp.Body.Close()
	}

	if winner == -1 {
		return nil, eris.Errorf("prober: no reachable variant for %s", base)
	}
	defer func() {
		if resps[winner] != nil {
			_ = resps[winner].Body.Close()
		}
	}()

	doc, _ := goquery.NewDocumentFromReader(resps[winner].Body)

	probe := &model.SiteProbe{
		ChosenURL: results[winner].URL,
		Variants:  results,
	}
	if doc != nil {
		probe.SiteType = classifySiteType(doc)
		probe.Protection = classifyProtection(doc)
	} else {
		probe.SiteType = model.SiteUnknown
	}

	if p.knowledge != nil {
		origin := originOf(probe.ChosenURL)
		known, err := p.knowledge.Get(ctx, origin)
		if err == nil && known != nil && known.BestStrategy != "" {
			zap.L().Debug("prober: consulted site knowledge",
				zap.String("origin", origin),
				zap.String("best_strategy", known.BestStrategy),
			)
		}
	}

	return probe, nil
}

func originOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Scheme + "://" + u.Host
}

// classifySiteType uses goquery DOM heuristics to distinguish a
// server-rendered page from a single-page-app shell: script-tag density,
// a near-empty root div, and meaningful text volume in content tags.
func classifySiteType(doc *goquery.Document) model.SiteType {
	scripts := doc.Find("script").Length()
	bodyText := strings.TrimSpace(doc.Find("body").Text())
	contentText := strings.TrimSpace(doc.Find("p, article, section").Text())

	rootDiv := doc.Find("#app, #root").First()
	rootIsNearEmpty := rootDiv.Length() > 0 && len(strings.TrimSpace(rootDiv.Text())) < 200

	switch {
	case rootIsNearEmpty && scripts >= 3:
		return model.SiteSPA
	case len(contentText) > 500:
		return model.SiteStatic
	case scripts >= 5 && len(bodyText) < 1000:
		return model.SiteHybrid
	case len(bodyText) == 0:
		return model.SiteUnknown
	default:
		return model.SiteStatic
	}
}

func classifyProtection(doc *goquery.Document) model.Protection {
	text := strings.ToLower(doc.Text())
	switch {
	case strings.Contains(text, "checking your browser") || strings.Contains(text, "just a moment"):
		return model.ProtectionBrowserChallenge
	case strings.Contains(text, "captcha"):
		return model.ProtectionCaptcha
	case strings.Contains(text, "access denied") || strings.Contains(text, "web application firewall"):
		return model.ProtectionWAF
	case strings.Contains(text, "rate limit") || strings.Contains(text, "too many requests"):
		return model.ProtectionRateLimit
	case strings.Contains(text, "unusual traffic") || strings.Contains(text, "bot detection"):
		return model.ProtectionBotDetection
	default:
		return model.ProtectionNone
	}
}
