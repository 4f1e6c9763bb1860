package model

import "time"

// FetchStrategy names a bundle of fetch parameters (proxy, user-agent
// policy, timeout), tried in order by the adaptive fetcher.
type FetchStrategy string

const (
	StrategyFast       FetchStrategy = "fast"
	StrategyStandard   FetchStrategy = "standard"
	StrategyRobust     FetchStrategy = "robust"
	StrategyAggressive FetchStrategy = "aggressive"
)

// Protection names a non-content response category detected in a fetched
// body: a challenge, WAF interstitial, CAPTCHA, or rate-limit page.
type Protection string

const (
	ProtectionNone             Protection = "none"
	ProtectionBrowserChallenge Protection = "browser-challenge"
	ProtectionWAF              Protection = "waf"
	ProtectionCaptcha          Protection = "captcha"
	ProtectionRateLimit        Protection = "rate-limit"
	ProtectionBotDetection     Protection = "bot-detection"
)

// FetchedPage is one successfully fetched page, ready for link selection or
// chunking. Pages that came back as protection_detected never reach this
// type; they surface as a fetch error carrying the Protection kind instead.
type FetchedPage struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Text  string `json:"text"`
	// RawHTML is the unstripped body, kept only for link selection; it is
	// never persisted or sent to a model.
	RawHTML    string        `json:"-"`
	StatusCode int           `json:"status_code"`
	Strategy   FetchStrategy `json:"strategy"`
	FetchedAt  time.Time     `json:"fetched_at"`
}

// SiteType classifies how a site renders its primary content.
type SiteType string

const (
	SiteStatic  SiteType = "static"
	SiteSPA     SiteType = "spa"
	SiteHybrid  SiteType = "hybrid"
	SiteUnknown SiteType = "unknown"
)

// ProbeResult is the outcome of probing one URL variant.
type ProbeResult struct {
	URL       string        `json:"url"`
	Status    int           `json:"status"`
	Latency   time.Duration `json:"latency"`
	Succeeded bool          `json:"succeeded"`
}

// SiteProbe is the site prober's verdict for a base URL: the winning
// variant plus its classification.
type SiteProbe struct {
	ChosenURL  string        `json:"chosen_url"`
	SiteType   SiteType      `json:"site_type"`
	Protection Protection    `json:"protection"`
	Variants   []ProbeResult `json:"variants"`
}
