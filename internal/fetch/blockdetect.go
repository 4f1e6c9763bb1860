package fetch

import (
	"net/http"
	"strings"

	"github.com/datastack-br/perfil-pipeline/internal/model"
)

// DetectBlock checks an HTTP response for a protection signature: a
// case-insensitive substring or header pattern identifying a browser
// challenge, WAF interstitial, CAPTCHA, or rate-limit page. A match is not a
// transport success, and the circuit breaker must not count it as a
// transport failure either — see resilience.CircuitBreaker.Allow.
func DetectBlock(resp *http.Response, body []byte) (bool, model.Protection) {
	if resp == nil {
		return false, model.ProtectionNone
	}

	if resp.StatusCode == 403 || resp.StatusCode == 503 {
		cloudflare := resp.Header.Get("cf-ray") != "" ||
			resp.Header.Get("cf-cache-status") != "" ||
			strings.EqualFold(resp.Header.Get("server"), "cloudflare")
		if cloudflare && len(body) == 0 {
			return true, model.ProtectionWAF
		}
	}

	if resp.StatusCode == 429 {
		return true, model.ProtectionRateLimit
	}

	lower := strings.ToLower(string(body))

	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") ||
		strings.Contains(lower, "just a moment") ||
		(strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge")) {
		return true, model.ProtectionBrowserChallenge
	}

	if strings.Contains(lower, "captcha") ||
		strings.Contains(lower, "recaptcha") ||
		strings.Contains(lower, "hcaptcha") {
		return true, model.ProtectionCaptcha
	}

	for _, marker := range []string{
		"access denied",
		"request blocked",
		"incapsula incident id",
		"mod_security",
		"web application firewall",
	} {
		if strings.Contains(lower, marker) {
			return true, model.ProtectionWAF
		}
	}

	for _, marker := range []string{
		"rate limit exceeded",
		"too many requests",
		"please slow down",
		"you have been rate limited",
	} {
		if strings.Contains(lower, marker) {
			return true, model.ProtectionRateLimit
		}
	}

	for _, marker := range []string{
		"automated queries",
		"unusual traffic",
		"bot detection",
		"please verify you are a human",
	} {
		if strings.Contains(lower, marker) {
			return true, model.ProtectionBotDetection
		}
	}

	// JS-only shell: very small body with noscript or meta refresh. A site
	// that renders nothing without a real browser counts as a challenge.
	if len(body) < 2000 {
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") {
			return true, model.ProtectionBrowserChallenge
		}
		if strings.Contains(lower, `meta http-equiv="refresh"`) {
			return true, model.ProtectionBrowserChallenge
		}
	}

	return false, model.ProtectionNone
}
