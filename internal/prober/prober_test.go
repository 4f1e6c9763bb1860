package prober

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datastack-br/perfil-pipeline/internal/model"
)

func mustParse(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestVariants_BuildsFourCombinations(t *testing.T) {
	vs, err := variants("example.com.br")
	require.NoError(t, err)
	assert.Len(t, vs, 4)
	assert.Contains(t, vs, "https://example.com.br/")
	assert.Contains(t, vs, "https://www.example.com.br/")
	assert.Contains(t, vs, "http://example.com.br/")
	assert.Contains(t, vs, "http://www.example.com.br/")
}

func TestProbe_PicksReachableVariantAndClassifiesStatic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><article>` +
			`A full paragraph of real marketing copy about our company and services, long enough to count as content.` +
			`</article></body></html>`))
	}))
	defer srv.Close()

	p := New(nil, 0)
	probe, err := p.Probe(t.Context(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, model.SiteStatic, probe.SiteType)
	assert.Equal(t, model.ProtectionNone, probe.Protection)
	assert.Len(t, probe.Variants, 4)
}

func TestProbe_NoReachableVariant(t *testing.T) {
	p := New(nil, 0)
	_, err := p.Probe(t.Context(), "http://127.0.0.1:1")
	require.Error(t, err)
}

func TestClassifySiteType_SPAShell(t *testing.T) {
	html := `<html><body><div id="root"></div>
		<script src="a.js"></script><script src="b.js"></script><script src="c.js"></script>
		</body></html>`
	doc := mustParse(t, html)
	assert.Equal(t, model.SiteSPA, classifySiteType(doc))
}

func TestClassifyProtection_Captcha(t *testing.T) {
	doc := mustParse(t, `<html><body>Please solve the captcha</body></html>`)
	assert.Equal(t, model.ProtectionCaptcha, classifyProtection(doc))
}
