package inject_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MoAbeds/agent-testx/internal/inject"
	"github.com/MoAbeds/agent-testx/internal/manifest"
)

const pricingPage = `<!DOCTYPE html>
<html>
  <head>
    <title>Pricing - My Service</title>
  </head>
  <body><h1>Our Pricing</h1></body>
</html>`

const homePage = `<!DOCTYPE html>
<html>
  <head>
    <title>Old Generic Title</title>
    <meta name="description" content="This is an old unoptimized meta description.">
    <meta property="og:title" content="Old">
  </head>
  <body><h1>Welcome</h1></body>
</html>`

func parse(t *testing.T, body []byte) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	require.NoError(t, err)
	return doc
}

func TestApplyReplacesExistingTags(t *testing.T) {
	t.Parallel()

	out, changed, err := inject.Apply([]byte(homePage), "text/html; charset=utf-8", manifest.Rule{
		Title:           "Home | Acme",
		MetaDescription: "Fresh description",
	})
	require.NoError(t, err)
	require.True(t, changed)

	doc := parse(t, out)
	assert.Equal(t, 1, doc.Find("title").Length())
	assert.Equal(t, "Home | Acme", doc.Find("title").Text())
	assert.Equal(t, 1, doc.Find(`meta[name="description"]`).Length())
	assert.Equal(t, "Fresh description", doc.Find(`meta[name="description"]`).AttrOr("content", ""))
	assert.Equal(t, "Home | Acme", doc.Find(`meta[property="og:title"]`).AttrOr("content", ""))
	assert.Equal(t, "Welcome", doc.Find("h1").Text())
}

func TestApplyInsertsMissingTags(t *testing.T) {
	t.Parallel()

	out, changed, err := inject.Apply([]byte(`<html><head></head><body>hi</body></html>`), "text/html", manifest.Rule{
		Title:           "Inserted",
		MetaDescription: "Inserted description",
	})
	require.NoError(t, err)
	require.True(t, changed)

	doc := parse(t, out)
	assert.Equal(t, "Inserted", doc.Find("head title").Text())
	assert.Equal(t, "Inserted description", doc.Find(`head meta[name="description"]`).AttrOr("content", ""))

	out, _, err = inject.Apply([]byte(pricingPage), "", manifest.Rule{MetaDescription: "Plans for every team"})
	require.NoError(t, err)
	doc = parse(t, out)
	assert.Equal(t, "Pricing - My Service", doc.Find("title").Text())
	assert.Equal(t, "Plans for every team", doc.Find(`meta[name="description"]`).AttrOr("content", ""))
}

func TestApplySchema(t *testing.T) {
	t.Parallel()

	out, changed, err := inject.Apply([]byte(pricingPage), "text/html", manifest.Rule{
		Schema: []byte(`{"@context": "https://schema.org", "@type": "Product", "name": "</script><b>x"}`),
	})
	require.NoError(t, err)
	require.True(t, changed)

	assert.NotContains(t, string(out), "</script><b>")
	assert.NotContains(t, string(out), "&#34;")
	assert.Contains(t, string(out), `"@type":"Product"`)
	doc := parse(t, out)
	script := doc.Find(`head script[type="application/ld+json"]`)
	require.Equal(t, 1, script.Length())
	assert.JSONEq(t, `{"@context":"https://schema.org","@type":"Product","name":"</script><b>x"}`, script.Text())
}

func TestApplySchemaSkipsDuplicate(t *testing.T) {
	t.Parallel()

	rule := manifest.Rule{Schema: []byte(`{"@type": "WebPage", "name": "Pricing"}`)}
	once, _, err := inject.Apply([]byte(pricingPage), "text/html", rule)
	require.NoError(t, err)

	twice, _, err := inject.Apply(once, "text/html", rule)
	require.NoError(t, err)
	assert.Equal(t, 1, parse(t, twice).Find(`script[type="application/ld+json"]`).Length())
}

func TestApplyInvalidSchema(t *testing.T) {
	t.Parallel()

	out, changed, err := inject.Apply([]byte(pricingPage), "text/html", manifest.Rule{Schema: []byte(`{nope`)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, inject.ErrInvalidSchema))
	assert.False(t, changed)
	assert.Equal(t, pricingPage, string(out))
}

func TestApplyKeepsRuleTextVerbatim(t *testing.T) {
	t.Parallel()

	out, _, err := inject.Apply([]byte(homePage), "text/html", manifest.Rule{
		Title:           `  <script>alert(1)</script>Use <title> tags & more `,
		MetaDescription: `Quotes "here" & <b>there</b>`,
	})
	require.NoError(t, err)
	assert.NotContains(t, string(out), "<script>alert")

	doc := parse(t, out)
	assert.Equal(t, "<script>alert(1)</script>Use <title> tags & more", doc.Find("title").Text())
	desc, _ := doc.Find(`meta[name="description"]`).Attr("content")
	assert.Equal(t, `Quotes "here" & <b>there</b>`, desc)
	og, _ := doc.Find(`meta[property="og:title"]`).Attr("content")
	assert.Equal(t, "<script>alert(1)</script>Use <title> tags & more", og)
}

func TestApplyLeavesNonHTMLAlone(t *testing.T) {
	t.Parallel()

	body := []byte(`{"ok":true}`)
	out, changed, err := inject.Apply(body, "application/json", manifest.Rule{Title: "X"})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, body, out)

	out, changed, err = inject.Apply([]byte(pricingPage), "text/html", manifest.Rule{RedirectTo: "/elsewhere"})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, pricingPage, string(out))
}

func TestApplyDecodesLegacyCharset(t *testing.T) {
	t.Parallel()

	// "Caf\xe9" is Latin-1 for "Café".
	body := []byte("<html><head><title>x</title></head><body>Caf\xe9</body></html>")
	out, changed, err := inject.Apply(body, "text/html; charset=iso-8859-1", manifest.Rule{Title: "Menu"})
	require.NoError(t, err)
	require.True(t, changed)
	assert.Contains(t, string(out), "Café")
}

func TestApplies(t *testing.T) {
	t.Parallel()

	assert.False(t, inject.Applies(manifest.Rule{Title: "  \n "}))
	assert.False(t, inject.Applies(manifest.Rule{RedirectTo: "/x"}))
	assert.True(t, inject.Applies(manifest.Rule{MetaDescription: "d"}))
	assert.True(t, inject.Applies(manifest.Rule{Schema: []byte(`{}`)}))
}
