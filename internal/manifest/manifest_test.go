package manifest_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MoAbeds/agent-testx/internal/manifest"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":          "/",
		"/":         "/",
		"//":        "/",
		"/about":    "/about",
		"/about/":   "/about",
		"/about//":  "/about",
		"/a/b/":     "/a/b",
		"about":     "about",
		"/Pricing/": "/Pricing",
	}
	for in, want := range cases {
		assert.Equal(t, want, manifest.Normalize(in), "Normalize(%q)", in)
	}
}

func TestRulesetLookupExactMatch(t *testing.T) {
	t.Parallel()

	rs := manifest.NewRuleset(map[string]manifest.Rule{
		"/":      {Title: "Home"},
		"/about": {Title: "About Us", MetaDescription: "Learn more"},
	})

	rule, ok := rs.Lookup("/about/")
	require.True(t, ok)
	assert.Equal(t, "About Us", rule.Title)
	assert.Equal(t, "Learn more", rule.MetaDescription)

	_, ok = rs.Lookup("/contact")
	assert.False(t, ok)

	_, ok = rs.Lookup("/about/team")
	assert.False(t, ok, "no prefix matching")

	root1, ok1 := rs.Lookup("")
	root2, ok2 := rs.Lookup("/")
	assert.True(t, ok1)
	assert.Equal(t, ok1, ok2)
	assert.Equal(t, root1, root2)
}

func TestRulesetDefinedIffNormalizedKeyPresent(t *testing.T) {
	t.Parallel()

	rs := manifest.NewRuleset(map[string]manifest.Rule{
		"/a":   {Title: "A"},
		"/a/b": {Title: "AB"},
		"/":    {Title: "Root"},
	})
	keys := map[string]bool{}
	for _, p := range rs.Paths() {
		keys[p] = true
	}
	for _, p := range []string{"", "/", "/a", "/a/", "/a/b", "/a/b//", "/b", "a", "/a/c"} {
		_, ok := rs.Lookup(p)
		assert.Equal(t, keys[manifest.Normalize(p)], ok, "path %q", p)
	}
}

func TestRulesetIsImmutable(t *testing.T) {
	t.Parallel()

	src := map[string]manifest.Rule{"/x": {Title: "X", Schema: []byte(`{"@type":"Thing"}`)}}
	rs := manifest.NewRuleset(src)
	src["/y"] = manifest.Rule{Title: "Y"}

	_, ok := rs.Lookup("/y")
	assert.False(t, ok)

	rule, ok := rs.Lookup("/x")
	require.True(t, ok)
	rule.Schema[0] = '['
	again, _ := rs.Lookup("/x")
	assert.Equal(t, `{"@type":"Thing"}`, string(again.Schema))
}

func TestNilRulesetIsEmpty(t *testing.T) {
	t.Parallel()

	var rs *manifest.Ruleset
	_, ok := rs.Lookup("/")
	assert.False(t, ok)
	assert.Zero(t, rs.Len())
	assert.Empty(t, rs.Rules())
}

func TestDecode(t *testing.T) {
	t.Parallel()

	body := `{
		"meta": {"generatedAt": "2025-03-01T10:00:00.000Z", "siteId": "site_1", "domain": "example.com"},
		"rules": {
			"/about": {"title": "About Us", "metaDescription": "Learn more", "ruleId": "r1", "type": "SEO_META"},
			"/legacy": {"title": "Legacy", "metaDesc": "Old key"},
			"/old": {"redirectTo": "/new", "type": "REDIRECT_301"},
			"/faq": {"title": "FAQ", "schema": {"@type": "FAQPage"}}
		}
	}`
	m, err := manifest.Decode(strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, "site_1", m.Meta.SiteID)
	assert.Equal(t, "example.com", m.Meta.Domain)
	assert.Equal(t, 2025, m.Meta.GeneratedAt.Year())
	assert.Equal(t, 4, m.Rules.Len())

	legacy, ok := m.Rules.Lookup("/legacy")
	require.True(t, ok)
	assert.Equal(t, "Old key", legacy.MetaDescription)

	old, ok := m.Rules.Lookup("/old")
	require.True(t, ok)
	assert.True(t, old.HasRedirect())
	assert.Equal(t, "/new", old.RedirectTo)

	faq, ok := m.Rules.Lookup("/faq")
	require.True(t, ok)
	assert.JSONEq(t, `{"@type":"FAQPage"}`, string(faq.Schema))
}

func TestDecodeWithoutRulesIsEmpty(t *testing.T) {
	t.Parallel()

	for _, body := range []string{`{}`, `{"rules": null}`, `{"meta": {"siteId": "s"}}`} {
		m, err := manifest.Decode(strings.NewReader(body))
		require.NoError(t, err, body)
		assert.Zero(t, m.Rules.Len(), body)
	}
}

func TestDecodeMalformed(t *testing.T) {
	t.Parallel()

	bodies := []string{
		``,
		`not json`,
		`null`,
		`[]`,
		`"rules"`,
		`{"rules": ["a"]}`,
		`{"rules": {"/": "x"}}`,
		`{"rules": {"/a": {"title": "A"}}} trailing-garbage`,
		`{"rules": {"/a": {"title": "A"}}}{"x": 1}`,
	}
	for _, body := range bodies {
		_, err := manifest.Decode(strings.NewReader(body))
		require.Error(t, err, body)
		assert.True(t, errors.Is(err, manifest.ErrDecode), body)
	}
}

func TestManifestMarshalRoundTrip(t *testing.T) {
	t.Parallel()

	m, err := manifest.Decode(strings.NewReader(`{"meta":{"siteId":"s1"},"rules":{"/a":{"title":"A","metaDescription":"D"}}}`))
	require.NoError(t, err)

	out, err := m.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"meta":{"siteId":"s1"},"rules":{"/a":{"title":"A","metaDescription":"D"}}}`, string(out))
}
