// Package seo resolves the head metadata of a page from manifest rules and
// site defaults.
package seo

import (
	"html/template"
	"strings"

	"github.com/MoAbeds/agent-testx/internal/inject"
	"github.com/MoAbeds/agent-testx/internal/manifest"
	"github.com/MoAbeds/agent-testx/internal/nav"
)

type OpenGraph struct {
	Title       string
	Description string
	Type        string
	URL         string
	SiteName    string
}

type Meta struct {
	Title       string
	Description string
	Canonical   string
	OG          OpenGraph
	JSONLD      []template.JS
}

// Lookup is satisfied by *guardian.Guardian.
type Lookup interface {
	Metadata(path string) (manifest.Rule, bool)
}

// Defaults is used for any field the manifest does not provide.
type Defaults struct {
	Title       string
	Description string
	SiteName    string
	BaseURL     string // absolute origin for canonical links, optional
}

// Resolve builds the metadata for path. A matching rule wins field by field;
// empty rule fields and unmatched paths use d. A nil lookup means no rules.
func Resolve(lookup Lookup, path string, d Defaults) Meta {
	var rule manifest.Rule
	if lookup != nil {
		rule, _ = lookup.Metadata(path)
	}

	title := firstNonEmpty(inject.Text(rule.Title), d.Title)
	desc := firstNonEmpty(inject.Text(rule.MetaDescription), d.Description)
	canonical := canonicalURL(d.BaseURL, path)

	m := Meta{
		Title:       title,
		Description: desc,
		Canonical:   canonical,
		OG: OpenGraph{
			Title:       title,
			Description: desc,
			Type:        "website",
			URL:         canonical,
			SiteName:    d.SiteName,
		},
	}

	if len(rule.Schema) > 0 {
		if js := rawScript(rule.Schema); js != "" {
			m.JSONLD = append(m.JSONLD, js)
		}
	}
	if manifest.Normalize(path) == "/" {
		m.JSONLD = append(m.JSONLD, Script(WebSite(firstNonEmpty(d.SiteName, d.Title), canonical)))
	}
	m.JSONLD = append(m.JSONLD, Script(WebPage(title, desc, canonical)))
	if crumbs := nav.Breadcrumbs(manifest.Normalize(path)); len(crumbs) > 1 && d.BaseURL != "" {
		items := make([]BreadcrumbItem, 0, len(crumbs))
		for _, c := range crumbs {
			items = append(items, BreadcrumbItem{Name: c.Label, Item: canonicalURL(d.BaseURL, c.Href)})
		}
		m.JSONLD = append(m.JSONLD, Script(BreadcrumbList(items)))
	}
	return m
}

func canonicalURL(base, path string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return ""
	}
	p := manifest.Normalize(path)
	if p == "/" {
		return base + "/"
	}
	return base + p
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
