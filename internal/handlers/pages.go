// Package handlers holds the view models shared by the page templates.
package handlers

import (
	"html/template"

	"github.com/MoAbeds/agent-testx/internal/cms"
	"github.com/MoAbeds/agent-testx/internal/nav"
	"github.com/MoAbeds/agent-testx/internal/seo"
)

// PageData is the view model for every page rendered with the base layout.
// Title and Description mirror SEO so simple templates can use them directly.
type PageData struct {
	Title       string
	Description string
	SEO         seo.Meta
	Analytics   Analytics

	Path        string
	Nav         []nav.RenderedItem
	Breadcrumbs []nav.Crumb

	// Body is the rendered markdown for the path, if any.
	Body    template.HTML
	Heading string
	Summary string
}

// BuildPageData assembles the view model for path. page may be the zero value
// when no markdown exists for the path.
func BuildPageData(path string, meta seo.Meta, page cms.Page, analytics Analytics) PageData {
	heading := page.Title
	if heading == "" {
		heading = meta.Title
	}
	return PageData{
		Title:       meta.Title,
		Description: meta.Description,
		SEO:         meta,
		Analytics:   analytics,
		Path:        path,
		Nav:         nav.Build(path),
		Breadcrumbs: nav.Breadcrumbs(path),
		Body:        page.Body,
		Heading:     heading,
		Summary:     page.Description,
	}
}
