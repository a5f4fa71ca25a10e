package seo

import (
	"encoding/json"
	"html/template"

	"github.com/MoAbeds/agent-testx/internal/inject"
)

// Script marshals v for a <script type="application/ld+json"> body. It returns
// an empty value on error.
func Script(v any) template.JS {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return rawScript(b)
}

func rawScript(raw json.RawMessage) template.JS {
	b, err := inject.ScriptJSON(raw)
	if err != nil {
		return ""
	}
	return template.JS(b)
}

// WebSite returns a minimal WebSite schema.
func WebSite(name, url string) map[string]any {
	m := map[string]any{
		"@context": "https://schema.org",
		"@type":    "WebSite",
		"name":     name,
	}
	if url != "" {
		m["url"] = url
	}
	return m
}

// WebPage returns a minimal WebPage schema.
func WebPage(name, description, url string) map[string]any {
	m := map[string]any{
		"@context": "https://schema.org",
		"@type":    "WebPage",
		"name":     name,
	}
	if description != "" {
		m["description"] = description
	}
	if url != "" {
		m["url"] = url
	}
	return m
}

// BreadcrumbItem maps name and absolute item URL.
type BreadcrumbItem struct {
	Name string
	Item string
}

// BreadcrumbList builds schema.org BreadcrumbList.
func BreadcrumbList(items []BreadcrumbItem) map[string]any {
	el := make([]map[string]any, 0, len(items))
	for i, it := range items {
		el = append(el, map[string]any{
			"@type":    "ListItem",
			"position": i + 1,
			"name":     it.Name,
			"item":     it.Item,
		})
	}
	return map[string]any{
		"@context":        "https://schema.org",
		"@type":           "BreadcrumbList",
		"itemListElement": el,
	}
}
