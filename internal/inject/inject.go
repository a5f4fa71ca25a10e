// Package inject rewrites rendered HTML documents so that the title, meta
// description and JSON-LD schema match a manifest rule.
package inject

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"github.com/MoAbeds/agent-testx/internal/manifest"
)

// ErrInvalidSchema is returned when a rule's schema is not valid JSON.
var ErrInvalidSchema = errors.New("inject: schema is not valid JSON")

// Text returns rule text with surrounding whitespace removed. Markup is kept as
// literal characters; the renderer escapes it.
func Text(s string) string {
	return strings.TrimSpace(s)
}

// Applies reports whether rule carries anything Apply would change.
func Applies(rule manifest.Rule) bool {
	return Text(rule.Title) != "" || Text(rule.MetaDescription) != "" || len(rule.Schema) > 0
}

// Apply rewrites body according to rule. Bodies that are not HTML documents, or
// rules with nothing to apply, are returned unchanged with changed=false. The
// rewritten document is always UTF-8.
func Apply(body []byte, contentType string, rule manifest.Rule) (out []byte, changed bool, err error) {
	if !Applies(rule) || !looksLikeHTML(body) {
		return body, false, nil
	}

	var schema []byte
	if len(rule.Schema) > 0 {
		if schema, err = ScriptJSON(rule.Schema); err != nil {
			return body, false, err
		}
	}

	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return body, false, fmt.Errorf("inject: decode charset: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return body, false, fmt.Errorf("inject: parse html: %w", err)
	}
	head := doc.Find("head").First()

	if title := Text(rule.Title); title != "" {
		setTitle(head, doc, title)
		setMetaProperty(doc, "og:title", title)
	}
	if desc := Text(rule.MetaDescription); desc != "" {
		setMetaName(head, doc, "description", desc)
		setMetaProperty(doc, "og:description", desc)
	}
	if schema != nil && !hasSchema(doc, schema) {
		// Script content is raw text; SetText would entity-escape the quotes.
		head.AppendHtml(`<script type="application/ld+json">` + string(schema) + `</script>`)
	}

	rendered, err := doc.Html()
	if err != nil {
		return body, false, fmt.Errorf("inject: render html: %w", err)
	}
	return []byte(rendered), true, nil
}

func setTitle(head *goquery.Selection, doc *goquery.Document, title string) {
	existing := doc.Find("title").First()
	if existing.Length() > 0 {
		existing.SetText(title)
		return
	}
	head.PrependHtml("<title></title>")
	head.Find("title").First().SetText(title)
}

func setMetaName(head *goquery.Selection, doc *goquery.Document, name, content string) {
	sel := fmt.Sprintf(`meta[name=%q]`, name)
	existing := doc.Find(sel)
	if existing.Length() > 0 {
		existing.SetAttr("content", content)
		return
	}
	head.AppendHtml(fmt.Sprintf(`<meta name=%q>`, name))
	head.Find(sel).Last().SetAttr("content", content)
}

// setMetaProperty only updates Open Graph tags the page already declares.
func setMetaProperty(doc *goquery.Document, property, content string) {
	doc.Find(fmt.Sprintf(`meta[property=%q]`, property)).SetAttr("content", content)
}

func looksLikeHTML(body []byte) bool {
	probe := body
	if len(probe) > 4096 {
		probe = probe[:4096]
	}
	return bytes.Contains(bytes.ToLower(probe), []byte("<html"))
}

// hasSchema reports whether the document already carries an identical JSON-LD
// block, as it does when the page template rendered the rule itself.
func hasSchema(doc *goquery.Document, schema []byte) bool {
	found := false
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		existing, err := ScriptJSON(json.RawMessage(s.Text()))
		if err == nil && bytes.Equal(existing, schema) {
			found = true
		}
		return !found
	})
	return found
}

// ScriptJSON compacts raw and escapes characters that could terminate a
// script element.
func ScriptJSON(raw json.RawMessage) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchema, err)
	}
	var out bytes.Buffer
	json.HTMLEscape(&out, buf.Bytes())
	return out.Bytes(), nil
}
