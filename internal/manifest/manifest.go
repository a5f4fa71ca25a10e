// Package manifest fetches and holds the per-path SEO ruleset served by the
// agent manifest endpoint.
package manifest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// Rule is the metadata record attached to a single path.
type Rule struct {
	Title           string          `json:"title,omitempty"`
	MetaDescription string          `json:"metaDescription,omitempty"`
	RedirectTo      string          `json:"redirectTo,omitempty"`
	Schema          json.RawMessage `json:"schema,omitempty"`
	ID              string          `json:"ruleId,omitempty"`
	Type            string          `json:"type,omitempty"`
}

// HasRedirect reports whether the rule asks for a permanent redirect.
func (r Rule) HasRedirect() bool {
	return strings.TrimSpace(r.RedirectTo) != ""
}

func (r Rule) clone() Rule {
	cp := r
	if r.Schema != nil {
		cp.Schema = append(json.RawMessage(nil), r.Schema...)
	}
	return cp
}

// Meta describes the manifest document itself.
type Meta struct {
	GeneratedAt time.Time
	SiteID      string
	Domain      string
}

// Manifest is a decoded manifest document.
type Manifest struct {
	Meta  Meta
	Rules *Ruleset
}

// Source loads a manifest from somewhere.
type Source interface {
	Load(ctx context.Context) (*Manifest, error)
}

// Ruleset maps normalized paths to rules. It is never mutated after construction,
// so concurrent lookups need no locking.
type Ruleset struct {
	rules map[string]Rule
}

// NewRuleset copies rules into a new immutable Ruleset. Keys are kept as given.
func NewRuleset(rules map[string]Rule) *Ruleset {
	rs := &Ruleset{rules: make(map[string]Rule, len(rules))}
	for path, rule := range rules {
		rs.rules[path] = rule.clone()
	}
	return rs
}

// Empty returns a ruleset with no entries.
func Empty() *Ruleset {
	return &Ruleset{rules: map[string]Rule{}}
}

// Normalize maps a request path to its ruleset key: the empty path is "/",
// trailing slashes are stripped otherwise.
func Normalize(path string) string {
	if path == "" {
		return "/"
	}
	clean := strings.TrimRight(path, "/")
	if clean == "" {
		return "/"
	}
	return clean
}

// Lookup returns the rule whose key equals Normalize(path). There is no prefix
// or wildcard matching.
func (rs *Ruleset) Lookup(path string) (Rule, bool) {
	if rs == nil {
		return Rule{}, false
	}
	rule, ok := rs.rules[Normalize(path)]
	if !ok {
		return Rule{}, false
	}
	return rule.clone(), true
}

// Len returns the number of rules.
func (rs *Ruleset) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.rules)
}

// Paths returns the rule keys in sorted order.
func (rs *Ruleset) Paths() []string {
	if rs == nil {
		return nil
	}
	out := make([]string, 0, len(rs.rules))
	for path := range rs.rules {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// Rules returns a copy of the underlying mapping.
func (rs *Ruleset) Rules() map[string]Rule {
	out := make(map[string]Rule, rs.Len())
	if rs == nil {
		return out
	}
	for path, rule := range rs.rules {
		out[path] = rule.clone()
	}
	return out
}

type manifestPayload struct {
	Meta  metaPayload            `json:"meta"`
	Rules map[string]rulePayload `json:"rules"`
}

type metaPayload struct {
	GeneratedAt string `json:"generatedAt"`
	SiteID      string `json:"siteId"`
	Domain      string `json:"domain"`
}

type rulePayload struct {
	Title           string          `json:"title"`
	MetaDescription string          `json:"metaDescription"`
	MetaDesc        string          `json:"metaDesc"`
	RedirectTo      string          `json:"redirectTo"`
	Schema          json.RawMessage `json:"schema"`
	RuleID          string          `json:"ruleId"`
	Type            string          `json:"type"`
}

func (p rulePayload) toRule() Rule {
	rule := Rule{
		Title:           strings.TrimSpace(p.Title),
		MetaDescription: strings.TrimSpace(firstNonEmpty(p.MetaDescription, p.MetaDesc)),
		RedirectTo:      strings.TrimSpace(p.RedirectTo),
		ID:              strings.TrimSpace(p.RuleID),
		Type:            strings.TrimSpace(p.Type),
	}
	if len(p.Schema) > 0 && string(p.Schema) != "null" {
		rule.Schema = p.Schema
	}
	return rule
}

func (p manifestPayload) toManifest() *Manifest {
	rules := make(map[string]Rule, len(p.Rules))
	for path, rule := range p.Rules {
		rules[path] = rule.toRule()
	}
	return &Manifest{
		Meta: Meta{
			GeneratedAt: parseTime(p.Meta.GeneratedAt),
			SiteID:      strings.TrimSpace(p.Meta.SiteID),
			Domain:      strings.TrimSpace(p.Meta.Domain),
		},
		Rules: NewRuleset(rules),
	}
}

// Decode parses a JSON manifest document. The body must be exactly one JSON
// object; a document without "rules" yields an empty ruleset.
func Decode(r io.Reader) (*Manifest, error) {
	dec := json.NewDecoder(r)
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after document", ErrDecode)
	}
	if trimmed := bytes.TrimSpace(raw); len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: document is not a JSON object", ErrDecode)
	}
	var payload manifestPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return payload.toManifest(), nil
}

// MarshalJSON encodes the manifest in the same document shape Decode accepts.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	type metaOut struct {
		GeneratedAt string `json:"generatedAt,omitempty"`
		SiteID      string `json:"siteId,omitempty"`
		Domain      string `json:"domain,omitempty"`
	}
	out := struct {
		Meta  metaOut         `json:"meta"`
		Rules map[string]Rule `json:"rules"`
	}{
		Meta: metaOut{
			SiteID: m.Meta.SiteID,
			Domain: m.Meta.Domain,
		},
		Rules: m.Rules.Rules(),
	}
	if !m.Meta.GeneratedAt.IsZero() {
		out.Meta.GeneratedAt = m.Meta.GeneratedAt.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(out)
}

func parseTime(val string) time.Time {
	val = strings.TrimSpace(val)
	if val == "" {
		return time.Time{}
	}
	layouts := []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.000Z"}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, val); err == nil {
			return ts
		}
	}
	return time.Time{}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
