// Package cms loads optional markdown bodies for site pages.
package cms

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when no page exists for a path.
var ErrNotFound = errors.New("cms: page not found")

// Page is a markdown document rendered to HTML.
type Page struct {
	Slug        string
	Title       string
	Description string
	Body        template.HTML
	UpdatedAt   time.Time
}

type frontMatter struct {
	Title       string `yaml:"title"`
	Summary     string `yaml:"summary"`
	Description string `yaml:"description"`
	UpdatedAt   string `yaml:"updated_at"`
}

const (
	indexSlug       = "index"
	defaultCacheTTL = 5 * time.Minute
)

// Store reads pages from <slug>.md files in an fs.FS.
type Store struct {
	fsys   fs.FS
	md     goldmark.Markdown
	policy *bluemonday.Policy
	ttl    time.Duration
	now    func() time.Time

	mu    sync.RWMutex
	items map[string]cacheEntry
}

type cacheEntry struct {
	page    Page
	expires time.Time
}

// NewStore returns a Store over fsys. A nil fsys yields a store with no pages.
// ttl <= 0 disables caching.
func NewStore(fsys fs.FS, ttl time.Duration) *Store {
	return &Store{
		fsys:   fsys,
		md:     goldmark.New(goldmark.WithExtensions(extension.GFM)),
		policy: newPagePolicy(),
		ttl:    ttl,
		now:    time.Now,
		items:  map[string]cacheEntry{},
	}
}

// DefaultCacheTTL is the cache duration used outside dev mode.
func DefaultCacheTTL() time.Duration { return defaultCacheTTL }

// Page returns the page for a request path. "/" maps to index.md and
// "/docs/setup/" to docs/setup.md.
func (s *Store) Page(requestPath string) (Page, error) {
	if s == nil || s.fsys == nil {
		return Page{}, ErrNotFound
	}
	slug := SlugFor(requestPath)
	if slug == "" {
		return Page{}, ErrNotFound
	}
	if page, ok := s.cached(slug); ok {
		return page, nil
	}
	page, err := s.read(slug)
	if err != nil {
		return Page{}, err
	}
	s.store(slug, page)
	return page, nil
}

// SlugFor maps a request path to a content slug, or "" when the path cannot
// name a page.
func SlugFor(requestPath string) string {
	p := strings.Trim(strings.TrimSpace(requestPath), "/")
	if p == "" {
		return indexSlug
	}
	p = strings.ToLower(p)
	if strings.ContainsRune(p, '\\') || !fs.ValidPath(p) {
		return ""
	}
	return p
}

func (s *Store) read(slug string) (Page, error) {
	file := slug + ".md"
	data, err := fs.ReadFile(s.fsys, file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Page{}, ErrNotFound
		}
		return Page{}, fmt.Errorf("cms: read %s: %w", file, err)
	}

	fm, body := splitFrontMatter(string(data))
	var front frontMatter
	if strings.TrimSpace(fm) != "" {
		if err := yaml.Unmarshal([]byte(fm), &front); err != nil {
			return Page{}, fmt.Errorf("cms: parse front matter %s: %w", file, err)
		}
	}

	var buf bytes.Buffer
	if err := s.md.Convert([]byte(body), &buf); err != nil {
		return Page{}, fmt.Errorf("cms: render %s: %w", file, err)
	}

	page := Page{
		Slug:        slug,
		Title:       strings.TrimSpace(front.Title),
		Description: firstNonEmpty(strings.TrimSpace(front.Description), strings.TrimSpace(front.Summary)),
		Body:        template.HTML(s.policy.SanitizeBytes(buf.Bytes())),
		UpdatedAt:   parseContentDate(front.UpdatedAt),
	}
	if page.UpdatedAt.IsZero() {
		if info, err := fs.Stat(s.fsys, file); err == nil {
			page.UpdatedAt = info.ModTime()
		}
	}
	if page.Title == "" {
		page.Title = prettifySlug(path.Base(slug))
	}
	return page, nil
}

func newPagePolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowElements("figure", "figcaption")
	policy.AllowAttrs("class").OnElements("figure", "figcaption", "p", "span", "code")
	policy.AllowAttrs("loading").OnElements("img")
	policy.RequireNoFollowOnLinks(true)
	return policy
}

func (s *Store) cached(slug string) (Page, bool) {
	if s.ttl <= 0 {
		return Page{}, false
	}
	s.mu.RLock()
	entry, ok := s.items[slug]
	s.mu.RUnlock()
	if !ok || s.now().After(entry.expires) {
		return Page{}, false
	}
	return entry.page, true
}

func (s *Store) store(slug string, page Page) {
	if s.ttl <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[slug] = cacheEntry{page: page, expires: s.now().Add(s.ttl)}
}

func splitFrontMatter(input string) (string, string) {
	input = strings.TrimLeft(input, "\ufeff")
	lines := strings.Split(input, "\n")
	if strings.TrimSpace(lines[0]) != "---" {
		return "", input
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			fm := strings.Join(lines[1:i], "\n")
			body := strings.Join(lines[i+1:], "\n")
			return fm, strings.TrimLeft(body, "\n\r")
		}
	}
	return "", input
}

func parseContentDate(v string) time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}
	}
	layouts := []string{
		time.RFC3339,
		"2006-01-02",
		"2006/01/02",
		"2006-1-2",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

func prettifySlug(slug string) string {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return slug
	}
	parts := strings.Split(slug, "-")
	for i, part := range parts {
		if part == "" {
			continue
		}
		runes := []rune(part)
		runes[0] = asciiUpper(runes[0])
		parts[i] = string(runes)
	}
	return strings.Join(parts, " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func asciiUpper(r rune) rune {
	if r >= 'a' && r <= 'z' {
		return r - ('a' - 'A')
	}
	return r
}
