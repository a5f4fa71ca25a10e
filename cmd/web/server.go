package main

import (
	"errors"
	"io"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/MoAbeds/agent-testx/internal/cms"
	"github.com/MoAbeds/agent-testx/internal/guardian"
	"github.com/MoAbeds/agent-testx/internal/handlers"
	mw "github.com/MoAbeds/agent-testx/internal/middleware"
	"github.com/MoAbeds/agent-testx/internal/observability"
	"github.com/MoAbeds/agent-testx/internal/seo"
)

// site wires the guardian, content and templates behind the HTTP routes.
type site struct {
	guardian  *guardian.Guardian
	pages     *cms.Store
	renderer  *renderer
	assets    fs.FS
	defaults  seo.Defaults
	analytics handlers.Analytics
	inject    bool
	logger    *zap.Logger
}

func (s *site) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	// If deployed behind a trusted reverse proxy/load balancer, RealIP will use
	// X-Forwarded-For to determine the client IP. Ensure only trusted proxies
	// can set these headers in production environments.
	r.Use(chimw.RealIP)
	r.Use(mw.InjectLogger(s.logger))
	r.Use(mw.Logger)
	r.Use(mw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok")
	})

	if s.assets != nil {
		r.Handle("/assets/*", http.StripPrefix("/assets", mw.AssetsWithCache(s.assets)))
	}

	r.Group(func(r chi.Router) {
		// innermost so it sees uncompressed bodies
		if s.inject {
			r.Use(s.guardian.Middleware)
		}
		r.Get("/*", s.pageHandler)
		r.Head("/*", s.pageHandler)
	})
	return r
}

// pageHandler renders every path with the base layout. Title and description
// come from the manifest rule for the path, or the site defaults.
func (s *site) pageHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	meta := seo.Resolve(s.guardian, path, s.defaults)

	page, err := s.pages.Page(path)
	if err != nil && !errors.Is(err, cms.ErrNotFound) {
		observability.FromContext(r.Context()).Warn("content page unavailable", zap.String("path", path), zap.Error(err))
	}

	vm := handlers.BuildPageData(path, meta, page, s.analytics)
	s.renderer.render(w, r, vm)
}
