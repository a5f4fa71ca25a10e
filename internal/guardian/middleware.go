package guardian

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/MoAbeds/agent-testx/internal/inject"
	"github.com/MoAbeds/agent-testx/internal/manifest"
	"github.com/MoAbeds/agent-testx/internal/observability"
)

// Middleware applies matched rules to GET and HEAD requests: a rule with
// redirectTo answers 301, any other rule rewrites GET HTML bodies via inject.Apply.
func (g *Guardian) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}
		rule, ok := g.Metadata(r.URL.Path)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		logger := g.requestLogger(r).With(zap.String("rule_path", manifest.Normalize(r.URL.Path)))
		if rule.HasRedirect() {
			logger.Info("manifest redirect", zap.String("location", rule.RedirectTo))
			http.Redirect(w, r, rule.RedirectTo, http.StatusMovedPermanently)
			return
		}
		if r.Method == http.MethodHead || !inject.Applies(rule) {
			next.ServeHTTP(w, r)
			return
		}
		bw := &bufferedWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(bw, r)
		if err := r.Context().Err(); err != nil {
			// The request timed out or the client left; the writer may already be owned
			// by whoever cancelled it.
			logger.Debug("request ended before injection", zap.Error(err))
			return
		}
		bw.finish(logger, rule)
	})
}

func (g *Guardian) requestLogger(r *http.Request) *zap.Logger {
	if l := observability.FromContext(r.Context()); l.Core().Enabled(zap.ErrorLevel) {
		return l
	}
	return g.logger
}

// bufferedWriter holds back successful HTML responses so they can be rewritten;
// everything else streams straight through.
type bufferedWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	passthrough bool
	buf         bytes.Buffer
}

func (b *bufferedWriter) WriteHeader(code int) {
	if b.wroteHeader {
		return
	}
	b.wroteHeader = true
	b.status = code
	if code != http.StatusOK || !isHTML(b.Header().Get("Content-Type")) || b.Header().Get("Content-Encoding") != "" {
		b.passthrough = true
		b.ResponseWriter.WriteHeader(code)
	}
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	if !b.wroteHeader {
		if b.Header().Get("Content-Type") == "" {
			b.Header().Set("Content-Type", http.DetectContentType(p))
		}
		b.WriteHeader(http.StatusOK)
	}
	if b.passthrough {
		return b.ResponseWriter.Write(p)
	}
	return b.buf.Write(p)
}

func (b *bufferedWriter) finish(logger *zap.Logger, rule manifest.Rule) {
	if b.passthrough {
		return
	}
	body := b.buf.Bytes()
	out, changed, err := inject.Apply(body, b.Header().Get("Content-Type"), rule)
	if err != nil {
		logger.Warn("html injection failed; serving original body", zap.Error(err))
	}
	h := b.Header()
	if changed {
		h.Set("Content-Type", "text/html; charset=utf-8")
		h.Del("ETag")
		logger.Debug("manifest rule applied", zap.String("title", rule.Title))
	}
	h.Set("Content-Length", strconv.Itoa(len(out)))
	b.ResponseWriter.WriteHeader(b.status)
	_, _ = b.ResponseWriter.Write(out)
}

func isHTML(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "text/html")
}
