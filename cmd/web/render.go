package main

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MoAbeds/agent-testx/internal/observability"
)

// renderer executes the base layout. In dev mode templates are reparsed on each
// request so edits show up without a restart.
type renderer struct {
	fsys  fs.FS
	dev   bool
	cache *template.Template
}

func newRenderer(fsys fs.FS, dev bool) (*renderer, error) {
	rd := &renderer{fsys: fsys, dev: dev}
	if dev {
		return rd, nil
	}
	tc, err := parseTemplates(fsys)
	if err != nil {
		return nil, err
	}
	rd.cache = tc
	return rd, nil
}

func parseTemplates(fsys fs.FS) (*template.Template, error) {
	funcMap := template.FuncMap{
		"now": time.Now,
	}
	var files []string
	if err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(d.Name(), ".tmpl") {
			files = append(files, path)
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("walk templates: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no templates found")
	}
	return template.New("_root").Funcs(funcMap).ParseFS(fsys, files...)
}

func (rd *renderer) render(w http.ResponseWriter, r *http.Request, data any) {
	logger := observability.FromContext(r.Context())
	t := rd.cache
	if rd.dev {
		tc, err := parseTemplates(rd.fsys)
		if err != nil {
			logger.Error("template parse failed", zap.Error(err))
			http.Error(w, fmt.Sprintf("template parse error: %v", err), http.StatusInternalServerError)
			return
		}
		t = tc
	}
	if t == nil {
		http.Error(w, "template not initialized", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "base", data); err != nil {
		logger.Error("template exec failed", zap.Error(err))
		http.Error(w, "template exec error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(buf.Bytes())
	}
}
