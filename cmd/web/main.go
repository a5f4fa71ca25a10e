package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MoAbeds/agent-testx/content"
	"github.com/MoAbeds/agent-testx/internal/cms"
	"github.com/MoAbeds/agent-testx/internal/config"
	"github.com/MoAbeds/agent-testx/internal/guardian"
	"github.com/MoAbeds/agent-testx/internal/handlers"
	"github.com/MoAbeds/agent-testx/internal/manifest"
	"github.com/MoAbeds/agent-testx/internal/observability"
	"github.com/MoAbeds/agent-testx/internal/seo"
	"github.com/MoAbeds/agent-testx/public"
	"github.com/MoAbeds/agent-testx/templates"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	serveFlags := []cli.Flag{
		&cli.StringFlag{Name: "addr", Usage: "HTTP listen address (default :$MOJO_WEB_PORT, :$PORT or :8080)"},
		&cli.StringFlag{Name: "templates", Usage: "templates directory (default: embedded)"},
		&cli.StringFlag{Name: "public", Usage: "directory served under /assets/ (default: embedded)"},
		&cli.StringFlag{Name: "content", Usage: "markdown pages directory (default: embedded)"},
	}
	return &cli.App{
		Name:   "web",
		Usage:  "dummy site whose page metadata comes from the Mojo manifest",
		Flags:  serveFlags,
		Action: serveAction,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the web server (default)",
				Flags:  serveFlags,
				Action: serveAction,
			},
			{
				Name:  "manifest",
				Usage: "fetch the manifest once and print its rules",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "format", Value: "yaml", Usage: "output format: yaml or json"},
					&cli.StringFlag{Name: "path", Usage: "print only the rule matching this request path"},
				},
				Action: manifestAction,
			},
		},
	}
}

func serveAction(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := newSource(cfg)
	if err != nil {
		return err
	}
	g := guardian.New(src,
		guardian.WithLogger(logger),
		guardian.WithRefreshInterval(cfg.Manifest.RefreshInterval),
	)
	if src == nil {
		logger.Warn("no MOJO_API_KEY or MOJO_RULES_FILE set; serving default metadata")
	} else {
		g.Init(ctx)
	}

	s, err := newSite(cfg, g, logger, siteDirs{
		templates: c.String("templates"),
		public:    c.String("public"),
		content:   c.String("content"),
	})
	if err != nil {
		return err
	}

	addr := c.String("addr")
	if addr == "" {
		addr = ":" + cfg.ListenPort()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		logger.Info("web listening", zap.String("addr", addr), zap.Bool("dev_mode", cfg.DevMode()), zap.Int("rules", g.Rules().Len()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		return g.Run(egCtx)
	})
	eg.Go(func() error {
		<-egCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
		defer cancel()
		logger.Info("shutting down", zap.Duration("grace", cfg.Server.ShutdownGrace))
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})
	return eg.Wait()
}

// newSource picks the manifest source: a local rules file wins over the remote
// service, and without an API key there is no source at all.
func newSource(cfg config.Config) (manifest.Source, error) {
	switch {
	case cfg.Manifest.RulesFile != "":
		return manifest.NewFileSource(cfg.Manifest.RulesFile), nil
	case cfg.RemoteEnabled():
		client, err := manifest.NewClient(cfg.Manifest.URL, cfg.Manifest.APIKey, manifest.WithTimeout(cfg.Manifest.Timeout))
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, nil
	}
}

type siteDirs struct {
	templates string
	public    string
	content   string
}

func newSite(cfg config.Config, g *guardian.Guardian, logger *zap.Logger, dirs siteDirs) (*site, error) {
	tmplFS := templates.FS()
	if dirs.templates != "" {
		tmplFS = os.DirFS(dirs.templates)
	}
	rd, err := newRenderer(tmplFS, cfg.DevMode())
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	var assets fs.FS
	if dirs.public != "" {
		assets = os.DirFS(dirs.public)
	} else if assets, err = public.AssetsFS(); err != nil {
		return nil, fmt.Errorf("load assets: %w", err)
	}

	var pagesFS fs.FS = content.Pages
	if dirs.content != "" {
		pagesFS = os.DirFS(dirs.content)
	}
	ttl := cms.DefaultCacheTTL()
	if cfg.DevMode() {
		ttl = 0
	}

	return &site{
		guardian: g,
		pages:    cms.NewStore(pagesFS, ttl),
		renderer: rd,
		assets:   assets,
		defaults: seo.Defaults{
			Title:       cfg.Site.DefaultTitle,
			Description: cfg.Site.DefaultDescription,
			SiteName:    cfg.Site.DefaultTitle,
			BaseURL:     cfg.Site.BaseURL,
		},
		analytics: handlers.Analytics{
			GA4MeasurementID: cfg.Site.GAMeasurementID,
			Debug:            cfg.Site.AnalyticsDebug,
		},
		inject: cfg.Manifest.Inject,
		logger: logger,
	}, nil
}
