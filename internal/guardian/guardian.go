// Package guardian owns the manifest ruleset for the lifetime of the process and
// answers per-path metadata lookups for request handlers.
package guardian

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/MoAbeds/agent-testx/internal/manifest"
)

// ErrNoSource is returned by Load when the Guardian was built without a source.
var ErrNoSource = errors.New("guardian: no manifest source configured")

// Guardian holds the current ruleset. The ruleset itself is immutable; a refresh
// swaps in a new one, so lookups never block.
type Guardian struct {
	source   manifest.Source
	logger   *zap.Logger
	interval time.Duration

	rules atomic.Pointer[manifest.Ruleset]
	sf    singleflight.Group
}

// Option configures a Guardian.
type Option func(*Guardian)

// WithLogger sets the logger used for load failures and middleware decisions.
func WithLogger(logger *zap.Logger) Option {
	return func(g *Guardian) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithRefreshInterval makes Run reload the manifest every d. Zero disables refresh.
func WithRefreshInterval(d time.Duration) Option {
	return func(g *Guardian) {
		if d > 0 {
			g.interval = d
		}
	}
}

// New builds a Guardian with an empty ruleset. Call Init or Load before serving.
func New(src manifest.Source, opts ...Option) *Guardian {
	g := &Guardian{
		source: src,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.rules.Store(manifest.Empty())
	return g
}

// Init loads the manifest once. Failures are logged, never returned: the current
// ruleset is left as it was and Init reports false.
func (g *Guardian) Init(ctx context.Context) bool {
	rs, err := g.Load(ctx)
	if err != nil {
		g.logger.Warn("manifest load failed; serving default metadata", zap.Error(err))
		return false
	}
	g.logger.Info("manifest loaded", zap.Int("rules", rs.Len()))
	return true
}

// Load fetches the manifest and, on success, replaces the current ruleset.
// Concurrent calls share one fetch.
func (g *Guardian) Load(ctx context.Context) (*manifest.Ruleset, error) {
	if g.source == nil {
		return nil, ErrNoSource
	}
	v, err, _ := g.sf.Do("load", func() (any, error) {
		m, err := g.source.Load(ctx)
		if err != nil {
			return nil, err
		}
		rs := manifest.Empty()
		if m != nil && m.Rules != nil {
			rs = m.Rules
		}
		g.rules.Store(rs)
		return rs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*manifest.Ruleset), nil
}

// Rules returns the current ruleset.
func (g *Guardian) Rules() *manifest.Ruleset {
	return g.rules.Load()
}

// Metadata returns the rule for path, if the current ruleset has one.
func (g *Guardian) Metadata(path string) (manifest.Rule, bool) {
	return g.Rules().Lookup(path)
}

// Run reloads the manifest on the configured interval until ctx is done. A failed
// reload keeps the previous ruleset. Without an interval Run returns immediately.
func (g *Guardian) Run(ctx context.Context) error {
	if g.interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			before := g.Rules().Len()
			rs, err := g.Load(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				g.logger.Warn("manifest refresh failed; keeping previous rules", zap.Error(err), zap.Int("rules", before))
				continue
			}
			g.logger.Debug("manifest refreshed", zap.Int("rules", rs.Len()))
		}
	}
}
