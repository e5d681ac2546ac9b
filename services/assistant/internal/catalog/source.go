package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Uebook/Luna-sub002/pkg/httpclient"
	"github.com/Uebook/Luna-sub002/services/assistant/internal/domain"
)

// Source loads a catalog.
type Source interface {
	Load(ctx context.Context) (*Catalog, error)
}

// StaticSource serves the built-in category list.
type StaticSource struct{}

// Load returns Static().
func (StaticSource) Load(context.Context) (*Catalog, error) {
	return Static(), nil
}

// FileSource reads a YAML catalog document from disk on every load.
type FileSource struct {
	Path string
}

// Load reads and indexes the file.
func (s FileSource) Load(context.Context) (*Catalog, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", s.Path, err)
	}

	var data Data
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", s.Path, err)
	}
	if len(data.Categories) == 0 {
		return nil, fmt.Errorf("catalog %s lists no categories", s.Path)
	}
	return New(data), nil
}

// RemoteSource fetches the catalog from the product service. When the call
// fails, including while the circuit breaker is open, Fallback is used.
type RemoteSource struct {
	client   *httpclient.CircuitBreakerClient
	url      string
	fallback Source
	logger   *slog.Logger
}

// NewRemoteSource creates a source reading url through client. fallback may
// be nil, in which case errors are returned.
func NewRemoteSource(client *httpclient.CircuitBreakerClient, url string, fallback Source, logger *slog.Logger) *RemoteSource {
	return &RemoteSource{
		client:   client,
		url:      url,
		fallback: fallback,
		logger:   logger,
	}
}

// Load fetches {"data": {"categories": {...}}} from the product service.
func (s *RemoteSource) Load(ctx context.Context) (*Catalog, error) {
	var resp struct {
		Data Data `json:"data"`
	}

	err := s.client.GetJSON(ctx, s.url, &resp)
	if err == nil && len(resp.Data.Categories) == 0 {
		err = fmt.Errorf("product service returned an empty catalog")
	}
	if err == nil {
		return New(resp.Data), nil
	}

	if s.fallback == nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	s.logger.WarnContext(ctx, "remote catalog unavailable, using fallback",
		slog.String("url", s.url),
		slog.String("breaker_state", s.client.State().String()),
		slog.String("error", err.Error()),
	)
	return s.fallback.Load(ctx)
}

// Provider holds the current catalog and swaps in a fresh one on refresh.
type Provider struct {
	source  Source
	current atomic.Pointer[Catalog]
	logger  *slog.Logger
}

// NewProvider loads the first catalog from source. A failed first load
// falls back to the static catalog.
func NewProvider(ctx context.Context, source Source, logger *slog.Logger) *Provider {
	p := &Provider{source: source, logger: logger}

	c, err := source.Load(ctx)
	if err != nil {
		logger.WarnContext(ctx, "failed to load catalog, using built-in categories",
			slog.String("error", err.Error()),
		)
		c = Static()
	}
	p.set(c)
	return p
}

// Current returns the catalog in use.
func (p *Provider) Current() domain.Catalog {
	return p.current.Load()
}

// Refresh reloads the catalog. On error the current catalog is kept.
func (p *Provider) Refresh(ctx context.Context) error {
	c, err := p.source.Load(ctx)
	if err != nil {
		catalogRefreshesTotal.WithLabelValues("error").Inc()
		return err
	}
	catalogRefreshesTotal.WithLabelValues("ok").Inc()
	p.set(c)
	return nil
}

// Run refreshes the catalog every interval until ctx is canceled.
func (p *Provider) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.Refresh(ctx); err != nil {
				p.logger.ErrorContext(ctx, "catalog refresh error", slog.String("error", err.Error()))
				continue
			}
			p.logger.DebugContext(ctx, "catalog refreshed",
				slog.Int("products", len(p.Current().Products())),
			)
		}
	}
}

func (p *Provider) set(c *Catalog) {
	p.current.Store(c)
	catalogProducts.Set(float64(len(c.Products())))
}
