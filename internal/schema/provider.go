package schema

import (
	"context"
	"sync"
)

type Provider interface {
	Schema(ctx context.Context) (Map, error)
}

// CachedProvider loads the schema once and serves the cached copy until
// Invalidate is called. Failed loads are not cached.
type CachedProvider struct {
	source Provider

	mu     sync.Mutex
	cached *Map
}

func NewCachedProvider(source Provider) *CachedProvider {
	return &CachedProvider{source: source}
}

func (p *CachedProvider) Schema(ctx context.Context) (Map, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cached != nil {
		return *p.cached, nil
	}
	loaded, err := p.source.Schema(ctx)
	if err != nil {
		return Map{}, err
	}
	p.cached = &loaded
	return loaded, nil
}

func (p *CachedProvider) Invalidate() {
	p.mu.Lock()
	p.cached = nil
	p.mu.Unlock()
}

// Static serves a fixed schema.
type Static Map

func (s Static) Schema(context.Context) (Map, error) {
	return Map(s), nil
}
