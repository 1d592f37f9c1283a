package lru

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	pr "github.com/unkn0wn-root/transcache/provider"
)

// Provider is a size-bounded in-process LRU. Like bigcache it has a single
// expiry for all entries, so the per-call ttl is ignored.
type Provider struct {
	c *expirable.LRU[string, []byte]
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	Size int
	TTL  time.Duration
}

func New(cfg Config) (*Provider, error) {
	if cfg.Size <= 0 {
		return nil, errors.New("lru: size must be positive")
	}
	return &Provider{c: expirable.NewLRU[string, []byte](cfg.Size, nil, cfg.TTL)}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := p.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	return v, true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64, _ time.Duration) (bool, error) {
	p.c.Add(key, value)
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.c.Remove(key)
	return nil
}

func (p *Provider) Close(_ context.Context) error {
	p.c.Purge()
	return nil
}
