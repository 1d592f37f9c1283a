package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdslog "log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/transcache"
	"github.com/unkn0wn-root/transcache/genstore"
	asynchook "github.com/unkn0wn-root/transcache/hooks/async"
	promhook "github.com/unkn0wn-root/transcache/hooks/prom"
	"github.com/unkn0wn-root/transcache/internal/config"
	"github.com/unkn0wn-root/transcache/keyset"
	tclogrus "github.com/unkn0wn-root/transcache/log/logrus"
	tcslog "github.com/unkn0wn-root/transcache/log/slog"
	tczap "github.com/unkn0wn-root/transcache/log/zap"
	"github.com/unkn0wn-root/transcache/provider"
	"github.com/unkn0wn-root/transcache/provider/bigcache"
	"github.com/unkn0wn-root/transcache/provider/lru"
	pr "github.com/unkn0wn-root/transcache/provider/redis"
	"github.com/unkn0wn-root/transcache/provider/ristretto"
	"github.com/unkn0wn-root/transcache/sloghooks"
	"github.com/unkn0wn-root/transcache/store/postgres"
	"github.com/unkn0wn-root/transcache/store/sqlite"
)

// app holds everything a command needs. close releases it in reverse order.
type app struct {
	cfg      *config.Config
	log      transcache.Logger
	store    transcache.Store
	svc      transcache.Service
	registry *prometheus.Registry
	ping     func(ctx context.Context) error

	closers []func(ctx context.Context) error
}

func (a *app) onClose(f func(ctx context.Context) error) { a.closers = append(a.closers, f) }

func (a *app) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func newLogger(cfg config.LogConfig, w io.Writer) (transcache.Logger, *stdslog.Logger, error) {
	switch cfg.Backend {
	case "zap":
		l, err := tczap.New(cfg.Level)
		return l, nil, err
	case "logrus":
		l, err := tclogrus.New(w, cfg.Level)
		return l, nil, err
	case "slog":
		l, err := tcslog.New(w, cfg.Level)
		return l, l.L, err
	default:
		return nil, nil, fmt.Errorf("unknown log backend %q", cfg.Backend)
	}
}

// setup opens the store and builds the service. withService=false stops
// after the store, for commands that only touch the database.
func setup(ctx context.Context, cfg *config.Config, stderr io.Writer, withService bool) (*app, error) {
	a := &app{cfg: cfg, registry: prometheus.NewRegistry()}
	if err := a.init(ctx, stderr, withService); err != nil {
		_ = a.close(context.WithoutCancel(ctx))
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context, stderr io.Writer, withService bool) error {
	cfg := a.cfg
	lg, slogger, err := newLogger(cfg.Log, stderr)
	if err != nil {
		return err
	}
	a.log = lg
	if z, ok := lg.(tczap.ZapLogger); ok {
		a.onClose(func(context.Context) error { _ = z.Sync(); return nil })
	}

	if err := a.openStore(ctx); err != nil {
		return err
	}
	if !withService {
		return nil
	}

	var rdb goredis.UniversalClient
	if cfg.Cache.Shared {
		opt, err := goredis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("redis url: %w", err)
		}
		client := goredis.NewClient(opt)
		a.onClose(func(context.Context) error { return client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		rdb = client
	}

	p, err := newProvider(ctx, cfg.Cache, rdb)
	if err != nil {
		return err
	}
	a.onClose(p.Close)

	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if rp, ok := p.(*ristretto.Provider); ok {
		registerRistretto(a.registry, rp)
	}
	hooks := transcache.MultiHooks{promhook.New(a.registry)}
	if slogger != nil {
		async := asynchook.New(sloghooks.New(slogger, sloghooks.Options{SelfHealEvery: 100, RaceEvery: 1}), 1, 1024)
		a.onClose(func(context.Context) error { async.Close(); return nil })
		hooks = append(hooks, async)
	}

	opts := transcache.Options{
		Store:       a.store,
		Provider:    p,
		Namespace:   cfg.Cache.Namespace,
		Codec:       cfg.Cache.Codec,
		MaxDecode:   cfg.Cache.MaxDecode,
		Logger:      lg,
		Hooks:       hooks,
		ListTTL:     cfg.Cache.ListTTL.Duration,
		RecordTTL:   cfg.Cache.RecordTTL.Duration,
		ExportTTL:   cfg.Cache.ExportTTL.Duration,
		MaxListRows: cfg.Cache.MaxListRows,
		ExportChunk: cfg.Cache.ExportChunk,
		Disabled:    cfg.Cache.Driver == "none",
	}
	if cfg.Cache.Shared {
		ns := cfg.Cache.Namespace
		opts.GenStore = genstore.NewRedis(rdb, ns, cfg.Redis.GenTTL.Duration)
		opts.ListKeys = keyset.NewRedis(rdb, ns+":list", cfg.Redis.KeysTTL.Duration)
		opts.RecordKeys = keyset.NewRedis(rdb, ns+":record", cfg.Redis.KeysTTL.Duration)
	}

	svc, err := transcache.New(opts)
	if err != nil {
		return err
	}
	a.onClose(svc.Close)
	a.svc = svc
	return nil
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.Store.Driver {
	case "postgres":
		st, err := postgres.Open(ctx, a.cfg.Store.DSN)
		if err != nil {
			return err
		}
		a.store = st
		a.ping = st.Ping
	case "sqlite":
		st, err := sqlite.Open(a.cfg.Store.Path)
		if err != nil {
			return err
		}
		a.store = st
		a.ping = st.Ping
	default:
		return fmt.Errorf("unknown store driver %q", a.cfg.Store.Driver)
	}
	st := a.store
	a.onClose(func(context.Context) error { return st.Close() })
	return nil
}

func newProvider(ctx context.Context, cfg config.CacheConfig, rdb goredis.UniversalClient) (provider.Provider, error) {
	longest := max(cfg.ListTTL.Duration, cfg.RecordTTL.Duration, cfg.ExportTTL.Duration)
	switch cfg.Driver {
	case "ristretto":
		rc := ristretto.DefaultConfig()
		rc.MaxCost = int64(cfg.MaxEntries)
		rc.NumCounters = 10 * rc.MaxCost
		rc.Metrics = true
		return ristretto.New(rc)
	case "bigcache":
		return bigcache.New(ctx, bigcache.Config{LifeWindow: longest, CleanWindow: time.Minute})
	case "lru":
		return lru.New(lru.Config{Size: cfg.MaxEntries, TTL: longest})
	case "redis":
		return pr.New(pr.Config{Client: rdb})
	case "none":
		// caching is disabled; the provider is never touched
		return lru.New(lru.Config{Size: 1})
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}
}

func registerRistretto(reg prometheus.Registerer, p *ristretto.Provider) {
	m := p.Metrics()
	if m == nil {
		return
	}
	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "transcache_ristretto_hit_ratio",
			Help: "Hit ratio reported by the in-process ristretto cache.",
		}, m.Ratio),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "transcache_ristretto_keys_evicted_total",
			Help: "Keys evicted by the ristretto cache.",
		}, func() float64 { return float64(m.KeysEvicted()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "transcache_ristretto_sets_dropped_total",
			Help: "Sets dropped or rejected by the ristretto cache.",
		}, func() float64 { return float64(m.SetsDropped() + m.SetsRejected()) }),
	)
}
