package main

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unkn0wn-root/transcache"
	"github.com/unkn0wn-root/transcache/internal/config"
	"github.com/unkn0wn-root/transcache/internal/httpapi"
)

func runServe(ctx context.Context, configPath string, args []string, stderr io.Writer) error {
	fs := subFlags("serve", stderr)
	addr := fs.String("addr", "", "listen address (default: http.addr)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}

	a, err := setup(ctx, cfg, stderr, true)
	if err != nil {
		return err
	}
	defer a.close(context.WithoutCancel(ctx))

	ln, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return err
	}
	return serve(ctx, a, ln)
}

// serve runs the API on ln until ctx is cancelled, then shuts down within
// http.shutdown_timeout.
func serve(ctx context.Context, a *app, ln net.Listener) error {
	cfg := a.cfg
	var metrics http.Handler
	if cfg.HTTP.Metrics {
		metrics = promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry})
	}
	srv := &http.Server{
		Handler: httpapi.New(httpapi.Options{
			Service:   a.svc,
			Logger:    a.log,
			Token:     cfg.HTTP.Token,
			Metrics:   metrics,
			Health:    a.ping,
			RateLimit: cfg.HTTP.RateLimit,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout.Duration,
		WriteTimeout:      cfg.HTTP.WriteTimeout.Duration,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	a.log.Info("listening", transcache.Fields{
		"addr":  ln.Addr().String(),
		"store": cfg.Store.Driver,
		"cache": cfg.Cache.Driver,
		"auth":  cfg.HTTP.Token != "",
	})

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout.Duration)
	defer cancel()
	a.log.Info("shutting down", nil)
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	return nil
}
