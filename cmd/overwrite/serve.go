package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	cfg "github.com/fabian4/overwrite-homebrew-go/internal/config"
	"github.com/fabian4/overwrite-homebrew-go/internal/fetch"
	"github.com/fabian4/overwrite-homebrew-go/internal/handler"
	"github.com/fabian4/overwrite-homebrew-go/internal/metrics"
	"github.com/fabian4/overwrite-homebrew-go/internal/overwrite"
	"github.com/fabian4/overwrite-homebrew-go/internal/version"
)

const (
	pruneEvery   = time.Minute
	limiterIdle  = 10 * time.Minute
	shutdownWait = 5 * time.Second
)

func serve(configPath string) error {
	c, err := cfg.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	setLogLevel(c.LogLevel)

	log := logrus.StandardLogger()
	eng, err := overwrite.New(nil, log)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	fopts := fetch.DefaultOptions()
	fopts.ResponseHeaderTimeout = c.Timeouts.Upstream
	fetcher := fetch.NewClient(fopts, log)
	reg := metrics.NewRegistry()
	cv := handler.NewConverter(c, eng, fetcher, reg, log, os.Stdout)

	srv := &http.Server{
		Addr:              c.Listen,
		Handler:           cv,
		ReadTimeout:       c.Timeouts.Read,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      c.Timeouts.Write,
		IdleTimeout:       60 * time.Second,
	}
	cat := eng.Catalog()
	logrus.WithFields(logrus.Fields{
		"regions":   len(cat.Regions),
		"services":  len(cat.Services),
		"providers": len(cat.Providers),
		"rules":     len(cat.Rules),
	}).Debug("catalog loaded")
	logrus.Infof("%s listening on %s (profiles=%d)", version.BuildInfo(), c.Listen, len(c.Profiles))

	errCh := make(chan error, 2)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	var metricsSrv *http.Server
	if c.Metrics.Address != "" {
		mux := http.NewServeMux()
		mux.HandleFunc(handler.PathMetrics, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain; version=0.0.4")
			reg.WritePrometheus(w)
		})
		metricsSrv = &http.Server{Addr: c.Metrics.Address, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		logrus.Infof("metrics listening on %s", c.Metrics.Address)
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics listen: %w", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	prune := time.NewTicker(pruneEvery)
	defer prune.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case err := <-errCh:
			return err
		case <-hup:
			nc, err := cfg.Load(configPath)
			if err != nil {
				logrus.WithError(err).Error("reload failed, keeping the previous config")
				continue
			}
			if nc.Listen != c.Listen || nc.Metrics.Address != c.Metrics.Address {
				logrus.Warn("listen and metrics.address changes need a restart")
			}
			setLogLevel(nc.LogLevel)
			cv.UpdateState(nc)
			fetcher.CloseIdle()
			logrus.Infof("config reloaded (profiles=%d)", len(nc.Profiles))
		case <-prune.C:
			if n := cv.Limiter.Prune(limiterIdle); n > 0 {
				logrus.Debugf("pruned %d idle rate limiters, %d left", n, cv.Limiter.Len())
			}
		}
	}

	logrus.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return srv.Shutdown(shutdownCtx)
}
