package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gyaneshwarpardhi/flowcode/internal/api"
	"github.com/gyaneshwarpardhi/flowcode/internal/codegen"
	"github.com/gyaneshwarpardhi/flowcode/internal/config"
	"github.com/gyaneshwarpardhi/flowcode/internal/engine"
	"github.com/gyaneshwarpardhi/flowcode/internal/metrics"
	"github.com/gyaneshwarpardhi/flowcode/internal/nodespec"
	"github.com/gyaneshwarpardhi/flowcode/internal/store"
)

func main() {
	cfgPath := flag.String("config", "configs/flowcode.yaml", "Path to service YAML config")
	addr := flag.String("addr", "", "HTTP listen address (overrides server.addr)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// ── Load config ──────────────────────────────────────────────────────────
	loader, err := config.NewLoader(*cfgPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	cfg := loader.Config()
	languages := codegen.Languages()
	if err := config.Validate(cfg, languages.SortedKeys()); err != nil {
		slog.Error("config validation failed", "err", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	lang, err := languages.Get(cfg.Codegen.Language)
	if err != nil {
		slog.Error("unknown language", "err", err)
		os.Exit(1)
	}

	// ── Template catalog ──────────────────────────────────────────────────────
	loadCatalog := func() (*nodespec.Catalog, error) {
		if cfg.Catalog.Path == "" {
			return nodespec.NewCatalog(), nil
		}
		return nodespec.LoadFile(cfg.Catalog.Path)
	}
	cat, err := loadCatalog()
	if err != nil {
		slog.Error("failed to load catalog", "err", err)
		os.Exit(1)
	}
	slog.Info("catalog loaded", "specs", cat.Len(), "path", cfg.Catalog.Path)

	// ── Graph store ───────────────────────────────────────────────────────────
	var opts []api.Option
	if cfg.Store.Path != "" {
		db, err := store.Open(cfg.Store.Path)
		if err != nil {
			slog.Error("failed to open graph store", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		opts = append(opts, api.WithStore(db))
	}
	if cfg.Catalog.Path != "" {
		opts = append(opts, api.WithCatalogReload(loadCatalog))
	}

	// ── Compiler ──────────────────────────────────────────────────────────────
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	compiler := engine.New(ctx, cat, lang, cfg.Compiler, logger)

	// ── Hot-reload watchers ───────────────────────────────────────────────────
	loader.OnChange(func(newCfg *config.Config) {
		if err := config.Validate(newCfg, languages.SortedKeys()); err != nil {
			slog.Warn("hot-reload skipped: config invalid", "err", err)
			return
		}
		slog.Info("config reloaded; codegen defaults apply to new requests",
			"instrument", newCfg.Codegen.Instrument)
	})
	stopWatch, err := loader.Watch()
	if err != nil {
		slog.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
	} else {
		defer stopWatch()
	}

	if cfg.Catalog.Watch {
		stopCatalog, err := config.WatchFile(cfg.Catalog.Path, func() {
			next, err := loadCatalog()
			if err != nil {
				metrics.CatalogReloads.WithLabelValues("error").Inc()
				slog.Warn("hot-reload skipped: catalog invalid", "err", err)
				return
			}
			compiler.SwapCatalog(next)
			metrics.CatalogReloads.WithLabelValues("ok").Inc()
			slog.Info("catalog hot-reloaded", "specs", next.Len())
		})
		if err != nil {
			slog.Warn("catalog watcher unavailable (hot-reload disabled)", "err", err)
		} else {
			defer stopCatalog()
		}
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	handler := api.New(ctx, compiler, loader, opts...)
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.Server.Addr, "language", lang.Name())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down…")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)
	cancel() // stop worker pool and session sweeper
	compiler.Shutdown()
	slog.Info("goodbye")
}
