package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/simon-b64/study-questions/internal/course"
	"github.com/simon-b64/study-questions/internal/platform/cache"
	"github.com/simon-b64/study-questions/internal/platform/config"
	"github.com/simon-b64/study-questions/internal/platform/database"
	"github.com/simon-b64/study-questions/internal/reconcile"
	"github.com/simon-b64/study-questions/internal/store"
	"github.com/simon-b64/study-questions/internal/watch"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	app, err := newApp(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer app.close()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      app.mux(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}

	// Let in-flight remote progress pushes finish before the pool closes.
	app.resolver.Wait()
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}

// app holds the wired components behind the HTTP surface.
type app struct {
	loader   *course.Loader
	catalog  *course.Catalog
	resolver *reconcile.Resolver
	hub      *watch.Hub
	sessions *sessionRegistry
	newRand  func() *rand.Rand

	db  *database.DB
	rdb *cache.Cache
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{
		hub:      watch.NewHub(),
		sessions: newSessionRegistry(),
		newRand: func() *rand.Rand {
			return rand.New(rand.NewSource(time.Now().UnixNano()))
		},
	}

	var err error
	a.loader, err = course.NewLoader(cfg.Content.Source)
	if err != nil {
		return nil, err
	}

	if cfg.Content.CatalogPath != "" {
		a.catalog, err = course.LoadCatalog(cfg.Content.CatalogPath)
		if err != nil {
			return nil, err
		}
		slog.Info("course catalog loaded", "courses", len(a.catalog.Courses))
	}

	var local store.Local
	if cfg.Cache.URL != "" {
		a.rdb, err = cache.New(ctx, cfg.Cache.URL)
		switch {
		case err == nil:
			local = store.NewRedisLocal(a.rdb.Client)
			slog.Info("using redis local progress cache")
		case cfg.Progress.Dir != "":
			// The local cache is best-effort; an unreachable Redis at
			// startup degrades to the file cache instead of refusing to
			// serve.
			slog.Warn("progress cache unreachable, falling back to file cache", "error", err)
		default:
			return nil, err
		}
	}
	if local == nil {
		local, err = store.NewFileLocal(cfg.Progress.Dir)
		if err != nil {
			return nil, err
		}
		slog.Info("using file local progress cache", "dir", cfg.Progress.Dir)
	}

	var remote store.Remote
	if cfg.HasRemoteStore() {
		a.db, err = database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return nil, err
		}
		remote, err = store.NewPostgresRemote(ctx, a.db.Pool)
		if err != nil {
			return nil, err
		}
		slog.Info("remote progress store enabled")
	}

	a.resolver = reconcile.New(reconcile.Config{
		Local:    local,
		Remote:   remote,
		Arbiter:  requestArbiter{},
		Notifier: a.hub,
	})

	return a, nil
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
	if a.rdb != nil {
		a.rdb.Close()
	}
}
