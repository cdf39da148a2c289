// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/cardsync/internal/anki"
	"github.com/starford/cardsync/internal/api"
	"github.com/starford/cardsync/internal/index"
	"github.com/starford/cardsync/internal/mcpserver"
	"github.com/starford/cardsync/internal/models"
	"github.com/starford/cardsync/internal/parser"
	"github.com/starford/cardsync/internal/sse"
	"github.com/starford/cardsync/internal/storage"
	"github.com/starford/cardsync/internal/syncer"
)

func newApplication(opts []Option) (*application, error) {
	app := &application{out: os.Stdout, logOut: os.Stdout, version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// logger initializes the structured JSON logger and makes it the default.
func (a *application) logger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(a.logOut, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

func (a *application) registry() (*parser.Registry, error) {
	settings := a.config.Flashcards
	if settings.VaultName == "" {
		settings.VaultName = a.config.Vault.Name
	}
	if settings.VaultName == "" {
		if abs, err := filepath.Abs(a.config.Vault.Path); err == nil {
			settings.VaultName = filepath.Base(abs)
		}
	}
	reg, err := parser.Compile(settings)
	if err != nil {
		return nil, fmt.Errorf("compile flashcard patterns: %w", err)
	}
	return reg, nil
}

// components are the parts shared by every command that syncs.
type components struct {
	vault *storage.FS
	db    *index.DB
	svc   *syncer.Service
}

func (a *application) open(logger *slog.Logger, extra ...syncer.Option) (*components, error) {
	cfg := a.config

	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}
	vault, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	reg, err := a.registry()
	if err != nil {
		return nil, err
	}
	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init ledger: %w", err)
	}

	store := a.store
	if store == nil {
		store = anki.New(cfg.Anki.URL, cfg.Anki.Key, cfg.Anki.Timeout, logger)
	}

	opts := append([]syncer.Option{
		syncer.WithLogger(logger),
		syncer.WithConcurrency(cfg.Sync.Concurrency),
		syncer.WithDebounce(cfg.Sync.Debounce),
	}, extra...)

	return &components{
		vault: vault,
		db:    db,
		svc:   syncer.New(reg, vault, db, store, opts...),
	}, nil
}

// vaultPath accepts a note path relative to the vault or an absolute path
// inside it.
func vaultPath(vault *storage.FS, p string) (string, error) {
	if filepath.IsAbs(p) {
		return vault.Rel(p)
	}
	return filepath.ToSlash(filepath.Clean(p)), nil
}

func (a *application) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Run starts the HTTP server, the SSE broker and the vault watcher.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger()

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("anki_url", cfg.Anki.URL),
		slog.String("log_level", cfg.App.LogLevel.String()))

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	c, err := app.open(logger, syncer.WithEventHandler(func(ev syncer.Event) {
		broker.PublishSyncEvent(ev.Kind, ev.NotePath, ev.CardID)
	}))
	if err != nil {
		return err
	}
	defer c.db.Close()

	if cfg.Sync.OnStart {
		if res, err := c.svc.SyncVault(ctx); err != nil {
			logger.Warn("initial sync failed", slog.String("error", err.Error()))
		} else {
			broker.Publish(sse.Event{Type: "sync.finished", Data: res})
		}
	}

	apiRouter := api.NewRouter(c.svc, c.db, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := c.svc.Connect(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Sync.Watch {
		g.Go(func() error {
			return c.svc.Watch(gCtx, c.vault.Root())
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return context.Canceled
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunSync syncs the given notes, or the whole vault when paths is empty,
// and prints the result as JSON.
func RunSync(ctx context.Context, paths []string, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := app.logger()

	c, err := app.open(logger)
	if err != nil {
		return err
	}
	defer c.db.Close()

	if len(paths) == 0 {
		res, err := c.svc.SyncVault(ctx)
		if err != nil {
			return err
		}
		return app.print(res)
	}

	results := make([]syncer.NoteResult, 0, len(paths))
	for _, p := range paths {
		rel, err := vaultPath(c.vault, p)
		if err != nil {
			return err
		}
		res, err := c.svc.SyncNote(ctx, rel)
		if err != nil {
			return err
		}
		results = append(results, res)
	}
	return app.print(results)
}

// RunExtract prints the cards the given notes hold without syncing them.
// Neither the ledger nor the card store is touched.
func RunExtract(_ context.Context, paths []string, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("at least one note path is required")
	}
	logger := app.logger()

	vault, err := storage.NewFS(app.config.Vault.Path)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	reg, err := app.registry()
	if err != nil {
		return err
	}
	svc := syncer.New(reg, vault, nil, nil, syncer.WithLogger(logger))

	out := make(map[string][]*models.Card, len(paths))
	for _, p := range paths {
		rel, err := vaultPath(vault, p)
		if err != nil {
			return err
		}
		data, err := vault.Read(rel)
		if err != nil {
			return fmt.Errorf("read %s: %w", rel, err)
		}
		cards := svc.Extract(rel, data)
		if cards == nil {
			cards = []*models.Card{}
		}
		out[rel] = cards
	}
	return app.print(out)
}

// RunMCP serves the MCP tools on stdin/stdout. Logs go to stderr unless
// another log output is set.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	logger := app.logger()

	c, err := app.open(logger)
	if err != nil {
		return err
	}
	defer c.db.Close()

	logger.Info("MCP server starting", slog.String("vault_path", app.config.Vault.Path))
	srv := mcpserver.New(c.svc, c.vault, c.db, app.version)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ServeStdio() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}
