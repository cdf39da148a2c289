package internal

import (
	"io"

	"github.com/starford/cardsync/internal/reconcile"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config  *Config
	store   reconcile.Store
	out     io.Writer
	logOut  io.Writer
	version string
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithStore replaces the AnkiConnect client with another card store.
func WithStore(s reconcile.Store) Option {
	return func(a *application) {
		a.store = s
	}
}

// WithOutput sets where the sync and extract commands print results.
func WithOutput(w io.Writer) Option {
	return func(a *application) {
		a.out = w
	}
}

// WithLogOutput sets where logs are written.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOut = w
	}
}

// WithVersion sets the version reported by the MCP server.
func WithVersion(v string) Option {
	return func(a *application) {
		a.version = v
	}
}
