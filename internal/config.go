package internal

import (
	"fmt"
	"log/slog"
	"net/url"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/cardsync/internal/anki"
	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/parser"
	"github.com/starford/cardsync/internal/syncer"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	Vault      VaultConfig       `yaml:"vault"`
	SQLite     SQLiteConfig      `yaml:"sqlite"`
	Auth       AuthConfig        `yaml:"auth"`
	Anki       AnkiConfig        `yaml:"anki"`
	Sync       SyncConfig        `yaml:"sync"`
	Flashcards parser.Settings   `yaml:"flashcards"`
}

// Validate validates the configuration. The flashcard settings are
// normalized in place and checked by compiling them.
func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{&c.App, &c.Vault, &c.SQLite, &c.Auth, &c.Anki, &c.Sync} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	c.Flashcards = c.Flashcards.Normalize()
	c.Flashcards.VaultName = c.Vault.Name
	if _, err := parser.Compile(c.Flashcards); err != nil {
		return fmt.Errorf("flashcards: %w", err)
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// VaultConfig locates the Markdown vault. Name is the vault name used in
// obsidian:// links and defaults to the directory name.
type VaultConfig struct {
	Path string `yaml:"path"`
	Name string `yaml:"name"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty: %w", AuthModeToken, apperr.ErrInvalidConfiguration)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// AnkiConfig points at the AnkiConnect endpoint. Key is only needed when
// AnkiConnect has an API key configured.
type AnkiConfig struct {
	URL     string        `yaml:"url"`
	Key     string        `yaml:"key"`
	Timeout time.Duration `yaml:"timeout"`
}

// Validate validates the Anki configuration.
func (c *AnkiConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.URL, validation.Required, validation.By(httpURL)),
		validation.Field(&c.Timeout, validation.Required, validation.Min(100*time.Millisecond)),
	)
}

func httpURL(v any) error {
	s, _ := v.(string)
	u, err := url.ParseRequestURI(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("must be an http(s) URL")
	}
	return nil
}

// SyncConfig controls how the vault is synced.
type SyncConfig struct {
	Concurrency int           `yaml:"concurrency"`
	Watch       bool          `yaml:"watch"`
	OnStart     bool          `yaml:"on_start"`
	Debounce    time.Duration `yaml:"debounce"`
}

// Validate validates the sync configuration.
func (c *SyncConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Concurrency, validation.Required, validation.Min(1), validation.Max(64)),
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Vault: VaultConfig{
			Path: "./vault",
		},
		SQLite: SQLiteConfig{
			Path: "./cardsync.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Anki: AnkiConfig{
			URL:     anki.DefaultURL,
			Timeout: 10 * time.Second,
		},
		Sync: SyncConfig{
			Concurrency: syncer.DefaultConcurrency,
			Watch:       true,
			OnStart:     true,
			Debounce:    300 * time.Millisecond,
		},
		Flashcards: parser.DefaultSettings(),
	}
}
