// Package syncer keeps the remote card store in line with the vault: it
// extracts cards from notes, reconciles them against the ledger and the
// store, and writes identity markers back into the notes.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/checksum"
	"github.com/starford/cardsync/internal/index"
	"github.com/starford/cardsync/internal/models"
	"github.com/starford/cardsync/internal/parser"
	"github.com/starford/cardsync/internal/reconcile"
	"github.com/starford/cardsync/internal/storage"
)

// DefaultConcurrency is the number of notes synced in parallel.
const DefaultConcurrency = 4

// FileReader resolves media links to file contents.
type FileReader interface {
	ReadMedia(notePath, link string) ([]byte, string, error)
}

// Event kinds passed to the event handler.
const (
	EventCardCreated = "card.created"
	EventCardUpdated = "card.updated"
	EventCardDeleted = "card.deleted"
	EventNoteSynced  = "note.synced"
)

// Event describes one change made by a sync.
type Event struct {
	Kind     string `json:"kind"`
	NotePath string `json:"note_path"`
	CardID   int64  `json:"card_id,omitempty"`
}

// EventFunc receives sync events. It must not block.
type EventFunc func(Event)

// NoteResult is the outcome of syncing one note.
type NoteResult struct {
	Path      string         `json:"path"`
	Skipped   bool           `json:"skipped,omitempty"`
	Removed   bool           `json:"removed,omitempty"`
	Rewritten bool           `json:"rewritten,omitempty"`
	Cards     []*models.Card `json:"cards"`
	Created   []int64        `json:"created"`
	Updated   []int64        `json:"updated"`
	Deleted   []int64        `json:"deleted"`
	Unchanged int            `json:"unchanged"`
	Warnings  []string       `json:"warnings,omitempty"`
}

// VaultResult is the outcome of a full vault sync.
type VaultResult struct {
	Notes   []NoteResult `json:"notes"`
	Scanned int          `json:"scanned"`
	Errors  []string     `json:"errors,omitempty"`
}

// Service coordinates extraction, the ledger and the remote store.
type Service struct {
	reg     *parser.Registry
	builder *parser.Builder
	vault   storage.Provider
	files   FileReader
	ledger  index.Ledger
	store   reconcile.Store
	log     *slog.Logger
	onEvent EventFunc

	concurrency int
	debounce    time.Duration

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	connMu    sync.Mutex
	connected bool
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithConcurrency sets how many notes SyncVault handles in parallel.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithDebounce sets how long Watch waits for writes to settle.
func WithDebounce(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.debounce = d
		}
	}
}

// WithEventHandler registers fn to receive sync events.
func WithEventHandler(fn EventFunc) Option {
	return func(s *Service) { s.onEvent = fn }
}

// WithFileReader overrides where media payloads are read from. The vault
// is used by default.
func WithFileReader(r FileReader) Option {
	return func(s *Service) { s.files = r }
}

// New creates a Service.
func New(reg *parser.Registry, vault storage.Provider, ledger index.Ledger, store reconcile.Store, opts ...Option) *Service {
	s := &Service{
		reg:         reg,
		builder:     parser.NewBuilder(reg),
		vault:       vault,
		files:       vault,
		ledger:      ledger,
		store:       store,
		log:         slog.Default(),
		concurrency: DefaultConcurrency,
		debounce:    300 * time.Millisecond,
		locks:       make(map[string]*sync.Mutex),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Extract parses text as the note at path and returns the cards it holds,
// without touching the store, the ledger or the file.
func (s *Service) Extract(path string, text []byte) []*models.Card {
	note := s.reg.ParseNote(path, text)
	return s.builder.BuildAll(s.reg.Extract(note.Text), note.Context)
}

// Connect asks the store for permission and checks it answers. It runs
// once per Service; later calls return nil.
func (s *Service) Connect(ctx context.Context) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.connected {
		return nil
	}
	if err := s.store.RequestPermission(ctx); err != nil {
		return fmt.Errorf("syncer: connect: %w", err)
	}
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("syncer: connect: %w", err)
	}
	s.connected = true
	return nil
}

// SyncNote syncs one note regardless of whether it changed since the last
// sync. A note that no longer exists has its cards deleted.
func (s *Service) SyncNote(ctx context.Context, path string) (NoteResult, error) {
	if err := s.Connect(ctx); err != nil {
		return NoteResult{Path: path}, err
	}
	return s.syncNote(ctx, path, true)
}

func (s *Service) lock(path string) func() {
	s.locksMu.Lock()
	mu, ok := s.locks[path]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[path] = mu
	}
	s.locksMu.Unlock()
	mu.Lock()
	return mu.Unlock
}

func (s *Service) syncNote(ctx context.Context, path string, force bool) (NoteResult, error) {
	defer s.lock(path)()
	res := NoteResult{Path: path}

	data, err := s.vault.Read(path)
	if errors.Is(err, apperr.ErrNotFound) {
		return s.removeNote(ctx, path)
	}
	if err != nil {
		return res, fmt.Errorf("syncer: read %s: %w", path, err)
	}

	sum := checksum.Sum(data)
	if !force {
		if prev, _ := s.ledger.GetChecksum(path); prev == sum {
			res.Skipped = true
			return res, nil
		}
	}

	note := s.reg.ParseNote(path, data)
	cards := s.builder.BuildAll(s.reg.Extract(note.Text), note.Context)
	res.Warnings = s.resolveMedia(cards)

	known, err := s.ledger.NoteCards(path)
	if err != nil {
		return res, fmt.Errorf("syncer: %s: %w", path, err)
	}
	orphans := s.reg.OrphanMarkers(note.Text)

	plan := reconcile.Build(cards, known, orphans)
	applied, err := reconcile.Apply(ctx, s.store, plan)
	if err != nil {
		err = fmt.Errorf("syncer: %s: %w", path, err)
		if kerr := s.keepPartial(note, cards, known, plan); kerr != nil {
			return res, errors.Join(err, kerr)
		}
		return res, err
	}

	text := parser.InsertMarkers(note.Text, cards)
	if len(orphans) > 0 {
		text = s.reg.RemoveOrphanMarkers(text)
	}
	if text != note.Text {
		if err := s.vault.Write(path, []byte(text)); err != nil {
			return res, fmt.Errorf("syncer: write back %s: %w", path, err)
		}
		sum = checksum.SumString(text)
		res.Rewritten = true
	}

	row := index.NoteRow{Path: path, Title: note.Title, Checksum: sum, UpdatedAt: time.Now()}
	if err := s.ledger.ReplaceNoteCards(row, cards); err != nil {
		return res, fmt.Errorf("syncer: %s: %w", path, err)
	}

	res.Cards = cards
	res.Created = applied.Created
	res.Updated = applied.Updated
	res.Deleted = applied.Deleted
	res.Unchanged = len(plan.Unchanged)

	s.log.Info("syncer: note synced",
		slog.String("path", path),
		slog.String("plan", plan.String()),
		slog.Bool("rewritten", res.Rewritten))
	s.emitResult(res)
	return res, nil
}

// keepPartial records what a failed Apply already did to the store. Cards
// the store bound get their markers and a ledger row; updates that may not
// have landed keep their previous content and cards planned for deletion
// stay known. The checksum is left empty so the next sync retries the note.
func (s *Service) keepPartial(note *parser.Note, cards, known []*models.Card, plan reconcile.Plan) error {
	var keep []*models.Card
	for _, c := range plan.Create {
		if c.ID != models.UnboundID {
			keep = append(keep, c)
		}
	}
	if len(keep) == 0 {
		return nil
	}

	byID := make(map[int64]*models.Card, len(known))
	for _, k := range known {
		byID[k.ID] = k
	}
	keep = append(keep, plan.Unchanged...)
	for _, c := range plan.Update {
		if k, ok := byID[c.ID]; ok {
			keep = append(keep, k)
		}
	}
	for _, id := range plan.Delete {
		if k, ok := byID[id]; ok {
			keep = append(keep, k)
		}
	}

	if text := parser.InsertMarkers(note.Text, cards); text != note.Text {
		if err := s.vault.Write(note.Path, []byte(text)); err != nil {
			return fmt.Errorf("syncer: write back %s: %w", note.Path, err)
		}
	}
	row := index.NoteRow{Path: note.Path, Title: note.Title, UpdatedAt: time.Now()}
	if err := s.ledger.ReplaceNoteCards(row, keep); err != nil {
		return fmt.Errorf("syncer: %s: %w", note.Path, err)
	}
	s.log.Warn("syncer: partial sync recorded",
		slog.String("path", note.Path),
		slog.Int("bound", len(keep)))
	return nil
}

// removeNote deletes the remote cards of a note that left the vault.
// Cards whose id another note claimed in the meantime are left alone.
func (s *Service) removeNote(ctx context.Context, path string) (NoteResult, error) {
	res := NoteResult{Path: path, Removed: true}
	known, err := s.ledger.NoteCards(path)
	if err != nil {
		return res, fmt.Errorf("syncer: remove %s: %w", path, err)
	}
	ids := make([]int64, 0, len(known))
	for _, c := range known {
		ids = append(ids, c.ID)
	}
	if len(ids) > 0 {
		if err := s.store.DeleteCards(ctx, ids); err != nil {
			return res, fmt.Errorf("syncer: remove %s: %w", path, err)
		}
	}
	if _, err := s.ledger.DeleteNote(path); err != nil {
		return res, fmt.Errorf("syncer: remove %s: %w", path, err)
	}
	res.Deleted = ids
	s.log.Info("syncer: note removed", slog.String("path", path), slog.Int("cards", len(ids)))
	s.emitResult(res)
	return res, nil
}

// resolveMedia loads the payload of every media file the cards reference.
// A missing file is reported and the card is still synced without it.
func (s *Service) resolveMedia(cards []*models.Card) []string {
	var warnings []string
	for _, c := range cards {
		for i := range c.Media {
			m := &c.Media[i]
			data, _, err := s.files.ReadMedia(m.NotePath, m.Link)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("card %q: media %s: %v", c.PrimaryField(), m.Link, err))
				s.log.Warn("syncer: media unavailable",
					slog.String("path", m.NotePath),
					slog.String("link", m.Link),
					slog.String("error", err.Error()))
				continue
			}
			m.Data = data
		}
	}
	return warnings
}

func (s *Service) emitResult(res NoteResult) {
	if s.onEvent == nil {
		return
	}
	for _, id := range res.Created {
		s.onEvent(Event{Kind: EventCardCreated, NotePath: res.Path, CardID: id})
	}
	for _, id := range res.Updated {
		s.onEvent(Event{Kind: EventCardUpdated, NotePath: res.Path, CardID: id})
	}
	for _, id := range res.Deleted {
		s.onEvent(Event{Kind: EventCardDeleted, NotePath: res.Path, CardID: id})
	}
	s.onEvent(Event{Kind: EventNoteSynced, NotePath: res.Path})
}

// fatal reports whether err should stop a vault sync instead of being
// recorded against one note.
func fatal(err error) bool {
	return errors.Is(err, apperr.ErrRemote) ||
		errors.Is(err, apperr.ErrPermissionDenied) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// SyncVault syncs every note that changed since the last sync, then
// deletes the cards of notes that left the vault. Notes are synced in
// parallel up to the configured concurrency. A store failure stops the
// whole pass; other failures are recorded per note.
func (s *Service) SyncVault(ctx context.Context) (VaultResult, error) {
	var out VaultResult
	if err := s.Connect(ctx); err != nil {
		return out, err
	}

	metas, err := s.vault.List("")
	if err != nil {
		return out, fmt.Errorf("syncer: list vault: %w", err)
	}
	checksums, err := s.ledger.AllChecksums()
	if err != nil {
		return out, fmt.Errorf("syncer: %w", err)
	}
	out.Scanned = len(metas)

	disk := make(map[string]struct{}, len(metas))
	var changed []string
	for _, m := range metas {
		disk[m.Path] = struct{}{}
		if checksums[m.Path] != m.Checksum {
			changed = append(changed, m.Path)
		}
	}

	var mu sync.Mutex
	collect := func(r NoteResult, err error) error {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			if fatal(err) {
				return err
			}
			s.log.Warn("syncer: note failed", slog.String("path", r.Path), slog.String("error", err.Error()))
			out.Errors = append(out.Errors, err.Error())
			return nil
		}
		out.Notes = append(out.Notes, r)
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, p := range changed {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := s.syncNote(gctx, p, false)
			return collect(r, err)
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}

	// Removals run after every present note is synced, so a card whose note
	// was moved has already changed owner.
	for p := range checksums {
		if _, ok := disk[p]; ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}
		r, err := s.removeNote(ctx, p)
		if err := collect(r, err); err != nil {
			return out, err
		}
	}

	s.log.Info("syncer: vault synced",
		slog.Int("scanned", out.Scanned),
		slog.Int("synced", len(out.Notes)),
		slog.Int("errors", len(out.Errors)))
	return out, nil
}
