package syncer

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch syncs notes as they change under root until ctx is cancelled.
//
// Writes to a note are debounced and the note is synced once they settle.
// Its own write-backs leave the note checksum matching the ledger, so they
// do not trigger another sync. Removals, renames and new directories
// schedule a vault pass, which picks up moved notes and deletes the cards
// of vanished ones.
func (s *Service) Watch(ctx context.Context, root string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}
	s.log.Info("watcher: started", slog.String("root", root))

	pending := make(map[string]struct{})
	var noteTimer, vaultTimer *time.Timer
	var noteCh, vaultCh <-chan time.Time

	schedule := func(t **time.Timer, ch *<-chan time.Time) {
		if *t == nil {
			*t = time.NewTimer(s.debounce)
			*ch = (*t).C
			return
		}
		(*t).Reset(s.debounce)
	}
	stop := func() {
		for _, t := range []*time.Timer{noteTimer, vaultTimer} {
			if t != nil {
				t.Stop()
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			stop()
			s.log.Info("watcher: stopped")
			return nil

		case <-noteCh:
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			clear(pending)
			for _, p := range paths {
				if _, err := s.syncNote(ctx, p, false); err != nil {
					s.log.Warn("watcher: sync failed", slog.String("path", p), slog.String("error", err.Error()))
				}
			}

		case <-vaultCh:
			if _, err := s.SyncVault(ctx); err != nil {
				s.log.Warn("watcher: vault sync failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			abs := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(abs); statErr == nil && info.IsDir() {
					if hiddenDir(filepath.Base(abs)) {
						continue
					}
					if addErr := addDirsRecursive(w, abs); addErr != nil {
						s.log.Warn("watcher: add new dir failed",
							slog.String("path", abs),
							slog.String("error", addErr.Error()))
					}
					schedule(&vaultTimer, &vaultCh)
					continue
				}
			}

			if !strings.HasSuffix(abs, ".md") {
				continue
			}
			rel, relErr := filepath.Rel(root, abs)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				if err := s.Connect(ctx); err != nil {
					s.log.Warn("watcher: store unavailable", slog.String("error", err.Error()))
					continue
				}
				pending[rel] = struct{}{}
				schedule(&noteTimer, &noteCh)
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				// The new name of a renamed note arrives as its own Create.
				s.log.Debug("watcher: note gone", slog.String("path", rel))
				schedule(&vaultTimer, &vaultCh)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.log.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and its non-hidden subdirectories to w.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && hiddenDir(d.Name()) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

func hiddenDir(name string) bool {
	return strings.HasPrefix(name, ".")
}
