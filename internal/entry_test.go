package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/cardsync/internal/syncer"
	"github.com/starford/cardsync/internal/testutil"
)

func testConfig(t *testing.T) (*Config, string) {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.Vault.Path = t.TempDir()
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "ledger.db")
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	return cfg, cfg.Vault.Path
}

func TestRunExtract(t *testing.T) {
	cfg, vault := testConfig(t)
	testutil.WriteNote(t, vault, "langs/fr.md", "---\ncards-deck: French\n---\nchat :: cat\n")

	var out bytes.Buffer
	err := RunExtract(context.Background(), []string{"langs/fr.md"},
		WithConfig(cfg), WithOutput(&out), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatal(err)
	}
	var got map[string][]struct {
		Deck  string `json:"deck"`
		State string `json:"state"`
	}
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("output %q: %v", out.String(), err)
	}
	cards := got["langs/fr.md"]
	if len(cards) != 1 || cards[0].Deck != "French" || cards[0].State != "unbound" {
		t.Errorf("cards = %+v", cards)
	}
}

func TestRunExtract_RequiresPaths(t *testing.T) {
	cfg, _ := testConfig(t)
	if err := RunExtract(context.Background(), nil, WithConfig(cfg), WithLogOutput(io.Discard)); err == nil {
		t.Error("expected error without paths")
	}
}

func TestRunSync_Vault(t *testing.T) {
	cfg, vault := testConfig(t)
	testutil.WriteNote(t, vault, "a.md", "Q :: A\n")
	store := testutil.NewFakeStore()

	var out bytes.Buffer
	err := RunSync(context.Background(), nil,
		WithConfig(cfg), WithStore(store), WithOutput(&out), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatal(err)
	}
	var res syncer.VaultResult
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if len(res.Notes) != 1 || len(store.IDs()) != 1 {
		t.Errorf("result = %+v, store = %v", res, store.IDs())
	}
}

func TestRunSync_Notes(t *testing.T) {
	cfg, vault := testConfig(t)
	testutil.WriteNote(t, vault, "a.md", "Q :: A\n")
	testutil.WriteNote(t, vault, "b.md", "R :: B\n")
	store := testutil.NewFakeStore()

	var out bytes.Buffer
	err := RunSync(context.Background(), []string{filepath.Join(vault, "b.md")},
		WithConfig(cfg), WithStore(store), WithOutput(&out), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), `"path": "b.md"`) || strings.Contains(out.String(), `"path": "a.md"`) {
		t.Errorf("output = %s", out.String())
	}
	if len(store.IDs()) != 1 {
		t.Errorf("store = %v", store.IDs())
	}
}

func TestRun_RequiresConfig(t *testing.T) {
	if err := Run(context.Background()); err == nil {
		t.Error("expected error without config")
	}
}
