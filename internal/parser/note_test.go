package parser

import (
	"reflect"
	"testing"
)

func TestParseNote_Frontmatter(t *testing.T) {
	r := testRegistry(t)
	data := []byte("---\ntitle: Hello\ncards-deck: Lang::Go\ntags:\n  - go\n  - \"#concurrency\"\n---\nQ :: A\n")
	n := r.ParseNote("notes/hello.md", data)
	if n.Title != "Hello" {
		t.Errorf("title = %q", n.Title)
	}
	if n.Context.Deck != "Lang::Go" {
		t.Errorf("deck = %q", n.Context.Deck)
	}
	if !reflect.DeepEqual(n.Context.Tags, []string{"go", "concurrency"}) {
		t.Errorf("tags = %v", n.Context.Tags)
	}
	if n.Text != string(data) || n.Context.Path != "notes/hello.md" {
		t.Errorf("note = %+v", n)
	}
}

func TestParseNote_TagString(t *testing.T) {
	r := testRegistry(t)
	n := r.ParseNote("a.md", []byte("---\ntags: \"#one two/three\"\n---\nbody\n"))
	if !reflect.DeepEqual(n.Context.Tags, []string{"one", "two/three"}) {
		t.Errorf("tags = %v", n.Context.Tags)
	}
}

func TestParseNote_DeckSources(t *testing.T) {
	s := DefaultSettings()
	s.FolderBasedDeck = true
	s.Deck = "Fallback"
	r, err := Compile(s)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		path, text, want string
	}{
		{"x/y/n.md", "cards-deck: Inline Deck\nQ :: A", "Inline Deck"},
		{"x/y/n.md", "Q :: A", "x::y"},
		{"n.md", "Q :: A", "Fallback"},
	}
	for _, tt := range tests {
		if got := r.ParseNote(tt.path, []byte(tt.text)).Context.Deck; got != tt.want {
			t.Errorf("deck(%q, %q) = %q, want %q", tt.path, tt.text, got, tt.want)
		}
	}
}

func TestParseNote_InvalidYAML(t *testing.T) {
	r := testRegistry(t)
	n := r.ParseNote("broken.md", []byte("---\n: invalid: yaml: {{{\n---\nBody\n"))
	if n.Frontmatter != nil {
		t.Errorf("expected nil frontmatter, got %v", n.Frontmatter)
	}
	if n.Title != "broken" {
		t.Errorf("title = %q", n.Title)
	}
	if n.Context.Deck != DefaultDeck {
		t.Errorf("deck = %q", n.Context.Deck)
	}
}

func TestSplitTags(t *testing.T) {
	r := testRegistry(t)
	got := r.SplitTags("[[Linked Note]] #a/b c")
	if !reflect.DeepEqual(got, []string{"Linked Note", "a/b", "c"}) {
		t.Errorf("SplitTags = %v", got)
	}
}
