package parser

import (
	"reflect"
	"strings"
	"testing"

	"github.com/starford/cardsync/internal/models"
)

func buildOne(t *testing.T, s Settings, text string, note NoteContext) *models.Card {
	t.Helper()
	r, err := Compile(s)
	if err != nil {
		t.Fatal(err)
	}
	cands := r.Extract(text)
	if len(cands) != 1 {
		t.Fatalf("%q: got %d candidates, want 1", text, len(cands))
	}
	return NewBuilder(r).Build(cands[0], note)
}

func field(t *testing.T, c *models.Card, name string) string {
	t.Helper()
	v, ok := c.Fields.Get(name)
	if !ok {
		t.Fatalf("card has no %s field: %v", name, c.Fields.Names())
	}
	return v
}

func TestBuild_Basic(t *testing.T) {
	c := buildOne(t, DefaultSettings(), "Q :: A", NoteContext{Path: "n.md"})
	if c.Model != models.ModelBasic || c.Deck != DefaultDeck {
		t.Errorf("model=%q deck=%q", c.Model, c.Deck)
	}
	if field(t, c, models.FieldFront) != "Q" || field(t, c, models.FieldBack) != "A" {
		t.Errorf("fields = %v", c.Fields)
	}
	if c.ID != models.UnboundID || c.Inserted || c.State() != models.StateUnbound {
		t.Errorf("id=%d inserted=%v state=%s", c.ID, c.Inserted, c.State())
	}
	if _, ok := c.Payload.(models.Basic); !ok {
		t.Errorf("payload = %T", c.Payload)
	}
	if c.Tags == nil {
		t.Error("tags should be empty, not nil")
	}
}

func TestBuild_ReversedSwapsFields(t *testing.T) {
	c := buildOne(t, DefaultSettings(), "Q ::: A", NoteContext{})
	if c.Model != models.ModelReversed {
		t.Errorf("model = %q", c.Model)
	}
	if field(t, c, models.FieldFront) != "A" || field(t, c, models.FieldBack) != "Q" {
		t.Errorf("fields = %v", c.Fields)
	}
	if p := c.Payload.(models.Basic); !p.Reversed || p.Question != "Q" {
		t.Errorf("payload = %+v", p)
	}
}

func TestBuild_Cloze(t *testing.T) {
	c := buildOne(t, DefaultSettings(), "The {sun} is hot #card", NoteContext{})
	if c.Model != models.ModelCloze {
		t.Errorf("model = %q", c.Model)
	}
	if got := field(t, c, models.FieldText); got != "The {{c1::sun}} is hot" {
		t.Errorf("text = %q", got)
	}
	if got := field(t, c, models.FieldExtra); got != "" {
		t.Errorf("extra = %q", got)
	}
	if !reflect.DeepEqual(c.Fields.Names(), []string{models.FieldText, models.FieldExtra}) {
		t.Errorf("field order = %v", c.Fields.Names())
	}
}

func TestBuild_Spaced(t *testing.T) {
	c := buildOne(t, DefaultSettings(), "Recall the loop #card/spaced", NoteContext{})
	if c.Model != models.ModelSpaced || field(t, c, models.FieldPrompt) != "Recall the loop" {
		t.Errorf("model=%q fields=%v", c.Model, c.Fields)
	}
}

func TestBuild_SourceField(t *testing.T) {
	s := DefaultSettings()
	s.SourceSupport = true
	s.VaultName = "My Vault"
	c := buildOne(t, s, "Q :: A", NoteContext{Path: "notes/q.md"})
	if c.Model != models.ModelBasic+models.SourceSuffix {
		t.Errorf("model = %q", c.Model)
	}
	want := `<a href="obsidian://open?vault=My%20Vault&file=notes%2Fq.md">q</a>`
	if got := field(t, c, models.FieldSource); got != want {
		t.Errorf("source = %q, want %q", got, want)
	}
}

func TestBuild_Backlink(t *testing.T) {
	s := DefaultSettings()
	s.BacklinkSupport = true
	c := buildOne(t, s, "\nQ :: A", NoteContext{Path: "q.md"})
	if got := field(t, c, models.FieldBack); got != `A<br><a href="obsidian://open?file=q.md">q.md:2</a>` {
		t.Errorf("back = %q", got)
	}
}

func TestBuild_CodeVariant(t *testing.T) {
	text := "What does `x = 1` do? #card\nAssigns"

	c := buildOne(t, DefaultSettings(), text, NoteContext{})
	if c.Model != models.ModelBasic+models.CodeSuffix {
		t.Errorf("model = %q", c.Model)
	}
	if got := field(t, c, models.FieldFront); got != "What does `x = 1` do?" {
		t.Errorf("front = %q", got)
	}

	s := DefaultSettings()
	s.CodeHighlightSupport = true
	c = buildOne(t, s, text, NoteContext{})
	if got := field(t, c, models.FieldFront); got != "What does <code>x = 1</code> do?" {
		t.Errorf("highlighted front = %q", got)
	}
}

func TestBuild_FencedCode(t *testing.T) {
	s := DefaultSettings()
	s.CodeHighlightSupport = true
	c := buildOne(t, s, "Print it #card\n```go\nfmt.Println(\"<hi>\")\n```", NoteContext{})
	want := "<pre><code class=\"language-go\">fmt.Println(&#34;&lt;hi&gt;&#34;)</code></pre>"
	if got := field(t, c, models.FieldBack); got != want {
		t.Errorf("back = %q, want %q", got, want)
	}
}

func TestBuild_EscapesAndMath(t *testing.T) {
	c := buildOne(t, DefaultSettings(), "a_b (c) :: $x^2$ and [y]", NoteContext{})
	if got := field(t, c, models.FieldFront); got != `a\_b \(c\)` {
		t.Errorf("front = %q", got)
	}
	if got := field(t, c, models.FieldBack); got != `\(x^2\) and \[y\]` {
		t.Errorf("back = %q", got)
	}
}

func TestBuild_Media(t *testing.T) {
	text := "Which shape? ![[img/circle.png|100]] :: a circle ![[ding.mp3]]"
	c := buildOne(t, DefaultSettings(), text, NoteContext{Path: "n.md"})
	if len(c.Media) != 2 {
		t.Fatalf("media = %+v", c.Media)
	}
	img := MediaName("img/circle.png")
	if c.Media[0].Name != img || c.Media[0].Link != "img/circle.png" || c.Media[0].NotePath != "n.md" {
		t.Errorf("image media = %+v", c.Media[0])
	}
	if got := field(t, c, models.FieldFront); got != `Which shape? <img src="`+img+`" width="100">` {
		t.Errorf("front = %q", got)
	}
	if got := field(t, c, models.FieldBack); got != "a circle [sound:"+MediaName("ding.mp3")+"]" {
		t.Errorf("back = %q", got)
	}
}

func TestBuild_WikilinkDisplay(t *testing.T) {
	c := buildOne(t, DefaultSettings(), "See [[Target|the alias]] :: [[Other]]", NoteContext{})
	if got := field(t, c, models.FieldFront); got != "See the alias" {
		t.Errorf("front = %q", got)
	}
	if got := field(t, c, models.FieldBack); got != "Other" {
		t.Errorf("back = %q", got)
	}
}

func TestBuild_TagsAndDeck(t *testing.T) {
	s := DefaultSettings()
	s.DefaultAnkiTag = "obsidian"
	note := NoteContext{Deck: "Lang::Go", Tags: []string{"go", "alpha"}}
	c := buildOne(t, s, "Q :: A #alpha #deep/beta", note)
	if c.Deck != "Lang::Go" {
		t.Errorf("deck = %q", c.Deck)
	}
	want := []string{"alpha", "deep/beta", "go", "obsidian"}
	if !reflect.DeepEqual(c.Tags, want) {
		t.Errorf("tags = %v, want %v", c.Tags, want)
	}
	rec := c.Record(false)
	if rec.Tags[1] != "deep::beta" {
		t.Errorf("record tags = %v", rec.Tags)
	}
}

func TestBuild_ContextBreadcrumb(t *testing.T) {
	s := DefaultSettings()
	s.ContextAwareMode = true
	c := buildOne(t, s, "# A\n## B\nQ :: Ans", NoteContext{})
	if got := field(t, c, models.FieldFront); got != "A > B > Q" {
		t.Errorf("front = %q", got)
	}

	c = buildOne(t, s, "# A\nQ ::: Ans", NoteContext{})
	if got := field(t, c, models.FieldFront); got != "A > Ans" {
		t.Errorf("reversed front = %q", got)
	}
	if got := field(t, c, models.FieldBack); got != "Q" {
		t.Errorf("reversed back = %q", got)
	}
}

func TestBuild_ExistingID(t *testing.T) {
	c := buildOne(t, DefaultSettings(), "Q :: A\n<!-- ankiID: 99 -->", NoteContext{})
	if c.ID != 99 || !c.Inserted || c.State() != models.StateBound {
		t.Errorf("id=%d inserted=%v state=%s", c.ID, c.Inserted, c.State())
	}
}

func TestMediaName_Stable(t *testing.T) {
	a := MediaName("img/Circle.PNG")
	if a != MediaName("img/Circle.PNG") {
		t.Error("media name is not stable")
	}
	if !strings.HasPrefix(a, "Circle-") || !strings.HasSuffix(a, ".png") {
		t.Errorf("media name = %q", a)
	}
	if len(a) != len("Circle-")+8+len(".png") {
		t.Errorf("media name = %q", a)
	}
	if a == MediaName("other/Circle.PNG") {
		t.Error("different links share a name")
	}
}

func TestEscapeMarkdown(t *testing.T) {
	tests := []struct{ in, want string }{
		{"a_b (c)", `a\_b \(c\)`},
		{`\frac{1}{2}`, `\frac{1}{2}`},
		{`\frac{a}{b} < c`, `\frac{a}{b} &lt; c`},
		{"#tag stays", "#tag stays"},
		{"<b>", "&lt;b&gt;"},
	}
	for _, tt := range tests {
		if got := EscapeMarkdown(tt.in); got != tt.want {
			t.Errorf("EscapeMarkdown(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
