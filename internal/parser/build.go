package parser

import (
	"fmt"
	"html"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/cardsync/internal/models"
)

// NoteContext is what the builder needs to know about the note a candidate
// came from.
type NoteContext struct {
	Path string
	Deck string
	Tags []string
}

// Builder turns candidates into typed cards. It is immutable and safe for
// concurrent use.
type Builder struct {
	reg      *Registry
	settings Settings
}

// NewBuilder returns a builder using the registry's settings.
func NewBuilder(reg *Registry) *Builder {
	return &Builder{reg: reg, settings: reg.Settings()}
}

// BuildAll builds every candidate, keeping order.
func (b *Builder) BuildAll(cands []Candidate, note NoteContext) []*models.Card {
	out := make([]*models.Card, 0, len(cands))
	for _, c := range cands {
		out = append(out, b.Build(c, note))
	}
	return out
}

// Build renders the fields of c and derives its model, tags and media.
func (b *Builder) Build(c Candidate, note NoteContext) *models.Card {
	r := renderer{b: b, notePath: note.Path}

	breadcrumb := ""
	if b.settings.ContextAwareMode && len(c.HeadingPath) > 0 {
		titles := make([]string, len(c.HeadingPath))
		for i, h := range c.HeadingPath {
			titles[i] = r.render(h)
		}
		breadcrumb = strings.Join(titles, b.settings.ContextSeparator)
	}
	backlink := b.backlink(note.Path, c.Line)

	var fields models.Fields
	var payload models.Payload
	switch c.Style {
	case models.StyleCloze:
		text := r.render(c.Text)
		if breadcrumb != "" {
			text = breadcrumb + "<br>" + text
		}
		fields = models.Fields{
			{Name: models.FieldText, Value: text},
			{Name: models.FieldExtra, Value: backlink},
		}
		payload = models.Cloze{Deletions: c.Deletions}
	case models.StyleSpaced:
		prompt := r.render(c.Prompt)
		if breadcrumb != "" {
			prompt = breadcrumb + b.settings.ContextSeparator + prompt
		}
		fields = models.Fields{{Name: models.FieldPrompt, Value: prompt + backlink}}
		payload = models.Spaced{Prompt: c.Prompt}
	default:
		front, back := r.render(c.Question), r.render(c.Answer)
		reversed := c.Style == models.StyleReversed
		if reversed {
			front, back = back, front
		}
		// The heading path goes on the shown side.
		if breadcrumb != "" {
			front = breadcrumb + b.settings.ContextSeparator + front
		}
		fields = models.Fields{
			{Name: models.FieldFront, Value: front},
			{Name: models.FieldBack, Value: back + backlink},
		}
		payload = models.Basic{Question: c.Question, Answer: c.Answer, Reversed: reversed}
	}

	if b.settings.SourceSupport {
		fields = fields.Set(models.FieldSource, b.sourceLink(note.Path))
	}

	deck := note.Deck
	if deck == "" {
		deck = b.settings.Deck
	}
	var defaults []string
	if b.settings.DefaultAnkiTag != "" {
		defaults = []string{b.settings.DefaultAnkiTag}
	}

	return &models.Card{
		ID:            c.ExistingID,
		Deck:          deck,
		Model:         models.ModelName(c.Style, b.settings.SourceSupport, r.code),
		Fields:        fields,
		Tags:          mergeTags(c.Tags, note.Tags, defaults),
		Media:         r.media,
		Inserted:      c.ExistingID != models.UnboundID,
		InitialOffset: c.Start,
		EndOffset:     c.End,
		Original:      c.Raw,
		Payload:       payload,
	}
}

// NoteURI returns the obsidian:// link that opens notePath in the vault.
func (b *Builder) NoteURI(notePath string) string {
	q := "file=" + url.PathEscape(notePath)
	if b.settings.VaultName != "" {
		q = "vault=" + url.PathEscape(b.settings.VaultName) + "&" + q
	}
	return "obsidian://open?" + q
}

func (b *Builder) sourceLink(notePath string) string {
	name := strings.TrimSuffix(path.Base(notePath), path.Ext(notePath))
	return fmt.Sprintf(`<a href="%s">%s</a>`, b.NoteURI(notePath), html.EscapeString(name))
}

func (b *Builder) backlink(notePath string, line int) string {
	if !b.settings.BacklinkSupport || notePath == "" {
		return ""
	}
	return fmt.Sprintf(`<br><a href="%s">%s:%d</a>`, b.NoteURI(notePath), html.EscapeString(notePath), line)
}

// renderer accumulates media and the code flag while fields of one card
// are rendered.
type renderer struct {
	b        *Builder
	notePath string
	media    []models.Media
	code     bool
}

func (r *renderer) render(s string) string {
	if s == "" {
		return ""
	}
	loc := r.b.reg.Locate(s)
	if len(loc.Code) > 0 {
		r.code = true
	}

	escape := markdownEscaper.Replace
	if LooksLikeLaTeX(s) {
		escape = angleEscaper.Replace
	}

	embeds := make(map[int]Embed, len(loc.Images)+len(loc.Audio))
	for _, e := range loc.Images {
		embeds[e.Start] = e
	}
	for _, e := range loc.Audio {
		embeds[e.Start] = e
	}

	var sb strings.Builder
	pos := 0
	for _, sp := range loc.spans() {
		sb.WriteString(escape(s[pos:sp.Start]))
		switch sp.Kind {
		case SpanCodeFence, SpanCodeInline:
			sb.WriteString(r.b.renderCode(sp))
		case SpanCodeHTML:
			sb.WriteString(sp.Raw)
		case SpanMathBlock:
			sb.WriteString(`\[` + sp.Body + `\]`)
		case SpanMathInline:
			sb.WriteString(`\(` + sp.Body + `\)`)
		case SpanImage:
			sb.WriteString(r.image(embeds[sp.Start]))
		case SpanAudio:
			sb.WriteString("[sound:" + r.addMedia(embeds[sp.Start].Filename) + "]")
		case SpanEmbed, SpanWikilink:
			sb.WriteString(escape(sp.Body))
		}
		pos = sp.End
	}
	sb.WriteString(escape(s[pos:]))
	return sb.String()
}

func (r *renderer) image(e Embed) string {
	src := e.Filename
	if !strings.Contains(src, "://") {
		src = r.addMedia(e.Filename)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, `<img src="%s"`, html.EscapeString(src))
	if e.Width > 0 {
		fmt.Fprintf(&sb, ` width="%d"`, e.Width)
	}
	if e.Height > 0 {
		fmt.Fprintf(&sb, ` height="%d"`, e.Height)
	}
	sb.WriteString(">")
	return sb.String()
}

func (r *renderer) addMedia(link string) string {
	name := MediaName(link)
	for _, m := range r.media {
		if m.Name == name {
			return name
		}
	}
	r.media = append(r.media, models.Media{Name: name, Link: link, NotePath: r.notePath})
	return name
}

func (b *Builder) renderCode(sp Span) string {
	if !b.settings.CodeHighlightSupport {
		return sp.Raw
	}
	if sp.Kind == SpanCodeInline {
		return "<code>" + html.EscapeString(sp.Body) + "</code>"
	}
	lang, body := sp.Lang, sp.Body
	if body == "" && !strings.Contains(strings.TrimSuffix(sp.Raw, "\n"), "\n") {
		// ```x``` on one line: the capture meant for the language is the code.
		lang, body = "", lang
	}
	open := "<pre><code>"
	if lang != "" {
		open = fmt.Sprintf(`<pre><code class="language-%s">`, html.EscapeString(lang))
	}
	out := open + html.EscapeString(strings.TrimSuffix(body, "\n")) + "</code></pre>"
	if strings.HasSuffix(sp.Raw, "\n") {
		out += "\n"
	}
	return out
}

// mediaNamespace seeds the name-based UUIDs of staged media files.
var mediaNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("cardsync:media"))

// MediaName returns the filename a linked media file is stored under
// remotely. It depends only on the link, so rescans produce the same name.
func MediaName(link string) string {
	clean := path.Clean(strings.ReplaceAll(strings.TrimSpace(link), `\`, "/"))
	ext := path.Ext(clean)
	base := strings.TrimSuffix(path.Base(clean), ext)
	id := uuid.NewSHA1(mediaNamespace, []byte(clean))
	return fmt.Sprintf("%s-%s%s", base, id.String()[:8], strings.ToLower(ext))
}
