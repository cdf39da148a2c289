package models

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// UnboundID is the id of a card the remote store has not assigned yet.
const UnboundID int64 = -1

// Base note model names and the suffixes appended for the source and
// code-highlight variants.
const (
	ModelBasic    = "Obsidian-basic"
	ModelReversed = "Obsidian-basic-reversed"
	ModelCloze    = "Obsidian-cloze"
	ModelSpaced   = "Obsidian-spaced"

	SourceSuffix = "-source"
	CodeSuffix   = "-code"
)

// Field names used by the note models.
const (
	FieldFront  = "Front"
	FieldBack   = "Back"
	FieldText   = "Text"
	FieldExtra  = "Extra"
	FieldPrompt = "Prompt"
	FieldSource = "Source"
)

// Style is the card style a candidate was recognised as.
type Style int

const (
	StyleBasic Style = iota
	StyleReversed
	StyleCloze
	StyleSpaced
)

func (s Style) String() string {
	switch s {
	case StyleBasic:
		return "basic"
	case StyleReversed:
		return "reversed"
	case StyleCloze:
		return "cloze"
	case StyleSpaced:
		return "spaced"
	}
	return fmt.Sprintf("style(%d)", int(s))
}

// MarshalText encodes the style by name.
func (s Style) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// BaseModel returns the note model name a style maps to before suffixes.
func (s Style) BaseModel() string {
	switch s {
	case StyleReversed:
		return ModelReversed
	case StyleCloze:
		return ModelCloze
	case StyleSpaced:
		return ModelSpaced
	}
	return ModelBasic
}

// ModelName derives the full model name from a style and the two variant flags.
func ModelName(s Style, source, code bool) string {
	name := s.BaseModel()
	if source {
		name += SourceSuffix
	}
	if code {
		name += CodeSuffix
	}
	return name
}

// StyleFromModel recovers the style from a model name, suffixes included.
func StyleFromModel(model string) Style {
	base := strings.TrimSuffix(strings.TrimSuffix(model, CodeSuffix), SourceSuffix)
	switch base {
	case ModelReversed:
		return StyleReversed
	case ModelCloze:
		return StyleCloze
	case ModelSpaced:
		return StyleSpaced
	}
	return StyleBasic
}

// State is the lifecycle position of a card within one scan.
type State int

const (
	StateUnbound State = iota
	StateBound
	StateStale
)

func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateBound:
		return "bound"
	case StateStale:
		return "stale"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Payload carries the style-specific part of a card. The set of
// implementations is closed: Basic, Cloze and Spaced.
type Payload interface {
	style() Style
}

// Basic is the payload of basic and reversed cards.
type Basic struct {
	Question string
	Answer   string
	Reversed bool
}

func (b Basic) style() Style {
	if b.Reversed {
		return StyleReversed
	}
	return StyleBasic
}

// ClozeDeletion is one numbered cloze group.
type ClozeDeletion struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// Cloze is the payload of cloze cards. Deletions are ordered by number.
type Cloze struct {
	Deletions []ClozeDeletion
}

func (Cloze) style() Style { return StyleCloze }

// Spaced is the payload of spaced-repetition prompt cards.
type Spaced struct {
	Prompt string
}

func (Spaced) style() Style { return StyleSpaced }

// Media is one image or audio file referenced by a card. Data stays nil
// until a file reader resolves Link.
type Media struct {
	Name     string `json:"name"`
	Link     string `json:"link"`
	NotePath string `json:"note_path,omitempty"`
	Data     []byte `json:"-"`
}

// Card is a flashcard extracted from a note.
type Card struct {
	ID            int64    `json:"id"`
	Deck          string   `json:"deck"`
	Model         string   `json:"model"`
	Fields        Fields   `json:"fields"`
	Tags          []string `json:"tags"`
	Media         []Media  `json:"media,omitempty"`
	Inserted      bool     `json:"inserted"`
	InitialOffset int      `json:"initial_offset"`
	EndOffset     int      `json:"end_offset"`
	Original      string   `json:"original"`
	Payload       Payload  `json:"-"`

	stale bool
}

// Style reports the card style from its payload, falling back to the model
// name for cards rebuilt from storage.
func (c *Card) Style() Style {
	if c.Payload != nil {
		return c.Payload.style()
	}
	return StyleFromModel(c.Model)
}

// State reports where the card is in its lifecycle.
func (c *Card) State() State {
	switch {
	case c.stale:
		return StateStale
	case c.ID == UnboundID:
		return StateUnbound
	}
	return StateBound
}

// Bind records the id the remote store assigned.
func (c *Card) Bind(id int64) {
	c.ID = id
}

// MarkStale flags the card offsets as no longer matching the note text.
func (c *Card) MarkStale() {
	c.stale = true
}

// PrimaryField returns the field that identifies the card for its model:
// Front, Text or Prompt.
func (c *Card) PrimaryField() string {
	for _, name := range []string{FieldFront, FieldText, FieldPrompt} {
		if v, ok := c.Fields.Get(name); ok {
			return v
		}
	}
	return ""
}

// MediaNames returns the generated filenames of the card media.
func (c *Card) MediaNames() []string {
	out := make([]string, len(c.Media))
	for i, m := range c.Media {
		out[i] = m.Name
	}
	return out
}

// IDMarker renders the identity marker written after the card text.
func (c *Card) IDMarker() string {
	return FormatIDMarker(c.ID)
}

// FormatIDMarker renders the identity marker for id.
func FormatIDMarker(id int64) string {
	return fmt.Sprintf("<!-- ankiID: %d -->", id)
}

// MarshalJSON adds the derived style and state to the encoded card.
func (c *Card) MarshalJSON() ([]byte, error) {
	type alias Card
	return json.Marshal(struct {
		*alias
		Style Style `json:"style"`
		State State `json:"state"`
	}{(*alias)(c), c.Style(), c.State()})
}

func (c *Card) String() string {
	return fmt.Sprintf("%s: %s", c.Style(), c.PrimaryField())
}

// NoteRecord is the card as the remote store receives it.
type NoteRecord struct {
	ID        int64    `json:"id,omitempty"`
	DeckName  string   `json:"deckName"`
	ModelName string   `json:"modelName"`
	Fields    Fields   `json:"fields"`
	Tags      []string `json:"tags"`
}

// Record builds the store record. Tag hierarchies are rewritten from "/"
// to the store's "::" delimiter. The id is only set when update is true.
func (c *Card) Record(update bool) NoteRecord {
	tags := make([]string, len(c.Tags))
	for i, t := range c.Tags {
		tags[i] = strings.ReplaceAll(t, "/", "::")
	}
	r := NoteRecord{
		DeckName:  c.Deck,
		ModelName: c.Model,
		Fields:    c.Fields,
		Tags:      tags,
	}
	if update {
		r.ID = c.ID
	}
	return r
}

// MediaRecord is one media upload for the remote store.
type MediaRecord struct {
	Filename string `json:"filename"`
	Data     string `json:"data"`
}

// MediaRecords returns base64 records for every resolved media payload.
func (c *Card) MediaRecords() []MediaRecord {
	out := make([]MediaRecord, 0, len(c.Media))
	for _, m := range c.Media {
		if m.Data == nil {
			continue
		}
		out = append(out, MediaRecord{
			Filename: m.Name,
			Data:     base64.StdEncoding.EncodeToString(m.Data),
		})
	}
	return out
}

// SameCard reports whether a and b are the same logical card across scans.
// Bound cards match by id. When either side is unbound, deck, model and
// primary field content must match.
func SameCard(a, b *Card) bool {
	if a.ID != UnboundID && b.ID != UnboundID {
		return a.ID == b.ID
	}
	return SameContent(a, b)
}

// SameContent compares the identifying content of two cards, ignoring ids.
func SameContent(a, b *Card) bool {
	return a.Deck == b.Deck && a.Model == b.Model && a.PrimaryField() == b.PrimaryField()
}

// Equal reports whether two cards carry the same content. Tag and media
// order do not matter.
func Equal(a, b *Card) bool {
	return a.Deck == b.Deck &&
		a.Model == b.Model &&
		equalFields(a.Fields, b.Fields) &&
		EqualUnordered(a.Tags, b.Tags) &&
		EqualUnordered(a.MediaNames(), b.MediaNames())
}

// EqualUnordered compares two string slices as multisets. The inputs are
// not reordered.
func EqualUnordered(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}
