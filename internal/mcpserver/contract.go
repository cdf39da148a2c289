package mcpserver

const fence = "```"

// CardSyntax describes the Markdown patterns recognized as flashcards with
// the default settings, for LLM consumers writing or editing notes.
const CardSyntax = `# cardsync Card Syntax

Cards live inside ordinary Markdown notes. A note is scanned top to bottom and
each card pattern below is recognized; text inside code blocks, inline code and
math is never treated as a card.

## Inline cards

` + fence + `markdown
Capital of France :: Paris
2 + 2 ::: 4
` + fence + `

- ` + "`::`" + ` makes a basic card (question on the front).
- ` + "`:::`" + ` makes a reversed card (the answer is asked).

## Tagged cards

` + fence + `markdown
## What does ATP stand for? #card
Adenosine triphosphate.
It stores energy for the cell.

Which way round? #card-reverse
Both ways.
` + fence + `

The question line ends with ` + "`#card`" + ` (or ` + "`#card-reverse`" + `); the answer is
every following line up to the next blank line. Callouts (` + "`> [!note]`" + `) work
the same with the ` + "`> `" + ` prefix stripped.

## Cloze cards

` + fence + `markdown
The {mitochondria} is the powerhouse of the {2:cell}.
Light travels at ==300 000 km/s==.
` + fence + `

- ` + "`{text}`" + ` and ` + "`==text==`" + ` hide text; numbering is automatic.
- ` + "`{N:text}`" + ` pins the deletion to group N (0-99).

## Spaced repetition prompts

` + fence + `markdown
Recall the three laws of motion. #card-spaced
` + fence + `

## Decks and tags

- Frontmatter ` + "`cards-deck: Biology::Cells`" + ` selects the deck; otherwise the
  configured default (or the folder path, when folder decks are enabled).
- Frontmatter ` + "`tags`" + ` and trailing ` + "`#tags`" + ` on a card line are sent with the card.

## Identity markers

After a sync every card is followed by a line such as:

` + fence + `markdown
<!-- ankiID: 1700000000000 -->
` + fence + `

Keep the marker directly below its card. Deleting a card together with its
marker deletes it remotely; a marker left alone after a blank line is removed
along with its remote card.

## Media

` + "`![[diagram.png]]`" + `, ` + "`![alt](img/diagram.png)`" + ` and ` + "`![[clip.mp3]]`" + ` are uploaded
with the card.
`
