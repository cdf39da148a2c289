package parser

import "strings"

var (
	markdownEscaper = strings.NewReplacer(
		`\`, `\\`,
		`(`, `\(`,
		`)`, `\)`,
		`[`, `\[`,
		`]`, `\]`,
		`<`, "&lt;",
		`>`, "&gt;",
		`_`, `\_`,
	)
	angleEscaper = strings.NewReplacer(`<`, "&lt;", `>`, "&gt;")
)

// EscapeMarkdown escapes backslashes, parentheses, square brackets,
// underscores and angle brackets. '#' is left alone. Text that looks like
// LaTeX only gets its angle brackets escaped.
func EscapeMarkdown(s string) string {
	if LooksLikeLaTeX(s) {
		return angleEscaper.Replace(s)
	}
	return markdownEscaper.Replace(s)
}

// LooksLikeLaTeX is a heuristic, not a parser: a backslash together with
// one of \frac, \times or \begin.
func LooksLikeLaTeX(s string) bool {
	if !strings.Contains(s, `\`) {
		return false
	}
	return strings.Contains(s, `\frac`) || strings.Contains(s, `\times`) || strings.Contains(s, `\begin`)
}
