// Package query compiles search input into the engine's Lucene query-string
// grammar.
package query

import "strings"

// reservedEscaper prefixes every Lucene metacharacter with a backslash.
// Single & and | are not operators and are left alone.
var reservedEscaper = strings.NewReplacer(
	`\`, `\\`,
	`&&`, `\&&`,
	`||`, `\||`,
	`+`, `\+`,
	`-`, `\-`,
	`!`, `\!`,
	`(`, `\(`,
	`)`, `\)`,
	`{`, `\{`,
	`}`, `\}`,
	`[`, `\[`,
	`]`, `\]`,
	`^`, `\^`,
	`"`, `\"`,
	`~`, `\~`,
	`*`, `\*`,
	`?`, `\?`,
	`:`, `\:`,
)

var phraseEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
)

// Escape escapes the reserved characters of the query grammar in token.
func Escape(token string) string {
	return reservedEscaper.Replace(token)
}

// EscapePhrase escapes the characters that are special inside a quoted
// phrase.
func EscapePhrase(value string) string {
	return phraseEscaper.Replace(value)
}

// Phrase quotes value as an exact phrase.
func Phrase(value string) string {
	return `"` + EscapePhrase(value) + `"`
}

// PrepareQueryText prepares free text for matching. Multi-word text becomes
// a parenthesized group of escaped words, empty words are dropped; a single
// word is escaped as-is.
func PrepareQueryText(text string) string {
	words := strings.Split(text, " ")
	if len(words) == 1 {
		return Escape(text)
	}
	kept := make([]string, 0, len(words))
	for _, w := range words {
		if w == "" {
			continue
		}
		kept = append(kept, Escape(w))
	}
	return "(" + strings.Join(kept, " ") + ")"
}

// PrepareFilterQueryText prepares a filter value. Multi-word values must
// match as an exact phrase; a single word is escaped as-is.
func PrepareFilterQueryText(text string) string {
	if strings.Contains(text, " ") {
		return Phrase(text)
	}
	return Escape(text)
}
