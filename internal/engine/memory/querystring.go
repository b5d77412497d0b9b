package memory

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// matcher reports whether a document satisfies a parsed clause.
type matcher func(doc map[string]any) bool

func matchAll(map[string]any) bool { return true }

type tokenKind int

const (
	tokTerm tokenKind = iota
	tokPhrase
	tokRange
	tokGroup // field-qualified "(": field:( ... )
	tokLParen
	tokRParen
	tokAnd
	tokOr
)

type token struct {
	kind  tokenKind
	field string
	text  string
	from  string
	to    string
}

var errUnbalanced = errors.New("unbalanced query")

// parseQuery compiles the query-string subset the compiler emits: terms,
// field:term, field:"phrase", field:[from TO to], parenthesized groups and
// AND/OR. Juxtaposed clauses are OR-ed.
func parseQuery(q string) (matcher, error) {
	if strings.TrimSpace(q) == "" {
		return matchAll, nil
	}
	toks, err := tokenize(q)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	m, err := p.parseOr("")
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.toks) {
		return nil, fmt.Errorf("parse query: unexpected token at %d: %w", p.pos, errUnbalanced)
	}
	return m, nil
}

func tokenize(q string) ([]token, error) {
	rs := []rune(q)
	var toks []token
	i := 0
	for i < len(rs) {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			toks = append(toks, token{kind: tokLParen})
			i++
		case r == ')':
			toks = append(toks, token{kind: tokRParen})
			i++
		case r == '"':
			text, next, err := readPhrase(rs, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokPhrase, text: text})
			i = next
		default:
			tok, next, err := readWord(rs, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, tok)
			i = next
		}
	}
	return toks, nil
}

// readPhrase reads a quoted phrase starting at the opening quote.
func readPhrase(rs []rune, start int) (string, int, error) {
	var b strings.Builder
	for i := start + 1; i < len(rs); i++ {
		switch rs[i] {
		case '\\':
			if i+1 < len(rs) {
				i++
				b.WriteRune(rs[i])
			}
		case '"':
			return b.String(), i + 1, nil
		default:
			b.WriteRune(rs[i])
		}
	}
	return "", 0, fmt.Errorf("unterminated phrase: %w", errUnbalanced)
}

func readWord(rs []rune, start int) (token, int, error) {
	var b strings.Builder
	i := start
	for i < len(rs) {
		r := rs[i]
		if r == '\\' {
			if i+1 < len(rs) {
				b.WriteRune(rs[i+1])
			}
			i += 2
			continue
		}
		if unicode.IsSpace(r) || r == '(' || r == ')' {
			break
		}
		if r == ':' {
			field := b.String()
			i++
			if i >= len(rs) {
				return token{}, 0, fmt.Errorf("missing value for %q", field)
			}
			switch rs[i] {
			case '(':
				return token{kind: tokGroup, field: field}, i + 1, nil
			case '"':
				text, next, err := readPhrase(rs, i)
				if err != nil {
					return token{}, 0, err
				}
				return token{kind: tokPhrase, field: field, text: text}, next, nil
			case '[':
				return readRange(rs, i, field)
			}
			tok, next, err := readWord(rs, i)
			if err != nil {
				return token{}, 0, err
			}
			tok.field = field
			return tok, next, nil
		}
		b.WriteRune(r)
		i++
	}
	word := b.String()
	switch word {
	case "AND":
		return token{kind: tokAnd}, i, nil
	case "OR":
		return token{kind: tokOr}, i, nil
	}
	return token{kind: tokTerm, text: word}, i, nil
}

// readRange reads "[from TO to]" starting at the opening bracket.
func readRange(rs []rune, start int, field string) (token, int, error) {
	var b strings.Builder
	for i := start + 1; i < len(rs); i++ {
		switch rs[i] {
		case '\\':
			if i+1 < len(rs) {
				i++
				b.WriteRune(rs[i])
			}
		case ']':
			from, to, ok := strings.Cut(b.String(), "TO")
			if !ok {
				return token{}, 0, fmt.Errorf("range on %q lacks TO", field)
			}
			return token{
				kind:  tokRange,
				field: field,
				from:  strings.TrimSpace(from),
				to:    strings.TrimSpace(to),
			}, i + 1, nil
		default:
			b.WriteRune(rs[i])
		}
	}
	return token{}, 0, fmt.Errorf("unterminated range on %q: %w", field, errUnbalanced)
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	return p.toks[p.pos], true
}

func (p *parser) parseOr(field string) (matcher, error) {
	first, err := p.parseAnd(field)
	if err != nil {
		return nil, err
	}
	alts := []matcher{first}
	for {
		tok, ok := p.peek()
		if !ok || tok.kind == tokRParen {
			break
		}
		if tok.kind == tokOr {
			p.pos++
		}
		next, err := p.parseAnd(field)
		if err != nil {
			return nil, err
		}
		alts = append(alts, next)
	}
	if len(alts) == 1 {
		return first, nil
	}
	return func(doc map[string]any) bool {
		for _, m := range alts {
			if m(doc) {
				return true
			}
		}
		return false
	}, nil
}

func (p *parser) parseAnd(field string) (matcher, error) {
	first, err := p.parsePrimary(field)
	if err != nil {
		return nil, err
	}
	all := []matcher{first}
	for {
		tok, ok := p.peek()
		if !ok || tok.kind != tokAnd {
			break
		}
		p.pos++
		next, err := p.parsePrimary(field)
		if err != nil {
			return nil, err
		}
		all = append(all, next)
	}
	if len(all) == 1 {
		return first, nil
	}
	return func(doc map[string]any) bool {
		for _, m := range all {
			if !m(doc) {
				return false
			}
		}
		return true
	}, nil
}

func (p *parser) parsePrimary(field string) (matcher, error) {
	tok, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("unexpected end of query: %w", errUnbalanced)
	}
	p.pos++
	switch tok.kind {
	case tokLParen, tokGroup:
		if tok.kind == tokGroup {
			field = tok.field
		}
		m, err := p.parseOr(field)
		if err != nil {
			return nil, err
		}
		closing, ok := p.peek()
		if !ok || closing.kind != tokRParen {
			return nil, fmt.Errorf("missing closing parenthesis: %w", errUnbalanced)
		}
		p.pos++
		return m, nil
	case tokTerm:
		return termMatcher(fieldOr(tok.field, field), tok.text), nil
	case tokPhrase:
		return phraseMatcher(fieldOr(tok.field, field), tok.text), nil
	case tokRange:
		return rangeMatcher(tok.field, tok.from, tok.to), nil
	default:
		return nil, fmt.Errorf("unexpected operator at %d", p.pos-1)
	}
}

func fieldOr(field, fallback string) string {
	if field != "" {
		return field
	}
	return fallback
}

// values returns the textual values of field, or of every field when field
// is empty.
func values(doc map[string]any, field string) []string {
	if field != "" {
		v, ok := doc[field]
		if !ok {
			return nil
		}
		return stringify(v)
	}
	var out []string
	for _, v := range doc {
		out = append(out, stringify(v)...)
	}
	return out
}

func stringify(v any) []string {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return []string{x}
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			out = append(out, stringify(item)...)
		}
		return out
	case float64:
		return []string{strconv.FormatFloat(x, 'f', -1, 64)}
	case bool:
		if x {
			return []string{"1"}
		}
		return []string{"0"}
	default:
		return []string{fmt.Sprint(x)}
	}
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.'
	})
}

func termMatcher(field, term string) matcher {
	if term == "*" {
		if field == "" {
			return matchAll
		}
		return func(doc map[string]any) bool {
			return len(values(doc, field)) > 0
		}
	}
	want := strings.ToLower(term)
	return func(doc map[string]any) bool {
		for _, v := range values(doc, field) {
			if strings.ToLower(v) == want {
				return true
			}
			for _, w := range words(v) {
				if w == want {
					return true
				}
			}
		}
		return false
	}
}

func phraseMatcher(field, phrase string) matcher {
	want := strings.ToLower(phrase)
	return func(doc map[string]any) bool {
		for _, v := range values(doc, field) {
			if strings.Contains(strings.ToLower(v), want) {
				return true
			}
		}
		return false
	}
}

func openBound(b string) bool {
	return b == "" || b == "*"
}

// rangeMatcher matches inclusive bounds, numerically when both sides parse.
func rangeMatcher(field, from, to string) matcher {
	return func(doc map[string]any) bool {
		for _, v := range values(doc, field) {
			if (openBound(from) || compare(v, from) >= 0) && (openBound(to) || compare(v, to) <= 0) {
				return true
			}
		}
		return false
	}
}

func compare(a, b string) int {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a, b)
}
