package fim

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// Extractor pulls the completion text out of a raw response body.
// ok is false when the body holds no completion.
type Extractor interface {
	Extract(body string) (text string, ok bool)
}

// FieldPattern finds the first `"<field>": "<value>"` pair anywhere in the
// body without requiring the body to be well-formed JSON. The value may
// span lines and contain escaped quotes.
type FieldPattern struct {
	re *regexp.Regexp
}

// NewFieldPattern returns a FieldPattern for the given field name.
func NewFieldPattern(field string) *FieldPattern {
	return &FieldPattern{
		re: regexp.MustCompile(`(?s)"` + regexp.QuoteMeta(field) + `"\s*:\s*"((?:[^"\\]|\\.)*)"`),
	}
}

// Extract implements Extractor.
func (p *FieldPattern) Extract(body string) (string, bool) {
	m := p.re.FindStringSubmatch(body)
	if m == nil {
		return "", false
	}
	return Unescape(m[1]), true
}

// Parser turns a response body into completion text using the first
// extractor that matches.
type Parser struct {
	extractors []Extractor
}

// NewParser creates a parser trying extractors in order.
// With no extractors it looks for a "text" field.
func NewParser(extractors ...Extractor) *Parser {
	if len(extractors) == 0 {
		extractors = []Extractor{NewFieldPattern("text")}
	}
	return &Parser{extractors: extractors}
}

// Parse returns the completion text in body, or "" when none is found.
// It never fails: a misbehaving extractor is logged and yields "".
func (p *Parser) Parse(body string) (text string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("failed to parse completion response", "error", r)
			text = ""
		}
	}()

	for _, e := range p.extractors {
		if t, ok := e.Extract(body); ok {
			return t
		}
	}
	return ""
}

// Unescape decodes the body of a JSON string literal. Raw control
// characters, which providers sometimes emit unescaped, are accepted.
// Escapes JSON does not define are kept as written.
func Unescape(s string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+quoteControls(s)+`"`), &out); err == nil {
		return out
	}
	return unescapeLenient(s)
}

// quoteControls escapes the bytes JSON forbids inside a string literal.
func quoteControls(s string) string {
	if !strings.ContainsFunc(s, func(r rune) bool { return r < 0x20 }) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if c := s[i]; c < 0x20 {
			fmt.Fprintf(&b, `\u%04x`, c)
		} else {
			b.WriteByte(c)
		}
	}
	return b.String()
}

var simpleEscapes = map[byte]string{
	'"': `"`, '\\': `\`, '/': "/",
	'b': "\b", 'f': "\f", 'n': "\n", 'r': "\r", 't': "\t",
}

// unescapeLenient decodes the escapes it recognizes and copies anything
// else through unchanged.
func unescapeLenient(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			b.WriteByte(s[i])
			continue
		}
		if rep, ok := simpleEscapes[s[i+1]]; ok {
			b.WriteString(rep)
			i++
			continue
		}
		if s[i+1] == 'u' {
			if r, n := decodeUnicodeEscape(s[i:]); n > 0 {
				b.WriteRune(r)
				i += n - 1
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// decodeUnicodeEscape decodes a \uXXXX escape, or a surrogate pair of two,
// at the start of s. n is the number of bytes consumed, zero if none.
func decodeUnicodeEscape(s string) (r rune, n int) {
	hex4 := func(s string) (rune, bool) {
		if len(s) < 6 || s[0] != '\\' || s[1] != 'u' {
			return 0, false
		}
		v, err := strconv.ParseUint(s[2:6], 16, 16)
		return rune(v), err == nil
	}
	r, ok := hex4(s)
	if !ok {
		return 0, 0
	}
	if utf16.IsSurrogate(r) {
		if r2, ok := hex4(s[6:]); ok {
			if dec := utf16.DecodeRune(r, r2); dec != utf8.RuneError {
				return dec, 12
			}
		}
		return utf8.RuneError, 6
	}
	return r, 6
}
