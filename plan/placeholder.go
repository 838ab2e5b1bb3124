package plan

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	openDelim  = "{{"
	closeDelim = "}}"
)

// Substitute replaces every {{identifier}} token in s whose identifier
// resolves in outputs with the full resolved value. Tokens that do not
// resolve, and malformed tokens, are left exactly as written. The input is
// scanned once from left to right; inserted values are never rescanned.
func Substitute(s string, outputs Lookuper) string {
	if !strings.Contains(s, openDelim) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	rest := s
	for {
		start := strings.Index(rest, openDelim)
		if start < 0 {
			b.WriteString(rest)
			return b.String()
		}
		b.WriteString(rest[:start])
		rest = rest[start:]

		ident, n := scanToken(rest)
		if n == 0 {
			// Not a token: emit one brace and resume, so "{{{x}}" still finds "{{x}}"
			b.WriteByte(rest[0])
			rest = rest[1:]
			continue
		}
		if value, ok := outputs.Lookup(ident); ok {
			b.WriteString(value)
		} else {
			b.WriteString(rest[:n])
		}
		rest = rest[n:]
	}
}

// scanToken reports the identifier and byte length of the token at the
// start of s, or n == 0 if s does not start with a well-formed token.
func scanToken(s string) (ident string, n int) {
	i := len(openDelim)
	for i < len(s) {
		r, size := utf8.DecodeRuneInString(s[i:])
		if !isIdentRune(r) {
			break
		}
		i += size
	}
	if i == len(openDelim) || !strings.HasPrefix(s[i:], closeDelim) {
		return "", 0
	}
	return s[len(openDelim):i], i + len(closeDelim)
}

func isIdentRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Placeholders returns the identifiers of all well-formed tokens in s, in
// order of appearance.
func Placeholders(s string) []string {
	var idents []string
	for rest := s; ; {
		start := strings.Index(rest, openDelim)
		if start < 0 {
			return idents
		}
		rest = rest[start:]
		if ident, n := scanToken(rest); n > 0 {
			idents = append(idents, ident)
			rest = rest[n:]
		} else {
			rest = rest[1:]
		}
	}
}

// SubstituteArgs returns a copy of args in which every top-level string
// value has been passed through Substitute. Non-string values are copied
// unchanged.
func SubstituteArgs(args map[string]interface{}, outputs Lookuper) map[string]interface{} {
	out := make(map[string]interface{}, len(args))
	for k, v := range args {
		if s, ok := v.(string); ok {
			out[k] = Substitute(s, outputs)
		} else {
			out[k] = v
		}
	}
	return out
}

// shiftPlaceholders renumbers step-output tokens in s by delta, so a plan
// keeps pointing at the same steps after steps are inserted before them.
func shiftPlaceholders(s string, delta int) string {
	return Substitute(s, shiftLookup(delta))
}

type shiftLookup int

func (d shiftLookup) Lookup(key string) (string, bool) {
	n, ok := parseOutputKey(key)
	if !ok {
		return "", false
	}
	return openDelim + OutputKey(n+int(d)) + closeDelim, true
}
