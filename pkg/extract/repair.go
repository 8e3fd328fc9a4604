package extract

import (
	"regexp"
	"strings"
)

// Repair step names, in application order. Used in diagnostics and
// metrics labels.
const (
	StepStripFence       = "strip_fence"
	StepBalanceQuotes    = "balance_quotes"
	StepCloseDelimiters  = "close_delimiters"
	StepTrailingCommas   = "trailing_commas"
	StepSingleQuotedKeys = "single_quoted_keys"
	StepStripComments    = "strip_comments"
	StepSpuriousEscapes  = "spurious_escapes"
)

// repairStep pairs a step name with its transform.
type repairStep struct {
	name string
	fn   func(string) string
}

// steps is the fixed repair order. Reordering changes semantics: quote
// balancing must precede delimiter counting, and escape removal must run
// last so earlier steps see the original escape structure.
var steps = []repairStep{
	{StepStripFence, StripFence},
	{StepBalanceQuotes, BalanceQuotes},
	{StepCloseDelimiters, CloseDelimiters},
	{StepTrailingCommas, RemoveTrailingCommas},
	{StepSingleQuotedKeys, NormalizeSingleQuotedKeys},
	{StepStripComments, StripComments},
	{StepSpuriousEscapes, RemoveSpuriousEscapes},
}

// Repair applies every repair step in order and returns the result.
func Repair(s string) string {
	out, _ := RepairSteps(s)
	return out
}

// RepairSteps applies every repair step in order and additionally reports
// the names of the steps that changed the text.
func RepairSteps(s string) (string, []string) {
	var applied []string
	for _, step := range steps {
		next := step.fn(s)
		if next != s {
			applied = append(applied, step.name)
		}
		s = next
	}
	return s, applied
}

var (
	openFencePattern  = regexp.MustCompile("^```[a-zA-Z0-9_-]*[ \t]*\r?\n?")
	closeFencePattern = regexp.MustCompile("\r?\n?```[ \t]*$")
)

// StripFence removes a leading markdown code fence (``` optionally
// followed by a language tag), a trailing fence, and surrounding single
// backticks.
func StripFence(s string) string {
	trimmed := strings.TrimSpace(s)

	if strings.HasPrefix(trimmed, "```") {
		trimmed = openFencePattern.ReplaceAllString(trimmed, "")
		trimmed = closeFencePattern.ReplaceAllString(trimmed, "")
		return strings.TrimSpace(trimmed)
	}

	// Surrounding single backticks.
	if len(trimmed) >= 2 && strings.HasPrefix(trimmed, "`") && strings.HasSuffix(trimmed, "`") {
		return strings.TrimSpace(strings.Trim(trimmed, "`"))
	}

	return trimmed
}

// BalanceQuotes counts unescaped double quotes; when the count is odd it
// inserts a closing quote after the last opening quote, before the next
// structural delimiter (comma, closing brace or bracket, or newline) that
// follows it, or at the end of the text when none follows.
func BalanceQuotes(s string) string {
	count := 0
	last := -1
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' {
			i++
			continue
		}
		if s[i] == '"' {
			count++
			last = i
		}
	}
	if count%2 == 0 {
		return s
	}

	// Find the insertion point after the dangling open quote.
	for i := last + 1; i < len(s); i++ {
		switch s[i] {
		case ',', '}', ']', '\n':
			return s[:i] + `"` + s[i:]
		}
	}
	return s + `"`
}

// CloseDelimiters counts unmatched braces and brackets outside string
// literals and appends the missing closers to the end of the text,
// braces before brackets.
func CloseDelimiters(s string) string {
	var braces, brackets int
	inString := false
	escapeNext := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if escapeNext {
			escapeNext = false
			continue
		}
		if c == '\\' {
			escapeNext = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch c {
		case '{':
			braces++
		case '}':
			if braces > 0 {
				braces--
			}
		case '[':
			brackets++
		case ']':
			if brackets > 0 {
				brackets--
			}
		}
	}

	if braces == 0 && brackets == 0 {
		return s
	}
	var b strings.Builder
	b.WriteString(s)
	for i := 0; i < braces; i++ {
		b.WriteByte('}')
	}
	for i := 0; i < brackets; i++ {
		b.WriteByte(']')
	}
	return b.String()
}

// RemoveTrailingCommas deletes commas that immediately precede a closing
// brace or bracket. Commas inside string literals are left alone.
func RemoveTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	escapeNext := false

	for i := 0; i < len(s); i++ {
		c := s[i]

		if inString {
			b.WriteByte(c)
			if escapeNext {
				escapeNext = false
			} else if c == '\\' {
				escapeNext = true
			} else if c == '"' {
				inString = false
			}
			continue
		}

		if c == '"' {
			inString = true
			b.WriteByte(c)
			continue
		}

		if c == ',' {
			// Drop the comma if the next non-whitespace is a closer.
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}

		b.WriteByte(c)
	}

	return b.String()
}

// NormalizeSingleQuotedKeys rewrites single-quoted object keys ('key':)
// to double-quoted form. Content inside double-quoted strings is left
// alone.
func NormalizeSingleQuotedKeys(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	escapeNext := false

	for i := 0; i < len(s); i++ {
		c := s[i]

		if inString {
			b.WriteByte(c)
			if escapeNext {
				escapeNext = false
			} else if c == '\\' {
				escapeNext = true
			} else if c == '"' {
				inString = false
			}
			continue
		}

		if c == '"' {
			inString = true
			b.WriteByte(c)
			continue
		}

		if c == '\'' {
			// A single-quoted run is a key only if a colon follows it.
			end := strings.IndexByte(s[i+1:], '\'')
			if end >= 0 {
				closeIdx := i + 1 + end
				j := closeIdx + 1
				for j < len(s) && isSpace(s[j]) {
					j++
				}
				if j < len(s) && s[j] == ':' {
					b.WriteByte('"')
					b.WriteString(s[i+1 : closeIdx])
					b.WriteByte('"')
					i = closeIdx
					continue
				}
			}
		}

		b.WriteByte(c)
	}

	return b.String()
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// StripComments removes // line comments and /* */ block comments that
// appear outside string literals.
func StripComments(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	escapeNext := false

	for i := 0; i < len(s); i++ {
		c := s[i]

		if inString {
			b.WriteByte(c)
			if escapeNext {
				escapeNext = false
				continue
			}
			if c == '\\' {
				escapeNext = true
				continue
			}
			if c == '"' {
				inString = false
			}
			continue
		}

		if c == '"' {
			inString = true
			b.WriteByte(c)
			continue
		}

		// Line comment: skip to end of line, keep the newline.
		if c == '/' && i+1 < len(s) && s[i+1] == '/' {
			for i < len(s) && s[i] != '\n' {
				i++
			}
			if i < len(s) {
				b.WriteByte('\n')
			}
			continue
		}

		// Block comment: skip to the terminator.
		if c == '/' && i+1 < len(s) && s[i+1] == '*' {
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				// Unterminated block comment swallows the rest.
				break
			}
			i += 2 + end + 1
			continue
		}

		b.WriteByte(c)
	}

	return b.String()
}

// validEscapes is the set of characters that may legitimately follow a
// backslash in JSON.
const validEscapes = `"\/bfnrtu`

// RemoveSpuriousEscapes drops backslashes that precede a character
// outside the valid JSON escape set, keeping the following character
// literal. Legitimate escapes (\n, \t, \", \\, \uXXXX and friends) pass
// through untouched. An uppercase \U is outside the JSON grammar and is
// treated as spurious like any other invalid escape.
func RemoveSpuriousEscapes(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); {
		c := s[i]
		if c == '\\' && i+1 < len(s) {
			next := s[i+1]
			if strings.IndexByte(validEscapes, next) >= 0 {
				b.WriteByte(c)
				b.WriteByte(next)
			} else {
				b.WriteByte(next)
			}
			i += 2
			continue
		}
		b.WriteByte(c)
		i++
	}

	return b.String()
}
