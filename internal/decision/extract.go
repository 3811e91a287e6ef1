package decision

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrNoJSON means no JSON object could be located in the reply.
	ErrNoJSON = errors.New("no JSON object found in model reply")

	codeFenceRe     = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	pyNoneRe        = regexp.MustCompile(`\bNone\b`)
	pyTrueRe        = regexp.MustCompile(`\bTrue\b`)
	pyFalseRe       = regexp.MustCompile(`\bFalse\b`)
)

// ExtractJSON pulls the first JSON object out of a free-form model
// reply. Models wrap JSON in code fences, leave trailing commas and
// occasionally emit Python literals; all of that is tolerated here
// rather than bounced back as an error.
func ExtractJSON(raw string) ([]byte, error) {
	text := strings.TrimSpace(raw)

	if m := codeFenceRe.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}

	obj, ok := balancedObject(text)
	if !ok {
		return nil, ErrNoJSON
	}

	obj = trailingCommaRe.ReplaceAllString(obj, "$1")
	obj = pyNoneRe.ReplaceAllString(obj, "null")
	obj = pyTrueRe.ReplaceAllString(obj, "true")
	obj = pyFalseRe.ReplaceAllString(obj, "false")
	return []byte(obj), nil
}

// balancedObject scans for the first top-level {...} with balanced
// braces, skipping braces inside string literals.
func balancedObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
