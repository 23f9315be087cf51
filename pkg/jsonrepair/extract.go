// Package jsonrepair locates and parses a JSON value embedded in free-form
// LLM output. Model responses are frequently wrapped in prose or code fences
// and sometimes structurally damaged; Extract recovers the payload through
// escalating local repairs before callers fall back to an LLM-assisted fix.
package jsonrepair

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrUnparsable is returned when every local repair tier has failed.
// Callers with auto-fix enabled should hand the raw text to the
// JSON-fixing agent next.
var ErrUnparsable = errors.New("jsonrepair: no parsable JSON value found")

var fenceMarkers = []string{"```json", "```html", "```"}

// StripFences removes markdown code-fence markers from the text.
func StripFences(s string) string {
	for _, marker := range fenceMarkers {
		s = strings.ReplaceAll(s, marker, "")
	}
	return s
}

// Extract returns the single JSON object or array embedded in raw.
// Empty input yields an empty object, not an error: some call sites treat
// a fully empty model response as "nothing to apply" rather than a failure.
// Callers that require content must validate non-emptiness themselves.
func Extract(raw string) (json.RawMessage, error) {
	text := strings.TrimSpace(StripFences(raw))
	if text == "" {
		return json.RawMessage("{}"), nil
	}

	candidate, err := scan(text)
	if err != nil {
		// No opening bracket at all: the model may have truncated the
		// leading brace of an object response.
		if prepended := "{" + text; json.Valid([]byte(prepended)) {
			slog.Debug("jsonrepair: recovered by prepending opening brace")
			return json.RawMessage(prepended), nil
		}
		return nil, err
	}

	if json.Valid([]byte(candidate)) {
		return json.RawMessage(candidate), nil
	}
	parseErr := json.Unmarshal([]byte(candidate), new(any))

	// Tier 1: illegal characters inside string literals are usually stray
	// escapes the model emitted; stripping backslashes often recovers them.
	if parseErr != nil && (strings.Contains(parseErr.Error(), "in string literal") ||
		strings.Contains(parseErr.Error(), "in string escape code")) {
		stripped := strings.ReplaceAll(candidate, "\\", "")
		if json.Valid([]byte(stripped)) {
			slog.Debug("jsonrepair: recovered by stripping backslashes")
			return json.RawMessage(stripped), nil
		}
	}

	// Tier 2: truncated-object responses missing the opening brace.
	if prepended := "{" + text; json.Valid([]byte(prepended)) {
		slog.Debug("jsonrepair: recovered by prepending opening brace")
		return json.RawMessage(prepended), nil
	}

	// Tier 3: second-chance full rescan of the unfenced text.
	if rescan, err := scan(strings.TrimSpace(raw)); err == nil && json.Valid([]byte(rescan)) {
		return json.RawMessage(rescan), nil
	}

	return nil, fmt.Errorf("%w: %v (text: %s)", ErrUnparsable, parseErr, truncate(text, 200))
}

// ExtractInto extracts the embedded JSON value and unmarshals it into v.
func ExtractInto(raw string, v any) error {
	data, err := Extract(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// scan finds the first '{' or '[' and walks forward tracking nesting depth
// of the matching bracket type until it closes. Bracket characters inside
// double-quoted strings are ignored; escape sequences are honored, so a
// string ending in a literal backslash does not leak string mode.
func scan(text string) (string, error) {
	objStart := strings.IndexByte(text, '{')
	arrStart := strings.IndexByte(text, '[')

	start := objStart
	opener, closer := byte('{'), byte('}')
	if objStart == -1 || (arrStart != -1 && arrStart < objStart) {
		start = arrStart
		opener, closer = '[', ']'
	}
	if start == -1 {
		return "", fmt.Errorf("%w: no opening bracket", ErrUnparsable)
	}
	if start > 0 {
		slog.Debug("jsonrepair: discarding leading text", "discarded", truncate(text[:start], 80))
	}

	depth := 0
	inString := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch c {
			case '\\':
				i++ // skip the escaped character
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case opener:
			depth++
		case closer:
			depth--
			if depth == 0 {
				if i+1 < len(text) && strings.TrimSpace(text[i+1:]) != "" {
					slog.Debug("jsonrepair: discarding trailing text", "discarded", truncate(text[i+1:], 80))
				}
				return text[start : i+1], nil
			}
		}
	}

	// Never closed; return the remainder so repair tiers can try it.
	return text[start:], nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
