// Package extract recovers a JSON object from model output that wraps it in
// prose or markdown formatting.
package extract

import (
	"encoding/json"
	"errors"
	"strings"
)

// MaxCandidates is the default number of {...} candidates tried before giving up.
const MaxCandidates = 8

// ErrNoObject is returned when no candidate decodes into the target.
var ErrNoObject = errors.New("no JSON object found")

// Object finds the first JSON object in text that decode accepts.
//
// It tries the whole text, then the body of each fenced code block, then every
// balanced {...} span in order of appearance, stopping after maxCandidates spans
// (MaxCandidates when maxCandidates <= 0). decode receives each candidate and
// reports whether it parsed into something usable.
func Object(text string, maxCandidates int, decode func(candidate []byte) bool) error {
	if maxCandidates <= 0 {
		maxCandidates = MaxCandidates
	}

	try := func(candidate string) bool {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" || !json.Valid([]byte(candidate)) {
			return false
		}
		return decode([]byte(candidate))
	}

	if try(text) {
		return nil
	}

	for _, block := range fencedBlocks(text) {
		if try(block) {
			return nil
		}
	}

	for _, span := range balancedObjects(text, maxCandidates) {
		if try(span) {
			return nil
		}
	}

	return ErrNoObject
}

// Into decodes the first acceptable JSON object in text into a new T.
// accept may be nil to take the first object that decodes.
func Into[T any](text string, maxCandidates int, accept func(T) bool) (T, error) {
	var out T
	err := Object(text, maxCandidates, func(candidate []byte) bool {
		var v T
		if err := json.Unmarshal(candidate, &v); err != nil {
			return false
		}
		if accept != nil && !accept(v) {
			return false
		}
		out = v
		return true
	})
	return out, err
}

// fencedBlocks returns the bodies of ``` fenced blocks, dropping any language tag.
func fencedBlocks(text string) []string {
	var blocks []string

	rest := text
	for {
		open := strings.Index(rest, "```")
		if open < 0 {
			return blocks
		}
		rest = rest[open+3:]

		// Skip the info string ("json", "JSON", ...) up to the end of the line.
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 && !strings.ContainsAny(rest[:nl], "{[") {
			rest = rest[nl+1:]
		}

		end := strings.Index(rest, "```")
		if end < 0 {
			return append(blocks, rest)
		}
		blocks = append(blocks, rest[:end])
		rest = rest[end+3:]
	}
}

// balancedObjects returns up to limit top-level {...} spans, honoring JSON string escapes.
func balancedObjects(text string, limit int) []string {
	var spans []string

	for start := 0; start < len(text) && len(spans) < limit; {
		open := strings.IndexByte(text[start:], '{')
		if open < 0 {
			break
		}
		open += start

		end := matchBrace(text, open)
		if end < 0 {
			// Unbalanced; retry from the next brace.
			start = open + 1
			continue
		}

		spans = append(spans, text[open:end+1])
		start = open + 1
	}

	return spans
}

// matchBrace returns the index of the brace closing the one at open, or -1.
func matchBrace(text string, open int) int {
	depth := 0
	inString := false
	escaped := false

	for i := open; i < len(text); i++ {
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
				return i
			}
		}
	}

	return -1
}
