// Package jsonutil extracts JSON payloads from freeform model output.
//
// Model responses rarely arrive as clean JSON: they come wrapped in prose,
// markdown code fences, or terminal escape codes. Extract applies a sequence
// of strategies (code fence first, then balanced-delimiter scanning) and
// returns the first span that parses as valid JSON.
package jsonutil

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// maxInputBytes caps the input size. Larger payloads are rejected rather than
// scanned, bounding memory on a runaway model response.
const maxInputBytes = 10 * 1024 * 1024

// reANSI matches CSI escape sequences that may leak into captured output.
var reANSI = regexp.MustCompile(`\x1b\[[0-9;]*[mGKHF]`)

// reCodeFence matches a markdown code fence with an optional "json" language
// tag. Dot-all mode plus a non-greedy body stops each match at the first
// closing fence, so multiple fences in one response each match separately.
var reCodeFence = regexp.MustCompile("(?s)```(?:json)?[ \\t]*\n(.*?)\n```")

// Extract returns the first valid JSON object or array found in text.
// Strategies are tried in order of reliability:
//  1. markdown code fence content (```json or bare ```)
//  2. balanced-delimiter scan for top-level { } and [ ] spans
func Extract(text string) (json.RawMessage, error) {
	text, err := sanitize(text)
	if err != nil {
		return nil, err
	}
	all := extractAllFrom(text)
	if len(all) == 0 {
		return nil, fmt.Errorf("jsonutil: no valid JSON found in text")
	}
	return all[0], nil
}

// ExtractAll returns every valid JSON object and array in text, in order of
// appearance. Oversized or unparseable input yields nil.
func ExtractAll(text string) []json.RawMessage {
	cleaned, err := sanitize(text)
	if err != nil {
		return nil
	}
	return extractAllFrom(cleaned)
}

// ExtractInto extracts the first JSON value from text and unmarshals it into
// target.
func ExtractInto(text string, target interface{}) error {
	raw, err := Extract(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("jsonutil: unmarshal failed: %w", err)
	}
	return nil
}

// sanitize strips a leading UTF-8 BOM and ANSI escape codes, enforcing the
// size cap first so the regex never runs over an oversized input.
func sanitize(text string) (string, error) {
	if len(text) > maxInputBytes {
		return "", fmt.Errorf("jsonutil: input exceeds maximum size of %d bytes", maxInputBytes)
	}
	text = strings.TrimPrefix(text, "\xef\xbb\xbf")
	text = reANSI.ReplaceAllString(text, "")
	return text, nil
}

// span records the byte range [start, end) of a fence match so the delimiter
// scan can skip positions already covered by fence extraction.
type span struct{ start, end int }

func inAnySpan(pos int, spans []span) bool {
	for _, s := range spans {
		if pos >= s.start && pos < s.end {
			return true
		}
	}
	return false
}

// extractAllFrom applies the extraction strategies to pre-sanitized text.
func extractAllFrom(text string) []json.RawMessage {
	var results []json.RawMessage
	var fences []span

	for _, loc := range reCodeFence.FindAllStringSubmatchIndex(text, -1) {
		if len(loc) < 4 {
			continue
		}
		inner := strings.TrimSpace(text[loc[2]:loc[3]])
		if inner == "" || !json.Valid([]byte(inner)) {
			continue
		}
		fences = append(fences, span{loc[0], loc[1]})
		results = append(results, json.RawMessage(inner))
	}

	for i := 0; i < len(text); i++ {
		ch := text[i]
		if ch != '{' && ch != '[' {
			continue
		}
		if inAnySpan(i, fences) {
			continue
		}
		end := matchingDelimiter(text, i)
		if end < 0 {
			continue
		}
		candidate := text[i : end+1]
		if !json.Valid([]byte(candidate)) {
			continue
		}
		results = append(results, json.RawMessage(candidate))
	}

	return results
}

// matchingDelimiter returns the index of the closer matching the '{' or '['
// at start, or -1 when unbalanced. Delimiters inside double-quoted strings
// are ignored, and backslash escapes inside strings are skipped.
func matchingDelimiter(text string, start int) int {
	openCh := text[start]
	var closeCh byte
	switch openCh {
	case '{':
		closeCh = '}'
	case '[':
		closeCh = ']'
	default:
		return -1
	}

	depth := 0
	inString := false
	for i := start; i < len(text); i++ {
		ch := text[i]

		if inString {
			switch ch {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case openCh:
			depth++
		case closeCh:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
