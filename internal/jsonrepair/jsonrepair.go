// Package jsonrepair decodes JSON objects from chat model output that is
// almost, but not quite, valid JSON. It is a pure function of its input:
// markdown fences are removed, the outermost object is isolated, trailing
// commas are dropped and raw control characters inside strings are escaped
// before a strict decode is attempted.
package jsonrepair

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoObject is returned when the input contains no JSON object.
var ErrNoObject = errors.New("jsonrepair: no JSON object found")

// Repair returns the cleaned-up text of the first JSON object in raw.
func Repair(raw string) (string, error) {
	s := stripFences(raw)
	obj, ok := outermostObject(s)
	if !ok {
		return "", ErrNoObject
	}
	return clean(obj), nil
}

// Decode repairs raw and unmarshals it into v.
func Decode(raw string, v any) error {
	s, err := Repair(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("jsonrepair: decode: %w", err)
	}
	return nil
}

// DecodeOr decodes raw into a T, returning def and the decode error when
// the input cannot be repaired.
func DecodeOr[T any](raw string, def T) (T, error) {
	var v T
	if err := Decode(raw, &v); err != nil {
		return def, err
	}
	return v, nil
}

// stripFences returns the body of the first ``` fenced block, or s
// unchanged when there is no fence.
func stripFences(s string) string {
	start := strings.Index(s, "```")
	if start < 0 {
		return s
	}
	body := s[start+3:]
	// Drop an info string ("json") up to the end of the fence line. Content
	// opened on the fence line itself is kept.
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && isInfoString(body[:nl]) {
		body = body[nl+1:]
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return body
}

func isInfoString(line string) bool {
	line = strings.TrimSpace(line)
	return !strings.ContainsAny(line, "{}[]\" ")
}

// outermostObject returns the substring from the first '{' to its matching
// '}', honouring string literals. An unterminated object falls back to the
// last '}' in s.
func outermostObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
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
				return s[start : i+1], true
			}
		}
	}
	end := strings.LastIndexByte(s, '}')
	if end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// clean removes trailing commas before '}' or ']' and escapes control
// characters inside string literals. Control characters outside strings,
// other than ordinary whitespace, are dropped.
func clean(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
				b.WriteByte(c)
			case c == '\\':
				escaped = true
				b.WriteByte(c)
			case c == '"':
				inString = false
				b.WriteByte(c)
			case c == '\n':
				b.WriteString(`\n`)
			case c == '\r':
				b.WriteString(`\r`)
			case c == '\t':
				b.WriteString(`\t`)
			case c < 0x20:
				// dropped
			default:
				b.WriteByte(c)
			}
			continue
		}
		switch {
		case c == '"':
			inString = true
			b.WriteByte(c)
		case c == ',' && nextSignificant(s, i+1) == '}',
			c == ',' && nextSignificant(s, i+1) == ']':
			// trailing comma
		case c < 0x20 && c != '\n' && c != '\r' && c != '\t':
			// dropped
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// nextSignificant returns the next non-whitespace byte at or after i, or 0.
func nextSignificant(s string, i int) byte {
	for ; i < len(s); i++ {
		switch s[i] {
		case ' ', '\n', '\r', '\t':
			continue
		}
		return s[i]
	}
	return 0
}
