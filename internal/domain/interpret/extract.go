package interpret

import (
	"strings"

	"github.com/tidwall/gjson"
)

const fence = "```"

// extract returns the most likely JSON object text in reply: a fenced block
// holding an object, else a balanced {...} span, else the trimmed reply.
func extract(reply string) string {
	if block := fencedObject(reply); block != "" {
		return block
	}
	if span := balancedObject(reply); span != "" {
		return span
	}
	return strings.TrimSpace(reply)
}

// fencedObject scans every ``` block and returns the first whose body is an
// object literal. The info string after the opening fence is skipped.
func fencedObject(s string) string {
	rest := s
	for {
		open := strings.Index(rest, fence)
		if open < 0 {
			return ""
		}
		body := rest[open+len(fence):]
		if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.Contains(body[:nl], "{") {
			body = body[nl+1:]
		}
		end := strings.Index(body, fence)
		if end < 0 {
			return ""
		}
		candidate := strings.TrimSpace(body[:end])
		if strings.HasPrefix(candidate, "{") {
			if span := balancedObject(candidate); span != "" {
				return span
			}
		}
		rest = body[end+len(fence):]
	}
}

// balancedObject returns the first {...} span that is a valid JSON object,
// else the first span whose braces balance. Braces inside string literals
// are ignored.
func balancedObject(s string) string {
	first := ""
	start := strings.IndexByte(s, '{')
	for start >= 0 {
		if end := matchBrace(s, start); end > 0 {
			span := s[start : end+1]
			if gjson.Valid(span) {
				return span
			}
			if first == "" {
				first = span
			}
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return first
}

func matchBrace(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
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
				return i
			}
		}
	}
	return -1
}
