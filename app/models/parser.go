package models

import (
	"encoding/json"
	"strings"
)

// ParseDirectives extracts {"tool": ..., "parameters": {...}} fragments from a
// free-text reply. Fragments that decode are removed from the returned text;
// anything else is left where it was. A balanced region that mentions "tool"
// but is not itself a directive is searched again from its inside, so prose
// braces around a directive do not hide it.
func ParseDirectives(text string) (string, []ToolCall) {
	var (
		calls []ToolCall
		out   strings.Builder
		last  int
	)

	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		end := matchBrace(text, i)
		if end < 0 {
			continue
		}
		fragment := text[i:end]
		if !strings.Contains(fragment, `"tool"`) {
			i = end - 1
			continue
		}
		call, ok := decodeDirective(fragment)
		if !ok {
			continue
		}
		calls = append(calls, call)
		out.WriteString(text[last:i])
		last = end
		i = end - 1
	}
	out.WriteString(text[last:])

	return strings.TrimSpace(out.String()), calls
}

func decodeDirective(fragment string) (ToolCall, bool) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(fragment), &raw); err != nil {
		return ToolCall{}, false
	}

	var call ToolCall
	name, ok := raw["tool"]
	if !ok || json.Unmarshal(name, &call.Tool) != nil {
		return ToolCall{}, false
	}

	call.Parameters = map[string]any{}
	if params, ok := raw["parameters"]; ok && string(params) != "null" {
		if err := json.Unmarshal(params, &call.Parameters); err != nil {
			return ToolCall{}, false
		}
	}
	return call, true
}

// matchBrace returns the offset just past the brace that closes the one at
// start, or -1. Braces inside JSON strings are ignored.
func matchBrace(text string, start int) int {
	depth := 0
	inString := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
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
				return i + 1
			}
		}
	}
	return -1
}
