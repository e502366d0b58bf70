package converter

import (
	"encoding/json"
	"strings"
)

// contentAsText flattens a content value into plain text. Content may be a
// bare string or a list of typed blocks; anything non-textual is dropped.
func contentAsText(content any) string {
	switch c := content.(type) {
	case string:
		return c
	case []any:
		var parts []string
		for _, rb := range c {
			b, ok := rb.(map[string]any)
			if !ok {
				continue
			}
			if b["type"] == "text" {
				if t, ok := b["text"].(string); ok {
					parts = append(parts, t)
				}
			}
		}
		return joinNonEmpty(parts)
	default:
		return ""
	}
}

func joinNonEmpty(parts []string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n")
}

func copyIfSet(src, dst map[string]any, keys ...string) {
	for _, key := range keys {
		if v, ok := src[key]; ok {
			dst[key] = v
		}
	}
}

// parseJSONArguments decodes the JSON-string tool arguments OpenAI uses into
// the object form the hub uses. Undecodable input is kept as raw text rather
// than discarded.
func parseJSONArguments(v any) any {
	s, ok := v.(string)
	if !ok {
		if v == nil {
			return map[string]any{}
		}
		return v
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(s), &parsed); err != nil {
		return map[string]any{"raw": s}
	}
	return parsed
}

// encodeJSONArguments is the inverse: hub tool inputs are objects, OpenAI
// wants a JSON string.
func encodeJSONArguments(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return "{}"
	}
	out, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(out)
}
