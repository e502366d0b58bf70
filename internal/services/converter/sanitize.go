package converter

import (
	"encoding/json"
	"strings"
)

// DefaultMismatchPatterns are the body substrings that identify a rejected
// reasoning signature when an upstream returns 400. Configurable because
// providers keep rewording this error.
var DefaultMismatchPatterns = []string{
	"signature",
	"thinking block",
	"reasoning block",
}

// IsSignatureMismatch reports whether an upstream rejection looks like a
// reasoning-signature validation failure, the one 400 that is worth a
// sanitize-and-retry instead of an immediate client error. The check is a
// case-insensitive substring match so pattern lists stay simple.
func IsSignatureMismatch(statusCode int, body []byte, patterns []string) bool {
	if statusCode != 400 {
		return false
	}
	if len(patterns) == 0 {
		patterns = DefaultMismatchPatterns
	}
	lower := strings.ToLower(string(body))
	for _, p := range patterns {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// StripThinking removes reasoning artifacts from a request body: thinking
// and redacted_thinking content blocks inside messages, and the top-level
// thinking configuration. Used when replaying a conversation to a provider
// that did not produce its reasoning signatures. Malformed input is returned
// unchanged.
func StripThinking(body []byte) []byte {
	var req map[string]any
	if err := json.Unmarshal(body, &req); err != nil {
		return body
	}

	delete(req, "thinking")

	messages, ok := req["messages"].([]any)
	if ok {
		for _, rm := range messages {
			m, ok := rm.(map[string]any)
			if !ok {
				continue
			}
			blocks, ok := m["content"].([]any)
			if !ok {
				continue
			}
			kept := blocks[:0]
			for _, rb := range blocks {
				if b, ok := rb.(map[string]any); ok {
					if b["type"] == "thinking" || b["type"] == "redacted_thinking" {
						continue
					}
					delete(b, "signature")
				}
				kept = append(kept, rb)
			}
			m["content"] = kept
		}
	}

	out, err := json.Marshal(req)
	if err != nil {
		return body
	}
	return out
}
