package models

import (
	"sort"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go/v2"
)

// realModels is the catalog of real provider model names known to the system.
// Virtual model names must never collide with any of these. Claude and GPT
// names come from the vendor SDK constants; Gemini has no Go SDK constants so
// the published identifiers are listed directly.
var realModels = func() map[string]struct{} {
	names := []string{
		string(anthropic.ModelClaudeOpus4_0),
		string(anthropic.ModelClaudeSonnet4_0),
		string(anthropic.ModelClaude3_7SonnetLatest),
		string(anthropic.ModelClaude3_5HaikuLatest),

		openai.ChatModelGPT5,
		openai.ChatModelGPT4_1,
		openai.ChatModelGPT4o,
		openai.ChatModelGPT4oMini,
		openai.ChatModelO3,
		openai.ChatModelO4Mini,

		"gemini-2.5-pro",
		"gemini-2.5-flash",
		"gemini-2.5-flash-lite",
		"gemini-3-pro-preview",
	}

	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}()

// IsRealModel reports whether name is a known real provider model.
func IsRealModel(name string) bool {
	_, ok := realModels[name]
	return ok
}

// KnownRealModels returns the catalog as a slice, for the /v1/models listing.
func KnownRealModels() []string {
	out := make([]string, 0, len(realModels))
	for n := range realModels {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
