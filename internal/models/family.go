package models

import "strings"

// ModelFamily is a coarse classification of a model identifier used to pick
// payload conversion rules. It says nothing about fallback eligibility.
type ModelFamily string

const (
	FamilyClaude     ModelFamily = "claude"
	FamilyGPT        ModelFamily = "gpt"
	FamilyGemini     ModelFamily = "gemini"
	FamilyCompatible ModelFamily = "compatible"
)

var claudeKeywords = []string{"claude", "opus", "sonnet", "haiku"}

var gptPrefixes = []string{"gpt", "o1", "o3", "o4"}

// DetectModelFamily classifies a model identifier by keyword heuristics.
// Unknown identifiers fall back to the OpenAI-compatible family.
func DetectModelFamily(model string) ModelFamily {
	m := strings.ToLower(model)

	for _, kw := range claudeKeywords {
		if strings.Contains(m, kw) {
			return FamilyClaude
		}
	}

	for _, p := range gptPrefixes {
		if strings.HasPrefix(m, p) {
			return FamilyGPT
		}
	}

	if strings.Contains(m, "gemini") {
		return FamilyGemini
	}

	return FamilyCompatible
}

// FormatCompatible reports whether two model identifiers share a wire format,
// i.e. map to the same family.
func FormatCompatible(a, b string) bool {
	return DetectModelFamily(a) == DetectModelFamily(b)
}
