package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectModelFamily(t *testing.T) {
	tests := []struct {
		model string
		want  ModelFamily
	}{
		{"claude-opus-4-6-thinking", FamilyClaude},
		{"claude-sonnet-4-5", FamilyClaude},
		{"Opus-Latest", FamilyClaude},
		{"gpt-5-codex", FamilyGPT},
		{"gpt-4o-mini", FamilyGPT},
		{"o3", FamilyGPT},
		{"o4-mini", FamilyGPT},
		{"gemini-3-pro-preview", FamilyGemini},
		{"gemini-2.5-flash", FamilyGemini},
		{"glm-4", FamilyCompatible},
		{"deepseek-chat", FamilyCompatible},
		{"", FamilyCompatible},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectModelFamily(tt.model))
		})
	}
}

func TestFormatCompatible(t *testing.T) {
	assert.True(t, FormatCompatible("claude-opus-4-6", "sonnet-mix"))
	assert.True(t, FormatCompatible("glm-4", "deepseek-chat"))
	assert.False(t, FormatCompatible("gpt-5", "gemini-2.5-pro"))
}
