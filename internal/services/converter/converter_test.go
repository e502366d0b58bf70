package converter

import (
	"encoding/json"
	"testing"

	"github.com/zhangshican/quotio-bridge/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	out, err := json.Marshal(v)
	require.NoError(t, err)
	return out
}

func decode(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(body, &m))
	return m
}

func TestToUpstreamSameFamilyIsIdentity(t *testing.T) {
	body := []byte(`{"model":"claude-sonnet-4-5","max_tokens":1024,  "messages":[{"role":"user","content":"hi"}]}`)

	for _, family := range []models.ModelFamily{models.FamilyClaude, models.FamilyGPT, models.FamilyGemini, models.FamilyCompatible} {
		out := ToUpstream(body, family, family)
		assert.Equal(t, body, out, "family %s", family)
	}
}

func TestToUpstreamMalformedPassesThrough(t *testing.T) {
	body := []byte(`{"model": not-json`)
	out := ToUpstream(body, models.FamilyClaude, models.FamilyGPT)
	assert.Equal(t, body, out)
}

func TestToUpstreamClaudeToGPT(t *testing.T) {
	body := mustJSON(t, map[string]any{
		"model":      "claude-sonnet-4-5",
		"system":     "be terse",
		"max_tokens": 2048,
		"messages": []any{
			map[string]any{"role": "user", "content": "hello"},
			map[string]any{"role": "assistant", "content": []any{
				map[string]any{"type": "text", "text": "calling a tool"},
				map[string]any{"type": "tool_use", "id": "tu-1", "name": "read_file", "input": map[string]any{"path": "a.go"}},
			}},
			map[string]any{"role": "user", "content": []any{
				map[string]any{"type": "tool_result", "tool_use_id": "tu-1", "content": "package main"},
			}},
		},
	})

	out := decode(t, ToUpstream(body, models.FamilyClaude, models.FamilyGPT))

	assert.Equal(t, float64(2048), out["max_completion_tokens"])
	assert.NotContains(t, out, "max_tokens")

	messages, ok := out["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 4)

	first := messages[0].(map[string]any)
	assert.Equal(t, "system", first["role"])
	assert.Equal(t, "be terse", first["content"])

	assistant := messages[2].(map[string]any)
	assert.Equal(t, "assistant", assistant["role"])
	calls := assistant["tool_calls"].([]any)
	require.Len(t, calls, 1)
	fn := calls[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "read_file", fn["name"])
	assert.JSONEq(t, `{"path":"a.go"}`, fn["arguments"].(string))

	toolMsg := messages[3].(map[string]any)
	assert.Equal(t, "tool", toolMsg["role"])
	assert.Equal(t, "tu-1", toolMsg["tool_call_id"])
}

func TestToUpstreamClaudeToCompatibleKeepsMaxTokensName(t *testing.T) {
	body := mustJSON(t, map[string]any{
		"model":      "my-model",
		"max_tokens": 512,
		"messages":   []any{map[string]any{"role": "user", "content": "hi"}},
	})

	out := decode(t, ToUpstream(body, models.FamilyClaude, models.FamilyCompatible))
	assert.Equal(t, float64(512), out["max_tokens"])
	assert.NotContains(t, out, "max_completion_tokens")
}

func TestToUpstreamClaudeToGeminiClampsOutputTokens(t *testing.T) {
	body := mustJSON(t, map[string]any{
		"model":      "x",
		"system":     "careful",
		"max_tokens": 64000,
		"messages": []any{
			map[string]any{"role": "user", "content": "hi"},
			map[string]any{"role": "assistant", "content": []any{
				map[string]any{"type": "text", "text": "hello back"},
			}},
		},
	})

	out := decode(t, ToUpstream(body, models.FamilyClaude, models.FamilyGemini))

	gc := out["generationConfig"].(map[string]any)
	assert.Equal(t, float64(8192), gc["maxOutputTokens"])

	si := out["systemInstruction"].(map[string]any)
	parts := si["parts"].([]any)
	assert.Equal(t, "careful", parts[0].(map[string]any)["text"])

	contents := out["contents"].([]any)
	require.Len(t, contents, 2)
	assert.Equal(t, "user", contents[0].(map[string]any)["role"])
	assert.Equal(t, "model", contents[1].(map[string]any)["role"])
}

func TestToClientGPTResponseToClaude(t *testing.T) {
	body := mustJSON(t, map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"model":  "gpt-5",
		"choices": []any{map[string]any{
			"index":         0,
			"finish_reason": "stop",
			"message": map[string]any{
				"role":    "assistant",
				"content": "result text",
			},
		}},
		"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 4},
	})

	out := decode(t, ToClient(body, models.FamilyGPT, models.FamilyClaude))

	assert.Equal(t, "message", out["type"])
	assert.Equal(t, "end_turn", out["stop_reason"])
	blocks := out["content"].([]any)
	require.Len(t, blocks, 1)
	assert.Equal(t, "result text", blocks[0].(map[string]any)["text"])

	usage := out["usage"].(map[string]any)
	assert.Equal(t, float64(10), usage["input_tokens"])
	assert.Equal(t, float64(4), usage["output_tokens"])
}

func TestToClientGeminiResponseToClaude(t *testing.T) {
	body := mustJSON(t, map[string]any{
		"candidates": []any{map[string]any{
			"finishReason": "MAX_TOKENS",
			"content": map[string]any{
				"role":  "model",
				"parts": []any{map[string]any{"text": "truncated"}},
			},
		}},
		"usageMetadata": map[string]any{"promptTokenCount": 7, "candidatesTokenCount": 3},
	})

	out := decode(t, ToClient(body, models.FamilyGemini, models.FamilyClaude))

	assert.Equal(t, "max_tokens", out["stop_reason"])
	blocks := out["content"].([]any)
	require.Len(t, blocks, 1)
	assert.Equal(t, "truncated", blocks[0].(map[string]any)["text"])
}

func TestToClientClaudeResponseToGPT(t *testing.T) {
	body := mustJSON(t, map[string]any{
		"type": "message",
		"role": "assistant",
		"content": []any{
			map[string]any{"type": "text", "text": "answer"},
			map[string]any{"type": "tool_use", "id": "tu-9", "name": "grep", "input": map[string]any{"pattern": "x"}},
		},
		"stop_reason": "tool_use",
		"usage":       map[string]any{"input_tokens": 5, "output_tokens": 2},
	})

	out := decode(t, ToClient(body, models.FamilyClaude, models.FamilyGPT))

	choices := out["choices"].([]any)
	require.Len(t, choices, 1)
	choice := choices[0].(map[string]any)
	assert.Equal(t, "tool_calls", choice["finish_reason"])

	msg := choice["message"].(map[string]any)
	assert.Equal(t, "answer", msg["content"])
	calls := msg["tool_calls"].([]any)
	require.Len(t, calls, 1)

	usage := out["usage"].(map[string]any)
	assert.Equal(t, float64(7), usage["total_tokens"])
}

func TestErrorBodyShapes(t *testing.T) {
	claude := decode(t, ErrorBody(models.FamilyClaude, 429, "quota"))
	assert.Equal(t, "error", claude["type"])
	assert.Equal(t, "rate_limit_error", claude["error"].(map[string]any)["type"])

	gpt := decode(t, ErrorBody(models.FamilyGPT, 502, "bad gateway"))
	assert.Equal(t, "bad gateway", gpt["error"].(map[string]any)["message"])
	assert.Equal(t, "api_error", gpt["error"].(map[string]any)["type"])

	gemini := decode(t, ErrorBody(models.FamilyGemini, 429, "quota"))
	assert.Equal(t, "RESOURCE_EXHAUSTED", gemini["error"].(map[string]any)["status"])
}
