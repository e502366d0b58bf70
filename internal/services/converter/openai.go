package converter

// Transforms between the OpenAI chat-completions wire shape and the hub
// form. The GPT and compatible families share these; they differ only in the
// name of the output-token limit parameter, which is why hubRequestToOpenAI
// is parameterized.

// openAIRequestToHub lifts an OpenAI chat request into the hub form: the
// system message becomes a top-level field, tool_calls become tool_use
// content blocks, and the token limit is normalized to max_tokens.
func openAIRequestToHub(req map[string]any) map[string]any {
	hub := map[string]any{}
	if v, ok := req["model"]; ok {
		hub["model"] = v
	}
	copyIfSet(req, hub, "temperature", "top_p", "stream", "metadata")

	if v, ok := asInt(req["max_completion_tokens"]); ok {
		hub["max_tokens"] = v
	} else if v, ok := asInt(req["max_tokens"]); ok {
		hub["max_tokens"] = v
	}
	if stop, ok := req["stop"]; ok {
		switch s := stop.(type) {
		case string:
			hub["stop_sequences"] = []any{s}
		case []any:
			hub["stop_sequences"] = s
		}
	}

	var system []string
	var messages []any
	rawMessages, _ := req["messages"].([]any)
	for _, rm := range rawMessages {
		m, ok := rm.(map[string]any)
		if !ok {
			continue
		}
		role, _ := m["role"].(string)
		switch role {
		case "system", "developer":
			system = append(system, contentAsText(m["content"]))
		case "tool":
			messages = append(messages, map[string]any{
				"role": "user",
				"content": []any{map[string]any{
					"type":        "tool_result",
					"tool_use_id": m["tool_call_id"],
					"content":     contentAsText(m["content"]),
				}},
			})
		case "assistant":
			messages = append(messages, openAIAssistantToHub(m))
		default:
			messages = append(messages, map[string]any{"role": "user", "content": m["content"]})
		}
	}
	if len(system) > 0 {
		hub["system"] = joinNonEmpty(system)
	}
	hub["messages"] = messages

	if tools, ok := req["tools"].([]any); ok {
		var converted []any
		for _, rt := range tools {
			t, ok := rt.(map[string]any)
			if !ok {
				continue
			}
			fn, ok := t["function"].(map[string]any)
			if !ok {
				continue
			}
			converted = append(converted, map[string]any{
				"name":         fn["name"],
				"description":  fn["description"],
				"input_schema": fn["parameters"],
			})
		}
		if converted != nil {
			hub["tools"] = converted
		}
	}
	return hub
}

func openAIAssistantToHub(m map[string]any) map[string]any {
	var blocks []any
	if text := contentAsText(m["content"]); text != "" {
		blocks = append(blocks, map[string]any{"type": "text", "text": text})
	}
	if calls, ok := m["tool_calls"].([]any); ok {
		for _, rc := range calls {
			c, ok := rc.(map[string]any)
			if !ok {
				continue
			}
			fn, _ := c["function"].(map[string]any)
			blocks = append(blocks, map[string]any{
				"type":  "tool_use",
				"id":    c["id"],
				"name":  fn["name"],
				"input": parseJSONArguments(fn["arguments"]),
			})
		}
	}
	if blocks == nil {
		blocks = []any{}
	}
	return map[string]any{"role": "assistant", "content": blocks}
}

// hubRequestToOpenAI lowers a hub request into the OpenAI chat shape.
// maxTokensKey is "max_completion_tokens" for the GPT family and
// "max_tokens" for OpenAI-compatible servers, which predate the rename.
func hubRequestToOpenAI(maxTokensKey string) func(map[string]any) map[string]any {
	return func(hub map[string]any) map[string]any {
		out := map[string]any{}
		if v, ok := hub["model"]; ok {
			out["model"] = v
		}
		copyIfSet(hub, out, "temperature", "top_p", "stream", "metadata")
		if v, ok := asInt(hub["max_tokens"]); ok {
			out[maxTokensKey] = v
		}
		if stops, ok := hub["stop_sequences"].([]any); ok && len(stops) > 0 {
			out["stop"] = stops
		}

		var messages []any
		if sys := contentAsText(hub["system"]); sys != "" {
			messages = append(messages, map[string]any{"role": "system", "content": sys})
		}
		hubMessages, _ := hub["messages"].([]any)
		for _, rm := range hubMessages {
			m, ok := rm.(map[string]any)
			if !ok {
				continue
			}
			messages = append(messages, hubMessageToOpenAI(m)...)
		}
		out["messages"] = messages

		if tools, ok := hub["tools"].([]any); ok {
			var converted []any
			for _, rt := range tools {
				t, ok := rt.(map[string]any)
				if !ok {
					continue
				}
				converted = append(converted, map[string]any{
					"type": "function",
					"function": map[string]any{
						"name":        t["name"],
						"description": t["description"],
						"parameters":  t["input_schema"],
					},
				})
			}
			if converted != nil {
				out["tools"] = converted
			}
		}
		return out
	}
}

// hubMessageToOpenAI may fan one hub message out into several OpenAI ones:
// tool_result blocks must become standalone role:"tool" messages.
func hubMessageToOpenAI(m map[string]any) []any {
	role, _ := m["role"].(string)
	blocks, ok := m["content"].([]any)
	if !ok {
		return []any{map[string]any{"role": role, "content": m["content"]}}
	}

	var texts []string
	var toolCalls []any
	var out []any
	for _, rb := range blocks {
		b, ok := rb.(map[string]any)
		if !ok {
			continue
		}
		switch b["type"] {
		case "text":
			if t, ok := b["text"].(string); ok {
				texts = append(texts, t)
			}
		case "tool_use":
			toolCalls = append(toolCalls, map[string]any{
				"id":   b["id"],
				"type": "function",
				"function": map[string]any{
					"name":      b["name"],
					"arguments": encodeJSONArguments(b["input"]),
				},
			})
		case "tool_result":
			out = append(out, map[string]any{
				"role":         "tool",
				"tool_call_id": b["tool_use_id"],
				"content":      contentAsText(b["content"]),
			})
		case "thinking", "redacted_thinking":
			// dropped: OpenAI has no equivalent block
		}
	}

	msg := map[string]any{"role": role, "content": joinNonEmpty(texts)}
	if len(toolCalls) > 0 {
		msg["tool_calls"] = toolCalls
	}
	if msg["content"] != "" || len(toolCalls) > 0 {
		out = append([]any{msg}, out...)
	}
	if out == nil {
		out = []any{map[string]any{"role": role, "content": ""}}
	}
	return out
}

// openAIResponseToHub lifts an OpenAI chat response into the hub form.
func openAIResponseToHub(resp map[string]any) map[string]any {
	hub := map[string]any{
		"type": "message",
		"role": "assistant",
	}
	copyIfSet(resp, hub, "id", "model")

	var blocks []any
	finishReason := ""
	if choices, ok := resp["choices"].([]any); ok && len(choices) > 0 {
		if choice, ok := choices[0].(map[string]any); ok {
			finishReason, _ = choice["finish_reason"].(string)
			if msg, ok := choice["message"].(map[string]any); ok {
				if text := contentAsText(msg["content"]); text != "" {
					blocks = append(blocks, map[string]any{"type": "text", "text": text})
				}
				if calls, ok := msg["tool_calls"].([]any); ok {
					for _, rc := range calls {
						c, ok := rc.(map[string]any)
						if !ok {
							continue
						}
						fn, _ := c["function"].(map[string]any)
						blocks = append(blocks, map[string]any{
							"type":  "tool_use",
							"id":    c["id"],
							"name":  fn["name"],
							"input": parseJSONArguments(fn["arguments"]),
						})
					}
				}
			}
		}
	}
	if blocks == nil {
		blocks = []any{}
	}
	hub["content"] = blocks
	hub["stop_reason"] = stopReasonFromOpenAI(finishReason)

	if usage, ok := resp["usage"].(map[string]any); ok {
		hub["usage"] = map[string]any{
			"input_tokens":  usage["prompt_tokens"],
			"output_tokens": usage["completion_tokens"],
		}
	}
	return hub
}

// hubResponseToOpenAI lowers a hub response into the OpenAI chat shape.
func hubResponseToOpenAI(hub map[string]any) map[string]any {
	msg := map[string]any{"role": "assistant"}
	var texts []string
	var toolCalls []any
	if blocks, ok := hub["content"].([]any); ok {
		for _, rb := range blocks {
			b, ok := rb.(map[string]any)
			if !ok {
				continue
			}
			switch b["type"] {
			case "text":
				if t, ok := b["text"].(string); ok {
					texts = append(texts, t)
				}
			case "tool_use":
				toolCalls = append(toolCalls, map[string]any{
					"id":   b["id"],
					"type": "function",
					"function": map[string]any{
						"name":      b["name"],
						"arguments": encodeJSONArguments(b["input"]),
					},
				})
			}
		}
	}
	msg["content"] = joinNonEmpty(texts)
	if len(toolCalls) > 0 {
		msg["tool_calls"] = toolCalls
	}

	stopReason, _ := hub["stop_reason"].(string)
	out := map[string]any{
		"object": "chat.completion",
		"choices": []any{map[string]any{
			"index":         0,
			"message":       msg,
			"finish_reason": finishReasonFromHub(stopReason),
		}},
	}
	copyIfSet(hub, out, "id", "model")

	if usage, ok := hub["usage"].(map[string]any); ok {
		in, _ := asInt(usage["input_tokens"])
		outTok, _ := asInt(usage["output_tokens"])
		out["usage"] = map[string]any{
			"prompt_tokens":     in,
			"completion_tokens": outTok,
			"total_tokens":      in + outTok,
		}
	}
	return out
}

func stopReasonFromOpenAI(finishReason string) string {
	switch finishReason {
	case "length":
		return "max_tokens"
	case "tool_calls":
		return "tool_use"
	case "stop", "":
		return "end_turn"
	default:
		return "end_turn"
	}
}

func finishReasonFromHub(stopReason string) string {
	switch stopReason {
	case "max_tokens":
		return "length"
	case "tool_use":
		return "tool_calls"
	default:
		return "stop"
	}
}
