package converter

// Transforms between the Gemini generateContent wire shape and the hub form.
// Gemini uses role "model" where the hub uses "assistant", puts generation
// parameters under generationConfig, and names the output limit
// maxOutputTokens.

func geminiRequestToHub(req map[string]any) map[string]any {
	hub := map[string]any{}
	if v, ok := req["model"]; ok {
		hub["model"] = v
	}

	if gc, ok := req["generationConfig"].(map[string]any); ok {
		if v, ok := asInt(gc["maxOutputTokens"]); ok {
			hub["max_tokens"] = v
		}
		copyIfSet(gc, hub, "temperature")
		if v, ok := gc["topP"]; ok {
			hub["top_p"] = v
		}
		if stops, ok := gc["stopSequences"].([]any); ok && len(stops) > 0 {
			hub["stop_sequences"] = stops
		}
	}

	if si, ok := req["systemInstruction"].(map[string]any); ok {
		if text := geminiPartsText(si["parts"]); text != "" {
			hub["system"] = text
		}
	}

	var messages []any
	contents, _ := req["contents"].([]any)
	for _, rc := range contents {
		c, ok := rc.(map[string]any)
		if !ok {
			continue
		}
		role := "user"
		if c["role"] == "model" {
			role = "assistant"
		}
		messages = append(messages, map[string]any{
			"role":    role,
			"content": geminiPartsToHubBlocks(c["parts"]),
		})
	}
	hub["messages"] = messages

	if tools, ok := req["tools"].([]any); ok {
		var converted []any
		for _, rt := range tools {
			t, ok := rt.(map[string]any)
			if !ok {
				continue
			}
			decls, _ := t["functionDeclarations"].([]any)
			for _, rd := range decls {
				d, ok := rd.(map[string]any)
				if !ok {
					continue
				}
				converted = append(converted, map[string]any{
					"name":         d["name"],
					"description":  d["description"],
					"input_schema": d["parameters"],
				})
			}
		}
		if converted != nil {
			hub["tools"] = converted
		}
	}
	return hub
}

func hubRequestToGemini(hub map[string]any) map[string]any {
	out := map[string]any{}

	gc := map[string]any{}
	if v, ok := asInt(hub["max_tokens"]); ok {
		gc["maxOutputTokens"] = v
	}
	copyIfSet(hub, gc, "temperature")
	if v, ok := hub["top_p"]; ok {
		gc["topP"] = v
	}
	if stops, ok := hub["stop_sequences"].([]any); ok && len(stops) > 0 {
		gc["stopSequences"] = stops
	}
	if len(gc) > 0 {
		out["generationConfig"] = gc
	}

	if sys := contentAsText(hub["system"]); sys != "" {
		out["systemInstruction"] = map[string]any{
			"parts": []any{map[string]any{"text": sys}},
		}
	}

	var contents []any
	hubMessages, _ := hub["messages"].([]any)
	for _, rm := range hubMessages {
		m, ok := rm.(map[string]any)
		if !ok {
			continue
		}
		role := "user"
		if m["role"] == "assistant" {
			role = "model"
		}
		parts := hubContentToGeminiParts(m["content"])
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, map[string]any{"role": role, "parts": parts})
	}
	out["contents"] = contents

	if tools, ok := hub["tools"].([]any); ok {
		var decls []any
		for _, rt := range tools {
			t, ok := rt.(map[string]any)
			if !ok {
				continue
			}
			decls = append(decls, map[string]any{
				"name":        t["name"],
				"description": t["description"],
				"parameters":  t["input_schema"],
			})
		}
		if decls != nil {
			out["tools"] = []any{map[string]any{"functionDeclarations": decls}}
		}
	}
	return out
}

func geminiResponseToHub(resp map[string]any) map[string]any {
	hub := map[string]any{
		"type": "message",
		"role": "assistant",
	}
	copyIfSet(resp, hub, "model")

	var blocks []any
	finishReason := ""
	if candidates, ok := resp["candidates"].([]any); ok && len(candidates) > 0 {
		if cand, ok := candidates[0].(map[string]any); ok {
			finishReason, _ = cand["finishReason"].(string)
			if content, ok := cand["content"].(map[string]any); ok {
				blocks = geminiPartsToHubBlocks(content["parts"])
			}
		}
	}
	if blocks == nil {
		blocks = []any{}
	}
	hub["content"] = blocks

	switch finishReason {
	case "MAX_TOKENS":
		hub["stop_reason"] = "max_tokens"
	default:
		hub["stop_reason"] = "end_turn"
	}
	for _, rb := range blocks {
		if b, ok := rb.(map[string]any); ok && b["type"] == "tool_use" {
			hub["stop_reason"] = "tool_use"
			break
		}
	}

	if usage, ok := resp["usageMetadata"].(map[string]any); ok {
		hub["usage"] = map[string]any{
			"input_tokens":  usage["promptTokenCount"],
			"output_tokens": usage["candidatesTokenCount"],
		}
	}
	return hub
}

func hubResponseToGemini(hub map[string]any) map[string]any {
	parts := hubContentToGeminiParts(hub["content"])
	if len(parts) == 0 {
		parts = []any{map[string]any{"text": ""}}
	}

	stopReason, _ := hub["stop_reason"].(string)
	finishReason := "STOP"
	if stopReason == "max_tokens" {
		finishReason = "MAX_TOKENS"
	}

	out := map[string]any{
		"candidates": []any{map[string]any{
			"content":      map[string]any{"role": "model", "parts": parts},
			"finishReason": finishReason,
			"index":        0,
		}},
	}
	copyIfSet(hub, out, "model")

	if usage, ok := hub["usage"].(map[string]any); ok {
		in, _ := asInt(usage["input_tokens"])
		outTok, _ := asInt(usage["output_tokens"])
		out["usageMetadata"] = map[string]any{
			"promptTokenCount":     in,
			"candidatesTokenCount": outTok,
			"totalTokenCount":      in + outTok,
		}
	}
	return out
}

func geminiPartsText(parts any) string {
	list, ok := parts.([]any)
	if !ok {
		return ""
	}
	var texts []string
	for _, rp := range list {
		p, ok := rp.(map[string]any)
		if !ok {
			continue
		}
		if t, ok := p["text"].(string); ok {
			texts = append(texts, t)
		}
	}
	return joinNonEmpty(texts)
}

func geminiPartsToHubBlocks(parts any) []any {
	list, ok := parts.([]any)
	if !ok {
		return nil
	}
	var blocks []any
	for _, rp := range list {
		p, ok := rp.(map[string]any)
		if !ok {
			continue
		}
		if t, ok := p["text"].(string); ok {
			blocks = append(blocks, map[string]any{"type": "text", "text": t})
			continue
		}
		if fc, ok := p["functionCall"].(map[string]any); ok {
			name, _ := fc["name"].(string)
			blocks = append(blocks, map[string]any{
				"type":  "tool_use",
				"id":    "call_" + name,
				"name":  name,
				"input": fc["args"],
			})
			continue
		}
		if fr, ok := p["functionResponse"].(map[string]any); ok {
			blocks = append(blocks, map[string]any{
				"type":        "tool_result",
				"tool_use_id": fr["name"],
				"content":     encodeJSONArguments(fr["response"]),
			})
		}
	}
	return blocks
}

func hubContentToGeminiParts(content any) []any {
	switch c := content.(type) {
	case string:
		if c == "" {
			return nil
		}
		return []any{map[string]any{"text": c}}
	case []any:
		var parts []any
		for _, rb := range c {
			b, ok := rb.(map[string]any)
			if !ok {
				continue
			}
			switch b["type"] {
			case "text":
				if t, ok := b["text"].(string); ok && t != "" {
					parts = append(parts, map[string]any{"text": t})
				}
			case "tool_use":
				parts = append(parts, map[string]any{
					"functionCall": map[string]any{
						"name": b["name"],
						"args": b["input"],
					},
				})
			case "tool_result":
				parts = append(parts, map[string]any{
					"functionResponse": map[string]any{
						"name":     b["tool_use_id"],
						"response": map[string]any{"result": contentAsText(b["content"])},
					},
				})
			}
		}
		return parts
	default:
		return nil
	}
}
