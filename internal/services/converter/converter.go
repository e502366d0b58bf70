// Package converter translates request and response bodies between the wire
// schemas of the provider families. Transforms are table-driven: each family
// registers decode/encode rules against a neutral hub form (the Claude
// message shape, which is also what bridge clients predominantly speak), so
// adding a family is a data addition rather than scattered switch statements.
package converter

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/zhangshican/quotio-bridge/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

// rules holds one family's transforms to and from the hub form. A nil
// function means identity.
type rules struct {
	// decodeRequest converts a family-shaped request into the hub form.
	decodeRequest func(map[string]any) map[string]any
	// encodeRequest converts a hub-form request into the family's shape.
	encodeRequest func(map[string]any) map[string]any
	// decodeResponse converts a family-shaped response into the hub form.
	decodeResponse func(map[string]any) map[string]any
	// encodeResponse converts a hub-form response into the family's shape.
	encodeResponse func(map[string]any) map[string]any
	// maxTokensCap clamps the max-output-tokens parameter when the family
	// enforces a lower ceiling. Zero means no cap.
	maxTokensCap int
}

var rulesByFamily = map[models.ModelFamily]*rules{
	models.FamilyClaude: {},
	models.FamilyGPT: {
		decodeRequest:  openAIRequestToHub,
		encodeRequest:  hubRequestToOpenAI("max_completion_tokens"),
		decodeResponse: openAIResponseToHub,
		encodeResponse: hubResponseToOpenAI,
	},
	models.FamilyCompatible: {
		decodeRequest:  openAIRequestToHub,
		encodeRequest:  hubRequestToOpenAI("max_tokens"),
		decodeResponse: openAIResponseToHub,
		encodeResponse: hubResponseToOpenAI,
	},
	models.FamilyGemini: {
		decodeRequest:  geminiRequestToHub,
		encodeRequest:  hubRequestToGemini,
		decodeResponse: geminiResponseToHub,
		encodeResponse: hubResponseToGemini,
		maxTokensCap:   8192,
	},
}

// ToUpstream adapts a client request body from one family's wire format to
// another's. Same-family conversion is the identity: the body is returned
// untouched, byte for byte. Malformed input is passed through unchanged with
// a warning; a degraded payload beats failing the whole request over a
// translation gap.
func ToUpstream(body []byte, from, to models.ModelFamily) []byte {
	if from == to {
		return body
	}

	src, dst, ok := rulesPair(body, from, to, "request")
	if !ok {
		return body
	}

	var req map[string]any
	if err := json.Unmarshal(body, &req); err != nil {
		fiberlog.Warnf("converter: malformed %s request passed through unconverted: %v", from, err)
		return body
	}

	hub := req
	if src.decodeRequest != nil {
		hub = src.decodeRequest(req)
	}
	if dst.encodeRequest != nil {
		hub = dst.encodeRequest(hub)
	}
	clampMaxTokens(hub, dst, to)

	out, err := json.Marshal(hub)
	if err != nil {
		fiberlog.Warnf("converter: failed to re-encode %s->%s request, passing through: %v", from, to, err)
		return body
	}
	return out
}

// ToClient adapts an upstream response body back to the client's family.
// Same-family is the identity, malformed input passes through.
func ToClient(body []byte, from, to models.ModelFamily) []byte {
	if from == to {
		return body
	}

	src, dst, ok := rulesPair(body, from, to, "response")
	if !ok {
		return body
	}

	var resp map[string]any
	if err := json.Unmarshal(body, &resp); err != nil {
		fiberlog.Warnf("converter: malformed %s response passed through unconverted: %v", from, err)
		return body
	}

	hub := resp
	if src.decodeResponse != nil {
		hub = src.decodeResponse(resp)
	}
	if dst.encodeResponse != nil {
		hub = dst.encodeResponse(hub)
	}

	out, err := json.Marshal(hub)
	if err != nil {
		fiberlog.Warnf("converter: failed to re-encode %s->%s response, passing through: %v", from, to, err)
		return body
	}
	return out
}

func rulesPair(body []byte, from, to models.ModelFamily, kind string) (*rules, *rules, bool) {
	src, ok := rulesByFamily[from]
	if !ok {
		fiberlog.Warnf("converter: unknown source family %s for %s, passing through", from, kind)
		return nil, nil, false
	}
	dst, ok := rulesByFamily[to]
	if !ok {
		fiberlog.Warnf("converter: unknown target family %s for %s, passing through", to, kind)
		return nil, nil, false
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil, false
	}
	return src, dst, true
}

// clampMaxTokens enforces the target family's output-token ceiling after the
// parameter has already been renamed by the encode step.
func clampMaxTokens(req map[string]any, dst *rules, to models.ModelFamily) {
	if dst.maxTokensCap <= 0 {
		return
	}
	for _, key := range []string{"max_tokens", "max_completion_tokens"} {
		if v, ok := asInt(req[key]); ok && v > dst.maxTokensCap {
			req[key] = dst.maxTokensCap
		}
	}
	if to == models.FamilyGemini {
		if gc, ok := req["generationConfig"].(map[string]any); ok {
			if v, ok := asInt(gc["maxOutputTokens"]); ok && v > dst.maxTokensCap {
				gc["maxOutputTokens"] = dst.maxTokensCap
			}
		}
	}
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}

// ErrorBody shapes an upstream-style error for the given family, used when a
// chain is exhausted so the client sees the error its requested model's home
// family would produce, with no trace of the routing behind it.
func ErrorBody(family models.ModelFamily, statusCode int, message string) []byte {
	var payload any
	switch family {
	case models.FamilyClaude:
		payload = map[string]any{
			"type": "error",
			"error": map[string]any{
				"type":    anthropicErrorType(statusCode),
				"message": message,
			},
		}
	case models.FamilyGemini:
		payload = map[string]any{
			"error": map[string]any{
				"code":    statusCode,
				"message": message,
				"status":  googleStatus(statusCode),
			},
		}
	default:
		payload = map[string]any{
			"error": map[string]any{
				"message": message,
				"type":    "api_error",
				"code":    nil,
			},
		}
	}

	out, err := json.Marshal(payload)
	if err != nil {
		return []byte(fmt.Sprintf(`{"error":{"message":%q}}`, message))
	}
	return out
}

func anthropicErrorType(statusCode int) string {
	switch statusCode {
	case 400:
		return "invalid_request_error"
	case 401:
		return "authentication_error"
	case 403:
		return "permission_error"
	case 429:
		return "rate_limit_error"
	case 529:
		return "overloaded_error"
	default:
		return "api_error"
	}
}

func googleStatus(statusCode int) string {
	switch statusCode {
	case 400:
		return "INVALID_ARGUMENT"
	case 403:
		return "PERMISSION_DENIED"
	case 429:
		return "RESOURCE_EXHAUSTED"
	case 503:
		return "UNAVAILABLE"
	default:
		return "INTERNAL"
	}
}
