package retry

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/zhangshican/quotio-bridge/internal/models"
	"github.com/zhangshican/quotio-bridge/internal/services/resolver"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upstreamCall struct {
	Provider string
	Model    string
	Body     []byte
}

type scripted struct {
	Result *Result
	Err    error
}

// fakeUpstream replays a fixed script of results in call order and records
// every call it sees.
type fakeUpstream struct {
	script []scripted
	calls  []upstreamCall
}

func (f *fakeUpstream) Do(_ context.Context, endpoint models.Endpoint, body []byte, _ map[string]string) (*Result, error) {
	f.calls = append(f.calls, upstreamCall{
		Provider: endpoint.Provider,
		Model:    endpoint.Model,
		Body:     append([]byte(nil), body...),
	})
	if len(f.script) == 0 {
		return nil, errors.New("unexpected upstream call")
	}
	next := f.script[0]
	f.script = f.script[1:]
	return next.Result, next.Err
}

func attempt(provider, model string) resolver.PlannedAttempt {
	return resolver.PlannedAttempt{
		Entry:    models.FallbackEntry{ID: "e-" + provider, Provider: provider, Model: model, Priority: 1},
		Endpoint: models.Endpoint{Provider: provider, Model: model, BaseURL: "https://" + provider + ".example"},
		Family:   models.DetectModelFamily(model),
	}
}

func ok(body string) scripted {
	return scripted{Result: &Result{StatusCode: 200, Body: []byte(body), ContentType: "application/json"}}
}

func status(code int, body string) scripted {
	return scripted{Result: &Result{StatusCode: code, Body: []byte(body)}}
}

func TestExecuteFallsBackOn429(t *testing.T) {
	upstream := &fakeUpstream{script: []scripted{
		status(429, `{"error":"quota exceeded"}`),
		ok(`{"id":"resp-1","choices":[]}`),
	}}
	var quotaMarks []string
	engine := New(upstream, nil, nil, Hooks{
		OnQuotaExhausted: func(err *models.AppError) {
			quotaMarks = append(quotaMarks, err.Provider+"/"+err.Model)
		},
	})

	plan := resolver.Plan{Attempts: []resolver.PlannedAttempt{
		attempt("antigravity", "modelA"),
		attempt("kiro", "modelB"),
		attempt("claude", "modelC"),
	}}
	body := []byte(`{"model":"my-best","messages":[]}`)

	out := engine.Execute(context.Background(), plan, models.FamilyCompatible, "my-best", body, nil)

	require.True(t, out.Succeeded)
	assert.Equal(t, "kiro", out.Resolved.Provider)
	assert.Equal(t, "modelB", out.Resolved.Model)

	require.Len(t, out.Attempts, 2, "the third entry is never reached")
	first := out.Attempts[0]
	assert.Equal(t, "antigravity", first.Provider)
	assert.Equal(t, models.OutcomeFailed, first.Outcome)
	require.NotNil(t, first.Reason)
	assert.Equal(t, models.ReasonKindHTTPStatus, first.Reason.Kind)
	assert.Equal(t, 429, first.Reason.StatusCode)

	second := out.Attempts[1]
	assert.Equal(t, "kiro", second.Provider)
	assert.Equal(t, models.OutcomeSuccess, second.Outcome)
	assert.Nil(t, second.Reason)

	assert.Equal(t, []string{"antigravity/modelA"}, quotaMarks)

	// Each upstream call carries the entry's model, not the virtual name.
	require.Len(t, upstream.calls, 2)
	var sent map[string]any
	require.NoError(t, json.Unmarshal(upstream.calls[1].Body, &sent))
	assert.Equal(t, "modelB", sent["model"])
}

func TestExecuteSanitizesThenRetriesSameEntry(t *testing.T) {
	upstream := &fakeUpstream{script: []scripted{
		status(400, `{"error":{"message":"Invalid signature in thinking block"}}`),
		ok(`{"type":"message","content":[]}`),
	}}
	engine := New(upstream, nil, nil, Hooks{})

	plan := resolver.Plan{Attempts: []resolver.PlannedAttempt{
		attempt("claude", "claude-sonnet-4-5"),
		attempt("kiro", "claude-sonnet-4-5"),
	}}
	body := []byte(`{"model":"my-best","thinking":{"type":"enabled"},"messages":[{"role":"assistant","content":[{"type":"thinking","thinking":"x","signature":"s"},{"type":"text","text":"hi"}]}]}`)

	out := engine.Execute(context.Background(), plan, models.FamilyClaude, "my-best", body, nil)

	require.True(t, out.Succeeded)
	assert.True(t, out.Sanitized)
	assert.Equal(t, "claude", out.Resolved.Provider, "retry stays on the same entry")

	require.Len(t, upstream.calls, 2)
	assert.Equal(t, "claude", upstream.calls[0].Provider)
	assert.Equal(t, "claude", upstream.calls[1].Provider)

	var replay map[string]any
	require.NoError(t, json.Unmarshal(upstream.calls[1].Body, &replay))
	assert.NotContains(t, replay, "thinking")
	blocks := replay["messages"].([]any)[0].(map[string]any)["content"].([]any)
	require.Len(t, blocks, 1)
	assert.Equal(t, "text", blocks[0].(map[string]any)["type"])

	// The in-place replay does not show up as a separate trace slot.
	require.Len(t, out.Attempts, 1)
	assert.Equal(t, models.OutcomeSuccess, out.Attempts[0].Outcome)
}

func TestExecuteAdvancesWhenSanitizedRetryStillFails(t *testing.T) {
	upstream := &fakeUpstream{script: []scripted{
		status(400, `{"error":"bad signature"}`),
		status(400, `{"error":"bad signature"}`),
		ok(`{"type":"message","content":[]}`),
	}}
	engine := New(upstream, nil, nil, Hooks{})

	plan := resolver.Plan{Attempts: []resolver.PlannedAttempt{
		attempt("claude", "claude-sonnet-4-5"),
		attempt("kiro", "claude-sonnet-4-5"),
	}}
	body := []byte(`{"model":"my-best","messages":[]}`)

	out := engine.Execute(context.Background(), plan, models.FamilyClaude, "my-best", body, nil)

	require.True(t, out.Succeeded)
	assert.Equal(t, "kiro", out.Resolved.Provider)
	require.Len(t, upstream.calls, 3, "one sanitized replay, then the next entry")

	require.Len(t, out.Attempts, 2)
	failed := out.Attempts[0]
	assert.Equal(t, models.OutcomeFailed, failed.Outcome)
	assert.Equal(t, models.ReasonKindPattern, failed.Reason.Kind)
}

func TestExecuteChainExhaustion(t *testing.T) {
	upstream := &fakeUpstream{script: []scripted{
		status(429, `{}`),
		status(429, `{}`),
		status(429, `{}`),
	}}
	engine := New(upstream, nil, nil, Hooks{})

	plan := resolver.Plan{Attempts: []resolver.PlannedAttempt{
		attempt("antigravity", "modelA"),
		attempt("kiro", "modelB"),
		attempt("claude", "modelC"),
	}}

	out := engine.Execute(context.Background(), plan, models.FamilyClaude, "my-best", []byte(`{"model":"my-best"}`), nil)

	require.False(t, out.Succeeded)
	require.NotNil(t, out.Err)
	assert.Equal(t, models.ErrorTypeChainExhausted, out.Err.Type)
	assert.Equal(t, 3, out.Err.Attempts, "attempt count stays on the error for the trace")

	require.Len(t, out.Attempts, 3)
	for _, a := range out.Attempts {
		assert.Equal(t, models.OutcomeFailed, a.Outcome)
	}

	// The client-facing error is shaped like the home family's own error,
	// with no mention of routing: neither the attempt count nor the word
	// "candidates" may reach the wire.
	statusCode, errBody := ErrorResponse(out.Err, models.FamilyClaude)
	assert.Equal(t, 502, statusCode)
	var shaped map[string]any
	require.NoError(t, json.Unmarshal(errBody, &shaped))
	assert.Equal(t, "error", shaped["type"])
	message := shaped["error"].(map[string]any)["message"].(string)
	assert.Equal(t, "upstream request for my-best failed", message)
	assert.NotContains(t, string(errBody), "fallback")
	assert.NotContains(t, string(errBody), "candidates")
	assert.NotContains(t, string(errBody), "3")
}

func TestExecuteRecordsSkippedSlots(t *testing.T) {
	upstream := &fakeUpstream{script: []scripted{
		ok(`{"choices":[]}`),
	}}
	engine := New(upstream, nil, nil, Hooks{})

	skipped := attempt("dormant", "glm-4")
	skipped.Skipped = true
	skipped.SkipReason = "provider disabled"

	plan := resolver.Plan{Attempts: []resolver.PlannedAttempt{
		skipped,
		attempt("kiro", "glm-4"),
	}}

	out := engine.Execute(context.Background(), plan, models.FamilyCompatible, "my-best", []byte(`{"model":"my-best"}`), nil)

	require.True(t, out.Succeeded)
	require.Len(t, out.Attempts, 2)
	assert.Equal(t, models.OutcomeSkipped, out.Attempts[0].Outcome)
	assert.Equal(t, models.ReasonKindSkipped, out.Attempts[0].Reason.Kind)
	assert.Equal(t, "provider disabled", out.Attempts[0].Reason.Description)

	require.Len(t, upstream.calls, 1, "skipped slots are never sent upstream")
	assert.Equal(t, "kiro", upstream.calls[0].Provider)
}

func TestExecuteForbiddenSignal(t *testing.T) {
	upstream := &fakeUpstream{script: []scripted{
		status(403, `{"error":"blocked"}`),
		ok(`{"choices":[]}`),
	}}
	var forbidden []*models.AppError
	engine := New(upstream, nil, nil, Hooks{
		OnForbidden: func(err *models.AppError) { forbidden = append(forbidden, err) },
	})

	plan := resolver.Plan{Attempts: []resolver.PlannedAttempt{
		attempt("antigravity", "modelA"),
		attempt("kiro", "modelB"),
	}}

	out := engine.Execute(context.Background(), plan, models.FamilyCompatible, "my-best", []byte(`{"model":"my-best"}`), nil)

	require.True(t, out.Succeeded)
	require.Len(t, forbidden, 1)
	assert.Equal(t, models.ErrorTypeForbidden, forbidden[0].Type)
	assert.Equal(t, "antigravity", forbidden[0].Provider)
	assert.Equal(t, 403, forbidden[0].GetStatusCode())
}

func TestExecuteTransportErrorAdvances(t *testing.T) {
	upstream := &fakeUpstream{script: []scripted{
		{Err: errors.New("connection refused")},
		ok(`{"choices":[]}`),
	}}
	engine := New(upstream, nil, nil, Hooks{})

	plan := resolver.Plan{Attempts: []resolver.PlannedAttempt{
		attempt("antigravity", "modelA"),
		attempt("kiro", "modelB"),
	}}

	out := engine.Execute(context.Background(), plan, models.FamilyCompatible, "my-best", []byte(`{"model":"my-best"}`), nil)

	require.True(t, out.Succeeded)
	require.Len(t, out.Attempts, 2)
	assert.Equal(t, models.OutcomeFailed, out.Attempts[0].Outcome)
	assert.Equal(t, models.ReasonKindUnknown, out.Attempts[0].Reason.Kind)
}

func TestExecuteAttemptTimeoutRecordsUnknownReason(t *testing.T) {
	upstream := &fakeUpstream{script: []scripted{
		{Err: models.NewTimeoutError("upstream call", context.DeadlineExceeded)},
		ok(`{"choices":[]}`),
	}}
	engine := New(upstream, nil, nil, Hooks{})

	plan := resolver.Plan{Attempts: []resolver.PlannedAttempt{
		attempt("antigravity", "modelA"),
		attempt("kiro", "modelB"),
	}}

	out := engine.Execute(context.Background(), plan, models.FamilyCompatible, "my-best", []byte(`{"model":"my-best"}`), nil)

	require.True(t, out.Succeeded)
	require.Len(t, out.Attempts, 2)

	// A timed-out attempt is a transport failure, not a body-pattern match.
	timedOut := out.Attempts[0]
	assert.Equal(t, models.OutcomeFailed, timedOut.Outcome)
	assert.Equal(t, models.ReasonKindUnknown, timedOut.Reason.Kind)
}
