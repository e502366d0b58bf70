// Package retry walks a resolved attempt plan sequentially until one
// upstream succeeds or the chain is exhausted. Attempts are bounded by the
// chain length; the only in-place retry is the single sanitized replay after
// a reasoning-signature rejection.
package retry

import (
	"context"
	"time"

	"github.com/zhangshican/quotio-bridge/internal/models"
	"github.com/zhangshican/quotio-bridge/internal/services/circuitbreaker"
	"github.com/zhangshican/quotio-bridge/internal/services/converter"
	"github.com/zhangshican/quotio-bridge/internal/services/resolver"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/tidwall/sjson"
)

// Result is one upstream exchange as seen by the engine.
type Result struct {
	StatusCode  int
	Body        []byte
	ContentType string
}

// Upstream performs a single provider call. Implementations own per-attempt
// timeouts and connection pooling.
type Upstream interface {
	Do(ctx context.Context, endpoint models.Endpoint, body []byte, headers map[string]string) (*Result, error)
}

// Hooks surface per-attempt signals to collaborating subsystems. Either
// field may be nil.
type Hooks struct {
	// OnForbidden fires when an upstream returns 401/403, so the quota
	// subsystem can mark the provider account blocked. The error carries
	// the provider and the upstream status.
	OnForbidden func(err *models.AppError)
	// OnQuotaExhausted fires on 429 with the exhausted provider+model pair.
	OnQuotaExhausted func(err *models.AppError)
}

// Engine executes attempt plans.
type Engine struct {
	upstream Upstream
	breakers *circuitbreaker.Registry
	patterns []string
	hooks    Hooks
}

// New creates an engine. patterns configures the signature-mismatch
// predicate; nil uses the converter defaults. breakers may be nil.
func New(upstream Upstream, breakers *circuitbreaker.Registry, patterns []string, hooks Hooks) *Engine {
	return &Engine{upstream: upstream, breakers: breakers, patterns: patterns, hooks: hooks}
}

// Outcome is the terminal result of walking a plan.
type Outcome struct {
	Succeeded bool

	// On success: the winning attempt's response, already converted back to
	// the client's family, plus the endpoint that produced it.
	StatusCode  int
	Body        []byte
	ContentType string
	Resolved    models.Endpoint

	// On failure: the terminal error. The client-facing body is shaped by
	// the requested model's home family.
	Err *models.AppError

	Attempts  []models.FallbackAttempt
	Sanitized bool
}

// Execute runs the plan strictly in order. body is the client request as
// received, in clientFamily's shape; each attempt converts it to the target
// entry's family before sending and converts the winning response back.
func (e *Engine) Execute(ctx context.Context, plan resolver.Plan, clientFamily models.ModelFamily, requestedModel string, body []byte, headers map[string]string) Outcome {
	out := Outcome{}

	for _, planned := range plan.Attempts {
		if planned.Skipped {
			reason := models.ReasonSkipped(planned.SkipReason)
			out.Attempts = append(out.Attempts, models.FallbackAttempt{
				Provider: planned.Entry.Provider,
				Model:    planned.Entry.Model,
				Outcome:  models.OutcomeSkipped,
				Reason:   &reason,
			})
			continue
		}

		result, done := e.attempt(ctx, planned, clientFamily, body, headers, &out)
		if done {
			out.Succeeded = true
			out.StatusCode = result.StatusCode
			out.Body = converter.ToClient(result.Body, planned.Family, clientFamily)
			out.ContentType = result.ContentType
			out.Resolved = planned.Endpoint
			return out
		}

		if ctx.Err() != nil {
			// Client went away; stop walking the chain.
			out.Err = models.NewTimeoutError("upstream attempt", ctx.Err())
			return out
		}
	}

	out.Err = models.NewChainExhaustedError(requestedModel, len(out.Attempts))
	return out
}

// attempt sends one entry's request, replaying once with reasoning content
// stripped if the upstream rejects the signature. done means the response
// should be returned to the client.
func (e *Engine) attempt(ctx context.Context, planned resolver.PlannedAttempt, clientFamily models.ModelFamily, body []byte, headers map[string]string, out *Outcome) (*Result, bool) {
	upstreamBody := converter.ToUpstream(body, clientFamily, planned.Family)
	upstreamBody, err := sjson.SetBytes(upstreamBody, "model", planned.Entry.Model)
	if err != nil {
		fiberlog.Warnf("retry: could not rewrite model for %s/%s: %v",
			planned.Entry.Provider, planned.Entry.Model, err)
	}

	sanitized := false
	for {
		result, err := e.upstream.Do(ctx, planned.Endpoint, upstreamBody, headers)
		if err != nil {
			fiberlog.Warnf("retry: %s/%s transport failure: %v",
				planned.Entry.Provider, planned.Entry.Model, err)
			e.recordFailure(planned, out, models.ReasonUnknown())
			return nil, false
		}

		switch {
		case result.StatusCode >= 200 && result.StatusCode < 300:
			e.recordSuccess(planned, out)
			return result, true

		case converter.IsSignatureMismatch(result.StatusCode, result.Body, e.patterns) && !sanitized:
			fiberlog.Infof("retry: %s/%s rejected reasoning signature, replaying sanitized",
				planned.Entry.Provider, planned.Entry.Model)
			upstreamBody = converter.StripThinking(upstreamBody)
			sanitized = true
			out.Sanitized = true
			continue

		case converter.IsSignatureMismatch(result.StatusCode, result.Body, e.patterns):
			e.recordFailure(planned, out, models.ReasonPattern("thinking signature mismatch after sanitization"))
			return nil, false

		case result.StatusCode == 429:
			if e.hooks.OnQuotaExhausted != nil {
				e.hooks.OnQuotaExhausted(models.NewQuotaError(planned.Entry.Provider, planned.Entry.Model))
			}
			e.recordFailure(planned, out, models.ReasonHTTPStatus(result.StatusCode))
			return nil, false

		case result.StatusCode == 401 || result.StatusCode == 403:
			if e.hooks.OnForbidden != nil {
				e.hooks.OnForbidden(models.NewForbiddenError(planned.Entry.Provider, result.StatusCode))
			}
			e.recordFailure(planned, out, models.ReasonHTTPStatus(result.StatusCode))
			return nil, false

		default:
			e.recordFailure(planned, out, models.ReasonHTTPStatus(result.StatusCode))
			return nil, false
		}
	}
}

func (e *Engine) recordSuccess(planned resolver.PlannedAttempt, out *Outcome) {
	var reason *models.AttemptReason
	if planned.FromCache {
		r := models.ReasonCachedRoute()
		reason = &r
	}
	out.Attempts = append(out.Attempts, models.FallbackAttempt{
		Provider: planned.Entry.Provider,
		Model:    planned.Entry.Model,
		Outcome:  models.OutcomeSuccess,
		Reason:   reason,
	})
	if e.breakers != nil {
		e.breakers.For(planned.Entry.Provider).RecordSuccess()
	}
}

func (e *Engine) recordFailure(planned resolver.PlannedAttempt, out *Outcome, reason models.AttemptReason) {
	out.Attempts = append(out.Attempts, models.FallbackAttempt{
		Provider: planned.Entry.Provider,
		Model:    planned.Entry.Model,
		Outcome:  models.OutcomeFailed,
		Reason:   &reason,
	})
	if e.breakers != nil {
		e.breakers.For(planned.Entry.Provider).RecordFailure()
	}
}

// ErrorResponse shapes the terminal error for the client in the requested
// model's home family, carrying no trace of the routing behind it.
func ErrorResponse(err *models.AppError, family models.ModelFamily) (int, []byte) {
	status := err.GetStatusCode()
	return status, converter.ErrorBody(family, status, err.Message)
}

// AttemptTimeout derives the per-attempt deadline from a provider timeout,
// defaulting when unset.
func AttemptTimeout(timeoutMs int) time.Duration {
	if timeoutMs <= 0 {
		return 60 * time.Second
	}
	return time.Duration(timeoutMs) * time.Millisecond
}
