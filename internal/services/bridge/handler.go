package bridge

import (
	"time"

	"github.com/zhangshican/quotio-bridge/internal/models"
	"github.com/zhangshican/quotio-bridge/internal/services/classifier"
	"github.com/zhangshican/quotio-bridge/internal/services/quota"
	"github.com/zhangshican/quotio-bridge/internal/services/retry"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// registryHealth is the narrow view of the breaker registry the snapshot
// needs.
type registryHealth interface {
	Healthy(provider string) bool
}

// healthSnapshot merges the quota keeper with circuit-breaker health: an
// unhealthy provider reads as exhausted, so the resolver deprioritizes it
// the same way it deprioritizes a 429'd account. Nothing is ever dropped.
type healthSnapshot struct {
	keeper   *quota.Keeper
	breakers registryHealth
}

func (s healthSnapshot) Exhausted(provider, model string) bool {
	if s.keeper.Exhausted(provider, model) {
		return true
	}
	return !s.breakers.Healthy(provider)
}

func (s healthSnapshot) Lookup(provider, model string) (quota.State, bool) {
	return s.keeper.Lookup(provider, model)
}

// handleChat is the pipeline entry for a model-bearing POST. clientFamily is
// fixed by the route: /v1/messages speaks the Claude shape,
// /v1/chat/completions the OpenAI shape.
func (b *Bridge) handleChat(clientFamily models.ModelFamily) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		cfg := b.settings()

		requestID := uuid.NewString()
		c.Set("X-Request-ID", requestID)

		body := c.Body()
		requestedModel := gjson.GetBytes(body, "model").String()
		if requestedModel == "" {
			vErr := models.NewValidationError("request body carries no model", nil)
			status, errBody := retry.ErrorResponse(vErr, clientFamily)
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			return c.Status(status).Send(errBody)
		}

		cls := classifier.Classify(requestedModel, &cfg.Fallback)
		if cls.Kind == classifier.Direct {
			return b.forwardDirect(c, requestID, requestedModel, start)
		}

		snap := healthSnapshot{keeper: b.keeper, breakers: b.breakers}
		plan := b.resolver.Resolve(cls.Virtual, cfg.Providers, snap)
		outcome := b.engine.Execute(c.Context(), plan, clientFamily, requestedModel, body, nil)

		record := models.RequestRecord{
			ID:               requestID,
			Timestamp:        start,
			Method:           c.Method(),
			Endpoint:         c.Path(),
			RequestedModel:   requestedModel,
			Duration:         time.Since(start),
			FallbackAttempts: outcome.Attempts,
			FromCachedRoute:  plan.FromCachedRoute(),
		}

		if outcome.Succeeded {
			record.StatusCode = outcome.StatusCode
			record.ResolvedProvider = outcome.Resolved.Provider
			record.ResolvedModel = outcome.Resolved.Model
			record.Usage = extractUsage(outcome.Body, clientFamily)
			b.tracker.Add(record)

			contentType := outcome.ContentType
			if contentType == "" {
				contentType = fiber.MIMEApplicationJSON
			}
			c.Set(fiber.HeaderContentType, contentType)
			return c.Status(outcome.StatusCode).Send(outcome.Body)
		}

		status, errBody := retry.ErrorResponse(outcome.Err, clientFamily)
		record.StatusCode = status
		record.Error = outcome.Err.Message
		b.tracker.Add(record)

		fiberlog.Warnf("bridge: request %s for %s failed after %d attempts: %v",
			requestID, requestedModel, len(outcome.Attempts), outcome.Err)
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Status(status).Send(errBody)
	}
}

// forwardDirect relays an unrouted model to the local target port untouched
// and records the exchange.
func (b *Bridge) forwardDirect(c *fiber.Ctx, requestID, requestedModel string, start time.Time) error {
	if err := b.proxyToTarget(c); err != nil {
		return err
	}
	b.tracker.Add(models.RequestRecord{
		ID:             requestID,
		Timestamp:      start,
		Method:         c.Method(),
		Endpoint:       c.Path(),
		RequestedModel: requestedModel,
		ResolvedModel:  requestedModel,
		Duration:       time.Since(start),
		StatusCode:     c.Response().StatusCode(),
	})
	return nil
}

// handlePassthrough relays any unmatched route to the target port.
func (b *Bridge) handlePassthrough(c *fiber.Ctx) error {
	return b.proxyToTarget(c)
}

func (b *Bridge) proxyToTarget(c *fiber.Ctx) error {
	b.mu.RLock()
	target := b.target
	b.mu.RUnlock()
	if target == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "bridge target not configured")
	}

	ctx := c.Context()
	req := &ctx.Request
	req.SetHost(target.Addr)
	req.Header.Del(fiber.HeaderConnection)

	if err := target.DoDeadline(req, &ctx.Response, time.Now().Add(2*time.Minute)); err != nil {
		fiberlog.Warnf("bridge: passthrough to %s failed: %v", target.Addr, err)
		return fiber.NewError(fiber.StatusBadGateway, "target unreachable")
	}
	ctx.Response.Header.Del(fiber.HeaderConnection)
	return nil
}

// handleModels lists the virtual catalog alongside the known real models so
// clients can discover routable names.
func (b *Bridge) handleModels(c *fiber.Ctx) error {
	cfg := b.settings()

	type modelInfo struct {
		ID      string `json:"id"`
		Object  string `json:"object"`
		OwnedBy string `json:"owned_by"`
	}

	var data []modelInfo
	if cfg.Fallback.Enabled {
		for _, vm := range cfg.Fallback.VirtualModels {
			if vm.Enabled {
				data = append(data, modelInfo{ID: vm.Name, Object: "model", OwnedBy: "quotio-bridge"})
			}
		}
	}
	for _, name := range models.KnownRealModels() {
		data = append(data, modelInfo{ID: name, Object: "model", OwnedBy: string(models.DetectModelFamily(name))})
	}

	return c.JSON(fiber.Map{"object": "list", "data": data})
}

func (b *Bridge) handleHealth(c *fiber.Ctx) error {
	b.mu.RLock()
	state := b.state
	startedAt := b.startedAt
	b.mu.RUnlock()

	breakers := make(map[string]string)
	for provider, st := range b.breakers.States() {
		breakers[provider] = st.String()
	}

	status := fiber.StatusOK
	if state != StateReady {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{
		"status":         state.String(),
		"uptime_seconds": int(time.Since(startedAt).Seconds()),
		"providers":      len(b.settings().Providers),
		"breakers":       breakers,
	})
}

// handleRequests exposes the bounded request-record stream for the
// observability layer.
func (b *Bridge) handleRequests(c *fiber.Ctx) error {
	records := b.tracker.Records()
	return c.JSON(fiber.Map{"count": len(records), "requests": records})
}

// extractUsage pulls token counts out of a response already converted to the
// client's family.
func extractUsage(body []byte, family models.ModelFamily) models.TokenUsage {
	switch family {
	case models.FamilyClaude:
		return models.TokenUsage{
			InputTokens:  int(gjson.GetBytes(body, "usage.input_tokens").Int()),
			OutputTokens: int(gjson.GetBytes(body, "usage.output_tokens").Int()),
		}
	default:
		return models.TokenUsage{
			InputTokens:  int(gjson.GetBytes(body, "usage.prompt_tokens").Int()),
			OutputTokens: int(gjson.GetBytes(body, "usage.completion_tokens").Int()),
		}
	}
}
