package bridge

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/zhangshican/quotio-bridge/internal/config"
	"github.com/zhangshican/quotio-bridge/internal/models"
	"github.com/zhangshican/quotio-bridge/internal/services/retry"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/valyala/fasthttp"
)

// upstreamPool sends provider calls over per-provider fasthttp host clients.
// MaxConns on each client is the bounded connection cap: a long fallback
// chain fanning out under load cannot grow sockets without limit.
type upstreamPool struct {
	mu      sync.Mutex
	clients map[string]*fasthttp.HostClient
	cfg     *config.Config
}

func newUpstreamPool(cfg *config.Config) *upstreamPool {
	return &upstreamPool{
		clients: make(map[string]*fasthttp.HostClient),
		cfg:     cfg,
	}
}

// providerConfig looks up a provider's settings under the pool lock, so a
// concurrent Reconfigure cannot race the read.
func (p *upstreamPool) providerConfig(provider string) (models.ProviderConfig, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.GetProviderConfig(provider)
}

// Reconfigure swaps the provider set after a settings reload. Clients whose
// connection parameters changed are dropped so the next call rebuilds them;
// clients for removed providers are dropped outright.
func (p *upstreamPool) Reconfigure(cfg *config.Config) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for name := range p.clients {
		old, hadOld := p.cfg.GetProviderConfig(name)
		next, hasNext := cfg.GetProviderConfig(name)
		if !hasNext || !hadOld ||
			old.BaseURL != next.BaseURL ||
			old.TimeoutMs != next.TimeoutMs ||
			old.MaxConns != next.MaxConns {
			delete(p.clients, name)
		}
	}
	p.cfg = cfg
}

func (p *upstreamPool) client(provider string, baseURL string) (*fasthttp.HostClient, *url.URL, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Host == "" {
		return nil, nil, fmt.Errorf("invalid base URL for provider %s: %q", provider, baseURL)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	hc, ok := p.clients[provider]
	if !ok {
		pc, _ := p.cfg.GetProviderConfig(provider)
		maxConns := pc.MaxConns
		if maxConns <= 0 {
			maxConns = fasthttp.DefaultMaxConnsPerHost
		}
		isTLS := parsed.Scheme == "https"
		addr := parsed.Host
		if parsed.Port() == "" {
			if isTLS {
				addr += ":443"
			} else {
				addr += ":80"
			}
		}
		hc = &fasthttp.HostClient{
			Addr:                addr,
			IsTLS:               isTLS,
			MaxConns:            maxConns,
			ReadTimeout:         retry.AttemptTimeout(pc.TimeoutMs),
			WriteTimeout:        30 * time.Second,
			MaxIdleConnDuration: 90 * time.Second,
		}
		p.clients[provider] = hc
	}
	return hc, parsed, nil
}

// Do implements retry.Upstream. The attempt deadline is the tighter of the
// provider timeout and the request context's deadline; a client that goes
// away stops future attempts but the in-flight call runs to its deadline
// rather than being hard-killed.
func (p *upstreamPool) Do(ctx context.Context, endpoint models.Endpoint, body []byte, headers map[string]string) (*retry.Result, error) {
	pc, ok := p.providerConfig(endpoint.Provider)
	if !ok {
		return nil, models.NewProviderError(endpoint.Provider, "not configured", nil)
	}

	hc, base, err := p.client(endpoint.Provider, endpoint.BaseURL)
	if err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(base.Scheme + "://" + base.Host + requestPath(base.Path, endpoint.Model))
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	applyAuth(req, pc)
	for name, value := range pc.Headers {
		req.Header.Set(name, value)
	}
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	deadline := time.Now().Add(retry.AttemptTimeout(pc.TimeoutMs))
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	if err := hc.DoDeadline(req, resp, deadline); err != nil {
		if err == fasthttp.ErrTimeout {
			return nil, models.NewTimeoutError("upstream call", context.DeadlineExceeded)
		}
		return nil, models.NewProviderError(endpoint.Provider, "upstream call failed", err)
	}

	result := &retry.Result{
		StatusCode:  resp.StatusCode(),
		Body:        append([]byte(nil), resp.Body()...),
		ContentType: string(resp.Header.ContentType()),
	}
	fiberlog.Debugf("upstream: %s %s -> %d (%d bytes)",
		endpoint.Provider, endpoint.Model, result.StatusCode, len(result.Body))
	return result, nil
}

// requestPath picks the provider path for the call. Gemini addresses the
// model in the path; the other families carry it in the body.
func requestPath(basePath, model string) string {
	basePath = strings.TrimSuffix(basePath, "/")
	family := models.DetectModelFamily(model)
	switch family {
	case models.FamilyClaude:
		return basePath + "/v1/messages"
	case models.FamilyGemini:
		return basePath + "/v1beta/models/" + model + ":generateContent"
	default:
		return basePath + "/v1/chat/completions"
	}
}

// applyAuth sets the provider credential header: the configured header name
// verbatim, or Authorization with a bearer prefix when unset.
func applyAuth(req *fasthttp.Request, pc models.ProviderConfig) {
	if pc.APIKey == "" {
		return
	}
	if pc.AuthHeaderName != "" && !strings.EqualFold(pc.AuthHeaderName, "Authorization") {
		req.Header.Set(pc.AuthHeaderName, pc.APIKey)
		return
	}
	req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+pc.APIKey)
}
