package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/deedox/platform/internal/config"
	"github.com/deedox/platform/internal/metrics"
	"github.com/deedox/platform/pkg/logger"
)

type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /chat-proxy. Prompt is shorthand for a
// single user message.
type ChatRequest struct {
	ModelID     string     `json:"modelId"`
	Messages    []ChatTurn `json:"messages"`
	Prompt      string     `json:"prompt"`
	Temperature *float32   `json:"temperature,omitempty"`
	MaxTokens   int        `json:"max_tokens,omitempty"`
}

// Completion is a successful upstream answer.
type Completion struct {
	Body     json.RawMessage
	Model    string
	Provider string
}

// ChatProxy relays a chat completion to the provider of an allow-listed model.
// One upstream call per request, never retried.
type ChatProxy struct {
	models       *ModelConfigService
	credentials  *CredentialService
	upstreams    map[string]Upstream
	timeout      time.Duration
	guestAllowed func() bool
}

func NewChatProxy(modelSvc *ModelConfigService, creds *CredentialService, cfg *config.AIConfig, upstreams map[string]Upstream) *ChatProxy {
	if upstreams == nil {
		upstreams = DefaultUpstreams(cfg)
	}
	p := &ChatProxy{models: modelSvc, credentials: creds, upstreams: upstreams}
	if cfg.TimeoutSeconds > 0 {
		p.timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return p
}

// WithGuestPolicy makes anonymous access depend on fn, typically the
// ai_assistant.guest_allowed site setting.
func (p *ChatProxy) WithGuestPolicy(fn func() bool) *ChatProxy {
	p.guestAllowed = fn
	return p
}

// Normalize validates the request shape and folds Prompt into Messages.
func (r *ChatRequest) Normalize() error {
	r.ModelID = strings.TrimSpace(r.ModelID)
	if r.ModelID == "" {
		return newProxyError(ErrBadRequest, "modelId is required")
	}
	if len(r.Messages) == 0 {
		if strings.TrimSpace(r.Prompt) == "" {
			return newProxyError(ErrBadRequest, "messages or prompt is required")
		}
		r.Messages = []ChatTurn{{Role: "user", Content: r.Prompt}}
	}
	for i, m := range r.Messages {
		if strings.TrimSpace(m.Role) == "" {
			return newProxyError(ErrBadRequest, "messages[%d].role is required", i)
		}
	}
	if r.MaxTokens < 0 {
		return newProxyError(ErrBadRequest, "max_tokens must not be negative")
	}
	return nil
}

func (p *ChatProxy) Complete(ctx context.Context, id Identity, req *ChatRequest) (*Completion, error) {
	provider := "none"
	start := time.Now()

	c, err := p.complete(ctx, id, req, &provider)

	metrics.ProxyRequests.WithLabelValues(proxyOutcome(err), provider).Inc()
	event := logger.Info()
	if err != nil {
		event = logger.Warn().Err(err)
	}
	event.Str("identity", id.String()).
		Str("model", req.ModelID).
		Str("provider", provider).
		Dur("latency", time.Since(start)).
		Msg("chat proxy")
	return c, err
}

func (p *ChatProxy) complete(ctx context.Context, id Identity, req *ChatRequest, provider *string) (*Completion, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}
	if id.IsGuest() && p.guestAllowed != nil && !p.guestAllowed() {
		return nil, ErrGuestNotAllowed
	}

	model, err := p.models.Get(ctx, req.ModelID)
	if err != nil {
		if IsNotFound(err) {
			return nil, newProxyError(ErrModelUnauthorized, "model %s is not available", req.ModelID)
		}
		return nil, err
	}
	if !model.Enabled {
		return nil, newProxyError(ErrModelUnauthorized, "model %s is disabled", req.ModelID)
	}
	*provider = model.ProviderName()

	key, _, err := p.credentials.ProviderKey(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("chat proxy: read credential")
		return nil, newProxyError(ErrConfiguration, "server misconfigured: AI provider credential cannot be read")
	}
	if key == "" {
		return nil, newProxyError(ErrConfiguration, "server misconfigured: AI provider credential is not set")
	}
	if model.APIKey != "" {
		key = model.APIKey
	}

	upstream, ok := p.upstreams[*provider]
	if !ok {
		return nil, newProxyError(ErrConfiguration, "server misconfigured: no upstream for provider %s", *provider)
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	body, err := upstream.Complete(ctx, &UpstreamRequest{
		Model:       model.ID,
		APIKey:      key,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	metrics.ProxyUpstreamDuration.WithLabelValues(*provider).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	return &Completion{Body: body, Model: model.ID, Provider: *provider}, nil
}
