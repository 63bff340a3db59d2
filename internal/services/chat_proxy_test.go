package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/deedox/platform/internal/config"
	"github.com/deedox/platform/internal/models"
	"github.com/deedox/platform/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeUpstream struct {
	calls   atomic.Int32
	lastKey string
	body    json.RawMessage
	err     error
}

func (f *fakeUpstream) Complete(_ context.Context, req *UpstreamRequest) (json.RawMessage, error) {
	f.calls.Add(1)
	f.lastKey = req.APIKey
	return f.body, f.err
}

type proxyFixture struct {
	db       *gorm.DB
	proxy    *ChatProxy
	creds    *CredentialService
	upstream *fakeUpstream
}

func newProxyFixture(t *testing.T, fallbackKey string) *proxyFixture {
	t.Helper()
	db := setupTestDB(t)
	box, err := utils.NewSecretBox("test-credential-secret")
	require.NoError(t, err)

	up := &fakeUpstream{body: json.RawMessage(`{"object":"chat.completion","choices":[]}`)}
	creds := NewCredentialService(db, box, fallbackKey)
	proxy := NewChatProxy(NewModelConfigService(db, nil), creds, &config.AIConfig{}, map[string]Upstream{
		models.ProviderOpenAI: up,
	})

	require.NoError(t, db.Create(&models.ModelConfig{ID: "gpt-4o-mini", Name: "GPT-4o mini", Enabled: true}).Error)
	require.NoError(t, db.Create(&models.ModelConfig{ID: "disabled-model", Name: "Off", Enabled: false}).Error)
	return &proxyFixture{db: db, proxy: proxy, creds: creds, upstream: up}
}

func TestChatProxy_BadRequest(t *testing.T) {
	f := newProxyFixture(t, "sk-config")
	ctx := context.Background()

	tests := []struct {
		name string
		req  ChatRequest
	}{
		{"missing model", ChatRequest{Prompt: "hi"}},
		{"blank model", ChatRequest{ModelID: "  ", Prompt: "hi"}},
		{"no messages or prompt", ChatRequest{ModelID: "gpt-4o-mini"}},
		{"message without role", ChatRequest{ModelID: "gpt-4o-mini", Messages: []ChatTurn{{Content: "x"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.proxy.Complete(ctx, Anonymous{}, &tt.req)
			require.ErrorIs(t, err, ErrBadRequest)
			status, _ := ProxyStatus(err)
			assert.Equal(t, http.StatusBadRequest, status)
		})
	}
	assert.Zero(t, f.upstream.calls.Load())
}

func TestChatProxy_UnknownOrDisabledModelNeverCallsUpstream(t *testing.T) {
	f := newProxyFixture(t, "sk-config")
	ctx := context.Background()

	_, err := f.proxy.Complete(ctx, Anonymous{}, &ChatRequest{ModelID: "made-up", Prompt: "hi"})
	require.ErrorIs(t, err, ErrModelUnauthorized)
	status, msg := ProxyStatus(err)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "model made-up is not available", msg)

	_, err = f.proxy.Complete(ctx, Authenticated{UserID: 1, Role: models.RoleAdmin}, &ChatRequest{
		ModelID:  "disabled-model",
		Messages: []ChatTurn{{Role: "user", Content: "hello"}},
	})
	require.ErrorIs(t, err, ErrModelUnauthorized)
	status, msg = ProxyStatus(err)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Contains(t, msg, "disabled")

	assert.Zero(t, f.upstream.calls.Load())
}

func TestChatProxy_MissingCredential(t *testing.T) {
	f := newProxyFixture(t, "")

	_, err := f.proxy.Complete(context.Background(), Anonymous{}, &ChatRequest{ModelID: "gpt-4o-mini", Prompt: "hi"})
	require.ErrorIs(t, err, ErrConfiguration)
	status, msg := ProxyStatus(err)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Contains(t, msg, "server misconfigured")
	assert.Zero(t, f.upstream.calls.Load())
}

func TestChatProxy_CredentialPrecedence(t *testing.T) {
	f := newProxyFixture(t, "sk-config")
	ctx := context.Background()
	req := func() *ChatRequest { return &ChatRequest{ModelID: "gpt-4o-mini", Prompt: "hi"} }

	_, err := f.proxy.Complete(ctx, Anonymous{}, req())
	require.NoError(t, err)
	assert.Equal(t, "sk-config", f.upstream.lastKey)

	require.NoError(t, f.creds.Set(ctx, "sk-database", nil))
	_, err = f.proxy.Complete(ctx, Anonymous{}, req())
	require.NoError(t, err)
	assert.Equal(t, "sk-database", f.upstream.lastKey)

	require.NoError(t, f.db.Model(&models.ModelConfig{}).Where("id = ?", "gpt-4o-mini").Update("api_key", "sk-model").Error)
	_, err = f.proxy.Complete(ctx, Anonymous{}, req())
	require.NoError(t, err)
	assert.Equal(t, "sk-model", f.upstream.lastKey)
}

func TestChatProxy_PassesBodyThrough(t *testing.T) {
	f := newProxyFixture(t, "sk-config")

	c, err := f.proxy.Complete(context.Background(), Authenticated{UserID: 7}, &ChatRequest{ModelID: "gpt-4o-mini", Prompt: "hi"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"object":"chat.completion","choices":[]}`, string(c.Body))
	assert.Equal(t, models.ProviderOpenAI, c.Provider)
	assert.Equal(t, int32(1), f.upstream.calls.Load())
}

func TestChatProxy_GuestPolicy(t *testing.T) {
	f := newProxyFixture(t, "sk-config")
	f.proxy.WithGuestPolicy(func() bool { return false })
	ctx := context.Background()

	_, err := f.proxy.Complete(ctx, Anonymous{}, &ChatRequest{ModelID: "gpt-4o-mini", Prompt: "hi"})
	require.ErrorIs(t, err, ErrGuestNotAllowed)
	status, _ := ProxyStatus(err)
	assert.Equal(t, http.StatusUnauthorized, status)

	_, err = f.proxy.Complete(ctx, Authenticated{UserID: 3}, &ChatRequest{ModelID: "gpt-4o-mini", Prompt: "hi"})
	assert.NoError(t, err)
}

func TestChatProxy_UpstreamErrorRelayed(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-config", r.Header.Get("Authorization"))

		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o-mini", body["model"])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"requests"}}`))
	}))
	defer srv.Close()

	f := newProxyFixture(t, "sk-config")
	f.proxy.upstreams[models.ProviderOpenAI] = NewOpenAIUpstream(srv.URL+"/v1/", srv.Client())

	_, err := f.proxy.Complete(context.Background(), Anonymous{}, &ChatRequest{ModelID: "gpt-4o-mini", Prompt: "hi"})
	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	status, msg := ProxyStatus(err)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "upstream provider error (429): Rate limit reached", msg)
	assert.Equal(t, int32(1), hits.Load())
}

func TestOpenAIUpstream_SuccessIsUnchanged(t *testing.T) {
	raw := `{"id":"chatcmpl-1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"hey"}}],"x_extra":true}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(raw))
	}))
	defer srv.Close()

	up := NewOpenAIUpstream(srv.URL, srv.Client())
	body, err := up.Complete(context.Background(), &UpstreamRequest{Model: "m", APIKey: "k", Messages: []ChatTurn{{Role: "user", Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, raw, string(body))
}

func TestUpstreamError_NonErrorStatusBecomesBadGateway(t *testing.T) {
	err := &UpstreamError{Status: 302, Message: "moved"}
	assert.Equal(t, http.StatusBadGateway, err.HTTPStatus())
	assert.Equal(t, "upstream provider error (302): moved", err.Error())
}

func TestOpenAIErrorMessage(t *testing.T) {
	assert.Equal(t, "bad key", openAIErrorMessage([]byte(`{"error":{"message":"bad key"}}`)))
	assert.Equal(t, "gateway exploded", openAIErrorMessage([]byte("gateway exploded\n")))
	assert.Equal(t, "empty response body", openAIErrorMessage(nil))
}

func TestCompletionJSON(t *testing.T) {
	raw, err := completionJSON("claude-x", "hello", "", 3, 4)
	require.NoError(t, err)

	var out struct {
		Object  string `json:"object"`
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage struct {
			TotalTokens int `json:"total_tokens"`
		} `json:"usage"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "chat.completion", out.Object)
	assert.Equal(t, "claude-x", out.Model)
	require.Len(t, out.Choices, 1)
	assert.Equal(t, "assistant", out.Choices[0].Message.Role)
	assert.Equal(t, "hello", out.Choices[0].Message.Content)
	assert.Equal(t, "stop", out.Choices[0].FinishReason)
	assert.Equal(t, 7, out.Usage.TotalTokens)
}

func TestSplitSystem(t *testing.T) {
	system, rest := splitSystem([]ChatTurn{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hi"},
		{Role: "system", Content: "no emojis"},
	})
	assert.Equal(t, "be brief\n\nno emojis", system)
	assert.Equal(t, []ChatTurn{{Role: "user", Content: "hi"}}, rest)
}
