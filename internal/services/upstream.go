package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/deedox/platform/internal/config"
	"github.com/deedox/platform/internal/models"
	"github.com/google/uuid"
	"github.com/ollama/ollama/api"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// UpstreamRequest is one chat completion call, already authorised.
type UpstreamRequest struct {
	Model       string
	APIKey      string
	Messages    []ChatTurn
	Temperature *float32
	MaxTokens   int
}

// Upstream sends a single completion request. The returned body is an
// OpenAI chat.completion object. Non-2xx provider answers are *UpstreamError.
type Upstream interface {
	Complete(ctx context.Context, req *UpstreamRequest) (json.RawMessage, error)
}

// DefaultUpstreams wires one Upstream per provider.
func DefaultUpstreams(cfg *config.AIConfig) map[string]Upstream {
	return map[string]Upstream{
		models.ProviderOpenAI:    NewOpenAIUpstream(cfg.BaseURL, nil),
		models.ProviderAnthropic: &AnthropicUpstream{BaseURL: cfg.AnthropicBaseURL},
		models.ProviderGemini:    &GeminiUpstream{},
		models.ProviderOllama:    &OllamaUpstream{BaseURL: cfg.OllamaURL},
	}
}

// OpenAIUpstream posts to an OpenAI-compatible /chat/completions endpoint and
// passes the provider's body through untouched.
type OpenAIUpstream struct {
	baseURL string
	client  *http.Client
}

func NewOpenAIUpstream(baseURL string, client *http.Client) *OpenAIUpstream {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &OpenAIUpstream{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (u *OpenAIUpstream) Complete(ctx context.Context, req *UpstreamRequest) (json.RawMessage, error) {
	body := openai.ChatCompletionRequest{
		Model:     req.Model,
		Messages:  make([]openai.ChatCompletionMessage, len(req.Messages)),
		MaxTokens: req.MaxTokens,
	}
	for i, m := range req.Messages {
		body.Messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	if req.Temperature != nil {
		body.Temperature = *req.Temperature
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)

	resp, err := u.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{Status: resp.StatusCode, Message: openAIErrorMessage(raw)}
	}
	if !json.Valid(raw) {
		return nil, &UpstreamError{Status: http.StatusBadGateway, Message: "provider returned invalid JSON"}
	}
	return raw, nil
}

func openAIErrorMessage(raw []byte) string {
	var errResp openai.ErrorResponse
	if err := json.Unmarshal(raw, &errResp); err == nil && errResp.Error != nil && errResp.Error.Message != "" {
		return errResp.Error.Message
	}
	msg := strings.TrimSpace(string(raw))
	if msg == "" {
		return "empty response body"
	}
	return truncate(msg, 500)
}

// completionJSON renders a non-OpenAI answer as a chat.completion object.
func completionJSON(model, content, finishReason string, promptTokens, completionTokens int) (json.RawMessage, error) {
	if finishReason == "" {
		finishReason = string(openai.FinishReasonStop)
	}
	resp := openai.ChatCompletionResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []openai.ChatCompletionChoice{{
			Index:        0,
			Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content},
			FinishReason: openai.FinishReason(finishReason),
		}},
		Usage: openai.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	}
	return json.Marshal(resp)
}

// splitSystem separates system messages, which Anthropic and Gemini take
// out of band.
func splitSystem(msgs []ChatTurn) (string, []ChatTurn) {
	var system []string
	var rest []ChatTurn
	for _, m := range msgs {
		if m.Role == openai.ChatMessageRoleSystem {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}

type AnthropicUpstream struct {
	BaseURL string
}

func (u *AnthropicUpstream) Complete(ctx context.Context, req *UpstreamRequest) (json.RawMessage, error) {
	opts := []option.RequestOption{option.WithAPIKey(req.APIKey), option.WithMaxRetries(0)}
	if u.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(u.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	maxTokens := int64(req.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 4096
	}

	system, rest := splitSystem(req.Messages)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages:  make([]anthropic.MessageParam, 0, len(rest)),
	}
	for _, m := range rest {
		if m.Role == openai.ChatMessageRoleAssistant {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		} else {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(float64(*req.Temperature))
	}

	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, &UpstreamError{Status: apiErr.StatusCode, Message: err.Error()}
		}
		return nil, fmt.Errorf("anthropic request: %w", err)
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	return completionJSON(req.Model, content.String(), anthropicFinishReason(string(resp.StopReason)),
		int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens))
}

func anthropicFinishReason(stop string) string {
	if stop == "max_tokens" {
		return string(openai.FinishReasonLength)
	}
	return string(openai.FinishReasonStop)
}

type GeminiUpstream struct{}

func (u *GeminiUpstream) Complete(ctx context.Context, req *UpstreamRequest) (json.RawMessage, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  req.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	system, rest := splitSystem(req.Messages)
	contents := make([]*genai.Content, 0, len(rest))
	for _, m := range rest {
		role := genai.Role(genai.RoleUser)
		if m.Role == openai.ChatMessageRoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	genCfg := &genai.GenerateContentConfig{}
	if system != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if req.Temperature != nil {
		t := *req.Temperature
		genCfg.Temperature = &t
	}
	if req.MaxTokens > 0 {
		genCfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	resp, err := client.Models.GenerateContent(ctx, req.Model, contents, genCfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return nil, &UpstreamError{Status: apiErr.Code, Message: apiErr.Message}
		}
		return nil, fmt.Errorf("gemini request: %w", err)
	}

	var promptTokens, outputTokens int
	if resp.UsageMetadata != nil {
		promptTokens = int(resp.UsageMetadata.PromptTokenCount)
		outputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return completionJSON(req.Model, resp.Text(), "", promptTokens, outputTokens)
}

// OllamaUpstream talks to a local Ollama server; the API key is not sent.
type OllamaUpstream struct {
	BaseURL string
}

func (u *OllamaUpstream) Complete(ctx context.Context, req *UpstreamRequest) (json.RawMessage, error) {
	baseURL := u.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama base URL: %w", err)
	}
	client := api.NewClient(parsed, http.DefaultClient)

	chatReq := &api.ChatRequest{
		Model:    req.Model,
		Messages: make([]api.Message, len(req.Messages)),
		Options:  map[string]interface{}{},
	}
	for i, m := range req.Messages {
		chatReq.Messages[i] = api.Message{Role: m.Role, Content: m.Content}
	}
	if req.Temperature != nil {
		chatReq.Options["temperature"] = *req.Temperature
	}
	if req.MaxTokens > 0 {
		chatReq.Options["num_predict"] = req.MaxTokens
	}

	var content strings.Builder
	var promptTokens, outputTokens int
	doneReason := ""
	err = client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		if resp.Done {
			promptTokens = resp.PromptEvalCount
			outputTokens = resp.EvalCount
			doneReason = resp.DoneReason
		}
		return nil
	})
	if err != nil {
		var statusErr api.StatusError
		if errors.As(err, &statusErr) {
			return nil, &UpstreamError{Status: statusErr.StatusCode, Message: statusErr.ErrorMessage}
		}
		return nil, fmt.Errorf("ollama request: %w", err)
	}

	finish := ""
	if doneReason == "length" {
		finish = string(openai.FinishReasonLength)
	}
	return completionJSON(req.Model, content.String(), finish, promptTokens, outputTokens)
}
