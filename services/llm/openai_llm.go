package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/awnumar/memguard"
	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("academic.llm")

// OpenAIConfig configures an OpenAI-compatible backend (OpenAI, DeepSeek,
// vLLM, ...).
type OpenAIConfig struct {
	BaseURL     string
	Model       string
	APIKey      string
	Temperature float32
	MaxTokens   int

	// RequestsPerSecond limits outgoing calls. Zero disables limiting.
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
}

type OpenAIClient struct {
	client  *openai.Client
	model   string
	temp    float32
	max     int
	limiter *rate.Limiter
	key     *memguard.Enclave
}

// NewOpenAIClient builds a client. The API key is moved into a memguard
// enclave and only decrypted per request to set the bearer header.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm model is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: api key not set", ErrExternalService)
	}

	enclave := memguard.NewEnclave([]byte(cfg.APIKey))

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	oc := openai.DefaultConfig("")
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	oc.HTTPClient = &http.Client{
		Timeout:   timeout,
		Transport: &bearerTransport{key: enclave, base: http.DefaultTransport},
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	slog.Info("Initializing OpenAI-compatible client", "model", cfg.Model, "base_url", oc.BaseURL)
	return &OpenAIClient{
		client:  openai.NewClientWithConfig(oc),
		model:   cfg.Model,
		temp:    cfg.Temperature,
		max:     cfg.MaxTokens,
		limiter: limiter,
		key:     enclave,
	}, nil
}

// Chat implements Client.
func (o *OpenAIClient) Chat(ctx context.Context, messages []Message, opts Options) (string, error) {
	ctx, span := tracer.Start(ctx, "llm.Chat")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", o.model),
		attribute.Bool("llm.json_mode", opts.JSON),
		attribute.Int("llm.messages", len(messages)),
	)

	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			span.SetStatus(codes.Error, "rate limiter")
			return "", fmt.Errorf("%w: rate limit wait: %v", ErrExternalService, err)
		}
	}

	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
		Temperature: o.temp,
		MaxTokens:   o.max,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}
	if opts.MaxTokens != nil {
		req.MaxTokens = *opts.MaxTokens
	}
	if opts.JSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	slog.Debug("Generating text via OpenAI-compatible backend", "model", o.model, "json", opts.JSON)
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chat completion failed")
		slog.Error("LLM API call failed", "error", err)
		return "", fmt.Errorf("%w: %v", ErrExternalService, err)
	}
	if len(resp.Choices) == 0 {
		span.SetStatus(codes.Error, "no choices")
		return "", fmt.Errorf("%w: backend returned no choices", ErrExternalService)
	}
	span.SetAttributes(
		attribute.Int("llm.prompt_tokens", resp.Usage.PromptTokens),
		attribute.Int("llm.completion_tokens", resp.Usage.CompletionTokens),
	)
	return resp.Choices[0].Message.Content, nil
}

// bearerTransport sets Authorization from the sealed key on every request.
type bearerTransport struct {
	key  *memguard.Enclave
	base http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	buf, err := t.key.Open()
	if err != nil {
		return nil, fmt.Errorf("open api key enclave: %w", err)
	}
	header := "Bearer " + buf.String()
	buf.Destroy()

	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", header)
	return t.base.RoundTrip(clone)
}

var _ Client = (*OpenAIClient)(nil)
