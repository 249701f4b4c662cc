package solar

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

const (
	llmProviderOpenAI = "openai"
	llmProviderGemini = "gemini"
)

// Completer sends a single system/user prompt pair to a chat model and
// returns the reply. No conversation state is kept between calls.
type Completer interface {
	Complete(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}

// NewCompleter returns the [Completer] for the configured provider
func NewCompleter(
	ctx context.Context,
	cfg *LLMConfig,
	httpClient *http.Client,
) (Completer, error) {
	logger := newComponentLogger("llm", cfg.LogLevel)
	limiter := rate.NewLimiter(rate.Limit(cfg.MaxRequestsPerSecond), 1)

	switch cfg.Provider {
	case llmProviderOpenAI:
		return newOpenAICompleter(cfg, httpClient, limiter, logger), nil
	case llmProviderGemini:
		return newGeminiCompleter(ctx, cfg, httpClient, limiter, logger)
	default:
		return nil, &StartupError{
			Component: "llm",
			Err:       fmt.Errorf("%w: %q", ErrUnknownLLMProvider, cfg.Provider),
		}
	}
}

// OpenAICompleter calls an OpenAI-compatible chat completion API (Groq,
// by default)
type OpenAICompleter struct {
	client         *openai.Client
	model          string
	logger         *slog.Logger
	requestLimiter *rate.Limiter
}

func newOpenAICompleter(
	cfg *LLMConfig,
	httpClient *http.Client,
	limiter *rate.Limiter,
	logger *slog.Logger,
) *OpenAICompleter {
	clientCfg := openai.DefaultConfig(cfg.Token)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	if httpClient != nil {
		clientCfg.HTTPClient = httpClient
	}
	return &OpenAICompleter{
		client:         openai.NewClientWithConfig(clientCfg),
		model:          cfg.Model,
		logger:         logger,
		requestLimiter: limiter,
	}
}

func (o *OpenAICompleter) Complete(
	ctx context.Context,
	systemPrompt string,
	userPrompt string,
) (string, error) {
	if err := o.requestLimiter.Wait(ctx); err != nil {
		return "", &CompletionError{Provider: llmProviderOpenAI, Err: err}
	}

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: o.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: userPrompt},
			},
		},
	)
	if err != nil {
		o.logger.ErrorContext(ctx, "chat completion failed", "model", o.model, tint.Err(err))
		return "", &CompletionError{Provider: llmProviderOpenAI, Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &CompletionError{Provider: llmProviderOpenAI, Err: ErrEmptyCompletion}
	}

	o.logger.InfoContext(
		ctx,
		"chat completion",
		"model", resp.Model,
		"elapsed", time.Since(start),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return resp.Choices[0].Message.Content, nil
}

// GeminiCompleter calls the Gemini API
type GeminiCompleter struct {
	client         *genai.Client
	model          string
	logger         *slog.Logger
	requestLimiter *rate.Limiter
}

func newGeminiCompleter(
	ctx context.Context,
	cfg *LLMConfig,
	httpClient *http.Client,
	limiter *rate.Limiter,
	logger *slog.Logger,
) (*GeminiCompleter, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.Token,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if cfg.BaseURL != "" && cfg.BaseURL != DefaultLLMBaseURL {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	model := cfg.Model
	if model == "" || model == DefaultLLMModel {
		model = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, &StartupError{Component: "llm", Err: err}
	}
	return &GeminiCompleter{
		client:         client,
		model:          model,
		logger:         logger,
		requestLimiter: limiter,
	}, nil
}

func (g *GeminiCompleter) Complete(
	ctx context.Context,
	systemPrompt string,
	userPrompt string,
) (string, error) {
	if err := g.requestLimiter.Wait(ctx); err != nil {
		return "", &CompletionError{Provider: llmProviderGemini, Err: err}
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(
		ctx,
		g.model,
		[]*genai.Content{genai.NewContentFromText(userPrompt, genai.RoleUser)},
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		},
	)
	if err != nil {
		g.logger.ErrorContext(ctx, "generate content failed", "model", g.model, tint.Err(err))
		return "", &CompletionError{Provider: llmProviderGemini, Err: err}
	}

	text := resp.Text()
	if text == "" {
		return "", &CompletionError{Provider: llmProviderGemini, Err: ErrEmptyCompletion}
	}
	g.logger.InfoContext(ctx, "generate content", "model", g.model, "elapsed", time.Since(start))
	return text, nil
}
