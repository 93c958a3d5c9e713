// Package advice generates free-text advice with a chat-completion model.
package advice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
)

var (
	ErrCredentialMissing = errors.New("advice generator credential missing")
	ErrBadCredential     = errors.New("advice generator rejected credential")
	ErrUnavailable       = errors.New("advice generator unavailable")
)

// Request is one generation call: a system instruction plus user content.
type Request struct {
	System      string
	User        string
	Temperature float32
	MaxTokens   int
}

// Generator turns a prompt into advice text.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Options configures an OpenAIGenerator.
type Options struct {
	APIKey     string
	Model      string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// OpenAIGenerator implements Generator with the OpenAI chat completions API
// or any endpoint compatible with it.
type OpenAIGenerator struct {
	client  *openai.Client
	model   string
	hasKey  bool
	timeout time.Duration
	circuit *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

func NewOpenAIGenerator(opts Options) *OpenAIGenerator {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}
	if opts.Model == "" {
		opts.Model = openai.GPT4oMini
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &OpenAIGenerator{
		client:  openai.NewClientWithConfig(cfg),
		model:   opts.Model,
		hasKey:  opts.APIKey != "",
		timeout: opts.Timeout,
		circuit: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "openai",
			MaxRequests: 1,
			Interval:    1 * time.Minute,
			Timeout:     1 * time.Minute,
		}),
		logger: opts.Logger,
	}
}

// CheckCredentials fails when no API key is configured.
func (g *OpenAIGenerator) CheckCredentials() error {
	if !g.hasKey {
		return fmt.Errorf("OPENAI_API_KEY is not set: %w", ErrCredentialMissing)
	}
	return nil
}

func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (string, error) {
	if err := g.CheckCredentials(); err != nil {
		return "", err
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.User})

	started := time.Now()
	result, err := g.circuit.Execute(func() (interface{}, error) {
		return g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       g.model,
			Messages:    messages,
			MaxTokens:   req.MaxTokens,
			Temperature: req.Temperature,
		})
	})
	if err != nil {
		return "", classify(err)
	}

	resp, ok := result.(openai.ChatCompletionResponse)
	if !ok || len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion has no choices: %w", ErrUnavailable)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("completion is empty: %w", ErrUnavailable)
	}

	g.logger.DebugContext(ctx, "advice generated",
		"model", g.model,
		"duration", time.Since(started),
		"total_tokens", resp.Usage.TotalTokens,
	)
	return text, nil
}

func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.HTTPStatusCode == http.StatusForbidden {
			return fmt.Errorf("%s: %w", apiErr.Message, ErrBadCredential)
		}
		return fmt.Errorf("status %d: %s: %w", apiErr.HTTPStatusCode, apiErr.Message, ErrUnavailable)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && (reqErr.HTTPStatusCode == http.StatusUnauthorized || reqErr.HTTPStatusCode == http.StatusForbidden) {
		return fmt.Errorf("status %d: %w", reqErr.HTTPStatusCode, ErrBadCredential)
	}
	return fmt.Errorf("%v: %w", err, ErrUnavailable)
}
