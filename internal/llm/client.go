// Package llm talks to the hosted chat model through its OpenAI-compatible API.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"ragchat/internal/domain"
)

const (
	// DefaultBaseURL is Gemini's OpenAI-compatible endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"
	DefaultModel   = "gemini-2.5-flash"

	probePrompt = "Test"
)

// Config selects the model and call policy.
type Config struct {
	BaseURL     string
	Model       string
	Timeout     time.Duration
	MaxRetries  int
	Temperature float32
}

// Client implements domain.ChatModel for one API key.
type Client struct {
	client     *openai.Client
	model      string
	timeout    time.Duration
	maxRetries int
	temp       float32
	log        *zap.Logger
}

func NewClient(apiKey string, cfg Config, log *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if log == nil {
		log = zap.NewNop()
	}
	oc := openai.DefaultConfig(apiKey)
	oc.BaseURL = cfg.BaseURL
	oc.HTTPClient = &http.Client{}
	return &Client{
		client:     openai.NewClientWithConfig(oc),
		model:      cfg.Model,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		temp:       cfg.Temperature,
		log:        log.With(zap.String("model", cfg.Model)),
	}
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

// Generate sends the conversation and returns the model's reply. Each
// attempt is bounded by the configured timeout; every failure matches
// domain.ErrGeneration, and a refused key also matches domain.ErrUnauthorized.
func (c *Client) Generate(ctx context.Context, messages []domain.ChatMessage) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    toOpenAI(messages),
		Temperature: c.temp,
	}
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		text, err := c.complete(ctx, req)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !Retryable(err) || attempt == c.maxRetries {
			break
		}
		c.log.Warn("chat completion failed, retrying", zap.Int("attempt", attempt+1), zap.Error(err))
		if err := Sleep(ctx, RetryDelay(attempt)); err != nil {
			lastErr = err
			break
		}
	}
	c.log.Error("chat completion failed", zap.Error(lastErr))
	if IsUnauthorized(lastErr) {
		return "", fmt.Errorf("%w: %w: %w", domain.ErrGeneration, domain.ErrUnauthorized, lastErr)
	}
	return "", domain.GenerationFailure(lastErr)
}

func (c *Client) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	c.log.Debug("sending chat completion", zap.Int("messages", len(req.Messages)))
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("model returned no choices")
	}
	c.log.Debug("received chat completion", zap.String("finish_reason", string(resp.Choices[0].FinishReason)))
	return resp.Choices[0].Message.Content, nil
}

// Probe makes the single trivial round-trip used to validate a key.
func Probe(ctx context.Context, model domain.ChatModel) error {
	_, err := model.Generate(ctx, []domain.ChatMessage{domain.UserMessage(probePrompt)})
	return err
}

func toOpenAI(messages []domain.ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case domain.RoleAI:
			role = openai.ChatMessageRoleAssistant
		case domain.RoleSystem:
			role = openai.ChatMessageRoleSystem
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}
