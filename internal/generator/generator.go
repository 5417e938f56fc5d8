// Package generator produces answers from a context block with an
// OpenAI-compatible chat completion API (OpenRouter by default).
package generator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"ragchat/internal/domain"
)

// Fallback is the sentence the model is told to use when the context has no answer.
const Fallback = "The answer is not available in the provided content."

const (
	DefaultBaseURL     = "https://openrouter.ai/api/v1"
	DefaultModel       = "mistralai/mistral-7b-instruct"
	DefaultTemperature = 0.1
	DefaultMaxTokens   = 1000
)

type Config struct {
	BaseURL     string
	APIKeyEnv   string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Client implements domain.Generator.
type Client struct {
	client      sdk.Client
	model       string
	temperature float64
	maxTokens   int
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENROUTER_API_KEY"
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("%w: env %s is empty", domain.ErrMissingCredential, cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	t := cfg.Timeout
	if t == 0 {
		t = 60 * time.Second
	}
	return &Client{
		client: sdk.NewClient(
			option.WithAPIKey(key),
			option.WithBaseURL(cfg.BaseURL),
			option.WithRequestTimeout(t),
		),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

// Generate asks the model to answer query from contextText only.
func (c *Client) Generate(ctx context.Context, query, contextText string, mode domain.Mode) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, sdk.ChatCompletionNewParams{
		Model: sdk.ChatModel(c.model),
		Messages: []sdk.ChatCompletionMessageParamUnion{
			sdk.SystemMessage(SystemPrompt(mode)),
			sdk.UserMessage(UserPrompt(query, contextText)),
		},
		Temperature: sdk.Float(c.temperature),
		MaxTokens:   sdk.Int(int64(c.maxTokens)),
	})
	if err != nil {
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden) {
			return "", fmt.Errorf("%w: chat api rejected key: %v", domain.ErrMissingCredential, err)
		}
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// SystemPrompt restricts the model to the supplied context.
func SystemPrompt(mode domain.Mode) string {
	source := "the provided textbook content"
	missing := "the provided content"
	if mode == domain.ModeSelectedText {
		source = "the provided selected text context"
		missing = "the provided text"
	}
	return "You are a helpful assistant for the Physical AI & Humanoid Robotics textbook.\n" +
		"Answer the user's question using ONLY " + source + ".\n" +
		"Do NOT use any external knowledge or your general training.\n" +
		"If the answer is not available in " + missing + ", respond with:\n" +
		"'" + Fallback + "'"
}

func UserPrompt(query, contextText string) string {
	return "Context: " + contextText + "\n\n" +
		"Question: " + query + "\n\n" +
		"Please provide a clear, educational response based only on the context provided."
}
