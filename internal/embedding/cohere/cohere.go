package cohere

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
	"github.com/cohere-ai/cohere-go/v2/core"
	"github.com/cohere-ai/cohere-go/v2/option"
	"golang.org/x/time/rate"

	"ragchat/internal/domain"
)

const (
	DefaultBaseURL = "https://api.cohere.com"
	DefaultModel   = "embed-english-v3.0"
)

// Client is a Cohere embeddings client implementing domain.Embedder. It does
// not retry; failures are returned as *TransientError when a later attempt may
// succeed so the caller can apply its own backoff.
type Client struct {
	client    *cohereclient.Client
	model     string
	dimension int
	limiter   *rate.Limiter
}

// Config configures the Cohere embeddings client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Dimension int
	Timeout   time.Duration
	// MinInterval spaces out consecutive requests. Zero disables pacing.
	MinInterval time.Duration
}

// TransientError is a failure worth retrying, such as a 429 or 5xx response.
type TransientError struct {
	Status     int
	RetryAfter time.Duration
	Err        error
}

func (e *TransientError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("cohere embed transient failure (%d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("cohere embed transient failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// RetryDelay is the server-requested wait, zero when none was given.
func (e *TransientError) RetryDelay() time.Duration { return e.RetryAfter }

// NewClient creates a new embeddings client using the provided configuration.
// SDK retries are disabled; the ingestion orchestrator owns the retry policy.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "COHERE_API_KEY"
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("%w: env %s is empty", domain.ErrMissingCredential, cfg.APIKeyEnv)
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("%w: cohere dimension must be positive", domain.ErrConfiguration)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	t := cfg.Timeout
	if t == 0 {
		t = 60 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.MinInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
	}
	httpClient := &http.Client{Timeout: t, Transport: hintTransport{base: http.DefaultTransport}}
	return &Client{
		client: cohereclient.NewClient(
			option.WithToken(key),
			option.WithBaseURL(cfg.BaseURL),
			option.WithHTTPClient(httpClient),
			option.WithMaxAttempts(1),
		),
		model:     cfg.Model,
		dimension: cfg.Dimension,
		limiter:   limiter,
	}, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "cohere" }

// Dimension returns the dimensionality the configured model produces.
func (c *Client) Dimension() int { return c.dimension }

// EmbedDocuments embeds texts with the document input type.
func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return c.embed(ctx, texts, cohere.EmbedInputTypeSearchDocument)
}

// EmbedQuery embeds a single query with the query input type.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.embed(ctx, []string{text}, cohere.EmbedInputTypeSearchQuery)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *Client) embed(ctx context.Context, texts []string, inputType cohere.EmbedInputType) ([][]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var hint time.Duration
	resp, err := c.client.Embed(context.WithValue(ctx, hintKey{}, &hint), &cohere.EmbedRequest{
		Texts:     texts,
		Model:     cohere.String(c.model),
		InputType: inputType.Ptr(),
	})
	if err != nil {
		return nil, classify(ctx, err, hint)
	}
	if resp.EmbeddingsFloats == nil {
		return nil, fmt.Errorf("cohere returned %q embeddings, want floats", resp.ResponseType)
	}
	raw := resp.EmbeddingsFloats.Embeddings
	if len(raw) != len(texts) {
		return nil, fmt.Errorf("cohere returned %d embeddings for %d texts", len(raw), len(texts))
	}
	out := make([][]float32, len(raw))
	for i, v := range raw {
		if err := domain.CheckDimension(len(v), c.dimension); err != nil {
			return nil, err
		}
		vec := make([]float32, len(v))
		for j, x := range v {
			vec[j] = float32(x)
		}
		out[i] = vec
	}
	return out, nil
}

// classify maps SDK errors onto the retry taxonomy: 429 and 5xx are
// transient, rejected keys are fatal, transport failures are transient.
func classify(ctx context.Context, err error, hint time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var apiErr *core.APIError
	if !errors.As(err, &apiErr) {
		return &TransientError{Err: err}
	}
	switch code := apiErr.StatusCode; {
	case code == http.StatusTooManyRequests || code >= 500:
		return &TransientError{Status: code, RetryAfter: hint, Err: err}
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: cohere rejected api key: %v", domain.ErrMissingCredential, err)
	default:
		return fmt.Errorf("cohere embed failed: %w", err)
	}
}

type hintKey struct{}

// hintTransport copies the Retry-After header of each response into the
// *time.Duration stored under hintKey in the request context. The SDK error
// values do not carry response headers.
type hintTransport struct {
	base http.RoundTripper
}

func (t hintTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err == nil {
		if h, ok := req.Context().Value(hintKey{}).(*time.Duration); ok {
			*h = retryAfter(resp.Header.Get("Retry-After"))
		}
	}
	return resp, err
}

// retryAfter parses a Retry-After header given in seconds.
func retryAfter(h string) time.Duration {
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
