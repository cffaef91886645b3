// Package openrouter adapts OpenRouter's OpenAI-compatible chat completions
// API to llmprovider.Provider.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	llmprovider "github.com/haowjy/meridian-stream-go"
)

const defaultBaseURL = "https://openrouter.ai/api/v1"

// Provider streams chat completions from OpenRouter. Models are addressed as
// "vendor/model"; an unknown one comes back as a *llmprovider.ModelError
// wrapping ErrInvalidModel.
type Provider struct {
	key     string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithBaseURL points the provider at another endpoint (a proxy or a test server).
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) { p.client = client }
}

// WithLogger sets the provider's logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// NewProvider returns a provider authenticating with apiKey.
func NewProvider(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openrouter: %w", llmprovider.ErrInvalidAPIKey)
	}

	p := &Provider{
		key:     apiKey,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 2 * time.Minute},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Provider) Name() llmprovider.ProviderID { return llmprovider.ProviderOpenRouter }

// SupportsModel accepts any "vendor/model" id, including "openrouter/auto".
// The catalog is too large to embed; OpenRouter rejects unknown ids itself.
func (p *Provider) SupportsModel(model string) bool {
	vendor, name, ok := strings.Cut(model, "/")
	return ok && vendor != "" && name != ""
}

// rejectSearchTool fails requests offering the search tool. OpenRouter only
// searches through :online models, which do it implicitly.
func (p *Provider) rejectSearchTool(req *llmprovider.GenerateRequest) error {
	if req.Params == nil {
		return nil
	}
	for _, tool := range req.Params.Tools {
		if name := tool.Name(); name == "search" || name == "web_search" {
			return &llmprovider.ModelError{
				Model:    req.Model,
				Provider: p.Name().String(),
				Reason:   "web_search is not supported with OpenRouter; use an :online model or the Anthropic provider",
				Err:      llmprovider.ErrInvalidModel,
			}
		}
	}
	return nil
}

// newStreamRequest encodes a streaming chat completions call.
func (p *Provider) newStreamRequest(ctx context.Context, body *ChatCompletionRequest) (*http.Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header = http.Header{
		"Authorization": {"Bearer " + p.key},
		"Content-Type":  {"application/json"},
		"Accept":        {"text/event-stream"},
	}
	return req, nil
}

// apiError is the error object OpenRouter returns, both as a response body
// and inside a stream chunk.
type apiError struct {
	Code     any            `json:"code"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// responseError turns a non-200 response into a library error, preferring
// the message in OpenRouter's error envelope over the raw body.
func (p *Provider) responseError(resp *http.Response, model string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var envelope struct {
		Error apiError `json:"error"`
	}
	message := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &envelope) == nil && envelope.Error.Message != "" {
		message = envelope.Error.Message
	}

	return statusError(p.Name().String(), resp.StatusCode, message, model)
}

// statusError maps an HTTP status to a library error.
func statusError(provider string, status int, message, model string) error {
	perr := &llmprovider.ProviderError{
		Provider:   provider,
		StatusCode: status,
		Message:    message,
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		perr.Err = llmprovider.ErrInvalidAPIKey
	case status == http.StatusPaymentRequired:
		perr.Message = "insufficient credits: " + message
		perr.Err = llmprovider.ErrProviderUnavailable
	case status == http.StatusRequestTimeout:
		perr.Retryable = true
		perr.Err = llmprovider.ErrProviderUnavailable
	case status == http.StatusTooManyRequests:
		perr.Retryable = true
		perr.Err = llmprovider.ErrRateLimited
	case status == http.StatusNotFound:
		return &llmprovider.ModelError{
			Model:    model,
			Provider: provider,
			Reason:   message,
			Err:      errors.Join(llmprovider.ErrInvalidModel, perr),
		}
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		perr.Err = llmprovider.ErrInvalidRequest
	default:
		perr.Retryable = status >= http.StatusInternalServerError
		perr.Err = llmprovider.ErrProviderUnavailable
	}
	return perr
}
