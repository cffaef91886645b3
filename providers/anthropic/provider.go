// Package anthropic adapts Anthropic's Messages API to llmprovider.Provider.
package anthropic

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	llmprovider "github.com/haowjy/meridian-stream-go"
)

// Provider implements the llmprovider.Provider interface for Anthropic (Claude) models.
type Provider struct {
	client *anthropic.Client
	logger *slog.Logger
}

type config struct {
	requestOptions []option.RequestOption
	logger         *slog.Logger
}

// Option configures a Provider.
type Option func(*config)

// WithBaseURL points the client at another endpoint (a proxy or a test server).
func WithBaseURL(url string) Option {
	return func(c *config) { c.requestOptions = append(c.requestOptions, option.WithBaseURL(url)) }
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) { c.requestOptions = append(c.requestOptions, option.WithHTTPClient(client)) }
}

// WithMaxRetries sets how often the SDK retries a failed request.
func WithMaxRetries(n int) Option {
	return func(c *config) { c.requestOptions = append(c.requestOptions, option.WithMaxRetries(n)) }
}

// WithLogger sets the provider's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// NewProvider creates a new Anthropic provider with the given API key.
func NewProvider(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, llmprovider.ErrInvalidAPIKey
	}

	cfg := config{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	client := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, cfg.requestOptions...)...)

	return &Provider{
		client: &client,
		logger: cfg.logger,
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() llmprovider.ProviderID {
	return llmprovider.ProviderAnthropic
}

// SupportsModel returns true if this provider supports the given model.
// Anthropic models start with "claude-"
func (p *Provider) SupportsModel(model string) bool {
	return strings.HasPrefix(model, "claude-")
}
