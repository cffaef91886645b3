package llmprovider

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed config/capabilities/*.yaml
var embeddedCapabilities embed.FS

// Capabilities are model metadata used for warnings, budgets and pricing.
// They never block a request: provider APIs are the source of truth, and the
// embedded data may lag behind new models. Override with
// LoadCapabilitiesFromFile or RegisterProviderCapabilities.

// ProviderCapabilities is one provider's YAML document.
type ProviderCapabilities struct {
	Provider    string `yaml:"provider"`
	Version     string `yaml:"version"`
	LastUpdated string `yaml:"last_updated"`

	Constraints ProviderConstraints        `yaml:"constraints"`
	Models      map[string]ModelCapability `yaml:"models"`
	ImageModels map[string]ImageCapability `yaml:"image_models"`
}

type ModelCapability struct {
	ContextWindow   int                `yaml:"context_window"`
	MaxOutputTokens int                `yaml:"max_output_tokens"`
	Features        ModelFeatures      `yaml:"features"`
	Thinking        ThinkingCapability `yaml:"thinking"`
	Pricing         PricingInfo        `yaml:"pricing"`
}

type ModelFeatures struct {
	Streaming bool `yaml:"streaming"`
	Tools     bool `yaml:"tools"`
	Thinking  bool `yaml:"thinking"`
	Vision    bool `yaml:"vision"`
}

// ThinkingCapability bounds the reasoning budget. A zero MaxBudget means
// unbounded. EffortToBudget maps thinking levels to token budgets.
type ThinkingCapability struct {
	MinBudget      int            `yaml:"min_budget"`
	MaxBudget      int            `yaml:"max_budget"`
	EffortToBudget map[string]int `yaml:"effort_to_budget"`
}

// PricingInfo is USD per million tokens.
type PricingInfo struct {
	InputPer1M      float64 `yaml:"input_per_1m"`
	OutputPer1M     float64 `yaml:"output_per_1m"`
	CacheReadPer1M  float64 `yaml:"cache_read_per_1m"`
	CacheWritePer1M float64 `yaml:"cache_write_per_1m"`
}

// ImageCapability describes the settings an image model accepts.
// The two flags are independent: a model may accept both, either or neither.
type ImageCapability struct {
	SupportsSize        bool `yaml:"supports_size"`
	SupportsAspectRatio bool `yaml:"supports_aspect_ratio"`
}

// defaultImageCapability applies to image models missing from the registry.
var defaultImageCapability = ImageCapability{SupportsAspectRatio: true}

// ProviderConstraints are sampling parameter ranges shared by a provider's models.
type ProviderConstraints struct {
	TemperatureMin float64 `yaml:"temperature_min"`
	TemperatureMax float64 `yaml:"temperature_max"`
	TopPMin        float64 `yaml:"top_p_min"`
	TopPMax        float64 `yaml:"top_p_max"`
	TopKMin        int     `yaml:"top_k_min"`
	TopKMax        int     `yaml:"top_k_max"`
}

// CapabilityRegistry holds capability documents keyed by provider name.
// It is safe for concurrent use.
type CapabilityRegistry struct {
	mu        sync.RWMutex
	providers map[string]*ProviderCapabilities
	logger    *slog.Logger
}

var (
	defaultCapabilities     *CapabilityRegistry
	defaultCapabilitiesOnce sync.Once
)

// GetCapabilityRegistry returns the process-wide registry, loading the
// embedded documents on first use.
func GetCapabilityRegistry() *CapabilityRegistry {
	defaultCapabilitiesOnce.Do(func() {
		defaultCapabilities = NewCapabilityRegistry(slog.Default())
		if err := defaultCapabilities.loadEmbedded(); err != nil {
			// Validation degrades to "unknown model" warnings without capabilities
			defaultCapabilities.logger.Warn("embedded capabilities not loaded", "error", err)
		}
	})
	return defaultCapabilities
}

// NewCapabilityRegistry creates an empty registry.
func NewCapabilityRegistry(logger *slog.Logger) *CapabilityRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &CapabilityRegistry{
		providers: map[string]*ProviderCapabilities{},
		logger:    logger,
	}
}

func (r *CapabilityRegistry) loadEmbedded() error {
	const dir = "config/capabilities"
	entries, err := fs.ReadDir(embeddedCapabilities, dir)
	if err != nil {
		return fmt.Errorf("list %s: %w", dir, err)
	}
	for _, entry := range entries {
		data, err := embeddedCapabilities.ReadFile(path.Join(dir, entry.Name()))
		if err == nil {
			err = r.LoadCapabilities(data)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", entry.Name(), err)
		}
	}
	return nil
}

// LoadCapabilities parses a provider YAML document and registers it under its
// provider field, replacing any previous entry.
func (r *CapabilityRegistry) LoadCapabilities(data []byte) error {
	caps := new(ProviderCapabilities)
	if err := yaml.Unmarshal(data, caps); err != nil {
		return fmt.Errorf("parse capabilities: %w", err)
	}
	if caps.Provider == "" {
		return fmt.Errorf("capabilities document has no provider")
	}

	r.RegisterProviderCapabilities(caps.Provider, caps)
	r.logger.Debug("loaded capabilities",
		"provider", caps.Provider,
		"version", caps.Version,
		"models", len(caps.Models),
		"image_models", len(caps.ImageModels))
	return nil
}

// LoadCapabilitiesFromFile registers a YAML document read from disk, in the
// same format as the embedded ones.
func (r *CapabilityRegistry) LoadCapabilitiesFromFile(name string) error {
	data, err := os.ReadFile(name)
	if err != nil {
		return fmt.Errorf("read capabilities: %w", err)
	}
	return r.LoadCapabilities(data)
}

// RegisterProviderCapabilities sets a provider's document, replacing any
// previous one.
func (r *CapabilityRegistry) RegisterProviderCapabilities(provider string, caps *ProviderCapabilities) {
	r.mu.Lock()
	r.providers[provider] = caps
	r.mu.Unlock()
}

func (r *CapabilityRegistry) GetProviderCapabilities(provider string) (*ProviderCapabilities, error) {
	r.mu.RLock()
	caps := r.providers[provider]
	r.mu.RUnlock()
	if caps == nil {
		return nil, &ModelError{Provider: provider, Reason: "provider has no capabilities", Err: ErrNoSuchProvider}
	}
	return caps, nil
}

// GetModelCapability returns a copy of the model's entry. Unknown models give
// a *ModelError wrapping ErrInvalidModel.
func (r *CapabilityRegistry) GetModelCapability(provider, model string) (*ModelCapability, error) {
	caps, err := r.GetProviderCapabilities(provider)
	if err != nil {
		return nil, err
	}
	mc, ok := caps.Models[model]
	if !ok {
		return nil, &ModelError{Model: model, Provider: provider, Reason: "not in capabilities", Err: ErrInvalidModel}
	}
	return &mc, nil
}

func (r *CapabilityRegistry) GetImageCapability(provider, model string) (*ImageCapability, error) {
	caps, err := r.GetProviderCapabilities(provider)
	if err != nil {
		return nil, err
	}
	ic, ok := caps.ImageModels[model]
	if !ok {
		return nil, &ModelError{Model: model, Provider: provider, Reason: "not in image capabilities", Err: ErrInvalidModel}
	}
	return &ic, nil
}

// features returns the model's feature flags, all false for unknown models.
func (r *CapabilityRegistry) features(provider, model string) ModelFeatures {
	if mc, err := r.GetModelCapability(provider, model); err == nil {
		return mc.Features
	}
	return ModelFeatures{}
}

func (r *CapabilityRegistry) SupportsModel(provider, model string) bool {
	_, err := r.GetModelCapability(provider, model)
	return err == nil
}

func (r *CapabilityRegistry) SupportsTools(provider, model string) bool {
	return r.features(provider, model).Tools
}

func (r *CapabilityRegistry) SupportsThinking(provider, model string) bool {
	return r.features(provider, model).Thinking
}

// GetThinkingBudgetRange returns the model's budget bounds. A zero max means
// unbounded.
func (r *CapabilityRegistry) GetThinkingBudgetRange(provider, model string) (lo, hi int, err error) {
	mc, err := r.GetModelCapability(provider, model)
	if err != nil {
		return 0, 0, err
	}
	return mc.Thinking.MinBudget, mc.Thinking.MaxBudget, nil
}

// ConvertEffortToBudget maps a thinking level to a token budget from the
// model's table, falling back to the built-in budgets when the model or the
// level is missing from it. Unknown levels are an error.
func (r *CapabilityRegistry) ConvertEffortToBudget(provider, model, effort string) (int, error) {
	fallback, ok := defaultThinkingBudgets[effort]
	if !ok {
		return 0, &ValidationError{Field: "thinking_level", Value: effort, Reason: "must be low, medium or high", Err: ErrInvalidRequest}
	}

	mc, err := r.GetModelCapability(provider, model)
	if err != nil {
		r.logger.Warn("thinking budget fallback", "provider", provider, "model", model, "effort", effort, "budget", fallback, "error", err)
		return fallback, nil
	}
	if budget, ok := mc.Thinking.EffortToBudget[effort]; ok {
		return budget, nil
	}
	r.logger.Warn("thinking budget fallback", "provider", provider, "model", model, "effort", effort, "budget", fallback)
	return fallback, nil
}

var defaultThinkingBudgets = map[string]int{
	"low":    2000,
	"medium": 5000,
	"high":   12000,
}

// ImageRequest holds the settings of an image generation call that depend on
// model capabilities. Empty fields are unset.
type ImageRequest struct {
	Model       string
	Size        string // "1024x1024"
	AspectRatio string // "16:9"
}

// ValidateImageRequest returns warnings for image settings the model does not
// accept. Size and aspect ratio are checked independently. Models missing from
// the registry are assumed to accept an aspect ratio but no explicit size.
func (r *CapabilityRegistry) ValidateImageRequest(provider string, req ImageRequest) []ValidationWarning {
	var warnings []ValidationWarning

	imageCap, err := r.GetImageCapability(provider, req.Model)
	if err != nil {
		// Unknown models are assumed to take an aspect ratio but no size.
		warnings = append(warnings, ValidationWarning{
			Code:     WarningCodeModelUnknown,
			Category: "image",
			Field:    "model",
			Value:    req.Model,
			Message:  fmt.Sprintf("Image model %s not found in %s capabilities (capabilities may be outdated)", req.Model, provider),
			Severity: SeverityInfo,
		})
		imageCap = &defaultImageCapability
	}

	if req.Size != "" && !imageCap.SupportsSize {
		warnings = append(warnings, ValidationWarning{
			Code:     WarningCodeImageSizeUnsupported,
			Category: "image",
			Field:    "size",
			Value:    req.Size,
			Message:  fmt.Sprintf("Model %s does not support the size setting", req.Model),
			Severity: SeverityWarning,
		})
	}

	if req.AspectRatio != "" && !imageCap.SupportsAspectRatio {
		warnings = append(warnings, ValidationWarning{
			Code:     WarningCodeImageAspectRatioUnsupported,
			Category: "image",
			Field:    "aspect_ratio",
			Value:    req.AspectRatio,
			Message:  fmt.Sprintf("Model %s does not support the aspect ratio setting", req.Model),
			Severity: SeverityWarning,
		})
	}

	return warnings
}

// LoadCapabilitiesFromFile loads a YAML document into the default registry.
func LoadCapabilitiesFromFile(name string) error {
	return GetCapabilityRegistry().LoadCapabilitiesFromFile(name)
}

// RegisterProviderCapabilities sets a provider's document in the default registry.
func RegisterProviderCapabilities(provider string, caps *ProviderCapabilities) {
	GetCapabilityRegistry().RegisterProviderCapabilities(provider, caps)
}

// ValidateImageRequest checks an image request against the global registry.
func ValidateImageRequest(provider string, req ImageRequest) []ValidationWarning {
	return GetCapabilityRegistry().ValidateImageRequest(provider, req)
}
