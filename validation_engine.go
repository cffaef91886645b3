package llmprovider

import (
	"slices"
	"sync"
)

// ValidationEngine runs an ordered set of rules against step requests.
type ValidationEngine struct {
	registry *CapabilityRegistry

	mu    sync.RWMutex
	rules []ValidationRule
}

var (
	globalValidationEngine     *ValidationEngine
	globalValidationEngineOnce sync.Once
)

// GetValidationEngine returns the engine bound to the global capability registry.
func GetValidationEngine() *ValidationEngine {
	globalValidationEngineOnce.Do(func() {
		globalValidationEngine = NewValidationEngine(GetCapabilityRegistry())
	})
	return globalValidationEngine
}

// NewValidationEngine creates an engine with the built-in rules, resolving
// capabilities from registry.
func NewValidationEngine(registry *CapabilityRegistry) *ValidationEngine {
	if registry == nil {
		registry = GetCapabilityRegistry()
	}
	return &ValidationEngine{
		registry: registry,
		rules:    slices.Clone(defaultRules),
	}
}

// AddRule appends a rule; it runs after every rule already present.
func (ve *ValidationEngine) AddRule(rule ValidationRule) {
	ve.mu.Lock()
	defer ve.mu.Unlock()
	ve.rules = append(ve.rules, rule)
}

// RemoveRule removes the rule called name and reports whether it existed.
func (ve *ValidationEngine) RemoveRule(name string) bool {
	ve.mu.Lock()
	defer ve.mu.Unlock()

	n := len(ve.rules)
	ve.rules = slices.DeleteFunc(ve.rules, func(r ValidationRule) bool { return r.Name() == name })
	return len(ve.rules) != n
}

// Validate runs every rule and returns the warnings, most severe first.
// Warnings of equal severity keep rule order.
func (ve *ValidationEngine) Validate(provider string, req *GenerateRequest) []ValidationWarning {
	if req == nil {
		return nil
	}
	target := ve.target(provider, req)

	ve.mu.RLock()
	rules := slices.Clone(ve.rules)
	ve.mu.RUnlock()

	var warnings []ValidationWarning
	for _, rule := range rules {
		warnings = append(warnings, rule.Check(target)...)
	}
	slices.SortStableFunc(warnings, func(a, b ValidationWarning) int {
		return a.Severity.rank() - b.Severity.rank()
	})
	return warnings
}

func (ve *ValidationEngine) target(provider string, req *GenerateRequest) *ValidationTarget {
	t := &ValidationTarget{Provider: provider, Request: req}
	if caps, err := ve.registry.GetProviderCapabilities(provider); err == nil {
		t.Constraints = &caps.Constraints
	}
	if model, err := ve.registry.GetModelCapability(provider, req.Model); err == nil {
		t.Model = model
	}
	return t
}

// GetValidationWarnings validates req with the global engine.
func GetValidationWarnings(provider string, req *GenerateRequest) []ValidationWarning {
	return GetValidationEngine().Validate(provider, req)
}

// HasErrors reports whether any warning has SeverityError.
func HasErrors(warnings []ValidationWarning) bool {
	return slices.ContainsFunc(warnings, func(w ValidationWarning) bool { return w.Severity == SeverityError })
}

func filterWarnings[K comparable](warnings []ValidationWarning, key func(ValidationWarning) K, keys []K) []ValidationWarning {
	filtered := make([]ValidationWarning, 0, len(warnings))
	for _, w := range warnings {
		if slices.Contains(keys, key(w)) {
			filtered = append(filtered, w)
		}
	}
	return filtered
}

// FilterWarningsBySeverity returns warnings matching the specified severities
func FilterWarningsBySeverity(warnings []ValidationWarning, severities ...Severity) []ValidationWarning {
	return filterWarnings(warnings, func(w ValidationWarning) Severity { return w.Severity }, severities)
}

// FilterWarningsByCategory returns warnings matching the specified categories
func FilterWarningsByCategory(warnings []ValidationWarning, categories ...string) []ValidationWarning {
	return filterWarnings(warnings, func(w ValidationWarning) string { return w.Category }, categories)
}

// FilterWarningsByCode returns warnings matching the specified codes
func FilterWarningsByCode(warnings []ValidationWarning, codes ...WarningCode) []ValidationWarning {
	return filterWarnings(warnings, func(w ValidationWarning) WarningCode { return w.Code }, codes)
}
