package anthropic

import (
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	llmprovider "github.com/haowjy/meridian-stream-go"
)

// buildMessageParams constructs Anthropic API parameters from a GenerateRequest.
func buildMessageParams(req *llmprovider.GenerateRequest) (anthropic.MessageNewParams, error) {
	messages, err := convertToAnthropicMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("failed to convert messages: %w", err)
	}

	params := req.Params
	if params == nil {
		params = &llmprovider.RequestParams{}
	}

	apiParams := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  messages,
		MaxTokens: int64(params.GetMaxTokens(4096)),
	}

	if params.Temperature != nil {
		apiParams.Temperature = anthropic.Float(*params.Temperature)
	}
	if params.TopP != nil {
		apiParams.TopP = anthropic.Float(*params.TopP)
	}
	if params.TopK != nil {
		apiParams.TopK = anthropic.Int(int64(*params.TopK))
	}
	if len(params.Stop) > 0 {
		apiParams.StopSequences = params.Stop
	}
	if params.System != nil {
		apiParams.System = []anthropic.TextBlockParam{{Text: *params.System}}
	}

	if params.ThinkingEnabled != nil && *params.ThinkingEnabled {
		budget := thinkingBudget(req.Model, params)
		// max_tokens bounds the answer; the API counts the budget inside it.
		if int64(budget) >= apiParams.MaxTokens {
			apiParams.MaxTokens += int64(budget)
		}
		apiParams.Thinking = anthropic.ThinkingConfigParamOfEnabled(int64(budget))
	}

	tools, err := convertToolsToAnthropicTools(params.Tools)
	if err != nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("failed to convert tools: %w", err)
	}
	apiParams.Tools = tools

	choice, err := convertToolChoice(params.ToolChoice)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}
	if choice != nil {
		apiParams.ToolChoice = *choice
	}

	return apiParams, nil
}

// thinkingBudget resolves the token budget: the explicit budget, else the
// model's table for the level (medium when unset), clamped to the model's
// range when the registry knows it.
func thinkingBudget(model string, params *llmprovider.RequestParams) int {
	registry := llmprovider.GetCapabilityRegistry()
	provider := llmprovider.ProviderAnthropic.String()

	var budget int
	if params.ThinkingBudget != nil {
		budget = *params.ThinkingBudget
	} else {
		level := "medium"
		if params.ThinkingLevel != nil {
			level = *params.ThinkingLevel
		}
		b, err := registry.ConvertEffortToBudget(provider, model, level)
		if err != nil {
			b, _ = registry.ConvertEffortToBudget(provider, model, "medium")
		}
		budget = b
	}

	if lo, hi, err := registry.GetThinkingBudgetRange(provider, model); err == nil {
		budget = max(budget, lo)
		if hi > 0 {
			budget = min(budget, hi)
		}
	}
	return budget
}
