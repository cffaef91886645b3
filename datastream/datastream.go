// Package datastream implements the line-oriented data stream protocol used to
// carry generation parts between a server and its clients.
//
// Each frame is a single line "<code>:<json>\n" where code identifies the part
// type and json is its payload:
//
//	0  text delta          "text"
//	g  reasoning delta     "text"
//	j  reasoning signature {"signature":"..."}
//	i  redacted reasoning  {"data":"..."}
//	h  source              {"sourceType":"url","id":"...","url":"...","title":"..."}
//	b  tool call start     {"toolCallId":"...","toolName":"..."}
//	c  tool call delta     {"toolCallId":"...","argsTextDelta":"..."}
//	9  tool call           {"toolCallId":"...","toolName":"...","args":{...}}
//	a  tool result         {"toolCallId":"...","result":...}
//	8  annotations         [...]
//	2  data                [...]
//	f  step start          {"messageId":"..."}
//	e  step finish         {"finishReason":"...","usage":{...},"isContinued":false}
//	d  finish              {"finishReason":"...","usage":{...}}
//	3  error               "message"
package datastream

import (
	"encoding/json"

	llmprovider "github.com/haowjy/meridian-stream-go"
)

// Frame type codes.
const (
	CodeText               = '0'
	CodeReasoning          = 'g'
	CodeReasoningSignature = 'j'
	CodeRedactedReasoning  = 'i'
	CodeSource             = 'h'
	CodeToolCallStart      = 'b'
	CodeToolCallDelta      = 'c'
	CodeToolCall           = '9'
	CodeToolResult         = 'a'
	CodeAnnotations        = '8'
	CodeData               = '2'
	CodeStepStart          = 'f'
	CodeStepFinish         = 'e'
	CodeFinish             = 'd'
	CodeError              = '3'
)

// HeaderName and HeaderValue mark an HTTP response as a data stream.
const (
	HeaderName  = "X-Vercel-AI-Data-Stream"
	HeaderValue = "v1"
)

type wireUsage struct {
	PromptTokens     *float64 `json:"promptTokens"`
	CompletionTokens *float64 `json:"completionTokens"`
}

// toUsage accepts null token counts, which producers send for unknown usage.
func (w *wireUsage) toUsage() llmprovider.Usage {
	if w == nil {
		return llmprovider.Usage{}
	}
	var prompt, completion int
	if w.PromptTokens != nil {
		prompt = int(*w.PromptTokens)
	}
	if w.CompletionTokens != nil {
		completion = int(*w.CompletionTokens)
	}
	return llmprovider.NewUsage(prompt, completion)
}

func fromUsage(u llmprovider.Usage) *wireUsage {
	prompt, completion := float64(u.PromptTokens), float64(u.CompletionTokens)
	return &wireUsage{PromptTokens: &prompt, CompletionTokens: &completion}
}

type wireToolCallStart struct {
	ToolCallID string `json:"toolCallId"`
	ToolName   string `json:"toolName"`
}

type wireToolCallDelta struct {
	ToolCallID    string `json:"toolCallId"`
	ArgsTextDelta string `json:"argsTextDelta"`
}

type wireToolCall struct {
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Args       json.RawMessage `json:"args"`
}

type wireToolResult struct {
	ToolCallID string `json:"toolCallId"`
	Result     any    `json:"result"`
}

type wireStepStart struct {
	MessageID string `json:"messageId"`
}

type wireStepFinish struct {
	FinishReason string     `json:"finishReason"`
	Usage        *wireUsage `json:"usage,omitempty"`
	IsContinued  bool       `json:"isContinued"`
}

type wireFinish struct {
	FinishReason string     `json:"finishReason"`
	Usage        *wireUsage `json:"usage,omitempty"`
}

type wireSignature struct {
	Signature string `json:"signature"`
}

type wireRedacted struct {
	Data string `json:"data"`
}
