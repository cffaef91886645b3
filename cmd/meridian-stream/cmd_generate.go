package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	llmprovider "github.com/haowjy/meridian-stream-go"
	"github.com/haowjy/meridian-stream-go/chat"
	"github.com/haowjy/meridian-stream-go/chat/redisstore"
	"github.com/haowjy/meridian-stream-go/providers/anthropic"
	"github.com/haowjy/meridian-stream-go/providers/lorem"
	"github.com/haowjy/meridian-stream-go/providers/openrouter"
	"github.com/haowjy/meridian-stream-go/streamtext"
)

type generateFlags struct {
	model         string
	system        string
	maxTokens     int
	temperature   float64
	thinking      string
	maxSteps      int
	continueSteps bool
	smooth        time.Duration
	format        string
	reasoning     bool
	tools         bool
	tiktoken      bool
	session       string
	redisAddr     string
	redisTTL      time.Duration
}

var genFlags generateFlags

func init() {
	rootCmd.AddCommand(generateCmd)
	f := generateCmd.Flags()
	f.StringVarP(&genFlags.model, "model", "m", "lorem:lorem-fast", `model id ("provider:model" or an alias)`)
	f.StringVar(&genFlags.system, "system", "", "system prompt")
	f.IntVar(&genFlags.maxTokens, "max-tokens", 0, "max output tokens per step")
	f.Float64Var(&genFlags.temperature, "temperature", 0, "sampling temperature")
	f.StringVar(&genFlags.thinking, "thinking", "", "enable thinking at a level (low, medium, high)")
	f.IntVar(&genFlags.maxSteps, "max-steps", 1, "maximum steps per turn")
	f.BoolVar(&genFlags.continueSteps, "continue", false, "continue steps cut off by the token limit")
	f.DurationVar(&genFlags.smooth, "smooth", 0, "re-chunk text into words with this delay between them")
	f.StringVar(&genFlags.format, "format", "text", "output format: text or data (the wire protocol)")
	f.BoolVar(&genFlags.reasoning, "reasoning", true, "include reasoning frames in data output")
	f.BoolVar(&genFlags.tools, "tools", false, "offer the word_count tool")
	f.BoolVar(&genFlags.tiktoken, "tiktoken", false, "count lorem usage with tiktoken instead of words")
	f.StringVar(&genFlags.session, "session", "", "session id to continue (requires --redis-addr to persist)")
	f.StringVar(&genFlags.redisAddr, "redis-addr", os.Getenv("REDIS_ADDR"), "Redis address for session storage")
	f.DurationVar(&genFlags.redisTTL, "redis-ttl", 0, "session expiry in Redis (0 keeps sessions)")
}

var generateCmd = &cobra.Command{
	Use:   "generate [prompt]",
	Short: "Stream a generation through a provider",
	Long: "Sends the prompt (or stdin) to a model and streams the answer. Providers are\n" +
		"enabled by ANTHROPIC_API_KEY and OPENROUTER_API_KEY; lorem is always available.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt, err := readPrompt(cmd, args)
		if err != nil {
			return err
		}
		if genFlags.format != "text" && genFlags.format != "data" {
			return fmt.Errorf("unknown format %q", genFlags.format)
		}
		return runGenerate(cmd.Context(), cmd.OutOrStdout(), prompt, genFlags, cmd.Flags().Changed("temperature"))
	},
}

func readPrompt(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read prompt: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", fmt.Errorf("empty prompt")
	}
	return prompt, nil
}

func runGenerate(ctx context.Context, w io.Writer, prompt string, flags generateFlags, withTemperature bool) error {
	logger := slog.Default()

	registry, err := newRegistry(flags.tiktoken, logger)
	if err != nil {
		return err
	}
	model, err := registry.LanguageModel(flags.model)
	if err != nil {
		return err
	}

	session, closeStore, err := openSession(ctx, flags, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	ids := llmprovider.NewIDGenerator("msg")
	session.Append(chat.NewUserMessage(ids(), prompt, time.Now()))
	messages, err := session.RequestMessages()
	if err != nil {
		return err
	}

	opts := streamtext.Options{
		Provider: model.Provider,
		Request: &llmprovider.GenerateRequest{
			Model:    model.ID,
			Messages: messages,
			Params:   requestParams(flags, withTemperature),
		},
		MaxSteps:      flags.maxSteps,
		ContinueSteps: flags.continueSteps,
		GenerateID:    ids,
		Logger:        logger,
		OnStepFinish: func(step streamtext.StepResult) {
			for _, w := range step.Warnings {
				logger.Warn("request warning", "step", step.Index, "code", w.Code, "severity", w.Severity, "message", w.Message)
			}
			logger.Debug("step finished", "step", step.Index, "finish_reason", step.FinishReason)
		},
	}
	if flags.tools {
		tools, err := demoTools()
		if err != nil {
			return err
		}
		opts.Tools = tools
	}
	if flags.smooth > 0 {
		opts.Transforms = []streamtext.Transform{streamtext.SmoothStream(streamtext.SmoothOptions{Delay: flags.smooth})}
	}

	result, err := streamtext.Stream(ctx, opts)
	if err != nil {
		return err
	}

	stream := result.DataStreamReader(streamtext.DataStreamOptions{
		SendUsage:     true,
		SendReasoning: flags.reasoning,
		SendSources:   true,
		ErrorMessage:  func(err error) string { return err.Error() },
	})
	defer stream.Close()

	// The data stream is assembled into the session either way; text output
	// prints each snapshot's new content.
	var src io.Reader = stream
	var popts chat.ProcessOptions
	if flags.format == "data" {
		src = io.TeeReader(stream, w)
	} else {
		printed := 0
		popts.OnUpdate = func(snap chat.Snapshot) {
			if content := snap.Message.Content; len(content) > printed {
				fmt.Fprint(w, content[printed:])
				printed = len(content)
			}
		}
	}

	info, err := session.Process(ctx, src, popts)
	if flags.format == "text" {
		fmt.Fprintln(w)
	}
	if err != nil {
		return err
	}

	logger.Info("generation finished",
		"session", session.ID,
		"model", model.ID,
		"finish_reason", info.FinishReason,
		"prompt_tokens", info.Usage.PromptTokens,
		"completion_tokens", info.Usage.CompletionTokens)
	return nil
}

func requestParams(flags generateFlags, withTemperature bool) *llmprovider.RequestParams {
	params := &llmprovider.RequestParams{}
	if flags.maxTokens > 0 {
		params.MaxTokens = &flags.maxTokens
	}
	if withTemperature {
		params.Temperature = &flags.temperature
	}
	if flags.system != "" {
		params.System = &flags.system
	}
	if flags.thinking != "" {
		enabled := true
		params.ThinkingEnabled = &enabled
		params.ThinkingLevel = &flags.thinking
	}
	return params
}

// newRegistry registers lorem and every provider whose API key is set.
func newRegistry(useTiktoken bool, logger *slog.Logger) (*llmprovider.Registry, error) {
	loremOpts := []lorem.Option{lorem.WithLogger(logger)}
	if useTiktoken {
		tokenizer, err := lorem.NewTiktoken("gpt-4o")
		if err != nil {
			return nil, fmt.Errorf("load tokenizer: %w", err)
		}
		loremOpts = append(loremOpts, lorem.WithTokenizer(tokenizer))
	}
	loremProvider := lorem.NewProvider(loremOpts...)

	registry := llmprovider.NewRegistry(loremProvider)
	registry.RegisterModel("lorem", loremProvider, "lorem-fast")

	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		p, err := anthropic.NewProvider(key, anthropic.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		registry.RegisterProvider(p)
		registry.RegisterModel("claude", p, "claude-haiku-4-5")
	}
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		p, err := openrouter.NewProvider(key, openrouter.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		registry.RegisterProvider(p)
	}
	return registry, nil
}

// openSession loads the session from Redis when configured. Without Redis the
// session lives for this command only.
func openSession(ctx context.Context, flags generateFlags, logger *slog.Logger) (*chat.Session, func(), error) {
	id := flags.session
	if id == "" {
		id = llmprovider.NewIDGenerator("chat")()
	}
	if flags.redisAddr == "" {
		return chat.NewSession(id, nil), func() {}, nil
	}

	store, err := redisstore.New(ctx, redisstore.Config{
		Addrs:  []string{flags.redisAddr},
		TTL:    flags.redisTTL,
		Logger: logger,
	})
	if err != nil {
		return nil, nil, err
	}
	closeStore := func() {
		if err := store.Close(); err != nil {
			logger.Warn("closing session store failed", "error", err)
		}
	}

	session, err := chat.LoadSession(ctx, id, store)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	logger.Info("session loaded", "session", id, "messages", len(session.Messages()))
	return session, closeStore, nil
}

// demoTools returns a small server-side tool set.
func demoTools() (*llmprovider.ToolSet, error) {
	wordCount, err := llmprovider.NewTool("word_count", "Count the words in a text", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{"type": "string", "description": "The text to count"},
		},
		"required": []string{"text"},
	}, func(ctx context.Context, toolCallID string, args json.RawMessage) (any, error) {
		var in struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		return map[string]int{"words": len(strings.Fields(in.Text))}, nil
	})
	if err != nil {
		return nil, err
	}
	return llmprovider.NewToolSet(wordCount)
}
