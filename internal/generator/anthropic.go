package generator

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"

	"timefreedom/internal/lead"
	"timefreedom/internal/report"
)

const (
	ProviderAnthropic     = "anthropic"
	DefaultAnthropicModel = "claude-sonnet-4-5-20250929"
)

// AnthropicGenerator prompts Claude through langchaingo.
type AnthropicGenerator struct {
	llm     llms.Model
	opts    Options
	prompts *PromptBuilder
	initErr error
}

// NewAnthropic builds the Claude backend. A missing or unusable key does not
// fail construction; every Generate call reports it as KindAuth instead.
func NewAnthropic(opts Options) *AnthropicGenerator {
	opts = opts.withDefaults(DefaultAnthropicModel)
	g := &AnthropicGenerator{opts: opts, prompts: NewPromptBuilder()}
	if opts.APIKey == "" {
		g.initErr = missingKey(ProviderAnthropic, "ANTHROPIC_API_KEY")
		return g
	}
	llm, err := anthropic.New(anthropic.WithModel(opts.Model), anthropic.WithToken(opts.APIKey))
	if err != nil {
		g.initErr = newError(KindAuth, ProviderAnthropic, fmt.Errorf("init client: %w", err))
		return g
	}
	g.llm = llm
	return g
}

// NewAnthropicWithModel wraps an existing langchaingo model.
func NewAnthropicWithModel(llm llms.Model, opts Options) *AnthropicGenerator {
	return &AnthropicGenerator{llm: llm, opts: opts.withDefaults(DefaultAnthropicModel), prompts: NewPromptBuilder()}
}

func (g *AnthropicGenerator) Provider() string { return ProviderAnthropic }

// Generate makes a single model call and parses the answer.
func (g *AnthropicGenerator) Generate(ctx context.Context, l lead.Lead) (report.Result, error) {
	if g.initErr != nil {
		return report.Result{}, g.initErr
	}
	prompt, err := g.prompts.Build(l)
	if err != nil {
		return report.Result{}, newError(KindUpstream, ProviderAnthropic, err)
	}

	resp, err := g.llm.GenerateContent(ctx,
		[]llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)},
		llms.WithTemperature(*g.opts.Temperature),
		llms.WithMaxTokens(g.opts.MaxTokens),
	)
	if err != nil {
		return report.Result{}, classify(ProviderAnthropic, withContext(ctx, err))
	}
	if resp == nil || len(resp.Choices) == 0 {
		return report.Result{}, newError(KindMalformed, ProviderAnthropic, ErrEmptyResponse)
	}
	return ParseResponse(ProviderAnthropic, resp.Choices[0].Content)
}

func (o Options) withDefaults(model string) Options {
	if o.Model == "" {
		o.Model = model
	}
	if o.Temperature == nil {
		t := DefaultTemperature
		o.Temperature = &t
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 4096
	}
	return o
}

// withContext attaches the context's error so deadline expiry is recognized
// even when the SDK flattens it into a string.
func withContext(ctx context.Context, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return fmt.Errorf("%w: %v", cerr, err)
	}
	return err
}
