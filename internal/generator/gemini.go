package generator

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"timefreedom/internal/lead"
	"timefreedom/internal/report"
)

const (
	ProviderGemini     = "gemini"
	DefaultGeminiModel = "gemini-2.5-flash"
)

// GeminiGenerator prompts Gemini through the genai SDK.
type GeminiGenerator struct {
	client  *genai.Client
	opts    Options
	prompts *PromptBuilder
	initErr error
}

// NewGemini builds the Gemini backend. Like NewAnthropic it defers key
// problems to Generate.
func NewGemini(ctx context.Context, opts Options) *GeminiGenerator {
	opts = opts.withDefaults(DefaultGeminiModel)
	g := &GeminiGenerator{opts: opts, prompts: NewPromptBuilder()}
	if opts.APIKey == "" {
		g.initErr = missingKey(ProviderGemini, "GEMINI_API_KEY")
		return g
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		g.initErr = newError(KindAuth, ProviderGemini, fmt.Errorf("init client: %w", err))
		return g
	}
	g.client = client
	return g
}

func (g *GeminiGenerator) Provider() string { return ProviderGemini }

// Generate makes a single model call and parses the answer.
func (g *GeminiGenerator) Generate(ctx context.Context, l lead.Lead) (report.Result, error) {
	if g.initErr != nil {
		return report.Result{}, g.initErr
	}
	prompt, err := g.prompts.Build(l)
	if err != nil {
		return report.Result{}, newError(KindUpstream, ProviderGemini, err)
	}

	temperature := float32(*g.opts.Temperature)
	resp, err := g.client.Models.GenerateContent(ctx, g.opts.Model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:      &temperature,
		MaxOutputTokens:  int32(g.opts.MaxTokens),
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return report.Result{}, classifyGemini(withContext(ctx, err))
	}
	if resp == nil {
		return report.Result{}, newError(KindMalformed, ProviderGemini, ErrEmptyResponse)
	}
	return ParseResponse(ProviderGemini, resp.Text())
}

func classifyGemini(err error) *Error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return newError(KindAuth, ProviderGemini, err)
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return newError(KindTimeout, ProviderGemini, err)
		}
	}
	return classify(ProviderGemini, err)
}
