// Package generator turns a lead into a task report by prompting a
// generative model and parsing its answer.
package generator

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"timefreedom/internal/lead"
	"timefreedom/internal/report"
)

// Generator produces one report per call. Implementations make a single
// attempt and return *Error on failure.
type Generator interface {
	Generate(ctx context.Context, l lead.Lead) (report.Result, error)
	Provider() string
}

// DefaultTemperature applies when Options.Temperature is nil.
const DefaultTemperature = 0.6

// Options are shared by every model backend. A nil Temperature means the
// default; zero is a valid setting.
type Options struct {
	Model       string
	APIKey      string
	Temperature *float64
	MaxTokens   int
}

// PromptBuilder renders the instruction sent to the model.
type PromptBuilder struct {
	blueprints map[lead.Type]*template.Template
}

// NewPromptBuilder parses the prompt blueprint for every funnel variant.
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{blueprints: loadStandardBlueprints()}
}

// Build renders the prompt for l, routing by lead type.
func (b *PromptBuilder) Build(l lead.Lead) (string, error) {
	tmpl, ok := b.blueprints[l.LeadType]
	if !ok {
		// Unknown variants get the shorter prompt.
		tmpl = b.blueprints[lead.TypeSimple]
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, l); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", l.LeadType, err)
	}
	return buf.String(), nil
}

const outputContract = `
Respond with JSON only, no prose and no code fences, in exactly this shape:
{
  "tasks": {
    "daily":   [{"title": "...", "description": "...", "owner": "EA" or "You", "isEA": true or false, "category": "..."}],
    "weekly":  [...],
    "monthly": [...]
  },
  "total_task_count": 30,
  "ea_task_count": <number of tasks with owner "EA">,
  "ea_task_percent": <round(100 * ea_task_count / total_task_count)>,
  "summary": "<one sentence>"
}
Rules:
- Exactly 10 tasks in each of daily, weekly and monthly.
- "isEA" must be true exactly when "owner" is "EA".
- At least 40% of all tasks must be owned by the EA.
- Daily tasks must include inbox/email management and calendar management owned by the EA.
- Titles 3-60 characters; descriptions one or two sentences.
`

const fullPrompt = `You are an executive-assistant delegation strategist.
Build a personalized delegation plan for this business owner.

Name: {{ .FullName | default "the founder" }}
{{- with .Title }}
Role: {{ . }}{{ end }}
{{- with .BusinessType }}
Business type: {{ . }}{{ end }}
{{- with .RevenueRange }}
Annual revenue: {{ . }}{{ end }}
{{- with .EmployeeCount }}
Team size: {{ . }}{{ end }}
{{- with .Website }}
Website: {{ . }}{{ end }}
{{- with .Challenges }}
Biggest challenges: {{ trim . }}{{ end }}
{{- with .PainPoints }}
Pain points: {{ trim . }}{{ end }}
{{- with .TimeBottleneck }}
Where their time goes: {{ trim . }}{{ end }}

Ground every task in the details above. Prefer concrete, recurring work an
assistant can own end to end over generic advice.
` + outputContract

const streamlinedPrompt = `You are an executive-assistant delegation strategist.
Build a concise delegation plan for a {{ .BusinessType | default "small business" | lower }} owner
{{- with .RevenueRange }} with revenue of {{ . }}{{ end }}.
{{- with .PainPoints }}
They said: {{ trunc 500 (trim .) }}{{ end }}
{{- with .Challenges }}
Challenges: {{ trunc 500 (trim .) }}{{ end }}
` + outputContract

func loadStandardBlueprints() map[lead.Type]*template.Template {
	parse := func(name, body string) *template.Template {
		return template.Must(template.New(name).Funcs(sprig.TxtFuncMap()).Parse(body))
	}
	streamlined := parse("streamlined", streamlinedPrompt)
	return map[lead.Type]*template.Template{
		lead.TypeMain:     parse("full", fullPrompt),
		lead.TypeStandard: streamlined,
		lead.TypeSimple:   streamlined,
	}
}
