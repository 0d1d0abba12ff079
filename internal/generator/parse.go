package generator

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"timefreedom/internal/report"
)

const resultSchema = `{
  "type": "object",
  "required": ["tasks"],
  "properties": {
    "tasks": {
      "type": "object",
      "required": ["daily", "weekly", "monthly"],
      "properties": {
        "daily":   {"$ref": "#/$defs/bucket"},
        "weekly":  {"$ref": "#/$defs/bucket"},
        "monthly": {"$ref": "#/$defs/bucket"}
      }
    },
    "total_task_count": {"type": "integer", "minimum": 0},
    "ea_task_count":    {"type": "integer", "minimum": 0},
    "ea_task_percent":  {"type": "integer", "minimum": 0, "maximum": 100},
    "summary":          {"type": "string"}
  },
  "$defs": {
    "bucket": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["title", "description", "owner", "isEA"],
        "properties": {
          "title":       {"type": "string"},
          "description": {"type": "string"},
          "owner":       {"type": "string"},
          "isEA":        {"type": "boolean"},
          "category":    {"type": "string"}
        }
      }
    }
  }
}`

var compiledSchema = jsonschema.MustCompileString("task-report.json", resultSchema)

// ErrEmptyResponse is returned when the model answered with no text.
var ErrEmptyResponse = errors.New("empty model response")

// ParseResponse extracts a report from raw model text. Any failure is a
// KindMalformed error.
func ParseResponse(provider, text string) (report.Result, error) {
	body := stripFences(text)
	if body == "" {
		return report.Result{}, newError(KindMalformed, provider, ErrEmptyResponse)
	}

	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return report.Result{}, malformed(provider, err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return report.Result{}, malformed(provider, err)
	}

	var r report.Result
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return report.Result{}, malformed(provider, err)
	}
	return r, nil
}

func malformed(provider string, err error) *Error {
	return newError(KindMalformed, provider, fmt.Errorf("Failed to parse model response: %w", err))
}

// stripFences removes markdown code fences and a leading "json" tag, then
// trims anything outside the outermost JSON object.
func stripFences(text string) string {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "json\n") {
		s = strings.TrimSpace(s[len("json\n"):])
	}

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}
