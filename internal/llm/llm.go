// Package llm defines the external classification/extraction backend
// contract. The backend returns free text that is expected to contain exactly
// one JSON object; ExtractObject recovers it tolerantly.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

var ErrUnavailable = errors.New("llm backend unavailable")

// Client is the JSON-contract backend used by the classify and extract
// stages when the LLM toggle is on.
type Client interface {
	// CompleteJSON sends a system instruction plus a user prompt (with an
	// optional schema hint appended) and returns the decoded JSON object
	// from the response. An unparseable response yields an empty object,
	// not an error; transport failures are errors.
	CompleteJSON(ctx context.Context, system, user, schemaHint string) (map[string]any, error)
}

// ExtractObject locates the first '{' and the last '}' in the text and
// parses the span between them as JSON. Prose before or after the object is
// tolerated; if the span is missing or does not parse, an empty object is
// returned.
func ExtractObject(text string) map[string]any {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return map[string]any{}
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &decoded); err != nil {
		return map[string]any{}
	}
	return decoded
}

// WithSchemaHint appends the prompt convention for requesting strict JSON
// without relying on structured-output API features.
func WithSchemaHint(user, schemaHint string) string {
	hint := strings.TrimSpace(schemaHint)
	if hint == "" {
		return user
	}
	return user + "\n\nReturn ONLY valid JSON matching this schema:\n" + hint
}
