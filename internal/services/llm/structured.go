package llm

import (
	"encoding/json"
	"strings"
)

// structuredPrompt appends the expected JSON shape to a prompt for providers
// without native response schemas.
func structuredPrompt(prompt string, shape map[string]interface{}) string {
	if len(shape) == 0 {
		return prompt + "\n\nReturn ONLY a valid JSON object, no markdown, no explanation."
	}

	schema, err := json.MarshalIndent(shape, "", "  ")
	if err != nil {
		return prompt
	}

	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\nReturn ONLY a valid JSON object matching this JSON schema, no markdown, no explanation:\n")
	b.Write(schema)
	return b.String()
}
