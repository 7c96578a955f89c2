package common

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/ternarybob/tally/internal/models"
)

var fencePattern = regexp.MustCompile("(?s)^\\s*```(?:json|JSON)?\\s*\\n?(.*?)\\n?\\s*```\\s*$")

// CleanMarkdownFences removes a surrounding markdown code fence from model output
func CleanMarkdownFences(s string) string {
	s = strings.TrimSpace(s)

	if matches := fencePattern.FindStringSubmatch(s); len(matches) > 1 {
		s = matches[1]
	}

	// Fallback: simple prefix/suffix trimming
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	return strings.TrimSpace(s)
}

// FindFirstJSONObject returns the first balanced {...} substring of s.
// Braces inside JSON strings are ignored. When the text ends before the
// object closes, the unterminated tail is returned with complete=false.
func FindFirstJSONObject(s string) (object string, complete bool, found bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false, false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true, true
			}
		}
	}

	return s[start:], false, true
}

// ExtractJSONObject parses the first JSON object out of generated text.
// Surrounding prose and markdown fences are tolerated. A candidate object that
// fails to decode is passed through jsonrepair once before giving up.
func ExtractJSONObject(text string) (map[string]interface{}, error) {
	cleaned := CleanMarkdownFences(text)

	candidate, complete, found := FindFirstJSONObject(cleaned)
	if !found {
		return nil, &models.ParseError{Reason: "no JSON object found", Snippet: snippet(cleaned)}
	}

	var result map[string]interface{}
	decodeErr := json.Unmarshal([]byte(candidate), &result)
	if decodeErr == nil && complete {
		return result, nil
	}

	repaired, repairErr := jsonrepair.JSONRepair(candidate)
	if repairErr == nil {
		result = nil
		if err := json.Unmarshal([]byte(repaired), &result); err == nil && result != nil {
			return result, nil
		}
	}

	if decodeErr == nil {
		decodeErr = repairErr
	}
	return nil, &models.ParseError{Reason: "invalid JSON object", Snippet: snippet(candidate), Err: decodeErr}
}

func snippet(s string) string {
	const max = 200
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
