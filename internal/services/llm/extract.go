package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var fencedBlock = regexp.MustCompile("(?s)```[a-zA-Z0-9_-]*[ \t]*\r?\n?(.*?)```")

// ExtractJSON decodes model output into target. It tries, in order: the whole
// payload as strict JSON, the first fenced code block, and the outermost
// brace-delimited substring. It fails only when all three fail.
func ExtractJSON(content string, target any) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return errors.New("empty payload")
	}

	strictErr := json.Unmarshal([]byte(trimmed), target)
	if strictErr == nil {
		return nil
	}

	if match := fencedBlock.FindStringSubmatch(trimmed); match != nil {
		if fenced := strings.TrimSpace(match[1]); fenced != "" {
			if err := json.Unmarshal([]byte(fenced), target); err == nil {
				return nil
			}
		}
	}

	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			if err := json.Unmarshal([]byte(trimmed[start:end+1]), target); err == nil {
				return nil
			}
		}
	}

	return fmt.Errorf("no json object found: %w (payload snippet: %s)", strictErr, summarizePayloadSnippet(trimmed))
}

func summarizePayloadSnippet(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "<empty>"
	}
	clean := strings.Join(strings.Fields(trimmed), " ")
	const limit = 160
	if runes := []rune(clean); len(runes) > limit {
		clean = string(runes[:limit]) + "..."
	}
	return clean
}
