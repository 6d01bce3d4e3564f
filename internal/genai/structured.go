package genai

import (
	"encoding/json"
	"strings"
)

// DecodeStructured parses a constrained-output model answer into dst.
//
// Backends are loosely typed: markdown fences are stripped, missing keys keep
// dst's zero or pre-filled defaults, and extra keys are ignored. The boolean
// result reports whether a JSON body was decoded at all; callers treat a false
// result as a domain outcome (safe defaults), not an error.
func DecodeStructured(raw string, dst any) bool {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return false
	}

	if strings.HasPrefix(cleaned, "```") {
		if idx := strings.Index(cleaned, "\n"); idx >= 0 {
			cleaned = cleaned[idx+1:]
		}
		cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
		cleaned = strings.TrimSpace(cleaned)
	}

	// Some backends wrap the object in prose. Take the outermost braces.
	if !strings.HasPrefix(cleaned, "{") {
		start := strings.Index(cleaned, "{")
		end := strings.LastIndex(cleaned, "}")
		if start < 0 || end <= start {
			return false
		}
		cleaned = cleaned[start : end+1]
	}

	return json.Unmarshal([]byte(cleaned), dst) == nil
}
