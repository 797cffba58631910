package extraction

import (
	"encoding/json"
	"strings"

	"github.com/akulikov/statement-import/internal/errs"
)

// parseChunkPayload decodes a model response defensively: first a direct
// parse, then with code fences stripped, then keeping only the span from
// the first '{' to the last '}'. Models ignore formatting instructions
// often enough that all three stages earn their keep.
func parseChunkPayload(raw string) (*chunkPayload, error) {
	clean := cleanModelJSON(raw)

	var payload chunkPayload
	if err := json.Unmarshal([]byte(clean), &payload); err != nil {
		return nil, errs.Wrap(errs.KindUnparseableResponse, "extraction service returned an unreadable response", err)
	}
	return &payload, nil
}

func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	// Handle ```json ... ``` or ``` ... ``` wrappers.
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	// Last resort: keep only from the first '{' to the last '}' in case the
	// model added prose around the JSON.
	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}
