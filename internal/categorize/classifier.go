package categorize

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/akulikov/statement-import/internal/errs"
	"github.com/akulikov/statement-import/internal/models"
)

// Decision is the categorization service's verdict for one candidate.
type Decision struct {
	Index             int                 `json:"index"`
	CategoryID        *string             `json:"category_id"`
	Confidence        float64             `json:"confidence"`
	Keyword           string              `json:"keyword"`
	NeedsNewCategory  bool                `json:"needs_new_category"`
	SuggestedCategory *CategorySuggestion `json:"suggested_category"`
}

// CategorySuggestion describes a category the service thinks should exist.
// Suggestions are surfaced for human approval, never auto-created.
type CategorySuggestion struct {
	Name  string `json:"name"`
	Icon  string `json:"icon"`
	Color string `json:"color"`
}

// Classifier is the narrow contract to the categorization service.
type Classifier interface {
	ClassifyBatch(ctx context.Context, candidates []models.CandidateTransaction, categories []models.Category) ([]Decision, error)
}

// GeminiClassifier implements Classifier on the Gemini API.
type GeminiClassifier struct {
	client *genai.Client
	model  string
}

func NewGeminiClassifier(ctx context.Context, modelName string) (*GeminiClassifier, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, err
	}
	return &GeminiClassifier{client: client, model: modelName}, nil
}

func (c *GeminiClassifier) ClassifyBatch(ctx context.Context, candidates []models.CandidateTransaction, categories []models.Category) ([]Decision, error) {
	prompt := buildClassificationPrompt(candidates, categories)

	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindCategorization, "categorization service call failed", err)
	}

	rawText := resp.Text()
	if strings.TrimSpace(rawText) == "" {
		return nil, errs.New(errs.KindCategorization, "categorization service returned an empty response")
	}

	decisions, err := parseDecisions(rawText)
	if err != nil {
		return nil, err
	}
	return decisions, nil
}

func buildClassificationPrompt(candidates []models.CandidateTransaction, categories []models.Category) string {
	var b strings.Builder

	b.WriteString("You are a spending categorizer for personal finance transactions.\n\n")

	if len(categories) == 0 {
		b.WriteString("The user has NO categories yet. For every transaction set \"category_id\" to null, ")
		b.WriteString("set \"needs_new_category\" to true and propose a sensible \"suggested_category\".\n\n")
	} else {
		b.WriteString("Use ONLY the following categories (id: name):\n")
		for _, cat := range categories {
			fmt.Fprintf(&b, "- %s: %s\n", cat.ID, cat.Name)
		}
		b.WriteString("\n")
	}

	b.WriteString("Transactions (index: description, signed amount):\n")
	for i, cand := range candidates {
		fmt.Fprintf(&b, "%d: %q, %.2f\n", i, cand.Description, cand.Amount)
	}

	b.WriteString(`
Rules:
- Output STRICT JSON only: a JSON array with EXACTLY one object per input transaction, same order.
- Each object: {"index": number, "category_id": string or null, "confidence": number 0-1,
  "keyword": string, "needs_new_category": boolean, "suggested_category": {"name","icon","color"} or null}
- "category_id" must be one of the listed ids, or null when nothing fits.
- "keyword" is a SHORT lowercase fragment of the description (e.g. a merchant name) useful for
  recognizing similar transactions later.
- When no existing category fits well, set "needs_new_category" to true and fill "suggested_category"
  with a name, an emoji icon and a hex color.
- Return ONLY valid raw JSON. Do NOT wrap the response in code fences.
- Output must begin with "[" and end with "]".
`)

	return b.String()
}

// parseDecisions decodes the model response, tolerating code fences and
// surrounding prose the same way the extraction parser does.
func parseDecisions(raw string) ([]Decision, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	if start := strings.Index(s, "["); start != -1 {
		if end := strings.LastIndex(s, "]"); end != -1 && end > start {
			s = s[start : end+1]
		}
	}

	var decisions []Decision
	if err := json.Unmarshal([]byte(s), &decisions); err != nil {
		return nil, errs.Wrap(errs.KindCategorization, "categorization service returned an unreadable response", err)
	}
	return decisions, nil
}
