package extraction

import (
	"context"
	"errors"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"google.golang.org/genai"

	"github.com/akulikov/statement-import/internal/errs"
)

// Extractor is the narrow contract to the external inference service.
// One call covers one extraction unit (a whole document or one chunk).
type Extractor interface {
	ExtractChunk(ctx context.Context, pdfBytes []byte) (*chunkPayload, error)
}

// GeminiExtractor implements Extractor on the Gemini API.
type GeminiExtractor struct {
	client *genai.Client
	model  string
}

func NewGeminiExtractor(ctx context.Context, modelName string) (*GeminiExtractor, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, err
	}
	return &GeminiExtractor{client: client, model: modelName}, nil
}

func (e *GeminiExtractor) ExtractChunk(ctx context.Context, pdfBytes []byte) (*chunkPayload, error) {
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: extractionPrompt},
				{
					InlineData: &genai.Blob{
						MIMEType: "application/pdf",
						Data:     pdfBytes,
					},
				},
			},
		},
	}

	resp, err := e.client.Models.GenerateContent(ctx, e.model, contents, nil)
	if err != nil {
		return nil, classifyModelError(err)
	}

	rawText := resp.Text()
	if strings.TrimSpace(rawText) == "" {
		return nil, errs.New(errs.KindEmptyResponse, "extraction service returned an empty response")
	}

	return parseChunkPayload(rawText)
}

// classifyModelError maps an inference-service failure onto the extraction
// error taxonomy so the orchestrator can apply the right retry policy.
func classifyModelError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(errs.KindTimeout, "extraction service call timed out", err)
	}

	code := 0
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		code = apiErr.Code
	}

	msg := strings.ToLower(err.Error())
	rateLimited := code == 429 ||
		strings.Contains(msg, "resource_exhausted") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "429")

	if rateLimited {
		// A 429 carrying quota language means the budget is gone for the
		// day, not that we are bursting; retrying would only burn time.
		if strings.Contains(msg, "quota") || strings.Contains(msg, "billing") {
			return errs.Wrap(errs.KindQuotaExhausted, "extraction quota exhausted", err)
		}
		return errs.Wrap(errs.KindRateLimited, "extraction service rate limited", err)
	}

	if strings.Contains(msg, "deadline") || strings.Contains(msg, "timeout") {
		return errs.Wrap(errs.KindTimeout, "extraction service call timed out", err)
	}

	return pkgerrors.Wrap(err, "extraction service call failed")
}
