// Package categorize assigns spending categories to candidate
// transactions: a learned-keyword fast path first, then an AI fallback in
// bounded batches, with reinforcement of confirmed keyword mappings.
package categorize

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/akulikov/statement-import/internal/models"
	"github.com/akulikov/statement-import/internal/repository"
)

const (
	// fastPathConfidence is the fixed confidence of a learned-keyword hit.
	fastPathConfidence = 0.9

	// classifyBatchSize bounds candidates per AI call.
	classifyBatchSize = 20

	// interBatchDelay spaces out AI calls, mirroring the extraction
	// orchestrator's treatment of the shared rate limit.
	interBatchDelay = time.Second
)

// Summary is the categorization outcome surfaced to the caller.
type Summary struct {
	TotalTransactions   int                  `json:"total_transactions"`
	CategorizedCount    int                  `json:"categorized_count"`
	AvgConfidence       float64              `json:"avg_confidence"`
	SuggestedCategories []CategorySuggestion `json:"suggested_categories"`
}

// Resolver resolves categories for an import's candidates.
type Resolver struct {
	keywords   *repository.KeywordRepository
	categories *repository.CategoryRepository
	candidates *repository.CandidateRepository
	classifier Classifier
	log        zerolog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

func NewResolver(
	keywords *repository.KeywordRepository,
	categories *repository.CategoryRepository,
	candidates *repository.CandidateRepository,
	classifier Classifier,
	log zerolog.Logger,
) *Resolver {
	return &Resolver{
		keywords:   keywords,
		categories: categories,
		candidates: candidates,
		classifier: classifier,
		log:        log,
		sleep: func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-timer.C:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
}

// Resolve categorizes all candidates of one import. AI batch failures are
// logged and swallowed: the import still reaches the confirm stage with
// whatever subset got categorized.
func (r *Resolver) Resolve(ctx context.Context, userID string, candidates []models.CandidateTransaction) (*Summary, error) {
	mappings, err := r.keywords.ListByUser(userID)
	if err != nil {
		return nil, err
	}
	categories, err := r.categories.ListByUser(userID)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		TotalTransactions:   len(candidates),
		SuggestedCategories: []CategorySuggestion{},
	}
	var confidenceSum float64
	suggestionSeen := make(map[string]bool)

	// Fast path: learned keywords in descending usage order; the first
	// case-insensitive substring hit wins.
	var unmatched []models.CandidateTransaction
	for _, cand := range candidates {
		mapping := MatchKeyword(cand.Description, mappings)
		if mapping == nil {
			unmatched = append(unmatched, cand)
			continue
		}

		categoryID := mapping.CategoryID
		if err := r.candidates.UpdateSuggestion(cand.ID, &categoryID, fastPathConfidence); err != nil {
			r.log.Warn().Err(err).Str("candidate_id", cand.ID.String()).Msg("Failed to store fast-path suggestion")
			unmatched = append(unmatched, cand)
			continue
		}
		summary.CategorizedCount++
		confidenceSum += fastPathConfidence

		// Reinforce the hit; losing this only slows future fast paths.
		if err := r.keywords.Upsert(userID, mapping.Keyword, mapping.CategoryID); err != nil {
			r.log.Warn().Err(err).Str("keyword", mapping.Keyword).Msg("Keyword reinforcement failed")
		}
	}

	// Slow path: bounded batches to the categorization service,
	// sequentially, one call per batch.
	for start := 0; start < len(unmatched); start += classifyBatchSize {
		end := start + classifyBatchSize
		if end > len(unmatched) {
			end = len(unmatched)
		}
		batch := unmatched[start:end]

		if start > 0 {
			if err := r.sleep(ctx, interBatchDelay); err != nil {
				return nil, err
			}
		}

		decisions, err := r.classifier.ClassifyBatch(ctx, batch, categories)
		if err != nil {
			r.log.Warn().Err(err).Int("batch_size", len(batch)).
				Msg("Categorization batch failed, leaving candidates uncategorized")
			continue
		}

		for _, d := range decisions {
			if d.Index < 0 || d.Index >= len(batch) {
				continue
			}
			cand := batch[d.Index]

			if d.NeedsNewCategory && d.SuggestedCategory != nil && d.SuggestedCategory.Name != "" {
				key := strings.ToLower(d.SuggestedCategory.Name)
				if !suggestionSeen[key] {
					suggestionSeen[key] = true
					summary.SuggestedCategories = append(summary.SuggestedCategories, *d.SuggestedCategory)
				}
			}

			categoryID := parseCategoryID(d.CategoryID, categories)
			if categoryID == nil {
				continue
			}

			if err := r.candidates.UpdateSuggestion(cand.ID, categoryID, d.Confidence); err != nil {
				r.log.Warn().Err(err).Str("candidate_id", cand.ID.String()).Msg("Failed to store AI suggestion")
				continue
			}
			summary.CategorizedCount++
			confidenceSum += d.Confidence

			if keyword := normalizeKeyword(d.Keyword); keyword != "" {
				if err := r.keywords.Upsert(userID, keyword, *categoryID); err != nil {
					r.log.Warn().Err(err).Str("keyword", keyword).Msg("Keyword learning failed")
				}
			}
		}
	}

	if summary.CategorizedCount > 0 {
		summary.AvgConfidence = confidenceSum / float64(summary.CategorizedCount)
	}
	return summary, nil
}

// MatchKeyword returns the first mapping whose keyword is a
// case-insensitive substring of the description. Mappings must already be
// ordered (descending usage count), which makes the result deterministic
// for a fixed mapping set.
func MatchKeyword(description string, mappings []models.KeywordMapping) *models.KeywordMapping {
	desc := strings.ToLower(description)
	for i := range mappings {
		if mappings[i].Keyword == "" {
			continue
		}
		if strings.Contains(desc, strings.ToLower(mappings[i].Keyword)) {
			return &mappings[i]
		}
	}
	return nil
}

// parseCategoryID validates the id the service returned against the
// owner's actual categories; anything unknown is treated as no assignment.
func parseCategoryID(raw *string, categories []models.Category) *uuid.UUID {
	if raw == nil {
		return nil
	}
	id, err := uuid.Parse(*raw)
	if err != nil {
		return nil
	}
	for _, cat := range categories {
		if cat.ID == id {
			return &id
		}
	}
	return nil
}

func normalizeKeyword(keyword string) string {
	return strings.ToLower(strings.TrimSpace(keyword))
}
