package extraction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/akulikov/statement-import/internal/errs"
	"github.com/akulikov/statement-import/internal/pdf"
)

const (
	// chunkPageLimit is the page threshold above which a document is split
	// into sequential page-range chunks.
	chunkPageLimit = 8

	// interChunkDelay spaces out chunk calls so a long document does not
	// burst the service's rate limiter.
	interChunkDelay = 2 * time.Second

	singleDocTimeout = 120 * time.Second
	chunkTimeout     = 90 * time.Second

	maxRateLimitRetries = 2
	maxTimeoutRetries   = 1

	// dedupDescriptionLen is how much of the description participates in
	// the cross-chunk duplicate key. Adjacent chunks can double-extract
	// boundary rows; the composite key (date, amount, description prefix)
	// removes those repeats.
	dedupDescriptionLen = 30
)

// Splitter provides the page-level document operations the orchestrator
// needs. The production implementation delegates to the pdf package.
type Splitter interface {
	PageCount(data []byte) (int, error)
	ExtractPageRange(data []byte, from, to int) ([]byte, error)
}

type pdfSplitter struct{}

func (pdfSplitter) PageCount(data []byte) (int, error) { return pdf.PageCount(data) }
func (pdfSplitter) ExtractPageRange(data []byte, from, to int) ([]byte, error) {
	return pdf.ExtractPageRange(data, from, to)
}

// Orchestrator runs chunked extraction over one document: it splits
// oversized documents into page ranges, calls the extraction service once
// per unit with retry and backoff, and merges the results.
type Orchestrator struct {
	extractor Extractor
	splitter  Splitter
	log       zerolog.Logger

	// sleep is swapped out by tests; production uses a context-aware wait.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewOrchestrator(extractor Extractor, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		extractor: extractor,
		splitter:  pdfSplitter{},
		log:       log,
		sleep:     sleepCtx,
	}
}

// pageRange is one extraction unit: a contiguous 1-based page interval.
type pageRange struct {
	from, to int
}

// splitPages computes sequential, non-overlapping chunks covering all
// pages in original order. Documents at or under the limit stay whole.
func splitPages(pageCount int) []pageRange {
	if pageCount <= chunkPageLimit {
		return []pageRange{{from: 1, to: pageCount}}
	}
	var ranges []pageRange
	for from := 1; from <= pageCount; from += chunkPageLimit {
		to := from + chunkPageLimit - 1
		if to > pageCount {
			to = pageCount
		}
		ranges = append(ranges, pageRange{from: from, to: to})
	}
	return ranges
}

// Run extracts all transactions from the document. Chunks are processed
// strictly sequentially; quota exhaustion aborts the remaining units while
// keeping whatever was already gathered.
func (o *Orchestrator) Run(ctx context.Context, data []byte) (*Result, error) {
	pageCount, err := o.splitter.PageCount(data)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnparseableResponse, "could not read the document", err)
	}

	units := splitPages(pageCount)
	o.log.Info().Int("pages", pageCount).Int("chunks", len(units)).Msg("Starting extraction")

	var payloads []*chunkPayload
	for i, unit := range units {
		if i > 0 {
			if err := o.sleep(ctx, interChunkDelay); err != nil {
				return nil, err
			}
		}

		unitData := data
		timeout := singleDocTimeout
		if len(units) > 1 {
			timeout = chunkTimeout
			unitData, err = o.splitter.ExtractPageRange(data, unit.from, unit.to)
			if err != nil {
				return nil, errs.Wrap(errs.KindUnparseableResponse, "could not split the document", err)
			}
		}

		payload, err := o.extractUnit(ctx, unitData, timeout)
		if err != nil {
			if errs.Is(err, errs.KindQuotaExhausted) && len(payloads) > 0 {
				// The budget is gone; stop spending retries and keep what
				// the earlier units already produced.
				o.log.Warn().Int("chunk", i+1).Int("total", len(units)).
					Msg("Quota exhausted, aborting remaining chunks")
				break
			}
			return nil, err
		}

		o.log.Info().
			Int("chunk", i+1).
			Int("total", len(units)).
			Int("transactions", len(payload.Transactions)).
			Msg("Chunk extracted")
		payloads = append(payloads, payload)
	}

	result := mergePayloads(payloads)
	if len(result.Transactions) == 0 {
		return nil, errs.New(errs.KindNoTransactions, "no transactions found in the document")
	}
	return result, nil
}

// extractUnit calls the service for one unit, applying the retry policy:
// up to 2 retries with increasing backoff when rate limited, one retry on
// timeout, and immediate failure for everything else.
func (o *Orchestrator) extractUnit(ctx context.Context, data []byte, timeout time.Duration) (*chunkPayload, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * time.Second
	bo.RandomizationFactor = 0

	rateLimitRetries := 0
	timeoutRetries := 0

	for {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		payload, err := o.extractor.ExtractChunk(callCtx, data)
		cancel()
		if err == nil {
			return payload, nil
		}

		switch errs.KindOf(err) {
		case errs.KindRateLimited:
			if rateLimitRetries >= maxRateLimitRetries {
				return nil, err
			}
			rateLimitRetries++
			wait := bo.NextBackOff()
			o.log.Warn().Dur("backoff", wait).Int("attempt", rateLimitRetries).
				Msg("Rate limited, backing off")
			if serr := o.sleep(ctx, wait); serr != nil {
				return nil, serr
			}
		case errs.KindTimeout:
			if timeoutRetries >= maxTimeoutRetries {
				return nil, err
			}
			timeoutRetries++
			o.log.Warn().Msg("Extraction call timed out, retrying once")
		default:
			return nil, err
		}
	}
}

// mergePayloads combines chunk results: bank name and period start come
// from the first unit reporting them, period end from the last, and
// transactions are concatenated in chunk order then deduplicated.
func mergePayloads(payloads []*chunkPayload) *Result {
	result := &Result{}

	for _, p := range payloads {
		if result.BankName == "" && p.BankName != nil && *p.BankName != "" {
			result.BankName = *p.BankName
		}
		if result.PeriodStart == nil {
			if t := parseDate(p.PeriodStart); t != nil {
				result.PeriodStart = t
			}
		}
		if t := parseDate(p.PeriodEnd); t != nil {
			result.PeriodEnd = t
		}

		for _, raw := range p.Transactions {
			result.Transactions = append(result.Transactions, toTransaction(raw))
		}
	}

	result.Transactions = dedupeTransactions(result.Transactions)
	return result
}

func toTransaction(raw rawTransaction) Transaction {
	t := Transaction{
		Description: strings.TrimSpace(raw.Description),
		IsDebit:     strings.EqualFold(raw.Type, "debit"),
		Balance:     raw.Balance,
		Raw: map[string]interface{}{
			"date":        raw.Date,
			"description": raw.Description,
			"type":        raw.Type,
		},
	}
	if raw.Amount != nil {
		t.Amount = *raw.Amount
		t.Raw["amount"] = *raw.Amount
		if t.Amount < 0 {
			t.IsDebit = true
		}
	}
	if parsed := parseDate(&raw.Date); parsed != nil {
		t.Date = *parsed
	}
	return t
}

// dedupeTransactions removes repeats sharing the composite key of
// (date, amount, description prefix). Order is preserved; the first
// occurrence wins.
func dedupeTransactions(txs []Transaction) []Transaction {
	seen := make(map[string]bool, len(txs))
	out := txs[:0]
	for _, t := range txs {
		key := dedupeKey(t)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}

func dedupeKey(t Transaction) string {
	desc := strings.ToLower(t.Description)
	if len(desc) > dedupDescriptionLen {
		desc = desc[:dedupDescriptionLen]
	}
	return fmt.Sprintf("%s|%.2f|%s", t.Date.Format("2006-01-02"), t.Amount, desc)
}

func parseDate(s *string) *time.Time {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", strings.TrimSpace(*s))
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
