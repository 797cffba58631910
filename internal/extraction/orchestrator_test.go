package extraction

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akulikov/statement-import/internal/errs"
	"github.com/akulikov/statement-import/internal/logger"
)

// mockExtractor replays a scripted sequence of responses.
type mockExtractor struct {
	responses []mockResponse
	calls     int
}

type mockResponse struct {
	payload *chunkPayload
	err     error
}

func (m *mockExtractor) ExtractChunk(ctx context.Context, pdfBytes []byte) (*chunkPayload, error) {
	if m.calls >= len(m.responses) {
		return nil, errs.New(errs.KindUnparseableResponse, "unexpected extra call")
	}
	resp := m.responses[m.calls]
	m.calls++
	return resp.payload, resp.err
}

// mockSplitter reports a fixed page count and tracks range extraction.
type mockSplitter struct {
	pages  int
	ranges []pageRange
}

func (m *mockSplitter) PageCount(data []byte) (int, error) { return m.pages, nil }
func (m *mockSplitter) ExtractPageRange(data []byte, from, to int) ([]byte, error) {
	m.ranges = append(m.ranges, pageRange{from: from, to: to})
	return data, nil
}

func newTestOrchestrator(extractor Extractor, splitter Splitter) (*Orchestrator, *[]time.Duration) {
	var sleeps []time.Duration
	o := NewOrchestrator(extractor, logger.NewWithWriter(nopWriter{}))
	o.splitter = splitter
	o.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return o, &sleeps
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func strPtr(s string) *string   { return &s }
func f64Ptr(f float64) *float64 { return &f }

func payloadWith(bank string, txs ...rawTransaction) *chunkPayload {
	p := &chunkPayload{Transactions: txs}
	if bank != "" {
		p.BankName = strPtr(bank)
	}
	return p
}

func TestSplitPages(t *testing.T) {
	tests := []struct {
		pages int
		want  []pageRange
	}{
		{1, []pageRange{{1, 1}}},
		{8, []pageRange{{1, 8}}},
		{9, []pageRange{{1, 8}, {9, 9}}},
		{16, []pageRange{{1, 8}, {9, 16}}},
		{17, []pageRange{{1, 8}, {9, 16}, {17, 17}}},
	}

	for _, tt := range tests {
		got := splitPages(tt.pages)
		assert.Equal(t, tt.want, got, "pages=%d", tt.pages)

		// Every page covered exactly once, in order.
		next := 1
		for _, r := range got {
			assert.Equal(t, next, r.from)
			assert.GreaterOrEqual(t, r.to, r.from)
			next = r.to + 1
		}
		assert.Equal(t, tt.pages+1, next)
	}
}

func TestRun_SingleDocumentNotSplit(t *testing.T) {
	extractor := &mockExtractor{responses: []mockResponse{
		{payload: payloadWith("Monzo", rawTransaction{
			Date: "2026-03-01", Description: "COFFEE", Amount: f64Ptr(-3.50), Type: "debit",
		})},
	}}
	splitter := &mockSplitter{pages: 5}
	o, _ := newTestOrchestrator(extractor, splitter)

	result, err := o.Run(context.Background(), []byte("doc"))
	require.NoError(t, err)

	assert.Empty(t, splitter.ranges, "a document under the page limit must not be split")
	assert.Equal(t, "Monzo", result.BankName)
	require.Len(t, result.Transactions, 1)
	assert.True(t, result.Transactions[0].IsDebit)
}

func TestRun_ChunksSequentiallyWithDelay(t *testing.T) {
	extractor := &mockExtractor{responses: []mockResponse{
		{payload: payloadWith("Monzo", rawTransaction{Date: "2026-03-01", Description: "A", Amount: f64Ptr(-1), Type: "debit"})},
		{payload: payloadWith("", rawTransaction{Date: "2026-03-02", Description: "B", Amount: f64Ptr(-2), Type: "debit"})},
	}}
	splitter := &mockSplitter{pages: 12}
	o, sleeps := newTestOrchestrator(extractor, splitter)

	result, err := o.Run(context.Background(), []byte("doc"))
	require.NoError(t, err)

	assert.Equal(t, []pageRange{{1, 8}, {9, 12}}, splitter.ranges)
	assert.Contains(t, *sleeps, interChunkDelay)
	assert.Len(t, result.Transactions, 2)
}

func TestRun_RateLimitRetriesThenSucceeds(t *testing.T) {
	rateErr := errs.New(errs.KindRateLimited, "rate limited")
	extractor := &mockExtractor{responses: []mockResponse{
		{err: rateErr},
		{err: rateErr},
		{payload: payloadWith("Monzo", rawTransaction{Date: "2026-03-01", Description: "A", Amount: f64Ptr(-1), Type: "debit"})},
	}}
	o, sleeps := newTestOrchestrator(extractor, &mockSplitter{pages: 3})

	_, err := o.Run(context.Background(), []byte("doc"))
	require.NoError(t, err)
	assert.Equal(t, 3, extractor.calls)

	// Backoff grows between the two retries.
	require.Len(t, *sleeps, 2)
	assert.Greater(t, (*sleeps)[1], (*sleeps)[0])
}

func TestRun_RateLimitRetriesExhausted(t *testing.T) {
	rateErr := errs.New(errs.KindRateLimited, "rate limited")
	extractor := &mockExtractor{responses: []mockResponse{
		{err: rateErr}, {err: rateErr}, {err: rateErr},
	}}
	o, _ := newTestOrchestrator(extractor, &mockSplitter{pages: 3})

	_, err := o.Run(context.Background(), []byte("doc"))
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindRateLimited))
	assert.Equal(t, 3, extractor.calls, "initial attempt plus two retries")
}

func TestRun_TimeoutRetriesOnce(t *testing.T) {
	timeoutErr := errs.New(errs.KindTimeout, "timed out")
	extractor := &mockExtractor{responses: []mockResponse{
		{err: timeoutErr}, {err: timeoutErr},
	}}
	o, _ := newTestOrchestrator(extractor, &mockSplitter{pages: 3})

	_, err := o.Run(context.Background(), []byte("doc"))
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindTimeout))
	assert.Equal(t, 2, extractor.calls, "initial attempt plus one retry")
}

func TestRun_QuotaExhaustedKeepsEarlierChunks(t *testing.T) {
	extractor := &mockExtractor{responses: []mockResponse{
		{payload: payloadWith("Monzo", rawTransaction{Date: "2026-03-01", Description: "A", Amount: f64Ptr(-1), Type: "debit"})},
		{err: errs.New(errs.KindQuotaExhausted, "quota exhausted")},
	}}
	o, _ := newTestOrchestrator(extractor, &mockSplitter{pages: 12})

	result, err := o.Run(context.Background(), []byte("doc"))
	require.NoError(t, err, "partial results survive quota exhaustion")
	assert.Len(t, result.Transactions, 1)
}

func TestRun_QuotaExhaustedOnFirstChunkFails(t *testing.T) {
	extractor := &mockExtractor{responses: []mockResponse{
		{err: errs.New(errs.KindQuotaExhausted, "quota exhausted")},
	}}
	o, _ := newTestOrchestrator(extractor, &mockSplitter{pages: 12})

	_, err := o.Run(context.Background(), []byte("doc"))
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindQuotaExhausted))
}

func TestRun_NoTransactionsFound(t *testing.T) {
	extractor := &mockExtractor{responses: []mockResponse{
		{payload: payloadWith("Monzo")},
	}}
	o, _ := newTestOrchestrator(extractor, &mockSplitter{pages: 3})

	_, err := o.Run(context.Background(), []byte("doc"))
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindNoTransactions))
}

func TestMergePayloads_MetadataCapture(t *testing.T) {
	first := &chunkPayload{
		BankName:    strPtr("Monzo"),
		PeriodStart: strPtr("2026-03-01"),
		PeriodEnd:   strPtr("2026-03-10"),
		Transactions: []rawTransaction{
			{Date: "2026-03-01", Description: "A", Amount: f64Ptr(-1), Type: "debit"},
		},
	}
	last := &chunkPayload{
		BankName:  strPtr("Ignored Bank"),
		PeriodEnd: strPtr("2026-03-31"),
		Transactions: []rawTransaction{
			{Date: "2026-03-20", Description: "B", Amount: f64Ptr(2), Type: "credit"},
		},
	}

	result := mergePayloads([]*chunkPayload{first, last})

	assert.Equal(t, "Monzo", result.BankName, "bank name comes from the first chunk reporting one")
	require.NotNil(t, result.PeriodStart)
	assert.Equal(t, "2026-03-01", result.PeriodStart.Format("2006-01-02"))
	require.NotNil(t, result.PeriodEnd)
	assert.Equal(t, "2026-03-31", result.PeriodEnd.Format("2006-01-02"), "period end comes from the last chunk reporting one")
	assert.Len(t, result.Transactions, 2)
}

func TestDedupeTransactions(t *testing.T) {
	date := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	txs := []Transaction{
		{Date: date, Description: "TESCO STORES 2041 LONDON", Amount: -12.50},
		{Date: date, Description: "tesco stores 2041 london GB", Amount: -12.50}, // same 30-char prefix
		{Date: date, Description: "TESCO STORES 2041 LONDON", Amount: -13.00},    // different amount
		{Date: date.AddDate(0, 0, 1), Description: "TESCO STORES 2041 LONDON", Amount: -12.50},
	}

	got := dedupeTransactions(txs)
	require.Len(t, got, 3)
	assert.Equal(t, -12.50, got[0].Amount, "first occurrence wins")
}

func TestToTransaction_NegativeAmountImpliesDebit(t *testing.T) {
	tx := toTransaction(rawTransaction{
		Date: "2026-03-01", Description: " COFFEE ", Amount: f64Ptr(-3.50), Type: "credit",
	})

	assert.True(t, tx.IsDebit)
	assert.Equal(t, "COFFEE", tx.Description)
	assert.Equal(t, "2026-03-01", tx.Date.Format("2006-01-02"))
	assert.Equal(t, -3.50, tx.Raw["amount"])
}
