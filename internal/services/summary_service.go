package services

import (
	"context"
	"fmt"

	"saldo/internal/access"
	"saldo/internal/core"
)

// SummaryService totals the caller's own transactions. Staff callers get
// their own totals too.
type SummaryService struct{}

func NewSummaryService() *SummaryService {
	return &SummaryService{}
}

// Summary computes the totals from the current rows in [start, end].
func (s *SummaryService) Summary(ctx context.Context, acc *access.Accessor, start, end *core.Date) (core.Summary, error) {
	txs, err := acc.OwnTransactions(ctx, start, end)
	if err != nil {
		return core.Summary{}, fmt.Errorf("load transactions: %w", err)
	}
	summary := core.Summarize(txs)
	summary.StartDate, summary.EndDate = start, end
	return summary, nil
}
