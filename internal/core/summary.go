package core

// Summary aggregates a set of transactions. It is always derived from
// current rows and never stored.
type Summary struct {
	TotalIncome      Money `json:"totalIncome"`
	TotalExpenses    Money `json:"totalExpenses"`
	PaidIncome       Money `json:"paidIncome"`
	PaidExpenses     Money `json:"paidExpenses"`
	PendingIncome    Money `json:"pendingIncome"`
	PendingExpenses  Money `json:"pendingExpenses"`
	Balance          Money `json:"balance"`
	PaidBalance      Money `json:"paidBalance"`
	PendingBalance   Money `json:"pendingBalance"`
	TransactionCount int   `json:"transactionCount"`
	StartDate        *Date `json:"startDate,omitempty"`
	EndDate          *Date `json:"endDate,omitempty"`
}

// Summarize totals income and expenses with their paid and pending splits.
func Summarize(txs []Transaction) Summary {
	var s Summary
	for _, t := range txs {
		cents := t.Amount.Cents
		switch t.Type {
		case Income:
			s.TotalIncome.Cents += cents
			if t.IsPaid {
				s.PaidIncome.Cents += cents
			} else {
				s.PendingIncome.Cents += cents
			}
		case Expense:
			s.TotalExpenses.Cents += cents
			if t.IsPaid {
				s.PaidExpenses.Cents += cents
			} else {
				s.PendingExpenses.Cents += cents
			}
		default:
			continue
		}
		s.TransactionCount++
	}
	s.Balance.Cents = s.TotalIncome.Cents - s.TotalExpenses.Cents
	s.PaidBalance.Cents = s.PaidIncome.Cents - s.PaidExpenses.Cents
	s.PendingBalance.Cents = s.PendingIncome.Cents - s.PendingExpenses.Cents
	return s
}
