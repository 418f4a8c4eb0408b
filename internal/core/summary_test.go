package core

import (
	"testing"
	"time"
)

func TestSummarize(t *testing.T) {
	paidAt := time.Now()
	txs := []Transaction{
		{Type: Income, Amount: NewMoney(10000), IsPaid: true, PaidAt: &paidAt},
		{Type: Expense, Amount: NewMoney(4000)},
	}
	s := Summarize(txs)

	checks := []struct {
		name string
		got  Money
		want int64
	}{
		{"totalIncome", s.TotalIncome, 10000},
		{"totalExpenses", s.TotalExpenses, 4000},
		{"balance", s.Balance, 6000},
		{"paidBalance", s.PaidBalance, 10000},
		{"pendingBalance", s.PendingBalance, -4000},
		{"paidIncome", s.PaidIncome, 10000},
		{"pendingExpenses", s.PendingExpenses, 4000},
	}
	for _, c := range checks {
		if c.got.Cents != c.want {
			t.Fatalf("%s: expected %d, got %d", c.name, c.want, c.got.Cents)
		}
	}
	if s.TransactionCount != 2 {
		t.Fatalf("expected 2 transactions, got %d", s.TransactionCount)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	if s.Balance.Cents != 0 || s.TransactionCount != 0 {
		t.Fatalf("expected zero summary, got %+v", s)
	}
}
