package services

import (
	"context"
	"fmt"

	"saldo/internal/access"
	"saldo/internal/amqp"
	"saldo/internal/core"
	applog "saldo/internal/log"
)

// TransactionService runs ledger operations through a scoped accessor and
// announces changes.
type TransactionService struct {
	notifier
	today func() core.Date
}

func NewTransactionService(events Publisher) *TransactionService {
	return &TransactionService{notifier: notifier{events: events}, today: core.Today}
}

// List returns one page of transactions and the total match count. A zero
// limit means the default page size.
func (s *TransactionService) List(ctx context.Context, acc *access.Accessor, f core.TransactionFilter) ([]core.Transaction, int, error) {
	if f.Limit == 0 {
		f.Limit = core.DefaultListLimit
	}
	txs, total, err := acc.ListTransactions(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	return txs, total, nil
}

func (s *TransactionService) Get(ctx context.Context, acc *access.Accessor, id string) (core.Transaction, error) {
	return acc.GetTransaction(ctx, id)
}

// Create stores a transaction dated today unless a date is given.
func (s *TransactionService) Create(ctx context.Context, acc *access.Accessor, t core.Transaction) (core.Transaction, error) {
	if t.Date.IsZero() {
		t.Date = s.today()
	}
	created, err := acc.CreateTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	applog.FromContext(ctx).InfoContext(ctx, "Transaction created",
		"transaction_id", created.ID,
		"type", created.Type,
		"amount", created.Amount.String())
	s.publish(ctx, amqp.TransactionCreated, created.ID, created.UserID, acc.Scope().CallerID)
	return created, nil
}

func (s *TransactionService) Update(ctx context.Context, acc *access.Accessor, id string, patch core.TransactionPatch) (core.Transaction, error) {
	updated, err := acc.UpdateTransaction(ctx, id, patch)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}

	applog.FromContext(ctx).InfoContext(ctx, "Transaction updated", "transaction_id", updated.ID)
	s.publish(ctx, amqp.TransactionUpdated, updated.ID, updated.UserID, acc.Scope().CallerID)
	return updated, nil
}

func (s *TransactionService) Delete(ctx context.Context, acc *access.Accessor, id string) error {
	if err := acc.DeleteTransaction(ctx, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}

	applog.FromContext(ctx).InfoContext(ctx, "Transaction deleted", "transaction_id", id)
	owner := acc.Scope().WriteOwner()
	s.publish(ctx, amqp.TransactionDeleted, id, owner, owner)
	return nil
}

func (s *TransactionService) MarkPaid(ctx context.Context, acc *access.Accessor, id string) (core.Transaction, error) {
	t, err := acc.MarkPaid(ctx, id)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("mark paid: %w", err)
	}
	s.paidChanged(ctx, acc, t)
	return t, nil
}

func (s *TransactionService) MarkUnpaid(ctx context.Context, acc *access.Accessor, id string) (core.Transaction, error) {
	t, err := acc.MarkUnpaid(ctx, id)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("mark unpaid: %w", err)
	}
	s.paidChanged(ctx, acc, t)
	return t, nil
}

func (s *TransactionService) TogglePaid(ctx context.Context, acc *access.Accessor, id string) (core.Transaction, error) {
	t, err := acc.TogglePaid(ctx, id)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("toggle paid: %w", err)
	}
	s.paidChanged(ctx, acc, t)
	return t, nil
}

func (s *TransactionService) paidChanged(ctx context.Context, acc *access.Accessor, t core.Transaction) {
	typ := amqp.TransactionUnpaid
	if t.IsPaid {
		typ = amqp.TransactionPaid
	}
	applog.FromContext(ctx).InfoContext(ctx, "Transaction payment status changed", "transaction_id", t.ID, "is_paid", t.IsPaid)
	s.publish(ctx, typ, t.ID, t.UserID, acc.Scope().CallerID)
}
