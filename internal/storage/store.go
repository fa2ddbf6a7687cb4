package storage

import (
	"context"
	"time"

	"budget/internal/core"
	"budget/internal/watch"
)

// MonthData is the result of the month query: every budget record for the
// month and every transaction inside its time window, newest first.
type MonthData struct {
	Month        core.MonthKey
	Budgets      []core.BudgetRecord
	Transactions []core.Transaction
	// Revision is the store's write counter read before loading; the data
	// reflects at least every write up to it.
	Revision uint64
}

// Store is the persistent store behind the budget engine.
type Store interface {
	// Location is the time zone month windows are computed in.
	Location() *time.Location

	// ObserveMonth emits the month query right away and again after every
	// write touching that month.
	ObserveMonth(ctx context.Context, month core.MonthKey) *watch.Feed[MonthData]
	LoadMonth(ctx context.Context, month core.MonthKey) (MonthData, error)

	// GetBudget returns the record for (month, category), with State set
	// to core.StateAbsent when there is none.
	GetBudget(ctx context.Context, month core.MonthKey, c core.Category) (core.BudgetRecord, error)
	// UpsertBudget inserts or replaces the record keyed by (month, category).
	UpsertBudget(ctx context.Context, rec core.BudgetRecord) (core.BudgetRecord, error)

	InsertTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error)
	// DeleteTransaction removes one transaction; unknown IDs are a no-op.
	DeleteTransaction(ctx context.Context, id int64) error
	DeleteAllTransactions(ctx context.Context) error
	// MaxTransactionID returns the highest transaction ID ever assigned.
	MaxTransactionID(ctx context.Context) (int64, error)

	Close() error
}
