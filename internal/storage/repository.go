package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"budget/internal/cache"
	"budget/internal/core"
	"budget/internal/log"
	"budget/internal/watch"

	_ "modernc.org/sqlite"
)

const (
	monthCacheSize = 24
	monthCacheTTL  = 10 * time.Minute
)

// SQLiteRepository is the durable Store. Every committed write bumps the
// revision and signals observers of the affected month.
type SQLiteRepository struct {
	db       *sql.DB
	queries  *Queries
	loc      *time.Location
	hub      *watch.Hub[core.MonthKey]
	revision atomic.Uint64
	months   *cache.LRU[monthCacheKey, MonthData]

	pollMu  sync.Mutex
	polling bool
	pollCh  chan struct{}
	pollEnd chan struct{}
}

// monthCacheKey pins a cached month query to the local revision and the
// database's data_version, so writes from any connection miss the cache.
type monthCacheKey struct {
	month       core.MonthKey
	revision    uint64
	dataVersion int64
}

var _ Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string, loc *time.Location) (*SQLiteRepository, error) {
	if loc == nil {
		loc = time.Local
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer and a handful of reads: a single connection keeps SQLite
	// free of lock contention.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		loc:     loc,
		hub:     watch.NewHub[core.MonthKey](),
		months:  cache.NewLRU[monthCacheKey, MonthData](monthCacheSize, monthCacheTTL),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if err := r.StopChangePoller(context.Background()); err != nil {
		logger(context.Background()).Warn("Change poller did not stop cleanly", log.FieldError, err)
	}
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Location() *time.Location {
	return r.loc
}

// ObserveMonth implements Store.
func (r *SQLiteRepository) ObserveMonth(ctx context.Context, month core.MonthKey) *watch.Feed[MonthData] {
	return watch.Observe(ctx, r.hub, month, func(ctx context.Context) (MonthData, error) {
		return r.LoadMonth(ctx, month)
	})
}

// LoadMonth implements Store. Results are shared with other callers and must
// not be modified.
func (r *SQLiteRepository) LoadMonth(ctx context.Context, month core.MonthKey) (MonthData, error) {
	data := MonthData{Month: month, Revision: r.revision.Load()}

	start, end, err := core.MonthBounds(month, r.loc)
	if err != nil {
		return data, err
	}

	dv, err := r.dataVersion(ctx)
	if err != nil {
		return data, err
	}
	key := monthCacheKey{month: month, revision: data.Revision, dataVersion: dv}
	if cached, ok := r.months.Get(key); ok {
		return cached, nil
	}

	// Both queries read the same snapshot, even with other processes writing.
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return data, fmt.Errorf("begin month read: %w", err)
	}
	defer tx.Rollback()
	q := r.queries.WithTx(tx)

	rows, err := q.GetBudgetsByMonth(ctx, string(month))
	if err != nil {
		return data, fmt.Errorf("get budgets for month %s: %w", month, err)
	}
	for _, row := range rows {
		rec, err := budgetFromRow(row)
		if err != nil {
			return data, err
		}
		data.Budgets = append(data.Budgets, rec)
	}

	txRows, err := q.GetTransactionsForPeriod(ctx, GetTransactionsForPeriodParams{
		StartMillis: start,
		EndMillis:   end,
	})
	if err != nil {
		return data, fmt.Errorf("get transactions for month %s: %w", month, err)
	}
	for _, row := range txRows {
		data.Transactions = append(data.Transactions, r.transactionFromRow(row))
	}
	if err := tx.Commit(); err != nil {
		return data, fmt.Errorf("finish month read: %w", err)
	}

	r.months.Set(key, data)
	return data, nil
}

// GetBudget implements Store.
func (r *SQLiteRepository) GetBudget(ctx context.Context, month core.MonthKey, c core.Category) (core.BudgetRecord, error) {
	row, err := r.queries.GetBudget(ctx, GetBudgetParams{
		MonthYear:  string(month),
		CategoryID: c.ID(),
	})
	if errors.Is(err, sql.ErrNoRows) {
		return core.BudgetRecord{Month: month, Category: c, State: core.StateAbsent}, nil
	}
	if err != nil {
		return core.BudgetRecord{}, fmt.Errorf("get budget %s/%s: %w", month, c, err)
	}
	return budgetFromRow(row)
}

// UpsertBudget implements Store.
func (r *SQLiteRepository) UpsertBudget(ctx context.Context, rec core.BudgetRecord) (core.BudgetRecord, error) {
	if err := rec.Validate(); err != nil {
		return core.BudgetRecord{}, fmt.Errorf("validate budget: %w", err)
	}

	row, err := r.queries.UpsertBudget(ctx, UpsertBudgetParams{
		MonthYear:       string(rec.Month),
		CategoryID:      rec.Category.ID(),
		State:           rec.State.String(),
		MaxBudgetCents:  rec.MaxBudget.Cents,
		LastBudgetCents: rec.LastKnown.MaxBudget.Cents,
		LastSpentCents:  rec.LastKnown.Spent.Cents,
		SpentSinceTxID:  rec.SpentSinceTxID,
		UpdatedMillis:   time.Now().UnixMilli(),
	})
	if err != nil {
		return core.BudgetRecord{}, fmt.Errorf("upsert budget %s/%s: %w", rec.Month, rec.Category, err)
	}

	r.committed(rec.Month)

	logger(ctx).DebugContext(ctx, "Budget saved to SQLite",
		"id", row.ID,
		"month", row.MonthYear,
		"category", row.CategoryID,
		"state", row.State,
		"max_budget_cents", row.MaxBudgetCents)

	return budgetFromRow(row)
}

// InsertTransaction implements Store.
func (r *SQLiteRepository) InsertTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, fmt.Errorf("validate transaction: %w", err)
	}

	var desc sql.NullString
	if tx.Description != nil {
		desc = sql.NullString{String: *tx.Description, Valid: true}
	}

	row, err := r.queries.CreateTransaction(ctx, CreateTransactionParams{
		TimestampMillis: tx.Timestamp.UnixMilli(),
		AmountCents:     tx.Amount.Cents,
		CategoryID:      tx.Category.ID(),
		Description:     desc,
	})
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	saved := r.transactionFromRow(row)
	r.committed(core.MonthOf(saved.Timestamp))

	logger(ctx).InfoContext(ctx, "Transaction saved to SQLite",
		"id", saved.ID,
		"category", saved.Category,
		"amount_cents", saved.Amount.Cents)

	return saved, nil
}

// DeleteTransaction implements Store.
func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id int64) error {
	ts, err := r.queries.DeleteTransaction(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		logger(ctx).DebugContext(ctx, "Transaction already gone", "id", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete transaction %d: %w", id, err)
	}

	r.committed(core.MonthOf(time.UnixMilli(ts).In(r.loc)))

	logger(ctx).InfoContext(ctx, "Transaction deleted", "id", id)
	return nil
}

// DeleteAllTransactions implements Store.
func (r *SQLiteRepository) DeleteAllTransactions(ctx context.Context) error {
	if err := r.queries.DeleteAllTransactions(ctx); err != nil {
		return fmt.Errorf("delete all transactions: %w", err)
	}

	r.revision.Add(1)
	r.hub.NotifyAll()

	logger(ctx).InfoContext(ctx, "All transactions deleted")
	return nil
}

// MaxTransactionID implements Store.
func (r *SQLiteRepository) MaxTransactionID(ctx context.Context) (int64, error) {
	seq, err := r.queries.GetTransactionSequence(ctx)
	if err != nil {
		return 0, fmt.Errorf("get transaction sequence: %w", err)
	}
	return seq, nil
}

// logger returns the logger carried by ctx, reporting as storage.
func logger(ctx context.Context) *log.Logger {
	return log.FromContext(ctx).WithComponent(log.ComponentStorage)
}

func (r *SQLiteRepository) committed(month core.MonthKey) {
	r.revision.Add(1)
	r.hub.Notify(month)
}

func budgetFromRow(row Budget) (core.BudgetRecord, error) {
	state, err := core.ParseBudgetState(row.State)
	if err != nil {
		return core.BudgetRecord{}, fmt.Errorf("budget %d: %w", row.ID, err)
	}
	rec := core.BudgetRecord{
		ID:        row.ID,
		Month:     core.MonthKey(row.MonthYear),
		Category:  core.Category(row.CategoryID),
		State:     state,
		MaxBudget: core.Money{Cents: row.MaxBudgetCents},
		LastKnown: core.BudgetValues{
			MaxBudget: core.Money{Cents: row.LastBudgetCents},
			Spent:     core.Money{Cents: row.LastSpentCents},
		},
		SpentSinceTxID: row.SpentSinceTxID,
	}
	if row.UpdatedMillis > 0 {
		rec.UpdatedAt = time.UnixMilli(row.UpdatedMillis)
	}
	return rec, nil
}

func (r *SQLiteRepository) transactionFromRow(row Transaction) core.Transaction {
	tx := core.Transaction{
		ID:        row.ID,
		Timestamp: time.UnixMilli(row.TimestampMillis).In(r.loc),
		Amount:    core.Money{Cents: row.AmountCents},
		Category:  core.Category(row.CategoryID),
	}
	if row.Description.Valid {
		d := row.Description.String
		tx.Description = &d
	}
	return tx
}
