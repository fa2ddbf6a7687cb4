package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	PrepareContext(context.Context, string) (*sql.Stmt, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type Budget struct {
	ID              int64
	MonthYear       string
	CategoryID      string
	State           string
	MaxBudgetCents  int64
	LastBudgetCents int64
	LastSpentCents  int64
	SpentSinceTxID  int64
	UpdatedMillis   int64
}

type Transaction struct {
	ID              int64
	TimestampMillis int64
	AmountCents     int64
	CategoryID      string
	Description     sql.NullString
}

const budgetColumns = `id, month_year, category_id, state, max_budget_cents, last_budget_cents, last_spent_cents, spent_since_tx_id, updated_millis`

func scanBudget(row interface{ Scan(...interface{}) error }) (Budget, error) {
	var b Budget
	err := row.Scan(
		&b.ID,
		&b.MonthYear,
		&b.CategoryID,
		&b.State,
		&b.MaxBudgetCents,
		&b.LastBudgetCents,
		&b.LastSpentCents,
		&b.SpentSinceTxID,
		&b.UpdatedMillis,
	)
	return b, err
}

const getBudgetsByMonth = `SELECT ` + budgetColumns + `
FROM budgets
WHERE month_year = ?
ORDER BY id`

func (q *Queries) GetBudgetsByMonth(ctx context.Context, monthYear string) ([]Budget, error) {
	rows, err := q.db.QueryContext(ctx, getBudgetsByMonth, monthYear)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getBudget = `SELECT ` + budgetColumns + `
FROM budgets
WHERE month_year = ? AND category_id = ?`

type GetBudgetParams struct {
	MonthYear  string
	CategoryID string
}

func (q *Queries) GetBudget(ctx context.Context, arg GetBudgetParams) (Budget, error) {
	row := q.db.QueryRowContext(ctx, getBudget, arg.MonthYear, arg.CategoryID)
	return scanBudget(row)
}

const upsertBudget = `INSERT INTO budgets (
    month_year, category_id, state, max_budget_cents, last_budget_cents, last_spent_cents, spent_since_tx_id, updated_millis
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (month_year, category_id) DO UPDATE SET
    state = excluded.state,
    max_budget_cents = excluded.max_budget_cents,
    last_budget_cents = excluded.last_budget_cents,
    last_spent_cents = excluded.last_spent_cents,
    spent_since_tx_id = excluded.spent_since_tx_id,
    updated_millis = excluded.updated_millis
RETURNING ` + budgetColumns

type UpsertBudgetParams struct {
	MonthYear       string
	CategoryID      string
	State           string
	MaxBudgetCents  int64
	LastBudgetCents int64
	LastSpentCents  int64
	SpentSinceTxID  int64
	UpdatedMillis   int64
}

func (q *Queries) UpsertBudget(ctx context.Context, arg UpsertBudgetParams) (Budget, error) {
	row := q.db.QueryRowContext(ctx, upsertBudget,
		arg.MonthYear,
		arg.CategoryID,
		arg.State,
		arg.MaxBudgetCents,
		arg.LastBudgetCents,
		arg.LastSpentCents,
		arg.SpentSinceTxID,
		arg.UpdatedMillis,
	)
	return scanBudget(row)
}

const createTransaction = `INSERT INTO transactions (
    timestamp_millis, amount_cents, category_id, description
) VALUES (?, ?, ?, ?)
RETURNING id, timestamp_millis, amount_cents, category_id, description`

type CreateTransactionParams struct {
	TimestampMillis int64
	AmountCents     int64
	CategoryID      string
	Description     sql.NullString
}

func (q *Queries) CreateTransaction(ctx context.Context, arg CreateTransactionParams) (Transaction, error) {
	row := q.db.QueryRowContext(ctx, createTransaction,
		arg.TimestampMillis,
		arg.AmountCents,
		arg.CategoryID,
		arg.Description,
	)
	var t Transaction
	err := row.Scan(&t.ID, &t.TimestampMillis, &t.AmountCents, &t.CategoryID, &t.Description)
	return t, err
}

const getTransactionsForPeriod = `SELECT id, timestamp_millis, amount_cents, category_id, description
FROM transactions
WHERE timestamp_millis BETWEEN ? AND ?
ORDER BY timestamp_millis DESC, id DESC`

type GetTransactionsForPeriodParams struct {
	StartMillis int64
	EndMillis   int64
}

func (q *Queries) GetTransactionsForPeriod(ctx context.Context, arg GetTransactionsForPeriodParams) ([]Transaction, error) {
	rows, err := q.db.QueryContext(ctx, getTransactionsForPeriod, arg.StartMillis, arg.EndMillis)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.TimestampMillis, &t.AmountCents, &t.CategoryID, &t.Description); err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteTransaction = `DELETE FROM transactions
WHERE id = ?
RETURNING timestamp_millis`

// DeleteTransaction returns the timestamp of the removed row, or
// sql.ErrNoRows when nothing matched.
func (q *Queries) DeleteTransaction(ctx context.Context, id int64) (int64, error) {
	row := q.db.QueryRowContext(ctx, deleteTransaction, id)
	var ts int64
	err := row.Scan(&ts)
	return ts, err
}

const deleteAllTransactions = `DELETE FROM transactions`

func (q *Queries) DeleteAllTransactions(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, deleteAllTransactions)
	return err
}

const getTransactionSequence = `SELECT COALESCE(MAX(seq), 0)
FROM sqlite_sequence
WHERE name = 'transactions'`

func (q *Queries) GetTransactionSequence(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, getTransactionSequence)
	var seq int64
	err := row.Scan(&seq)
	return seq, err
}
