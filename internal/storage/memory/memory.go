// Package memory is a volatile Store for tests and quick local runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"budget/internal/core"
	"budget/internal/storage"
	"budget/internal/watch"
)

type budgetKey struct {
	month    core.MonthKey
	category core.Category
}

type Store struct {
	mu       sync.Mutex
	loc      *time.Location
	budgets  map[budgetKey]core.BudgetRecord
	items    []core.Transaction
	budgetID int64
	txSeq    int64
	revision uint64
	hub      *watch.Hub[core.MonthKey]
	now      func() time.Time
}

var _ storage.Store = (*Store)(nil)

func New(loc *time.Location) *Store {
	if loc == nil {
		loc = time.Local
	}
	return &Store{
		loc:     loc,
		budgets: make(map[budgetKey]core.BudgetRecord),
		hub:     watch.NewHub[core.MonthKey](),
		now:     time.Now,
	}
}

func (s *Store) Location() *time.Location { return s.loc }

func (s *Store) Close() error { return nil }

func (s *Store) ObserveMonth(ctx context.Context, month core.MonthKey) *watch.Feed[storage.MonthData] {
	return watch.Observe(ctx, s.hub, month, func(ctx context.Context) (storage.MonthData, error) {
		return s.LoadMonth(ctx, month)
	})
}

func (s *Store) LoadMonth(_ context.Context, month core.MonthKey) (storage.MonthData, error) {
	start, end, err := core.MonthBounds(month, s.loc)
	if err != nil {
		return storage.MonthData{Month: month}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data := storage.MonthData{Month: month, Revision: s.revision}
	for k, rec := range s.budgets {
		if k.month == month {
			data.Budgets = append(data.Budgets, rec)
		}
	}
	sort.Slice(data.Budgets, func(i, j int) bool { return data.Budgets[i].ID < data.Budgets[j].ID })

	for _, tx := range s.items {
		ms := tx.Timestamp.UnixMilli()
		if ms >= start && ms <= end {
			data.Transactions = append(data.Transactions, tx)
		}
	}
	sort.SliceStable(data.Transactions, func(i, j int) bool {
		a, b := data.Transactions[i], data.Transactions[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		return a.ID > b.ID
	})
	return data, nil
}

func (s *Store) GetBudget(_ context.Context, month core.MonthKey, c core.Category) (core.BudgetRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.budgets[budgetKey{month, c}]; ok {
		return rec, nil
	}
	return core.BudgetRecord{Month: month, Category: c, State: core.StateAbsent}, nil
}

func (s *Store) UpsertBudget(_ context.Context, rec core.BudgetRecord) (core.BudgetRecord, error) {
	if err := rec.Validate(); err != nil {
		return core.BudgetRecord{}, err
	}

	s.mu.Lock()
	key := budgetKey{rec.Month, rec.Category}
	if prev, ok := s.budgets[key]; ok {
		rec.ID = prev.ID
	} else {
		s.budgetID++
		rec.ID = s.budgetID
	}
	rec.UpdatedAt = s.now()
	s.budgets[key] = rec
	s.revision++
	s.mu.Unlock()

	s.hub.Notify(rec.Month)
	return rec, nil
}

func (s *Store) InsertTransaction(_ context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}

	s.mu.Lock()
	s.txSeq++
	tx.ID = s.txSeq
	tx.Timestamp = tx.Timestamp.In(s.loc)
	if tx.Description != nil {
		d := *tx.Description
		tx.Description = &d
	}
	s.items = append(s.items, tx)
	s.revision++
	s.mu.Unlock()

	s.hub.Notify(core.MonthOf(tx.Timestamp))
	return tx, nil
}

func (s *Store) DeleteTransaction(_ context.Context, id int64) error {
	s.mu.Lock()
	idx := -1
	for i, tx := range s.items {
		if tx.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return nil
	}
	month := core.MonthOf(s.items[idx].Timestamp)
	s.items = append(s.items[:idx], s.items[idx+1:]...)
	s.revision++
	s.mu.Unlock()

	s.hub.Notify(month)
	return nil
}

func (s *Store) DeleteAllTransactions(_ context.Context) error {
	s.mu.Lock()
	s.items = nil
	s.revision++
	s.mu.Unlock()

	s.hub.NotifyAll()
	return nil
}

// MaxTransactionID returns the highest ID ever handed out; IDs are not
// reused after deletes.
func (s *Store) MaxTransactionID(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txSeq, nil
}
