package engine

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"budget/internal/core"
	"budget/internal/storage"
	"budget/internal/storage/memory"
)

var october = time.Date(2025, time.October, 15, 9, 30, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func startEngine(t *testing.T, store storage.Store, month core.MonthKey) *Engine {
	t.Helper()
	e := New(store, Config{Now: fixedClock(october), Month: month})
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start engine: %v", err)
	}
	t.Cleanup(func() { e.Stop(context.Background()) })
	return e
}

func settle(t *testing.T, e *Engine) core.UiState {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Sync(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}
	return e.State()
}

func money(s string) core.Money { return core.MustParseMoney(s) }

func strPtr(s string) *string { return &s }

type summaryWant struct {
	category  core.Category
	budget    string
	spent     string
	remaining string
}

func assertSummaries(t *testing.T, st core.UiState, want ...summaryWant) {
	t.Helper()
	if len(st.Summaries) != len(want) {
		t.Fatalf("got %d summaries, want %d: %+v", len(st.Summaries), len(want), st.Summaries)
	}
	for i, w := range want {
		got := st.Summaries[i]
		if got.Category != w.category {
			t.Errorf("summary %d category = %s, want %s", i, got.Category, w.category)
		}
		if got.BudgetAmount != money(w.budget) {
			t.Errorf("%s budget = %s, want %s", w.category, got.BudgetAmount, w.budget)
		}
		if got.SpentAmount != money(w.spent) {
			t.Errorf("%s spent = %s, want %s", w.category, got.SpentAmount, w.spent)
		}
		if got.RemainingAmount() != money(w.remaining) {
			t.Errorf("%s remaining = %s, want %s", w.category, got.RemainingAmount(), w.remaining)
		}
	}
}

func stores() map[string]func(t *testing.T) storage.Store {
	return map[string]func(t *testing.T) storage.Store{
		"memory": func(*testing.T) storage.Store { return memory.New(time.UTC) },
		"sqlite": func(t *testing.T) storage.Store {
			repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "budget.db"), time.UTC)
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			t.Cleanup(func() { repo.Close() })
			return repo
		},
	}
}

func TestOctoberScenario(t *testing.T) {
	for name, open := range stores() {
		t.Run(name, func(t *testing.T) {
			e := startEngine(t, open(t), "")

			st := settle(t, e)
			if st.MonthYear != "2025-10" || len(st.Summaries) != 0 || st.IsLoading {
				t.Fatalf("unexpected initial state: %+v", st)
			}

			if err := e.SetMaxBudgetForCategory(core.Food, money("500")); err != nil {
				t.Fatalf("set budget: %v", err)
			}
			assertSummaries(t, settle(t, e), summaryWant{core.Food, "500", "0", "500"})

			if err := e.RecordTransaction(money("120"), core.Food, strPtr("lunch")); err != nil {
				t.Fatalf("record: %v", err)
			}
			st = settle(t, e)
			assertSummaries(t, st, summaryWant{core.Food, "500", "120", "380"})
			if len(st.Transactions) != 1 || st.Transactions[0].Description == nil || *st.Transactions[0].Description != "lunch" {
				t.Fatalf("description should be preserved: %+v", st.Transactions)
			}

			if err := e.HideCategoryBudget(core.Food); err != nil {
				t.Fatalf("hide: %v", err)
			}
			assertSummaries(t, settle(t, e))

			if err := e.RecordTransaction(money("30"), core.Food, nil); err != nil {
				t.Fatalf("record: %v", err)
			}
			assertSummaries(t, settle(t, e), summaryWant{core.Food, "0", "30", "-30"})
		})
	}
}

func TestHiddenCategoriesNeverSummarised(t *testing.T) {
	e := startEngine(t, memory.New(time.UTC), "")

	for _, c := range core.Categories() {
		if err := e.SetMaxBudgetForCategory(c, money("100")); err != nil {
			t.Fatalf("set %s: %v", c, err)
		}
	}
	e.HideCategoryBudget(core.Food)
	e.HideCategoryBudget(core.Savings)
	e.HideCategoryBudget(core.Savings) // already hidden

	st := settle(t, e)
	want := []core.Category{core.Housing, core.Transportation, core.Entertainment}
	if len(st.Summaries) != len(want) {
		t.Fatalf("got %d summaries, want %d", len(st.Summaries), len(want))
	}
	for i, c := range want {
		if st.Summaries[i].Category != c {
			t.Errorf("summary %d = %s, want %s (enumeration order)", i, st.Summaries[i].Category, c)
		}
	}
}

func TestSpentIsSumOfRecordedAmounts(t *testing.T) {
	store := memory.New(time.UTC)
	e := startEngine(t, store, "")

	amounts := []string{"12.50", "0.01", "99.99", "7"}
	var total core.Money
	for _, a := range amounts {
		if err := e.RecordTransaction(money(a), core.Transportation, nil); err != nil {
			t.Fatalf("record %s: %v", a, err)
		}
		total = total.Add(money(a))
	}

	st := settle(t, e)
	sum, ok := st.Summary(core.Transportation)
	if !ok {
		t.Fatalf("recording should activate the category")
	}
	if sum.SpentAmount != total {
		t.Fatalf("spent = %s, want %s", sum.SpentAmount, total)
	}
	if sum.BudgetAmount.Cents != 0 {
		t.Fatalf("auto-activated budget should be zero, got %s", sum.BudgetAmount)
	}

	// Re-deriving from the stored rows gives the same total.
	data, err := store.LoadMonth(context.Background(), "2025-10")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	again := BuildSummaries(data.Budgets, data.Transactions)
	if len(again) != 1 || again[0].SpentAmount != total {
		t.Fatalf("re-derivation mismatch: %+v", again)
	}
}

func TestSetHideRecord(t *testing.T) {
	e := startEngine(t, memory.New(time.UTC), "")

	e.SetMaxBudgetForCategory(core.Entertainment, money("80"))
	e.RecordTransaction(money("25"), core.Entertainment, nil)
	e.HideCategoryBudget(core.Entertainment)
	e.RecordTransaction(money("15"), core.Entertainment, nil)

	assertSummaries(t, settle(t, e), summaryWant{core.Entertainment, "0", "15", "-15"})

	// Setting a budget again keeps spend counted from the hide point.
	e.SetMaxBudgetForCategory(core.Entertainment, money("50"))
	assertSummaries(t, settle(t, e), summaryWant{core.Entertainment, "50", "15", "35"})
}

func TestZeroBudgetAndOverspend(t *testing.T) {
	e := startEngine(t, memory.New(time.UTC), "")

	if err := e.SetMaxBudgetForCategory(core.Housing, core.Money{}); err != nil {
		t.Fatalf("zero budget should be accepted: %v", err)
	}
	e.RecordTransaction(money("40"), core.Housing, nil)
	e.SetMaxBudgetForCategory(core.Savings, money("10"))
	e.RecordTransaction(money("12.34"), core.Savings, nil)

	st := settle(t, e)
	assertSummaries(t, st,
		summaryWant{core.Housing, "0", "40", "-40"},
		summaryWant{core.Savings, "10", "12.34", "-2.34"},
	)
	for _, s := range st.Summaries {
		if !s.OverBudget() {
			t.Errorf("%s should be over budget", s.Category)
		}
	}
}

func TestInputValidation(t *testing.T) {
	e := startEngine(t, memory.New(time.UTC), "")

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"negative budget", e.SetMaxBudgetForCategory(core.Food, money("-1")), core.ErrNegativeBudget},
		{"unknown category budget", e.SetMaxBudgetForCategory("pets", money("1")), core.ErrUnknownCategory},
		{"zero amount", e.RecordTransaction(core.Money{}, core.Food, nil), core.ErrInvalidAmount},
		{"negative amount", e.RecordTransaction(money("-5"), core.Food, nil), core.ErrInvalidAmount},
		{"no category", e.RecordTransaction(money("5"), "", nil), core.ErrNoCategory},
		{"hide unknown", e.HideCategoryBudget("pets"), core.ErrUnknownCategory},
		{"bad month", e.SetMonth("2025-13"), core.ErrInvalidMonth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.want) {
				t.Fatalf("got %v, want %v", tt.err, tt.want)
			}
		})
	}

	if st := settle(t, e); len(st.Summaries) != 0 || st.ErrorMessage != "" {
		t.Fatalf("rejected input must not reach the store: %+v", st)
	}
}

func TestSetMonthSwitchesSubscription(t *testing.T) {
	store := memory.New(time.UTC)
	e := startEngine(t, store, "")

	e.SetMaxBudgetForCategory(core.Food, money("300"))
	settle(t, e)

	if err := e.SetMonth("2025-11"); err != nil {
		t.Fatalf("set month: %v", err)
	}
	st := settle(t, e)
	if st.MonthYear != "2025-11" || len(st.Summaries) != 0 {
		t.Fatalf("unexpected november state: %+v", st)
	}

	// Budgets set now land in the viewed month.
	e.SetMaxBudgetForCategory(core.Savings, money("1000"))
	assertSummaries(t, settle(t, e), summaryWant{core.Savings, "1000", "0", "1000"})

	e.SetMonth("2025-10")
	assertSummaries(t, settle(t, e), summaryWant{core.Food, "300", "0", "300"})
}

func TestSubscribeFollowsStoreChanges(t *testing.T) {
	store := memory.New(time.UTC)
	e := startEngine(t, store, "")
	settle(t, e)

	sub := e.Subscribe()
	defer sub.Cancel()
	<-sub.C()

	// A write that bypasses the engine still reaches subscribers.
	rec := core.BudgetRecord{Month: "2025-10", Category: core.Food}.Activate(money("42"))
	if _, err := store.UpsertBudget(context.Background(), rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case st := <-sub.C():
			if s, ok := st.Summary(core.Food); ok && s.BudgetAmount == money("42") {
				return
			}
		case <-deadline:
			t.Fatalf("subscriber never saw the external write")
		}
	}
}

func TestDeleteAndClearTransactions(t *testing.T) {
	e := startEngine(t, memory.New(time.UTC), "")

	e.RecordTransaction(money("10"), core.Food, nil)
	e.RecordTransaction(money("20"), core.Food, nil)
	st := settle(t, e)
	if len(st.Transactions) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(st.Transactions))
	}

	e.DeleteTransaction(st.Transactions[0].ID)
	e.DeleteTransaction(12345)
	st = settle(t, e)
	if st.ErrorMessage != "" {
		t.Fatalf("deleting an unknown id should not error: %q", st.ErrorMessage)
	}
	assertSummaries(t, st, summaryWant{core.Food, "0", "10", "-10"})

	e.ClearAllTransactions()
	st = settle(t, e)
	if len(st.Transactions) != 0 {
		t.Fatalf("expected no transactions after clear")
	}
	assertSummaries(t, st, summaryWant{core.Food, "0", "0", "0"})
}

type failingStore struct {
	*memory.Store
	err error
}

func (f *failingStore) UpsertBudget(context.Context, core.BudgetRecord) (core.BudgetRecord, error) {
	return core.BudgetRecord{}, f.err
}

func TestStorageFailureSurfacesInState(t *testing.T) {
	boom := errors.New("disk full")
	e := startEngine(t, &failingStore{Store: memory.New(time.UTC), err: boom}, "")
	sub := e.Subscribe()
	defer sub.Cancel()

	if err := e.SetMaxBudgetForCategory(core.Food, money("10")); err != nil {
		t.Fatalf("enqueue should succeed: %v", err)
	}
	st := settle(t, e)
	if !strings.Contains(st.ErrorMessage, boom.Error()) {
		t.Fatalf("storage failure should set the error message, got %q", st.ErrorMessage)
	}
	if !e.IsRunning() {
		t.Fatalf("engine must keep running after a storage failure")
	}

	// Latest-value subscribers see the error as well.
	var latest core.UiState
	for drained := false; !drained; {
		select {
		case latest = <-sub.C():
		default:
			drained = true
		}
	}
	if !strings.Contains(latest.ErrorMessage, boom.Error()) {
		t.Fatalf("subscriber missed the error: %+v", latest)
	}

	e.ClearErrorMessage()
	if st := e.State(); st.ErrorMessage != "" {
		t.Fatalf("error message not cleared: %q", st.ErrorMessage)
	}
	if st := settle(t, e); st.ErrorMessage != "" {
		t.Fatalf("cleared error came back after a reload: %q", st.ErrorMessage)
	}
}

func TestPartialWriteFailureSurvivesReload(t *testing.T) {
	boom := errors.New("disk full")
	store := &failingStore{Store: memory.New(time.UTC), err: boom}
	e := startEngine(t, store, "")

	// The insert lands and re-emits the month; activating the budget fails.
	if err := e.RecordTransaction(money("12"), core.Food, nil); err != nil {
		t.Fatalf("RecordTransaction: %v", err)
	}
	st := settle(t, e)
	if len(st.Transactions) != 1 {
		t.Fatalf("transaction should be stored: %+v", st)
	}
	if !strings.Contains(st.ErrorMessage, boom.Error()) {
		t.Fatalf("error lost to the newer month data: %q", st.ErrorMessage)
	}

	// A later successful write resolves it.
	if err := e.DeleteTransaction(st.Transactions[0].ID); err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}
	if st := settle(t, e); st.ErrorMessage != "" {
		t.Fatalf("successful write should clear the error: %q", st.ErrorMessage)
	}
}

func TestLifecycle(t *testing.T) {
	e := New(memory.New(time.UTC), Config{Now: fixedClock(october)})

	if err := e.RecordTransaction(money("1"), core.Food, nil); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("writes before Start should fail with ErrNotRunning, got %v", err)
	}
	if st := e.State(); !st.IsLoading || st.MonthYear != "2025-10" {
		t.Fatalf("initial state should be loading 2025-10: %+v", st)
	}

	ctx := context.Background()
	if err := e.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := e.Start(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Start = %v", err)
	}
	if err := e.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if e.IsRunning() {
		t.Fatalf("engine still running after Stop")
	}
	if err := e.Sync(ctx); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Sync after Stop = %v", err)
	}

	// Restart picks up where it left off.
	if err := e.Start(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
	defer e.Stop(ctx)
	if err := e.Sync(ctx); err != nil {
		t.Fatalf("sync after restart: %v", err)
	}
}

func TestConfigMonth(t *testing.T) {
	e := startEngine(t, memory.New(time.UTC), "2024-02")
	if st := settle(t, e); st.MonthYear != "2024-02" {
		t.Fatalf("month = %s, want 2024-02", st.MonthYear)
	}
	if got := e.Categories(); len(got) != 5 || got[0] != core.Housing {
		t.Fatalf("unexpected categories: %v", got)
	}
}

func TestCancelledStartContextStopsWrites(t *testing.T) {
	e := New(memory.New(time.UTC), Config{Now: fixedClock(october)})

	ctx, cancel := context.WithCancel(context.Background())
	if err := e.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for e.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatalf("engine still running after its context was cancelled")
		}
		time.Sleep(time.Millisecond)
	}

	for i := 0; i < 20; i++ {
		if err := e.SetMaxBudgetForCategory(core.Food, money("10")); !errors.Is(err, ErrNotRunning) {
			t.Fatalf("write %d after cancel = %v, want ErrNotRunning", i, err)
		}
	}

	// A fresh Start works again.
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	defer e.Stop(context.Background())
	if err := e.SetMaxBudgetForCategory(core.Food, money("10")); err != nil {
		t.Fatalf("write after restart: %v", err)
	}
	assertSummaries(t, settle(t, e), summaryWant{core.Food, "10", "0", "10"})
}

func TestConcurrentStop(t *testing.T) {
	e := New(memory.New(time.UTC), Config{Now: fixedClock(october)})
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	errs := make(chan error, 8)
	for i := 0; i < cap(errs); i++ {
		go func() { errs <- e.Stop(context.Background()) }()
	}
	for i := 0; i < cap(errs); i++ {
		if err := <-errs; err != nil {
			t.Fatalf("stop: %v", err)
		}
	}
	if e.IsRunning() {
		t.Fatalf("engine still running after Stop")
	}
}

// stepClock is a clock tests can move forward.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *stepClock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func TestViewFollowsMonthRollover(t *testing.T) {
	clock := &stepClock{t: time.Date(2025, 10, 31, 23, 59, 0, 0, time.UTC)}
	e := New(memory.New(time.UTC), Config{Now: clock.now})
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer e.Stop(context.Background())

	e.SetMaxBudgetForCategory(core.Food, money("100"))
	st := settle(t, e)
	if st.MonthYear != "2025-10" {
		t.Fatalf("month = %s, want 2025-10", st.MonthYear)
	}

	clock.set(time.Date(2025, 11, 1, 0, 1, 0, 0, time.UTC))
	e.RecordTransaction(money("7"), core.Food, nil)
	st = settle(t, e)
	if st.MonthYear != "2025-11" {
		t.Fatalf("view stayed on %s after the month ended", st.MonthYear)
	}
	assertSummaries(t, st, summaryWant{core.Food, "0", "7", "-7"})
	if len(st.Transactions) != 1 {
		t.Fatalf("expected the new expense listed, got %d", len(st.Transactions))
	}
}

func TestPinnedMonthIgnoresRollover(t *testing.T) {
	clock := &stepClock{t: time.Date(2025, 10, 31, 23, 59, 0, 0, time.UTC)}

	t.Run("start month", func(t *testing.T) {
		e := New(memory.New(time.UTC), Config{Now: clock.now, Month: "2025-10"})
		if err := e.Start(context.Background()); err != nil {
			t.Fatalf("start: %v", err)
		}
		defer e.Stop(context.Background())

		clock.set(time.Date(2025, 11, 1, 0, 1, 0, 0, time.UTC))
		if st := settle(t, e); st.MonthYear != "2025-10" {
			t.Fatalf("pinned month moved to %s", st.MonthYear)
		}
	})

	t.Run("set month", func(t *testing.T) {
		clock.set(time.Date(2025, 10, 31, 23, 59, 0, 0, time.UTC))
		e := New(memory.New(time.UTC), Config{Now: clock.now})
		if err := e.Start(context.Background()); err != nil {
			t.Fatalf("start: %v", err)
		}
		defer e.Stop(context.Background())

		e.SetMonth("2025-09")
		settle(t, e)
		clock.set(time.Date(2025, 11, 1, 0, 1, 0, 0, time.UTC))
		if st := settle(t, e); st.MonthYear != "2025-09" {
			t.Fatalf("chosen month moved to %s", st.MonthYear)
		}
	})
}
