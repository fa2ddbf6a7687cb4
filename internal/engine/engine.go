// Package engine owns the budgeting state: it applies every write on a
// single goroutine, follows the viewed month's observable query, and
// publishes a fresh core.UiState whenever the underlying data changes.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"budget/internal/core"
	"budget/internal/log"
	"budget/internal/storage"
	"budget/internal/watch"
)

var (
	ErrNotRunning     = errors.New("engine is not running")
	ErrAlreadyRunning = errors.New("engine is already running")
)

// op is one unit of work for the writer loop. done, when set, is closed
// after run returns. View ops change what is shown, never the store.
type op struct {
	name string
	run  func(ctx context.Context) error
	done chan struct{}
	view bool
}

type Engine struct {
	store     storage.Store
	logger    *log.Logger
	now       func() time.Time
	loc       *time.Location
	queueSize int
	state     *watch.Value[core.UiState]

	// writeErr is the last failed write. It stays on every snapshot until a
	// later write succeeds or ClearErrorMessage is called.
	errMu    sync.Mutex
	writeErr string

	// Lifecycle management
	mu      sync.Mutex
	running bool
	ops     chan op
	stopCh  chan struct{}
	doneCh  chan struct{}

	// Owned by the writer loop once started.
	month   core.MonthKey
	feed    *watch.Feed[storage.MonthData]
	feedC   <-chan watch.Result[storage.MonthData]
	applied uint64

	// followClock moves the view to the clock's month when it rolls over.
	// Cleared by an explicit start month or SetMonth.
	followClock bool
}

// New creates an engine over store. Zero fields in config fall back to
// DefaultConfig and the store's location.
func New(store storage.Store, config Config) *Engine {
	config = config.withDefaults(store)
	e := &Engine{
		store:     store,
		logger:    config.Logger.WithComponent(log.ComponentEngine),
		now:       config.Now,
		loc:       config.Location,
		queueSize: config.QueueSize,
		month:     config.Month,
	}
	if config.Month == "" {
		e.followClock = true
		e.month = e.clockMonth()
	}
	e.state = watch.NewValue(core.UiState{MonthYear: e.month, IsLoading: true})
	return e
}

// Start subscribes to the current month and begins applying writes.
// Returns an error if already running.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	e.running = true
	e.ops = make(chan op, e.queueSize)
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})
	ops, stopCh, doneCh := e.ops, e.stopCh, e.doneCh
	e.mu.Unlock()

	ctx = log.NewContext(ctx, e.logger)
	e.logger.InfoContext(ctx, "Engine started",
		log.FieldOperation, log.OpStartup,
		log.FieldMonth, e.month)

	e.subscribe(ctx)
	go e.runLoop(ctx, ops, stopCh, doneCh)
	return nil
}

// Stop ends the writer loop and waits for it. Writes still queued are
// dropped. Safe to call concurrently.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	stopCh, doneCh := e.stopCh, e.doneCh
	e.stopCh = nil
	e.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
	}

	select {
	case <-doneCh:
		e.logger.InfoContext(ctx, "Engine stopped", log.FieldOperation, log.OpShutdown)
	case <-ctx.Done():
		e.logger.WarnContext(ctx, "Engine stop timed out", log.FieldOperation, log.OpShutdown)
		return ctx.Err()
	}
	return nil
}

func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *Engine) runLoop(ctx context.Context, ops <-chan op, stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	// The loop also ends when ctx is cancelled; writes must fail from then on.
	defer func() {
		e.mu.Lock()
		if e.doneCh == doneCh {
			e.running = false
		}
		e.mu.Unlock()
	}()
	defer func() {
		if e.feed != nil {
			e.feed.Cancel()
			e.feed, e.feedC = nil, nil
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case o := <-ops:
			e.followRollover(ctx)
			e.execute(ctx, o)
		case res, ok := <-e.feedC:
			if !ok {
				e.feedC = nil
				continue
			}
			e.apply(res)
		}
	}
}

func (e *Engine) execute(ctx context.Context, o op) {
	if o.done != nil {
		defer close(o.done)
	}
	start := time.Now()
	err := o.run(ctx)
	if err != nil {
		fields := log.NewFields().
			WithOperation(o.name).
			WithMonth(string(e.month)).
			WithError(err)
		e.logger.WithFields(fields).ErrorContext(ctx, "Write failed")
		if !o.view {
			e.setWriteError(err.Error())
		}
		e.setError(err)
		return
	}
	if !o.view && e.setWriteError("") {
		e.state.Update(func(s core.UiState) core.UiState {
			s.ErrorMessage = ""
			return s
		})
	}
	e.logger.DebugContext(ctx, "Write applied",
		log.FieldOperation, o.name,
		log.FieldDuration, time.Since(start).Milliseconds())
}

func (e *Engine) clockMonth() core.MonthKey {
	return core.MonthOf(e.now().In(e.loc))
}

// followRollover switches the view to the clock's month once the month
// the engine started on is over. Loop-owned.
func (e *Engine) followRollover(ctx context.Context) {
	if !e.followClock {
		return
	}
	month := e.clockMonth()
	if month == e.month {
		return
	}
	e.logger.InfoContext(ctx, "Month rolled over",
		log.FieldOperation, log.OpSetMonth,
		log.FieldMonth, month)
	e.switchMonth(ctx, month)
}

func (e *Engine) switchMonth(ctx context.Context, month core.MonthKey) {
	e.month = month
	e.state.Set(core.UiState{MonthYear: month, IsLoading: true})
	e.subscribe(ctx)
}

// subscribe replaces the feed with one for e.month. Loop-owned.
func (e *Engine) subscribe(ctx context.Context) {
	if e.feed != nil {
		e.feed.Cancel()
	}
	e.applied = 0
	e.feed = e.store.ObserveMonth(ctx, e.month)
	e.feedC = e.feed.C()
}

// apply derives and publishes a snapshot from one query result, unless the
// result is older than what is already shown.
func (e *Engine) apply(res watch.Result[storage.MonthData]) {
	if res.Err != nil {
		e.logger.Error("Month query failed",
			log.FieldOperation, log.OpDerive,
			log.FieldMonth, e.month,
			log.FieldError, res.Err)
		e.setError(res.Err)
		return
	}
	data := res.Value
	if data.Month != e.month || data.Revision < e.applied {
		return
	}
	e.applied = data.Revision

	snapshot := core.UiState{
		MonthYear:    data.Month,
		Summaries:    BuildSummaries(data.Budgets, data.Transactions),
		Transactions: append([]core.Transaction(nil), data.Transactions...),
		ErrorMessage: e.writeError(),
	}
	e.state.Set(snapshot)

	e.logger.Debug("Snapshot published",
		log.FieldOperation, log.OpDerive,
		log.FieldMonth, data.Month,
		log.FieldRevision, data.Revision,
		"summaries", len(snapshot.Summaries))
}

// setWriteError records msg and reports whether an earlier error was replaced.
func (e *Engine) setWriteError(msg string) bool {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	had := e.writeErr != ""
	e.writeErr = msg
	return had
}

func (e *Engine) writeError() string {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	return e.writeErr
}

func (e *Engine) setError(err error) {
	e.state.Update(func(s core.UiState) core.UiState {
		s.IsLoading = false
		s.ErrorMessage = err.Error()
		return s
	})
}

func (e *Engine) enqueue(o op) error {
	e.mu.Lock()
	running, ops, doneCh := e.running, e.ops, e.doneCh
	e.mu.Unlock()
	if !running {
		return ErrNotRunning
	}

	select {
	case <-doneCh:
		return ErrNotRunning
	default:
	}
	select {
	case ops <- o:
		return nil
	case <-doneCh:
		return ErrNotRunning
	}
}

// State returns the latest published snapshot.
func (e *Engine) State() core.UiState {
	return e.state.Get()
}

// Subscribe streams snapshots, starting with the current one. A slow
// reader only ever sees the latest.
func (e *Engine) Subscribe() *watch.Subscription[core.UiState] {
	return e.state.Subscribe()
}

// Categories lists the categories a budget or transaction may use.
func (e *Engine) Categories() []core.Category {
	return core.Categories()
}

// SetMaxBudgetForCategory sets the cap of c for the viewed month, creating
// the record or bringing a hidden one back. Zero is a valid budget.
func (e *Engine) SetMaxBudgetForCategory(c core.Category, amount core.Money) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := amount.ValidateNonNegative(); err != nil {
		return err
	}

	return e.enqueue(op{name: log.OpSetBudget, run: func(ctx context.Context) error {
		rec, err := e.store.GetBudget(ctx, e.month, c)
		if err != nil {
			return fmt.Errorf("load budget: %w", err)
		}
		if _, err := e.store.UpsertBudget(ctx, rec.Activate(amount)); err != nil {
			return fmt.Errorf("save budget: %w", err)
		}
		fields := log.NewFields().
			WithOperation(log.OpSetBudget).
			WithMonth(string(e.month)).
			WithEntry(c.ID(), amount.Cents)
		e.logger.WithFields(fields).InfoContext(ctx, "Budget set")
		return nil
	}})
}

// RecordTransaction appends an expense stamped with the clock and makes
// sure its category is visible in the expense's month.
func (e *Engine) RecordTransaction(amount core.Money, c core.Category, description *string) error {
	tx := core.Transaction{
		Timestamp:   e.now(),
		Amount:      amount,
		Category:    c,
		Description: core.NormalizeDescription(description),
	}
	if err := tx.Validate(); err != nil {
		return err
	}

	return e.enqueue(op{name: log.OpRecord, run: func(ctx context.Context) error {
		saved, err := e.store.InsertTransaction(ctx, tx)
		if err != nil {
			return fmt.Errorf("save transaction: %w", err)
		}

		month := core.MonthOf(saved.Timestamp.In(e.store.Location()))
		rec, err := e.store.GetBudget(ctx, month, c)
		if err != nil {
			return fmt.Errorf("load budget: %w", err)
		}
		if !rec.Visible() {
			if _, err := e.store.UpsertBudget(ctx, rec.Activate(core.Money{})); err != nil {
				return fmt.Errorf("activate budget: %w", err)
			}
		}

		fields := log.NewFields().
			WithOperation(log.OpRecord).
			WithMonth(string(month)).
			WithEntry(c.ID(), amount.Cents)
		e.logger.WithFields(fields).InfoContext(ctx, "Transaction recorded", log.FieldTxID, saved.ID)
		return nil
	}})
}

// HideCategoryBudget removes c from the viewed month's summaries. Its
// budget and spend are kept as last known values and spend restarts from
// zero if the category comes back.
func (e *Engine) HideCategoryBudget(c core.Category) error {
	if err := c.Validate(); err != nil {
		return err
	}

	return e.enqueue(op{name: log.OpHide, run: func(ctx context.Context) error {
		rec, err := e.store.GetBudget(ctx, e.month, c)
		if err != nil {
			return fmt.Errorf("load budget: %w", err)
		}
		if rec.State != core.StateActive {
			return nil
		}

		data, err := e.store.LoadMonth(ctx, e.month)
		if err != nil {
			return fmt.Errorf("load month: %w", err)
		}
		watermark, err := e.store.MaxTransactionID(ctx)
		if err != nil {
			return fmt.Errorf("read transaction watermark: %w", err)
		}

		spent := SpentFor(rec, data.Transactions)
		if _, err := e.store.UpsertBudget(ctx, rec.Hide(spent, watermark)); err != nil {
			return fmt.Errorf("hide budget: %w", err)
		}
		e.logger.InfoContext(ctx, "Category hidden",
			log.FieldOperation, log.OpHide,
			log.FieldMonth, e.month,
			log.FieldCategory, c,
			"last_spent_cents", spent.Cents)
		return nil
	}})
}

func (e *Engine) DeleteTransaction(id int64) error {
	return e.enqueue(op{name: log.OpDelete, run: func(ctx context.Context) error {
		if err := e.store.DeleteTransaction(ctx, id); err != nil {
			return fmt.Errorf("delete transaction: %w", err)
		}
		return nil
	}})
}

func (e *Engine) ClearAllTransactions() error {
	return e.enqueue(op{name: log.OpClear, run: func(ctx context.Context) error {
		if err := e.store.DeleteAllTransactions(ctx); err != nil {
			return fmt.Errorf("clear transactions: %w", err)
		}
		return nil
	}})
}

// ClearErrorMessage drops the current error message. Nothing is persisted.
func (e *Engine) ClearErrorMessage() {
	e.setWriteError("")
	e.state.Update(func(s core.UiState) core.UiState {
		s.ErrorMessage = ""
		return s
	})
}

// SetMonth switches the viewed month. A loading snapshot for the new month
// is published before its data arrives.
func (e *Engine) SetMonth(month core.MonthKey) error {
	if _, err := core.ParseMonthKey(string(month)); err != nil {
		return err
	}

	return e.enqueue(op{name: log.OpSetMonth, view: true, run: func(ctx context.Context) error {
		e.followClock = false
		if month == e.month {
			return nil
		}
		e.switchMonth(ctx, month)
		return nil
	}})
}

// Sync waits until every write enqueued before it has been applied and a
// snapshot reflecting them is published.
func (e *Engine) Sync(ctx context.Context) error {
	done := make(chan struct{})
	err := e.enqueue(op{name: "sync", done: done, view: true, run: func(ctx context.Context) error {
		data, err := e.store.LoadMonth(ctx, e.month)
		e.apply(watch.Result[storage.MonthData]{Value: data, Err: err})
		return nil
	}})
	if err != nil {
		return err
	}

	e.mu.Lock()
	doneCh := e.doneCh
	e.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-doneCh:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}
