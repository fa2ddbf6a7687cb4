package core

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParseCategory(t *testing.T) {
	cases := []struct {
		in   string
		want Category
		err  error
	}{
		{"Food", Food, nil},
		{"food", Food, nil},
		{" HOUSING ", Housing, nil},
		{"Savings", Savings, nil},
		{"", "", ErrNoCategory},
		{"Groceries", "", ErrUnknownCategory},
	}
	for _, tc := range cases {
		got, err := ParseCategory(tc.in)
		if !errors.Is(err, tc.err) || got != tc.want {
			t.Errorf("ParseCategory(%q) = %q, %v; want %q, %v", tc.in, got, err, tc.want, tc.err)
		}
	}
}

func TestCategoriesOrder(t *testing.T) {
	cats := Categories()
	want := []Category{Housing, Food, Transportation, Entertainment, Savings}
	if len(cats) != len(want) {
		t.Fatalf("got %d categories, want %d", len(cats), len(want))
	}
	for i, c := range want {
		if cats[i] != c || c.Index() != i {
			t.Fatalf("category %d = %q (index %d), want %q", i, cats[i], c.Index(), c)
		}
	}
	// Returned slice must not alias the package order.
	cats[0] = Savings
	if Categories()[0] != Housing {
		t.Fatalf("Categories() leaked internal slice")
	}
	if Category("Other").Index() != -1 {
		t.Fatalf("unknown category should have index -1")
	}
}

func TestBudgetStateRoundTrip(t *testing.T) {
	for _, s := range []BudgetState{StateActive, StateHidden} {
		got, err := ParseBudgetState(s.String())
		if err != nil || got != s {
			t.Fatalf("ParseBudgetState(%q) = %v, %v", s.String(), got, err)
		}
	}
	if _, err := ParseBudgetState("absent"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("absent is never persisted, got %v", err)
	}
}

func TestBudgetRecordHideAndActivate(t *testing.T) {
	rec := BudgetRecord{Month: "2025-10", Category: Food}.Activate(Money{Cents: 50000})
	if !rec.Visible() || rec.MaxBudget.Cents != 50000 {
		t.Fatalf("unexpected active record: %+v", rec)
	}

	hidden := rec.Hide(Money{Cents: 12000}, 7)
	if hidden.Visible() {
		t.Fatalf("hidden record should not be visible")
	}
	if hidden.MaxBudget.Cents != 0 {
		t.Fatalf("hide should reset the budget, got %d", hidden.MaxBudget.Cents)
	}
	if hidden.LastKnown.MaxBudget.Cents != 50000 || hidden.LastKnown.Spent.Cents != 12000 {
		t.Fatalf("hide should retain last known values, got %+v", hidden.LastKnown)
	}
	if hidden.SpentSinceTxID != 7 {
		t.Fatalf("watermark = %d, want 7", hidden.SpentSinceTxID)
	}

	again := hidden.Activate(Money{})
	if !again.Visible() || again.SpentSinceTxID != 7 {
		t.Fatalf("reactivation must keep the watermark: %+v", again)
	}

	// Watermark never moves backwards.
	if got := again.Hide(Money{}, 3).SpentSinceTxID; got != 7 {
		t.Fatalf("watermark moved backwards to %d", got)
	}
}

func TestBudgetRecordValidate(t *testing.T) {
	good := BudgetRecord{Month: "2025-10", Category: Food, State: StateActive}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	bads := []BudgetRecord{
		{Month: "2025-13", Category: Food, State: StateActive},
		{Month: "2025-10", Category: "Other", State: StateActive},
		{Month: "2025-10", Category: Food, State: StateAbsent},
		{Month: "2025-10", Category: Food, State: StateActive, MaxBudget: Money{Cents: -1}},
	}
	for i, r := range bads {
		if err := r.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestTransactionValidate(t *testing.T) {
	now := time.Date(2025, 10, 3, 12, 0, 0, 0, time.UTC)
	long := strings.Repeat("x", 201)
	good := Transaction{Timestamp: now, Amount: Money{Cents: 1}, Category: Food}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	bads := []Transaction{
		{Amount: Money{Cents: 1}, Category: Food},
		{Timestamp: now, Amount: Money{Cents: 0}, Category: Food},
		{Timestamp: now, Amount: Money{Cents: 1}},
		{Timestamp: now, Amount: Money{Cents: 1}, Category: Food, Description: &long},
	}
	for i, tx := range bads {
		if err := tx.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestNormalizeDescription(t *testing.T) {
	blank := "   "
	lunch := " lunch "
	if NormalizeDescription(nil) != nil || NormalizeDescription(&blank) != nil {
		t.Fatalf("blank descriptions should be dropped")
	}
	if got := NormalizeDescription(&lunch); got == nil || *got != "lunch" {
		t.Fatalf("unexpected description %v", got)
	}
}
