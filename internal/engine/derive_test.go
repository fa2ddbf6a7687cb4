package engine

import (
	"testing"

	"budget/internal/core"
)

func TestBuildSummaries(t *testing.T) {
	budgets := []core.BudgetRecord{
		{Category: core.Savings, State: core.StateActive, MaxBudget: core.Money{Cents: 1000}},
		{Category: core.Food, State: core.StateHidden, LastKnown: core.BudgetValues{MaxBudget: core.Money{Cents: 500}}},
		{Category: core.Housing, State: core.StateActive, MaxBudget: core.Money{Cents: 2000}, SpentSinceTxID: 2},
	}
	txs := []core.Transaction{
		{ID: 4, Category: core.Housing, Amount: core.Money{Cents: 300}},
		{ID: 3, Category: core.Food, Amount: core.Money{Cents: 50}},
		{ID: 2, Category: core.Housing, Amount: core.Money{Cents: 700}},
		{ID: 1, Category: core.Savings, Amount: core.Money{Cents: 250}},
	}

	got := BuildSummaries(budgets, txs)
	want := []core.CategorySummary{
		{Category: core.Housing, BudgetAmount: core.Money{Cents: 2000}, SpentAmount: core.Money{Cents: 300}},
		{Category: core.Savings, BudgetAmount: core.Money{Cents: 1000}, SpentAmount: core.Money{Cents: 250}},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d summaries, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("summary %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestSpentForWatermark(t *testing.T) {
	txs := []core.Transaction{
		{ID: 1, Category: core.Food, Amount: core.Money{Cents: 100}},
		{ID: 2, Category: core.Food, Amount: core.Money{Cents: 200}},
		{ID: 3, Category: core.Food, Amount: core.Money{Cents: 400}},
		{ID: 4, Category: core.Savings, Amount: core.Money{Cents: 800}},
	}
	tests := []struct {
		watermark int64
		want      int64
	}{
		{0, 700},
		{1, 600},
		{3, 0},
	}
	for _, tt := range tests {
		rec := core.BudgetRecord{Category: core.Food, SpentSinceTxID: tt.watermark}
		if got := SpentFor(rec, txs); got.Cents != tt.want {
			t.Errorf("watermark %d: spent = %d, want %d", tt.watermark, got.Cents, tt.want)
		}
	}
}
