package engine

import (
	"sort"

	"budget/internal/core"
)

// SpentFor sums the transactions of rec's category recorded after its
// spend watermark. txs must already be limited to rec's month.
func SpentFor(rec core.BudgetRecord, txs []core.Transaction) core.Money {
	var spent core.Money
	for _, tx := range txs {
		if tx.Category == rec.Category && tx.ID > rec.SpentSinceTxID {
			spent = spent.Add(tx.Amount)
		}
	}
	return spent
}

// BuildSummaries derives one summary per active record, in category
// enumeration order. Hidden records never produce a summary.
func BuildSummaries(budgets []core.BudgetRecord, txs []core.Transaction) []core.CategorySummary {
	out := make([]core.CategorySummary, 0, len(budgets))
	for _, rec := range budgets {
		if !rec.Visible() {
			continue
		}
		out = append(out, core.CategorySummary{
			Category:     rec.Category,
			BudgetAmount: rec.MaxBudget,
			SpentAmount:  SpentFor(rec, txs),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Category.Index() < out[j].Category.Index()
	})
	return out
}
