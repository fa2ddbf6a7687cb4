package core

// CategorySummary is the derived progress of one visible category.
type CategorySummary struct {
	Category     Category
	BudgetAmount Money
	SpentAmount  Money
}

// RemainingAmount is budget minus spent; negative when over budget.
func (s CategorySummary) RemainingAmount() Money {
	return s.BudgetAmount.Sub(s.SpentAmount)
}

func (s CategorySummary) OverBudget() bool {
	return s.SpentAmount.Cents > s.BudgetAmount.Cents
}

// Progress is spent/budget clamped to [0, 1]; zero without a budget.
func (s CategorySummary) Progress() float64 {
	if s.BudgetAmount.Cents <= 0 {
		return 0
	}
	p := float64(s.SpentAmount.Cents) / float64(s.BudgetAmount.Cents)
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

// UiState is the immutable snapshot published to the presentation layer.
type UiState struct {
	MonthYear    MonthKey
	Summaries    []CategorySummary
	Transactions []Transaction
	IsLoading    bool
	ErrorMessage string
}

// Summary returns the summary for c, if visible.
func (s UiState) Summary(c Category) (CategorySummary, bool) {
	for _, sum := range s.Summaries {
		if sum.Category == c {
			return sum, true
		}
	}
	return CategorySummary{}, false
}
