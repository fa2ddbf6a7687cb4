package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"budget/internal/core"
)

var (
	overBudget = color.New(color.FgRed, color.Bold)
	errorText  = color.New(color.FgRed)
	muted      = color.New(color.Faint)
)

// formatAmount renders cents with thousands separators, e.g. -1,234.50.
func formatAmount(m core.Money) string {
	cents := m.Cents
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%s.%02d", sign, humanize.Comma(cents/100), cents%100)
}

func title(month core.MonthKey) string {
	return "Simple Budget - " + core.FormatMonthYear(string(month))
}

func renderOverview(w io.Writer, st core.UiState) {
	fmt.Fprintln(w, title(st.MonthYear))
	fmt.Fprintln(w, strings.Repeat("=", len(title(st.MonthYear))))

	switch {
	case st.IsLoading:
		muted.Fprintln(w, "Loading...")
	case len(st.Summaries) == 0:
		muted.Fprintln(w, "No budgets yet. Set one with: budget set-budget <category> <amount>")
	default:
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, "Category\tBudget\tSpent\tRemaining\t\t")
		for _, s := range st.Summaries {
			marker := ""
			if s.OverBudget() {
				marker = overBudget.Sprint("OVER")
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%3.0f%%\t%s\n",
				s.Category.Label(),
				formatAmount(s.BudgetAmount),
				formatAmount(s.SpentAmount),
				formatAmount(s.RemainingAmount()),
				s.Progress()*100,
				marker)
		}
		tw.Flush()
	}

	renderError(w, st)
}

func renderTransactions(w io.Writer, st core.UiState) {
	fmt.Fprintln(w, "Transactions - "+core.FormatMonthYear(string(st.MonthYear)))
	if len(st.Transactions) == 0 {
		muted.Fprintln(w, "No transactions this month.")
		renderError(w, st)
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDate\tCategory\tAmount\tDescription")
	for _, tx := range st.Transactions {
		desc := ""
		if tx.Description != nil {
			desc = *tx.Description
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			tx.ID,
			tx.Timestamp.Format("2006-01-02 15:04"),
			tx.Category.Label(),
			formatAmount(tx.Amount),
			desc)
	}
	tw.Flush()
	renderError(w, st)
}

func renderCategories(w io.Writer, categories []core.Category) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, c := range categories {
		fmt.Fprintf(tw, "%s\t%s\n", c.ID(), c.Label())
	}
	tw.Flush()
}

func renderError(w io.Writer, st core.UiState) {
	if st.ErrorMessage != "" {
		errorText.Fprintln(w, "Error: "+st.ErrorMessage)
	}
}
