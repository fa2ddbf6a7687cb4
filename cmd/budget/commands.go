package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"budget/internal/backend"
	"budget/internal/core"
)

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "budget",
		Short:         "Monthly category budgets and expenses",
		Long:          `Track a monthly budget per category, record expenses against it and see what is left.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.backend, "backend", "",
		"data backend: "+strings.Join(backend.GetBackendTypeStrings(), " or ")+" (default from DATA_BACKEND)")
	root.PersistentFlags().StringVar(&flags.dbPath, "db", "", "SQLite database path (default from SQLITE_DB_PATH)")
	root.PersistentFlags().StringVar(&flags.month, "month", "", "month to work on as YYYY-MM (default current month)")

	root.AddCommand(
		newOverviewCmd(flags),
		newSetBudgetCmd(flags),
		newAddCmd(flags),
		newHideCmd(flags),
		newTransactionsCmd(flags),
		newDeleteTxCmd(flags),
		newClearTransactionsCmd(flags),
		newCategoriesCmd(),
		newWatchCmd(flags),
	)
	return root
}

func newOverviewCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "overview",
		Short: "Show budget, spent and remaining per category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, flags, func(ctx context.Context, s *session) error {
				st, err := s.settle(ctx)
				renderOverview(cmd.OutOrStdout(), st)
				return err
			})
		},
	}
}

func newSetBudgetCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "set-budget <category> <amount>",
		Short:   "Set the monthly budget of a category",
		Example: "  budget set-budget food 500\n  budget set-budget housing 1200,50",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, amount, err := core.BudgetForm{Category: args[0], Amount: args[1]}.Parse()
			if err != nil {
				return userError(err)
			}
			return withSession(cmd, flags, func(ctx context.Context, s *session) error {
				if err := s.engine.SetMaxBudgetForCategory(c, amount); err != nil {
					return userError(err)
				}
				st, err := s.settle(ctx)
				renderOverview(cmd.OutOrStdout(), st)
				return err
			})
		},
	}
}

func newAddCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "add <amount> <category> [description...]",
		Short:   "Record an expense",
		Example: "  budget add 12.50 food lunch with Sara",
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			exp, err := core.ExpenseForm{
				Amount:      args[0],
				Category:    args[1],
				Description: strings.Join(args[2:], " "),
			}.Parse()
			if err != nil {
				return userError(err)
			}
			return withSession(cmd, flags, func(ctx context.Context, s *session) error {
				if err := s.engine.RecordTransaction(exp.Amount, exp.Category, exp.Description); err != nil {
					return userError(err)
				}
				st, err := s.settle(ctx)
				renderOverview(cmd.OutOrStdout(), st)
				return err
			})
		},
	}
}

func newHideCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "hide <category>",
		Short: "Hide a category from the month's overview",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := core.ParseCategory(args[0])
			if err != nil {
				return userError(err)
			}
			return withSession(cmd, flags, func(ctx context.Context, s *session) error {
				if err := s.engine.HideCategoryBudget(c); err != nil {
					return userError(err)
				}
				st, err := s.settle(ctx)
				renderOverview(cmd.OutOrStdout(), st)
				return err
			})
		},
	}
}

func newTransactionsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "transactions",
		Aliases: []string{"tx"},
		Short:   "List the month's transactions, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, flags, func(ctx context.Context, s *session) error {
				st, err := s.settle(ctx)
				renderTransactions(cmd.OutOrStdout(), st)
				return err
			})
		},
	}
}

func newDeleteTxCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-tx <id>",
		Short: "Delete one transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid transaction id %q", args[0])
			}
			return withSession(cmd, flags, func(ctx context.Context, s *session) error {
				if err := s.engine.DeleteTransaction(id); err != nil {
					return err
				}
				st, err := s.settle(ctx)
				renderTransactions(cmd.OutOrStdout(), st)
				return err
			})
		},
	}
}

func newClearTransactionsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-transactions",
		Short: "Delete every transaction in every month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, flags, func(ctx context.Context, s *session) error {
				if err := s.engine.ClearAllTransactions(); err != nil {
					return err
				}
				if _, err := s.settle(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "All transactions deleted.")
				return nil
			})
		},
	}
}

func newCategoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List the available categories",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			renderCategories(cmd.OutOrStdout(), core.Categories())
		},
	}
}
