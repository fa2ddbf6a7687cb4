package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"budget/internal/cli"
	"budget/internal/core"
	"budget/internal/log"
)

const watchHelp = `commands:
  add <amount> <category> [description...]
  set <category> <amount>
  hide <category>
  delete <id>
  month <YYYY-MM>
  clear-error
  quit`

func newWatchCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream the overview and apply commands read from stdin",
		Long: "Prints a fresh overview every time the month's data changes, including writes\n" +
			"made by other budget processes. Reads one command per line from stdin.\n\n" + watchHelp,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, flags)
			if err != nil {
				return err
			}
			return runWatch(cmd, s)
		},
	}
}

func runWatch(cmd *cobra.Command, s *session) error {
	parent, quit := context.WithCancel(cmd.Context())
	defer quit()

	ctx, done := cli.GracefulShutdown(parent, s.logger.WithComponent(log.ComponentCLI), s.cfg.ShutdownTimeout, s.Close)
	out := &syncWriter{w: cmd.OutOrStdout()}

	lines := make(chan string)
	go scanLines(ctx, cmd.InOrStdin(), lines)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sub := s.engine.Subscribe()
		defer sub.Cancel()
		for {
			select {
			case <-gctx.Done():
				return nil
			case st, ok := <-sub.C():
				if !ok {
					return nil
				}
				renderOverview(out, st)
				fmt.Fprintln(out)
			}
		}
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok || !runLine(out, s, line) {
					quit()
					return nil
				}
			}
		}
	})

	err := g.Wait()
	quit()
	<-done
	return err
}

// syncWriter serializes writes from the printer and the command reader.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func scanLines(ctx context.Context, r io.Reader, lines chan<- string) {
	defer close(lines)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		select {
		case lines <- sc.Text():
		case <-ctx.Done():
			return
		}
	}
}

// runLine applies one watch command and reports whether to keep going.
func runLine(out io.Writer, s *session, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}

	e := s.engine
	var err error
	switch verb, rest := strings.ToLower(fields[0]), fields[1:]; verb {
	case "quit", "exit":
		return false
	case "add":
		if len(rest) < 2 {
			err = fmt.Errorf("usage: add <amount> <category> [description...]")
			break
		}
		var exp core.Expense
		exp, err = core.ExpenseForm{Amount: rest[0], Category: rest[1], Description: strings.Join(rest[2:], " ")}.Parse()
		if err == nil {
			err = e.RecordTransaction(exp.Amount, exp.Category, exp.Description)
		}
	case "set":
		if len(rest) != 2 {
			err = fmt.Errorf("usage: set <category> <amount>")
			break
		}
		c, amount, perr := core.BudgetForm{Category: rest[0], Amount: rest[1]}.Parse()
		err = perr
		if err == nil {
			err = e.SetMaxBudgetForCategory(c, amount)
		}
	case "hide":
		if len(rest) != 1 {
			err = fmt.Errorf("usage: hide <category>")
			break
		}
		var c core.Category
		c, err = core.ParseCategory(rest[0])
		if err == nil {
			err = e.HideCategoryBudget(c)
		}
	case "delete":
		var id int64
		if len(rest) == 1 {
			id, err = strconv.ParseInt(rest[0], 10, 64)
		}
		if len(rest) != 1 || err != nil {
			err = fmt.Errorf("usage: delete <id>")
			break
		}
		err = e.DeleteTransaction(id)
	case "month":
		if len(rest) != 1 {
			err = fmt.Errorf("usage: month <YYYY-MM>")
			break
		}
		err = e.SetMonth(core.MonthKey(rest[0]))
	case "clear-error":
		e.ClearErrorMessage()
	case "help":
		fmt.Fprintln(out, watchHelp)
	default:
		err = fmt.Errorf("unknown command %q, type help", verb)
	}

	if err != nil {
		fmt.Fprintln(out, userError(err))
	}
	return true
}
