package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"budget/internal/backend"
	"budget/internal/cli"
	"budget/internal/config"
	"budget/internal/core"
	"budget/internal/engine"
	"budget/internal/log"
)

// globalFlags override the environment configuration for one invocation.
type globalFlags struct {
	backend string
	dbPath  string
	month   string
}

func (f *globalFlags) apply(cfg *config.Config) {
	if f.backend != "" {
		cfg.DataBackend = f.backend
	}
	if f.dbPath != "" {
		cfg.SQLiteDBPath = f.dbPath
	}
}

// session is one running engine over the configured store.
type session struct {
	cfg     *config.Config
	logger  *log.Logger
	engine  *engine.Engine
	cleanup backend.CleanupFunc
}

func openSession(cmd *cobra.Command, flags *globalFlags) (*session, error) {
	ctx := cmd.Context()
	logger := cli.SetupLogger(cmd.ErrOrStderr(), os.Getenv("LOG_LEVEL"))

	cfg, err := cli.LoadAndValidateConfig(logger, flags.apply)
	if err != nil {
		return nil, err
	}

	bc, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bc)
	if err != nil {
		return nil, err
	}

	ec := engine.DefaultConfig()
	ec.Logger = logger
	ec.QueueSize = cfg.QueueSize
	if flags.month != "" {
		month, err := core.ParseMonthKey(flags.month)
		if err != nil {
			res.Cleanup()
			return nil, err
		}
		ec.Month = month
	}

	e := engine.New(res.Store, ec)
	if err := e.Start(ctx); err != nil {
		res.Cleanup()
		return nil, fmt.Errorf("start engine: %w", err)
	}

	return &session{cfg: cfg, logger: logger, engine: e, cleanup: res.Cleanup}, nil
}

// settle waits for queued writes and returns the resulting snapshot. A
// storage failure recorded in the snapshot is returned as an error.
func (s *session) settle(ctx context.Context) (core.UiState, error) {
	if err := s.engine.Sync(ctx); err != nil {
		return core.UiState{}, err
	}
	st := s.engine.State()
	if st.ErrorMessage != "" {
		return st, errors.New(st.ErrorMessage)
	}
	return st, nil
}

func (s *session) Close(ctx context.Context) error {
	var result *multierror.Error
	if err := s.engine.Stop(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("stop engine: %w", err))
	}
	if s.cleanup != nil {
		if err := s.cleanup(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close store: %w", err))
		}
	}
	return result.ErrorOrNil()
}

// withSession runs fn against a fresh session and tears it down afterwards.
func withSession(cmd *cobra.Command, flags *globalFlags, fn func(ctx context.Context, s *session) error) (err error) {
	s, err := openSession(cmd, flags)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if cerr := s.Close(shutdownCtx); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return fn(ctx, s)
}

// userError turns validation failures into the message shown to the user.
func userError(err error) error {
	if msg := core.UserMessage(err); msg != "" {
		return errors.New(msg)
	}
	return err
}
