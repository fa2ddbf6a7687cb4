package storage

import (
	"context"
	"fmt"
	"time"

	"budget/internal/log"
)

// dataVersion reads PRAGMA data_version. The value is per connection and
// changes only when another connection commits to the database file.
func (r *SQLiteRepository) dataVersion(ctx context.Context) (int64, error) {
	var v int64
	if err := r.db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read data_version: %w", err)
	}
	return v, nil
}

// StartChangePoller watches the database file for commits made by other
// processes. When one lands, every observed month is re-emitted.
func (r *SQLiteRepository) StartChangePoller(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("invalid poll interval %v", interval)
	}

	r.pollMu.Lock()
	if r.polling {
		r.pollMu.Unlock()
		return fmt.Errorf("change poller is already running")
	}
	last, err := r.dataVersion(ctx)
	if err != nil {
		r.pollMu.Unlock()
		return err
	}
	r.polling = true
	r.pollCh = make(chan struct{})
	r.pollEnd = make(chan struct{})
	stop, done := r.pollCh, r.pollEnd
	r.pollMu.Unlock()

	go r.pollLoop(ctx, interval, last, stop, done)

	logger(ctx).DebugContext(ctx, "Change poller started", "poll_interval", interval)
	return nil
}

// StopChangePoller stops the poller and waits for it to exit.
func (r *SQLiteRepository) StopChangePoller(ctx context.Context) error {
	r.pollMu.Lock()
	if !r.polling {
		r.pollMu.Unlock()
		return nil
	}
	r.polling = false
	stop, done := r.pollCh, r.pollEnd
	r.pollMu.Unlock()

	close(stop)

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *SQLiteRepository) pollLoop(ctx context.Context, interval time.Duration, last int64, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			v, err := r.dataVersion(ctx)
			if err != nil {
				logger(ctx).WarnContext(ctx, "Failed to poll for external changes", log.FieldError, err)
				continue
			}
			if v == last {
				continue
			}
			last = v
			r.revision.Add(1)
			r.hub.NotifyAll()
			logger(ctx).DebugContext(ctx, "External database change detected", "data_version", v)
		}
	}
}
