package engine

import (
	"time"

	"budget/internal/core"
	"budget/internal/log"
)

const defaultQueueSize = 64

// Config holds configuration for the engine
type Config struct {
	// Now is the source of transaction timestamps and of the current month (default: time.Now)
	Now func() time.Time

	// Location is the time zone the current month is computed in (default: the store's)
	Location *time.Location

	// Logger receives engine logs (default: discarded)
	Logger *log.Logger

	// Month is the month to start on and stay on (default: the current
	// month, following the clock into the next one)
	Month core.MonthKey

	// QueueSize is how many writes may wait for the writer loop (default: 64)
	QueueSize int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Now:       time.Now,
		QueueSize: defaultQueueSize,
	}
}

func (c Config) withDefaults(store interface{ Location() *time.Location }) Config {
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Location == nil {
		c.Location = store.Location()
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.Logger == nil {
		c.Logger = log.Discard()
	}
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
	return c
}
