package fsm

import (
	"time"

	"github.com/google/uuid"
)

type config struct {
	now   func() time.Time
	newID func() string
}

// Option configures a machine.
type Option func(*config)

// WithClock overrides the clock used to timestamp transitions.
// Timestamps are always converted to UTC.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		c.now = now
	}
}

// WithIDGenerator overrides the generator of transition ids.
func WithIDGenerator(fn func() string) Option {
	return func(c *config) {
		c.newID = fn
	}
}

func newConfig(opts []Option) config {
	c := config{
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
