package repository

import (
	"time"

	"github.com/okian/talentlens/pkg/logger"
)

type storeConfig struct {
	capacity int
	now      func() time.Time
	log      logger.Logger
}

func newStoreConfig(opts []Option) storeConfig {
	c := storeConfig{
		capacity: DefaultCapacity,
		now:      time.Now,
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Option applies a configuration option to a record store.
type Option func(*storeConfig)

// WithCapacity sets the maximum number of retained records.
func WithCapacity(n int) Option {
	return func(c *storeConfig) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithClock replaces the wall clock used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *storeConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(c *storeConfig) {
		if l != nil {
			c.log = l
		}
	}
}
