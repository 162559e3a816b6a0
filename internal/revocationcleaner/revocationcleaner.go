// Package revocationcleaner periodically drops revocation-list entries whose
// tokens have expired on their own.
package revocationcleaner

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/patric-chuzhbe/beerich/internal/logger"
)

type revocationPurger interface {
	PurgeExpiredRevocations(ctx context.Context, now time.Time) (int64, error)
}

const errorChannelCapacity = 16

type RevocationCleaner struct {
	db           revocationPurger
	interval     time.Duration
	now          func() time.Time
	errorChannel chan error
	done         chan struct{}
}

type Option func(*RevocationCleaner)

// WithClock replaces time.Now as the source of the purge cutoff.
func WithClock(now func() time.Time) Option {
	return func(c *RevocationCleaner) {
		c.now = now
	}
}

func New(db revocationPurger, interval time.Duration, opts ...Option) *RevocationCleaner {
	c := &RevocationCleaner{
		db:           db,
		interval:     interval,
		now:          time.Now,
		errorChannel: make(chan error, errorChannelCapacity),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListenErrors calls callback for every failed purge until the cleaner stops.
func (c *RevocationCleaner) ListenErrors(callback func(error)) {
	go func() {
		for err := range c.errorChannel {
			callback(err)
		}
	}()
}

// PurgeOnce removes the entries that expired before now.
func (c *RevocationCleaner) PurgeOnce(ctx context.Context) (int64, error) {
	purged, err := c.db.PurgeExpiredRevocations(ctx, c.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("in internal/revocationcleaner/revocationcleaner.go/PurgeOnce(): error while `c.db.PurgeExpiredRevocations()` calling: %w", err)
	}

	return purged, nil
}

func (c *RevocationCleaner) report(err error) {
	select {
	case c.errorChannel <- err:
	default:
		logger.Log.Debugln("Error dropped, the error channel is full: ", zap.Error(err))
	}
}

// Run purges every interval in a background goroutine until ctx is done.
func (c *RevocationCleaner) Run(ctx context.Context) {
	go func() {
		defer close(c.done)
		defer close(c.errorChannel)

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				purged, err := c.PurgeOnce(ctx)
				if err != nil {
					c.report(err)
					continue
				}
				if purged > 0 {
					logger.Log.Infof("purged %d expired session revocations", purged)
				}
			}
		}
	}()
}

// Done is closed once Run has returned.
func (c *RevocationCleaner) Done() <-chan struct{} {
	return c.done
}
