package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/tmercier/keepsake/pkg/auth"
)

// Purger is implemented by backends able to drop expired session records.
type Purger interface {
	PurgeExpired(ctx context.Context, olderThan time.Time) (int64, error)
}

// TokenBackend is the full surface a storage backend offers the cleanup
// job and the authenticators.
type TokenBackend interface {
	auth.TokenStore
	Purger
}

// Cleanup periodically purges expired session records that have aged past
// the retention window. Soft-expired records are kept around as an audit
// trail until then.
type Cleanup struct {
	purger    Purger
	retention time.Duration
	cron      *cron.Cron
	log       *logrus.Logger
}

// NewCleanup schedules PurgeExpired on the given cron expression.
func NewCleanup(purger Purger, schedule string, retention time.Duration, log *logrus.Logger) (*Cleanup, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	c := &Cleanup{
		purger:    purger,
		retention: retention,
		cron:      cron.New(),
		log:       log,
	}
	if _, err := c.cron.AddFunc(schedule, c.run); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}
	return c, nil
}

// Start launches the scheduler.
func (c *Cleanup) Start() {
	c.cron.Start()
	c.log.WithField("retention", c.retention).Info("session cleanup scheduled")
}

// Stop halts the scheduler and waits for a running purge to finish.
func (c *Cleanup) Stop() {
	ctx := c.cron.Stop()
	<-ctx.Done()
}

// Run executes one purge immediately.
func (c *Cleanup) Run(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-c.retention)
	return c.purger.PurgeExpired(ctx, cutoff)
}

func (c *Cleanup) run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	purged, err := c.Run(ctx)
	if err != nil {
		c.log.WithError(err).Error("session cleanup failed")
		return
	}
	if purged > 0 {
		c.log.WithField("purged", purged).Info("expired session records purged")
	}
}
