package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"rewardengine/internal/logging"
)

// cronLogger adapts a logging.Logger to cron.Logger.
type cronLogger struct {
	log logging.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug("cron: %s %v", msg, keysAndValues)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error("cron: %s: %v %v", msg, err, keysAndValues)
}

// Cron triggers entries from an in-process cron table.
type Cron struct {
	c   *cron.Cron
	log logging.Logger
	ctx context.Context
}

func NewCron(log logging.Logger, entries []Entry, opts ...GuardOption) (*Cron, error) {
	cl := cronLogger{log: log}
	d := &Cron{
		c: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log: log,
		ctx: context.Background(),
	}
	for _, e := range entries {
		guard := e.guard(log, opts)
		if _, err := d.c.AddFunc(e.Spec, func() { guard.Run(d.ctx) }); err != nil {
			return nil, fmt.Errorf("schedule %s %q: %w", e.Name, e.Spec, err)
		}
	}
	return d, nil
}

// Start begins firing. Jobs receive ctx.
func (d *Cron) Start(ctx context.Context) error {
	d.ctx = ctx
	d.c.Start()
	d.log.Info("cron started with %d entries", len(d.c.Entries()))
	return nil
}

// Stop stops the table and waits for running jobs to return.
func (d *Cron) Stop() {
	<-d.c.Stop().Done()
}
