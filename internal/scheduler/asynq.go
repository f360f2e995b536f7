package scheduler

import (
	"context"

	"github.com/hibiken/asynq"

	"rewardengine/internal/logging"
)

const (
	TaskTick     = "accrual:tick"
	TaskRollover = "referral:rollover"

	queueName = "engine"
)

// Asynq enqueues entries through an asynq scheduler and executes them on
// an asynq server, so several replicas can share one trigger stream.
type Asynq struct {
	scheduler  *asynq.Scheduler
	server     *asynq.Server
	mux        *asynq.ServeMux
	entries    []Entry
	log        logging.Logger
	scheduling bool
}

func NewAsynq(opt asynq.RedisClientOpt, log logging.Logger, entries []Entry, opts ...GuardOption) *Asynq {
	mux := asynq.NewServeMux()
	for _, e := range entries {
		guard := e.guard(log, opts)
		mux.HandleFunc(e.Name, func(ctx context.Context, _ *asynq.Task) error {
			guard.Run(ctx)
			return nil
		})
	}
	return &Asynq{
		scheduler: asynq.NewScheduler(opt, &asynq.SchedulerOpts{}),
		server: asynq.NewServer(opt, asynq.Config{
			Concurrency: len(entries) + 1,
			Queues:      map[string]int{queueName: 1},
		}),
		mux:     mux,
		entries: entries,
		log:     log,
	}
}

// Handler exposes the task handler, mostly for tests.
func (a *Asynq) Handler() asynq.Handler {
	return a.mux
}

func (a *Asynq) Start(context.Context) error {
	for _, e := range a.entries {
		opts := []asynq.Option{asynq.Queue(queueName), asynq.MaxRetry(0)}
		if e.Unique > 0 {
			opts = append(opts, asynq.Unique(e.Unique))
		}
		id, err := a.scheduler.Register(e.Spec, asynq.NewTask(e.Name, nil), opts...)
		if err != nil {
			return err
		}
		a.log.Info("asynq entry %s registered as %s (%s)", e.Name, id, e.Spec)
	}
	if err := a.scheduler.Start(); err != nil {
		return err
	}
	a.scheduling = true
	return a.Serve()
}

// Serve only executes queued tasks. Worker replicas call it instead of
// Start so one process owns the schedule.
func (a *Asynq) Serve() error {
	return a.server.Start(a.mux)
}

func (a *Asynq) Stop() {
	if a.scheduling {
		a.scheduler.Shutdown()
	}
	a.server.Shutdown()
}
