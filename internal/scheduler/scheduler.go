package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"laikostar/internal/logging"

	"github.com/robfig/cron/v3"
)

// Job is a unit of background work that reports how many items it handled.
type Job func(ctx context.Context) (int, error)

type Scheduler struct {
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}

// New creates a scheduler whose jobs are cancelled when ctx is done. Each run
// is bounded by timeout.
func New(ctx context.Context, loc *time.Location, timeout time.Duration) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	logger := cronLogger{log: logging.Logg}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	ctx, cancel := context.WithCancel(ctx)
	return &Scheduler{cron: c, ctx: ctx, cancel: cancel, timeout: timeout}
}

// Add registers job under name on the given cron schedule.
func (s *Scheduler) Add(name, schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() { s.run(name, job) })
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	logging.Logg.Info("Job scheduled", "job", name, "schedule", schedule)
	return nil
}

func (s *Scheduler) run(name string, job Job) {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	start := time.Now()
	n, err := job(ctx)
	if err != nil {
		logging.Logg.Error("Job failed", "job", name, "handled", n, "error", err)
		return
	}
	logging.Logg.Info("Job finished", "job", name, "handled", n, "duration", time.Since(start))
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}
