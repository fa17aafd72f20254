package ingestion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gpazo-prog/scraper-enargas/internal/models"
	"github.com/gpazo-prog/scraper-enargas/pkg/logger"
	"github.com/robfig/cron/v3"
)

// RunFunc performs one ingestion pass.
type RunFunc func(ctx context.Context) (*models.RunSummary, error)

// RunStatus describes the most recent scheduled run.
type RunStatus struct {
	Running    bool               `json:"running"`
	LastRunAt  time.Time          `json:"last_run_at,omitempty"`
	LastError  string             `json:"last_error,omitempty"`
	LastResult *models.RunSummary `json:"last_result,omitempty"`
	NextRunAt  time.Time          `json:"next_run_at,omitempty"`
}

// Scheduler triggers ingestion passes on a cron schedule. A pass still running when the next
// one is due causes that one to be skipped.
type Scheduler struct {
	cron    *cron.Cron
	entryID cron.EntryID
	run     RunFunc
	log     logger.Logger

	mu     sync.Mutex
	ctx    context.Context
	status RunStatus
}

func NewScheduler(spec string, loc *time.Location, run RunFunc, log logger.Logger) (*Scheduler, error) {
	if log == nil {
		log = logger.NewNop()
	}
	if loc == nil {
		loc = time.Local
	}

	s := &Scheduler{run: run, log: log, ctx: context.Background()}
	cl := cronLogger{log: log}
	s.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	id, err := s.cron.AddFunc(spec, s.trigger)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	s.entryID = id
	return s, nil
}

// Start begins scheduling. Runs receive ctx; cancelling it aborts the pass in flight.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
	s.log.Info(ctx, "scheduler started", logger.String("next_run", s.cron.Entry(s.entryID).Next.String()))
}

// Stop stops scheduling and waits for the pass in flight, if any, up to ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn(ctx, "gave up waiting for running pass", logger.Error(ctx.Err()))
	}
}

// RunNow performs a pass immediately, outside the schedule.
func (s *Scheduler) RunNow() {
	s.trigger()
}

func (s *Scheduler) trigger() {
	s.mu.Lock()
	if s.status.Running {
		s.mu.Unlock()
		s.log.Warn(context.Background(), "previous pass still running, skipping")
		return
	}
	s.status.Running = true
	ctx := s.ctx
	s.mu.Unlock()

	started := time.Now()
	var (
		summary *models.RunSummary
		err     error
	)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pass panicked: %v", r)
		}
		s.finish(ctx, started, summary, err)
	}()

	summary, err = s.run(ctx)
}

func (s *Scheduler) finish(ctx context.Context, started time.Time, summary *models.RunSummary, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Running = false
	s.status.LastRunAt = started
	s.status.LastResult = summary
	s.status.LastError = ""
	if err != nil {
		s.status.LastError = err.Error()
		s.log.Error(ctx, "scheduled pass failed", logger.Error(err))
	}
}

// Status reports the last pass and when the next one is due.
func (s *Scheduler) Status() RunStatus {
	s.mu.Lock()
	st := s.status
	s.mu.Unlock()
	st.NextRunAt = s.cron.Entry(s.entryID).Next
	return st
}

// Healthy is false when the last pass failed.
func (s *Scheduler) Healthy() (bool, any) {
	st := s.Status()
	return st.LastError == "", st
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(context.Background(), "cron: "+msg, logger.Any("details", keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(context.Background(), "cron: "+msg, logger.Error(err), logger.Any("details", keysAndValues))
}
