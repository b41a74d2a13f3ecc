// Package scheduler runs the periodic desk sweeps on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is one periodic task.
type Job struct {
	Name     string
	Schedule string // cron spec or descriptor, e.g. "*/5 * * * *", "@every 1m"
	Run      func(ctx context.Context) error
}

// TaskStatus reports a registered job's run history.
type TaskStatus struct {
	Name       string    `json:"name"`
	Schedule   string    `json:"schedule"`
	LastRun    time.Time `json:"last_run"`
	NextRun    time.Time `json:"next_run"`
	RunCount   int64     `json:"run_count"`
	ErrorCount int64     `json:"error_count"`
	LastError  string    `json:"last_error,omitempty"`
}

type task struct {
	job     Job
	entryID cron.EntryID

	mu         sync.Mutex
	lastRun    time.Time
	runCount   int64
	errorCount int64
	lastError  string
}

// Scheduler wraps a cron runner. Overlapping runs of the same job are
// skipped.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger

	mu    sync.RWMutex
	tasks map[string]*task
	ctx   context.Context
}

// New creates a scheduler evaluating schedules in UTC.
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := cronLogger{logger.Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
		tasks:  make(map[string]*task),
		ctx:    context.Background(),
	}
}

// Add registers a job. An empty schedule leaves the job disabled.
func (s *Scheduler) Add(job Job) error {
	if job.Schedule == "" {
		s.logger.Info("job disabled", zap.String("job", job.Name))
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[job.Name]; ok {
		return fmt.Errorf("scheduler: job %q already registered", job.Name)
	}

	t := &task{job: job}
	id, err := s.cron.AddFunc(job.Schedule, func() { s.execute(t) })
	if err != nil {
		return fmt.Errorf("scheduler: job %q: invalid schedule %q: %w", job.Name, job.Schedule, err)
	}
	t.entryID = id
	s.tasks[job.Name] = t
	s.logger.Info("job scheduled", zap.String("job", job.Name), zap.String("schedule", job.Schedule))
	return nil
}

// Run starts the cron loop and blocks until ctx ends, then waits for
// running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
	return nil
}

// RunNow executes a registered job immediately, outside the schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.RLock()
	t, ok := s.tasks[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("scheduler: unknown job %q", name)
	}
	return s.run(ctx, t)
}

// Tasks lists the registered jobs by name.
func (s *Scheduler) Tasks() []TaskStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]TaskStatus, 0, len(s.tasks))
	for _, t := range s.tasks {
		t.mu.Lock()
		out = append(out, TaskStatus{
			Name:       t.job.Name,
			Schedule:   t.job.Schedule,
			LastRun:    t.lastRun,
			NextRun:    s.cron.Entry(t.entryID).Next,
			RunCount:   t.runCount,
			ErrorCount: t.errorCount,
			LastError:  t.lastError,
		})
		t.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) execute(t *task) {
	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()
	_ = s.run(ctx, t)
}

func (s *Scheduler) run(ctx context.Context, t *task) error {
	start := time.Now()
	err := t.job.Run(ctx)

	t.mu.Lock()
	t.lastRun = start
	t.runCount++
	if err != nil {
		t.errorCount++
		t.lastError = err.Error()
	} else {
		t.lastError = ""
	}
	t.mu.Unlock()

	fields := []zap.Field{zap.String("job", t.job.Name), zap.Duration("elapsed", time.Since(start))}
	if err != nil {
		s.logger.Error("job failed", append(fields, zap.Error(err))...)
		return err
	}
	s.logger.Debug("job completed", fields...)
	return nil
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct{ s *zap.SugaredLogger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
